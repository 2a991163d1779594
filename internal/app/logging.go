package app

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/promptcraft/promptcraft/internal/config"
	log "github.com/sirupsen/logrus"
)

// configureLogging applies the log level and format from config.
func configureLogging(cfg config.Config) {
	if strings.EqualFold(strings.TrimSpace(cfg.LogFormat), "json") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	level, errLevel := log.ParseLevel(strings.TrimSpace(cfg.LogLevel))
	if errLevel != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)

	switch strings.ToLower(strings.TrimSpace(cfg.GinMode)) {
	case gin.DebugMode:
		gin.SetMode(gin.DebugMode)
	case gin.TestMode:
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}
}

// requestLogger logs one line per request at debug level, and at warn level
// for server errors.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		entry := log.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  status,
			"latency": time.Since(start).String(),
		})
		if status >= 500 {
			entry.Warn("request failed")
			return
		}
		entry.Debug("request")
	}
}
