package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/promptcraft/promptcraft/internal/usage"
	"gorm.io/gorm"
)

// HistoryHandler serves the current user's generation history.
type HistoryHandler struct {
	db *gorm.DB
}

// NewHistoryHandler constructs a HistoryHandler.
func NewHistoryHandler(db *gorm.DB) *HistoryHandler {
	return &HistoryHandler{db: db}
}

// List returns history records newest first.
func (h *HistoryHandler) List(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	limit := 0
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, errParse := strconv.Atoi(raw)
		if errParse != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	rows, errList := usage.History(c.Request.Context(), h.db, userID, limit)
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list history failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, gin.H{
			"id":          row.ID,
			"template_id": row.TemplateID,
			"model_id":    row.ModelID,
			"input_topic": row.InputTopic,
			"output_text": row.OutputText,
			"created_at":  row.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"history": out})
}
