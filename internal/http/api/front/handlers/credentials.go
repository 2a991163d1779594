package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/promptcraft/promptcraft/internal/models"
	"github.com/promptcraft/promptcraft/internal/provider"
	"github.com/promptcraft/promptcraft/internal/security"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CredentialHandler manages a user's own provider API keys.
type CredentialHandler struct {
	db     *gorm.DB
	cipher *security.Cipher
}

// NewCredentialHandler constructs a CredentialHandler.
func NewCredentialHandler(db *gorm.DB, cipher *security.Cipher) *CredentialHandler {
	return &CredentialHandler{db: db, cipher: cipher}
}

// putCredentialRequest captures the payload for storing a key.
type putCredentialRequest struct {
	APIKey string `json:"apiKey"` // Plaintext provider key.
}

// List returns the providers the user has stored keys for. Keys are never returned.
func (h *CredentialHandler) List(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var rows []models.UserCredential
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("user_id = ?", userID).
		Order("provider ASC").
		Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list credentials failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, gin.H{
			"provider":   row.Provider,
			"updated_at": row.UpdatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"credentials": out})
}

// Put seals and stores the user's key for a provider.
func (h *CredentialHandler) Put(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	providerID, okProvider := knownProvider(c.Param("provider"))
	if !okProvider {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown provider"})
		return
	}
	var body putCredentialRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	apiKey := strings.TrimSpace(body.APIKey)
	if apiKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "apiKey is required"})
		return
	}

	sealed, errSeal := h.cipher.Seal(apiKey, security.CredentialAAD(userID, providerID))
	if errSeal != nil {
		log.WithError(errSeal).WithField("user_id", userID).Error("credentials: seal failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store credential failed"})
		return
	}

	now := time.Now().UTC()
	row := models.UserCredential{
		UserID:       userID,
		Provider:     providerID,
		EncryptedKey: sealed,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if errSave := h.db.WithContext(c.Request.Context()).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "provider"}},
		DoUpdates: clause.Assignments(map[string]any{"encrypted_key": sealed, "updated_at": now}),
	}).Create(&row).Error; errSave != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store credential failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Delete removes the user's key for a provider.
func (h *CredentialHandler) Delete(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	providerID, okProvider := knownProvider(c.Param("provider"))
	if !okProvider {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown provider"})
		return
	}
	res := h.db.WithContext(c.Request.Context()).
		Where("user_id = ? AND provider = ?", userID, providerID).
		Delete(&models.UserCredential{})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func knownProvider(raw string) (string, bool) {
	switch id := strings.ToLower(strings.TrimSpace(raw)); id {
	case provider.Google, provider.OpenAI:
		return id, true
	default:
		return "", false
	}
}
