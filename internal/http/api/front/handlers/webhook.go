package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/promptcraft/promptcraft/internal/apperr"
	"github.com/promptcraft/promptcraft/internal/billing"
	log "github.com/sirupsen/logrus"
)

// maxWebhookBytes bounds the accepted event payload.
const maxWebhookBytes = 1 << 20

// WebhookProcessor verifies and applies a billing event.
type WebhookProcessor interface {
	HandleWebhook(ctx context.Context, payload []byte, signature string) (billing.Outcome, error)
}

// WebhookHandler receives billing provider webhooks.
type WebhookHandler struct {
	processor WebhookProcessor
}

// NewWebhookHandler constructs a WebhookHandler.
func NewWebhookHandler(processor WebhookProcessor) *WebhookHandler {
	return &WebhookHandler{processor: processor}
}

// Stripe handles a signed Stripe event delivery.
func (h *WebhookHandler) Stripe(c *gin.Context) {
	payload, errRead := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes+1))
	if errRead != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read body failed"})
		return
	}
	if len(payload) > maxWebhookBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
		return
	}

	outcome, errHandle := h.processor.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if errHandle != nil {
		if apperr.Is[*apperr.InvalidSignatureError](errHandle) {
			log.WithError(errHandle).Warn("webhook: rejected delivery")
			c.JSON(http.StatusBadRequest, gin.H{"error": errHandle.Error()})
			return
		}
		log.WithError(errHandle).Error("webhook: processing failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "webhook processing failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true, "outcome": outcome})
}
