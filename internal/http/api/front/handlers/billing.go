package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/promptcraft/promptcraft/internal/billing"
	log "github.com/sirupsen/logrus"
)

// SessionCreator creates hosted billing sessions.
type SessionCreator interface {
	Checkout(ctx context.Context, userID, email, priceID string) (string, error)
	Portal(ctx context.Context, userID string) (string, error)
}

// BillingHandler serves checkout and billing portal sessions.
type BillingHandler struct {
	sessions SessionCreator
}

// NewBillingHandler constructs a BillingHandler.
func NewBillingHandler(sessions SessionCreator) *BillingHandler {
	return &BillingHandler{sessions: sessions}
}

// checkoutRequest captures the payload for a checkout session.
type checkoutRequest struct {
	PriceID string `json:"priceId"` // Recurring price to subscribe to.
}

// Checkout returns a hosted checkout URL for the requested price.
func (h *BillingHandler) Checkout(c *gin.Context) {
	userID, email, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var body checkoutRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(body.PriceID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "priceId is required"})
		return
	}

	url, errCheckout := h.sessions.Checkout(c.Request.Context(), userID, email, body.PriceID)
	if errCheckout != nil {
		h.fail(c, userID, errCheckout)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

// Portal returns a billing portal URL for the current user.
func (h *BillingHandler) Portal(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	url, errPortal := h.sessions.Portal(c.Request.Context(), userID)
	if errPortal != nil {
		h.fail(c, userID, errPortal)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

func (h *BillingHandler) fail(c *gin.Context, userID string, err error) {
	switch {
	case errors.Is(err, billing.ErrUnknownPrice):
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown price"})
	case errors.Is(err, billing.ErrNoCustomer):
		c.JSON(http.StatusBadRequest, gin.H{"error": "no billing account"})
	case errors.Is(err, billing.ErrGatewayDisabled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "billing is not configured"})
	default:
		log.WithError(err).WithField("user_id", userID).Error("billing: create session failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "billing provider request failed"})
	}
}
