package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/promptcraft/promptcraft/internal/apperr"
	"github.com/promptcraft/promptcraft/internal/prompt"
)

// Context keys set by the user authentication middleware.
const (
	ContextUserID    = "userID"
	ContextUserEmail = "userEmail"
)

// currentUser returns the authenticated user id and email.
func currentUser(c *gin.Context) (string, string, bool) {
	userID := c.GetString(ContextUserID)
	if userID == "" {
		return "", "", false
	}
	return userID, c.GetString(ContextUserEmail), true
}

// statusForError maps a generation error onto an HTTP status code.
func statusForError(err error) int {
	var validationErr *prompt.ValidationError
	switch {
	case apperr.Is[*apperr.UnauthorizedError](err):
		return http.StatusUnauthorized
	case apperr.Is[*apperr.InvalidModelError](err),
		apperr.Is[*apperr.InvalidInputError](err),
		apperr.Is[*apperr.UnsupportedProviderError](err),
		errors.As(err, &validationErr):
		return http.StatusBadRequest
	case apperr.Is[*apperr.QuotaExceededError](err):
		return http.StatusPaymentRequired
	case apperr.Is[*apperr.ProviderError](err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
