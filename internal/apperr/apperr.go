// Package apperr defines the typed errors surfaced by prompt generation and billing.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// UnauthorizedError reports a request without a valid identity.
type UnauthorizedError struct {
	Reason string
}

func (e *UnauthorizedError) Error() string {
	if e == nil || strings.TrimSpace(e.Reason) == "" {
		return "Unauthorized"
	}
	return "Unauthorized: " + e.Reason
}

// InvalidModelError reports an unknown or inactive model id.
type InvalidModelError struct {
	ModelID string
}

func (e *InvalidModelError) Error() string {
	return fmt.Sprintf("Invalid or disabled model: %s", e.ModelID)
}

// QuotaExceededError reports an exhausted shared quota with no user credential to fall back on.
type QuotaExceededError struct {
	Quota int64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("Monthly limit of %d prompts reached. Upgrade plan or add a personal API Key in Settings to continue.", e.Quota)
}

// ConfigurationError reports a missing shared credential.
type ConfigurationError struct {
	Name string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("Configuration Error: No API key found for %s.", e.Name)
}

// UnsupportedProviderError reports a provider id with no adapter.
type UnsupportedProviderError struct {
	Provider string
}

func (e *UnsupportedProviderError) Error() string {
	return fmt.Sprintf("Unsupported provider: %s", e.Provider)
}

// ProviderError reports a failed upstream model call.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = "upstream request failed"
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s API Error: %s (status %d)", providerLabel(e.Provider), msg, e.StatusCode)
	}
	return fmt.Sprintf("%s API Error: %s", providerLabel(e.Provider), msg)
}

// InvalidSignatureError reports a webhook payload that failed verification.
type InvalidSignatureError struct {
	Cause error
}

func (e *InvalidSignatureError) Error() string {
	return "Webhook signature verification failed"
}

func (e *InvalidSignatureError) Unwrap() error { return e.Cause }

// InvalidInputError reports a malformed generation request.
type InvalidInputError struct {
	Field   string
	Message string
}

func (e *InvalidInputError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Redact removes every occurrence of secret from msg.
func Redact(msg, secret string) string {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return msg
	}
	return strings.ReplaceAll(msg, secret, "[redacted]")
}

// Is reports whether err is of the typed error T.
func Is[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}

func providerLabel(provider string) string {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "google":
		return "Gemini"
	case "openai":
		return "OpenAI"
	case "":
		return "Provider"
	default:
		return provider
	}
}
