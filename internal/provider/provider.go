// Package provider calls upstream generative model APIs.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/promptcraft/promptcraft/internal/apperr"
)

// Provider identifiers.
const (
	Google = "google"
	OpenAI = "openai"
)

const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 1024
	maxErrorBodyBytes  = 64 << 10
	maxResponseBytes   = 4 << 20
)

// Request is one generation call.
type Request struct {
	Endpoint     string
	Model        string
	Credential   string
	SystemPrompt string
	Topic        string
}

// Provider performs a single upstream call and returns the generated text.
type Provider interface {
	ID() string
	Generate(ctx context.Context, req Request) (string, error)
}

// HTTPDoer is the subset of *http.Client used by providers.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type upstreamError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func postJSON(ctx context.Context, client HTTPDoer, providerID, endpoint string, header http.Header, body any, credential string, out any) error {
	payload, errMarshal := json.Marshal(body)
	if errMarshal != nil {
		return fmt.Errorf("provider: marshal request: %w", errMarshal)
	}
	req, errReq := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if errReq != nil {
		return &apperr.ProviderError{Provider: providerID, Message: apperr.Redact(errReq.Error(), credential)}
	}
	req.Header.Set("Content-Type", "application/json")
	for key, values := range header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	resp, errDo := client.Do(req)
	if errDo != nil {
		msg := errDo.Error()
		if errors.Is(errDo, context.DeadlineExceeded) {
			msg = "request timed out"
		} else if errors.Is(errDo, context.Canceled) {
			msg = "request canceled"
		}
		return &apperr.ProviderError{Provider: providerID, Message: apperr.Redact(msg, credential)}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		var upstream upstreamError
		msg := ""
		if errUnmarshal := json.Unmarshal(raw, &upstream); errUnmarshal == nil {
			msg = strings.TrimSpace(upstream.Error.Message)
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &apperr.ProviderError{Provider: providerID, StatusCode: resp.StatusCode, Message: apperr.Redact(msg, credential)}
	}

	raw, errRead := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if errRead != nil {
		return &apperr.ProviderError{Provider: providerID, StatusCode: resp.StatusCode, Message: apperr.Redact("read response: "+errRead.Error(), credential)}
	}
	if errUnmarshal := json.Unmarshal(raw, out); errUnmarshal != nil {
		return &apperr.ProviderError{Provider: providerID, StatusCode: resp.StatusCode, Message: "malformed response body"}
	}
	return nil
}

func emptyResult(providerID string, status int) error {
	return &apperr.ProviderError{Provider: providerID, StatusCode: status, Message: "empty response"}
}
