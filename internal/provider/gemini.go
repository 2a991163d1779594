package provider

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/promptcraft/promptcraft/internal/apperr"
)

// GeminiProvider calls Gemini-style generateContent endpoints.
// The credential travels as the key query parameter.
type GeminiProvider struct {
	client HTTPDoer
}

// NewGeminiProvider constructs a GeminiProvider.
func NewGeminiProvider(client HTTPDoer) *GeminiProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &GeminiProvider{client: client}
}

// ID returns the provider identifier.
func (p *GeminiProvider) ID() string { return Google }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// Generate sends the system prompt and topic as a single user turn.
func (p *GeminiProvider) Generate(ctx context.Context, req Request) (string, error) {
	endpoint, errURL := url.Parse(strings.TrimSpace(req.Endpoint))
	if errURL != nil || endpoint.Scheme == "" || endpoint.Host == "" {
		return "", &apperr.ProviderError{Provider: Google, Message: "invalid endpoint"}
	}
	query := endpoint.Query()
	query.Set("key", req.Credential)
	endpoint.RawQuery = query.Encode()

	body := geminiRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: req.SystemPrompt + "\nTopic: " + req.Topic}},
		}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     defaultTemperature,
			MaxOutputTokens: defaultMaxTokens,
		},
	}

	var resp geminiResponse
	if errPost := postJSON(ctx, p.client, Google, endpoint.String(), nil, body, req.Credential, &resp); errPost != nil {
		return "", errPost
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", emptyResult(Google, http.StatusOK)
	}
	text := resp.Candidates[0].Content.Parts[0].Text
	if strings.TrimSpace(text) == "" {
		return "", emptyResult(Google, http.StatusOK)
	}
	return text, nil
}
