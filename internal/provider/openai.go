package provider

import (
	"context"
	"net/http"
	"strings"

	"github.com/promptcraft/promptcraft/internal/apperr"
)

// OpenAIProvider calls OpenAI-style chat completion endpoints with a bearer credential.
type OpenAIProvider struct {
	client HTTPDoer
}

// NewOpenAIProvider constructs an OpenAIProvider.
func NewOpenAIProvider(client HTTPDoer) *OpenAIProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &OpenAIProvider{client: client}
}

// ID returns the provider identifier.
func (p *OpenAIProvider) ID() string { return OpenAI }

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens"`
}

type openAIResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
}

// Generate sends the system prompt as the system message and the topic as the user message.
func (p *OpenAIProvider) Generate(ctx context.Context, req Request) (string, error) {
	endpoint := strings.TrimSpace(req.Endpoint)
	if endpoint == "" {
		return "", &apperr.ProviderError{Provider: OpenAI, Message: "invalid endpoint"}
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+req.Credential)

	body := openAIRequest{
		Model: req.Model,
		Messages: []openAIMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.Topic},
		},
		Temperature: defaultTemperature,
		MaxTokens:   defaultMaxTokens,
	}

	var resp openAIResponse
	if errPost := postJSON(ctx, p.client, OpenAI, endpoint, header, body, req.Credential, &resp); errPost != nil {
		return "", errPost
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", emptyResult(OpenAI, http.StatusOK)
	}
	return resp.Choices[0].Message.Content, nil
}
