package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/promptcraft/promptcraft/internal/apperr"
	"github.com/promptcraft/promptcraft/internal/models"
	"github.com/promptcraft/promptcraft/internal/prompt"
	"github.com/promptcraft/promptcraft/internal/provider"
	"github.com/promptcraft/promptcraft/internal/quota"
	"github.com/promptcraft/promptcraft/internal/usage"
	log "github.com/sirupsen/logrus"
)

// Generation results passed to GenerationObserver.
const (
	GenerationSuccess = "success"
	GenerationFailed  = "error"
)

// ModelCatalog resolves model configs and templates.
type ModelCatalog interface {
	Model(ctx context.Context, modelID string) (models.ModelConfig, error)
	Template(ctx context.Context, id string) (models.Template, bool, error)
}

// CredentialResolver picks the credential paying for a generation.
type CredentialResolver interface {
	Resolve(ctx context.Context, userID string, model models.ModelConfig) (quota.Decision, error)
}

// ProviderInvoker performs the upstream model call.
type ProviderInvoker interface {
	Supports(providerID string) bool
	Invoke(ctx context.Context, providerID string, req provider.Request) (string, error)
}

// UsageRecorder persists usage for a completed generation.
type UsageRecorder interface {
	Record(ctx context.Context, entry usage.Entry) usage.Result
}

// GenerationObserver receives generation results.
type GenerationObserver interface {
	ObserveGeneration(shared bool, result string)
}

// GenerateHandler serves prompt generation.
type GenerateHandler struct {
	catalog  ModelCatalog
	resolver CredentialResolver
	invoker  ProviderInvoker
	recorder UsageRecorder
	observer GenerationObserver
}

// NewGenerateHandler constructs a GenerateHandler. observer may be nil.
func NewGenerateHandler(catalog ModelCatalog, resolver CredentialResolver, invoker ProviderInvoker, recorder UsageRecorder, observer GenerationObserver) *GenerateHandler {
	return &GenerateHandler{
		catalog:  catalog,
		resolver: resolver,
		invoker:  invoker,
		recorder: recorder,
		observer: observer,
	}
}

// generateRequest captures the payload for a generation.
type generateRequest struct {
	Topic             string         `json:"topic"`             // Subject text.
	TemplateID        string         `json:"templateId"`        // Optional stored template.
	TemplateStructure string         `json:"templateStructure"` // Optional raw template.
	Style             string         `json:"style"`             // Optional style descriptor.
	ModelID           string         `json:"modelId"`           // Model to call.
	Parameters        map[string]any `json:"parameters"`        // Optional parameter values.
}

type generateResponse struct {
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
}

// Generate builds the prompt, calls the model and records usage.
func (h *GenerateHandler) Generate(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		h.fail(c, false, &apperr.UnauthorizedError{})
		return
	}
	var body generateRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, generateResponse{Error: "invalid json"})
		return
	}

	content, shared, err := h.generate(c.Request.Context(), userID, body)
	if err != nil {
		h.fail(c, shared, err)
		return
	}
	if h.observer != nil {
		h.observer.ObserveGeneration(shared, GenerationSuccess)
	}
	c.JSON(http.StatusOK, generateResponse{Content: content})
}

func (h *GenerateHandler) generate(ctx context.Context, userID string, body generateRequest) (string, bool, error) {
	topic := strings.TrimSpace(body.Topic)
	if topic == "" {
		return "", false, &apperr.InvalidInputError{Field: "topic", Message: "is required"}
	}

	model, errModel := h.catalog.Model(ctx, body.ModelID)
	if errModel != nil {
		return "", false, errModel
	}

	if !h.invoker.Supports(model.Provider) {
		return "", false, &apperr.UnsupportedProviderError{Provider: model.Provider}
	}

	structure, params, errTemplate := h.templateInput(ctx, body)
	if errTemplate != nil {
		return "", false, errTemplate
	}

	decision, errResolve := h.resolver.Resolve(ctx, userID, model)
	if errResolve != nil {
		return "", false, errResolve
	}

	systemPrompt := prompt.Interpolate(structure, topic, body.Style, params)
	content, errInvoke := h.invoker.Invoke(ctx, model.Provider, provider.Request{
		Endpoint:     model.Endpoint,
		Model:        model.ModelID,
		Credential:   decision.Credential,
		SystemPrompt: systemPrompt,
		Topic:        topic,
	})
	if errInvoke != nil {
		return "", decision.UseShared, errInvoke
	}

	h.recorder.Record(ctx, usage.Entry{
		UserID:     userID,
		UseShared:  decision.UseShared,
		TemplateID: body.TemplateID,
		ModelID:    model.ModelID,
		Topic:      topic,
		Output:     content,
	})
	return content, decision.UseShared, nil
}

// templateInput returns the template structure and the effective parameters.
// A stored template wins over a raw structure sent by the client.
func (h *GenerateHandler) templateInput(ctx context.Context, body generateRequest) (string, map[string]string, error) {
	params := prompt.CoerceParams(body.Parameters)
	templateID := strings.TrimSpace(body.TemplateID)
	if templateID == "" {
		return body.TemplateStructure, params, nil
	}

	tpl, found, errFind := h.catalog.Template(ctx, templateID)
	if errFind != nil {
		return "", nil, errFind
	}
	if !found {
		return "", nil, &apperr.InvalidInputError{Field: "templateId", Message: "unknown template " + templateID}
	}
	defaults, errDefaults := prompt.ParseDefaults(tpl.DefaultParams)
	if errDefaults != nil {
		log.WithError(errDefaults).WithField("template_id", tpl.ID).Warn("generate: ignoring invalid template defaults")
		defaults = nil
	}
	params = prompt.MergeDefaults(defaults, params)

	schema, errSchema := prompt.ParseSchema(tpl.ParamSchema)
	if errSchema != nil {
		log.WithError(errSchema).WithField("template_id", tpl.ID).Warn("generate: ignoring invalid template schema")
		schema = nil
	}
	if errValidate := prompt.ValidateParams(schema, params); errValidate != nil {
		return "", nil, errValidate
	}
	return tpl.Structure, params, nil
}

func (h *GenerateHandler) fail(c *gin.Context, shared bool, err error) {
	status := statusForError(err)
	message := err.Error()
	if status == http.StatusInternalServerError && !apperr.Is[*apperr.ConfigurationError](err) {
		log.WithError(err).Error("generate: request failed")
		message = "generation failed"
	}
	if h.observer != nil {
		h.observer.ObserveGeneration(shared, GenerationFailed)
	}
	c.JSON(status, generateResponse{Error: message})
}
