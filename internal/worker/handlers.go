package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/wmsyw/aiWriter-sub006/internal/ai"
	"github.com/wmsyw/aiWriter-sub006/internal/models"
	"github.com/wmsyw/aiWriter-sub006/internal/store"
)

var templateVarPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*\}\}`)

// Handler executes one job type. The returned result is stored on the job
// row and shown to the owner.
type Handler interface {
	Type() models.JobType
	Execute(ctx context.Context, job *models.Job) (json.RawMessage, error)
}

// MaterialEnhanceHandler reworks raw novel material through the AI client.
type MaterialEnhanceHandler struct {
	client  ai.Client
	prompts *promptConfig
}

// NewMaterialEnhanceHandler creates the handler.
func NewMaterialEnhanceHandler(client ai.Client, prompts *promptConfig) *MaterialEnhanceHandler {
	return &MaterialEnhanceHandler{client: client, prompts: prompts}
}

func (h *MaterialEnhanceHandler) Type() models.JobType { return models.JobTypeMaterialEnhance }

type materialEnhancePayload struct {
	NovelID      string `json:"novelId"`
	MaterialName string `json:"materialName"`
	Content      string `json:"content"`
	Instructions string `json:"instructions"`
	Style        string `json:"style"`
}

func (h *MaterialEnhanceHandler) Execute(ctx context.Context, job *models.Job) (json.RawMessage, error) {
	var payload materialEnhancePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, fmt.Errorf("malformed payload: %w", err)
	}

	style := payload.Style
	if style == "" {
		style = h.prompts.MaterialEnhance.DefaultStyle
	}
	styleInstruction, ok := h.prompts.MaterialEnhance.Styles[style]
	if !ok {
		return nil, fmt.Errorf("unknown style %q", style)
	}

	// The material to work on is either inline content or a named element
	// of the novel's world for the model to develop from scratch.
	material := payload.Content
	if material == "" {
		material = payload.MaterialName
	}
	if material == "" {
		return nil, fmt.Errorf("payload has neither content nor materialName")
	}

	var sb strings.Builder
	sb.WriteString(styleInstruction)
	if payload.Instructions != "" {
		sb.WriteString("\nAdditional instructions from the author: ")
		sb.WriteString(payload.Instructions)
	}
	sb.WriteString("\n\n---\n\n")
	sb.WriteString(material)

	enhanced, err := h.client.Complete(ctx, []ai.Message{
		{Role: "system", Content: h.prompts.MaterialEnhance.System},
		{Role: "user", Content: sb.String()},
	})
	if err != nil {
		return nil, err
	}

	return json.Marshal(map[string]string{
		"enhanced": enhanced,
		"style":    style,
	})
}

// TemplateRenderHandler substitutes variables into a stored template and
// runs the result through the AI client.
type TemplateRenderHandler struct {
	client    ai.Client
	templates store.TemplateStore
	prompts   *promptConfig
}

// NewTemplateRenderHandler creates the handler.
func NewTemplateRenderHandler(client ai.Client, templates store.TemplateStore, prompts *promptConfig) *TemplateRenderHandler {
	return &TemplateRenderHandler{client: client, templates: templates, prompts: prompts}
}

func (h *TemplateRenderHandler) Type() models.JobType { return models.JobTypeTemplateRender }

type templateRenderPayload struct {
	TemplateID string            `json:"templateId"`
	Variables  map[string]string `json:"variables"`
}

func (h *TemplateRenderHandler) Execute(ctx context.Context, job *models.Job) (json.RawMessage, error) {
	var payload templateRenderPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, fmt.Errorf("malformed payload: %w", err)
	}

	templateID, err := uuid.Parse(payload.TemplateID)
	if err != nil {
		return nil, fmt.Errorf("invalid template ID: %w", err)
	}
	tmpl, err := h.templates.Get(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to load template: %w", err)
	}
	// Templates are user-owned like every other resource.
	if tmpl.UserID != job.UserID {
		return nil, fmt.Errorf("template %s does not belong to job owner", templateID)
	}

	prompt, err := substituteVariables(tmpl, payload.Variables)
	if err != nil {
		return nil, err
	}

	rendered, err := h.client.Complete(ctx, []ai.Message{
		{Role: "system", Content: h.prompts.TemplateRender.System},
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return nil, err
	}

	return json.Marshal(map[string]string{
		"templateId": templateID.String(),
		"rendered":   rendered,
	})
}

// substituteVariables fills every declared placeholder, failing on missing
// values rather than rendering a half-filled prompt.
func substituteVariables(tmpl *models.Template, vars map[string]string) (string, error) {
	var missing []string
	for _, name := range tmpl.Variables {
		if _, ok := vars[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("missing template variables: %s", strings.Join(missing, ", "))
	}

	return templateVarPattern.ReplaceAllStringFunc(tmpl.Content, func(m string) string {
		name := templateVarPattern.FindStringSubmatch(m)[1]
		return vars[name]
	}), nil
}
