package jobs

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/wmsyw/aiWriter-sub006/internal/models"
)

//go:embed schemas/*.json
var schemaFS embed.FS

var payloadSchemas = map[models.JobType]*jsonschema.Schema{
	models.JobTypeMaterialEnhance: mustCompileSchema("schemas/material_enhance.json"),
	models.JobTypeTemplateRender:  mustCompileSchema("schemas/template_render.json"),
}

func mustCompileSchema(name string) *jsonschema.Schema {
	b, err := schemaFS.ReadFile(name)
	if err != nil {
		panic(fmt.Sprintf("missing embedded schema %s: %v", name, err))
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(b)); err != nil {
		panic(fmt.Sprintf("failed to add schema %s: %v", name, err))
	}
	return compiler.MustCompile(name)
}

// ValidationError carries per-field messages for a rejected payload.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid payload: %d field error(s)", len(e.Fields))
}

// ValidatePayload checks a job payload against the schema for its type.
// Returns *ValidationError on schema violations, ErrUnknownJobType for
// types without a schema.
func ValidatePayload(jobType models.JobType, payload json.RawMessage) error {
	schema, ok := payloadSchemas[jobType]
	if !ok {
		return ErrUnknownJobType
	}

	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		return &ValidationError{Fields: map[string]string{"payload": "must be a JSON object"}}
	}

	if err := schema.Validate(v); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return &ValidationError{Fields: flattenCauses(ve)}
		}
		return &ValidationError{Fields: map[string]string{"payload": err.Error()}}
	}
	return nil
}

// flattenCauses walks the validation tree collecting leaf messages keyed by
// the instance location they apply to.
func flattenCauses(ve *jsonschema.ValidationError) map[string]string {
	fields := make(map[string]string)
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			key := strings.TrimPrefix(e.InstanceLocation, "/")
			if key == "" {
				key = "payload"
			}
			key = strings.ReplaceAll(key, "/", ".")
			fields[key] = e.Message
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	return fields
}
