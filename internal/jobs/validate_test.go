package jobs

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wmsyw/aiWriter-sub006/internal/models"
)

func TestValidatePayloadMaterialEnhance(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		valid   bool
	}{
		{name: "minimal", payload: `{"content":"some prose"}`, valid: true},
		{name: "material name only", payload: `{"novelId":"n1","materialName":"Sword"}`, valid: true},
		{name: "full", payload: `{"novelId":"novel-1","content":"some prose","instructions":"keep it short","style":"polish"}`, valid: true},
		{name: "neither content nor material", payload: `{"style":"polish"}`, valid: false},
		{name: "empty content", payload: `{"content":""}`, valid: false},
		{name: "empty material name", payload: `{"materialName":""}`, valid: false},
		{name: "unknown style", payload: `{"content":"x","style":"destroy"}`, valid: false},
		{name: "unknown field", payload: `{"content":"x","model":"gpt"}`, valid: false},
		{name: "not an object", payload: `"just a string"`, valid: false},
		{name: "malformed json", payload: `{`, valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePayload(models.JobTypeMaterialEnhance, json.RawMessage(tt.payload))
			if tt.valid {
				require.NoError(t, err)
			} else {
				var ve *ValidationError
				require.ErrorAs(t, err, &ve)
				require.NotEmpty(t, ve.Fields)
			}
		})
	}
}

func TestValidatePayloadTemplateRender(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		valid   bool
	}{
		{name: "minimal", payload: `{"templateId":"0192aefb-1df0-7aaa-bb31-111111111111"}`, valid: true},
		{name: "with variables", payload: `{"templateId":"0192aefb-1df0-7aaa-bb31-111111111111","variables":{"hero":"Mira"}}`, valid: true},
		{name: "missing template", payload: `{"variables":{}}`, valid: false},
		{name: "short template id", payload: `{"templateId":"nope"}`, valid: false},
		{name: "non-string variable", payload: `{"templateId":"0192aefb-1df0-7aaa-bb31-111111111111","variables":{"n":3}}`, valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePayload(models.JobTypeTemplateRender, json.RawMessage(tt.payload))
			if tt.valid {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}

func TestValidatePayloadUnknownType(t *testing.T) {
	err := ValidatePayload(models.JobType("FROBNICATE"), json.RawMessage(`{}`))
	require.ErrorIs(t, err, ErrUnknownJobType)
}
