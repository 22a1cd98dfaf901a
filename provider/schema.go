package provider

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// schemaToFunctionParams converts an invopop/jsonschema.Schema (the shape
// domain.ToolDefinition.Parameters carries) into the bare map[string]any
// that OpenAI- and Google-style function-calling parameters expect on the
// wire. Grounded on llm2/openai_provider.go's jsonSchemaToMap (via its own
// common.Tool.Parameters conversion).
func schemaToFunctionParams(schema *jsonschema.Schema) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return m
}
