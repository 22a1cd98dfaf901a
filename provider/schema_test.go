package provider

import (
	"testing"

	"github.com/invopop/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaToFunctionParams_NilSchema(t *testing.T) {
	got := schemaToFunctionParams(nil)
	assert.Equal(t, map[string]any{"type": "object", "properties": map[string]any{}}, got)
}

type testToolParams struct {
	Path string `json:"path" jsonschema:"required"`
}

func TestSchemaToFunctionParams_RealSchemaRoundTrips(t *testing.T) {
	schema := jsonschema.Reflect(&testToolParams{})
	got := schemaToFunctionParams(schema)
	require.Contains(t, got, "properties")
	props, ok := got["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "path")
}
