package tool_test

import (
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/culprit/pkg/tool"
	"github.com/m-mizutani/gt"
	"google.golang.org/genai"
)

func TestConvertJSONSchemaToGenai(t *testing.T) {
	schema := &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"limit": {Type: "integer", Description: "max results"},
			"tags":  {Type: "array", Items: &jsonschema.Schema{Type: "string"}},
			"mode":  {Types: []string{"null", "string"}, Enum: []any{"fast", "deep"}},
		},
		Required: []string{"limit"},
	}

	out, err := tool.ConvertJSONSchemaToGenai(schema)
	gt.NoError(t, err)
	gt.Equal(t, out.Type, genai.TypeObject)
	gt.Equal(t, out.Properties["limit"].Type, genai.TypeInteger)
	gt.Equal(t, out.Properties["tags"].Items.Type, genai.TypeString)
	gt.Equal(t, out.Properties["mode"].Type, genai.TypeString)
	gt.True(t, *out.Properties["mode"].Nullable)
	gt.Equal(t, out.Properties["mode"].Enum, []string{"fast", "deep"})
}

func TestConvertJSONSchemaToGenaiUnsupported(t *testing.T) {
	_, err := tool.ConvertJSONSchemaToGenai(&jsonschema.Schema{Type: "tuple"})
	gt.Error(t, err)
}
