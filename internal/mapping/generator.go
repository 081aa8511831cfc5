package mapping

import "context"

// ResponseHint tells the text generator what shape of answer is expected.
type ResponseHint struct {
	MIMEType string
	Schema   map[string]any
}

// Generator is the external text-generation collaborator. Its output is
// untrusted and validated by the Mapper.
type Generator interface {
	Generate(ctx context.Context, prompt string, hint ResponseHint) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string, hint ResponseHint) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string, hint ResponseHint) (string, error) {
	return f(ctx, prompt, hint)
}

// responseSchema describes the mapping answer as an OpenAPI subset understood by
// Gemini's responseSchema.
var responseSchema = map[string]any{
	"type": "OBJECT",
	"properties": map[string]any{
		"mappings": map[string]any{
			"type": "ARRAY",
			"items": map[string]any{
				"type": "OBJECT",
				"properties": map[string]any{
					"source_field":  map[string]any{"type": "STRING"},
					"target_table":  map[string]any{"type": "STRING"},
					"target_column": map[string]any{"type": "STRING"},
					"confidence":    map[string]any{"type": "NUMBER"},
				},
				"required": []string{"source_field", "target_table", "target_column"},
			},
		},
		"unmapped_fields": map[string]any{
			"type":  "ARRAY",
			"items": map[string]any{"type": "STRING"},
		},
	},
	"required": []string{"mappings", "unmapped_fields"},
}

// MappingResponseHint is the hint sent with every mapping prompt.
func MappingResponseHint() ResponseHint {
	return ResponseHint{MIMEType: "application/json", Schema: responseSchema}
}
