package content

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

func articleSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []string{"title", "sections"},
		"properties": map[string]any{
			"title": map[string]any{"type": "string", "minLength": 1},
			"sections": map[string]any{
				"type":     "array",
				"minItems": 1,
				"items": map[string]any{
					"type":     "object",
					"required": []string{"html"},
					"properties": map[string]any{
						"heading": map[string]any{"type": "string"},
						"html":    map[string]any{"type": "string", "minLength": 1},
					},
				},
			},
			"labels": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"image_keyword": map[string]any{"type": "string"},
		},
	}
}

func topicsSchema(count int) map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []string{"topics"},
		"properties": map[string]any{
			"topics": map[string]any{
				"type":     "array",
				"minItems": 1,
				"maxItems": count,
				"items": map[string]any{
					"type":     "object",
					"required": []string{"title", "keyword"},
					"properties": map[string]any{
						"title":   map[string]any{"type": "string", "minLength": 1},
						"keyword": map[string]any{"type": "string", "minLength": 1},
					},
				},
			},
		},
	}
}

// validate checks data against schemaMap.
func validate(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
