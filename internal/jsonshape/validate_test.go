package jsonshape

import (
	"errors"
	"testing"
)

var testSchema = Schema{
	Name: "test-rows",
	Definition: `{
		"type": "array",
		"items": {
			"type": "object",
			"required": ["id"],
			"properties": {"id": {"type": "integer"}}
		}
	}`,
}

func TestValidate_Valid(t *testing.T) {
	if err := Validate(testSchema, []byte(`[{"id": 1}, {"id": 2, "extra": "x"}]`)); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
}

func TestValidate_WrongShape(t *testing.T) {
	tests := map[string]string{
		"object root":    `{"results": []}`,
		"missing id":     `[{"name": "x"}]`,
		"string id":      `[{"id": "1"}]`,
		"not json":       `[{`,
		"scalar element": `[1]`,
	}

	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			err := Validate(testSchema, []byte(raw))
			var shapeErr *ShapeError
			if !errors.As(err, &shapeErr) {
				t.Fatalf("expected ShapeError, got %T (%v)", err, err)
			}
			if shapeErr.Schema != "test-rows" {
				t.Errorf("Schema = %q", shapeErr.Schema)
			}
		})
	}
}
