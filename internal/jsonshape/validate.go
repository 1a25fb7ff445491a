// Package jsonshape validates upstream payloads against JSON schemas before
// they are decoded into typed records. Payloads of an unexpected shape are
// rejected rather than coerced.
package jsonshape

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Schema is a named JSON schema document.
type Schema struct {
	Name       string
	Definition string
}

// ShapeError reports a payload that does not match its schema.
type ShapeError struct {
	Schema string
	Err    error
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("payload does not match %s shape: %v", e.Schema, e.Err)
}

func (e *ShapeError) Unwrap() error {
	return e.Err
}

// compiled caches compiled schemas by name.
var compiled sync.Map // map[string]*jsonschema.Schema

// Validate checks raw against schema. Invalid JSON is reported as a ShapeError too.
func Validate(schema Schema, raw []byte) error {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return &ShapeError{Schema: schema.Name, Err: fmt.Errorf("invalid JSON: %w", err)}
	}

	sch, err := compile(schema)
	if err != nil {
		return err
	}

	if err := sch.Validate(doc); err != nil {
		return &ShapeError{Schema: schema.Name, Err: err}
	}
	return nil
}

func compile(schema Schema) (*jsonschema.Schema, error) {
	if cached, ok := compiled.Load(schema.Name); ok {
		return cached.(*jsonschema.Schema), nil
	}

	def, err := jsonschema.UnmarshalJSON(strings.NewReader(schema.Definition))
	if err != nil {
		return nil, fmt.Errorf("parse schema %q: %w", schema.Name, err)
	}

	c := jsonschema.NewCompiler()
	url := fmt.Sprintf("schema://%s.json", schema.Name)
	if err := c.AddResource(url, def); err != nil {
		return nil, fmt.Errorf("add schema %q: %w", schema.Name, err)
	}

	sch, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema %q: %w", schema.Name, err)
	}

	compiled.Store(schema.Name, sch)
	return sch, nil
}
