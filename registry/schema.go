package registry

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// paramSchema is the JSON Schema of an operation's coerced parameters.
// It re-checks what coercion produced, so a default in the table that
// violates its own constraints is caught at startup and a coercion bug
// never reaches a capability.
type paramSchema struct {
	doc    map[string]any
	schema *gojsonschema.Schema
}

func compileSchema(params []ParamSpec) (*paramSchema, error) {
	props := make(map[string]any, len(params))
	for _, ps := range params {
		props[ps.Name] = ps.jsonSchema()
	}
	doc := map[string]any{
		"$schema":    "http://json-schema.org/draft-07/schema#",
		"type":       "object",
		"properties": props,
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("compile parameter schema: %w", err)
	}
	ps := &paramSchema{doc: doc, schema: schema}
	defaults := make(Params, len(params))
	for _, p := range params {
		if p.Default != nil {
			defaults[p.Name] = p.Default
		}
	}
	if err := ps.validate(defaults); err != nil {
		return nil, fmt.Errorf("defaults: %w", err)
	}
	return ps, nil
}

func (ps ParamSpec) jsonSchema() map[string]any {
	s := map[string]any{}
	switch ps.Kind {
	case String, Text:
		s["type"] = "string"
	case Int:
		s["type"] = "integer"
	case Float:
		s["type"] = "number"
	case Bool:
		s["type"] = "boolean"
	}
	if len(ps.Enum) > 0 {
		enum := make([]any, len(ps.Enum))
		for i, e := range ps.Enum {
			enum[i] = e
		}
		s["enum"] = enum
	}
	if ps.Min != nil {
		s["minimum"] = *ps.Min
	}
	if ps.Max != nil {
		s["maximum"] = *ps.Max
	}
	if ps.MultipleOf != 0 {
		s["multipleOf"] = ps.MultipleOf
	}
	return s
}

func (p *paramSchema) validate(params Params) error {
	res, err := p.schema.Validate(gojsonschema.NewGoLoader(map[string]any(params)))
	if err != nil {
		return fmt.Errorf("validate parameters: %w", err)
	}
	if res.Valid() {
		return nil
	}
	first := res.Errors()[0]
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return &InvalidParamError{
		Name:   first.Field(),
		Value:  fmt.Sprint(first.Value()),
		Reason: strings.Join(msgs, "; "),
	}
}

// Schema returns the JSON Schema document of the parameters.
func (s OperationSpec) Schema() map[string]any {
	if s.schema == nil {
		return nil
	}
	return s.schema.doc
}
