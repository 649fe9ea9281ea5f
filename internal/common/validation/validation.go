// Package validation checks JSON documents against JSON Schema before they
// are decoded into typed values.
package validation

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"loan-lifecycle/internal/common/errors"
)

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type Schema struct {
	name   string
	schema *gojsonschema.Schema
}

// MustCompile panics on an invalid schema. Schemas are package constants.
func MustCompile(name, source string) *Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(source))
	if err != nil {
		panic(fmt.Sprintf("schema %s: %v", name, err))
	}
	return &Schema{name: name, schema: s}
}

// ValidateInput accepts a decoded document (map, slice, struct) or raw JSON bytes.
func (s *Schema) ValidateInput(doc interface{}) (*ValidationResult, error) {
	var loader gojsonschema.JSONLoader
	switch d := doc.(type) {
	case []byte:
		loader = gojsonschema.NewBytesLoader(d)
	case string:
		loader = gojsonschema.NewStringLoader(d)
	default:
		loader = gojsonschema.NewGoLoader(d)
	}

	result, err := s.schema.Validate(loader)
	if err != nil {
		return nil, fmt.Errorf("validate %s: %w", s.name, err)
	}

	out := &ValidationResult{Valid: result.Valid()}
	for _, re := range result.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:   fieldOf(re),
			Message: re.Description(),
			Code:    strings.ToUpper(re.Type()),
		})
	}
	return out, nil
}

// Validate returns a ValidationError listing every violation, or nil.
func (s *Schema) Validate(doc interface{}) error {
	res, err := s.ValidateInput(doc)
	if err != nil {
		return errors.NewValidationError([]errors.FieldError{{
			Field: "(root)", Code: "MALFORMED_JSON", Message: "document is not valid JSON",
		}})
	}
	if res.Valid {
		return nil
	}
	return errors.NewValidationError(res.FieldErrors())
}

func (r *ValidationResult) FieldErrors() []errors.FieldError {
	out := make([]errors.FieldError, 0, len(r.Errors))
	for _, e := range r.Errors {
		out = append(out, errors.FieldError{Field: e.Field, Code: e.Code, Message: e.Message})
	}
	return out
}

func fieldOf(re gojsonschema.ResultError) string {
	field := re.Field()
	if prop, ok := re.Details()["property"].(string); ok && re.Type() == "required" {
		if field == "(root)" {
			return prop
		}
		return field + "." + prop
	}
	return field
}
