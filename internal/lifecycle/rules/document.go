package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"loan-lifecycle/internal/common/errors"
	"loan-lifecycle/internal/common/validation"
	"loan-lifecycle/internal/models"
)

// Document is the wire form of a rule. Condition values may be JSON strings,
// numbers or booleans; they are stored in canonical string form.
type Document struct {
	Name       string              `json:"name"`
	Enabled    *bool               `json:"enabled,omitempty"`
	Type       models.ActionKind   `json:"type"`
	Conditions []DocumentCondition `json:"conditions"`
	Action     models.Action       `json:"action"`
}

type DocumentCondition struct {
	Field    string          `json:"field"`
	Operator models.Operator `json:"operator"`
	Value    interface{}     `json:"value"`
}

// ParseDocument checks raw against the rule schema and converts it to a rule.
// Field registry checks happen later, in Compile.
func ParseDocument(raw []byte) (models.AutomationRule, error) {
	if err := validation.AutomationRule.Validate(raw); err != nil {
		return models.AutomationRule{}, err
	}

	var doc Document
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return models.AutomationRule{}, errors.NewValidationError([]errors.FieldError{{
			Field: "(root)", Code: "MALFORMED_JSON", Message: "rule document could not be decoded",
		}})
	}
	return doc.Rule(), nil
}

func (d Document) Rule() models.AutomationRule {
	enabled := true
	if d.Enabled != nil {
		enabled = *d.Enabled
	}
	conditions := make([]models.Condition, len(d.Conditions))
	for i, c := range d.Conditions {
		conditions[i] = models.Condition{Field: c.Field, Operator: c.Operator, Value: canonical(c.Value)}
	}
	return models.AutomationRule{
		Name:       d.Name,
		Enabled:    enabled,
		Type:       d.Type,
		Conditions: conditions,
		Action:     d.Action,
	}
}

func canonical(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}
