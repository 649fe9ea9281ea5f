package rules

import (
	"fmt"
	"strconv"
	"strings"

	"loan-lifecycle/internal/common/errors"
	"loan-lifecycle/internal/lifecycle/statemachine"
	"loan-lifecycle/internal/models"
)

type condition struct {
	field field
	op    models.Operator
	num   int64
	text  string
}

// Compiled is a rule whose conditions have been resolved against the field
// registry. Evaluating it cannot fail.
type Compiled struct {
	Rule       models.AutomationRule
	conditions []condition
}

// Compile validates rule and resolves its conditions. Every problem is
// reported, not only the first.
func Compile(rule models.AutomationRule) (*Compiled, []errors.FieldError) {
	var fields []errors.FieldError
	add := func(field, code, msg string) {
		fields = append(fields, errors.FieldError{Field: field, Code: code, Message: msg})
	}

	if strings.TrimSpace(rule.Name) == "" {
		add("name", "REQUIRED", "name is required")
	}
	if !validKind(rule.Type) {
		add("type", "INVALID_TYPE", "unknown rule type")
	} else if rule.Action.Kind != rule.Type {
		add("action.kind", "TYPE_MISMATCH", "action kind must equal rule type")
	}
	fields = append(fields, validateAction(rule.Action)...)

	if len(rule.Conditions) == 0 {
		add("conditions", "REQUIRED", "at least one condition is required")
	}

	compiled := &Compiled{Rule: rule}
	for i, c := range rule.Conditions {
		cc, errs := compileCondition(fmt.Sprintf("conditions.%d", i), c)
		fields = append(fields, errs...)
		if len(errs) == 0 {
			compiled.conditions = append(compiled.conditions, cc)
		}
	}

	if len(fields) > 0 {
		return nil, fields
	}
	return compiled, nil
}

func compileCondition(path string, c models.Condition) (condition, []errors.FieldError) {
	f, ok := registry[c.Field]
	if !ok {
		return condition{}, []errors.FieldError{{Field: path + ".field", Code: "UNKNOWN_FIELD", Message: fmt.Sprintf("unknown field %q", c.Field)}}
	}
	if !supports(f.kind, c.Operator) {
		return condition{}, []errors.FieldError{{Field: path + ".operator", Code: "UNSUPPORTED_OPERATOR", Message: fmt.Sprintf("operator %q is not supported for %s", c.Operator, f.name)}}
	}

	out := condition{field: f, op: c.Operator}
	switch f.kind {
	case kindNumber:
		n, err := strconv.ParseInt(strings.TrimSpace(c.Value), 10, 64)
		if err != nil {
			return condition{}, []errors.FieldError{{Field: path + ".value", Code: "INVALID_VALUE", Message: fmt.Sprintf("%s requires an integer value", f.name)}}
		}
		out.num = n
	case kindEnum:
		if !contains(f.allowed, c.Value) {
			return condition{}, []errors.FieldError{{Field: path + ".value", Code: "INVALID_VALUE", Message: fmt.Sprintf("%q is not a valid %s", c.Value, f.name)}}
		}
		out.text = c.Value
	default:
		out.text = c.Value
	}
	return out, nil
}

func validateAction(a models.Action) []errors.FieldError {
	var fields []errors.FieldError
	switch a.Kind {
	case models.ActionStatusTransition:
		if _, ok := models.ParseStatus(string(a.TargetStatus)); !ok {
			fields = append(fields, errors.FieldError{Field: "action.targetStatus", Code: "INVALID_STATUS", Message: "unknown target status"})
		} else if !statemachine.HasIncomingEdge(a.TargetStatus) {
			fields = append(fields, errors.FieldError{Field: "action.targetStatus", Code: "UNREACHABLE_STATUS", Message: "no transition leads to the target status"})
		}
	case models.ActionTicketRouting:
		if strings.TrimSpace(a.Queue) == "" {
			fields = append(fields, errors.FieldError{Field: "action.queue", Code: "REQUIRED", Message: "ticket routing requires a queue"})
		}
	case models.ActionAutoApprove, models.ActionAutoReject:
		if a.TargetStatus != "" {
			fields = append(fields, errors.FieldError{Field: "action.targetStatus", Code: "NOT_ALLOWED", Message: "target status is implied by the action kind"})
		}
	default:
		fields = append(fields, errors.FieldError{Field: "action.kind", Code: "INVALID_TYPE", Message: "unknown action kind"})
	}
	return fields
}

func validKind(k models.ActionKind) bool {
	switch k {
	case models.ActionAutoApprove, models.ActionAutoReject, models.ActionStatusTransition, models.ActionTicketRouting:
		return true
	}
	return false
}

func supports(k fieldKind, op models.Operator) bool {
	for _, o := range operatorsByKind[k] {
		if o == op {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
