package rules

import (
	"sort"
	"strings"

	"loan-lifecycle/internal/models"
)

type Match struct {
	RuleID   int64
	RuleName string
	Action   models.Action
}

// Evaluate returns the first enabled rule, in ascending id order, whose
// conditions all hold for app. It is a pure function of its inputs.
func Evaluate(rules []*Compiled, app *models.LoanApplication) *Match {
	ordered := make([]*Compiled, len(rules))
	copy(ordered, rules)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Rule.ID < ordered[j].Rule.ID })

	for _, r := range ordered {
		if !r.Rule.Enabled {
			continue
		}
		if r.matches(app) {
			return &Match{RuleID: r.Rule.ID, RuleName: r.Rule.Name, Action: r.Rule.Action}
		}
	}
	return nil
}

func (c *Compiled) matches(app *models.LoanApplication) bool {
	for _, cond := range c.conditions {
		if !cond.holds(app) {
			return false
		}
	}
	return true
}

func (c condition) holds(app *models.LoanApplication) bool {
	if c.field.kind == kindNumber {
		v := c.field.number(app)
		switch c.op {
		case models.OpEq:
			return v == c.num
		case models.OpNeq:
			return v != c.num
		case models.OpGt:
			return v > c.num
		case models.OpGte:
			return v >= c.num
		case models.OpLt:
			return v < c.num
		case models.OpLte:
			return v <= c.num
		}
		return false
	}

	v := c.field.text(app)
	switch c.op {
	case models.OpEq:
		return v == c.text
	case models.OpNeq:
		return v != c.text
	case models.OpContains:
		return strings.Contains(v, c.text)
	}
	return false
}
