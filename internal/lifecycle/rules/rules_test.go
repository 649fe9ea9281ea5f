package rules

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loan-lifecycle/internal/common/errors"
	"loan-lifecycle/internal/common/logger"
	"loan-lifecycle/internal/lifecycle/store/memory"
	"loan-lifecycle/internal/models"
)

func approveSmallLoans() models.AutomationRule {
	return models.AutomationRule{
		Name:    "auto-approve small loans",
		Enabled: true,
		Type:    models.ActionAutoApprove,
		Conditions: []models.Condition{
			{Field: "requestedAmount", Operator: models.OpLte, Value: "1000000"},
		},
		Action: models.Action{Kind: models.ActionAutoApprove},
	}
}

func sampleApp() *models.LoanApplication {
	return &models.LoanApplication{
		ID:              1,
		Status:          models.StatusPending,
		LoanType:        models.LoanTypePersonal,
		RequestedAmount: 500000,
		TermDays:        30,
		RiskScore:       20,
		Applicant:       models.Applicant{Name: "Ada", Email: "ada@corp.example"},
	}
}

func mustCompile(t *testing.T, r models.AutomationRule) *Compiled {
	t.Helper()
	c, fields := Compile(r)
	require.Empty(t, fields)
	return c
}

func TestCompile_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.AutomationRule)
		field  string
		code   string
	}{
		{"unknown field", func(r *models.AutomationRule) { r.Conditions[0].Field = "salary" }, "conditions.0.field", "UNKNOWN_FIELD"},
		{"operator not supported by type", func(r *models.AutomationRule) {
			r.Conditions[0].Operator = models.OpContains
		}, "conditions.0.operator", "UNSUPPORTED_OPERATOR"},
		{"non numeric value", func(r *models.AutomationRule) { r.Conditions[0].Value = "lots" }, "conditions.0.value", "INVALID_VALUE"},
		{"enum value outside set", func(r *models.AutomationRule) {
			r.Conditions[0] = models.Condition{Field: "loanType", Operator: models.OpEq, Value: "mortgage"}
		}, "conditions.0.value", "INVALID_VALUE"},
		{"unknown status target", func(r *models.AutomationRule) {
			r.Type = models.ActionStatusTransition
			r.Action = models.Action{Kind: models.ActionStatusTransition, TargetStatus: "archived"}
		}, "action.targetStatus", "INVALID_STATUS"},
		{"target without incoming edge", func(r *models.AutomationRule) {
			r.Type = models.ActionStatusTransition
			r.Action = models.Action{Kind: models.ActionStatusTransition, TargetStatus: models.StatusPending}
		}, "action.targetStatus", "UNREACHABLE_STATUS"},
		{"type and action disagree", func(r *models.AutomationRule) { r.Type = models.ActionAutoReject }, "action.kind", "TYPE_MISMATCH"},
		{"ticket routing without queue", func(r *models.AutomationRule) {
			r.Type = models.ActionTicketRouting
			r.Action = models.Action{Kind: models.ActionTicketRouting}
		}, "action.queue", "REQUIRED"},
		{"no conditions", func(r *models.AutomationRule) { r.Conditions = nil }, "conditions", "REQUIRED"},
		{"missing name", func(r *models.AutomationRule) { r.Name = " " }, "name", "REQUIRED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := approveSmallLoans()
			tt.mutate(&r)

			c, fields := Compile(r)

			assert.Nil(t, c)
			require.NotEmpty(t, fields)
			found := false
			for _, f := range fields {
				if f.Field == tt.field && f.Code == tt.code {
					found = true
				}
			}
			assert.True(t, found, "want %s/%s in %+v", tt.field, tt.code, fields)
		})
	}
}

func TestEvaluate_Operators(t *testing.T) {
	tests := []struct {
		cond models.Condition
		want bool
	}{
		{models.Condition{Field: "requestedAmount", Operator: models.OpEq, Value: "500000"}, true},
		{models.Condition{Field: "requestedAmount", Operator: models.OpNeq, Value: "500000"}, false},
		{models.Condition{Field: "requestedAmount", Operator: models.OpGt, Value: "499999"}, true},
		{models.Condition{Field: "requestedAmount", Operator: models.OpGte, Value: "500001"}, false},
		{models.Condition{Field: "termDays", Operator: models.OpLt, Value: "31"}, true},
		{models.Condition{Field: "riskScore", Operator: models.OpLte, Value: "19"}, false},
		{models.Condition{Field: "riskBand", Operator: models.OpEq, Value: "low"}, true},
		{models.Condition{Field: "loanType", Operator: models.OpNeq, Value: "auto"}, true},
		{models.Condition{Field: "applicantEmail", Operator: models.OpContains, Value: "@corp.example"}, true},
		{models.Condition{Field: "applicantName", Operator: models.OpEq, Value: "Bob"}, false},
		{models.Condition{Field: "status", Operator: models.OpEq, Value: "pending"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.cond.Field+string(tt.cond.Operator)+tt.cond.Value, func(t *testing.T) {
			r := approveSmallLoans()
			r.ID = 1
			r.Conditions = []models.Condition{tt.cond}
			m := Evaluate([]*Compiled{mustCompile(t, r)}, sampleApp())
			assert.Equal(t, tt.want, m != nil)
		})
	}
}

func TestEvaluate_FirstMatchByAscendingID(t *testing.T) {
	reject := models.AutomationRule{
		ID: 2, Name: "reject auto loans", Enabled: true, Type: models.ActionAutoReject,
		Conditions: []models.Condition{{Field: "requestedAmount", Operator: models.OpGt, Value: "0"}},
		Action:     models.Action{Kind: models.ActionAutoReject},
	}
	approve := approveSmallLoans()
	approve.ID = 5

	rules := []*Compiled{mustCompile(t, approve), mustCompile(t, reject)}
	app := sampleApp()

	first := Evaluate(rules, app)
	require.NotNil(t, first)
	assert.Equal(t, int64(2), first.RuleID)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Evaluate(rules, app))
	}

	reject.Enabled = false
	m := Evaluate([]*Compiled{mustCompile(t, approve), mustCompile(t, reject)}, app)
	require.NotNil(t, m)
	assert.Equal(t, int64(5), m.RuleID)
	assert.Equal(t, models.ActionAutoApprove, m.Action.Kind)
}

func TestEvaluate_AllConditionsAnded(t *testing.T) {
	r := approveSmallLoans()
	r.ID = 1
	r.Conditions = append(r.Conditions, models.Condition{Field: "loanType", Operator: models.OpEq, Value: "business"})

	assert.Nil(t, Evaluate([]*Compiled{mustCompile(t, r)}, sampleApp()))
}

func TestParseDocument_CanonicalValues(t *testing.T) {
	rule, err := ParseDocument([]byte(`{
		"name": "large",
		"type": "status-transition",
		"conditions": [
			{"field": "requestedAmount", "operator": ">", "value": 2500000},
			{"field": "loanType", "operator": "=", "value": "business"}
		],
		"action": {"kind": "status-transition", "targetStatus": "under_review"}
	}`))

	require.NoError(t, err)
	assert.True(t, rule.Enabled)
	assert.Equal(t, "2500000", rule.Conditions[0].Value)
	assert.Equal(t, models.StatusUnderReview, rule.Action.TargetStatus)
	_, fields := Compile(rule)
	assert.Empty(t, fields)
}

func TestParseDocument_SchemaViolation(t *testing.T) {
	_, err := ParseDocument([]byte(`{"name": "x", "type": "auto-approve", "conditions": [], "action": {"kind": "explode"}}`))
	assert.ErrorIs(t, err, errors.ErrValidation)
}

func TestService_CRUD(t *testing.T) {
	ctx := context.Background()
	s := NewService(memory.NewRules(), logger.NewTestLogger(t))

	created, err := s.Create(ctx, approveSmallLoans())
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	bad := approveSmallLoans()
	bad.Conditions[0].Field = "salary"
	_, err = s.Create(ctx, bad)
	assert.ErrorIs(t, err, errors.ErrValidation)
	all, _ := s.List(ctx)
	assert.Len(t, all, 1)

	disabled := approveSmallLoans()
	disabled.Enabled = false
	updated, err := s.Update(ctx, created.ID, disabled)
	require.NoError(t, err)
	assert.False(t, updated.Enabled)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)

	m, err := s.Evaluate(ctx, sampleApp())
	require.NoError(t, err)
	assert.Nil(t, m)

	_, err = s.Update(ctx, 99, approveSmallLoans())
	assert.ErrorIs(t, err, errors.ErrNotFound)

	require.NoError(t, s.Delete(ctx, created.ID))
	assert.ErrorIs(t, s.Delete(ctx, created.ID), errors.ErrNotFound)
}

func TestService_Load_SkipsStoredInvalidRule(t *testing.T) {
	ctx := context.Background()
	store := memory.NewRules()
	broken := approveSmallLoans()
	broken.Conditions[0].Field = "removedField"
	require.NoError(t, store.Create(ctx, &broken))
	good := approveSmallLoans()
	require.NoError(t, store.Create(ctx, &good))

	s := NewService(store, logger.NewTestLogger(t))
	compiled, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, compiled, 1)
	assert.Equal(t, good.ID, compiled[0].Rule.ID)

	m, err := s.Evaluate(ctx, sampleApp())
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, good.ID, m.RuleID)
}
