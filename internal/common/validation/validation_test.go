package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loan-lifecycle/internal/common/errors"
)

func TestAutomationRule_Valid(t *testing.T) {
	doc := []byte(`{
		"name": "small loans",
		"type": "auto-approve",
		"conditions": [{"field": "requestedAmount", "operator": "<=", "value": 1000000}],
		"action": {"kind": "auto-approve"}
	}`)

	res, err := AutomationRule.ValidateInput(doc)

	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.NoError(t, AutomationRule.Validate(doc))
}

func TestAutomationRule_Invalid(t *testing.T) {
	doc := map[string]interface{}{
		"type":       "auto-delete",
		"conditions": []interface{}{map[string]interface{}{"field": "x", "operator": "~"}},
		"action":     map[string]interface{}{"kind": "auto-approve"},
	}

	res, err := AutomationRule.ValidateInput(doc)
	require.NoError(t, err)
	assert.False(t, res.Valid)

	fields := map[string]bool{}
	for _, e := range res.Errors {
		fields[e.Field] = true
	}
	assert.True(t, fields["name"])
	assert.True(t, fields["type"])
	assert.True(t, fields["conditions.0.operator"])
	assert.True(t, fields["conditions.0.value"])

	err = AutomationRule.Validate(doc)
	assert.ErrorIs(t, err, errors.ErrValidation)
	assert.NotEmpty(t, errors.AsStandard(err).Fields)
}

func TestPaymentEvent(t *testing.T) {
	assert.NoError(t, PaymentEvent.Validate([]byte(`{"applicationId": 7, "outcome": "fee_paid"}`)))
	assert.Error(t, PaymentEvent.Validate([]byte(`{"applicationId": 7, "outcome": "refunded"}`)))
	assert.Error(t, PaymentEvent.Validate([]byte(`{"outcome": "fee_failed"}`)))
	assert.Error(t, PaymentEvent.Validate([]byte(`{not json`)))
}
