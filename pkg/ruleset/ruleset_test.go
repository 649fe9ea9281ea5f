package ruleset

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loan-lifecycle/internal/common/errors"
	"loan-lifecycle/internal/common/logger"
	"loan-lifecycle/internal/models"
)

type fakeStore struct {
	rules []models.AutomationRule
}

func (f *fakeStore) ListRules(context.Context) ([]models.AutomationRule, error) {
	return f.rules, nil
}

func (f *fakeStore) CreateRule(_ context.Context, rule models.AutomationRule) (*models.AutomationRule, error) {
	rule.ID = int64(len(f.rules) + 1)
	f.rules = append(f.rules, rule)
	return &rule, nil
}

const seed = `{
	"version": "1",
	"rules": [
		{
			"name": "approve small personal loans",
			"type": "auto-approve",
			"conditions": [
				{"field": "loanType", "operator": "=", "value": "personal"},
				{"field": "requestedAmount", "operator": "<=", "value": 500000}
			],
			"action": {"kind": "auto-approve"}
		},
		{
			"name": "route business loans",
			"enabled": false,
			"type": "ticket-routing",
			"conditions": [{"field": "loanType", "operator": "=", "value": "business"}],
			"action": {"kind": "ticket-routing", "queue": "business-desk"}
		}
	]
}`

func writeSeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestSeed_EmptyTable(t *testing.T) {
	store := &fakeStore{}

	n, err := Seed(context.Background(), writeSeed(t, seed), store, logger.NewTestLogger(t))

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, store.rules, 2)
	assert.True(t, store.rules[0].Enabled)
	assert.Equal(t, "500000", store.rules[0].Conditions[1].Value)
	assert.False(t, store.rules[1].Enabled)
	assert.Equal(t, "business-desk", store.rules[1].Action.Queue)
}

func TestSeed_SkipsWhenRulesExist(t *testing.T) {
	store := &fakeStore{rules: []models.AutomationRule{{ID: 1, Name: "existing"}}}

	n, err := Seed(context.Background(), writeSeed(t, seed), store, logger.NewTestLogger(t))

	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, store.rules, 1)
}

func TestSeed_NoPath(t *testing.T) {
	n, err := Seed(context.Background(), "", &fakeStore{}, logger.NewTestLogger(t))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSeed_InvalidDocument(t *testing.T) {
	store := &fakeStore{}
	path := writeSeed(t, `{"rules": [{"name": "bad", "type": "explode", "conditions": [], "action": {"kind": "explode"}}]}`)

	_, err := Seed(context.Background(), path, store, logger.NewTestLogger(t))

	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrValidation)
	assert.Empty(t, store.rules)
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}
