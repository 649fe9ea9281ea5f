// Package ruleset loads the automation rule seed file.
package ruleset

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"loan-lifecycle/internal/common/logger"
	"loan-lifecycle/internal/lifecycle/rules"
	"loan-lifecycle/internal/models"
)

// File is the on-disk seed format. Each entry is a rule document as accepted
// by the admin API.
type File struct {
	Version     string            `json:"version"`
	LastUpdated string            `json:"lastUpdated"`
	Rules       []json.RawMessage `json:"rules"`
}

// RuleStore is the part of the engine the seeder needs.
type RuleStore interface {
	ListRules(ctx context.Context) ([]models.AutomationRule, error)
	CreateRule(ctx context.Context, rule models.AutomationRule) (*models.AutomationRule, error)
}

func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode rule seed %s: %w", path, err)
	}
	return &f, nil
}

// Parse converts every document in the file, failing on the first invalid one.
func (f *File) Parse() ([]models.AutomationRule, error) {
	out := make([]models.AutomationRule, 0, len(f.Rules))
	for i, raw := range f.Rules {
		rule, err := rules.ParseDocument(raw)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		out = append(out, rule)
	}
	return out, nil
}

// Seed creates the file's rules in order, and only when no rule exists yet,
// so restarts never duplicate or resurrect rules an admin has deleted.
func Seed(ctx context.Context, path string, store RuleStore, log logger.Logger) (int, error) {
	if path == "" {
		return 0, nil
	}

	existing, err := store.ListRules(ctx)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		log.Info("rule table not empty, seed skipped", map[string]interface{}{"rules": len(existing), "path": path})
		return 0, nil
	}

	f, err := LoadFile(path)
	if err != nil {
		return 0, err
	}
	parsed, err := f.Parse()
	if err != nil {
		return 0, err
	}

	for i, rule := range parsed {
		saved, err := store.CreateRule(ctx, rule)
		if err != nil {
			return i, fmt.Errorf("seed rule %q: %w", rule.Name, err)
		}
		log.Info("rule seeded", map[string]interface{}{"ruleId": saved.ID, "name": saved.Name, "type": saved.Type})
	}
	return len(parsed), nil
}
