// Package rules stores operator-defined automation rules and evaluates them
// against applications. Rules are validated against a typed field registry
// when saved and again when loaded for evaluation.
package rules

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"loan-lifecycle/internal/common/errors"
	"loan-lifecycle/internal/common/logger"
	"loan-lifecycle/internal/common/metrics"
	"loan-lifecycle/internal/lifecycle/store"
	"loan-lifecycle/internal/models"
)

type Service struct {
	store store.RuleStore
	now   func() time.Time
	log   logger.Logger
}

func NewService(s store.RuleStore, log logger.Logger) *Service {
	return &Service{
		store: s,
		now:   time.Now,
		log:   log.With(map[string]interface{}{"component": "rule-engine"}),
	}
}

func (s *Service) Create(ctx context.Context, rule models.AutomationRule) (*models.AutomationRule, error) {
	if _, fields := Compile(rule); len(fields) > 0 {
		return nil, errors.NewValidationError(fields)
	}

	now := s.now().UTC()
	rule.ID = 0
	rule.CreatedAt = now
	rule.UpdatedAt = now
	if err := s.store.Create(ctx, &rule); err != nil {
		return nil, s.storeError("create rule", err)
	}

	s.log.Info("rule created", map[string]interface{}{"ruleId": rule.ID, "name": rule.Name, "type": rule.Type})
	return &rule, nil
}

func (s *Service) Update(ctx context.Context, id int64, rule models.AutomationRule) (*models.AutomationRule, error) {
	existing, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, s.lookupError(id, err)
	}
	if _, fields := Compile(rule); len(fields) > 0 {
		return nil, errors.NewValidationError(fields)
	}

	rule.ID = id
	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, &rule); err != nil {
		return nil, s.lookupError(id, err)
	}

	s.log.Info("rule updated", map[string]interface{}{"ruleId": id, "enabled": rule.Enabled})
	return &rule, nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return s.lookupError(id, err)
	}
	s.log.Info("rule deleted", map[string]interface{}{"ruleId": id})
	return nil
}

func (s *Service) Get(ctx context.Context, id int64) (*models.AutomationRule, error) {
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, s.lookupError(id, err)
	}
	return r, nil
}

// List returns every rule, enabled or not, in evaluation order.
func (s *Service) List(ctx context.Context) ([]models.AutomationRule, error) {
	out, err := s.store.List(ctx)
	if err != nil {
		return nil, s.storeError("list rules", err)
	}
	if out == nil {
		out = []models.AutomationRule{}
	}
	return out, nil
}

// Load compiles the stored rules. A stored rule that no longer compiles is
// logged and left out; it never matches.
func (s *Service) Load(ctx context.Context) ([]*Compiled, error) {
	stored, err := s.store.List(ctx)
	if err != nil {
		return nil, s.storeError("load rules", err)
	}

	out := make([]*Compiled, 0, len(stored))
	for _, r := range stored {
		c, fields := Compile(r)
		if len(fields) > 0 {
			s.log.Error("stored rule is invalid, skipping", map[string]interface{}{
				"ruleId": r.ID,
				"error":  errors.NewRuleInvalidError(fields),
			})
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// Evaluate loads the enabled rules and returns the first match for app.
func (s *Service) Evaluate(ctx context.Context, app *models.LoanApplication) (*Match, error) {
	compiled, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}

	m := Evaluate(compiled, app)
	if m != nil {
		metrics.RuleMatches.WithLabelValues(string(m.Action.Kind)).Inc()
		s.log.Debug("rule matched", map[string]interface{}{
			"applicationId": app.ID,
			"ruleId":        m.RuleID,
			"action":        m.Action.Kind,
		})
	}
	return m, nil
}

func (s *Service) lookupError(id int64, err error) error {
	if stderrors.Is(err, store.ErrNotFound) {
		return errors.NewNotFoundError("rule", fmt.Sprint(id))
	}
	return s.storeError("rule lookup", err)
}

func (s *Service) storeError(op string, err error) error {
	s.log.Error("rule store failure", map[string]interface{}{"operation": op, "error": err})
	return errors.NewQueryExecutionFailedError(op, err)
}
