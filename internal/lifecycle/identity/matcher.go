// Package identity detects applicants who already hold an active application.
package identity

import (
	"context"

	"loan-lifecycle/internal/common/errors"
	"loan-lifecycle/internal/common/logger"
	"loan-lifecycle/internal/lifecycle/store"
	"loan-lifecycle/internal/models"
)

type DuplicateCheck struct {
	Exists        bool          `json:"exists"`
	ApplicationID int64         `json:"applicationId,omitempty"`
	Status        models.Status `json:"status,omitempty"`
	CanApply      bool          `json:"canApply"`
}

type Matcher struct {
	hasher *Hasher
	store  store.ApplicationStore
	log    logger.Logger
}

func NewMatcher(hasher *Hasher, s store.ApplicationStore, log logger.Logger) *Matcher {
	return &Matcher{
		hasher: hasher,
		store:  s,
		log:    log.With(map[string]interface{}{"component": "identity-matcher"}),
	}
}

// KeyFor normalizes and hashes the identity fields.
func (m *Matcher) KeyFor(taxID, birthDate string) (string, error) {
	digits, date, fields := Normalize(taxID, birthDate)
	if len(fields) > 0 {
		return "", errors.NewValidationError(fields)
	}
	return m.hasher.Key(digits, date), nil
}

// CheckDuplicate is advisory. Creation re-validates uniqueness atomically.
func (m *Matcher) CheckDuplicate(ctx context.Context, taxID, birthDate string) (*DuplicateCheck, error) {
	key, err := m.KeyFor(taxID, birthDate)
	if err != nil {
		return nil, err
	}
	return m.CheckKey(ctx, key)
}

func (m *Matcher) CheckKey(ctx context.Context, key string) (*DuplicateCheck, error) {
	apps, err := m.store.FindByIdentity(ctx, key)
	if err != nil {
		m.log.Error("identity lookup failed", map[string]interface{}{"error": err})
		return nil, errors.NewQueryExecutionFailedError("find by identity", err)
	}
	if len(apps) == 0 {
		return &DuplicateCheck{CanApply: true}, nil
	}

	for _, app := range apps {
		if app.Status.IsActive() {
			return &DuplicateCheck{
				Exists:        true,
				ApplicationID: app.ID,
				Status:        app.Status,
				CanApply:      false,
			}, nil
		}
	}

	// Loans in repayment are not active for the uniqueness index but still
	// block a new application until they close.
	canApply := true
	for _, app := range apps {
		if !app.Status.IsTerminal() {
			canApply = false
		}
	}
	latest := apps[len(apps)-1]
	return &DuplicateCheck{
		Exists:        true,
		ApplicationID: latest.ID,
		Status:        latest.Status,
		CanApply:      canApply,
	}, nil
}
