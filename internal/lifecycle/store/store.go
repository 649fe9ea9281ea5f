// Package store declares the persistence ports of the lifecycle engine.
// store/postgres is the production implementation; store/memory enforces
// the same uniqueness and locking rules in process.
package store

import (
	"context"
	"errors"
	"time"

	"loan-lifecycle/internal/models"
)

var (
	ErrNotFound          = errors.New("NOT_FOUND")
	ErrDuplicateIdentity = errors.New("DUPLICATE_IDENTITY")
	ErrReminderExists    = errors.New("REMINDER_EXISTS")
	ErrAlreadyReviewed   = errors.New("ALREADY_REVIEWED")

	// ErrNoChange returned from a Mutation releases the lock without writing.
	ErrNoChange = errors.New("NO_CHANGE")
)

// Mutation runs against a locked copy of the application. The returned audit
// entry, if any, is written in the same transaction as the row.
type Mutation func(app *models.LoanApplication) (*models.AuditEntry, error)

type ApplicationStore interface {
	// Create assigns app.ID. It returns ErrDuplicateIdentity when another
	// application with the same identity key is in an active status.
	Create(ctx context.Context, app *models.LoanApplication, audit *models.AuditEntry) error
	Get(ctx context.Context, id int64) (*models.LoanApplication, error)
	GetByTrackingNumber(ctx context.Context, trackingNumber string) (*models.LoanApplication, error)
	FindByIdentity(ctx context.Context, identityKey string) ([]models.LoanApplication, error)
	// Update serializes with every other Update on the same id.
	Update(ctx context.Context, id int64, fn Mutation) (*models.LoanApplication, error)
	ListByStatus(ctx context.Context, statuses []models.Status) ([]models.LoanApplication, error)
	History(ctx context.Context, id int64) ([]models.AuditEntry, error)
}

type RiskStore interface {
	Create(ctx context.Context, assessment *models.RiskAssessment) error
	Get(ctx context.Context, id int64) (*models.RiskAssessment, error)
	// Review moves a pending assessment to approved or rejected exactly once.
	Review(ctx context.Context, id int64, status models.ReviewStatus, reviewer, notes string, at time.Time) (*models.RiskAssessment, error)
	ListPending(ctx context.Context) ([]models.RiskAssessment, error)
}

type RuleStore interface {
	Create(ctx context.Context, rule *models.AutomationRule) error
	Update(ctx context.Context, rule *models.AutomationRule) error
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (*models.AutomationRule, error)
	// List returns every rule in ascending id order.
	List(ctx context.Context) ([]models.AutomationRule, error)
}

type ReminderStore interface {
	Exists(ctx context.Context, applicationID int64, reminderType models.ReminderType, dueCycle string) (bool, error)
	// Append returns ErrReminderExists when a non-test row already holds the cycle.
	Append(ctx context.Context, log *models.ReminderLog) error
	MarkDelivered(ctx context.Context, id string, delivered bool) error
	List(ctx context.Context, applicationID int64) ([]models.ReminderLog, error)
}
