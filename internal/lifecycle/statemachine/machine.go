package statemachine

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"loan-lifecycle/internal/common/errors"
	"loan-lifecycle/internal/common/logger"
	"loan-lifecycle/internal/common/metrics"
	"loan-lifecycle/internal/lifecycle/store"
	"loan-lifecycle/internal/models"
)

// FeeCalculator prices the processing fee charged on approval.
type FeeCalculator interface {
	Fee(approvedAmount int64) int64
}

type Request struct {
	ApplicationID int64
	To            models.Status
	Actor         string
	Note          string

	// ExpectFrom, when set, is the set of source states the caller observed.
	// If the application has moved elsewhere the call loses the race: it
	// no-ops when the winner already reached To, fails with an
	// InvalidTransition when To is not reachable from the new state and
	// with a TransitionConflict otherwise.
	ExpectFrom []models.Status

	// ApprovedAmount overrides the requested amount on approval.
	ApprovedAmount int64
}

type Result struct {
	Application *models.LoanApplication
	From        models.Status
	Changed     bool
}

type Machine struct {
	store store.ApplicationStore
	fees  FeeCalculator
	now   func() time.Time
	loc   *time.Location
	log   logger.Logger
}

func New(s store.ApplicationStore, fees FeeCalculator, log logger.Logger) *Machine {
	return &Machine{
		store: s,
		fees:  fees,
		now:   time.Now,
		loc:   time.UTC,
		log:   log.With(map[string]interface{}{"component": "state-machine"}),
	}
}

// WithClock replaces the time source. Used by tests and the scheduler.
func (m *Machine) WithClock(now func() time.Time) *Machine {
	m.now = now
	return m
}

// WithLocation sets the zone whose calendar dates due dates are counted in.
// It must match the scheduler's location.
func (m *Machine) WithLocation(loc *time.Location) *Machine {
	if loc != nil {
		m.loc = loc
	}
	return m
}

func (m *Machine) Transition(ctx context.Context, req Request) (*Result, error) {
	if _, ok := models.ParseStatus(string(req.To)); !ok {
		return nil, errors.NewValidationError([]errors.FieldError{{
			Field: "targetState", Code: "INVALID_STATUS", Message: "unknown target state",
		}})
	}
	if req.Actor == "" {
		return nil, errors.NewValidationError([]errors.FieldError{{
			Field: "actor", Code: "REQUIRED", Message: "actor is required",
		}})
	}

	var from models.Status
	app, err := m.store.Update(ctx, req.ApplicationID, func(app *models.LoanApplication) (*models.AuditEntry, error) {
		from = app.Status

		if len(req.ExpectFrom) > 0 && !containsStatus(req.ExpectFrom, app.Status) {
			if app.Status == req.To {
				return nil, store.ErrNoChange
			}
			if !CanTransition(app.Status, req.To) {
				return nil, errors.NewInvalidTransitionError(string(app.Status), string(req.To))
			}
			return nil, errors.NewTransitionConflictError(fmt.Sprintf(
				"application %d moved to %s before %s could be applied", app.ID, app.Status, req.To))
		}
		if !CanTransition(app.Status, req.To) {
			return nil, errors.NewInvalidTransitionError(string(app.Status), string(req.To))
		}

		now := m.now().UTC()
		if now.Before(app.UpdatedAt) {
			now = app.UpdatedAt
		}
		m.applySideEffects(app, req, now)

		return &models.AuditEntry{
			ID:        uuid.New().String(),
			From:      from,
			To:        req.To,
			Actor:     req.Actor,
			Note:      req.Note,
			CreatedAt: now,
		}, nil
	})
	if err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			return nil, errors.NewNotFoundError("application", fmt.Sprint(req.ApplicationID))
		}
		if std := errors.AsStandard(err); std.Code == errors.ErrCodeInternal {
			m.log.Error("transition failed", map[string]interface{}{
				"applicationId": req.ApplicationID,
				"to":            req.To,
				"actor":         req.Actor,
				"error":         err,
			})
			return nil, std
		}
		return nil, err
	}

	changed := app.Status == req.To && from != req.To
	if changed {
		metrics.StatusTransitions.WithLabelValues(string(from), string(req.To), actorLabel(req.Actor)).Inc()
		m.log.Info("application transitioned", map[string]interface{}{
			"applicationId":  app.ID,
			"trackingNumber": app.TrackingNumber,
			"from":           from,
			"to":             req.To,
			"actor":          req.Actor,
		})
	}
	return &Result{Application: app, From: from, Changed: changed}, nil
}

func (m *Machine) applySideEffects(app *models.LoanApplication, req Request, now time.Time) {
	app.Status = req.To
	app.UpdatedAt = now

	switch req.To {
	case models.StatusApproved:
		app.ApprovedAt = &now
		app.ApprovedAmount = app.RequestedAmount
		if req.ApprovedAmount > 0 {
			app.ApprovedAmount = req.ApprovedAmount
		}
		if m.fees != nil {
			app.ProcessingFeeAmount = m.fees.Fee(app.ApprovedAmount)
		}
	case models.StatusFeePaid:
		app.FeePaidAt = &now
	case models.StatusDisbursed:
		app.DisbursedAt = &now
		due := DueDate(now, m.loc, app.TermDays)
		app.DueDate = &due
	}

	if req.To.IsTerminal() {
		app.ClosedAt = &now
	}
}

// DueDate is the calendar date termDays after the disbursal date in loc,
// carried as midnight UTC to match what a DATE column reads back as.
func DueDate(disbursedAt time.Time, loc *time.Location, termDays int) time.Time {
	y, m, d := disbursedAt.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, termDays)
}

func containsStatus(list []models.Status, s models.Status) bool {
	for _, st := range list {
		if st == s {
			return true
		}
	}
	return false
}

// actorLabel keeps admin identifiers out of metric label values.
func actorLabel(actor string) string {
	switch actor {
	case models.ActorRuleEngine, models.ActorScheduler, models.ActorPaymentWebhook, models.ActorSystem:
		return actor
	}
	return "admin"
}
