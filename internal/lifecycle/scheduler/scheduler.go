// Package scheduler runs the daily repayment scan: due reminders at 7, 3
// and 1 days, overdue detection and delinquency escalation.
package scheduler

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"loan-lifecycle/internal/common/errors"
	"loan-lifecycle/internal/common/logger"
	"loan-lifecycle/internal/common/metrics"
	"loan-lifecycle/internal/common/observability"
	"loan-lifecycle/internal/lifecycle/notifier"
	"loan-lifecycle/internal/lifecycle/statemachine"
	"loan-lifecycle/internal/lifecycle/store"
	"loan-lifecycle/internal/models"
)

const DefaultDelinquencyDays = 30

// Transitioner applies a state change and its post-commit effects.
type Transitioner interface {
	Transition(ctx context.Context, req statemachine.Request) (*statemachine.Result, error)
}

type Config struct {
	RunAt           string // HH:MM in Location
	Location        *time.Location
	DelinquencyDays int
}

// Result summarises one run. Sent counts delivered reminders; a logged
// reminder whose delivery failed counts as Undelivered instead.
type Result struct {
	Scanned     int  `json:"scanned"`
	Sent        int  `json:"sent"`
	Undelivered int  `json:"undelivered"`
	Failed      int  `json:"failed"`
	Skipped     bool `json:"skipped"`
}

type Scheduler struct {
	apps      store.ApplicationStore
	reminders store.ReminderStore
	machine   Transitioner
	notifier  notifier.Notifier
	obs       *observability.Observability
	cfg       Config
	now       func() time.Time
	log       logger.Logger

	running atomic.Bool

	mu   sync.Mutex
	stop chan struct{}
	wg   sync.WaitGroup
}

func New(
	apps store.ApplicationStore,
	reminders store.ReminderStore,
	machine Transitioner,
	n notifier.Notifier,
	obs *observability.Observability,
	cfg Config,
	log logger.Logger,
) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.DelinquencyDays <= 0 {
		cfg.DelinquencyDays = DefaultDelinquencyDays
	}
	if cfg.RunAt == "" {
		cfg.RunAt = "09:00"
	}
	if obs == nil {
		obs = &observability.Observability{}
	}
	return &Scheduler{
		apps:      apps,
		reminders: reminders,
		machine:   machine,
		notifier:  n,
		obs:       obs,
		cfg:       cfg,
		now:       time.Now,
		log:       log.With(map[string]interface{}{"component": "reminder-scheduler"}),
	}
}

func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// Start runs the scan once a day at cfg.RunAt until Stop or ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	runAt, err := time.Parse("15:04", s.cfg.RunAt)
	if err != nil {
		return fmt.Errorf("parse run_at %q: %w", s.cfg.RunAt, err)
	}

	s.mu.Lock()
	if s.stop != nil {
		s.mu.Unlock()
		return nil
	}
	s.stop = make(chan struct{})
	stop := s.stop
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			next := nextRun(s.now(), runAt, s.cfg.Location)
			s.log.Info("next reminder run scheduled", map[string]interface{}{"at": next.Format(time.RFC3339)})

			timer := time.NewTimer(next.Sub(s.now()))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-stop:
				timer.Stop()
				return
			case <-timer.C:
				if _, err := s.RunReminderCheck(ctx); err != nil {
					s.log.Error("scheduled reminder run failed", map[string]interface{}{"error": err})
				}
			}
		}
	}()

	s.log.Info("reminder scheduler started", map[string]interface{}{
		"runAt":    s.cfg.RunAt,
		"timezone": s.cfg.Location.String(),
	})
	return nil
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func nextRun(now time.Time, runAt time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), runAt.Hour(), runAt.Minute(), 0, 0, loc)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// RunReminderCheck scans every repayment-bearing loan once. A call made
// while another scan is in progress returns Skipped without doing work.
func (s *Scheduler) RunReminderCheck(ctx context.Context) (*Result, error) {
	if !s.running.CompareAndSwap(false, true) {
		metrics.ReminderRunsSkipped.Inc()
		s.log.Warn("reminder run already in progress, skipping", nil)
		return &Result{Skipped: true}, nil
	}
	defer s.running.Store(false)

	ctx, span := s.obs.StartSpan(ctx, "scheduler.run_reminder_check")
	defer span.End()

	start := s.now()
	loans, err := s.apps.ListByStatus(ctx, models.RepaymentStatuses)
	if err != nil {
		s.log.Error("list repayment loans failed", map[string]interface{}{"error": err})
		return nil, errors.NewQueryExecutionFailedError("list repayment loans", err)
	}

	today := dateOf(start, s.cfg.Location)
	res := &Result{Scanned: len(loans)}
	for i := range loans {
		out, err := s.processLoan(ctx, &loans[i], today)
		res.Sent += out.sent
		res.Undelivered += out.undelivered
		if err != nil {
			res.Failed++
			s.log.Error("reminder processing failed", map[string]interface{}{
				"applicationId": loans[i].ID,
				"error":         err,
			})
		}
	}

	elapsed := s.now().Sub(start)
	metrics.ReminderRunDuration.Observe(elapsed.Seconds())
	s.obs.RecordReminderRun(ctx, elapsed, res.Sent, res.Failed)
	span.SetAttributes(
		attribute.Int("loans.scanned", res.Scanned),
		attribute.Int("reminders.sent", res.Sent),
		attribute.Int("loans.failed", res.Failed),
	)

	s.log.Info("reminder run completed", map[string]interface{}{
		"scanned":     res.Scanned,
		"sent":        res.Sent,
		"undelivered": res.Undelivered,
		"failed":      res.Failed,
		"durationMs":  elapsed.Milliseconds(),
	})
	return res, nil
}

type loanOutcome struct {
	sent        int
	undelivered int
}

func (s *Scheduler) processLoan(ctx context.Context, app *models.LoanApplication, today time.Time) (loanOutcome, error) {
	var out loanOutcome

	if app.Status == models.StatusDisbursed {
		next, err := s.advance(ctx, app, models.StatusCurrent, "repayment period started")
		if err != nil {
			return out, err
		}
		app = next
	}
	if app.DueDate == nil {
		return out, nil
	}

	cycle := dueDay(*app.DueDate).Format("2006-01-02")
	days := daysUntil(today, *app.DueDate)

	if days >= 0 {
		reminderType, ok := models.DueReminderTypes[days]
		if !ok {
			return out, nil
		}
		return s.remind(ctx, app, reminderType, cycle, days, s.notifier.NotifyPaymentDueReminder)
	}

	if app.Status == models.StatusCurrent {
		next, err := s.advance(ctx, app, models.StatusOverdue, fmt.Sprintf("payment overdue by %d days", -days))
		if err != nil {
			return out, err
		}
		app = next
	}

	if -days >= s.cfg.DelinquencyDays && app.Status == models.StatusOverdue {
		next, err := s.advance(ctx, app, models.StatusDelinquent, fmt.Sprintf("overdue %d days", -days))
		if err != nil {
			return out, err
		}
		return s.remind(ctx, next, models.ReminderDelinquent, cycle, days, s.notifier.NotifyDelinquency)
	}

	// Overdue notices repeat once per calendar day.
	dailyCycle := cycle + "/" + today.Format("2006-01-02")
	return s.remind(ctx, app, models.ReminderOverdue, dailyCycle, days, s.notifier.NotifyPaymentOverdue)
}

func (s *Scheduler) advance(ctx context.Context, app *models.LoanApplication, to models.Status, note string) (*models.LoanApplication, error) {
	res, err := s.machine.Transition(ctx, statemachine.Request{
		ApplicationID: app.ID,
		To:            to,
		Actor:         models.ActorScheduler,
		Note:          note,
		ExpectFrom:    []models.Status{app.Status},
	})
	if err != nil {
		return nil, err
	}
	return res.Application, nil
}

type notifyFunc func(ctx context.Context, app *models.LoanApplication, info notifier.Info) notifier.Result

func (s *Scheduler) remind(
	ctx context.Context,
	app *models.LoanApplication,
	reminderType models.ReminderType,
	cycle string,
	days int,
	notify notifyFunc,
) (loanOutcome, error) {
	var out loanOutcome

	exists, err := s.reminders.Exists(ctx, app.ID, reminderType, cycle)
	if err != nil {
		return out, fmt.Errorf("check reminder log: %w", err)
	}
	if exists {
		return out, nil
	}

	now := s.now().UTC()
	entry := &models.ReminderLog{
		ID:            uuid.New().String(),
		ApplicationID: app.ID,
		Type:          reminderType,
		DueCycle:      cycle,
		DaysUntilDue:  days,
		SentAt:        now,
	}
	if err := s.reminders.Append(ctx, entry); err != nil {
		if stderrors.Is(err, store.ErrReminderExists) {
			return out, nil
		}
		return out, fmt.Errorf("append reminder log: %w", err)
	}

	result := notify(ctx, app, notifier.Info{DaysUntilDue: days})
	if err := s.reminders.MarkDelivered(ctx, entry.ID, result.Success); err != nil {
		s.log.Warn("mark reminder delivered failed", map[string]interface{}{"reminderId": entry.ID, "error": err})
	}
	if !result.Success {
		out.undelivered = 1
		s.log.Warn("reminder not delivered", map[string]interface{}{
			"applicationId": app.ID,
			"reminderType":  reminderType,
			"error":         result.Error,
		})
		return out, nil
	}
	out.sent = 1
	metrics.RemindersSent.WithLabelValues(string(reminderType)).Inc()

	_, err = s.apps.Update(ctx, app.ID, func(a *models.LoanApplication) (*models.AuditEntry, error) {
		a.LastReminderSentAt = &now
		return nil, nil
	})
	if err != nil {
		s.log.Warn("record last reminder failed", map[string]interface{}{"applicationId": app.ID, "error": err})
	}
	return out, nil
}

// SendTestReminder sends the reminder the loan would currently receive,
// ignoring the idempotence guard. The log row is flagged as a test.
func (s *Scheduler) SendTestReminder(ctx context.Context, applicationID int64) (*models.ReminderLog, notifier.Result, error) {
	app, err := s.apps.Get(ctx, applicationID)
	if err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			return nil, notifier.Result{}, errors.NewNotFoundError("application", fmt.Sprint(applicationID))
		}
		return nil, notifier.Result{}, errors.NewQueryExecutionFailedError("get application", err)
	}

	now := s.now()
	days := 0
	cycle := "test"
	if app.DueDate != nil {
		days = daysUntil(dateOf(now, s.cfg.Location), *app.DueDate)
		cycle = dueDay(*app.DueDate).Format("2006-01-02")
	}

	reminderType := models.ReminderDue7
	notify := s.notifier.NotifyPaymentDueReminder
	if t, ok := models.DueReminderTypes[days]; ok {
		reminderType = t
	} else if days < 0 {
		reminderType = models.ReminderOverdue
		notify = s.notifier.NotifyPaymentOverdue
	}

	entry := &models.ReminderLog{
		ID:            uuid.New().String(),
		ApplicationID: app.ID,
		Type:          reminderType,
		DueCycle:      cycle,
		DaysUntilDue:  days,
		IsTest:        true,
		SentAt:        now.UTC(),
	}
	if err := s.reminders.Append(ctx, entry); err != nil {
		return nil, notifier.Result{}, errors.NewQueryExecutionFailedError("append test reminder", err)
	}

	result := notify(ctx, app, notifier.Info{DaysUntilDue: days, Test: true})
	entry.Delivered = result.Success
	if err := s.reminders.MarkDelivered(ctx, entry.ID, result.Success); err != nil {
		s.log.Warn("mark test reminder delivered failed", map[string]interface{}{"reminderId": entry.ID, "error": err})
	}

	s.log.Info("test reminder sent", map[string]interface{}{
		"applicationId": app.ID,
		"reminderType":  reminderType,
		"delivered":     result.Success,
	})
	return entry, result, nil
}

func dateOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// dueDay reads a due date as the calendar date it was stored as. Due dates
// are already local dates, so converting them to Location would shift them
// back a day west of UTC.
func dueDay(due time.Time) time.Time {
	y, m, d := due.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// daysUntil counts whole calendar days, so DST shifts never skew a threshold.
func daysUntil(today, due time.Time) int {
	return int(dueDay(due).Sub(today).Hours() / 24)
}
