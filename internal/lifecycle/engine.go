// Package lifecycle is the loan application lifecycle engine. It composes
// the identity matcher, risk scorer and gate, rule engine, state machine and
// reminder scheduler behind the operations exposed to the API and workers.
package lifecycle

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"loan-lifecycle/internal/common/errors"
	"loan-lifecycle/internal/common/logger"
	"loan-lifecycle/internal/common/observability"
	"loan-lifecycle/internal/lifecycle/fees"
	"loan-lifecycle/internal/lifecycle/identity"
	"loan-lifecycle/internal/lifecycle/notifier"
	"loan-lifecycle/internal/lifecycle/risk"
	"loan-lifecycle/internal/lifecycle/rules"
	"loan-lifecycle/internal/lifecycle/scheduler"
	"loan-lifecycle/internal/lifecycle/search"
	"loan-lifecycle/internal/lifecycle/statemachine"
	"loan-lifecycle/internal/lifecycle/store"
	"loan-lifecycle/internal/models"
)

// SearchIndex mirrors committed applications for the admin listing.
type SearchIndex interface {
	Index(ctx context.Context, app *models.LoanApplication) error
	Search(ctx context.Context, q search.Query) (*search.Result, error)
}

// EventPublisher announces committed transitions to running workflows.
type EventPublisher interface {
	PublishStatusChanged(ctx context.Context, ev models.StatusChangedEvent) error
}

type Deps struct {
	Applications store.ApplicationStore
	Risk         store.RiskStore
	Rules        store.RuleStore
	Reminders    store.ReminderStore

	Hasher   *identity.Hasher
	Velocity *risk.VelocityCounter
	Fees     *fees.Calculator
	Notifier notifier.Notifier

	// Optional.
	Search        SearchIndex
	Publisher     EventPublisher
	Observability *observability.Observability
}

type Options struct {
	DefaultTermDays int
	Scheduler       scheduler.Config
	Clock           func() time.Time
}

type Engine struct {
	apps      store.ApplicationStore
	matcher   *identity.Matcher
	hasher    *identity.Hasher
	assessor  *risk.Assessor
	reviewer  *risk.Reviewer
	rules     *rules.Service
	machine   *statemachine.Machine
	fees      *fees.Calculator
	notifier  notifier.Notifier
	scheduler *scheduler.Scheduler
	search    SearchIndex
	publisher EventPublisher
	obs       *observability.Observability

	defaultTermDays int
	now             func() time.Time
	log             logger.Logger
}

func New(d Deps, opts Options, log logger.Logger) *Engine {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.DefaultTermDays <= 0 {
		opts.DefaultTermDays = 30
	}
	obs := d.Observability
	if obs == nil {
		obs = &observability.Observability{}
	}

	// Keep a nil *VelocityCounter out of the interface.
	var assessor *risk.Assessor
	if d.Velocity != nil {
		assessor = risk.NewAssessor(d.Velocity, d.Risk, log)
	} else {
		assessor = risk.NewAssessor(nil, d.Risk, log)
	}

	var feeCalc statemachine.FeeCalculator
	if d.Fees != nil {
		feeCalc = d.Fees
	}

	e := &Engine{
		apps:            d.Applications,
		hasher:          d.Hasher,
		matcher:         identity.NewMatcher(d.Hasher, d.Applications, log),
		assessor:        assessor.WithClock(opts.Clock),
		reviewer:        risk.NewReviewer(d.Risk, log),
		rules:           rules.NewService(d.Rules, log),
		machine:         statemachine.New(d.Applications, feeCalc, log).WithClock(opts.Clock).WithLocation(opts.Scheduler.Location),
		fees:            d.Fees,
		notifier:        d.Notifier,
		search:          d.Search,
		publisher:       d.Publisher,
		obs:             obs,
		defaultTermDays: opts.DefaultTermDays,
		now:             opts.Clock,
		log:             log.With(map[string]interface{}{"component": "lifecycle-engine"}),
	}
	e.scheduler = scheduler.New(d.Applications, d.Reminders, committer{e}, d.Notifier, obs, opts.Scheduler, log).
		WithClock(opts.Clock)
	return e
}

// Scheduler exposes the reminder scheduler for Start/Stop by the host process.
func (e *Engine) Scheduler() *scheduler.Scheduler {
	return e.scheduler
}

func (e *Engine) CheckDuplicate(ctx context.Context, taxID, birthDate string) (*identity.DuplicateCheck, error) {
	return e.matcher.CheckDuplicate(ctx, taxID, birthDate)
}

type TransitionRequest struct {
	ApplicationID  int64         `json:"-"`
	To             models.Status `json:"targetState"`
	Actor          string        `json:"actor"`
	Note           string        `json:"note,omitempty"`
	ApprovedAmount int64         `json:"approvedAmount,omitempty"`
}

// Transition is the manual admin path. It is not risk gated.
func (e *Engine) Transition(ctx context.Context, req TransitionRequest) (*statemachine.Result, error) {
	return e.commit(ctx, statemachine.Request{
		ApplicationID:  req.ApplicationID,
		To:             req.To,
		Actor:          req.Actor,
		Note:           req.Note,
		ApprovedAmount: req.ApprovedAmount,
	})
}

// commit applies a transition and runs the post-commit effects. The effects
// never change the outcome of the transition.
func (e *Engine) commit(ctx context.Context, req statemachine.Request) (*statemachine.Result, error) {
	ctx, span := e.obs.StartSpan(ctx, "lifecycle.transition")
	defer span.End()

	res, err := e.machine.Transition(ctx, req)
	if err != nil {
		return nil, err
	}
	if res.Changed {
		e.obs.RecordTransition(ctx, string(res.From), string(res.Application.Status), req.Actor)
		e.afterCommit(ctx, res.Application, &models.StatusChangedEvent{
			EventID:        uuid.New().String(),
			ApplicationID:  res.Application.ID,
			TrackingNumber: res.Application.TrackingNumber,
			From:           res.From,
			To:             res.Application.Status,
			Actor:          req.Actor,
			Note:           req.Note,
			OccurredAt:     res.Application.UpdatedAt,
		})
	}
	return res, nil
}

func (e *Engine) afterCommit(ctx context.Context, app *models.LoanApplication, ev *models.StatusChangedEvent) {
	if e.search != nil {
		if err := e.search.Index(ctx, app); err != nil {
			e.log.Warn("search index update failed", map[string]interface{}{"applicationId": app.ID, "error": err})
		}
	}
	if e.publisher != nil && ev != nil {
		if err := e.publisher.PublishStatusChanged(ctx, *ev); err != nil {
			e.log.Warn("status change not published", map[string]interface{}{"applicationId": app.ID, "error": err})
		}
	}
}

// committer lets the scheduler drive transitions through the same
// post-commit path as every other caller.
type committer struct{ e *Engine }

func (c committer) Transition(ctx context.Context, req statemachine.Request) (*statemachine.Result, error) {
	return c.e.commit(ctx, req)
}

func (e *Engine) GetApplication(ctx context.Context, id int64) (*models.LoanApplication, error) {
	app, err := e.apps.Get(ctx, id)
	if err != nil {
		return nil, e.lookupError("application", fmt.Sprint(id), err)
	}
	return app, nil
}

func (e *Engine) GetApplicationByTrackingNumber(ctx context.Context, trackingNumber string) (*models.LoanApplication, error) {
	app, err := e.apps.GetByTrackingNumber(ctx, trackingNumber)
	if err != nil {
		return nil, e.lookupError("application", trackingNumber, err)
	}
	return app, nil
}

func (e *Engine) History(ctx context.Context, id int64) ([]models.AuditEntry, error) {
	entries, err := e.apps.History(ctx, id)
	if err != nil {
		return nil, e.lookupError("application", fmt.Sprint(id), err)
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	return entries, nil
}

func (e *Engine) SearchApplications(ctx context.Context, q search.Query) (*search.Result, error) {
	if e.search == nil {
		return nil, errors.NewExternalServiceError("elasticsearch", stderrors.New("search is not configured"))
	}
	return e.search.Search(ctx, q)
}

func (e *Engine) ReviewFraudCheck(ctx context.Context, checkID int64, approved bool, reviewer, notes string) (*models.RiskAssessment, error) {
	ra, err := e.reviewer.Review(ctx, checkID, approved, reviewer, notes)
	if err != nil {
		return nil, err
	}

	app, err := e.apps.Update(ctx, ra.ApplicationID, func(app *models.LoanApplication) (*models.AuditEntry, error) {
		if app.RiskReviewStatus == ra.ReviewStatus {
			return nil, store.ErrNoChange
		}
		app.RiskReviewStatus = ra.ReviewStatus
		return nil, nil
	})
	if err != nil {
		e.log.Warn("application review status not updated", map[string]interface{}{
			"applicationId": ra.ApplicationID,
			"checkId":       ra.ID,
			"error":         err,
		})
		return ra, nil
	}
	e.afterCommit(ctx, app, nil)
	return ra, nil
}

func (e *Engine) ListPendingFraudReviews(ctx context.Context) ([]models.RiskAssessment, error) {
	return e.reviewer.ListPending(ctx)
}

func (e *Engine) CreateRule(ctx context.Context, rule models.AutomationRule) (*models.AutomationRule, error) {
	return e.rules.Create(ctx, rule)
}

func (e *Engine) UpdateRule(ctx context.Context, id int64, rule models.AutomationRule) (*models.AutomationRule, error) {
	return e.rules.Update(ctx, id, rule)
}

func (e *Engine) DeleteRule(ctx context.Context, id int64) error {
	return e.rules.Delete(ctx, id)
}

func (e *Engine) GetRule(ctx context.Context, id int64) (*models.AutomationRule, error) {
	return e.rules.Get(ctx, id)
}

// ListRules returns every rule, enabled or not, in evaluation order.
func (e *Engine) ListRules(ctx context.Context) ([]models.AutomationRule, error) {
	return e.rules.List(ctx)
}

func (e *Engine) RunReminderCheck(ctx context.Context) (*scheduler.Result, error) {
	return e.scheduler.RunReminderCheck(ctx)
}

func (e *Engine) SendTestReminder(ctx context.Context, applicationID int64) (*models.ReminderLog, notifier.Result, error) {
	return e.scheduler.SendTestReminder(ctx, applicationID)
}

func (e *Engine) FeeQuote(amount int64) (fees.Quote, error) {
	if amount <= 0 {
		return fees.Quote{}, errors.NewValidationError([]errors.FieldError{{
			Field: "amount", Code: "OUT_OF_RANGE", Message: "amount must be greater than zero",
		}})
	}
	if e.fees == nil {
		return fees.Quote{}, errors.NewInternalError(stderrors.New("fee calculator not configured"))
	}
	return e.fees.Quote(amount), nil
}

func (e *Engine) lookupError(resource, id string, err error) error {
	if stderrors.Is(err, store.ErrNotFound) {
		return errors.NewNotFoundError(resource, id)
	}
	e.log.Error("store lookup failed", map[string]interface{}{"resource": resource, "error": err})
	return errors.NewQueryExecutionFailedError("get "+resource, err)
}
