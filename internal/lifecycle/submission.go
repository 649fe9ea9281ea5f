package lifecycle

import (
	"context"
	stderrors "errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"loan-lifecycle/internal/common/errors"
	"loan-lifecycle/internal/common/metrics"
	"loan-lifecycle/internal/lifecycle/identity"
	"loan-lifecycle/internal/lifecycle/risk"
	"loan-lifecycle/internal/lifecycle/store"
	"loan-lifecycle/internal/models"
)

const (
	minTermDays  = 7
	maxTermDays  = 365
	minApplicant = 18
)

var phonePattern = regexp.MustCompile(`^\+?[0-9][0-9 ().-]{6,19}$`)

type SubmitRequest struct {
	Applicant       models.Applicant `json:"applicant"`
	TaxID           string           `json:"taxId"`
	BirthDate       string           `json:"birthDate"`
	LoanType        string           `json:"loanType"`
	RequestedAmount int64            `json:"requestedAmount"`
	TermDays        int              `json:"termDays,omitempty"`

	Device          string `json:"deviceFingerprint,omitempty"`
	IPAddress       string `json:"ipAddress,omitempty"`
	IPCountry       string `json:"ipCountry,omitempty"`
	DeclaredCountry string `json:"declaredCountry,omitempty"`
	Anonymizing     bool   `json:"anonymizingNetwork,omitempty"`
}

type SubmitResult struct {
	ApplicationID  int64         `json:"applicationId"`
	TrackingNumber string        `json:"trackingNumber"`
	Status         models.Status `json:"status"`
	RiskScore      int           `json:"riskScore"`
	RiskBand       risk.Band     `json:"riskBand"`
	CheckID        int64         `json:"checkId,omitempty"`
	Decision       string        `json:"decision,omitempty"`
}

// SubmitApplication creates a pending application, scores it and runs the
// automatic decision. The identity pre-check is advisory; the store's
// uniqueness guarantee decides a concurrent race.
func (e *Engine) SubmitApplication(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	ctx, span := e.obs.StartSpan(ctx, "lifecycle.submit_application")
	defer span.End()

	now := e.now().UTC()
	if req.TermDays == 0 {
		req.TermDays = e.defaultTermDays
	}
	digits, isoBirth, fields := e.validateSubmission(&req, now)
	if len(fields) > 0 {
		metrics.ApplicationsSubmitted.WithLabelValues("invalid").Inc()
		return nil, errors.NewValidationError(fields)
	}
	key := e.hasher.Key(digits, isoBirth)

	check, err := e.matcher.CheckKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if !check.CanApply {
		metrics.ApplicationsSubmitted.WithLabelValues("duplicate").Inc()
		return nil, errors.NewConflictError(fmt.Sprintf("identity holds application %d (%s)", check.ApplicationID, check.Status))
	}

	app := &models.LoanApplication{
		TrackingNumber:   newTrackingNumber(),
		IdentityKey:      key,
		Status:           models.StatusPending,
		Applicant:        req.Applicant,
		LoanType:         req.LoanType,
		RequestedAmount:  req.RequestedAmount,
		TermDays:         req.TermDays,
		RiskReviewStatus: models.ReviewPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	score := e.assessor.Score(ctx, app, risk.SubmissionContext{
		DeviceFingerprint: req.Device,
		IPAddress:         req.IPAddress,
		IPCountry:         req.IPCountry,
		DeclaredCountry:   req.DeclaredCountry,
		Anonymizing:       req.Anonymizing,
	})
	app.RiskScore = score.Value
	e.obs.RecordRiskScore(ctx, score.Value, string(score.Band))

	err = e.apps.Create(ctx, app, &models.AuditEntry{
		ID:        uuid.New().String(),
		To:        models.StatusPending,
		Actor:     models.ActorSystem,
		Note:      "application submitted",
		CreatedAt: now,
	})
	if stderrors.Is(err, store.ErrDuplicateIdentity) {
		metrics.ApplicationsSubmitted.WithLabelValues("duplicate").Inc()
		return nil, errors.NewConflictError("active application exists for identity")
	}
	if err != nil {
		e.log.Error("create application failed", map[string]interface{}{"error": err})
		return nil, errors.NewQueryExecutionFailedError("create application", err)
	}
	metrics.ApplicationsSubmitted.WithLabelValues("created").Inc()
	span.SetAttributes(attribute.Int64("application.id", app.ID), attribute.String("risk.band", string(score.Band)))

	result := &SubmitResult{
		ApplicationID:  app.ID,
		TrackingNumber: app.TrackingNumber,
		Status:         app.Status,
		RiskScore:      score.Value,
		RiskBand:       score.Band,
	}

	if ra, err := e.assessor.Record(ctx, app, models.CheckTypeSubmission, score); err != nil {
		e.log.Error("risk assessment not recorded", map[string]interface{}{"applicationId": app.ID, "error": err})
	} else {
		result.CheckID = ra.ID
	}

	e.log.Info("application submitted", map[string]interface{}{
		"applicationId":  app.ID,
		"trackingNumber": app.TrackingNumber,
		"riskScore":      score.Value,
		"band":           score.Band,
	})
	e.afterCommit(ctx, app, &models.StatusChangedEvent{
		EventID:        uuid.New().String(),
		ApplicationID:  app.ID,
		TrackingNumber: app.TrackingNumber,
		To:             models.StatusPending,
		Actor:          models.ActorSystem,
		OccurredAt:     now,
	})

	outcome, err := e.decide(ctx, app)
	if err != nil {
		// The application exists; it stays pending for a later evaluation.
		e.log.Error("automatic evaluation failed", map[string]interface{}{"applicationId": app.ID, "error": err})
		return result, nil
	}
	result.Status = outcome.Status
	result.Decision = outcome.Note
	return result, nil
}

func (e *Engine) validateSubmission(req *SubmitRequest, now time.Time) (string, string, []errors.FieldError) {
	var fields []errors.FieldError

	req.Applicant.Name = strings.TrimSpace(req.Applicant.Name)
	req.Applicant.Email = strings.TrimSpace(req.Applicant.Email)
	req.Applicant.Phone = strings.TrimSpace(req.Applicant.Phone)

	a := &req.Applicant
	fields = append(fields, fieldErrors("applicant.", validation.ValidateStruct(a,
		validation.Field(&a.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&a.Email, validation.Required, is.EmailFormat),
		validation.Field(&a.Phone, validation.Required, validation.Match(phonePattern)),
	))...)

	loanTypes := make([]interface{}, len(models.LoanTypes))
	for i, t := range models.LoanTypes {
		loanTypes[i] = t
	}
	fields = append(fields, fieldErrors("", validation.ValidateStruct(req,
		validation.Field(&req.LoanType, validation.Required, validation.In(loanTypes...)),
		validation.Field(&req.RequestedAmount, validation.Required, validation.Min(int64(1))),
		validation.Field(&req.TermDays, validation.Min(minTermDays), validation.Max(maxTermDays)),
	))...)

	digits, isoBirth, idFields := identity.Normalize(req.TaxID, req.BirthDate)
	fields = append(fields, idFields...)
	if len(idFields) == 0 {
		birth, _ := time.Parse("2006-01-02", isoBirth)
		switch {
		case birth.After(now):
			fields = append(fields, errors.FieldError{Field: "birthDate", Code: "IN_FUTURE", Message: "birthDate cannot be in the future"})
		case birth.AddDate(minApplicant, 0, 0).After(now):
			fields = append(fields, errors.FieldError{Field: "birthDate", Code: "UNDERAGE", Message: "applicant must be at least 18"})
		}
	}
	return digits, isoBirth, fields
}

// fieldErrors flattens ozzo validation errors into sorted field errors.
func fieldErrors(prefix string, err error) []errors.FieldError {
	if err == nil {
		return nil
	}
	verrs, ok := err.(validation.Errors)
	if !ok {
		return []errors.FieldError{{Field: strings.TrimSuffix(prefix, "."), Code: "INVALID", Message: err.Error()}}
	}

	names := make([]string, 0, len(verrs))
	for name := range verrs {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]errors.FieldError, 0, len(verrs))
	for _, name := range names {
		code := "INVALID"
		var ve validation.Error
		if stderrors.As(verrs[name], &ve) {
			code = strings.ToUpper(strings.TrimPrefix(ve.Code(), "validation_"))
		}
		out = append(out, errors.FieldError{Field: prefix + name, Code: code, Message: verrs[name].Error()})
	}
	return out
}

func newTrackingNumber() string {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")
	return "LN-" + strings.ToUpper(id[:12])
}
