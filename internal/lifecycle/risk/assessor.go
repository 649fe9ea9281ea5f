package risk

import (
	"context"
	"time"

	"loan-lifecycle/internal/common/logger"
	"loan-lifecycle/internal/common/metrics"
	"loan-lifecycle/internal/lifecycle/store"
	"loan-lifecycle/internal/models"
)

type velocityRecorder interface {
	Record(ctx context.Context, keys VelocityKeys, member string) (Velocity, error)
}

// Assessor scores a submission and persists the RiskAssessment.
type Assessor struct {
	velocity velocityRecorder
	store    store.RiskStore
	now      func() time.Time
	log      logger.Logger
}

func NewAssessor(velocity velocityRecorder, s store.RiskStore, log logger.Logger) *Assessor {
	return &Assessor{
		velocity: velocity,
		store:    s,
		now:      time.Now,
		log:      log.With(map[string]interface{}{"component": "risk-assessor"}),
	}
}

func (a *Assessor) WithClock(now func() time.Time) *Assessor {
	a.now = now
	return a
}

// Score computes the score without persisting. A velocity backend failure
// degrades to the velocity_unavailable signal instead of failing submission.
func (a *Assessor) Score(ctx context.Context, app *models.LoanApplication, sc SubmissionContext) Score {
	var v Velocity
	if a.velocity == nil {
		v.Unknown = true
	} else {
		var err error
		v, err = a.velocity.Record(ctx, VelocityKeys{
			Identity: app.IdentityKey,
			Device:   sc.DeviceFingerprint,
			IP:       sc.IPAddress,
		}, app.TrackingNumber)
		if err != nil {
			a.log.Warn("velocity lookup failed", map[string]interface{}{
				"trackingNumber": app.TrackingNumber,
				"error":          err,
			})
			v = Velocity{Unknown: true}
		}
	}

	s := Evaluate(sc, v)
	metrics.RiskBands.WithLabelValues(string(s.Band)).Inc()
	return s
}

// Record persists a pending assessment for the scored application.
func (a *Assessor) Record(ctx context.Context, app *models.LoanApplication, checkType string, s Score) (*models.RiskAssessment, error) {
	ra := &models.RiskAssessment{
		ApplicationID: app.ID,
		UserRef:       app.TrackingNumber,
		CheckType:     checkType,
		RiskScore:     s.Value,
		FraudSignals:  s.Signals,
		ReviewStatus:  models.ReviewPending,
		CreatedAt:     a.now().UTC(),
	}
	if err := a.store.Create(ctx, ra); err != nil {
		return nil, err
	}
	a.log.Info("risk assessed", map[string]interface{}{
		"applicationId": app.ID,
		"checkId":       ra.ID,
		"riskScore":     s.Value,
		"band":          s.Band,
		"signals":       s.Signals,
	})
	return ra, nil
}
