package risk

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"loan-lifecycle/internal/common/errors"
	"loan-lifecycle/internal/common/logger"
	"loan-lifecycle/internal/lifecycle/store"
	"loan-lifecycle/internal/models"
)

// Reviewer records the outcome of a manual fraud review. A review is final:
// the store refuses a second one and nothing retries it.
type Reviewer struct {
	store store.RiskStore
	now   func() time.Time
	log   logger.Logger
}

func NewReviewer(s store.RiskStore, log logger.Logger) *Reviewer {
	return &Reviewer{
		store: s,
		now:   time.Now,
		log:   log.With(map[string]interface{}{"component": "fraud-review"}),
	}
}

func (r *Reviewer) Review(ctx context.Context, checkID int64, approved bool, reviewer, notes string) (*models.RiskAssessment, error) {
	if strings.TrimSpace(reviewer) == "" {
		return nil, errors.NewValidationError([]errors.FieldError{{
			Field: "reviewedBy", Code: "REQUIRED", Message: "reviewer is required",
		}})
	}

	status := models.ReviewRejected
	if approved {
		status = models.ReviewApproved
	}

	ra, err := r.store.Review(ctx, checkID, status, reviewer, notes, r.now().UTC())
	switch {
	case stderrors.Is(err, store.ErrNotFound):
		return nil, errors.NewNotFoundError("fraud check", fmt.Sprint(checkID))
	case stderrors.Is(err, store.ErrAlreadyReviewed):
		return nil, errors.NewValidationError([]errors.FieldError{{
			Field: "checkId", Code: "ALREADY_REVIEWED", Message: "fraud check has already been reviewed",
		}})
	case err != nil:
		r.log.Error("fraud review failed", map[string]interface{}{"checkId": checkID, "error": err})
		return nil, errors.NewQueryExecutionFailedError("review fraud check", err)
	}

	r.log.Info("fraud check reviewed", map[string]interface{}{
		"checkId":       checkID,
		"applicationId": ra.ApplicationID,
		"reviewStatus":  ra.ReviewStatus,
		"reviewedBy":    reviewer,
	})
	return ra, nil
}

func (r *Reviewer) ListPending(ctx context.Context) ([]models.RiskAssessment, error) {
	out, err := r.store.ListPending(ctx)
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("list pending reviews", err)
	}
	if out == nil {
		out = []models.RiskAssessment{}
	}
	return out, nil
}
