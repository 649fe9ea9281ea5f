package risk

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loan-lifecycle/internal/common/errors"
	"loan-lifecycle/internal/common/logger"
	"loan-lifecycle/internal/lifecycle/store/memory"
	"loan-lifecycle/internal/models"
)

func TestReviewer_Review(t *testing.T) {
	ctx := context.Background()
	risks := memory.NewRisk()
	ra := &models.RiskAssessment{ApplicationID: 1, RiskScore: 85, ReviewStatus: models.ReviewPending}
	require.NoError(t, risks.Create(ctx, ra))
	r := NewReviewer(risks, logger.NewTestLogger(t))

	pending, err := r.ListPending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	got, err := r.Review(ctx, ra.ID, false, "analyst-2", "synthetic identity")
	require.NoError(t, err)
	assert.Equal(t, models.ReviewRejected, got.ReviewStatus)
	assert.Equal(t, "synthetic identity", got.ReviewNotes)

	_, err = r.Review(ctx, ra.ID, true, "analyst-3", "")
	assert.ErrorIs(t, err, errors.ErrValidation)
	std := errors.AsStandard(err)
	require.Len(t, std.Fields, 1)
	assert.Equal(t, "ALREADY_REVIEWED", std.Fields[0].Code)

	pending, _ = r.ListPending(ctx)
	assert.Empty(t, pending)
}

func TestReviewer_Review_NotFoundAndMissingReviewer(t *testing.T) {
	r := NewReviewer(memory.NewRisk(), logger.NewTestLogger(t))

	_, err := r.Review(context.Background(), 404, true, "analyst-1", "")
	assert.ErrorIs(t, err, errors.ErrNotFound)

	_, err = r.Review(context.Background(), 1, true, " ", "")
	assert.ErrorIs(t, err, errors.ErrValidation)
}
