package statemachine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loan-lifecycle/internal/common/errors"
	"loan-lifecycle/internal/common/logger"
	"loan-lifecycle/internal/lifecycle/store/memory"
	"loan-lifecycle/internal/models"
)

type flatFee struct{ amount int64 }

func (f flatFee) Fee(int64) int64 { return f.amount }

var t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func setup(t *testing.T, status models.Status) (*Machine, *memory.Applications, int64) {
	t.Helper()
	apps := memory.NewApplications()
	app := &models.LoanApplication{
		TrackingNumber:  "LN-TEST",
		IdentityKey:     "k",
		Status:          status,
		RequestedAmount: 500000,
		TermDays:        30,
		CreatedAt:       t0,
		UpdatedAt:       t0,
	}
	require.NoError(t, apps.Create(context.Background(), app, nil))

	clock := t0
	m := New(apps, flatFee{amount: 12500}, logger.NewTestLogger(t)).WithClock(func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	})
	return m, apps, app.ID
}

func TestCanTransition_Table(t *testing.T) {
	tests := []struct {
		from, to models.Status
		want     bool
	}{
		{models.StatusPending, models.StatusApproved, true},
		{models.StatusPending, models.StatusFeePending, false},
		{models.StatusUnderReview, models.StatusApproved, true},
		{models.StatusUnderReview, models.StatusPending, false},
		{models.StatusApproved, models.StatusFeePending, true},
		{models.StatusFeePending, models.StatusFeePaid, true},
		{models.StatusFeePaid, models.StatusCancelled, false},
		{models.StatusDisbursed, models.StatusCurrent, true},
		{models.StatusCurrent, models.StatusDelinquent, false},
		{models.StatusOverdue, models.StatusCurrent, true},
		{models.StatusOverdue, models.StatusDelinquent, true},
		{models.StatusDelinquent, models.StatusCompleted, true},
		{models.StatusDelinquent, models.StatusCurrent, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestTerminalStatesHaveNoTargets(t *testing.T) {
	for _, s := range models.AllStatuses {
		if !s.IsTerminal() {
			continue
		}
		assert.Empty(t, Targets(s), s)
		for _, to := range models.AllStatuses {
			assert.False(t, CanTransition(s, to), "%s -> %s", s, to)
		}
	}
}

func TestHasIncomingEdge(t *testing.T) {
	assert.False(t, HasIncomingEdge(models.StatusPending))
	assert.True(t, HasIncomingEdge(models.StatusDelinquent))
}

func TestTransition_ApprovalSetsAmountsAndTimestamp(t *testing.T) {
	m, _, id := setup(t, models.StatusPending)

	res, err := m.Transition(context.Background(), Request{ApplicationID: id, To: models.StatusApproved, Actor: models.ActorRuleEngine})

	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, models.StatusPending, res.From)
	app := res.Application
	assert.Equal(t, models.StatusApproved, app.Status)
	assert.Equal(t, int64(500000), app.ApprovedAmount)
	assert.Equal(t, int64(12500), app.ProcessingFeeAmount)
	require.NotNil(t, app.ApprovedAt)
	assert.True(t, app.UpdatedAt.After(t0))
	assert.Nil(t, app.ClosedAt)
}

func TestTransition_ApprovedAmountOverride(t *testing.T) {
	m, _, id := setup(t, models.StatusUnderReview)

	res, err := m.Transition(context.Background(), Request{ApplicationID: id, To: models.StatusApproved, Actor: "admin-7", ApprovedAmount: 300000})

	require.NoError(t, err)
	assert.Equal(t, int64(300000), res.Application.ApprovedAmount)
}

func TestTransition_DisbursementSetsDueDate(t *testing.T) {
	m, _, id := setup(t, models.StatusFeePaid)

	res, err := m.Transition(context.Background(), Request{ApplicationID: id, To: models.StatusDisbursed, Actor: "admin-1"})

	require.NoError(t, err)
	app := res.Application
	require.NotNil(t, app.DisbursedAt)
	require.NotNil(t, app.DueDate)
	assert.Equal(t, time.Date(2026, 5, 31, 0, 0, 0, 0, time.UTC), *app.DueDate)
}

func TestTransition_DisbursementDueDateUsesLocalCalendar(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	m, _, id := setup(t, models.StatusFeePaid)
	// 22:30 on May 1 in New York, already May 2 in UTC.
	m.WithLocation(ny).WithClock(func() time.Time { return time.Date(2026, 5, 2, 2, 30, 0, 0, time.UTC) })

	res, err := m.Transition(context.Background(), Request{ApplicationID: id, To: models.StatusDisbursed, Actor: "admin-1"})

	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 5, 31, 0, 0, 0, 0, time.UTC), *res.Application.DueDate)
}

func TestTransition_TerminalSetsClosedAt(t *testing.T) {
	m, _, id := setup(t, models.StatusPending)

	res, err := m.Transition(context.Background(), Request{ApplicationID: id, To: models.StatusRejected, Actor: models.ActorRuleEngine, Note: "rule 4"})

	require.NoError(t, err)
	assert.NotNil(t, res.Application.ClosedAt)
}

func TestTransition_IllegalEdgeLeavesStatus(t *testing.T) {
	m, apps, id := setup(t, models.StatusPending)

	_, err := m.Transition(context.Background(), Request{ApplicationID: id, To: models.StatusDisbursed, Actor: "admin-1"})

	assert.ErrorIs(t, err, errors.ErrInvalidTransition)
	app, _ := apps.Get(context.Background(), id)
	assert.Equal(t, models.StatusPending, app.Status)
	history, _ := apps.History(context.Background(), id)
	assert.Empty(t, history)
}

func TestTransition_FromTerminalAlwaysFails(t *testing.T) {
	for _, terminal := range []models.Status{models.StatusRejected, models.StatusCancelled, models.StatusCompleted} {
		m, _, id := setup(t, terminal)
		for _, to := range models.AllStatuses {
			_, err := m.Transition(context.Background(), Request{ApplicationID: id, To: to, Actor: "admin-1"})
			assert.ErrorIs(t, err, errors.ErrInvalidTransition, "%s -> %s", terminal, to)
		}
	}
}

func TestTransition_UnknownTargetIsValidationError(t *testing.T) {
	m, _, id := setup(t, models.StatusPending)

	_, err := m.Transition(context.Background(), Request{ApplicationID: id, To: "archived", Actor: "admin-1"})

	assert.ErrorIs(t, err, errors.ErrValidation)
}

func TestTransition_NotFound(t *testing.T) {
	m, _, _ := setup(t, models.StatusPending)

	_, err := m.Transition(context.Background(), Request{ApplicationID: 999, To: models.StatusApproved, Actor: "admin-1"})

	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestTransition_WritesAuditEntry(t *testing.T) {
	m, apps, id := setup(t, models.StatusPending)
	ctx := context.Background()

	_, err := m.Transition(ctx, Request{ApplicationID: id, To: models.StatusUnderReview, Actor: models.ActorRuleEngine, Note: "held"})
	require.NoError(t, err)

	history, err := apps.History(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.StatusPending, history[0].From)
	assert.Equal(t, models.StatusUnderReview, history[0].To)
	assert.Equal(t, "held", history[0].Note)
	assert.NotEmpty(t, history[0].ID)
}

func TestTransition_ExpectFrom_LoserNoOpsWhenTargetReached(t *testing.T) {
	m, _, id := setup(t, models.StatusOverdue)
	ctx := context.Background()
	req := Request{
		ApplicationID: id,
		To:            models.StatusDelinquent,
		Actor:         models.ActorScheduler,
		ExpectFrom:    []models.Status{models.StatusOverdue},
	}

	first, err := m.Transition(ctx, req)
	require.NoError(t, err)
	assert.True(t, first.Changed)

	second, err := m.Transition(ctx, req)
	require.NoError(t, err)
	assert.False(t, second.Changed)
	assert.Equal(t, models.StatusDelinquent, second.Application.Status)
}

func TestTransition_ExpectFrom_ConflictWhenMovedElsewhere(t *testing.T) {
	m, _, id := setup(t, models.StatusPending)
	ctx := context.Background()

	_, err := m.Transition(ctx, Request{ApplicationID: id, To: models.StatusUnderReview, Actor: "admin-1"})
	require.NoError(t, err)

	_, err = m.Transition(ctx, Request{
		ApplicationID: id,
		To:            models.StatusApproved,
		Actor:         models.ActorRuleEngine,
		ExpectFrom:    []models.Status{models.StatusPending},
	})
	assert.ErrorIs(t, err, errors.ErrTransitionConflict)
}

func TestTransition_ExpectFrom_IllegalEdgeFromNewStateIsInvalid(t *testing.T) {
	m, apps, id := setup(t, models.StatusPending)
	ctx := context.Background()

	_, err := m.Transition(ctx, Request{ApplicationID: id, To: models.StatusCancelled, Actor: "admin-1"})
	require.NoError(t, err)

	_, err = m.Transition(ctx, Request{
		ApplicationID: id,
		To:            models.StatusApproved,
		Actor:         models.ActorRuleEngine,
		ExpectFrom:    []models.Status{models.StatusPending},
	})
	assert.ErrorIs(t, err, errors.ErrInvalidTransition)
	assert.NotErrorIs(t, err, errors.ErrTransitionConflict)

	app, err := apps.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, app.Status)
}

func TestTransition_ExpectFrom_FeePaidOnApprovedIsInvalid(t *testing.T) {
	m, _, id := setup(t, models.StatusApproved)

	_, err := m.Transition(context.Background(), Request{
		ApplicationID: id,
		To:            models.StatusFeePaid,
		Actor:         models.ActorPaymentWebhook,
		ExpectFrom:    []models.Status{models.StatusFeePending},
	})

	assert.ErrorIs(t, err, errors.ErrInvalidTransition)
}

func TestTransition_ConcurrentTriggersSerialize(t *testing.T) {
	m, apps, id := setup(t, models.StatusPending)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for _, to := range []models.Status{models.StatusApproved, models.StatusRejected} {
		wg.Add(1)
		go func(to models.Status) {
			defer wg.Done()
			_, err := m.Transition(ctx, Request{
				ApplicationID: id,
				To:            to,
				Actor:         models.ActorRuleEngine,
				ExpectFrom:    []models.Status{models.StatusPending},
			})
			results <- err
		}(to)
	}
	wg.Wait()
	close(results)

	// approved and rejected are not reachable from each other, so the loser
	// sees an invalid edge rather than a stale source.
	var ok, losers int
	for err := range results {
		if err == nil {
			ok++
		} else {
			assert.ErrorIs(t, err, errors.ErrInvalidTransition)
			losers++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, losers)

	history, _ := apps.History(ctx, id)
	assert.Len(t, history, 1)
}
