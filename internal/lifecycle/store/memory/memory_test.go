package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loan-lifecycle/internal/lifecycle/store"
	"loan-lifecycle/internal/models"
)

func pendingApp(identity string) *models.LoanApplication {
	return &models.LoanApplication{
		TrackingNumber: "LN-" + identity,
		IdentityKey:    identity,
		Status:         models.StatusPending,
	}
}

func TestApplications_Create_ConcurrentSameIdentity(t *testing.T) {
	s := NewApplications()
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- s.Create(ctx, pendingApp("same"), nil)
		}()
	}
	wg.Wait()
	close(results)

	var created, duplicates int
	for err := range results {
		switch {
		case err == nil:
			created++
		case errors.Is(err, store.ErrDuplicateIdentity):
			duplicates++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, 19, duplicates)
}

func TestApplications_Create_AllowedAfterTerminal(t *testing.T) {
	s := NewApplications()
	ctx := context.Background()

	first := pendingApp("id-1")
	require.NoError(t, s.Create(ctx, first, nil))

	_, err := s.Update(ctx, first.ID, func(app *models.LoanApplication) (*models.AuditEntry, error) {
		app.Status = models.StatusRejected
		return nil, nil
	})
	require.NoError(t, err)

	assert.NoError(t, s.Create(ctx, pendingApp("id-1"), nil))
}

func TestApplications_Update_Serializes(t *testing.T) {
	s := NewApplications()
	ctx := context.Background()
	app := pendingApp("id-2")
	require.NoError(t, s.Create(ctx, app, nil))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Update(ctx, app.ID, func(a *models.LoanApplication) (*models.AuditEntry, error) {
				a.RiskScore++
				return &models.AuditEntry{ID: fmt.Sprint(a.RiskScore), CreatedAt: time.Now()}, nil
			})
		}()
	}
	wg.Wait()

	got, err := s.Get(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, got.RiskScore)

	history, err := s.History(ctx, app.ID)
	require.NoError(t, err)
	assert.Len(t, history, 50)
}

func TestApplications_Update_NoChangeKeepsRow(t *testing.T) {
	s := NewApplications()
	ctx := context.Background()
	app := pendingApp("id-3")
	require.NoError(t, s.Create(ctx, app, nil))

	got, err := s.Update(ctx, app.ID, func(a *models.LoanApplication) (*models.AuditEntry, error) {
		a.Status = models.StatusApproved
		return nil, store.ErrNoChange
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)

	stored, _ := s.Get(ctx, app.ID)
	assert.Equal(t, models.StatusPending, stored.Status)
}

func TestApplications_Update_NotFound(t *testing.T) {
	_, err := NewApplications().Update(context.Background(), 42, func(*models.LoanApplication) (*models.AuditEntry, error) {
		return nil, nil
	})
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestRisk_Review_OnlyOnce(t *testing.T) {
	s := NewRisk()
	ctx := context.Background()
	a := &models.RiskAssessment{ApplicationID: 1, RiskScore: 90, ReviewStatus: models.ReviewPending}
	require.NoError(t, s.Create(ctx, a))

	pending, _ := s.ListPending(ctx)
	assert.Len(t, pending, 1)

	_, err := s.Review(ctx, a.ID, models.ReviewApproved, "analyst", "", time.Now())
	require.NoError(t, err)

	_, err = s.Review(ctx, a.ID, models.ReviewRejected, "analyst", "", time.Now())
	assert.True(t, errors.Is(err, store.ErrAlreadyReviewed))

	pending, _ = s.ListPending(ctx)
	assert.Empty(t, pending)
}

func TestRules_ListAscendingID(t *testing.T) {
	s := NewRules()
	ctx := context.Background()
	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, s.Create(ctx, &models.AutomationRule{Name: name}))
	}
	require.NoError(t, s.Delete(ctx, 2))

	rules, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, int64(1), rules[0].ID)
	assert.Equal(t, int64(3), rules[1].ID)

	assert.True(t, errors.Is(s.Delete(ctx, 2), store.ErrNotFound))
}

func TestReminders_AppendIdempotentPerCycle(t *testing.T) {
	s := NewReminders()
	ctx := context.Background()
	log := &models.ReminderLog{ID: "r1", ApplicationID: 1, Type: models.ReminderDue7, DueCycle: "2026-03-17"}

	require.NoError(t, s.Append(ctx, log))
	dup := *log
	dup.ID = "r2"
	assert.True(t, errors.Is(s.Append(ctx, &dup), store.ErrReminderExists))

	test := *log
	test.ID = "r3"
	test.IsTest = true
	assert.NoError(t, s.Append(ctx, &test))

	exists, err := s.Exists(ctx, 1, models.ReminderDue7, "2026-03-17")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, s.MarkDelivered(ctx, "r1", true))
	logs, _ := s.List(ctx, 1)
	assert.Len(t, logs, 2)
	assert.True(t, logs[0].Delivered)
}
