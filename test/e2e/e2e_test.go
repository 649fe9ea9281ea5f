//go:build e2e

// Package e2e drives the lifecycle engine against real PostgreSQL, Redis and
// (optionally) Zeebe. Run with: go test -tags e2e ./test/e2e/...
package e2e

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loan-lifecycle/internal/common/config"
	"loan-lifecycle/internal/common/database"
	"loan-lifecycle/internal/common/errors"
	"loan-lifecycle/internal/common/logger"
	"loan-lifecycle/internal/lifecycle"
	"loan-lifecycle/internal/lifecycle/fees"
	"loan-lifecycle/internal/lifecycle/identity"
	"loan-lifecycle/internal/lifecycle/notifier"
	"loan-lifecycle/internal/lifecycle/risk"
	"loan-lifecycle/internal/lifecycle/scheduler"
	"loan-lifecycle/internal/lifecycle/store/postgres"
	"loan-lifecycle/internal/models"
)

// quietNotifier accepts every notification without sending anything.
type quietNotifier struct{}

func (quietNotifier) NotifyPaymentDueReminder(context.Context, *models.LoanApplication, notifier.Info) notifier.Result {
	return notifier.Result{Success: true}
}
func (quietNotifier) NotifyPaymentOverdue(context.Context, *models.LoanApplication, notifier.Info) notifier.Result {
	return notifier.Result{Success: true}
}
func (quietNotifier) NotifyDelinquency(context.Context, *models.LoanApplication, notifier.Info) notifier.Result {
	return notifier.Result{Success: true}
}
func (quietNotifier) NotifyPaymentReceived(context.Context, *models.LoanApplication, notifier.Info) notifier.Result {
	return notifier.Result{Success: true}
}
func (quietNotifier) NotifyPaymentFailed(context.Context, *models.LoanApplication, notifier.Info) notifier.Result {
	return notifier.Result{Success: true}
}

type env struct {
	cfg    *config.Config
	pg     *database.PostgresClient
	redis  *database.RedisClient
	engine *lifecycle.Engine
}

func setup(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		t.Skipf("config unavailable: %v", err)
	}

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	require.NoError(t, err, "PostgreSQL connection failed")
	if err := pg.Ping(ctx); err != nil {
		t.Skipf("PostgreSQL unreachable: %v", err)
	}
	t.Cleanup(func() { pg.Close() })
	require.NoError(t, pg.Migrate(ctx))

	rdb, err := database.NewRedis(cfg.Database.Redis)
	require.NoError(t, err, "Redis client creation failed")
	if err := rdb.Ping(ctx); err != nil {
		t.Skipf("Redis unreachable: %v", err)
	}
	t.Cleanup(func() { rdb.Close() })

	hasher, err := identity.NewHasher(cfg.Identity.Pepper)
	require.NoError(t, err)
	calc, err := fees.NewCalculator(cfg.Fees)
	require.NoError(t, err)

	log := logger.NewTestLogger(t)
	engine := lifecycle.New(lifecycle.Deps{
		Applications: postgres.NewApplicationStore(pg.DB),
		Risk:         postgres.NewRiskStore(pg.DB),
		Rules:        postgres.NewRuleStore(pg.DB),
		Reminders:    postgres.NewReminderStore(pg.DB),
		Hasher:       hasher,
		Velocity:     risk.NewVelocityCounter(rdb.Client, time.Hour),
		Fees:         calc,
		Notifier:     quietNotifier{},
	}, lifecycle.Options{
		DefaultTermDays: cfg.Loans.DefaultTermDays,
		Scheduler:       scheduler.Config{RunAt: "09:00", Location: time.UTC, DelinquencyDays: 30},
	}, log)

	return &env{cfg: cfg, pg: pg, redis: rdb, engine: engine}
}

// uniqueTaxID keeps runs against a shared database independent.
func uniqueTaxID() string {
	n := time.Now().UnixNano() % 1_000_000_000
	return fmt.Sprintf("%09d", n)
}

func TestLoanLifecycle(t *testing.T) {
	e := setup(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	taxID := uniqueTaxID()
	req := lifecycle.SubmitRequest{
		Applicant:       models.Applicant{Name: "E2E Borrower", Email: "e2e@example.com", Phone: "+15550199"},
		TaxID:           taxID,
		BirthDate:       "1985-06-15",
		LoanType:        models.LoanTypePersonal,
		RequestedAmount: 250000,
		Device:          "e2e-" + taxID,
		IPAddress:       "203.0.113.10",
	}

	submitted, err := e.engine.SubmitApplication(ctx, req)
	require.NoError(t, err)
	assert.NotEmpty(t, submitted.TrackingNumber)
	t.Logf("submitted application %d (%s) band=%s status=%s",
		submitted.ApplicationID, submitted.TrackingNumber, submitted.RiskBand, submitted.Status)

	dup, err := e.engine.CheckDuplicate(ctx, taxID, "1985-06-15")
	require.NoError(t, err)
	assert.True(t, dup.Exists)
	assert.False(t, dup.CanApply)

	_, err = e.engine.SubmitApplication(ctx, req)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrConflict)

	if submitted.Status == models.StatusPending {
		_, err = e.engine.Transition(ctx, lifecycle.TransitionRequest{
			ApplicationID: submitted.ApplicationID,
			To:            models.StatusRejected,
			Actor:         "e2e",
			Note:          "cleanup",
		})
		require.NoError(t, err)
	}

	history, err := e.engine.History(ctx, submitted.ApplicationID)
	require.NoError(t, err)
	assert.NotEmpty(t, history)

	result, err := e.engine.RunReminderCheck(ctx)
	require.NoError(t, err)
	t.Logf("reminder run: scanned=%d sent=%d", result.Scanned, result.Sent)
}

func TestZeebeTopology(t *testing.T) {
	address := os.Getenv("ZEEBE_ADDRESS")
	if address == "" {
		t.Skip("ZEEBE_ADDRESS not set")
	}
	client, err := zbc.NewClient(&zbc.ClientConfig{GatewayAddress: address, UsePlaintextConnection: true})
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err = client.NewTopologyCommand().Send(ctx)
	assert.NoError(t, err, "Zeebe topology request failed")
}
