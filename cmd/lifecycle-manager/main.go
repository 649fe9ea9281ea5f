package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"loan-lifecycle/internal/api"
	awsclients "loan-lifecycle/internal/common/aws"
	"loan-lifecycle/internal/common/camunda"
	"loan-lifecycle/internal/common/config"
	"loan-lifecycle/internal/common/database"
	"loan-lifecycle/internal/common/logger"
	"loan-lifecycle/internal/common/observability"
	"loan-lifecycle/internal/lifecycle"
	"loan-lifecycle/internal/lifecycle/fees"
	"loan-lifecycle/internal/lifecycle/identity"
	"loan-lifecycle/internal/lifecycle/notifier"
	"loan-lifecycle/internal/lifecycle/risk"
	"loan-lifecycle/internal/lifecycle/scheduler"
	"loan-lifecycle/internal/lifecycle/search"
	"loan-lifecycle/internal/lifecycle/store/postgres"
	"loan-lifecycle/pkg/ruleset"

	cfp "loan-lifecycle/internal/workers/lifecycle/confirm-fee-payment"
	ela "loan-lifecycle/internal/workers/lifecycle/evaluate-loan-application"
	rrc "loan-lifecycle/internal/workers/lifecycle/run-reminder-check"
	sla "loan-lifecycle/internal/workers/lifecycle/submit-loan-application"
	tla "loan-lifecycle/internal/workers/lifecycle/transition-loan-application"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.NewFromConfig(cfg.Logging).With(
		zap.String("service", cfg.App.Name),
		zap.String("version", cfg.App.Version),
	)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting lifecycle manager...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New(observability.Config{
		ServiceName:    cfg.Observability.ServiceName,
		JaegerEndpoint: cfg.Observability.JaegerEndpoint,
	}, log)
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- PostgreSQL ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	if err := pg.Migrate(ctx); err != nil {
		zapLog.Fatal("schema migration failed", zap.Error(err))
	}
	zapLog.Info("PostgreSQL connected successfully")

	// --- Redis ---
	var redis *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		// Velocity degrades to the velocity_unavailable signal without Redis.
		zapLog.Error("redis unavailable, velocity signals disabled", zap.Error(err))
		redis = nil
	} else {
		defer redis.Close()
		zapLog.Info("Redis connected successfully")
	}

	readiness := map[string]api.CheckFunc{"postgres": pg.Ping}

	deps := lifecycle.Deps{
		Applications:  postgres.NewApplicationStore(pg.DB),
		Risk:          postgres.NewRiskStore(pg.DB),
		Rules:         postgres.NewRuleStore(pg.DB),
		Reminders:     postgres.NewReminderStore(pg.DB),
		Observability: obs,
	}
	if redis != nil {
		window := time.Duration(cfg.Risk.VelocityWindow) * time.Minute
		deps.Velocity = risk.NewVelocityCounter(redis.Client, window)
		readiness["redis"] = redis.Ping
	}

	if deps.Hasher, err = identity.NewHasher(cfg.Identity.Pepper); err != nil {
		zapLog.Fatal("identity hasher", zap.Error(err))
	}
	if deps.Fees, err = fees.NewCalculator(cfg.Fees); err != nil {
		zapLog.Fatal("fee configuration", zap.Error(err))
	}

	// --- Elasticsearch (optional) ---
	if cfg.Database.Elasticsearch.Enabled {
		var esClient *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		if created, err := esClient.EnsureIndex(ctx, search.Mapping); err != nil {
			zapLog.Fatal("elasticsearch index setup failed", zap.Error(err))
		} else if created {
			zapLog.Info("search index created", zap.String("index", esClient.Index()))
		}
		deps.Search = search.NewIndexer(esClient.Client, esClient.Index(), log)
		readiness["elasticsearch"] = esClient.Ping
		zapLog.Info("Elasticsearch connected successfully")
	}

	// --- SES / SNS ---
	aws, err := awsclients.NewClients(ctx, cfg.Integrations.AWS.Region)
	if err != nil {
		zapLog.Fatal("aws clients", zap.Error(err))
	}
	deps.Notifier = notifier.NewAWSNotifier(aws.SES, aws.SNS, notifier.ConfigFrom(cfg.Notifications, cfg.Fees.Currency), log)

	// --- Zeebe (optional) ---
	var zeebe *camunda.Client
	if cfg.Camunda.Enabled {
		err = retryWithBackoff(func() error {
			var err error
			zeebe, err = camunda.NewClientWithConfig(&camunda.ClientConfig{
				GatewayAddress:         cfg.Camunda.BrokerAddress,
				UsePlaintextConnection: true,
				ConnectionTimeout:      10 * time.Second,
				RequestTimeout:         config.GetDuration(cfg.Camunda.RequestTimeout),
				RetryConfig:            camunda.DefaultRetryConfig,
			})
			return err
		}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		defer zeebe.Close()
		deps.Publisher = camunda.NewPublisher(zeebe, log)
		readiness["zeebe"] = zeebe.HealthCheck
		zapLog.Info("Zeebe client connected successfully")
	}

	location, err := time.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		zapLog.Fatal("scheduler timezone", zap.String("timezone", cfg.Scheduler.Timezone), zap.Error(err))
	}

	engine := lifecycle.New(deps, lifecycle.Options{
		DefaultTermDays: cfg.Loans.DefaultTermDays,
		Scheduler: scheduler.Config{
			RunAt:           cfg.Scheduler.RunAt,
			Location:        location,
			DelinquencyDays: cfg.Scheduler.DelinquencyDays,
		},
	}, log)

	if n, err := ruleset.Seed(ctx, cfg.Rules.SeedPath, engine, log); err != nil {
		zapLog.Fatal("rule seed failed", zap.String("path", cfg.Rules.SeedPath), zap.Error(err))
	} else if n > 0 {
		zapLog.Info("automation rules seeded", zap.Int("count", n))
	}

	// --- Workers ---
	var workers []*camunda.Worker
	if zeebe != nil {
		workers = startWorkers(cfg, zeebe, engine, obs, log, zapLog)
	}

	// --- Scheduler ---
	if cfg.Scheduler.Enabled {
		if err := engine.Scheduler().Start(ctx); err != nil {
			zapLog.Fatal("scheduler start failed", zap.Error(err))
		}
		defer engine.Scheduler().Stop()
		zapLog.Info("reminder scheduler started",
			zap.String("runAt", cfg.Scheduler.RunAt),
			zap.String("timezone", cfg.Scheduler.Timezone),
		)
	}

	// --- HTTP ---
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      api.NewHandler(engine, readiness, log).Routes(),
		ReadTimeout:  config.GetDuration(cfg.HTTP.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.HTTP.WriteTimeout),
	}
	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("HTTP server failed", zap.Error(err))
			stop()
		}
	}()

	// --- Graceful Shutdown ---
	<-ctx.Done()
	zapLog.Info("Shutdown signal received, stopping...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("HTTP shutdown", zap.Error(err))
	}
	for _, w := range workers {
		w.Stop(shutdownCtx)
	}
	zapLog.Info("Lifecycle manager stopped gracefully")
}

func startWorkers(
	cfg *config.Config,
	client *camunda.Client,
	engine *lifecycle.Engine,
	obs *observability.Observability,
	log logger.Logger,
	zapLog *zap.Logger,
) []*camunda.Worker {
	handlers := map[string]camunda.JobHandler{
		sla.TaskType: sla.NewHandler(sla.LoadConfig(config.GetWorkerConfig(cfg, sla.TaskType)), engine, obs, log),
		ela.TaskType: ela.NewHandler(ela.LoadConfig(config.GetWorkerConfig(cfg, ela.TaskType)), engine, obs, log),
		tla.TaskType: tla.NewHandler(tla.LoadConfig(config.GetWorkerConfig(cfg, tla.TaskType)), engine, obs, log),
		cfp.TaskType: cfp.NewHandler(cfp.LoadConfig(config.GetWorkerConfig(cfg, cfp.TaskType)), engine, obs, log),
		rrc.TaskType: rrc.NewHandler(rrc.LoadConfig(config.GetWorkerConfig(cfg, rrc.TaskType)), engine, obs, log),
	}

	var workers []*camunda.Worker
	for taskType, handler := range handlers {
		if !config.IsWorkerEnabled(cfg, taskType) {
			zapLog.Info("worker disabled", zap.String("taskType", taskType))
			continue
		}
		wcfg := config.GetWorkerConfig(cfg, taskType)
		workers = append(workers, camunda.NewWorker(
			client.GetClient(),
			taskType,
			wcfg.MaxJobsActive,
			config.GetDuration(wcfg.Timeout),
			handler,
			log,
		))
		zapLog.Info("worker started",
			zap.String("taskType", taskType),
			zap.Int("maxJobsActive", wcfg.MaxJobsActive),
			zap.Int("timeout_ms", wcfg.Timeout),
		)
	}
	return workers
}
