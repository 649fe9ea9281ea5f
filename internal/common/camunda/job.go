package camunda

import (
	"context"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"go.opentelemetry.io/otel/attribute"

	"loan-lifecycle/internal/common/errors"
	"loan-lifecycle/internal/common/logger"
	"loan-lifecycle/internal/common/metrics"
	"loan-lifecycle/internal/common/observability"
)

const reportTimeout = 10 * time.Second

// JobFunc executes one job and returns the completion variables.
type JobFunc func(ctx context.Context) (interface{}, error)

// JobRunner wraps a handler's business call with the timeout, metrics and
// error reporting every lifecycle worker shares.
type JobRunner struct {
	taskType string
	timeout  time.Duration
	errors   *errors.ErrorHandler
	obs      *observability.Observability
	log      logger.Logger
}

func NewJobRunner(taskType string, timeout time.Duration, obs *observability.Observability, log logger.Logger) *JobRunner {
	if obs == nil {
		obs = &observability.Observability{}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &JobRunner{
		taskType: taskType,
		timeout:  timeout,
		errors:   errors.NewErrorHandler(log),
		obs:      obs,
		log:      log,
	}
}

func (r *JobRunner) Run(client worker.JobClient, job entities.Job, fn JobFunc) {
	start := time.Now()
	r.log.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
		"retries":     job.Retries,
	})

	gauge := metrics.WorkerJobsActive.WithLabelValues(r.taskType)
	gauge.Inc()
	defer gauge.Dec()

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	ctx, span := r.obs.StartSpan(ctx, "job."+r.taskType,
		attribute.Int64("job.key", job.Key),
		attribute.Int64("process.instance_key", job.ProcessInstanceKey),
	)
	defer span.End()

	output, err := fn(ctx)

	reportCtx, cancelReport := context.WithTimeout(context.Background(), reportTimeout)
	defer cancelReport()

	status := "completed"
	if err != nil {
		status = "failed"
		code := errors.AsStandard(err).Code
		span.RecordError(err)
		metrics.WorkerJobsFailed.WithLabelValues(r.taskType, string(code)).Inc()
		r.errors.HandleJobError(reportCtx, client, job, err)
	} else {
		metrics.WorkerJobsCompleted.WithLabelValues(r.taskType).Inc()
		CompleteJob(reportCtx, client, job, output, r.log)
	}

	elapsed := time.Since(start)
	metrics.WorkerJobDuration.WithLabelValues(r.taskType).Observe(elapsed.Seconds())
	r.obs.RecordJobProcessed(ctx, status)
	r.obs.RecordJobDuration(ctx, elapsed, status)
}

// ParseError is what a handler returns when the job variables do not decode.
func ParseError(err error) error {
	return errors.NewValidationError([]errors.FieldError{{
		Field: "variables", Code: "PARSE_ERROR", Message: err.Error(),
	}})
}
