package runremindercheck

import (
	"context"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"loan-lifecycle/internal/common/camunda"
	"loan-lifecycle/internal/common/logger"
	"loan-lifecycle/internal/common/observability"
	"loan-lifecycle/internal/lifecycle/scheduler"
)

const (
	TaskType = "run-reminder-check"
)

type ReminderRunner interface {
	RunReminderCheck(ctx context.Context) (*scheduler.Result, error)
}

type Handler struct {
	engine ReminderRunner
	runner *camunda.JobRunner
	logger logger.Logger
}

func NewHandler(config *Config, engine ReminderRunner, obs *observability.Observability, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		engine: engine,
		runner: camunda.NewJobRunner(TaskType, config.Timeout, obs, log),
		logger: log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.runner.Run(client, job, func(ctx context.Context) (interface{}, error) {
		return h.Execute(ctx, &Input{})
	})
}

// Execute triggers an on-demand scan. A scan already in progress makes this
// one a skipped no-op, which completes the job normally.
func (h *Handler) Execute(ctx context.Context, _ *Input) (*Output, error) {
	res, err := h.engine.RunReminderCheck(ctx)
	if err != nil {
		return nil, err
	}
	return &Output{
		LoansScanned:         res.Scanned,
		RemindersSent:        res.Sent,
		RemindersUndelivered: res.Undelivered,
		LoansFailed:          res.Failed,
		Skipped:              res.Skipped,
	}, nil
}
