package transitionloanapplication

import (
	"context"
	"strings"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"loan-lifecycle/internal/common/camunda"
	"loan-lifecycle/internal/common/logger"
	"loan-lifecycle/internal/common/observability"
	"loan-lifecycle/internal/lifecycle"
	"loan-lifecycle/internal/lifecycle/statemachine"
	"loan-lifecycle/internal/models"
)

const (
	TaskType = "transition-loan-application"

	// DefaultActor is recorded when the process does not name one.
	DefaultActor = "workflow"
)

type Transitioner interface {
	Transition(ctx context.Context, req lifecycle.TransitionRequest) (*statemachine.Result, error)
}

type Handler struct {
	engine Transitioner
	runner *camunda.JobRunner
	logger logger.Logger
}

func NewHandler(config *Config, engine Transitioner, obs *observability.Observability, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		engine: engine,
		runner: camunda.NewJobRunner(TaskType, config.Timeout, obs, log),
		logger: log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.runner.Run(client, job, func(ctx context.Context) (interface{}, error) {
		var input Input
		if err := camunda.DecodeVariables(job, &input); err != nil {
			return nil, camunda.ParseError(err)
		}
		return h.Execute(ctx, &input)
	})
}

// Execute applies an explicit transition requested by a process step. The
// transition table still applies; the risk gate does not.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	actor := strings.TrimSpace(input.Actor)
	if actor == "" {
		actor = DefaultActor
	}

	res, err := h.engine.Transition(ctx, lifecycle.TransitionRequest{
		ApplicationID:  input.ApplicationID,
		To:             models.Status(input.TargetState),
		Actor:          actor,
		Note:           input.Note,
		ApprovedAmount: input.ApprovedAmount,
	})
	if err != nil {
		return nil, err
	}

	return &Output{
		ApplicationID:     res.Application.ID,
		PreviousStatus:    string(res.From),
		ApplicationStatus: string(res.Application.Status),
		Changed:           res.Changed,
	}, nil
}
