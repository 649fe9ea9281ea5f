package evaluateloanapplication

import (
	"context"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"loan-lifecycle/internal/common/camunda"
	"loan-lifecycle/internal/common/errors"
	"loan-lifecycle/internal/common/logger"
	"loan-lifecycle/internal/common/observability"
	"loan-lifecycle/internal/lifecycle"
)

const (
	TaskType = "evaluate-loan-application"
)

type Evaluator interface {
	EvaluateApplication(ctx context.Context, id int64) (*lifecycle.EvaluationResult, error)
}

type Handler struct {
	engine Evaluator
	runner *camunda.JobRunner
	logger logger.Logger
}

func NewHandler(config *Config, engine Evaluator, obs *observability.Observability, log logger.Logger) *Handler {
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

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input.ApplicationID <= 0 {
		return nil, errors.NewValidationError([]errors.FieldError{{
			Field: "applicationId", Code: "REQUIRED", Message: "applicationId is required",
		}})
	}

	res, err := h.engine.EvaluateApplication(ctx, input.ApplicationID)
	if err != nil {
		return nil, err
	}

	h.logger.Info("application evaluated", map[string]interface{}{
		"applicationId": res.ApplicationID,
		"status":        res.Status,
		"ruleId":        res.RuleID,
		"applied":       res.Applied,
		"suppressed":    res.Suppressed,
	})

	return &Output{
		ApplicationID:     res.ApplicationID,
		ApplicationStatus: string(res.Status),
		RiskBand:          string(res.RiskBand),
		MatchedRuleID:     res.RuleID,
		RuleAction:        res.Action,
		DecisionApplied:   res.Applied,
		GateSuppressed:    res.Suppressed,
	}, nil
}
