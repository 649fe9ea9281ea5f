package confirmfeepayment

import (
	"context"
	"encoding/json"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"loan-lifecycle/internal/common/camunda"
	"loan-lifecycle/internal/common/logger"
	"loan-lifecycle/internal/common/observability"
	"loan-lifecycle/internal/lifecycle"
	"loan-lifecycle/internal/models"
)

const (
	TaskType = "confirm-fee-payment"
)

type PaymentHandler interface {
	HandlePaymentEvent(ctx context.Context, ev lifecycle.PaymentEvent) (*lifecycle.PaymentResult, error)
}

type Handler struct {
	engine PaymentHandler
	runner *camunda.JobRunner
	logger logger.Logger
}

func NewHandler(config *Config, engine PaymentHandler, obs *observability.Observability, log logger.Logger) *Handler {
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

// Execute feeds the payment outcome through the same schema check as the
// HTTP payment feed before handing it to the engine.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	raw, err := json.Marshal(lifecycle.PaymentEvent{
		ApplicationID: input.ApplicationID,
		Outcome:       input.Outcome,
		Reference:     input.Reference,
		Reason:        input.Reason,
	})
	if err != nil {
		return nil, camunda.ParseError(err)
	}
	ev, err := lifecycle.ParsePaymentEvent(raw)
	if err != nil {
		return nil, err
	}

	res, err := h.engine.HandlePaymentEvent(ctx, *ev)
	if err != nil {
		return nil, err
	}

	if !res.Notification.Success {
		h.logger.Warn("borrower payment notification not delivered", map[string]interface{}{
			"applicationId": res.ApplicationID,
			"outcome":       input.Outcome,
			"error":         res.Notification.Error,
		})
	}

	return &Output{
		ApplicationID:     res.ApplicationID,
		ApplicationStatus: string(res.Status),
		FeePaid:           res.Status == models.StatusFeePaid,
		BorrowerNotified:  res.Notification.Success,
	}, nil
}
