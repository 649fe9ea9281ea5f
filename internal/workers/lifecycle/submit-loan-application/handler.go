package submitloanapplication

import (
	"context"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"loan-lifecycle/internal/common/camunda"
	"loan-lifecycle/internal/common/logger"
	"loan-lifecycle/internal/common/observability"
	"loan-lifecycle/internal/lifecycle"
	"loan-lifecycle/internal/models"
)

const (
	TaskType = "submit-loan-application"
)

type Submitter interface {
	SubmitApplication(ctx context.Context, req lifecycle.SubmitRequest) (*lifecycle.SubmitResult, error)
}

type Handler struct {
	engine Submitter
	runner *camunda.JobRunner
	logger logger.Logger
}

func NewHandler(config *Config, engine Submitter, obs *observability.Observability, log logger.Logger) *Handler {
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

// Execute submits the application. A duplicate identity surfaces as the
// DUPLICATE_APPLICATION BPMN error so the process can branch on it.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	res, err := h.engine.SubmitApplication(ctx, lifecycle.SubmitRequest{
		Applicant: models.Applicant{
			Name:        input.ApplicantName,
			Email:       input.ApplicantEmail,
			Phone:       input.ApplicantPhone,
			EmailOptOut: input.EmailOptOut,
			SMSOptOut:   input.SMSOptOut,
		},
		TaxID:           input.TaxID,
		BirthDate:       input.BirthDate,
		LoanType:        input.LoanType,
		RequestedAmount: input.RequestedAmount,
		TermDays:        input.TermDays,
		Device:          input.DeviceFingerprint,
		IPAddress:       input.IPAddress,
		IPCountry:       input.IPCountry,
		DeclaredCountry: input.DeclaredCountry,
		Anonymizing:     input.AnonymizingNetwork,
	})
	if err != nil {
		return nil, err
	}

	h.logger.Info("loan application submitted", map[string]interface{}{
		"applicationId":  res.ApplicationID,
		"trackingNumber": res.TrackingNumber,
		"status":         res.Status,
		"riskBand":       res.RiskBand,
	})

	return &Output{
		ApplicationID:     res.ApplicationID,
		TrackingNumber:    res.TrackingNumber,
		ApplicationStatus: string(res.Status),
		RiskScore:         res.RiskScore,
		RiskBand:          string(res.RiskBand),
		FraudCheckID:      res.CheckID,
	}, nil
}
