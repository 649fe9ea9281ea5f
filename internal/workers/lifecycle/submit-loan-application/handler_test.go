package submitloanapplication

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loan-lifecycle/internal/common/config"
	"loan-lifecycle/internal/common/errors"
	"loan-lifecycle/internal/common/logger"
	"loan-lifecycle/internal/lifecycle"
	"loan-lifecycle/internal/lifecycle/risk"
	"loan-lifecycle/internal/models"
)

type mockSubmitter struct {
	got    lifecycle.SubmitRequest
	result *lifecycle.SubmitResult
	err    error
}

func (m *mockSubmitter) SubmitApplication(_ context.Context, req lifecycle.SubmitRequest) (*lifecycle.SubmitResult, error) {
	m.got = req
	return m.result, m.err
}

func validInput() *Input {
	return &Input{
		ApplicantName:      "Katherine Johnson",
		ApplicantEmail:     "kj@example.com",
		ApplicantPhone:     "+15550199",
		SMSOptOut:          true,
		TaxID:              "321-54-9876",
		BirthDate:          "1968-08-26",
		LoanType:           models.LoanTypeEducation,
		RequestedAmount:    800000,
		DeviceFingerprint:  "fp-1",
		IPAddress:          "192.0.2.10",
		AnonymizingNetwork: true,
	}
}

func TestHandler_Execute_Success(t *testing.T) {
	engine := &mockSubmitter{result: &lifecycle.SubmitResult{
		ApplicationID:  12,
		TrackingNumber: "LN-ABCDEF012345",
		Status:         models.StatusUnderReview,
		RiskScore:      30,
		RiskBand:       risk.BandLow,
		CheckID:        4,
	}}
	h := NewHandler(LoadConfig(config.WorkerConfig{Timeout: 5000}), engine, nil, logger.NewTestLogger(t))

	out, err := h.Execute(context.Background(), validInput())

	require.NoError(t, err)
	assert.Equal(t, int64(12), out.ApplicationID)
	assert.Equal(t, "under_review", out.ApplicationStatus)
	assert.Equal(t, "low", out.RiskBand)
	assert.Equal(t, int64(4), out.FraudCheckID)

	assert.Equal(t, "Katherine Johnson", engine.got.Applicant.Name)
	assert.True(t, engine.got.Applicant.SMSOptOut)
	assert.True(t, engine.got.Anonymizing)
	assert.Equal(t, "fp-1", engine.got.Device)
}

func TestHandler_Execute_Duplicate(t *testing.T) {
	engine := &mockSubmitter{err: errors.NewConflictError("identity holds application 3 (pending)")}
	h := NewHandler(LoadConfig(config.WorkerConfig{}), engine, nil, logger.NewTestLogger(t))

	out, err := h.Execute(context.Background(), validInput())

	assert.Nil(t, out)
	require.ErrorIs(t, err, errors.ErrConflict)
	bpmn := errors.ConvertToBPMNError(errors.AsStandard(err))
	assert.Equal(t, "DUPLICATE_APPLICATION", bpmn.Code)
	assert.Equal(t, 0, errors.GetRetryCount(errors.AsStandard(err).Code))
}

func TestLoadConfig_DefaultTimeout(t *testing.T) {
	assert.Equal(t, 30*time.Second, LoadConfig(config.WorkerConfig{}).Timeout)
	assert.Equal(t, 2*time.Second, LoadConfig(config.WorkerConfig{Timeout: 2000}).Timeout)
}
