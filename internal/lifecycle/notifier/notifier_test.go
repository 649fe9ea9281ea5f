package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loan-lifecycle/internal/common/logger"
	"loan-lifecycle/internal/models"
)

type MockSESService struct {
	mu            sync.Mutex
	calls         []*ses.SendEmailInput
	SendEmailFunc func(ctx context.Context, params *ses.SendEmailInput) (*ses.SendEmailOutput, error)
}

func (m *MockSESService) SendEmail(ctx context.Context, params *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	m.mu.Lock()
	m.calls = append(m.calls, params)
	m.mu.Unlock()
	if m.SendEmailFunc != nil {
		return m.SendEmailFunc(ctx, params)
	}
	return &ses.SendEmailOutput{}, nil
}

type MockSNSService struct {
	mu          sync.Mutex
	calls       []*sns.PublishInput
	PublishFunc func(ctx context.Context, params *sns.PublishInput) (*sns.PublishOutput, error)
}

func (m *MockSNSService) Publish(ctx context.Context, params *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	m.mu.Lock()
	m.calls = append(m.calls, params)
	m.mu.Unlock()
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, params)
	}
	return &sns.PublishOutput{}, nil
}

func testConfig() Config {
	return Config{
		EmailEnabled: true,
		FromEmail:    "loans@example.com",
		SMSEnabled:   true,
		Timeout:      time.Second,
		MaxAttempts:  2,
		RetryBackoff: time.Millisecond,
		Currency:     "USD",
	}
}

func testApp() *models.LoanApplication {
	due := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	return &models.LoanApplication{
		ID:             9,
		TrackingNumber: "LN-ABC",
		ApprovedAmount: 500000,
		DueDate:        &due,
		Applicant:      models.Applicant{Name: "Ada", Email: "ada@example.com", Phone: "+15550100"},
	}
}

func TestNotifyPaymentDueReminder_BothChannels(t *testing.T) {
	sesMock, snsMock := &MockSESService{}, &MockSNSService{}
	n := NewAWSNotifier(sesMock, snsMock, testConfig(), logger.NewTestLogger(t))

	res := n.NotifyPaymentDueReminder(context.Background(), testApp(), Info{DaysUntilDue: 3})

	assert.True(t, res.Success)
	assert.Equal(t, []string{ChannelEmail, ChannelSMS}, res.Delivered)
	require.Len(t, sesMock.calls, 1)
	assert.Equal(t, "Payment due in 3 day(s)", *sesMock.calls[0].Message.Subject.Data)
	assert.Contains(t, *sesMock.calls[0].Message.Body.Text.Data, "5000.00 USD")
	assert.Equal(t, "+15550100", *snsMock.calls[0].PhoneNumber)
}

func TestNotify_RespectsOptOut(t *testing.T) {
	sesMock, snsMock := &MockSESService{}, &MockSNSService{}
	n := NewAWSNotifier(sesMock, snsMock, testConfig(), logger.NewTestLogger(t))
	app := testApp()
	app.Applicant.SMSOptOut = true

	res := n.NotifyPaymentOverdue(context.Background(), app, Info{DaysUntilDue: -2})

	assert.True(t, res.Success)
	assert.Equal(t, []string{ChannelEmail}, res.Delivered)
	assert.Empty(t, snsMock.calls)
}

func TestNotifyDelinquency_IgnoresOptOutAndDisabledChannels(t *testing.T) {
	sesMock, snsMock := &MockSESService{}, &MockSNSService{}
	cfg := testConfig()
	cfg.SMSEnabled = false
	n := NewAWSNotifier(sesMock, snsMock, cfg, logger.NewTestLogger(t))
	app := testApp()
	app.Applicant.EmailOptOut = true
	app.Applicant.SMSOptOut = true

	res := n.NotifyDelinquency(context.Background(), app, Info{DaysUntilDue: -35})

	assert.True(t, res.Success)
	assert.Equal(t, []string{ChannelEmail, ChannelSMS}, res.Delivered)
	assert.Contains(t, *sesMock.calls[0].Message.Body.Text.Data, "35 days past due")
}

func TestNotify_RetriesThenReportsFailure(t *testing.T) {
	sesMock := &MockSESService{SendEmailFunc: func(context.Context, *ses.SendEmailInput) (*ses.SendEmailOutput, error) {
		return nil, errors.New("throttled")
	}}
	snsMock := &MockSNSService{}
	n := NewAWSNotifier(sesMock, snsMock, testConfig(), logger.NewTestLogger(t))

	res := n.NotifyPaymentReceived(context.Background(), testApp(), Info{})

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "email")
	assert.Equal(t, []string{ChannelSMS}, res.Delivered)
	assert.Len(t, sesMock.calls, 2)
}

func TestNotify_RecoversOnSecondAttempt(t *testing.T) {
	attempts := 0
	snsMock := &MockSNSService{PublishFunc: func(context.Context, *sns.PublishInput) (*sns.PublishOutput, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("transient")
		}
		return &sns.PublishOutput{}, nil
	}}
	cfg := testConfig()
	cfg.EmailEnabled = false
	n := NewAWSNotifier(&MockSESService{}, snsMock, cfg, logger.NewTestLogger(t))

	res := n.NotifyPaymentFailed(context.Background(), testApp(), Info{Reason: "card declined"})

	assert.True(t, res.Success)
	assert.Equal(t, 2, attempts)
	assert.Contains(t, *snsMock.calls[0].Message, "card declined")
}

func TestNotify_TimeoutDegradesToFailure(t *testing.T) {
	sesMock := &MockSESService{SendEmailFunc: func(ctx context.Context, _ *ses.SendEmailInput) (*ses.SendEmailOutput, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	cfg := testConfig()
	cfg.SMSEnabled = false
	cfg.Timeout = 20 * time.Millisecond
	n := NewAWSNotifier(sesMock, &MockSNSService{}, cfg, logger.NewTestLogger(t))

	start := time.Now()
	res := n.NotifyPaymentDueReminder(context.Background(), testApp(), Info{DaysUntilDue: 1})

	assert.False(t, res.Success)
	assert.Less(t, time.Since(start), time.Second)
}

func TestNotify_NoDeliverableChannel(t *testing.T) {
	cfg := testConfig()
	cfg.EmailEnabled = false
	cfg.SMSEnabled = false
	n := NewAWSNotifier(&MockSESService{}, &MockSNSService{}, cfg, logger.NewTestLogger(t))

	res := n.NotifyPaymentDueReminder(context.Background(), testApp(), Info{DaysUntilDue: 7})

	assert.False(t, res.Success)
	assert.Equal(t, "no deliverable channel", res.Error)
}
