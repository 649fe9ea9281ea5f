// Package notifier delivers borrower notifications over SES email and SNS
// SMS. Delivery never fails the caller: every method returns a Result.
package notifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/shopspring/decimal"

	awsclients "loan-lifecycle/internal/common/aws"
	"loan-lifecycle/internal/common/config"
	"loan-lifecycle/internal/common/errors"
	"loan-lifecycle/internal/common/logger"
	"loan-lifecycle/internal/common/metrics"
	"loan-lifecycle/internal/models"
)

type Kind string

const (
	KindDueReminder     Kind = "payment_due_reminder"
	KindOverdue         Kind = "payment_overdue"
	KindDelinquency     Kind = "delinquency"
	KindPaymentReceived Kind = "payment_received"
	KindPaymentFailed   Kind = "payment_failed"
)

const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

type Result struct {
	Success   bool     `json:"success"`
	Error     string   `json:"error,omitempty"`
	Delivered []string `json:"delivered,omitempty"`
}

// Info carries the per-notification context rendered into the message.
type Info struct {
	DaysUntilDue int
	Reason       string
	Test         bool
}

// Notifier is what the lifecycle core depends on.
type Notifier interface {
	NotifyPaymentDueReminder(ctx context.Context, app *models.LoanApplication, info Info) Result
	NotifyPaymentOverdue(ctx context.Context, app *models.LoanApplication, info Info) Result
	NotifyDelinquency(ctx context.Context, app *models.LoanApplication, info Info) Result
	NotifyPaymentReceived(ctx context.Context, app *models.LoanApplication, info Info) Result
	NotifyPaymentFailed(ctx context.Context, app *models.LoanApplication, info Info) Result
}

type Config struct {
	EmailEnabled bool
	FromEmail    string
	SMSEnabled   bool
	SenderID     string
	Timeout      time.Duration
	MaxAttempts  int
	RetryBackoff time.Duration
	Currency     string
}

func ConfigFrom(n config.NotificationConfig, currency string) Config {
	return Config{
		EmailEnabled: n.Email.Enabled,
		FromEmail:    n.Email.FromEmail,
		SMSEnabled:   n.SMS.Enabled,
		SenderID:     n.SMS.SenderID,
		Timeout:      time.Duration(n.Timeout) * time.Millisecond,
		MaxAttempts:  n.MaxAttempts,
		RetryBackoff: 200 * time.Millisecond,
		Currency:     currency,
	}
}

type AWSNotifier struct {
	ses awsclients.SESService
	sns awsclients.SNSService
	cfg Config
	log logger.Logger
}

func NewAWSNotifier(sesClient awsclients.SESService, snsClient awsclients.SNSService, cfg Config, log logger.Logger) *AWSNotifier {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &AWSNotifier{
		ses: sesClient,
		sns: snsClient,
		cfg: cfg,
		log: log.With(map[string]interface{}{"component": "notifier"}),
	}
}

func (n *AWSNotifier) NotifyPaymentDueReminder(ctx context.Context, app *models.LoanApplication, info Info) Result {
	return n.send(ctx, KindDueReminder, app, info, false)
}

func (n *AWSNotifier) NotifyPaymentOverdue(ctx context.Context, app *models.LoanApplication, info Info) Result {
	return n.send(ctx, KindOverdue, app, info, false)
}

// NotifyDelinquency uses both channels and ignores the borrower's opt-outs.
func (n *AWSNotifier) NotifyDelinquency(ctx context.Context, app *models.LoanApplication, info Info) Result {
	return n.send(ctx, KindDelinquency, app, info, true)
}

func (n *AWSNotifier) NotifyPaymentReceived(ctx context.Context, app *models.LoanApplication, info Info) Result {
	return n.send(ctx, KindPaymentReceived, app, info, false)
}

func (n *AWSNotifier) NotifyPaymentFailed(ctx context.Context, app *models.LoanApplication, info Info) Result {
	return n.send(ctx, KindPaymentFailed, app, info, false)
}

func (n *AWSNotifier) send(ctx context.Context, kind Kind, app *models.LoanApplication, info Info, escalate bool) Result {
	ctx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
	defer cancel()

	subject, body := render(kind, app, info, n.cfg.Currency)
	a := app.Applicant

	type channel struct {
		name string
		fn   func(context.Context) error
	}
	var channels []channel
	if (n.cfg.EmailEnabled || escalate) && a.Email != "" && (escalate || !a.EmailOptOut) {
		channels = append(channels, channel{ChannelEmail, func(ctx context.Context) error {
			return n.sendEmail(ctx, a.Email, subject, body)
		}})
	}
	if (n.cfg.SMSEnabled || escalate) && a.Phone != "" && (escalate || !a.SMSOptOut) {
		channels = append(channels, channel{ChannelSMS, func(ctx context.Context) error {
			return n.sendSMS(ctx, a.Phone, body)
		}})
	}

	if len(channels) == 0 {
		n.log.Info("no deliverable channel", map[string]interface{}{"applicationId": app.ID, "kind": kind})
		return Result{Success: false, Error: "no deliverable channel"}
	}

	var res Result
	var failures []string
	for _, ch := range channels {
		if err := n.withRetry(ctx, ch.fn); err != nil {
			derr := errors.NewNotificationDeliveryError(string(kind), ch.name, err)
			metrics.NotificationsSent.WithLabelValues(string(kind), ch.name, "failed").Inc()
			n.log.Error("notification delivery failed", map[string]interface{}{
				"applicationId": app.ID,
				"kind":          kind,
				"channel":       ch.name,
				"error":         derr,
			})
			failures = append(failures, ch.name+": "+derr.Message)
			continue
		}
		metrics.NotificationsSent.WithLabelValues(string(kind), ch.name, "sent").Inc()
		res.Delivered = append(res.Delivered, ch.name)
	}

	res.Success = len(failures) == 0
	res.Error = strings.Join(failures, "; ")
	return res
}

func (n *AWSNotifier) withRetry(ctx context.Context, fn func(context.Context) error) error {
	var err error
	for attempt := 1; attempt <= n.cfg.MaxAttempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt == n.cfg.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w (last error: %v)", ctx.Err(), err)
		case <-time.After(n.cfg.RetryBackoff * time.Duration(attempt)):
		}
	}
	return err
}

func (n *AWSNotifier) sendEmail(ctx context.Context, to, subject, body string) error {
	_, err := n.ses.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(n.cfg.FromEmail),
	})
	return err
}

func (n *AWSNotifier) sendSMS(ctx context.Context, to, message string) error {
	input := &sns.PublishInput{
		PhoneNumber: aws.String(to),
		Message:     aws.String(message),
	}
	if n.cfg.SenderID != "" {
		input.MessageAttributes = map[string]snstypes.MessageAttributeValue{
			"AWS.SNS.SMS.SenderID": {DataType: aws.String("String"), StringValue: aws.String(n.cfg.SenderID)},
		}
	}
	_, err := n.sns.Publish(ctx, input)
	return err
}

func render(kind Kind, app *models.LoanApplication, info Info, currency string) (string, string) {
	amount := app.ApprovedAmount
	if amount == 0 {
		amount = app.RequestedAmount
	}
	money := decimal.New(amount, -2).StringFixed(2) + " " + currency
	fee := decimal.New(app.ProcessingFeeAmount, -2).StringFixed(2) + " " + currency
	due := ""
	if app.DueDate != nil {
		due = app.DueDate.Format("2006-01-02")
	}

	var subject, body string
	switch kind {
	case KindDueReminder:
		subject = fmt.Sprintf("Payment due in %d day(s)", info.DaysUntilDue)
		body = fmt.Sprintf("Your loan %s of %s is due on %s.", app.TrackingNumber, money, due)
	case KindOverdue:
		subject = "Payment overdue"
		body = fmt.Sprintf("Your loan %s was due on %s and is now %d day(s) overdue.", app.TrackingNumber, due, -info.DaysUntilDue)
	case KindDelinquency:
		subject = "Urgent: loan delinquent"
		body = fmt.Sprintf("Your loan %s is %d days past due (%s) and has been marked delinquent. Contact us immediately.", app.TrackingNumber, -info.DaysUntilDue, due)
	case KindPaymentReceived:
		subject = "Processing fee received"
		body = fmt.Sprintf("We received the processing fee of %s for loan %s.", fee, app.TrackingNumber)
	case KindPaymentFailed:
		subject = "Processing fee payment failed"
		body = fmt.Sprintf("The processing fee payment of %s for loan %s failed.", fee, app.TrackingNumber)
		if info.Reason != "" {
			body += " Reason: " + info.Reason + "."
		}
	}
	if info.Test {
		subject = "[TEST] " + subject
	}
	return subject, body
}
