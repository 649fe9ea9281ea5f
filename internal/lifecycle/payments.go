package lifecycle

import (
	"context"
	"encoding/json"

	"loan-lifecycle/internal/common/errors"
	"loan-lifecycle/internal/common/validation"
	"loan-lifecycle/internal/lifecycle/notifier"
	"loan-lifecycle/internal/lifecycle/statemachine"
	"loan-lifecycle/internal/models"
)

const (
	PaymentOutcomeFeePaid   = "fee_paid"
	PaymentOutcomeFeeFailed = "fee_failed"
)

type PaymentEvent struct {
	ApplicationID int64  `json:"applicationId"`
	Outcome       string `json:"outcome"`
	Reference     string `json:"reference,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

type PaymentResult struct {
	ApplicationID int64           `json:"applicationId"`
	Status        models.Status   `json:"status"`
	Changed       bool            `json:"changed"`
	Notification  notifier.Result `json:"notification"`
}

// ParsePaymentEvent validates a raw payment feed payload against its schema.
func ParsePaymentEvent(raw []byte) (*PaymentEvent, error) {
	if err := validation.PaymentEvent.Validate(raw); err != nil {
		return nil, err
	}
	var ev PaymentEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, errors.NewValidationError([]errors.FieldError{{Field: "body", Code: "MALFORMED_JSON", Message: "body is not valid JSON"}})
	}
	return &ev, nil
}

// HandlePaymentEvent consumes the payment confirmation feed. fee_paid moves
// fee_pending to fee_paid; a repeated confirmation is a no-op. fee_failed
// only notifies the borrower.
func (e *Engine) HandlePaymentEvent(ctx context.Context, ev PaymentEvent) (*PaymentResult, error) {
	switch ev.Outcome {
	case PaymentOutcomeFeePaid:
		note := "processing fee paid"
		if ev.Reference != "" {
			note += ", reference " + ev.Reference
		}
		res, err := e.commit(ctx, statemachine.Request{
			ApplicationID: ev.ApplicationID,
			To:            models.StatusFeePaid,
			Actor:         models.ActorPaymentWebhook,
			Note:          note,
			ExpectFrom:    []models.Status{models.StatusFeePending},
		})
		if err != nil {
			return nil, err
		}

		out := &PaymentResult{ApplicationID: ev.ApplicationID, Status: res.Application.Status, Changed: res.Changed}
		if res.Changed {
			out.Notification = e.notifier.NotifyPaymentReceived(ctx, res.Application, notifier.Info{})
		}
		return out, nil

	case PaymentOutcomeFeeFailed:
		app, err := e.GetApplication(ctx, ev.ApplicationID)
		if err != nil {
			return nil, err
		}
		e.log.Warn("processing fee payment failed", map[string]interface{}{
			"applicationId": app.ID,
			"reason":        ev.Reason,
		})
		return &PaymentResult{
			ApplicationID: app.ID,
			Status:        app.Status,
			Notification:  e.notifier.NotifyPaymentFailed(ctx, app, notifier.Info{Reason: ev.Reason}),
		}, nil

	default:
		return nil, errors.NewValidationError([]errors.FieldError{{
			Field: "outcome", Code: "INVALID_VALUE", Message: "outcome must be fee_paid or fee_failed",
		}})
	}
}
