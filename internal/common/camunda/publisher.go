package camunda

import (
	"context"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"loan-lifecycle/internal/common/logger"
	"loan-lifecycle/internal/models"
)

const MessageStatusChanged = "loan-status-changed"

const defaultMessageTTL = time.Hour

// Publisher correlates lifecycle events into running process instances.
// The correlation key is the tracking number.
type Publisher struct {
	client *Client
	ttl    time.Duration
	log    logger.Logger
}

func NewPublisher(client *Client, log logger.Logger) *Publisher {
	return &Publisher{
		client: client,
		ttl:    defaultMessageTTL,
		log:    log.With(map[string]interface{}{"component": "zeebe-publisher"}),
	}
}

func (p *Publisher) PublishStatusChanged(ctx context.Context, ev models.StatusChangedEvent) error {
	_, err := p.client.ExecuteWithRetry(ctx, func(ctx context.Context) (interface{}, error) {
		cmd, err := p.client.GetClient().NewPublishMessageCommand().
			MessageName(MessageStatusChanged).
			CorrelationKey(ev.TrackingNumber).
			MessageId(ev.EventID).
			TimeToLive(p.ttl).
			VariablesFromObject(messageVariables(ev))
		if err != nil {
			return nil, err
		}
		resp, err := cmd.Send(ctx)
		// The message id is the event id, so a replay is already published.
		if status.Code(err) == codes.AlreadyExists {
			return nil, nil
		}
		return resp, err
	}, "publish "+MessageStatusChanged)
	if err != nil {
		p.log.Warn("publish status change failed", map[string]interface{}{
			"applicationId": ev.ApplicationID,
			"to":            ev.To,
			"error":         err,
		})
		return err
	}

	p.log.Debug("status change published", map[string]interface{}{
		"applicationId":  ev.ApplicationID,
		"trackingNumber": ev.TrackingNumber,
		"to":             ev.To,
	})
	return nil
}

func messageVariables(ev models.StatusChangedEvent) map[string]interface{} {
	vars := map[string]interface{}{
		"applicationId":  ev.ApplicationID,
		"trackingNumber": ev.TrackingNumber,
		"previousStatus": string(ev.From),
		"status":         string(ev.To),
		"actor":          ev.Actor,
		"occurredAt":     ev.OccurredAt.UTC().Format(time.RFC3339),
	}
	if ev.Note != "" {
		vars["note"] = ev.Note
	}
	return vars
}
