package models

import "time"

// StatusChangedEvent is published after a transition commits.
type StatusChangedEvent struct {
	EventID        string    `json:"eventId"`
	ApplicationID  int64     `json:"applicationId"`
	TrackingNumber string    `json:"trackingNumber"`
	From           Status    `json:"from"`
	To             Status    `json:"to"`
	Actor          string    `json:"actor"`
	Note           string    `json:"note,omitempty"`
	OccurredAt     time.Time `json:"occurredAt"`
}
