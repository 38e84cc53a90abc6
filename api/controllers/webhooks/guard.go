package webhooks

import (
	"context"
)

type deliveryGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

type webhookMetrics interface {
	Webhook(source, outcome string)
}

const (
	outcomeProcessed    = "processed"
	outcomeDuplicate    = "duplicate"
	outcomeRejected     = "rejected"
	outcomeMalformed    = "malformed"
	outcomeFailed       = "failed"
	outcomeIgnored      = "ignored"
	outcomeGuardFailure = "guard_unavailable"
)

type ack struct {
	Received  bool   `json:"received"`
	Duplicate bool   `json:"duplicate,omitempty"`
	EventID   string `json:"event_id,omitempty"`
	Result    any    `json:"result,omitempty"`
}

func count(m webhookMetrics, source, outcome string) {
	if m != nil {
		m.Webhook(source, outcome)
	}
}
