// Package events publishes trust-relevant state changes for downstream
// consumers (notifications, moderation dashboards).
package events

import (
	"context"
	"time"
)

const (
	TypeBanImposed     = "trust.ban_imposed"
	TypeLevelChanged   = "trust.level_changed"
	TypeDeviceBlocked  = "device.blocked"
	TypeInviteConsumed = "invite.consumed"
)

type Event struct {
	Type       string                 `json:"type"`
	Key        string                 `json:"key"`
	OccurredAt time.Time              `json:"occurred_at"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// Publisher is best-effort: callers log failures and carry on.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}
