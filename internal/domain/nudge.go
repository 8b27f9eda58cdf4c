package domain

import "time"

// NudgeKind identifies what triggered a user-facing nudge.
type NudgeKind string

const (
	NudgeKindZombieSubscription NudgeKind = "zombie_subscription"
)

// Nudge is an append-only user notification.
type Nudge struct {
	NudgeID        string
	UserID         string
	SubscriptionID string
	Kind           NudgeKind
	Title          string
	Body           string
	Score          float64
	CreatedAt      time.Time
}
