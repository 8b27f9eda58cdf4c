package zombie

import (
	"time"

	"github.com/saveplus/saveplus/internal/domain"
)

// Decision is the outcome of scoring one subscription.
type Decision struct {
	SubscriptionID string
	Score          float64
	Flag           domain.ZombieFlag

	// Transitioned is true only on the run that moved the subscription from
	// unflagged to flagged. Exactly these decisions produce a nudge.
	Transitioned bool
}

// Evaluate scores a subscription and applies the one-way flag transition
// when the score exceeds Threshold for the first time.
func Evaluate(sub domain.Subscription, in Inputs, now time.Time) Decision {
	score := Score(in)
	d := Decision{
		SubscriptionID: sub.SubscriptionID,
		Score:          score,
		Flag:           sub.Zombie,
	}

	if score > Threshold {
		d.Flag, d.Transitioned = sub.Zombie.Flag(now)
	}
	return d
}
