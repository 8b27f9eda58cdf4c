package pipeline

import (
	"context"
	"time"

	bq "github.com/saveplus/saveplus/internal/bigquery"
	"github.com/saveplus/saveplus/internal/domain"
	"github.com/saveplus/saveplus/internal/recurring"
	"github.com/saveplus/saveplus/internal/zombie"
)

// NudgeComposer writes nudge copy. assistant.NudgeComposer implements it.
type NudgeComposer interface {
	ComposeZombieNudge(ctx context.Context, sub domain.Subscription, in zombie.Inputs) (title, body string)
}

// Deps are the collaborators a per-user run needs. Any of the three
// repositories can be the same value (a bq.Store).
type Deps struct {
	Transactions  bq.TransactionRepository
	Subscriptions bq.SubscriptionRepository
	Nudges        bq.NudgeRepository

	// Composer writes nudge copy. Nil uses the plain template.
	Composer NudgeComposer

	// Detector tunes the recurring-charge detector. The zero value means
	// recurring.DefaultOptions().
	Detector recurring.Options

	// LookbackMonths is the detection window. Zero means
	// recurring.DefaultLookbackMonths.
	LookbackMonths int
}

// NewDeps wires every repository to one store with default tuning.
func NewDeps(store bq.Store, composer NudgeComposer) Deps {
	return Deps{
		Transactions:  store,
		Subscriptions: store,
		Nudges:        store,
		Composer:      composer,
	}
}

func (d Deps) detectorOptions() recurring.Options {
	if d.Detector == (recurring.Options{}) {
		return recurring.DefaultOptions()
	}
	return d.Detector
}

func (d Deps) lookbackMonths() int {
	if d.LookbackMonths <= 0 {
		return recurring.DefaultLookbackMonths
	}
	return d.LookbackMonths
}

// usageLookback is how far back usage transactions are loaded. Anything
// older only ever produces the capped idle value.
const usageLookback = (zombie.MaxIdleDays + 1) * 24 * time.Hour
