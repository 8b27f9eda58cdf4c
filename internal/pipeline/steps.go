package pipeline

import (
	"context"
	"fmt"

	"github.com/saveplus/saveplus/internal/assistant"
	bq "github.com/saveplus/saveplus/internal/bigquery"
	"github.com/saveplus/saveplus/internal/domain"
	"github.com/saveplus/saveplus/internal/logger"
	"github.com/saveplus/saveplus/internal/recurring"
	"github.com/saveplus/saveplus/internal/zombie"
)

// PipelineStep represents a single step in a per-user run.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// Step 1 (detection): FetchTransactionsStep loads the lookback window.
type FetchTransactionsStep struct {
	Repo           bq.TransactionRepository
	LookbackMonths int
}

func (s *FetchTransactionsStep) Execute(ctx context.Context, state *PipelineState) error {
	state.WindowStart, state.WindowEnd = recurring.Window(state.Now, s.LookbackMonths)

	rows, err := s.Repo.QueryUserTransactions(ctx, state.UserID, state.WindowStart, state.WindowEnd)
	if err != nil {
		return fmt.Errorf("FetchTransactions: %w", err)
	}

	state.Transactions = bq.TransactionsToDomain(rows)
	state.SkippedRows = len(rows) - len(state.Transactions)
	if state.SkippedRows > 0 {
		log := logger.FromContext(ctx)
		log.Warn().
			Int("skipped", state.SkippedRows).
			Msg("skipped transactions missing date or amount")
	}
	return nil
}

// Step 2 (detection): DetectStep runs the recurring-charge detector.
type DetectStep struct {
	Options recurring.Options
}

func (s *DetectStep) Execute(ctx context.Context, state *PipelineState) error {
	candidates := recurring.Detect(state.Transactions, s.Options)
	for i := range candidates {
		candidates[i].UserID = state.UserID
	}
	state.Candidates = candidates
	return nil
}

// Step 3 (detection): UpsertCandidatesStep persists all candidates in one write.
type UpsertCandidatesStep struct {
	Repo bq.SubscriptionRepository
}

func (s *UpsertCandidatesStep) Execute(ctx context.Context, state *PipelineState) error {
	rows := make([]*bq.SubscriptionRow, 0, len(state.Candidates))
	for _, c := range state.Candidates {
		rows = append(rows, bq.NewSubscriptionRow(c, state.Now))
	}

	if err := s.Repo.UpsertCandidates(ctx, state.UserID, rows); err != nil {
		return fmt.Errorf("UpsertCandidates: %w", err)
	}
	return nil
}

// Step 1 (zombie): FetchConfirmedSubscriptionsStep loads what the user confirmed.
type FetchConfirmedSubscriptionsStep struct {
	Repo bq.SubscriptionRepository
}

func (s *FetchConfirmedSubscriptionsStep) Execute(ctx context.Context, state *PipelineState) error {
	rows, err := s.Repo.ListConfirmedSubscriptions(ctx, state.UserID)
	if err != nil {
		return fmt.Errorf("FetchConfirmedSubscriptions: %w", err)
	}

	log := logger.FromContext(ctx)
	subs := make([]domain.Subscription, 0, len(rows))
	for _, row := range rows {
		sub, err := row.ToDomain()
		if err != nil {
			log.Warn().Err(err).Str("subscription_id", row.SubscriptionID).Msg("skipping unreadable subscription")
			continue
		}
		subs = append(subs, sub)
	}
	state.Subscriptions = subs
	return nil
}

// Step 2 (zombie): FetchUsageStep loads recent transactions and derives
// per-subscription score inputs.
type FetchUsageStep struct {
	Repo bq.TransactionRepository
}

func (s *FetchUsageStep) Execute(ctx context.Context, state *PipelineState) error {
	state.Inputs = make(map[string]zombie.Inputs, len(state.Subscriptions))
	if len(state.Subscriptions) == 0 {
		return nil
	}

	start := domain.DateOnly(state.Now.Add(-usageLookback))
	rows, err := s.Repo.QueryUserTransactions(ctx, state.UserID, start, domain.DateOnly(state.Now))
	if err != nil {
		return fmt.Errorf("FetchUsage: %w", err)
	}
	state.Transactions = bq.TransactionsToDomain(rows)
	state.SkippedRows = len(rows) - len(state.Transactions)

	for _, sub := range state.Subscriptions {
		state.Inputs[sub.SubscriptionID] = zombie.InputsFor(sub, state.Transactions, state.Now)
	}
	return nil
}

// Step 3 (zombie): ScoreStep evaluates each subscription and stores the score.
type ScoreStep struct {
	Repo bq.SubscriptionRepository
}

func (s *ScoreStep) Execute(ctx context.Context, state *PipelineState) error {
	state.Decisions = make([]zombie.Decision, 0, len(state.Subscriptions))
	for _, sub := range state.Subscriptions {
		d := zombie.Evaluate(sub, state.Inputs[sub.SubscriptionID], state.Now)
		state.Decisions = append(state.Decisions, d)

		// a transitioning subscription gets its score with the flag update
		if d.Transitioned {
			continue
		}
		if err := s.Repo.UpdateZombieScore(ctx, sub.SubscriptionID, d.Score, state.Now); err != nil {
			return fmt.Errorf("Score: %s: %w", sub.SubscriptionID, err)
		}
	}
	return nil
}

// Step 4 (zombie): NudgeAndFlagStep writes one nudge per newly flagged
// subscription, then flags it. The nudge ID is derived from the
// subscription ID and inserted only if absent, and the flag update only
// succeeds while the flag is unset, so a run retried after a failure
// between the two writes neither loses nor duplicates the nudge.
type NudgeAndFlagStep struct {
	Subscriptions bq.SubscriptionRepository
	Nudges        bq.NudgeRepository
	Composer      NudgeComposer
}

func (s *NudgeAndFlagStep) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)

	subs := make(map[string]domain.Subscription, len(state.Subscriptions))
	for _, sub := range state.Subscriptions {
		subs[sub.SubscriptionID] = sub
	}

	for _, d := range state.Decisions {
		if !d.Transitioned {
			continue
		}
		sub := subs[d.SubscriptionID]
		in := state.Inputs[d.SubscriptionID]

		title, body := s.compose(ctx, sub, in)
		nudge := domain.Nudge{
			NudgeID:        domain.ZombieNudgeID(sub.SubscriptionID),
			UserID:         state.UserID,
			SubscriptionID: sub.SubscriptionID,
			Kind:           domain.NudgeKindZombieSubscription,
			Title:          title,
			Body:           body,
			Score:          d.Score,
			CreatedAt:      state.Now,
		}

		inserted, err := s.Nudges.InsertNudgeIfAbsent(ctx, bq.NewNudgeRow(nudge))
		if err != nil {
			return fmt.Errorf("NudgeAndFlag: inserting nudge for %s: %w", sub.SubscriptionID, err)
		}
		if inserted {
			state.NudgesCreated++
		}

		at, _ := d.Flag.At()
		flagged, err := s.Subscriptions.MarkZombieFlagged(ctx, sub.SubscriptionID, d.Score, at)
		if err != nil {
			return fmt.Errorf("NudgeAndFlag: flagging %s: %w", sub.SubscriptionID, err)
		}
		if flagged {
			state.Flagged = append(state.Flagged, sub.SubscriptionID)
		} else if err := s.Subscriptions.UpdateZombieScore(ctx, sub.SubscriptionID, d.Score, state.Now); err != nil {
			// flagged concurrently; the score of this run is still recorded
			return fmt.Errorf("NudgeAndFlag: scoring %s: %w", sub.SubscriptionID, err)
		}

		log.Info().
			Str("subscription_id", sub.SubscriptionID).
			Str("merchant", sub.Merchant).
			Float64("score", d.Score).
			Bool("nudge_inserted", inserted).
			Bool("flagged", flagged).
			Msg("zombie subscription")
	}
	return nil
}

func (s *NudgeAndFlagStep) compose(ctx context.Context, sub domain.Subscription, in zombie.Inputs) (string, string) {
	if s.Composer == nil {
		return assistant.NewNudgeComposer(nil).ComposeZombieNudge(ctx, sub, in)
	}
	return s.Composer.ComposeZombieNudge(ctx, sub, in)
}
