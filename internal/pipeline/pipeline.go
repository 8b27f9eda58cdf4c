// Package pipeline runs the per-user detection and zombie scoring flows as
// sequences of steps over a shared state.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/saveplus/saveplus/internal/logger"
)

// ErrInvalidUserID is returned when a run is requested without a user.
var ErrInvalidUserID = errors.New("invalid user id")

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps sequentially and stops at the first failure.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}

// NewDetectionPipeline creates the fetch -> detect -> upsert pipeline.
func NewDetectionPipeline(deps Deps) *Pipeline {
	return NewPipeline(
		&FetchTransactionsStep{Repo: deps.Transactions, LookbackMonths: deps.lookbackMonths()},
		&DetectStep{Options: deps.detectorOptions()},
		&UpsertCandidatesStep{Repo: deps.Subscriptions},
	)
}

// NewZombiePipeline creates the fetch -> usage -> score -> nudge/flag pipeline.
func NewZombiePipeline(deps Deps) *Pipeline {
	return NewPipeline(
		&FetchConfirmedSubscriptionsStep{Repo: deps.Subscriptions},
		&FetchUsageStep{Repo: deps.Transactions},
		&ScoreStep{Repo: deps.Subscriptions},
		&NudgeAndFlagStep{Subscriptions: deps.Subscriptions, Nudges: deps.Nudges, Composer: deps.Composer},
	)
}

// RunDetection re-detects a user's subscriptions over the lookback window
// ending at now and upserts the candidates. A persistence failure aborts
// the run and is returned.
func RunDetection(ctx context.Context, deps Deps, userID string, now time.Time) (*DetectionResult, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrInvalidUserID
	}

	log := logger.ForUser(logger.FromContext(ctx), userID).With().Str("run", "detection").Logger()
	ctx = logger.WithContext(ctx, log)

	state := &PipelineState{UserID: userID, Now: now.UTC()}
	if err := NewDetectionPipeline(deps).Execute(ctx, state); err != nil {
		log.Error().Err(err).Msg("detection failed")
		return nil, fmt.Errorf("RunDetection: %s: %w", userID, err)
	}

	result := &DetectionResult{
		UserID:       userID,
		Transactions: len(state.Transactions),
		SkippedRows:  state.SkippedRows,
		Candidates:   state.Candidates,
	}
	log.Info().
		Int("transactions", result.Transactions).
		Int("candidates", len(result.Candidates)).
		Msg("detection finished")
	return result, nil
}

// RunZombieScoring scores a user's confirmed subscriptions, flags the ones
// crossing the threshold for the first time and writes their nudges.
func RunZombieScoring(ctx context.Context, deps Deps, userID string, now time.Time) (*ZombieResult, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrInvalidUserID
	}

	log := logger.ForUser(logger.FromContext(ctx), userID).With().Str("run", "zombie").Logger()
	ctx = logger.WithContext(ctx, log)

	state := &PipelineState{UserID: userID, Now: now.UTC()}
	if err := NewZombiePipeline(deps).Execute(ctx, state); err != nil {
		log.Error().Err(err).Msg("zombie scoring failed")
		return nil, fmt.Errorf("RunZombieScoring: %s: %w", userID, err)
	}

	result := &ZombieResult{
		UserID:        userID,
		Decisions:     state.Decisions,
		Flagged:       state.Flagged,
		NudgesCreated: state.NudgesCreated,
	}
	log.Info().
		Int("scored", len(result.Decisions)).
		Int("flagged", len(result.Flagged)).
		Int("nudges", result.NudgesCreated).
		Msg("zombie scoring finished")
	return result, nil
}
