package pipeline

import (
	"fmt"
	"time"

	"github.com/saveplus/saveplus/internal/domain"
	"github.com/saveplus/saveplus/internal/zombie"
)

// PipelineState holds the shared state across the steps of one user's run.
type PipelineState struct {
	UserID string
	Now    time.Time

	// Detection
	WindowStart  time.Time
	WindowEnd    time.Time
	Transactions []domain.Transaction
	SkippedRows  int
	Candidates   []domain.SubscriptionCandidate

	// Zombie scoring
	Subscriptions []domain.Subscription
	Inputs        map[string]zombie.Inputs
	Decisions     []zombie.Decision
	NudgesCreated int
	Flagged       []string
}

// DetectionResult is what RunDetection reports for one user.
type DetectionResult struct {
	UserID       string
	Transactions int
	SkippedRows  int
	Candidates   []domain.SubscriptionCandidate
}

// Summary is a one-line description for job status and logs.
func (r *DetectionResult) Summary() string {
	return fmt.Sprintf("%d candidate(s) from %d transaction(s), %d skipped", len(r.Candidates), r.Transactions, r.SkippedRows)
}

// ZombieResult is what RunZombieScoring reports for one user.
type ZombieResult struct {
	UserID        string
	Decisions     []zombie.Decision
	Flagged       []string // subscription IDs flagged by this run
	NudgesCreated int
}

// Summary is a one-line description for job status and logs.
func (r *ZombieResult) Summary() string {
	return fmt.Sprintf("%d scored, %d flagged, %d nudge(s)", len(r.Decisions), len(r.Flagged), r.NudgesCreated)
}
