// Package batch runs one independent task per user with bounded
// concurrency and per-user retries.
package batch

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/saveplus/saveplus/internal/logger"
	"golang.org/x/sync/errgroup"
)

// Task processes a single user. It must not share mutable state with
// tasks for other users.
type Task func(ctx context.Context, userID string) error

// Runner fans tasks out over users.
type Runner struct {
	// Concurrency bounds the number of users processed at once. Values
	// below 1 mean 1.
	Concurrency int
	// MaxAttempts is the number of tries per user. Values below 1 mean 1.
	MaxAttempts int
	// Backoff is multiplied by the attempt number between tries.
	Backoff time.Duration
}

// Failure records a user whose task never succeeded.
type Failure struct {
	UserID   string
	Attempts int
	Err      error
}

func (f Failure) Error() string {
	return fmt.Sprintf("user %s failed after %d attempt(s): %v", f.UserID, f.Attempts, f.Err)
}

// Report summarises a RunAll call.
type Report struct {
	Total     int
	Succeeded int
	Failed    []Failure
	Duration  time.Duration
}

// OK reports whether every user succeeded.
func (r Report) OK() bool {
	return len(r.Failed) == 0
}

// RunAll runs task once per distinct user ID. A failing user is retried up
// to MaxAttempts and then recorded in Report.Failed; it never cancels the
// other users. Cancelling ctx stops scheduling new users, and users not
// started are reported as failed with ctx.Err().
func (r Runner) RunAll(ctx context.Context, userIDs []string, task Task) Report {
	started := time.Now()
	log := logger.FromContext(ctx)

	ids := dedupe(userIDs)
	report := Report{Total: len(ids)}

	var mu sync.Mutex
	record := func(userID string, attempts int, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err == nil {
			report.Succeeded++
			return
		}
		report.Failed = append(report.Failed, Failure{UserID: userID, Attempts: attempts, Err: err})
	}

	g := new(errgroup.Group)
	g.SetLimit(max(r.Concurrency, 1))

	for _, userID := range ids {
		if err := ctx.Err(); err != nil {
			record(userID, 0, err)
			continue
		}
		g.Go(func() error {
			attempts, err := r.runWithRetry(ctx, userID, task)
			if err != nil {
				log.Warn().Err(err).Str("user_id", userID).Int("attempts", attempts).Msg("user task failed")
			}
			record(userID, attempts, err)
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(report.Failed, func(i, j int) bool {
		return report.Failed[i].UserID < report.Failed[j].UserID
	})
	report.Duration = time.Since(started)

	log.Info().
		Int("total", report.Total).
		Int("succeeded", report.Succeeded).
		Int("failed", len(report.Failed)).
		Dur("duration", report.Duration).
		Msg("batch finished")

	return report
}

func (r Runner) runWithRetry(ctx context.Context, userID string, task Task) (int, error) {
	maxAttempts := max(r.MaxAttempts, 1)

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = task(ctx, userID); err == nil {
			return attempt, nil
		}
		if attempt == maxAttempts {
			return attempt, err
		}

		wait := time.Duration(attempt) * r.Backoff
		if wait <= 0 {
			if ctx.Err() != nil {
				return attempt, err
			}
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, err
		case <-timer.C:
		}
	}
	return maxAttempts, err
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
