package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/saveplus/saveplus/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func quietContext() context.Context {
	return logger.WithContext(context.Background(), logger.NewWithWriter(io.Discard))
}

func TestRunAll_AllSucceed(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]int{}

	r := Runner{Concurrency: 3, MaxAttempts: 1}
	report := r.RunAll(quietContext(), []string{"u1", "u2", "u3", "u2", ""}, func(ctx context.Context, userID string) error {
		mu.Lock()
		seen[userID]++
		mu.Unlock()
		return nil
	})

	assert.True(t, report.OK())
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 3, report.Succeeded)
	assert.Equal(t, map[string]int{"u1": 1, "u2": 1, "u3": 1}, seen)
}

func TestRunAll_FailureDoesNotStopOthers(t *testing.T) {
	boom := errors.New("store unavailable")

	r := Runner{Concurrency: 2, MaxAttempts: 2}
	var attemptsU2 atomic.Int32
	report := r.RunAll(quietContext(), []string{"u1", "u2", "u3"}, func(ctx context.Context, userID string) error {
		if userID == "u2" {
			attemptsU2.Add(1)
			return boom
		}
		return nil
	})

	require.Len(t, report.Failed, 1)
	f := report.Failed[0]
	assert.Equal(t, "u2", f.UserID)
	assert.Equal(t, 2, f.Attempts)
	assert.ErrorIs(t, f.Err, boom)
	assert.Equal(t, int32(2), attemptsU2.Load())
	assert.Equal(t, 2, report.Succeeded)
}

func TestRunAll_RetrySucceeds(t *testing.T) {
	var calls atomic.Int32
	r := Runner{Concurrency: 1, MaxAttempts: 3}
	report := r.RunAll(quietContext(), []string{"u1"}, func(ctx context.Context, userID string) error {
		if calls.Add(1) < 3 {
			return fmt.Errorf("transient %d", calls.Load())
		}
		return nil
	})

	assert.True(t, report.OK())
	assert.Equal(t, int32(3), calls.Load())
}

func TestRunAll_RespectsConcurrencyLimit(t *testing.T) {
	var running, peak atomic.Int32
	r := Runner{Concurrency: 2}

	ids := make([]string, 20)
	for i := range ids {
		ids[i] = fmt.Sprintf("u%02d", i)
	}
	report := r.RunAll(quietContext(), ids, func(ctx context.Context, userID string) error {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		running.Add(-1)
		return nil
	})

	assert.True(t, report.OK())
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRunAll_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(quietContext())
	cancel()

	r := Runner{Concurrency: 1}
	report := r.RunAll(ctx, []string{"b", "a"}, func(ctx context.Context, userID string) error {
		t.Errorf("task ran for %s after cancellation", userID)
		return nil
	})

	require.Len(t, report.Failed, 2)
	assert.Equal(t, "a", report.Failed[0].UserID)
	assert.ErrorIs(t, report.Failed[0].Err, context.Canceled)
}
