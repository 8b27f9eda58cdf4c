package inmemory

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/saveplus/saveplus/internal/jobs"
	"github.com/saveplus/saveplus/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func quietContext() context.Context {
	return logger.WithContext(context.Background(), logger.NewWithWriter(io.Discard))
}

func waitForStatus(t *testing.T, store *Store, jobID string, want jobs.JobStatus) *jobs.UserJob {
	t.Helper()
	var last *jobs.UserJob
	require.Eventually(t, func() bool {
		j, err := store.GetJob(context.Background(), jobID)
		if err != nil {
			return false
		}
		last = j
		return j.Status == want
	}, 2*time.Second, 5*time.Millisecond, "job %s never reached %s", jobID, want)
	return last
}

func TestQueue_ProcessesJob(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := quietContext()
	store := NewStore()
	q := NewQueue(Options{Workers: 2}, store)

	var seen atomic.Value
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job *jobs.UserJob) (string, error) {
		seen.Store(job.UserID)
		return "2 candidates", nil
	}))

	job := &jobs.UserJob{UserID: "user-1", Type: jobs.JobTypeDetectSubscriptions}
	require.NoError(t, q.Publish(ctx, job))
	require.NotEmpty(t, job.JobID)
	assert.Equal(t, jobs.JobStatusPending, job.Status)

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	assert.Equal(t, "2 candidates", done.Summary)
	assert.NotNil(t, done.StartedAt)
	assert.NotNil(t, done.CompletedAt)
	assert.Equal(t, "user-1", seen.Load())

	require.NoError(t, q.Stop(context.Background()))
}

func TestQueue_RetriesThenSucceeds(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := quietContext()
	store := NewStore()
	q := NewQueue(Options{Workers: 1, Backoff: time.Millisecond}, store)

	var calls atomic.Int32
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job *jobs.UserJob) (string, error) {
		if calls.Add(1) == 1 {
			return "", errors.New("bigquery unavailable")
		}
		return "ok", nil
	}))

	job := &jobs.UserJob{UserID: "user-1", Type: jobs.JobTypeScoreZombies}
	require.NoError(t, q.Publish(ctx, job))

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	assert.Equal(t, 1, done.RetryCount)
	assert.Empty(t, done.Error)
	assert.Equal(t, int32(2), calls.Load())

	require.NoError(t, q.Stop(context.Background()))
}

func TestQueue_FailsAfterMaxRetries(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := quietContext()
	store := NewStore()
	q := NewQueue(Options{Workers: 1, Backoff: time.Millisecond, MaxRetries: 2}, store)

	var calls atomic.Int32
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job *jobs.UserJob) (string, error) {
		calls.Add(1)
		return "", errors.New("always broken")
	}))

	job := &jobs.UserJob{UserID: "user-1", Type: jobs.JobTypeScoreZombies}
	require.NoError(t, q.Publish(ctx, job))

	failed := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	assert.Equal(t, 2, failed.RetryCount)
	assert.Equal(t, "always broken", failed.Error)
	assert.Equal(t, int32(3), calls.Load())

	require.NoError(t, q.Stop(context.Background()))
}

func TestQueue_PanicFailsJob(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := quietContext()
	store := NewStore()
	q := NewQueue(Options{Workers: 1, Backoff: time.Millisecond}, store)

	require.NoError(t, q.Start(ctx, func(ctx context.Context, job *jobs.UserJob) (string, error) {
		panic("boom")
	}))

	job := &jobs.UserJob{UserID: "user-1", Type: jobs.JobTypeDetectSubscriptions, MaxRetries: -1}
	require.NoError(t, q.Publish(ctx, job))

	failed := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	assert.Contains(t, failed.Error, "boom")

	require.NoError(t, q.Stop(context.Background()))
}

func TestQueue_RejectsInvalidJobs(t *testing.T) {
	q := NewQueue(Options{}, nil)
	defer q.Close()

	ctx := context.Background()
	assert.Error(t, q.Publish(ctx, &jobs.UserJob{Type: jobs.JobTypeDetectSubscriptions}))
	assert.Error(t, q.Publish(ctx, &jobs.UserJob{UserID: "u", Type: "parse_document"}))
}

func TestQueue_PublishAfterStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := NewQueue(Options{}, nil)
	require.NoError(t, q.Stop(context.Background()))

	err := q.Publish(context.Background(), &jobs.UserJob{UserID: "u", Type: jobs.JobTypeScoreZombies})
	assert.ErrorIs(t, err, jobs.ErrQueueClosed)
	assert.ErrorIs(t, q.Start(context.Background(), nil), jobs.ErrQueueClosed)
}
