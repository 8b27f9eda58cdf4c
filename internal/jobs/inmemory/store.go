package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/saveplus/saveplus/internal/jobs"
)

// DefaultMaxJobs bounds how many jobs NewStore keeps.
const DefaultMaxJobs = 10000

// Store is an in-memory implementation of JobStore, safe for concurrent
// use. Data is lost on service restart. Once more than maxJobs are held,
// the oldest finished jobs are evicted; pending and running jobs are kept.
type Store struct {
	mu      sync.RWMutex
	jobs    map[string]*jobs.UserJob
	maxJobs int
}

// NewStore creates a job store holding up to DefaultMaxJobs jobs.
func NewStore() *Store {
	return NewStoreWithLimit(DefaultMaxJobs)
}

// NewStoreWithLimit creates a job store that evicts finished jobs beyond
// maxJobs. maxJobs <= 0 disables eviction.
func NewStoreWithLimit(maxJobs int) *Store {
	return &Store{
		jobs:    make(map[string]*jobs.UserJob),
		maxJobs: maxJobs,
	}
}

// SaveJob implements the JobStore interface.
func (s *Store) SaveJob(ctx context.Context, job *jobs.UserJob) error {
	if job.JobID == "" {
		return fmt.Errorf("SaveJob: job ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	jobCopy := *job
	s.jobs[job.JobID] = &jobCopy
	s.evictLocked()
	return nil
}

// GetJob implements the JobStore interface.
func (s *Store) GetJob(ctx context.Context, jobID string) (*jobs.UserJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("GetJob: %s: %w", jobID, jobs.ErrJobNotFound)
	}
	jobCopy := *job
	return &jobCopy, nil
}

// ListJobs implements the JobStore interface. Results are ordered newest
// first with the job ID as tiebreak so pagination is stable.
func (s *Store) ListJobs(ctx context.Context, filter jobs.JobFilter) ([]*jobs.UserJob, error) {
	s.mu.RLock()
	result := make([]*jobs.UserJob, 0)
	for _, job := range s.jobs {
		if matches(job, filter) {
			jobCopy := *job
			result = append(result, &jobCopy)
		}
	}
	s.mu.RUnlock()

	sortNewestFirst(result)

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []*jobs.UserJob{}, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}
	return result, nil
}

// UpdateJobStatus implements the JobStore interface. Moving to completed
// or failed stamps CompletedAt if it is not already set.
func (s *Store) UpdateJobStatus(ctx context.Context, jobID string, status jobs.JobStatus, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("UpdateJobStatus: %s: %w", jobID, jobs.ErrJobNotFound)
	}

	job.Status = status
	if errorMsg != "" {
		job.Error = errorMsg
	}
	if finished(job) && job.CompletedAt == nil {
		now := time.Now()
		job.CompletedAt = &now
	}
	return nil
}

func (s *Store) evictLocked() {
	if s.maxJobs <= 0 || len(s.jobs) <= s.maxJobs {
		return
	}

	var done []*jobs.UserJob
	for _, job := range s.jobs {
		if finished(job) {
			done = append(done, job)
		}
	}
	sortNewestFirst(done)

	for i := len(done) - 1; i >= 0 && len(s.jobs) > s.maxJobs; i-- {
		delete(s.jobs, done[i].JobID)
	}
}

func matches(job *jobs.UserJob, f jobs.JobFilter) bool {
	return (f.UserID == "" || job.UserID == f.UserID) &&
		(f.Type == "" || job.Type == f.Type) &&
		(f.Status == "" || job.Status == f.Status)
}

func finished(job *jobs.UserJob) bool {
	return job.Status == jobs.JobStatusCompleted || job.Status == jobs.JobStatusFailed
}

func sortNewestFirst(js []*jobs.UserJob) {
	sort.Slice(js, func(i, j int) bool {
		if !js[i].CreatedAt.Equal(js[j].CreatedAt) {
			return js[i].CreatedAt.After(js[j].CreatedAt)
		}
		return js[i].JobID < js[j].JobID
	})
}

var _ jobs.JobStore = (*Store)(nil)
