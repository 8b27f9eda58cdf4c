package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/saveplus/saveplus/internal/jobs"
)

// NewJobHandler returns the queue handler for per-user runs. now is read
// once per job; nil means time.Now.
func NewJobHandler(deps Deps, now func() time.Time) jobs.JobHandler {
	if now == nil {
		now = time.Now
	}
	return func(ctx context.Context, job *jobs.UserJob) (string, error) {
		switch job.Type {
		case jobs.JobTypeDetectSubscriptions:
			res, err := RunDetection(ctx, deps, job.UserID, now())
			if err != nil {
				return "", err
			}
			return res.Summary(), nil
		case jobs.JobTypeScoreZombies:
			res, err := RunZombieScoring(ctx, deps, job.UserID, now())
			if err != nil {
				return "", err
			}
			return res.Summary(), nil
		default:
			return "", fmt.Errorf("NewJobHandler: unknown job type %q", job.Type)
		}
	}
}
