package jobs

import (
	"context"
	"fmt"
	"time"
)

// StatusClient fetches the current state of a remote job. It is the only
// surface the poller needs from the API client.
type StatusClient interface {
	// GetJob returns the current remote state of the job.
	GetJob(ctx context.Context, jobID string) (*Job, error)
}

// Poller repeatedly queries a job until it reaches a terminal state or the
// attempt budget is exhausted. Attempts are strictly sequential; there is
// never more than one in-flight status query per poll loop.
type Poller struct {
	client StatusClient
}

// NewPoller creates a poller backed by the given status client.
func NewPoller(client StatusClient) *Poller {
	return &Poller{client: client}
}

// Poll observes the job until it completes, fails, or the attempt budget
// runs out. A transport error during a single attempt is treated as a
// transient miss and consumes one attempt; the job may still be
// progressing server-side.
//
// Cancelling the context abandons the client-side observation only — the
// remote job keeps running. In that case Poll returns ctx.Err().
func (p *Poller) Poll(ctx context.Context, jobID string, opts PollOptions) (*PollResult, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job id is required")
	}
	if opts.Interval <= 0 || opts.MaxAttempts <= 0 {
		return nil, fmt.Errorf("poll options require a positive interval and attempt budget")
	}

	timer := time.NewTimer(opts.Interval)
	defer timer.Stop()

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}

		job, err := p.client.GetJob(ctx, jobID)
		if err != nil {
			// Transient miss: keep the loop going.
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
		} else {
			switch job.Status {
			case StatusCompleted:
				return &PollResult{
					Outcome:     OutcomeCompleted,
					ArtifactRef: job.ArtifactRef,
					Attempts:    attempt,
				}, nil
			case StatusFailed:
				return &PollResult{
					Outcome:  OutcomeFailed,
					Reason:   job.Error,
					Attempts: attempt,
				}, nil
			}
		}

		timer.Reset(opts.Interval)
	}

	return &PollResult{
		Outcome:  OutcomeTimedOut,
		Attempts: opts.MaxAttempts,
	}, nil
}
