package cron

import (
	"context"
	"fmt"
	"time"
)

// Job is one unit of scheduled settlement work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Periodic jobs run at most once per Every; other jobs run every cycle.
type Periodic interface {
	Every() time.Duration
}

// Registry is the ordered set of jobs a worker drives. Order matters: the
// payout batch runs before reconciliation so the audit sees fresh payouts.
type Registry struct {
	jobs  []Job
	names map[string]struct{}
}

// NewRegistry rejects duplicate names since last-run bookkeeping and
// metrics are keyed by name.
func NewRegistry(jobs ...Job) (*Registry, error) {
	r := &Registry{names: make(map[string]struct{}, len(jobs))}
	for _, job := range jobs {
		if job == nil {
			continue
		}
		name := job.Name()
		if name == "" {
			return nil, fmt.Errorf("cron job %T has no name", job)
		}
		if _, dup := r.names[name]; dup {
			return nil, fmt.Errorf("cron job %q registered twice", name)
		}
		r.names[name] = struct{}{}
		r.jobs = append(r.jobs, job)
	}
	return r, nil
}

// Jobs returns a copy in registration order.
func (r *Registry) Jobs() []Job {
	if r == nil {
		return nil
	}
	return append([]Job(nil), r.jobs...)
}
