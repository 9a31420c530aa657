package cron

import (
	"context"
	"fmt"
)

// Job is one unit of scheduled work, such as the payment sweep.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry holds jobs in registration order; names are unique.
type Registry struct {
	jobs  []Job
	names map[string]struct{}
}

func NewRegistry(jobs ...Job) (*Registry, error) {
	r := &Registry{names: map[string]struct{}{}}
	for _, job := range jobs {
		if err := r.Register(job); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(job Job) error {
	if job == nil {
		return fmt.Errorf("cron: nil job")
	}
	name := job.Name()
	if name == "" {
		return fmt.Errorf("cron: job name is required")
	}
	if _, dup := r.names[name]; dup {
		return fmt.Errorf("cron: job %q already registered", name)
	}
	r.names[name] = struct{}{}
	r.jobs = append(r.jobs, job)
	return nil
}

// Jobs returns a copy, so callers cannot reorder the schedule.
func (r *Registry) Jobs() []Job {
	return append([]Job(nil), r.jobs...)
}
