package cron

import (
	"context"
	"fmt"
	"time"
)

// Job is one maintenance task of the cron worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Entry pairs a job with how often it should run across all workers.
type Entry struct {
	Job   Job
	Every time.Duration
}

// Registry holds the scheduled jobs keyed by name.
type Registry struct {
	entries []Entry
	names   map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{names: make(map[string]struct{})}
}

// Register schedules job every period. Names double as lease keys, so they
// must be unique.
func (r *Registry) Register(job Job, every time.Duration) error {
	if job == nil {
		return fmt.Errorf("job required")
	}
	if every <= 0 {
		return fmt.Errorf("job %s: cadence must be positive", job.Name())
	}
	if _, dup := r.names[job.Name()]; dup {
		return fmt.Errorf("job %s registered twice", job.Name())
	}
	r.names[job.Name()] = struct{}{}
	r.entries = append(r.entries, Entry{Job: job, Every: every})
	return nil
}

// Entries returns a copy in registration order.
func (r *Registry) Entries() []Entry {
	return append([]Entry(nil), r.entries...)
}
