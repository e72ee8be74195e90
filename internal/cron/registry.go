package cron

import (
	"context"
	"fmt"
	"time"
)

// Job is one unit of scheduled work. Name doubles as the lock key suffix, so
// it must be unique within a worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduled jobs run at most once per Every. Other jobs run on every tick.
type Scheduled interface {
	Every() time.Duration
}

type Registry struct {
	order  []string
	byName map[string]Job
}

// NewRegistry registers jobs in order. It panics on a duplicate name.
func NewRegistry(jobs ...Job) *Registry {
	r := &Registry{byName: make(map[string]Job, len(jobs))}
	for _, job := range jobs {
		r.Register(job)
	}
	return r
}

// Register adds job. Nil jobs are skipped and a duplicate name panics, since
// two jobs sharing a lock would starve one another.
func (r *Registry) Register(job Job) {
	if job == nil {
		return
	}
	name := job.Name()
	if _, dup := r.byName[name]; dup {
		panic(fmt.Sprintf("cron: job %q registered twice", name))
	}
	r.byName[name] = job
	r.order = append(r.order, name)
}

func (r *Registry) Lookup(name string) (Job, bool) {
	job, ok := r.byName[name]
	return job, ok
}

// Jobs returns a copy of the registered jobs in registration order.
func (r *Registry) Jobs() []Job {
	jobs := make([]Job, 0, len(r.order))
	for _, name := range r.order {
		jobs = append(jobs, r.byName[name])
	}
	return jobs
}

// Names lists job names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

func everyOf(job Job) time.Duration {
	if s, ok := job.(Scheduled); ok {
		return s.Every()
	}
	return 0
}
