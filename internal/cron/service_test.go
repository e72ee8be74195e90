package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	pkgerrors "github.com/mmararief/dante-propolis/pkg/errors"
	"github.com/mmararief/dante-propolis/pkg/logger"
	"github.com/mmararief/dante-propolis/pkg/metrics"
)

type fakeLock struct {
	held     map[string]bool
	name     string
	acquires int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	f.acquires++
	if f.held[f.name] {
		return false, nil
	}
	f.held[f.name] = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	delete(f.held, f.name)
	return nil
}

func fakeLocks(held map[string]bool) LockFactory {
	return func(job string) (Lock, error) {
		return &fakeLock{held: held, name: job}, nil
	}
}

type testJob struct {
	name  string
	err   error
	runs  int
	every time.Duration
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

type scheduledJob struct {
	*testJob
}

func (s scheduledJob) Every() time.Duration { return s.every }

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard})
}

func TestServiceRunCycleRunsAllJobsEvenOnFailure(t *testing.T) {
	success := &testJob{name: "success"}
	failure := &testJob{name: "fail", err: errors.New("boom")}
	reg := prometheus.NewRegistry()
	service, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(success, failure),
		Locks:    fakeLocks(map[string]bool{}),
		Metrics:  metrics.NewJobMetrics(reg),
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}

	service.runCycle(context.Background())

	if success.runs != 1 {
		t.Fatalf("expected success job to run once, ran %d", success.runs)
	}
	if failure.runs != 1 {
		t.Fatalf("expected failure job to run once, ran %d", failure.runs)
	}
	if got := failureCount(t, reg, "fail"); got != 1 {
		t.Fatalf("expected one failure recorded, got %f", got)
	}
}

func TestServiceSkipsJobsLockedElsewhere(t *testing.T) {
	job := &testJob{name: ReservationExpiryJobName}
	held := map[string]bool{ReservationExpiryJobName: true}
	service, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(job),
		Locks:    fakeLocks(held),
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}

	service.runCycle(context.Background())
	if job.runs != 0 {
		t.Fatalf("expected locked job to be skipped, ran %d", job.runs)
	}

	delete(held, ReservationExpiryJobName)
	service.runCycle(context.Background())
	if job.runs != 1 {
		t.Fatalf("expected job to run once lock is free, ran %d", job.runs)
	}
}

func TestServiceHonoursJobSchedule(t *testing.T) {
	daily := scheduledJob{&testJob{name: "daily", every: 24 * time.Hour}}
	everyTick := &testJob{name: "tick"}
	service, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(daily, everyTick),
		Locks:    fakeLocks(map[string]bool{}),
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	now := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return now }

	service.runCycle(context.Background())
	now = now.Add(time.Hour)
	service.runCycle(context.Background())

	if daily.runs != 1 {
		t.Fatalf("expected daily job to run once, ran %d", daily.runs)
	}
	if everyTick.runs != 2 {
		t.Fatalf("expected tick job to run twice, ran %d", everyTick.runs)
	}

	now = now.Add(24 * time.Hour)
	service.runCycle(context.Background())
	if daily.runs != 2 {
		t.Fatalf("expected daily job to run again after a day, ran %d", daily.runs)
	}
}

func TestServiceTrigger(t *testing.T) {
	job := &testJob{name: ReservationExpiryJobName}
	service, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(job),
		Locks:    fakeLocks(map[string]bool{}),
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if err := service.Trigger(context.Background(), ReservationExpiryJobName); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if job.runs != 1 {
		t.Fatalf("expected one run, got %d", job.runs)
	}
	if err := service.Trigger(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for unknown job")
	}
}

func TestServiceRetriesContendedJobNextTick(t *testing.T) {
	job := &testJob{name: ReservationExpiryJobName, every: time.Hour, err: pkgerrors.Busy(3, errors.New("lock wait timeout"))}
	service, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(scheduledJob{job}),
		Locks:    fakeLocks(map[string]bool{}),
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}

	service.runCycle(context.Background())
	job.err = nil
	service.runCycle(context.Background())
	service.runCycle(context.Background())

	if job.runs != 2 {
		t.Fatalf("expected contended run to be retried once then wait for schedule, ran %d", job.runs)
	}
}

func TestNewServiceRequiresLocks(t *testing.T) {
	if _, err := NewService(ServiceParams{Logger: testLogger()}); err == nil {
		t.Fatal("expected error without lock factory")
	}
}

func failureCount(t *testing.T, reg *prometheus.Registry, job string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() != "dante_job_runs_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			var jobMatch, failed bool
			for _, label := range metric.GetLabel() {
				switch label.GetName() {
				case "job":
					jobMatch = label.GetValue() == job
				case "outcome":
					failed = label.GetValue() == metrics.OutcomeFailure
				}
			}
			if jobMatch && failed {
				return metric.GetCounter().GetValue()
			}
		}
	}
	t.Fatalf("failure metric for %s not found", job)
	return 0
}
