package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studentnest/nest-backend/pkg/logger"
	"github.com/studentnest/nest-backend/pkg/metrics"
)

type fakeLock struct {
	held     bool
	releases int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.held = false
	f.releases++
	return nil
}

type countingJob struct {
	name string
	err  error
	runs int
	wait time.Duration
}

func (c *countingJob) Name() string { return c.name }

func (c *countingJob) Run(ctx context.Context) error {
	c.runs++
	if c.wait > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.wait):
		}
	}
	return c.err
}

func newTestService(t *testing.T, lock Lock, params ServiceParams, jobs ...Job) *Service {
	t.Helper()
	registry, err := NewRegistry(jobs...)
	require.NoError(t, err)
	params.Logger = logger.Nop()
	params.Registry = registry
	params.Lock = lock
	svc, err := NewService(params)
	require.NoError(t, err)
	return svc
}

func TestRunOnceRunsEveryJobAndCombinesFailures(t *testing.T) {
	ok := &countingJob{name: "payment-reconcile"}
	bad := &countingJob{name: "refund-retry", err: errors.New("gateway down")}
	lock := &fakeLock{}
	reg := prometheus.NewRegistry()
	svc := newTestService(t, lock, ServiceParams{Metrics: metrics.NewJobMetrics(reg)}, bad, ok)

	ran, err := svc.RunOnce(context.Background())
	assert.True(t, ran)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refund-retry: gateway down")
	assert.Equal(t, 1, ok.runs)
	assert.Equal(t, 1, bad.runs)
	assert.Equal(t, 1, lock.releases)
	assert.False(t, lock.held)
	families, err := reg.Gather()
	require.NoError(t, err)
	var series int
	for _, mf := range families {
		if mf.GetName() == "nest_job_runs_total" {
			series = len(mf.GetMetric())
		}
	}
	assert.Equal(t, 2, series, "one success and one failure series")
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	job := &countingJob{name: "payment-reconcile"}
	lock := &fakeLock{held: true}
	svc := newTestService(t, lock, ServiceParams{}, job)

	ran, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, ran)
	assert.Zero(t, job.runs)
	assert.Zero(t, lock.releases)
}

func TestRunOnceAppliesJobTimeout(t *testing.T) {
	slow := &countingJob{name: "payment-reconcile", wait: time.Second}
	svc := newTestService(t, &fakeLock{}, ServiceParams{JobTimeout: 10 * time.Millisecond}, slow)

	_, err := svc.RunOnce(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunStopsOnCancel(t *testing.T) {
	job := &countingJob{name: "payment-reconcile"}
	svc := newTestService(t, &fakeLock{}, ServiceParams{Interval: time.Hour}, job)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	require.Eventually(t, func() bool { return job.runs == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNewServiceValidates(t *testing.T) {
	registry, _ := NewRegistry()
	_, err := NewService(ServiceParams{Registry: registry, Lock: &fakeLock{}})
	assert.Error(t, err)
	_, err = NewService(ServiceParams{Logger: logger.Nop(), Registry: registry})
	assert.Error(t, err)
	_, err = NewService(ServiceParams{Logger: logger.Nop(), Lock: &fakeLock{}})
	assert.Error(t, err)
}
