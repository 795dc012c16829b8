package scheduler

import (
	"context"
	"errors"
	"io"
	"log"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestAddJobRejectedAfterStart(t *testing.T) {
	s := New(nil)
	s.Start()
	defer s.Stop(context.Background())

	err := s.AddJob("late", time.Second, func(ctx context.Context, now time.Time) error { return nil })
	assert.Error(t, err)
}

func TestRunNowExecutesRegisteredJob(t *testing.T) {
	s := New(nil)
	var calls atomic.Int32
	require.NoError(t, s.AddJob("probe", time.Hour, func(ctx context.Context, now time.Time) error {
		calls.Add(1)
		return nil
	}))

	require.NoError(t, s.RunNow(context.Background(), "probe", time.Now()))
	assert.EqualValues(t, 1, calls.Load())
}

func TestRunNowUnknownJobErrors(t *testing.T) {
	s := New(nil)
	err := s.RunNow(context.Background(), "missing", time.Now())
	assert.Error(t, err)
}

func TestJobSingleflightSkipsOverlappingTick(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 2)
	var running atomic.Int32

	j := &job{name: "slow", fn: func(ctx context.Context, now time.Time) error {
		running.Add(1)
		started <- struct{}{}
		<-release
		running.Add(-1)
		return nil
	}}
	var paused atomic.Bool

	go j.run(context.Background(), discardLogger(), &paused)
	<-started

	// second tick while first still holds the lock must be a no-op, not a block
	done := make(chan struct{})
	go func() {
		j.run(context.Background(), discardLogger(), &paused)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second tick should have returned immediately instead of blocking")
	}
	assert.EqualValues(t, 1, running.Load())

	close(release)
}

func TestPauseSkipsJobExecution(t *testing.T) {
	var calls atomic.Int32
	j := &job{name: "paused-job", fn: func(ctx context.Context, now time.Time) error {
		calls.Add(1)
		return nil
	}}
	var paused atomic.Bool
	paused.Store(true)

	j.run(context.Background(), discardLogger(), &paused)
	assert.Zero(t, calls.Load())
}

func TestStartStopPauseResumeStateTransitions(t *testing.T) {
	s := New(nil)
	assert.Equal(t, StateStopped, s.State())

	s.Start()
	assert.Equal(t, StateRunning, s.State())

	s.Pause()
	assert.Equal(t, StatePaused, s.State())

	s.Resume()
	assert.Equal(t, StateRunning, s.State())

	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, StateStopped, s.State())
}

func TestJobErrorIsLoggedNotPropagated(t *testing.T) {
	j := &job{name: "failing", fn: func(ctx context.Context, now time.Time) error {
		return errors.New("boom")
	}}
	var paused atomic.Bool
	j.run(context.Background(), discardLogger(), &paused) // must not panic
}
