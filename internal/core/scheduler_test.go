package core

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type runnerFunc func(ctx context.Context, entry *Entry) Result

func (f runnerFunc) Run(ctx context.Context, entry *Entry) Result {
	return f(ctx, entry)
}

func startScheduler(t *testing.T, runner Runner, opts ...Option) *Scheduler {
	t.Helper()
	s := NewScheduler(runner, opts...)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-s.Done()
	})
	return s
}

func newTestJob(id int64, done func(Result)) *Job {
	return &Job{
		ID:         id,
		SourceURL:  "http://example.test/file.pdf",
		Standalone: true,
		CreatedAt:  time.Now(),
		OnComplete: done,
	}
}

func TestScheduler_RunsJobsInSubmissionOrder(t *testing.T) {
	var (
		mu      sync.Mutex
		order   []int64
		running atomic.Int32
		overlap atomic.Bool
	)
	runner := runnerFunc(func(ctx context.Context, entry *Entry) Result {
		if running.Add(1) > 1 {
			overlap.Store(true)
		}
		defer running.Add(-1)
		time.Sleep(2 * time.Millisecond)

		mu.Lock()
		order = append(order, entry.Job.ID)
		mu.Unlock()
		return success("file.pdf")
	})

	s := startScheduler(t, runner)

	var wg sync.WaitGroup
	var jobs []*Job
	for i := int64(0); i < 10; i++ {
		wg.Add(1)
		jobs = append(jobs, newTestJob(i, func(Result) { wg.Done() }))
	}
	for _, job := range jobs {
		require.NoError(t, s.Submit(job))
	}
	wg.Wait()

	assert.Equal(t, []int64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
	assert.False(t, overlap.Load(), "two jobs ran at the same time")

	stats := s.Stats()
	assert.Equal(t, int64(10), stats.Submitted)
	assert.Equal(t, int64(10), stats.Completed)
	assert.Equal(t, 0, stats.Pending)
}

func TestScheduler_NextJobWaitsForPreviousCallback(t *testing.T) {
	release := make(chan struct{})
	started := make(chan int64, 2)
	runner := runnerFunc(func(ctx context.Context, entry *Entry) Result {
		started <- entry.Job.ID
		if entry.Job.ID == 0 {
			<-release
		}
		return success("a.pdf")
	})

	s := startScheduler(t, runner)

	done := make(chan int64, 2)
	require.NoError(t, s.SubmitAll(
		newTestJob(0, func(Result) { done <- 0 }),
		newTestJob(1, func(Result) { done <- 1 }),
	))

	assert.Equal(t, int64(0), <-started)
	select {
	case id := <-started:
		t.Fatalf("job %d started while job 0 was still running", id)
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	assert.Equal(t, int64(0), <-done)
	assert.Equal(t, int64(1), <-started)
	assert.Equal(t, int64(1), <-done)
}

func TestScheduler_CallbackFiresExactlyOnce(t *testing.T) {
	var calls atomic.Int32
	done := make(chan struct{})
	runner := runnerFunc(func(ctx context.Context, entry *Entry) Result {
		return Result{Error: "boom"}
	})

	var observed atomic.Int32
	s := startScheduler(t, runner, WithObservers(ObserverFunc(func(job *Job, r Result, _, _ time.Time) {
		observed.Add(1)
		close(done)
	})))

	require.NoError(t, s.Submit(newTestJob(0, func(r Result) {
		calls.Add(1)
		assert.False(t, r.Succeeded)
		assert.Equal(t, "boom", r.Error)
	})))

	<-done
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int32(1), observed.Load())
	assert.Equal(t, int64(1), s.Stats().Failed)
}

func TestScheduler_SurvivesRunnerPanic(t *testing.T) {
	runner := runnerFunc(func(ctx context.Context, entry *Entry) Result {
		if entry.Job.ID == 0 {
			panic("driver exploded")
		}
		return success("ok.pdf")
	})
	s := startScheduler(t, runner)

	results := make(chan Result, 2)
	require.NoError(t, s.SubmitAll(
		newTestJob(0, func(r Result) { results <- r }),
		newTestJob(1, func(r Result) { results <- r }),
	))

	first := <-results
	assert.False(t, first.Succeeded)
	assert.Contains(t, first.Error, "driver exploded")

	second := <-results
	assert.True(t, second.Succeeded)
}

func TestScheduler_SurvivesCallbackPanic(t *testing.T) {
	runner := runnerFunc(func(ctx context.Context, entry *Entry) Result {
		return success("ok.pdf")
	})
	s := startScheduler(t, runner)

	done := make(chan struct{})
	require.NoError(t, s.SubmitAll(
		newTestJob(0, func(Result) { panic("caller bug") }),
		newTestJob(1, func(Result) { close(done) }),
	))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second job never completed")
	}
}

func TestScheduler_StopFailsPendingJobs(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	runner := runnerFunc(func(ctx context.Context, entry *Entry) Result {
		close(started)
		<-release
		return success("a.pdf")
	})
	s := startScheduler(t, runner)

	results := make(chan Result, 3)
	for i := int64(0); i < 3; i++ {
		require.NoError(t, s.Submit(newTestJob(i, func(r Result) { results <- r })))
	}
	<-started

	s.Stop()
	assert.ErrorIs(t, s.Submit(newTestJob(3, nil)), ErrSchedulerStopped)

	close(release)
	<-s.Done()

	var succeeded, stopped int
	for i := 0; i < 3; i++ {
		r := <-results
		if r.Succeeded {
			succeeded++
			continue
		}
		assert.Equal(t, ErrSchedulerStopped.Error(), r.Error)
		stopped++
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 2, stopped)
}

func TestScheduler_SubmitRejectsMissingURL(t *testing.T) {
	s := NewScheduler(runnerFunc(func(context.Context, *Entry) Result { return Result{} }))

	called := false
	err := s.Submit(&Job{ID: 1, OnComplete: func(Result) { called = true }})
	assert.ErrorIs(t, err, ErrMissingSourceURL)
	assert.False(t, called)
	assert.Equal(t, int64(0), s.Stats().Submitted)

	err = s.SubmitAll(newTestJob(2, nil), nil)
	assert.ErrorIs(t, err, ErrMissingSourceURL)
	assert.Equal(t, 0, s.Stats().Pending)
}

func TestScheduler_SnapshotShowsActiveAndPending(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	runner := runnerFunc(func(ctx context.Context, entry *Entry) Result {
		entry.setState(StateDownloading)
		once.Do(func() { close(started) })
		<-release
		return success("a.pdf")
	})
	fixed := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	s := startScheduler(t, runner, withClock(func() time.Time { return fixed }))
	t.Cleanup(func() { close(release) })

	require.NoError(t, s.SubmitAll(newTestJob(0, nil), newTestJob(1, nil)))
	<-started

	views := s.Snapshot()
	require.Len(t, views, 2)
	assert.Equal(t, int64(0), views[0].JobID)
	assert.Equal(t, StateDownloading, views[0].State)
	require.NotNil(t, views[0].StartedAt)
	assert.Equal(t, fixed, *views[0].StartedAt)
	assert.Equal(t, fixed, views[1].EnqueuedAt)
	assert.Equal(t, int64(1), views[1].JobID)
	assert.Equal(t, StateQueued, views[1].State)

	stats := s.Stats()
	assert.Equal(t, 1, stats.Active)
	assert.Equal(t, 1, stats.Pending)
}

func TestEntry_StateIsFinalAfterDone(t *testing.T) {
	e := newEntry(newTestJob(0, nil), time.Now())
	e.finish(success("a.pdf"))
	e.setState(StatePrinting)

	assert.Equal(t, StateDone, e.State())
	require.NotNil(t, e.Result())
	assert.True(t, e.Result().Succeeded)
}
