package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

type EntryState string

const (
	StateQueued      EntryState = "queued"
	StateDownloading EntryState = "downloading"
	StateClassifying EntryState = "classifying"
	StatePrinting    EntryState = "printing"
	StateCleaning    EntryState = "cleaning"
	StateDone        EntryState = "done"
)

// Runner executes one queue entry to a terminal result.
type Runner interface {
	Run(ctx context.Context, entry *Entry) Result
}

// Entry wraps a job with scheduler bookkeeping. The queue owns it until it is
// dequeued, then the runner owns it until the result is recorded.
type Entry struct {
	Job        *Job
	EnqueuedAt time.Time

	mu         sync.Mutex
	state      EntryState
	startedAt  time.Time
	scratchDir string
	result     *Result
	once       sync.Once
}

func newEntry(job *Job, now time.Time) *Entry {
	return &Entry{Job: job, EnqueuedAt: now, state: StateQueued}
}

func (e *Entry) State() EntryState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Entry) ScratchDir() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scratchDir
}

// Result is nil until the entry reaches StateDone.
func (e *Entry) Result() *Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.result
}

func (e *Entry) setState(s EntryState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateDone {
		return
	}
	e.state = s
}

func (e *Entry) setScratchDir(dir string) {
	e.mu.Lock()
	e.scratchDir = dir
	e.mu.Unlock()
}

func (e *Entry) start(now time.Time) {
	e.mu.Lock()
	e.startedAt = now
	e.mu.Unlock()
}

func (e *Entry) finish(r Result) {
	e.mu.Lock()
	e.state = StateDone
	e.result = &r
	e.mu.Unlock()
}

type EntryView struct {
	JobID      int64      `json:"job_id"`
	BatchID    string     `json:"batch_id,omitempty"`
	URL        string     `json:"url"`
	Pages      string     `json:"pages,omitempty"`
	State      EntryState `json:"state"`
	EnqueuedAt time.Time  `json:"enqueued_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
}

func (e *Entry) view() EntryView {
	e.mu.Lock()
	defer e.mu.Unlock()
	v := EntryView{
		JobID:      e.Job.ID,
		BatchID:    e.Job.BatchID,
		URL:        e.Job.EffectiveURL(),
		Pages:      e.Job.Options.Pages,
		State:      e.state,
		EnqueuedAt: e.EnqueuedAt,
	}
	if !e.startedAt.IsZero() {
		started := e.startedAt
		v.StartedAt = &started
	}
	return v
}

type QueueStats struct {
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Pending   int   `json:"pending"`
	Active    int   `json:"active"`
}

type Option func(*Scheduler)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithObservers(observers ...Observer) Option {
	return func(s *Scheduler) {
		s.observers = append(s.observers, observers...)
	}
}

func withClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// Scheduler drains submitted jobs one at a time, in submission order, into a
// Runner. There is exactly one worker, so the printer is never shared.
type Scheduler struct {
	runner    Runner
	seq       Sequencer
	observers []Observer
	logger    *zap.Logger
	now       func() time.Time

	mu      sync.Mutex
	pending []*Entry
	active  *Entry
	stopped bool
	stats   QueueStats

	wake     chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func NewScheduler(runner Runner, opts ...Option) *Scheduler {
	s := &Scheduler{
		runner: runner,
		logger: zap.NewNop(),
		now:    time.Now,
		wake:   make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("scheduler")
	return s
}

// Sequencer is the id source for jobs submitted to this scheduler.
func (s *Scheduler) Sequencer() *Sequencer {
	return &s.seq
}

// Submit enqueues job without blocking. Structural problems are returned
// directly and the job's callback is never invoked for them.
func (s *Scheduler) Submit(job *Job) error {
	return s.SubmitAll(job)
}

// SubmitAll enqueues jobs back to back so no other submission interleaves.
// Either every job is accepted or none is.
func (s *Scheduler) SubmitAll(jobs ...*Job) error {
	for _, job := range jobs {
		if job == nil || job.SourceURL == "" {
			return ErrMissingSourceURL
		}
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrSchedulerStopped
	}
	now := s.now()
	for _, job := range jobs {
		s.pending = append(s.pending, newEntry(job, now))
		s.stats.Submitted++
	}
	s.mu.Unlock()

	for _, job := range jobs {
		s.logger.Debug("job queued", zap.Int64("job_id", job.ID), zap.String("batch_id", job.BatchID))
	}

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

// Run is the drain loop. It returns after Stop or ctx cancellation, once the
// active entry has finished; entries still queued are failed with
// ErrSchedulerStopped.
func (s *Scheduler) Run(ctx context.Context) error {
	defer close(s.done)

	// A print in progress is never interrupted.
	runCtx := context.WithoutCancel(ctx)

	s.logger.Info("scheduler started")
	for {
		select {
		case <-s.stopCh:
			s.shutdown()
			return nil
		case <-ctx.Done():
			s.shutdown()
			return nil
		default:
		}

		entry := s.dequeue()
		if entry == nil {
			select {
			case <-s.wake:
			case <-s.stopCh:
			case <-ctx.Done():
			}
			continue
		}

		s.process(runCtx, entry)
	}
}

func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
		close(s.stopCh)
	})
}

// Done is closed when Run has returned.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

func (s *Scheduler) dequeue() *Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		return nil
	}
	entry := s.pending[0]
	s.pending[0] = nil
	s.pending = s.pending[1:]
	s.active = entry
	return entry
}

func (s *Scheduler) process(ctx context.Context, entry *Entry) {
	startedAt := s.now()
	entry.start(startedAt)

	result := s.runSafely(ctx, entry)
	s.complete(entry, result, startedAt)

	s.mu.Lock()
	s.active = nil
	s.mu.Unlock()
}

func (s *Scheduler) runSafely(ctx context.Context, entry *Entry) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("runner panic", zap.Int64("job_id", entry.Job.ID), zap.Any("panic", r))
			result = Result{Error: fmt.Sprintf("internal error: %v", r)}
		}
	}()
	return s.runner.Run(ctx, entry)
}

func (s *Scheduler) complete(entry *Entry, result Result, startedAt time.Time) {
	entry.once.Do(func() {
		entry.finish(result)

		s.mu.Lock()
		if result.Succeeded {
			s.stats.Completed++
		} else {
			s.stats.Failed++
		}
		s.mu.Unlock()

		job := entry.Job
		if job.OnComplete != nil {
			s.guard("callback", job.ID, func() { job.OnComplete(result) })
		}

		finishedAt := s.now()
		for _, o := range s.observers {
			s.guard("observer", job.ID, func() { o.OnJobFinished(job, result, startedAt, finishedAt) })
		}
	})
}

func (s *Scheduler) guard(what string, jobID int64, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(what+" panic", zap.Int64("job_id", jobID), zap.Any("panic", r))
		}
	}()
	fn()
}

func (s *Scheduler) shutdown() {
	s.mu.Lock()
	s.stopped = true
	remaining := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, entry := range remaining {
		now := s.now()
		s.complete(entry, failure("", ErrSchedulerStopped), now)
	}
	s.logger.Info("scheduler stopped", zap.Int("abandoned", len(remaining)))
}

func (s *Scheduler) Snapshot() []EntryView {
	s.mu.Lock()
	entries := make([]*Entry, 0, len(s.pending)+1)
	if s.active != nil {
		entries = append(entries, s.active)
	}
	entries = append(entries, s.pending...)
	s.mu.Unlock()

	views := make([]EntryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, e.view())
	}
	return views
}

func (s *Scheduler) Stats() QueueStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := s.stats
	stats.Pending = len(s.pending)
	if s.active != nil {
		stats.Active = 1
	}
	return stats
}
