package core

import (
	"fmt"
	"strings"
	"sync"
)

const (
	MessagePrintComplete  = "print complete"
	MessageListBillFailed = "list complete, bill failed"
	MessageBillListFailed = "bill complete, list failed"
)

// Outcome is the single client-visible answer for a print request.
type Outcome struct {
	Succeeded bool   `json:"succeeded"`
	Message   string `json:"message"`
}

func SingleOutcome(r Result) Outcome {
	if r.Succeeded {
		return Outcome{Succeeded: true, Message: MessagePrintComplete}
	}
	return Outcome{Succeeded: false, Message: r.Error}
}

// ComposeSplit applies the bill/list reporting policy. Any partial success is
// reported as success with a qualifying message; only a double failure is an
// error, and it carries the list's error.
func ComposeSplit(primaryOK, secondaryOK bool, secondaryErr string) Outcome {
	switch {
	case primaryOK && secondaryOK:
		return Outcome{Succeeded: true, Message: MessagePrintComplete}
	case !primaryOK && secondaryOK:
		return Outcome{Succeeded: true, Message: MessageListBillFailed}
	case primaryOK && !secondaryOK:
		return Outcome{Succeeded: true, Message: MessageBillListFailed}
	default:
		return Outcome{Succeeded: false, Message: secondaryErr}
	}
}

// SplitAggregator joins the bill and list halves of a split request.
type SplitAggregator struct {
	mu        sync.Mutex
	primary   *Result
	secondary *Result
	done      func(Outcome)
	once      sync.Once
}

func NewSplitAggregator(done func(Outcome)) *SplitAggregator {
	return &SplitAggregator{done: done}
}

func (a *SplitAggregator) Primary(r Result) {
	a.mu.Lock()
	a.primary = &r
	a.mu.Unlock()
	a.tryCompose()
}

func (a *SplitAggregator) Secondary(r Result) {
	a.mu.Lock()
	a.secondary = &r
	a.mu.Unlock()
	a.tryCompose()
}

// The scheduler is FIFO, so the primary has always reported by the time the
// secondary does; waiting for both keeps the answer correct regardless.
func (a *SplitAggregator) tryCompose() {
	a.mu.Lock()
	if a.primary == nil || a.secondary == nil {
		a.mu.Unlock()
		return
	}
	out := ComposeSplit(a.primary.Succeeded, a.secondary.Succeeded, a.secondary.Error)
	a.mu.Unlock()

	a.once.Do(func() {
		if a.done != nil {
			a.done(out)
		}
	})
}

type MemberResult struct {
	JobID  int64  `json:"job_id"`
	URL    string `json:"url"`
	Result Result `json:"result"`
}

type BatchOutcome struct {
	Outcome
	BatchID string         `json:"batch_id"`
	Members []MemberResult `json:"members"`
}

// BatchTracker fires once, after every member of a multi-file batch has
// reached a terminal state.
type BatchTracker struct {
	mu        sync.Mutex
	batchID   string
	members   []MemberResult
	index     map[int64]int
	reported  map[int64]bool
	remaining int
	done      func(BatchOutcome)
	once      sync.Once
}

func NewBatchTracker(jobs []*Job, done func(BatchOutcome)) *BatchTracker {
	t := &BatchTracker{
		members:   make([]MemberResult, len(jobs)),
		index:     make(map[int64]int, len(jobs)),
		reported:  make(map[int64]bool, len(jobs)),
		remaining: len(jobs),
		done:      done,
	}
	for i, job := range jobs {
		t.members[i] = MemberResult{JobID: job.ID, URL: job.EffectiveURL()}
		t.index[job.ID] = i
		if t.batchID == "" {
			t.batchID = job.BatchID
		}
	}
	return t
}

// Callback returns the completion hook for the member with the given id.
func (t *BatchTracker) Callback(jobID int64) func(Result) {
	return func(r Result) {
		t.record(jobID, r)
	}
}

func (t *BatchTracker) record(jobID int64, r Result) {
	t.mu.Lock()
	i, ok := t.index[jobID]
	if !ok || t.reported[jobID] {
		t.mu.Unlock()
		return
	}
	t.reported[jobID] = true
	t.members[i].Result = r
	t.remaining--
	if t.remaining > 0 {
		t.mu.Unlock()
		return
	}
	out := t.compose()
	t.mu.Unlock()

	t.once.Do(func() {
		if t.done != nil {
			t.done(out)
		}
	})
}

func (t *BatchTracker) compose() BatchOutcome {
	members := make([]MemberResult, len(t.members))
	copy(members, t.members)

	var ok int
	var errs []string
	for _, m := range members {
		if m.Result.Succeeded {
			ok++
			continue
		}
		errs = append(errs, fmt.Sprintf("job %d: %s", m.JobID, m.Result.Error))
	}

	out := BatchOutcome{BatchID: t.batchID, Members: members}
	switch {
	case ok == len(members):
		out.Outcome = Outcome{Succeeded: true, Message: MessagePrintComplete}
	case ok > 0:
		out.Outcome = Outcome{Succeeded: true, Message: fmt.Sprintf("printed %d of %d", ok, len(members))}
	default:
		out.Outcome = Outcome{Succeeded: false, Message: strings.Join(errs, "; ")}
	}
	return out
}
