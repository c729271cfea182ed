package core

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Submitter interface {
	SubmitAll(jobs ...*Job) error
}

// wireOptions is the JSON carried base64-encoded in the fileUrl parameter.
type wireOptions struct {
	URL                string `json:"url"`
	Pages              string `json:"pages"`
	Orientation        string `json:"orientation"`
	PaperSize          string `json:"paperSize"`
	Printer            string `json:"printer"`
	OrientationList    string `json:"orientationList"`
	PaperSizeList      string `json:"paperSizeList"`
	RejectUnauthorized *bool  `json:"rejectUnauthorized"`
	TimeoutMs          int64  `json:"timeout"`
}

var base64Encodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.URLEncoding,
	base64.RawStdEncoding,
	base64.RawURLEncoding,
}

// DecodeOptions decodes a base64(JSON) download options payload.
func DecodeOptions(encoded string) (DownloadOptions, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return DownloadOptions{}, ErrMissingOptions
	}

	var raw []byte
	var err error
	for _, enc := range base64Encodings {
		raw, err = enc.DecodeString(encoded)
		if err == nil {
			break
		}
	}
	if err != nil {
		return DownloadOptions{}, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}

	var w wireOptions
	if err := json.Unmarshal(raw, &w); err != nil {
		return DownloadOptions{}, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	if strings.TrimSpace(w.URL) == "" {
		return DownloadOptions{}, ErrMissingSourceURL
	}

	opts := DownloadOptions{
		URL:             strings.TrimSpace(w.URL),
		Pages:           w.Pages,
		Orientation:     w.Orientation,
		PaperSize:       w.PaperSize,
		Printer:         w.Printer,
		OrientationList: w.OrientationList,
		PaperSizeList:   w.PaperSizeList,
		TLSVerify:       w.RejectUnauthorized,
	}
	if w.TimeoutMs > 0 {
		opts.Timeout = time.Duration(w.TimeoutMs) * time.Millisecond
	}
	return opts, nil
}

// EncodeOptions is the inverse of DecodeOptions.
func EncodeOptions(opts DownloadOptions) (string, error) {
	w := wireOptions{
		URL:                opts.URL,
		Pages:              opts.Pages,
		Orientation:        opts.Orientation,
		PaperSize:          opts.PaperSize,
		Printer:            opts.Printer,
		OrientationList:    opts.OrientationList,
		PaperSizeList:      opts.PaperSizeList,
		RejectUnauthorized: opts.TLSVerify,
		TimeoutMs:          opts.Timeout.Milliseconds(),
	}
	raw, err := json.Marshal(w)
	if err != nil {
		return "", fmt.Errorf("failed to encode options: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Planner turns intake requests into jobs and submits them. Id allocation and
// submission happen under one lock so ids stay in submission order.
type Planner struct {
	mu         sync.Mutex
	seq        *Sequencer
	submitter  Submitter
	now        func() time.Time
	newBatchID func() string
}

func NewPlanner(s *Scheduler) *Planner {
	return &Planner{
		seq:        s.Sequencer(),
		submitter:  s,
		now:        time.Now,
		newBatchID: uuid.NewString,
	}
}

func (p *Planner) newJob(sourceURL string, opts DownloadOptions, standalone bool) *Job {
	return &Job{
		ID:         p.seq.Next(),
		SourceURL:  sourceURL,
		Options:    opts,
		Standalone: standalone,
		CreatedAt:  p.now(),
	}
}

// Plan returns one job, or the bill and list jobs when the page range is the
// split marker.
func (p *Planner) Plan(opts DownloadOptions) []*Job {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.plan(opts)
}

func (p *Planner) plan(opts DownloadOptions) []*Job {
	if opts.Pages != SplitPages {
		return []*Job{p.newJob(opts.URL, opts, true)}
	}

	bill := opts
	bill.Pages = BillPages

	list := opts
	list.Pages = ListPages
	list.Orientation = opts.OrientationList
	list.PaperSize = opts.PaperSizeList

	return []*Job{
		p.newJob(opts.URL, bill, true),
		p.newJob(opts.URL, list, true),
	}
}

// SubmitPrint plans and submits a /print request; done receives exactly one
// composed outcome.
func (p *Planner) SubmitPrint(opts DownloadOptions, done func(Outcome)) ([]*Job, error) {
	if opts.URL == "" {
		return nil, ErrMissingSourceURL
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	jobs := p.plan(opts)
	if len(jobs) == 2 {
		agg := NewSplitAggregator(done)
		jobs[0].OnComplete = agg.Primary
		jobs[1].OnComplete = agg.Secondary
	} else {
		jobs[0].OnComplete = func(r Result) {
			if done != nil {
				done(SingleOutcome(r))
			}
		}
	}

	if err := p.submitter.SubmitAll(jobs...); err != nil {
		return nil, err
	}
	return jobs, nil
}

// SplitURLs splits a semicolon separated url list, dropping blanks.
func SplitURLs(fileURL string) []string {
	var urls []string
	for _, u := range strings.Split(fileURL, ";") {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}

func (p *Planner) PlanBatch(fileURL string, base DownloadOptions) ([]*Job, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.planBatch(fileURL, base)
}

func (p *Planner) planBatch(fileURL string, base DownloadOptions) ([]*Job, error) {
	urls := SplitURLs(fileURL)
	if len(urls) == 0 {
		return nil, ErrEmptyBatch
	}

	batchID := p.newBatchID()
	jobs := make([]*Job, 0, len(urls))
	for _, u := range urls {
		opts := base
		opts.URL = u
		job := p.newJob(u, opts, false)
		job.BatchID = batchID
		jobs = append(jobs, job)
	}

	start, end := jobs[0].ID, jobs[len(jobs)-1].ID
	for _, job := range jobs {
		job.BatchStart = start
		job.BatchEnd = end
	}
	return jobs, nil
}

// SubmitBatch plans and submits a /multiple-print request. done fires once,
// after every member has finished.
func (p *Planner) SubmitBatch(fileURL string, base DownloadOptions, done func(BatchOutcome)) ([]*Job, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	jobs, err := p.planBatch(fileURL, base)
	if err != nil {
		return nil, err
	}

	tracker := NewBatchTracker(jobs, done)
	for _, job := range jobs {
		job.OnComplete = tracker.Callback(job.ID)
	}

	if err := p.submitter.SubmitAll(jobs...); err != nil {
		return nil, err
	}
	return jobs, nil
}
