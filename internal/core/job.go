package core

import (
	"sync/atomic"
	"time"
)

// SplitPages marks a request that carries two logical documents: a one-page
// bill followed by its list pages.
const SplitPages = "1-999"

const (
	BillPages = "1-1"
	ListPages = "2-99"
)

type DownloadOptions struct {
	URL             string        `json:"url"`
	Pages           string        `json:"pages,omitempty"`
	Orientation     string        `json:"orientation,omitempty"`
	PaperSize       string        `json:"paperSize,omitempty"`
	Printer         string        `json:"printer,omitempty"`
	OrientationList string        `json:"orientationList,omitempty"`
	PaperSizeList   string        `json:"paperSizeList,omitempty"`
	TLSVerify       *bool         `json:"rejectUnauthorized,omitempty"`
	Timeout         time.Duration `json:"-"`
}

// Job describes one requested print. It is not modified after submission.
type Job struct {
	ID         int64
	SourceURL  string
	Options    DownloadOptions
	Standalone bool
	BatchID    string
	BatchStart int64
	BatchEnd   int64
	CreatedAt  time.Time
	OnComplete func(Result)
}

// EffectiveURL is the location actually downloaded. Options may override the
// source the job was created with.
func (j *Job) EffectiveURL() string {
	if j.Options.URL != "" {
		return j.Options.URL
	}
	return j.SourceURL
}

type Result struct {
	Succeeded bool   `json:"succeeded"`
	Filename  string `json:"filename,omitempty"`
	Error     string `json:"error,omitempty"`
}

func success(filename string) Result {
	return Result{Succeeded: true, Filename: filename}
}

func failure(filename string, err error) Result {
	return Result{Succeeded: false, Filename: filename, Error: err.Error()}
}

// Sequencer hands out job ids. Each scheduler owns one.
type Sequencer struct {
	next atomic.Int64
}

func (s *Sequencer) Next() int64 {
	return s.next.Add(1) - 1
}
