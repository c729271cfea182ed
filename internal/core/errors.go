package core

import (
	"errors"
	"fmt"
)

var (
	ErrMissingSourceURL      = errors.New("file url must not be empty")
	ErrMissingOptions        = errors.New("download options must not be empty")
	ErrInvalidOptions        = errors.New("download options could not be decoded")
	ErrSchedulerStopped      = errors.New("scheduler is stopped")
	ErrCacheContentsAbnormal = errors.New("file missing or cache contents abnormal")
	ErrUnsupportedFileType   = errors.New("unsupported file type, check that the link points to a printable resource and is accessible")
	ErrEmptyBatch            = errors.New("batch contains no file urls")
)

// TimeoutHint prefixes fetch errors caused by a download timeout.
const TimeoutHint = "download timed out, check the link"

type FetchError struct {
	URL     string
	Message string
	Timeout bool
	Err     error
}

func (e *FetchError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Timeout {
		return fmt.Sprintf("%q %s", TimeoutHint, msg)
	}
	return msg
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// PrintError wraps a failure reported by a document or image printer.
type PrintError struct {
	Kind string
	Err  error
}

func (e *PrintError) Error() string {
	return fmt.Sprintf("%s print failed: %v", e.Kind, e.Err)
}

func (e *PrintError) Unwrap() error {
	return e.Err
}
