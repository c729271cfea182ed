package core

import (
	"context"
	"time"
)

type FetchOptions struct {
	Timeout   time.Duration
	TLSVerify bool
}

// Fetcher downloads url into dir and returns the name of the written file.
type Fetcher interface {
	Fetch(ctx context.Context, url, dir string, opts FetchOptions) (string, error)
}

type DocumentOptions struct {
	Orientation string
	Printer     string
	Pages       string
	PaperSize   string
	Scale       string
	Monochrome  bool
	Silent      bool
}

type DocumentPrinter interface {
	PrintDocument(ctx context.Context, path string, opts DocumentOptions) error
}

type ImagePrinter interface {
	PrintImage(ctx context.Context, deviceName, path string) error
}

// Observer is notified after a job's callback has fired.
type Observer interface {
	OnJobFinished(job *Job, result Result, startedAt, finishedAt time.Time)
}

type ObserverFunc func(job *Job, result Result, startedAt, finishedAt time.Time)

func (f ObserverFunc) OnJobFinished(job *Job, result Result, startedAt, finishedAt time.Time) {
	f(job, result, startedAt, finishedAt)
}

type FileKind string

const (
	FileKindImage       FileKind = "image"
	FileKindPDF         FileKind = "pdf"
	FileKindUnsupported FileKind = "unsupported"
)

var imageExtensions = map[string]bool{
	"png":  true,
	"jpg":  true,
	"jpeg": true,
	"gif":  true,
	"bmp":  true,
	"webp": true,
	"tif":  true,
	"tiff": true,
}
