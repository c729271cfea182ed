package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultFetchTimeout = 10 * time.Second
	unrecognizedSnippet = 512
)

type PipelineConfig struct {
	DeviceName   string
	FetchTimeout time.Duration
	TLSVerify    bool
}

// Pipeline turns one job into a printed document or a failure. The scratch
// directory it allocates is removed on every exit path.
type Pipeline struct {
	scratch   *ScratchAllocator
	fetcher   Fetcher
	documents DocumentPrinter
	images    ImagePrinter
	config    PipelineConfig
	logger    *zap.Logger
}

func NewPipeline(scratch *ScratchAllocator, fetcher Fetcher, documents DocumentPrinter, images ImagePrinter, cfg PipelineConfig, logger *zap.Logger) *Pipeline {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		scratch:   scratch,
		fetcher:   fetcher,
		documents: documents,
		images:    images,
		config:    cfg,
		logger:    logger.Named("pipeline"),
	}
}

func (p *Pipeline) Run(ctx context.Context, entry *Entry) (result Result) {
	job := entry.Job
	var filename string

	dir, err := p.scratch.Allocate()
	if err != nil {
		result = failure("", err)
		p.audit(job, result)
		return result
	}
	entry.setScratchDir(dir)

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("pipeline panic", zap.Int64("job_id", job.ID), zap.Any("panic", r))
			result = failure(filename, fmt.Errorf("internal error: %v", r))
		}
		entry.setState(StateCleaning)
		p.cleanup(dir)
		p.audit(job, result)
	}()

	entry.setState(StateDownloading)
	if err := p.fetch(ctx, job, dir); err != nil {
		return failure(filename, err)
	}

	entry.setState(StateClassifying)
	filename, err = classify(dir, job.EffectiveURL())
	if err != nil {
		return failure(filename, err)
	}

	entry.setState(StatePrinting)
	if err := p.dispatch(ctx, job, filepath.Join(dir, filename)); err != nil {
		return failure(filename, err)
	}

	return success(filename)
}

func (p *Pipeline) fetch(ctx context.Context, job *Job, dir string) error {
	opts := FetchOptions{
		Timeout:   p.config.FetchTimeout,
		TLSVerify: p.config.TLSVerify,
	}
	if job.Options.Timeout > 0 {
		opts.Timeout = job.Options.Timeout
	}
	if job.Options.TLSVerify != nil {
		opts.TLSVerify = *job.Options.TLSVerify
	}

	fetchCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	url := job.EffectiveURL()
	p.logger.Debug("downloading", zap.Int64("job_id", job.ID), zap.String("url", url), zap.String("dir", dir))

	if _, err := p.fetcher.Fetch(fetchCtx, url, dir, opts); err != nil {
		var fe *FetchError
		if errors.As(err, &fe) {
			return fe
		}
		return &FetchError{
			URL:     url,
			Timeout: errors.Is(fetchCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded),
			Err:     err,
		}
	}
	return nil
}

// classify requires exactly one downloaded file with an extension.
func classify(dir, url string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read scratch directory: %w", err)
	}
	if len(entries) != 1 || entries[0].IsDir() {
		return "", ErrCacheContentsAbnormal
	}

	name := entries[0].Name()
	if Extension(name) == "" {
		// Typically an auth wall or hotlink guard answered instead of the file.
		return name, &FetchError{
			URL:     url,
			Message: fmt.Sprintf("unrecognized download content: %s", readSnippet(filepath.Join(dir, name))),
		}
	}
	return name, nil
}

func readSnippet(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	buf, _ := io.ReadAll(io.LimitReader(f, unrecognizedSnippet))
	return strings.TrimSpace(string(buf))
}

// Extension returns the lowercased text after the last dot, or "" if there is none.
func Extension(name string) string {
	idx := strings.LastIndex(name, ".")
	if idx < 0 || idx == len(name)-1 {
		return ""
	}
	return strings.ToLower(name[idx+1:])
}

func KindOf(ext string) FileKind {
	switch {
	case imageExtensions[ext]:
		return FileKindImage
	case ext == "pdf":
		return FileKindPDF
	default:
		return FileKindUnsupported
	}
}

func (p *Pipeline) dispatch(ctx context.Context, job *Job, path string) error {
	switch KindOf(Extension(path)) {
	case FileKindImage:
		if p.images == nil {
			return &PrintError{Kind: "image", Err: errors.New("image printer not configured")}
		}
		if err := p.images.PrintImage(ctx, p.config.DeviceName, path); err != nil {
			return &PrintError{Kind: "image", Err: err}
		}
		return nil

	case FileKindPDF:
		if p.documents == nil {
			return &PrintError{Kind: "document", Err: errors.New("document printer not configured")}
		}
		printer := job.Options.Printer
		if printer == "" {
			printer = p.config.DeviceName
		}
		opts := DocumentOptions{
			Orientation: job.Options.Orientation,
			Printer:     printer,
			Pages:       job.Options.Pages,
			PaperSize:   job.Options.PaperSize,
			Scale:       "fit",
			Monochrome:  false,
			Silent:      false,
		}
		p.logger.Info("printing document",
			zap.Int64("job_id", job.ID),
			zap.String("orientation", opts.Orientation),
			zap.String("printer", opts.Printer),
			zap.String("pages", opts.Pages),
			zap.String("paper_size", opts.PaperSize),
		)
		if err := p.documents.PrintDocument(ctx, path, opts); err != nil {
			return &PrintError{Kind: "document", Err: err}
		}
		return nil

	default:
		return ErrUnsupportedFileType
	}
}

func (p *Pipeline) cleanup(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		p.logger.Error("failed to remove scratch directory", zap.String("dir", dir), zap.Error(err))
	}
}

func (p *Pipeline) audit(job *Job, result Result) {
	fields := []zap.Field{
		zap.Int64("job_id", job.ID),
		zap.String("url", job.EffectiveURL()),
		zap.Bool("success", result.Succeeded),
		zap.String("filename", result.Filename),
	}
	if result.Succeeded {
		p.logger.Info("print job finished", fields...)
		return
	}
	p.logger.Warn("print job finished", append(fields, zap.String("error", result.Error))...)
}
