package janitor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

type JobPruner interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type Config struct {
	CacheDir      string
	RetentionDays int
	Interval      time.Duration
	StaleAfter    time.Duration
}

type Report struct {
	PrunedJobs   int64
	RemovedDirs  int
	FailedRemove int
}

// Janitor prunes old job history and removes scratch directories left behind
// by a crash. Directories younger than StaleAfter may belong to a running
// job and are never touched.
type Janitor struct {
	pruner JobPruner
	config Config
	logger *zap.Logger
	now    func() time.Time
	mu     sync.Mutex
}

func New(pruner JobPruner, config Config, logger *zap.Logger) *Janitor {
	if config.Interval <= 0 {
		config.Interval = time.Hour
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Janitor{
		pruner: pruner,
		config: config,
		logger: logger.Named("janitor"),
		now:    time.Now,
	}
}

func (j *Janitor) Run(ctx context.Context) error {
	if _, err := j.RunOnce(ctx); err != nil {
		j.logger.Warn("cleanup failed", zap.Error(err))
	}

	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := j.RunOnce(ctx); err != nil {
				j.logger.Warn("cleanup failed", zap.Error(err))
			}
		}
	}
}

func (j *Janitor) RunOnce(ctx context.Context) (*Report, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	report := &Report{}
	now := j.now()

	if j.pruner != nil && j.config.RetentionDays > 0 {
		cutoff := now.AddDate(0, 0, -j.config.RetentionDays)
		n, err := j.pruner.PruneBefore(ctx, cutoff)
		if err != nil {
			return report, fmt.Errorf("failed to prune job history: %w", err)
		}
		report.PrunedJobs = n
	}

	if err := j.sweepCache(now, report); err != nil {
		return report, err
	}

	if report.PrunedJobs > 0 || report.RemovedDirs > 0 {
		j.logger.Info("cleanup finished",
			zap.Int64("pruned_jobs", report.PrunedJobs),
			zap.Int("removed_dirs", report.RemovedDirs),
		)
	}
	return report, nil
}

func (j *Janitor) sweepCache(now time.Time, report *Report) error {
	if j.config.CacheDir == "" {
		return nil
	}

	entries, err := os.ReadDir(j.config.CacheDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read cache directory: %w", err)
	}

	cutoff := now.Add(-j.config.StaleAfter)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}

		dir := filepath.Join(j.config.CacheDir, entry.Name())
		if err := os.RemoveAll(dir); err != nil {
			report.FailedRemove++
			j.logger.Warn("failed to remove stale scratch directory", zap.String("dir", dir), zap.Error(err))
			continue
		}
		report.RemovedDirs++
	}
	return nil
}
