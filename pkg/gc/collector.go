// Package gc removes orphaned upload temp files from the storage root.
//
// An upload streams into a hidden temp file next to its target and renames it
// into place when the payload is complete. A server crash or a killed process
// in the middle of that window leaves the temp file behind. DIR never lists
// such files, so nothing but this collector ever removes them.
//
// A temp file is only orphaned once its modification time is older than
// Config.MinAge. A live upload writes whatever each socket read returns
// straight to its temp file, and each read fails after the transfer timeout,
// so a live temp file is touched at least once per transfer timeout. MinAge
// must stay well above that timeout.
package gc

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Ravioli45/CNT3004-file-sharing/internal/logger"
)

// Collector periodically sweeps a directory tree for orphaned temp files.
//
// Thread Safety: Safe for concurrent use.
type Collector struct {
	root   string
	prefix string
	config Config

	mu      sync.Mutex
	running bool
	stopped bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// Config contains configuration for the collector.
type Config struct {
	// Enabled controls whether periodic collection runs
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Interval is how often to sweep (default: 1h)
	Interval time.Duration `mapstructure:"interval" yaml:"interval" validate:"min=0"`

	// MinAge is how long a temp file must be untouched before it is
	// considered orphaned (default: 1h)
	MinAge time.Duration `mapstructure:"min_age" yaml:"min_age" validate:"min=0"`

	// DryRun logs what would be deleted without deleting
	DryRun bool `mapstructure:"dry_run" yaml:"dry_run"`
}

// ApplyDefaults fills in zero values.
func (c *Config) ApplyDefaults() {
	if c.Interval == 0 {
		c.Interval = time.Hour
	}
	if c.MinAge == 0 {
		c.MinAge = time.Hour
	}
}

// NewCollector creates a collector for files named prefix* under root.
// Call Start() to begin background collection.
func NewCollector(root, prefix string, config Config) (*Collector, error) {
	if root == "" {
		return nil, errors.New("gc: root is required")
	}
	if prefix == "" {
		return nil, errors.New("gc: temp file prefix is required")
	}
	config.ApplyDefaults()

	return &Collector{
		root:   root,
		prefix: prefix,
		config: config,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}, nil
}

// Start begins background collection. Calls after the first, or after
// Stop, are no-ops.
func (c *Collector) Start() {
	if !c.config.Enabled {
		logger.Info("Orphaned upload collection disabled")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running || c.stopped {
		return
	}
	c.running = true

	logger.Info("Starting orphaned upload collector: interval=%s min_age=%s dry_run=%v",
		c.config.Interval, c.config.MinAge, c.config.DryRun)
	go c.worker()
}

// Stop stops the background worker and waits for it, bounded by ctx.
// Safe to call multiple times, and before Start.
func (c *Collector) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	running := c.running
	close(c.stopCh)
	c.mu.Unlock()

	if !running {
		return nil
	}

	select {
	case <-c.doneCh:
		logger.Debug("Orphaned upload collector stopped")
		return nil
	case <-ctx.Done():
		logger.Warn("Orphaned upload collector shutdown timeout")
		return ctx.Err()
	}
}

// RunNow runs one collection synchronously, e.g. at startup.
func (c *Collector) RunNow(ctx context.Context) (*Stats, error) {
	return c.collect(ctx, time.Now())
}

func (c *Collector) worker() {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), c.config.Interval)
			stats, err := c.collect(ctx, time.Now())
			cancel()

			if err != nil {
				logger.Error("Orphaned upload collection failed: %v", err)
			} else if stats.OrphanedCount > 0 {
				logger.Info("Orphaned upload collection completed: %s", stats.Summary())
			}

		case <-c.stopCh:
			return
		}
	}
}

// collect walks the root once. Unreadable subtrees are counted as failures
// and skipped; only a failure to read the root itself is an error.
func (c *Collector) collect(ctx context.Context, now time.Time) (*Stats, error) {
	stats := &Stats{StartTime: now}
	cutoff := now.Add(-c.config.MinAge)

	err := filepath.WalkDir(c.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == c.root {
				return err
			}
			logger.Debug("GC: skipping %s: %v", path, err)
			stats.FailedCount++
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if d.IsDir() {
			stats.ScannedDirs++
			return nil
		}
		if !d.Type().IsRegular() || !strings.HasPrefix(d.Name(), c.prefix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			// Renamed into place between ReadDir and Info.
			return nil
		}
		if info.ModTime().After(cutoff) {
			stats.InProgressCount++
			return nil
		}

		stats.OrphanedCount++
		stats.OrphanedBytes += info.Size()

		if c.config.DryRun {
			logger.Info("GC: DRY RUN - would delete %s (%d bytes, modified %s)",
				path, info.Size(), info.ModTime().Format(time.RFC3339))
			return nil
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("GC: failed to delete %s: %v", path, err)
			stats.FailedCount++
			return nil
		}
		stats.DeletedCount++
		return nil
	})

	stats.EndTime = time.Now()
	if err != nil {
		return stats, fmt.Errorf("gc: sweep %s: %w", c.root, err)
	}
	return stats, nil
}

// Stats contains statistics from one collection run.
type Stats struct {
	StartTime       time.Time
	EndTime         time.Time
	ScannedDirs     uint64
	InProgressCount uint64 // temp files younger than MinAge, left alone
	OrphanedCount   uint64
	OrphanedBytes   int64
	DeletedCount    uint64
	FailedCount     uint64
}

// Duration returns the total collection duration.
func (s *Stats) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// Summary returns a human-readable summary of the collection.
func (s *Stats) Summary() string {
	return fmt.Sprintf("dirs=%d in_progress=%d orphaned=%d (%d bytes) deleted=%d failed=%d duration=%s",
		s.ScannedDirs, s.InProgressCount, s.OrphanedCount, s.OrphanedBytes,
		s.DeletedCount, s.FailedCount, s.Duration())
}
