package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Ravioli45/CNT3004-file-sharing/internal/logger"
	"github.com/Ravioli45/CNT3004-file-sharing/internal/pathguard"
	"github.com/Ravioli45/CNT3004-file-sharing/internal/protocol/handlers"
	"github.com/Ravioli45/CNT3004-file-sharing/pkg/gc"
)

// CreateGuard prepares the storage root and returns the path guard confining
// clients to it.
//
// The root is created (with parents) if it does not exist yet. A root that
// exists but is not a directory is an error.
func CreateGuard(cfg *StorageConfig) (*pathguard.Guard, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("storage: root is required")
	}

	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root %q: %w", cfg.Root, err)
	}

	info, err := os.Stat(root)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, fmt.Errorf("storage: create root %s: %w", root, err)
		}
		logger.Info("Created storage root %s", root)
	case err != nil:
		return nil, fmt.Errorf("storage: stat root %s: %w", root, err)
	case !info.IsDir():
		return nil, fmt.Errorf("storage: root %s is not a directory", root)
	}

	guard, err := pathguard.New(root)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}

	logger.Debug("Storage root: %s", guard.Root())
	return guard, nil
}

// CreateCollector returns the orphaned upload collector for the storage root.
// The root must already exist (see CreateGuard).
func CreateCollector(cfg *StorageConfig) (*gc.Collector, error) {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root %q: %w", cfg.Root, err)
	}
	return gc.NewCollector(root, handlers.TempFilePrefix, cfg.GC)
}
