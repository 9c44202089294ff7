package config

import (
	"fmt"

	"github.com/Ravioli45/CNT3004-file-sharing/internal/lockmap"
	"github.com/Ravioli45/CNT3004-file-sharing/pkg/adapter"
	"github.com/Ravioli45/CNT3004-file-sharing/pkg/adapter/fileshare"
	"github.com/Ravioli45/CNT3004-file-sharing/pkg/metrics"
)

// CreateAdapters creates all enabled protocol adapters from the configuration.
//
// The storage root is prepared here and every adapter shares one path guard
// and one resource lock table, so a file busy through one adapter is busy
// through all of them.
//
// Parameters:
//   - cfg: The complete configuration
//   - fileshareMetrics: Optional fileshare metrics collector (nil = no metrics)
//
// Returns:
//   - []adapter.Adapter: List of enabled adapters ready to be added to the server
//   - error: Any error during adapter creation
func CreateAdapters(cfg *Config, fileshareMetrics metrics.FileshareMetrics) ([]adapter.Adapter, error) {
	guard, err := CreateGuard(&cfg.Storage)
	if err != nil {
		return nil, err
	}
	locks := lockmap.New()

	var adapters []adapter.Adapter

	if cfg.Adapters.Fileshare.Enabled {
		fs, err := fileshare.New(cfg.Adapters.Fileshare, guard, locks, fileshareMetrics)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, fs)
	}

	if len(adapters) == 0 {
		return nil, fmt.Errorf("no adapters enabled in configuration")
	}

	return adapters, nil
}
