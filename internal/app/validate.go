package app

import (
	"fmt"

	"github.com/adhocore/gronx"

	"trellis/pkg/config"
)

// validateConfig rejects configurations that would fail at runtime anyway.
func validateConfig(cfg config.Config) error {
	if cfg.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}
	if cfg.Timeline.PageSize <= 0 {
		return fmt.Errorf("timeline.page_size must be positive, got %d", cfg.Timeline.PageSize)
	}
	if cfg.Timeline.ProvisionalTimeout.Std() <= 0 {
		return fmt.Errorf("timeline.provisional_timeout must be positive")
	}
	if cfg.Maintenance.Enabled && cfg.Maintenance.Cron != "" && !gronx.IsValid(cfg.Maintenance.Cron) {
		return fmt.Errorf("maintenance.cron is not a valid cron expression: %s", cfg.Maintenance.Cron)
	}
	return nil
}
