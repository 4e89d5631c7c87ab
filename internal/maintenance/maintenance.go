// Package maintenance runs the scheduled preview-refresh job: it walks all
// conversations and rewrites the denormalized last-message preview and
// activity timestamp from the newest log entry. The append path leaves the
// conversation row alone; this job is the sole writer of the preview fields.
package maintenance

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/adhocore/gronx"

	"trellis/pkg/config"
	"trellis/pkg/logger"
	"trellis/pkg/store"
	"trellis/pkg/telemetry"
)

const defaultCron = "0 2 * * *"

// previewLen bounds the preview stored on the conversation row.
const previewLen = 120

// Start starts the maintenance scheduler if enabled. Returns a cancel func.
func Start(ctx context.Context, s *store.Store, cfg config.MaintenanceConfig) (context.CancelFunc, error) {
	if !cfg.Enabled {
		logger.Info("maintenance_disabled")
		return func() {}, nil
	}

	cronExpr := cfg.Cron
	if cronExpr == "" {
		cronExpr = defaultCron
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("maintenance_invalid_cron", "cron", cfg.Cron)
		return nil, fmt.Errorf("invalid maintenance cron expression: %s", cfg.Cron)
	}

	logger.Info("maintenance_enabled", "cron", cronExpr)
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, s, cronExpr)
	return cancel, nil
}

// runScheduler uses gronx to compute the next tick for the configured cron
// expression and sleeps until that time.
func runScheduler(ctx context.Context, s *store.Store, cronExpr string) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("maintenance_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("maintenance_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
			if err := RunOnce(ctx, s); err != nil {
				logger.Error("maintenance_run_error", "error", err)
			}
		case <-ctx.Done():
			logger.Info("maintenance_scheduler_stopping")
			return
		}
	}
}

// RunOnce refreshes the preview fields of every conversation from its newest
// message. Exported so the admin surface and tests can trigger a run.
func RunOnce(ctx context.Context, s *store.Store) error {
	convs, err := s.ListConversations()
	if err != nil {
		return fmt.Errorf("list conversations: %w", err)
	}
	var updated int
	for _, conv := range convs {
		if err := ctx.Err(); err != nil {
			return err
		}
		msgs, _, _, err := s.ReadBackward(ctx, conv.ID, "", 1)
		if err != nil {
			logger.Warn("maintenance_read_failed", "conv", conv.ID, "error", err)
			continue
		}
		if len(msgs) == 0 {
			continue
		}
		preview := previewOf(msgs[0].Body, msgs[0].ListingID, len(msgs[0].Media))
		if conv.LastMessagePreview == preview && conv.LastActivityAt == msgs[0].CreatedAt {
			continue
		}
		conv.LastMessagePreview = preview
		conv.LastActivityAt = msgs[0].CreatedAt
		conv.UpdatedTS = time.Now().UTC().UnixNano()
		if err := s.SaveConversation(conv); err != nil {
			logger.Warn("maintenance_save_failed", "conv", conv.ID, "error", err)
			continue
		}
		updated++
	}
	telemetry.MaintenanceRuns.Inc()
	logger.Info("maintenance_run_complete", "conversations", len(convs), "updated", updated)
	return nil
}

func previewOf(body, listingID string, mediaCount int) string {
	switch {
	case body != "":
		if len(body) > previewLen {
			cut := previewLen
			// Back off to a rune boundary so a multi-byte character is
			// never split mid-sequence.
			for cut > 0 && !utf8.RuneStart(body[cut]) {
				cut--
			}
			return body[:cut]
		}
		return body
	case mediaCount > 0:
		return "[media]"
	case listingID != "":
		return "[listing]"
	default:
		return ""
	}
}
