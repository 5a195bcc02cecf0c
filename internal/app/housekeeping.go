package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"castbot/internal/broadcast"
	"castbot/internal/config"
	"castbot/internal/storage"
	"castbot/internal/task/scheduler"
	kit "castbot/internal/transport"
	logx "castbot/pkg/logx"
)

const defaultPruneSpec = "@every 1h"

// registerHousekeeping (re)installs the periodic jobs for cfg. The stats
// report only runs when a spec is configured.
func (a *App) registerHousekeeping(cfg *config.Config) error {
	hk := cfg.Housekeeping
	retention, err := config.ParseDuration("housekeeping.log_retention", hk.LogRetention, defaultLogRetention)
	if err != nil {
		return err
	}
	spec := strings.TrimSpace(hk.PruneSpec)
	if spec == "" {
		spec = defaultPruneSpec
	}
	if err := a.sched.AddSchedule("deliverylog.prune", spec, time.Minute,
		pruneDeliveriesJob(a.store, a.guard.Busy, retention, a.log)); err != nil {
		return fmt.Errorf("housekeeping.prune_spec: %w", err)
	}

	if spec := strings.TrimSpace(hk.StatsReportSpec); spec != "" {
		owners := cfg.Telegram.OwnerUserIDs
		if err := a.sched.AddSchedule("stats.report", spec, 30*time.Second,
			statsReportJob(a.store, a.adapter, owners)); err != nil {
			return fmt.Errorf("housekeeping.stats_report_spec: %w", err)
		}
	} else {
		a.sched.Remove("stats.report")
	}
	return nil
}

// pruneDeliveriesJob drops recall entries Telegram no longer lets the bot
// delete. It never touches the log while a broadcast or recall holds it.
func pruneDeliveriesJob(dl storage.DeliveryLog, busy func() bool, retention time.Duration, log logx.Logger) scheduler.Job {
	return func(ctx context.Context) error {
		if busy() {
			log.Debug("delivery log prune skipped, engine busy")
			return nil
		}
		n, err := dl.PruneDeliveries(ctx, broadcast.LogTag, time.Now().Add(-retention))
		if err != nil {
			return err
		}
		if n > 0 {
			log.Info("delivery log pruned", logx.Int("removed", n), logx.Duration("retention", retention))
		}
		return nil
	}
}

func statsReportJob(rs storage.RecipientStore, sender kit.Adapter, owners []int64) scheduler.Job {
	return func(ctx context.Context) error {
		total, err := rs.CountRecipients(ctx)
		if err != nil {
			return err
		}
		active, err := rs.CountActiveSince(ctx, time.Now().Add(-24*time.Hour))
		if err != nil {
			return err
		}
		text := fmt.Sprintf("Daily stats\n\nTotal: %d\nActive (24h): %d", total, active)
		var firstErr error
		for _, id := range owners {
			if _, err := sender.SendText(ctx, kit.ChatTarget{ChatID: id}, text, nil); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}
}
