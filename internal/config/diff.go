package config

import (
	"slices"
	"strings"

	logx "castbot/pkg/logx"
)

// SummarizeChange lists the changed top-level sections and returns log
// fields describing the new values. Secrets (token, dsn) are reported only
// as set/unset.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 16)

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if ot.Token != nt.Token ||
		!slices.Equal(ot.OwnerUserIDs, nt.OwnerUserIDs) ||
		strings.TrimSpace(ot.GroupLog) != strings.TrimSpace(nt.GroupLog) ||
		strings.TrimSpace(ot.PollTimeout) != strings.TrimSpace(nt.PollTimeout) ||
		strings.TrimSpace(ot.WebAppURL) != strings.TrimSpace(nt.WebAppURL) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_changed", ot.Token != nt.Token),
			logx.Int("telegram.owner_count", len(nt.OwnerUserIDs)),
			logx.Bool("telegram.group_log_set", strings.TrimSpace(nt.GroupLog) != ""),
			logx.String("telegram.web_app_url", strings.TrimSpace(nt.WebAppURL)),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		l := newCfg.Logging
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", l.Level),
			logx.Bool("logging.console", l.Console),
			logx.Bool("logging.file_enabled", l.File.Enabled),
			logx.Bool("logging.telegram_enabled", l.Telegram.Enabled),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		ns := newCfg.Storage
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", ns.Driver),
			logx.Bool("storage.dsn_set", ns.DSN != ""),
			logx.String("storage.path", ns.Path),
		)
	}

	if oldCfg.Broadcast != newCfg.Broadcast {
		b := newCfg.Broadcast
		changed = append(changed, "broadcast")
		attrs = append(attrs,
			logx.String("broadcast.send_interval", b.SendInterval),
			logx.Int("broadcast.batch_size", b.BatchSize),
			logx.String("broadcast.batch_pause", b.BatchPause),
		)
	}

	if oldCfg.Housekeeping != newCfg.Housekeeping {
		h := newCfg.Housekeeping
		changed = append(changed, "housekeeping")
		attrs = append(attrs,
			logx.Bool("housekeeping.enabled", h.Enabled),
			logx.String("housekeeping.prune_spec", h.PruneSpec),
			logx.String("housekeeping.stats_report_spec", h.StatsReportSpec),
		)
	}

	slices.Sort(changed)
	return changed, attrs
}
