package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Validate checks fields whose bad values would otherwise surface late
// (mid-broadcast or at the first cron tick).
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		add(fmt.Errorf("telegram.token is required (or set %s)", EnvBotToken))
	}
	if len(cfg.Telegram.OwnerUserIDs) == 0 {
		add(fmt.Errorf("telegram.owner_user_ids is empty (or set %s)", EnvAdminIDs))
	}
	if g := strings.TrimSpace(cfg.Telegram.GroupLog); g != "" {
		if _, err := strconv.ParseInt(g, 10, 64); err != nil {
			add(fmt.Errorf("telegram.group_log: invalid chat id %q", g))
		}
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "sqlite", "sqlite3", "memory":
	case "postgres", "postgresql":
		if strings.TrimSpace(cfg.Storage.DSN) == "" {
			add(fmt.Errorf("storage.dsn is required for postgres (or set %s)", EnvDatabaseURL))
		}
	default:
		add(fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	}
	b := cfg.Broadcast
	for path, raw := range map[string]string{
		"telegram.poll_timeout":      cfg.Telegram.PollTimeout,
		"storage.busy_timeout":       cfg.Storage.BusyTimeout,
		"broadcast.send_interval":    b.SendInterval,
		"broadcast.batch_pause":      b.BatchPause,
		"broadcast.recall_interval":  b.RecallInterval,
		"housekeeping.log_retention": cfg.Housekeeping.LogRetention,
	} {
		_, err := ParseDuration(path, raw, 0)
		add(err)
	}
	if b.BatchSize < 0 || b.PageSize < 0 || b.ProgressLogEvery < 0 {
		add(errors.New("broadcast: batch_size, page_size and progress_log_every must be >= 0"))
	}

	if tz := strings.TrimSpace(cfg.Housekeeping.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add(fmt.Errorf("housekeeping.timezone: %w", err))
		}
	}
	return errors.Join(errs...)
}

// durationLimits caps fields where Telegram ignores anything larger. Bots
// cannot delete messages older than 48h, so longer log retention only keeps
// entries a recall would fail on.
var durationLimits = map[string]time.Duration{
	"telegram.poll_timeout":      50 * time.Second,
	"housekeeping.log_retention": 48 * time.Hour,
}

// zeroDisables lists pacing fields where an explicit 0 turns the wait off.
// Elsewhere 0 means the default.
var zeroDisables = map[string]bool{
	"broadcast.send_interval":   true,
	"broadcast.batch_pause":     true,
	"broadcast.recall_interval": true,
}

// ParseDuration reads a duration field. A bare number is seconds ("30").
// Empty yields def. Errors carry the config path of the field.
func ParseDuration(path, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	var d time.Duration
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		d = time.Duration(n) * time.Second
	} else if d, err = time.ParseDuration(s); err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", path, raw)
	}
	switch limit, capped := durationLimits[path]; {
	case d < 0:
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	case capped && d > limit:
		return 0, fmt.Errorf("%s: %s exceeds the maximum of %s", path, d, limit)
	case d == 0 && !zeroDisables[path]:
		return def, nil
	}
	return d, nil
}
