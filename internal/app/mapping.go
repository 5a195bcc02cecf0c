package app

import (
	"strconv"
	"strings"
	"time"

	"castbot/internal/broadcast"
	"castbot/internal/config"
	"castbot/internal/storage"
	"castbot/internal/task/scheduler"
	logx "castbot/pkg/logx"
)

const defaultLogRetention = 48 * time.Hour

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

// groupLogChat returns 0 when no log chat is configured.
func groupLogChat(cfg *config.Config) int64 {
	id, err := strconv.ParseInt(strings.TrimSpace(cfg.Telegram.GroupLog), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// StorageConfig maps the storage section; the CLI maintenance commands use it too.
func StorageConfig(cfg *config.Config) (storage.Config, error) {
	busy, err := config.ParseDuration("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)),
		Path:        strings.TrimSpace(cfg.Storage.Path),
		DSN:         strings.TrimSpace(cfg.Storage.DSN),
		BusyTimeout: busy,
	}, nil
}

func mapBroadcastConfig(cfg *config.Config) (broadcast.Config, error) {
	def := broadcast.DefaultConfig()
	b := cfg.Broadcast
	out := broadcast.Config{
		BatchSize:        b.BatchSize,
		PageSize:         b.PageSize,
		ProgressLogEvery: b.ProgressLogEvery,
		ButtonURL:        strings.TrimSpace(cfg.Telegram.WebAppURL),
	}
	if out.BatchSize == 0 {
		out.BatchSize = def.BatchSize
	}
	if out.PageSize == 0 {
		out.PageSize = def.PageSize
	}
	if out.ProgressLogEvery == 0 {
		out.ProgressLogEvery = def.ProgressLogEvery
	}
	var err error
	if out.SendInterval, err = config.ParseDuration("broadcast.send_interval", b.SendInterval, def.SendInterval); err != nil {
		return broadcast.Config{}, err
	}
	if out.BatchPause, err = config.ParseDuration("broadcast.batch_pause", b.BatchPause, def.BatchPause); err != nil {
		return broadcast.Config{}, err
	}
	if out.RecallInterval, err = config.ParseDuration("broadcast.recall_interval", b.RecallInterval, def.RecallInterval); err != nil {
		return broadcast.Config{}, err
	}
	return out, nil
}

func mapSchedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{Enabled: cfg.Housekeeping.Enabled, Timezone: strings.TrimSpace(cfg.Housekeeping.Timezone)}
}

func pollTimeout(cfg *config.Config) (time.Duration, error) {
	return config.ParseDuration("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
}
