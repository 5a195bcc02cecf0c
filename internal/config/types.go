package config

// Config is the whole file. Durations are Go duration strings ("150ms", "30s").
type Config struct {
	Telegram     TelegramConfig     `json:"telegram"`
	Logging      LoggingConfig      `json:"logging"`
	Storage      StorageConfig      `json:"storage"`
	Broadcast    BroadcastConfig    `json:"broadcast"`
	Housekeeping HousekeepingConfig `json:"housekeeping"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// GroupLog is the chat id receiving log lines when logging.telegram is on.
	GroupLog    string `json:"group_log"`
	PollTimeout string `json:"poll_timeout"`
	// WebAppURL is opened by the welcome and broadcast buttons.
	WebAppURL string `json:"web_app_url"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig example:
//
//	"storage": { "driver": "sqlite", "path": "./data/castbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"` // postgres; never logged
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// BroadcastConfig tunes delivery pacing. Defaults:
//   - send_interval: 150ms
//   - batch_size: 150
//   - batch_pause: 30s
//   - page_size: 500
//   - recall_interval: 50ms
//   - progress_log_every: 50
type BroadcastConfig struct {
	SendInterval     string `json:"send_interval,omitempty"`
	BatchSize        int    `json:"batch_size,omitempty"`
	BatchPause       string `json:"batch_pause,omitempty"`
	PageSize         int    `json:"page_size,omitempty"`
	RecallInterval   string `json:"recall_interval,omitempty"`
	ProgressLogEvery int    `json:"progress_log_every,omitempty"`
}

type HousekeepingConfig struct {
	Enabled  bool   `json:"enabled"`
	Timezone string `json:"timezone,omitempty"`
	// LogRetention bounds how long recall entries are kept (default 48h,
	// Telegram refuses to delete older bot messages).
	LogRetention    string `json:"log_retention,omitempty"`
	PruneSpec       string `json:"prune_spec,omitempty"`
	StatsReportSpec string `json:"stats_report_spec,omitempty"`
}
