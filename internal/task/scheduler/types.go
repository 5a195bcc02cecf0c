package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	logx "castbot/pkg/logx"
)

type Config struct {
	Enabled  bool
	Timezone string // IANA TZ, e.g. "Europe/Berlin"; empty means local
}

type Job func(ctx context.Context) error

type scheduleDef struct {
	name    string
	spec    string // cron spec or "@every <d>"
	timeout time.Duration
	job     Job
	entryID cron.EntryID
	stats   *jobStats
}

type jobStats struct {
	running atomic.Bool

	mu       sync.Mutex
	runs     uint64
	skipped  uint64
	failures uint64
	lastRun  time.Time
	lastTook time.Duration
	lastErr  string
}

type Service struct {
	mu sync.Mutex

	log    logx.Logger
	cfg    Config
	loc    *time.Location
	ctx    context.Context
	parser cron.Parser
	c      *cron.Cron
	defs   []scheduleDef

	hmu     sync.Mutex
	history []HistoryItem
}

type HistoryItem struct {
	Name    string
	Started time.Time
	Took    time.Duration
	Err     string
	Panic   bool
}

type ScheduleInfo struct {
	Name     string
	Spec     string
	Timeout  time.Duration
	Next     time.Time
	Prev     time.Time
	Running  bool
	Runs     uint64
	Skipped  uint64
	Failures uint64
	LastErr  string
	LastTook time.Duration
}

type Snapshot struct {
	Enabled   bool
	Timezone  string
	Schedules []ScheduleInfo
	History   []HistoryItem
}
