package broadcast

import (
	"context"
	"sync/atomic"
	"time"

	"castbot/internal/eventbus"
	"castbot/internal/payload"
	"castbot/internal/storage"
	kit "castbot/internal/transport"
	logx "castbot/pkg/logx"
)

// LogTag groups delivery log entries of the latest broadcast. Every run
// appends under it, so a recall covers resumed segments too.
const LogTag = "last"

const (
	EventStarted        = "broadcast.started"
	EventCheckpoint     = "broadcast.checkpoint"
	EventFinished       = "broadcast.finished"
	EventRecallFinished = "recall.finished"
)

// Store is what a run reads and writes.
type Store interface {
	storage.RecipientStore
	storage.SettingsStore
	storage.DeliveryLog
}

type Sender interface {
	SendMessage(ctx context.Context, to kit.ChatTarget, msg kit.Outgoing) (kit.MessageRef, error)
}

type Deleter interface {
	DeleteMessage(ctx context.Context, ref kit.MessageRef) error
}

// Config holds the runtime tunables. Zero SendInterval or BatchPause
// disables that wait.
type Config struct {
	SendInterval     time.Duration
	BatchSize        int
	BatchPause       time.Duration
	PageSize         int
	RecallInterval   time.Duration
	ProgressLogEvery int
	// ButtonURL is opened by the message button, when the message has one.
	ButtonURL string
}

func DefaultConfig() Config {
	return Config{
		SendInterval:     150 * time.Millisecond,
		BatchSize:        150,
		BatchPause:       30 * time.Second,
		PageSize:         500,
		RecallInterval:   50 * time.Millisecond,
		ProgressLogEvery: 50,
	}
}

func (c Config) normalized() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 150
	}
	if c.PageSize <= 0 {
		c.PageSize = 500
	}
	return c
}

type Request struct {
	Message   payload.Message
	Initiator kit.ChatTarget
	// OnDone runs after the guard is released, with a context that outlives
	// engine shutdown by a few seconds.
	OnDone func(ctx context.Context, r Result)
}

type Progress struct {
	Attempted int `json:"attempted"`
	Delivered int `json:"delivered"`
	Pruned    int `json:"pruned"`
	Failed    int `json:"failed"`
}

type Result struct {
	RunID       string        `json:"run_id"`
	Total       int           `json:"total"`
	Resumed     int           `json:"resumed"`
	Progress    Progress      `json:"progress"`
	Checkpoints int           `json:"checkpoints"`
	Completed   bool          `json:"completed"`
	Interrupted bool          `json:"interrupted"`
	Err         error         `json:"-"`
	Took        time.Duration `json:"took"`
}

// Handle tracks one run.
type Handle struct {
	RunID     string
	Total     int // recipients when the run started
	Resume    int // recipients skipped from the checkpoint
	StartedAt time.Time

	attempted, delivered, pruned, failed atomic.Int64

	done   chan struct{}
	result Result
}

func newHandle(runID string, total, resume int) *Handle {
	return &Handle{RunID: runID, Total: total, Resume: resume, StartedAt: time.Now(), done: make(chan struct{})}
}

// Remaining is the number of recipients this run will attempt.
func (h *Handle) Remaining() int { return max(h.Total-h.Resume, 0) }

func (h *Handle) Done() <-chan struct{} { return h.done }

func (h *Handle) Progress() Progress {
	return Progress{
		Attempted: int(h.attempted.Load()),
		Delivered: int(h.delivered.Load()),
		Pruned:    int(h.pruned.Load()),
		Failed:    int(h.failed.Load()),
	}
}

// Result is valid once Done is closed.
func (h *Handle) Result() (Result, bool) {
	select {
	case <-h.done:
		return h.result, true
	default:
		return Result{}, false
	}
}

// position is the checkpoint offset: everything attempted so far minus the
// recipients deleted on the way.
func (h *Handle) position() int {
	return h.Resume + int(h.attempted.Load()) - int(h.pruned.Load())
}

// EventData is the payload of broadcast and recall events.
type EventData struct {
	RunID    string   `json:"run_id,omitempty"`
	Offset   int      `json:"offset"`
	Progress Progress `json:"progress"`
	Err      string   `json:"err,omitempty"`
}

type common struct {
	bus eventbus.Bus
	log logx.Logger
}

type Option func(*common)

func WithBus(b eventbus.Bus) Option { return func(c *common) { c.bus = b } }

func WithLogger(l logx.Logger) Option { return func(c *common) { c.log = l } }

func newCommon(comp string, opts []Option) common {
	var c common
	for _, o := range opts {
		o(&c)
	}
	if c.log.IsZero() {
		c.log = logx.Nop()
	}
	c.log = c.log.With(logx.String("comp", comp))
	return c
}

func (c common) publish(typ string, data EventData) {
	if c.bus != nil {
		c.bus.Publish(eventbus.Event{Type: typ, Data: data})
	}
}
