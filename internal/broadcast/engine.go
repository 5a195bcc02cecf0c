package broadcast

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	rtsup "castbot/internal/runtime/supervisor"
	"castbot/internal/storage"
	kit "castbot/internal/transport"
	logx "castbot/pkg/logx"
)

const (
	onDoneTimeout = 10 * time.Second
	flushTimeout  = 5 * time.Second
)

// Engine runs broadcasts in the background, one at a time.
type Engine struct {
	common
	store  Store
	sender Sender
	guard  *Guard
	cfg    atomic.Pointer[Config]

	mu      sync.Mutex
	sup     *rtsup.Supervisor
	current *Handle
	last    *Handle
}

func NewEngine(guard *Guard, store Store, sender Sender, cfg Config, opts ...Option) *Engine {
	if guard == nil {
		guard = NewGuard()
	}
	e := &Engine{common: newCommon("broadcast", opts), store: store, sender: sender, guard: guard}
	e.Apply(cfg)
	return e
}

func (e *Engine) Guard() *Guard { return e.guard }

// Apply swaps tunables. A running broadcast picks them up at its next batch.
func (e *Engine) Apply(cfg Config) {
	cfg = cfg.normalized()
	e.cfg.Store(&cfg)
}

func (e *Engine) config() Config { return *e.cfg.Load() }

func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sup != nil {
		return nil
	}
	e.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(e.log))
	return nil
}

// Stop cancels a running broadcast, which stores its position, and waits
// for it to finish.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	sup := e.sup
	e.sup = nil
	e.mu.Unlock()
	if sup == nil {
		return nil
	}
	return sup.Stop(ctx)
}

// Current returns the running broadcast, or nil.
func (e *Engine) Current() *Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// Last returns the most recent finished run in this process, or nil.
func (e *Engine) Last() *Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// StartBroadcast claims the guard, reads the checkpoint and the audience
// size, and starts the run in the background. It returns without waiting
// for any delivery.
func (e *Engine) StartBroadcast(ctx context.Context, req Request) (*Handle, error) {
	e.mu.Lock()
	sup := e.sup
	e.mu.Unlock()
	if sup == nil || sup.Context().Err() != nil {
		return nil, ErrStopped
	}

	release, err := e.guard.acquire(StateBroadcasting)
	if err != nil {
		return nil, err
	}

	cp, _, err := LoadCheckpoint(ctx, e.store)
	if errors.Is(err, errCorruptCheckpoint) {
		e.log.Warn("ignoring unreadable checkpoint", logx.Err(err))
		cp, err = Checkpoint{}, nil
	}
	if err != nil {
		release()
		return nil, fmt.Errorf("%w: read checkpoint: %w", ErrStoreUnavailable, err)
	}
	total, err := e.store.CountRecipients(ctx)
	if err != nil {
		release()
		return nil, fmt.Errorf("%w: count recipients: %w", ErrStoreUnavailable, err)
	}

	h := newHandle(uuid.NewString(), total, min(cp.Offset, total))
	e.mu.Lock()
	e.current = h
	e.mu.Unlock()

	e.log.Info("broadcast started",
		logx.String("run_id", h.RunID),
		logx.Int("total", h.Total),
		logx.Int("resume", h.Resume),
		logx.String("message", req.Message.Summary()),
	)
	e.publish(EventStarted, EventData{RunID: h.RunID, Offset: h.Resume})
	sup.Go0("broadcast.run", func(ctx context.Context) { e.run(ctx, h, req, release) })
	return h, nil
}

func (e *Engine) run(ctx context.Context, h *Handle, req Request, release func()) {
	defer release()

	res := e.deliver(ctx, h, req)
	res.Took = time.Since(h.StartedAt)
	h.result = res

	e.mu.Lock()
	if e.current == h {
		e.current = nil
	}
	e.last = h
	e.mu.Unlock()
	release()
	close(h.done)

	fields := []logx.Field{
		logx.String("run_id", h.RunID),
		logx.Int("attempted", res.Progress.Attempted),
		logx.Int("delivered", res.Progress.Delivered),
		logx.Int("pruned", res.Progress.Pruned),
		logx.Int("failed", res.Progress.Failed),
		logx.Bool("completed", res.Completed),
		logx.Bool("interrupted", res.Interrupted),
		logx.Duration("took", res.Took),
	}
	data := EventData{RunID: h.RunID, Offset: h.position(), Progress: res.Progress}
	if res.Err != nil {
		data.Err = res.Err.Error()
		e.log.Error("broadcast aborted", append(fields, logx.Err(res.Err))...)
	} else {
		e.log.Info("broadcast finished", fields...)
	}
	e.publish(EventFinished, data)

	if req.OnDone != nil {
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), onDoneTimeout)
		defer cancel()
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.log.Error("broadcast completion callback panicked", logx.Any("panic", r))
				}
			}()
			req.OnDone(dctx, res)
		}()
	}
}

// deliver is the delivery loop. It never panics; a panic ends the run like
// a store failure.
func (e *Engine) deliver(ctx context.Context, h *Handle, req Request) (res Result) {
	res = Result{RunID: h.RunID, Total: h.Total, Resumed: h.Resume}
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("broadcast run panicked", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			res.Err = fmt.Errorf("broadcast run panicked: %v", r)
			e.flushCheckpoint(ctx, h)
		}
		res.Progress = h.Progress()
	}()

	cfg := e.config()
	out := req.Message.Outgoing(cfg.ButtonURL)
	limiter := rate.NewLimiter(limitFor(cfg.SendInterval), 1)
	cur := storage.NewCursor(e.store, h.Resume, cfg.PageSize)
	sinceBatch := 0

	for cur.Next(ctx) {
		if sinceBatch >= cfg.BatchSize {
			if err := e.checkpoint(ctx, h); err == nil {
				res.Checkpoints++
			}
			if !sleepCtx(ctx, cfg.BatchPause) {
				break
			}
			sinceBatch = 0
			cfg = e.config()
			limiter.SetLimit(limitFor(cfg.SendInterval))
		}
		if err := limiter.Wait(ctx); err != nil {
			break
		}

		r := cur.Recipient()
		ref, err := e.sender.SendMessage(ctx, kit.ChatTarget{ChatID: r.ID}, out)
		if err != nil && ctx.Err() != nil {
			// aborted by shutdown; leave it to the resumed run
			break
		}
		sinceBatch++
		h.attempted.Add(1)
		e.account(ctx, h, r, ref, err)

		if n := cfg.ProgressLogEvery; n > 0 && int(h.attempted.Load())%n == 0 {
			p := h.Progress()
			e.log.Debug("broadcast progress",
				logx.String("run_id", h.RunID),
				logx.Int("attempted", p.Attempted),
				logx.Int("remaining", h.Remaining()-p.Attempted),
			)
		}
	}

	switch {
	case ctx.Err() != nil:
		res.Interrupted = true
		e.flushCheckpoint(ctx, h)
	case cur.Err() != nil:
		res.Err = fmt.Errorf("%w: list recipients: %w", ErrStoreUnavailable, cur.Err())
		e.flushCheckpoint(ctx, h)
	default:
		res.Completed = true
		if err := ClearCheckpoint(ctx, e.store); err != nil {
			e.log.Warn("checkpoint clear failed", logx.String("run_id", h.RunID), logx.Err(err))
		}
	}
	return res
}

// account records the outcome of one attempt. Per-recipient failures never
// end the run.
func (e *Engine) account(ctx context.Context, h *Handle, r storage.Recipient, ref kit.MessageRef, err error) {
	switch {
	case err == nil:
		h.delivered.Add(1)
		entry := storage.DeliveryEntry{Tag: LogTag, RecipientID: r.ID, MessageID: ref.MessageID, SentAt: time.Now()}
		if lerr := e.store.AppendDelivery(ctx, entry); lerr != nil {
			e.log.Warn("delivery log append failed", logx.Int64("recipient", r.ID), logx.Err(lerr))
		}

	case kit.IsRecipientGone(err):
		if derr := e.store.DeleteRecipient(ctx, r.ID); derr != nil {
			h.failed.Add(1)
			e.log.Warn("prune unreachable recipient failed", logx.Int64("recipient", r.ID), logx.Err(derr))
			return
		}
		h.pruned.Add(1)
		e.log.Debug("recipient pruned", logx.Int64("recipient", r.ID), logx.Err(err))

	default:
		h.failed.Add(1)
		e.log.Debug("delivery failed", logx.Int64("recipient", r.ID), logx.Err(err))
		if wait, ok := kit.RetryAfter(err); ok {
			e.log.Warn("rate limited by platform; backing off", logx.Duration("wait", wait))
			sleepCtx(ctx, wait)
		}
	}
}

func (e *Engine) checkpoint(ctx context.Context, h *Handle) error {
	off := h.position()
	if n, err := e.store.CountRecipients(ctx); err == nil && off > n {
		off = n
	}
	err := SaveCheckpoint(ctx, e.store, Checkpoint{Offset: off, RunID: h.RunID})
	if err != nil {
		e.log.Warn("checkpoint write failed", logx.String("run_id", h.RunID), logx.Int("offset", off), logx.Err(err))
		return err
	}
	e.log.Info("broadcast checkpoint", logx.String("run_id", h.RunID), logx.Int("offset", off))
	e.publish(EventCheckpoint, EventData{RunID: h.RunID, Offset: off, Progress: h.Progress()})
	return nil
}

// flushCheckpoint stores the position even when ctx is already cancelled.
func (e *Engine) flushCheckpoint(ctx context.Context, h *Handle) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
	defer cancel()
	_ = e.checkpoint(fctx, h)
}

func limitFor(interval time.Duration) rate.Limit {
	if interval <= 0 {
		return rate.Inf
	}
	return rate.Every(interval)
}

// sleepCtx reports false when ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
