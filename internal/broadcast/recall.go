package broadcast

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"castbot/internal/storage"
	kit "castbot/internal/transport"
	logx "castbot/pkg/logx"
)

type RecallResult struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// Recaller deletes the messages recorded for the latest broadcast.
type Recaller struct {
	common
	deliveries storage.DeliveryLog
	deleter    Deleter
	guard      *Guard
	interval   atomic.Int64
}

func NewRecaller(guard *Guard, deliveries storage.DeliveryLog, deleter Deleter, interval time.Duration, opts ...Option) *Recaller {
	if guard == nil {
		guard = NewGuard()
	}
	r := &Recaller{common: newCommon("recall", opts), deliveries: deliveries, deleter: deleter, guard: guard}
	r.SetInterval(interval)
	return r
}

// SetInterval changes the pause between deletions.
func (r *Recaller) SetInterval(d time.Duration) { r.interval.Store(int64(d)) }

// RecallLastBroadcast deletes every message logged under LogTag, ignoring
// per-message failures, then clears the log. It holds the guard throughout,
// so no broadcast can append entries meanwhile.
func (r *Recaller) RecallLastBroadcast(ctx context.Context) (RecallResult, error) {
	release, err := r.guard.acquire(StateRecalling)
	if err != nil {
		return RecallResult{}, err
	}
	defer release()
	if err := ctx.Err(); err != nil {
		return RecallResult{}, err
	}

	entries, err := r.deliveries.ListDeliveries(ctx, LogTag)
	if err != nil {
		return RecallResult{}, fmt.Errorf("%w: list deliveries: %w", ErrStoreUnavailable, err)
	}
	r.log.Info("recall started", logx.Int("entries", len(entries)))

	var res RecallResult
	limiter := rate.NewLimiter(limitFor(time.Duration(r.interval.Load())), 1)
	for _, en := range entries {
		// stop early on shutdown and keep the log so a later recall can finish
		if err := limiter.Wait(ctx); err != nil {
			r.log.Warn("recall interrupted", logx.Int("processed", res.Processed), logx.Err(err))
			return res, ctx.Err()
		}
		ref := kit.MessageRef{ChatID: en.RecipientID, MessageID: en.MessageID}
		if err := r.deleter.DeleteMessage(ctx, ref); err != nil {
			res.Failed++
			r.log.Debug("recall delete failed", logx.Int64("recipient", en.RecipientID), logx.Int("message_id", en.MessageID), logx.Err(err))
		}
		res.Processed++
	}

	if _, err := r.deliveries.DeleteDeliveries(ctx, LogTag); err != nil {
		return res, fmt.Errorf("%w: clear deliveries: %w", ErrStoreUnavailable, err)
	}
	r.log.Info("recall finished", logx.Int("processed", res.Processed), logx.Int("failed", res.Failed))
	r.publish(EventRecallFinished, EventData{Offset: res.Processed, Progress: Progress{Attempted: res.Processed, Failed: res.Failed}})
	return res, nil
}
