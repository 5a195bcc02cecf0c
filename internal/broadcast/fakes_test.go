package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"castbot/internal/payload"
	"castbot/internal/storage"
	kit "castbot/internal/transport"
)

type fakeSender struct {
	mu      sync.Mutex
	nextID  int
	sent    []int64
	msgs    []kit.Outgoing
	errs    map[int64]error
	panicOn int64
	gate    chan struct{}
}

func (f *fakeSender) SendMessage(ctx context.Context, to kit.ChatTarget, msg kit.Outgoing) (kit.MessageRef, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return kit.MessageRef{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOn != 0 && to.ChatID == f.panicOn {
		panic("send exploded")
	}
	f.sent = append(f.sent, to.ChatID)
	f.msgs = append(f.msgs, msg)
	if err := f.errs[to.ChatID]; err != nil {
		return kit.MessageRef{}, err
	}
	f.nextID++
	return kit.MessageRef{ChatID: to.ChatID, MessageID: f.nextID}, nil
}

func (f *fakeSender) sentIDs() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.sent...)
}

type fakeDeleter struct {
	mu      sync.Mutex
	deleted []kit.MessageRef
	fail    map[int64]bool
	gate    chan struct{}
}

func (f *fakeDeleter) DeleteMessage(ctx context.Context, ref kit.MessageRef) error {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, ref)
	if f.fail[ref.ChatID] {
		return errors.New("message can't be deleted")
	}
	return nil
}

var errConnReset = errors.New("connection reset")

// recordingStore remembers checkpoint writes and can fail recipient reads.
type recordingStore struct {
	*storage.Memory

	mu        sync.Mutex
	saved     []int
	listCalls atomic.Int32
	failAfter int32 // fail ListRecipients after this many calls; 0 never, <0 also fails ListDeliveries
}

func newRecordingStore() *recordingStore { return &recordingStore{Memory: storage.NewMemory()} }

func (r *recordingStore) SetSetting(ctx context.Context, key, value string) error {
	if key == CheckpointKey {
		var cp Checkpoint
		if err := json.Unmarshal([]byte(value), &cp); err == nil {
			r.mu.Lock()
			r.saved = append(r.saved, cp.Offset)
			r.mu.Unlock()
		}
	}
	return r.Memory.SetSetting(ctx, key, value)
}

func (r *recordingStore) ListRecipients(ctx context.Context, p storage.Page) ([]storage.Recipient, error) {
	if n := r.listCalls.Add(1); r.failAfter > 0 && n > r.failAfter {
		return nil, errConnReset
	}
	return r.Memory.ListRecipients(ctx, p)
}

func (r *recordingStore) ListDeliveries(ctx context.Context, tag string) ([]storage.DeliveryEntry, error) {
	if r.failAfter < 0 {
		return nil, errConnReset
	}
	return r.Memory.ListDeliveries(ctx, tag)
}

func (r *recordingStore) savedOffsets() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.saved...)
}

func seed(t *testing.T, st Store, ids ...int64) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, st.UpsertRecipient(context.Background(), storage.Recipient{ID: id}))
	}
}

func seedN(t *testing.T, st Store, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		seed(t, st, int64(i))
	}
}

// fastConfig disables pacing so runs finish immediately.
func fastConfig() Config {
	return Config{BatchSize: 150, PageSize: 64}
}

func startEngine(t *testing.T, guard *Guard, st Store, s Sender, cfg Config, opts ...Option) *Engine {
	t.Helper()
	e := NewEngine(guard, st, s, cfg, opts...)
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = e.Stop(ctx)
	})
	return e
}

func waitDone(t *testing.T, h *Handle) Result {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(10 * time.Second):
		t.Fatalf("broadcast %s did not finish", h.RunID)
	}
	res, ok := h.Result()
	require.True(t, ok)
	return res
}

func textRequest(body string) Request {
	return Request{Message: payload.Message{Kind: payload.KindText, Body: body}}
}

func checkpointOf(t *testing.T, st Store) (Checkpoint, bool) {
	t.Helper()
	cp, ok, err := LoadCheckpoint(context.Background(), st)
	require.NoError(t, err)
	return cp, ok
}

func deliveries(t *testing.T, st Store) []storage.DeliveryEntry {
	t.Helper()
	es, err := st.ListDeliveries(context.Background(), LogTag)
	require.NoError(t, err)
	return es
}
