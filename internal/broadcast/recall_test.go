package broadcast

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"castbot/internal/eventbus"
	"castbot/internal/storage"
)

func TestRecallDeletesEveryLoggedMessage(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory()
	seedN(t, st, 6)
	guard := NewGuard()
	e := startEngine(t, guard, st, &fakeSender{}, fastConfig())
	h, err := e.StartBroadcast(context.Background(), textRequest("hi"))
	require.NoError(t, err)
	waitDone(t, h)
	require.Len(t, deliveries(t, st), 6)

	bus := eventbus.New()
	events, unsub := bus.Subscribe(1, EventRecallFinished)
	defer unsub()
	d := &fakeDeleter{fail: map[int64]bool{4: true}}
	r := NewRecaller(guard, st, d, 0, WithBus(bus))

	res, err := r.RecallLastBroadcast(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RecallResult{Processed: 6, Failed: 1}, res)
	assert.Len(t, d.deleted, 6)
	assert.Empty(t, deliveries(t, st))
	assert.Equal(t, StateIdle, guard.State())
	assert.Len(t, events, 1)
}

func TestRecallWhileBroadcastingFails(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory()
	seedN(t, st, 3)
	require.NoError(t, st.AppendDelivery(context.Background(), storage.DeliveryEntry{Tag: LogTag, RecipientID: 1, MessageID: 9}))

	guard := NewGuard()
	gate := make(chan struct{})
	e := startEngine(t, guard, st, &fakeSender{gate: gate}, fastConfig())
	h, err := e.StartBroadcast(context.Background(), textRequest("hi"))
	require.NoError(t, err)

	d := &fakeDeleter{}
	_, err = NewRecaller(guard, st, d, 0).RecallLastBroadcast(context.Background())
	require.ErrorIs(t, err, ErrBroadcastInProgress)
	assert.Empty(t, d.deleted)
	assert.Len(t, deliveries(t, st), 1)

	close(gate)
	waitDone(t, h)
}

func TestBroadcastWhileRecallingFails(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory()
	seedN(t, st, 2)
	require.NoError(t, st.AppendDelivery(context.Background(), storage.DeliveryEntry{Tag: LogTag, RecipientID: 1, MessageID: 9}))

	guard := NewGuard()
	gate := make(chan struct{})
	r := NewRecaller(guard, st, &fakeDeleter{gate: gate}, 0)
	done := make(chan error, 1)
	go func() {
		_, err := r.RecallLastBroadcast(context.Background())
		done <- err
	}()
	require.Eventually(t, func() bool { return guard.State() == StateRecalling }, 5*time.Second, 5*time.Millisecond)

	e := startEngine(t, guard, st, &fakeSender{}, fastConfig())
	_, err := e.StartBroadcast(context.Background(), textRequest("hi"))
	assert.ErrorIs(t, err, ErrRecallInProgress)

	_, err = r.RecallLastBroadcast(context.Background())
	assert.ErrorIs(t, err, ErrRecallInProgress)

	close(gate)
	require.NoError(t, <-done)
	assert.Equal(t, StateIdle, guard.State())
}

func TestRecallInterruptedKeepsLog(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory()
	for i := 1; i <= 3; i++ {
		require.NoError(t, st.AppendDelivery(context.Background(), storage.DeliveryEntry{Tag: LogTag, RecipientID: int64(i), MessageID: i}))
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRecaller(NewGuard(), st, &fakeDeleter{}, time.Hour).RecallLastBroadcast(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, deliveries(t, st), 3)
}

func TestRecallStoreFailureKeepsCause(t *testing.T) {
	t.Parallel()
	st := newRecordingStore()
	st.failAfter = -1
	guard := NewGuard()
	_, err := NewRecaller(guard, st, &fakeDeleter{}, 0).RecallLastBroadcast(context.Background())
	require.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, errConnReset)
	assert.Equal(t, StateIdle, guard.State())
}
