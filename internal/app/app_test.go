package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"castbot/internal/broadcast"
	"castbot/internal/config"
	"castbot/internal/storage"
	kit "castbot/internal/transport"
	logx "castbot/pkg/logx"
)

func TestMapBroadcastConfigDefaults(t *testing.T) {
	got, err := mapBroadcastConfig(&config.Config{})
	require.NoError(t, err)
	assert.Equal(t, broadcast.DefaultConfig(), got)

	got, err = mapBroadcastConfig(&config.Config{
		Telegram:  config.TelegramConfig{WebAppURL: " https://app.example "},
		Broadcast: config.BroadcastConfig{SendInterval: "40ms", BatchSize: 20, BatchPause: "1m"},
	})
	require.NoError(t, err)
	assert.Equal(t, 40*time.Millisecond, got.SendInterval)
	assert.Equal(t, 20, got.BatchSize)
	assert.Equal(t, time.Minute, got.BatchPause)
	assert.Equal(t, "https://app.example", got.ButtonURL)

	_, err = mapBroadcastConfig(&config.Config{Broadcast: config.BroadcastConfig{BatchPause: "soon"}})
	assert.Error(t, err)
}

func TestMapStorageAndLogTarget(t *testing.T) {
	sc, err := StorageConfig(&config.Config{Storage: config.StorageConfig{Driver: " SQLite ", Path: "./x.db"}})
	require.NoError(t, err)
	assert.Equal(t, storage.Config{Driver: "sqlite", Path: "./x.db", BusyTimeout: 5 * time.Second}, sc)

	assert.Equal(t, int64(-100123), groupLogChat(&config.Config{Telegram: config.TelegramConfig{GroupLog: "-100123"}}))
	assert.Zero(t, groupLogChat(&config.Config{}))
}

func TestPruneDeliveriesJob(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	old := time.Now().Add(-72 * time.Hour)
	require.NoError(t, st.AppendDelivery(ctx, storage.DeliveryEntry{Tag: broadcast.LogTag, RecipientID: 1, MessageID: 1, SentAt: old}))
	require.NoError(t, st.AppendDelivery(ctx, storage.DeliveryEntry{Tag: broadcast.LogTag, RecipientID: 2, MessageID: 2, SentAt: time.Now()}))

	busy := true
	job := pruneDeliveriesJob(st, func() bool { return busy }, 48*time.Hour, logx.Nop())

	require.NoError(t, job(ctx))
	entries, err := st.ListDeliveries(ctx, broadcast.LogTag)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "busy engine must not be pruned under")

	busy = false
	require.NoError(t, job(ctx))
	entries, err = st.ListDeliveries(ctx, broadcast.LogTag)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(2), entries[0].RecipientID)
}

type textSink struct {
	kit.Adapter
	mu   sync.Mutex
	sent map[int64]string
}

func (s *textSink) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent[to.ChatID] = text
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func TestStatsReportJob(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	for id := int64(1); id <= 3; id++ {
		require.NoError(t, st.UpsertRecipient(ctx, storage.Recipient{ID: id}))
	}
	sink := &textSink{sent: map[int64]string{}}

	require.NoError(t, statsReportJob(st, sink, []int64{10, 11})(ctx))
	require.Len(t, sink.sent, 2)
	assert.Contains(t, sink.sent[10], "Total: 3")
	assert.Contains(t, sink.sent[11], "Active (24h): 3")
}
