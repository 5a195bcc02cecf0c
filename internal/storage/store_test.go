package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "castbot/pkg/logx"
)

func openDrivers(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()
	lite, err := Open(ctx, Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "castbot.db")}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = lite.Close() })
	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": lite,
	}
}

func TestRecipientLifecycle(t *testing.T) {
	for name, st := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			old := time.Now().Add(-48 * time.Hour)
			require.NoError(t, st.UpsertRecipient(ctx, Recipient{ID: 3, Username: "c", LastActive: old}))
			require.NoError(t, st.UpsertRecipient(ctx, Recipient{ID: 1, FirstName: "Ann"}))
			require.NoError(t, st.UpsertRecipient(ctx, Recipient{ID: 2, Username: "b"}))
			require.NoError(t, st.UpsertRecipient(ctx, Recipient{ID: 1, FirstName: "Anna"}))

			n, err := st.CountRecipients(ctx)
			require.NoError(t, err)
			assert.Equal(t, 3, n)

			active, err := st.CountActiveSince(ctx, time.Now().Add(-24*time.Hour))
			require.NoError(t, err)
			assert.Equal(t, 2, active)

			// registration order, not id order; the second upsert of 1 keeps its place
			page, err := st.ListRecipients(ctx, Page{Limit: 10})
			require.NoError(t, err)
			require.Len(t, page, 3)
			assert.Equal(t, []int64{3, 1, 2}, []int64{page[0].ID, page[1].ID, page[2].ID})
			assert.Equal(t, "Anna", page[1].FirstName)
			assert.Less(t, page[0].Seq, page[1].Seq)
			assert.Less(t, page[1].Seq, page[2].Seq)

			page, err = st.ListRecipients(ctx, Page{Skip: 1, Limit: 1})
			require.NoError(t, err)
			require.Len(t, page, 1)
			assert.Equal(t, int64(1), page[0].ID)

			page, err = st.ListRecipients(ctx, Page{AfterSeq: page[0].Seq, HasAfter: true, Limit: 10})
			require.NoError(t, err)
			require.Len(t, page, 1)
			assert.Equal(t, int64(2), page[0].ID)

			require.NoError(t, st.DeleteRecipient(ctx, 2))
			n, err = st.CountRecipients(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, n)
		})
	}
}

func TestSettings(t *testing.T) {
	for name, st := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := st.GetSetting(ctx, "k")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, st.SetSetting(ctx, "k", "v1"))
			require.NoError(t, st.SetSetting(ctx, "k", "v2"))
			v, err := st.GetSetting(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, "v2", v)

			require.NoError(t, st.DeleteSetting(ctx, "k"))
			_, err = st.GetSetting(ctx, "k")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestDeliveryLog(t *testing.T) {
	for name, st := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now()
			require.NoError(t, st.AppendDelivery(ctx, DeliveryEntry{Tag: "last", RecipientID: 1, MessageID: 10, SentAt: now.Add(-72 * time.Hour)}))
			require.NoError(t, st.AppendDelivery(ctx, DeliveryEntry{Tag: "last", RecipientID: 2, MessageID: 11, SentAt: now}))
			require.NoError(t, st.AppendDelivery(ctx, DeliveryEntry{Tag: "other", RecipientID: 3, MessageID: 12, SentAt: now}))

			entries, err := st.ListDeliveries(ctx, "last")
			require.NoError(t, err)
			require.Len(t, entries, 2)
			assert.Equal(t, 10, entries[0].MessageID)

			pruned, err := st.PruneDeliveries(ctx, "last", now.Add(-48*time.Hour))
			require.NoError(t, err)
			assert.Equal(t, 1, pruned)

			deleted, err := st.DeleteDeliveries(ctx, "last")
			require.NoError(t, err)
			assert.Equal(t, 1, deleted)

			entries, err = st.ListDeliveries(ctx, "other")
			require.NoError(t, err)
			assert.Len(t, entries, 1)
		})
	}
}

func TestCursorSurvivesDeletesBehindIt(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := NewMemory()
	for id := int64(1); id <= 10; id++ {
		require.NoError(t, st.UpsertRecipient(ctx, Recipient{ID: id}))
	}

	c := NewCursor(st, 2, 3)
	var seen []int64
	for c.Next(ctx) {
		id := c.Recipient().ID
		seen = append(seen, id)
		if id%2 == 0 {
			require.NoError(t, st.DeleteRecipient(ctx, id))
		}
	}
	require.NoError(t, c.Err())
	assert.Equal(t, []int64{3, 4, 5, 6, 7, 8, 9, 10}, seen)
}

func TestLateRegistrationWalksLast(t *testing.T) {
	for name, st := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for id := int64(100); id < 110; id++ {
				require.NoError(t, st.UpsertRecipient(ctx, Recipient{ID: id}))
			}
			// a low id registered after the first five were visited
			require.NoError(t, st.UpsertRecipient(ctx, Recipient{ID: 7}))

			c := NewCursor(st, 5, 2)
			var seen []int64
			for c.Next(ctx) {
				seen = append(seen, c.Recipient().ID)
			}
			require.NoError(t, c.Err())
			assert.Equal(t, []int64{105, 106, 107, 108, 109, 7}, seen)
		})
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	_, err := Open(context.Background(), Config{Driver: "mongo"}, logx.Nop())
	assert.Error(t, err)
}
