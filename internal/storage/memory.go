package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Store. Nothing survives a restart.
type Memory struct {
	mu         sync.Mutex
	recipients map[int64]Recipient
	settings   map[string]string
	deliveries []DeliveryEntry
	seq        int64
}

func NewMemory() *Memory {
	return &Memory{recipients: map[int64]Recipient{}, settings: map[string]string{}}
}

func (m *Memory) Driver() string { return "memory" }
func (m *Memory) Close() error   { return nil }

func (m *Memory) CountRecipients(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.recipients), nil
}

func (m *Memory) CountActiveSince(ctx context.Context, since time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.recipients {
		if !r.LastActive.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *Memory) ListRecipients(ctx context.Context, p Page) ([]Recipient, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.Limit <= 0 {
		p.Limit = 500
	}
	m.mu.Lock()
	all := make([]Recipient, 0, len(m.recipients))
	for _, r := range m.recipients {
		if !p.HasAfter || r.Seq > p.AfterSeq {
			all = append(all, r)
		}
	}
	m.mu.Unlock()
	sort.Slice(all, func(i, j int) bool { return all[i].Seq < all[j].Seq })

	skip := min(max(p.Skip, 0), len(all))
	all = all[skip:]
	return all[:min(len(all), p.Limit)], nil
}

func (m *Memory) UpsertRecipient(ctx context.Context, r Recipient) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := time.Now()
	if r.LastActive.IsZero() {
		r.LastActive = now
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.recipients[r.ID]; ok {
		r.CreatedAt, r.Seq = old.CreatedAt, old.Seq
	} else {
		m.seq++
		r.Seq = m.seq
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
	}
	m.recipients[r.ID] = r
	return nil
}

func (m *Memory) DeleteRecipient(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.recipients, id)
	m.mu.Unlock()
	return nil
}

func (m *Memory) GetSetting(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.settings[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *Memory) SetSetting(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.settings[key] = value
	m.mu.Unlock()
	return nil
}

func (m *Memory) DeleteSetting(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.settings, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) AppendDelivery(ctx context.Context, e DeliveryEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.SentAt.IsZero() {
		e.SentAt = time.Now()
	}
	m.mu.Lock()
	m.deliveries = append(m.deliveries, e)
	m.mu.Unlock()
	return nil
}

func (m *Memory) ListDeliveries(ctx context.Context, tag string) ([]DeliveryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []DeliveryEntry
	for _, e := range m.deliveries {
		if e.Tag == tag {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *Memory) DeleteDeliveries(ctx context.Context, tag string) (int, error) {
	return m.removeDeliveries(ctx, func(e DeliveryEntry) bool { return e.Tag == tag })
}

func (m *Memory) PruneDeliveries(ctx context.Context, tag string, before time.Time) (int, error) {
	return m.removeDeliveries(ctx, func(e DeliveryEntry) bool { return e.Tag == tag && e.SentAt.Before(before) })
}

func (m *Memory) removeDeliveries(ctx context.Context, drop func(DeliveryEntry) bool) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.deliveries[:0]
	n := 0
	for _, e := range m.deliveries {
		if drop(e) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	m.deliveries = kept
	return n, nil
}
