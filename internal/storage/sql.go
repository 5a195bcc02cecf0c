package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"strconv"
	"strings"
	"time"

	logx "castbot/pkg/logx"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// sqlStore implements Store for database/sql drivers. Queries are written
// with '?' placeholders and rebound for drivers that number them.
type sqlStore struct {
	db       *sql.DB
	log      logx.Logger
	driver   string
	numbered bool
}

func (s *sqlStore) Driver() string { return s.driver }

func (s *sqlStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqlStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations/" + s.driver + ".sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

// q rewrites '?' placeholders to $1..$n for postgres.
func (s *sqlStore) q(query string) string {
	if !s.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlStore) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	return s.db.ExecContext(ctx, s.q(query), args...)
}

func (s *sqlStore) count(ctx context.Context, query string, args ...any) (int, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	var n int
	err := s.db.QueryRowContext(ctx, s.q(query), args...).Scan(&n)
	return n, err
}

func (s *sqlStore) CountRecipients(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM recipients`)
}

func (s *sqlStore) CountActiveSince(ctx context.Context, since time.Time) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM recipients WHERE last_active >= ?`, since.UnixMilli())
}

func (s *sqlStore) ListRecipients(ctx context.Context, p Page) ([]Recipient, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if p.Limit <= 0 {
		p.Limit = 500
	}
	query := `SELECT id, seq, username, first_name, last_active, created_at FROM recipients`
	args := make([]any, 0, 3)
	if p.HasAfter {
		query += ` WHERE seq > ?`
		args = append(args, p.AfterSeq)
	}
	query += ` ORDER BY seq LIMIT ? OFFSET ?`
	args = append(args, p.Limit, max(p.Skip, 0))

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Recipient, 0, p.Limit)
	for rows.Next() {
		var r Recipient
		var active, created int64
		if err := rows.Scan(&r.ID, &r.Seq, &r.Username, &r.FirstName, &active, &created); err != nil {
			return nil, err
		}
		r.LastActive, r.CreatedAt = time.UnixMilli(active), time.UnixMilli(created)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqlStore) UpsertRecipient(ctx context.Context, r Recipient) error {
	now := time.Now()
	if r.LastActive.IsZero() {
		r.LastActive = now
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	_, err := s.exec(ctx,
		`INSERT INTO recipients(id, username, first_name, last_active, created_at) VALUES(?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET username=excluded.username, first_name=excluded.first_name, last_active=excluded.last_active`,
		r.ID, r.Username, r.FirstName, r.LastActive.UnixMilli(), r.CreatedAt.UnixMilli(),
	)
	return err
}

func (s *sqlStore) DeleteRecipient(ctx context.Context, id int64) error {
	_, err := s.exec(ctx, `DELETE FROM recipients WHERE id = ?`, id)
	return err
}

func (s *sqlStore) GetSetting(ctx context.Context, key string) (string, error) {
	if s == nil || s.db == nil {
		return "", ErrDisabled
	}
	var v string
	err := s.db.QueryRowContext(ctx, s.q(`SELECT value FROM settings WHERE key = ?`), key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return v, err
}

func (s *sqlStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.exec(ctx,
		`INSERT INTO settings(key, value, updated_at) VALUES(?,?,?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		key, value, time.Now().UnixMilli(),
	)
	return err
}

func (s *sqlStore) DeleteSetting(ctx context.Context, key string) error {
	_, err := s.exec(ctx, `DELETE FROM settings WHERE key = ?`, key)
	return err
}

func (s *sqlStore) AppendDelivery(ctx context.Context, e DeliveryEntry) error {
	if e.SentAt.IsZero() {
		e.SentAt = time.Now()
	}
	_, err := s.exec(ctx,
		`INSERT INTO deliveries(tag, recipient_id, message_id, sent_at) VALUES(?,?,?,?)`,
		e.Tag, e.RecipientID, e.MessageID, e.SentAt.UnixMilli(),
	)
	return err
}

func (s *sqlStore) ListDeliveries(ctx context.Context, tag string) ([]DeliveryEntry, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT tag, recipient_id, message_id, sent_at FROM deliveries WHERE tag = ? ORDER BY id`), tag)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DeliveryEntry
	for rows.Next() {
		var e DeliveryEntry
		var sent int64
		if err := rows.Scan(&e.Tag, &e.RecipientID, &e.MessageID, &sent); err != nil {
			return nil, err
		}
		e.SentAt = time.UnixMilli(sent)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *sqlStore) DeleteDeliveries(ctx context.Context, tag string) (int, error) {
	return affected(s.exec(ctx, `DELETE FROM deliveries WHERE tag = ?`, tag))
}

func (s *sqlStore) PruneDeliveries(ctx context.Context, tag string, before time.Time) (int, error) {
	return affected(s.exec(ctx, `DELETE FROM deliveries WHERE tag = ? AND sent_at < ?`, tag, before.UnixMilli()))
}

func affected(res sql.Result, err error) (int, error) {
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
