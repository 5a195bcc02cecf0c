package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrNotFound = errors.New("not found")
)

// Config selects and configures a driver.
type Config struct {
	Driver      string // sqlite | postgres | memory
	Path        string // sqlite database file
	DSN         string // postgres connection string
	BusyTimeout time.Duration
}

type Recipient struct {
	ID int64
	// Seq is assigned on first insert and never changes; recipients are
	// walked in Seq order so late registrations land at the end.
	Seq        int64
	Username   string
	FirstName  string
	LastActive time.Time
	CreatedAt  time.Time
}

// DisplayName prefers the @username.
func (r Recipient) DisplayName() string {
	if r.Username != "" {
		return "@" + r.Username
	}
	return r.FirstName
}

type DeliveryEntry struct {
	Tag         string
	RecipientID int64
	MessageID   int
	SentAt      time.Time
}

// Page selects recipients in registration order. When HasAfter is set only
// recipients with Seq greater than AfterSeq are returned; Skip is applied
// after that.
type Page struct {
	AfterSeq int64
	HasAfter bool
	Skip     int
	Limit    int
}

type RecipientStore interface {
	CountRecipients(ctx context.Context) (int, error)
	CountActiveSince(ctx context.Context, since time.Time) (int, error)
	ListRecipients(ctx context.Context, p Page) ([]Recipient, error)
	// UpsertRecipient creates the recipient or refreshes its names and LastActive.
	UpsertRecipient(ctx context.Context, r Recipient) error
	DeleteRecipient(ctx context.Context, id int64) error
}

type SettingsStore interface {
	// GetSetting returns ErrNotFound for a missing key.
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	DeleteSetting(ctx context.Context, key string) error
}

type DeliveryLog interface {
	AppendDelivery(ctx context.Context, e DeliveryEntry) error
	ListDeliveries(ctx context.Context, tag string) ([]DeliveryEntry, error)
	DeleteDeliveries(ctx context.Context, tag string) (int, error)
	// PruneDeliveries removes entries of tag sent before the cutoff.
	PruneDeliveries(ctx context.Context, tag string, before time.Time) (int, error)
}

type Store interface {
	RecipientStore
	SettingsStore
	DeliveryLog
	Driver() string
	Close() error
}
