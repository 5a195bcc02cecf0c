// Package storage persists the bot's audience and broadcast bookkeeping:
// recipients, small key/value settings (welcome text, broadcast checkpoint)
// and the delivery log used to recall the latest broadcast.
//
// Drivers: "sqlite" (modernc.org/sqlite, pure Go), "postgres" (lib/pq) and
// "memory" for tests and dry runs.
package storage
