// Package storage persists news items in sqlite. The store is the dedup
// authority across restarts: writes are upserts keyed by GUID, so
// re-ingesting an item never creates a duplicate row.
package storage

import (
	"context"
	"errors"
	"time"

	"newswire/internal/news"
)

var ErrClosed = errors.New("storage closed")

// Config configures the sqlite store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default (5s)
}

// Store is the persistence API used by the pipeline and the hub.
type Store interface {
	// UpsertItems inserts or updates the batch in one transaction.
	// All mutable fields are overwritten on conflict.
	UpsertItems(ctx context.Context, items []news.Item) error
	// Exists reports whether a row with the GUID is present.
	Exists(ctx context.Context, guid string) (bool, error)
	// Count returns the total number of persisted items.
	Count(ctx context.Context) (int, error)
	// HistoryPage returns up to limit items ordered by publication time
	// descending, skipping offset rows. Beyond-end pages return an empty
	// slice, not an error.
	HistoryPage(ctx context.Context, offset, limit int) ([]news.Item, error)
	Close() error
}
