package storage

import (
	"context"

	"damai-scraper/models"
)

// ShowStore is the interface any relational backend for shows must satisfy.
// Each Begin hands out an independent transaction, so concurrent artist
// pipelines never share one session.
type ShowStore interface {
	Begin(ctx context.Context) (ShowTx, error)
	ListByArtist(ctx context.Context, artist string) ([]*models.StoredShow, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// ShowTx is one transactional session against the store.
type ShowTx interface {
	// Exists reports whether a show with exactly this identity is stored.
	Exists(ctx context.Context, key models.ShowKey) (bool, error)
	// Insert adds the show and reports whether a row was written; false means
	// the identity was already taken.
	Insert(ctx context.Context, show *models.StoredShow) (bool, error)
	Commit() error
	Rollback() error
}

// SnapshotSink persists audit copies of record batches.
type SnapshotSink interface {
	Write(artist, stage, runID string, v any) (string, error)
}
