package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"damai-scraper/models"
	"damai-scraper/storage"
	"damai-scraper/utils"
)

// memStore is an in-memory storage.ShowStore with failure injection.
type memStore struct {
	mu   sync.Mutex
	rows []*models.StoredShow

	existsFailures int
	existsErr      error
	commitFailures int
	commitErr      error
	// blindExists makes every lookup miss, as if another writer committed
	// between the check and the insert.
	blindExists bool

	begins      int
	existsCalls int
}

func (m *memStore) Begin(ctx context.Context) (storage.ShowTx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.begins++
	return &memTx{store: m}, nil
}

func (m *memStore) ListByArtist(_ context.Context, artist string) ([]*models.StoredShow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.StoredShow
	for _, r := range m.rows {
		if r.Artist == artist {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) Count(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows), nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) hasKey(key models.ShowKey) bool {
	for _, r := range m.rows {
		if r.Key() == key {
			return true
		}
	}
	return false
}

type memTx struct {
	store  *memStore
	staged []*models.StoredShow
	done   bool
}

func (t *memTx) Exists(_ context.Context, key models.ShowKey) (bool, error) {
	m := t.store
	m.mu.Lock()
	defer m.mu.Unlock()
	m.existsCalls++
	if m.existsFailures > 0 {
		m.existsFailures--
		return false, m.existsErr
	}
	if m.blindExists {
		return false, nil
	}
	return m.hasKey(key), nil
}

func (t *memTx) Insert(_ context.Context, sh *models.StoredShow) (bool, error) {
	m := t.store
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hasKey(sh.Key()) {
		return false, nil
	}
	for _, s := range t.staged {
		if s.Key() == sh.Key() {
			return false, nil
		}
	}
	t.staged = append(t.staged, sh)
	return true, nil
}

func (t *memTx) Commit() error {
	m := t.store
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.done {
		return errors.New("tx already done")
	}
	t.done = true
	if m.commitFailures > 0 {
		m.commitFailures--
		return m.commitErr
	}
	m.rows = append(m.rows, t.staged...)
	return nil
}

func (t *memTx) Rollback() error {
	t.done = true
	t.staged = nil
	return nil
}

func testPolicy() *utils.RetryPolicy {
	return &utils.RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond, Logger: utils.NopLogger()}
}

func openSQLite(t *testing.T) *storage.SQLStore {
	t.Helper()
	s, err := storage.Open(context.Background(), "sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}
