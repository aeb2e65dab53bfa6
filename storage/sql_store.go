package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"damai-scraper/models"
)

const (
	driverPostgres = "postgres"
	driverSQLite   = "sqlite3"

	// dateLayout is how show dates travel to and from the date column.
	dateLayout = "2006-01-02"
)

// SQLStore persists shows to PostgreSQL or SQLite through database/sql.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// Open connects to the database, waits for it to answer, runs the schema
// migration and returns a ready-to-use SQLStore. driver is "postgres" or "sqlite3".
func Open(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	if driver != driverPostgres && driver != driverSQLite {
		return nil, fmt.Errorf("storage: unsupported driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open: %w", err)
	}

	if driver == driverSQLite {
		// A single connection keeps in-memory databases shared and
		// serialises writers instead of failing with SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(15)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	for i := 0; i < 10; i++ {
		if err = db.PingContext(ctx); err == nil {
			break
		}
		select {
		case <-ctx.Done():
			_ = db.Close()
			return nil, fmt.Errorf("storage: ping: %w", ctx.Err())
		case <-time.After(2 * time.Second):
		}
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: ping failed after retries: %w", err)
	}

	s := &SQLStore{db: db, driver: driver}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	idColumn := "id SERIAL PRIMARY KEY"
	createdAt := "created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()"
	if s.driver == driverSQLite {
		idColumn = "id INTEGER PRIMARY KEY AUTOINCREMENT"
		createdAt = "created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP"
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS shows (
			` + idColumn + `,
			name       TEXT NOT NULL DEFAULT '',
			artist     TEXT NOT NULL DEFAULT '',
			tag        TEXT NOT NULL DEFAULT '',
			city       TEXT NOT NULL DEFAULT '',
			venue      TEXT NOT NULL DEFAULT '',
			lineup     TEXT NOT NULL DEFAULT '',
			date       DATE NOT NULL,
			price      TEXT NOT NULL DEFAULT '',
			status     TEXT NOT NULL DEFAULT '',
			detail_url TEXT NOT NULL DEFAULT '',
			poster     TEXT NOT NULL DEFAULT '',
			` + createdAt + `
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_shows_identity ON shows(name, date, city)`,
		`CREATE INDEX IF NOT EXISTS idx_shows_artist ON shows(artist)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// rebind rewrites ? placeholders into $n for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.driver != driverPostgres {
		return query
	}
	var b strings.Builder
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

// Begin starts a transaction on its own pooled connection.
func (s *SQLStore) Begin(ctx context.Context) (ShowTx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: begin: %w", err)
	}
	return &sqlTx{tx: tx, store: s}, nil
}

// ListByArtist returns every stored show of the artist ordered by date.
func (s *SQLStore) ListByArtist(ctx context.Context, artist string) ([]*models.StoredShow, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, name, artist, tag, city, venue, lineup, date, price, status, detail_url, poster, created_at
		FROM shows
		WHERE artist = ?
		ORDER BY date, id
	`), artist)
	if err != nil {
		return nil, fmt.Errorf("storage: list by artist: %w", err)
	}
	defer rows.Close()

	var shows []*models.StoredShow
	for rows.Next() {
		sh := &models.StoredShow{}
		if err := rows.Scan(
			&sh.ID, &sh.Name, &sh.Artist, &sh.Tag, &sh.City, &sh.Venue, &sh.Lineup,
			&sh.Date, &sh.Price, &sh.Status, &sh.DetailURL, &sh.PosterURL, &sh.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("storage: scan row: %w", err)
		}
		shows = append(shows, sh)
	}
	return shows, rows.Err()
}

// Count returns the number of stored shows.
func (s *SQLStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM shows").Scan(&n); err != nil {
		return 0, fmt.Errorf("storage: count: %w", err)
	}
	return n, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

type sqlTx struct {
	tx    *sql.Tx
	store *SQLStore
}

func (t *sqlTx) Exists(ctx context.Context, key models.ShowKey) (bool, error) {
	date, err := time.Parse(models.DateLayout, key.Date)
	if err != nil {
		return false, fmt.Errorf("storage: exists: bad date %q: %w", key.Date, err)
	}

	var one int
	err = t.tx.QueryRowContext(ctx, t.store.rebind(
		"SELECT 1 FROM shows WHERE name = ? AND date = ? AND city = ? LIMIT 1"),
		key.Name, date.Format(dateLayout), key.City,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("storage: exists: %w", err)
	}
	return true, nil
}

func (t *sqlTx) Insert(ctx context.Context, sh *models.StoredShow) (bool, error) {
	res, err := t.tx.ExecContext(ctx, t.store.rebind(`
		INSERT INTO shows (name, artist, tag, city, venue, lineup, date, price, status, detail_url, poster, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (name, date, city) DO NOTHING
	`),
		sh.Name, sh.Artist, sh.Tag, sh.City, sh.Venue, sh.Lineup,
		sh.Date.Format(dateLayout), sh.Price, sh.Status, sh.DetailURL, sh.PosterURL, sh.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("storage: insert %s: %w", sh.Key(), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("storage: insert %s: rows affected: %w", sh.Key(), err)
	}
	return n > 0, nil
}

func (t *sqlTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("storage: commit: %w", err)
	}
	return nil
}

func (t *sqlTx) Rollback() error {
	err := t.tx.Rollback()
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("storage: rollback: %w", err)
	}
	return nil
}
