package storage

import (
	"context"
	"testing"
	"time"

	"damai-scraper/models"
)

func openTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := Open(context.Background(), driverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sampleStored(name, city string, date time.Time) *models.StoredShow {
	return &models.StoredShow{
		Name:      name,
		Artist:    "陈楚生",
		Tag:       "演唱会",
		City:      city,
		Venue:     "梅赛德斯奔驰文化中心",
		Date:      date,
		Price:     "380-1280",
		Status:    "售票中",
		DetailURL: "https://detail.damai.cn/item.htm?id=1",
		PosterURL: "https://img.alicdn.com/poster.jpg",
		CreatedAt: time.Now().UTC(),
	}
}

func insertAndCommit(t *testing.T, s *SQLStore, shows ...*models.StoredShow) {
	t.Helper()
	ctx := context.Background()
	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	for _, sh := range shows {
		if _, err := tx.Insert(ctx, sh); err != nil {
			_ = tx.Rollback()
			t.Fatalf("insert: %v", err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestSQLStoreExists(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	insertAndCommit(t, s, sampleStored("巡回演唱会", "上海", day(2024, 12, 21)))

	tests := []struct {
		name string
		key  models.ShowKey
		want bool
	}{
		{"identical triple", models.ShowKey{Name: "巡回演唱会", Date: "2024.12.21", City: "上海"}, true},
		{"different name", models.ShowKey{Name: "巡回演唱会 加场", Date: "2024.12.21", City: "上海"}, false},
		{"different date", models.ShowKey{Name: "巡回演唱会", Date: "2024.12.22", City: "上海"}, false},
		{"different city", models.ShowKey{Name: "巡回演唱会", Date: "2024.12.21", City: "北京"}, false},
		{"whitespace is significant", models.ShowKey{Name: "巡回演唱会 ", Date: "2024.12.21", City: "上海"}, false},
	}

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tx.Exists(ctx, tt.key)
			if err != nil {
				t.Fatalf("exists: %v", err)
			}
			if got != tt.want {
				t.Errorf("Exists(%s) = %v; want %v", tt.key, got, tt.want)
			}
		})
	}
}

func TestSQLStoreInsertConflictIsNotAnError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	insertAndCommit(t, s, sampleStored("巡回演唱会", "上海", day(2024, 12, 21)))

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	inserted, err := tx.Insert(ctx, sampleStored("巡回演唱会", "上海", day(2024, 12, 21)))
	if err != nil {
		t.Fatalf("insert duplicate: %v", err)
	}
	if inserted {
		t.Error("duplicate identity should not insert a row")
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("count: got %d, want 1", n)
	}
}

func TestSQLStoreRollbackDiscardsRows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := tx.Insert(ctx, sampleStored("巡回演唱会", "上海", day(2024, 12, 21))); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Errorf("second rollback should be a no-op, got %v", err)
	}

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("count after rollback: got %d, want 0", n)
	}
}

func TestSQLStoreListByArtist(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	other := sampleStored("别人的演出", "广州", day(2024, 6, 1))
	other.Artist = "someone else"
	insertAndCommit(t, s,
		sampleStored("巡回演唱会", "上海", day(2024, 12, 22)),
		sampleStored("巡回演唱会", "上海", day(2024, 12, 21)),
		other,
	)

	shows, err := s.ListByArtist(ctx, "陈楚生")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(shows) != 2 {
		t.Fatalf("expected 2 shows, got %d", len(shows))
	}
	if got := shows[0].Date.Format(models.DateLayout); got != "2024.12.21" {
		t.Errorf("first show date: got %s, want 2024.12.21", got)
	}
	if shows[0].ID == 0 {
		t.Error("surrogate id should be assigned")
	}
	if shows[0].Venue != "梅赛德斯奔驰文化中心" || shows[0].PosterURL == "" {
		t.Errorf("fields not round-tripped: %+v", shows[0])
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), "mysql", "root@/damai"); err == nil {
		t.Error("expected an error for an unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	pg := &SQLStore{driver: driverPostgres}
	got := pg.rebind("SELECT 1 FROM shows WHERE name = ? AND date = ? AND city = ?")
	want := "SELECT 1 FROM shows WHERE name = $1 AND date = $2 AND city = $3"
	if got != want {
		t.Errorf("rebind: got %q, want %q", got, want)
	}

	lite := &SQLStore{driver: driverSQLite}
	if q := "SELECT ?"; lite.rebind(q) != q {
		t.Error("sqlite queries should be left untouched")
	}
}
