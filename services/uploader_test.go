package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"damai-scraper/models"
	"damai-scraper/storage"
	"damai-scraper/utils"
)

func endToEndBatch() []*models.RawShow {
	return []*models.RawShow{
		rawShow("草莓音乐节", "北京", "2024.05.01"),
		rawShow("巡回演唱会", "上海", "2024.05.10-05.12"),
	}
}

func TestUploadEndToEndIsIdempotent(t *testing.T) {
	store := openSQLite(t)
	p := NewUploadPipeline(store, testPolicy(), utils.NopLogger())
	ctx := context.Background()

	stats, err := p.Upload(ctx, "X", endToEndBatch())
	if err != nil {
		t.Fatalf("first upload failed: %v", err)
	}
	if stats.Expanded != 4 {
		t.Errorf("Expanded: got %d, want 4", stats.Expanded)
	}
	if stats.New != 4 || stats.Skipped != 0 {
		t.Errorf("first run: new=%d skip=%d; want new=4 skip=0", stats.New, stats.Skipped)
	}
	if stats.RunID == "" || stats.Attempts != 1 {
		t.Errorf("unexpected run metadata: %+v", stats)
	}

	stats, err = p.Upload(ctx, "X", endToEndBatch())
	if err != nil {
		t.Fatalf("second upload failed: %v", err)
	}
	if stats.New != 0 || stats.Skipped != 4 {
		t.Errorf("second run: new=%d skip=%d; want new=0 skip=4", stats.New, stats.Skipped)
	}

	n, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 4 {
		t.Errorf("row count: got %d, want 4", n)
	}

	shows, err := store.ListByArtist(ctx, "X")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var got []string
	for _, sh := range shows {
		got = append(got, sh.Date.Format(models.DateLayout))
		if sh.Artist != "X" {
			t.Errorf("artist should come from the caller, got %q", sh.Artist)
		}
		if sh.CreatedAt.IsZero() {
			t.Error("created_at should be set at staging time")
		}
	}
	want := []string{"2024.05.01", "2024.05.10", "2024.05.11", "2024.05.12"}
	if !equalStrings(got, want) {
		t.Errorf("stored dates: got %v, want %v", got, want)
	}
}

func TestUploadSkipsUnparsableRecords(t *testing.T) {
	store := &memStore{}
	p := NewUploadPipeline(store, testPolicy(), utils.NopLogger())

	raw := append(endToEndBatch(), rawShow("加场", "上海", "待定"), rawShow("跨年", "上海", "2024.12.30-01.02"))
	stats, err := p.Upload(context.Background(), "X", raw)
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if stats.Unparsable != 2 {
		t.Errorf("Unparsable: got %d, want 2", stats.Unparsable)
	}
	if stats.New != 4 || len(store.rows) != 4 {
		t.Errorf("expected the 4 parsable shows stored, got new=%d rows=%d", stats.New, len(store.rows))
	}
}

func TestUploadInsertionOrderFollowsInput(t *testing.T) {
	store := &memStore{}
	p := NewUploadPipeline(store, testPolicy(), utils.NopLogger())

	if _, err := p.Upload(context.Background(), "X", []*models.RawShow{
		rawShow("B", "上海", "2024.06.02"),
		rawShow("A", "上海", "2024.06.01"),
	}); err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if store.rows[0].Name != "B" || store.rows[1].Name != "A" {
		t.Errorf("rows not in input order: %s, %s", store.rows[0].Name, store.rows[1].Name)
	}
}

func TestUploadSkipsExistingAndRepeatedShows(t *testing.T) {
	store := &memStore{rows: []*models.StoredShow{
		{Name: "巡回演唱会", City: "上海", Date: time.Date(2024, 5, 11, 0, 0, 0, 0, time.UTC), Artist: "X"},
	}}
	p := NewUploadPipeline(store, testPolicy(), utils.NopLogger())

	raw := append(endToEndBatch(), rawShow("草莓音乐节", "北京", "2024.05.01 19:30"))
	stats, err := p.Upload(context.Background(), "X", raw)
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	// 5 expanded: one already stored, one repeated within the batch.
	if stats.New != 3 || stats.Skipped != 2 {
		t.Errorf("new=%d skip=%d; want new=3 skip=2", stats.New, stats.Skipped)
	}
	if len(store.rows) != 4 {
		t.Errorf("rows: got %d, want 4", len(store.rows))
	}
}

func TestUploadTreatsInsertConflictAsDuplicate(t *testing.T) {
	store := &memStore{
		blindExists: true,
		rows: []*models.StoredShow{
			{Name: "草莓音乐节", City: "北京", Date: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), Artist: "X"},
		},
	}
	p := NewUploadPipeline(store, testPolicy(), utils.NopLogger())

	stats, err := p.Upload(context.Background(), "X", endToEndBatch())
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if stats.New != 3 || stats.Skipped != 1 {
		t.Errorf("new=%d skip=%d; want new=3 skip=1", stats.New, stats.Skipped)
	}
}

func TestUploadCommitFailureExhaustsRetries(t *testing.T) {
	store := &memStore{
		rows: []*models.StoredShow{
			{Name: "旧演出", City: "广州", Date: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), Artist: "X"},
		},
		commitFailures: 3,
		commitErr:      fmt.Errorf("commit: %w", storage.ErrTransient),
	}
	p := NewUploadPipeline(store, testPolicy(), utils.NopLogger())

	stats, err := p.Upload(context.Background(), "X", endToEndBatch())
	if err == nil {
		t.Fatalf("expected failure, got stats %+v", stats)
	}
	var bf *BatchFailure
	if !errors.As(err, &bf) {
		t.Fatalf("expected *BatchFailure, got %T: %v", err, err)
	}
	if bf.Attempts != 3 || bf.Artist != "X" {
		t.Errorf("BatchFailure: %+v", bf)
	}
	if !errors.Is(err, storage.ErrTransient) {
		t.Errorf("cause should be preserved, got %v", err)
	}
	if store.begins != 3 {
		t.Errorf("each attempt should start from a fresh transaction, got %d begins", store.begins)
	}
	if len(store.rows) != 1 {
		t.Errorf("store must be unchanged after a failed batch, got %d rows", len(store.rows))
	}
}

func TestUploadCommitFailureThenSuccess(t *testing.T) {
	store := &memStore{commitFailures: 1, commitErr: errors.New("connection lost during commit")}
	p := NewUploadPipeline(store, testPolicy(), utils.NopLogger())

	stats, err := p.Upload(context.Background(), "X", endToEndBatch())
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if stats.Attempts != 2 {
		t.Errorf("Attempts: got %d, want 2", stats.Attempts)
	}
	if stats.New != 4 || len(store.rows) != 4 {
		t.Errorf("expected 4 rows after retry, got new=%d rows=%d", stats.New, len(store.rows))
	}
}

func TestUploadTransientCheckRetriedInPlace(t *testing.T) {
	store := &memStore{existsFailures: 1, existsErr: storage.ErrTransient}
	p := NewUploadPipeline(store, testPolicy(), utils.NopLogger())

	stats, err := p.Upload(context.Background(), "X", endToEndBatch())
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if stats.Attempts != 1 {
		t.Errorf("a transient check failure should not restart the batch, got %d attempts", stats.Attempts)
	}
	if store.existsCalls != 5 {
		t.Errorf("existsCalls: got %d, want 5 (4 shows + 1 retry)", store.existsCalls)
	}
}

func TestUploadNonTransientCheckNotRetriedInPlace(t *testing.T) {
	store := &memStore{existsFailures: 1, existsErr: errors.New("relation \"shows\" does not exist")}
	p := NewUploadPipeline(store, testPolicy(), utils.NopLogger())

	stats, err := p.Upload(context.Background(), "X", endToEndBatch())
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if stats.Attempts != 2 {
		t.Errorf("Attempts: got %d, want 2", stats.Attempts)
	}
	if store.existsCalls != 5 {
		t.Errorf("existsCalls: got %d, want 5 (1 failed + 4 on the second attempt)", store.existsCalls)
	}
}

func TestUploadCanceledContextIsNotRetried(t *testing.T) {
	store := &memStore{}
	p := NewUploadPipeline(store, testPolicy(), utils.NopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Upload(ctx, "X", endToEndBatch())
	var bf *BatchFailure
	if !errors.As(err, &bf) {
		t.Fatalf("expected *BatchFailure, got %v", err)
	}
	if bf.Attempts != 1 {
		t.Errorf("Attempts: got %d, want 1", bf.Attempts)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

type recordingSink struct {
	stages []string
}

func (s *recordingSink) Write(artist, stage, runID string, v any) (string, error) {
	s.stages = append(s.stages, artist+":"+stage)
	return "/dev/null", nil
}

func TestUploadWritesProcessedSnapshot(t *testing.T) {
	sink := &recordingSink{}
	p := NewUploadPipeline(&memStore{}, testPolicy(), utils.NopLogger()).WithSnapshots(sink)

	if _, err := p.Upload(context.Background(), "X", endToEndBatch()); err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	sort.Strings(sink.stages)
	if len(sink.stages) != 1 || sink.stages[0] != "X:processed" {
		t.Errorf("snapshots: got %v", sink.stages)
	}
}

func TestDuplicateChecker(t *testing.T) {
	store := &memStore{rows: []*models.StoredShow{
		{Name: "巡回演唱会", City: "上海", Date: time.Date(2024, 12, 21, 0, 0, 0, 0, time.UTC)},
	}}
	c := NewDuplicateChecker(testPolicy(), utils.NopLogger())
	tx, _ := store.Begin(context.Background())

	show := func(name, city string, day int) *models.Show {
		return &models.Show{Name: name, City: city, Date: time.Date(2024, 12, day, 0, 0, 0, 0, time.UTC)}
	}

	tests := []struct {
		name string
		show *models.Show
		want bool
	}{
		{"same triple", show("巡回演唱会", "上海", 21), true},
		{"other name", show("巡回演唱会（加场）", "上海", 21), false},
		{"other date", show("巡回演唱会", "上海", 22), false},
		{"other city", show("巡回演唱会", "北京", 21), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.IsDuplicate(context.Background(), tx, tt.show)
			if err != nil {
				t.Fatalf("IsDuplicate: %v", err)
			}
			if got != tt.want {
				t.Errorf("IsDuplicate = %v; want %v", got, tt.want)
			}
		})
	}
}

func TestDuplicateCheckerGivesUpAfterThreeTransientFailures(t *testing.T) {
	store := &memStore{existsFailures: 5, existsErr: storage.ErrTransient}
	c := NewDuplicateChecker(testPolicy(), utils.NopLogger())
	tx, _ := store.Begin(context.Background())

	_, err := c.IsDuplicate(context.Background(), tx, &models.Show{Name: "A", City: "上海"})
	if !errors.Is(err, storage.ErrTransient) {
		t.Fatalf("expected transient error to propagate, got %v", err)
	}
	if store.existsCalls != 3 {
		t.Errorf("existsCalls: got %d, want 3", store.existsCalls)
	}
}
