package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"damai-scraper/models"
	"damai-scraper/storage"
	"damai-scraper/utils"
)

// BatchFailure is returned when an artist's batch could not be committed.
type BatchFailure struct {
	Artist   string
	Attempts int
	Err      error
}

func (e *BatchFailure) Error() string {
	return fmt.Sprintf("upload shows for %q failed after %d attempt(s): %v", e.Artist, e.Attempts, e.Err)
}

func (e *BatchFailure) Unwrap() error {
	return e.Err
}

// UploadPipeline expands raw listings, filters out stored occurrences and
// commits the remainder in one transaction.
type UploadPipeline struct {
	store     storage.ShowStore
	checker   *DuplicateChecker
	retry     *utils.RetryPolicy
	logger    *utils.Logger
	snapshots storage.SnapshotSink
	now       func() time.Time
}

// NewUploadPipeline creates a pipeline. The same policy bounds both the
// per-query duplicate checks and the whole-batch retries.
func NewUploadPipeline(store storage.ShowStore, policy *utils.RetryPolicy, logger *utils.Logger) *UploadPipeline {
	return &UploadPipeline{
		store:   store,
		checker: NewDuplicateChecker(policy, logger),
		retry:   policy.WithRetryable(retryableBatchError),
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithSnapshots makes the pipeline write the expanded batch to sink.
func (p *UploadPipeline) WithSnapshots(sink storage.SnapshotSink) *UploadPipeline {
	p.snapshots = sink
	return p
}

func retryableBatchError(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// Upload stores the shows of raw under artist. Records whose dates cannot be
// parsed are logged and skipped. A failed attempt is rolled back in full and
// the batch is run again from the start; when attempts run out the error is
// a *BatchFailure and the store is as it was before the call.
func (p *UploadPipeline) Upload(ctx context.Context, artist string, raw []*models.RawShow) (*models.UploadStats, error) {
	start := time.Now()
	runID := uuid.NewString()

	expanded, unparsable := p.expand(raw)
	p.logger.Info("[upload] %s: %d raw listings → %d shows (%d unparsable)",
		artist, len(raw), len(expanded), unparsable)

	if p.snapshots != nil {
		if path, err := p.snapshots.Write(artist, "processed", runID, expanded); err != nil {
			p.logger.Warn("[upload] Snapshot failed for %s: %v", artist, err)
		} else {
			p.logger.Debug("[upload] Processed snapshot written to %s", path)
		}
	}

	attempts := 0
	var stats *models.UploadStats
	err := p.retry.Do(ctx, "upload-"+artist, func() error {
		attempts++
		var err error
		stats, err = p.attempt(ctx, artist, expanded)
		return err
	})
	if err != nil {
		p.logger.Error("[upload] %s: giving up after %d attempt(s): %v", artist, attempts, err)
		return nil, &BatchFailure{Artist: artist, Attempts: attempts, Err: err}
	}

	stats.RunID = runID
	stats.Raw = len(raw)
	stats.Expanded = len(expanded)
	stats.Unparsable = unparsable
	stats.Attempts = attempts
	stats.Duration = time.Since(start)

	p.logger.Info("[upload] %s: upload complete: %d new, %d skipped as duplicates", artist, stats.New, stats.Skipped)
	return stats, nil
}

func (p *UploadPipeline) expand(raw []*models.RawShow) ([]*models.Show, int) {
	var shows []*models.Show
	unparsable := 0
	for _, res := range ExpandAll(raw) {
		if res.Skipped() {
			unparsable++
			p.logger.Warn("[expander] Skipping %q (%s): %v", res.Raw.Name, res.Raw.City, res.Err)
			continue
		}
		shows = append(shows, res.Shows...)
	}
	return shows, unparsable
}

// attempt runs one transactional pass over the batch.
func (p *UploadPipeline) attempt(ctx context.Context, artist string, shows []*models.Show) (stats *models.UploadStats, err error) {
	tx, err := p.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				p.logger.Warn("[upload] Rollback failed: %v", rbErr)
			}
		}
	}()

	stats = &models.UploadStats{Artist: artist}
	batch := utils.NewKeySet()
	staged := make([]*models.StoredShow, 0, len(shows))

	for _, show := range shows {
		key := show.Key()
		if !batch.Add(key.String()) {
			stats.Skipped++
			p.logger.Debug("[upload] Repeated in batch: %s", key)
			continue
		}

		dup, err := p.checker.IsDuplicate(ctx, tx, show)
		if err != nil {
			return nil, fmt.Errorf("duplicate check %s: %w", key, err)
		}
		if dup {
			stats.Skipped++
			p.logger.Info("[upload] Skipping duplicate: %s", key)
			continue
		}
		staged = append(staged, models.NewStoredShow(show, artist, p.now()))
	}

	for _, sh := range staged {
		inserted, err := tx.Insert(ctx, sh)
		if err != nil {
			return nil, err
		}
		if !inserted {
			// Stored by a concurrent writer after our check.
			stats.Skipped++
			p.logger.Info("[upload] Skipping duplicate on insert: %s", sh.Key())
			continue
		}
		stats.New++
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return stats, nil
}
