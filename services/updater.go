package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"damai-scraper/models"
	"damai-scraper/storage"
	"damai-scraper/utils"
)

var (
	ErrNoShows     = errors.New("no shows found")
	ErrEmptyArtist = errors.New("empty artist name")
)

// ShowScraper returns the raw listings of one artist.
type ShowScraper interface {
	Scrape(ctx context.Context, artist string) ([]*models.RawShow, error)
}

// Updater refreshes the stored shows of several artists. Each artist is an
// independent unit of work: its failure is reported in its own result and
// never stops the others.
type Updater struct {
	scraper     ShowScraper
	pipeline    *UploadPipeline
	logger      *utils.Logger
	snapshots   storage.SnapshotSink
	concurrency int
	interval    time.Duration
}

// NewUpdater runs at most concurrency artists at once and starts them at
// least interval apart.
func NewUpdater(scraper ShowScraper, pipeline *UploadPipeline, logger *utils.Logger, concurrency int, interval time.Duration) *Updater {
	return &Updater{
		scraper:     scraper,
		pipeline:    pipeline,
		logger:      logger,
		concurrency: concurrency,
		interval:    interval,
	}
}

// WithSnapshots makes the updater write each artist's raw listings to sink.
func (u *Updater) WithSnapshots(sink storage.SnapshotSink) *Updater {
	u.snapshots = sink
	return u
}

// UpdateShows processes every artist and returns one result per artist in
// input order. Cancelling ctx stops artists that have not started yet.
func (u *Updater) UpdateShows(ctx context.Context, artists []string) []models.ArtistResult {
	results := make([]models.ArtistResult, len(artists))
	pool := utils.NewWorkerPool(u.concurrency, u.interval)

	for i, artist := range artists {
		i, artist := i, strings.TrimSpace(artist)
		pool.Submit(func() {
			results[i] = u.updateOne(ctx, artist)
		})
	}
	pool.Wait()

	ok := 0
	for _, r := range results {
		if r.Success {
			ok++
		}
	}
	u.logger.Info("[updater] %d/%d artists updated", ok, len(results))
	return results
}

func (u *Updater) updateOne(ctx context.Context, artist string) models.ArtistResult {
	result := models.ArtistResult{Artist: artist}
	if err := ctx.Err(); err != nil {
		result.Message = fmt.Sprintf("not started: %v", err)
		return result
	}

	stats, err := u.UpdateArtist(ctx, artist)
	if err != nil {
		u.logger.Error("[updater] Update failed for %q: %v", artist, err)
		result.Message = err.Error()
		return result
	}

	result.Success = true
	result.Stats = stats
	result.Message = fmt.Sprintf("updated: %d new, %d skipped", stats.New, stats.Skipped)
	return result
}

// UpdateArtist runs the fetch, extract and upload sequence for one artist.
func (u *Updater) UpdateArtist(ctx context.Context, artist string) (*models.UploadStats, error) {
	if artist == "" {
		return nil, ErrEmptyArtist
	}
	u.logger.Info("[updater] Updating shows for %q", artist)

	raw, err := u.scraper.Scrape(ctx, artist)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, ErrNoShows
	}

	if u.snapshots != nil {
		if path, err := u.snapshots.Write(artist, "raw", uuid.NewString(), raw); err != nil {
			u.logger.Warn("[updater] Snapshot failed for %q: %v", artist, err)
		} else {
			u.logger.Debug("[updater] Raw snapshot written to %s", path)
		}
	}

	return u.pipeline.Upload(ctx, artist, raw)
}
