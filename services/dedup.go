package services

import (
	"context"

	"damai-scraper/models"
	"damai-scraper/storage"
	"damai-scraper/utils"
)

// ShowLookup answers identity point lookups; storage.ShowTx satisfies it.
type ShowLookup interface {
	Exists(ctx context.Context, key models.ShowKey) (bool, error)
}

// DuplicateChecker decides whether a show occurrence is already stored.
type DuplicateChecker struct {
	retry  *utils.RetryPolicy
	logger *utils.Logger
}

// NewDuplicateChecker retries transient storage errors with policy; anything
// else is returned on the first failure.
func NewDuplicateChecker(policy *utils.RetryPolicy, logger *utils.Logger) *DuplicateChecker {
	return &DuplicateChecker{
		retry:  policy.WithRetryable(storage.IsTransient),
		logger: logger,
	}
}

// IsDuplicate reports whether a stored show has exactly the same (name, date, city).
func (c *DuplicateChecker) IsDuplicate(ctx context.Context, lookup ShowLookup, show *models.Show) (bool, error) {
	key := show.Key()

	var exists bool
	err := c.retry.Do(ctx, "duplicate-check", func() error {
		var err error
		exists, err = lookup.Exists(ctx, key)
		return err
	})
	if err != nil {
		return false, err
	}
	if exists {
		c.logger.Debug("[dedup] Already stored: %s", key)
	}
	return exists, nil
}
