package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/curriculum-gate-api/internal/models"
	appErrors "github.com/noah-isme/curriculum-gate-api/pkg/errors"
)

const progressKeyPrefix = "progress:v1:"

type snapshotStore interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPrefix(ctx context.Context, prefix string) (int, error)
}

// ProgressCache holds computed progress snapshots keyed by cohort and learner. Every
// method is safe on a nil receiver, which disables caching.
type ProgressCache struct {
	store   snapshotStore
	metrics *MetricsService
	ttl     time.Duration
	logger  *zap.Logger
}

// NewProgressCache constructs the cache. A non-positive ttl falls back to five minutes.
func NewProgressCache(store snapshotStore, metrics *MetricsService, ttl time.Duration, logger *zap.Logger) *ProgressCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressCache{store: store, metrics: metrics, ttl: ttl, logger: logger}
}

func progressKey(cohortID, learnerID string) string {
	return fmt.Sprintf("%s%s:%s", progressKeyPrefix, cohortID, learnerID)
}

func cohortPrefix(cohortID string) string {
	return fmt.Sprintf("%s%s:", progressKeyPrefix, cohortID)
}

// Load returns the cached snapshot. Store failures count as misses.
func (c *ProgressCache) Load(ctx context.Context, cohortID, learnerID string) (*models.Progress, bool) {
	if c == nil || c.store == nil {
		return nil, false
	}
	start := time.Now()
	var snapshot models.Progress
	err := c.store.Get(ctx, progressKey(cohortID, learnerID), &snapshot)
	c.metrics.RecordCacheOperation(err == nil, time.Since(start))
	if err != nil {
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			c.logger.Warn("progress cache read failed", zap.String("cohort_id", cohortID), zap.String("learner_id", learnerID), zap.Error(err))
		}
		return nil, false
	}
	return &snapshot, true
}

// Store writes the snapshot. Failures are logged and otherwise ignored.
func (c *ProgressCache) Store(ctx context.Context, progress models.Progress) {
	if c == nil || c.store == nil {
		return
	}
	start := time.Now()
	err := c.store.Set(ctx, progressKey(progress.CohortID, progress.LearnerID), progress, c.ttl)
	c.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		c.logger.Warn("progress cache write failed", zap.String("cohort_id", progress.CohortID), zap.String("learner_id", progress.LearnerID), zap.Error(err))
	}
}

// InvalidateCohort drops every snapshot of the cohort.
func (c *ProgressCache) InvalidateCohort(ctx context.Context, cohortID string) error {
	if c == nil || c.store == nil {
		return nil
	}
	removed, err := c.store.DeleteByPrefix(ctx, cohortPrefix(cohortID))
	c.metrics.RecordCacheInvalidation(removed)
	if err != nil {
		c.logger.Warn("progress cache invalidation failed", zap.String("cohort_id", cohortID), zap.Error(err))
		return err
	}
	c.logger.Debug("progress cache invalidated", zap.String("cohort_id", cohortID), zap.Int("keys", removed))
	return nil
}
