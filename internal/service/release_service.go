package service

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/curriculum-gate-api/internal/dto"
	"github.com/noah-isme/curriculum-gate-api/internal/models"
	"github.com/noah-isme/curriculum-gate-api/internal/repository"
	"github.com/noah-isme/curriculum-gate-api/pkg/clock"
)

type releaseStore interface {
	ListDueForRelease(ctx context.Context, kind models.ContentKind, now time.Time) ([]models.ReleaseCandidate, error)
	ListDueForUnrelease(ctx context.Context, kind models.ContentKind, now time.Time) ([]models.ReleaseCandidate, error)
	MarkReleased(ctx context.Context, kind models.ContentKind, id string, now time.Time) (repository.ReleaseResult, error)
	MarkUnreleased(ctx context.Context, kind models.ContentKind, id string, now time.Time) (bool, error)
}

type progressInvalidator interface {
	InvalidateCohort(ctx context.Context, cohortID string) error
}

const (
	directionRelease   = "release"
	directionUnrelease = "unrelease"
)

// ReleaseServiceOption customises the release sweep.
type ReleaseServiceOption func(*ReleaseService)

// WithReleaseNotifier wires the notifier informed on first releases.
func WithReleaseNotifier(notifier Notifier) ReleaseServiceOption {
	return func(s *ReleaseService) { s.notifier = notifier }
}

// WithReleaseMetrics wires prometheus collectors.
func WithReleaseMetrics(metrics *MetricsService) ReleaseServiceOption {
	return func(s *ReleaseService) { s.metrics = metrics }
}

// WithReleaseProgress wires the progress cache invalidated after unit changes.
func WithReleaseProgress(progress progressInvalidator) ReleaseServiceOption {
	return func(s *ReleaseService) { s.progress = progress }
}

// ReleaseService flips catalog release flags to match release dates. It holds no
// state between sweeps; every update is a compare-and-set so several instances can
// sweep at once.
type ReleaseService struct {
	store    releaseStore
	notifier Notifier
	metrics  *MetricsService
	progress progressInvalidator
	clock    clock.Clock
	logger   *zap.Logger
}

// NewReleaseService constructs the sweep.
func NewReleaseService(store releaseStore, clk clock.Clock, logger *zap.Logger, opts ...ReleaseServiceOption) *ReleaseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &ReleaseService{store: store, clock: clk, logger: logger}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Sweep runs one pass over every content kind. Entity failures are logged, counted
// and skipped; only context cancellation aborts the pass.
func (s *ReleaseService) Sweep(ctx context.Context) (*dto.SweepReport, error) {
	now := s.clock.Now()
	report := &dto.SweepReport{
		StartedAt: now,
		Kinds:     make(map[models.ContentKind]*dto.KindSweep, len(models.ContentKinds)),
	}
	touched := make(map[string]struct{})

	for _, kind := range models.ContentKinds {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		tally := &dto.KindSweep{}
		report.Kinds[kind] = tally
		s.release(ctx, kind, now, tally, touched)
		s.unrelease(ctx, kind, now, tally, touched)
	}

	s.invalidate(ctx, touched)
	report.FinishedAt = s.clock.Now()
	s.metrics.ObserveSweep(report.FinishedAt.Sub(report.StartedAt))

	s.logger.Info("release sweep finished",
		zap.Time("now", now),
		zap.Any("kinds", report.Kinds))
	return report, nil
}

func (s *ReleaseService) release(ctx context.Context, kind models.ContentKind, now time.Time, tally *dto.KindSweep, touched map[string]struct{}) {
	candidates, err := s.store.ListDueForRelease(ctx, kind, now)
	if err != nil {
		tally.Failed++
		s.metrics.RecordReleaseFailure(kind)
		s.logger.Error("failed to list release candidates", zap.String("kind", string(kind)), zap.Error(err))
		return
	}
	for _, candidate := range candidates {
		result, err := s.store.MarkReleased(ctx, kind, candidate.ID, now)
		if err != nil {
			tally.Failed++
			s.metrics.RecordReleaseFailure(kind)
			s.logger.Error("failed to release content",
				zap.String("kind", string(kind)),
				zap.String("id", candidate.ID),
				zap.Error(err))
			continue
		}
		if !result.Applied {
			continue
		}
		tally.Released++
		s.metrics.RecordRelease(kind, directionRelease)
		markTouched(touched, kind, candidate.CohortID)

		if result.FirstRelease {
			tally.Notified++
			payload := map[string]interface{}{
				"kind":        string(kind),
				"id":          candidate.ID,
				"title":       candidate.Title,
				"releaseDate": candidate.ReleaseDate,
			}
			notification := NewNotification(models.NotifyContentReleased, models.CohortRecipient(candidate.CohortID), now, payload)
			dispatch(ctx, s.notifier, s.metrics, s.logger, notification)
		}
	}
}

func (s *ReleaseService) unrelease(ctx context.Context, kind models.ContentKind, now time.Time, tally *dto.KindSweep, touched map[string]struct{}) {
	candidates, err := s.store.ListDueForUnrelease(ctx, kind, now)
	if err != nil {
		tally.Failed++
		s.metrics.RecordReleaseFailure(kind)
		s.logger.Error("failed to list unrelease candidates", zap.String("kind", string(kind)), zap.Error(err))
		return
	}
	for _, candidate := range candidates {
		applied, err := s.store.MarkUnreleased(ctx, kind, candidate.ID, now)
		if err != nil {
			tally.Failed++
			s.metrics.RecordReleaseFailure(kind)
			s.logger.Error("failed to unrelease content",
				zap.String("kind", string(kind)),
				zap.String("id", candidate.ID),
				zap.Error(err))
			continue
		}
		if !applied {
			continue
		}
		tally.Unreleased++
		s.metrics.RecordRelease(kind, directionUnrelease)
		markTouched(touched, kind, candidate.CohortID)
	}
}

// markTouched remembers cohorts whose progress denominator may have moved.
func markTouched(touched map[string]struct{}, kind models.ContentKind, cohortID string) {
	if kind == models.ContentKindMicroTask || cohortID == "" {
		return
	}
	touched[cohortID] = struct{}{}
}

func (s *ReleaseService) invalidate(ctx context.Context, touched map[string]struct{}) {
	if s.progress == nil || len(touched) == 0 {
		return
	}
	cohorts := make([]string, 0, len(touched))
	for id := range touched {
		cohorts = append(cohorts, id)
	}
	sort.Strings(cohorts)
	for _, cohortID := range cohorts {
		if err := s.progress.InvalidateCohort(ctx, cohortID); err != nil {
			s.logger.Warn("failed to invalidate progress cache", zap.String("cohort_id", cohortID), zap.Error(err))
		}
	}
}
