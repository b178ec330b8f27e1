package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/curriculum-gate-api/internal/models"
	appErrors "github.com/noah-isme/curriculum-gate-api/pkg/errors"
)

type enrolledListerStub struct {
	ids map[string][]string
}

func (e enrolledListerStub) ListEnrolledLearnerIDs(ctx context.Context, cohortID string) ([]string, error) {
	return e.ids[cohortID], nil
}

type cacheRepoStub struct {
	entries     map[string]interface{}
	invalidated []string
	getErr      error
}

func newCacheRepoStub() *cacheRepoStub {
	return &cacheRepoStub{entries: make(map[string]interface{})}
}

func (c *cacheRepoStub) Get(ctx context.Context, key string, dest interface{}) error {
	if c.getErr != nil {
		return c.getErr
	}
	value, ok := c.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	if target, ok := dest.(*models.Progress); ok {
		*target = value.(models.Progress)
	}
	return nil
}

func (c *cacheRepoStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.entries[key] = value
	return nil
}

func (c *cacheRepoStub) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	c.invalidated = append(c.invalidated, prefix)
	removed := 0
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed, nil
}

func progressUnits() []models.Unit {
	open := func(id string, moduleOrdinal, ordinal int) models.Unit {
		return models.Unit{ID: id, ModuleID: fmt.Sprintf("m%d", moduleOrdinal), Title: "Unit " + id, Ordinal: ordinal, ModuleOrdinal: moduleOrdinal, IsReleased: true, ModuleReleased: true, ModuleActive: true}
	}
	closed := open("u-closed", 1, 9)
	closed.IsReleased = false
	return []models.Unit{open("u2-1", 2, 1), open("u1-2", 1, 2), open("u1-1", 1, 1), closed}
}

func TestComputeProgress(t *testing.T) {
	modules := []models.Module{{ID: "m1", Ordinal: 1, Title: "One"}, {ID: "m2", Ordinal: 2, Title: "Two"}}

	p := ComputeProgress("l1", "c1", modules, progressUnits(), map[string]bool{"u1-1": true}, fixtureNow)
	assert.Equal(t, 3, p.ReleasedUnits)
	assert.Equal(t, 1, p.ApprovedUnits)
	assert.Equal(t, 33.33, p.CompletionPercentage)
	require.NotNil(t, p.CurrentUnit)
	assert.Equal(t, "u1-2", p.CurrentUnit.ID)
	require.NotNil(t, p.CurrentModule)
	assert.Equal(t, "One", p.CurrentModule.Title)

	p = ComputeProgress("l1", "c1", modules, progressUnits(), map[string]bool{"u1-1": true, "u1-2": true, "u2-1": true}, fixtureNow)
	assert.Equal(t, float64(100), p.CompletionPercentage)
	assert.Nil(t, p.CurrentUnit)

	p = ComputeProgress("l1", "c1", modules, nil, nil, fixtureNow)
	assert.Equal(t, 0, p.ReleasedUnits)
	assert.Equal(t, float64(0), p.CompletionPercentage)
	assert.Nil(t, p.CurrentModule)
}

func TestComputeProgressSkipsApprovedGaps(t *testing.T) {
	approved := map[string]bool{"u1-2": true}
	p := ComputeProgress("l1", "c1", nil, progressUnits(), approved, fixtureNow)
	require.NotNil(t, p.CurrentUnit)
	assert.Equal(t, "u1-1", p.CurrentUnit.ID, "lowest unapproved unit wins even when a later one is approved")
}

func TestProgressServiceRefreshAndCache(t *testing.T) {
	catalog := newCatalogFixture()
	store := newSubmissionStoreStub()
	store.put(models.Submission{ID: "s1", LearnerID: "learner-1", CohortID: "cohort-a", TargetType: models.TargetUnit, TargetID: "unit-1", Status: models.SubmissionStatusApproved})
	repo := newCacheRepoStub()
	cache := NewProgressCache(repo, NewMetricsService(), time.Minute, nil)
	svc := NewProgressService(catalog, store, enrolledListerStub{}, cache, newTestClock(), nil)
	ctx := context.Background()

	progress, err := svc.Get(ctx, learnerScope("learner-1", "cohort-a"), "ignored")
	require.NoError(t, err)
	assert.Equal(t, "learner-1", progress.LearnerID)
	assert.Equal(t, 1, progress.ReleasedUnits, "only units whose module is released and active count")
	assert.Equal(t, float64(100), progress.CompletionPercentage)
	assert.Contains(t, repo.entries, "progress:v1:cohort-a:learner-1")

	repo.entries["progress:v1:cohort-a:learner-1"] = models.Progress{LearnerID: "learner-1", CohortID: "cohort-a", ApprovedUnits: 42}
	cached, err := svc.Get(ctx, learnerScope("learner-1", "cohort-a"), "")
	require.NoError(t, err)
	assert.Equal(t, 42, cached.ApprovedUnits)

	require.NoError(t, svc.InvalidateCohort(ctx, "cohort-a"))
	assert.Equal(t, []string{"progress:v1:cohort-a:"}, repo.invalidated)
	assert.NotContains(t, repo.entries, "progress:v1:cohort-a:learner-1")
}

func TestProgressCacheFailuresFallBackToCompute(t *testing.T) {
	repo := newCacheRepoStub()
	repo.getErr = errors.New("redis down")
	cache := NewProgressCache(repo, nil, 0, nil)
	svc := NewProgressService(newCatalogFixture(), newSubmissionStoreStub(), enrolledListerStub{}, cache, newTestClock(), nil)

	progress, err := svc.Get(context.Background(), learnerScope("learner-1", "cohort-a"), "")
	require.NoError(t, err)
	assert.Equal(t, "learner-1", progress.LearnerID)

	var disabled *ProgressCache
	_, hit := disabled.Load(context.Background(), "cohort-a", "learner-1")
	assert.False(t, hit)
	assert.NoError(t, disabled.InvalidateCohort(context.Background(), "cohort-a"))
}

func TestProgressServicePrivilegedNeedsLearner(t *testing.T) {
	lister := enrolledListerStub{ids: map[string][]string{"cohort-a": {"learner-9"}}}
	svc := NewProgressService(newCatalogFixture(), newSubmissionStoreStub(), lister, nil, newTestClock(), nil)

	_, err := svc.Get(context.Background(), reviewerScope("cohort-a"), "")
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	progress, err := svc.Get(context.Background(), reviewerScope("cohort-a"), "learner-9")
	require.NoError(t, err)
	assert.Equal(t, "learner-9", progress.LearnerID)
	assert.Equal(t, float64(0), progress.CompletionPercentage)
}

func TestProgressServicePrivilegedRejectsLearnersOutsideCohort(t *testing.T) {
	store := newSubmissionStoreStub()
	store.put(models.Submission{ID: "s1", LearnerID: "learner-x", CohortID: "cohort-b", TargetType: models.TargetUnit, TargetID: "unit-b", Status: models.SubmissionStatusApproved})
	lister := enrolledListerStub{ids: map[string][]string{"cohort-a": {"learner-1"}, "cohort-b": {"learner-x"}}}
	repo := newCacheRepoStub()
	cache := NewProgressCache(repo, nil, time.Minute, nil)
	svc := NewProgressService(newCatalogFixture(), store, lister, cache, newTestClock(), nil)
	ctx := context.Background()

	_, err := svc.Get(ctx, reviewerScope("cohort-a"), "learner-x")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	_, err = svc.Get(ctx, reviewerScope("cohort-a"), "ghost")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	assert.Empty(t, repo.entries, "no snapshot is written for learners outside the cohort")

	repo.entries["progress:v1:cohort-a:learner-x"] = models.Progress{LearnerID: "learner-x", CohortID: "cohort-a", ApprovedUnits: 3}
	_, err = svc.Get(ctx, reviewerScope("cohort-a"), "learner-x")
	assert.ErrorIs(t, err, appErrors.ErrNotFound, "a stale snapshot does not bypass the roster check")

	progress, err := svc.Get(ctx, reviewerScope("cohort-a"), "learner-1")
	require.NoError(t, err)
	assert.Equal(t, "learner-1", progress.LearnerID)
	assert.Contains(t, repo.entries, "progress:v1:cohort-a:learner-1")
}

func TestProgressServiceCohortProgress(t *testing.T) {
	store := newSubmissionStoreStub()
	store.put(models.Submission{ID: "s1", LearnerID: "learner-1", CohortID: "cohort-a", TargetType: models.TargetUnit, TargetID: "unit-1", Status: models.SubmissionStatusApproved})
	store.put(models.Submission{ID: "s2", LearnerID: "learner-2", CohortID: "cohort-a", TargetType: models.TargetUnit, TargetID: "unit-1", Status: models.SubmissionStatusPending})
	lister := enrolledListerStub{ids: map[string][]string{"cohort-a": {"learner-1", "learner-2"}}}
	svc := NewProgressService(newCatalogFixture(), store, lister, nil, newTestClock(), nil)

	rows, err := svc.CohortProgress(context.Background(), reviewerScope("cohort-a"))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 1, rows[0].ApprovedUnits)
	assert.Equal(t, 0, rows[1].ApprovedUnits)
	require.NotNil(t, rows[1].CurrentUnit)
	assert.Equal(t, "unit-1", rows[1].CurrentUnit.ID)

	_, err = svc.CohortProgress(context.Background(), learnerScope("learner-1", "cohort-a"))
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}
