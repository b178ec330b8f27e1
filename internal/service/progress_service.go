package service

import (
	"context"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/curriculum-gate-api/internal/models"
	"github.com/noah-isme/curriculum-gate-api/pkg/clock"
	appErrors "github.com/noah-isme/curriculum-gate-api/pkg/errors"
)

type progressCatalog interface {
	ListModules(ctx context.Context, cohortID string) ([]models.Module, error)
	ListUnits(ctx context.Context, cohortID string) ([]models.Unit, error)
}

type progressSubmissions interface {
	ListActiveByLearner(ctx context.Context, learnerID, cohortID string) ([]models.Submission, error)
	ListActiveByCohort(ctx context.Context, cohortID string, targetType models.SubmissionTarget) ([]models.Submission, error)
}

type enrolledLister interface {
	ListEnrolledLearnerIDs(ctx context.Context, cohortID string) ([]string, error)
}

// ComputeProgress derives a learner position from the cohort catalog and the set of
// unit ids the learner has an approved active submission for. Only units whose unit
// and module flags are released (and module active) count.
func ComputeProgress(learnerID, cohortID string, modules []models.Module, units []models.Unit, approved map[string]bool, at time.Time) models.Progress {
	progress := models.Progress{LearnerID: learnerID, CohortID: cohortID, ComputedAt: at}

	moduleByID := make(map[string]models.Module, len(modules))
	for _, module := range modules {
		moduleByID[module.ID] = module
	}

	released := make([]models.Unit, 0, len(units))
	for _, unit := range units {
		if unit.Available() {
			released = append(released, unit)
		}
	}
	sort.SliceStable(released, func(i, j int) bool {
		if released[i].ModuleOrdinal != released[j].ModuleOrdinal {
			return released[i].ModuleOrdinal < released[j].ModuleOrdinal
		}
		return released[i].Ordinal < released[j].Ordinal
	})

	progress.ReleasedUnits = len(released)
	for _, unit := range released {
		if approved[unit.ID] {
			progress.ApprovedUnits++
			continue
		}
		if progress.CurrentUnit == nil {
			progress.CurrentUnit = &models.ProgressPointer{ID: unit.ID, Ordinal: unit.Ordinal, Title: unit.Title}
			module := moduleByID[unit.ModuleID]
			progress.CurrentModule = &models.ProgressPointer{ID: unit.ModuleID, Ordinal: unit.ModuleOrdinal, Title: module.Title}
		}
	}
	if progress.ReleasedUnits > 0 {
		pct := float64(progress.ApprovedUnits) / float64(progress.ReleasedUnits) * 100
		progress.CompletionPercentage = math.Round(pct*100) / 100
	}
	return progress
}

func approvedUnits(submissions []models.Submission) map[string]bool {
	approved := make(map[string]bool)
	for _, sub := range submissions {
		if sub.Active() && sub.TargetType == models.TargetUnit && sub.Status == models.SubmissionStatusApproved {
			approved[sub.TargetID] = true
		}
	}
	return approved
}

// ProgressService projects learner progress and keeps an optional snapshot cache.
type ProgressService struct {
	catalog     progressCatalog
	submissions progressSubmissions
	learners    enrolledLister
	cache       *ProgressCache
	clock       clock.Clock
	logger      *zap.Logger
}

// NewProgressService constructs the projector. cache may be nil.
func NewProgressService(catalog progressCatalog, submissions progressSubmissions, learners enrolledLister, cache *ProgressCache, clk clock.Clock, logger *zap.Logger) *ProgressService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressService{
		catalog:     catalog,
		submissions: submissions,
		learners:    learners,
		cache:       cache,
		clock:       clk,
		logger:      logger,
	}
}

// Get returns the scoped learner's progress. Learners always read their own; privileged
// scopes name the learner explicitly.
func (s *ProgressService) Get(ctx context.Context, scope *Scope, learnerID string) (*models.Progress, error) {
	if scope == nil {
		return nil, appErrors.ErrCohortMismatch
	}
	if !scope.Privileged() {
		learnerID = scope.Actor.UserID
	}
	if learnerID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "learnerId is required")
	}
	if scope.Privileged() {
		if err := s.requireEnrolled(ctx, scope.CohortID, learnerID); err != nil {
			return nil, err
		}
	}

	if cached, hit := s.cache.Load(ctx, scope.CohortID, learnerID); hit {
		return cached, nil
	}
	return s.Refresh(ctx, learnerID, scope.CohortID)
}

func (s *ProgressService) requireEnrolled(ctx context.Context, cohortID, learnerID string) error {
	ids, err := s.learners.ListEnrolledLearnerIDs(ctx, cohortID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}
	for _, id := range ids {
		if id == learnerID {
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrNotFound, "learner not enrolled in cohort")
}

// Refresh recomputes the learner's progress and stores the snapshot.
func (s *ProgressService) Refresh(ctx context.Context, learnerID, cohortID string) (*models.Progress, error) {
	modules, err := s.catalog.ListModules(ctx, cohortID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load modules")
	}
	units, err := s.catalog.ListUnits(ctx, cohortID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load units")
	}
	submissions, err := s.submissions.ListActiveByLearner(ctx, learnerID, cohortID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submissions")
	}

	progress := ComputeProgress(learnerID, cohortID, modules, units, approvedUnits(submissions), s.clock.Now())
	s.cache.Store(ctx, progress)
	return &progress, nil
}

// InvalidateCohort drops every cached snapshot of the cohort.
func (s *ProgressService) InvalidateCohort(ctx context.Context, cohortID string) error {
	return s.cache.InvalidateCohort(ctx, cohortID)
}

// CohortProgress computes progress for every enrolled learner of the scoped cohort.
func (s *ProgressService) CohortProgress(ctx context.Context, scope *Scope) ([]models.Progress, error) {
	if err := requireReviewer(scope); err != nil {
		return nil, err
	}
	learners, err := s.learners.ListEnrolledLearnerIDs(ctx, scope.CohortID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list learners")
	}
	modules, err := s.catalog.ListModules(ctx, scope.CohortID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load modules")
	}
	units, err := s.catalog.ListUnits(ctx, scope.CohortID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load units")
	}
	submissions, err := s.submissions.ListActiveByCohort(ctx, scope.CohortID, models.TargetUnit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submissions")
	}

	byLearner := make(map[string][]models.Submission)
	for _, sub := range submissions {
		byLearner[sub.LearnerID] = append(byLearner[sub.LearnerID], sub)
	}
	now := s.clock.Now()
	result := make([]models.Progress, 0, len(learners))
	for _, learnerID := range learners {
		result = append(result, ComputeProgress(learnerID, scope.CohortID, modules, units, approvedUnits(byLearner[learnerID]), now))
	}
	return result, nil
}
