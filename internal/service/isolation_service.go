package service

import (
	"context"
	"database/sql"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/curriculum-gate-api/internal/models"
	appErrors "github.com/noah-isme/curriculum-gate-api/pkg/errors"
)

type membershipReader interface {
	FindActiveMembership(ctx context.Context, learnerID string) (*models.ActiveMembership, error)
}

type cohortReader interface {
	FindByID(ctx context.Context, id string) (*models.Cohort, error)
}

// Scope is the cohort a request is allowed to read and write.
type Scope struct {
	Actor    models.Identity
	CohortID string
}

// Privileged reports whether the actor acts on behalf of the cohort rather than as a learner.
func (s Scope) Privileged() bool {
	return s.Actor.Role.Privileged()
}

// IsolationService resolves the single cohort a caller may touch.
type IsolationService struct {
	memberships membershipReader
	cohorts     cohortReader
	logger      *zap.Logger
}

// NewIsolationService constructs the guard.
func NewIsolationService(memberships membershipReader, cohorts cohortReader, logger *zap.Logger) *IsolationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IsolationService{memberships: memberships, cohorts: cohorts, logger: logger}
}

// LearnerScope returns the cohort of the learner's ENROLLED membership. Missing
// memberships and inactive cohorts fail closed with ErrCohortMismatch.
func (s *IsolationService) LearnerScope(ctx context.Context, actor models.Identity) (*Scope, error) {
	membership, err := s.memberships.FindActiveMembership(ctx, actor.UserID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrCohortMismatch, "no active cohort membership")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve cohort membership")
	}
	if !membership.CohortActive {
		s.logger.Debug("learner cohort inactive", zap.String("learner_id", actor.UserID), zap.String("cohort_id", membership.CohortID))
		return nil, appErrors.Clone(appErrors.ErrCohortMismatch, "cohort is not active")
	}
	return &Scope{Actor: actor, CohortID: membership.CohortID}, nil
}

// PrivilegedScope validates an explicit cohort for an admin or instructor.
func (s *IsolationService) PrivilegedScope(ctx context.Context, actor models.Identity, cohortID string) (*Scope, error) {
	if !actor.Role.Privileged() {
		return nil, appErrors.ErrForbidden
	}
	cohortID = strings.TrimSpace(cohortID)
	if cohortID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cohortId is required")
	}
	if _, err := s.cohorts.FindByID(ctx, cohortID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "cohort not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load cohort")
	}
	return &Scope{Actor: actor, CohortID: cohortID}, nil
}

// checkSubmissionScope ensures a submission is visible in scope. Learners only see their own.
func checkSubmissionScope(scope *Scope, submission *models.Submission) error {
	if scope == nil || submission == nil {
		return appErrors.ErrForbidden
	}
	if submission.CohortID != scope.CohortID {
		return appErrors.ErrCohortMismatch
	}
	if !scope.Privileged() && submission.LearnerID != scope.Actor.UserID {
		return appErrors.Clone(appErrors.ErrNotFound, "submission not found")
	}
	return nil
}

// checkCohortScope ensures a catalog entity belongs to the scoped cohort.
func checkCohortScope(scope *Scope, cohortID string) error {
	if scope == nil || cohortID != scope.CohortID {
		return appErrors.ErrCohortMismatch
	}
	return nil
}
