package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/curriculum-gate-api/internal/dto"
	"github.com/noah-isme/curriculum-gate-api/internal/models"
	"github.com/noah-isme/curriculum-gate-api/internal/repository"
	"github.com/noah-isme/curriculum-gate-api/pkg/clock"
	appErrors "github.com/noah-isme/curriculum-gate-api/pkg/errors"
)

type membershipStore interface {
	FindMembership(ctx context.Context, id string) (*models.Membership, error)
	CreateMembership(ctx context.Context, membership *models.Membership) error
	UpdateMembershipStatus(ctx context.Context, id string, from, to models.MembershipStatus, changedAt time.Time, changedBy string) error
	ListMemberships(ctx context.Context, cohortID string, status models.MembershipStatus) ([]models.Membership, error)
}

type userReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// MembershipService administers learner memberships. Rows are only ever transitioned,
// never deleted.
type MembershipService struct {
	store     membershipStore
	users     userReader
	audit     auditLogger
	clock     clock.Clock
	validator *validator.Validate
	logger    *zap.Logger
}

// NewMembershipService constructs MembershipService.
func NewMembershipService(store membershipStore, users userReader, audit auditLogger, clk clock.Clock, validate *validator.Validate, logger *zap.Logger) *MembershipService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MembershipService{store: store, users: users, audit: audit, clock: clk, validator: validate, logger: logger}
}

// Enroll creates an ENROLLED membership for the learner in the scoped cohort.
func (s *MembershipService) Enroll(ctx context.Context, scope *Scope, req dto.EnrollLearnerRequest) (*models.Membership, error) {
	if err := requireReviewer(scope); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	user, err := s.users.FindByID(ctx, req.LearnerID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "learner not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load learner")
	}
	if user.Role != models.RoleLearner {
		return nil, appErrors.Clone(appErrors.ErrValidation, "user is not a learner")
	}

	now := s.clock.Now()
	membership := &models.Membership{
		LearnerID:       req.LearnerID,
		CohortID:        scope.CohortID,
		Status:          models.MembershipStatusEnrolled,
		StatusChangedAt: now,
		StatusChangedBy: scope.Actor.UserID,
		CreatedAt:       now,
	}
	if err := s.store.CreateMembership(ctx, membership); err != nil {
		if errors.Is(err, repository.ErrDuplicateEnrollment) {
			return nil, appErrors.ErrAlreadyEnrolled
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create membership")
	}
	s.emitAudit(ctx, scope.Actor.UserID, models.AuditActionMembershipEnroll, membership.ID, nil, membership)
	return membership, nil
}

// List returns the scoped cohort's memberships in every status, newest first. An
// empty status lists all of them.
func (s *MembershipService) List(ctx context.Context, scope *Scope, status models.MembershipStatus) ([]models.Membership, error) {
	if err := requireReviewer(scope); err != nil {
		return nil, err
	}
	if status != "" && !status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown membership status")
	}
	memberships, err := s.store.ListMemberships(ctx, scope.CohortID, status)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list memberships")
	}
	return memberships, nil
}

// ChangeStatus moves a membership of the scoped cohort to another status with
// compare-and-set on the status it was read in.
func (s *MembershipService) ChangeStatus(ctx context.Context, scope *Scope, membershipID string, req dto.UpdateMembershipStatusRequest) (*models.Membership, error) {
	if err := requireReviewer(scope); err != nil {
		return nil, err
	}
	actor := scope.Actor
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	current, err := s.store.FindMembership(ctx, membershipID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "membership not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load membership")
	}
	if current.CohortID != scope.CohortID {
		return nil, appErrors.ErrCohortMismatch
	}
	if current.Status == req.Status {
		return current, nil
	}

	now := s.clock.Now()
	if err := s.store.UpdateMembershipStatus(ctx, membershipID, current.Status, req.Status, now, actor.UserID); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateEnrollment):
			return nil, appErrors.ErrAlreadyEnrolled
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrConflict, "membership changed concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update membership")
	}

	updated := *current
	updated.Status = req.Status
	updated.StatusChangedAt = now
	updated.StatusChangedBy = actor.UserID
	s.emitAudit(ctx, actor.UserID, models.AuditActionMembershipStatusChange, membershipID, current, &updated)
	s.logger.Info("membership status changed",
		zap.String("membership_id", membershipID),
		zap.String("from", string(current.Status)),
		zap.String("to", string(req.Status)))
	return &updated, nil
}

func (s *MembershipService) emitAudit(ctx context.Context, actor, action, resourceID string, before, after *models.Membership) {
	if s.audit == nil {
		return
	}
	entry := &models.AuditLog{
		UserID:     &actor,
		Action:     action,
		Resource:   "membership",
		ResourceID: &resourceID,
		IPAddress:  "system",
		UserAgent:  "membership-service",
		CreatedAt:  s.clock.Now(),
	}
	if before != nil {
		entry.OldValues, _ = json.Marshal(before)
	}
	if after != nil {
		entry.NewValues, _ = json.Marshal(after)
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}
