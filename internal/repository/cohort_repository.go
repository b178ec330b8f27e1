package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/curriculum-gate-api/internal/models"
	"github.com/noah-isme/curriculum-gate-api/pkg/database"
)

// ErrDuplicateEnrollment is returned when a learner already holds an ENROLLED membership.
var ErrDuplicateEnrollment = errors.New("learner already enrolled in a cohort")

const enrolledMembershipIndex = "uniq_enrolled_membership"

// CohortRepository handles cohorts and learner memberships.
type CohortRepository struct {
	db *sqlx.DB
}

// NewCohortRepository constructs the repository.
func NewCohortRepository(db *sqlx.DB) *CohortRepository {
	return &CohortRepository{db: db}
}

// FindByID returns a cohort by its ID.
func (r *CohortRepository) FindByID(ctx context.Context, id string) (*models.Cohort, error) {
	const query = `SELECT id, name, number, is_active, starts_at, ends_at, created_at FROM cohorts WHERE id = $1`
	var cohort models.Cohort
	if err := r.db.GetContext(ctx, &cohort, query, id); err != nil {
		return nil, err
	}
	return &cohort, nil
}

// FindActiveMembership returns the learner's single ENROLLED membership.
func (r *CohortRepository) FindActiveMembership(ctx context.Context, learnerID string) (*models.ActiveMembership, error) {
	const query = `SELECT m.id, m.learner_id, m.cohort_id, m.status, m.status_changed_at, m.status_changed_by, m.created_at,
        c.name AS cohort_name, c.is_active AS cohort_active
        FROM memberships m
        JOIN cohorts c ON c.id = m.cohort_id
        WHERE m.learner_id = $1 AND m.status = $2`
	var membership models.ActiveMembership
	if err := r.db.GetContext(ctx, &membership, query, learnerID, models.MembershipStatusEnrolled); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find active membership: %w", err)
	}
	return &membership, nil
}

// FindMembership returns a membership by its ID.
func (r *CohortRepository) FindMembership(ctx context.Context, id string) (*models.Membership, error) {
	const query = `SELECT id, learner_id, cohort_id, status, status_changed_at, status_changed_by, created_at FROM memberships WHERE id = $1`
	var membership models.Membership
	if err := r.db.GetContext(ctx, &membership, query, id); err != nil {
		return nil, err
	}
	return &membership, nil
}

// ListMemberships returns the cohort's memberships, newest first. Rows are never
// deleted, so this is the cohort's enrolment history. An empty status returns all.
func (r *CohortRepository) ListMemberships(ctx context.Context, cohortID string, status models.MembershipStatus) ([]models.Membership, error) {
	query := `SELECT id, learner_id, cohort_id, status, status_changed_at, status_changed_by, created_at
        FROM memberships WHERE cohort_id = $1`
	args := []interface{}{cohortID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id`

	memberships := make([]models.Membership, 0)
	if err := r.db.SelectContext(ctx, &memberships, query, args...); err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	return memberships, nil
}

// ListEnrolledLearnerIDs returns learners currently enrolled in the cohort.
func (r *CohortRepository) ListEnrolledLearnerIDs(ctx context.Context, cohortID string) ([]string, error) {
	const query = `SELECT learner_id FROM memberships WHERE cohort_id = $1 AND status = $2 ORDER BY learner_id`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, cohortID, models.MembershipStatusEnrolled); err != nil {
		return nil, fmt.Errorf("list enrolled learners: %w", err)
	}
	return ids, nil
}

// CreateMembership inserts a membership. The partial unique index on ENROLLED rows
// rejects a second active cohort for the same learner.
func (r *CohortRepository) CreateMembership(ctx context.Context, membership *models.Membership) error {
	if membership.ID == "" {
		membership.ID = uuid.NewString()
	}
	if membership.CreatedAt.IsZero() {
		membership.CreatedAt = time.Now().UTC()
	}
	if membership.StatusChangedAt.IsZero() {
		membership.StatusChangedAt = membership.CreatedAt
	}
	const query = `INSERT INTO memberships (id, learner_id, cohort_id, status, status_changed_at, status_changed_by, created_at)
        VALUES (:id, :learner_id, :cohort_id, :status, :status_changed_at, :status_changed_by, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, membership); err != nil {
		if database.IsUniqueViolation(err, enrolledMembershipIndex) {
			return ErrDuplicateEnrollment
		}
		return fmt.Errorf("create membership: %w", err)
	}
	return nil
}

// UpdateMembershipStatus moves a membership from one status to another, recording
// the actor. It returns sql.ErrNoRows when the membership is no longer in from.
func (r *CohortRepository) UpdateMembershipStatus(ctx context.Context, id string, from, to models.MembershipStatus, changedAt time.Time, changedBy string) error {
	const query = `UPDATE memberships SET status = $3, status_changed_at = $4, status_changed_by = $5 WHERE id = $1 AND status = $2`
	result, err := r.db.ExecContext(ctx, query, id, from, to, changedAt, changedBy)
	if err != nil {
		if database.IsUniqueViolation(err, enrolledMembershipIndex) {
			return ErrDuplicateEnrollment
		}
		return fmt.Errorf("update membership status: %w", err)
	}
	return expectOneRow(result, "membership update")
}
