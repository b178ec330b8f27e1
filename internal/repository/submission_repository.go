package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/curriculum-gate-api/internal/models"
	"github.com/noah-isme/curriculum-gate-api/pkg/database"
)

// ErrDuplicateActiveSubmission is returned when the learner already holds a
// non-superseded submission for the same target in the same cohort.
var ErrDuplicateActiveSubmission = errors.New("active submission already exists")

const activeSubmissionIndex = "uniq_active_submission"

const submissionColumns = `id, learner_id, cohort_id, target_type, target_id, body, attachment_ref, status, grade, feedback,
       submitted_at, reviewed_at, reviewed_by, resubmission_requested_at, resubmission_requested_by,
       supersedes_id, superseded_by, superseded_at`

const insertSubmission = `INSERT INTO submissions (id, learner_id, cohort_id, target_type, target_id, body, attachment_ref, status,
       grade, feedback, submitted_at, reviewed_at, reviewed_by, resubmission_requested_at, resubmission_requested_by,
       supersedes_id, superseded_by, superseded_at)
VALUES (:id, :learner_id, :cohort_id, :target_type, :target_id, :body, :attachment_ref, :status,
       :grade, :feedback, :submitted_at, :reviewed_at, :reviewed_by, :resubmission_requested_at, :resubmission_requested_by,
       :supersedes_id, :superseded_by, :superseded_at)`

// SubmissionRepository persists submissions and their review transitions.
type SubmissionRepository struct {
	db *sqlx.DB
}

// NewSubmissionRepository constructs the repository.
func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

func prepareSubmission(submission *models.Submission) {
	if submission.ID == "" {
		submission.ID = uuid.NewString()
	}
	if submission.Status == "" {
		submission.Status = models.SubmissionStatusPending
	}
	if submission.SubmittedAt.IsZero() {
		submission.SubmittedAt = time.Now().UTC()
	}
}

// Create inserts a new active submission.
func (r *SubmissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	prepareSubmission(submission)
	if _, err := r.db.NamedExecContext(ctx, insertSubmission, submission); err != nil {
		if database.IsUniqueViolation(err, activeSubmissionIndex) {
			return ErrDuplicateActiveSubmission
		}
		return fmt.Errorf("create submission: %w", err)
	}
	return nil
}

// FindByID fetches a submission by identifier.
func (r *SubmissionRepository) FindByID(ctx context.Context, id string) (*models.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE id = $1`
	var submission models.Submission
	if err := r.db.GetContext(ctx, &submission, query, id); err != nil {
		return nil, err
	}
	return &submission, nil
}

// ListActiveByLearner returns every active submission a learner holds in a cohort.
func (r *SubmissionRepository) ListActiveByLearner(ctx context.Context, learnerID, cohortID string) ([]models.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions
WHERE learner_id = $1 AND cohort_id = $2 AND superseded_by IS NULL ORDER BY submitted_at`
	var submissions []models.Submission
	if err := r.db.SelectContext(ctx, &submissions, query, learnerID, cohortID); err != nil {
		return nil, fmt.Errorf("list learner submissions: %w", err)
	}
	return submissions, nil
}

// ListActiveByCohort returns active submissions of one target type across a cohort.
func (r *SubmissionRepository) ListActiveByCohort(ctx context.Context, cohortID string, targetType models.SubmissionTarget) ([]models.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions
WHERE cohort_id = $1 AND target_type = $2 AND superseded_by IS NULL ORDER BY learner_id, submitted_at`
	var submissions []models.Submission
	if err := r.db.SelectContext(ctx, &submissions, query, cohortID, targetType); err != nil {
		return nil, fmt.Errorf("list cohort submissions: %w", err)
	}
	return submissions, nil
}

// ListHistory returns the full chain for a learner and target, oldest first.
func (r *SubmissionRepository) ListHistory(ctx context.Context, learnerID string, targetType models.SubmissionTarget, targetID, cohortID string) ([]models.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions
WHERE learner_id = $1 AND target_type = $2 AND target_id = $3 AND cohort_id = $4 ORDER BY submitted_at, id`
	var submissions []models.Submission
	if err := r.db.SelectContext(ctx, &submissions, query, learnerID, targetType, targetID, cohortID); err != nil {
		return nil, fmt.Errorf("list submission history: %w", err)
	}
	return submissions, nil
}

// List returns active submissions matching the filter, oldest first.
func (r *SubmissionRepository) List(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 6)
	builder.WriteString(`SELECT ` + submissionColumns + ` FROM submissions WHERE superseded_by IS NULL`)

	if filter.CohortID != "" {
		args = append(args, filter.CohortID)
		builder.WriteString(fmt.Sprintf(" AND cohort_id = $%d", len(args)))
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		builder.WriteString(fmt.Sprintf(" AND status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.TargetType != "" {
		args = append(args, filter.TargetType)
		builder.WriteString(fmt.Sprintf(" AND target_type = $%d", len(args)))
	}
	if filter.LearnerID != "" {
		args = append(args, filter.LearnerID)
		builder.WriteString(fmt.Sprintf(" AND learner_id = $%d", len(args)))
	}
	builder.WriteString(" ORDER BY submitted_at")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var submissions []models.Submission
	if err := r.db.SelectContext(ctx, &submissions, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return submissions, nil
}

// ReviewParams groups the columns written by a review.
type ReviewParams struct {
	ID         string
	Status     models.SubmissionStatus
	Grade      models.GradeTier
	Feedback   *string
	ReviewedBy string
	ReviewedAt time.Time
}

// UpdateReview records a review outcome. Only an active PENDING submission is
// updated; sql.ErrNoRows signals that another reviewer got there first.
func (r *SubmissionRepository) UpdateReview(ctx context.Context, params ReviewParams) error {
	const query = `UPDATE submissions SET status = $2, grade = $3, feedback = $4, reviewed_by = $5, reviewed_at = $6
WHERE id = $1 AND status = 'PENDING' AND superseded_by IS NULL`
	result, err := r.db.ExecContext(ctx, query, params.ID, params.Status, params.Grade, params.Feedback, params.ReviewedBy, params.ReviewedAt)
	if err != nil {
		return fmt.Errorf("update submission review: %w", err)
	}
	return expectOneRow(result, "submission review")
}

// MarkAwaitingResubmission grants a resubmission on an active REJECTED submission.
func (r *SubmissionRepository) MarkAwaitingResubmission(ctx context.Context, id, requestedBy string, requestedAt time.Time) error {
	const query = `UPDATE submissions SET status = 'AWAITING_RESUBMISSION', resubmission_requested_by = $2, resubmission_requested_at = $3
WHERE id = $1 AND status = 'REJECTED' AND superseded_by IS NULL`
	result, err := r.db.ExecContext(ctx, query, id, requestedBy, requestedAt)
	if err != nil {
		return fmt.Errorf("request resubmission: %w", err)
	}
	return expectOneRow(result, "resubmission request")
}

// Resubmit supersedes prevID with next in one transaction. The prior record returns
// to REJECTED and keeps its review fields; next is inserted as the new active head.
// sql.ErrNoRows is returned when prevID is no longer awaiting resubmission.
func (r *SubmissionRepository) Resubmit(ctx context.Context, prevID string, next *models.Submission) (err error) {
	prepareSubmission(next)
	next.SupersedesID = &prevID

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin resubmit transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const supersede = `UPDATE submissions SET status = 'REJECTED', superseded_by = $2, superseded_at = $3
WHERE id = $1 AND status = 'AWAITING_RESUBMISSION' AND superseded_by IS NULL`
	result, err := tx.ExecContext(ctx, supersede, prevID, next.ID, next.SubmittedAt)
	if err != nil {
		return fmt.Errorf("supersede submission: %w", err)
	}
	if err = expectOneRow(result, "supersede submission"); err != nil {
		return err
	}

	if _, err = tx.NamedExecContext(ctx, insertSubmission, next); err != nil {
		if database.IsUniqueViolation(err, activeSubmissionIndex) {
			err = ErrDuplicateActiveSubmission
			return err
		}
		return fmt.Errorf("insert resubmission: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit resubmission: %w", err)
	}
	return nil
}

func expectOneRow(result sql.Result, label string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check %s rows: %w", label, err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
