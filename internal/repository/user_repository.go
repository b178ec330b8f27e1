package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/curriculum-gate-api/internal/models"
)

// UserRepository reads the user directory used to address notifications.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByID returns a user by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	const query = `SELECT id, email, full_name, role, active, created_at FROM users WHERE id = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &user, nil
}

// FindByIDs returns active users for the given identifiers; unknown ids are skipped.
func (r *UserRepository) FindByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT id, email, full_name, role, active, created_at FROM users WHERE active = TRUE AND id IN (%s) ORDER BY id`, strings.Join(placeholders, ","))
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, fmt.Errorf("find users by ids: %w", err)
	}
	return users, nil
}

// ListEnrolledInCohort returns active users holding an ENROLLED membership in the cohort.
func (r *UserRepository) ListEnrolledInCohort(ctx context.Context, cohortID string) ([]models.User, error) {
	const query = `SELECT u.id, u.email, u.full_name, u.role, u.active, u.created_at
FROM users u
JOIN memberships m ON m.learner_id = u.id
WHERE m.cohort_id = $1 AND m.status = $2 AND u.active = TRUE
ORDER BY u.id`
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query, cohortID, models.MembershipStatusEnrolled); err != nil {
		return nil, fmt.Errorf("list enrolled users: %w", err)
	}
	return users, nil
}
