package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/curriculum-gate-api/internal/models"
)

const (
	unitSelect = `SELECT u.id, u.module_id, m.cohort_id, u.ordinal, u.title, u.release_date, u.is_released, u.deadline,
        u.points, u.bonus_points, u.content, u.actual_release_date,
        m.ordinal AS module_ordinal, m.is_released AS module_released, m.is_active AS module_active
        FROM units u
        JOIN modules m ON m.id = u.module_id`

	microTaskSelect = `SELECT t.id, t.unit_id, t.section_id, m.cohort_id, t.title, t.release_date, t.is_released, t.actual_release_date
        FROM micro_tasks t
        JOIN units u ON u.id = t.unit_id
        JOIN modules m ON m.id = u.module_id`
)

// releaseTable describes how each releasable kind is stored and joined to its cohort.
type releaseTable struct {
	table string
	from  string
}

var releaseTables = map[models.ContentKind]releaseTable{
	models.ContentKindModule: {
		table: "modules",
		from:  `FROM modules t`,
	},
	models.ContentKindUnit: {
		table: "units",
		from:  `FROM units t JOIN modules m ON m.id = t.module_id`,
	},
	models.ContentKindMicroTask: {
		table: "micro_tasks",
		from:  `FROM micro_tasks t JOIN units u ON u.id = t.unit_id JOIN modules m ON m.id = u.module_id`,
	},
}

func cohortColumn(kind models.ContentKind) string {
	if kind == models.ContentKindModule {
		return "t.cohort_id"
	}
	return "m.cohort_id"
}

// ContentRepository reads the content catalog and flips release flags.
type ContentRepository struct {
	db *sqlx.DB
}

// NewContentRepository constructs the repository.
func NewContentRepository(db *sqlx.DB) *ContentRepository {
	return &ContentRepository{db: db}
}

// ListModules returns every module of a cohort ordered by ordinal.
func (r *ContentRepository) ListModules(ctx context.Context, cohortID string) ([]models.Module, error) {
	const query = `SELECT id, cohort_id, ordinal, title, release_date, is_released, is_active, actual_release_date
        FROM modules WHERE cohort_id = $1 ORDER BY ordinal`
	var modules []models.Module
	if err := r.db.SelectContext(ctx, &modules, query, cohortID); err != nil {
		return nil, fmt.Errorf("list modules: %w", err)
	}
	return modules, nil
}

// ListUnits returns every unit of a cohort ordered by module then unit ordinal.
func (r *ContentRepository) ListUnits(ctx context.Context, cohortID string) ([]models.Unit, error) {
	query := unitSelect + ` WHERE m.cohort_id = $1 ORDER BY m.ordinal, u.ordinal`
	var units []models.Unit
	if err := r.db.SelectContext(ctx, &units, query, cohortID); err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}
	return units, nil
}

// FindUnit returns a unit with its module flags.
func (r *ContentRepository) FindUnit(ctx context.Context, id string) (*models.Unit, error) {
	query := unitSelect + ` WHERE u.id = $1`
	var unit models.Unit
	if err := r.db.GetContext(ctx, &unit, query, id); err != nil {
		return nil, err
	}
	return &unit, nil
}

// ListReleasedMicroTasks returns the currently released micro-tasks of a cohort.
func (r *ContentRepository) ListReleasedMicroTasks(ctx context.Context, cohortID string) ([]models.MicroTask, error) {
	query := microTaskSelect + ` WHERE m.cohort_id = $1 AND t.is_released = TRUE ORDER BY t.unit_id, t.section_id, t.release_date`
	var tasks []models.MicroTask
	if err := r.db.SelectContext(ctx, &tasks, query, cohortID); err != nil {
		return nil, fmt.Errorf("list released micro tasks: %w", err)
	}
	return tasks, nil
}

// ListReleasedMicroTasksByUnit returns the currently released micro-tasks of one unit.
func (r *ContentRepository) ListReleasedMicroTasksByUnit(ctx context.Context, unitID string) ([]models.MicroTask, error) {
	query := microTaskSelect + ` WHERE t.unit_id = $1 AND t.is_released = TRUE ORDER BY t.section_id, t.release_date`
	var tasks []models.MicroTask
	if err := r.db.SelectContext(ctx, &tasks, query, unitID); err != nil {
		return nil, fmt.Errorf("list unit micro tasks: %w", err)
	}
	return tasks, nil
}

// FindMicroTask returns a micro-task with its cohort.
func (r *ContentRepository) FindMicroTask(ctx context.Context, id string) (*models.MicroTask, error) {
	query := microTaskSelect + ` WHERE t.id = $1`
	var task models.MicroTask
	if err := r.db.GetContext(ctx, &task, query, id); err != nil {
		return nil, err
	}
	return &task, nil
}

// ListDueForRelease returns unreleased entities whose release date has passed.
func (r *ContentRepository) ListDueForRelease(ctx context.Context, kind models.ContentKind, now time.Time) ([]models.ReleaseCandidate, error) {
	return r.listCandidates(ctx, kind, `t.is_released = FALSE AND t.release_date <= $1`, now)
}

// ListDueForUnrelease returns released entities whose release date was moved into the future.
func (r *ContentRepository) ListDueForUnrelease(ctx context.Context, kind models.ContentKind, now time.Time) ([]models.ReleaseCandidate, error) {
	return r.listCandidates(ctx, kind, `t.is_released = TRUE AND t.release_date > $1`, now)
}

func (r *ContentRepository) listCandidates(ctx context.Context, kind models.ContentKind, condition string, now time.Time) ([]models.ReleaseCandidate, error) {
	tbl, ok := releaseTables[kind]
	if !ok {
		return nil, fmt.Errorf("unknown content kind %q", kind)
	}
	query := fmt.Sprintf(`SELECT t.id, %s AS cohort_id, t.title, t.release_date, t.is_released, t.actual_release_date %s WHERE %s ORDER BY t.release_date`,
		cohortColumn(kind), tbl.from, condition)
	var candidates []models.ReleaseCandidate
	if err := r.db.SelectContext(ctx, &candidates, query, now); err != nil {
		return nil, fmt.Errorf("list %s release candidates: %w", tbl.table, err)
	}
	for i := range candidates {
		candidates[i].Kind = kind
	}
	return candidates, nil
}

// ReleaseResult reports what a release compare-and-set changed.
type ReleaseResult struct {
	Applied      bool
	FirstRelease bool
}

// MarkReleased flips the release flag on when the entity is still unreleased and due.
// actual_release_date is only written when it was empty, and FirstRelease reports
// whether this call wrote it.
func (r *ContentRepository) MarkReleased(ctx context.Context, kind models.ContentKind, id string, now time.Time) (ReleaseResult, error) {
	tbl, ok := releaseTables[kind]
	if !ok {
		return ReleaseResult{}, fmt.Errorf("unknown content kind %q", kind)
	}
	query := fmt.Sprintf(`UPDATE %[1]s AS t
        SET is_released = TRUE, actual_release_date = COALESCE(t.actual_release_date, $2)
        FROM (SELECT id, actual_release_date AS previous FROM %[1]s WHERE id = $1) AS p
        WHERE t.id = p.id AND t.is_released = FALSE AND t.release_date <= $2
        RETURNING p.previous IS NULL AS first_release`, tbl.table)
	var first bool
	if err := r.db.GetContext(ctx, &first, query, id, now); err != nil {
		if err == sql.ErrNoRows {
			return ReleaseResult{}, nil
		}
		return ReleaseResult{}, fmt.Errorf("release %s %s: %w", tbl.table, id, err)
	}
	return ReleaseResult{Applied: true, FirstRelease: first}, nil
}

// MarkUnreleased flips the release flag off when the release date has been moved
// into the future. actual_release_date is left untouched.
func (r *ContentRepository) MarkUnreleased(ctx context.Context, kind models.ContentKind, id string, now time.Time) (bool, error) {
	tbl, ok := releaseTables[kind]
	if !ok {
		return false, fmt.Errorf("unknown content kind %q", kind)
	}
	query := fmt.Sprintf(`UPDATE %s SET is_released = FALSE WHERE id = $1 AND is_released = TRUE AND release_date > $2`, tbl.table)
	result, err := r.db.ExecContext(ctx, query, id, now)
	if err != nil {
		return false, fmt.Errorf("unrelease %s %s: %w", tbl.table, id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check unrelease rows: %w", err)
	}
	return rows > 0, nil
}
