package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/curriculum-gate-api/internal/models"
)

var unitColumns = []string{"id", "module_id", "cohort_id", "ordinal", "title", "release_date", "is_released", "deadline",
	"points", "bonus_points", "content", "actual_release_date", "module_ordinal", "module_released", "module_active"}

func TestContentListUnits(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewContentRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(unitColumns).
		AddRow("unit-1", "module-1", "cohort-1", 1, "Intro", now, true, nil, 10, 2, "<p>hi</p>", now, 1, true, true).
		AddRow("unit-2", "module-1", "cohort-1", 2, "Next", now.Add(time.Hour), false, nil, 10, 0, "", nil, 1, true, true)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE m.cohort_id = $1 ORDER BY m.ordinal, u.ordinal")).
		WithArgs("cohort-1").
		WillReturnRows(rows)

	units, err := repo.ListUnits(context.Background(), "cohort-1")
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.True(t, units[0].Available())
	assert.False(t, units[1].Available())
	assert.Nil(t, units[1].ActualReleaseDate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContentListDueForRelease(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewContentRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "cohort_id", "title", "release_date", "is_released", "actual_release_date"}).
		AddRow("task-1", "cohort-1", "Warm up", now.Add(-time.Minute), false, nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT t.id, m.cohort_id AS cohort_id")).
		WithArgs(now).
		WillReturnRows(rows)

	candidates, err := repo.ListDueForRelease(context.Background(), models.ContentKindMicroTask, now)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, models.ContentKindMicroTask, candidates[0].Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContentListDueForUnreleaseModules(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewContentRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT t.id, t.cohort_id AS cohort_id, t.title, t.release_date, t.is_released, t.actual_release_date FROM modules t WHERE t.is_released = TRUE AND t.release_date > $1")).
		WithArgs(now).
		WillReturnRows(sqlmock.NewRows([]string{"id", "cohort_id", "title", "release_date", "is_released", "actual_release_date"}))

	candidates, err := repo.ListDueForUnrelease(context.Background(), models.ContentKindModule, now)
	require.NoError(t, err)
	assert.Empty(t, candidates)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContentUnknownKind(t *testing.T) {
	db, _, cleanup := newMock(t)
	defer cleanup()
	repo := NewContentRepository(db)

	_, err := repo.ListDueForRelease(context.Background(), models.ContentKind("COURSE"), time.Now())
	assert.Error(t, err)
	_, err = repo.MarkReleased(context.Background(), models.ContentKind("COURSE"), "x", time.Now())
	assert.Error(t, err)
}

func TestContentMarkReleasedFirstTime(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewContentRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE units AS t SET is_released = TRUE, actual_release_date = COALESCE(t.actual_release_date, $2)")).
		WithArgs("unit-1", now).
		WillReturnRows(sqlmock.NewRows([]string{"first_release"}).AddRow(true))

	result, err := repo.MarkReleased(context.Background(), models.ContentKindUnit, "unit-1", now)
	require.NoError(t, err)
	assert.True(t, result.Applied)
	assert.True(t, result.FirstRelease)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContentMarkReleasedAgainAfterUnrelease(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewContentRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE micro_tasks AS t")).
		WithArgs("task-1", now).
		WillReturnRows(sqlmock.NewRows([]string{"first_release"}).AddRow(false))

	result, err := repo.MarkReleased(context.Background(), models.ContentKindMicroTask, "task-1", now)
	require.NoError(t, err)
	assert.True(t, result.Applied)
	assert.False(t, result.FirstRelease)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContentMarkReleasedLostRace(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewContentRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE modules AS t")).
		WithArgs("module-1", now).
		WillReturnRows(sqlmock.NewRows([]string{"first_release"}))

	result, err := repo.MarkReleased(context.Background(), models.ContentKindModule, "module-1", now)
	require.NoError(t, err)
	assert.False(t, result.Applied)
	assert.False(t, result.FirstRelease)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContentMarkReleasedError(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewContentRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE modules AS t")).
		WithArgs("module-1", now).
		WillReturnError(errors.New("connection reset"))

	_, err := repo.MarkReleased(context.Background(), models.ContentKindModule, "module-1", now)
	assert.Error(t, err)
}

func TestContentMarkUnreleased(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewContentRepository(db)

	now := time.Now()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE units SET is_released = FALSE WHERE id = $1 AND is_released = TRUE AND release_date > $2")).
		WithArgs("unit-1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE units SET is_released = FALSE")).
		WithArgs("unit-1", now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	changed, err := repo.MarkUnreleased(context.Background(), models.ContentKindUnit, "unit-1", now)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.MarkUnreleased(context.Background(), models.ContentKindUnit, "unit-1", now)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
