package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/curriculum-gate-api/internal/models"
	appErrors "github.com/noah-isme/curriculum-gate-api/pkg/errors"
)

type progressSourceStub struct {
	rows []models.Progress
	err  error
}

func (p progressSourceStub) CohortProgress(ctx context.Context, scope *Scope) ([]models.Progress, error) {
	return p.rows, p.err
}

type learnerDirectoryStub struct {
	users []models.User
}

func (l learnerDirectoryStub) FindByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	return l.users, nil
}

func newExportFixture(source progressSourceStub) *ExportService {
	users := learnerDirectoryStub{users: []models.User{
		{ID: "learner-1", FullName: "Ana Putri", Email: "ana@example.com"},
		{ID: "learner-2", FullName: "Budi", Email: "budi@example.com"},
	}}
	cohorts := cohortReaderStub{cohorts: map[string]*models.Cohort{"cohort-a": {ID: "cohort-a", Name: "Alpha Batch", Number: 7, IsActive: true}}}
	return NewExportService(source, users, cohorts, newTestClock(), nil)
}

func TestExportProgressCSV(t *testing.T) {
	source := progressSourceStub{rows: []models.Progress{
		{LearnerID: "learner-1", CohortID: "cohort-a", ApprovedUnits: 1, ReleasedUnits: 3, CompletionPercentage: 33.33,
			CurrentModule: &models.ProgressPointer{ID: "module-1", Title: "Basics", Ordinal: 1},
			CurrentUnit:   &models.ProgressPointer{ID: "unit-2", Title: "Loops", Ordinal: 2}},
		{LearnerID: "learner-2", CohortID: "cohort-a", ReleasedUnits: 3},
	}}
	svc := newExportFixture(source)

	file, err := svc.ExportProgress(context.Background(), reviewerScope("cohort-a"), "")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", file.ContentType)
	assert.Equal(t, "alpha_batch_progress_20240506_090000.csv", file.Filename)

	lines := strings.Split(strings.TrimSpace(string(file.Data)), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "Learner ID,Name,Email"))
	assert.Equal(t, "learner-1,Ana Putri,ana@example.com,1. Basics,2. Loops,1,3,33.33", lines[1])
	assert.Equal(t, "learner-2,Budi,budi@example.com,-,-,0,3,0.00", lines[2])
}

func TestExportProgressPDF(t *testing.T) {
	svc := newExportFixture(progressSourceStub{rows: []models.Progress{{LearnerID: "learner-1", CohortID: "cohort-a"}}})

	file, err := svc.ExportProgress(context.Background(), reviewerScope("cohort-a"), "PDF")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", file.ContentType)
	assert.True(t, strings.HasSuffix(file.Filename, ".pdf"))
	assert.True(t, bytes.HasPrefix(file.Data, []byte("%PDF")))
}

func TestExportProgressGuards(t *testing.T) {
	svc := newExportFixture(progressSourceStub{})
	ctx := context.Background()

	_, err := svc.ExportProgress(ctx, reviewerScope("cohort-a"), "xlsx")
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.ExportProgress(ctx, learnerScope("learner-1", "cohort-a"), "csv")
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = svc.ExportProgress(ctx, reviewerScope("cohort-z"), "csv")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	failing := newExportFixture(progressSourceStub{err: appErrors.Wrap(errors.New("boom"), appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed")})
	_, err = failing.ExportProgress(ctx, reviewerScope("cohort-a"), "csv")
	assert.ErrorIs(t, err, appErrors.ErrInternal)
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "cohort", sanitizeFilename(""))
	assert.Equal(t, "a-b-c_d", sanitizeFilename("A/B:C D"))
	assert.Len(t, sanitizeFilename(strings.Repeat("x", 90)), 60)
}
