package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/curriculum-gate-api/internal/models"
	"github.com/noah-isme/curriculum-gate-api/pkg/clock"
	appErrors "github.com/noah-isme/curriculum-gate-api/pkg/errors"
	"github.com/noah-isme/curriculum-gate-api/pkg/export"
)

type cohortProgressSource interface {
	CohortProgress(ctx context.Context, scope *Scope) ([]models.Progress, error)
}

type learnerDirectory interface {
	FindByIDs(ctx context.Context, ids []string) ([]models.User, error)
}

type renderer interface {
	Render(data export.Dataset) ([]byte, error)
	ContentType() string
	Extension() string
}

// ExportFile is a rendered report ready to stream.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

var progressExportHeaders = []string{"Learner ID", "Name", "Email", "Current Module", "Current Unit", "Approved", "Released", "Completion (%)"}

// ExportService renders cohort progress reports.
type ExportService struct {
	progress  cohortProgressSource
	users     learnerDirectory
	cohorts   cohortReader
	renderers map[string]renderer
	clock     clock.Clock
	logger    *zap.Logger
}

// NewExportService constructs an ExportService with CSV and PDF renderers.
func NewExportService(progress cohortProgressSource, users learnerDirectory, cohorts cohortReader, clk clock.Clock, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		progress: progress,
		users:    users,
		cohorts:  cohorts,
		renderers: map[string]renderer{
			"csv": export.NewCSVExporter(),
			"pdf": export.NewPDFExporter(),
		},
		clock:  clk,
		logger: logger,
	}
}

// ExportProgress renders the progress of every enrolled learner in the scoped cohort.
func (s *ExportService) ExportProgress(ctx context.Context, scope *Scope, format string) (*ExportFile, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = "csv"
	}
	r, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	if err := requireReviewer(scope); err != nil {
		return nil, err
	}

	cohort, err := s.cohorts.FindByID(ctx, scope.CohortID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "cohort not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load cohort")
	}
	rows, err := s.progress.CohortProgress(ctx, scope)
	if err != nil {
		return nil, err
	}
	dataset, err := s.buildDataset(ctx, cohort, rows)
	if err != nil {
		return nil, err
	}
	payload, err := r.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	filename := fmt.Sprintf("%s_progress_%s.%s", sanitizeFilename(cohort.Name), s.clock.Now().Format("20060102_150405"), r.Extension())
	s.logger.Info("progress export rendered",
		zap.String("cohort_id", cohort.ID),
		zap.String("format", format),
		zap.Int("learners", len(rows)))
	return &ExportFile{Filename: filename, ContentType: r.ContentType(), Data: payload}, nil
}

func (s *ExportService) buildDataset(ctx context.Context, cohort *models.Cohort, rows []models.Progress) (export.Dataset, error) {
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.LearnerID)
	}
	users := map[string]models.User{}
	if len(ids) > 0 {
		found, err := s.users.FindByIDs(ctx, ids)
		if err != nil {
			return export.Dataset{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load learners")
		}
		for _, u := range found {
			users[u.ID] = u
		}
	}

	data := make([][]string, 0, len(rows))
	for _, row := range rows {
		user := users[row.LearnerID]
		data = append(data, []string{
			row.LearnerID,
			user.FullName,
			user.Email,
			pointerLabel(row.CurrentModule),
			pointerLabel(row.CurrentUnit),
			fmt.Sprintf("%d", row.ApprovedUnits),
			fmt.Sprintf("%d", row.ReleasedUnits),
			fmt.Sprintf("%.2f", row.CompletionPercentage),
		})
	}
	return export.Dataset{
		Title:    fmt.Sprintf("%s (cohort %d) progress", cohort.Name, cohort.Number),
		Subtitle: "Generated " + s.clock.Now().Format("2006-01-02 15:04 MST"),
		Headers:  progressExportHeaders,
		Rows:     data,
	}, nil
}

func pointerLabel(p *models.ProgressPointer) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%d. %s", p.Ordinal, p.Title)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "cohort"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := strings.ToLower(replacer.Replace(raw))
	if len(result) > 60 {
		return result[:60]
	}
	return result
}
