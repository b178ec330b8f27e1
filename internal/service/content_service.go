package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/curriculum-gate-api/internal/models"
	appErrors "github.com/noah-isme/curriculum-gate-api/pkg/errors"
	"github.com/noah-isme/curriculum-gate-api/pkg/sanitize"
)

type catalogReader interface {
	ListModules(ctx context.Context, cohortID string) ([]models.Module, error)
	ListUnits(ctx context.Context, cohortID string) ([]models.Unit, error)
	ListReleasedMicroTasks(ctx context.Context, cohortID string) ([]models.MicroTask, error)
}

// ContentService lists the released catalog of a cohort.
type ContentService struct {
	catalog     catalogReader
	submissions learnerSubmissions
	logger      *zap.Logger
}

// NewContentService constructs the service.
func NewContentService(catalog catalogReader, submissions learnerSubmissions, logger *zap.Logger) *ContentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContentService{catalog: catalog, submissions: submissions, logger: logger}
}

// ListReleased returns released modules with their available units and released
// micro-tasks. For a learner scope each unit carries the learner's gate; privileged
// scopes see the catalog without gates.
func (s *ContentService) ListReleased(ctx context.Context, scope *Scope) ([]models.ModuleView, error) {
	if scope == nil {
		return []models.ModuleView{}, nil
	}
	modules, err := s.catalog.ListModules(ctx, scope.CohortID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load modules")
	}
	units, err := s.catalog.ListUnits(ctx, scope.CohortID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load units")
	}
	tasks, err := s.catalog.ListReleasedMicroTasks(ctx, scope.CohortID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load micro tasks")
	}

	var idx submissionIndex
	withGates := !scope.Privileged()
	if withGates {
		submissions, err := s.submissions.ListActiveByLearner(ctx, scope.Actor.UserID, scope.CohortID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submissions")
		}
		idx = indexSubmissions(submissions)
	}

	tasksByUnit := make(map[string][]models.MicroTask)
	for _, task := range tasks {
		tasksByUnit[task.UnitID] = append(tasksByUnit[task.UnitID], task)
	}
	unitsByModule := make(map[string][]models.UnitView)
	for _, unit := range units {
		if !unit.Available() {
			continue
		}
		view := models.UnitView{
			ID:          unit.ID,
			Ordinal:     unit.Ordinal,
			Title:       sanitize.Text(unit.Title),
			Content:     sanitize.HTML(unit.Content),
			Deadline:    unit.Deadline,
			Points:      unit.Points,
			BonusPoints: unit.BonusPoints,
			MicroTasks:  make([]models.MicroTaskView, 0, len(tasksByUnit[unit.ID])),
		}
		for _, task := range tasksByUnit[unit.ID] {
			_, submitted := idx.tasks[task.ID]
			view.MicroTasks = append(view.MicroTasks, models.MicroTaskView{
				ID:          task.ID,
				SectionID:   task.SectionID,
				Title:       sanitize.Text(task.Title),
				ReleaseDate: task.ReleaseDate,
				Submitted:   submitted,
			})
		}
		if withGates {
			gate := EvaluateGate(unit, idx.units[unit.ID], tasksByUnit[unit.ID], idx.tasks)
			view.Gate = &gate
		}
		unitsByModule[unit.ModuleID] = append(unitsByModule[unit.ModuleID], view)
	}

	result := make([]models.ModuleView, 0, len(modules))
	for _, module := range modules {
		if !module.IsReleased || !module.IsActive {
			continue
		}
		views := unitsByModule[module.ID]
		if views == nil {
			views = []models.UnitView{}
		}
		result = append(result, models.ModuleView{
			ID:      module.ID,
			Ordinal: module.Ordinal,
			Title:   sanitize.Text(module.Title),
			Units:   views,
		})
	}
	return result, nil
}
