package service

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/noah-isme/curriculum-gate-api/internal/models"
	appErrors "github.com/noah-isme/curriculum-gate-api/pkg/errors"
)

type gatingContent interface {
	FindUnit(ctx context.Context, id string) (*models.Unit, error)
	ListReleasedMicroTasksByUnit(ctx context.Context, unitID string) ([]models.MicroTask, error)
}

type learnerSubmissions interface {
	ListActiveByLearner(ctx context.Context, learnerID, cohortID string) ([]models.Submission, error)
}

// submissionIndex groups a learner's active submissions by target.
type submissionIndex struct {
	units map[string]*models.Submission
	tasks map[string]*models.Submission
}

func indexSubmissions(submissions []models.Submission) submissionIndex {
	idx := submissionIndex{
		units: make(map[string]*models.Submission),
		tasks: make(map[string]*models.Submission),
	}
	for i := range submissions {
		sub := &submissions[i]
		if !sub.Active() {
			continue
		}
		switch sub.TargetType {
		case models.TargetUnit:
			idx.units[sub.TargetID] = sub
		case models.TargetMicroTask:
			idx.tasks[sub.TargetID] = sub
		}
	}
	return idx
}

// EvaluateGate derives the unit gate from already loaded state. An existing unit
// submission wins over the release flags so a submitted unit never reads LOCKED after
// its release date moves. releasedTasks must only hold currently released micro-tasks.
func EvaluateGate(unit models.Unit, unitSubmission *models.Submission, releasedTasks []models.MicroTask, submittedTasks map[string]*models.Submission) models.UnitGate {
	gate := models.UnitGate{UnitID: unit.ID, RequiredTasks: len(releasedTasks)}
	for _, task := range releasedTasks {
		if _, ok := submittedTasks[task.ID]; ok {
			gate.SatisfiedTasks++
		}
	}

	if unitSubmission != nil {
		id := unitSubmission.ID
		gate.ActiveSubmission = &id
		switch unitSubmission.Status {
		case models.SubmissionStatusPending:
			gate.State = models.GateSubmitted
		case models.SubmissionStatusRejected:
			gate.State = models.GateRejected
		case models.SubmissionStatusAwaitingResubmission:
			gate.State = models.GateAwaitingResubmission
		case models.SubmissionStatusApproved:
			gate.State = models.GateCompleted
		default:
			gate.State = models.GateSubmitted
		}
		return gate
	}

	switch {
	case !unit.Available():
		gate.State = models.GateLocked
	case gate.SatisfiedTasks < gate.RequiredTasks:
		gate.State = models.GatePrerequisitesPending
	default:
		gate.State = models.GateAvailable
	}
	return gate
}

// GatingService evaluates unit gates per learner. Results are never cached.
type GatingService struct {
	content     gatingContent
	submissions learnerSubmissions
	logger      *zap.Logger
}

// NewGatingService constructs the evaluator.
func NewGatingService(content gatingContent, submissions learnerSubmissions, logger *zap.Logger) *GatingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GatingService{content: content, submissions: submissions, logger: logger}
}

// Evaluate returns the gate of unitID for learnerID inside cohortID together with the unit.
func (s *GatingService) Evaluate(ctx context.Context, learnerID, cohortID, unitID string) (*models.UnitGate, *models.Unit, error) {
	unit, err := s.content.FindUnit(ctx, unitID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "unit not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load unit")
	}
	if unit.CohortID != cohortID {
		return nil, nil, appErrors.ErrCohortMismatch
	}

	tasks, err := s.content.ListReleasedMicroTasksByUnit(ctx, unit.ID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load micro tasks")
	}
	submissions, err := s.submissions.ListActiveByLearner(ctx, learnerID, cohortID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submissions")
	}
	idx := indexSubmissions(submissions)

	gate := EvaluateGate(*unit, idx.units[unit.ID], tasks, idx.tasks)
	return &gate, unit, nil
}
