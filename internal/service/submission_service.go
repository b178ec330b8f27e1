package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/curriculum-gate-api/internal/dto"
	"github.com/noah-isme/curriculum-gate-api/internal/models"
	"github.com/noah-isme/curriculum-gate-api/internal/repository"
	"github.com/noah-isme/curriculum-gate-api/pkg/clock"
	appErrors "github.com/noah-isme/curriculum-gate-api/pkg/errors"
	"github.com/noah-isme/curriculum-gate-api/pkg/sanitize"
	"github.com/noah-isme/curriculum-gate-api/pkg/storage"
)

type submissionStore interface {
	Create(ctx context.Context, submission *models.Submission) error
	FindByID(ctx context.Context, id string) (*models.Submission, error)
	ListHistory(ctx context.Context, learnerID string, targetType models.SubmissionTarget, targetID, cohortID string) ([]models.Submission, error)
	List(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, error)
	UpdateReview(ctx context.Context, params repository.ReviewParams) error
	MarkAwaitingResubmission(ctx context.Context, id, requestedBy string, requestedAt time.Time) error
	Resubmit(ctx context.Context, prevID string, next *models.Submission) error
}

type targetReader interface {
	FindUnit(ctx context.Context, id string) (*models.Unit, error)
	FindMicroTask(ctx context.Context, id string) (*models.MicroTask, error)
}

type gateEvaluator interface {
	Evaluate(ctx context.Context, learnerID, cohortID, unitID string) (*models.UnitGate, *models.Unit, error)
}

type progressRefresher interface {
	Refresh(ctx context.Context, learnerID, cohortID string) (*models.Progress, error)
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// SubmissionService runs the submission review state machine.
type SubmissionService struct {
	store     submissionStore
	targets   targetReader
	gates     gateEvaluator
	progress  progressRefresher
	notifier  Notifier
	audit     auditLogger
	metrics   *MetricsService
	clock     clock.Clock
	validator *validator.Validate
	logger    *zap.Logger
}

// SubmissionServiceOption configures optional collaborators.
type SubmissionServiceOption func(*SubmissionService)

// WithSubmissionNotifier sets the notifier.
func WithSubmissionNotifier(notifier Notifier) SubmissionServiceOption {
	return func(s *SubmissionService) { s.notifier = notifier }
}

// WithSubmissionAudit sets the audit sink.
func WithSubmissionAudit(audit auditLogger) SubmissionServiceOption {
	return func(s *SubmissionService) { s.audit = audit }
}

// WithSubmissionMetrics sets the metrics recorder.
func WithSubmissionMetrics(metrics *MetricsService) SubmissionServiceOption {
	return func(s *SubmissionService) { s.metrics = metrics }
}

// WithSubmissionProgress sets the projector refreshed on unit approvals.
func WithSubmissionProgress(progress progressRefresher) SubmissionServiceOption {
	return func(s *SubmissionService) { s.progress = progress }
}

// NewSubmissionService constructs the workflow.
func NewSubmissionService(store submissionStore, targets targetReader, gates gateEvaluator, clk clock.Clock, validate *validator.Validate, logger *zap.Logger, opts ...SubmissionServiceOption) *SubmissionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &SubmissionService{
		store:     store,
		targets:   targets,
		gates:     gates,
		clock:     clk,
		validator: validate,
		logger:    logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// SubmitAnswer creates the graded submission of a unit. The unit gate must be AVAILABLE.
func (s *SubmissionService) SubmitAnswer(ctx context.Context, scope *Scope, unitID string, req dto.SubmitAnswerRequest) (*models.SubmissionView, error) {
	if err := requireLearner(scope); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission payload")
	}
	attachment, err := ownedAttachment(req.AttachmentRef, scope.CohortID, scope.Actor.UserID)
	if err != nil {
		return nil, err
	}

	gate, unit, err := s.gates.Evaluate(ctx, scope.Actor.UserID, scope.CohortID, unitID)
	if err != nil {
		return nil, err
	}
	switch gate.State {
	case models.GateAvailable:
	case models.GateLocked:
		return nil, appErrors.Clone(appErrors.ErrPrerequisitesNotMet, "unit is not released")
	case models.GatePrerequisitesPending:
		return nil, appErrors.ErrPrerequisitesNotMet
	default:
		return nil, appErrors.ErrAlreadySubmitted
	}

	submission := &models.Submission{
		LearnerID:     scope.Actor.UserID,
		CohortID:      scope.CohortID,
		TargetType:    models.TargetUnit,
		TargetID:      unit.ID,
		Body:          sanitize.HTML(req.Body),
		AttachmentRef: attachment,
		Status:        models.SubmissionStatusPending,
		SubmittedAt:   s.clock.Now(),
	}
	if err := s.create(ctx, submission); err != nil {
		return nil, err
	}
	s.notify(ctx, models.NotifySubmissionReceived, submission, unit.Title)
	view := submission.View()
	return &view, nil
}

// SubmitMicroTask records a micro-task check-in. The micro-task must be released.
func (s *SubmissionService) SubmitMicroTask(ctx context.Context, scope *Scope, taskID string, req dto.SubmitMicroTaskRequest) (*models.SubmissionView, error) {
	if err := requireLearner(scope); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission payload")
	}

	task, err := s.targets.FindMicroTask(ctx, taskID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "micro task not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load micro task")
	}
	if err := checkCohortScope(scope, task.CohortID); err != nil {
		return nil, err
	}
	if !task.IsReleased {
		return nil, appErrors.ErrNotReleased
	}

	submission := &models.Submission{
		LearnerID:   scope.Actor.UserID,
		CohortID:    scope.CohortID,
		TargetType:  models.TargetMicroTask,
		TargetID:    task.ID,
		Body:        sanitize.HTML(req.Body),
		Status:      models.SubmissionStatusPending,
		SubmittedAt: s.clock.Now(),
	}
	if err := s.create(ctx, submission); err != nil {
		return nil, err
	}
	s.notify(ctx, models.NotifySubmissionReceived, submission, task.Title)
	view := submission.View()
	return &view, nil
}

func (s *SubmissionService) create(ctx context.Context, submission *models.Submission) error {
	if err := s.store.Create(ctx, submission); err != nil {
		if errors.Is(err, repository.ErrDuplicateActiveSubmission) {
			return appErrors.ErrAlreadySubmitted
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create submission")
	}
	s.metrics.RecordSubmissionTransition(submission.TargetType, "", submission.Status)
	s.emitAudit(ctx, submission.LearnerID, models.AuditActionSubmissionCreate, submission.ID, nil, submission)
	return nil
}

// Review grades a PENDING submission. REJECT rejects; every other tier approves.
func (s *SubmissionService) Review(ctx context.Context, scope *Scope, submissionID string, req dto.ReviewSubmissionRequest) (*models.SubmissionView, error) {
	if err := requireReviewer(scope); err != nil {
		return nil, err
	}
	req.Grade = models.GradeTier(strings.ToUpper(strings.TrimSpace(string(req.Grade))))
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review payload")
	}

	submission, err := s.load(ctx, scope, submissionID)
	if err != nil {
		return nil, err
	}
	if !submission.Active() || submission.Status != models.SubmissionStatusPending {
		return nil, appErrors.ErrAlreadyReviewed
	}

	before := *submission
	now := s.clock.Now()
	status := req.Grade.Outcome()
	feedback := optionalText(req.Feedback)
	err = s.store.UpdateReview(ctx, repository.ReviewParams{
		ID:         submission.ID,
		Status:     status,
		Grade:      req.Grade,
		Feedback:   feedback,
		ReviewedBy: scope.Actor.UserID,
		ReviewedAt: now,
	})
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.ErrAlreadyReviewed
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record review")
	}

	grade := req.Grade
	reviewer := scope.Actor.UserID
	submission.Status = status
	submission.Grade = &grade
	submission.Feedback = feedback
	submission.ReviewedAt = &now
	submission.ReviewedBy = &reviewer

	s.metrics.RecordSubmissionTransition(submission.TargetType, before.Status, status)
	s.emitAudit(ctx, reviewer, models.AuditActionSubmissionReview, submission.ID, &before, submission)

	if status == models.SubmissionStatusApproved && submission.TargetType == models.TargetUnit && s.progress != nil {
		if _, err := s.progress.Refresh(ctx, submission.LearnerID, submission.CohortID); err != nil {
			s.logger.Warn("progress refresh failed", zap.String("learner_id", submission.LearnerID), zap.Error(err))
		}
	}

	title := s.targetTitle(ctx, submission)
	s.notify(ctx, models.NotifySubmissionReviewed, submission, title)
	if status == models.SubmissionStatusApproved && submission.SupersedesID != nil {
		s.notify(ctx, models.NotifyResubmissionApproved, submission, title)
	}

	view := submission.View()
	return &view, nil
}

// RequestResubmission lets the learner resubmit a REJECTED submission.
func (s *SubmissionService) RequestResubmission(ctx context.Context, scope *Scope, submissionID string) (*models.SubmissionView, error) {
	if err := requireReviewer(scope); err != nil {
		return nil, err
	}
	submission, err := s.load(ctx, scope, submissionID)
	if err != nil {
		return nil, err
	}
	if !submission.Active() || submission.Status != models.SubmissionStatusRejected {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "only rejected submissions can be reopened")
	}

	before := *submission
	now := s.clock.Now()
	if err := s.store.MarkAwaitingResubmission(ctx, submission.ID, scope.Actor.UserID, now); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "only rejected submissions can be reopened")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to request resubmission")
	}

	requester := scope.Actor.UserID
	submission.Status = models.SubmissionStatusAwaitingResubmission
	submission.ResubmissionRequestedAt = &now
	submission.ResubmissionRequestedBy = &requester

	s.metrics.RecordSubmissionTransition(submission.TargetType, before.Status, submission.Status)
	s.emitAudit(ctx, requester, models.AuditActionResubmissionRequest, submission.ID, &before, submission)
	s.notify(ctx, models.NotifyResubmissionRequested, submission, s.targetTitle(ctx, submission))

	view := submission.View()
	return &view, nil
}

// Resubmit supersedes a submission AWAITING_RESUBMISSION with a new PENDING one.
func (s *SubmissionService) Resubmit(ctx context.Context, scope *Scope, submissionID string, req dto.ResubmitRequest) (*models.SubmissionView, error) {
	if err := requireLearner(scope); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission payload")
	}
	prev, err := s.load(ctx, scope, submissionID)
	if err != nil {
		return nil, err
	}
	if !prev.Active() || prev.Status != models.SubmissionStatusAwaitingResubmission {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "submission is not awaiting resubmission")
	}

	attachment, err := ownedAttachment(req.AttachmentRef, prev.CohortID, prev.LearnerID)
	if err != nil {
		return nil, err
	}

	next := &models.Submission{
		LearnerID:     prev.LearnerID,
		CohortID:      prev.CohortID,
		TargetType:    prev.TargetType,
		TargetID:      prev.TargetID,
		Body:          sanitize.HTML(req.Body),
		AttachmentRef: attachment,
		Status:        models.SubmissionStatusPending,
		SubmittedAt:   s.clock.Now(),
	}
	if err := s.store.Resubmit(ctx, prev.ID, next); err != nil {
		switch {
		case err == sql.ErrNoRows:
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "submission is not awaiting resubmission")
		case errors.Is(err, repository.ErrDuplicateActiveSubmission):
			return nil, appErrors.ErrAlreadySubmitted
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resubmit")
		}
	}

	s.metrics.RecordSubmissionTransition(prev.TargetType, prev.Status, next.Status)
	s.emitAudit(ctx, scope.Actor.UserID, models.AuditActionSubmissionResubmit, next.ID, prev, next)
	s.notify(ctx, models.NotifySubmissionReceived, next, s.targetTitle(ctx, next))

	view := next.View()
	return &view, nil
}

// Get returns one submission visible in scope.
func (s *SubmissionService) Get(ctx context.Context, scope *Scope, submissionID string) (*models.SubmissionView, error) {
	submission, err := s.load(ctx, scope, submissionID)
	if err != nil {
		return nil, err
	}
	view := submission.View()
	return &view, nil
}

// History returns the whole resubmission chain the submission belongs to, oldest first.
func (s *SubmissionService) History(ctx context.Context, scope *Scope, submissionID string) ([]models.SubmissionView, error) {
	submission, err := s.load(ctx, scope, submissionID)
	if err != nil {
		return nil, err
	}
	chain, err := s.store.ListHistory(ctx, submission.LearnerID, submission.TargetType, submission.TargetID, submission.CohortID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission history")
	}
	views := make([]models.SubmissionView, 0, len(chain))
	for _, item := range chain {
		views = append(views, item.View())
	}
	return views, nil
}

// ListQueue returns active submissions of the scoped cohort for reviewers.
func (s *SubmissionService) ListQueue(ctx context.Context, scope *Scope, query dto.SubmissionQuery) ([]models.SubmissionView, *models.Pagination, error) {
	if err := requireReviewer(scope); err != nil {
		return nil, nil, err
	}
	page := query.Page
	if page < 1 {
		page = 1
	}
	size := query.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	status := query.Status
	if len(status) == 0 {
		status = []models.SubmissionStatus{models.SubmissionStatusPending}
	}
	items, err := s.store.List(ctx, models.SubmissionFilter{
		CohortID:   scope.CohortID,
		Status:     status,
		TargetType: query.TargetType,
		LearnerID:  query.LearnerID,
		Limit:      size,
		Offset:     (page - 1) * size,
	})
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list submissions")
	}
	views := make([]models.SubmissionView, 0, len(items))
	for _, item := range items {
		views = append(views, item.View())
	}
	return views, &models.Pagination{Page: page, PageSize: size, TotalCount: len(views)}, nil
}

func (s *SubmissionService) load(ctx context.Context, scope *Scope, submissionID string) (*models.Submission, error) {
	submission, err := s.store.FindByID(ctx, submissionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}
	if err := checkSubmissionScope(scope, submission); err != nil {
		return nil, err
	}
	return submission, nil
}

func (s *SubmissionService) targetTitle(ctx context.Context, submission *models.Submission) string {
	switch submission.TargetType {
	case models.TargetUnit:
		if unit, err := s.targets.FindUnit(ctx, submission.TargetID); err == nil {
			return unit.Title
		}
	case models.TargetMicroTask:
		if task, err := s.targets.FindMicroTask(ctx, submission.TargetID); err == nil {
			return task.Title
		}
	}
	return submission.TargetID
}

func (s *SubmissionService) notify(ctx context.Context, kind models.NotificationKind, submission *models.Submission, title string) {
	payload := map[string]interface{}{
		"submissionId": submission.ID,
		"targetType":   string(submission.TargetType),
		"targetId":     submission.TargetID,
		"cohortId":     submission.CohortID,
		"status":       string(submission.Status),
		"title":        title,
	}
	if submission.Grade != nil {
		payload["grade"] = string(*submission.Grade)
	}
	notification := NewNotification(kind, models.LearnerRecipient(submission.LearnerID), s.clock.Now(), payload)
	dispatch(ctx, s.notifier, s.metrics, s.logger, notification)
}

func (s *SubmissionService) emitAudit(ctx context.Context, actor, action, resourceID string, before, after *models.Submission) {
	if s.audit == nil {
		return
	}
	entry := &models.AuditLog{
		UserID:     &actor,
		Action:     action,
		Resource:   "submission",
		ResourceID: &resourceID,
		IPAddress:  "system",
		UserAgent:  "submission-service",
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

func requireLearner(scope *Scope) error {
	if scope == nil {
		return appErrors.ErrCohortMismatch
	}
	if scope.Privileged() {
		return appErrors.Clone(appErrors.ErrForbidden, "only learners can submit")
	}
	return nil
}

func requireReviewer(scope *Scope) error {
	if scope == nil || !scope.Privileged() {
		return appErrors.ErrForbidden
	}
	return nil
}

func optionalText(value string) *string {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil
	}
	v = sanitize.HTML(v)
	return &v
}

// ownedAttachment normalises an optional attachment ref. Refs must live under the
// submitting learner's "<cohort>/<learner>/" directory.
func ownedAttachment(ref *string, cohortID, learnerID string) (*string, error) {
	if ref == nil || strings.TrimSpace(*ref) == "" {
		return nil, nil
	}
	cleaned, ok := storage.OwnedRef(*ref, cohortID, learnerID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrCohortMismatch, "attachment does not belong to the submitting learner")
	}
	return &cleaned, nil
}
