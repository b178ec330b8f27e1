package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/noah-isme/curriculum-gate-api/internal/models"
	"github.com/noah-isme/curriculum-gate-api/internal/repository"
	"github.com/noah-isme/curriculum-gate-api/pkg/clock"
)

var fixtureNow = time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)

func newTestClock() *clock.FixedClock {
	return clock.NewFixedClock(fixtureNow)
}

func learnerScope(userID, cohortID string) *Scope {
	return &Scope{Actor: models.Identity{UserID: userID, Role: models.RoleLearner}, CohortID: cohortID}
}

func reviewerScope(cohortID string) *Scope {
	return &Scope{Actor: models.Identity{UserID: "instructor-1", Role: models.RoleInstructor}, CohortID: cohortID}
}

// submissionStoreStub mimics the unique active index and the compare-and-set updates.
type submissionStoreStub struct {
	mu          sync.Mutex
	seq         int
	submissions map[string]*models.Submission
	createErr   error
}

func newSubmissionStoreStub() *submissionStoreStub {
	return &submissionStoreStub{submissions: make(map[string]*models.Submission)}
}

func (s *submissionStoreStub) put(sub models.Submission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copy := sub
	s.submissions[sub.ID] = &copy
}

func (s *submissionStoreStub) activeLocked(learnerID string, targetType models.SubmissionTarget, targetID, cohortID string) *models.Submission {
	for _, sub := range s.submissions {
		if sub.Active() && sub.LearnerID == learnerID && sub.TargetType == targetType && sub.TargetID == targetID && sub.CohortID == cohortID {
			return sub
		}
	}
	return nil
}

func (s *submissionStoreStub) insertLocked(sub *models.Submission) error {
	if s.activeLocked(sub.LearnerID, sub.TargetType, sub.TargetID, sub.CohortID) != nil {
		return repository.ErrDuplicateActiveSubmission
	}
	if sub.ID == "" {
		s.seq++
		sub.ID = fmt.Sprintf("sub-%d", s.seq)
	}
	copy := *sub
	s.submissions[sub.ID] = &copy
	return nil
}

func (s *submissionStoreStub) Create(ctx context.Context, submission *models.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	return s.insertLocked(submission)
}

func (s *submissionStoreStub) FindByID(ctx context.Context, id string) (*models.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.submissions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *sub
	return &copy, nil
}

func (s *submissionStoreStub) sorted(match func(*models.Submission) bool) []models.Submission {
	result := make([]models.Submission, 0)
	for _, sub := range s.submissions {
		if match(sub) {
			result = append(result, *sub)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].SubmittedAt.Equal(result[j].SubmittedAt) {
			return result[i].SubmittedAt.Before(result[j].SubmittedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

func (s *submissionStoreStub) ListActiveByLearner(ctx context.Context, learnerID, cohortID string) ([]models.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(func(sub *models.Submission) bool {
		return sub.Active() && sub.LearnerID == learnerID && sub.CohortID == cohortID
	}), nil
}

func (s *submissionStoreStub) ListActiveByCohort(ctx context.Context, cohortID string, targetType models.SubmissionTarget) ([]models.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(func(sub *models.Submission) bool {
		return sub.Active() && sub.CohortID == cohortID && sub.TargetType == targetType
	}), nil
}

func (s *submissionStoreStub) ListHistory(ctx context.Context, learnerID string, targetType models.SubmissionTarget, targetID, cohortID string) ([]models.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(func(sub *models.Submission) bool {
		return sub.LearnerID == learnerID && sub.TargetType == targetType && sub.TargetID == targetID && sub.CohortID == cohortID
	}), nil
}

func (s *submissionStoreStub) List(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	statuses := make(map[models.SubmissionStatus]bool)
	for _, st := range filter.Status {
		statuses[st] = true
	}
	return s.sorted(func(sub *models.Submission) bool {
		if !sub.Active() || sub.CohortID != filter.CohortID {
			return false
		}
		if len(statuses) > 0 && !statuses[sub.Status] {
			return false
		}
		if filter.TargetType != "" && sub.TargetType != filter.TargetType {
			return false
		}
		return filter.LearnerID == "" || sub.LearnerID == filter.LearnerID
	}), nil
}

func (s *submissionStoreStub) UpdateReview(ctx context.Context, params repository.ReviewParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.submissions[params.ID]
	if !ok || !sub.Active() || sub.Status != models.SubmissionStatusPending {
		return sql.ErrNoRows
	}
	grade := params.Grade
	by := params.ReviewedBy
	at := params.ReviewedAt
	sub.Status = params.Status
	sub.Grade = &grade
	sub.Feedback = params.Feedback
	sub.ReviewedBy = &by
	sub.ReviewedAt = &at
	return nil
}

func (s *submissionStoreStub) MarkAwaitingResubmission(ctx context.Context, id, requestedBy string, requestedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.submissions[id]
	if !ok || !sub.Active() || sub.Status != models.SubmissionStatusRejected {
		return sql.ErrNoRows
	}
	sub.Status = models.SubmissionStatusAwaitingResubmission
	sub.ResubmissionRequestedBy = &requestedBy
	sub.ResubmissionRequestedAt = &requestedAt
	return nil
}

func (s *submissionStoreStub) Resubmit(ctx context.Context, prevID string, next *models.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.submissions[prevID]
	if !ok || !prev.Active() || prev.Status != models.SubmissionStatusAwaitingResubmission {
		return sql.ErrNoRows
	}
	s.seq++
	next.ID = fmt.Sprintf("sub-%d", s.seq)
	next.SupersedesID = &prevID
	at := next.SubmittedAt
	nextID := next.ID
	prev.Status = models.SubmissionStatusRejected
	prev.SupersededBy = &nextID
	prev.SupersededAt = &at
	copy := *next
	s.submissions[next.ID] = &copy
	return nil
}

// catalogStub serves modules, units and micro-tasks from memory.
type catalogStub struct {
	modules []models.Module
	units   []models.Unit
	tasks   []models.MicroTask
}

func (c *catalogStub) ListModules(ctx context.Context, cohortID string) ([]models.Module, error) {
	result := make([]models.Module, 0)
	for _, m := range c.modules {
		if m.CohortID == cohortID {
			result = append(result, m)
		}
	}
	return result, nil
}

func (c *catalogStub) ListUnits(ctx context.Context, cohortID string) ([]models.Unit, error) {
	result := make([]models.Unit, 0)
	for _, u := range c.units {
		if u.CohortID == cohortID {
			result = append(result, u)
		}
	}
	return result, nil
}

func (c *catalogStub) FindUnit(ctx context.Context, id string) (*models.Unit, error) {
	for _, u := range c.units {
		if u.ID == id {
			copy := u
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (c *catalogStub) FindMicroTask(ctx context.Context, id string) (*models.MicroTask, error) {
	for _, t := range c.tasks {
		if t.ID == id {
			copy := t
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (c *catalogStub) ListReleasedMicroTasks(ctx context.Context, cohortID string) ([]models.MicroTask, error) {
	result := make([]models.MicroTask, 0)
	for _, t := range c.tasks {
		if t.CohortID == cohortID && t.IsReleased {
			result = append(result, t)
		}
	}
	return result, nil
}

func (c *catalogStub) ListReleasedMicroTasksByUnit(ctx context.Context, unitID string) ([]models.MicroTask, error) {
	result := make([]models.MicroTask, 0)
	for _, t := range c.tasks {
		if t.UnitID == unitID && t.IsReleased {
			result = append(result, t)
		}
	}
	return result, nil
}

// newCatalogFixture builds cohort-a with one released module holding two units. unit-1
// requires task-1 (released) and has task-2 unreleased; unit-2 is not released yet.
func newCatalogFixture() *catalogStub {
	return &catalogStub{
		modules: []models.Module{
			{ID: "module-1", CohortID: "cohort-a", Ordinal: 1, Title: "Foundations", IsReleased: true, IsActive: true},
			{ID: "module-2", CohortID: "cohort-a", Ordinal: 2, Title: "Later", IsReleased: false, IsActive: true},
		},
		units: []models.Unit{
			{ID: "unit-1", ModuleID: "module-1", CohortID: "cohort-a", Ordinal: 1, Title: "Variables", IsReleased: true, ModuleOrdinal: 1, ModuleReleased: true, ModuleActive: true, Content: "<p>Intro</p><script>x()</script>"},
			{ID: "unit-2", ModuleID: "module-1", CohortID: "cohort-a", Ordinal: 2, Title: "Loops", IsReleased: false, ModuleOrdinal: 1, ModuleReleased: true, ModuleActive: true},
			{ID: "unit-3", ModuleID: "module-2", CohortID: "cohort-a", Ordinal: 1, Title: "Closures", IsReleased: true, ModuleOrdinal: 2, ModuleReleased: false, ModuleActive: true},
			{ID: "unit-b", ModuleID: "module-b", CohortID: "cohort-b", Ordinal: 1, Title: "Other cohort", IsReleased: true, ModuleOrdinal: 1, ModuleReleased: true, ModuleActive: true},
		},
		tasks: []models.MicroTask{
			{ID: "task-1", UnitID: "unit-1", CohortID: "cohort-a", SectionID: "s1", Title: "Read chapter", IsReleased: true},
			{ID: "task-2", UnitID: "unit-1", CohortID: "cohort-a", SectionID: "s2", Title: "Watch video", IsReleased: false},
			{ID: "task-b", UnitID: "unit-b", CohortID: "cohort-b", SectionID: "s1", Title: "Other", IsReleased: true},
		},
	}
}

// notifierStub records delivered notifications.
type notifierStub struct {
	mu   sync.Mutex
	sent []models.Notification
	err  error
}

func (n *notifierStub) Notify(ctx context.Context, notification models.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, notification)
	return nil
}

func (n *notifierStub) kinds() []models.NotificationKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	kinds := make([]models.NotificationKind, 0, len(n.sent))
	for _, item := range n.sent {
		kinds = append(kinds, item.Kind)
	}
	return kinds
}

// auditLogStub collects audit entries.
type auditLogStub struct {
	mu   sync.Mutex
	logs []*models.AuditLog
}

func (a *auditLogStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

func (a *auditLogStub) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	result := make([]string, 0, len(a.logs))
	for _, log := range a.logs {
		result = append(result, log.Action)
	}
	return result
}
