package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/curriculum-gate-api/internal/dto"
	"github.com/noah-isme/curriculum-gate-api/internal/models"
	"github.com/noah-isme/curriculum-gate-api/internal/service"
	appErrors "github.com/noah-isme/curriculum-gate-api/pkg/errors"
	"github.com/noah-isme/curriculum-gate-api/pkg/response"
)

type submissionService interface {
	SubmitAnswer(ctx context.Context, scope *service.Scope, unitID string, req dto.SubmitAnswerRequest) (*models.SubmissionView, error)
	SubmitMicroTask(ctx context.Context, scope *service.Scope, taskID string, req dto.SubmitMicroTaskRequest) (*models.SubmissionView, error)
	Review(ctx context.Context, scope *service.Scope, submissionID string, req dto.ReviewSubmissionRequest) (*models.SubmissionView, error)
	RequestResubmission(ctx context.Context, scope *service.Scope, submissionID string) (*models.SubmissionView, error)
	Resubmit(ctx context.Context, scope *service.Scope, submissionID string, req dto.ResubmitRequest) (*models.SubmissionView, error)
	Get(ctx context.Context, scope *service.Scope, submissionID string) (*models.SubmissionView, error)
	History(ctx context.Context, scope *service.Scope, submissionID string) ([]models.SubmissionView, error)
	ListQueue(ctx context.Context, scope *service.Scope, query dto.SubmissionQuery) ([]models.SubmissionView, *models.Pagination, error)
}

// SubmissionHandler exposes the submission and review workflow.
type SubmissionHandler struct {
	service submissionService
}

// NewSubmissionHandler builds a new handler.
func NewSubmissionHandler(service submissionService) *SubmissionHandler {
	return &SubmissionHandler{service: service}
}

// SubmitAnswer godoc
// @Summary Submit an answer to a unit
// @Tags Submissions
// @Accept json
// @Produce json
// @Param id path string true "Unit ID"
// @Param payload body dto.SubmitAnswerRequest true "Answer"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /units/{id}/submissions [post]
func (h *SubmissionHandler) SubmitAnswer(c *gin.Context) {
	var req dto.SubmitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid submission payload"))
		return
	}
	view, err := h.service.SubmitAnswer(c.Request.Context(), scopeFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, view)
}

// SubmitMicroTask godoc
// @Summary Check in a micro-task
// @Tags Submissions
// @Accept json
// @Produce json
// @Param id path string true "Micro-task ID"
// @Param payload body dto.SubmitMicroTaskRequest false "Check-in note"
// @Success 201 {object} response.Envelope
// @Router /micro-tasks/{id}/submissions [post]
func (h *SubmissionHandler) SubmitMicroTask(c *gin.Context) {
	var req dto.SubmitMicroTaskRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid micro-task payload"))
			return
		}
	}
	view, err := h.service.SubmitMicroTask(c.Request.Context(), scopeFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, view)
}

// Resubmit godoc
// @Summary Resubmit an answer after the reviewer asked for it
// @Tags Submissions
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body dto.ResubmitRequest true "Replacement answer"
// @Success 201 {object} response.Envelope
// @Router /submissions/{id}/resubmit [post]
func (h *SubmissionHandler) Resubmit(c *gin.Context) {
	var req dto.ResubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid resubmission payload"))
		return
	}
	view, err := h.service.Resubmit(c.Request.Context(), scopeFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, view)
}

// Get godoc
// @Summary Get a submission
// @Tags Submissions
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id} [get]
func (h *SubmissionHandler) Get(c *gin.Context) {
	view, err := h.service.Get(c.Request.Context(), scopeFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// History godoc
// @Summary List the resubmission chain of a submission, oldest first
// @Tags Submissions
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/history [get]
func (h *SubmissionHandler) History(c *gin.Context) {
	views, err := h.service.History(c.Request.Context(), scopeFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, views, nil)
}

// Review godoc
// @Summary Grade a pending submission
// @Tags Review
// @Accept json
// @Produce json
// @Param cohortId path string true "Cohort ID"
// @Param id path string true "Submission ID"
// @Param payload body dto.ReviewSubmissionRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/cohorts/{cohortId}/submissions/{id}/review [post]
func (h *SubmissionHandler) Review(c *gin.Context) {
	var req dto.ReviewSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid review payload"))
		return
	}
	view, err := h.service.Review(c.Request.Context(), scopeFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// RequestResubmission godoc
// @Summary Allow the learner to resubmit a rejected submission
// @Tags Review
// @Produce json
// @Param cohortId path string true "Cohort ID"
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /admin/cohorts/{cohortId}/submissions/{id}/request-resubmission [post]
func (h *SubmissionHandler) RequestResubmission(c *gin.Context) {
	view, err := h.service.RequestResubmission(c.Request.Context(), scopeFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// Queue godoc
// @Summary List submissions awaiting review
// @Tags Review
// @Produce json
// @Param cohortId path string true "Cohort ID"
// @Param status query string false "Comma separated statuses (default PENDING)"
// @Param targetType query string false "UNIT or MICRO_TASK"
// @Param learnerId query string false "Learner filter"
// @Param page query int false "Page number"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /admin/cohorts/{cohortId}/submissions [get]
func (h *SubmissionHandler) Queue(c *gin.Context) {
	query := dto.SubmissionQuery{
		TargetType: models.SubmissionTarget(strings.ToUpper(c.Query("targetType"))),
		LearnerID:  c.Query("learnerId"),
		Page:       queryInt(c, "page", 1),
		PageSize:   queryInt(c, "pageSize", 50),
	}
	for _, raw := range strings.Split(c.Query("status"), ",") {
		raw = strings.ToUpper(strings.TrimSpace(raw))
		if raw == "" {
			continue
		}
		status := models.SubmissionStatus(raw)
		if !status.Valid() {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown submission status "+raw))
			return
		}
		query.Status = append(query.Status, status)
	}
	switch query.TargetType {
	case "", models.TargetUnit, models.TargetMicroTask:
	default:
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "targetType must be UNIT or MICRO_TASK"))
		return
	}

	items, pagination, err := h.service.ListQueue(c.Request.Context(), scopeFromContext(c), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}
