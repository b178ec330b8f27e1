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

type membershipService interface {
	Enroll(ctx context.Context, scope *service.Scope, req dto.EnrollLearnerRequest) (*models.Membership, error)
	ChangeStatus(ctx context.Context, scope *service.Scope, membershipID string, req dto.UpdateMembershipStatusRequest) (*models.Membership, error)
	List(ctx context.Context, scope *service.Scope, status models.MembershipStatus) ([]models.Membership, error)
}

// MembershipHandler administers cohort memberships.
type MembershipHandler struct {
	service membershipService
}

// NewMembershipHandler builds a new handler.
func NewMembershipHandler(service membershipService) *MembershipHandler {
	return &MembershipHandler{service: service}
}

// Enroll godoc
// @Summary Enroll a learner into a cohort
// @Tags Memberships
// @Accept json
// @Produce json
// @Param cohortId path string true "Cohort ID"
// @Param payload body dto.EnrollLearnerRequest true "Learner"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/cohorts/{cohortId}/memberships [post]
func (h *MembershipHandler) Enroll(c *gin.Context) {
	var req dto.EnrollLearnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid enrollment payload"))
		return
	}
	membership, err := h.service.Enroll(c.Request.Context(), scopeFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, membership)
}

// List godoc
// @Summary List the cohort's memberships in every status
// @Tags Memberships
// @Produce json
// @Param cohortId path string true "Cohort ID"
// @Param status query string false "ENROLLED, GRADUATED, REMOVED or SUSPENDED"
// @Success 200 {object} response.Envelope
// @Router /admin/cohorts/{cohortId}/memberships [get]
func (h *MembershipHandler) List(c *gin.Context) {
	status := models.MembershipStatus(strings.ToUpper(strings.TrimSpace(c.Query("status"))))
	memberships, err := h.service.List(c.Request.Context(), scopeFromContext(c), status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, memberships, nil)
}

// ChangeStatus godoc
// @Summary Move a membership of the cohort to another status
// @Tags Memberships
// @Accept json
// @Produce json
// @Param cohortId path string true "Cohort ID"
// @Param id path string true "Membership ID"
// @Param payload body dto.UpdateMembershipStatusRequest true "Status"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /admin/cohorts/{cohortId}/memberships/{id}/status [patch]
func (h *MembershipHandler) ChangeStatus(c *gin.Context) {
	var req dto.UpdateMembershipStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid status payload"))
		return
	}
	membership, err := h.service.ChangeStatus(c.Request.Context(), scopeFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, membership, nil)
}
