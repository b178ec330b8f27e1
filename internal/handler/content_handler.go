package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/curriculum-gate-api/internal/models"
	"github.com/noah-isme/curriculum-gate-api/internal/service"
	"github.com/noah-isme/curriculum-gate-api/pkg/response"
)

type contentService interface {
	ListReleased(ctx context.Context, scope *service.Scope) ([]models.ModuleView, error)
}

// ContentHandler exposes the released curriculum.
type ContentHandler struct {
	service contentService
}

// NewContentHandler builds a new handler.
func NewContentHandler(service contentService) *ContentHandler {
	return &ContentHandler{service: service}
}

// List godoc
// @Summary List released modules, units and micro-tasks
// @Description Learners see their own cohort with per-unit gate states. Instructors pass the cohort in the path.
// @Tags Content
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /content [get]
// @Router /admin/cohorts/{cohortId}/content [get]
func (h *ContentHandler) List(c *gin.Context) {
	modules, err := h.service.ListReleased(c.Request.Context(), scopeFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, modules, nil)
}
