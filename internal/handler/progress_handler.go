package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/curriculum-gate-api/internal/models"
	"github.com/noah-isme/curriculum-gate-api/internal/service"
	"github.com/noah-isme/curriculum-gate-api/pkg/response"
)

type progressService interface {
	Get(ctx context.Context, scope *service.Scope, learnerID string) (*models.Progress, error)
}

type progressExporter interface {
	ExportProgress(ctx context.Context, scope *service.Scope, format string) (*service.ExportFile, error)
}

// ProgressHandler exposes learner progress and its exports.
type ProgressHandler struct {
	progress progressService
	exporter progressExporter
}

// NewProgressHandler builds a new handler.
func NewProgressHandler(progress progressService, exporter progressExporter) *ProgressHandler {
	return &ProgressHandler{progress: progress, exporter: exporter}
}

// Mine godoc
// @Summary Current progress of the calling learner
// @Tags Progress
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /progress [get]
func (h *ProgressHandler) Mine(c *gin.Context) {
	progress, err := h.progress.Get(c.Request.Context(), scopeFromContext(c), "")
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, progress, nil)
}

// Learner godoc
// @Summary Progress of one learner in a cohort
// @Tags Progress
// @Produce json
// @Param cohortId path string true "Cohort ID"
// @Param learnerId path string true "Learner ID"
// @Success 200 {object} response.Envelope
// @Router /admin/cohorts/{cohortId}/learners/{learnerId}/progress [get]
func (h *ProgressHandler) Learner(c *gin.Context) {
	progress, err := h.progress.Get(c.Request.Context(), scopeFromContext(c), c.Param("learnerId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, progress, nil)
}

// Export godoc
// @Summary Download cohort progress as CSV or PDF
// @Tags Progress
// @Produce text/csv
// @Produce application/pdf
// @Param cohortId path string true "Cohort ID"
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} file
// @Router /admin/cohorts/{cohortId}/progress/export [get]
func (h *ProgressHandler) Export(c *gin.Context) {
	file, err := h.exporter.ExportProgress(c.Request.Context(), scopeFromContext(c), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}
