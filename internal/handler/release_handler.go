package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/curriculum-gate-api/internal/dto"
	"github.com/noah-isme/curriculum-gate-api/pkg/response"
)

type releaseSweeper interface {
	RunOnce(ctx context.Context) (*dto.SweepReport, error)
}

// ReleaseHandler lets admins trigger a release sweep without waiting for the schedule.
type ReleaseHandler struct {
	sweeper releaseSweeper
}

// NewReleaseHandler builds a new handler.
func NewReleaseHandler(sweeper releaseSweeper) *ReleaseHandler {
	return &ReleaseHandler{sweeper: sweeper}
}

// Sweep godoc
// @Summary Run the content release sweep now
// @Tags Releases
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/releases/sweep [post]
func (h *ReleaseHandler) Sweep(c *gin.Context) {
	report, err := h.sweeper.RunOnce(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}
