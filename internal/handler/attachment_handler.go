package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/curriculum-gate-api/internal/dto"
	"github.com/noah-isme/curriculum-gate-api/internal/service"
	appErrors "github.com/noah-isme/curriculum-gate-api/pkg/errors"
	"github.com/noah-isme/curriculum-gate-api/pkg/response"
)

type attachmentService interface {
	Link(ctx context.Context, scope *service.Scope, submissionID string) (*dto.AttachmentLink, error)
	Redeem(ctx context.Context, token string) (*service.AttachmentFile, error)
}

// AttachmentHandler issues and serves signed attachment downloads.
type AttachmentHandler struct {
	service attachmentService
}

// NewAttachmentHandler builds a new handler.
func NewAttachmentHandler(service attachmentService) *AttachmentHandler {
	return &AttachmentHandler{service: service}
}

// Link godoc
// @Summary Signed download link for a submission attachment
// @Tags Attachments
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/attachment-link [get]
func (h *AttachmentHandler) Link(c *gin.Context) {
	link, err := h.service.Link(c.Request.Context(), scopeFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link, nil)
}

// Download godoc
// @Summary Download an attachment with a signed token
// @Tags Attachments
// @Produce octet-stream
// @Param token query string true "Signed token"
// @Success 200 {file} file
// @Router /attachments/download [get]
func (h *AttachmentHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "download token required"))
		return
	}
	file, err := h.service.Redeem(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.FileAttachment(file.Path, file.Filename)
}
