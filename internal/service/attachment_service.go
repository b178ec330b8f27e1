package service

import (
	"context"
	"database/sql"
	"errors"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/curriculum-gate-api/internal/dto"
	"github.com/noah-isme/curriculum-gate-api/internal/models"
	appErrors "github.com/noah-isme/curriculum-gate-api/pkg/errors"
	"github.com/noah-isme/curriculum-gate-api/pkg/storage"
)

type submissionFinder interface {
	FindByID(ctx context.Context, id string) (*models.Submission, error)
}

type attachmentResolver interface {
	Resolve(ref string) (string, error)
}

type tokenSigner interface {
	Generate(submissionID, ref string) (string, time.Time, error)
	Parse(token string) (submissionID, ref string, expiresAt time.Time, err error)
}

// AttachmentFile is a resolved attachment ready to stream.
type AttachmentFile struct {
	Path     string
	Filename string
}

// AttachmentService issues and redeems signed download links for submission attachments.
type AttachmentService struct {
	submissions submissionFinder
	store       attachmentResolver
	signer      tokenSigner
	apiPrefix   string
	logger      *zap.Logger
}

// NewAttachmentService constructs the service.
func NewAttachmentService(submissions submissionFinder, store attachmentResolver, signer tokenSigner, apiPrefix string, logger *zap.Logger) *AttachmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	prefix := strings.TrimRight(apiPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	return &AttachmentService{submissions: submissions, store: store, signer: signer, apiPrefix: prefix, logger: logger}
}

// Link returns a signed download URL for the submission's attachment.
func (s *AttachmentService) Link(ctx context.Context, scope *Scope, submissionID string) (*dto.AttachmentLink, error) {
	submission, err := s.load(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if err := checkSubmissionScope(scope, submission); err != nil {
		return nil, err
	}
	if submission.AttachmentRef == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "submission has no attachment")
	}
	if err := s.checkOwner(submission, *submission.AttachmentRef); err != nil {
		return nil, err
	}
	if _, err := s.resolve(*submission.AttachmentRef); err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(submission.ID, *submission.AttachmentRef)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign attachment link")
	}
	return &dto.AttachmentLink{
		URL:       s.apiPrefix + "/attachments/download?token=" + url.QueryEscape(token),
		ExpiresAt: expiresAt,
	}, nil
}

// Redeem validates a download token and resolves the file it grants.
func (s *AttachmentService) Redeem(ctx context.Context, token string) (*AttachmentFile, error) {
	submissionID, ref, _, err := s.signer.Parse(token)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "download link expired")
		}
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid download link")
	}

	submission, err := s.load(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if submission.AttachmentRef == nil || *submission.AttachmentRef != ref {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "attachment not found")
	}
	if err := s.checkOwner(submission, ref); err != nil {
		return nil, err
	}
	path, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	return &AttachmentFile{Path: path, Filename: filepath.Base(path)}, nil
}

func (s *AttachmentService) load(ctx context.Context, submissionID string) (*models.Submission, error) {
	submission, err := s.submissions.FindByID(ctx, submissionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}
	return submission, nil
}

// checkOwner refuses refs outside the submitter's directory. Such rows predate ref
// validation and are treated as having no file.
func (s *AttachmentService) checkOwner(submission *models.Submission, ref string) error {
	if _, ok := storage.OwnedRef(ref, submission.CohortID, submission.LearnerID); !ok {
		s.logger.Warn("attachment ref outside submitter directory",
			zap.String("submission_id", submission.ID), zap.String("ref", ref))
		return appErrors.Clone(appErrors.ErrNotFound, "attachment not found")
	}
	return nil
}

func (s *AttachmentService) resolve(ref string) (string, error) {
	path, err := s.store.Resolve(ref)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidRef) {
			return "", appErrors.Clone(appErrors.ErrNotFound, "attachment not found")
		}
		s.logger.Error("failed to resolve attachment", zap.String("ref", ref), zap.Error(err))
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve attachment")
	}
	return path, nil
}
