package service

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/curriculum-gate-api/internal/models"
	appErrors "github.com/noah-isme/curriculum-gate-api/pkg/errors"
	"github.com/noah-isme/curriculum-gate-api/pkg/storage"
)

type attachmentFixture struct {
	svc    *AttachmentService
	store  *submissionStoreStub
	signer *storage.SignedURLSigner
	now    time.Time
}

func newAttachmentFixture(t *testing.T) *attachmentFixture {
	t.Helper()
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	_, err = files.Save("cohort-a/learner-1/essay.pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)

	fixture := &attachmentFixture{store: newSubmissionStoreStub(), now: fixtureNow}
	fixture.signer = storage.NewSignedURLSigner("attachment-secret", 10*time.Minute).WithClock(func() time.Time { return fixture.now })

	ref := "cohort-a/learner-1/essay.pdf"
	missing := "cohort-a/learner-2/missing.pdf"
	foreign := "cohort-a/learner-1/essay.pdf"
	fixture.store.put(models.Submission{ID: "with-file", LearnerID: "learner-1", CohortID: "cohort-a", TargetType: models.TargetUnit, TargetID: "unit-1", Status: models.SubmissionStatusPending, AttachmentRef: &ref})
	fixture.store.put(models.Submission{ID: "no-file", LearnerID: "learner-1", CohortID: "cohort-a", TargetType: models.TargetMicroTask, TargetID: "task-1", Status: models.SubmissionStatusPending})
	fixture.store.put(models.Submission{ID: "lost-file", LearnerID: "learner-2", CohortID: "cohort-a", TargetType: models.TargetUnit, TargetID: "unit-1", Status: models.SubmissionStatusPending, AttachmentRef: &missing})
	fixture.store.put(models.Submission{ID: "foreign-file", LearnerID: "learner-x", CohortID: "cohort-b", TargetType: models.TargetUnit, TargetID: "unit-b", Status: models.SubmissionStatusPending, AttachmentRef: &foreign})

	fixture.svc = NewAttachmentService(fixture.store, files, fixture.signer, "/api/v1/", nil)
	return fixture
}

func tokenFromLink(t *testing.T, link string) string {
	t.Helper()
	parsed, err := url.Parse(link)
	require.NoError(t, err)
	return parsed.Query().Get("token")
}

func TestAttachmentLinkAndRedeem(t *testing.T) {
	f := newAttachmentFixture(t)
	ctx := context.Background()

	link, err := f.svc.Link(ctx, learnerScope("learner-1", "cohort-a"), "with-file")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(link.URL, "/api/v1/attachments/download?token="))
	assert.Equal(t, fixtureNow.Add(10*time.Minute), link.ExpiresAt)

	file, err := f.svc.Redeem(ctx, tokenFromLink(t, link.URL))
	require.NoError(t, err)
	assert.Equal(t, "essay.pdf", file.Filename)
	assert.True(t, strings.HasSuffix(file.Path, "essay.pdf"))
}

func TestAttachmentLinkScopeAndMissingFiles(t *testing.T) {
	f := newAttachmentFixture(t)
	ctx := context.Background()

	_, err := f.svc.Link(ctx, learnerScope("learner-2", "cohort-a"), "with-file")
	assert.ErrorIs(t, err, appErrors.ErrNotFound, "another learner's submission is invisible")

	_, err = f.svc.Link(ctx, reviewerScope("cohort-b"), "with-file")
	assert.ErrorIs(t, err, appErrors.ErrCohortMismatch)

	_, err = f.svc.Link(ctx, reviewerScope("cohort-a"), "no-file")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = f.svc.Link(ctx, reviewerScope("cohort-a"), "lost-file")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = f.svc.Link(ctx, reviewerScope("cohort-a"), "nope")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestAttachmentRedeemRejectsBadTokens(t *testing.T) {
	f := newAttachmentFixture(t)
	ctx := context.Background()

	_, err := f.svc.Redeem(ctx, "garbage")
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	link, err := f.svc.Link(ctx, reviewerScope("cohort-a"), "with-file")
	require.NoError(t, err)
	token := tokenFromLink(t, link.URL)

	f.now = fixtureNow.Add(11 * time.Minute)
	_, err = f.svc.Redeem(ctx, token)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestAttachmentRedeemRequiresCurrentRef(t *testing.T) {
	f := newAttachmentFixture(t)
	token, _, err := f.signer.Generate("with-file", "cohort-a/learner-1/other.pdf")
	require.NoError(t, err)

	_, err = f.svc.Redeem(context.Background(), token)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestAttachmentRefusesFilesOfOtherLearners(t *testing.T) {
	f := newAttachmentFixture(t)
	ctx := context.Background()

	_, err := f.svc.Link(ctx, learnerScope("learner-x", "cohort-b"), "foreign-file")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	token, _, err := f.signer.Generate("foreign-file", "cohort-a/learner-1/essay.pdf")
	require.NoError(t, err)
	_, err = f.svc.Redeem(ctx, token)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}
