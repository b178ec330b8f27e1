package dto

import (
	"time"

	"github.com/noah-isme/curriculum-gate-api/internal/models"
)

// SubmitAnswerRequest is the graded answer to a unit. AttachmentRef names a stored
// file under "<cohortId>/<learnerId>/" of the submitting learner.
type SubmitAnswerRequest struct {
	Body          string  `json:"body" validate:"required_without=AttachmentRef,max=100000"`
	AttachmentRef *string `json:"attachmentRef" validate:"omitempty,max=512"`
}

// SubmitMicroTaskRequest is a micro-task check-in.
type SubmitMicroTaskRequest struct {
	Body string `json:"body" validate:"max=20000"`
}

// ResubmitRequest carries the replacement answer for a submission awaiting resubmission.
type ResubmitRequest struct {
	Body          string  `json:"body" validate:"required_without=AttachmentRef,max=100000"`
	AttachmentRef *string `json:"attachmentRef" validate:"omitempty,max=512"`
}

// ReviewSubmissionRequest is the reviewer decision.
type ReviewSubmissionRequest struct {
	Grade    models.GradeTier `json:"grade" validate:"required,oneof=TOP MID LOW REJECT"`
	Feedback string           `json:"feedback" validate:"max=20000"`
}

// EnrollLearnerRequest enrolls a learner into the cohort named in the path.
type EnrollLearnerRequest struct {
	LearnerID string `json:"learnerId" validate:"required"`
}

// UpdateMembershipStatusRequest moves a membership to another lifecycle status.
type UpdateMembershipStatusRequest struct {
	Status models.MembershipStatus `json:"status" validate:"required,oneof=ENROLLED GRADUATED REMOVED SUSPENDED"`
}

// SubmissionQuery mirrors the reviewer queue filters.
type SubmissionQuery struct {
	Status     []models.SubmissionStatus
	TargetType models.SubmissionTarget
	LearnerID  string
	Page       int
	PageSize   int
}

// KindSweep tallies what one release sweep did to one content kind.
type KindSweep struct {
	Released   int `json:"released"`
	Unreleased int `json:"unreleased"`
	Notified   int `json:"notified"`
	Failed     int `json:"failed"`
}

// SweepReport summarises a release sweep.
type SweepReport struct {
	StartedAt  time.Time                         `json:"startedAt"`
	FinishedAt time.Time                         `json:"finishedAt"`
	Kinds      map[models.ContentKind]*KindSweep `json:"kinds"`
}

// AttachmentLink is a time-limited download link for a submission attachment.
type AttachmentLink struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}
