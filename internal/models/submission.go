package models

import "time"

// SubmissionStatus captures the review workflow states of a submission.
type SubmissionStatus string

const (
	SubmissionStatusPending              SubmissionStatus = "PENDING"
	SubmissionStatusApproved             SubmissionStatus = "APPROVED"
	SubmissionStatusRejected             SubmissionStatus = "REJECTED"
	SubmissionStatusAwaitingResubmission SubmissionStatus = "AWAITING_RESUBMISSION"
)

// Valid reports whether s is a known status.
func (s SubmissionStatus) Valid() bool {
	switch s {
	case SubmissionStatusPending, SubmissionStatusApproved, SubmissionStatusRejected, SubmissionStatusAwaitingResubmission:
		return true
	}
	return false
}

// GradeTier is the reviewer's verdict. Every tier except REJECT approves.
type GradeTier string

const (
	GradeTop    GradeTier = "TOP"
	GradeMid    GradeTier = "MID"
	GradeLow    GradeTier = "LOW"
	GradeReject GradeTier = "REJECT"
)

// Valid reports whether g is a known grade tier.
func (g GradeTier) Valid() bool {
	switch g {
	case GradeTop, GradeMid, GradeLow, GradeReject:
		return true
	}
	return false
}

// Outcome maps the grade tier to the resulting submission status.
func (g GradeTier) Outcome() SubmissionStatus {
	if g == GradeReject {
		return SubmissionStatusRejected
	}
	return SubmissionStatusApproved
}

// SubmissionTarget distinguishes graded unit answers from micro-task check-ins.
type SubmissionTarget string

const (
	TargetUnit      SubmissionTarget = "UNIT"
	TargetMicroTask SubmissionTarget = "MICRO_TASK"
)

// Submission is one learner attempt against a unit or micro-task. Resubmissions insert
// a new row and link the prior one through SupersededBy; the prior row keeps its body
// and review fields.
type Submission struct {
	ID                      string           `db:"id" json:"id"`
	LearnerID               string           `db:"learner_id" json:"learner_id"`
	CohortID                string           `db:"cohort_id" json:"cohort_id"`
	TargetType              SubmissionTarget `db:"target_type" json:"target_type"`
	TargetID                string           `db:"target_id" json:"target_id"`
	Body                    string           `db:"body" json:"body"`
	AttachmentRef           *string          `db:"attachment_ref" json:"attachment_ref,omitempty"`
	Status                  SubmissionStatus `db:"status" json:"status"`
	Grade                   *GradeTier       `db:"grade" json:"grade,omitempty"`
	Feedback                *string          `db:"feedback" json:"feedback,omitempty"`
	SubmittedAt             time.Time        `db:"submitted_at" json:"submitted_at"`
	ReviewedAt              *time.Time       `db:"reviewed_at" json:"reviewed_at,omitempty"`
	ReviewedBy              *string          `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ResubmissionRequestedAt *time.Time       `db:"resubmission_requested_at" json:"resubmission_requested_at,omitempty"`
	ResubmissionRequestedBy *string          `db:"resubmission_requested_by" json:"resubmission_requested_by,omitempty"`
	SupersedesID            *string          `db:"supersedes_id" json:"supersedes_id,omitempty"`
	SupersededBy            *string          `db:"superseded_by" json:"superseded_by,omitempty"`
	SupersededAt            *time.Time       `db:"superseded_at" json:"superseded_at,omitempty"`
}

// Active reports whether the submission is the head of its chain.
func (s Submission) Active() bool {
	return s.SupersededBy == nil
}

// SubmissionView adds read-only projections kept for consumers of the old boolean flags.
type SubmissionView struct {
	Submission
	IsGraded   bool `json:"is_graded"`
	IsApproved bool `json:"is_approved"`
}

// View builds the read-only projection.
func (s Submission) View() SubmissionView {
	return SubmissionView{
		Submission: s,
		IsGraded:   s.ReviewedAt != nil,
		IsApproved: s.Status == SubmissionStatusApproved,
	}
}

// SubmissionFilter constrains reviewer queue listings.
type SubmissionFilter struct {
	CohortID   string
	Status     []SubmissionStatus
	TargetType SubmissionTarget
	LearnerID  string
	Limit      int
	Offset     int
}
