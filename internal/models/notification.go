package models

import "time"

// NotificationKind enumerates events emitted to the notifier.
type NotificationKind string

const (
	NotifyContentReleased       NotificationKind = "ContentReleased"
	NotifySubmissionReceived    NotificationKind = "SubmissionReceived"
	NotifySubmissionReviewed    NotificationKind = "SubmissionReviewed"
	NotifyResubmissionRequested NotificationKind = "ResubmissionRequested"
	NotifyResubmissionApproved  NotificationKind = "ResubmissionApproved"
)

// RecipientType says whether a notification targets one learner or a whole cohort.
type RecipientType string

const (
	RecipientLearner RecipientType = "LEARNER"
	RecipientCohort  RecipientType = "COHORT"
)

// Recipient addresses a notification.
type Recipient struct {
	Type RecipientType `json:"type"`
	ID   string        `json:"id"`
}

// LearnerRecipient addresses a single learner.
func LearnerRecipient(id string) Recipient {
	return Recipient{Type: RecipientLearner, ID: id}
}

// CohortRecipient addresses every enrolled learner of a cohort.
func CohortRecipient(id string) Recipient {
	return Recipient{Type: RecipientCohort, ID: id}
}

// Notification is one event handed to the notifier.
type Notification struct {
	ID         string                 `json:"id"`
	Recipient  Recipient              `json:"recipient"`
	Kind       NotificationKind       `json:"kind"`
	Payload    map[string]interface{} `json:"payload"`
	OccurredAt time.Time              `json:"occurred_at"`
}
