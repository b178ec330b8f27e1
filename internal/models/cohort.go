package models

import "time"

// Cohort groups learners who share one content catalog and timeline.
type Cohort struct {
	ID        string     `db:"id" json:"id"`
	Name      string     `db:"name" json:"name"`
	Number    int        `db:"number" json:"number"`
	IsActive  bool       `db:"is_active" json:"is_active"`
	StartsAt  *time.Time `db:"starts_at" json:"starts_at,omitempty"`
	EndsAt    *time.Time `db:"ends_at" json:"ends_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// MembershipStatus represents the lifecycle of a learner inside a cohort.
type MembershipStatus string

// Possible membership statuses.
const (
	MembershipStatusEnrolled  MembershipStatus = "ENROLLED"
	MembershipStatusGraduated MembershipStatus = "GRADUATED"
	MembershipStatusRemoved   MembershipStatus = "REMOVED"
	MembershipStatusSuspended MembershipStatus = "SUSPENDED"
)

// Valid reports whether s is a known membership status.
func (s MembershipStatus) Valid() bool {
	switch s {
	case MembershipStatusEnrolled, MembershipStatusGraduated, MembershipStatusRemoved, MembershipStatusSuspended:
		return true
	}
	return false
}

// Membership links a learner to a cohort. Status changes are recorded in place with
// their timestamp and actor; rows are never deleted.
type Membership struct {
	ID              string           `db:"id" json:"id"`
	LearnerID       string           `db:"learner_id" json:"learner_id"`
	CohortID        string           `db:"cohort_id" json:"cohort_id"`
	Status          MembershipStatus `db:"status" json:"status"`
	StatusChangedAt time.Time        `db:"status_changed_at" json:"status_changed_at"`
	StatusChangedBy string           `db:"status_changed_by" json:"status_changed_by"`
	CreatedAt       time.Time        `db:"created_at" json:"created_at"`
}

// ActiveMembership is the enrolled membership together with its cohort.
type ActiveMembership struct {
	Membership
	CohortName   string `db:"cohort_name" json:"cohort_name"`
	CohortActive bool   `db:"cohort_active" json:"cohort_active"`
}
