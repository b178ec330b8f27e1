package models

import "time"

// GateState is the computed unlock state of a unit for one learner.
// REJECTED is reported while a rejected answer waits for a reviewer to grant
// resubmission; clients should treat it as blocking, like SUBMITTED.
type GateState string

const (
	GateLocked               GateState = "LOCKED"
	GatePrerequisitesPending GateState = "PREREQUISITES_PENDING"
	GateAvailable            GateState = "AVAILABLE"
	GateSubmitted            GateState = "SUBMITTED"
	GateRejected             GateState = "REJECTED"
	GateAwaitingResubmission GateState = "AWAITING_RESUBMISSION"
	GateCompleted            GateState = "COMPLETED"
)

// UnitGate is the evaluated gate plus the prerequisite tally behind it.
type UnitGate struct {
	UnitID           string    `json:"unit_id"`
	State            GateState `json:"state"`
	RequiredTasks    int       `json:"required_micro_tasks"`
	SatisfiedTasks   int       `json:"satisfied_micro_tasks"`
	ActiveSubmission *string   `json:"active_submission_id,omitempty"`
}

// MicroTaskView is a released micro-task with the learner's check-in status.
type MicroTaskView struct {
	ID          string    `json:"id"`
	SectionID   string    `json:"section_id"`
	Title       string    `json:"title"`
	ReleaseDate time.Time `json:"release_date"`
	Submitted   bool      `json:"submitted"`
}

// UnitView is a released unit with its gate embedded.
type UnitView struct {
	ID          string          `json:"id"`
	Ordinal     int             `json:"ordinal"`
	Title       string          `json:"title"`
	Content     string          `json:"content"`
	Deadline    *time.Time      `json:"deadline,omitempty"`
	Points      int             `json:"points"`
	BonusPoints int             `json:"bonus_points"`
	Gate        *UnitGate       `json:"gate,omitempty"`
	MicroTasks  []MicroTaskView `json:"micro_tasks"`
}

// ModuleView is a released module and its released units.
type ModuleView struct {
	ID      string     `json:"id"`
	Ordinal int        `json:"ordinal"`
	Title   string     `json:"title"`
	Units   []UnitView `json:"units"`
}
