package models

import "time"

// ContentKind names one of the independently released catalog entity types.
type ContentKind string

// Releasable catalog kinds, swept in this order.
const (
	ContentKindModule    ContentKind = "MODULE"
	ContentKindUnit      ContentKind = "UNIT"
	ContentKindMicroTask ContentKind = "MICRO_TASK"
)

// ContentKinds lists every kind the release sweep visits.
var ContentKinds = []ContentKind{ContentKindModule, ContentKindUnit, ContentKindMicroTask}

// Module is a time-released block of units inside a cohort.
type Module struct {
	ID                string     `db:"id" json:"id"`
	CohortID          string     `db:"cohort_id" json:"cohort_id"`
	Ordinal           int        `db:"ordinal" json:"ordinal"`
	Title             string     `db:"title" json:"title"`
	ReleaseDate       time.Time  `db:"release_date" json:"release_date"`
	IsReleased        bool       `db:"is_released" json:"is_released"`
	IsActive          bool       `db:"is_active" json:"is_active"`
	ActualReleaseDate *time.Time `db:"actual_release_date" json:"actual_release_date,omitempty"`
}

// Unit is a gradable assignment belonging to a module.
type Unit struct {
	ID                string     `db:"id" json:"id"`
	ModuleID          string     `db:"module_id" json:"module_id"`
	CohortID          string     `db:"cohort_id" json:"cohort_id"`
	Ordinal           int        `db:"ordinal" json:"ordinal"`
	Title             string     `db:"title" json:"title"`
	ReleaseDate       time.Time  `db:"release_date" json:"release_date"`
	IsReleased        bool       `db:"is_released" json:"is_released"`
	Deadline          *time.Time `db:"deadline" json:"deadline,omitempty"`
	Points            int        `db:"points" json:"points"`
	BonusPoints       int        `db:"bonus_points" json:"bonus_points"`
	Content           string     `db:"content" json:"content"`
	ActualReleaseDate *time.Time `db:"actual_release_date" json:"actual_release_date,omitempty"`

	ModuleOrdinal  int  `db:"module_ordinal" json:"-"`
	ModuleReleased bool `db:"module_released" json:"-"`
	ModuleActive   bool `db:"module_active" json:"-"`
}

// Available reports whether the unit and its parent module are both open.
func (u Unit) Available() bool {
	return u.IsReleased && u.ModuleReleased && u.ModuleActive
}

// MicroTask is an ungraded or lightly reviewed prerequisite activity for a unit.
type MicroTask struct {
	ID                string     `db:"id" json:"id"`
	UnitID            string     `db:"unit_id" json:"unit_id"`
	SectionID         string     `db:"section_id" json:"section_id"`
	CohortID          string     `db:"cohort_id" json:"cohort_id"`
	Title             string     `db:"title" json:"title"`
	ReleaseDate       time.Time  `db:"release_date" json:"release_date"`
	IsReleased        bool       `db:"is_released" json:"is_released"`
	ActualReleaseDate *time.Time `db:"actual_release_date" json:"actual_release_date,omitempty"`
}

// ReleaseCandidate is the minimal projection the release sweep works on.
type ReleaseCandidate struct {
	ID                string      `db:"id" json:"id"`
	Kind              ContentKind `db:"-" json:"kind"`
	CohortID          string      `db:"cohort_id" json:"cohort_id"`
	Title             string      `db:"title" json:"title"`
	ReleaseDate       time.Time   `db:"release_date" json:"release_date"`
	IsReleased        bool        `db:"is_released" json:"is_released"`
	ActualReleaseDate *time.Time  `db:"actual_release_date" json:"actual_release_date,omitempty"`
}
