package models

import "time"

// ProgressPointer identifies a module or unit by id and ordinal.
type ProgressPointer struct {
	ID      string `json:"id"`
	Ordinal int    `json:"ordinal"`
	Title   string `json:"title"`
}

// Progress is the derived position of a learner inside their cohort.
type Progress struct {
	LearnerID            string           `json:"learner_id"`
	CohortID             string           `json:"cohort_id"`
	CurrentModule        *ProgressPointer `json:"current_module,omitempty"`
	CurrentUnit          *ProgressPointer `json:"current_unit,omitempty"`
	ApprovedUnits        int              `json:"approved_units"`
	ReleasedUnits        int              `json:"released_units"`
	CompletionPercentage float64          `json:"completion_percentage"`
	ComputedAt           time.Time        `json:"computed_at"`
}
