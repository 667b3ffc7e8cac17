package models

import "time"

// SlotClassification summarises how free a prospective weekly slot is
// against a teacher's existing effective schedule.
type SlotClassification string

const (
	SlotFree     SlotClassification = "free"
	SlotOccupied SlotClassification = "occupied"
	SlotPartial  SlotClassification = "partial"
)

// SlotWeek is the per-occurrence detail behind a classification.
type SlotWeek struct {
	Date     time.Time `json:"date"`
	Occupied bool      `json:"occupied"`
	// ConflictingAgreementIDs lists the existing agreements whose effective
	// occurrences overlap the candidate slot on this date.
	ConflictingAgreementIDs []string `json:"conflicting_agreement_ids,omitempty"`
}

// AvailabilityReport classifies a candidate slot over its whole range.
type AvailabilityReport struct {
	Classification SlotClassification `json:"classification"`
	OccupiedCount  int                `json:"occupied_count"`
	TotalCount     int                `json:"total_count"`
	Weeks          []SlotWeek         `json:"weeks"`

	// FromCache marks a report served from the availability cache. It is
	// reported through response metadata, not the body.
	FromCache bool `json:"-"`
}
