package models

import (
	"time"

	"github.com/cadenza-app/lesson-api/internal/recurrence"
)

// Deviation is a stored exception to one occurrence of an agreement, or to
// a forward-looking span of occurrences when Recurring is set. At most one
// row may exist per (agreement_id, original_date); the database enforces
// this with a unique index.
type Deviation struct {
	ID                string     `db:"id" json:"id"`
	AgreementID       string     `db:"agreement_id" json:"agreement_id"`
	OriginalDate      time.Time  `db:"original_date" json:"original_date"`
	OriginalStartTime string     `db:"original_start_time" json:"original_start_time"`
	ActualDate        time.Time  `db:"actual_date" json:"actual_date"`
	ActualStartTime   string     `db:"actual_start_time" json:"actual_start_time"`
	Cancelled         bool       `db:"cancelled" json:"cancelled"`
	Recurring         bool       `db:"recurring" json:"recurring"`
	RecurringEndDate  *time.Time `db:"recurring_end_date" json:"recurring_end_date,omitempty"`
	CreatedBy         string     `db:"created_by" json:"created_by"`
	UpdatedBy         string     `db:"updated_by" json:"updated_by"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// Deviates reports whether the row actually differs from the base pattern.
// A row that does not deviate is only legal as an override row suppressing
// a covering recurring deviation for a single week.
func (d *Deviation) Deviates() bool {
	return d.Cancelled ||
		!d.ActualDate.Equal(d.OriginalDate) ||
		d.ActualStartTime != d.OriginalStartTime
}

// IsOverride reports whether the row exists solely to neutralise a covering
// recurring deviation: non-recurring, not cancelled, actual equals original.
func (d *Deviation) IsOverride() bool {
	return !d.Recurring && !d.Deviates()
}

// Covers reports whether a recurring row speaks for date: the date falls
// inside the [original_date, recurring_end_date] window and on the anchor's
// weekly cadence. The caller is still responsible for checking that date is
// an occurrence of the owning agreement.
func (d *Deviation) Covers(date time.Time) bool {
	if !d.Recurring || date.Before(d.OriginalDate) {
		return false
	}
	if !recurrence.OnCadence(d.OriginalDate, date) {
		return false
	}
	return d.RecurringEndDate == nil || !date.After(*d.RecurringEndDate)
}

// RestoreScope selects how much of an agreement's future a restore touches.
type RestoreScope string

const (
	ScopeOnlyThis      RestoreScope = "only_this"
	ScopeThisAndFuture RestoreScope = "this_and_future"
)

// Valid reports whether the scope is one of the two supported values.
func (s RestoreScope) Valid() bool {
	return s == ScopeOnlyThis || s == ScopeThisAndFuture
}

// RestoreOutcome tags what a restore operation actually did, one variant
// per reachable transition of the resolution state machine.
type RestoreOutcome string

const (
	RestoreNoop             RestoreOutcome = "noop"
	RestoreSingleDeleted    RestoreOutcome = "single_deleted"
	RestoreSingleReplaced   RestoreOutcome = "single_replaced_with_override"
	RestoreRecurringDeleted RestoreOutcome = "recurring_deleted"
	RestoreRecurringShifted RestoreOutcome = "recurring_shifted"
	RestoreRecurringEnded   RestoreOutcome = "recurring_ended"
	RestoreOverrideInserted RestoreOutcome = "override_inserted"
)

// EndOutcome tags the result of ending a recurring deviation from a week.
type EndOutcome string

const (
	EndDeleted EndOutcome = "deleted"
	EndUpdated EndOutcome = "updated"
)
