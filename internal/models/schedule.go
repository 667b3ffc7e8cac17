package models

import "time"

// EffectiveOccurrence is one merged calendar entry: the base pattern with
// any applicable deviation already applied. OriginalDate is the base
// occurrence the entry derives from; Date and StartTime are where the
// lesson actually happens.
type EffectiveOccurrence struct {
	AgreementID     string    `json:"agreement_id"`
	TeacherID       string    `json:"teacher_id"`
	StudentID       string    `json:"student_id"`
	OriginalDate    time.Time `json:"original_date"`
	Date            time.Time `json:"date"`
	StartTime       string    `json:"start_time"`
	DurationMinutes int       `json:"duration_minutes"`
	Cancelled       bool      `json:"cancelled"`
	Moved           bool      `json:"moved"`
	DeviationID     *string   `json:"deviation_id,omitempty"`
}
