package models

import (
	"time"

	"github.com/cadenza-app/lesson-api/internal/recurrence"
)

// Agreement is the recurring lesson template between one teacher and one
// student: which weekday, what time, how often, and for how long the
// arrangement runs. Dates are date-only values stored at UTC midnight;
// StartTime is a wall-clock "HH:MM" string.
type Agreement struct {
	ID              string               `db:"id" json:"id"`
	TeacherID       string               `db:"teacher_id" json:"teacher_id"`
	StudentID       string               `db:"student_id" json:"student_id"`
	LessonTypeID    string               `db:"lesson_type_id" json:"lesson_type_id"`
	DayOfWeek       int                  `db:"day_of_week" json:"day_of_week"`
	StartTime       string               `db:"start_time" json:"start_time"`
	DurationMinutes int                  `db:"duration_minutes" json:"duration_minutes"`
	Frequency       recurrence.Frequency `db:"frequency" json:"frequency"`
	StartDate       time.Time            `db:"start_date" json:"start_date"`
	EndDate         *time.Time           `db:"end_date" json:"end_date,omitempty"`
	Active          bool                 `db:"active" json:"active"`
	CreatedAt       time.Time            `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time            `db:"updated_at" json:"updated_at"`
}

// Pattern returns the agreement's recurrence pattern. For MONTHLY
// agreements the generator anchors on StartDate's day-of-month and
// DayOfWeek is display-only.
func (a *Agreement) Pattern() recurrence.Pattern {
	return recurrence.Pattern{
		Frequency: a.Frequency,
		Weekday:   time.Weekday(a.DayOfWeek),
		StartDate: recurrence.DateOnly(a.StartDate),
		EndDate:   a.EndDate,
	}
}

// AgreementFilter describes query params for listing agreements.
type AgreementFilter struct {
	TeacherID string
	StudentID string
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
