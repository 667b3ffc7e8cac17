package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/cadenza-app/lesson-api/internal/models"
	"github.com/cadenza-app/lesson-api/internal/recurrence"
	appErrors "github.com/cadenza-app/lesson-api/pkg/errors"
)

type scheduleAgreementRepository interface {
	FindByID(ctx context.Context, id string) (*models.Agreement, error)
	ListActiveByTeacher(ctx context.Context, teacherID string) ([]models.Agreement, error)
}

type scheduleDeviationRepository interface {
	ListForRange(ctx context.Context, agreementIDs []string, from, to time.Time) ([]models.Deviation, error)
}

// ScheduleService merges base-pattern occurrences with stored deviations
// into the effective calendar. It computes; it never writes.
type ScheduleService struct {
	agreements scheduleAgreementRepository
	deviations scheduleDeviationRepository
	maxWindow  time.Duration
	logger     *zap.Logger
}

// NewScheduleService instantiates ScheduleService. maxWindow bounds the
// query range; zero falls back to roughly a year.
func NewScheduleService(agreements scheduleAgreementRepository, deviations scheduleDeviationRepository, maxWindow time.Duration, logger *zap.Logger) *ScheduleService {
	if maxWindow <= 0 {
		maxWindow = 370 * 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleService{agreements: agreements, deviations: deviations, maxWindow: maxWindow, logger: logger}
}

func (s *ScheduleService) validateWindow(from, to time.Time) (time.Time, time.Time, error) {
	from = recurrence.DateOnly(from)
	to = recurrence.DateOnly(to)
	if to.Before(from) {
		return from, to, appErrors.Clone(appErrors.ErrValidation, "range end precedes range start")
	}
	if to.Sub(from) > s.maxWindow {
		return from, to, appErrors.Clone(appErrors.ErrValidation, "query range too large")
	}
	return from, to, nil
}

// EffectiveScheduleForAgreement returns the merged occurrences of one
// agreement inside [from, to].
func (s *ScheduleService) EffectiveScheduleForAgreement(ctx context.Context, agreementID string, from, to time.Time) ([]models.EffectiveOccurrence, error) {
	from, to, err := s.validateWindow(from, to)
	if err != nil {
		return nil, err
	}
	agreement, err := s.agreements.FindByID(ctx, agreementID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "agreement not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load agreement")
	}
	return s.merge(ctx, []models.Agreement{*agreement}, from, to)
}

// EffectiveScheduleForTeacher returns the merged occurrences of all active
// agreements of a teacher inside [from, to].
func (s *ScheduleService) EffectiveScheduleForTeacher(ctx context.Context, teacherID string, from, to time.Time) ([]models.EffectiveOccurrence, error) {
	from, to, err := s.validateWindow(from, to)
	if err != nil {
		return nil, err
	}
	agreements, err := s.agreements.ListActiveByTeacher(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teacher agreements")
	}
	return s.merge(ctx, agreements, from, to)
}

func (s *ScheduleService) merge(ctx context.Context, agreements []models.Agreement, from, to time.Time) ([]models.EffectiveOccurrence, error) {
	if len(agreements) == 0 {
		return []models.EffectiveOccurrence{}, nil
	}

	ids := make([]string, len(agreements))
	for i := range agreements {
		ids[i] = agreements[i].ID
	}
	deviations, err := s.deviations.ListForRange(ctx, ids, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list deviations")
	}

	singles := make(map[string]map[time.Time]*models.Deviation)
	recurrings := make(map[string][]*models.Deviation)
	for i := range deviations {
		d := &deviations[i]
		d.OriginalDate = recurrence.DateOnly(d.OriginalDate)
		d.ActualDate = recurrence.DateOnly(d.ActualDate)
		if d.RecurringEndDate != nil {
			end := recurrence.DateOnly(*d.RecurringEndDate)
			d.RecurringEndDate = &end
		}
		if d.Recurring {
			recurrings[d.AgreementID] = append(recurrings[d.AgreementID], d)
			continue
		}
		if singles[d.AgreementID] == nil {
			singles[d.AgreementID] = make(map[time.Time]*models.Deviation)
		}
		singles[d.AgreementID][d.OriginalDate] = d
	}

	var entries []models.EffectiveOccurrence
	for i := range agreements {
		agreement := &agreements[i]
		for _, date := range recurrence.Occurrences(agreement.Pattern(), from, to) {
			entries = append(entries, resolveOccurrence(agreement, date, singles[agreement.ID], recurrings[agreement.ID]))
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].Date.Equal(entries[j].Date) {
			return entries[i].Date.Before(entries[j].Date)
		}
		if entries[i].StartTime != entries[j].StartTime {
			return entries[i].StartTime < entries[j].StartTime
		}
		return entries[i].AgreementID < entries[j].AgreementID
	})
	return entries, nil
}

// resolveOccurrence applies the precedence rule for one base occurrence:
// a row anchored exactly at the date wins outright, otherwise the
// latest-starting recurring row covering the date applies, otherwise the
// base pattern stands.
func resolveOccurrence(agreement *models.Agreement, date time.Time, singles map[time.Time]*models.Deviation, recurrings []*models.Deviation) models.EffectiveOccurrence {
	entry := models.EffectiveOccurrence{
		AgreementID:     agreement.ID,
		TeacherID:       agreement.TeacherID,
		StudentID:       agreement.StudentID,
		OriginalDate:    date,
		Date:            date,
		StartTime:       agreement.StartTime,
		DurationMinutes: agreement.DurationMinutes,
	}

	if single := singles[date]; single != nil {
		applyDeviation(&entry, single, single.ActualDate, single.ActualStartTime)
		return entry
	}

	var applicable *models.Deviation
	for _, r := range recurrings {
		if !r.Covers(date) {
			continue
		}
		if applicable == nil || r.OriginalDate.After(applicable.OriginalDate) {
			applicable = r
		}
	}
	if applicable != nil {
		// The recurring row moves every covered occurrence by the same
		// relative day offset as its first week.
		offset := recurrence.DaysBetween(applicable.OriginalDate, applicable.ActualDate)
		applyDeviation(&entry, applicable, date.AddDate(0, 0, offset), applicable.ActualStartTime)
	}
	return entry
}

func applyDeviation(entry *models.EffectiveOccurrence, d *models.Deviation, actualDate time.Time, actualStart string) {
	id := d.ID
	entry.DeviationID = &id
	entry.Cancelled = d.Cancelled
	entry.Date = actualDate
	entry.StartTime = actualStart
	entry.Moved = !actualDate.Equal(entry.OriginalDate) || actualStart != d.OriginalStartTime
}
