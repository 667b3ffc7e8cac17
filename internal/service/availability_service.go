package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/cadenza-app/lesson-api/internal/models"
	"github.com/cadenza-app/lesson-api/internal/recurrence"
	appErrors "github.com/cadenza-app/lesson-api/pkg/errors"
)

type teacherScheduleProvider interface {
	EffectiveScheduleForTeacher(ctx context.Context, teacherID string, from, to time.Time) ([]models.EffectiveOccurrence, error)
}

// CandidateSlot describes a prospective agreement's pattern to be checked
// against a teacher's existing calendar before provisioning it.
type CandidateSlot struct {
	DayOfWeek       int                  `json:"day_of_week" validate:"min=0,max=6"`
	StartTime       string               `json:"start_time" validate:"required"`
	DurationMinutes int                  `json:"duration_minutes" validate:"required,gt=0"`
	Frequency       recurrence.Frequency `json:"frequency" validate:"required"`
	StartDate       time.Time            `json:"start_date" validate:"required"`
	EndDate         *time.Time           `json:"end_date"`
}

// AvailabilityService classifies candidate slots as free, occupied or
// partially occupied against the teacher's effective schedule, deviations
// included.
type AvailabilityService struct {
	schedule     teacherScheduleProvider
	cache        *CacheService
	horizonWeeks int
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewAvailabilityService instantiates AvailabilityService. horizonWeeks
// bounds the check window for open-ended candidates.
func NewAvailabilityService(schedule teacherScheduleProvider, cache *CacheService, horizonWeeks int, validate *validator.Validate, logger *zap.Logger) *AvailabilityService {
	if horizonWeeks <= 0 {
		horizonWeeks = 8
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AvailabilityService{schedule: schedule, cache: cache, horizonWeeks: horizonWeeks, validator: validate, logger: logger}
}

func availabilityCacheKey(teacherID string, c CandidateSlot, from, to time.Time) string {
	end := "open"
	if c.EndDate != nil {
		end = c.EndDate.Format("2006-01-02")
	}
	return fmt.Sprintf("availability:%s:%d:%s:%d:%s:%s:%s:%s",
		teacherID, c.DayOfWeek, c.StartTime, c.DurationMinutes, c.Frequency,
		from.Format("2006-01-02"), to.Format("2006-01-02"), end)
}

// Check classifies the candidate slot over its recurrence window.
func (s *AvailabilityService) Check(ctx context.Context, teacherID string, candidate CandidateSlot) (*models.AvailabilityReport, error) {
	if err := s.validator.Struct(candidate); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid candidate slot")
	}
	if !candidate.Frequency.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid frequency")
	}
	candidateStart, err := recurrence.ClockMinutes(candidate.StartTime)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid start time")
	}

	from := recurrence.DateOnly(candidate.StartDate)
	to := from.AddDate(0, 0, 7*s.horizonWeeks-1)
	if candidate.EndDate != nil {
		to = recurrence.DateOnly(*candidate.EndDate)
	}
	if to.Before(from) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end date precedes start date")
	}

	key := availabilityCacheKey(teacherID, candidate, from, to)
	if s.cache.Enabled() {
		var cached models.AvailabilityReport
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			cached.FromCache = true
			return &cached, nil
		}
	}

	pattern := recurrence.Pattern{
		Frequency: candidate.Frequency,
		Weekday:   time.Weekday(candidate.DayOfWeek),
		StartDate: from,
		EndDate:   candidate.EndDate,
	}
	candidateDates := recurrence.Occurrences(pattern, from, to)

	existing, err := s.schedule.EffectiveScheduleForTeacher(ctx, teacherID, from, to)
	if err != nil {
		return nil, err
	}
	byDate := make(map[time.Time][]models.EffectiveOccurrence)
	for _, entry := range existing {
		if entry.Cancelled {
			continue
		}
		byDate[recurrence.DateOnly(entry.Date)] = append(byDate[recurrence.DateOnly(entry.Date)], entry)
	}

	report := &models.AvailabilityReport{TotalCount: len(candidateDates)}
	for _, date := range candidateDates {
		week := models.SlotWeek{Date: date}
		for _, entry := range byDate[date] {
			existingStart, err := recurrence.ClockMinutes(entry.StartTime)
			if err != nil {
				s.logger.Warn("skipping occurrence with malformed start time",
					zap.String("agreement_id", entry.AgreementID), zap.String("start_time", entry.StartTime))
				continue
			}
			if recurrence.Overlaps(candidateStart, candidate.DurationMinutes, existingStart, entry.DurationMinutes) {
				week.Occupied = true
				week.ConflictingAgreementIDs = append(week.ConflictingAgreementIDs, entry.AgreementID)
			}
		}
		if week.Occupied {
			report.OccupiedCount++
		}
		report.Weeks = append(report.Weeks, week)
	}

	switch {
	case report.OccupiedCount == 0:
		report.Classification = models.SlotFree
	case report.OccupiedCount == report.TotalCount:
		report.Classification = models.SlotOccupied
	default:
		report.Classification = models.SlotPartial
	}

	if s.cache.Enabled() {
		if err := s.cache.Set(ctx, key, report, 0); err != nil {
			s.logger.Warn("failed to cache availability report", zap.Error(err))
		}
	}
	return report, nil
}
