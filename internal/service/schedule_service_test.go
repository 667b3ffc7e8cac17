package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadenza-app/lesson-api/internal/models"
	"github.com/cadenza-app/lesson-api/internal/recurrence"
	appErrors "github.com/cadenza-app/lesson-api/pkg/errors"
)

func TestEffectiveScheduleBasePattern(t *testing.T) {
	fx := newDeviationFixture(t, weeklyMondayAgreement())

	entries, err := fx.schedule.EffectiveScheduleForAgreement(context.Background(), "agr-1", day(2025, time.September, 1), day(2025, time.September, 29))
	require.NoError(t, err)
	require.Len(t, entries, 5)
	for _, e := range entries {
		assert.Equal(t, time.Monday, e.Date.Weekday())
		assert.Equal(t, "10:00", e.StartTime)
		assert.False(t, e.Moved)
		assert.Nil(t, e.DeviationID)
	}
}

// An exactly anchored single row beats a recurring row covering the same week.
func TestEffectiveSchedulePrecedenceSingleOverRecurring(t *testing.T) {
	fx := newDeviationFixture(t, weeklyMondayAgreement())
	require.NoError(t, fx.store.Insert(context.Background(), &models.Deviation{
		ID:                "dev-cover",
		AgreementID:       "agr-1",
		OriginalDate:      day(2025, time.September, 8),
		OriginalStartTime: "10:00",
		ActualDate:        day(2025, time.September, 10),
		ActualStartTime:   "16:00",
		Recurring:         true,
	}))
	require.NoError(t, fx.store.Insert(context.Background(), &models.Deviation{
		ID:                "dev-single",
		AgreementID:       "agr-1",
		OriginalDate:      day(2025, time.September, 22),
		OriginalStartTime: "10:00",
		ActualDate:        day(2025, time.September, 25),
		ActualStartTime:   "09:00",
	}))

	entries, err := fx.schedule.EffectiveScheduleForAgreement(context.Background(), "agr-1", day(2025, time.September, 8), day(2025, time.September, 29))
	require.NoError(t, err)

	covered := entryFor(t, entries, day(2025, time.September, 15))
	assert.Equal(t, day(2025, time.September, 17), covered.Date)
	assert.Equal(t, "16:00", covered.StartTime)

	single := entryFor(t, entries, day(2025, time.September, 22))
	assert.Equal(t, day(2025, time.September, 25), single.Date)
	assert.Equal(t, "09:00", single.StartTime)
	require.NotNil(t, single.DeviationID)
	assert.Equal(t, "dev-single", *single.DeviationID)
}

// When two recurring rows cover a date, the one starting latest applies.
func TestEffectiveScheduleLatestRecurringWins(t *testing.T) {
	fx := newDeviationFixture(t, weeklyMondayAgreement())
	require.NoError(t, fx.store.Insert(context.Background(), &models.Deviation{
		ID:                "dev-early",
		AgreementID:       "agr-1",
		OriginalDate:      day(2025, time.September, 1),
		OriginalStartTime: "10:00",
		ActualDate:        day(2025, time.September, 3),
		ActualStartTime:   "15:00",
		Recurring:         true,
	}))
	require.NoError(t, fx.store.Insert(context.Background(), &models.Deviation{
		ID:                "dev-late",
		AgreementID:       "agr-1",
		OriginalDate:      day(2025, time.September, 15),
		OriginalStartTime: "10:00",
		ActualDate:        day(2025, time.September, 16),
		ActualStartTime:   "11:00",
		Recurring:         true,
	}))

	entries, err := fx.schedule.EffectiveScheduleForAgreement(context.Background(), "agr-1", day(2025, time.September, 8), day(2025, time.September, 22))
	require.NoError(t, err)

	earlier := entryFor(t, entries, day(2025, time.September, 8))
	assert.Equal(t, "15:00", earlier.StartTime)
	later := entryFor(t, entries, day(2025, time.September, 22))
	assert.Equal(t, "11:00", later.StartTime)
	require.NotNil(t, later.DeviationID)
	assert.Equal(t, "dev-late", *later.DeviationID)
}

// The recurring end date is inclusive: its week still deviates, the next
// one does not.
func TestEffectiveScheduleRecurringEndBoundary(t *testing.T) {
	fx := newDeviationFixture(t, weeklyMondayAgreement())
	end := day(2025, time.September, 15)
	require.NoError(t, fx.store.Insert(context.Background(), &models.Deviation{
		AgreementID:       "agr-1",
		OriginalDate:      day(2025, time.September, 1),
		OriginalStartTime: "10:00",
		ActualDate:        day(2025, time.September, 2),
		ActualStartTime:   "11:00",
		Recurring:         true,
		RecurringEndDate:  &end,
	}))

	entries, err := fx.schedule.EffectiveScheduleForAgreement(context.Background(), "agr-1", day(2025, time.September, 1), day(2025, time.September, 22))
	require.NoError(t, err)
	assert.True(t, entryFor(t, entries, day(2025, time.September, 15)).Moved)
	assert.False(t, entryFor(t, entries, day(2025, time.September, 22)).Moved)
}

func TestEffectiveScheduleCancelledOccurrence(t *testing.T) {
	fx := newDeviationFixture(t, weeklyMondayAgreement())
	require.NoError(t, fx.store.Insert(context.Background(), &models.Deviation{
		AgreementID:       "agr-1",
		OriginalDate:      day(2025, time.September, 15),
		OriginalStartTime: "10:00",
		ActualDate:        day(2025, time.September, 15),
		ActualStartTime:   "10:00",
		Cancelled:         true,
	}))

	entries, err := fx.schedule.EffectiveScheduleForAgreement(context.Background(), "agr-1", day(2025, time.September, 15), day(2025, time.September, 15))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Cancelled)
	assert.False(t, entries[0].Moved)
}

func TestEffectiveScheduleForTeacherMergesAndSorts(t *testing.T) {
	second := weeklyMondayAgreement()
	second.ID = "agr-2"
	second.StudentID = "student-2"
	second.StartTime = "09:00"
	fx := newDeviationFixture(t, weeklyMondayAgreement(), second)

	entries, err := fx.schedule.EffectiveScheduleForTeacher(context.Background(), "teacher-1", day(2025, time.September, 1), day(2025, time.September, 8))
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.Equal(t, "agr-2", entries[0].AgreementID)
	assert.Equal(t, "agr-1", entries[1].AgreementID)
	assert.True(t, entries[1].Date.Before(entries[2].Date))
}

// A recurring row only speaks for dates a whole multiple of 7 days after
// its anchor. On a daily agreement the in-between days keep the base slot.
func TestEffectiveScheduleDailyRecurringCoversOnlyOwnCadence(t *testing.T) {
	agreement := weeklyMondayAgreement()
	agreement.Frequency = recurrence.FreqDaily
	fx := newDeviationFixture(t, agreement)
	require.NoError(t, fx.store.Insert(context.Background(), &models.Deviation{
		ID:                "dev-cover",
		AgreementID:       "agr-1",
		OriginalDate:      day(2025, time.September, 8),
		OriginalStartTime: "10:00",
		ActualDate:        day(2025, time.September, 8),
		ActualStartTime:   "16:00",
		Recurring:         true,
	}))

	entries, err := fx.schedule.EffectiveScheduleForAgreement(context.Background(), "agr-1", day(2025, time.September, 8), day(2025, time.September, 16))
	require.NoError(t, err)
	require.Len(t, entries, 9)

	tuesday := entryFor(t, entries, day(2025, time.September, 9))
	assert.Equal(t, "10:00", tuesday.StartTime)
	assert.False(t, tuesday.Moved)
	assert.Nil(t, tuesday.DeviationID)

	for _, covered := range []time.Time{day(2025, time.September, 8), day(2025, time.September, 15)} {
		e := entryFor(t, entries, covered)
		assert.Equal(t, "16:00", e.StartTime)
		assert.True(t, e.Moved)
	}
}

// Monthly occurrences drift off the anchor's weekly cadence; a recurring
// row resumes only where the day gap is again a multiple of 7.
func TestEffectiveScheduleMonthlyRecurringCadence(t *testing.T) {
	agreement := weeklyMondayAgreement()
	agreement.Frequency = recurrence.FreqMonthly
	fx := newDeviationFixture(t, agreement)
	require.NoError(t, fx.store.Insert(context.Background(), &models.Deviation{
		ID:                "dev-cover",
		AgreementID:       "agr-1",
		OriginalDate:      day(2025, time.September, 1),
		OriginalStartTime: "10:00",
		ActualDate:        day(2025, time.September, 1),
		ActualStartTime:   "16:00",
		Recurring:         true,
	}))

	entries, err := fx.schedule.EffectiveScheduleForAgreement(context.Background(), "agr-1", day(2025, time.September, 1), day(2025, time.December, 1))
	require.NoError(t, err)
	require.Len(t, entries, 4)

	// 30 and 61 days after the anchor: off cadence, base slot stands.
	assert.Equal(t, "10:00", entryFor(t, entries, day(2025, time.October, 1)).StartTime)
	assert.Equal(t, "10:00", entryFor(t, entries, day(2025, time.November, 1)).StartTime)
	// 91 days after the anchor: back on cadence, the row applies.
	assert.Equal(t, "16:00", entryFor(t, entries, day(2025, time.December, 1)).StartTime)
}

func TestEffectiveScheduleBiweeklyCadence(t *testing.T) {
	agreement := weeklyMondayAgreement()
	agreement.Frequency = recurrence.FreqBiweekly
	fx := newDeviationFixture(t, agreement)

	entries, err := fx.schedule.EffectiveScheduleForAgreement(context.Background(), "agr-1", day(2025, time.September, 1), day(2025, time.September, 29))
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, day(2025, time.September, 1), entries[0].Date)
	assert.Equal(t, day(2025, time.September, 15), entries[1].Date)
	assert.Equal(t, day(2025, time.September, 29), entries[2].Date)
}

func TestEffectiveScheduleWindowValidation(t *testing.T) {
	fx := newDeviationFixture(t, weeklyMondayAgreement())

	_, err := fx.schedule.EffectiveScheduleForAgreement(context.Background(), "agr-1", day(2025, time.September, 15), day(2025, time.September, 1))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	small := NewScheduleService(fx.agreements, fx.store, 24*time.Hour, nil)
	_, err = small.EffectiveScheduleForAgreement(context.Background(), "agr-1", day(2025, time.September, 1), day(2025, time.September, 29))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestEffectiveScheduleUnknownAgreement(t *testing.T) {
	fx := newDeviationFixture(t)

	_, err := fx.schedule.EffectiveScheduleForAgreement(context.Background(), "missing", day(2025, time.September, 1), day(2025, time.September, 8))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
