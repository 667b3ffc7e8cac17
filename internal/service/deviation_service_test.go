package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadenza-app/lesson-api/internal/models"
	"github.com/cadenza-app/lesson-api/internal/recurrence"
	appErrors "github.com/cadenza-app/lesson-api/pkg/errors"
)

type fakeDeviationStore struct {
	seq  int
	rows map[string]models.Deviation
}

func newFakeDeviationStore() *fakeDeviationStore {
	return &fakeDeviationStore{rows: make(map[string]models.Deviation)}
}

func (f *fakeDeviationStore) FindByID(ctx context.Context, id string) (*models.Deviation, error) {
	if row, ok := f.rows[id]; ok {
		return &row, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeDeviationStore) FindByAgreementAndDate(ctx context.Context, agreementID string, originalDate time.Time) (*models.Deviation, error) {
	for _, row := range f.rows {
		if row.AgreementID == agreementID && row.OriginalDate.Equal(originalDate) {
			match := row
			return &match, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeDeviationStore) FindCoveringRecurring(ctx context.Context, agreementID string, date time.Time) (*models.Deviation, error) {
	var best *models.Deviation
	for _, row := range f.rows {
		if row.AgreementID != agreementID || !row.Recurring {
			continue
		}
		if !row.OriginalDate.Before(date) || !recurrence.OnCadence(row.OriginalDate, date) {
			continue
		}
		if row.RecurringEndDate != nil && date.After(*row.RecurringEndDate) {
			continue
		}
		candidate := row
		if best == nil || candidate.OriginalDate.After(best.OriginalDate) {
			best = &candidate
		}
	}
	if best == nil {
		return nil, sql.ErrNoRows
	}
	return best, nil
}

func (f *fakeDeviationStore) ListForRange(ctx context.Context, agreementIDs []string, from, to time.Time) ([]models.Deviation, error) {
	ids := make(map[string]bool, len(agreementIDs))
	for _, id := range agreementIDs {
		ids[id] = true
	}
	var out []models.Deviation
	for _, row := range f.rows {
		if ids[row.AgreementID] {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeDeviationStore) Insert(ctx context.Context, deviation *models.Deviation) error {
	for _, row := range f.rows {
		if row.AgreementID == deviation.AgreementID && row.OriginalDate.Equal(deviation.OriginalDate) {
			return appErrors.ErrUniqueConflict
		}
	}
	if deviation.ID == "" {
		f.seq++
		deviation.ID = fmt.Sprintf("dev-%d", f.seq)
	}
	f.rows[deviation.ID] = *deviation
	return nil
}

func (f *fakeDeviationStore) Update(ctx context.Context, deviation *models.Deviation) error {
	if _, ok := f.rows[deviation.ID]; !ok {
		return appErrors.ErrNotFound
	}
	f.rows[deviation.ID] = *deviation
	return nil
}

func (f *fakeDeviationStore) Delete(ctx context.Context, id string) error {
	if _, ok := f.rows[id]; !ok {
		return appErrors.ErrNotFound
	}
	delete(f.rows, id)
	return nil
}

func (f *fakeDeviationStore) ReplaceRecurring(ctx context.Context, oldID string, replacement *models.Deviation) error {
	if err := f.Delete(ctx, oldID); err != nil {
		return err
	}
	return f.Insert(ctx, replacement)
}

type fakeAgreementStore struct {
	agreements map[string]models.Agreement
}

func (f *fakeAgreementStore) FindByID(ctx context.Context, id string) (*models.Agreement, error) {
	if a, ok := f.agreements[id]; ok {
		return &a, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeAgreementStore) ListActiveByTeacher(ctx context.Context, teacherID string) ([]models.Agreement, error) {
	var out []models.Agreement
	for _, a := range f.agreements {
		if a.TeacherID == teacherID && a.Active {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type fakeAuditLog struct {
	actions []string
}

func (f *fakeAuditLog) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	f.actions = append(f.actions, log.Action)
	return nil
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Mondays in September/October 2025: 1, 8, 15, 22, 29, Oct 6, 13, 20.
func weeklyMondayAgreement() models.Agreement {
	return models.Agreement{
		ID:              "agr-1",
		TeacherID:       "teacher-1",
		StudentID:       "student-1",
		LessonTypeID:    "piano-30",
		DayOfWeek:       int(time.Monday),
		StartTime:       "10:00",
		DurationMinutes: 30,
		Frequency:       recurrence.FreqWeekly,
		StartDate:       day(2025, time.September, 1),
		Active:          true,
	}
}

func staffClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "staff-1", Role: models.RoleStaff}
}

type deviationFixture struct {
	store      *fakeDeviationStore
	agreements *fakeAgreementStore
	audit      *fakeAuditLog
	service    *DeviationService
	schedule   *ScheduleService
}

func newDeviationFixture(t *testing.T, agreements ...models.Agreement) *deviationFixture {
	t.Helper()
	store := newFakeDeviationStore()
	agreementStore := &fakeAgreementStore{agreements: make(map[string]models.Agreement)}
	for _, a := range agreements {
		agreementStore.agreements[a.ID] = a
	}
	audit := &fakeAuditLog{}
	return &deviationFixture{
		store:      store,
		agreements: agreementStore,
		audit:      audit,
		service:    NewDeviationService(store, agreementStore, audit, nil, nil),
		schedule:   NewScheduleService(agreementStore, store, 0, nil),
	}
}

// entryFor picks the effective occurrence derived from the given base date.
func entryFor(t *testing.T, entries []models.EffectiveOccurrence, originalDate time.Time) models.EffectiveOccurrence {
	t.Helper()
	for _, e := range entries {
		if e.OriginalDate.Equal(originalDate) {
			return e
		}
	}
	t.Fatalf("no entry derived from %s", originalDate.Format("2006-01-02"))
	return models.EffectiveOccurrence{}
}

func TestRestoreWeekNoDeviations(t *testing.T) {
	fx := newDeviationFixture(t, weeklyMondayAgreement())

	outcome, err := fx.service.RestoreWeek(context.Background(), "agr-1", day(2025, time.September, 15), models.ScopeOnlyThis, staffClaims())
	require.NoError(t, err)
	assert.Equal(t, models.RestoreNoop, outcome)
	assert.Empty(t, fx.audit.actions)
}

func TestRestoreWeekRejectsNonOccurrence(t *testing.T) {
	fx := newDeviationFixture(t, weeklyMondayAgreement())

	// September 16, 2025 is a Tuesday.
	_, err := fx.service.RestoreWeek(context.Background(), "agr-1", day(2025, time.September, 16), models.ScopeOnlyThis, staffClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidOccurrence.Code, appErrors.FromError(err).Code)
}

func TestRestoreWeekPermissionDenied(t *testing.T) {
	fx := newDeviationFixture(t, weeklyMondayAgreement())

	otherTeacher := &models.JWTClaims{UserID: "teacher-2", Role: models.RoleTeacher}
	_, err := fx.service.RestoreWeek(context.Background(), "agr-1", day(2025, time.September, 15), models.ScopeOnlyThis, otherTeacher)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPermissionDenied.Code, appErrors.FromError(err).Code)

	_, err = fx.service.RestoreWeek(context.Background(), "agr-1", day(2025, time.September, 15), models.ScopeOnlyThis, nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPermissionDenied.Code, appErrors.FromError(err).Code)
}

func TestRestoreSingleDeleted(t *testing.T) {
	fx := newDeviationFixture(t, weeklyMondayAgreement())
	require.NoError(t, fx.store.Insert(context.Background(), &models.Deviation{
		AgreementID:       "agr-1",
		OriginalDate:      day(2025, time.September, 15),
		OriginalStartTime: "10:00",
		ActualDate:        day(2025, time.September, 17),
		ActualStartTime:   "14:00",
	}))

	outcome, err := fx.service.RestoreWeek(context.Background(), "agr-1", day(2025, time.September, 15), models.ScopeOnlyThis, staffClaims())
	require.NoError(t, err)
	assert.Equal(t, models.RestoreSingleDeleted, outcome)
	assert.Empty(t, fx.store.rows)

	entries, err := fx.schedule.EffectiveScheduleForAgreement(context.Background(), "agr-1", day(2025, time.September, 15), day(2025, time.September, 15))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "10:00", entries[0].StartTime)
	assert.False(t, entries[0].Moved)
}

// A lone single row deletes for both scopes; there is no future coverage to end.
func TestRestoreSingleDeletedThisAndFuture(t *testing.T) {
	fx := newDeviationFixture(t, weeklyMondayAgreement())
	require.NoError(t, fx.store.Insert(context.Background(), &models.Deviation{
		AgreementID:       "agr-1",
		OriginalDate:      day(2025, time.September, 15),
		OriginalStartTime: "10:00",
		ActualDate:        day(2025, time.September, 15),
		ActualStartTime:   "10:00",
		Cancelled:         true,
	}))

	outcome, err := fx.service.RestoreWeek(context.Background(), "agr-1", day(2025, time.September, 15), models.ScopeThisAndFuture, staffClaims())
	require.NoError(t, err)
	assert.Equal(t, models.RestoreSingleDeleted, outcome)
	assert.Empty(t, fx.store.rows)
}

func TestRestoreRecurringShifted(t *testing.T) {
	fx := newDeviationFixture(t, weeklyMondayAgreement())
	require.NoError(t, fx.store.Insert(context.Background(), &models.Deviation{
		AgreementID:       "agr-1",
		OriginalDate:      day(2025, time.September, 15),
		OriginalStartTime: "10:00",
		ActualDate:        day(2025, time.September, 16),
		ActualStartTime:   "11:00",
		Recurring:         true,
	}))

	outcome, err := fx.service.RestoreWeek(context.Background(), "agr-1", day(2025, time.September, 15), models.ScopeOnlyThis, staffClaims())
	require.NoError(t, err)
	assert.Equal(t, models.RestoreRecurringShifted, outcome)

	entries, err := fx.schedule.EffectiveScheduleForAgreement(context.Background(), "agr-1", day(2025, time.September, 15), day(2025, time.September, 29))
	require.NoError(t, err)
	require.Len(t, entries, 3)

	// Target week reverts to the base slot.
	restored := entryFor(t, entries, day(2025, time.September, 15))
	assert.Equal(t, day(2025, time.September, 15), restored.Date)
	assert.Equal(t, "10:00", restored.StartTime)
	assert.False(t, restored.Moved)

	// Coverage now begins one week later and still moves lessons to Tuesday.
	next := entryFor(t, entries, day(2025, time.September, 22))
	assert.Equal(t, day(2025, time.September, 23), next.Date)
	assert.Equal(t, "11:00", next.StartTime)
	assert.True(t, next.Moved)
}

func TestRestoreRecurringDeletedThisAndFuture(t *testing.T) {
	fx := newDeviationFixture(t, weeklyMondayAgreement())
	require.NoError(t, fx.store.Insert(context.Background(), &models.Deviation{
		AgreementID:       "agr-1",
		OriginalDate:      day(2025, time.September, 15),
		OriginalStartTime: "10:00",
		ActualDate:        day(2025, time.September, 16),
		ActualStartTime:   "11:00",
		Recurring:         true,
	}))

	outcome, err := fx.service.RestoreWeek(context.Background(), "agr-1", day(2025, time.September, 15), models.ScopeThisAndFuture, staffClaims())
	require.NoError(t, err)
	assert.Equal(t, models.RestoreRecurringDeleted, outcome)
	assert.Empty(t, fx.store.rows)

	entries, err := fx.schedule.EffectiveScheduleForAgreement(context.Background(), "agr-1", day(2025, time.September, 15), day(2025, time.September, 29))
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, e.Moved)
		assert.Equal(t, "10:00", e.StartTime)
	}
}

// Shifting a recurring row past its own end date would leave it covering
// nothing, so the restore deletes it instead.
func TestRestoreRecurringShiftPastEndDeletes(t *testing.T) {
	fx := newDeviationFixture(t, weeklyMondayAgreement())
	end := day(2025, time.September, 15)
	require.NoError(t, fx.store.Insert(context.Background(), &models.Deviation{
		AgreementID:       "agr-1",
		OriginalDate:      day(2025, time.September, 15),
		OriginalStartTime: "10:00",
		ActualDate:        day(2025, time.September, 16),
		ActualStartTime:   "11:00",
		Recurring:         true,
		RecurringEndDate:  &end,
	}))

	outcome, err := fx.service.RestoreWeek(context.Background(), "agr-1", day(2025, time.September, 15), models.ScopeOnlyThis, staffClaims())
	require.NoError(t, err)
	assert.Equal(t, models.RestoreRecurringDeleted, outcome)
	assert.Empty(t, fx.store.rows)
}

func TestRestoreRecurringEnded(t *testing.T) {
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

	outcome, err := fx.service.RestoreWeek(context.Background(), "agr-1", day(2025, time.September, 22), models.ScopeThisAndFuture, staffClaims())
	require.NoError(t, err)
	assert.Equal(t, models.RestoreRecurringEnded, outcome)

	row := fx.store.rows["dev-cover"]
	require.NotNil(t, row.RecurringEndDate)
	assert.Equal(t, day(2025, time.September, 15), *row.RecurringEndDate)

	entries, err := fx.schedule.EffectiveScheduleForAgreement(context.Background(), "agr-1", day(2025, time.September, 8), day(2025, time.September, 29))
	require.NoError(t, err)
	assert.True(t, entryFor(t, entries, day(2025, time.September, 8)).Moved)
	assert.True(t, entryFor(t, entries, day(2025, time.September, 15)).Moved)
	assert.False(t, entryFor(t, entries, day(2025, time.September, 22)).Moved)
	assert.False(t, entryFor(t, entries, day(2025, time.September, 29)).Moved)
}

func TestRestoreOverrideInserted(t *testing.T) {
	fx := newDeviationFixture(t, weeklyMondayAgreement())
	require.NoError(t, fx.store.Insert(context.Background(), &models.Deviation{
		AgreementID:       "agr-1",
		OriginalDate:      day(2025, time.September, 8),
		OriginalStartTime: "10:00",
		ActualDate:        day(2025, time.September, 10),
		ActualStartTime:   "16:00",
		Recurring:         true,
	}))

	outcome, err := fx.service.RestoreWeek(context.Background(), "agr-1", day(2025, time.September, 22), models.ScopeOnlyThis, staffClaims())
	require.NoError(t, err)
	assert.Equal(t, models.RestoreOverrideInserted, outcome)
	assert.Len(t, fx.store.rows, 2)

	entries, err := fx.schedule.EffectiveScheduleForAgreement(context.Background(), "agr-1", day(2025, time.September, 8), day(2025, time.September, 29))
	require.NoError(t, err)

	// Only the target week escapes the recurring coverage.
	assert.True(t, entryFor(t, entries, day(2025, time.September, 15)).Moved)
	target := entryFor(t, entries, day(2025, time.September, 22))
	assert.False(t, target.Moved)
	assert.Equal(t, "10:00", target.StartTime)
	require.NotNil(t, target.DeviationID)
	assert.True(t, entryFor(t, entries, day(2025, time.September, 29)).Moved)
}

// On a daily agreement a recurring row covers only the dates a whole
// multiple of 7 days after its anchor. Restoring an in-between day finds
// nothing to revert; restoring an on-cadence day neutralises the coverage.
func TestRestoreDailyRespectsRecurringCadence(t *testing.T) {
	agreement := weeklyMondayAgreement()
	agreement.Frequency = recurrence.FreqDaily
	fx := newDeviationFixture(t, agreement)
	require.NoError(t, fx.store.Insert(context.Background(), &models.Deviation{
		AgreementID:       "agr-1",
		OriginalDate:      day(2025, time.September, 8),
		OriginalStartTime: "10:00",
		ActualDate:        day(2025, time.September, 8),
		ActualStartTime:   "16:00",
		Recurring:         true,
	}))

	offCadence, err := fx.service.RestoreWeek(context.Background(), "agr-1", day(2025, time.September, 10), models.ScopeOnlyThis, staffClaims())
	require.NoError(t, err)
	assert.Equal(t, models.RestoreNoop, offCadence)
	assert.Len(t, fx.store.rows, 1)

	onCadence, err := fx.service.RestoreWeek(context.Background(), "agr-1", day(2025, time.September, 15), models.ScopeOnlyThis, staffClaims())
	require.NoError(t, err)
	assert.Equal(t, models.RestoreOverrideInserted, onCadence)
	assert.Len(t, fx.store.rows, 2)
}

// Restoring the same covered week twice is idempotent: the override row
// already neutralises the coverage, so the second call is a noop.
func TestRestoreOverrideIdempotent(t *testing.T) {
	fx := newDeviationFixture(t, weeklyMondayAgreement())
	require.NoError(t, fx.store.Insert(context.Background(), &models.Deviation{
		AgreementID:       "agr-1",
		OriginalDate:      day(2025, time.September, 8),
		OriginalStartTime: "10:00",
		ActualDate:        day(2025, time.September, 10),
		ActualStartTime:   "16:00",
		Recurring:         true,
	}))

	first, err := fx.service.RestoreWeek(context.Background(), "agr-1", day(2025, time.September, 22), models.ScopeOnlyThis, staffClaims())
	require.NoError(t, err)
	assert.Equal(t, models.RestoreOverrideInserted, first)

	second, err := fx.service.RestoreWeek(context.Background(), "agr-1", day(2025, time.September, 22), models.ScopeOnlyThis, staffClaims())
	require.NoError(t, err)
	assert.Equal(t, models.RestoreNoop, second)
	assert.Len(t, fx.store.rows, 2)
}

// A deviating single row under recurring coverage turns into an override on
// only_this, so the covering row cannot reclaim the week afterwards.
func TestRestoreSingleReplacedWithOverride(t *testing.T) {
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
		ActualDate:        day(2025, time.September, 22),
		ActualStartTime:   "10:00",
		Cancelled:         true,
	}))

	outcome, err := fx.service.RestoreWeek(context.Background(), "agr-1", day(2025, time.September, 22), models.ScopeOnlyThis, staffClaims())
	require.NoError(t, err)
	assert.Equal(t, models.RestoreSingleReplaced, outcome)

	row := fx.store.rows["dev-single"]
	assert.False(t, row.Cancelled)
	assert.True(t, row.IsOverride())

	entries, err := fx.schedule.EffectiveScheduleForAgreement(context.Background(), "agr-1", day(2025, time.September, 22), day(2025, time.September, 22))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Cancelled)
	assert.False(t, entries[0].Moved)
}

// this_and_future with both a single row and covering recurring drops the
// single and closes the coverage in one restore.
func TestRestoreSingleWithCoveringThisAndFuture(t *testing.T) {
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
		ActualDate:        day(2025, time.September, 24),
		ActualStartTime:   "09:00",
	}))

	outcome, err := fx.service.RestoreWeek(context.Background(), "agr-1", day(2025, time.September, 22), models.ScopeThisAndFuture, staffClaims())
	require.NoError(t, err)
	assert.Equal(t, models.RestoreRecurringEnded, outcome)

	_, singleRemains := fx.store.rows["dev-single"]
	assert.False(t, singleRemains)
	row := fx.store.rows["dev-cover"]
	require.NotNil(t, row.RecurringEndDate)
	assert.Equal(t, day(2025, time.September, 15), *row.RecurringEndDate)
}

func TestShiftRecurringToNextWeek(t *testing.T) {
	fx := newDeviationFixture(t, weeklyMondayAgreement())
	require.NoError(t, fx.store.Insert(context.Background(), &models.Deviation{
		ID:                "dev-cover",
		AgreementID:       "agr-1",
		OriginalDate:      day(2025, time.September, 15),
		OriginalStartTime: "10:00",
		ActualDate:        day(2025, time.September, 16),
		ActualStartTime:   "11:00",
		Recurring:         true,
	}))

	replacement, err := fx.service.ShiftRecurringToNextWeek(context.Background(), "dev-cover", staffClaims())
	require.NoError(t, err)
	assert.Equal(t, day(2025, time.September, 22), replacement.OriginalDate)
	assert.Equal(t, day(2025, time.September, 23), replacement.ActualDate)
	assert.Equal(t, "11:00", replacement.ActualStartTime)
	assert.True(t, replacement.Recurring)

	_, oldRemains := fx.store.rows["dev-cover"]
	assert.False(t, oldRemains)
	assert.Len(t, fx.store.rows, 1)
}

func TestShiftRejectsNonRecurring(t *testing.T) {
	fx := newDeviationFixture(t, weeklyMondayAgreement())
	require.NoError(t, fx.store.Insert(context.Background(), &models.Deviation{
		ID:                "dev-single",
		AgreementID:       "agr-1",
		OriginalDate:      day(2025, time.September, 15),
		OriginalStartTime: "10:00",
		ActualDate:        day(2025, time.September, 16),
		ActualStartTime:   "10:00",
	}))

	_, err := fx.service.ShiftRecurringToNextWeek(context.Background(), "dev-single", staffClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestEndRecurringFromWeek(t *testing.T) {
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

	outcome, err := fx.service.EndRecurringFromWeek(context.Background(), "dev-cover", day(2025, time.September, 22), staffClaims())
	require.NoError(t, err)
	assert.Equal(t, models.EndUpdated, outcome)

	row := fx.store.rows["dev-cover"]
	require.NotNil(t, row.RecurringEndDate)
	assert.Equal(t, day(2025, time.September, 15), *row.RecurringEndDate)
}

// Ending a recurring row at its own first covered week leaves no coverage,
// so the row is removed entirely.
func TestEndRecurringAtAnchorDeletes(t *testing.T) {
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

	outcome, err := fx.service.EndRecurringFromWeek(context.Background(), "dev-cover", day(2025, time.September, 8), staffClaims())
	require.NoError(t, err)
	assert.Equal(t, models.EndDeleted, outcome)
	assert.Empty(t, fx.store.rows)
}

func TestEndRecurringRejectsEarlierWeek(t *testing.T) {
	fx := newDeviationFixture(t, weeklyMondayAgreement())
	require.NoError(t, fx.store.Insert(context.Background(), &models.Deviation{
		ID:                "dev-cover",
		AgreementID:       "agr-1",
		OriginalDate:      day(2025, time.September, 15),
		OriginalStartTime: "10:00",
		ActualDate:        day(2025, time.September, 16),
		ActualStartTime:   "16:00",
		Recurring:         true,
	}))

	_, err := fx.service.EndRecurringFromWeek(context.Background(), "dev-cover", day(2025, time.September, 8), staffClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCreateDeviationDefaultsAndRoundTrip(t *testing.T) {
	fx := newDeviationFixture(t, weeklyMondayAgreement())

	actual := day(2025, time.September, 17)
	created, err := fx.service.Create(context.Background(), CreateDeviationRequest{
		AgreementID:  "agr-1",
		OriginalDate: day(2025, time.September, 15),
		ActualDate:   &actual,
	}, staffClaims())
	require.NoError(t, err)
	assert.Equal(t, "10:00", created.OriginalStartTime)
	assert.Equal(t, "10:00", created.ActualStartTime)

	entries, err := fx.schedule.EffectiveScheduleForAgreement(context.Background(), "agr-1", day(2025, time.September, 15), day(2025, time.September, 15))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, actual, entries[0].Date)
	assert.True(t, entries[0].Moved)

	require.NoError(t, fx.service.Delete(context.Background(), created.ID, staffClaims()))
	entries, err = fx.schedule.EffectiveScheduleForAgreement(context.Background(), "agr-1", day(2025, time.September, 15), day(2025, time.September, 15))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Moved)
	assert.Nil(t, entries[0].DeviationID)
}

func TestCreateDeviationRejectsNonOccurrence(t *testing.T) {
	fx := newDeviationFixture(t, weeklyMondayAgreement())

	_, err := fx.service.Create(context.Background(), CreateDeviationRequest{
		AgreementID:  "agr-1",
		OriginalDate: day(2025, time.September, 16),
		Cancelled:    true,
	}, staffClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidOccurrence.Code, appErrors.FromError(err).Code)
}

func TestCreateDeviationMustActuallyDeviate(t *testing.T) {
	fx := newDeviationFixture(t, weeklyMondayAgreement())

	_, err := fx.service.Create(context.Background(), CreateDeviationRequest{
		AgreementID:  "agr-1",
		OriginalDate: day(2025, time.September, 15),
	}, staffClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrMustActuallyDeviate.Code, appErrors.FromError(err).Code)
}

// A non-deviating row is legal when it suppresses an active recurring
// deviation for its week.
func TestCreateOverrideRowUnderCoverage(t *testing.T) {
	fx := newDeviationFixture(t, weeklyMondayAgreement())
	require.NoError(t, fx.store.Insert(context.Background(), &models.Deviation{
		AgreementID:       "agr-1",
		OriginalDate:      day(2025, time.September, 8),
		OriginalStartTime: "10:00",
		ActualDate:        day(2025, time.September, 10),
		ActualStartTime:   "16:00",
		Recurring:         true,
	}))

	created, err := fx.service.Create(context.Background(), CreateDeviationRequest{
		AgreementID:  "agr-1",
		OriginalDate: day(2025, time.September, 22),
	}, staffClaims())
	require.NoError(t, err)
	assert.True(t, created.IsOverride())
}

// A non-deviating recurring row can never be an override.
func TestCreateRecurringMustDeviate(t *testing.T) {
	fx := newDeviationFixture(t, weeklyMondayAgreement())
	require.NoError(t, fx.store.Insert(context.Background(), &models.Deviation{
		AgreementID:       "agr-1",
		OriginalDate:      day(2025, time.September, 8),
		OriginalStartTime: "10:00",
		ActualDate:        day(2025, time.September, 10),
		ActualStartTime:   "16:00",
		Recurring:         true,
	}))

	_, err := fx.service.Create(context.Background(), CreateDeviationRequest{
		AgreementID:  "agr-1",
		OriginalDate: day(2025, time.September, 22),
		Recurring:    true,
	}, staffClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrMustActuallyDeviate.Code, appErrors.FromError(err).Code)
}

func TestCreateDeviationUniqueConflict(t *testing.T) {
	fx := newDeviationFixture(t, weeklyMondayAgreement())

	req := CreateDeviationRequest{
		AgreementID:  "agr-1",
		OriginalDate: day(2025, time.September, 15),
		Cancelled:    true,
	}
	_, err := fx.service.Create(context.Background(), req, staffClaims())
	require.NoError(t, err)

	_, err = fx.service.Create(context.Background(), req, staffClaims())
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrUniqueConflict))
}

func TestTeacherMayMutateOwnAgreement(t *testing.T) {
	fx := newDeviationFixture(t, weeklyMondayAgreement())

	ownTeacher := &models.JWTClaims{UserID: "teacher-1", Role: models.RoleTeacher}
	_, err := fx.service.Create(context.Background(), CreateDeviationRequest{
		AgreementID:  "agr-1",
		OriginalDate: day(2025, time.September, 15),
		Cancelled:    true,
	}, ownTeacher)
	require.NoError(t, err)
}
