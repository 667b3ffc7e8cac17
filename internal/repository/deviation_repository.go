package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/cadenza-app/lesson-api/internal/models"
	appErrors "github.com/cadenza-app/lesson-api/pkg/errors"
)

const deviationColumns = "id, agreement_id, original_date, original_start_time, actual_date, actual_start_time, cancelled, recurring, recurring_end_date, created_by, updated_by, created_at, updated_at"

// uniqueViolation is the Postgres error code raised by the unique index on
// (agreement_id, original_date). The index is the arbiter under concurrent
// writers; application checks alone cannot be.
const uniqueViolation = "23505"

// DeviationRepository provides persistence for schedule deviations.
type DeviationRepository struct {
	db *sqlx.DB
}

// NewDeviationRepository creates a new deviation repository.
func NewDeviationRepository(db *sqlx.DB) *DeviationRepository {
	return &DeviationRepository{db: db}
}

func translateDeviationError(err error, op string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return appErrors.Wrap(err, appErrors.ErrUniqueConflict.Code, appErrors.ErrUniqueConflict.Status, appErrors.ErrUniqueConflict.Message)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// FindByID loads a deviation by id.
func (r *DeviationRepository) FindByID(ctx context.Context, id string) (*models.Deviation, error) {
	query := fmt.Sprintf("SELECT %s FROM deviations WHERE id = $1", deviationColumns)
	var deviation models.Deviation
	if err := r.db.GetContext(ctx, &deviation, query, id); err != nil {
		return nil, err
	}
	return &deviation, nil
}

// FindByAgreementAndDate loads the unique deviation anchored at the given
// base-pattern date, when one exists.
func (r *DeviationRepository) FindByAgreementAndDate(ctx context.Context, agreementID string, originalDate time.Time) (*models.Deviation, error) {
	query := fmt.Sprintf("SELECT %s FROM deviations WHERE agreement_id = $1 AND original_date = $2", deviationColumns)
	var deviation models.Deviation
	if err := r.db.GetContext(ctx, &deviation, query, agreementID, originalDate); err != nil {
		return nil, err
	}
	return &deviation, nil
}

// FindCoveringRecurring returns the recurring deviation whose coverage
// window includes date and whose anchor sits on the same weekly cadence
// (a whole multiple of 7 days earlier). When several qualify the
// latest-starting row wins.
func (r *DeviationRepository) FindCoveringRecurring(ctx context.Context, agreementID string, date time.Time) (*models.Deviation, error) {
	query := fmt.Sprintf(`SELECT %s FROM deviations
		WHERE agreement_id = $1 AND recurring = TRUE AND original_date < $2
		AND ($2::date - original_date::date) %% 7 = 0
		AND (recurring_end_date IS NULL OR recurring_end_date >= $2)
		ORDER BY original_date DESC LIMIT 1`, deviationColumns)
	var deviation models.Deviation
	if err := r.db.GetContext(ctx, &deviation, query, agreementID, date); err != nil {
		return nil, err
	}
	return &deviation, nil
}

// ListByAgreement returns all deviations of an agreement ordered by date.
func (r *DeviationRepository) ListByAgreement(ctx context.Context, agreementID string) ([]models.Deviation, error) {
	query := fmt.Sprintf("SELECT %s FROM deviations WHERE agreement_id = $1 ORDER BY original_date ASC", deviationColumns)
	var deviations []models.Deviation
	if err := r.db.SelectContext(ctx, &deviations, query, agreementID); err != nil {
		return nil, fmt.Errorf("list deviations by agreement: %w", err)
	}
	return deviations, nil
}

// ListForRange returns every deviation of the given agreements that can
// affect occurrences inside [from, to]: rows anchored in the range plus
// recurring rows whose coverage window reaches into it.
func (r *DeviationRepository) ListForRange(ctx context.Context, agreementIDs []string, from, to time.Time) ([]models.Deviation, error) {
	if len(agreementIDs) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT %s FROM deviations
		WHERE agreement_id = ANY($1)
		AND original_date <= $3
		AND (original_date >= $2 OR (recurring = TRUE AND (recurring_end_date IS NULL OR recurring_end_date >= $2)))
		ORDER BY original_date ASC`, deviationColumns)
	var deviations []models.Deviation
	if err := r.db.SelectContext(ctx, &deviations, query, pq.Array(agreementIDs), from, to); err != nil {
		return nil, fmt.Errorf("list deviations for range: %w", err)
	}
	return deviations, nil
}

// Insert persists a new deviation. A duplicate (agreement_id, original_date)
// surfaces as a UniqueConflict error.
func (r *DeviationRepository) Insert(ctx context.Context, deviation *models.Deviation) error {
	if deviation.ID == "" {
		deviation.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	deviation.CreatedAt = now
	deviation.UpdatedAt = now

	const query = `INSERT INTO deviations (id, agreement_id, original_date, original_start_time, actual_date, actual_start_time, cancelled, recurring, recurring_end_date, created_by, updated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	if _, err := r.db.ExecContext(ctx, query,
		deviation.ID, deviation.AgreementID, deviation.OriginalDate, deviation.OriginalStartTime,
		deviation.ActualDate, deviation.ActualStartTime, deviation.Cancelled, deviation.Recurring,
		deviation.RecurringEndDate, deviation.CreatedBy, deviation.UpdatedBy, deviation.CreatedAt, deviation.UpdatedAt,
	); err != nil {
		return translateDeviationError(err, "insert deviation")
	}
	return nil
}

// Update rewrites a deviation's mutable fields, including its anchor date
// when the resolution engine shifts a recurring row.
func (r *DeviationRepository) Update(ctx context.Context, deviation *models.Deviation) error {
	deviation.UpdatedAt = time.Now().UTC()

	const query = `UPDATE deviations SET original_date = $2, original_start_time = $3, actual_date = $4, actual_start_time = $5, cancelled = $6, recurring = $7, recurring_end_date = $8, updated_by = $9, updated_at = $10 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query,
		deviation.ID, deviation.OriginalDate, deviation.OriginalStartTime,
		deviation.ActualDate, deviation.ActualStartTime, deviation.Cancelled,
		deviation.Recurring, deviation.RecurringEndDate, deviation.UpdatedBy, deviation.UpdatedAt,
	)
	if err != nil {
		return translateDeviationError(err, "update deviation")
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return appErrors.Clone(appErrors.ErrNotFound, "deviation not found")
	}
	return nil
}

// Delete removes a deviation row.
func (r *DeviationRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM deviations WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete deviation: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return appErrors.Clone(appErrors.ErrNotFound, "deviation not found")
	}
	return nil
}

// ReplaceRecurring atomically deletes one recurring deviation and inserts
// its replacement. Other readers never observe zero or two rows; on any
// failure the pre-operation state is left unchanged.
func (r *DeviationRepository) ReplaceRecurring(ctx context.Context, oldID string, replacement *models.Deviation) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrTransactionFailed.Code, appErrors.ErrTransactionFailed.Status, "begin replace deviation")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, "DELETE FROM deviations WHERE id = $1", oldID)
	if err != nil {
		err = appErrors.Wrap(err, appErrors.ErrTransactionFailed.Code, appErrors.ErrTransactionFailed.Status, "delete replaced deviation")
		return err
	}
	if rows, rowsErr := res.RowsAffected(); rowsErr == nil && rows == 0 {
		err = appErrors.Clone(appErrors.ErrNotFound, "deviation not found")
		return err
	}

	if replacement.ID == "" {
		replacement.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	replacement.CreatedAt = now
	replacement.UpdatedAt = now

	const insert = `INSERT INTO deviations (id, agreement_id, original_date, original_start_time, actual_date, actual_start_time, cancelled, recurring, recurring_end_date, created_by, updated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	if _, err = tx.ExecContext(ctx, insert,
		replacement.ID, replacement.AgreementID, replacement.OriginalDate, replacement.OriginalStartTime,
		replacement.ActualDate, replacement.ActualStartTime, replacement.Cancelled, replacement.Recurring,
		replacement.RecurringEndDate, replacement.CreatedBy, replacement.UpdatedBy, replacement.CreatedAt, replacement.UpdatedAt,
	); err != nil {
		err = translateDeviationError(err, "insert replacement deviation")
		return err
	}

	if err = tx.Commit(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrTransactionFailed.Code, appErrors.ErrTransactionFailed.Status, "commit replace deviation")
	}
	return nil
}
