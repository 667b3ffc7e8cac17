package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/cadenza-app/lesson-api/internal/models"
)

const agreementColumns = "id, teacher_id, student_id, lesson_type_id, day_of_week, start_time, duration_minutes, frequency, start_date, end_date, active, created_at, updated_at"

// AgreementRepository provides persistence for recurring lesson agreements.
type AgreementRepository struct {
	db *sqlx.DB
}

// NewAgreementRepository creates a new agreement repository.
func NewAgreementRepository(db *sqlx.DB) *AgreementRepository {
	return &AgreementRepository{db: db}
}

// List returns agreements with optional filtering and pagination.
func (r *AgreementRepository) List(ctx context.Context, filter models.AgreementFilter) ([]models.Agreement, int, error) {
	base := "FROM agreements WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"start_date":  true,
		"day_of_week": true,
		"start_time":  true,
		"created_at":  true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "start_date"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", agreementColumns, base, sortBy, order, size, offset)
	var agreements []models.Agreement
	if err := r.db.SelectContext(ctx, &agreements, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list agreements: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count agreements: %w", err)
	}

	return agreements, total, nil
}

// FindByID loads an agreement by id.
func (r *AgreementRepository) FindByID(ctx context.Context, id string) (*models.Agreement, error) {
	query := fmt.Sprintf("SELECT %s FROM agreements WHERE id = $1", agreementColumns)
	var agreement models.Agreement
	if err := r.db.GetContext(ctx, &agreement, query, id); err != nil {
		return nil, err
	}
	return &agreement, nil
}

// ListActiveByTeacher returns a teacher's active agreements ordered by
// weekday and start time.
func (r *AgreementRepository) ListActiveByTeacher(ctx context.Context, teacherID string) ([]models.Agreement, error) {
	query := fmt.Sprintf("SELECT %s FROM agreements WHERE teacher_id = $1 AND active = TRUE ORDER BY day_of_week ASC, start_time ASC", agreementColumns)
	var agreements []models.Agreement
	if err := r.db.SelectContext(ctx, &agreements, query, teacherID); err != nil {
		return nil, fmt.Errorf("list active agreements by teacher: %w", err)
	}
	return agreements, nil
}

// Create inserts a new agreement, assigning an id when absent.
func (r *AgreementRepository) Create(ctx context.Context, agreement *models.Agreement) error {
	if agreement.ID == "" {
		agreement.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	agreement.CreatedAt = now
	agreement.UpdatedAt = now

	const query = `INSERT INTO agreements (id, teacher_id, student_id, lesson_type_id, day_of_week, start_time, duration_minutes, frequency, start_date, end_date, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	if _, err := r.db.ExecContext(ctx, query,
		agreement.ID, agreement.TeacherID, agreement.StudentID, agreement.LessonTypeID,
		agreement.DayOfWeek, agreement.StartTime, agreement.DurationMinutes, agreement.Frequency,
		agreement.StartDate, agreement.EndDate, agreement.Active, agreement.CreatedAt, agreement.UpdatedAt,
	); err != nil {
		return fmt.Errorf("create agreement: %w", err)
	}
	return nil
}

// Update rewrites the mutable fields of an agreement.
func (r *AgreementRepository) Update(ctx context.Context, agreement *models.Agreement) error {
	agreement.UpdatedAt = time.Now().UTC()

	const query = `UPDATE agreements SET teacher_id = $2, student_id = $3, lesson_type_id = $4, day_of_week = $5, start_time = $6, duration_minutes = $7, frequency = $8, start_date = $9, end_date = $10, active = $11, updated_at = $12 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query,
		agreement.ID, agreement.TeacherID, agreement.StudentID, agreement.LessonTypeID,
		agreement.DayOfWeek, agreement.StartTime, agreement.DurationMinutes, agreement.Frequency,
		agreement.StartDate, agreement.EndDate, agreement.Active, agreement.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update agreement: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return fmt.Errorf("update agreement %s: no rows affected", agreement.ID)
	}
	return nil
}

// Archive deactivates an agreement without deleting its history.
func (r *AgreementRepository) Archive(ctx context.Context, id string) error {
	const query = `UPDATE agreements SET active = FALSE, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("archive agreement: %w", err)
	}
	return nil
}
