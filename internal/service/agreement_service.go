package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/cadenza-app/lesson-api/internal/models"
	"github.com/cadenza-app/lesson-api/internal/recurrence"
	appErrors "github.com/cadenza-app/lesson-api/pkg/errors"
)

type agreementRepository interface {
	List(ctx context.Context, filter models.AgreementFilter) ([]models.Agreement, int, error)
	FindByID(ctx context.Context, id string) (*models.Agreement, error)
	Create(ctx context.Context, agreement *models.Agreement) error
	Update(ctx context.Context, agreement *models.Agreement) error
	Archive(ctx context.Context, id string) error
}

type availabilityChecker interface {
	Check(ctx context.Context, teacherID string, candidate CandidateSlot) (*models.AvailabilityReport, error)
}

// CreateAgreementRequest carries the payload for provisioning an agreement.
type CreateAgreementRequest struct {
	TeacherID       string               `json:"teacher_id" validate:"required"`
	StudentID       string               `json:"student_id" validate:"required"`
	LessonTypeID    string               `json:"lesson_type_id" validate:"required"`
	DayOfWeek       int                  `json:"day_of_week" validate:"min=0,max=6"`
	StartTime       string               `json:"start_time" validate:"required"`
	DurationMinutes int                  `json:"duration_minutes" validate:"required,gt=0"`
	Frequency       recurrence.Frequency `json:"frequency" validate:"required"`
	StartDate       time.Time            `json:"start_date" validate:"required"`
	EndDate         *time.Time           `json:"end_date"`
	// Force provisions the agreement even when the slot check reports
	// conflicts.
	Force bool `json:"force"`
}

// UpdateAgreementRequest carries mutable agreement fields. Nil pointers
// leave the stored value untouched.
type UpdateAgreementRequest struct {
	DayOfWeek       *int                  `json:"day_of_week" validate:"omitempty,min=0,max=6"`
	StartTime       *string               `json:"start_time"`
	DurationMinutes *int                  `json:"duration_minutes" validate:"omitempty,gt=0"`
	Frequency       *recurrence.Frequency `json:"frequency"`
	EndDate         *time.Time            `json:"end_date"`
}

// AgreementService manages lesson agreement lifecycle.
type AgreementService struct {
	repo         agreementRepository
	availability availabilityChecker
	audit        auditLogger
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewAgreementService constructs an AgreementService.
func NewAgreementService(repo agreementRepository, availability availabilityChecker, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *AgreementService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AgreementService{repo: repo, availability: availability, audit: audit, validator: validate, logger: logger}
}

func canManageAgreements(claims *models.JWTClaims) bool {
	if claims == nil {
		return false
	}
	return claims.Role == models.RoleAdmin || claims.Role == models.RoleStaff
}

// List returns agreements matching the filter with pagination metadata.
func (s *AgreementService) List(ctx context.Context, filter models.AgreementFilter) ([]models.Agreement, *models.Pagination, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	agreements, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list agreements")
	}
	return agreements, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get loads a single agreement by id.
func (s *AgreementService) Get(ctx context.Context, id string) (*models.Agreement, error) {
	agreement, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "agreement not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load agreement")
	}
	return agreement, nil
}

// Create validates and provisions a new agreement. The teacher's calendar is
// checked first: a fully occupied slot is rejected unless Force is set, a
// partially occupied slot goes through but the report is returned so callers
// can surface the conflicts.
func (s *AgreementService) Create(ctx context.Context, req CreateAgreementRequest, claims *models.JWTClaims) (*models.Agreement, *models.AvailabilityReport, error) {
	if !canManageAgreements(claims) {
		return nil, nil, appErrors.Clone(appErrors.ErrPermissionDenied, "not allowed to manage agreements")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid agreement payload")
	}
	if !req.Frequency.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid frequency")
	}
	if _, err := recurrence.ClockMinutes(req.StartTime); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid start time")
	}
	startDate := recurrence.DateOnly(req.StartDate)
	if req.EndDate != nil {
		endDate := recurrence.DateOnly(*req.EndDate)
		if endDate.Before(startDate) {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "end date precedes start date")
		}
		req.EndDate = &endDate
	}

	var report *models.AvailabilityReport
	if s.availability != nil {
		var err error
		report, err = s.availability.Check(ctx, req.TeacherID, CandidateSlot{
			DayOfWeek:       req.DayOfWeek,
			StartTime:       req.StartTime,
			DurationMinutes: req.DurationMinutes,
			Frequency:       req.Frequency,
			StartDate:       startDate,
			EndDate:         req.EndDate,
		})
		if err != nil {
			return nil, nil, err
		}
		if report.Classification == models.SlotOccupied && !req.Force {
			return nil, report, appErrors.Clone(appErrors.ErrSlotOccupied, "teacher slot is fully occupied")
		}
	}

	agreement := &models.Agreement{
		TeacherID:       req.TeacherID,
		StudentID:       req.StudentID,
		LessonTypeID:    req.LessonTypeID,
		DayOfWeek:       req.DayOfWeek,
		StartTime:       req.StartTime,
		DurationMinutes: req.DurationMinutes,
		Frequency:       req.Frequency,
		StartDate:       startDate,
		EndDate:         req.EndDate,
		Active:          true,
	}
	if err := s.repo.Create(ctx, agreement); err != nil {
		return nil, report, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create agreement")
	}

	s.writeAudit(ctx, claims, models.AuditActionAgreementCreate, agreement.ID, map[string]interface{}{
		"teacher_id": agreement.TeacherID,
		"student_id": agreement.StudentID,
		"frequency":  string(agreement.Frequency),
		"forced":     req.Force,
	})
	return agreement, report, nil
}

// Update applies partial changes to an agreement's pattern.
func (s *AgreementService) Update(ctx context.Context, id string, req UpdateAgreementRequest, claims *models.JWTClaims) (*models.Agreement, error) {
	if !canManageAgreements(claims) {
		return nil, appErrors.Clone(appErrors.ErrPermissionDenied, "not allowed to manage agreements")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid agreement payload")
	}

	agreement, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.DayOfWeek != nil {
		agreement.DayOfWeek = *req.DayOfWeek
	}
	if req.StartTime != nil {
		if _, err := recurrence.ClockMinutes(*req.StartTime); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid start time")
		}
		agreement.StartTime = *req.StartTime
	}
	if req.DurationMinutes != nil {
		agreement.DurationMinutes = *req.DurationMinutes
	}
	if req.Frequency != nil {
		if !req.Frequency.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "invalid frequency")
		}
		agreement.Frequency = *req.Frequency
	}
	if req.EndDate != nil {
		endDate := recurrence.DateOnly(*req.EndDate)
		if endDate.Before(recurrence.DateOnly(agreement.StartDate)) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "end date precedes start date")
		}
		agreement.EndDate = &endDate
	}

	if err := s.repo.Update(ctx, agreement); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "agreement not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update agreement")
	}

	s.writeAudit(ctx, claims, models.AuditActionAgreementUpdate, agreement.ID, map[string]interface{}{
		"day_of_week": agreement.DayOfWeek,
		"start_time":  agreement.StartTime,
	})
	return agreement, nil
}

// Archive deactivates an agreement without deleting its history.
func (s *AgreementService) Archive(ctx context.Context, id string, claims *models.JWTClaims) error {
	if !canManageAgreements(claims) {
		return appErrors.Clone(appErrors.ErrPermissionDenied, "not allowed to manage agreements")
	}
	if err := s.repo.Archive(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "agreement not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to archive agreement")
	}
	s.writeAudit(ctx, claims, models.AuditActionAgreementArchive, id, nil)
	return nil
}

func (s *AgreementService) writeAudit(ctx context.Context, claims *models.JWTClaims, action, resourceID string, values map[string]interface{}) {
	if s.audit == nil {
		return
	}
	entry := &models.AuditLog{
		Action:     action,
		Resource:   "agreement",
		ResourceID: &resourceID,
	}
	if claims != nil {
		entry.UserID = &claims.UserID
	}
	if values != nil {
		if payload, err := json.Marshal(values); err == nil {
			entry.NewValues = payload
		}
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}
