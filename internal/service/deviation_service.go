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

type deviationRepository interface {
	FindByID(ctx context.Context, id string) (*models.Deviation, error)
	FindByAgreementAndDate(ctx context.Context, agreementID string, originalDate time.Time) (*models.Deviation, error)
	FindCoveringRecurring(ctx context.Context, agreementID string, date time.Time) (*models.Deviation, error)
	Insert(ctx context.Context, deviation *models.Deviation) error
	Update(ctx context.Context, deviation *models.Deviation) error
	Delete(ctx context.Context, id string) error
	ReplaceRecurring(ctx context.Context, oldID string, replacement *models.Deviation) error
}

type deviationAgreementRepository interface {
	FindByID(ctx context.Context, id string) (*models.Agreement, error)
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// CreateDeviationRequest describes an ad-hoc move or cancellation of one
// occurrence, or of a forward-looking span when Recurring is set.
type CreateDeviationRequest struct {
	AgreementID      string     `json:"agreement_id" validate:"required"`
	OriginalDate     time.Time  `json:"original_date" validate:"required"`
	ActualDate       *time.Time `json:"actual_date"`
	ActualStartTime  string     `json:"actual_start_time"`
	Cancelled        bool       `json:"cancelled"`
	Recurring        bool       `json:"recurring"`
	RecurringEndDate *time.Time `json:"recurring_end_date"`
}

// DeviationService is the resolution engine for schedule deviations: it
// decides which rows to create, rewrite or delete so that a requested
// change or restore holds without corrupting other weeks.
type DeviationService struct {
	deviations deviationRepository
	agreements deviationAgreementRepository
	audit      auditLogger
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewDeviationService instantiates DeviationService.
func NewDeviationService(deviations deviationRepository, agreements deviationAgreementRepository, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *DeviationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeviationService{deviations: deviations, agreements: agreements, audit: audit, validator: validate, logger: logger}
}

// canMutateDeviations is the authorization gate for every mutation: only
// the agreement's own teacher or scheduling staff may touch its deviations.
// A missing principal fails closed.
func canMutateDeviations(claims *models.JWTClaims, agreement *models.Agreement) bool {
	if claims == nil || agreement == nil {
		return false
	}
	switch claims.Role {
	case models.RoleAdmin, models.RoleStaff:
		return true
	case models.RoleTeacher:
		return claims.UserID == agreement.TeacherID
	}
	return false
}

func (s *DeviationService) loadAgreement(ctx context.Context, agreementID string) (*models.Agreement, error) {
	agreement, err := s.agreements.FindByID(ctx, agreementID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "agreement not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load agreement")
	}
	return agreement, nil
}

func (s *DeviationService) loadDeviation(ctx context.Context, deviationID string) (*models.Deviation, error) {
	deviation, err := s.deviations.FindByID(ctx, deviationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "deviation not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load deviation")
	}
	return deviation, nil
}

// RestoreWeek makes one target week show the agreement's original slot
// again. Scope selects whether only that week or the whole forward-looking
// coverage of a recurring deviation reverts. The returned outcome tags
// exactly which transition ran.
func (s *DeviationService) RestoreWeek(ctx context.Context, agreementID string, weekDate time.Time, scope models.RestoreScope, claims *models.JWTClaims) (models.RestoreOutcome, error) {
	if !scope.Valid() {
		return "", appErrors.Clone(appErrors.ErrValidation, "invalid restore scope")
	}

	agreement, err := s.loadAgreement(ctx, agreementID)
	if err != nil {
		return "", err
	}
	if !canMutateDeviations(claims, agreement) {
		return "", appErrors.ErrPermissionDenied
	}

	weekDate = recurrence.DateOnly(weekDate)
	if !recurrence.IsOccurrence(agreement.Pattern(), weekDate) {
		return "", appErrors.ErrInvalidOccurrence
	}

	exact, err := s.deviations.FindByAgreementAndDate(ctx, agreementID, weekDate)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up deviation")
	}
	covering, err := s.deviations.FindCoveringRecurring(ctx, agreementID, weekDate)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up covering deviation")
	}

	outcome, err := s.resolveRestore(ctx, agreement, weekDate, scope, exact, covering, claims)
	if err != nil {
		return "", err
	}
	if outcome != models.RestoreNoop {
		s.writeAudit(ctx, claims, models.AuditActionWeekRestore, "agreement", agreementID, map[string]interface{}{
			"week_date": weekDate.Format("2006-01-02"),
			"scope":     scope,
			"outcome":   outcome,
		})
	}
	return outcome, nil
}

// resolveRestore runs the state machine over the pair of rows that can
// speak for the target week: the row anchored exactly at weekDate and the
// recurring row covering it from an earlier week.
func (s *DeviationService) resolveRestore(ctx context.Context, agreement *models.Agreement, weekDate time.Time, scope models.RestoreScope, exact, covering *models.Deviation, claims *models.JWTClaims) (models.RestoreOutcome, error) {
	switch {
	case exact == nil && covering == nil:
		return models.RestoreNoop, nil

	case exact != nil && !exact.Recurring:
		if covering == nil {
			if err := s.deviations.Delete(ctx, exact.ID); err != nil {
				return "", err
			}
			return models.RestoreSingleDeleted, nil
		}
		if scope == models.ScopeThisAndFuture {
			// Restore everything forward: drop the single row, then close
			// the recurring coverage before the target week.
			if err := s.deviations.Delete(ctx, exact.ID); err != nil {
				return "", err
			}
			return s.endCovering(ctx, covering, weekDate, claims)
		}
		if exact.IsOverride() {
			// The week already shows the original slot.
			return models.RestoreNoop, nil
		}
		exact.ActualDate = exact.OriginalDate
		exact.ActualStartTime = exact.OriginalStartTime
		exact.Cancelled = false
		exact.UpdatedBy = claims.UserID
		if err := s.deviations.Update(ctx, exact); err != nil {
			return "", err
		}
		return models.RestoreSingleReplaced, nil

	case exact != nil && exact.Recurring:
		if scope == models.ScopeThisAndFuture {
			// The row never applied before this week, so it can go entirely.
			if err := s.deviations.Delete(ctx, exact.ID); err != nil {
				return "", err
			}
			return models.RestoreRecurringDeleted, nil
		}
		nextWeek := exact.OriginalDate.AddDate(0, 0, 7)
		if exact.RecurringEndDate != nil && nextWeek.After(*exact.RecurringEndDate) {
			// Shifting past its own end date would leave a row covering
			// nothing; remove it instead.
			if err := s.deviations.Delete(ctx, exact.ID); err != nil {
				return "", err
			}
			return models.RestoreRecurringDeleted, nil
		}
		exact.ActualDate = exact.ActualDate.AddDate(0, 0, 7)
		exact.OriginalDate = nextWeek
		exact.UpdatedBy = claims.UserID
		if err := s.deviations.Update(ctx, exact); err != nil {
			return "", err
		}
		return models.RestoreRecurringShifted, nil

	default: // covering != nil, nothing anchored at weekDate
		if scope == models.ScopeThisAndFuture {
			return s.endCovering(ctx, covering, weekDate, claims)
		}
		override := &models.Deviation{
			AgreementID:       agreement.ID,
			OriginalDate:      weekDate,
			OriginalStartTime: agreement.StartTime,
			ActualDate:        weekDate,
			ActualStartTime:   agreement.StartTime,
			CreatedBy:         claims.UserID,
			UpdatedBy:         claims.UserID,
		}
		if err := s.deviations.Insert(ctx, override); err != nil {
			return "", err
		}
		return models.RestoreOverrideInserted, nil
	}
}

// endCovering closes a recurring row's coverage so the week before
// weekDate is the last one it still affects.
func (s *DeviationService) endCovering(ctx context.Context, covering *models.Deviation, weekDate time.Time, claims *models.JWTClaims) (models.RestoreOutcome, error) {
	end := weekDate.AddDate(0, 0, -7)
	covering.RecurringEndDate = &end
	covering.UpdatedBy = claims.UserID
	if err := s.deviations.Update(ctx, covering); err != nil {
		return "", err
	}
	return models.RestoreRecurringEnded, nil
}

// ShiftRecurringToNextWeek moves a recurring deviation's whole coverage one
// week forward, preserving its payload. The replace is a single
// transaction; readers never observe zero or two rows.
func (s *DeviationService) ShiftRecurringToNextWeek(ctx context.Context, deviationID string, claims *models.JWTClaims) (*models.Deviation, error) {
	deviation, err := s.loadDeviation(ctx, deviationID)
	if err != nil {
		return nil, err
	}
	agreement, err := s.loadAgreement(ctx, deviation.AgreementID)
	if err != nil {
		return nil, err
	}
	if !canMutateDeviations(claims, agreement) {
		return nil, appErrors.ErrPermissionDenied
	}
	if !deviation.Recurring {
		return nil, appErrors.Clone(appErrors.ErrValidation, "deviation is not recurring")
	}

	replacement := &models.Deviation{
		AgreementID:       deviation.AgreementID,
		OriginalDate:      deviation.OriginalDate.AddDate(0, 0, 7),
		OriginalStartTime: deviation.OriginalStartTime,
		ActualDate:        deviation.ActualDate.AddDate(0, 0, 7),
		ActualStartTime:   deviation.ActualStartTime,
		Cancelled:         deviation.Cancelled,
		Recurring:         true,
		RecurringEndDate:  deviation.RecurringEndDate,
		CreatedBy:         claims.UserID,
		UpdatedBy:         claims.UserID,
	}
	if err := s.deviations.ReplaceRecurring(ctx, deviation.ID, replacement); err != nil {
		return nil, err
	}

	s.writeAudit(ctx, claims, models.AuditActionDeviationShift, "deviation", replacement.ID, map[string]interface{}{
		"replaced_id":   deviation.ID,
		"original_date": replacement.OriginalDate.Format("2006-01-02"),
	})
	return replacement, nil
}

// EndRecurringFromWeek bounds a recurring deviation so it no longer covers
// weekDate or anything after it. Ending a row at its own first week deletes
// it outright.
func (s *DeviationService) EndRecurringFromWeek(ctx context.Context, deviationID string, weekDate time.Time, claims *models.JWTClaims) (models.EndOutcome, error) {
	deviation, err := s.loadDeviation(ctx, deviationID)
	if err != nil {
		return "", err
	}
	agreement, err := s.loadAgreement(ctx, deviation.AgreementID)
	if err != nil {
		return "", err
	}
	if !canMutateDeviations(claims, agreement) {
		return "", appErrors.ErrPermissionDenied
	}
	if !deviation.Recurring {
		return "", appErrors.Clone(appErrors.ErrValidation, "deviation is not recurring")
	}

	weekDate = recurrence.DateOnly(weekDate)
	if !recurrence.IsOccurrence(agreement.Pattern(), weekDate) {
		return "", appErrors.ErrInvalidOccurrence
	}
	if weekDate.Before(deviation.OriginalDate) {
		return "", appErrors.Clone(appErrors.ErrValidation, "week precedes the deviation's first covered occurrence")
	}

	if weekDate.Equal(deviation.OriginalDate) {
		if err := s.deviations.Delete(ctx, deviation.ID); err != nil {
			return "", err
		}
		s.writeAudit(ctx, claims, models.AuditActionDeviationEnd, "deviation", deviation.ID, map[string]interface{}{"deleted": true})
		return models.EndDeleted, nil
	}

	end := weekDate.AddDate(0, 0, -7)
	deviation.RecurringEndDate = &end
	deviation.UpdatedBy = claims.UserID
	if err := s.deviations.Update(ctx, deviation); err != nil {
		return "", err
	}
	s.writeAudit(ctx, claims, models.AuditActionDeviationEnd, "deviation", deviation.ID, map[string]interface{}{
		"recurring_end_date": end.Format("2006-01-02"),
	})
	return models.EndUpdated, nil
}

// Create inserts an ad-hoc deviation after validating it against the
// agreement's pattern and the must-actually-deviate invariant.
func (s *DeviationService) Create(ctx context.Context, req CreateDeviationRequest, claims *models.JWTClaims) (*models.Deviation, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid deviation payload")
	}

	agreement, err := s.loadAgreement(ctx, req.AgreementID)
	if err != nil {
		return nil, err
	}
	if !canMutateDeviations(claims, agreement) {
		return nil, appErrors.ErrPermissionDenied
	}

	originalDate := recurrence.DateOnly(req.OriginalDate)
	if !recurrence.IsOccurrence(agreement.Pattern(), originalDate) {
		return nil, appErrors.ErrInvalidOccurrence
	}

	actualDate := originalDate
	if req.ActualDate != nil {
		actualDate = recurrence.DateOnly(*req.ActualDate)
	}
	actualStart := req.ActualStartTime
	if actualStart == "" {
		actualStart = agreement.StartTime
	}
	if _, err := recurrence.ClockMinutes(actualStart); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid actual start time")
	}

	deviation := &models.Deviation{
		AgreementID:       agreement.ID,
		OriginalDate:      originalDate,
		OriginalStartTime: agreement.StartTime,
		ActualDate:        actualDate,
		ActualStartTime:   actualStart,
		Cancelled:         req.Cancelled,
		Recurring:         req.Recurring,
		CreatedBy:         claims.UserID,
		UpdatedBy:         claims.UserID,
	}
	if req.RecurringEndDate != nil {
		if !req.Recurring {
			return nil, appErrors.Clone(appErrors.ErrValidation, "recurring_end_date requires a recurring deviation")
		}
		end := recurrence.DateOnly(*req.RecurringEndDate)
		if end.Before(originalDate) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "recurring_end_date precedes original_date")
		}
		deviation.RecurringEndDate = &end
	}

	if !deviation.Deviates() {
		// Legal only as an override row neutralising an active recurring
		// deviation for this one week.
		if deviation.Recurring {
			return nil, appErrors.ErrMustActuallyDeviate
		}
		covering, err := s.deviations.FindCoveringRecurring(ctx, agreement.ID, originalDate)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.ErrMustActuallyDeviate
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up covering deviation")
		}
		if covering == nil {
			return nil, appErrors.ErrMustActuallyDeviate
		}
	}

	if err := s.deviations.Insert(ctx, deviation); err != nil {
		return nil, err
	}
	s.writeAudit(ctx, claims, models.AuditActionDeviationCreate, "deviation", deviation.ID, map[string]interface{}{
		"agreement_id":  deviation.AgreementID,
		"original_date": deviation.OriginalDate.Format("2006-01-02"),
		"recurring":     deviation.Recurring,
		"cancelled":     deviation.Cancelled,
	})
	return deviation, nil
}

// Delete removes a deviation entirely, restoring its occurrence(s) to the
// base pattern.
func (s *DeviationService) Delete(ctx context.Context, deviationID string, claims *models.JWTClaims) error {
	deviation, err := s.loadDeviation(ctx, deviationID)
	if err != nil {
		return err
	}
	agreement, err := s.loadAgreement(ctx, deviation.AgreementID)
	if err != nil {
		return err
	}
	if !canMutateDeviations(claims, agreement) {
		return appErrors.ErrPermissionDenied
	}
	if err := s.deviations.Delete(ctx, deviation.ID); err != nil {
		return err
	}
	s.writeAudit(ctx, claims, models.AuditActionDeviationDelete, "deviation", deviation.ID, nil)
	return nil
}

func (s *DeviationService) writeAudit(ctx context.Context, claims *models.JWTClaims, action, resource, resourceID string, values map[string]interface{}) {
	if s.audit == nil {
		return
	}
	var payload []byte
	if values != nil {
		payload, _ = json.Marshal(values)
	}
	log := &models.AuditLog{
		Action:     action,
		Resource:   resource,
		ResourceID: &resourceID,
		NewValues:  payload,
	}
	if claims != nil {
		userID := claims.UserID
		log.UserID = &userID
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}
