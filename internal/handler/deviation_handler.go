package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cadenza-app/lesson-api/internal/models"
	"github.com/cadenza-app/lesson-api/internal/service"
	appErrors "github.com/cadenza-app/lesson-api/pkg/errors"
	"github.com/cadenza-app/lesson-api/pkg/response"
)

// DeviationHandler manages schedule deviation endpoints. All dates cross
// the wire as YYYY-MM-DD strings.
type DeviationHandler struct {
	service *service.DeviationService
}

// NewDeviationHandler constructs handler.
func NewDeviationHandler(svc *service.DeviationService) *DeviationHandler {
	return &DeviationHandler{service: svc}
}

type createDeviationPayload struct {
	OriginalDate     string  `json:"original_date" binding:"required"`
	ActualDate       *string `json:"actual_date"`
	ActualStartTime  string  `json:"actual_start_time"`
	Cancelled        bool    `json:"cancelled"`
	Recurring        bool    `json:"recurring"`
	RecurringEndDate *string `json:"recurring_end_date"`
}

type restoreWeekPayload struct {
	WeekDate string `json:"week_date" binding:"required"`
	Scope    string `json:"scope" binding:"required"`
}

type endDeviationPayload struct {
	WeekDate string `json:"week_date" binding:"required"`
}

func parseDate(raw string) (time.Time, error) {
	return time.Parse("2006-01-02", raw)
}

// Create godoc
// @Summary Create deviation
// @Description Move or cancel one occurrence of an agreement, or a
// @Description forward-looking span when recurring is set.
// @Tags Deviations
// @Accept json
// @Produce json
// @Param id path string true "Agreement ID"
// @Param payload body createDeviationPayload true "Deviation payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /agreements/{id}/deviations [post]
func (h *DeviationHandler) Create(c *gin.Context) {
	var payload createDeviationPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	req := service.CreateDeviationRequest{
		AgreementID:     c.Param("id"),
		ActualStartTime: payload.ActualStartTime,
		Cancelled:       payload.Cancelled,
		Recurring:       payload.Recurring,
	}
	originalDate, err := parseDate(payload.OriginalDate)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid original_date"))
		return
	}
	req.OriginalDate = originalDate
	if payload.ActualDate != nil {
		actualDate, err := parseDate(*payload.ActualDate)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid actual_date"))
			return
		}
		req.ActualDate = &actualDate
	}
	if payload.RecurringEndDate != nil {
		endDate, err := parseDate(*payload.RecurringEndDate)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid recurring_end_date"))
			return
		}
		req.RecurringEndDate = &endDate
	}

	deviation, err := h.service.Create(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, deviation)
}

// Delete godoc
// @Summary Delete deviation
// @Description Remove a deviation, restoring its occurrence(s) to the base pattern.
// @Tags Deviations
// @Produce json
// @Param id path string true "Deviation ID"
// @Success 204
// @Router /deviations/{id} [delete]
func (h *DeviationHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// RestoreWeek godoc
// @Summary Restore a week to the original slot
// @Description Make the target week show the agreement's original slot again.
// @Description Scope only_this reverts one week, this_and_future reverts the
// @Description whole forward coverage. The response reports which transition ran.
// @Tags Deviations
// @Accept json
// @Produce json
// @Param id path string true "Agreement ID"
// @Param payload body restoreWeekPayload true "Restore payload"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /agreements/{id}/restore [post]
func (h *DeviationHandler) RestoreWeek(c *gin.Context) {
	var payload restoreWeekPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	weekDate, err := parseDate(payload.WeekDate)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid week_date"))
		return
	}

	outcome, err := h.service.RestoreWeek(c.Request.Context(), c.Param("id"), weekDate, models.RestoreScope(payload.Scope), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"outcome": outcome}, nil)
}

// Shift godoc
// @Summary Shift recurring deviation one week forward
// @Tags Deviations
// @Produce json
// @Param id path string true "Deviation ID"
// @Success 200 {object} response.Envelope
// @Router /deviations/{id}/shift [post]
func (h *DeviationHandler) Shift(c *gin.Context) {
	deviation, err := h.service.ShiftRecurringToNextWeek(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, deviation, nil)
}

// End godoc
// @Summary End recurring deviation from a week
// @Description Bound the deviation so it no longer covers week_date or later.
// @Tags Deviations
// @Accept json
// @Produce json
// @Param id path string true "Deviation ID"
// @Param payload body endDeviationPayload true "End payload"
// @Success 200 {object} response.Envelope
// @Router /deviations/{id}/end [post]
func (h *DeviationHandler) End(c *gin.Context) {
	var payload endDeviationPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	weekDate, err := parseDate(payload.WeekDate)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid week_date"))
		return
	}

	outcome, err := h.service.EndRecurringFromWeek(c.Request.Context(), c.Param("id"), weekDate, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"outcome": outcome}, nil)
}
