package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cadenza-app/lesson-api/internal/middleware"
	"github.com/cadenza-app/lesson-api/internal/recurrence"
	"github.com/cadenza-app/lesson-api/internal/service"
	appErrors "github.com/cadenza-app/lesson-api/pkg/errors"
	"github.com/cadenza-app/lesson-api/pkg/response"
)

// AvailabilityHandler serves slot availability checks.
type AvailabilityHandler struct {
	service *service.AvailabilityService
}

// NewAvailabilityHandler constructs handler.
func NewAvailabilityHandler(svc *service.AvailabilityService) *AvailabilityHandler {
	return &AvailabilityHandler{service: svc}
}

type availabilityPayload struct {
	DayOfWeek       int     `json:"day_of_week"`
	StartTime       string  `json:"start_time" binding:"required"`
	DurationMinutes int     `json:"duration_minutes" binding:"required"`
	Frequency       string  `json:"frequency" binding:"required"`
	StartDate       string  `json:"start_date" binding:"required"`
	EndDate         *string `json:"end_date"`
}

// Check godoc
// @Summary Check slot availability
// @Description Classify a candidate weekly slot as free, occupied or partial
// @Description against the teacher's effective schedule.
// @Tags Availability
// @Accept json
// @Produce json
// @Param id path string true "Teacher ID"
// @Param payload body availabilityPayload true "Candidate slot"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/availability [post]
func (h *AvailabilityHandler) Check(c *gin.Context) {
	var payload availabilityPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	startDate, err := time.Parse("2006-01-02", payload.StartDate)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid start_date"))
		return
	}
	candidate := service.CandidateSlot{
		DayOfWeek:       payload.DayOfWeek,
		StartTime:       payload.StartTime,
		DurationMinutes: payload.DurationMinutes,
		Frequency:       recurrence.Frequency(payload.Frequency),
		StartDate:       startDate,
	}
	if payload.EndDate != nil {
		endDate, err := time.Parse("2006-01-02", *payload.EndDate)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid end_date"))
			return
		}
		candidate.EndDate = &endDate
	}

	report, err := h.service.Check(c.Request.Context(), c.Param("id"), candidate)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, report.FromCache)
	response.JSON(c, http.StatusOK, report, nil, middleware.ExtractMeta(c))
}
