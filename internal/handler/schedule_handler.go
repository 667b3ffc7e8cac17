package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cadenza-app/lesson-api/internal/service"
	appErrors "github.com/cadenza-app/lesson-api/pkg/errors"
	"github.com/cadenza-app/lesson-api/pkg/response"
)

// ScheduleHandler serves effective schedule views and exports.
type ScheduleHandler struct {
	service       *service.ScheduleService
	export        *service.ExportService
	defaultWindow time.Duration
}

// NewScheduleHandler constructs handler. defaultWindow is used when the
// caller omits the to parameter.
func NewScheduleHandler(svc *service.ScheduleService, export *service.ExportService, defaultWindow time.Duration) *ScheduleHandler {
	if defaultWindow <= 0 {
		defaultWindow = 8 * 7 * 24 * time.Hour
	}
	return &ScheduleHandler{service: svc, export: export, defaultWindow: defaultWindow}
}

func (h *ScheduleHandler) window(c *gin.Context) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	from, err := dateQuery(c, "from", now)
	if err != nil {
		return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "invalid from date")
	}
	to, err := dateQuery(c, "to", from.Add(h.defaultWindow))
	if err != nil {
		return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "invalid to date")
	}
	return from, to, nil
}

// ByTeacher godoc
// @Summary Effective schedule for a teacher
// @Description Merged calendar of all the teacher's active agreements with
// @Description deviations applied.
// @Tags Schedule
// @Produce json
// @Param id path string true "Teacher ID"
// @Param from query string false "Window start (YYYY-MM-DD)"
// @Param to query string false "Window end (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/schedule [get]
func (h *ScheduleHandler) ByTeacher(c *gin.Context) {
	from, to, err := h.window(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	entries, err := h.service.EffectiveScheduleForTeacher(c.Request.Context(), c.Param("id"), from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// ByAgreement godoc
// @Summary Effective schedule for an agreement
// @Tags Schedule
// @Produce json
// @Param id path string true "Agreement ID"
// @Param from query string false "Window start (YYYY-MM-DD)"
// @Param to query string false "Window end (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /agreements/{id}/schedule [get]
func (h *ScheduleHandler) ByAgreement(c *gin.Context) {
	from, to, err := h.window(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	entries, err := h.service.EffectiveScheduleForAgreement(c.Request.Context(), c.Param("id"), from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// Export godoc
// @Summary Export a teacher's schedule
// @Tags Schedule
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Teacher ID"
// @Param format query string true "csv or pdf"
// @Param from query string false "Window start (YYYY-MM-DD)"
// @Param to query string false "Window end (YYYY-MM-DD)"
// @Success 200 {file} binary
// @Router /teachers/{id}/schedule/export [get]
func (h *ScheduleHandler) Export(c *gin.Context) {
	if h.export == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "exports are disabled"))
		return
	}
	from, to, err := h.window(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	format := service.ExportFormat(c.DefaultQuery("format", "csv"))

	result, err := h.export.TeacherSchedule(c.Request.Context(), c.Param("id"), from, to, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
	c.Data(http.StatusOK, result.ContentType, result.Data)
}
