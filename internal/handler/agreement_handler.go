package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cadenza-app/lesson-api/internal/models"
	"github.com/cadenza-app/lesson-api/internal/service"
	appErrors "github.com/cadenza-app/lesson-api/pkg/errors"
	"github.com/cadenza-app/lesson-api/pkg/response"
)

// AgreementHandler manages lesson agreement endpoints.
type AgreementHandler struct {
	service *service.AgreementService
}

// NewAgreementHandler constructs handler.
func NewAgreementHandler(svc *service.AgreementService) *AgreementHandler {
	return &AgreementHandler{service: svc}
}

// List godoc
// @Summary List agreements
// @Tags Agreements
// @Produce json
// @Param teacherId query string false "Filter by teacher"
// @Param studentId query string false "Filter by student"
// @Param active query bool false "Filter by active flag"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /agreements [get]
func (h *AgreementHandler) List(c *gin.Context) {
	var filter models.AgreementFilter
	filter.TeacherID = c.Query("teacherId")
	filter.StudentID = c.Query("studentId")
	if raw := c.Query("active"); raw != "" {
		if active, err := strconv.ParseBool(raw); err == nil {
			filter.Active = &active
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = limit
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	agreements, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, agreements, pagination)
}

// Get godoc
// @Summary Get agreement
// @Tags Agreements
// @Produce json
// @Param id path string true "Agreement ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /agreements/{id} [get]
func (h *AgreementHandler) Get(c *gin.Context) {
	agreement, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, agreement, nil)
}

// Create godoc
// @Summary Create agreement
// @Description Provision a recurring lesson agreement. The teacher's slot is
// @Description checked first; set force to provision into an occupied slot.
// @Tags Agreements
// @Accept json
// @Produce json
// @Param payload body service.CreateAgreementRequest true "Agreement payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /agreements [post]
func (h *AgreementHandler) Create(c *gin.Context) {
	var req service.CreateAgreementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	agreement, report, err := h.service.Create(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	meta := map[string]interface{}{}
	if report != nil && report.Classification != models.SlotFree {
		meta["availability"] = report
	}
	response.JSON(c, http.StatusCreated, agreement, nil, meta)
}

// Update godoc
// @Summary Update agreement
// @Tags Agreements
// @Accept json
// @Produce json
// @Param id path string true "Agreement ID"
// @Param payload body service.UpdateAgreementRequest true "Agreement payload"
// @Success 200 {object} response.Envelope
// @Router /agreements/{id} [put]
func (h *AgreementHandler) Update(c *gin.Context) {
	var req service.UpdateAgreementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	agreement, err := h.service.Update(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, agreement, nil)
}

// Archive godoc
// @Summary Archive agreement
// @Tags Agreements
// @Produce json
// @Param id path string true "Agreement ID"
// @Success 204
// @Router /agreements/{id} [delete]
func (h *AgreementHandler) Archive(c *gin.Context) {
	if err := h.service.Archive(c.Request.Context(), c.Param("id"), claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
