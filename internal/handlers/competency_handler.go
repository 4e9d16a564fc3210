package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ncsedu/grading-service/internal/services"
	"github.com/ncsedu/grading-service/internal/utils"
)

type CompetencyHandler struct {
	BaseHandler
	competencyService services.CompetencyService
}

func NewCompetencyHandler(competencyService services.CompetencyService, logger utils.Logger) *CompetencyHandler {
	return &CompetencyHandler{
		BaseHandler:       NewBaseHandler(logger),
		competencyService: competencyService,
	}
}

// ===== UNITS =====

func (h *CompetencyHandler) CreateUnit(c *gin.Context) {
	var req services.CreateUnitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Creating competency unit", "course_id", req.CourseID, "code", req.Code)

	unit, err := h.competencyService.CreateUnit(c.Request.Context(), &req, UserIDFromContext(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, unit)
}

func (h *CompetencyHandler) GetUnit(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	unit, err := h.competencyService.GetUnit(c.Request.Context(), id, UserIDFromContext(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, unit)
}

func (h *CompetencyHandler) UpdateUnit(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var req services.UpdateUnitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	unit, err := h.competencyService.UpdateUnit(c.Request.Context(), id, &req, UserIDFromContext(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, unit)
}

func (h *CompetencyHandler) DeleteUnit(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	if err := h.competencyService.DeleteUnit(c.Request.Context(), id, UserIDFromContext(c)); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ListUnits lists units for a course given by query parameter.
func (h *CompetencyHandler) ListUnits(c *gin.Context) {
	courseIDStr := c.Query("course_id")
	courseID, err := strconv.ParseUint(courseIDStr, 10, 32)
	if err != nil || courseID == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "course_id query parameter is required"})
		return
	}

	units, err := h.competencyService.ListUnits(c.Request.Context(), uint(courseID), UserIDFromContext(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"units": units})
}

// ===== ELEMENTS =====

func (h *CompetencyHandler) CreateElement(c *gin.Context) {
	var req services.CreateElementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Creating competency element", "unit_id", req.CompetencyUnitID, "code", req.Code)

	element, err := h.competencyService.CreateElement(c.Request.Context(), &req, UserIDFromContext(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, element)
}

func (h *CompetencyHandler) GetElement(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	element, err := h.competencyService.GetElement(c.Request.Context(), id, UserIDFromContext(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, element)
}

func (h *CompetencyHandler) UpdateElement(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var req services.UpdateElementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	element, err := h.competencyService.UpdateElement(c.Request.Context(), id, &req, UserIDFromContext(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, element)
}

func (h *CompetencyHandler) DeleteElement(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	if err := h.competencyService.DeleteElement(c.Request.Context(), id, UserIDFromContext(c)); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ListElements lists elements for a unit given by query parameter.
func (h *CompetencyHandler) ListElements(c *gin.Context) {
	unitIDStr := c.Query("unit_id")
	unitID, err := strconv.ParseUint(unitIDStr, 10, 32)
	if err != nil || unitID == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "unit_id query parameter is required"})
		return
	}

	elements, err := h.competencyService.ListElements(c.Request.Context(), uint(unitID), UserIDFromContext(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"elements": elements})
}
