package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ncsedu/grading-service/internal/models"
	"github.com/ncsedu/grading-service/internal/repositories"
	"github.com/ncsedu/grading-service/internal/services"
	"github.com/ncsedu/grading-service/internal/utils"
)

type EvaluationHandler struct {
	BaseHandler
	evaluationService services.EvaluationService
}

func NewEvaluationHandler(evaluationService services.EvaluationService, logger utils.Logger) *EvaluationHandler {
	return &EvaluationHandler{
		BaseHandler:       NewBaseHandler(logger),
		evaluationService: evaluationService,
	}
}

func (h *EvaluationHandler) CreateEvaluation(c *gin.Context) {
	var req services.CreateEvaluationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Creating evaluation", "student_id", req.StudentID, "unit_id", req.CompetencyUnitID)

	evaluation, err := h.evaluationService.Create(c.Request.Context(), &req, UserIDFromContext(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, evaluation)
}

func (h *EvaluationHandler) GetEvaluation(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	evaluation, err := h.evaluationService.GetByID(c.Request.Context(), id, UserIDFromContext(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, evaluation)
}

func (h *EvaluationHandler) UpdateEvaluation(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var req services.UpdateEvaluationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	evaluation, err := h.evaluationService.Update(c.Request.Context(), id, &req, UserIDFromContext(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, evaluation)
}

func (h *EvaluationHandler) DeleteEvaluation(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Deleting evaluation", "evaluation_id", id)

	if err := h.evaluationService.Delete(c.Request.Context(), id, UserIDFromContext(c)); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *EvaluationHandler) ListEvaluations(c *gin.Context) {
	filters := h.parseEvaluationFilters(c)

	result, err := h.evaluationService.List(c.Request.Context(), filters, UserIDFromContext(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// CheckEvaluation is the defensive pre-flight for the unique (student, unit)
// pair; the DB constraint remains authoritative.
func (h *EvaluationHandler) CheckEvaluation(c *gin.Context) {
	studentID := c.Query("student_id")
	unitIDStr := c.Query("unit_id")
	unitID, err := strconv.ParseUint(unitIDStr, 10, 32)
	if studentID == "" || err != nil || unitID == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "student_id and unit_id query parameters are required",
		})
		return
	}

	result, err := h.evaluationService.CheckExists(c.Request.Context(), studentID, uint(unitID), UserIDFromContext(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetEvaluationStats returns status counts and the average score for the
// matching evaluations.
func (h *EvaluationHandler) GetEvaluationStats(c *gin.Context) {
	filters := h.parseEvaluationFilters(c)

	stats, err := h.evaluationService.Stats(c.Request.Context(), filters, UserIDFromContext(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// ExportEvaluations streams an xlsx workbook of the matching evaluations.
func (h *EvaluationHandler) ExportEvaluations(c *gin.Context) {
	filters := h.parseEvaluationFilters(c)

	h.LogRequest(c, "Exporting evaluations")

	data, err := h.evaluationService.Export(c.Request.Context(), filters, UserIDFromContext(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	filename := fmt.Sprintf("evaluations-%s.xlsx", time.Now().Format("2006-01-02"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

func (h *EvaluationHandler) parseEvaluationFilters(c *gin.Context) repositories.EvaluationFilters {
	page := 1
	size := 20

	if pageStr := c.Query("page"); pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
			page = p
		}
	}
	if sizeStr := c.Query("size"); sizeStr != "" {
		if s, err := strconv.Atoi(sizeStr); err == nil && s > 0 && s <= 100 {
			size = s
		}
	}

	filters := repositories.EvaluationFilters{
		Limit:     size,
		Offset:    (page - 1) * size,
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}

	if statusStr := c.Query("status"); statusStr != "" {
		status := models.EvaluationStatus(statusStr)
		if status.Valid() {
			filters.Status = &status
		}
	}
	if studentID := c.Query("student_id"); studentID != "" {
		filters.StudentID = &studentID
	}
	if unitIDStr := c.Query("unit_id"); unitIDStr != "" {
		if unitID, err := strconv.ParseUint(unitIDStr, 10, 32); err == nil {
			id := uint(unitID)
			filters.CompetencyUnitID = &id
		}
	}
	if courseIDStr := c.Query("course_id"); courseIDStr != "" {
		if courseID, err := strconv.ParseUint(courseIDStr, 10, 32); err == nil {
			id := uint(courseID)
			filters.CourseID = &id
		}
	}

	return filters
}
