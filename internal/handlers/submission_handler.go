package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ncsedu/grading-service/internal/repositories"
	"github.com/ncsedu/grading-service/internal/services"
	"github.com/ncsedu/grading-service/internal/utils"
)

type SubmissionHandler struct {
	BaseHandler
	submissionService services.SubmissionService
}

func NewSubmissionHandler(submissionService services.SubmissionService, logger utils.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		BaseHandler:       NewBaseHandler(logger),
		submissionService: submissionService,
	}
}

// UploadSubmission accepts one multipart image upload against an open
// schedule. The size header is advisory; the service re-checks the stream.
func (h *SubmissionHandler) UploadSubmission(c *gin.Context) {
	scheduleIDStr := c.PostForm("schedule_id")
	scheduleID, err := strconv.ParseUint(scheduleIDStr, 10, 32)
	if err != nil || scheduleID == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "schedule_id form field is required"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "file form field is required",
			Details: err.Error(),
		})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.LogError(c, err, "Failed to open uploaded file")
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Unable to read uploaded file"})
		return
	}
	defer file.Close()

	h.LogRequest(c, "Uploading submission",
		"schedule_id", scheduleID,
		"file_name", fileHeader.Filename,
		"size_bytes", fileHeader.Size)

	req := &services.UploadSubmissionRequest{
		ScheduleID:  uint(scheduleID),
		FileName:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Size:        fileHeader.Size,
		Content:     file,
	}

	submission, err := h.submissionService.Upload(c.Request.Context(), req, UserIDFromContext(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, submission)
}

// GetSignedURL re-signs a download link for an existing submission.
func (h *SubmissionHandler) GetSignedURL(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	result, err := h.submissionService.GetSignedURL(c.Request.Context(), id, UserIDFromContext(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *SubmissionHandler) ListSubmissions(c *gin.Context) {
	filters := repositories.SubmissionFilters{Limit: 20}

	if studentID := c.Query("student_id"); studentID != "" {
		filters.StudentID = &studentID
	}
	if scheduleIDStr := c.Query("schedule_id"); scheduleIDStr != "" {
		if scheduleID, err := strconv.ParseUint(scheduleIDStr, 10, 32); err == nil {
			id := uint(scheduleID)
			filters.ScheduleID = &id
		}
	}
	if sizeStr := c.Query("size"); sizeStr != "" {
		if s, err := strconv.Atoi(sizeStr); err == nil && s > 0 && s <= 100 {
			filters.Limit = s
		}
	}
	if pageStr := c.Query("page"); pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 1 {
			filters.Offset = (p - 1) * filters.Limit
		}
	}

	result, err := h.submissionService.List(c.Request.Context(), filters, UserIDFromContext(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
