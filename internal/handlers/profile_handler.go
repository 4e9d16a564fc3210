package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ncsedu/grading-service/internal/models"
	"github.com/ncsedu/grading-service/internal/repositories"
	"github.com/ncsedu/grading-service/internal/services"
	"github.com/ncsedu/grading-service/internal/utils"
)

type ProfileHandler struct {
	BaseHandler
	profileService services.ProfileService
}

func NewProfileHandler(profileService services.ProfileService, logger utils.Logger) *ProfileHandler {
	return &ProfileHandler{
		BaseHandler:    NewBaseHandler(logger),
		profileService: profileService,
	}
}

// ===== SIGNUP SURFACE =====

type checkEmailRequest struct {
	Email string `json:"email"`
}

// CheckEmail reports whether an account already exists for the address.
func (h *ProfileHandler) CheckEmail(c *gin.Context) {
	var req checkEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Email is required",
		})
		return
	}

	result, err := h.profileService.CheckEmail(c.Request.Context(), req.Email)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// CreateProfile finalizes signup for the authenticated identity. Idempotent:
// posting twice returns the existing profile with 200 instead of 201.
func (h *ProfileHandler) CreateProfile(c *gin.Context) {
	identity := IdentityFromContext(c)
	if identity == nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Message: "User not authenticated"})
		return
	}

	var req services.CreateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Creating profile", "user_id", identity.ID, "role", req.Role)

	profile, err := h.profileService.Create(c.Request.Context(), identity, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	status := http.StatusOK
	if profile.Created {
		status = http.StatusCreated
	}
	c.JSON(status, profile)
}

// Me returns the caller's own profile.
func (h *ProfileHandler) Me(c *gin.Context) {
	userID := UserIDFromContext(c)

	profile, err := h.profileService.GetMe(c.Request.Context(), userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, profile)
}

// UpdateMe lets the caller edit their own profile. Role and approval are not
// part of the request shape and cannot be touched here.
func (h *ProfileHandler) UpdateMe(c *gin.Context) {
	userID := UserIDFromContext(c)

	var req services.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	profile, err := h.profileService.Update(c.Request.Context(), userID, &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, profile)
}

// ===== MANAGEMENT =====

func (h *ProfileHandler) GetProfile(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Profile ID is required"})
		return
	}

	profile, err := h.profileService.GetByID(c.Request.Context(), id, UserIDFromContext(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, profile)
}

func (h *ProfileHandler) ListProfiles(c *gin.Context) {
	h.LogRequest(c, "Listing profiles")

	filters := h.parseProfileFilters(c)

	result, err := h.profileService.List(c.Request.Context(), filters, UserIDFromContext(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

type approvalRequest struct {
	Approved bool `json:"approved"`
}

// SetApproval flips the admin approval gate on a profile.
func (h *ProfileHandler) SetApproval(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Profile ID is required"})
		return
	}

	var req approvalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Setting profile approval", "profile_id", id, "approved", req.Approved)

	if err := h.profileService.SetApproval(c.Request.Context(), id, req.Approved, UserIDFromContext(c)); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": id, "approved": req.Approved})
}

// ===== PREFERENCES =====

func (h *ProfileHandler) GetPreferences(c *gin.Context) {
	prefs, err := h.profileService.GetPreferences(c.Request.Context(), UserIDFromContext(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, prefs)
}

func (h *ProfileHandler) UpdatePreferences(c *gin.Context) {
	var req services.UpdatePreferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	prefs, err := h.profileService.UpdatePreferences(c.Request.Context(), UserIDFromContext(c), &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, prefs)
}

// ===== HELPERS =====

func (h *ProfileHandler) parseProfileFilters(c *gin.Context) repositories.ProfileFilters {
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

	filters := repositories.ProfileFilters{
		Query:     c.Query("q"),
		Limit:     size,
		Offset:    (page - 1) * size,
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}

	if roleStr := c.Query("role"); roleStr != "" {
		role := models.UserRole(roleStr)
		if role.Valid() {
			filters.Role = &role
		}
	}
	if approvedStr := c.Query("approved"); approvedStr != "" {
		if approved, err := strconv.ParseBool(approvedStr); err == nil {
			filters.Approved = &approved
		}
	}

	return filters
}
