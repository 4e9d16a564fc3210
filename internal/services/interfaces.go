package services

import (
	"context"
	"io"
	"time"

	"github.com/ncsedu/grading-service/internal/models"
	"github.com/ncsedu/grading-service/internal/repositories"
)

// ===== REQUEST/RESPONSE DTOs =====

type EmailCheckResponse struct {
	Exists bool `json:"exists"`
}

// CreateProfileRequest carries the self-service signup fields. Identity and
// email come from the session, never from the request body.
type CreateProfileRequest struct {
	FullName string          `json:"full_name" validate:"required,min=1,max=100"`
	Phone    *string         `json:"phone" validate:"omitempty,max=30"`
	Role     models.UserRole `json:"role" validate:"required,user_role"`
}

type UpdateProfileRequest struct {
	FullName *string `json:"full_name" validate:"omitempty,min=1,max=100"`
	Phone    *string `json:"phone" validate:"omitempty,max=30"`
}

type UpdatePreferencesRequest struct {
	Theme models.Theme `json:"theme" validate:"required,theme"`
}

type ProfileResponse struct {
	*models.Profile
	CanEdit bool `json:"can_edit"`

	// Created distinguishes a fresh signup from the idempotent return of an
	// existing row, so the handler can pick 201 vs 200.
	Created bool `json:"-"`
}

type ProfileListResponse struct {
	Profiles []*ProfileResponse `json:"profiles"`
	Total    int64              `json:"total"`
	Page     int                `json:"page"`
	Size     int                `json:"size"`
}

type CreateCourseRequest struct {
	Name        string  `json:"name" validate:"required,min=1,max=200"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
}

type UpdateCourseRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=200"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
}

type CourseResponse struct {
	*models.Course
	CanEdit   bool `json:"can_edit"`
	CanDelete bool `json:"can_delete"`
}

type CourseListResponse struct {
	Courses []*CourseResponse `json:"courses"`
	Total   int64             `json:"total"`
	Page    int               `json:"page"`
	Size    int               `json:"size"`
}

type CreateUnitRequest struct {
	CourseID    uint    `json:"course_id" validate:"required"`
	Code        string  `json:"code" validate:"required,competency_code"`
	Name        string  `json:"name" validate:"required,min=1,max=200"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	SortOrder   int     `json:"sort_order" validate:"min=0"`
}

type UpdateUnitRequest struct {
	Code        *string `json:"code" validate:"omitempty,competency_code"`
	Name        *string `json:"name" validate:"omitempty,min=1,max=200"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	SortOrder   *int    `json:"sort_order" validate:"omitempty,min=0"`
}

type CreateElementRequest struct {
	CompetencyUnitID uint    `json:"competency_unit_id" validate:"required"`
	Code             string  `json:"code" validate:"required,competency_code"`
	Name             string  `json:"name" validate:"required,min=1,max=200"`
	MaxScore         int     `json:"max_score" validate:"required,min=1,max=100"`
	Criteria         *string `json:"criteria" validate:"omitempty,max=2000"`
	SortOrder        int     `json:"sort_order" validate:"min=0"`
}

type UpdateElementRequest struct {
	Code     *string `json:"code" validate:"omitempty,competency_code"`
	Name     *string `json:"name" validate:"omitempty,min=1,max=200"`
	MaxScore *int    `json:"max_score" validate:"omitempty,min=1,max=100"`
	Criteria *string `json:"criteria" validate:"omitempty,max=2000"`
}

type CreateScheduleRequest struct {
	CompetencyUnitID uint       `json:"competency_unit_id" validate:"required"`
	Title            string     `json:"title" validate:"required,max=200"`
	Status           *string    `json:"status" validate:"omitempty,schedule_status"`
	OpensAt          *time.Time `json:"opens_at"`
	ClosesAt         *time.Time `json:"closes_at"`
}

type UpdateScheduleRequest struct {
	Title    *string    `json:"title" validate:"omitempty,max=200"`
	Status   *string    `json:"status" validate:"omitempty,schedule_status"`
	OpensAt  *time.Time `json:"opens_at"`
	ClosesAt *time.Time `json:"closes_at"`
}

type CreateEvaluationRequest struct {
	StudentID        string             `json:"student_id" validate:"required"`
	CompetencyUnitID uint               `json:"competency_unit_id" validate:"required"`
	Scores           map[string]float64 `json:"scores"`
	Comment          *string            `json:"comment" validate:"omitempty,max=2000"`
	SubmissionID     *uint              `json:"submission_id"`
}

type UpdateEvaluationRequest struct {
	Scores       map[string]float64       `json:"scores"`
	Comment      *string                  `json:"comment" validate:"omitempty,max=2000"`
	Status       *models.EvaluationStatus `json:"status"`
	SubmissionID *uint                    `json:"submission_id"`
}

type EvaluationResponse struct {
	*models.Evaluation
	CanEdit   bool `json:"can_edit"`
	CanDelete bool `json:"can_delete"`
}

type EvaluationListResponse struct {
	Evaluations []*EvaluationResponse `json:"evaluations"`
	Total       int64                 `json:"total"`
	Page        int                   `json:"page"`
	Size        int                   `json:"size"`
}

type EvaluationCheckResponse struct {
	Exists bool `json:"exists"`
}

// UploadSubmissionRequest describes one multipart upload. Size is taken from
// the multipart header and re-checked against the byte stream.
type UploadSubmissionRequest struct {
	ScheduleID  uint
	FileName    string
	ContentType string
	Size        int64
	Content     io.Reader
}

type SubmissionResponse struct {
	*models.Submission
	URL string `json:"url,omitempty"`
}

type SubmissionListResponse struct {
	Submissions []*SubmissionResponse `json:"submissions"`
	Total       int64                 `json:"total"`
}

type SignedURLResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ===== SERVICE INTERFACES =====

type ProfileService interface {
	// Signup surface
	CheckEmail(ctx context.Context, email string) (*EmailCheckResponse, error)
	Create(ctx context.Context, identity *models.Identity, req *CreateProfileRequest) (*ProfileResponse, error)

	// Session surface
	GetMe(ctx context.Context, userID string) (*ProfileResponse, error)
	// GetForDisplay is the fail-open read for UI chrome: errors degrade to
	// nil instead of failing the page.
	GetForDisplay(ctx context.Context, userID string) *models.Profile

	// Admin and self management
	GetByID(ctx context.Context, id string, actorID string) (*ProfileResponse, error)
	Update(ctx context.Context, id string, req *UpdateProfileRequest, actorID string) (*ProfileResponse, error)
	List(ctx context.Context, filters repositories.ProfileFilters, actorID string) (*ProfileListResponse, error)
	SetApproval(ctx context.Context, id string, approved bool, actorID string) error

	// Preferences
	GetPreferences(ctx context.Context, userID string) (*models.UserPreferences, error)
	UpdatePreferences(ctx context.Context, userID string, req *UpdatePreferencesRequest) (*models.UserPreferences, error)
}

type CourseService interface {
	Create(ctx context.Context, req *CreateCourseRequest, actorID string) (*CourseResponse, error)
	GetByID(ctx context.Context, id uint, actorID string) (*CourseResponse, error)
	GetByIDWithDetails(ctx context.Context, id uint, actorID string) (*CourseResponse, error)
	Update(ctx context.Context, id uint, req *UpdateCourseRequest, actorID string) (*CourseResponse, error)
	Delete(ctx context.Context, id uint, actorID string) error
	List(ctx context.Context, filters repositories.CourseFilters, actorID string) (*CourseListResponse, error)

	AssignTeacher(ctx context.Context, courseID uint, teacherID string, actorID string) error
	RemoveTeacher(ctx context.Context, courseID uint, teacherID string, actorID string) error
	EnrollStudent(ctx context.Context, courseID uint, studentID string, actorID string) error
	RemoveStudent(ctx context.Context, courseID uint, studentID string, actorID string) error
}

type CompetencyService interface {
	CreateUnit(ctx context.Context, req *CreateUnitRequest, actorID string) (*models.CompetencyUnit, error)
	GetUnit(ctx context.Context, id uint, actorID string) (*models.CompetencyUnit, error)
	UpdateUnit(ctx context.Context, id uint, req *UpdateUnitRequest, actorID string) (*models.CompetencyUnit, error)
	DeleteUnit(ctx context.Context, id uint, actorID string) error
	ListUnits(ctx context.Context, courseID uint, actorID string) ([]*models.CompetencyUnit, error)

	CreateElement(ctx context.Context, req *CreateElementRequest, actorID string) (*models.CompetencyElement, error)
	GetElement(ctx context.Context, id uint, actorID string) (*models.CompetencyElement, error)
	UpdateElement(ctx context.Context, id uint, req *UpdateElementRequest, actorID string) (*models.CompetencyElement, error)
	DeleteElement(ctx context.Context, id uint, actorID string) error
	ListElements(ctx context.Context, unitID uint, actorID string) ([]*models.CompetencyElement, error)
}

type ScheduleService interface {
	Create(ctx context.Context, req *CreateScheduleRequest, actorID string) (*models.EvaluationSchedule, error)
	GetByID(ctx context.Context, id uint, actorID string) (*models.EvaluationSchedule, error)
	Update(ctx context.Context, id uint, req *UpdateScheduleRequest, actorID string) (*models.EvaluationSchedule, error)
	Delete(ctx context.Context, id uint, actorID string) error
	ListByUnit(ctx context.Context, unitID uint, actorID string) ([]*models.EvaluationSchedule, error)
}

type EvaluationService interface {
	Create(ctx context.Context, req *CreateEvaluationRequest, actorID string) (*EvaluationResponse, error)
	GetByID(ctx context.Context, id uint, actorID string) (*EvaluationResponse, error)
	Update(ctx context.Context, id uint, req *UpdateEvaluationRequest, actorID string) (*EvaluationResponse, error)
	Delete(ctx context.Context, id uint, actorID string) error
	List(ctx context.Context, filters repositories.EvaluationFilters, actorID string) (*EvaluationListResponse, error)

	// CheckExists mirrors the unique (student, unit) constraint for the UI's
	// pre-flight check.
	CheckExists(ctx context.Context, studentID string, unitID uint, actorID string) (*EvaluationCheckResponse, error)

	// Export produces an xlsx workbook of evaluations matching the filters.
	Export(ctx context.Context, filters repositories.EvaluationFilters, actorID string) ([]byte, error)

	// Stats aggregates evaluation counts and the average score per status.
	Stats(ctx context.Context, filters repositories.EvaluationFilters, actorID string) (*repositories.EvaluationStats, error)
}

type SubmissionService interface {
	Upload(ctx context.Context, req *UploadSubmissionRequest, studentID string) (*SubmissionResponse, error)
	GetSignedURL(ctx context.Context, submissionID uint, actorID string) (*SignedURLResponse, error)
	List(ctx context.Context, filters repositories.SubmissionFilters, actorID string) (*SubmissionListResponse, error)
}

// ===== SERVICE MANAGER =====

type ServiceManager interface {
	Profile() ProfileService
	Course() CourseService
	Competency() CompetencyService
	Schedule() ScheduleService
	Evaluation() EvaluationService
	Submission() SubmissionService

	Initialize(ctx context.Context) error
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
