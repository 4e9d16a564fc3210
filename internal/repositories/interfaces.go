package repositories

import (
	"context"
	"time"

	"github.com/ncsedu/grading-service/internal/models"
)

// ===== SHARED FILTER STRUCTS =====

type ProfileFilters struct {
	Role      *models.UserRole `json:"role"`
	Approved  *bool            `json:"approved"`
	Query     string           `json:"query"` // name or email
	Limit     int              `json:"limit"`
	Offset    int              `json:"offset"`
	SortBy    string           `json:"sort_by"`
	SortOrder string           `json:"sort_order"`
}

type CourseFilters struct {
	CreatedBy *string `json:"created_by"`
	Query     string  `json:"query"`
	Limit     int     `json:"limit"`
	Offset    int     `json:"offset"`
	SortBy    string  `json:"sort_by"`    // "created_at", "name"
	SortOrder string  `json:"sort_order"` // "asc", "desc"
}

type EvaluationFilters struct {
	Status           *models.EvaluationStatus `json:"status"`
	StudentID        *string                  `json:"student_id"`
	TeacherID        *string                  `json:"teacher_id"`
	CompetencyUnitID *uint                    `json:"competency_unit_id"`
	CourseID         *uint                    `json:"course_id"`
	DateFrom         *time.Time               `json:"date_from"`
	DateTo           *time.Time               `json:"date_to"`
	Limit            int                      `json:"limit"`
	Offset           int                      `json:"offset"`
	SortBy           string                   `json:"sort_by"`
	SortOrder        string                   `json:"sort_order"`
}

type SubmissionFilters struct {
	StudentID  *string `json:"student_id"`
	ScheduleID *uint   `json:"schedule_id"`
	Limit      int     `json:"limit"`
	Offset     int     `json:"offset"`
}

// ===== STATISTICS STRUCTS =====

type EvaluationStats struct {
	Total        int     `json:"total"`
	Draft        int     `json:"draft"`
	Submitted    int     `json:"submitted"`
	Confirmed    int     `json:"confirmed"`
	AverageScore float64 `json:"average_score"`
}

// ===== REPOSITORY INTERFACES =====

type ProfileRepository interface {
	Create(ctx context.Context, profile *models.Profile) error
	GetByID(ctx context.Context, id string) (*models.Profile, error)
	GetByEmail(ctx context.Context, email string) (*models.Profile, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Update(ctx context.Context, profile *models.Profile) error
	SetApproval(ctx context.Context, id string, approved bool) error
	List(ctx context.Context, filters ProfileFilters) ([]*models.Profile, int64, error)
}

type CourseRepository interface {
	Create(ctx context.Context, course *models.Course) error
	GetByID(ctx context.Context, id uint) (*models.Course, error)
	GetByIDWithDetails(ctx context.Context, id uint) (*models.Course, error)
	Update(ctx context.Context, course *models.Course) error
	Delete(ctx context.Context, id uint) error
	List(ctx context.Context, filters CourseFilters) ([]*models.Course, int64, error)
	ListForTeacher(ctx context.Context, teacherID string, filters CourseFilters) ([]*models.Course, int64, error)
	ListForStudent(ctx context.Context, studentID string, filters CourseFilters) ([]*models.Course, int64, error)

	// Membership management
	AssignTeacher(ctx context.Context, courseID uint, teacherID string) error
	RemoveTeacher(ctx context.Context, courseID uint, teacherID string) error
	EnrollStudent(ctx context.Context, courseID uint, studentID string) error
	RemoveStudent(ctx context.Context, courseID uint, studentID string) error

	// Relationship checks backing the policy evaluator
	IsTeacherAssigned(ctx context.Context, courseID uint, teacherID string) (bool, error)
	IsStudentEnrolled(ctx context.Context, courseID uint, studentID string) (bool, error)
	IsTeacherForUnit(ctx context.Context, unitID uint, teacherID string) (bool, error)
	IsStudentForUnit(ctx context.Context, unitID uint, studentID string) (bool, error)

	// SharesCourse reports whether the teacher and student meet in at least
	// one course. Backs teacher roster reads of student profiles.
	SharesCourse(ctx context.Context, teacherID, studentID string) (bool, error)
}

type CompetencyRepository interface {
	// Units
	CreateUnit(ctx context.Context, unit *models.CompetencyUnit) error
	GetUnit(ctx context.Context, id uint) (*models.CompetencyUnit, error)
	GetUnitWithElements(ctx context.Context, id uint) (*models.CompetencyUnit, error)
	UpdateUnit(ctx context.Context, unit *models.CompetencyUnit) error
	DeleteUnit(ctx context.Context, id uint) error
	ListUnitsByCourse(ctx context.Context, courseID uint) ([]*models.CompetencyUnit, error)

	// Elements
	CreateElement(ctx context.Context, element *models.CompetencyElement) error
	GetElement(ctx context.Context, id uint) (*models.CompetencyElement, error)
	UpdateElement(ctx context.Context, element *models.CompetencyElement) error
	DeleteElement(ctx context.Context, id uint) error
	ListElementsByUnit(ctx context.Context, unitID uint) ([]*models.CompetencyElement, error)
}

type ScheduleRepository interface {
	Create(ctx context.Context, schedule *models.EvaluationSchedule) error
	GetByID(ctx context.Context, id uint) (*models.EvaluationSchedule, error)
	Update(ctx context.Context, schedule *models.EvaluationSchedule) error
	Delete(ctx context.Context, id uint) error
	ListByUnit(ctx context.Context, unitID uint) ([]*models.EvaluationSchedule, error)
}

type EvaluationRepository interface {
	Create(ctx context.Context, evaluation *models.Evaluation) error
	GetByID(ctx context.Context, id uint) (*models.Evaluation, error)
	GetByIDWithDetails(ctx context.Context, id uint) (*models.Evaluation, error)
	Update(ctx context.Context, evaluation *models.Evaluation) error
	Delete(ctx context.Context, id uint) error
	List(ctx context.Context, filters EvaluationFilters) ([]*models.Evaluation, int64, error)

	// ExistsForStudentUnit mirrors the (student_id, competency_unit_id)
	// unique constraint for the defensive check endpoint.
	ExistsForStudentUnit(ctx context.Context, studentID string, unitID uint) (bool, error)

	GetStats(ctx context.Context, filters EvaluationFilters) (*EvaluationStats, error)
}

type SubmissionRepository interface {
	Create(ctx context.Context, submission *models.Submission) error
	GetByID(ctx context.Context, id uint) (*models.Submission, error)
	List(ctx context.Context, filters SubmissionFilters) ([]*models.Submission, int64, error)
}

// IdentityRepository fronts the external identity provider (read-only).
type IdentityRepository interface {
	GetByID(ctx context.Context, id string) (*models.Identity, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}
