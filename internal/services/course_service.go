package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ncsedu/grading-service/internal/authz"
	"github.com/ncsedu/grading-service/internal/models"
	"github.com/ncsedu/grading-service/internal/repositories"
	"github.com/ncsedu/grading-service/internal/validator"
)

type courseService struct {
	repo      repositories.Repository
	access    *accessChecker
	logger    *slog.Logger
	validator *validator.BusinessValidator
}

func NewCourseService(repo repositories.Repository, logger *slog.Logger, v *validator.BusinessValidator) CourseService {
	return &courseService{
		repo:      repo,
		access:    newAccessChecker(repo),
		logger:    logger,
		validator: v,
	}
}

// Create is admin-only: course creation and deletion never delegate to
// teachers.
func (s *courseService) Create(ctx context.Context, req *CreateCourseRequest, actorID string) (*CourseResponse, error) {
	actor, err := s.access.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	if errs := s.validator.Validate(req); len(errs) > 0 {
		return nil, errs
	}

	if !s.access.decide(actor, authz.ResourceCourse, authz.ActionCreate, authz.Relationship{}) {
		return nil, NewPermissionError(actorID, "course", "create", "admin only")
	}

	course := &models.Course{
		Name:        req.Name,
		Description: req.Description,
		CreatedBy:   actorID,
	}

	if err := s.repo.Course().Create(ctx, course); err != nil {
		return nil, fmt.Errorf("failed to create course: %w", err)
	}

	s.logger.Info("course created", "course_id", course.ID, "actor_id", actorID)

	return &CourseResponse{Course: course, CanEdit: true, CanDelete: true}, nil
}

func (s *courseService) GetByID(ctx context.Context, id uint, actorID string) (*CourseResponse, error) {
	return s.getCourse(ctx, id, actorID, false)
}

func (s *courseService) GetByIDWithDetails(ctx context.Context, id uint, actorID string) (*CourseResponse, error) {
	return s.getCourse(ctx, id, actorID, true)
}

func (s *courseService) getCourse(ctx context.Context, id uint, actorID string, withDetails bool) (*CourseResponse, error) {
	actor, err := s.access.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	rel, err := s.access.courseRelationship(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !s.access.decide(actor, authz.ResourceCourse, authz.ActionRead, rel) {
		return nil, NewPermissionError(actorID, "course", "read", "not assigned or enrolled")
	}

	var course *models.Course
	if withDetails {
		course, err = s.repo.Course().GetByIDWithDetails(ctx, id)
	} else {
		course, err = s.repo.Course().GetByID(ctx, id)
	}
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrCourseNotFound
		}
		return nil, fmt.Errorf("failed to get course: %w", err)
	}

	return &CourseResponse{
		Course:    course,
		CanEdit:   s.access.decide(actor, authz.ResourceCourse, authz.ActionUpdate, rel),
		CanDelete: s.access.decide(actor, authz.ResourceCourse, authz.ActionDelete, rel),
	}, nil
}

func (s *courseService) Update(ctx context.Context, id uint, req *UpdateCourseRequest, actorID string) (*CourseResponse, error) {
	actor, err := s.access.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	if errs := s.validator.Validate(req); len(errs) > 0 {
		return nil, errs
	}

	rel, err := s.access.courseRelationship(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !s.access.decide(actor, authz.ResourceCourse, authz.ActionUpdate, rel) {
		return nil, NewPermissionError(actorID, "course", "update", "not assigned to course")
	}

	course, err := s.repo.Course().GetByID(ctx, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrCourseNotFound
		}
		return nil, fmt.Errorf("failed to get course: %w", err)
	}

	if req.Name != nil {
		course.Name = *req.Name
	}
	if req.Description != nil {
		course.Description = req.Description
	}

	if err := s.repo.Course().Update(ctx, course); err != nil {
		return nil, fmt.Errorf("failed to update course: %w", err)
	}

	return &CourseResponse{
		Course:    course,
		CanEdit:   true,
		CanDelete: s.access.decide(actor, authz.ResourceCourse, authz.ActionDelete, rel),
	}, nil
}

func (s *courseService) Delete(ctx context.Context, id uint, actorID string) error {
	actor, err := s.access.actor(ctx, actorID)
	if err != nil {
		return err
	}

	if !s.access.decide(actor, authz.ResourceCourse, authz.ActionDelete, authz.Relationship{}) {
		return NewPermissionError(actorID, "course", "delete", "admin only")
	}

	if _, err := s.repo.Course().GetByID(ctx, id); err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrCourseNotFound
		}
		return fmt.Errorf("failed to get course: %w", err)
	}

	if err := s.repo.Course().Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete course: %w", err)
	}

	s.logger.Info("course deleted", "course_id", id, "actor_id", actorID)

	return nil
}

// List scopes results by role: admins see everything, teachers their
// assigned courses, students their enrollments.
func (s *courseService) List(ctx context.Context, filters repositories.CourseFilters, actorID string) (*CourseListResponse, error) {
	actor, err := s.access.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	if filters.Limit <= 0 || filters.Limit > 100 {
		filters.Limit = 20
	}

	var (
		courses []*models.Course
		total   int64
	)

	switch {
	case actor.IsAdmin():
		courses, total, err = s.repo.Course().List(ctx, filters)
	case actor.Role == models.RoleTeacher:
		courses, total, err = s.repo.Course().ListForTeacher(ctx, actorID, filters)
	default:
		courses, total, err = s.repo.Course().ListForStudent(ctx, actorID, filters)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list courses: %w", err)
	}

	responses := make([]*CourseResponse, len(courses))
	for i, course := range courses {
		responses[i] = &CourseResponse{
			Course:    course,
			CanEdit:   actor.IsAdmin() || actor.Role == models.RoleTeacher,
			CanDelete: actor.IsAdmin(),
		}
	}

	return &CourseListResponse{
		Courses: responses,
		Total:   total,
		Page:    pageFromOffset(filters.Offset, filters.Limit),
		Size:    filters.Limit,
	}, nil
}

// ===== MEMBERSHIP =====

func (s *courseService) AssignTeacher(ctx context.Context, courseID uint, teacherID string, actorID string) error {
	if err := s.requireMembershipManager(ctx, courseID, actorID); err != nil {
		return err
	}

	teacher, err := s.repo.Profile().GetByID(ctx, teacherID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrProfileNotFound
		}
		return fmt.Errorf("failed to get teacher profile: %w", err)
	}
	if teacher.Role != models.RoleTeacher {
		return NewValidationError("teacher_id", "profile is not a teacher", teacherID)
	}

	if err := s.repo.Course().AssignTeacher(ctx, courseID, teacherID); err != nil {
		return fmt.Errorf("failed to assign teacher: %w", err)
	}

	s.logger.Info("teacher assigned", "course_id", courseID, "teacher_id", teacherID, "actor_id", actorID)

	return nil
}

func (s *courseService) RemoveTeacher(ctx context.Context, courseID uint, teacherID string, actorID string) error {
	if err := s.requireMembershipManager(ctx, courseID, actorID); err != nil {
		return err
	}

	if err := s.repo.Course().RemoveTeacher(ctx, courseID, teacherID); err != nil {
		return fmt.Errorf("failed to remove teacher: %w", err)
	}

	return nil
}

func (s *courseService) EnrollStudent(ctx context.Context, courseID uint, studentID string, actorID string) error {
	if err := s.requireMembershipManager(ctx, courseID, actorID); err != nil {
		return err
	}

	student, err := s.repo.Profile().GetByID(ctx, studentID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrProfileNotFound
		}
		return fmt.Errorf("failed to get student profile: %w", err)
	}
	if student.Role != models.RoleStudent {
		return NewValidationError("student_id", "profile is not a student", studentID)
	}

	if err := s.repo.Course().EnrollStudent(ctx, courseID, studentID); err != nil {
		return fmt.Errorf("failed to enroll student: %w", err)
	}

	s.logger.Info("student enrolled", "course_id", courseID, "student_id", studentID, "actor_id", actorID)

	return nil
}

func (s *courseService) RemoveStudent(ctx context.Context, courseID uint, studentID string, actorID string) error {
	if err := s.requireMembershipManager(ctx, courseID, actorID); err != nil {
		return err
	}

	if err := s.repo.Course().RemoveStudent(ctx, courseID, studentID); err != nil {
		return fmt.Errorf("failed to remove student: %w", err)
	}

	return nil
}

// Membership changes reuse the course update rule: admins everywhere,
// teachers within their own courses.
func (s *courseService) requireMembershipManager(ctx context.Context, courseID uint, actorID string) error {
	actor, err := s.access.actor(ctx, actorID)
	if err != nil {
		return err
	}

	rel, err := s.access.courseRelationship(ctx, actor, courseID)
	if err != nil {
		return err
	}
	if !s.access.decide(actor, authz.ResourceCourse, authz.ActionUpdate, rel) {
		return NewPermissionError(actorID, "course", "update", "not assigned to course")
	}

	if _, err := s.repo.Course().GetByID(ctx, courseID); err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrCourseNotFound
		}
		return fmt.Errorf("failed to get course: %w", err)
	}

	return nil
}
