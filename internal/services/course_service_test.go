package services

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/ncsedu/grading-service/internal/repositories"
	"github.com/ncsedu/grading-service/internal/validator"
)

func newCourseTestService(repo *mockRepository) CourseService {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	return NewCourseService(repo, logger, validator.New())
}

func TestCourseService_CreateDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("admin creates a course", func(t *testing.T) {
		repo := newMockRepository()
		seedCourseWorld(repo)
		service := newCourseTestService(repo)

		resp, err := service.Create(ctx, &CreateCourseRequest{Name: "Pipe Welding"}, "admin-1")
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if resp.CreatedBy != "admin-1" {
			t.Errorf("expected creator admin-1, got %s", resp.CreatedBy)
		}
	})

	t.Run("teacher cannot create", func(t *testing.T) {
		repo := newMockRepository()
		seedCourseWorld(repo)
		service := newCourseTestService(repo)

		_, err := service.Create(ctx, &CreateCourseRequest{Name: "Pipe Welding"}, "teacher-1")
		if !errors.Is(err, ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})

	t.Run("assigned teacher cannot delete", func(t *testing.T) {
		repo := newMockRepository()
		seedCourseWorld(repo)
		service := newCourseTestService(repo)

		err := service.Delete(ctx, 1, "teacher-1")
		if !errors.Is(err, ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})

	t.Run("admin deletes", func(t *testing.T) {
		repo := newMockRepository()
		seedCourseWorld(repo)
		service := newCourseTestService(repo)

		if err := service.Delete(ctx, 1, "admin-1"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, ok := repo.courses[1]; ok {
			t.Error("course should be gone")
		}
	})
}

func TestCourseService_ReadScoping(t *testing.T) {
	ctx := context.Background()
	repo := newMockRepository()
	seedCourseWorld(repo)
	service := newCourseTestService(repo)

	t.Run("enrolled student reads the course", func(t *testing.T) {
		resp, err := service.GetByID(ctx, 1, "student-1")
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if resp.CanEdit || resp.CanDelete {
			t.Error("students get read-only access")
		}
	})

	t.Run("unenrolled student denied", func(t *testing.T) {
		_, err := service.GetByID(ctx, 1, "student-2")
		if !errors.Is(err, ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})

	t.Run("assigned teacher can edit but not delete", func(t *testing.T) {
		resp, err := service.GetByID(ctx, 1, "teacher-1")
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if !resp.CanEdit {
			t.Error("assigned teacher should be able to edit")
		}
		if resp.CanDelete {
			t.Error("deletion stays admin-only")
		}
	})

	t.Run("list scopes by role", func(t *testing.T) {
		teacherList, err := service.List(ctx, repositories.CourseFilters{}, "teacher-2")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(teacherList.Courses) != 0 {
			t.Errorf("teacher-2 has no assignments, got %d courses", len(teacherList.Courses))
		}

		studentList, err := service.List(ctx, repositories.CourseFilters{}, "student-1")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(studentList.Courses) != 1 {
			t.Errorf("student-1 is enrolled in 1 course, got %d", len(studentList.Courses))
		}
	})
}

func TestCourseService_Membership(t *testing.T) {
	ctx := context.Background()

	t.Run("assigned teacher enrolls a student", func(t *testing.T) {
		repo := newMockRepository()
		seedCourseWorld(repo)
		service := newCourseTestService(repo)

		if err := service.EnrollStudent(ctx, 1, "student-2", "teacher-1"); err != nil {
			t.Fatalf("EnrollStudent failed: %v", err)
		}
		if !containsID(repo.students[1], "student-2") {
			t.Error("student-2 should be enrolled")
		}
	})

	t.Run("unassigned teacher denied", func(t *testing.T) {
		repo := newMockRepository()
		seedCourseWorld(repo)
		service := newCourseTestService(repo)

		err := service.EnrollStudent(ctx, 1, "student-2", "teacher-2")
		if !errors.Is(err, ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})

	t.Run("assigning a non-teacher profile rejected", func(t *testing.T) {
		repo := newMockRepository()
		seedCourseWorld(repo)
		service := newCourseTestService(repo)

		err := service.AssignTeacher(ctx, 1, "student-1", "admin-1")
		var verr *validator.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("expected validation error, got %v", err)
		}
		if verr.Field != "teacher_id" {
			t.Errorf("expected teacher_id field error, got %s", verr.Field)
		}
	})

	t.Run("enrolling a teacher profile rejected", func(t *testing.T) {
		repo := newMockRepository()
		seedCourseWorld(repo)
		service := newCourseTestService(repo)

		err := service.EnrollStudent(ctx, 1, "teacher-2", "admin-1")
		var verr *validator.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})

	t.Run("unknown target profile", func(t *testing.T) {
		repo := newMockRepository()
		seedCourseWorld(repo)
		service := newCourseTestService(repo)

		err := service.AssignTeacher(ctx, 1, "nobody", "admin-1")
		if !errors.Is(err, ErrProfileNotFound) {
			t.Fatalf("expected ErrProfileNotFound, got %v", err)
		}
	})
}
