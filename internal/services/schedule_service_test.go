package services

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/ncsedu/grading-service/internal/models"
	"github.com/ncsedu/grading-service/internal/validator"
)

func newScheduleTestService(repo *mockRepository) ScheduleService {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	return NewScheduleService(repo, logger, validator.New())
}

func TestScheduleService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("assigned teacher creates an open schedule", func(t *testing.T) {
		repo := newMockRepository()
		seedCourseWorld(repo)
		service := newScheduleTestService(repo)

		schedule, err := service.Create(ctx, &CreateScheduleRequest{
			CompetencyUnitID: 10,
			Title:            "Midterm",
		}, "teacher-1")
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if schedule.Status != models.ScheduleOpen {
			t.Errorf("expected open default, got %s", schedule.Status)
		}
		if schedule.CreatedBy != "teacher-1" {
			t.Errorf("expected creator teacher-1, got %s", schedule.CreatedBy)
		}
	})

	t.Run("inverted window rejected", func(t *testing.T) {
		repo := newMockRepository()
		seedCourseWorld(repo)
		service := newScheduleTestService(repo)

		opens := time.Now().Add(48 * time.Hour)
		closes := time.Now().Add(24 * time.Hour)
		_, err := service.Create(ctx, &CreateScheduleRequest{
			CompetencyUnitID: 10,
			Title:            "Backwards",
			OpensAt:          &opens,
			ClosesAt:         &closes,
		}, "teacher-1")
		if err == nil {
			t.Fatal("expected window validation error")
		}
	})

	t.Run("unassigned teacher denied", func(t *testing.T) {
		repo := newMockRepository()
		seedCourseWorld(repo)
		service := newScheduleTestService(repo)

		_, err := service.Create(ctx, &CreateScheduleRequest{CompetencyUnitID: 10, Title: "X"}, "teacher-2")
		if !errors.Is(err, ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})

	t.Run("student denied", func(t *testing.T) {
		repo := newMockRepository()
		seedCourseWorld(repo)
		service := newScheduleTestService(repo)

		_, err := service.Create(ctx, &CreateScheduleRequest{CompetencyUnitID: 10, Title: "X"}, "student-1")
		if !errors.Is(err, ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})
}

func TestScheduleService_Update(t *testing.T) {
	ctx := context.Background()

	t.Run("partial update cannot invert the window", func(t *testing.T) {
		repo := newMockRepository()
		seedCourseWorld(repo)
		service := newScheduleTestService(repo)

		opens := time.Now().Add(24 * time.Hour)
		closes := time.Now().Add(48 * time.Hour)
		repo.schedules[20].OpensAt = &opens
		repo.schedules[20].ClosesAt = &closes

		badCloses := time.Now().Add(12 * time.Hour)
		_, err := service.Update(ctx, 20, &UpdateScheduleRequest{ClosesAt: &badCloses}, "teacher-1")
		if err == nil {
			t.Fatal("expected merged-window validation error")
		}
	})

	t.Run("closing a schedule", func(t *testing.T) {
		repo := newMockRepository()
		seedCourseWorld(repo)
		service := newScheduleTestService(repo)

		closed := string(models.ScheduleClosed)
		schedule, err := service.Update(ctx, 20, &UpdateScheduleRequest{Status: &closed}, "teacher-1")
		if err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		if schedule.IsOpen(time.Now()) {
			t.Error("closed schedule must not accept uploads")
		}
	})
}

func TestScheduleService_ReadScoping(t *testing.T) {
	ctx := context.Background()
	repo := newMockRepository()
	seedCourseWorld(repo)
	service := newScheduleTestService(repo)

	t.Run("enrolled student reads schedules", func(t *testing.T) {
		schedules, err := service.ListByUnit(ctx, 10, "student-1")
		if err != nil {
			t.Fatalf("ListByUnit failed: %v", err)
		}
		if len(schedules) != 2 {
			t.Errorf("expected 2 schedules, got %d", len(schedules))
		}
	})

	t.Run("unenrolled student denied", func(t *testing.T) {
		_, err := service.ListByUnit(ctx, 10, "student-2")
		if !errors.Is(err, ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})

	t.Run("unknown schedule", func(t *testing.T) {
		_, err := service.GetByID(ctx, 999, "admin-1")
		if !errors.Is(err, ErrScheduleNotFound) {
			t.Fatalf("expected ErrScheduleNotFound, got %v", err)
		}
	})
}
