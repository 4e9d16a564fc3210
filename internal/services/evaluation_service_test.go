package services

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/ncsedu/grading-service/internal/events"
	"github.com/ncsedu/grading-service/internal/models"
	"github.com/ncsedu/grading-service/internal/repositories"
	"github.com/ncsedu/grading-service/internal/validator"
)

func newEvaluationTestService(repo *mockRepository) (EvaluationService, *events.MockEventPublisher) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	publisher := events.NewMockEventPublisher(logger)
	return NewEvaluationService(repo, publisher, logger, validator.New()), publisher
}

func TestEvaluationService_Create(t *testing.T) {
	ctx := context.Background()

	validReq := func() *CreateEvaluationRequest {
		return &CreateEvaluationRequest{
			StudentID:        "student-1",
			CompetencyUnitID: 10,
			Scores:           map[string]float64{"100": 40, "101": 45},
		}
	}

	t.Run("assigned teacher creates draft", func(t *testing.T) {
		repo := newMockRepository()
		seedCourseWorld(repo)
		service, _ := newEvaluationTestService(repo)

		resp, err := service.Create(ctx, validReq(), "teacher-1")
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if resp.Status != models.EvaluationDraft {
			t.Errorf("expected draft status, got %s", resp.Status)
		}
		if resp.TeacherID != "teacher-1" {
			t.Errorf("evaluation must bind to the creating teacher, got %s", resp.TeacherID)
		}
		if resp.TotalScore != 85 {
			t.Errorf("expected total 85, got %f", resp.TotalScore)
		}
	})

	t.Run("unassigned teacher denied", func(t *testing.T) {
		repo := newMockRepository()
		seedCourseWorld(repo)
		service, _ := newEvaluationTestService(repo)

		_, err := service.Create(ctx, validReq(), "teacher-2")
		if !errors.Is(err, ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})

	t.Run("student denied", func(t *testing.T) {
		repo := newMockRepository()
		seedCourseWorld(repo)
		service, _ := newEvaluationTestService(repo)

		_, err := service.Create(ctx, validReq(), "student-1")
		if !errors.Is(err, ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})

	t.Run("unenrolled student rejected", func(t *testing.T) {
		repo := newMockRepository()
		seedCourseWorld(repo)
		service, _ := newEvaluationTestService(repo)

		req := validReq()
		req.StudentID = "student-2"
		_, err := service.Create(ctx, req, "teacher-1")
		var verr *validator.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})

	t.Run("duplicate check and insert share one transaction", func(t *testing.T) {
		repo := newMockRepository()
		seedCourseWorld(repo)
		service, _ := newEvaluationTestService(repo)

		if _, err := service.Create(ctx, validReq(), "teacher-1"); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if repo.txCalls != 1 {
			t.Errorf("expected the create to run inside one transaction, got %d", repo.txCalls)
		}
	})

	t.Run("duplicate pair rejected", func(t *testing.T) {
		repo := newMockRepository()
		seedCourseWorld(repo)
		service, _ := newEvaluationTestService(repo)

		if _, err := service.Create(ctx, validReq(), "teacher-1"); err != nil {
			t.Fatalf("first Create failed: %v", err)
		}
		_, err := service.Create(ctx, validReq(), "teacher-1")
		if !errors.Is(err, ErrEvaluationExists) {
			t.Fatalf("expected ErrEvaluationExists, got %v", err)
		}
	})

	t.Run("score over element max rejected", func(t *testing.T) {
		repo := newMockRepository()
		seedCourseWorld(repo)
		service, _ := newEvaluationTestService(repo)

		req := validReq()
		req.Scores["100"] = 51
		if _, err := service.Create(ctx, req, "teacher-1"); err == nil {
			t.Fatal("expected score validation error")
		}
	})

	t.Run("score for foreign element rejected", func(t *testing.T) {
		repo := newMockRepository()
		seedCourseWorld(repo)
		service, _ := newEvaluationTestService(repo)

		req := validReq()
		req.Scores["999"] = 10
		if _, err := service.Create(ctx, req, "teacher-1"); err == nil {
			t.Fatal("expected unknown element error")
		}
	})
}

func TestEvaluationService_StatusLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newMockRepository()
	seedCourseWorld(repo)
	service, publisher := newEvaluationTestService(repo)

	created, err := service.Create(ctx, &CreateEvaluationRequest{
		StudentID:        "student-1",
		CompetencyUnitID: 10,
		Scores:           map[string]float64{"100": 30},
	}, "teacher-1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	id := created.ID

	t.Run("draft to confirmed is rejected", func(t *testing.T) {
		confirmed := models.EvaluationConfirmed
		_, err := service.Update(ctx, id, &UpdateEvaluationRequest{Status: &confirmed}, "teacher-1")
		if !errors.Is(err, ErrInvalidStatusTransition) {
			t.Fatalf("expected ErrInvalidStatusTransition, got %v", err)
		}
	})

	t.Run("draft to submitted publishes event", func(t *testing.T) {
		publisher.ClearEvents()
		submitted := models.EvaluationSubmitted
		resp, err := service.Update(ctx, id, &UpdateEvaluationRequest{Status: &submitted}, "teacher-1")
		if err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		if resp.Status != models.EvaluationSubmitted {
			t.Errorf("expected submitted, got %s", resp.Status)
		}

		published := publisher.GetPublishedEvents()
		if len(published) != 1 || published[0].Type != events.TypeEvaluationSubmitted {
			t.Fatalf("expected one evaluation.submitted event, got %v", published)
		}
	})

	t.Run("foreign teacher cannot advance it", func(t *testing.T) {
		confirmed := models.EvaluationConfirmed
		_, err := service.Update(ctx, id, &UpdateEvaluationRequest{Status: &confirmed}, "teacher-2")
		if !errors.Is(err, ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})

	t.Run("submitted to confirmed", func(t *testing.T) {
		publisher.ClearEvents()
		confirmed := models.EvaluationConfirmed
		if _, err := service.Update(ctx, id, &UpdateEvaluationRequest{Status: &confirmed}, "teacher-1"); err != nil {
			t.Fatalf("Update failed: %v", err)
		}

		published := publisher.GetPublishedEvents()
		if len(published) != 1 || published[0].Type != events.TypeEvaluationConfirmed {
			t.Fatalf("expected one evaluation.confirmed event, got %v", published)
		}
	})

	t.Run("confirmed is immutable", func(t *testing.T) {
		comment := "late edit"
		_, err := service.Update(ctx, id, &UpdateEvaluationRequest{Comment: &comment}, "teacher-1")
		if !errors.Is(err, ErrInvalidStatusTransition) {
			t.Fatalf("expected ErrInvalidStatusTransition, got %v", err)
		}
	})

	t.Run("confirmed cannot be deleted", func(t *testing.T) {
		err := service.Delete(ctx, id, "teacher-1")
		if !errors.Is(err, ErrInvalidStatusTransition) {
			t.Fatalf("expected ErrInvalidStatusTransition, got %v", err)
		}
	})
}

func TestEvaluationService_ReadScoping(t *testing.T) {
	ctx := context.Background()
	repo := newMockRepository()
	seedCourseWorld(repo)
	service, _ := newEvaluationTestService(repo)

	created, err := service.Create(ctx, &CreateEvaluationRequest{
		StudentID:        "student-1",
		CompetencyUnitID: 10,
		Scores:           map[string]float64{"100": 30},
	}, "teacher-1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	t.Run("student reads own evaluation", func(t *testing.T) {
		resp, err := service.GetByID(ctx, created.ID, "student-1")
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if resp.CanEdit {
			t.Error("students must never get edit rights")
		}
	})

	t.Run("other student denied", func(t *testing.T) {
		_, err := service.GetByID(ctx, created.ID, "student-2")
		if !errors.Is(err, ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})

	t.Run("list scopes students to own rows", func(t *testing.T) {
		resp, err := service.List(ctx, repositories.EvaluationFilters{}, "student-2")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(resp.Evaluations) != 0 {
			t.Errorf("student-2 must see no rows, got %d", len(resp.Evaluations))
		}
	})

	t.Run("list ignores injected student filter", func(t *testing.T) {
		other := "student-1"
		resp, err := service.List(ctx, repositories.EvaluationFilters{StudentID: &other}, "student-2")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(resp.Evaluations) != 0 {
			t.Error("list must override a caller-supplied student filter")
		}
	})

	t.Run("check exists for own pair", func(t *testing.T) {
		resp, err := service.CheckExists(ctx, "student-1", 10, "student-1")
		if err != nil {
			t.Fatalf("CheckExists failed: %v", err)
		}
		if !resp.Exists {
			t.Error("expected exists=true")
		}
	})

	t.Run("check denied for foreign pair", func(t *testing.T) {
		_, err := service.CheckExists(ctx, "student-1", 10, "student-2")
		if !errors.Is(err, ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})
}

func TestEvaluationService_Stats(t *testing.T) {
	ctx := context.Background()
	repo := newMockRepository()
	seedCourseWorld(repo)
	service, _ := newEvaluationTestService(repo)

	if _, err := service.Create(ctx, &CreateEvaluationRequest{
		StudentID:        "student-1",
		CompetencyUnitID: 10,
		Scores:           map[string]float64{"100": 40, "101": 45},
	}, "teacher-1"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	t.Run("student denied", func(t *testing.T) {
		_, err := service.Stats(ctx, repositories.EvaluationFilters{}, "student-1")
		if !errors.Is(err, ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})

	t.Run("teacher sees own gradings", func(t *testing.T) {
		stats, err := service.Stats(ctx, repositories.EvaluationFilters{}, "teacher-1")
		if err != nil {
			t.Fatalf("Stats failed: %v", err)
		}
		if stats.Total != 1 || stats.Draft != 1 {
			t.Errorf("expected one draft, got %+v", stats)
		}
		if stats.AverageScore != 85 {
			t.Errorf("expected average 85, got %f", stats.AverageScore)
		}
	})

	t.Run("other teacher sees nothing", func(t *testing.T) {
		stats, err := service.Stats(ctx, repositories.EvaluationFilters{}, "teacher-2")
		if err != nil {
			t.Fatalf("Stats failed: %v", err)
		}
		if stats.Total != 0 {
			t.Errorf("teacher-2 graded nothing, got %+v", stats)
		}
	})

	t.Run("teacher filter cannot widen the scope", func(t *testing.T) {
		other := "teacher-1"
		stats, err := service.Stats(ctx, repositories.EvaluationFilters{TeacherID: &other}, "teacher-2")
		if err != nil {
			t.Fatalf("Stats failed: %v", err)
		}
		if stats.Total != 0 {
			t.Error("stats must override a caller-supplied teacher filter")
		}
	})

	t.Run("admin sees everything", func(t *testing.T) {
		stats, err := service.Stats(ctx, repositories.EvaluationFilters{}, "admin-1")
		if err != nil {
			t.Fatalf("Stats failed: %v", err)
		}
		if stats.Total != 1 {
			t.Errorf("expected one evaluation, got %+v", stats)
		}
	})
}

func TestEvaluationService_Export(t *testing.T) {
	ctx := context.Background()
	repo := newMockRepository()
	seedCourseWorld(repo)
	service, _ := newEvaluationTestService(repo)

	if _, err := service.Create(ctx, &CreateEvaluationRequest{
		StudentID:        "student-1",
		CompetencyUnitID: 10,
		Scores:           map[string]float64{"100": 30},
	}, "teacher-1"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	t.Run("student denied", func(t *testing.T) {
		_, err := service.Export(ctx, repositories.EvaluationFilters{}, "student-1")
		if !errors.Is(err, ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})

	t.Run("teacher export produces a workbook", func(t *testing.T) {
		data, err := service.Export(ctx, repositories.EvaluationFilters{}, "teacher-1")
		if err != nil {
			t.Fatalf("Export failed: %v", err)
		}
		// xlsx files are zip archives.
		if !bytes.HasPrefix(data, []byte("PK")) {
			t.Error("export is not a valid xlsx payload")
		}
	})

	t.Run("other teacher export is empty of foreign rows", func(t *testing.T) {
		data, err := service.Export(ctx, repositories.EvaluationFilters{}, "teacher-2")
		if err != nil {
			t.Fatalf("Export failed: %v", err)
		}
		if len(data) == 0 {
			t.Error("expected a workbook even with zero rows")
		}
	})
}
