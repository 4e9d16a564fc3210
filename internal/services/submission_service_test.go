package services

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ncsedu/grading-service/internal/events"
	"github.com/ncsedu/grading-service/internal/repositories"
	"github.com/ncsedu/grading-service/internal/storage"
)

const testMaxUpload = int64(1024)

func newSubmissionTestService(repo *mockRepository) (SubmissionService, *storage.MemoryStorage, *events.MockEventPublisher) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	publisher := events.NewMockEventPublisher(logger)
	memStorage := storage.NewMemoryStorage()
	service := NewSubmissionService(repo, memStorage, publisher, logger, testMaxUpload, 7*24*time.Hour)
	return service, memStorage, publisher
}

func uploadReq(scheduleID uint, size int64) *UploadSubmissionRequest {
	return &UploadSubmissionRequest{
		ScheduleID:  scheduleID,
		FileName:    "weld.jpg",
		ContentType: "image/jpeg",
		Size:        size,
		Content:     bytes.NewReader(make([]byte, size)),
	}
}

func TestSubmissionService_Upload(t *testing.T) {
	ctx := context.Background()

	t.Run("student uploads to open schedule", func(t *testing.T) {
		repo := newMockRepository()
		seedCourseWorld(repo)
		service, memStorage, publisher := newSubmissionTestService(repo)

		resp, err := service.Upload(ctx, uploadReq(20, 512), "student-1")
		if err != nil {
			t.Fatalf("Upload failed: %v", err)
		}
		if resp.URL == "" {
			t.Error("expected a signed URL on the fresh upload")
		}
		if !strings.HasPrefix(resp.ObjectKey, "student-1/") {
			t.Errorf("object key must be namespaced by student, got %s", resp.ObjectKey)
		}
		if data, ok := memStorage.Get(resp.ObjectKey); !ok || len(data) != 512 {
			t.Errorf("stored object missing or wrong size")
		}

		published := publisher.GetPublishedEvents()
		if len(published) != 1 || published[0].Type != events.TypeSubmissionUploaded {
			t.Fatalf("expected one submission.uploaded event, got %v", published)
		}
	})

	t.Run("exactly the maximum size is accepted", func(t *testing.T) {
		repo := newMockRepository()
		seedCourseWorld(repo)
		service, _, _ := newSubmissionTestService(repo)

		resp, err := service.Upload(ctx, uploadReq(20, testMaxUpload), "student-1")
		if err != nil {
			t.Fatalf("Upload at the limit failed: %v", err)
		}
		if resp.SizeBytes != testMaxUpload {
			t.Errorf("expected %d bytes, got %d", testMaxUpload, resp.SizeBytes)
		}
	})

	t.Run("one byte over the limit is rejected", func(t *testing.T) {
		repo := newMockRepository()
		seedCourseWorld(repo)
		service, _, _ := newSubmissionTestService(repo)

		_, err := service.Upload(ctx, uploadReq(20, testMaxUpload+1), "student-1")
		if !errors.Is(err, ErrFileTooLarge) {
			t.Fatalf("expected ErrFileTooLarge, got %v", err)
		}
	})

	t.Run("lying size header is caught on the stream", func(t *testing.T) {
		repo := newMockRepository()
		seedCourseWorld(repo)
		service, _, _ := newSubmissionTestService(repo)

		req := uploadReq(20, 10)
		req.Content = bytes.NewReader(make([]byte, testMaxUpload+1))
		_, err := service.Upload(ctx, req, "student-1")
		if !errors.Is(err, ErrFileTooLarge) {
			t.Fatalf("expected ErrFileTooLarge, got %v", err)
		}
	})

	t.Run("non-image type rejected", func(t *testing.T) {
		repo := newMockRepository()
		seedCourseWorld(repo)
		service, _, _ := newSubmissionTestService(repo)

		req := uploadReq(20, 100)
		req.FileName = "notes.txt"
		req.ContentType = "text/plain"
		_, err := service.Upload(ctx, req, "student-1")
		if !errors.Is(err, ErrUnsupportedFileType) {
			t.Fatalf("expected ErrUnsupportedFileType, got %v", err)
		}
	})

	t.Run("closed schedule rejected", func(t *testing.T) {
		repo := newMockRepository()
		seedCourseWorld(repo)
		service, _, _ := newSubmissionTestService(repo)

		_, err := service.Upload(ctx, uploadReq(21, 100), "student-1")
		if !errors.Is(err, ErrScheduleClosed) {
			t.Fatalf("expected ErrScheduleClosed, got %v", err)
		}
	})

	t.Run("teacher cannot upload", func(t *testing.T) {
		repo := newMockRepository()
		seedCourseWorld(repo)
		service, _, _ := newSubmissionTestService(repo)

		_, err := service.Upload(ctx, uploadReq(20, 100), "teacher-1")
		if !errors.Is(err, ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})

	t.Run("unknown schedule", func(t *testing.T) {
		repo := newMockRepository()
		seedCourseWorld(repo)
		service, _, _ := newSubmissionTestService(repo)

		_, err := service.Upload(ctx, uploadReq(999, 100), "student-1")
		if !errors.Is(err, ErrScheduleNotFound) {
			t.Fatalf("expected ErrScheduleNotFound, got %v", err)
		}
	})

	t.Run("failed insert cleans up the stored object", func(t *testing.T) {
		repo := newMockRepository()
		seedCourseWorld(repo)
		repo.failSubmissionCreate = true
		service, memStorage, _ := newSubmissionTestService(repo)

		_, err := service.Upload(ctx, uploadReq(20, 100), "student-1")
		if err == nil {
			t.Fatal("expected upload to fail")
		}
		if _, ok := memStorage.Get("student-1/"); ok {
			t.Error("orphaned object should have been deleted")
		}
		// Nothing may remain in storage at all.
		if _, ok := memStorage.Get(storage.BuildSubmissionKey("student-1", "weld.jpg", time.Now())); ok {
			t.Error("orphaned object should have been deleted")
		}
	})
}

func TestSubmissionService_GetSignedURL(t *testing.T) {
	ctx := context.Background()
	repo := newMockRepository()
	seedCourseWorld(repo)
	service, _, _ := newSubmissionTestService(repo)

	uploaded, err := service.Upload(ctx, uploadReq(20, 100), "student-1")
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	t.Run("owner gets a link with expiry", func(t *testing.T) {
		resp, err := service.GetSignedURL(ctx, uploaded.ID, "student-1")
		if err != nil {
			t.Fatalf("GetSignedURL failed: %v", err)
		}
		if resp.URL == "" {
			t.Error("expected a URL")
		}
		if !resp.ExpiresAt.After(time.Now().Add(6 * 24 * time.Hour)) {
			t.Error("expiry should honor the configured TTL")
		}
	})

	t.Run("course teacher gets a link", func(t *testing.T) {
		if _, err := service.GetSignedURL(ctx, uploaded.ID, "teacher-1"); err != nil {
			t.Fatalf("GetSignedURL failed for course teacher: %v", err)
		}
	})

	t.Run("foreign teacher denied", func(t *testing.T) {
		_, err := service.GetSignedURL(ctx, uploaded.ID, "teacher-2")
		if !errors.Is(err, ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})

	t.Run("other student denied", func(t *testing.T) {
		_, err := service.GetSignedURL(ctx, uploaded.ID, "student-2")
		if !errors.Is(err, ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})

	t.Run("unknown submission", func(t *testing.T) {
		_, err := service.GetSignedURL(ctx, 999, "student-1")
		if !errors.Is(err, ErrSubmissionNotFound) {
			t.Fatalf("expected ErrSubmissionNotFound, got %v", err)
		}
	})
}

func TestSubmissionService_List(t *testing.T) {
	ctx := context.Background()
	repo := newMockRepository()
	seedCourseWorld(repo)
	service, _, _ := newSubmissionTestService(repo)

	if _, err := service.Upload(ctx, uploadReq(20, 100), "student-1"); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	t.Run("student sees only own submissions", func(t *testing.T) {
		other := "student-1"
		resp, err := service.List(ctx, repositories.SubmissionFilters{StudentID: &other}, "student-2")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(resp.Submissions) != 0 {
			t.Error("list must override a caller-supplied student filter")
		}
	})

	t.Run("course teacher sees course submissions", func(t *testing.T) {
		resp, err := service.List(ctx, repositories.SubmissionFilters{}, "teacher-1")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(resp.Submissions) != 1 {
			t.Errorf("expected 1 submission, got %d", len(resp.Submissions))
		}
	})

	t.Run("foreign teacher sees none", func(t *testing.T) {
		resp, err := service.List(ctx, repositories.SubmissionFilters{}, "teacher-2")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(resp.Submissions) != 0 {
			t.Errorf("expected 0 submissions, got %d", len(resp.Submissions))
		}
	})
}
