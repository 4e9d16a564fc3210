package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ncsedu/grading-service/internal/authz"
	"github.com/ncsedu/grading-service/internal/events"
	"github.com/ncsedu/grading-service/internal/metrics"
	"github.com/ncsedu/grading-service/internal/models"
	"github.com/ncsedu/grading-service/internal/repositories"
	"github.com/ncsedu/grading-service/internal/storage"
)

// allowedSubmissionTypes is the image whitelist for uploads. Everything else
// is rejected before any bytes reach object storage.
var allowedSubmissionTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

type submissionService struct {
	repo           repositories.Repository
	access         *accessChecker
	storage        storage.ObjectStorage
	publisher      events.EventPublisher
	logger         *slog.Logger
	maxUploadBytes int64
	signedURLTTL   time.Duration
	now            func() time.Time
}

func NewSubmissionService(
	repo repositories.Repository,
	objectStorage storage.ObjectStorage,
	publisher events.EventPublisher,
	logger *slog.Logger,
	maxUploadBytes int64,
	signedURLTTL time.Duration,
) SubmissionService {
	return &submissionService{
		repo:           repo,
		access:         newAccessChecker(repo),
		storage:        objectStorage,
		publisher:      publisher,
		logger:         logger,
		maxUploadBytes: maxUploadBytes,
		signedURLTTL:   signedURLTTL,
		now:            time.Now,
	}
}

// Upload stores one submission image for the requesting student. The schedule
// must be open at upload time; a file of exactly the maximum size is
// accepted, one byte over is not.
func (s *submissionService) Upload(ctx context.Context, req *UploadSubmissionRequest, studentID string) (*SubmissionResponse, error) {
	actor, err := s.access.actor(ctx, studentID)
	if err != nil {
		return nil, err
	}

	schedule, err := s.repo.Schedule().GetByID(ctx, req.ScheduleID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrScheduleNotFound
		}
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}

	now := s.now()
	rel, err := s.access.unitRelationship(ctx, actor, schedule.CompetencyUnitID)
	if err != nil {
		return nil, err
	}
	rel.StudentID = studentID
	rel.ScheduleOpen = schedule.IsOpen(now)

	if !s.access.decide(actor, authz.ResourceSubmission, authz.ActionCreate, rel) {
		metrics.SubmissionUploadsTotal.WithLabelValues("denied").Inc()
		if !rel.ScheduleOpen && actor.Role == models.RoleStudent {
			return nil, ErrScheduleClosed
		}
		return nil, NewPermissionError(studentID, "submission", "create", "not an active enrolled student")
	}

	if !allowedSubmissionTypes[req.ContentType] {
		metrics.SubmissionUploadsTotal.WithLabelValues("rejected_type").Inc()
		return nil, ErrUnsupportedFileType
	}
	if req.Size > s.maxUploadBytes {
		metrics.SubmissionUploadsTotal.WithLabelValues("rejected_size").Inc()
		return nil, ErrFileTooLarge
	}

	// Cap the stream too; the declared size header is client-controlled.
	limited := io.LimitReader(req.Content, s.maxUploadBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(data)) > s.maxUploadBytes {
		metrics.SubmissionUploadsTotal.WithLabelValues("rejected_size").Inc()
		return nil, ErrFileTooLarge
	}

	key := storage.BuildSubmissionKey(studentID, req.FileName, now)
	if err := s.storage.Upload(ctx, key, bytes.NewReader(data), req.ContentType); err != nil {
		metrics.SubmissionUploadsTotal.WithLabelValues("storage_error").Inc()
		return nil, fmt.Errorf("failed to store submission: %w", err)
	}

	submission := &models.Submission{
		StudentID:   studentID,
		ScheduleID:  req.ScheduleID,
		ObjectKey:   key,
		FileName:    req.FileName,
		ContentType: req.ContentType,
		SizeBytes:   int64(len(data)),
	}

	if err := s.repo.Submission().Create(ctx, submission); err != nil {
		// Orphaned object; remove it so storage stays consistent with the DB.
		if delErr := s.storage.Delete(ctx, key); delErr != nil {
			s.logger.Error("failed to clean up orphaned object", "error", delErr, "key", key)
		}
		metrics.SubmissionUploadsTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to save submission: %w", err)
	}

	metrics.SubmissionUploadsTotal.WithLabelValues("accepted").Inc()
	metrics.SubmissionUploadBytes.Observe(float64(len(data)))

	s.logger.Info("submission uploaded",
		"submission_id", submission.ID,
		"student_id", studentID,
		"schedule_id", req.ScheduleID,
		"size_bytes", submission.SizeBytes)

	payload := map[string]interface{}{
		"submission_id": submission.ID,
		"student_id":    studentID,
		"schedule_id":   req.ScheduleID,
	}
	if err := s.publisher.Publish(ctx, events.NewEvent(events.TypeSubmissionUploaded, payload)); err != nil {
		s.logger.Error("failed to publish submission.uploaded", "error", err, "submission_id", submission.ID)
	}

	url, err := s.storage.SignedURL(ctx, key)
	if err != nil {
		// The record is saved; the caller can fetch a link later.
		s.logger.Warn("failed to sign fresh submission URL", "error", err, "key", key)
		return &SubmissionResponse{Submission: submission}, nil
	}

	return &SubmissionResponse{Submission: submission, URL: url}, nil
}

// GetSignedURL hands out a time-limited link for an existing submission.
// Students reach only their own files, teachers those of their courses.
func (s *submissionService) GetSignedURL(ctx context.Context, submissionID uint, actorID string) (*SignedURLResponse, error) {
	actor, err := s.access.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	submission, err := s.repo.Submission().GetByID(ctx, submissionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}

	rel, err := s.access.submissionRelationship(ctx, actor, submission)
	if err != nil {
		return nil, err
	}
	if !s.access.decide(actor, authz.ResourceSubmission, authz.ActionRead, rel) {
		return nil, NewPermissionError(actorID, "submission", "read", "not owner or course teacher")
	}

	url, err := s.storage.SignedURL(ctx, submission.ObjectKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign URL: %w", err)
	}

	return &SignedURLResponse{
		URL:       url,
		ExpiresAt: s.now().Add(s.signedURLTTL),
	}, nil
}

// List scopes results by role the same way evaluations do.
func (s *submissionService) List(ctx context.Context, filters repositories.SubmissionFilters, actorID string) (*SubmissionListResponse, error) {
	actor, err := s.access.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	if !actor.IsAdmin() {
		if actor.EmailVerifiedAt == nil || !actor.Approved {
			return nil, NewPermissionError(actorID, "submission", "list", "account not active")
		}
		if actor.Role == models.RoleStudent {
			filters.StudentID = &actor.ID
		}
	}

	if filters.Limit <= 0 || filters.Limit > 100 {
		filters.Limit = 20
	}

	submissions, total, err := s.repo.Submission().List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}

	responses := make([]*SubmissionResponse, 0, len(submissions))
	for _, submission := range submissions {
		// Teachers only see submissions from their own courses.
		if actor.Role == models.RoleTeacher {
			rel, err := s.access.submissionRelationship(ctx, actor, submission)
			if err != nil {
				return nil, err
			}
			if !s.access.decide(actor, authz.ResourceSubmission, authz.ActionRead, rel) {
				continue
			}
		}
		responses = append(responses, &SubmissionResponse{Submission: submission})
	}

	return &SubmissionListResponse{
		Submissions: responses,
		Total:       total,
	}, nil
}
