package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/ncsedu/grading-service/internal/authz"
	"github.com/ncsedu/grading-service/internal/events"
	"github.com/ncsedu/grading-service/internal/metrics"
	"github.com/ncsedu/grading-service/internal/models"
	"github.com/ncsedu/grading-service/internal/repositories"
	"github.com/ncsedu/grading-service/internal/validator"
)

type evaluationService struct {
	repo      repositories.Repository
	access    *accessChecker
	publisher events.EventPublisher
	logger    *slog.Logger
	validator *validator.BusinessValidator
}

func NewEvaluationService(repo repositories.Repository, publisher events.EventPublisher, logger *slog.Logger, v *validator.BusinessValidator) EvaluationService {
	return &evaluationService{
		repo:      repo,
		access:    newAccessChecker(repo),
		publisher: publisher,
		logger:    logger,
		validator: v,
	}
}

// Create opens a new draft evaluation. The teacher must hold the course link
// of the unit, the target student must be enrolled there, and the
// (student, unit) pair must not already be graded.
func (s *evaluationService) Create(ctx context.Context, req *CreateEvaluationRequest, actorID string) (*EvaluationResponse, error) {
	actor, err := s.access.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	if errs := s.validator.Validate(req); len(errs) > 0 {
		return nil, errs
	}

	rel, err := s.access.unitRelationship(ctx, actor, req.CompetencyUnitID)
	if err != nil {
		return nil, err
	}
	if !s.access.decide(actor, authz.ResourceEvaluation, authz.ActionCreate, rel) {
		return nil, NewPermissionError(actorID, "evaluation", "create", "not assigned to the unit's course")
	}

	unit, err := s.repo.Competency().GetUnitWithElements(ctx, req.CompetencyUnitID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrUnitNotFound
		}
		return nil, fmt.Errorf("failed to get competency unit: %w", err)
	}

	enrolled, err := s.repo.Course().IsStudentForUnit(ctx, req.CompetencyUnitID, req.StudentID)
	if err != nil {
		return nil, fmt.Errorf("failed to check student enrollment: %w", err)
	}
	if !enrolled {
		return nil, NewValidationError("student_id", "student is not enrolled in the unit's course", req.StudentID)
	}

	elements := make([]*models.CompetencyElement, len(unit.Elements))
	for i := range unit.Elements {
		elements[i] = &unit.Elements[i]
	}
	if errs := s.validator.ValidateEvaluationScores(req.Scores, elements); len(errs) > 0 {
		return nil, errs
	}

	scoresJSON, err := json.Marshal(req.Scores)
	if err != nil {
		return nil, fmt.Errorf("failed to encode scores: %w", err)
	}

	evaluation := &models.Evaluation{
		StudentID:        req.StudentID,
		TeacherID:        actorID,
		CompetencyUnitID: req.CompetencyUnitID,
		Status:           models.EvaluationDraft,
		Scores:           scoresJSON,
		TotalScore:       sumScores(req.Scores),
		Comment:          req.Comment,
		SubmissionID:     req.SubmissionID,
	}

	// The duplicate pre-check and the insert share one transaction so a
	// concurrent create surfaces as ErrEvaluationExists instead of a raw
	// constraint violation. The unique index remains the source of truth.
	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		exists, err := txRepo.Evaluation().ExistsForStudentUnit(ctx, req.StudentID, req.CompetencyUnitID)
		if err != nil {
			return fmt.Errorf("failed to check existing evaluation: %w", err)
		}
		if exists {
			return ErrEvaluationExists
		}

		if err := txRepo.Evaluation().Create(ctx, evaluation); err != nil {
			return fmt.Errorf("failed to create evaluation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.EvaluationsTotal.WithLabelValues(string(evaluation.Status)).Inc()
	s.logger.Info("evaluation created",
		"evaluation_id", evaluation.ID,
		"student_id", evaluation.StudentID,
		"unit_id", evaluation.CompetencyUnitID,
		"actor_id", actorID)

	return &EvaluationResponse{Evaluation: evaluation, CanEdit: true, CanDelete: true}, nil
}

func (s *evaluationService) GetByID(ctx context.Context, id uint, actorID string) (*EvaluationResponse, error) {
	actor, err := s.access.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	evaluation, err := s.repo.Evaluation().GetByIDWithDetails(ctx, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrEvaluationNotFound
		}
		return nil, fmt.Errorf("failed to get evaluation: %w", err)
	}

	rel, err := s.access.evaluationRelationship(ctx, actor, evaluation)
	if err != nil {
		return nil, err
	}
	if !s.access.decide(actor, authz.ResourceEvaluation, authz.ActionRead, rel) {
		return nil, NewPermissionError(actorID, "evaluation", "read", "not owner or course member")
	}

	return &EvaluationResponse{
		Evaluation: evaluation,
		CanEdit:    s.access.decide(actor, authz.ResourceEvaluation, authz.ActionUpdate, rel),
		CanDelete:  s.access.decide(actor, authz.ResourceEvaluation, authz.ActionDelete, rel),
	}, nil
}

func (s *evaluationService) Update(ctx context.Context, id uint, req *UpdateEvaluationRequest, actorID string) (*EvaluationResponse, error) {
	actor, err := s.access.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	if errs := s.validator.Validate(req); len(errs) > 0 {
		return nil, errs
	}

	evaluation, err := s.repo.Evaluation().GetByID(ctx, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrEvaluationNotFound
		}
		return nil, fmt.Errorf("failed to get evaluation: %w", err)
	}

	rel, err := s.access.evaluationRelationship(ctx, actor, evaluation)
	if err != nil {
		return nil, err
	}
	if !s.access.decide(actor, authz.ResourceEvaluation, authz.ActionUpdate, rel) {
		return nil, NewPermissionError(actorID, "evaluation", "update", "not the grading teacher")
	}

	// Confirmed evaluations are immutable; CanTransitionTo rejects every exit
	// from confirmed, and content edits are blocked here.
	if evaluation.Status == models.EvaluationConfirmed {
		return nil, ErrInvalidStatusTransition
	}

	if req.Scores != nil {
		unit, err := s.repo.Competency().GetUnitWithElements(ctx, evaluation.CompetencyUnitID)
		if err != nil {
			return nil, fmt.Errorf("failed to get competency unit: %w", err)
		}
		elements := make([]*models.CompetencyElement, len(unit.Elements))
		for i := range unit.Elements {
			elements[i] = &unit.Elements[i]
		}
		if errs := s.validator.ValidateEvaluationScores(req.Scores, elements); len(errs) > 0 {
			return nil, errs
		}

		scoresJSON, err := json.Marshal(req.Scores)
		if err != nil {
			return nil, fmt.Errorf("failed to encode scores: %w", err)
		}
		evaluation.Scores = scoresJSON
		evaluation.TotalScore = sumScores(req.Scores)
	}
	if req.Comment != nil {
		evaluation.Comment = req.Comment
	}
	if req.SubmissionID != nil {
		evaluation.SubmissionID = req.SubmissionID
	}

	statusChanged := false
	if req.Status != nil && *req.Status != evaluation.Status {
		if errs := s.validator.ValidateStatusTransition(evaluation.Status, *req.Status); len(errs) > 0 {
			return nil, ErrInvalidStatusTransition
		}
		evaluation.Status = *req.Status
		statusChanged = true
	}

	if err := s.repo.Evaluation().Update(ctx, evaluation); err != nil {
		return nil, fmt.Errorf("failed to update evaluation: %w", err)
	}

	if statusChanged {
		metrics.EvaluationsTotal.WithLabelValues(string(evaluation.Status)).Inc()
		s.publishStatusEvent(ctx, evaluation, actorID)
	}

	return &EvaluationResponse{
		Evaluation: evaluation,
		CanEdit:    evaluation.Status != models.EvaluationConfirmed,
		CanDelete:  s.access.decide(actor, authz.ResourceEvaluation, authz.ActionDelete, rel),
	}, nil
}

func (s *evaluationService) Delete(ctx context.Context, id uint, actorID string) error {
	actor, err := s.access.actor(ctx, actorID)
	if err != nil {
		return err
	}

	evaluation, err := s.repo.Evaluation().GetByID(ctx, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrEvaluationNotFound
		}
		return fmt.Errorf("failed to get evaluation: %w", err)
	}

	rel, err := s.access.evaluationRelationship(ctx, actor, evaluation)
	if err != nil {
		return err
	}
	if !s.access.decide(actor, authz.ResourceEvaluation, authz.ActionDelete, rel) {
		return NewPermissionError(actorID, "evaluation", "delete", "not the grading teacher")
	}

	if evaluation.Status == models.EvaluationConfirmed {
		return ErrInvalidStatusTransition
	}

	if err := s.repo.Evaluation().Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete evaluation: %w", err)
	}

	s.logger.Info("evaluation deleted", "evaluation_id", id, "actor_id", actorID)

	return nil
}

// List scopes filters by role before they reach the repository: students only
// ever see their own rows, teachers their own gradings.
func (s *evaluationService) List(ctx context.Context, filters repositories.EvaluationFilters, actorID string) (*EvaluationListResponse, error) {
	actor, err := s.access.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	if !actor.IsAdmin() {
		// The gate still applies to scoped listings.
		if actor.EmailVerifiedAt == nil || !actor.Approved {
			return nil, NewPermissionError(actorID, "evaluation", "list", "account not active")
		}
		switch actor.Role {
		case models.RoleTeacher:
			filters.TeacherID = &actor.ID
		default:
			filters.StudentID = &actor.ID
		}
	}

	if filters.Limit <= 0 || filters.Limit > 100 {
		filters.Limit = 20
	}

	evaluations, total, err := s.repo.Evaluation().List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list evaluations: %w", err)
	}

	responses := make([]*EvaluationResponse, len(evaluations))
	for i, evaluation := range evaluations {
		canEdit := actor.IsAdmin() || (evaluation.TeacherID == actor.ID && evaluation.Status != models.EvaluationConfirmed)
		responses[i] = &EvaluationResponse{
			Evaluation: evaluation,
			CanEdit:    canEdit,
			CanDelete:  canEdit,
		}
	}

	return &EvaluationListResponse{
		Evaluations: responses,
		Total:       total,
		Page:        pageFromOffset(filters.Offset, filters.Limit),
		Size:        filters.Limit,
	}, nil
}

func (s *evaluationService) CheckExists(ctx context.Context, studentID string, unitID uint, actorID string) (*EvaluationCheckResponse, error) {
	actor, err := s.access.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	rel, err := s.access.unitRelationship(ctx, actor, unitID)
	if err != nil {
		return nil, err
	}
	// The check targets a prospective row, so bind its would-be student
	// principal; the read rule then covers all three roles.
	rel.StudentID = studentID
	if !s.access.decide(actor, authz.ResourceEvaluation, authz.ActionRead, rel) {
		return nil, NewPermissionError(actorID, "evaluation", "read", "no course link or not own record")
	}

	exists, err := s.repo.Evaluation().ExistsForStudentUnit(ctx, studentID, unitID)
	if err != nil {
		return nil, fmt.Errorf("failed to check evaluation: %w", err)
	}

	return &EvaluationCheckResponse{Exists: exists}, nil
}

// ===== EXPORT =====

const exportSheet = "Evaluations"

// Export writes the matching evaluations to an xlsx workbook. The same role
// scoping as List applies, so a teacher export never leaks other teachers'
// gradings.
func (s *evaluationService) Export(ctx context.Context, filters repositories.EvaluationFilters, actorID string) ([]byte, error) {
	actor, err := s.access.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	if actor.Role == models.RoleStudent {
		return nil, NewPermissionError(actorID, "evaluation", "export", "teachers and admins only")
	}
	if !actor.IsAdmin() {
		if actor.EmailVerifiedAt == nil || !actor.Approved {
			return nil, NewPermissionError(actorID, "evaluation", "export", "account not active")
		}
		filters.TeacherID = &actor.ID
	}

	// Export is unpaginated within a sane ceiling.
	filters.Limit = 10000
	filters.Offset = 0

	evaluations, _, err := s.repo.Evaluation().List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list evaluations for export: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(exportSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create export sheet: %w", err)
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	headers := []string{"ID", "Student", "Teacher", "Unit", "Status", "Total Score", "Comment", "Created At"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(exportSheet, cell, header)
	}

	for row, evaluation := range evaluations {
		values := []interface{}{
			evaluation.ID,
			exportName(evaluation.Student.FullName, evaluation.StudentID),
			exportName(evaluation.Teacher.FullName, evaluation.TeacherID),
			exportName(evaluation.Unit.Name, fmt.Sprintf("%d", evaluation.CompetencyUnitID)),
			string(evaluation.Status),
			evaluation.TotalScore,
			exportComment(evaluation.Comment),
			evaluation.CreatedAt.Format(time.RFC3339),
		}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			f.SetCellValue(exportSheet, cell, value)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write export workbook: %w", err)
	}

	s.logger.Info("evaluations exported", "count", len(evaluations), "actor_id", actorID)

	return buf.Bytes(), nil
}

// Stats aggregates the matching evaluations by status. The same role scoping
// as Export applies: admins see everything, teachers only their own gradings.
func (s *evaluationService) Stats(ctx context.Context, filters repositories.EvaluationFilters, actorID string) (*repositories.EvaluationStats, error) {
	actor, err := s.access.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	if actor.Role == models.RoleStudent {
		return nil, NewPermissionError(actorID, "evaluation", "stats", "teachers and admins only")
	}
	if !actor.IsAdmin() {
		if actor.EmailVerifiedAt == nil || !actor.Approved {
			return nil, NewPermissionError(actorID, "evaluation", "stats", "account not active")
		}
		filters.TeacherID = &actor.ID
	}

	stats, err := s.repo.Evaluation().GetStats(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to get evaluation stats: %w", err)
	}

	return stats, nil
}

func (s *evaluationService) publishStatusEvent(ctx context.Context, evaluation *models.Evaluation, actorID string) {
	var eventType string
	switch evaluation.Status {
	case models.EvaluationSubmitted:
		eventType = events.TypeEvaluationSubmitted
	case models.EvaluationConfirmed:
		eventType = events.TypeEvaluationConfirmed
	default:
		return
	}

	payload := map[string]interface{}{
		"evaluation_id": evaluation.ID,
		"student_id":    evaluation.StudentID,
		"teacher_id":    evaluation.TeacherID,
		"status":        evaluation.Status,
		"actor_id":      actorID,
	}
	if err := s.publisher.Publish(ctx, events.NewEvent(eventType, payload)); err != nil {
		s.logger.Error("failed to publish evaluation status event", "error", err, "evaluation_id", evaluation.ID)
	}
}

func sumScores(scores map[string]float64) float64 {
	var total float64
	for _, score := range scores {
		total += score
	}
	return total
}

func exportName(name, fallback string) string {
	if name != "" {
		return name
	}
	return fallback
}

func exportComment(comment *string) string {
	if comment == nil {
		return ""
	}
	return *comment
}
