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

type scheduleService struct {
	repo      repositories.Repository
	access    *accessChecker
	logger    *slog.Logger
	validator *validator.BusinessValidator
}

func NewScheduleService(repo repositories.Repository, logger *slog.Logger, v *validator.BusinessValidator) ScheduleService {
	return &scheduleService{
		repo:      repo,
		access:    newAccessChecker(repo),
		logger:    logger,
		validator: v,
	}
}

func (s *scheduleService) Create(ctx context.Context, req *CreateScheduleRequest, actorID string) (*models.EvaluationSchedule, error) {
	actor, err := s.access.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	if errs := s.validator.Validate(req); len(errs) > 0 {
		return nil, errs
	}
	if errs := s.validator.ValidateScheduleWindow(req.OpensAt, req.ClosesAt); len(errs) > 0 {
		return nil, errs
	}

	rel, err := s.access.unitRelationship(ctx, actor, req.CompetencyUnitID)
	if err != nil {
		return nil, err
	}
	if !s.access.decide(actor, authz.ResourceSchedule, authz.ActionCreate, rel) {
		return nil, NewPermissionError(actorID, "evaluation_schedule", "create", "no course link")
	}

	if _, err := s.repo.Competency().GetUnit(ctx, req.CompetencyUnitID); err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrUnitNotFound
		}
		return nil, fmt.Errorf("failed to get competency unit: %w", err)
	}

	schedule := &models.EvaluationSchedule{
		CompetencyUnitID: req.CompetencyUnitID,
		Title:            req.Title,
		Status:           models.ScheduleOpen,
		OpensAt:          req.OpensAt,
		ClosesAt:         req.ClosesAt,
		CreatedBy:        actorID,
	}
	if req.Status != nil {
		schedule.Status = models.ScheduleStatus(*req.Status)
	}

	if err := s.repo.Schedule().Create(ctx, schedule); err != nil {
		return nil, fmt.Errorf("failed to create schedule: %w", err)
	}

	s.logger.Info("schedule created", "schedule_id", schedule.ID, "unit_id", schedule.CompetencyUnitID, "actor_id", actorID)

	return schedule, nil
}

func (s *scheduleService) GetByID(ctx context.Context, id uint, actorID string) (*models.EvaluationSchedule, error) {
	actor, err := s.access.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	schedule, err := s.repo.Schedule().GetByID(ctx, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrScheduleNotFound
		}
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}

	rel, err := s.access.unitRelationship(ctx, actor, schedule.CompetencyUnitID)
	if err != nil {
		return nil, err
	}
	if !s.access.decide(actor, authz.ResourceSchedule, authz.ActionRead, rel) {
		return nil, NewPermissionError(actorID, "evaluation_schedule", "read", "no course link")
	}

	return schedule, nil
}

func (s *scheduleService) Update(ctx context.Context, id uint, req *UpdateScheduleRequest, actorID string) (*models.EvaluationSchedule, error) {
	actor, err := s.access.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	if errs := s.validator.Validate(req); len(errs) > 0 {
		return nil, errs
	}

	schedule, err := s.repo.Schedule().GetByID(ctx, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrScheduleNotFound
		}
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}

	rel, err := s.access.unitRelationship(ctx, actor, schedule.CompetencyUnitID)
	if err != nil {
		return nil, err
	}
	if !s.access.decide(actor, authz.ResourceSchedule, authz.ActionUpdate, rel) {
		return nil, NewPermissionError(actorID, "evaluation_schedule", "update", "no course link")
	}

	if req.Title != nil {
		schedule.Title = *req.Title
	}
	if req.Status != nil {
		schedule.Status = models.ScheduleStatus(*req.Status)
	}
	if req.OpensAt != nil {
		schedule.OpensAt = req.OpensAt
	}
	if req.ClosesAt != nil {
		schedule.ClosesAt = req.ClosesAt
	}

	// Validate the merged window so a partial update cannot invert it.
	if errs := s.validator.ValidateScheduleWindow(schedule.OpensAt, schedule.ClosesAt); len(errs) > 0 {
		return nil, errs
	}

	if err := s.repo.Schedule().Update(ctx, schedule); err != nil {
		return nil, fmt.Errorf("failed to update schedule: %w", err)
	}

	return schedule, nil
}

func (s *scheduleService) Delete(ctx context.Context, id uint, actorID string) error {
	actor, err := s.access.actor(ctx, actorID)
	if err != nil {
		return err
	}

	schedule, err := s.repo.Schedule().GetByID(ctx, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrScheduleNotFound
		}
		return fmt.Errorf("failed to get schedule: %w", err)
	}

	rel, err := s.access.unitRelationship(ctx, actor, schedule.CompetencyUnitID)
	if err != nil {
		return err
	}
	if !s.access.decide(actor, authz.ResourceSchedule, authz.ActionDelete, rel) {
		return NewPermissionError(actorID, "evaluation_schedule", "delete", "no course link")
	}

	if err := s.repo.Schedule().Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}

	s.logger.Info("schedule deleted", "schedule_id", id, "actor_id", actorID)

	return nil
}

func (s *scheduleService) ListByUnit(ctx context.Context, unitID uint, actorID string) ([]*models.EvaluationSchedule, error) {
	actor, err := s.access.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	rel, err := s.access.unitRelationship(ctx, actor, unitID)
	if err != nil {
		return nil, err
	}
	if !s.access.decide(actor, authz.ResourceSchedule, authz.ActionRead, rel) {
		return nil, NewPermissionError(actorID, "evaluation_schedule", "read", "no course link")
	}

	schedules, err := s.repo.Schedule().ListByUnit(ctx, unitID)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}

	return schedules, nil
}
