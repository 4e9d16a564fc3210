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

type competencyService struct {
	repo      repositories.Repository
	access    *accessChecker
	logger    *slog.Logger
	validator *validator.BusinessValidator
}

func NewCompetencyService(repo repositories.Repository, logger *slog.Logger, v *validator.BusinessValidator) CompetencyService {
	return &competencyService{
		repo:      repo,
		access:    newAccessChecker(repo),
		logger:    logger,
		validator: v,
	}
}

// ===== UNITS =====

func (s *competencyService) CreateUnit(ctx context.Context, req *CreateUnitRequest, actorID string) (*models.CompetencyUnit, error) {
	actor, err := s.access.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	if errs := s.validator.Validate(req); len(errs) > 0 {
		return nil, errs
	}

	// Unit creation lives inside the course the actor is assigned to.
	rel, err := s.access.courseRelationship(ctx, actor, req.CourseID)
	if err != nil {
		return nil, err
	}
	if !s.access.decide(actor, authz.ResourceCompetencyUnit, authz.ActionCreate, rel) {
		return nil, NewPermissionError(actorID, "competency_unit", "create", "not assigned to course")
	}

	if _, err := s.repo.Course().GetByID(ctx, req.CourseID); err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrCourseNotFound
		}
		return nil, fmt.Errorf("failed to get course: %w", err)
	}

	unit := &models.CompetencyUnit{
		CourseID:    req.CourseID,
		Code:        req.Code,
		Name:        req.Name,
		Description: req.Description,
		SortOrder:   req.SortOrder,
	}

	if err := s.repo.Competency().CreateUnit(ctx, unit); err != nil {
		return nil, fmt.Errorf("failed to create competency unit: %w", err)
	}

	s.logger.Info("competency unit created", "unit_id", unit.ID, "course_id", unit.CourseID, "actor_id", actorID)

	return unit, nil
}

func (s *competencyService) GetUnit(ctx context.Context, id uint, actorID string) (*models.CompetencyUnit, error) {
	actor, err := s.access.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	rel, err := s.access.unitRelationship(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !s.access.decide(actor, authz.ResourceCompetencyUnit, authz.ActionRead, rel) {
		return nil, NewPermissionError(actorID, "competency_unit", "read", "no course link")
	}

	unit, err := s.repo.Competency().GetUnitWithElements(ctx, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrUnitNotFound
		}
		return nil, fmt.Errorf("failed to get competency unit: %w", err)
	}

	return unit, nil
}

func (s *competencyService) UpdateUnit(ctx context.Context, id uint, req *UpdateUnitRequest, actorID string) (*models.CompetencyUnit, error) {
	actor, err := s.access.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	if errs := s.validator.Validate(req); len(errs) > 0 {
		return nil, errs
	}

	rel, err := s.access.unitRelationship(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !s.access.decide(actor, authz.ResourceCompetencyUnit, authz.ActionUpdate, rel) {
		return nil, NewPermissionError(actorID, "competency_unit", "update", "no course link")
	}

	unit, err := s.repo.Competency().GetUnit(ctx, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrUnitNotFound
		}
		return nil, fmt.Errorf("failed to get competency unit: %w", err)
	}

	if req.Code != nil {
		unit.Code = *req.Code
	}
	if req.Name != nil {
		unit.Name = *req.Name
	}
	if req.Description != nil {
		unit.Description = req.Description
	}
	if req.SortOrder != nil {
		unit.SortOrder = *req.SortOrder
	}

	if err := s.repo.Competency().UpdateUnit(ctx, unit); err != nil {
		return nil, fmt.Errorf("failed to update competency unit: %w", err)
	}

	return unit, nil
}

func (s *competencyService) DeleteUnit(ctx context.Context, id uint, actorID string) error {
	actor, err := s.access.actor(ctx, actorID)
	if err != nil {
		return err
	}

	rel, err := s.access.unitRelationship(ctx, actor, id)
	if err != nil {
		return err
	}
	if !s.access.decide(actor, authz.ResourceCompetencyUnit, authz.ActionDelete, rel) {
		return NewPermissionError(actorID, "competency_unit", "delete", "no course link")
	}

	if _, err := s.repo.Competency().GetUnit(ctx, id); err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrUnitNotFound
		}
		return fmt.Errorf("failed to get competency unit: %w", err)
	}

	if err := s.repo.Competency().DeleteUnit(ctx, id); err != nil {
		return fmt.Errorf("failed to delete competency unit: %w", err)
	}

	s.logger.Info("competency unit deleted", "unit_id", id, "actor_id", actorID)

	return nil
}

func (s *competencyService) ListUnits(ctx context.Context, courseID uint, actorID string) ([]*models.CompetencyUnit, error) {
	actor, err := s.access.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	rel, err := s.access.courseRelationship(ctx, actor, courseID)
	if err != nil {
		return nil, err
	}
	if !s.access.decide(actor, authz.ResourceCompetencyUnit, authz.ActionRead, rel) {
		return nil, NewPermissionError(actorID, "competency_unit", "read", "no course link")
	}

	units, err := s.repo.Competency().ListUnitsByCourse(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list competency units: %w", err)
	}

	return units, nil
}

// ===== ELEMENTS =====

func (s *competencyService) CreateElement(ctx context.Context, req *CreateElementRequest, actorID string) (*models.CompetencyElement, error) {
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
	if !s.access.decide(actor, authz.ResourceCompetencyElement, authz.ActionCreate, rel) {
		return nil, NewPermissionError(actorID, "competency_element", "create", "no course link")
	}

	if _, err := s.repo.Competency().GetUnit(ctx, req.CompetencyUnitID); err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrUnitNotFound
		}
		return nil, fmt.Errorf("failed to get competency unit: %w", err)
	}

	element := &models.CompetencyElement{
		CompetencyUnitID: req.CompetencyUnitID,
		Code:             req.Code,
		Name:             req.Name,
		MaxScore:         req.MaxScore,
		Criteria:         req.Criteria,
		SortOrder:        req.SortOrder,
	}

	if err := s.repo.Competency().CreateElement(ctx, element); err != nil {
		return nil, fmt.Errorf("failed to create competency element: %w", err)
	}

	s.logger.Info("competency element created", "element_id", element.ID, "unit_id", element.CompetencyUnitID, "actor_id", actorID)

	return element, nil
}

func (s *competencyService) GetElement(ctx context.Context, id uint, actorID string) (*models.CompetencyElement, error) {
	actor, err := s.access.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	element, err := s.repo.Competency().GetElement(ctx, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrElementNotFound
		}
		return nil, fmt.Errorf("failed to get competency element: %w", err)
	}

	rel, err := s.access.unitRelationship(ctx, actor, element.CompetencyUnitID)
	if err != nil {
		return nil, err
	}
	if !s.access.decide(actor, authz.ResourceCompetencyElement, authz.ActionRead, rel) {
		return nil, NewPermissionError(actorID, "competency_element", "read", "no course link")
	}

	return element, nil
}

func (s *competencyService) UpdateElement(ctx context.Context, id uint, req *UpdateElementRequest, actorID string) (*models.CompetencyElement, error) {
	actor, err := s.access.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	if errs := s.validator.Validate(req); len(errs) > 0 {
		return nil, errs
	}

	element, err := s.repo.Competency().GetElement(ctx, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrElementNotFound
		}
		return nil, fmt.Errorf("failed to get competency element: %w", err)
	}

	rel, err := s.access.unitRelationship(ctx, actor, element.CompetencyUnitID)
	if err != nil {
		return nil, err
	}
	if !s.access.decide(actor, authz.ResourceCompetencyElement, authz.ActionUpdate, rel) {
		return nil, NewPermissionError(actorID, "competency_element", "update", "no course link")
	}

	if req.Code != nil {
		element.Code = *req.Code
	}
	if req.Name != nil {
		element.Name = *req.Name
	}
	if req.MaxScore != nil {
		element.MaxScore = *req.MaxScore
	}
	if req.Criteria != nil {
		element.Criteria = req.Criteria
	}

	if err := s.repo.Competency().UpdateElement(ctx, element); err != nil {
		return nil, fmt.Errorf("failed to update competency element: %w", err)
	}

	return element, nil
}

func (s *competencyService) DeleteElement(ctx context.Context, id uint, actorID string) error {
	actor, err := s.access.actor(ctx, actorID)
	if err != nil {
		return err
	}

	element, err := s.repo.Competency().GetElement(ctx, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrElementNotFound
		}
		return fmt.Errorf("failed to get competency element: %w", err)
	}

	rel, err := s.access.unitRelationship(ctx, actor, element.CompetencyUnitID)
	if err != nil {
		return err
	}
	if !s.access.decide(actor, authz.ResourceCompetencyElement, authz.ActionDelete, rel) {
		return NewPermissionError(actorID, "competency_element", "delete", "no course link")
	}

	if err := s.repo.Competency().DeleteElement(ctx, id); err != nil {
		return fmt.Errorf("failed to delete competency element: %w", err)
	}

	s.logger.Info("competency element deleted", "element_id", id, "actor_id", actorID)

	return nil
}

func (s *competencyService) ListElements(ctx context.Context, unitID uint, actorID string) ([]*models.CompetencyElement, error) {
	actor, err := s.access.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	rel, err := s.access.unitRelationship(ctx, actor, unitID)
	if err != nil {
		return nil, err
	}
	if !s.access.decide(actor, authz.ResourceCompetencyElement, authz.ActionRead, rel) {
		return nil, NewPermissionError(actorID, "competency_element", "read", "no course link")
	}

	elements, err := s.repo.Competency().ListElementsByUnit(ctx, unitID)
	if err != nil {
		return nil, fmt.Errorf("failed to list competency elements: %w", err)
	}

	return elements, nil
}
