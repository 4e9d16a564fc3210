package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/ncsedu/grading-service/internal/models"
	"github.com/ncsedu/grading-service/internal/repositories"
)

type SchedulePostgreSQL struct {
	db *gorm.DB
}

func NewSchedulePostgreSQL(db *gorm.DB) repositories.ScheduleRepository {
	return &SchedulePostgreSQL{db: db}
}

func (s *SchedulePostgreSQL) Create(ctx context.Context, schedule *models.EvaluationSchedule) error {
	if err := s.db.WithContext(ctx).Create(schedule).Error; err != nil {
		return fmt.Errorf("failed to create schedule: %w", err)
	}

	return nil
}

// GetByID reads straight from the database. Schedules gate submission
// uploads, so a stale open/closed flag is worse than the extra query.
func (s *SchedulePostgreSQL) GetByID(ctx context.Context, id uint) (*models.EvaluationSchedule, error) {
	var schedule models.EvaluationSchedule
	err := s.db.WithContext(ctx).First(&schedule, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}

	return &schedule, nil
}

func (s *SchedulePostgreSQL) Update(ctx context.Context, schedule *models.EvaluationSchedule) error {
	err := s.db.WithContext(ctx).
		Model(&models.EvaluationSchedule{}).
		Where("id = ?", schedule.ID).
		Updates(map[string]interface{}{
			"title":      schedule.Title,
			"status":     schedule.Status,
			"opens_at":   schedule.OpensAt,
			"closes_at":  schedule.ClosesAt,
			"updated_at": schedule.UpdatedAt,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update schedule: %w", err)
	}

	return nil
}

func (s *SchedulePostgreSQL) Delete(ctx context.Context, id uint) error {
	if err := s.db.WithContext(ctx).Delete(&models.EvaluationSchedule{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}

	return nil
}

func (s *SchedulePostgreSQL) ListByUnit(ctx context.Context, unitID uint) ([]*models.EvaluationSchedule, error) {
	var schedules []*models.EvaluationSchedule
	err := s.db.WithContext(ctx).
		Where("competency_unit_id = ?", unitID).
		Order("created_at DESC").
		Find(&schedules).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}

	return schedules, nil
}
