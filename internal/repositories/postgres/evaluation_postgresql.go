package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/ncsedu/grading-service/internal/cache"
	"github.com/ncsedu/grading-service/internal/models"
	"github.com/ncsedu/grading-service/internal/repositories"
)

type EvaluationPostgreSQL struct {
	db           *gorm.DB
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
}

func NewEvaluationPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.EvaluationRepository {
	return &EvaluationPostgreSQL{
		db:           db,
		helpers:      NewSharedHelpers(db),
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (e *EvaluationPostgreSQL) Create(ctx context.Context, evaluation *models.Evaluation) error {
	if err := e.db.WithContext(ctx).Create(evaluation).Error; err != nil {
		return fmt.Errorf("failed to create evaluation: %w", err)
	}

	cache.InvalidateEvaluationCache(ctx, e.cacheManager, evaluation.ID, evaluation.StudentID)
	cache.SafeDelete(ctx, e.cacheManager.Exists,
		fmt.Sprintf("eval:%s:%d", evaluation.StudentID, evaluation.CompetencyUnitID))

	return nil
}

func (e *EvaluationPostgreSQL) GetByID(ctx context.Context, id uint) (*models.Evaluation, error) {
	cacheKey := fmt.Sprintf("id:%d", id)
	var evaluation models.Evaluation

	err := e.cacheManager.Evaluation.CacheOrExecute(ctx, cacheKey, &evaluation, cache.EvaluationCacheConfig.TTL, func() (interface{}, error) {
		var dbEvaluation models.Evaluation
		err := e.db.WithContext(ctx).First(&dbEvaluation, id).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, repositories.ErrNotFound
			}
			return nil, fmt.Errorf("failed to get evaluation: %w", err)
		}
		return &dbEvaluation, nil
	})

	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, err
	}

	return &evaluation, nil
}

func (e *EvaluationPostgreSQL) GetByIDWithDetails(ctx context.Context, id uint) (*models.Evaluation, error) {
	var evaluation models.Evaluation
	err := e.db.WithContext(ctx).
		Preload("Student").
		Preload("Teacher").
		Preload("Unit").
		Preload("Unit.Elements").
		Preload("Submission").
		First(&evaluation, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get evaluation details: %w", err)
	}

	return &evaluation, nil
}

func (e *EvaluationPostgreSQL) Update(ctx context.Context, evaluation *models.Evaluation) error {
	err := e.db.WithContext(ctx).
		Model(&models.Evaluation{}).
		Where("id = ?", evaluation.ID).
		Updates(map[string]interface{}{
			"status":        evaluation.Status,
			"scores":        evaluation.Scores,
			"total_score":   evaluation.TotalScore,
			"comment":       evaluation.Comment,
			"submission_id": evaluation.SubmissionID,
			"updated_at":    evaluation.UpdatedAt,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update evaluation: %w", err)
	}

	cache.InvalidateEvaluationCache(ctx, e.cacheManager, evaluation.ID, evaluation.StudentID)

	return nil
}

func (e *EvaluationPostgreSQL) Delete(ctx context.Context, id uint) error {
	var evaluation models.Evaluation
	if err := e.db.WithContext(ctx).Select("id, student_id, competency_unit_id").First(&evaluation, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return repositories.ErrNotFound
		}
		return fmt.Errorf("failed to get evaluation before delete: %w", err)
	}

	if err := e.db.WithContext(ctx).Delete(&models.Evaluation{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete evaluation: %w", err)
	}

	cache.InvalidateEvaluationCache(ctx, e.cacheManager, id, evaluation.StudentID)
	cache.SafeDelete(ctx, e.cacheManager.Exists,
		fmt.Sprintf("eval:%s:%d", evaluation.StudentID, evaluation.CompetencyUnitID))

	return nil
}

func (e *EvaluationPostgreSQL) List(ctx context.Context, filters repositories.EvaluationFilters) ([]*models.Evaluation, int64, error) {
	query := e.db.WithContext(ctx).Model(&models.Evaluation{})

	query = e.helpers.ApplyEvaluationFilters(query, filters)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = e.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	var evaluations []*models.Evaluation
	err := query.
		Preload("Student").
		Preload("Unit").
		Find(&evaluations).Error
	if err != nil {
		return nil, 0, err
	}

	return evaluations, total, nil
}

// ExistsForStudentUnit backs the duplicate pre-check. Soft-deleted rows do
// not count; the partial unique index ignores them too.
func (e *EvaluationPostgreSQL) ExistsForStudentUnit(ctx context.Context, studentID string, unitID uint) (bool, error) {
	cacheKey := fmt.Sprintf("eval:%s:%d", studentID, unitID)
	var exists bool

	err := e.cacheManager.Exists.CacheOrExecute(ctx, cacheKey, &exists, cache.ExistsCacheConfig.TTL, func() (interface{}, error) {
		var count int64
		err := e.db.WithContext(ctx).
			Model(&models.Evaluation{}).
			Where("student_id = ? AND competency_unit_id = ?", studentID, unitID).
			Count(&count).Error
		if err != nil {
			return nil, fmt.Errorf("failed to check evaluation existence: %w", err)
		}
		return count > 0, nil
	})
	if err != nil {
		return false, err
	}

	return exists, nil
}

func (e *EvaluationPostgreSQL) GetStats(ctx context.Context, filters repositories.EvaluationFilters) (*repositories.EvaluationStats, error) {
	cacheKey := fmt.Sprintf("evaluation:unit:%v:student:%v:teacher:%v",
		derefUint(filters.CompetencyUnitID), derefString(filters.StudentID), derefString(filters.TeacherID))
	var stats repositories.EvaluationStats

	err := e.cacheManager.Stats.CacheOrExecute(ctx, cacheKey, &stats, cache.StatsCacheConfig.TTL, func() (interface{}, error) {
		var rows []struct {
			Status models.EvaluationStatus
			Count  int
			Avg    float64
		}

		query := e.db.WithContext(ctx).Model(&models.Evaluation{})
		query = e.helpers.ApplyEvaluationFilters(query, filters)

		err := query.
			Select("evaluations.status AS status, COUNT(*) AS count, AVG(evaluations.total_score) AS avg").
			Group("evaluations.status").
			Scan(&rows).Error
		if err != nil {
			return nil, fmt.Errorf("failed to get evaluation stats: %w", err)
		}

		var result repositories.EvaluationStats
		var weightedSum float64
		for _, row := range rows {
			result.Total += row.Count
			weightedSum += row.Avg * float64(row.Count)
			switch row.Status {
			case models.EvaluationDraft:
				result.Draft = row.Count
			case models.EvaluationSubmitted:
				result.Submitted = row.Count
			case models.EvaluationConfirmed:
				result.Confirmed = row.Count
			}
		}
		if result.Total > 0 {
			result.AverageScore = weightedSum / float64(result.Total)
		}

		return &result, nil
	})
	if err != nil {
		return nil, err
	}

	return &stats, nil
}

func derefUint(v *uint) uint {
	if v == nil {
		return 0
	}
	return *v
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
