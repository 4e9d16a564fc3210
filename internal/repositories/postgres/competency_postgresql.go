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

type CompetencyPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewCompetencyPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.CompetencyRepository {
	return &CompetencyPostgreSQL{
		db:           db,
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (r *CompetencyPostgreSQL) CreateUnit(ctx context.Context, unit *models.CompetencyUnit) error {
	if err := r.db.WithContext(ctx).Create(unit).Error; err != nil {
		return fmt.Errorf("failed to create competency unit: %w", err)
	}
	cache.InvalidateCourseCache(ctx, r.cacheManager, unit.CourseID)

	return nil
}

func (r *CompetencyPostgreSQL) GetUnit(ctx context.Context, id uint) (*models.CompetencyUnit, error) {
	var unit models.CompetencyUnit
	err := r.db.WithContext(ctx).First(&unit, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get competency unit: %w", err)
	}

	return &unit, nil
}

func (r *CompetencyPostgreSQL) GetUnitWithElements(ctx context.Context, id uint) (*models.CompetencyUnit, error) {
	cacheKey := fmt.Sprintf("unit:%d", id)
	var unit models.CompetencyUnit

	err := r.cacheManager.Course.CacheOrExecute(ctx, cacheKey, &unit, cache.CourseCacheConfig.TTL, func() (interface{}, error) {
		var dbUnit models.CompetencyUnit
		err := r.db.WithContext(ctx).
			Preload("Elements", func(db *gorm.DB) *gorm.DB {
				return db.Order("competency_elements.code ASC")
			}).
			First(&dbUnit, id).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, repositories.ErrNotFound
			}
			return nil, fmt.Errorf("failed to get competency unit details: %w", err)
		}

		dbUnit.ElementCount = len(dbUnit.Elements)
		return &dbUnit, nil
	})

	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, err
	}

	return &unit, nil
}

func (r *CompetencyPostgreSQL) UpdateUnit(ctx context.Context, unit *models.CompetencyUnit) error {
	err := r.db.WithContext(ctx).
		Model(&models.CompetencyUnit{}).
		Where("id = ?", unit.ID).
		Updates(map[string]interface{}{
			"code":        unit.Code,
			"name":        unit.Name,
			"description": unit.Description,
			"sort_order":  unit.SortOrder,
			"updated_at":  unit.UpdatedAt,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update competency unit: %w", err)
	}

	cache.SafeDelete(ctx, r.cacheManager.Course, fmt.Sprintf("unit:%d", unit.ID))
	cache.InvalidateCourseCache(ctx, r.cacheManager, unit.CourseID)

	return nil
}

func (r *CompetencyPostgreSQL) DeleteUnit(ctx context.Context, id uint) error {
	var unit models.CompetencyUnit
	if err := r.db.WithContext(ctx).Select("id, course_id").First(&unit, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return repositories.ErrNotFound
		}
		return fmt.Errorf("failed to get unit before delete: %w", err)
	}

	if err := r.db.WithContext(ctx).Delete(&models.CompetencyUnit{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete competency unit: %w", err)
	}

	cache.SafeDelete(ctx, r.cacheManager.Course, fmt.Sprintf("unit:%d", id))
	cache.InvalidateCourseCache(ctx, r.cacheManager, unit.CourseID)

	return nil
}

func (r *CompetencyPostgreSQL) ListUnitsByCourse(ctx context.Context, courseID uint) ([]*models.CompetencyUnit, error) {
	var units []*models.CompetencyUnit
	err := r.db.WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("sort_order ASC, id ASC").
		Find(&units).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list competency units: %w", err)
	}

	return units, nil
}

func (r *CompetencyPostgreSQL) CreateElement(ctx context.Context, element *models.CompetencyElement) error {
	if err := r.db.WithContext(ctx).Create(element).Error; err != nil {
		return fmt.Errorf("failed to create competency element: %w", err)
	}
	cache.SafeDelete(ctx, r.cacheManager.Course, fmt.Sprintf("unit:%d", element.CompetencyUnitID))

	return nil
}

func (r *CompetencyPostgreSQL) GetElement(ctx context.Context, id uint) (*models.CompetencyElement, error) {
	var element models.CompetencyElement
	err := r.db.WithContext(ctx).First(&element, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get competency element: %w", err)
	}

	return &element, nil
}

func (r *CompetencyPostgreSQL) UpdateElement(ctx context.Context, element *models.CompetencyElement) error {
	err := r.db.WithContext(ctx).
		Model(&models.CompetencyElement{}).
		Where("id = ?", element.ID).
		Updates(map[string]interface{}{
			"code":       element.Code,
			"name":       element.Name,
			"max_score":  element.MaxScore,
			"criteria":   element.Criteria,
			"updated_at": element.UpdatedAt,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update competency element: %w", err)
	}

	cache.SafeDelete(ctx, r.cacheManager.Course, fmt.Sprintf("unit:%d", element.CompetencyUnitID))

	return nil
}

func (r *CompetencyPostgreSQL) DeleteElement(ctx context.Context, id uint) error {
	var element models.CompetencyElement
	if err := r.db.WithContext(ctx).Select("id, competency_unit_id").First(&element, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return repositories.ErrNotFound
		}
		return fmt.Errorf("failed to get element before delete: %w", err)
	}

	if err := r.db.WithContext(ctx).Delete(&models.CompetencyElement{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete competency element: %w", err)
	}

	cache.SafeDelete(ctx, r.cacheManager.Course, fmt.Sprintf("unit:%d", element.CompetencyUnitID))

	return nil
}

func (r *CompetencyPostgreSQL) ListElementsByUnit(ctx context.Context, unitID uint) ([]*models.CompetencyElement, error) {
	var elements []*models.CompetencyElement
	err := r.db.WithContext(ctx).
		Where("competency_unit_id = ?", unitID).
		Order("code ASC").
		Find(&elements).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list competency elements: %w", err)
	}

	return elements, nil
}
