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

type ProfilePostgreSQL struct {
	db           *gorm.DB
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
}

func NewProfilePostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.ProfileRepository {
	return &ProfilePostgreSQL{
		db:           db,
		helpers:      NewSharedHelpers(db),
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (p *ProfilePostgreSQL) Create(ctx context.Context, profile *models.Profile) error {
	if err := p.db.WithContext(ctx).Create(profile).Error; err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}
	cache.InvalidateProfileCache(ctx, p.cacheManager, profile.ID, profile.Email)

	return nil
}

// GetByID retrieves a profile by the identity provider's user ID with caching.
// The cached copy feeds both UI profile loads and the route guard, so the TTL
// stays short and every write path invalidates.
func (p *ProfilePostgreSQL) GetByID(ctx context.Context, id string) (*models.Profile, error) {
	cacheKey := fmt.Sprintf("id:%s", id)
	var profile models.Profile

	err := p.cacheManager.Profile.CacheOrExecute(ctx, cacheKey, &profile, cache.ProfileCacheConfig.TTL, func() (interface{}, error) {
		var dbProfile models.Profile
		err := p.db.WithContext(ctx).First(&dbProfile, "id = ?", id).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, repositories.ErrNotFound
			}
			return nil, fmt.Errorf("failed to get profile: %w", err)
		}
		return &dbProfile, nil
	})

	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, err
	}

	return &profile, nil
}

func (p *ProfilePostgreSQL) GetByEmail(ctx context.Context, email string) (*models.Profile, error) {
	cacheKey := fmt.Sprintf("email:%s", email)
	var profile models.Profile

	err := p.cacheManager.Profile.CacheOrExecute(ctx, cacheKey, &profile, cache.ProfileCacheConfig.TTL, func() (interface{}, error) {
		var dbProfile models.Profile
		err := p.db.WithContext(ctx).First(&dbProfile, "email = ?", email).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, repositories.ErrNotFound
			}
			return nil, fmt.Errorf("failed to get profile by email: %w", err)
		}
		return &dbProfile, nil
	})

	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, err
	}

	return &profile, nil
}

func (p *ProfilePostgreSQL) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var count int64
	err := p.db.WithContext(ctx).
		Model(&models.Profile{}).
		Where("email = ?", email).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check profile email: %w", err)
	}

	return count > 0, nil
}

func (p *ProfilePostgreSQL) Update(ctx context.Context, profile *models.Profile) error {
	err := p.db.WithContext(ctx).
		Model(&models.Profile{}).
		Where("id = ?", profile.ID).
		Updates(map[string]interface{}{
			"full_name":         profile.FullName,
			"phone":             profile.Phone,
			"email_verified_at": profile.EmailVerifiedAt,
			"preferences":       profile.Preferences,
			"updated_at":        profile.UpdatedAt,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}

	cache.InvalidateProfileCache(ctx, p.cacheManager, profile.ID, profile.Email)

	return nil
}

// SetApproval flips the admin approval flag. Invalidation matters here: the
// route guard reads this flag on every page navigation.
func (p *ProfilePostgreSQL) SetApproval(ctx context.Context, id string, approved bool) error {
	var profile models.Profile
	if err := p.db.WithContext(ctx).Select("id, email").First(&profile, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return repositories.ErrNotFound
		}
		return fmt.Errorf("failed to get profile before approval: %w", err)
	}

	err := p.db.WithContext(ctx).
		Model(&models.Profile{}).
		Where("id = ?", id).
		Update("approved", approved).Error
	if err != nil {
		return fmt.Errorf("failed to update approval: %w", err)
	}

	cache.InvalidateProfileCache(ctx, p.cacheManager, profile.ID, profile.Email)

	return nil
}

func (p *ProfilePostgreSQL) List(ctx context.Context, filters repositories.ProfileFilters) ([]*models.Profile, int64, error) {
	query := p.db.WithContext(ctx).Model(&models.Profile{})

	query = p.helpers.ApplyProfileFilters(query, filters)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = p.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	var profiles []*models.Profile
	if err := query.Find(&profiles).Error; err != nil {
		return nil, 0, err
	}

	return profiles, total, nil
}
