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

type CoursePostgreSQL struct {
	db           *gorm.DB
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
}

func NewCoursePostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.CourseRepository {
	return &CoursePostgreSQL{
		db:           db,
		helpers:      NewSharedHelpers(db),
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (c *CoursePostgreSQL) Create(ctx context.Context, course *models.Course) error {
	if err := c.db.WithContext(ctx).Create(course).Error; err != nil {
		return fmt.Errorf("failed to create course: %w", err)
	}
	cache.SafeInvalidatePattern(ctx, c.cacheManager.Course, "list:*")

	return nil
}

func (c *CoursePostgreSQL) GetByID(ctx context.Context, id uint) (*models.Course, error) {
	cacheKey := fmt.Sprintf("id:%d", id)
	var course models.Course

	err := c.cacheManager.Course.CacheOrExecute(ctx, cacheKey, &course, cache.CourseCacheConfig.TTL, func() (interface{}, error) {
		var dbCourse models.Course
		err := c.db.WithContext(ctx).First(&dbCourse, id).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, repositories.ErrNotFound
			}
			return nil, fmt.Errorf("failed to get course: %w", err)
		}
		return &dbCourse, nil
	})

	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, err
	}

	return &course, nil
}

// GetByIDWithDetails loads the course with units, teachers and enrolled
// students preloaded.
func (c *CoursePostgreSQL) GetByIDWithDetails(ctx context.Context, id uint) (*models.Course, error) {
	cacheKey := fmt.Sprintf("details:%d", id)
	var course models.Course

	err := c.cacheManager.Course.CacheOrExecute(ctx, cacheKey, &course, cache.CourseCacheConfig.TTL, func() (interface{}, error) {
		var dbCourse models.Course
		err := c.db.WithContext(ctx).
			Preload("Units", func(db *gorm.DB) *gorm.DB {
				return db.Order("competency_units.sort_order ASC")
			}).
			Preload("Teachers").
			Preload("Students").
			First(&dbCourse, id).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, repositories.ErrNotFound
			}
			return nil, fmt.Errorf("failed to get course details: %w", err)
		}

		c.calculateComputedFields(&dbCourse)
		return &dbCourse, nil
	})

	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, err
	}

	return &course, nil
}

func (c *CoursePostgreSQL) Update(ctx context.Context, course *models.Course) error {
	err := c.db.WithContext(ctx).
		Model(&models.Course{}).
		Where("id = ?", course.ID).
		Updates(map[string]interface{}{
			"name":        course.Name,
			"description": course.Description,
			"updated_at":  course.UpdatedAt,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update course: %w", err)
	}

	cache.InvalidateCourseCache(ctx, c.cacheManager, course.ID)

	return nil
}

func (c *CoursePostgreSQL) Delete(ctx context.Context, id uint) error {
	if err := c.db.WithContext(ctx).Delete(&models.Course{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete course: %w", err)
	}

	cache.InvalidateCourseCache(ctx, c.cacheManager, id)

	return nil
}

func (c *CoursePostgreSQL) List(ctx context.Context, filters repositories.CourseFilters) ([]*models.Course, int64, error) {
	query := c.db.WithContext(ctx).Model(&models.Course{})

	query = c.helpers.ApplyCourseFilters(query, filters)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = c.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	var courses []*models.Course
	if err := query.Find(&courses).Error; err != nil {
		return nil, 0, err
	}

	return courses, total, nil
}

func (c *CoursePostgreSQL) ListForTeacher(ctx context.Context, teacherID string, filters repositories.CourseFilters) ([]*models.Course, int64, error) {
	query := c.db.WithContext(ctx).
		Model(&models.Course{}).
		Joins("JOIN course_teachers ON course_teachers.course_id = courses.id").
		Where("course_teachers.teacher_id = ?", teacherID)

	query = c.helpers.ApplyCourseFilters(query, filters)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = c.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	var courses []*models.Course
	if err := query.Find(&courses).Error; err != nil {
		return nil, 0, err
	}

	return courses, total, nil
}

func (c *CoursePostgreSQL) ListForStudent(ctx context.Context, studentID string, filters repositories.CourseFilters) ([]*models.Course, int64, error) {
	query := c.db.WithContext(ctx).
		Model(&models.Course{}).
		Joins("JOIN course_students ON course_students.course_id = courses.id").
		Where("course_students.student_id = ?", studentID)

	query = c.helpers.ApplyCourseFilters(query, filters)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = c.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	var courses []*models.Course
	if err := query.Find(&courses).Error; err != nil {
		return nil, 0, err
	}

	return courses, total, nil
}

func (c *CoursePostgreSQL) AssignTeacher(ctx context.Context, courseID uint, teacherID string) error {
	link := models.CourseTeacher{CourseID: courseID, TeacherID: teacherID}
	if err := c.db.WithContext(ctx).Create(&link).Error; err != nil {
		return fmt.Errorf("failed to assign teacher: %w", err)
	}

	cache.InvalidateCourseCache(ctx, c.cacheManager, courseID)

	return nil
}

func (c *CoursePostgreSQL) RemoveTeacher(ctx context.Context, courseID uint, teacherID string) error {
	err := c.db.WithContext(ctx).
		Where("course_id = ? AND teacher_id = ?", courseID, teacherID).
		Delete(&models.CourseTeacher{}).Error
	if err != nil {
		return fmt.Errorf("failed to remove teacher: %w", err)
	}

	cache.InvalidateCourseCache(ctx, c.cacheManager, courseID)

	return nil
}

func (c *CoursePostgreSQL) EnrollStudent(ctx context.Context, courseID uint, studentID string) error {
	link := models.CourseStudent{CourseID: courseID, StudentID: studentID}
	if err := c.db.WithContext(ctx).Create(&link).Error; err != nil {
		return fmt.Errorf("failed to enroll student: %w", err)
	}

	cache.InvalidateCourseCache(ctx, c.cacheManager, courseID)

	return nil
}

func (c *CoursePostgreSQL) RemoveStudent(ctx context.Context, courseID uint, studentID string) error {
	err := c.db.WithContext(ctx).
		Where("course_id = ? AND student_id = ?", courseID, studentID).
		Delete(&models.CourseStudent{}).Error
	if err != nil {
		return fmt.Errorf("failed to remove student: %w", err)
	}

	cache.InvalidateCourseCache(ctx, c.cacheManager, courseID)

	return nil
}

// IsTeacherAssigned backs the policy evaluator's course-link check. The result
// is cached briefly; assignment changes invalidate the assignment pattern.
func (c *CoursePostgreSQL) IsTeacherAssigned(ctx context.Context, courseID uint, teacherID string) (bool, error) {
	cacheKey := fmt.Sprintf("assignment:%d:teacher:%s", courseID, teacherID)
	var assigned bool

	err := c.cacheManager.Course.CacheOrExecute(ctx, cacheKey, &assigned, cache.ExistsCacheConfig.TTL, func() (interface{}, error) {
		var count int64
		err := c.db.WithContext(ctx).
			Model(&models.CourseTeacher{}).
			Where("course_id = ? AND teacher_id = ?", courseID, teacherID).
			Count(&count).Error
		if err != nil {
			return nil, fmt.Errorf("failed to check teacher assignment: %w", err)
		}
		return count > 0, nil
	})
	if err != nil {
		return false, err
	}

	return assigned, nil
}

func (c *CoursePostgreSQL) IsStudentEnrolled(ctx context.Context, courseID uint, studentID string) (bool, error) {
	cacheKey := fmt.Sprintf("assignment:%d:student:%s", courseID, studentID)
	var enrolled bool

	err := c.cacheManager.Course.CacheOrExecute(ctx, cacheKey, &enrolled, cache.ExistsCacheConfig.TTL, func() (interface{}, error) {
		var count int64
		err := c.db.WithContext(ctx).
			Model(&models.CourseStudent{}).
			Where("course_id = ? AND student_id = ?", courseID, studentID).
			Count(&count).Error
		if err != nil {
			return nil, fmt.Errorf("failed to check student enrollment: %w", err)
		}
		return count > 0, nil
	})
	if err != nil {
		return false, err
	}

	return enrolled, nil
}

// IsTeacherForUnit resolves unit access transitively through the unit's course.
func (c *CoursePostgreSQL) IsTeacherForUnit(ctx context.Context, unitID uint, teacherID string) (bool, error) {
	var count int64
	err := c.db.WithContext(ctx).
		Model(&models.CourseTeacher{}).
		Joins("JOIN competency_units ON competency_units.course_id = course_teachers.course_id").
		Where("competency_units.id = ? AND course_teachers.teacher_id = ?", unitID, teacherID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check teacher unit access: %w", err)
	}

	return count > 0, nil
}

func (c *CoursePostgreSQL) IsStudentForUnit(ctx context.Context, unitID uint, studentID string) (bool, error) {
	var count int64
	err := c.db.WithContext(ctx).
		Model(&models.CourseStudent{}).
		Joins("JOIN competency_units ON competency_units.course_id = course_students.course_id").
		Where("competency_units.id = ? AND course_students.student_id = ?", unitID, studentID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check student unit access: %w", err)
	}

	return count > 0, nil
}

func (c *CoursePostgreSQL) SharesCourse(ctx context.Context, teacherID, studentID string) (bool, error) {
	var count int64
	err := c.db.WithContext(ctx).
		Model(&models.CourseTeacher{}).
		Joins("JOIN course_students ON course_students.course_id = course_teachers.course_id").
		Where("course_teachers.teacher_id = ? AND course_students.student_id = ?", teacherID, studentID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check shared course: %w", err)
	}

	return count > 0, nil
}

func (c *CoursePostgreSQL) calculateComputedFields(course *models.Course) {
	course.UnitCount = len(course.Units)
	course.StudentCount = len(course.Students)
}
