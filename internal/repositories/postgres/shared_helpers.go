package postgres

import (
	"gorm.io/gorm"

	"github.com/ncsedu/grading-service/internal/repositories"
)

// SharedHelpers contains query building shared across repositories.
type SharedHelpers struct {
	db *gorm.DB
}

func NewSharedHelpers(db *gorm.DB) *SharedHelpers {
	return &SharedHelpers{db: db}
}

// ApplyProfileFilters applies common filters to profile queries.
func (h *SharedHelpers) ApplyProfileFilters(query *gorm.DB, filters repositories.ProfileFilters) *gorm.DB {
	if filters.Role != nil {
		query = query.Where("role = ?", *filters.Role)
	}
	if filters.Approved != nil {
		query = query.Where("approved = ?", *filters.Approved)
	}
	if filters.Query != "" {
		like := "%" + filters.Query + "%"
		query = query.Where("full_name ILIKE ? OR email ILIKE ?", like, like)
	}
	return query
}

// ApplyCourseFilters applies common filters to course queries.
func (h *SharedHelpers) ApplyCourseFilters(query *gorm.DB, filters repositories.CourseFilters) *gorm.DB {
	if filters.CreatedBy != nil {
		query = query.Where("created_by = ?", *filters.CreatedBy)
	}
	if filters.Query != "" {
		like := "%" + filters.Query + "%"
		query = query.Where("name ILIKE ?", like)
	}
	return query
}

// ApplyEvaluationFilters applies common filters to evaluation queries.
func (h *SharedHelpers) ApplyEvaluationFilters(query *gorm.DB, filters repositories.EvaluationFilters) *gorm.DB {
	if filters.Status != nil {
		query = query.Where("evaluations.status = ?", *filters.Status)
	}
	if filters.StudentID != nil {
		query = query.Where("evaluations.student_id = ?", *filters.StudentID)
	}
	if filters.TeacherID != nil {
		query = query.Where("evaluations.teacher_id = ?", *filters.TeacherID)
	}
	if filters.CompetencyUnitID != nil {
		query = query.Where("evaluations.competency_unit_id = ?", *filters.CompetencyUnitID)
	}
	if filters.CourseID != nil {
		query = query.
			Joins("JOIN competency_units ON competency_units.id = evaluations.competency_unit_id").
			Where("competency_units.course_id = ?", *filters.CourseID)
	}
	if filters.DateFrom != nil {
		query = query.Where("evaluations.created_at >= ?", *filters.DateFrom)
	}
	if filters.DateTo != nil {
		query = query.Where("evaluations.created_at <= ?", *filters.DateTo)
	}
	return query
}

// ApplyPaginationAndSort applies pagination and sorting with SQL injection protection.
func (h *SharedHelpers) ApplyPaginationAndSort(query *gorm.DB, sortBy, sortOrder string, limit, offset int) *gorm.DB {
	// Whitelist allowed sort columns
	allowedSortColumns := map[string]bool{
		"created_at":  true,
		"updated_at":  true,
		"id":          true,
		"name":        true,
		"code":        true,
		"email":       true,
		"full_name":   true,
		"status":      true,
		"total_score": true,
	}

	if sortBy == "" || !allowedSortColumns[sortBy] {
		sortBy = "created_at"
	}

	if sortOrder != "asc" && sortOrder != "ASC" {
		sortOrder = "DESC"
	} else {
		sortOrder = "ASC"
	}

	query = query.Order(sortBy + " " + sortOrder)

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	return query
}
