package models

import (
	"time"

	"gorm.io/gorm"
)

// CompetencyUnit is a gradable unit within a course (NCS 능력단위).
type CompetencyUnit struct {
	ID          uint    `json:"id" gorm:"primaryKey"`
	CourseID    uint    `json:"course_id" gorm:"not null;index"`
	Code        string  `json:"code" gorm:"not null;size:50" validate:"required,max=50"`
	Name        string  `json:"name" gorm:"not null;size:200" validate:"required,min=1,max=200"`
	Description *string `json:"description" gorm:"type:text" validate:"omitempty,max=2000"`
	SortOrder   int     `json:"sort_order" gorm:"default:0"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Course   Course              `json:"course,omitempty" gorm:"foreignKey:CourseID"`
	Elements []CompetencyElement `json:"elements,omitempty" gorm:"foreignKey:CompetencyUnitID"`

	// Computed fields (not stored)
	ElementCount int `json:"element_count" gorm:"-"`
}

// CompetencyElement is a single scored criterion of a unit.
type CompetencyElement struct {
	ID               uint    `json:"id" gorm:"primaryKey"`
	CompetencyUnitID uint    `json:"competency_unit_id" gorm:"not null;index"`
	Code             string  `json:"code" gorm:"not null;size:50" validate:"required,max=50"`
	Name             string  `json:"name" gorm:"not null;size:200" validate:"required,min=1,max=200"`
	MaxScore         int     `json:"max_score" gorm:"not null;default:100" validate:"min=1,max=100"`
	Criteria         *string `json:"criteria" gorm:"type:text" validate:"omitempty,max=2000"`
	SortOrder        int     `json:"sort_order" gorm:"default:0"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

func (CompetencyUnit) TableName() string    { return "competency_units" }
func (CompetencyElement) TableName() string { return "competency_elements" }
