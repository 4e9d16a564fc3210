package models

import (
	"time"

	"gorm.io/gorm"
)

// Course is an NCS training program. Courses are owned by admins; teachers
// and students are attached through the link tables below.
type Course struct {
	ID          uint    `json:"id" gorm:"primaryKey"`
	Name        string  `json:"name" gorm:"not null;size:200;index" validate:"required,min=1,max=200"`
	Description *string `json:"description" gorm:"type:text" validate:"omitempty,max=2000"`

	CreatedBy string         `json:"created_by" gorm:"not null;index;size:255"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Units    []CompetencyUnit `json:"units,omitempty" gorm:"foreignKey:CourseID"`
	Teachers []CourseTeacher  `json:"teachers,omitempty" gorm:"foreignKey:CourseID"`
	Students []CourseStudent  `json:"students,omitempty" gorm:"foreignKey:CourseID"`

	// Computed fields (not stored)
	UnitCount    int `json:"unit_count" gorm:"-"`
	StudentCount int `json:"student_count" gorm:"-"`
}

// CourseTeacher links an assigned teacher to a course. The pair is unique;
// the policy evaluator keys teacher write access off this row.
type CourseTeacher struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CourseID  uint      `json:"course_id" gorm:"not null;uniqueIndex:idx_course_teacher"`
	TeacherID string    `json:"teacher_id" gorm:"not null;size:255;uniqueIndex:idx_course_teacher;index"`
	CreatedAt time.Time `json:"created_at"`

	Teacher Profile `json:"teacher,omitempty" gorm:"foreignKey:TeacherID"`
}

// CourseStudent links an enrolled student to a course.
type CourseStudent struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CourseID  uint      `json:"course_id" gorm:"not null;uniqueIndex:idx_course_student"`
	StudentID string    `json:"student_id" gorm:"not null;size:255;uniqueIndex:idx_course_student;index"`
	CreatedAt time.Time `json:"created_at"`

	Student Profile `json:"student,omitempty" gorm:"foreignKey:StudentID"`
}

func (Course) TableName() string        { return "courses" }
func (CourseTeacher) TableName() string { return "course_teachers" }
func (CourseStudent) TableName() string { return "course_students" }
