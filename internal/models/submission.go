package models

import (
	"time"

	"gorm.io/gorm"
)

// Submission is a student-uploaded image stored in object storage. Only the
// object key is persisted; URLs are signed on demand.
type Submission struct {
	ID          uint   `json:"id" gorm:"primaryKey"`
	StudentID   string `json:"student_id" gorm:"not null;size:255;index"`
	ScheduleID  uint   `json:"schedule_id" gorm:"not null;index"`
	ObjectKey   string `json:"-" gorm:"not null;size:500"`
	FileName    string `json:"file_name" gorm:"not null;size:255"`
	ContentType string `json:"content_type" gorm:"not null;size:100"`
	SizeBytes   int64  `json:"size_bytes" gorm:"not null"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Student  Profile            `json:"student,omitempty" gorm:"foreignKey:StudentID"`
	Schedule EvaluationSchedule `json:"schedule,omitempty" gorm:"foreignKey:ScheduleID"`
}

func (Submission) TableName() string { return "submissions" }
