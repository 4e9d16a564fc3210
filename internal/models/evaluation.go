package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type EvaluationStatus string

const (
	EvaluationDraft     EvaluationStatus = "draft"
	EvaluationSubmitted EvaluationStatus = "submitted"
	EvaluationConfirmed EvaluationStatus = "confirmed"
)

func (s EvaluationStatus) Valid() bool {
	switch s {
	case EvaluationDraft, EvaluationSubmitted, EvaluationConfirmed:
		return true
	}
	return false
}

// CanTransitionTo enforces the draft -> submitted -> confirmed lifecycle.
// Draft may also be re-saved as draft.
func (s EvaluationStatus) CanTransitionTo(next EvaluationStatus) bool {
	switch s {
	case EvaluationDraft:
		return next == EvaluationDraft || next == EvaluationSubmitted
	case EvaluationSubmitted:
		return next == EvaluationConfirmed || next == EvaluationDraft
	case EvaluationConfirmed:
		return false
	}
	return false
}

// Evaluation records a teacher's grading of one student on one competency
// unit. The (student_id, competency_unit_id) pair is unique; the database
// constraint is the source of truth and the check endpoint mirrors it
// defensively.
type Evaluation struct {
	ID               uint             `json:"id" gorm:"primaryKey"`
	StudentID        string           `json:"student_id" gorm:"not null;size:255;uniqueIndex:idx_eval_student_unit;index"`
	TeacherID        string           `json:"teacher_id" gorm:"not null;size:255;index"`
	CompetencyUnitID uint             `json:"competency_unit_id" gorm:"not null;uniqueIndex:idx_eval_student_unit;index"`
	Status           EvaluationStatus `json:"status" gorm:"not null;default:draft;index" validate:"omitempty,oneof=draft submitted confirmed"`

	// Scores maps competency element ID -> awarded score.
	Scores     datatypes.JSON `json:"scores" gorm:"type:jsonb"`
	TotalScore float64        `json:"total_score" gorm:"not null;default:0" validate:"min=0"`
	Comment    *string        `json:"comment" gorm:"type:text" validate:"omitempty,max=2000"`

	SubmissionID *uint `json:"submission_id" gorm:"uniqueIndex"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Student    Profile        `json:"student,omitempty" gorm:"foreignKey:StudentID"`
	Teacher    Profile        `json:"teacher,omitempty" gorm:"foreignKey:TeacherID"`
	Unit       CompetencyUnit `json:"unit,omitempty" gorm:"foreignKey:CompetencyUnitID"`
	Submission *Submission    `json:"submission,omitempty" gorm:"foreignKey:SubmissionID"`
}

type ScheduleStatus string

const (
	ScheduleOpen   ScheduleStatus = "open"
	ScheduleClosed ScheduleStatus = "closed"
)

// EvaluationSchedule is the window during which students may upload
// submissions for a competency unit.
type EvaluationSchedule struct {
	ID               uint           `json:"id" gorm:"primaryKey"`
	CompetencyUnitID uint           `json:"competency_unit_id" gorm:"not null;index"`
	Title            string         `json:"title" gorm:"not null;size:200" validate:"required,max=200"`
	Status           ScheduleStatus `json:"status" gorm:"not null;default:open;index" validate:"omitempty,oneof=open closed"`
	OpensAt          *time.Time     `json:"opens_at"`
	ClosesAt         *time.Time     `json:"closes_at"`

	CreatedBy string         `json:"created_by" gorm:"not null;size:255;index"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	Unit CompetencyUnit `json:"unit,omitempty" gorm:"foreignKey:CompetencyUnitID"`
}

// IsOpen reports whether a submission may currently be uploaded against the
// schedule. The status flag wins; the time window narrows it further.
func (s *EvaluationSchedule) IsOpen(now time.Time) bool {
	if s == nil || s.Status != ScheduleOpen {
		return false
	}
	if s.OpensAt != nil && now.Before(*s.OpensAt) {
		return false
	}
	if s.ClosesAt != nil && now.After(*s.ClosesAt) {
		return false
	}
	return true
}

func (Evaluation) TableName() string         { return "evaluations" }
func (EvaluationSchedule) TableName() string { return "evaluation_schedules" }
