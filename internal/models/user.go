package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type UserRole string

const (
	RoleStudent UserRole = "student"
	RoleTeacher UserRole = "teacher"
	RoleAdmin   UserRole = "admin"
)

// Valid reports whether the role is one of the closed set. Role strings
// coming from the identity provider must pass through here before being
// persisted.
func (r UserRole) Valid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return true
	}
	return false
}

type Theme string

const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

func (t Theme) Valid() bool {
	switch t {
	case ThemeLight, ThemeDark, ThemeSystem:
		return true
	}
	return false
}

// Identity is the authenticated principal issued by the identity provider.
// It is never persisted by this service.
type Identity struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at"`
}

// EmailConfirmed reports whether the identity has completed email verification.
func (i *Identity) EmailConfirmed() bool {
	return i != nil && i.EmailConfirmedAt != nil
}

// Profile is the application-level user record. Its ID equals the identity ID
// from the auth provider. Role and Approved are only ever mutated by admins.
type Profile struct {
	ID       string   `json:"id" gorm:"primaryKey;size:255"`
	Email    string   `json:"email" gorm:"uniqueIndex;not null;size:255" validate:"required,email"`
	FullName string   `json:"full_name" gorm:"not null;size:100" validate:"required,min=1,max=100"`
	Phone    *string  `json:"phone" gorm:"size:30" validate:"omitempty,max=30"`
	Role     UserRole `json:"role" gorm:"not null;size:20;index" validate:"required,oneof=student teacher admin"`

	// Approval gate: admins flip this after reviewing the signup.
	Approved bool `json:"approved" gorm:"not null;default:false"`

	// Mirrors email_confirmed_at from the identity provider at last sync.
	EmailVerifiedAt *time.Time `json:"email_verified_at"`

	Preferences datatypes.JSON `json:"preferences" gorm:"type:jsonb"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

func (Profile) TableName() string {
	return "profiles"
}

// IsAdmin is the admin fast path used throughout the policy evaluator.
func (p *Profile) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}

// Preferences persisted on the profile. Theme is the only field today.
type UserPreferences struct {
	Theme Theme `json:"theme" validate:"required,oneof=light dark system"`
}
