package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ncsedu/grading-service/internal/authz"
	"github.com/ncsedu/grading-service/internal/events"
	"github.com/ncsedu/grading-service/internal/models"
	"github.com/ncsedu/grading-service/internal/repositories"
	"github.com/ncsedu/grading-service/internal/validator"
)

type profileService struct {
	repo      repositories.Repository
	access    *accessChecker
	publisher events.EventPublisher
	logger    *slog.Logger
	validator *validator.BusinessValidator
}

func NewProfileService(repo repositories.Repository, publisher events.EventPublisher, logger *slog.Logger, v *validator.BusinessValidator) ProfileService {
	return &profileService{
		repo:      repo,
		access:    newAccessChecker(repo),
		publisher: publisher,
		logger:    logger,
		validator: v,
	}
}

// ===== SIGNUP SURFACE =====

// CheckEmail reports whether an account exists for the address, in either the
// profiles table or the identity provider.
func (s *profileService) CheckEmail(ctx context.Context, email string) (*EmailCheckResponse, error) {
	exists, err := s.repo.Profile().ExistsByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check profile email: %w", err)
	}
	if exists {
		return &EmailCheckResponse{Exists: true}, nil
	}

	// Account may exist in the provider without a completed profile.
	providerExists, err := s.repo.Identity().ExistsByEmail(ctx, email)
	if err != nil {
		// Degrade to the local answer; signup re-checks on submit anyway.
		s.logger.Warn("identity provider email check failed", "error", err)
		return &EmailCheckResponse{Exists: false}, nil
	}

	return &EmailCheckResponse{Exists: providerExists}, nil
}

// Create finalizes signup for an authenticated identity. Idempotent: if the
// profile already exists it is returned unchanged. Self-assigning the admin
// role is rejected outright.
func (s *profileService) Create(ctx context.Context, identity *models.Identity, req *CreateProfileRequest) (*ProfileResponse, error) {
	if identity == nil || identity.ID == "" {
		return nil, ErrUnauthorized
	}

	if errs := s.validator.Validate(req); len(errs) > 0 {
		return nil, errs
	}
	if req.Role == models.RoleAdmin {
		return nil, ErrAdminRoleRejected
	}

	// Idempotency: repeated submits return the existing row.
	existing, err := s.repo.Profile().GetByID(ctx, identity.ID)
	if err == nil {
		return &ProfileResponse{Profile: existing, CanEdit: true}, nil
	}
	if !repositories.IsNotFoundError(err) {
		return nil, fmt.Errorf("failed to check existing profile: %w", err)
	}

	// A different account already holding this address means a duplicated
	// provider record; refuse rather than shadow the existing profile.
	if byEmail, err := s.repo.Profile().GetByEmail(ctx, identity.Email); err == nil && byEmail.ID != identity.ID {
		return nil, ErrProfileExists
	} else if err != nil && !repositories.IsNotFoundError(err) {
		return nil, fmt.Errorf("failed to check profile email: %w", err)
	}

	profile := &models.Profile{
		ID:              identity.ID,
		Email:           identity.Email,
		FullName:        req.FullName,
		Phone:           req.Phone,
		Role:            req.Role,
		Approved:        false,
		EmailVerifiedAt: identity.EmailConfirmedAt,
	}

	if err := s.repo.Profile().Create(ctx, profile); err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}

	s.logger.Info("profile created", "profile_id", profile.ID, "role", profile.Role)

	if err := s.publisher.Publish(ctx, events.NewEvent(events.TypeProfileCreated, profile)); err != nil {
		s.logger.Error("failed to publish profile.created", "error", err, "profile_id", profile.ID)
	}

	return &ProfileResponse{Profile: profile, CanEdit: true, Created: true}, nil
}

// ===== SESSION SURFACE =====

func (s *profileService) GetMe(ctx context.Context, userID string) (*ProfileResponse, error) {
	profile, err := s.access.actor(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.syncEmailVerification(ctx, profile)

	return &ProfileResponse{Profile: profile, CanEdit: true}, nil
}

// syncEmailVerification pulls the provider's verification state into the
// profile. A profile created before the address was confirmed would otherwise
// stay gated after the user verifies. Best effort: provider failures leave
// the profile untouched.
func (s *profileService) syncEmailVerification(ctx context.Context, profile *models.Profile) {
	if profile.EmailVerifiedAt != nil {
		return
	}

	identity, err := s.repo.Identity().GetByID(ctx, profile.ID)
	if err != nil || identity == nil || identity.EmailConfirmedAt == nil {
		return
	}

	profile.EmailVerifiedAt = identity.EmailConfirmedAt
	if err := s.repo.Profile().Update(ctx, profile); err != nil {
		s.logger.Warn("failed to persist email verification", "error", err, "profile_id", profile.ID)
	}
}

// GetForDisplay is the fail-open profile read used by UI chrome. Any failure
// returns nil; pages render without the profile rather than erroring.
func (s *profileService) GetForDisplay(ctx context.Context, userID string) *models.Profile {
	if userID == "" {
		return nil
	}

	profile, err := s.repo.Profile().GetByID(ctx, userID)
	if err != nil {
		if !repositories.IsNotFoundError(err) {
			s.logger.Warn("display profile load failed", "error", err, "user_id", userID)
		}
		return nil
	}

	return profile
}

// ===== MANAGEMENT =====

func (s *profileService) GetByID(ctx context.Context, id string, actorID string) (*ProfileResponse, error) {
	actor, err := s.access.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	target, err := s.repo.Profile().GetByID(ctx, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	rel, err := s.profileRelationship(ctx, actor, target)
	if err != nil {
		return nil, err
	}
	if !s.access.decide(actor, authz.ResourceProfile, authz.ActionRead, rel) {
		return nil, NewPermissionError(actorID, "profile", "read", "not self, admin, or course roster")
	}

	canEdit := s.access.decide(actor, authz.ResourceProfile, authz.ActionUpdate, rel)

	return &ProfileResponse{Profile: target, CanEdit: canEdit}, nil
}

func (s *profileService) Update(ctx context.Context, id string, req *UpdateProfileRequest, actorID string) (*ProfileResponse, error) {
	actor, err := s.access.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	if errs := s.validator.Validate(req); len(errs) > 0 {
		return nil, errs
	}

	target, err := s.repo.Profile().GetByID(ctx, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	rel, err := s.profileRelationship(ctx, actor, target)
	if err != nil {
		return nil, err
	}
	if !s.access.decide(actor, authz.ResourceProfile, authz.ActionUpdate, rel) {
		return nil, NewPermissionError(actorID, "profile", "update", "not self or admin")
	}

	if req.FullName != nil {
		target.FullName = *req.FullName
	}
	if req.Phone != nil {
		target.Phone = req.Phone
	}

	if err := s.repo.Profile().Update(ctx, target); err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	return &ProfileResponse{Profile: target, CanEdit: true}, nil
}

// List is admin-only; Decide denies non-admins because no row relationship
// is bound.
func (s *profileService) List(ctx context.Context, filters repositories.ProfileFilters, actorID string) (*ProfileListResponse, error) {
	actor, err := s.access.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	if !s.access.decide(actor, authz.ResourceProfile, authz.ActionRead, authz.Relationship{}) {
		return nil, NewPermissionError(actorID, "profile", "list", "admin only")
	}

	if filters.Limit <= 0 || filters.Limit > 100 {
		filters.Limit = 20
	}

	profiles, total, err := s.repo.Profile().List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}

	responses := make([]*ProfileResponse, len(profiles))
	for i, profile := range profiles {
		responses[i] = &ProfileResponse{Profile: profile, CanEdit: true}
	}

	return &ProfileListResponse{
		Profiles: responses,
		Total:    total,
		Page:     pageFromOffset(filters.Offset, filters.Limit),
		Size:     filters.Limit,
	}, nil
}

func (s *profileService) SetApproval(ctx context.Context, id string, approved bool, actorID string) error {
	actor, err := s.access.actor(ctx, actorID)
	if err != nil {
		return err
	}
	if !actor.IsAdmin() {
		return NewPermissionError(actorID, "profile", "approve", "admin only")
	}

	if err := s.repo.Profile().SetApproval(ctx, id, approved); err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrProfileNotFound
		}
		return fmt.Errorf("failed to set approval: %w", err)
	}

	s.logger.Info("profile approval changed", "profile_id", id, "approved", approved, "actor_id", actorID)

	if approved {
		payload := map[string]interface{}{"profile_id": id, "approved_by": actorID}
		if err := s.publisher.Publish(ctx, events.NewEvent(events.TypeProfileApproved, payload)); err != nil {
			s.logger.Error("failed to publish profile.approved", "error", err, "profile_id", id)
		}
	}

	return nil
}

// ===== PREFERENCES =====

func (s *profileService) GetPreferences(ctx context.Context, userID string) (*models.UserPreferences, error) {
	profile, err := s.access.actor(ctx, userID)
	if err != nil {
		return nil, err
	}

	prefs := &models.UserPreferences{Theme: models.ThemeSystem}
	if len(profile.Preferences) > 0 {
		if err := json.Unmarshal(profile.Preferences, prefs); err != nil {
			// Corrupt stored preferences fall back to defaults.
			s.logger.Warn("failed to decode stored preferences", "error", err, "user_id", userID)
			prefs = &models.UserPreferences{Theme: models.ThemeSystem}
		}
	}
	if !prefs.Theme.Valid() {
		prefs.Theme = models.ThemeSystem
	}

	return prefs, nil
}

func (s *profileService) UpdatePreferences(ctx context.Context, userID string, req *UpdatePreferencesRequest) (*models.UserPreferences, error) {
	profile, err := s.access.actor(ctx, userID)
	if err != nil {
		return nil, err
	}

	if errs := s.validator.Validate(req); len(errs) > 0 {
		return nil, errs
	}

	prefs := &models.UserPreferences{Theme: req.Theme}
	data, err := json.Marshal(prefs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode preferences: %w", err)
	}

	profile.Preferences = data
	if err := s.repo.Profile().Update(ctx, profile); err != nil {
		return nil, fmt.Errorf("failed to save preferences: %w", err)
	}

	return prefs, nil
}

// profileRelationship binds the target profile to the relationship the
// policy evaluator expects. A teacher gets the roster link when they share a
// course with the target student.
func (s *profileService) profileRelationship(ctx context.Context, actor, target *models.Profile) (authz.Relationship, error) {
	var rel authz.Relationship

	switch target.Role {
	case models.RoleStudent:
		rel.StudentID = target.ID
	case models.RoleTeacher:
		rel.TeacherID = target.ID
	default:
		// Admin profiles carry no row principal; only admins pass.
	}

	if actor.Role == models.RoleTeacher && target.Role == models.RoleStudent && actor.ID != target.ID {
		shared, err := s.repo.Course().SharesCourse(ctx, actor.ID, target.ID)
		if err != nil {
			return rel, fmt.Errorf("failed to resolve roster link: %w", err)
		}
		rel.CourseTeacher = shared
	}

	return rel, nil
}

func pageFromOffset(offset, limit int) int {
	if limit <= 0 {
		return 1
	}
	return offset/limit + 1
}
