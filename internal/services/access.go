package services

import (
	"context"
	"fmt"

	"github.com/ncsedu/grading-service/internal/authz"
	"github.com/ncsedu/grading-service/internal/metrics"
	"github.com/ncsedu/grading-service/internal/models"
	"github.com/ncsedu/grading-service/internal/repositories"
)

// accessChecker resolves the data-layer facts the policy evaluator needs and
// runs decisions through it. Shared by every service.
type accessChecker struct {
	repo repositories.Repository
}

func newAccessChecker(repo repositories.Repository) *accessChecker {
	return &accessChecker{repo: repo}
}

// actor loads the requesting profile. A missing profile means the session is
// valid but signup never completed; that is ErrUnauthorized, not a 500.
func (a *accessChecker) actor(ctx context.Context, userID string) (*models.Profile, error) {
	if userID == "" {
		return nil, ErrUnauthorized
	}

	profile, err := a.repo.Profile().GetByID(ctx, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("failed to load actor profile: %w", err)
	}

	return profile, nil
}

// decide wraps authz.Decide with metrics. All service-layer decisions flow
// through here.
func (a *accessChecker) decide(p *models.Profile, res authz.Resource, act authz.Action, rel authz.Relationship) bool {
	allowed := authz.Decide(p, res, act, rel)

	outcome := "deny"
	if allowed {
		outcome = "allow"
	}
	metrics.AccessDecisionsTotal.WithLabelValues(string(res), string(act), outcome).Inc()

	return allowed
}

// courseRelationship resolves the actor's links to a course. Admins skip the
// lookups entirely since Decide short-circuits for them.
func (a *accessChecker) courseRelationship(ctx context.Context, p *models.Profile, courseID uint) (authz.Relationship, error) {
	var rel authz.Relationship
	if p.IsAdmin() {
		return rel, nil
	}

	switch p.Role {
	case models.RoleTeacher:
		assigned, err := a.repo.Course().IsTeacherAssigned(ctx, courseID, p.ID)
		if err != nil {
			return rel, fmt.Errorf("failed to resolve teacher assignment: %w", err)
		}
		rel.CourseTeacher = assigned
	case models.RoleStudent:
		enrolled, err := a.repo.Course().IsStudentEnrolled(ctx, courseID, p.ID)
		if err != nil {
			return rel, fmt.Errorf("failed to resolve enrollment: %w", err)
		}
		rel.Enrolled = enrolled
	}

	return rel, nil
}

// unitRelationship resolves course links transitively through a unit.
func (a *accessChecker) unitRelationship(ctx context.Context, p *models.Profile, unitID uint) (authz.Relationship, error) {
	var rel authz.Relationship
	if p.IsAdmin() {
		return rel, nil
	}

	switch p.Role {
	case models.RoleTeacher:
		assigned, err := a.repo.Course().IsTeacherForUnit(ctx, unitID, p.ID)
		if err != nil {
			return rel, fmt.Errorf("failed to resolve teacher unit access: %w", err)
		}
		rel.CourseTeacher = assigned
	case models.RoleStudent:
		enrolled, err := a.repo.Course().IsStudentForUnit(ctx, unitID, p.ID)
		if err != nil {
			return rel, fmt.Errorf("failed to resolve student unit access: %w", err)
		}
		rel.Enrolled = enrolled
	}

	return rel, nil
}

// evaluationRelationship combines the row's principals with the transitive
// course link of its unit.
func (a *accessChecker) evaluationRelationship(ctx context.Context, p *models.Profile, evaluation *models.Evaluation) (authz.Relationship, error) {
	rel, err := a.unitRelationship(ctx, p, evaluation.CompetencyUnitID)
	if err != nil {
		return rel, err
	}

	rel.TeacherID = evaluation.TeacherID
	rel.StudentID = evaluation.StudentID

	return rel, nil
}

// submissionRelationship resolves access to a stored submission through its
// schedule's unit.
func (a *accessChecker) submissionRelationship(ctx context.Context, p *models.Profile, submission *models.Submission) (authz.Relationship, error) {
	schedule, err := a.repo.Schedule().GetByID(ctx, submission.ScheduleID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return authz.Relationship{StudentID: submission.StudentID}, nil
		}
		return authz.Relationship{}, fmt.Errorf("failed to load submission schedule: %w", err)
	}

	rel, err := a.unitRelationship(ctx, p, schedule.CompetencyUnitID)
	if err != nil {
		return rel, err
	}

	rel.StudentID = submission.StudentID

	return rel, nil
}
