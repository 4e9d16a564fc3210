package authz

import (
	"github.com/ncsedu/grading-service/internal/models"
)

// Resource identifies the kind of record an action targets.
type Resource string

const (
	ResourceProfile           Resource = "profile"
	ResourceCourse            Resource = "course"
	ResourceCompetencyUnit    Resource = "competency_unit"
	ResourceCompetencyElement Resource = "competency_element"
	ResourceEvaluation        Resource = "evaluation"
	ResourceSchedule          Resource = "evaluation_schedule"
	ResourceSubmission        Resource = "submission"
)

// Action is the operation being attempted on a resource.
type Action string

const (
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// IsWrite reports whether the action mutates state.
func (a Action) IsWrite() bool {
	return a == ActionCreate || a == ActionUpdate || a == ActionDelete
}

// Relationship carries the ownership facts the caller has already resolved
// from the data layer. Decide itself performs no I/O.
type Relationship struct {
	// CourseTeacher: the requester holds a CourseTeacher link to the course
	// the resource belongs to (resolved transitively for evaluations via
	// their competency unit).
	CourseTeacher bool

	// Enrolled: the requester is enrolled as a student in that course.
	Enrolled bool

	// TeacherID / StudentID are the principals bound to the resource itself,
	// empty when the resource has none.
	TeacherID string
	StudentID string

	// ScheduleOpen: the submission's target schedule currently accepts
	// uploads.
	ScheduleOpen bool
}

// Decide is the access policy evaluator. Precedence:
//
//  1. admin allows everything
//  2. the global gate (email verified + approved) denies everything else
//  3. teacher access keyed off course assignment, with an owner fast path
//     for evaluation reads
//  4. student access limited to owned rows; submission create additionally
//     requires an open schedule
//
// Absence of a matching allow rule is denial, never an error.
func Decide(p *models.Profile, res Resource, act Action, rel Relationship) bool {
	if p == nil {
		return false
	}
	if p.Role == models.RoleAdmin {
		return true
	}
	// Approval gate. The pending status pages are routing concerns handled
	// by the guard layer, not resources evaluated here.
	if p.EmailVerifiedAt == nil || !p.Approved {
		return false
	}

	switch p.Role {
	case models.RoleTeacher:
		return decideTeacher(p, res, act, rel)
	case models.RoleStudent:
		return decideStudent(p, res, act, rel)
	}
	return false
}

func decideTeacher(p *models.Profile, res Resource, act Action, rel Relationship) bool {
	switch res {
	case ResourceCourse, ResourceCompetencyUnit, ResourceCompetencyElement, ResourceSchedule:
		// Read and write only within assigned courses. Course creation and
		// deletion stay admin-only.
		if res == ResourceCourse && (act == ActionCreate || act == ActionDelete) {
			return false
		}
		return rel.CourseTeacher
	case ResourceEvaluation:
		if act.IsWrite() {
			// Mutation requires both the course assignment and ownership of
			// the evaluation row; creating one binds it to self.
			if act == ActionCreate {
				return rel.CourseTeacher
			}
			return rel.CourseTeacher && rel.TeacherID == p.ID
		}
		// Owner fast path gives the same result as the course-link chain.
		return rel.CourseTeacher || rel.TeacherID == p.ID
	case ResourceSubmission:
		return act == ActionRead && rel.CourseTeacher
	case ResourceProfile:
		if act == ActionRead {
			return rel.StudentID == p.ID || rel.TeacherID == p.ID || rel.CourseTeacher
		}
		return act == ActionUpdate && rel.TeacherID == p.ID
	}
	return false
}

func decideStudent(p *models.Profile, res Resource, act Action, rel Relationship) bool {
	switch res {
	case ResourceEvaluation:
		return act == ActionRead && rel.StudentID == p.ID
	case ResourceSubmission:
		switch act {
		case ActionRead:
			return rel.StudentID == p.ID
		case ActionCreate:
			// Approval is already guaranteed by the global gate; the schedule
			// must still be open.
			return rel.StudentID == p.ID && rel.ScheduleOpen
		}
		return false
	case ResourceCourse, ResourceCompetencyUnit, ResourceCompetencyElement, ResourceSchedule:
		return act == ActionRead && rel.Enrolled
	case ResourceProfile:
		if rel.StudentID != p.ID {
			return false
		}
		return act == ActionRead || act == ActionUpdate
	}
	return false
}
