package services

import (
	"context"
	"errors"
	"time"

	"github.com/ncsedu/grading-service/internal/models"
	"github.com/ncsedu/grading-service/internal/repositories"
)

// mockRepository is an in-memory Repository for service tests. Fixtures are
// seeded directly on the maps; IDs are assigned by the Create methods.
type mockRepository struct {
	profiles    map[string]*models.Profile
	courses     map[uint]*models.Course
	teachers    map[uint][]string // courseID -> teacher IDs
	students    map[uint][]string // courseID -> student IDs
	units       map[uint]*models.CompetencyUnit
	elements    map[uint]*models.CompetencyElement
	schedules   map[uint]*models.EvaluationSchedule
	evaluations map[uint]*models.Evaluation
	submissions map[uint]*models.Submission
	identities  map[string]*models.Identity

	nextID uint

	// txCalls counts WithTransaction invocations.
	txCalls int

	// failSubmissionCreate forces the submission insert to fail, for the
	// orphaned-object cleanup path.
	failSubmissionCreate bool
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		profiles:    make(map[string]*models.Profile),
		courses:     make(map[uint]*models.Course),
		teachers:    make(map[uint][]string),
		students:    make(map[uint][]string),
		units:       make(map[uint]*models.CompetencyUnit),
		elements:    make(map[uint]*models.CompetencyElement),
		schedules:   make(map[uint]*models.EvaluationSchedule),
		evaluations: make(map[uint]*models.Evaluation),
		submissions: make(map[uint]*models.Submission),
		identities:  make(map[string]*models.Identity),
		nextID:      1000,
	}
}

func (r *mockRepository) newID() uint {
	r.nextID++
	return r.nextID
}

func (r *mockRepository) Profile() repositories.ProfileRepository       { return &mockProfileRepo{r} }
func (r *mockRepository) Course() repositories.CourseRepository         { return &mockCourseRepo{r} }
func (r *mockRepository) Competency() repositories.CompetencyRepository { return &mockCompetencyRepo{r} }
func (r *mockRepository) Schedule() repositories.ScheduleRepository     { return &mockScheduleRepo{r} }
func (r *mockRepository) Evaluation() repositories.EvaluationRepository { return &mockEvaluationRepo{r} }
func (r *mockRepository) Submission() repositories.SubmissionRepository { return &mockSubmissionRepo{r} }
func (r *mockRepository) Identity() repositories.IdentityRepository     { return &mockIdentityRepo{r} }

func (r *mockRepository) WithTransaction(ctx context.Context, fn func(repo repositories.Repository) error) error {
	r.txCalls++
	return fn(r)
}
func (r *mockRepository) Ping(ctx context.Context) error { return nil }
func (r *mockRepository) Close() error                   { return nil }

// ===== PROFILES =====

type mockProfileRepo struct{ r *mockRepository }

func (m *mockProfileRepo) Create(ctx context.Context, profile *models.Profile) error {
	m.r.profiles[profile.ID] = profile
	return nil
}

func (m *mockProfileRepo) GetByID(ctx context.Context, id string) (*models.Profile, error) {
	profile, ok := m.r.profiles[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return profile, nil
}

func (m *mockProfileRepo) GetByEmail(ctx context.Context, email string) (*models.Profile, error) {
	for _, profile := range m.r.profiles {
		if profile.Email == email {
			return profile, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (m *mockProfileRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, err := m.GetByEmail(ctx, email)
	if errors.Is(err, repositories.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (m *mockProfileRepo) Update(ctx context.Context, profile *models.Profile) error {
	if _, ok := m.r.profiles[profile.ID]; !ok {
		return repositories.ErrNotFound
	}
	m.r.profiles[profile.ID] = profile
	return nil
}

func (m *mockProfileRepo) SetApproval(ctx context.Context, id string, approved bool) error {
	profile, ok := m.r.profiles[id]
	if !ok {
		return repositories.ErrNotFound
	}
	profile.Approved = approved
	return nil
}

func (m *mockProfileRepo) List(ctx context.Context, filters repositories.ProfileFilters) ([]*models.Profile, int64, error) {
	var out []*models.Profile
	for _, profile := range m.r.profiles {
		if filters.Role != nil && profile.Role != *filters.Role {
			continue
		}
		if filters.Approved != nil && profile.Approved != *filters.Approved {
			continue
		}
		out = append(out, profile)
	}
	return out, int64(len(out)), nil
}

// ===== COURSES =====

type mockCourseRepo struct{ r *mockRepository }

func (m *mockCourseRepo) Create(ctx context.Context, course *models.Course) error {
	course.ID = m.r.newID()
	m.r.courses[course.ID] = course
	return nil
}

func (m *mockCourseRepo) GetByID(ctx context.Context, id uint) (*models.Course, error) {
	course, ok := m.r.courses[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return course, nil
}

func (m *mockCourseRepo) GetByIDWithDetails(ctx context.Context, id uint) (*models.Course, error) {
	return m.GetByID(ctx, id)
}

func (m *mockCourseRepo) Update(ctx context.Context, course *models.Course) error {
	if _, ok := m.r.courses[course.ID]; !ok {
		return repositories.ErrNotFound
	}
	m.r.courses[course.ID] = course
	return nil
}

func (m *mockCourseRepo) Delete(ctx context.Context, id uint) error {
	if _, ok := m.r.courses[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(m.r.courses, id)
	return nil
}

func (m *mockCourseRepo) List(ctx context.Context, filters repositories.CourseFilters) ([]*models.Course, int64, error) {
	var out []*models.Course
	for _, course := range m.r.courses {
		out = append(out, course)
	}
	return out, int64(len(out)), nil
}

func (m *mockCourseRepo) ListForTeacher(ctx context.Context, teacherID string, filters repositories.CourseFilters) ([]*models.Course, int64, error) {
	var out []*models.Course
	for courseID, ids := range m.r.teachers {
		for _, id := range ids {
			if id == teacherID {
				out = append(out, m.r.courses[courseID])
			}
		}
	}
	return out, int64(len(out)), nil
}

func (m *mockCourseRepo) ListForStudent(ctx context.Context, studentID string, filters repositories.CourseFilters) ([]*models.Course, int64, error) {
	var out []*models.Course
	for courseID, ids := range m.r.students {
		for _, id := range ids {
			if id == studentID {
				out = append(out, m.r.courses[courseID])
			}
		}
	}
	return out, int64(len(out)), nil
}

func (m *mockCourseRepo) AssignTeacher(ctx context.Context, courseID uint, teacherID string) error {
	m.r.teachers[courseID] = append(m.r.teachers[courseID], teacherID)
	return nil
}

func (m *mockCourseRepo) RemoveTeacher(ctx context.Context, courseID uint, teacherID string) error {
	m.r.teachers[courseID] = removeID(m.r.teachers[courseID], teacherID)
	return nil
}

func (m *mockCourseRepo) EnrollStudent(ctx context.Context, courseID uint, studentID string) error {
	m.r.students[courseID] = append(m.r.students[courseID], studentID)
	return nil
}

func (m *mockCourseRepo) RemoveStudent(ctx context.Context, courseID uint, studentID string) error {
	m.r.students[courseID] = removeID(m.r.students[courseID], studentID)
	return nil
}

func (m *mockCourseRepo) IsTeacherAssigned(ctx context.Context, courseID uint, teacherID string) (bool, error) {
	return containsID(m.r.teachers[courseID], teacherID), nil
}

func (m *mockCourseRepo) IsStudentEnrolled(ctx context.Context, courseID uint, studentID string) (bool, error) {
	return containsID(m.r.students[courseID], studentID), nil
}

func (m *mockCourseRepo) IsTeacherForUnit(ctx context.Context, unitID uint, teacherID string) (bool, error) {
	unit, ok := m.r.units[unitID]
	if !ok {
		return false, nil
	}
	return containsID(m.r.teachers[unit.CourseID], teacherID), nil
}

func (m *mockCourseRepo) IsStudentForUnit(ctx context.Context, unitID uint, studentID string) (bool, error) {
	unit, ok := m.r.units[unitID]
	if !ok {
		return false, nil
	}
	return containsID(m.r.students[unit.CourseID], studentID), nil
}

func (m *mockCourseRepo) SharesCourse(ctx context.Context, teacherID, studentID string) (bool, error) {
	for courseID, teacherIDs := range m.r.teachers {
		if containsID(teacherIDs, teacherID) && containsID(m.r.students[courseID], studentID) {
			return true, nil
		}
	}
	return false, nil
}

// ===== COMPETENCY =====

type mockCompetencyRepo struct{ r *mockRepository }

func (m *mockCompetencyRepo) CreateUnit(ctx context.Context, unit *models.CompetencyUnit) error {
	unit.ID = m.r.newID()
	m.r.units[unit.ID] = unit
	return nil
}

func (m *mockCompetencyRepo) GetUnit(ctx context.Context, id uint) (*models.CompetencyUnit, error) {
	unit, ok := m.r.units[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return unit, nil
}

func (m *mockCompetencyRepo) GetUnitWithElements(ctx context.Context, id uint) (*models.CompetencyUnit, error) {
	unit, err := m.GetUnit(ctx, id)
	if err != nil {
		return nil, err
	}
	loaded := *unit
	loaded.Elements = nil
	for _, element := range m.r.elements {
		if element.CompetencyUnitID == id {
			loaded.Elements = append(loaded.Elements, *element)
		}
	}
	return &loaded, nil
}

func (m *mockCompetencyRepo) UpdateUnit(ctx context.Context, unit *models.CompetencyUnit) error {
	if _, ok := m.r.units[unit.ID]; !ok {
		return repositories.ErrNotFound
	}
	m.r.units[unit.ID] = unit
	return nil
}

func (m *mockCompetencyRepo) DeleteUnit(ctx context.Context, id uint) error {
	if _, ok := m.r.units[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(m.r.units, id)
	return nil
}

func (m *mockCompetencyRepo) ListUnitsByCourse(ctx context.Context, courseID uint) ([]*models.CompetencyUnit, error) {
	var out []*models.CompetencyUnit
	for _, unit := range m.r.units {
		if unit.CourseID == courseID {
			out = append(out, unit)
		}
	}
	return out, nil
}

func (m *mockCompetencyRepo) CreateElement(ctx context.Context, element *models.CompetencyElement) error {
	element.ID = m.r.newID()
	m.r.elements[element.ID] = element
	return nil
}

func (m *mockCompetencyRepo) GetElement(ctx context.Context, id uint) (*models.CompetencyElement, error) {
	element, ok := m.r.elements[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return element, nil
}

func (m *mockCompetencyRepo) UpdateElement(ctx context.Context, element *models.CompetencyElement) error {
	if _, ok := m.r.elements[element.ID]; !ok {
		return repositories.ErrNotFound
	}
	m.r.elements[element.ID] = element
	return nil
}

func (m *mockCompetencyRepo) DeleteElement(ctx context.Context, id uint) error {
	if _, ok := m.r.elements[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(m.r.elements, id)
	return nil
}

func (m *mockCompetencyRepo) ListElementsByUnit(ctx context.Context, unitID uint) ([]*models.CompetencyElement, error) {
	var out []*models.CompetencyElement
	for _, element := range m.r.elements {
		if element.CompetencyUnitID == unitID {
			out = append(out, element)
		}
	}
	return out, nil
}

// ===== SCHEDULES =====

type mockScheduleRepo struct{ r *mockRepository }

func (m *mockScheduleRepo) Create(ctx context.Context, schedule *models.EvaluationSchedule) error {
	schedule.ID = m.r.newID()
	m.r.schedules[schedule.ID] = schedule
	return nil
}

func (m *mockScheduleRepo) GetByID(ctx context.Context, id uint) (*models.EvaluationSchedule, error) {
	schedule, ok := m.r.schedules[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return schedule, nil
}

func (m *mockScheduleRepo) Update(ctx context.Context, schedule *models.EvaluationSchedule) error {
	if _, ok := m.r.schedules[schedule.ID]; !ok {
		return repositories.ErrNotFound
	}
	m.r.schedules[schedule.ID] = schedule
	return nil
}

func (m *mockScheduleRepo) Delete(ctx context.Context, id uint) error {
	if _, ok := m.r.schedules[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(m.r.schedules, id)
	return nil
}

func (m *mockScheduleRepo) ListByUnit(ctx context.Context, unitID uint) ([]*models.EvaluationSchedule, error) {
	var out []*models.EvaluationSchedule
	for _, schedule := range m.r.schedules {
		if schedule.CompetencyUnitID == unitID {
			out = append(out, schedule)
		}
	}
	return out, nil
}

// ===== EVALUATIONS =====

type mockEvaluationRepo struct{ r *mockRepository }

func (m *mockEvaluationRepo) Create(ctx context.Context, evaluation *models.Evaluation) error {
	evaluation.ID = m.r.newID()
	evaluation.CreatedAt = time.Now()
	m.r.evaluations[evaluation.ID] = evaluation
	return nil
}

func (m *mockEvaluationRepo) GetByID(ctx context.Context, id uint) (*models.Evaluation, error) {
	evaluation, ok := m.r.evaluations[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return evaluation, nil
}

func (m *mockEvaluationRepo) GetByIDWithDetails(ctx context.Context, id uint) (*models.Evaluation, error) {
	return m.GetByID(ctx, id)
}

func (m *mockEvaluationRepo) Update(ctx context.Context, evaluation *models.Evaluation) error {
	if _, ok := m.r.evaluations[evaluation.ID]; !ok {
		return repositories.ErrNotFound
	}
	m.r.evaluations[evaluation.ID] = evaluation
	return nil
}

func (m *mockEvaluationRepo) Delete(ctx context.Context, id uint) error {
	if _, ok := m.r.evaluations[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(m.r.evaluations, id)
	return nil
}

func (m *mockEvaluationRepo) List(ctx context.Context, filters repositories.EvaluationFilters) ([]*models.Evaluation, int64, error) {
	var out []*models.Evaluation
	for _, evaluation := range m.r.evaluations {
		if filters.StudentID != nil && evaluation.StudentID != *filters.StudentID {
			continue
		}
		if filters.TeacherID != nil && evaluation.TeacherID != *filters.TeacherID {
			continue
		}
		if filters.Status != nil && evaluation.Status != *filters.Status {
			continue
		}
		if filters.CompetencyUnitID != nil && evaluation.CompetencyUnitID != *filters.CompetencyUnitID {
			continue
		}
		out = append(out, evaluation)
	}
	return out, int64(len(out)), nil
}

func (m *mockEvaluationRepo) ExistsForStudentUnit(ctx context.Context, studentID string, unitID uint) (bool, error) {
	for _, evaluation := range m.r.evaluations {
		if evaluation.StudentID == studentID && evaluation.CompetencyUnitID == unitID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockEvaluationRepo) GetStats(ctx context.Context, filters repositories.EvaluationFilters) (*repositories.EvaluationStats, error) {
	matching, _, err := m.List(ctx, filters)
	if err != nil {
		return nil, err
	}

	var stats repositories.EvaluationStats
	var sum float64
	for _, evaluation := range matching {
		stats.Total++
		sum += evaluation.TotalScore
		switch evaluation.Status {
		case models.EvaluationDraft:
			stats.Draft++
		case models.EvaluationSubmitted:
			stats.Submitted++
		case models.EvaluationConfirmed:
			stats.Confirmed++
		}
	}
	if stats.Total > 0 {
		stats.AverageScore = sum / float64(stats.Total)
	}

	return &stats, nil
}

// ===== SUBMISSIONS =====

type mockSubmissionRepo struct{ r *mockRepository }

func (m *mockSubmissionRepo) Create(ctx context.Context, submission *models.Submission) error {
	if m.r.failSubmissionCreate {
		return errors.New("insert failed")
	}
	submission.ID = m.r.newID()
	m.r.submissions[submission.ID] = submission
	return nil
}

func (m *mockSubmissionRepo) GetByID(ctx context.Context, id uint) (*models.Submission, error) {
	submission, ok := m.r.submissions[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return submission, nil
}

func (m *mockSubmissionRepo) List(ctx context.Context, filters repositories.SubmissionFilters) ([]*models.Submission, int64, error) {
	var out []*models.Submission
	for _, submission := range m.r.submissions {
		if filters.StudentID != nil && submission.StudentID != *filters.StudentID {
			continue
		}
		if filters.ScheduleID != nil && submission.ScheduleID != *filters.ScheduleID {
			continue
		}
		out = append(out, submission)
	}
	return out, int64(len(out)), nil
}

// ===== IDENTITIES =====

type mockIdentityRepo struct{ r *mockRepository }

func (m *mockIdentityRepo) GetByID(ctx context.Context, id string) (*models.Identity, error) {
	identity, ok := m.r.identities[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return identity, nil
}

func (m *mockIdentityRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	for _, identity := range m.r.identities {
		if identity.Email == email {
			return true, nil
		}
	}
	return false, nil
}

// ===== FIXTURES =====

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func activeProfile(id string, role models.UserRole) *models.Profile {
	verified := time.Now().Add(-24 * time.Hour)
	return &models.Profile{
		ID:              id,
		Email:           id + "@example.com",
		FullName:        id,
		Role:            role,
		Approved:        true,
		EmailVerifiedAt: &verified,
	}
}

// seedCourseWorld builds the standard fixture: one course with an assigned
// teacher and an enrolled student, one unit with two 50-point elements, and
// an open schedule. A second teacher and student stay unlinked.
func seedCourseWorld(r *mockRepository) {
	r.profiles["admin-1"] = activeProfile("admin-1", models.RoleAdmin)
	r.profiles["teacher-1"] = activeProfile("teacher-1", models.RoleTeacher)
	r.profiles["teacher-2"] = activeProfile("teacher-2", models.RoleTeacher)
	r.profiles["student-1"] = activeProfile("student-1", models.RoleStudent)
	r.profiles["student-2"] = activeProfile("student-2", models.RoleStudent)

	pending := activeProfile("student-pending", models.RoleStudent)
	pending.Approved = false
	r.profiles["student-pending"] = pending

	r.courses[1] = &models.Course{ID: 1, Name: "Welding Fundamentals", CreatedBy: "admin-1"}
	r.teachers[1] = []string{"teacher-1"}
	r.students[1] = []string{"student-1"}

	r.units[10] = &models.CompetencyUnit{ID: 10, CourseID: 1, Code: "CU-01", Name: "Arc Welding"}
	r.elements[100] = &models.CompetencyElement{ID: 100, CompetencyUnitID: 10, Code: "CE-01", Name: "Setup", MaxScore: 50}
	r.elements[101] = &models.CompetencyElement{ID: 101, CompetencyUnitID: 10, Code: "CE-02", Name: "Execution", MaxScore: 50}

	r.schedules[20] = &models.EvaluationSchedule{
		ID:               20,
		CompetencyUnitID: 10,
		Title:            "First Assessment",
		Status:           models.ScheduleOpen,
		CreatedBy:        "teacher-1",
	}
	r.schedules[21] = &models.EvaluationSchedule{
		ID:               21,
		CompetencyUnitID: 10,
		Title:            "Closed Assessment",
		Status:           models.ScheduleClosed,
		CreatedBy:        "teacher-1",
	}
}
