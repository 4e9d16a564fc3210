package repositories

import (
	"context"
)

// Repository aggregates every data access interface behind one handle.
// Transactional work goes through WithTransaction, which hands the closure
// a Repository whose gorm-backed members share one transaction.
type Repository interface {
	Profile() ProfileRepository
	Course() CourseRepository
	Competency() CompetencyRepository
	Schedule() ScheduleRepository
	Evaluation() EvaluationRepository
	Submission() SubmissionRepository
	Identity() IdentityRepository

	WithTransaction(ctx context.Context, fn func(repo Repository) error) error
	Ping(ctx context.Context) error
	Close() error
}

// RepositoryManager owns the lifecycle of the Repository and its connections.
type RepositoryManager interface {
	Initialize() error
	GetRepository() Repository
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
