package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ncsedu/grading-service/internal/config"
	"github.com/ncsedu/grading-service/internal/events"
	"github.com/ncsedu/grading-service/internal/repositories"
	"github.com/ncsedu/grading-service/internal/storage"
	"github.com/ncsedu/grading-service/internal/validator"
)

// serviceManager wires every service over one repository manager. Services
// are built eagerly in Initialize; getters are cheap after that.
type serviceManager struct {
	repoManager repositories.RepositoryManager
	storage     storage.ObjectStorage
	publisher   events.EventPublisher
	logger      *slog.Logger
	cfg         *config.Config

	profile    ProfileService
	course     CourseService
	competency CompetencyService
	schedule   ScheduleService
	evaluation EvaluationService
	submission SubmissionService
}

func NewServiceManager(
	repoManager repositories.RepositoryManager,
	objectStorage storage.ObjectStorage,
	publisher events.EventPublisher,
	logger *slog.Logger,
	cfg *config.Config,
) ServiceManager {
	return &serviceManager{
		repoManager: repoManager,
		storage:     objectStorage,
		publisher:   publisher,
		logger:      logger,
		cfg:         cfg,
	}
}

func (m *serviceManager) Initialize(ctx context.Context) error {
	if err := m.repoManager.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize repositories: %w", err)
	}

	repo := m.repoManager.GetRepository()
	v := validator.New()

	m.profile = NewProfileService(repo, m.publisher, m.logger, v)
	m.course = NewCourseService(repo, m.logger, v)
	m.competency = NewCompetencyService(repo, m.logger, v)
	m.schedule = NewScheduleService(repo, m.logger, v)
	m.evaluation = NewEvaluationService(repo, m.publisher, m.logger, v)
	m.submission = NewSubmissionService(repo, m.storage, m.publisher, m.logger, m.cfg.MaxUploadBytes, m.cfg.OSS.SignedURLTTL)

	m.logger.Info("services initialized")

	return nil
}

func (m *serviceManager) Profile() ProfileService       { return m.profile }
func (m *serviceManager) Course() CourseService         { return m.course }
func (m *serviceManager) Competency() CompetencyService { return m.competency }
func (m *serviceManager) Schedule() ScheduleService     { return m.schedule }
func (m *serviceManager) Evaluation() EvaluationService { return m.evaluation }
func (m *serviceManager) Submission() SubmissionService { return m.submission }

func (m *serviceManager) HealthCheck(ctx context.Context) error {
	return m.repoManager.HealthCheck(ctx)
}

func (m *serviceManager) Shutdown(ctx context.Context) error {
	if err := m.publisher.Close(); err != nil {
		m.logger.Error("failed to close event publisher", "error", err)
	}
	return m.repoManager.Shutdown(ctx)
}
