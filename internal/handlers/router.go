package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ncsedu/grading-service/internal/config"
	"github.com/ncsedu/grading-service/internal/repositories"
	"github.com/ncsedu/grading-service/internal/services"
	"github.com/ncsedu/grading-service/internal/utils"
)

type HandlerManager struct {
	profileHandler    *ProfileHandler
	courseHandler     *CourseHandler
	competencyHandler *CompetencyHandler
	scheduleHandler   *ScheduleHandler
	evaluationHandler *EvaluationHandler
	submissionHandler *SubmissionHandler

	sessionResolver *SessionResolver
	guard           *RouteGuard
	profileService  services.ProfileService
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	profileRepo repositories.ProfileRepository,
	cfg *config.Config,
	logger utils.Logger,
) *HandlerManager {
	return &HandlerManager{
		profileHandler:    NewProfileHandler(serviceManager.Profile(), logger),
		courseHandler:     NewCourseHandler(serviceManager.Course(), logger),
		competencyHandler: NewCompetencyHandler(serviceManager.Competency(), logger),
		scheduleHandler:   NewScheduleHandler(serviceManager.Schedule(), logger),
		evaluationHandler: NewEvaluationHandler(serviceManager.Evaluation(), logger),
		submissionHandler: NewSubmissionHandler(serviceManager.Submission(), logger),
		sessionResolver:   NewSessionResolver(cfg, logger),
		guard:             NewRouteGuard(profileRepo, logger),
		profileService:    serviceManager.Profile(),
	}
}

// SetupRoutes registers every route. The session resolver runs on everything;
// the guard's page middleware handles redirects, its API middleware the JSON
// denials.
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	router.Use(hm.sessionResolver.Resolve())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "grading-service",
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	hm.setupPageRoutes(router)

	v1 := router.Group("/api/v1")
	{
		// Signup surface. check-email is anonymous; create-profile only needs
		// a session, not an approved profile.
		auth := v1.Group("/auth")
		{
			auth.POST("/check-email", hm.profileHandler.CheckEmail)
			auth.POST("/create-profile", hm.sessionResolver.RequireAuth(), hm.profileHandler.CreateProfile)
			auth.GET("/me", hm.sessionResolver.RequireAuth(), hm.profileHandler.Me)
		}

		// Preferences only need a session; theme selection works while the
		// account still waits for approval.
		preferences := v1.Group("/user/preferences", hm.sessionResolver.RequireAuth())
		{
			preferences.GET("", hm.profileHandler.GetPreferences)
			preferences.POST("", hm.profileHandler.UpdatePreferences)
		}

		// Everything below requires an active account; the service layer
		// applies the per-row policy on top.
		protected := v1.Group("", hm.guard.API())
		{
			profiles := protected.Group("/profiles")
			{
				profiles.GET("", hm.profileHandler.ListProfiles)
				profiles.GET("/me", hm.profileHandler.Me)
				profiles.PUT("/me", hm.profileHandler.UpdateMe)
				profiles.GET("/:id", hm.profileHandler.GetProfile)
				profiles.PUT("/:id/approval", hm.profileHandler.SetApproval)
			}

			courses := protected.Group("/courses")
			{
				courses.POST("", hm.courseHandler.CreateCourse)
				courses.GET("", hm.courseHandler.ListCourses)
				courses.GET("/:id", hm.courseHandler.GetCourse)
				courses.GET("/:id/details", hm.courseHandler.GetCourseWithDetails)
				courses.PUT("/:id", hm.courseHandler.UpdateCourse)
				courses.DELETE("/:id", hm.courseHandler.DeleteCourse)

				courses.POST("/:id/teachers/:teacher_id", hm.courseHandler.AssignTeacher)
				courses.DELETE("/:id/teachers/:teacher_id", hm.courseHandler.RemoveTeacher)
				courses.POST("/:id/students/:student_id", hm.courseHandler.EnrollStudent)
				courses.DELETE("/:id/students/:student_id", hm.courseHandler.RemoveStudent)
			}

			units := protected.Group("/competency-units")
			{
				units.POST("", hm.competencyHandler.CreateUnit)
				units.GET("", hm.competencyHandler.ListUnits)
				units.GET("/:id", hm.competencyHandler.GetUnit)
				units.PUT("/:id", hm.competencyHandler.UpdateUnit)
				units.DELETE("/:id", hm.competencyHandler.DeleteUnit)
			}

			elements := protected.Group("/competency-elements")
			{
				elements.POST("", hm.competencyHandler.CreateElement)
				elements.GET("", hm.competencyHandler.ListElements)
				elements.GET("/:id", hm.competencyHandler.GetElement)
				elements.PUT("/:id", hm.competencyHandler.UpdateElement)
				elements.DELETE("/:id", hm.competencyHandler.DeleteElement)
			}

			schedules := protected.Group("/schedules")
			{
				schedules.POST("", hm.scheduleHandler.CreateSchedule)
				schedules.GET("", hm.scheduleHandler.ListSchedules)
				schedules.GET("/:id", hm.scheduleHandler.GetSchedule)
				schedules.PUT("/:id", hm.scheduleHandler.UpdateSchedule)
				schedules.DELETE("/:id", hm.scheduleHandler.DeleteSchedule)
			}

			evaluations := protected.Group("/evaluations")
			{
				evaluations.POST("", hm.evaluationHandler.CreateEvaluation)
				evaluations.GET("", hm.evaluationHandler.ListEvaluations)
				evaluations.GET("/check", hm.evaluationHandler.CheckEvaluation)
				evaluations.GET("/stats", hm.evaluationHandler.GetEvaluationStats)
				evaluations.GET("/export", hm.evaluationHandler.ExportEvaluations)
				evaluations.GET("/:id", hm.evaluationHandler.GetEvaluation)
				evaluations.PUT("/:id", hm.evaluationHandler.UpdateEvaluation)
				evaluations.DELETE("/:id", hm.evaluationHandler.DeleteEvaluation)
			}

			submissions := protected.Group("/submissions")
			{
				submissions.POST("/upload", hm.submissionHandler.UploadSubmission)
				submissions.GET("", hm.submissionHandler.ListSubmissions)
				submissions.GET("/:id/url", hm.submissionHandler.GetSignedURL)
			}
		}
	}
}

// setupPageRoutes wires the navigation pages behind the redirect guard. The
// pages themselves just report state; the interesting behavior is the guard.
func (hm *HandlerManager) setupPageRoutes(router *gin.Engine) {
	pages := router.Group("", hm.guard.Pages())

	statePage := func(name string) gin.HandlerFunc {
		return func(c *gin.Context) {
			response := gin.H{
				"page":  name,
				"state": c.MustGet("nav_state"),
			}
			// Fail-open display load: the page renders without the profile
			// when the lookup fails.
			if profile := hm.profileService.GetForDisplay(c.Request.Context(), UserIDFromContext(c)); profile != nil {
				response["profile"] = profile
			}
			c.JSON(http.StatusOK, response)
		}
	}

	pages.GET(PathLogin, statePage("login"))
	pages.GET(PathSignup, statePage("signup"))
	pages.GET(PathVerifyEmail, statePage("verify-email"))
	pages.GET(PathWaitingApproval, statePage("waiting-approval"))
	pages.GET(PathDashboard, statePage("dashboard"))

	// Root always passes the guard without a state lookup.
	router.GET(PathRoot, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"service": "grading-service"})
	})
}
