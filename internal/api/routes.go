package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/infiniV/Digital-Ocean-X-BNU-sub001/internal/api/middleware"
	"github.com/infiniV/Digital-Ocean-X-BNU-sub001/internal/auth"
	"github.com/infiniV/Digital-Ocean-X-BNU-sub001/internal/config"
	"github.com/infiniV/Digital-Ocean-X-BNU-sub001/internal/database"
	"github.com/infiniV/Digital-Ocean-X-BNU-sub001/internal/progress"
	"github.com/infiniV/Digital-Ocean-X-BNU-sub001/internal/stats"
)

// RegisterRoutes wires every handler under /v1.
func RegisterRoutes(
	router *gin.Engine,
	cfg *config.Config,
	db *gorm.DB,
	asynqClient *asynq.Client,
	authService *auth.AuthService,
	redisClient *redis.Client,
	logger *slog.Logger,
	storageClient ObjectStore,
	improver NoteImprover,
) {
	statsService := stats.NewService(db)
	aggregator := progress.NewService(db)

	authHandler := NewAuthHandler(
		db,
		authService,
		redisClient,
		logger,
		cfg.API.LoginRateLimitPerHour,
		cfg.API.LoginLockThreshold,
		cfg.API.LoginLockTTL(),
		cfg.Auth.RefreshCookieDomain,
	)
	userHandler := NewUserHandler(db)
	catalogHandler := NewCatalogHandler(db)
	enrollmentHandler := NewEnrollmentHandler(db)
	progressHandler := NewProgressHandler(db, aggregator, asynqClient)
	noteHandler := NewNoteHandler(db, asynqClient, improver)
	achievementHandler := NewAchievementHandler(db)
	trainerHandler := NewTrainerHandler(db, storageClient, statsService)
	adminHandler := NewAdminHandler(db, statsService, storageClient, logger)
	uploadHandler := NewUploadHandler(storageClient, logger, cfg.Clamd.Addr)
	wsHandler := NewWsHandler(redisClient, authService, logger, cfg.API.AllowedOrigins)

	authMiddleware := middleware.AuthMiddleware(authService)

	v1 := router.Group("/v1")
	{
		v1.GET("/ws", wsHandler.HandleConnection)

		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/refresh", authHandler.Refresh)
			authGroup.POST("/logout", authMiddleware, authHandler.Logout)
		}

		userGroup := v1.Group("/users")
		userGroup.Use(authMiddleware)
		{
			userGroup.GET("/me", userHandler.GetMe)
			userGroup.PATCH("/me", userHandler.UpdateMe)
		}

		// Catalog reads are public; enrollment is trainee-only.
		coursesGroup := v1.Group("/courses")
		{
			coursesGroup.GET("", catalogHandler.ListCourses)
			coursesGroup.GET("/:slug", catalogHandler.GetCourse)
			coursesGroup.POST("/enroll",
				authMiddleware,
				middleware.RequireRole(database.RoleTrainee),
				enrollmentHandler.Enroll)
		}

		v1.POST("/upload", authMiddleware, uploadHandler.Upload)

		traineeGroup := v1.Group("/trainee")
		traineeGroup.Use(authMiddleware, middleware.RequireRole(database.RoleTrainee))
		{
			traineeGroup.GET("/courses", enrollmentHandler.ListMyCourses)
			traineeGroup.PATCH("/progress/slides/:slideID", progressHandler.UpdateSlideProgress)
			traineeGroup.GET("/progress/courses/:courseID", progressHandler.GetCourseProgress)

			traineeGroup.GET("/notes", noteHandler.ListNotes)
			traineeGroup.POST("/notes", noteHandler.CreateNote)
			traineeGroup.GET("/notes/:id", noteHandler.GetNote)
			traineeGroup.PATCH("/notes/:id", noteHandler.UpdateNote)
			traineeGroup.DELETE("/notes/:id", noteHandler.DeleteNote)
			traineeGroup.POST("/notes/:id/improve", noteHandler.ImproveNote)

			traineeGroup.GET("/achievements", achievementHandler.ListMine)
			traineeGroup.GET("/streak", achievementHandler.GetStreak)
		}

		trainerGroup := v1.Group("/trainer")
		trainerGroup.Use(authMiddleware, middleware.RequireRole(database.RoleTrainer))
		{
			trainerGroup.GET("/courses", trainerHandler.ListCourses)
			trainerGroup.POST("/courses", trainerHandler.CreateCourse)
			trainerGroup.GET("/courses/:id", trainerHandler.GetCourse)
			trainerGroup.PATCH("/courses/:id", trainerHandler.UpdateCourse)
			trainerGroup.DELETE("/courses/:id", trainerHandler.DeleteCourse)
			trainerGroup.POST("/courses/:id/submit", trainerHandler.SubmitCourse)

			trainerGroup.POST("/courses/:id/slides", trainerHandler.CreateSlide)
			trainerGroup.PUT("/courses/:id/slides/reorder", trainerHandler.ReorderSlides)
			trainerGroup.PATCH("/slides/:id", trainerHandler.UpdateSlide)
			trainerGroup.DELETE("/slides/:id", trainerHandler.DeleteSlide)

			trainerGroup.GET("/stats", trainerHandler.GetStats)
		}

		adminGroup := v1.Group("/admin")
		adminGroup.Use(authMiddleware, middleware.RequireRole(database.RoleAdmin))
		{
			adminGroup.GET("/users", adminHandler.ListUsers)
			adminGroup.DELETE("/users/:id", adminHandler.DeleteUser)
			adminGroup.PATCH("/users/:id/role", adminHandler.PatchUserRole)
			adminGroup.PATCH("/users/:id/verification", adminHandler.PatchTrainerVerification)

			adminGroup.GET("/courses", adminHandler.ListCourses)
			adminGroup.PATCH("/courses/:id/status", adminHandler.PatchCourseStatus)

			adminGroup.GET("/stats/overview", adminHandler.GetOverview)
			adminGroup.GET("/stats/growth", adminHandler.GetGrowth)
			adminGroup.GET("/stats/engagement", adminHandler.GetEngagement)
		}
	}
}
