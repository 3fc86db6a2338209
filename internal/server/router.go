package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/lessonforge/lessonforge-backend/internal/handlers"
	"github.com/lessonforge/lessonforge-backend/internal/middleware"
)

type RouterConfig struct {
	AuthMiddleware    *middleware.AuthMiddleware
	SourceHandler     *handlers.SourceHandler
	CollectionHandler *handlers.CollectionHandler
	CourseHandler     *handlers.CourseHandler
	SSEHandler        *handlers.SSEHandler
	AllowedOrigins    []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	// ===============
	// || Public    ||
	// ===============
	router.GET("/healthcheck", handlers.HealthCheck)

	// ===============
	// || Protected ||
	// ===============
	api := router.Group("/api")
	api.Use(cfg.AuthMiddleware.RequireAuth())

	// SSE
	api.GET("/sse/stream", cfg.SSEHandler.Stream)

	// Sources
	api.POST("/sources/upload", cfg.SourceHandler.Upload)
	api.POST("/sources/ingest", cfg.SourceHandler.Ingest)
	api.GET("/sources", cfg.SourceHandler.List)
	api.GET("/sources/:id", cfg.SourceHandler.Get)
	api.GET("/sources/:id/analysis", cfg.SourceHandler.GetAnalysis)
	api.POST("/sources/:id/process", cfg.SourceHandler.Process)

	// Collections
	api.POST("/collections", cfg.CollectionHandler.Create)
	api.GET("/collections", cfg.CollectionHandler.List)
	api.GET("/collections/:id", cfg.CollectionHandler.Get)
	api.GET("/collections/:id/synthesis", cfg.CollectionHandler.GetSynthesis)
	api.POST("/collections/:id/sources", cfg.CollectionHandler.AddSources)
	api.POST("/collections/:id/analyze", cfg.CollectionHandler.Analyze)
	api.POST("/collections/:id/generate", cfg.CollectionHandler.Generate)

	// Courses
	api.GET("/courses", cfg.CourseHandler.List)
	api.GET("/courses/:id", cfg.CourseHandler.Get)

	return router
}
