package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/lessonforge/lessonforge-backend/internal/db"
	"github.com/lessonforge/lessonforge-backend/internal/handlers"
	"github.com/lessonforge/lessonforge-backend/internal/logger"
	"github.com/lessonforge/lessonforge-backend/internal/middleware"
	"github.com/lessonforge/lessonforge-backend/internal/pipeline"
	"github.com/lessonforge/lessonforge-backend/internal/repos"
	"github.com/lessonforge/lessonforge-backend/internal/server"
	"github.com/lessonforge/lessonforge-backend/internal/services"
	"github.com/lessonforge/lessonforge-backend/internal/sse"
	"github.com/lessonforge/lessonforge-backend/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Env
	log.Info("Loading environment variables from main...")
	jwtSecretKey := utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log)
	serverPort := utils.GetEnv("SERVER_PORT", "8080", log)
	allowedOrigins := utils.GetEnv("CORS_ALLOWED_ORIGINS", "", log)
	bucketName := utils.GetEnv("GCS_BUCKET_NAME", "", log)
	gcpCredentials := utils.GetEnv("GCP_CREDENTIALS_PATH", "", log)
	aiBaseURL := utils.GetEnv("AI_BASE_URL", "https://api.openai.com", log)
	aiAPIKey := utils.GetEnv("AI_API_KEY", "", log)
	aiModel := utils.GetEnv("AI_MODEL", "gpt-5.2", log)
	aiTimeout := utils.GetEnvAsInt("AI_TIMEOUT_SECONDS", 180, log)
	aiMaxRetries := utils.GetEnvAsInt("AI_MAX_RETRIES", 3, log)
	addConcurrency := utils.GetEnvAsInt("COLLECTION_ADD_CONCURRENCY", 4, log)

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Warn("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	sourceRepo := repos.NewSourceRepo(thePG, log)
	contentAnalysisRepo := repos.NewContentAnalysisRepo(thePG, log)
	collectionRepo := repos.NewCollectionRepo(thePG, log)
	collectionAnalysisRepo := repos.NewCollectionAnalysisRepo(thePG, log)
	courseRepo := repos.NewCourseRepo(thePG, log)

	// SSE
	log.Info("Setting up SSE hub now...")
	sseHub := sse.NewSSEHub(log)

	// Services
	log.Info("Setting up Services from main...")
	bucketService, err := services.NewBucketService(log, services.BucketConfig{
		BucketName:      bucketName,
		CredentialsPath: gcpCredentials,
	})
	if err != nil {
		log.Warn("Could not init BucketService; uploads disabled", "error", err)
	}
	speechService, err := services.NewSpeechService(log, gcpCredentials)
	if err != nil {
		log.Warn("Could not init SpeechService; video transcription disabled", "error", err)
	}
	aiClient, err := services.NewAIClient(log, services.AIClientConfig{
		BaseURL:        aiBaseURL,
		APIKey:         aiAPIKey,
		Model:          aiModel,
		TimeoutSeconds: aiTimeout,
		MaxRetries:     aiMaxRetries,
	})
	if err != nil {
		log.Error("Could not init AIClient", "error", err)
		os.Exit(1)
	}

	extractor := services.NewContentExtractor(log, bucketService, speechService)
	videoAnalysis := services.NewVideoAnalysisAdapter(log, aiClient)
	docAnalysis := services.NewDocumentAnalysisAdapter(log, aiClient)
	synthesisAdapter := services.NewSynthesisAdapter(log, aiClient)
	lessonAdapter := services.NewLessonAdapter(log, aiClient)

	sourceService := services.NewSourceService(log, sourceRepo, contentAnalysisRepo)
	collectionService := services.NewCollectionService(log, collectionRepo, sourceRepo, collectionAnalysisRepo)
	courseService := services.NewCourseService(log, courseRepo)

	// Pipeline
	pipe := pipeline.New(
		log,
		sourceRepo,
		contentAnalysisRepo,
		collectionRepo,
		collectionAnalysisRepo,
		courseRepo,
		extractor,
		videoAnalysis,
		docAnalysis,
		synthesisAdapter,
		lessonAdapter,
		sseHub,
		pipeline.Config{AddConcurrency: addConcurrency},
	)

	// Handlers
	log.Info("Setting up Handlers from main...")
	sourceHandler := handlers.NewSourceHandler(sourceService, bucketService, pipe)
	collectionHandler := handlers.NewCollectionHandler(collectionService, pipe)
	courseHandler := handlers.NewCourseHandler(courseService)
	sseHandler := handlers.NewSSEHandler(sseHub)

	authMiddleware := middleware.NewAuthMiddleware(log, jwtSecretKey)

	var origins []string
	if allowedOrigins != "" {
		origins = strings.Split(allowedOrigins, ",")
	}
	router := server.NewRouter(server.RouterConfig{
		AuthMiddleware:    authMiddleware,
		SourceHandler:     sourceHandler,
		CollectionHandler: collectionHandler,
		CourseHandler:     courseHandler,
		SSEHandler:        sseHandler,
		AllowedOrigins:    origins,
	})

	log.Info("Starting server", "port", serverPort)
	if err := router.Run(":" + serverPort); err != nil {
		log.Error("Server exited", "error", err)
		os.Exit(1)
	}
}
