package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/protocorn/launchway/docs" // swagger docs

	"github.com/protocorn/launchway/internal/config"
	"github.com/protocorn/launchway/internal/platform/auth"
	httpPlatform "github.com/protocorn/launchway/internal/platform/http"
	"github.com/protocorn/launchway/internal/platform/llm"
	"github.com/protocorn/launchway/internal/platform/logger"
	"github.com/protocorn/launchway/internal/platform/postgres"
	"github.com/protocorn/launchway/internal/platform/redis"
	"github.com/protocorn/launchway/internal/platform/secrets"
	"github.com/protocorn/launchway/internal/platform/storage"

	authHandler "github.com/protocorn/launchway/modules/auth/handler"
	authRepo "github.com/protocorn/launchway/modules/auth/repository"
	authService "github.com/protocorn/launchway/modules/auth/service"
	userRepo "github.com/protocorn/launchway/modules/users/repository"

	credentialHandler "github.com/protocorn/launchway/modules/credentials/handler"
	credentialRepo "github.com/protocorn/launchway/modules/credentials/repository"
	credentialService "github.com/protocorn/launchway/modules/credentials/service"
	"github.com/protocorn/launchway/modules/formfill/aimap"
	"github.com/protocorn/launchway/modules/formfill/detector"
	"github.com/protocorn/launchway/modules/formfill/fastmap"
	"github.com/protocorn/launchway/modules/formfill/recorder"
	"github.com/protocorn/launchway/modules/formfill/sensitive"

	profileRepo "github.com/protocorn/launchway/modules/profile/repository"
	profileService "github.com/protocorn/launchway/modules/profile/service"

	ratelimitHandler "github.com/protocorn/launchway/modules/ratelimit/handler"
	ratelimitService "github.com/protocorn/launchway/modules/ratelimit/service"

	resumeHandler "github.com/protocorn/launchway/modules/resumes/handler"
	resumeRepo "github.com/protocorn/launchway/modules/resumes/repository"
	resumeService "github.com/protocorn/launchway/modules/resumes/service"

	sessionHandler "github.com/protocorn/launchway/modules/sessions/handler"
	sessionRepo "github.com/protocorn/launchway/modules/sessions/repository"
	sessionService "github.com/protocorn/launchway/modules/sessions/service"

	vncFleet "github.com/protocorn/launchway/modules/vnc/fleet"
	vncHandler "github.com/protocorn/launchway/modules/vnc/handler"

	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// @title Launchway Agent API
// @version 1.0
// @description Automated job-application agent - fills application forms in sandboxed browsers and hands off to a live VNC viewer when a human is needed.

// @contact.name API Support
// @contact.email support@launchway.example.com

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	// Load .env file if exists
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting Launchway agent server",
		zap.String("env", cfg.Server.Env),
		zap.String("port", cfg.Server.Port),
	)

	// Initialize Sentry (optional)
	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Server.Env,
		}); err != nil {
			logger.Warn("Sentry initialization failed", zap.Error(err))
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	ctx := context.Background()

	// Initialize PostgreSQL
	pgClient, err := postgres.New(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer pgClient.Close()
	logger.Info("Connected to PostgreSQL")

	// Run database migrations (MANDATORY: must run before HTTP server starts)
	migrationsPath := "./migrations"
	if err := postgres.RunMigrations(ctx, cfg.Database, logger, migrationsPath); err != nil {
		logger.Fatal("Failed to run database migrations",
			zap.Error(err),
			zap.String("migrations_path", migrationsPath),
		)
	}

	// Initialize Redis
	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Connected to Redis")

	// Initialize S3 client (optional - gracefully handle missing config)
	var s3Client *storage.S3Client
	if cfg.S3.Endpoint != "" && cfg.S3.Bucket != "" {
		s3Client, err = storage.NewS3Client(cfg.S3)
		if err != nil {
			logger.Warn("Failed to initialize S3 client, resume storage disabled", zap.Error(err))
		} else {
			logger.Info("S3 client initialized", zap.String("bucket", cfg.S3.Bucket))
		}
	} else {
		logger.Info("S3 configuration not provided, resume storage disabled")
	}

	// Set Gin mode
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.Sentry.DSN != "" {
		router.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	router.Use(httpPlatform.RequestIDMiddleware())
	router.Use(httpPlatform.LoggerMiddleware(logger))
	router.Use(httpPlatform.CORSMiddleware())

	// Swagger documentation (available in development)
	if cfg.Server.Env != "production" {
		router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
		logger.Info("Swagger UI available at /swagger/index.html")
	}

	// Health check endpoint
	router.GET("/health", healthCheckHandler(ctx, pgClient, redisClient))

	// Ping endpoint
	router.GET("/ping", pingHandler)

	// Initialize JWT manager
	jwtManager := auth.NewJWTManager(
		cfg.JWT.AccessSecret,
		cfg.JWT.RefreshSecret,
		cfg.JWT.AccessExpiry,
		cfg.JWT.RefreshExpiry,
	)

	// Auth middleware
	authMiddleware := auth.AuthMiddleware(jwtManager)

	// Initialize repositories
	userRepository := userRepo.NewUserRepository(pgClient.Pool)
	tokenRepository := authRepo.NewRefreshTokenRepository(pgClient.Pool)
	resumeRepository := resumeRepo.NewResumeRepository(pgClient.Pool)
	profileRepository := profileRepo.NewProfileRepository(pgClient.Pool)
	batchRepository := sessionRepo.NewBatchRepository(pgClient.Pool)
	vncSessionRepository := vncFleet.NewSessionRepository(pgClient.Pool)
	actionLogRepository := recorder.NewActionLogRepository(pgClient.Pool)
	credentialRepository := credentialRepo.NewCredentialRepository(pgClient.Pool)

	// At-rest encryption for stored credentials
	cipher, err := secrets.NewCipher(cfg.Secrets.EncryptionKey)
	if err != nil {
		logger.Fatal("Failed to initialize secrets cipher", zap.Error(err))
	}

	// Rate limiting and the LLM gateway
	limiter := ratelimitService.NewLimiter(redisClient.Client, cfg.RateLimit, cfg.JWT.AdminEmails, logger)
	quota := ratelimitService.NewQuotaManager(limiter, 4, logger)
	gateway := llm.NewGateway(cfg.LLM, quota, logger)

	// Form-fill engine singletons
	fieldDetector := detector.New(logger)
	fastMapper, err := fastmap.New(cfg.Agent.RulesFile)
	if err != nil {
		logger.Fatal("Failed to load mapping rules", zap.Error(err))
	}
	sensitiveDetector, err := sensitive.NewDetector(cfg.Agent.RulesFile)
	if err != nil {
		logger.Fatal("Failed to load sensitive-field rules", zap.Error(err))
	}
	aiMapper := aimap.New(gateway, cfg.LLM.EssayMaxTokens, logger)

	// VNC fleet: recover durable sessions, then start the cleanup sweeper
	fleet := vncFleet.New(cfg.VNC, cfg.Sandbox, vncSessionRepository, logger)
	fleet.Recover(ctx)
	sweepCtx, stopSweeper := context.WithCancel(ctx)
	go fleet.RunSweeper(sweepCtx)

	// Initialize services
	authSvc := authService.NewAuthService(
		userRepository,
		tokenRepository,
		jwtManager,
		cfg.JWT.AccessExpiry,
		cfg.JWT.RefreshExpiry,
	)
	resumeSvc := resumeService.NewResumeService(resumeRepository, s3Client)
	credentialSvc := credentialService.NewCredentialService(credentialRepository, cipher)
	profileSvc := profileService.NewProfileService(profileRepository, s3Client, logger)
	sessionSvc := sessionService.NewSessionService(
		batchRepository,
		profileSvc,
		fleet,
		limiter,
		actionLogRepository,
		credentialSvc,
		fieldDetector,
		fastMapper,
		sensitiveDetector,
		aiMapper,
		cfg.Agent,
		cfg.Server,
		int64(cfg.VNC.MaxSessions),
		logger,
	)

	// Initialize handlers
	authHdl := authHandler.NewAuthHandler(authSvc)
	resumeHdl := resumeHandler.NewResumeHandler(resumeSvc)
	sessionHdl := sessionHandler.NewSessionHandler(sessionSvc, limiter)
	credentialHdl := credentialHandler.NewCredentialHandler(credentialSvc)
	vncHdl := vncHandler.NewVNCHandler(fleet, vncSessionRepository, logger)
	ratelimitHdl := ratelimitHandler.NewRateLimitHandler(limiter, quota, userRepository)

	// API v1 routes
	v1 := router.Group("/api/v1")
	v1.Use(ratelimitHandler.APILimitMiddleware(limiter, userRepository))
	{
		authHdl.RegisterRoutes(v1)
		resumeHdl.RegisterRoutes(v1, authMiddleware)
		sessionHdl.RegisterRoutes(v1, authMiddleware)
		credentialHdl.RegisterRoutes(v1, authMiddleware)
		ratelimitHdl.RegisterRoutes(v1, authMiddleware)
	}

	// The viewer stream lives at the root so viewer URLs stay short-lived
	// and stable: ws[s]://<host>/vnc-stream/<session_id>
	root := router.Group("")
	vncHdl.RegisterRoutes(root, authMiddleware)

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server listening", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Stop the sweeper and tear down live sessions before exiting
	stopSweeper()
	fleet.CloseAll(ctx)

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

// healthCheckHandler godoc
// @Summary Health Check
// @Description Check the health status of the application and its dependencies
// @Tags system
// @Produce json
// @Success 200 {object} http.HealthResponse
// @Router /health [get]
func healthCheckHandler(ctx context.Context, pgClient *postgres.Client, redisClient *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		services := make(map[string]string)

		// Check PostgreSQL
		if err := pgClient.Health(ctx); err != nil {
			services["postgres"] = "down"
		} else {
			services["postgres"] = "up"
		}

		// Check Redis
		if err := redisClient.Health(ctx); err != nil {
			services["redis"] = "down"
		} else {
			services["redis"] = "up"
		}

		httpPlatform.RespondWithHealth(c, services)
	}
}

// pingHandler godoc
// @Summary Ping
// @Description Simple ping endpoint to check if the API is responding
// @Tags system
// @Produce json
// @Success 200 {object} map[string]string
// @Router /ping [get]
func pingHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}
