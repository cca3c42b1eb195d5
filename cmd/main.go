package main

import (
	"fmt"
	"os"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/edushare/edushare-backend/internal/data/repos"
	"github.com/edushare/edushare-backend/internal/db"
	"github.com/edushare/edushare-backend/internal/handlers"
	"github.com/edushare/edushare-backend/internal/middleware"
	"github.com/edushare/edushare-backend/internal/pkg/envutil"
	"github.com/edushare/edushare-backend/internal/pkg/logger"
	"github.com/edushare/edushare-backend/internal/server"
	"github.com/edushare/edushare-backend/internal/services"
	"github.com/edushare/edushare-backend/internal/storage"
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
	jwtSecretKey := envutil.GetEnv("JWT_SECRET_KEY", "defaultsecret", log)
	accessTokenTTL := envutil.GetEnvAsInt("ACCESS_TOKEN_TTL", 3600, log)
	refreshTokenTTL := envutil.GetEnvAsInt("REFRESH_TOKEN_TTL", 86400, log)

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Error("Postgres auto migration failed", "error", err)
		os.Exit(1)
	}
	thePG := postgresService.DB()

	// Redis (optional; stats fall back to counter rows without it)
	var rdb *goredis.Client
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		rdb = goredis.NewClient(&goredis.Options{
			Addr:     addr,
			Password: os.Getenv("REDIS_PASSWORD"),
		})
		log.Info("Redis client configured", "addr", addr)
	} else {
		log.Warn("REDIS_ADDR not set, stats caching disabled")
	}

	// Storage
	driver, storageMode, err := storage.NewDriverFromEnv(log)
	if err != nil {
		log.Error("Storage init failed", "error", err)
		os.Exit(1)
	}
	log.Info("Storage driver ready", "mode", storageMode)

	// Repos
	log.Info("Setting up Repos from main...")
	userRepo := repos.NewUserRepo(thePG, log)
	schoolRepo := repos.NewSchoolRepo(thePG, log)
	resourceRepo := repos.NewResourceRepo(thePG, log)
	moderationLogRepo := repos.NewModerationLogRepo(thePG, log)
	downloadRecordRepo := repos.NewDownloadRecordRepo(thePG, log)

	// Services
	log.Info("Setting up Services from main...")
	statsService := services.NewStatsService(thePG, log, rdb, resourceRepo, downloadRecordRepo, schoolRepo, userRepo)
	authService := services.NewAuthService(thePG, log, userRepo, schoolRepo, jwtSecretKey, time.Duration(accessTokenTTL)*time.Second, time.Duration(refreshTokenTTL)*time.Second)
	resourceService := services.NewResourceService(thePG, log, driver, resourceRepo, schoolRepo, statsService)
	moderationService := services.NewModerationService(thePG, log, resourceRepo, moderationLogRepo, schoolRepo, statsService)
	downloadService := services.NewDownloadService(thePG, log, driver, resourceRepo, downloadRecordRepo, schoolRepo, userRepo, statsService)

	// Handlers
	log.Info("Setting up handlers from main...")
	authHandler := handlers.NewAuthHandler(log, authService)
	resourceHandler := handlers.NewResourceHandler(log, resourceService, downloadService, driver)
	moderationHandler := handlers.NewModerationHandler(log, moderationService)
	statsHandler := handlers.NewStatsHandler(log, statsService)

	// Middleware
	log.Info("Setting up middleware from main...")
	authMiddleware := middleware.NewAuthMiddleware(log, authService)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		AuthHandler:       authHandler,
		ResourceHandler:   resourceHandler,
		ModerationHandler: moderationHandler,
		StatsHandler:      statsHandler,
		AuthMiddleware:    authMiddleware,
	})

	port := envutil.GetEnv("PORT", "8080", log)
	fmt.Printf("Server listening on :%s\n", port)
	if err := router.Run(":" + port); err != nil {
		log.Error("Server failed", "error", err)
	}
}
