// mopchan/main.go
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"mopchan/auth"
	"mopchan/chat"
	"mopchan/config"
	"mopchan/database"
	"mopchan/handlers"
	"mopchan/models"
	"mopchan/utils"

	"github.com/joho/godotenv"
)

type Application struct {
	db          *database.DatabaseService
	auth        *auth.Service
	chat        *chat.Room
	rateLimiter *models.RateLimiter
	logger      *slog.Logger
	uploadDir   string
	storage     models.StorageService
}

// Methods to satisfy the handlers.App interface
func (a *Application) DB() *database.DatabaseService    { return a.db }
func (a *Application) Auth() *auth.Service              { return a.auth }
func (a *Application) Chat() *chat.Room                 { return a.chat }
func (a *Application) RateLimiter() *models.RateLimiter { return a.rateLimiter }
func (a *Application) Logger() *slog.Logger             { return a.logger }
func (a *Application) UploadDir() string                { return a.uploadDir }
func (a *Application) Storage() models.StorageService   { return a.storage }

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		logger.Info("No .env file found, using process environment")
	}

	// --- External Configuration ---
	port := utils.GetEnv("MOPCHAN_PORT", "8080")
	dbPath := utils.GetEnv("MOPCHAN_DB_PATH", "./mopchan.db?_journal_mode=WAL&_foreign_keys=on")

	secret := os.Getenv("MOPCHAN_JWT_SECRET")
	if secret == "" {
		logger.Error("FATAL: MOPCHAN_JWT_SECRET is not set")
		os.Exit(1)
	}

	tokenTTL, err := time.ParseDuration(utils.GetEnv("MOPCHAN_TOKEN_TTL", config.DefaultTokenTTL))
	if err != nil {
		logger.Warn("Invalid MOPCHAN_TOKEN_TTL duration, using default", "value", os.Getenv("MOPCHAN_TOKEN_TTL"), "default", config.DefaultTokenTTL)
		tokenTTL, _ = time.ParseDuration(config.DefaultTokenTTL)
	}

	rateLimitEvery, err := time.ParseDuration(utils.GetEnv("MOPCHAN_RATE_EVERY", config.DefaultRateLimitEvery))
	if err != nil {
		logger.Warn("Invalid MOPCHAN_RATE_EVERY duration, using default", "value", os.Getenv("MOPCHAN_RATE_EVERY"), "default", config.DefaultRateLimitEvery)
		rateLimitEvery, _ = time.ParseDuration(config.DefaultRateLimitEvery)
	}
	rateLimitBurst, err := strconv.Atoi(utils.GetEnv("MOPCHAN_RATE_BURST", strconv.Itoa(config.DefaultRateLimitBurst)))
	if err != nil {
		logger.Warn("Invalid MOPCHAN_RATE_BURST integer, using default", "value", os.Getenv("MOPCHAN_RATE_BURST"), "default", config.DefaultRateLimitBurst)
		rateLimitBurst = config.DefaultRateLimitBurst
	}
	rateLimitPrune, err := time.ParseDuration(utils.GetEnv("MOPCHAN_RATE_PRUNE", config.DefaultRateLimitPrune))
	if err != nil {
		logger.Warn("Invalid MOPCHAN_RATE_PRUNE duration, using default", "value", os.Getenv("MOPCHAN_RATE_PRUNE"), "default", config.DefaultRateLimitPrune)
		rateLimitPrune, _ = time.ParseDuration(config.DefaultRateLimitPrune)
	}
	rateLimitExpire, err := time.ParseDuration(utils.GetEnv("MOPCHAN_RATE_EXPIRE", config.DefaultRateLimitExpire))
	if err != nil {
		logger.Warn("Invalid MOPCHAN_RATE_EXPIRE duration, using default", "value", os.Getenv("MOPCHAN_RATE_EXPIRE"), "default", config.DefaultRateLimitExpire)
		rateLimitExpire, _ = time.ParseDuration(config.DefaultRateLimitExpire)
	}

	dbService, err := database.InitDB(dbPath, logger)
	if err != nil {
		logger.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbService.DB.Close(); err != nil {
			logger.Error("Failed to close database", "error", err)
		}
	}()

	authService := auth.NewService(dbService.DB, logger, []byte(secret), tokenTTL)

	// Seed the first admin account from the environment on an empty table.
	if count, err := authService.AdminCount(); err != nil {
		logger.Error("Failed to count admin accounts", "error", err)
		os.Exit(1)
	} else if count == 0 {
		seedUser := os.Getenv("MOPCHAN_ADMIN_USER")
		seedPass := os.Getenv("MOPCHAN_ADMIN_PASS")
		if seedUser != "" && seedPass != "" {
			if _, err := authService.CreateAdmin(seedUser, seedPass, models.RoleAdmin); err != nil {
				logger.Error("Failed to seed admin account", "error", err)
				os.Exit(1)
			}
			logger.Info("Seeded initial admin account", "username", seedUser)
		} else {
			logger.Warn("No admin accounts exist and MOPCHAN_ADMIN_USER/MOPCHAN_ADMIN_PASS are unset; moderation API is unusable")
		}
	}

	uploadDir := utils.GetEnv("MOPCHAN_UPLOAD_DIR", "./uploads")
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		logger.Error("FATAL: Could not create uploads directory", "error", err)
		os.Exit(1)
	}

	// --- Storage Service Init ---
	var storageService models.StorageService
	if utils.GetEnv("MOPCHAN_S3_ENABLED", "false") == "true" {
		s3cfg := utils.S3Config{
			Endpoint:  utils.GetEnv("MOPCHAN_S3_ENDPOINT", ""),
			AccessKey: utils.GetEnv("MOPCHAN_S3_ACCESS_KEY", ""),
			SecretKey: utils.GetEnv("MOPCHAN_S3_SECRET_KEY", ""),
			Bucket:    utils.GetEnv("MOPCHAN_S3_BUCKET", ""),
			Region:    utils.GetEnv("MOPCHAN_S3_REGION", "us-east-1"),
			PublicURL: utils.GetEnv("MOPCHAN_S3_PUBLIC_URL", ""),
			UseSSL:    utils.GetEnv("MOPCHAN_S3_USE_SSL", "true") == "true",
		}
		storageService, err = utils.NewS3Storage(context.Background(), s3cfg)
		if err != nil {
			logger.Error("Failed to initialize S3 storage", "error", err)
			os.Exit(1)
		}
		logger.Info("S3 Storage initialized", "endpoint", s3cfg.Endpoint, "bucket", s3cfg.Bucket)
	} else {
		storageService = &utils.LocalStorage{UploadDir: uploadDir}
		logger.Info("Local Storage initialized", "dir", uploadDir)
	}

	app := &Application{
		db:          dbService,
		auth:        authService,
		chat:        chat.NewRoom(config.ChatHistorySize, config.ChatSendBuffer, config.MaxChatMessageLen, logger),
		rateLimiter: models.NewRateLimiter(rateLimitEvery, rateLimitBurst, rateLimitPrune, rateLimitExpire),
		logger:      logger,
		uploadDir:   uploadDir,
		storage:     storageService,
	}

	mux := handlers.SetupRouter(app)

	// --- Graceful Shutdown ---
	server := &http.Server{Addr: ":" + port, Handler: mux}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed unexpectedly", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("mopchan server started successfully",
		"version", config.AppVersion,
		"address", "http://localhost:"+port,
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("Server exiting")
}
