package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/battlestacks/battlestacks/brackets"
	"github.com/battlestacks/battlestacks/config"
	"github.com/battlestacks/battlestacks/db"
	"github.com/battlestacks/battlestacks/handlers"
	"github.com/battlestacks/battlestacks/middleware"
	"github.com/battlestacks/battlestacks/repositories"
	"github.com/battlestacks/battlestacks/routes"
	"github.com/battlestacks/battlestacks/services"
	"github.com/battlestacks/battlestacks/storage"
	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
)

// schedulerInterval controls how often expired registration windows are closed.
const schedulerInterval = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		}
	}()
	logger.Info("database connection established")

	// Banner storage is optional: without R2 credentials the API runs but
	// banner uploads are rejected.
	var uploader storage.FileUploader
	if cfg.R2AccountID != "" {
		uploader, err = storage.NewCloudflareR2Uploader(storage.CloudflareR2UploaderConfig{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicBaseURL:   cfg.R2PublicBaseURL,
		})
		if err != nil {
			logger.Error("failed to initialize Cloudflare R2 uploader", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("Cloudflare R2 uploader initialized")
	} else {
		logger.Warn("R2 storage not configured, banner uploads disabled")
	}

	wsHub := brackets.NewHub(logger)
	go wsHub.Run()

	txManager := db.NewTxManager(dbConn)

	userRepo := repositories.NewPostgresUserRepository(dbConn)
	tournamentRepo := repositories.NewPostgresTournamentRepository(dbConn)
	registrationRepo := repositories.NewPostgresRegistrationRepository(dbConn)
	winnerLogRepo := repositories.NewPostgresWinnerLogRepository(dbConn)
	walletRepo := repositories.NewPostgresWalletRepository(dbConn)

	authService := services.NewAuthService(userRepo, cfg.JWTSecretKey)
	tournamentService := services.NewTournamentService(tournamentRepo, uploader, wsHub, logger)
	registrationService := services.NewRegistrationService(registrationRepo, tournamentRepo)
	paymentService := services.NewPaymentService(txManager, registrationRepo, tournamentRepo, logger)
	bracketService := services.NewBracketService(
		txManager,
		tournamentRepo,
		registrationRepo,
		winnerLogRepo,
		walletRepo,
		wsHub,
		logger,
	)
	walletService := services.NewWalletService(txManager, walletRepo, userRepo, logger)
	logger.Info("services initialized")

	// Close registration on tournaments whose deadline has passed.
	go func() {
		ticker := time.NewTicker(schedulerInterval)
		defer ticker.Stop()
		logger.Info("registration deadline scheduler started", slog.Duration("interval", schedulerInterval))

		if err := tournamentService.CloseExpiredRegistrations(context.Background()); err != nil {
			logger.Error("scheduler: initial run failed", slog.Any("error", err))
		}
		for range ticker.C {
			if err := tournamentService.CloseExpiredRegistrations(context.Background()); err != nil {
				logger.Error("scheduler: periodic run failed", slog.Any("error", err))
			}
		}
	}()

	authenticator := middleware.NewAuthenticator(cfg.JWTSecretKey)

	router := chi.NewRouter()
	routes.SetupRoutes(router, authenticator, routes.Handlers{
		Auth:         handlers.NewAuthHandler(authService),
		Tournament:   handlers.NewTournamentHandler(tournamentService),
		Registration: handlers.NewRegistrationHandler(registrationService),
		Payment:      handlers.NewPaymentHandler(paymentService),
		Bracket:      handlers.NewBracketHandler(bracketService),
		Wallet:       handlers.NewWalletHandler(walletService),
		WebSocket:    handlers.NewWebSocketHandler(wsHub, logger),
	})
	logger.Info("routes configured")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("server stopped gracefully")
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			os.Exit(1)
		}
		logger.Info("server shutdown complete")
	}
}
