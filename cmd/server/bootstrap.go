package main

import (
	"context"

	"github.com/huangang/tokengate/internal/config"
	"github.com/huangang/tokengate/internal/handlers"
	"github.com/huangang/tokengate/internal/models"
	"github.com/huangang/tokengate/internal/services"
	"github.com/huangang/tokengate/pkg/logger"
)

// appServices holds all initialized services and handlers needed by the application.
type appServices struct {
	tokenService *services.TokenService
	taskQueue    services.TaskQueue
	worker       *services.Worker
	sweeper      *services.SweepScheduler
	authHandler  *handlers.AuthHandler
	tokenHandler *handlers.TokenHandler
}

// bootstrap initializes all application dependencies: database, token engine,
// queue, schedulers.
func bootstrap(cfg *config.Config) *appServices {
	// Initialize database
	if err := models.InitDB(&cfg.Database); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Auto migrate database
	if err := models.AutoMigrate(); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}

	// Initialize audit logger
	services.InitSystemLogger(models.GetDB())
	services.StartLogCleanupScheduler(models.GetDB())

	// Token engine with an immutable settings snapshot
	tokenService := services.NewTokenService(models.GetDB(), services.SettingsFromConfig(&cfg.Token))
	tokenService.OnIssue(func(userID uint, record *models.AuthToken) {
		services.LogInfo("Auth", "TokenIssued", "token issued", &userID, "", "",
			map[string]interface{}{"token_key": record.TokenKey})
	})
	tokenService.OnRevoke(func(userID uint, record *models.AuthToken) {
		extra := map[string]interface{}{}
		if record != nil {
			extra["token_key"] = record.TokenKey
		}
		services.LogInfo("Auth", "TokenRevoked", "token revoked", &userID, "", "", extra)
	})

	// Task queue for sweep / revoke-all maintenance (Redis if enabled, sync otherwise)
	taskQueue := services.InitTaskQueue(cfg)
	processor := func(_ context.Context, task *services.TokenTask) error {
		return tokenService.ProcessTask(task)
	}
	if syncQueue, ok := taskQueue.(*services.SyncQueue); ok {
		syncQueue.SetProcessor(processor)
	}

	// Start async worker if Redis is enabled
	var worker *services.Worker
	if cfg.Redis.Enabled {
		worker = services.InitWorker(&cfg.Redis)
		if worker != nil {
			worker.SetProcessor(processor)
			worker.Start()
		}
	}

	// Advisory expired-token sweep
	sweeper := services.StartSweepScheduler(&cfg.Sweep, taskQueue)

	// Create default admin user
	authHandler := handlers.NewAuthHandler(models.GetDB(), tokenService, cfg)
	if err := authHandler.CreateAdminIfNotExists(); err != nil {
		logger.Warn().Err(err).Msg("Failed to create admin user")
	}

	return &appServices{
		tokenService: tokenService,
		taskQueue:    taskQueue,
		worker:       worker,
		sweeper:      sweeper,
		authHandler:  authHandler,
		tokenHandler: handlers.NewTokenHandler(tokenService),
	}
}

// shutdown gracefully stops all services.
func (s *appServices) shutdown() {
	s.sweeper.Stop()
	services.StopLogCleanupScheduler()
	logger.Info().Msg("All schedulers stopped")

	if s.worker != nil {
		s.worker.Stop()
	}
	if s.taskQueue != nil {
		s.taskQueue.Close()
	}
}
