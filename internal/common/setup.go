package common

import (
	"context"
	"log"
	"strings"

	"fund-session-engine/internal/database"
	"fund-session-engine/internal/events"
	"fund-session-engine/internal/models"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	// Try to load .env file - if it doesn't exist, that's okay
	// Environment variables can be set via other means (shell export, docker, etc.)
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
		log.Println("Make sure to set environment variables via export or other means")
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

type Services struct {
	DbService *database.Service
	Publisher *events.RedisPublisher
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// InitializeServices opens the engine and, when REDIS_URL is set, wires the
// redis publisher in for post-commit events.
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	services := &Services{}
	var opts []database.Option

	if cfg.Events.RedisURL != "" {
		zap.L().Info("Connecting event publisher", zap.String("prefix", cfg.Events.ChannelPrefix))
		publisher, err := events.NewRedisPublisher(ctx, cfg.Events.RedisURL, cfg.Events.ChannelPrefix)
		if err != nil {
			return nil, err
		}
		services.Publisher = publisher
		opts = append(opts, database.WithEventPublisher(publisher))
	}

	dbService, err := database.NewService(ctx, cfg.Database, opts...)
	if err != nil {
		services.Close()
		return nil, err
	}
	services.DbService = dbService

	return services, nil
}

// InitializeDatabaseOnly initializes just the engine without event fan-out.
// Useful for read-only operations like audit reports
func InitializeDatabaseOnly(ctx context.Context, cfg *models.Config) (*database.Service, error) {
	return database.NewService(ctx, cfg.Database)
}

func (cs *Services) Close() {
	if cs.DbService != nil {
		cs.DbService.Close()
	}
	if cs.Publisher != nil {
		cs.Publisher.Close()
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
