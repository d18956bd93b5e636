package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"roadwatch-event-engine/internal/api"
	"roadwatch-event-engine/internal/cache"
	"roadwatch-event-engine/internal/config"
	"roadwatch-event-engine/internal/metrics"
	"roadwatch-event-engine/internal/services/filtering"
	"roadwatch-event-engine/internal/services/messaging"
	"roadwatch-event-engine/internal/services/postprocessing"
	"roadwatch-event-engine/internal/services/processing"
	"roadwatch-event-engine/internal/services/review"
	"roadwatch-event-engine/internal/services/suppression"
	"roadwatch-event-engine/internal/store"
)

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Load configuration
	cfg := config.Load()

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("Invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("version", cfg.Version).
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Msg("Starting event engine")

	metrics.Register()

	db, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Postgres")
	}
	if err := store.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate database")
	}

	coolingCache := newCoolingCache(cfg)

	broker, err := messaging.NewService(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to NATS")
	}

	events := store.NewEventStore(db)
	filterConfigs := store.NewFilterConfigStore(db, coolingCache, cfg.ConfigCacheTTL)
	masterData := store.NewMasterDataStore(db, coolingCache, cfg.ConfigCacheTTL)

	processor := processing.NewService(
		events,
		masterData,
		filtering.NewPipeline(filterConfigs, coolingCache),
		suppression.NewSuppressor(coolingCache, cfg.RetriggerEnabled, cfg.RetriggerEventTypes),
		broker,
		review.NewPusher(cfg.DQServiceURL, cfg.DQServiceTimeout),
		postprocessing.NewService(events),
		coolingCache,
		cfg.ReplayGuardTTL,
		cfg.WorkerCount,
		cfg.SideEffectQueue,
	)

	// Create and start server
	server := api.NewServer(cfg, processor)
	if err := server.Setup(); err != nil {
		log.Fatal().Err(err).Msg("Failed to set up server")
	}

	// Start server in goroutine
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutdown signal received")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Stop(); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := processor.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Side-effect pool did not drain in time")
	}
	if err := broker.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("NATS shutdown failed")
	}
	log.Info().Msg("Shutdown complete")
}

// newCoolingCache connects the Redis cooling cache, falling back to the
// in-memory cache when no address is configured.
func newCoolingCache(cfg *config.Config) cache.Cache {
	if cfg.RedisAddr == "" {
		log.Warn().Msg("No Redis address configured, using in-memory cooling cache")
		return cache.NewMemoryCache()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("Failed to connect to Redis")
	}
	log.Info().Str("addr", cfg.RedisAddr).Msg("Redis connection established")
	return cache.NewRedisCache(client)
}
