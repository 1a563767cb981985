package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/caelusway/bio-sync-bot-sub000/internal/classifier"
	"github.com/caelusway/bio-sync-bot-sub000/internal/discord"
	"github.com/caelusway/bio-sync-bot-sub000/internal/discovery"
	"github.com/caelusway/bio-sync-bot-sub000/internal/ingest"
	"github.com/caelusway/bio-sync-bot-sub000/internal/models"
	"github.com/caelusway/bio-sync-bot-sub000/internal/registry"
	"github.com/caelusway/bio-sync-bot-sub000/internal/storage"
	"github.com/caelusway/bio-sync-bot-sub000/internal/throttle"
	"github.com/caelusway/bio-sync-bot-sub000/pkg/config"
)

const shutdownGrace = 15 * time.Second

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err), zap.String("path", "config.yaml"))
	}

	// Initialize storage
	var store storage.Storage
	if cfg.Database.UseInMemory {
		logger.Info("Using in-memory storage")
		store = storage.NewMemoryStorage()
	} else {
		logger.Info("Using PostgreSQL storage")
		dbConfig := storage.DatabaseConfig{
			Host:        cfg.Database.Host,
			Port:        cfg.Database.Port,
			User:        cfg.Database.User,
			Password:    cfg.Database.Password,
			DBName:      cfg.Database.DBName,
			SSLMode:     cfg.Database.SSLMode,
			UseInMemory: cfg.Database.UseInMemory,
		}
		store, err = storage.NewPostgresStorage(dbConfig, logger)
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
	}
	defer store.Close()

	// Seed the live configuration map
	reg := registry.New()
	reg.SetCategories(categoryRules(cfg, logger))

	// Throttle engine gating every outbound platform call
	engine := throttle.New(throttle.Config{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		BaseDelay:         cfg.RateLimit.BaseDelay,
		BatchSize:         cfg.RateLimit.BatchSize,
		BatchDelay:        cfg.RateLimit.BatchDelay,
		Retry: throttle.RetryPolicy{
			MaxAttempts: cfg.RateLimit.RetryAttempts,
			BackoffBase: cfg.RateLimit.BackoffBase,
			BackoffCap:  cfg.RateLimit.BackoffCap,
		},
	}, logger)

	// Connect to the platform; this is the only fatal platform error
	gateway, err := discord.New(cfg.Discord.Token, cfg.Discord.GuildID, logger)
	if err != nil {
		logger.Fatal("Failed to connect to Discord", zap.Error(err))
	}
	defer gateway.Close()

	// Optional GPT topic classifier for channel names the keyword table
	// cannot place
	var topics classifier.Classifier
	if cfg.Classifier.Enabled && cfg.OpenAI.APIKey != "" {
		topics = classifier.NewGPTClassifier(
			cfg.OpenAI.APIKey,
			cfg.OpenAI.Model,
			cfg.OpenAI.MaxTokens,
			cfg.OpenAI.Temperature,
			logger,
		)
	}

	disc := discovery.New(discovery.Config{
		RefreshInterval:   cfg.Discovery.RefreshInterval,
		ArchivedPageLimit: cfg.Discovery.ArchivedPageLimit,
	}, gateway, engine, reg, pinnedChannels(cfg), topics, logger)

	pipeline := ingest.NewPipeline(store, logger)
	router := ingest.NewRouter(reg, gateway, engine, pipeline, disc, logger)
	dispatcher := ingest.NewDispatcher(router, cfg.Ingest.QueueSize, cfg.Ingest.Workers, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gateway.Subscribe(dispatcher.Enqueue)

	dispatcherDone := make(chan struct{})
	go func() {
		dispatcher.Run(ctx)
		close(dispatcherDone)
	}()

	go func() {
		if err := disc.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("Discovery stopped", zap.Error(err))
		}
	}()

	if cfg.Metrics.Enabled {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(map[string]any{
					"status":   "ok",
					"throttle": engine.Status(),
					"channels": reg.Size(),
				})
			})
			logger.Info("Serving metrics", zap.String("addr", cfg.Metrics.Addr))
			if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
				logger.Error("Metrics listener failed", zap.Error(err))
			}
		}()
	}

	logger.Info("Bot running",
		zap.String("guild_id", cfg.Discord.GuildID),
		zap.Int("categories", len(cfg.Categories)),
		zap.Int("pinned_channels", len(cfg.Channels)))

	// Block until shutdown is requested, then stop admitting work and give
	// in-flight events a bounded grace period to drain.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutting down")

	cancel()
	select {
	case <-dispatcherDone:
	case <-time.After(shutdownGrace):
		logger.Warn("Shutdown grace period elapsed, abandoning in-flight events")
	}
}

func categoryRules(cfg *config.Config, logger *zap.Logger) []*models.CategoryRule {
	rules := make([]*models.CategoryRule, 0, len(cfg.Categories))
	for _, seed := range cfg.Categories {
		rule := &models.CategoryRule{
			ID:                seed.ID,
			PhaseTag:          seed.PhaseTag,
			MonitoringEnabled: seed.MonitoringEnabled(),
			IncludePatterns:   seed.Include,
			ExcludePatterns:   seed.Exclude,
		}
		if seed.Topic != "" {
			topic := models.Topic(seed.Topic)
			if models.IsKnownTopic(topic) {
				rule.SemanticTopic = topic
			} else {
				logger.Warn("Ignoring unknown topic override",
					zap.String("category_id", seed.ID),
					zap.String("topic", seed.Topic))
			}
		}
		rules = append(rules, rule)
	}
	return rules
}

func pinnedChannels(cfg *config.Config) []discovery.PinnedChannel {
	pinned := make([]discovery.PinnedChannel, 0, len(cfg.Channels))
	for _, seed := range cfg.Channels {
		pin := discovery.PinnedChannel{
			ID:                seed.ID,
			PhaseTag:          seed.PhaseTag,
			MonitoringEnabled: seed.MonitoringEnabled(),
		}
		if topic := models.Topic(seed.Topic); models.IsKnownTopic(topic) {
			pin.SemanticTopic = topic
		}
		pinned = append(pinned, pin)
	}
	return pinned
}
