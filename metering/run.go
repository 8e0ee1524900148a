// Copyright 2025 RentStack
// SPDX-License-Identifier: BUSL-1.1

package metering

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"rentstack/platform/metering/cost"
	"rentstack/platform/metering/governance"
	"rentstack/platform/metering/ledger"
	"rentstack/platform/metering/llm"
	"rentstack/platform/metering/llm/anthropic"
	"rentstack/platform/metering/quota"
	"rentstack/platform/metering/stats"
)

// Run starts the metering service and blocks until shutdown.
func Run() error {
	log.Println("Starting RentStack AI metering service...")

	cfg, err := LoadConfig()
	if err != nil {
		return err
	}

	repo, store, err := buildStorage(cfg)
	if err != nil {
		return err
	}

	if err := store.SeedDefaults(context.Background()); err != nil {
		return fmt.Errorf("failed to seed feature configs: %w", err)
	}

	catalog, err := buildCatalog(cfg)
	if err != nil {
		return err
	}

	counter, redisClient := buildCounter(cfg)
	if redisClient != nil {
		defer redisClient.Close()
	}

	snapshot := governance.NewSnapshot(store, cfg.SnapshotRefresh())
	enforcer := quota.NewEnforcer(snapshot, repo, catalog, counter)
	provider := buildProvider(cfg)
	service := NewService(snapshot, store, repo, enforcer, catalog, provider)
	engine := stats.NewEngine(repo, snapshot)
	handler := NewHandler(service, engine, store, snapshot, catalog, repo)

	// keep the hot-path snapshot warm in the background
	refreshCtx, stopRefresh := context.WithCancel(context.Background())
	defer stopRefresh()
	go refreshSnapshot(refreshCtx, snapshot)

	r := mux.NewRouter()
	handler.RegisterRoutes(r)
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"}, // Configure for production
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: c.Handler(r),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Metering service listening on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Printf("Received %s, shutting down", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// buildStorage opens PostgreSQL when DATABASE_URL is set, falling back to
// in-memory storage for development.
func buildStorage(cfg *Config) (ledger.Repository, governance.Store, error) {
	if cfg.DatabaseURL == "" {
		log.Println("DATABASE_URL not set, using in-memory storage (dev mode)")
		return ledger.NewMemoryRepository(), governance.NewMemoryStore(), nil
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := ledger.Migrate(db); err != nil {
		return nil, nil, err
	}
	if err := governance.Migrate(db); err != nil {
		return nil, nil, err
	}

	log.Println("PostgreSQL connected")
	return ledger.NewPostgresRepository(db), governance.NewPostgresStore(db), nil
}

// buildCounter connects Redis for rate windows when configured. The counter
// is advisory, so a failed connection degrades to ledger counting rather
// than blocking startup.
func buildCounter(cfg *Config) (quota.WindowCounter, *redis.Client) {
	if cfg.RedisURL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Printf("Invalid REDIS_URL, rate windows fall back to the ledger: %v", err)
		return nil, nil
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Printf("Redis unreachable, rate windows fall back to the ledger: %v", err)
		_ = client.Close()
		return nil, nil
	}

	log.Println("Redis connected")
	return quota.NewRedisCounter(client), client
}

// buildCatalog loads model pricing from file, environment, or defaults.
func buildCatalog(cfg *Config) (*cost.Catalog, error) {
	if cfg.PricingConfigFile != "" {
		catalog, err := cost.LoadCatalogFromFile(cfg.PricingConfigFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load pricing config: %w", err)
		}
		log.Printf("Pricing loaded from %s", cfg.PricingConfigFile)
		return catalog, nil
	}
	return cost.LoadCatalogFromEnv(), nil
}

// buildProvider wires the Anthropic provider when an API key is present.
func buildProvider(cfg *Config) llm.Provider {
	if cfg.Anthropic.APIKey == "" {
		log.Println("ANTHROPIC_API_KEY not set, invocations will be rejected")
		return nil
	}

	timeout := time.Duration(cfg.Anthropic.TimeoutSeconds) * time.Second
	provider, err := anthropic.NewProvider(anthropic.Config{
		APIKey:  cfg.Anthropic.APIKey,
		BaseURL: cfg.Anthropic.BaseURL,
		Model:   cfg.Anthropic.Model,
		Timeout: timeout,
	})
	if err != nil {
		log.Printf("Failed to build Anthropic provider: %v", err)
		return nil
	}
	return provider
}

func refreshSnapshot(ctx context.Context, snapshot *governance.Snapshot) {
	ticker := time.NewTicker(governance.DefaultRefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := snapshot.Refresh(ctx); err != nil {
				log.Printf("Snapshot refresh failed: %v", err)
			}
		}
	}
}
