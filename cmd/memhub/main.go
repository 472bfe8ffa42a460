package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jordanhubbard/memhub/internal/api"
	"github.com/jordanhubbard/memhub/internal/auth"
	"github.com/jordanhubbard/memhub/internal/cache"
	"github.com/jordanhubbard/memhub/internal/database"
	"github.com/jordanhubbard/memhub/internal/memory"
	"github.com/jordanhubbard/memhub/internal/messagebus"
	"github.com/jordanhubbard/memhub/internal/registry"
	"github.com/jordanhubbard/memhub/internal/telemetry"
	"github.com/jordanhubbard/memhub/pkg/config"
)

const version = "0.1.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	showHelp := flag.Bool("help", false, "Show help message")
	flag.Parse()

	if *showHelp {
		printHelp()
		return
	}

	if *showVersion {
		fmt.Printf("memhub v%s\n", version)
		return
	}

	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		log.Fatalf("failed to load config from %s: %v", *configPath, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Telemetry.Enabled {
		shutdownTelemetry, err := telemetry.InitTelemetry(runCtx, "memhub", cfg.Telemetry.Endpoint)
		if err != nil {
			log.Fatalf("failed to initialize telemetry: %v", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownTelemetry(ctx)
		}()
	}

	db, err := openDatabase(cfg)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	reg, err := buildRegistry(cfg, db)
	if err != nil {
		log.Fatalf("failed to build project registry: %v", err)
	}
	defer reg.Close()

	var authManager *auth.Manager
	if cfg.Auth.Enabled {
		authManager = auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
		registerAgentKeys(authManager)
	}

	var responseCache cache.Cache
	if cfg.Cache.Enabled {
		responseCache, err = openCache(runCtx, cfg)
		if err != nil {
			log.Fatalf("failed to open cache: %v", err)
		}
		defer responseCache.Close()
	}

	var events *messagebus.Publisher
	if cfg.Events.Enabled {
		events, err = messagebus.NewPublisher(messagebus.Config{
			URL:        cfg.Events.URL,
			StreamName: cfg.Events.StreamName,
		})
		if err != nil {
			log.Fatalf("failed to connect to NATS: %v", err)
		}
		defer events.Close()
	}

	engine := memory.NewEngine(db)
	composer := memory.NewComposer(engine)
	server := api.NewServer(db, engine, composer, reg, authManager, responseCache, events, cfg)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("http server error: %v", err)
		}
		return
	case sig := <-sigCh:
		log.Printf("received %s, shutting down", sig)
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

func openDatabase(cfg *config.Config) (*database.Database, error) {
	switch cfg.Database.Type {
	case "postgres":
		return database.NewPostgres(cfg.Database.DSN)
	case "sqlite", "":
		if dir := filepath.Dir(cfg.Database.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
		return database.New(cfg.Database.Path)
	default:
		return nil, fmt.Errorf("unknown database type %q", cfg.Database.Type)
	}
}

// buildRegistry seeds project scopes from the config, the registry file and
// the projects already present in the store, then optionally watches the
// file for edits.
func buildRegistry(cfg *config.Config, db *database.Database) (*registry.Registry, error) {
	reg := registry.New(cfg.Registry.Projects)

	known, err := db.ListProjectIDs()
	if err != nil {
		return nil, err
	}
	reg.AddAll(known)

	if cfg.Registry.Path != "" {
		if err := reg.LoadFile(cfg.Registry.Path); err != nil {
			return nil, err
		}
		if cfg.Registry.Watch {
			if err := reg.Watch(); err != nil {
				log.Printf("[REGISTRY] Not watching %s: %v", cfg.Registry.Path, err)
			}
		}
	}

	if reg.Len() == 0 {
		return nil, fmt.Errorf("no projects registered; set registry.projects or registry.path")
	}
	return reg, nil
}

// registerAgentKeys loads MEMHUB_AGENT_KEYS, a comma-separated list of
// agentId:key pairs, into the auth manager.
func registerAgentKeys(m *auth.Manager) {
	raw := os.Getenv("MEMHUB_AGENT_KEYS")
	if raw == "" {
		return
	}
	for _, pair := range strings.Split(raw, ",") {
		agentID, key, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok {
			log.Printf("[AUTH] Skipping malformed agent key pair %q", pair)
			continue
		}
		if err := m.RegisterAgentKey(agentID, key); err != nil {
			log.Printf("[AUTH] Failed to register agent %s: %v", agentID, err)
		}
	}
}

func openCache(ctx context.Context, cfg *config.Config) (cache.Cache, error) {
	switch cfg.Cache.Backend {
	case "redis":
		return cache.NewRedisCache(ctx, cfg.Cache.RedisURL, cfg.Cache.TTL)
	case "memory", "":
		return cache.NewMemoryCache(cfg.Cache.TTL), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}

func printHelp() {
	fmt.Println(`memhub - shared memory service for delivery agents

Usage:
  memhub [flags]

Flags:
  -config string   Path to configuration file (default "config.yaml")
  -version         Show version information
  -help            Show this help message

Environment:
  MEMHUB_DB_PATH        SQLite database path (forces sqlite backend)
  MEMHUB_DB_DSN         Postgres DSN (forces postgres backend)
  MEMHUB_API_HOST       Listen host
  MEMHUB_API_PORT       Listen port
  MEMHUB_JWT_SECRET     Enables auth with the given signing secret
  MEMHUB_AGENT_KEYS     Comma-separated agentId:key pairs for login
  MEMHUB_NATS_URL       Enables event publishing to NATS
  MEMHUB_REDIS_URL      Enables the Redis response cache
  MEMHUB_OTEL_ENDPOINT  Enables OTLP trace export`)
}
