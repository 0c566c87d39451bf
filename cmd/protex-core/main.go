package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/clinforge-labs/protex-core/internal/adapters/driven/ai"
	"github.com/clinforge-labs/protex-core/internal/adapters/driven/memory"
	"github.com/clinforge-labs/protex-core/internal/adapters/driven/postgres"
	redisadapter "github.com/clinforge-labs/protex-core/internal/adapters/driven/redis"
	"github.com/clinforge-labs/protex-core/internal/adapters/driven/sqlite"
	"github.com/clinforge-labs/protex-core/internal/adapters/driven/textextract"
	httpadapter "github.com/clinforge-labs/protex-core/internal/adapters/driving/http"
	"github.com/clinforge-labs/protex-core/internal/config"
	"github.com/clinforge-labs/protex-core/internal/core/ports/driven"
	"github.com/clinforge-labs/protex-core/internal/core/services"
	"github.com/clinforge-labs/protex-core/internal/ingest"
	"github.com/clinforge-labs/protex-core/internal/scorers"
)

var version = "dev"

func main() {
	configPath := os.Getenv("PROTEX_CONFIG")
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("protex-core %s starting", version)

	// Context for background components; the HTTP server handles its own
	// shutdown signal.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ===== Cache (Redis if configured, in-process otherwise) =====
	var cache driven.Cache
	var cachePinger httpadapter.Pinger
	if cfg.Redis.Addr != "" {
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Printf("Warning: Redis unreachable (%v), using in-process cache", err)
			_ = client.Close()
			cache = memory.NewCache(time.Minute)
		} else {
			defer client.Close()
			redisCache := redisadapter.NewCache(redisadapter.CacheConfig{Client: client})
			cache = redisCache
			cachePinger = redisCache
			log.Println("Using Redis cache")
		}
	} else {
		cache = memory.NewCache(time.Minute)
		log.Println("Using in-process cache")
	}

	// ===== Job store =====
	var jobStore driven.JobStore
	switch cfg.Database.Driver {
	case "postgres":
		log.Println("Connecting to PostgreSQL...")
		db, err := postgres.Connect(ctx, postgres.DefaultConfig(cfg.Database.URL))
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
		if err := db.InitSchema(ctx); err != nil {
			log.Fatalf("Failed to initialize schema: %v", err)
		}
		jobStore = postgres.NewJobStore(db)
		log.Println("PostgreSQL connected and schema initialized")
	case "sqlite":
		store, err := sqlite.NewJobStore(cfg.Database.Path)
		if err != nil {
			log.Fatalf("Failed to open SQLite job store: %v", err)
		}
		defer store.Close()
		jobStore = store
		log.Printf("Using SQLite job store at %s", cfg.Database.Path)
	case "memory":
		jobStore = memory.NewJobStore()
		log.Println("Using in-memory job store (jobs are lost on restart)")
	}

	// ===== Completer =====
	if cfg.Completer.APIKey == "" {
		log.Fatalf("Completer API key is required (set PROTEX_OPENAI_API_KEY)")
	}
	completer, err := ai.NewOpenAICompleter(ai.CompleterConfig{
		APIKey:            cfg.Completer.APIKey,
		Model:             cfg.Completer.Model,
		BaseURL:           cfg.Completer.BaseURL,
		RequestsPerSecond: cfg.Completer.RequestsPerSecond,
	})
	if err != nil {
		log.Fatalf("Failed to create completer: %v", err)
	}
	defer completer.Close()
	log.Printf("Completer ready (model=%s)", completer.Model())

	// ===== Core services =====
	mapper := services.NewDocumentMapper(services.MapperConfig{Cache: cache})
	windows := services.NewWindowEngine(cache, 24*time.Hour)
	scheduler := services.NewScheduler(services.SchedulerConfig{
		Concurrency: cfg.Jobs.Concurrency,
		JobStore:    jobStore,
	})
	extraction := services.NewExtractionService(services.ExtractionConfig{
		TextExtractors:      []driven.TextExtractor{textextract.NewPDF(), textextract.NewPlainText()},
		Cache:               cache,
		Completer:           completer,
		Scorers:             scorers.NewDefaultRegistry(),
		JobStore:            jobStore,
		Mapper:              mapper,
		Windows:             windows,
		Scheduler:           scheduler,
		JobTimeout:          cfg.JobTimeout(),
		MaxTransientRetries: cfg.Jobs.MaxTransientRetries,
	})

	// ===== Directory ingest (optional) =====
	if cfg.Ingest.Dir != "" {
		watcher, err := ingest.NewWatcher(ingest.WatcherConfig{
			Dir:      cfg.Ingest.Dir,
			Service:  extraction,
			Debounce: cfg.IngestDebounce(),
			Logger:   slog.Default(),
		})
		if err != nil {
			log.Fatalf("Failed to create ingest watcher: %v", err)
		}
		go func() {
			if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
				log.Printf("Ingest watcher stopped: %v", err)
			}
		}()
		log.Printf("Watching %s for documents", cfg.Ingest.Dir)
	}

	// ===== HTTP server =====
	server := httpadapter.NewServer(httpadapter.Config{
		Host:    cfg.Server.Host,
		Port:    cfg.Server.Port,
		Version: version,
	}, extraction, jobStore, cachePinger)

	log.Printf("API server starting on %s:%d", cfg.Server.Host, cfg.Server.Port)
	if err := server.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
