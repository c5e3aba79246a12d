package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"log/slog"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"webtap/internal/bus"
	"webtap/internal/cache"
	"webtap/internal/config"
	"webtap/internal/gateway"
	server "webtap/internal/http"
	"webtap/internal/llm"
	"webtap/internal/migrate"
	"webtap/internal/monitor"
	"webtap/internal/pipeline"
	"webtap/internal/progress"
	"webtap/internal/scraper"
	"webtap/internal/state"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	role := flag.String("role", "all", "process role: api|worker|all")
	flag.Parse()

	if *role != "api" && *role != "worker" && *role != "all" {
		log.Fatalf("invalid role: %s (expected api|worker|all)", *role)
	}

	cfg := config.Load(*configPath)

	// Set up logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{}))

	// State store: Postgres when configured, in-memory otherwise.
	var st state.Store
	var db *sql.DB
	if cfg.Database.DSN != "" {
		// Run migrations on a short-lived connection
		if err := migrate.Run(cfg.Database.DSN); err != nil {
			log.Fatalf("migrations failed: %v", err)
		}

		var err error
		db, err = sql.Open("pgx", cfg.Database.DSN)
		if err != nil {
			log.Fatalf("open db failed: %v", err)
		}
		// Basic pool settings; adjust as needed
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)

		st = state.NewPostgresStore(db)
	} else {
		logger.Warn("no database dsn configured, using in-memory state")
		st = state.NewMemoryStore()
	}

	// Progress stream: Redis when configured, in-memory otherwise.
	var stream progress.Stream
	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("invalid redis url: %v", err)
		}
		rdb = redis.NewClient(opt)
		stream = progress.NewRedisStream(rdb)
	} else {
		logger.Warn("no redis url configured, using in-memory progress stream")
		stream = progress.NewMemoryStream()
	}

	eng := bus.NewEngine(cfg.Bus.MaxRetries, logger)
	defer eng.Close()

	caches := cache.New(st, logger)

	rootCtx := context.Background()

	// The bus is in-process, so every role registers the pipeline stages:
	// an api process that published into an engine with no subscribers
	// would leave every job queued forever. The role only decides whether
	// the scheduler and the HTTP listener run.
	simple := scraper.NewHTTPScraper(cfg.Scraper.RespectRobots)
	if cfg.Scraper.UserAgent != "" {
		simple.UserAgent = cfg.Scraper.UserAgent
	}

	var heavy scraper.Scraper
	if cfg.Rod.Enabled {
		heavy = scraper.NewRodScraper(cfg.Rod.BrowserURL)
	}

	stages := &pipeline.Stages{
		Store:    st,
		Bus:      eng,
		Progress: stream,
		Cache:    caches,
		Simple:   simple,
		Heavy:    heavy,
		LLM:      llm.NewClient(cfg.LLM),
		Logger:   logger,
	}
	stages.Register()

	if (*role == "worker" || *role == "all") && cfg.Scheduler.Enabled {
		sched := &monitor.Scheduler{
			Store:    st,
			Bus:      eng,
			Logger:   logger,
			Interval: time.Duration(cfg.Scheduler.TickMinutes) * time.Minute,
		}
		go sched.Run(rootCtx)
	}

	if *role == "worker" {
		logger.Info("worker started")
		select {}
	}

	gw := &gateway.Gateway{
		Store:       st,
		Bus:         eng,
		Cache:       caches,
		Progress:    stream,
		Logger:      logger,
		SyncTimeout: time.Duration(cfg.Gateway.SyncTimeoutSeconds) * time.Second,
		PollEvery:   time.Duration(cfg.Gateway.PollIntervalMs) * time.Millisecond,
	}

	s := server.NewServer(cfg, server.Deps{
		Gateway:  gw,
		Store:    st,
		Progress: stream,
		DB:       db,
		Redis:    rdb,
	}, logger)
	if err := s.Listen(); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
