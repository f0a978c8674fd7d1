package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"casguard/backend/internal/api/handler"
	"casguard/backend/internal/blacklist"
	"casguard/backend/internal/config"
	"casguard/backend/internal/detector"
	"casguard/backend/internal/dispatch"
	"casguard/backend/internal/feed"
	"casguard/backend/internal/reputation"
	"casguard/backend/internal/scheduler"
	"casguard/backend/internal/storage"
	"casguard/backend/internal/telegram"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupDependencies(cfg *config.Config) (*gorm.DB, *redis.Client) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("Failed to connect PostgreSQL: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Fatalf("Failed to connect Redis: %v", err)
	}

	log.Println("Database and Redis connections established.")
	return db, rdb
}

func main() {
	log.Println("Starting CAS Guard...")

	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Error loading .env file")
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	db, rdb := setupDependencies(cfg)
	s := storage.NewStorageService(db, rdb)
	if err := s.Migrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Detection pipeline.
	index := blacklist.NewIndex()
	refresher := blacklist.NewRefresher(index, cfg.ExportURL, cfg.LolsURL, cfg.HTTPTimeout)
	cache := reputation.NewRedisCache(rdb, cfg.CacheTTL)
	checker := reputation.NewChecker(cache, reputation.NewClient(cfg.CASBaseURL, cfg.HTTPTimeout))
	engine := detector.NewEngine(index, checker)

	hub := feed.NewHub()
	go hub.Run()

	botService, err := telegram.NewBotService(cfg, s, engine, nil, index)
	if err != nil {
		log.Fatalf("Failed to start Telegram bot: %v", err)
	}
	transport := telegram.NewTransport(botService.BotAPI)
	audit := dispatch.NewAuditFile(cfg.BannedLogPath)
	dispatcher := dispatch.NewDispatcher(s, transport, audit, hub, cfg.RecheckInterval)
	botService.Actioner = dispatcher

	sched := scheduler.NewScheduler(s, refresher, engine, dispatcher, transport,
		cfg.SourceRefreshInterval, cfg.RecheckInterval, cfg.SeenTTL)
	sched.Start(ctx)

	go botService.Run(ctx)

	if cfg.AdminEnabled {
		r := gin.Default()
		h := handler.NewHandler(s, hub, index, cfg)
		h.RegisterRoutes(r)

		server := &http.Server{
			Addr:           cfg.AdminAddr,
			Handler:        r,
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   10 * time.Second,
			MaxHeaderBytes: 1 << 20,
		}
		go func() {
			log.Printf("Admin dashboard listening on %s", cfg.AdminAddr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Admin server failed: %v", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			server.Shutdown(shutdownCtx)
		}()
	}

	<-ctx.Done()
	log.Println("Shutting down.")
}
