/**
 * @description
 * This is the main entry point for the banking-service. It is responsible for
 * initializing all components of the service, including configuration, database
 * connection, message broker, cache, repositories, the transfer engine, the
 * settlement scheduler, and the HTTP server. It wires everything together and
 * starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/redis/go-redis/v9: Cache client for the read projection.
 * - github.com/joho/godotenv: Optional .env loading for local development.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/lumenbank/banking-service/internal/api"
	"github.com/lumenbank/banking-service/internal/app"
	"github.com/lumenbank/banking-service/internal/config"
	"github.com/lumenbank/banking-service/internal/store"
	rmrabbit "github.com/lumenbank/banking-service/pkg/rabbitmq"
)

func main() {
	// Load a local .env file if one exists, then the full configuration.
	_ = godotenv.Load()
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.InternalAPIKey) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"internal api key must be configured\" env=INTERNAL_API_KEY")
	}

	log.Printf("level=info component=bootstrap msg=\"starting banking-service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the RabbitMQ producer; a broker outage at startup degrades to
	// a warning fallback instead of preventing boot.
	var publisher rmrabbit.Publisher
	rabbitProducer, err := rmrabbit.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		publisher = &rmrabbit.EventProducerFallback{}
	} else {
		defer rabbitProducer.Close()
		publisher = rabbitProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Connect Redis for the balance read projection. The projection degrades to
	// store reads when the cache is unavailable.
	var redisClient *redis.Client
	if strings.TrimSpace(cfg.RedisURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"redis url missing; balance projection served from store\" env=REDIS_URL")
	} else {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; balance projection served from store\" err=%v", parseErr)
		} else {
			redisClient = redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelPing()
			if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; balance projection served from store\" err=%v", pingErr)
				redisClient.Close()
				redisClient = nil
			} else {
				defer redisClient.Close()
				log.Println("level=info component=bootstrap msg=\"redis connected\"")
			}
		}
	}

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// Read projection over the repository.
	projection := app.NewProjection(redisClient, repository, time.Duration(cfg.ProjectionTTLSeconds)*time.Second)

	// Admin notification recipient; unset leaves admin notices unrouted.
	adminUserID := uuid.Nil
	if trimmed := strings.TrimSpace(cfg.AdminUserID); trimmed != "" {
		parsed, parseErr := uuid.Parse(trimmed)
		if parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"invalid ADMIN_USER_ID; admin notifications unrouted\" value=%q err=%v", trimmed, parseErr)
		} else {
			adminUserID = parsed
		}
	}
	dispatcher := app.NewDispatcher(publisher, adminUserID)

	// Core business components.
	engine := app.NewEngine(repository, dispatcher, projection, cfg.AdminAlertThreshold, cfg.UnverifiedTransferLimit)
	service := app.NewService(repository, projection)

	// Broker consumers: account.opened card issuance and cross-instance
	// projection invalidation. A broker outage degrades these features.
	rabbitConsumer, err := rmrabbit.NewConsumer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq consumer unavailable; card auto-issue disabled\" err=%v", err)
	} else {
		defer rabbitConsumer.Close()
		eventConsumer := app.NewEventConsumer(service, projection)
		if err := eventConsumer.Start(rabbitConsumer, cfg.AccountEventQueue, cfg.MovementEventQueue); err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"event consumer start failed\" err=%v", err)
		}
		log.Println("level=info component=bootstrap msg=\"event consumer started\"")
	}

	// Settlement sweeper on the configured cron schedule.
	sweeper := app.NewSweeper(engine, repository, time.Duration(cfg.SettlementDelaySeconds)*time.Second)
	scheduler, err := app.StartScheduler(sweeper, cfg.SettlementSweepSchedule)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"scheduler start failed\" err=%v", err)
	}
	defer scheduler.Stop()

	// Initialize the API handlers and router.
	handlers := api.NewHandlers(engine, service)
	router := api.Routes(handlers, cfg.AuthJWKSURL, cfg.InternalAPIKey)

	// Start the HTTP server.
	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
