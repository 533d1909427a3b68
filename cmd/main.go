/**
 * @description
 * This is the main entry point for the payments-service. It is responsible for
 * initializing all components of the service, including configuration, database connection,
 * the township registry, the payment gateway client, message brokers, repositories,
 * the core application service, and the HTTP server. It wires everything together
 * and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/go-chi/chi/v5: For HTTP routing.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/redis/go-redis/v9: Optional rate-limit backend.
 * - github.com/robfig/cron/v3: Scheduled expiry of stale pending payments.
 * - internal/api, internal/app, internal/config, internal/store, internal/township: Internal packages.
 * - pkg/ozow: Client for the Ozow payment gateway.
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

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/myyard/payments-service/internal/api"
	"github.com/myyard/payments-service/internal/app"
	"github.com/myyard/payments-service/internal/config"
	"github.com/myyard/payments-service/internal/store"
	"github.com/myyard/payments-service/internal/township"
	"github.com/myyard/payments-service/pkg/ozow"
	myrabbit "github.com/myyard/payments-service/pkg/rabbitmq"
)

func main() {
	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}

	log.Printf("level=info component=bootstrap msg=\"starting payments-service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}
	poolConfig.MaxConns = 50
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	// Disable prepared statement caching to prevent conflicts behind poolers.
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Load the embedded township registry.
	registry, err := township.NewRegistry()
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"township registry load failed\" err=%v", err)
	}
	log.Printf("level=info component=bootstrap msg=\"township registry loaded\" records=%d", registry.Len())

	// Initialize the RabbitMQ producer to publish payment events. RabbitMQ being
	// down must not block startup; the fallback logs and drops events.
	var eventProducer myrabbit.Publisher
	if producer, prodErr := myrabbit.NewEventProducer(cfg.RabbitMQURL); prodErr != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", prodErr)
		eventProducer = &myrabbit.EventProducerFallback{}
	} else {
		defer producer.Close()
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
		eventProducer = producer
	}

	// Initialize the Ozow gateway client. Missing credentials should not prevent
	// boot; initiation requests will answer 503 until the gateway is configured.
	gateway := ozow.NewClient(ozow.Config{
		SiteCode:   cfg.OzowSiteCode,
		PrivateKey: cfg.OzowPrivateKey,
		APIKey:     cfg.OzowAPIKey,
		RequestURL: cfg.OzowAPIURL,
		AppBaseURL: cfg.AppBaseURL,
		IsTest:     cfg.OzowIsTest,
	})
	if !gateway.Config.Configured() {
		log.Println("level=warn component=bootstrap msg=\"ozow gateway not configured; payment initiation disabled\"")
	}

	// Optional Redis-backed rate limiting for payment initiation.
	var redisClient *redis.Client
	if cfg.InitiationRateLimitPerMinute > 0 {
		if strings.TrimSpace(cfg.RedisURL) == "" {
			log.Println("level=warn component=bootstrap msg=\"redis url missing; initiation rate limiting disabled\" env=REDIS_URL")
		} else {
			redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
			if parseErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; initiation rate limiting disabled\" err=%v", parseErr)
			} else {
				redisClient = redis.NewClient(redisOptions)
				pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancelPing()
				if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
					log.Printf("level=warn component=bootstrap msg=\"redis ping failed; initiation rate limiting disabled\" err=%v", pingErr)
					redisClient.Close()
					redisClient = nil
				} else {
					defer redisClient.Close()
					log.Println("level=info component=bootstrap msg=\"redis connected\"")
				}
			}
		}
	}

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// Initialize the core application service with its dependencies.
	paymentService := app.NewService(
		repository,
		registry,
		gateway,
		eventProducer,
		time.Duration(cfg.PendingExpiryHours)*time.Hour,
	)
	if redisClient != nil {
		paymentService.SetInitiationRateLimiter(
			app.NewRedisInitiationRateLimiter(redisClient, cfg.RedisRateLimitPrefix),
			cfg.InitiationRateLimitPerMinute,
		)
	}

	// Schedule the stale-pending expiry sweep.
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.PendingExpirySchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		paymentService.ExpireStalePendingPayments(ctx)
	}); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"expiry schedule invalid\" schedule=%q err=%v", cfg.PendingExpirySchedule, err)
	}
	scheduler.Start()
	defer scheduler.Stop()
	log.Printf("level=info component=bootstrap msg=\"pending expiry job scheduled\" schedule=%q window_hours=%d", cfg.PendingExpirySchedule, cfg.PendingExpiryHours)

	// Initialize the API handlers and the HTTP router.
	paymentHandlers := api.NewPaymentHandlers(paymentService)
	router := chi.NewRouter()
	router.Mount("/api", api.PaymentRoutes(paymentHandlers, cfg.SessionTokenSecret))

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
