/**
 * @description
 * This is the main entry point for the earnings-service. It is responsible for
 * initializing all components of the service, including configuration, database connection,
 * external API clients, message brokers, repositories, the core application service,
 * and the HTTP server. It wires everything together and starts the service.
 *
 * Background loops started here:
 * - settlement promotion: moves matured pending funds to available
 * - reconciliation sweep: replays ledgers and halts drifted accounts
 * - stale payout sweep: probes the gateway for requests stuck in processing
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/go-chi/chi/v5: For HTTP routing.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - internal/api, internal/app, internal/config, internal/fees, internal/store: Internal packages.
 * - pkg/gatewayclient: Client for the payout gateway API.
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

	"github.com/creatorhub/earnings-service/internal/api"
	"github.com/creatorhub/earnings-service/internal/app"
	"github.com/creatorhub/earnings-service/internal/config"
	"github.com/creatorhub/earnings-service/internal/fees"
	"github.com/creatorhub/earnings-service/internal/store"
	"github.com/creatorhub/earnings-service/pkg/gatewayclient"
	rmrabbit "github.com/creatorhub/earnings-service/pkg/rabbitmq"
)

func main() {
	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.InternalAPIKey) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"internal api key must be configured\" env=INTERNAL_API_KEY")
	}
	if strings.TrimSpace(cfg.GatewayWebhookSecret) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"gateway webhook secret must be configured\" env=GATEWAY_WEBHOOK_SECRET")
	}

	log.Printf("level=info component=bootstrap msg=\"starting earnings-service\" port=%s settlement_delay_hours=%d", cfg.ServerPort, cfg.SettlementDelayHours)

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

	// Initialize the RabbitMQ producer to publish events.
	var producer rmrabbit.Publisher
	eventProducer, err := rmrabbit.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		producer = &rmrabbit.EventProducerFallback{}
	} else {
		defer eventProducer.Close()
		producer = eventProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Initialize the client for the payout gateway.
	gatewayClient := gatewayclient.NewClient(cfg.GatewayAPIBaseURL, cfg.GatewayAPIKey)

	// Redis backs the distributed payout rate limiter. A missing Redis only
	// disables throttling; it never blocks startup.
	var redisClient *redis.Client
	if strings.TrimSpace(cfg.RedisURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"redis url missing; payout rate limiting disabled\" env=REDIS_URL")
	} else {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; payout rate limiting disabled\" err=%v", parseErr)
		} else {
			redisClient = redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelPing()
			if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; payout rate limiting disabled\" err=%v", pingErr)
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

	// Fee schedule: the per-type rates are fixed; only the fallback platform
	// rate is tunable at deploy time.
	schedule := fees.DefaultSchedule()
	schedule.DefaultPlatformBps = int64(cfg.DefaultPlatformFeeBps)
	calculator := fees.NewCalculator(schedule)

	// Initialize the core application service with its dependencies.
	earningsService := app.NewService(
		repository,
		calculator,
		gatewayClient,
		producer,
		app.Config{
			SettlementDelay: time.Duration(cfg.SettlementDelayHours) * time.Hour,
			MinPayout: map[string]int64{
				"TZS": cfg.MinPayoutTZS,
				"USD": cfg.MinPayoutUSD,
			},
			GatewayTimeout:  time.Duration(cfg.GatewayTimeoutSeconds) * time.Second,
			ConflictRetries: cfg.BalanceConflictRetries,
		},
	)

	var limiter *app.RedisPayoutRateLimiter
	if redisClient != nil {
		limiter = app.NewRedisPayoutRateLimiter(redisClient, cfg.RedisRateLimitPrefix)
	}

	// Initialize the API handlers.
	earningsHandlers := api.NewEarningsHandlers(
		earningsService,
		limiter,
		cfg.PayoutRateLimitPerHour,
		time.Hour,
		cfg.GatewayWebhookSecret,
	)

	// Set up the HTTP router and define the API routes.
	router := chi.NewRouter()
	authCfg := api.AuthConfig{
		JWKSURL:  cfg.AuthJWKSURL,
		Audience: cfg.AuthAudience,
		Issuer:   cfg.AuthIssuer,
	}
	router.Mount("/earnings", api.EarningsRoutes(earningsHandlers, authCfg, cfg.InternalAPIKey))

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	// Wire up the bus consumers: payment confirmations feed the ledger and
	// gateway transfer updates back up the HTTP webhook.
	paymentConsumer := app.NewPaymentConfirmedConsumer(earningsService)
	transferConsumer := app.NewTransferStatusConsumer(earningsService)

	rabbitConsumer, err := rmrabbit.NewConsumer(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"rabbitmq consumer init failed\" err=%v", err)
	}
	defer rabbitConsumer.Close()

	bindings := map[string]func([]byte) bool{
		"sale.payment.confirmed":     paymentConsumer.HandleMessage,
		"gateway.transfer.completed": transferConsumer.HandleMessage,
		"gateway.transfer.failed":    transferConsumer.HandleMessage,
		"gateway.transfer.reversed":  transferConsumer.HandleMessage,
	}

	if err := rabbitConsumer.ConsumeWithBindings("creatorhub.events", cfg.EventsQueue, bindings); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"event consumer start failed\" err=%v", err)
	}

	// Background loops. All stop when rootCtx is cancelled at shutdown.
	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	go runLoop(rootCtx, "settlement", time.Duration(cfg.SettlementIntervalMinutes)*time.Minute, func(ctx context.Context) {
		if _, err := earningsService.PromoteMaturedFunds(ctx); err != nil {
			log.Printf("level=error component=settlement msg=\"promotion pass failed\" err=%v", err)
		}
	})

	go runLoop(rootCtx, "reconciler", time.Duration(cfg.ReconcileIntervalMinutes)*time.Minute, func(ctx context.Context) {
		if _, err := earningsService.ReconcileAll(ctx); err != nil {
			log.Printf("level=error component=reconciler msg=\"reconciliation pass failed\" err=%v", err)
		}
	})

	go runLoop(rootCtx, "stale_payouts", time.Duration(cfg.StalePayoutThresholdMin)*time.Minute, func(ctx context.Context) {
		if err := earningsService.SweepStaleProcessing(ctx, time.Duration(cfg.StalePayoutThresholdMin)*time.Minute); err != nil {
			log.Printf("level=error component=reconciler msg=\"stale payout sweep failed\" err=%v", err)
		}
	})

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

	cancelRoot()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}

// runLoop runs fn immediately and then on every tick until ctx is cancelled.
func runLoop(ctx context.Context, name string, interval time.Duration, fn func(context.Context)) {
	log.Printf("level=info component=%s msg=\"background loop started\" interval=%s", name, interval)
	fn(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Printf("level=info component=%s msg=\"background loop stopped\"", name)
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}
