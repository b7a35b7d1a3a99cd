package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storybook-server/internal/config"
	"storybook-server/internal/database"
	httpdelivery "storybook-server/internal/delivery/http"
	"storybook-server/internal/delivery/http/middleware"
	"storybook-server/internal/logger"
	"storybook-server/internal/messaging"
	"storybook-server/internal/metrics"
	"storybook-server/internal/notifier"
	"storybook-server/internal/quota"
	"storybook-server/internal/repository"
	"storybook-server/internal/repository/memory"
	"storybook-server/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout    = 10 * time.Second
	rabbitMaxRetries   = 5
	rabbitRetryDelay   = 5 * time.Second
	submissionLockKeys = "storybook:submit_lock"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading configuration from the environment")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger, err := logger.New(logger.Config{Level: cfg.LogLevel, Encoding: cfg.LogEncoding})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = appLogger.Sync() }()
	cfg.LogSummary(appLogger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, appLogger); err != nil {
		appLogger.Error("Server stopped with error", zap.Error(err))
		_ = appLogger.Sync()
		os.Exit(1)
	}
	appLogger.Info("Server exited")
}

type optionStore interface {
	service.StoryOptionLookup
	httpdelivery.StoryOptionLister
}

type accountStore interface {
	service.EntitlementReader
	service.EntitlementWriter
}

type storage struct {
	generations service.GenerationRepository
	options     optionStore
	ledger      service.WebhookEventLedger
	accounts    accountStore
	close       func()
}

func setupStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*storage, error) {
	if cfg.StorageDriver == config.StorageMemory {
		logger.Warn("Using in-memory storage, data is lost on restart")
		return &storage{
			generations: memory.NewGenerationStore(),
			options:     memory.NewOptionCatalog(memory.DefaultOptions()...),
			ledger:      memory.NewLedger(),
			accounts:    memory.NewAccounts(),
			close:       func() {},
		}, nil
	}

	if cfg.RunMigrations {
		if err := database.ApplyMigrations(cfg.GetDSN(), logger); err != nil {
			return nil, err
		}
	}
	pool, err := database.NewPool(ctx, database.PoolConfig{
		DSN:         cfg.GetDSN(),
		MaxConns:    cfg.DBMaxConns,
		IdleTimeout: cfg.DBIdleTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}
	return &storage{
		generations: repository.NewPgGenerationRepository(pool, logger),
		options:     repository.NewPgStoryOptionRepository(pool, logger),
		ledger:      repository.NewPgWebhookEventRepository(pool, logger),
		accounts:    repository.NewPgAccountRepository(pool, logger),
		close:       pool.Close,
	}, nil
}

func connectRabbitMQ(url string, logger *zap.Logger) (*amqp.Connection, error) {
	var err error
	for attempt := 1; attempt <= rabbitMaxRetries; attempt++ {
		var conn *amqp.Connection
		conn, err = amqp.Dial(url)
		if err == nil {
			logger.Info("Connected to RabbitMQ", zap.Int("attempt", attempt))
			return conn, nil
		}
		logger.Warn("Failed to connect to RabbitMQ",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", rabbitMaxRetries),
			zap.Duration("retry_delay", rabbitRetryDelay),
			zap.Error(err),
		)
		if attempt < rabbitMaxRetries {
			time.Sleep(rabbitRetryDelay)
		}
	}
	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", rabbitMaxRetries, err)
}

// setupSubmissionLock returns nil when REDIS_ADDR is empty; the service then
// relies on the storage constraint alone.
func setupSubmissionLock(ctx context.Context, cfg *config.Config, logger *zap.Logger) (service.SubmissionLocker, func(), error) {
	if cfg.RedisAddr == "" {
		logger.Info("REDIS_ADDR not set, submission lock disabled")
		return nil, func() {}, nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to ping Redis at %s: %w", cfg.RedisAddr, err)
	}
	logger.Info("Connected to Redis", zap.String("address", cfg.RedisAddr), zap.Int("db", cfg.RedisDB))
	lock := repository.NewRedisSubmissionLock(client, submissionLockKeys, cfg.SubmissionLockTTL, cfg.SubmissionLockWait, logger)
	return lock, func() { _ = client.Close() }, nil
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	store, err := setupStorage(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("storage setup: %w", err)
	}
	defer store.close()

	locker, closeLock, err := setupSubmissionLock(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLock()

	conn, err := connectRabbitMQ(cfg.RabbitMQURL, logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	taskCh, err := messaging.OpenQueueChannel(conn, cfg.GenerationTaskQueue, nil)
	if err != nil {
		return err
	}
	defer taskCh.Close()
	updatesCh, err := messaging.OpenQueueChannel(conn, cfg.ClientUpdatesQueue, nil)
	if err != nil {
		return err
	}
	defer updatesCh.Close()

	registry := notifier.New(logger)
	appMetrics := metrics.New(prometheus.DefaultRegisterer)
	appMetrics.Subscribe(registry)
	messaging.NewClientUpdatePublisher(updatesCh, cfg.ClientUpdatesQueue, logger).Subscribe(registry)

	generations := service.NewGenerationService(
		store.generations,
		store.options,
		messaging.NewJobDispatcher(taskCh, cfg.GenerationTaskQueue, logger),
		locker,
		registry,
		quota.NewPolicy(cfg.CustomerMonthlyLimit),
		service.SystemClock{},
		service.UUIDGenerator{},
		logger,
	)
	reconciler := service.NewEntitlementReconciler(
		store.ledger,
		store.accounts,
		registry,
		service.SystemClock{},
		cfg.WebhookClaimTTL,
		logger,
	)
	consumer := messaging.NewResultConsumer(
		conn,
		messaging.NewResultProcessor(generations, logger),
		cfg.GenerationResultsQueue,
		logger,
	)

	verifier, err := middleware.NewJWTVerifier(cfg.JWTSecret, logger)
	if err != nil {
		return err
	}
	handler := httpdelivery.NewHandler(generations, reconciler, store.accounts, store.options, appMetrics, logger)
	gin.SetMode(gin.ReleaseMode)
	router := httpdelivery.NewRouter(handler, httpdelivery.RouterConfig{
		AllowedOrigins:      cfg.CORSAllowedOrigins,
		JWTVerifier:         verifier,
		BillingWebhookToken: cfg.BillingWebhookToken,
	}, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := consumer.StartConsuming(gctx); err != nil {
			return err
		}
		if gctx.Err() == nil {
			return errors.New("result consumer stopped unexpectedly")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}
