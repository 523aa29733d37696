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

	"github.com/fjod/stonehub/internal/cart"
	"github.com/fjod/stonehub/internal/config"
	"github.com/fjod/stonehub/internal/events"
	h "github.com/fjod/stonehub/internal/http"
	"github.com/fjod/stonehub/internal/identity"
	"github.com/fjod/stonehub/internal/logger"
	"github.com/fjod/stonehub/internal/metrics"
	"github.com/fjod/stonehub/internal/order"
	"github.com/fjod/stonehub/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zl, err := logger.New(cfg.AppEnv)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zl.Sync()
	zap.ReplaceGlobals(zl)

	if err := run(cfg, zl); err != nil {
		zl.Fatal("storefront stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, zl *zap.Logger) error {
	ctx := context.Background()
	m := metrics.New()

	durable, err := openDurable(ctx, cfg, zl)
	if err != nil {
		return err
	}
	session, err := openSession(ctx, cfg)
	if err != nil {
		durable.Close()
		return err
	}
	if cfg.StorageBreaker {
		durable = withBreaker(durable, "durable", m, zl)
		session = withBreaker(session, "session", m, zl)
	}

	adapter := storage.NewAdapter(durable, session, zl, storage.Options{
		Prefix:     cfg.StoragePrefix,
		SessionTTL: cfg.SessionTTL,
		MaxRetries: cfg.UpdateRetries,
		OnCorrupt:  m.StorageCorrupted,
	})
	defer func() {
		if err := adapter.Close(); err != nil {
			zl.Warn("failed to close storage", zap.Error(err))
		}
	}()
	zl.Info("storage ready",
		zap.String("durable", cfg.DurableBackend),
		zap.String("session", cfg.SessionBackend),
		zap.Bool("breaker", cfg.StorageBreaker),
	)

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewAsyncPublisher(
			events.NewKafkaPublisher(cfg.KafkaTopic, cfg.KafkaBrokers...),
			zl.Named("events"),
			0,
		)
		zl.Info("publishing order events", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}
	defer publisher.Close()

	newID, err := order.GeneratorByName(cfg.OrderIDGenerator)
	if err != nil {
		return err
	}

	carts := cart.NewService(zl, m)
	orders := order.NewService(carts, zl,
		order.WithIDGenerator(newID),
		order.WithPublisher(publisher),
		order.WithRecorder(m),
	)

	router := h.NewRouter(h.RouterConfig{
		Adapter:            adapter,
		Carts:              carts,
		Orders:             orders,
		Accounts:           identity.NewAccounts(zl.Named("accounts")),
		Metrics:            m,
		Log:                zl,
		RequestTimeout:     cfg.RequestTimeout,
		MaxRequestBodySize: cfg.MaxRequestBodySize,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(router, "storefront"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		zl.Info("storefront starting", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serveErr:
		return fmt.Errorf("server error: %w", err)
	}

	zl.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	zl.Info("server exited")
	return nil
}

func openDurable(ctx context.Context, cfg *config.Config, zl *zap.Logger) (storage.Backend, error) {
	switch cfg.DurableBackend {
	case "mongo":
		if err := storage.MigrateMongo(cfg.MongoURI, cfg.MongoDatabase); err != nil {
			return nil, err
		}
		db, err := storage.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		backend := storage.NewMongoBackend(db)
		zl.Info("connected to MongoDB", zap.String("database", cfg.MongoDatabase))
		return backend, nil
	case "memory":
		return storage.NewMemoryBackend(), nil
	default:
		backend, err := storage.OpenBadger(storage.BadgerConfig{
			Path:       cfg.BadgerPath,
			InMemory:   cfg.BadgerInMemory,
			SyncWrites: true,
			Logger:     zl.Named("badger"),
		})
		if err != nil {
			return nil, err
		}
		return backend, nil
	}
}

func openSession(ctx context.Context, cfg *config.Config) (storage.Backend, error) {
	if cfg.SessionBackend == "redis" {
		client, err := storage.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		return storage.NewRedisBackend(client), nil
	}
	return storage.NewMemoryBackend(), nil
}

func withBreaker(next storage.Backend, name string, m *metrics.Metrics, zl *zap.Logger) storage.Backend {
	cfg := storage.DefaultBreakerConfig(name)
	cfg.OnStateChange = m.BreakerStateChanged
	return storage.NewBreakerBackend(next, cfg, zl)
}
