package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/septivank/flat-telemetry-worker/internal/config"
	"github.com/septivank/flat-telemetry-worker/internal/db"
	"github.com/septivank/flat-telemetry-worker/internal/httpapi"
	"github.com/septivank/flat-telemetry-worker/internal/mq"
	"github.com/septivank/flat-telemetry-worker/internal/repository"
	"github.com/septivank/flat-telemetry-worker/internal/service"
	"github.com/septivank/flat-telemetry-worker/internal/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func startConsumer(
	lc fx.Lifecycle,
	conn *mq.Connection,
	cfg *config.Config,
	logger *zap.Logger,
	dispatcher *service.Dispatcher,
) (*mq.Consumer, error) {
	// Create context for consumer that will be cancelled on shutdown
	ctx, cancel := context.WithCancel(context.Background())

	consumer, err := mq.NewConsumer(mq.ConsumerConfig{
		Connection: conn,
		Queue:      cfg.RabbitMQ.CommandQueue,
		DLQQueue:   cfg.RabbitMQ.DLQQueue,
		Exchange:   cfg.RabbitMQ.CommandExchange,
		RoutingKeys: []string{
			cfg.RabbitMQ.CreateRoutingKey,
			cfg.RabbitMQ.DeleteRoutingKey,
			cfg.RabbitMQ.PullStateRoutingKey,
		},
		PrefetchCount:    cfg.RabbitMQ.PrefetchCount,
		Logger:           logger,
		MessageProcessor: dispatcher.HandleMessage,
	})
	if err != nil {
		cancel()
		return nil, err
	}

	// Register lifecycle hooks
	lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			logger.Info("starting command consumer",
				zap.String("queue", cfg.RabbitMQ.CommandQueue),
				zap.Int("prefetch", cfg.RabbitMQ.PrefetchCount))
			return consumer.Start(ctx)
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			if err := consumer.Close(); err != nil {
				logger.Error("failed to close consumer", zap.Error(err))
				return err
			}
			logger.Info("command consumer stopped gracefully")
			return nil
		},
	})

	return consumer, nil
}

func startPoller(lc fx.Lifecycle, poller *service.Poller, logger *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			go func() {
				defer close(done)
				poller.Run(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
				logger.Warn("poller did not stop before shutdown deadline")
			}
			return nil
		},
	})
}

func startQueryServer(lc fx.Lifecycle, server *httpapi.Server, cfg *config.Config, logger *zap.Logger) {
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.ServicePort),
		Handler: server.Router(),
	}

	lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			logger.Info("starting query API", zap.Int("port", cfg.ServicePort))
			go func() {
				if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("query API server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			return httpServer.Shutdown(stopCtx)
		},
	})
}

// ProvideRepository creates a new repository instance
func ProvideRepository(pool *db.Pool) *repository.Repository {
	return repository.NewRepository(pool)
}

// ProvideTelemetryClient creates the telemetry provider client
func ProvideTelemetryClient(cfg *config.Config, logger *zap.Logger) *telemetry.Client {
	timeout := time.Duration(cfg.Telemetry.TimeoutSeconds) * time.Second
	return telemetry.NewClient(cfg.Telemetry.BaseURL, cfg.Telemetry.Credentials, timeout, logger)
}

// ProvidePublisher creates a new outcome event publisher
func ProvidePublisher(conn *mq.Connection, cfg *config.Config, logger *zap.Logger) (*mq.Publisher, error) {
	return mq.NewPublisher(conn, cfg.RabbitMQ.EventExchange, cfg.RabbitMQ.EventRoutingKey, logger)
}

// ProvideDispatcher creates the command dispatcher
func ProvideDispatcher(
	repo *repository.Repository,
	client *telemetry.Client,
	publisher *mq.Publisher,
	logger *zap.Logger,
) *service.Dispatcher {
	return service.NewDispatcher(repo, client, publisher, logger)
}

// ProvidePoller creates the measurement poller
func ProvidePoller(repo *repository.Repository, client *telemetry.Client, cfg *config.Config, logger *zap.Logger) *service.Poller {
	interval := time.Duration(cfg.Poll.IntervalSeconds) * time.Second
	return service.NewPoller(repo, client, interval, logger)
}

// ProvideQueryServer creates the read-only query API server
func ProvideQueryServer(repo *repository.Repository, logger *zap.Logger) *httpapi.Server {
	return httpapi.NewServer(repo, logger)
}

// ProvideDBPool creates a new database pool instance
func ProvideDBPool(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*db.Pool, error) {
	return db.NewPool(lc, logger, cfg.Database.URL)
}

// ProvideMQConnection creates a new RabbitMQ connection instance
func ProvideMQConnection(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*mq.Connection, error) {
	return mq.NewConnection(lc, logger, cfg.RabbitMQ.URL)
}
