package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/jcmexdev/ecommerce-choreography/internal/config"
	"github.com/jcmexdev/ecommerce-choreography/internal/contracts"
	"github.com/jcmexdev/ecommerce-choreography/internal/eventbus"
	"github.com/jcmexdev/ecommerce-choreography/internal/eventbus/eventlog"
	"github.com/jcmexdev/ecommerce-choreography/internal/eventbus/eventlog/memory"
	"github.com/jcmexdev/ecommerce-choreography/internal/eventbus/eventlog/postgres"
	"github.com/jcmexdev/ecommerce-choreography/internal/eventbus/eventlog/sqlite"
	"github.com/jcmexdev/ecommerce-choreography/internal/httpx"
	"github.com/jcmexdev/ecommerce-choreography/internal/httpx/middlewares"
	orderapp "github.com/jcmexdev/ecommerce-choreography/internal/order-service/app"
	orderevents "github.com/jcmexdev/ecommerce-choreography/internal/order-service/events"
	paymentapp "github.com/jcmexdev/ecommerce-choreography/internal/payment-service/app"
	paymentevents "github.com/jcmexdev/ecommerce-choreography/internal/payment-service/events"
	"github.com/jcmexdev/ecommerce-choreography/internal/pkg/cache"
	"github.com/jcmexdev/ecommerce-choreography/internal/pkg/interceptors"
	"github.com/jcmexdev/ecommerce-choreography/internal/pkg/telemetry"
	restaurantapp "github.com/jcmexdev/ecommerce-choreography/internal/restaurant-service/app"
	restaurantevents "github.com/jcmexdev/ecommerce-choreography/internal/restaurant-service/events"
)

func main() {
	if err := run(); err != nil {
		slog.Error("choreography exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := telemetry.InitLogger(cfg.LogLevel).With("service", cfg.ServiceName)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.OTelEnabled {
		shutdown, err := telemetry.SetupTracer(ctx, telemetry.TracerConfig{
			ServiceName: cfg.ServiceName,
			Endpoint:    cfg.OTLPEndpoint,
			Environment: cfg.Environment,
			SampleRatio: cfg.SampleRatio,
		})
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Error("tracer shutdown error", "error", err)
			}
		}()
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	limit, err := decimal.NewFromString(cfg.PaymentLimit)
	if err != nil {
		return fmt.Errorf("parse PAYMENT_LIMIT: %w", err)
	}

	var redisClient *redis.Client
	idempotency := orderapp.NewMemoryIdempotencyStore()
	if cfg.RedisAddr != "" {
		redisClient, err = cache.NewRedisClient(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		idempotency = cache.NewIdempotencyStore(redisClient, cfg.ServiceName, cache.DefaultTTL)
	}

	// Commands raise through the publisher the HTTP layer installs in the
	// request context, handlers through the one the dispatcher installs.
	orders := orderapp.NewService(orderapp.NewMemoryRepository(), orderevents.NewOrderEventPublisher(nil), orderapp.LogNotifier{},
		orderapp.WithIdempotency(idempotency))
	payments := paymentapp.NewService(paymentapp.NewMemoryRepository(), paymentapp.NewSimulatedGateway(limit))
	restaurants := restaurantapp.NewService(restaurantapp.NewMemoryRepository())

	registry, err := eventbus.NewRegistryBuilder().
		Register(orderevents.Handlers(orders)...).
		Register(paymentevents.Handlers(payments)...).
		Register(restaurantevents.Handlers(restaurants)...).
		Build()
	if err != nil {
		return err
	}
	if err := registry.Require(contracts.SagaEvents...); err != nil {
		return err
	}
	if err := registry.Require(contracts.RestaurantEvents...); err != nil {
		return err
	}

	opts := []eventbus.Option{
		eventbus.WithWorkers(cfg.Workers),
		eventbus.WithQueueSize(cfg.QueueSize),
		eventbus.WithMaxRetries(cfg.MaxRetries),
		eventbus.WithRetryInterval(cfg.RetryInterval),
		eventbus.WithRetryBatch(cfg.RetryBatch),
		eventbus.WithPendingGrace(cfg.PendingGrace),
		eventbus.WithHandlerTimeout(cfg.HandlerTimeout),
		eventbus.WithLogger(logger),
		eventbus.WithMetrics(telemetry.NewEventMetrics(prometheus.DefaultRegisterer)),
	}
	if redisClient != nil {
		opts = append(opts, eventbus.WithDeduper(cache.NewDeduper(redisClient, cfg.ServiceName, cache.DefaultTTL)))
	}

	bus, err := eventbus.New(store, registry, opts...)
	if err != nil {
		return err
	}
	dispatcher := eventbus.NewDispatcher(bus)
	sweeper := eventbus.NewSweeper(dispatcher)

	recovered, err := dispatcher.RecoverAll(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("recover event log: %w", err)
	}
	logger.Info("event bus ready", "events", registry.Names(), "recovered", recovered)

	router := middlewares.InstallPublisher(bus)(
		httpx.NewRouter(
			httpx.NewHandler(orders, restaurants, restaurantevents.NewRestaurantEventPublisher(nil), store),
			telemetry.MetricsHandler(prometheus.DefaultGatherer),
		),
	)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	healthServer := health.NewServer()
	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(interceptors.UnaryRequestID(), interceptors.UnaryLogging()),
	)
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.GRPCAddr, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return dispatcher.Run(gctx) })
	g.Go(func() error { return sweeper.Run(gctx) })
	g.Go(func() error {
		logger.Info("http server running", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("grpc health server running", "addr", cfg.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		healthServer.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		grpcServer.GracefulStop()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func openStore(ctx context.Context, cfg config.Config) (eventlog.Store, func(), error) {
	switch cfg.EventStore {
	case config.StorePostgres:
		repo, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return repo, repo.Close, nil
	case config.StoreSQLite:
		repo, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() { _ = repo.Close() }, nil
	default:
		return memory.NewStore(), func() {}, nil
	}
}
