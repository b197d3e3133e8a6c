package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"tow-dispatch/internal/dispatch"
	"tow-dispatch/internal/gateway"
	"tow-dispatch/internal/general/config"
	"tow-dispatch/internal/general/jwt"
	"tow-dispatch/internal/general/logger"
	"tow-dispatch/internal/general/postgres"
	"tow-dispatch/internal/general/rabbitmq"
	"tow-dispatch/internal/httpapi"
	"tow-dispatch/internal/hub"
	"tow-dispatch/internal/orders"
	"tow-dispatch/internal/pricing"

	"golang.org/x/sync/errgroup"
)

// run wires the dispatch service and blocks until ctx is cancelled or a
// component fails.
func run(ctx context.Context, configPath string, maxConcurrent int) error {
	log := logger.New("dispatch-service")
	ctx = log.WithRequestID(ctx, "startup-001")

	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.ApplyEnv()

	pool, err := postgres.NewPool(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "db_connection_failed", "Failed to initialize Postgres pool", err, nil)
		return err
	}
	defer pool.Close()

	rmq, err := rabbitmq.Dial(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "rabbitmq_connection_failed", "Failed to connect to RabbitMQ", err, nil)
		return err
	}
	defer rmq.Close()

	jwtManager := jwt.NewManager(cfg.JWT.SecretKey, cfg.AccessTTL())

	// stores and core services
	orderStore := postgres.NewOrderStore(pool)
	truckStore := postgres.NewTruckStore(pool)
	tariffStore := postgres.NewTariffStore(pool)

	locationHub := hub.New(log)
	engine := pricing.NewEngine(tariffStore, nil)
	matcher := dispatch.NewMatcher(log, truckStore, cfg.Dispatch.MaxAssignAttempts)
	pub := rabbitmq.NewStatusPublisher(rmq)

	svc := orders.NewService(log, orderStore, truckStore, engine, matcher, locationHub, pub, orders.Config{
		MaxSearchWait: cfg.MaxSearchWait(),
		SweepInterval: cfg.SweepInterval(),
	})

	// periodic truck search for orders still waiting
	searchJob := orders.NewSearchJob(svc, log)
	if err := searchJob.Start(); err != nil {
		return fmt.Errorf("start search job: %w", err)
	}
	defer searchJob.Stop()

	// HTTP surface: order lifecycle plus the WS location gateway
	gw := gateway.NewGateway(log, jwtManager, locationHub, orderStore, truckStore, cfg.Gateway.QueueCapacity)
	orderHandler := httpapi.NewOrderHandler(log, svc, engine)
	handler := httpapi.NewRouter(log, jwtManager, orderHandler, gw)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Service.Port),
		Handler:           withConcurrencyLimit(maxConcurrent, handler),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	log.Info(ctx, "service_started",
		fmt.Sprintf("Dispatch service started on port %d", cfg.Service.Port),
		map[string]any{"port": cfg.Service.Port, "max_concurrent": maxConcurrent},
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	// telemetry ingest: truck locations arriving over the broker
	consumer := rabbitmq.NewLocationConsumer(log, rmq, locationHub, truckStore, orderStore)
	g.Go(func() error {
		for {
			if err := consumer.Run(gctx); err != nil {
				log.Error(gctx, "location_consumer_failed", "Location consumer stopped, restarting", err, nil)
			}
			select {
			case <-gctx.Done():
				return nil
			case <-time.After(2 * time.Second):
				// the rabbitmq client reconnects in the background; retry
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil && err != http.ErrServerClosed {
			log.Error(ctx, "http_shutdown_failed", "Failed to gracefully shut down HTTP server", err, nil)
		}
		return nil
	})

	return g.Wait()
}

// withConcurrencyLimit wraps an http.Handler with a semaphore-based limiter.
// It controls how many HTTP requests can be in-progress at the same time.
func withConcurrencyLimit(n int, next http.Handler) http.Handler {
	if n <= 0 {
		return next
	}
	sem := make(chan struct{}, n)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case sem <- struct{}{}: // acquire
			defer func() { <-sem }() // release
			next.ServeHTTP(w, r)
		case <-r.Context().Done():
			// client canceled or server is shutting down
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		}
	})
}
