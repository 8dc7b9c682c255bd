package main

import (
	"context"
	"delivery-dispatch-service/internal/adapters/cache"
	"delivery-dispatch-service/internal/adapters/events"
	"delivery-dispatch-service/internal/adapters/messaging"
	"delivery-dispatch-service/internal/adapters/repositories"
	"delivery-dispatch-service/internal/api"
	"delivery-dispatch-service/internal/config"
	"delivery-dispatch-service/internal/platform/db"
	"delivery-dispatch-service/internal/platform/obs"
	"delivery-dispatch-service/internal/ports"
	"delivery-dispatch-service/internal/services"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// main is the application composition root.
// It wires concrete adapters (SQL, Redis, Kafka) behind ports and starts the HTTP server.
func main() {
	opts, envLoaded, err := loadOptions(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := obs.NewLogger(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	obs.SetLogger(logger)
	obs.RegisterDefault()

	if !envLoaded {
		logger.Info("no .env file found (using environment variables)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts.seed); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

type options struct {
	configPath string
	seed       bool
}

// loadOptions reads .env before the flags so it can supply CONFIG_PATH.
func loadOptions(args []string) (options, bool, error) {
	envLoaded := godotenv.Load() == nil

	var opts options
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", config.Get("CONFIG_PATH", "config.yaml"), "path to the YAML config file")
	fs.BoolVar(&opts.seed, "seed", false, "load the seed file into the database before starting")
	if err := fs.Parse(args); err != nil {
		return options{}, envLoaded, err
	}
	return opts, envLoaded, nil
}

func run(ctx context.Context, cfg *config.Config, seed bool) error {
	log := obs.L()

	database, err := db.Open(cfg.Database.Driver, cfg.DSN())
	if err != nil {
		return err
	}
	defer database.Close()

	if err := repositories.InitSchema(ctx, database); err != nil {
		return err
	}
	if seed {
		if err := repositories.SeedFromJSON(ctx, database, cfg.SeedPath); err != nil {
			return err
		}
		log.Info("database seeded", zap.String("path", cfg.SeedPath))
	}

	orders := repositories.NewSQLOrderRepository(database)
	src := services.Sources{
		Locations: repositories.NewSQLLocationRepository(database),
		Vehicles:  repositories.NewSQLVehicleRepository(database),
		Menu:      repositories.NewSQLMenuRepository(database),
		Orders:    orders,
	}

	graph := services.NewLocationGraph(services.NewTrafficModel())
	finder := services.NewPathFinder(graph)
	optimizer := services.NewRouteOptimizer(finder)
	optimizer.PermutationThreshold = cfg.Dispatch.PermutationThreshold
	optimizer.ReturnToStart = cfg.Dispatch.ReturnToStart

	broker, snapshots, closeRedis, err := openEventing(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer closeRedis()

	fleet := services.NewFleet()
	tracker := services.NewTracker(fleet, services.TrackerOptions{
		RefreshInterval: cfg.Tracking.RefreshInterval,
		Events:          broker,
		Orders:          orders,
	})
	defer tracker.Stop()

	recent, err := services.NewRecentOrderCache(cfg.Cache.RecentOrderCapacity, snapshots)
	if err != nil {
		return err
	}
	menu := services.NewMenuSearchIndex(cfg.Menu.SuggestionLimit)

	dispatcher := &services.Dispatcher{
		Scheduler: services.NewOrderScheduler(),
		Fleet:     fleet,
		Assigner:  services.NewDispatchAssigner(optimizer, cfg.Dispatch.RouteWorkers),
		Tracker:   tracker,
		Cache:     recent,
		Menu:      menu,
		Orders:    orders,
		Routes:    repositories.NewSQLRouteStore(database),
		BatchSize: cfg.Dispatch.BatchSize,
	}

	if err := services.Bootstrap(ctx, src, graph, fleet, menu, dispatcher); err != nil {
		return err
	}
	log.Info("engine loaded",
		zap.Int("locations", graph.Len()),
		zap.Int("vehicles", len(fleet.Vehicles())),
		zap.Int("menu_items", menu.Len()),
		zap.Int("queued_orders", dispatcher.Scheduler.Len()),
	)

	// Background workers use the database; they are stopped and drained
	// before the deferred close above runs.
	workerCtx, stopWorkers := context.WithCancel(ctx)
	var workers sync.WaitGroup
	defer func() {
		stopWorkers()
		workers.Wait()
	}()

	if cfg.Kafka.Enabled {
		consumer := messaging.NewOrderConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.OrdersTopic, dispatcher)
		workers.Go(func() {
			defer func() { _ = consumer.Close() }()
			if err := consumer.Run(workerCtx); err != nil {
				log.Error("order consumer stopped", zap.Error(err))
			}
		})
		log.Info("consuming orders", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.OrdersTopic))
	}

	workers.Go(func() { dispatcher.Run(workerCtx, cfg.Dispatch.Interval) })

	router := api.NewRouter(api.Deps{
		Graph:          graph,
		Finder:         finder,
		Optimizer:      optimizer,
		Dispatcher:     dispatcher,
		Menu:           menu,
		Broker:         broker,
		OrderRateLimit: cfg.Server.OrderRateLimit,
		OrderRateBurst: cfg.Server.OrderRateBurst,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// openEventing returns the Redis-backed broker and snapshot mirror when
// Redis is configured, else an in-process broker and no mirror.
func openEventing(ctx context.Context, cfg config.RedisConfig) (ports.EventBroker, ports.SnapshotStore, func(), error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return events.NewBroker(), nil, func() {}, nil
	}

	opts := &redis.Options{Addr: cfg.Address, DB: cfg.DB}
	if strings.Contains(cfg.Address, "://") {
		var err error
		if opts, err = redis.ParseURL(cfg.Address); err != nil {
			return nil, nil, nil, fmt.Errorf("open redis: %w", err)
		}
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, nil, fmt.Errorf("open redis: ping %s: %w", opts.Addr, err)
	}

	broker := events.NewRedisBroker(rdb, "dispatch")
	snapshots := cache.NewRedisSnapshotStore(rdb, "dispatch")
	if cfg.SnapshotTTL > 0 {
		snapshots.TTL = cfg.SnapshotTTL
	}
	if cfg.RecentLimit > 0 {
		snapshots.RecentLimit = cfg.RecentLimit
	}

	obs.L().Info("redis eventing enabled", zap.String("addr", opts.Addr))
	return broker, snapshots, func() {
		broker.Close()
		_ = rdb.Close()
	}, nil
}
