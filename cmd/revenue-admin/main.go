package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	simpleproducer "github.com/Fuchsoria/revenue-admin/internal/amqp/producer"
	"github.com/Fuchsoria/revenue-admin/internal/app"
	"github.com/Fuchsoria/revenue-admin/internal/lock"
	"github.com/Fuchsoria/revenue-admin/internal/logger"
	"github.com/Fuchsoria/revenue-admin/internal/metrics"
	"github.com/Fuchsoria/revenue-admin/internal/parser"
	internalgrpc "github.com/Fuchsoria/revenue-admin/internal/server/grpc"
	internalhttp "github.com/Fuchsoria/revenue-admin/internal/server/http"
	memorystorage "github.com/Fuchsoria/revenue-admin/internal/storage/memory"
	sqlstorage "github.com/Fuchsoria/revenue-admin/internal/storage/sql"
	"github.com/Fuchsoria/revenue-admin/internal/uploads"
	"github.com/Fuchsoria/revenue-admin/internal/version"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/streadway/amqp"
)

const (
	shutdownTimeout = 3 * time.Second
	lockRetry       = 100 * time.Millisecond
)

var configFile string

func init() {
	flag.StringVar(&configFile, "config", "/etc/revenue-admin/config.json", "Path to configuration file")
}

func main() {
	flag.Parse()

	if flag.Arg(0) == "version" {
		version.PrintVersion()

		return
	}

	if err := run(); err != nil {
		log.Fatal(err)
	}
}

// run wires the service and blocks until the http server stops. Returning instead of exiting
// lets every deferred close run.
func run() error {
	config, err := NewConfig()
	if err != nil {
		return err
	}

	logg := logger.New(config.Logger.Level, config.Logger.File)
	defer func() { _ = logg.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	storage, closeStorage, err := initStorage(ctx, config)
	if err != nil {
		logg.Error(err.Error())

		return err
	}
	defer closeStorage()

	uploadStore, err := uploads.New(config.Uploads.Root)
	if err != nil {
		logg.Error(err.Error())

		return err
	}

	appMetrics := metrics.New()

	opts := []app.Option{
		app.WithAdminEmail(config.Admin.Email),
		app.WithMetrics(appMetrics),
	}

	if config.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     config.Redis.Addr,
			Password: config.Redis.Password,
			DB:       config.Redis.DB,
		})
		defer client.Close()

		if err := client.Ping(ctx).Err(); err != nil {
			logg.Error("cannot reach redis: " + err.Error())

			return fmt.Errorf("cannot reach redis, %w", err)
		}

		opts = append(opts, app.WithLocker(lock.NewRedisLocker(client, config.Redis.LockTTL, lockRetry)))
	}

	if config.AMQP.DSN != "" {
		publisher, closePublisher, err := initProducer(config)
		if err != nil {
			logg.Error(err.Error())

			return err
		}
		defer closePublisher()

		opts = append(opts, app.WithProducer(publisher))
	}

	parsers := parser.DefaultRegistry(logg)
	logg.Info("report parsers registered", "networks", parsers.Networks())

	revenueApp := app.New(logg, storage, parsers, uploadStore, opts...)

	if err := revenueApp.EnsureRoles(ctx); err != nil {
		logg.Error(err.Error())

		return err
	}

	httpServer := internalhttp.NewServer(revenueApp, logg, appMetrics.Handler(), config.HTTP.Host, config.HTTP.Port)
	grpcServer := internalgrpc.NewServer(logg, config.HTTP.Host, config.HTTP.GrpcPort)

	go func() {
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, syscall.SIGINT, syscall.SIGHUP, syscall.SIGTERM)

		select {
		case <-ctx.Done():
			return
		case <-signals:
		}

		signal.Stop(signals)
		cancel()

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := grpcServer.Stop(ctx); err != nil {
			logg.Error("failed to stop grpc server: " + err.Error())
		}

		if err := httpServer.Stop(ctx); err != nil {
			logg.Error("failed to stop http server: " + err.Error())
		}
	}()

	go func() {
		if err := grpcServer.Start(ctx); err != nil {
			logg.Error("failed to start grpc server: " + err.Error())
			cancel()
		}
	}()

	logg.Info("revenue admin service is running...")

	if err := httpServer.Start(ctx); err != nil {
		logg.Error("failed to start http server: " + err.Error())

		return err
	}

	return nil
}

func initStorage(ctx context.Context, config Config) (app.Storage, func(), error) {
	switch config.DB.Type {
	case "memory":
		return memorystorage.New(), func() {}, nil
	case "sql":
	default:
		return nil, nil, fmt.Errorf("unknown storage type %q", config.DB.Type)
	}

	storage, err := sqlstorage.New(ctx, config.DB.ConnectionString)
	if err != nil {
		return nil, nil, fmt.Errorf("can't create new storage instance, %w", err)
	}

	if err := storage.Connect(ctx); err != nil {
		return nil, nil, fmt.Errorf("can't connect to storage, %w", err)
	}

	if err := storage.Migrate(); err != nil {
		_ = storage.Close()

		return nil, nil, fmt.Errorf("can't migrate storage, %w", err)
	}

	return storage, func() { _ = storage.Close() }, nil
}

func initProducer(config Config) (*simpleproducer.Producer, func(), error) {
	conn, err := amqp.Dial(config.AMQP.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot connect to amqp, %w", err)
	}

	publisher := simpleproducer.New(config.AMQP.Exchange, conn)
	if err := publisher.Connect(); err != nil {
		_ = conn.Close()

		return nil, nil, err
	}

	return publisher, func() { _ = publisher.Close() }, nil
}
