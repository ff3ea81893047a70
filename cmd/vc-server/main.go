package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/tuanvumaihuynh/versioned-catalog/internal/config"
	"github.com/tuanvumaihuynh/versioned-catalog/internal/dispatch"
	"github.com/tuanvumaihuynh/versioned-catalog/internal/event"
	"github.com/tuanvumaihuynh/versioned-catalog/internal/http"
	"github.com/tuanvumaihuynh/versioned-catalog/internal/log"
	"github.com/tuanvumaihuynh/versioned-catalog/internal/provision"
	"github.com/tuanvumaihuynh/versioned-catalog/internal/service"
	"github.com/tuanvumaihuynh/versioned-catalog/internal/storage"
	"github.com/tuanvumaihuynh/versioned-catalog/internal/storage/accel"
	"github.com/tuanvumaihuynh/versioned-catalog/internal/storage/mq"
	"github.com/tuanvumaihuynh/versioned-catalog/internal/sweeper"
	"github.com/tuanvumaihuynh/versioned-catalog/internal/telemetry"
	"github.com/tuanvumaihuynh/versioned-catalog/pkg/cmdutil"
	"github.com/tuanvumaihuynh/versioned-catalog/pkg/validator"
)

func main() {
	if err := run(); err != nil {
		fmt.Printf("error running catalog server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	time.Local = time.UTC

	type Config struct {
		Log          config.Log
		Store        config.Store
		Postgres     config.Postgres
		Acceleration config.Acceleration
		HTTP         config.HTTP
		Kafka        config.Kafka
		Sweeper      config.Sweeper
		Otel         config.Otel
	}
	cfg, err := config.New[Config]()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	logger := log.NewSlogLogger(cfg.Log)

	if cfg.Store.Table == "" {
		logger.WarnContext(ctx, "TABLE_NAME is not set, every request will fail with a configuration error")
	}

	cleanupTracer, err := telemetry.InitTracer(ctx, cfg.Otel)
	if err != nil {
		return fmt.Errorf("error initializing tracer: %w", err)
	}
	defer func() {
		if err := cleanupTracer(ctx); err != nil {
			logger.ErrorContext(ctx, "error cleaning up tracer", slog.Any("error", err))
		}
	}()

	backing := newBackingStore(cfg.Store, cfg.Postgres)
	defer backing.Close()

	var newAccelerated provision.AcceleratedFactory
	if cfg.Acceleration.Configured() {
		newAccelerated = func(ctx context.Context, direct storage.Store) (storage.Store, error) {
			return accel.New(ctx, cfg.Acceleration, direct, logger)
		}
	}
	provisioner := provision.New(backing.Direct, newAccelerated, cfg.Acceleration.Configured(), logger)
	defer func() {
		if err := provisioner.Close(); err != nil {
			logger.ErrorContext(ctx, "error closing store handles", slog.Any("error", err))
		}
	}()

	var notifier service.ChangeNotifier = event.NewLocalNotifier(provisioner)
	var kafkaConsumer *mq.KafkaConsumer
	if cfg.Kafka.Enabled() {
		kafkaProducer, err := mq.NewKafkaProducer(ctx, cfg.Kafka)
		if err != nil {
			return fmt.Errorf("error creating kafka producer: %w", err)
		}
		defer kafkaProducer.Close()
		notifier = event.NewKafkaNotifier(kafkaProducer, cfg.Kafka.ChangesTopic)

		// The cache is shared, but only an instance holding the accelerated
		// handle invalidates it, so each instance consumes under its own group.
		// The event service cleanup closes the consumer.
		kafkaConsumer, err = mq.NewKafkaConsumer(ctx, cfg.Kafka, instanceGroup(cfg.Kafka.Group), logger)
		if err != nil {
			return fmt.Errorf("error creating kafka consumer: %w", err)
		}
	}

	writer := service.NewWriter(provisioner, notifier, validator.NewDefaultValidator(), time.Now, logger)
	reader := service.NewReader(provisioner, logger)
	dispatcher := dispatch.New(cfg.Store.Table, writer, reader)

	interruptChan := cmdutil.InterruptChan()
	var wg sync.WaitGroup

	if kafkaConsumer != nil {
		wg.Go(func() {
			svc := event.New(logger, kafkaConsumer, cfg.Kafka.ChangesTopic, provisioner)
			cleanup, err := svc.Run(ctx)
			if err != nil {
				panic(fmt.Errorf("error running event service: %w", err))
			}
			logger.InfoContext(ctx, "event service started")

			<-interruptChan

			logger.InfoContext(ctx, "event service is shutting down")
			cleanup()

			logger.InfoContext(ctx, "event service is stopped")
		})
	}

	wg.Go(func() {
		svc := http.New(cfg.HTTP, logger, dispatcher, provisioner.AccelerationConfigured, backing.Health())
		cleanup, err := svc.Run(ctx)
		if err != nil {
			panic(fmt.Errorf("error running http service: %w", err))
		}

		logger.InfoContext(ctx, "http service started",
			slog.String("address", fmt.Sprintf(":%d", cfg.HTTP.Port)),
			slog.String("store", cfg.Store.Driver.String()),
			slog.Bool("acceleration", cfg.Acceleration.Configured()),
		)

		<-interruptChan

		logger.InfoContext(ctx, "http service is shutting down")
		if err := cleanup(ctx); err != nil {
			logger.ErrorContext(ctx, "error shutting down http service", slog.Any("error", err))
		}

		logger.InfoContext(ctx, "http service is stopped")
	})

	if backing.NeedsSweeper() && cfg.Store.Table != "" {
		wg.Go(func() {
			svc := sweeper.NewService(cfg.Sweeper, logger, expirySweeper{provisioner}, notifier, time.Now)
			cleanup := svc.Run(ctx)
			logger.InfoContext(ctx, "sweeper service started")

			<-interruptChan

			logger.InfoContext(ctx, "sweeper service is shutting down")
			cleanup()

			logger.InfoContext(ctx, "sweeper service is stopped")
		})
	}

	wg.Wait()

	return nil
}

func instanceGroup(group string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = fmt.Sprintf("pid-%d", os.Getpid())
	}
	return group + "-" + host
}
