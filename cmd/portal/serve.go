package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/vaidashi/support-portal/internal/api"
	"github.com/vaidashi/support-portal/internal/handlers"
	"github.com/vaidashi/support-portal/internal/outbox"
	"github.com/vaidashi/support-portal/internal/reminders"
	"github.com/vaidashi/support-portal/internal/service"
	"github.com/vaidashi/support-portal/pkg/circuitbreaker"
	"github.com/vaidashi/support-portal/pkg/kafka"
	"github.com/vaidashi/support-portal/pkg/middleware"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return serve(ctx, rt)
		},
	}
}

func serve(ctx context.Context, rt *runtime) error {
	cfg, log := rt.cfg, rt.logger
	log.Info("Starting support portal", "store", cfg.StoreDriver, "port", cfg.Port)

	st, err := openStores(ctx, cfg, log)

	if err != nil {
		return err
	}

	defer func() {
		if err := st.Close(); err != nil {
			log.Error("Error closing database connection", "error", err)
		}
	}()

	orders := service.NewOrderService(st.orders, service.Options{
		HighPriorityAmount:    cfg.HighPriorityAmount,
		ReminderThresholdDays: cfg.Reminders.ThresholdDays,
	}, log)

	processor := outbox.NewProcessor(st.outbox, outbox.ProcessorConfig{
		PollingInterval:   cfg.Outbox.PollInterval,
		BatchSize:         cfg.Outbox.BatchSize,
		MaxRetries:        cfg.Outbox.MaxRetries,
		ProcessingTimeout: cfg.Outbox.ProcessingTimeout,
	}, log)

	var opts []api.Option

	if cfg.RateLimit.Enabled() {
		opts = append(opts, api.WithRateLimiter(middleware.NewRateLimiter(middleware.RateLimiterConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
			TrustForwardedFor: cfg.RateLimit.TrustForwardedFor,
		}, log)))
	}

	var consumer *kafka.Consumer

	if cfg.Kafka.Enabled() {
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers, log)

		if err != nil {
			return err
		}

		defer func() {
			if err := producer.Close(); err != nil {
				log.Error("Error closing Kafka producer", "error", err)
			}
		}()

		breaker := circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.Kafka.BreakerThreshold,
			ResetTimeout:     cfg.Kafka.BreakerReset,
		}).OnStateChange(func(from, to circuitbreaker.State) {
			log.Warn("Kafka circuit changed state", "from", from.String(), "to", to.String())
		})

		processor.RegisterAll(outbox.NewKafkaHandler(producer, cfg.Kafka.OrdersTopic, log).WithBreaker(breaker))
		opts = append(opts, api.WithBreaker(breaker))

		consumer, err = kafka.NewConsumer(&kafka.ConsumerConfig{
			Brokers:       cfg.Kafka.Brokers,
			Topics:        []string{cfg.Kafka.OrdersTopic},
			ConsumerGroup: cfg.Kafka.ConsumerGroup,
		}, log)

		if err != nil {
			// Publishing still works without the consumer
			log.Error("Failed to create Kafka consumer", "error", err)
			consumer = nil
		} else {
			consumer.RegisterHandler(cfg.Kafka.OrdersTopic, handlers.NewOrderEventsHandler(log))
		}
	} else {
		log.Info("Kafka disabled, outbox events are logged only")
		processor.RegisterAll(outbox.NewLoggingHandler(log))
	}

	scanner := reminders.NewScanner(orders, st.outbox, cfg.Reminders.ScanInterval, log)
	server := api.NewServer(cfg, orders, log, opts...)

	processor.Start()
	defer processor.Stop()

	scanner.Start()
	defer scanner.Stop()

	if consumer != nil {
		if err := consumer.Start(); err != nil {
			log.Error("Failed to start Kafka consumer", "error", err)
		} else {
			defer func() {
				if err := consumer.Stop(); err != nil {
					log.Error("Error stopping Kafka consumer", "error", err)
				}
			}()
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("Server stopped with error", "error", err)
		return err
	}

	log.Info("Server exiting")
	return nil
}
