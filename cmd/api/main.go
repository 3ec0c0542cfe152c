package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fastprodman/creditsettle/internal/api"
	"github.com/fastprodman/creditsettle/internal/events"
	"github.com/fastprodman/creditsettle/internal/infra/logging"
	"github.com/fastprodman/creditsettle/internal/infra/pgutils"
	"github.com/fastprodman/creditsettle/internal/jobs"
	"github.com/fastprodman/creditsettle/internal/payments"
	"github.com/fastprodman/creditsettle/internal/payments/card"
	"github.com/fastprodman/creditsettle/internal/payments/mobilemoney"
	inboxpg "github.com/fastprodman/creditsettle/internal/repos/webhookevents/postgres"
	"github.com/fastprodman/creditsettle/internal/services/checkout"
	"github.com/fastprodman/creditsettle/internal/services/ledger"
	"github.com/fastprodman/creditsettle/internal/services/media"
	"github.com/fastprodman/creditsettle/internal/services/projection"
	"github.com/fastprodman/creditsettle/internal/services/webhook"
	"github.com/fastprodman/creditsettle/pkg/envconf"
	"github.com/fastprodman/creditsettle/pkg/shutdownqueue"
	"github.com/google/uuid"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error running api: %v\n", err)
		//nolint:gocritic
		os.Exit(1)
	}
}

func run(ctx context.Context) (retErr error) {
	cfg := new(apiConfig)

	err := envconf.Load(cfg)
	if err != nil {
		return fmt.Errorf("init config: %w", err)
	}

	logging.SetupJSON(cfg.LogLevel, "creditsettle-api")

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		serr := shutdownqueue.Shutdown(shutdownCtx)
		if serr != nil {
			retErr = errors.Join(retErr, serr)
		}
	}()

	// --- Infra ---
	db, err := pgutils.OpenDB(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}

	shutdownqueue.AddNamed("postgres", func(context.Context) error {
		return db.Close()
	})

	ledgerSrv := ledger.New(db)
	inbox := inboxpg.New(db)
	adapters := newAdapters(cfg)

	// --- Events ---
	bus := events.NewBus(256)
	shutdownqueue.AddNamed("event-bus", func(context.Context) error {
		bus.Close()
		return nil
	})

	publisher := events.Multi{bus}
	if len(cfg.Kafka.Brokers) > 0 {
		kafka, kerr := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if kerr != nil {
			return fmt.Errorf("init kafka publisher: %w", kerr)
		}
		shutdownqueue.AddNamed("kafka-producer", kafka.Close)
		publisher = append(publisher, kafka)
	} else {
		slog.Warn("KAFKA_BROKERS not set, settlement events stay in-process")
	}

	// --- Services ---
	receiver := webhook.NewReceiver(adapters, ledgerSrv, inbox, publisher, webhook.Config{
		AccessToken: cfg.Payments.WebhookAccessToken,
		Secrets: map[payments.Provider]string{
			payments.MobileMoney: cfg.Payments.MobileMoney.WebhookSecret,
			payments.Card:        cfg.Payments.Card.WebhookSecret,
		},
	})

	coordinator := checkout.New(adapters, ledgerSrv, publisher, checkout.ConfigFrom(cfg.Checkout))
	shutdownqueue.AddNamed("checkout-sessions", coordinator.Shutdown)

	views := projection.New(ledgerSrv, cfg.ProjectionPage, cfg.ProjectionTTL)
	updates, unsubscribe := bus.Subscribe()
	go views.Run(ctx, updates)
	shutdownqueue.AddNamed("projection", func(context.Context) error {
		unsubscribe()
		return nil
	})

	// Grants written by other replicas or ledgerctl reach the bus through
	// Kafka. Each process reads with its own group.
	if len(cfg.Kafka.Brokers) > 0 {
		groupID := "creditsettle-api-" + uuid.NewString()
		remote, kerr := events.NewKafkaConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, groupID, bus)
		if kerr != nil {
			return fmt.Errorf("init kafka consumer: %w", kerr)
		}
		consumeCtx, stopConsume := context.WithCancel(ctx)
		consumed := make(chan struct{})
		go func() {
			defer close(consumed)
			if err := remote.Run(consumeCtx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("kafka consumer stopped", "error", err)
			}
		}()
		shutdownqueue.AddNamed("kafka-consumer", func(c context.Context) error {
			stopConsume()
			select {
			case <-consumed:
			case <-c.Done():
				return c.Err()
			}
			return remote.Close(c)
		})
	}

	var backends []media.Backend
	if cfg.Media.Endpoint != "" {
		backends = media.NewHTTPBackends(cfg.Media.Endpoint, cfg.Media.Models, cfg.Media.Timeout)
	} else {
		slog.Warn("MEDIA_ENDPOINT not set, generation disabled")
	}
	generator := media.NewService(ledgerSrv, publisher, backends...)

	// --- Jobs ---
	scheduler := jobs.NewScheduler()
	sweep := jobs.NewPendingSweep(inbox, adapters, receiver, cfg.Jobs.PendingMinAge, cfg.Jobs.PendingBatch)

	err = scheduler.Add("pending-sweep", cfg.Jobs.PendingSweep, sweep.Job)
	if err != nil {
		return fmt.Errorf("schedule jobs: %w", err)
	}

	err = scheduler.Start(ctx)
	if err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	shutdownqueue.AddNamed("scheduler", scheduler.Stop)

	// --- HTTP server ---
	srv := api.NewServer(cfg.Port, api.Services{
		Webhooks:  receiver,
		Checkout:  coordinator,
		Accounts:  views,
		Generator: generator,
	}, logging.Component("http"))

	shutdownqueue.AddNamed("http-server", func(c context.Context) error {
		err := srv.Shutdown(c)
		if err != nil {
			return fmt.Errorf("shutdown srv: %w", err)
		}

		return nil
	})

	errCh := make(chan error, 1)

	go func() {
		serr := srv.ListenAndServe()
		// http.ErrServerClosed is the normal path during Shutdown
		if serr != nil && !errors.Is(serr, http.ErrServerClosed) {
			errCh <- serr
			return
		}

		errCh <- nil
	}()

	slog.Info("API started", "port", cfg.Port, "providers", len(adapters), "sandbox", cfg.Payments.Sandbox)

	select {
	case <-ctx.Done():
		return nil
	case serr := <-errCh:
		if serr != nil {
			return fmt.Errorf("server error: %w", serr)
		}

		return nil
	}
}

func newAdapters(cfg *apiConfig) payments.Registry {
	list := []payments.Adapter{
		mobilemoney.New(mobilemoney.Config{
			PublicKey: cfg.Payments.MobileMoney.PublicKey,
			SecretKey: cfg.Payments.MobileMoney.SecretKey,
			BaseURL:   cfg.Payments.MobileMoney.BaseURL,
			Sandbox:   cfg.Payments.Sandbox,
		}),
	}

	if cfg.Payments.Card.SecretKey != "" {
		list = append(list, card.New(card.Config{
			SecretKey: cfg.Payments.Card.SecretKey,
			BaseURL:   cfg.Payments.Card.BaseURL,
		}))
	} else {
		slog.Warn("CARD_SECRET_KEY not set, card payments disabled")
	}

	return payments.NewRegistry(list...)
}
