package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fastprodman/creditsettle/internal/events"
	"github.com/fastprodman/creditsettle/internal/infra/pgutils"
	"github.com/fastprodman/creditsettle/internal/payments"
	"github.com/fastprodman/creditsettle/internal/payments/card"
	"github.com/fastprodman/creditsettle/internal/payments/mobilemoney"
	inboxpg "github.com/fastprodman/creditsettle/internal/repos/webhookevents/postgres"
	"github.com/fastprodman/creditsettle/internal/services/ledger"
	"github.com/fastprodman/creditsettle/internal/services/webhook"
	"github.com/fastprodman/creditsettle/pkg/envconf"
)

// deps is what a command needs from the outside world. close releases it.
type deps struct {
	db       *sql.DB
	ledger   *ledger.Service
	inbox    releaseInbox
	adapters payments.Registry
	receiver *webhook.Receiver
	close    func(ctx context.Context) error
}

func loadDeps(ctx context.Context, opts *rootOptions) (*deps, error) {
	cfg := new(ctlConfig)
	if err := envconf.Load(cfg, opts.envFiles...); err != nil {
		return nil, fmt.Errorf("init config: %w", err)
	}
	setupLogging(cfg.LogLevel)

	db, err := pgutils.OpenDB(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	var (
		publisher events.Publisher = events.Discard{}
		kafka     *events.KafkaPublisher
	)
	if len(cfg.Kafka.Brokers) > 0 {
		kafka, err = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init kafka publisher: %w", err)
		}
		publisher = kafka
	}

	adapters := payments.NewRegistry(
		mobilemoney.New(mobilemoney.Config{Sandbox: cfg.Payments.Sandbox}),
		card.New(card.Config{SecretKey: cfg.Payments.Card.SecretKey, BaseURL: cfg.Payments.Card.BaseURL}),
	)

	l := ledger.New(db)
	inbox := inboxpg.New(db)

	return &deps{
		db:       db,
		ledger:   l,
		inbox:    inbox,
		adapters: adapters,
		// Released events were authenticated on arrival; no credentials are
		// checked again.
		receiver: webhook.NewReceiver(adapters, l, inbox, publisher, webhook.Config{}),
		close: func(ctx context.Context) error {
			if kafka != nil {
				if err := kafka.Close(ctx); err != nil {
					_ = db.Close()
					return err
				}
			}
			return db.Close()
		},
	}, nil
}
