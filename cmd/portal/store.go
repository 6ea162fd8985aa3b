package main

import (
	"context"
	"fmt"

	"github.com/vaidashi/support-portal/internal/config"
	"github.com/vaidashi/support-portal/internal/database"
	"github.com/vaidashi/support-portal/internal/repository"
	"github.com/vaidashi/support-portal/pkg/logger"
)

// stores is the order store and the outbox it writes events into
type stores struct {
	orders repository.OrderStore
	outbox repository.OutboxStore
	db     *database.Database
}

func (s *stores) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func openStores(ctx context.Context, cfg *config.Config, log logger.Logger) (*stores, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		log.Warn("Using the in-memory order store; data is lost on exit")
		mem := repository.NewMemoryStore(log)
		return &stores{orders: mem, outbox: mem.Outbox()}, nil

	case config.StoreDriverPostgres:
		db, err := database.New(ctx, cfg, log)

		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		if err := db.RunMigrations(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run database migrations: %w", err)
		}

		outboxRepo := repository.NewOutboxRepository(db, log)

		return &stores{
			orders: repository.NewOrderRepository(db, outboxRepo, log),
			outbox: outboxRepo,
			db:     db,
		}, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
