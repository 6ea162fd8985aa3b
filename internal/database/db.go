package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/vaidashi/support-portal/internal/config"
	apperrors "github.com/vaidashi/support-portal/pkg/errors"
	"github.com/vaidashi/support-portal/pkg/logger"
	"github.com/vaidashi/support-portal/pkg/retry"
)

// Database represents a database connection
type Database struct {
	DB     *sqlx.DB
	logger logger.Logger
}

// New connects to Postgres, retrying while the server is unreachable
func New(ctx context.Context, cfg *config.Config, logger logger.Logger) (*Database, error) {
	return Open(ctx, cfg.GetDBConnString(), logger)
}

// Open connects using a raw DSN
func Open(ctx context.Context, dsn string, logger logger.Logger) (*Database, error) {
	var db *sqlx.DB

	err := retry.Retry(ctx, func(ctx context.Context) error {
		conn, err := sqlx.ConnectContext(ctx, "postgres", dsn)

		if err != nil {
			return apperrors.NewTransientError(fmt.Sprintf("failed to connect to database: %v", err))
		}

		db = conn
		return nil
	}, &retry.RetryConfig{
		MaxAttempts:     5,
		BackoffStrategy: retry.NewConnectBackoff(),
		Logger:          logger,
	})

	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	logger.Info("Connected to database")

	return &Database{
		DB:     db,
		logger: logger,
	}, nil
}

// Ping checks the database connection
func (d *Database) Ping(ctx context.Context) error {
	return d.DB.PingContext(ctx)
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.DB.Close()
}

// Schema creates the orders and outbox tables
const Schema = `
	CREATE TABLE IF NOT EXISTS orders (
		id VARCHAR(64) PRIMARY KEY,
		order_number VARCHAR(64) NOT NULL,
		order_date DATE NOT NULL,
		customer_name TEXT NOT NULL,
		customer_email TEXT NOT NULL,
		amount NUMERIC(12, 2) NOT NULL CHECK (amount >= 0),
		product_items JSONB NOT NULL DEFAULT '[]',
		stages JSONB NOT NULL DEFAULT '{}',
		touchpoints JSONB NOT NULL DEFAULT '{}',
		is_high_priority BOOLEAN NOT NULL DEFAULT FALSE,
		custom_reminder JSONB,
		notes TEXT NOT NULL DEFAULT '',
		archived BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT orders_order_number_key UNIQUE (order_number)
	);

	CREATE INDEX IF NOT EXISTS idx_orders_archived ON orders(archived);
	CREATE INDEX IF NOT EXISTS idx_orders_order_date ON orders(order_date);
	CREATE INDEX IF NOT EXISTS idx_orders_updated_at ON orders(updated_at);

	CREATE TABLE IF NOT EXISTS outbox_messages (
		id BIGSERIAL PRIMARY KEY,
		aggregate_type VARCHAR(50) NOT NULL,
		aggregate_id VARCHAR(64) NOT NULL,
		event_type VARCHAR(50) NOT NULL,
		payload JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		available_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		processed_at TIMESTAMPTZ,
		processing_attempts INT NOT NULL DEFAULT 0,
		last_error TEXT,
		status VARCHAR(20) NOT NULL DEFAULT 'pending'
	);

	CREATE INDEX IF NOT EXISTS idx_outbox_status ON outbox_messages(status, available_at);
	CREATE INDEX IF NOT EXISTS idx_outbox_aggregate ON outbox_messages(aggregate_type, aggregate_id);
`

// RunMigrations creates the schema when it does not exist yet
func (d *Database) RunMigrations(ctx context.Context) error {
	if _, err := d.DB.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.logger.Info("Database migrations completed successfully")
	return nil
}
