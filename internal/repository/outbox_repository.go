package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/vaidashi/support-portal/internal/database"
	"github.com/vaidashi/support-portal/internal/models"
	"github.com/vaidashi/support-portal/pkg/logger"
)

const outboxColumns = `id, aggregate_type, aggregate_id, event_type, payload, created_at,
	available_at, processed_at, processing_attempts, last_error, status`

const insertOutbox = `
	INSERT INTO outbox_messages (
		aggregate_type, aggregate_id, event_type, payload,
		created_at, available_at, status
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7
	) RETURNING id
`

// OutboxRepository handles database operations for outbox messages
type OutboxRepository struct {
	db     *database.Database
	logger logger.Logger
}

// NewOutboxRepository creates a new OutboxRepository
func NewOutboxRepository(db *database.Database, logger logger.Logger) *OutboxRepository {
	return &OutboxRepository{
		db:     db,
		logger: logger,
	}
}

func insertArgs(message *models.OutboxMessage) []interface{} {
	if message.AvailableAt.IsZero() {
		message.AvailableAt = message.CreatedAt
	}

	return []interface{}{
		message.AggregateType,
		message.AggregateID,
		message.EventType,
		message.Payload,
		message.CreatedAt,
		message.AvailableAt,
		message.Status,
	}
}

// Create inserts a new outbox message into the database
func (r *OutboxRepository) Create(ctx context.Context, message *models.OutboxMessage) error {
	var id int64

	err := r.db.DB.QueryRowContext(ctx, insertOutbox, insertArgs(message)...).Scan(&id)

	if err != nil {
		r.logger.Error("Failed to create outbox message", "error", err, "eventType", message.EventType)
		return dbError(err)
	}

	message.ID = id
	return nil
}

// CreateInTx creates a new outbox message within a transaction
func (r *OutboxRepository) CreateInTx(ctx context.Context, tx *sqlx.Tx, message *models.OutboxMessage) error {
	var id int64

	err := tx.QueryRowContext(ctx, insertOutbox, insertArgs(message)...).Scan(&id)

	if err != nil {
		return fmt.Errorf("failed to create outbox message in transaction: %w", dbError(err))
	}

	message.ID = id
	return nil
}

// GetPendingMessages retrieves due pending messages, oldest first
func (r *OutboxRepository) GetPendingMessages(ctx context.Context, limit int) ([]*models.OutboxMessage, error) {
	query := `
		SELECT ` + outboxColumns + `
		FROM outbox_messages
		WHERE status = $1 AND available_at <= $2
		ORDER BY created_at ASC, id ASC
		LIMIT $3
	`

	var messages []*models.OutboxMessage

	err := r.db.DB.SelectContext(
		ctx,
		&messages,
		query,
		models.OutboxStatusPending,
		models.GetCurrentTime(),
		limit,
	)

	if err != nil {
		r.logger.Error("Failed to get pending outbox messages", "error", err)
		return nil, dbError(err)
	}

	return messages, nil
}

// MarkAsProcessing claims a message. available_at records when the claim
// was taken so RequeueStuck can find abandoned claims.
func (r *OutboxRepository) MarkAsProcessing(ctx context.Context, id int64) error {
	query := `
		UPDATE outbox_messages
		SET status = $1, processing_attempts = processing_attempts + 1, available_at = $2
		WHERE id = $3
	`

	return r.exec(ctx, "processing", id, query, models.OutboxStatusProcessing, models.GetCurrentTime(), id)
}

// MarkAsCompleted updates the status of an outbox message to completed
func (r *OutboxRepository) MarkAsCompleted(ctx context.Context, id int64) error {
	query := `
		UPDATE outbox_messages
		SET status = $1, processed_at = $2
		WHERE id = $3
	`

	return r.exec(ctx, "completed", id, query, models.OutboxStatusCompleted, models.GetCurrentTime(), id)
}

// MarkAsFailed updates the status of an outbox message to failed
func (r *OutboxRepository) MarkAsFailed(ctx context.Context, id int64, errorMessage string) error {
	query := `
		UPDATE outbox_messages
		SET status = $1, last_error = $2
		WHERE id = $3
	`

	return r.exec(ctx, "failed", id, query, models.OutboxStatusFailed, errorMessage, id)
}

// ReleaseForRetry puts a message back to pending until availableAt
func (r *OutboxRepository) ReleaseForRetry(ctx context.Context, id int64, errorMessage string, availableAt time.Time) error {
	query := `
		UPDATE outbox_messages
		SET status = $1, last_error = $2, available_at = $3
		WHERE id = $4
	`

	return r.exec(ctx, "retry", id, query, models.OutboxStatusPending, errorMessage, availableAt.UTC(), id)
}

// RequeueStuck returns processing messages claimed before olderThan to pending
func (r *OutboxRepository) RequeueStuck(ctx context.Context, olderThan time.Time) (int, error) {
	query := `
		UPDATE outbox_messages
		SET status = $1, available_at = $2
		WHERE status = $3 AND available_at < $4
	`

	result, err := r.db.DB.ExecContext(ctx, query,
		models.OutboxStatusPending, models.GetCurrentTime(), models.OutboxStatusProcessing, olderThan.UTC())

	if err != nil {
		r.logger.Error("Failed to requeue stuck outbox messages", "error", err)
		return 0, dbError(err)
	}

	n, err := result.RowsAffected()

	if err != nil {
		return 0, dbError(err)
	}

	return int(n), nil
}

// GetMessage retrieves an outbox message by ID
func (r *OutboxRepository) GetMessage(ctx context.Context, id int64) (*models.OutboxMessage, error) {
	query := `SELECT ` + outboxColumns + ` FROM outbox_messages WHERE id = $1`

	var message models.OutboxMessage

	err := r.db.DB.GetContext(ctx, &message, query, id)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to get outbox message", "error", err, "message_id", id)
		return nil, dbError(err)
	}

	return &message, nil
}

func (r *OutboxRepository) exec(ctx context.Context, state string, id int64, query string, args ...interface{}) error {
	result, err := r.db.DB.ExecContext(ctx, query, args...)

	if err != nil {
		r.logger.Error("Failed to update outbox message", "error", err, "message_id", id, "state", state)
		return dbError(err)
	}

	rowsAffected, err := result.RowsAffected()

	if err != nil {
		return dbError(err)
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}
