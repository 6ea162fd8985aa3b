package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/vaidashi/support-portal/internal/database"
	"github.com/vaidashi/support-portal/internal/models"
	apperrors "github.com/vaidashi/support-portal/pkg/errors"
	"github.com/vaidashi/support-portal/pkg/logger"
)

const orderColumns = `id, order_number, order_date, customer_name, customer_email, amount,
	product_items, stages, touchpoints, is_high_priority, custom_reminder, notes,
	archived, created_at, updated_at`

// OrderRepository handles database operations for orders
type OrderRepository struct {
	db     *database.Database
	outbox *OutboxRepository
	logger logger.Logger
}

// NewOrderRepository creates a new OrderRepository
func NewOrderRepository(db *database.Database, outbox *OutboxRepository, logger logger.Logger) *OrderRepository {
	return &OrderRepository{
		db:     db,
		outbox: outbox,
		logger: logger,
	}
}

// Ping checks the database connection
func (r *OrderRepository) Ping(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return dbError(err)
	}
	return nil
}

// List returns orders newest first
func (r *OrderRepository) List(ctx context.Context, filter ListFilter) ([]*models.Order, error) {
	var (
		where []string
		args  []interface{}
	)

	if !filter.IncludeArchived {
		where = append(where, "archived = FALSE")
	}

	if filter.IDs != nil {
		args = append(args, pq.Array(filter.IDs))
		where = append(where, fmt.Sprintf("id = ANY($%d)", len(args)))
	}

	query := `SELECT ` + orderColumns + ` FROM orders`

	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}

	query += ` ORDER BY created_at DESC, id`

	orders := make([]*models.Order, 0)
	err := r.db.DB.SelectContext(ctx, &orders, query, args...)

	if err != nil {
		r.logger.Error("Failed to list orders", "error", err, "includeArchived", filter.IncludeArchived)
		return nil, dbError(err)
	}

	return orders, nil
}

// GetByID retrieves an order by its ID
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	var order models.Order
	err := r.db.DB.GetContext(ctx, &order, query, id)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to get order by ID", "error", err, "orderID", id)
		return nil, dbError(err)
	}

	return &order, nil
}

// Create inserts a new order together with its order_created event
func (r *OrderRepository) Create(ctx context.Context, order *models.Order) error {
	now := models.GetCurrentTime()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now

	msg, err := createdEvent(order)

	if err != nil {
		return fmt.Errorf("failed to create outbox message: %w", err)
	}

	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	err = r.inTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(
			ctx,
			query,
			order.ID,
			order.OrderNumber,
			order.OrderDate,
			order.CustomerName,
			order.CustomerEmail,
			order.Amount,
			order.ProductItems,
			order.Stages,
			order.Touchpoints,
			order.IsHighPriority,
			order.CustomReminder,
			order.Notes,
			order.Archived,
			order.CreatedAt,
			order.UpdatedAt,
		)

		if err != nil {
			return dbError(err)
		}

		return r.outbox.CreateInTx(ctx, tx, msg)
	})

	if err != nil {
		r.logger.Error("Failed to create order", "error", err, "orderID", order.ID)
		return err
	}

	return nil
}

// Update merges patch into the stored order under a row lock
func (r *OrderRepository) Update(ctx context.Context, id string, patch models.OrderPatch) (*models.Order, error) {
	var updated *models.Order

	err := r.inTx(ctx, func(tx *sqlx.Tx) error {
		var current models.Order
		err := tx.GetContext(ctx, &current, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)

		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return dbError(err)
		}

		updated = current.Clone()
		patch.Apply(updated)
		updated.UpdatedAt = models.GetCurrentTime()

		query := `
			UPDATE orders
			SET customer_name = $1, customer_email = $2, amount = $3, product_items = $4,
				stages = $5, touchpoints = $6, is_high_priority = $7, custom_reminder = $8,
				notes = $9, archived = $10, updated_at = $11
			WHERE id = $12
		`

		_, err = tx.ExecContext(
			ctx,
			query,
			updated.CustomerName,
			updated.CustomerEmail,
			updated.Amount,
			updated.ProductItems,
			updated.Stages,
			updated.Touchpoints,
			updated.IsHighPriority,
			updated.CustomReminder,
			updated.Notes,
			updated.Archived,
			updated.UpdatedAt,
			id,
		)

		if err != nil {
			return dbError(err)
		}

		msg, err := updatedEvent(&current, updated)

		if err != nil {
			return fmt.Errorf("failed to create outbox message: %w", err)
		}

		return r.outbox.CreateInTx(ctx, tx, msg)
	})

	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			r.logger.Error("Failed to update order", "error", err, "orderID", id)
		}
		return nil, err
	}

	return updated, nil
}

// Archive hides an order from every view
func (r *OrderRepository) Archive(ctx context.Context, id string) error {
	return r.bulk(ctx, "archive", []string{id}, true)
}

// Delete deletes an order by its ID
func (r *OrderRepository) Delete(ctx context.Context, id string) error {
	return r.bulk(ctx, "delete", []string{id}, true)
}

// BulkArchive archives every id in one transaction
func (r *OrderRepository) BulkArchive(ctx context.Context, ids []string) error {
	return r.bulk(ctx, "archive", ids, false)
}

// BulkDelete deletes every id in one transaction
func (r *OrderRepository) BulkDelete(ctx context.Context, ids []string) error {
	return r.bulk(ctx, "delete", ids, false)
}

// bulk locks every target row, rolls back when any id is missing and
// otherwise applies op and its outbox events in the same transaction.
func (r *OrderRepository) bulk(ctx context.Context, op string, ids []string, single bool) error {
	ids = uniqueIDs(ids)

	if len(ids) == 0 {
		return nil
	}

	err := r.inTx(ctx, func(tx *sqlx.Tx) error {
		var rows []*models.Order
		err := tx.SelectContext(ctx, &rows, `SELECT `+orderColumns+` FROM orders WHERE id = ANY($1) FOR UPDATE`, pq.Array(ids))

		if err != nil {
			return dbError(err)
		}

		found := make(map[string]*models.Order, len(rows))
		for _, o := range rows {
			found[o.ID] = o
		}

		if missing := missingIDs(ids, found); len(missing) > 0 {
			if single {
				return ErrNotFound
			}
			return bulkNotFound(op, missing)
		}

		now := models.GetCurrentTime()

		switch op {
		case "archive":
			_, err = tx.ExecContext(ctx, `UPDATE orders SET archived = TRUE, updated_at = $2 WHERE id = ANY($1)`, pq.Array(ids), now)
		case "delete":
			_, err = tx.ExecContext(ctx, `DELETE FROM orders WHERE id = ANY($1)`, pq.Array(ids))
		default:
			return fmt.Errorf("unknown bulk operation %q", op)
		}

		if err != nil {
			return dbError(err)
		}

		for _, id := range ids {
			o := found[id]

			var msg *models.OutboxMessage

			if op == "archive" {
				o.Archived = true
				o.UpdatedAt = now
				msg, err = archivedEvent(o)
			} else {
				msg, err = deletedEvent(o)
			}

			if err != nil {
				return fmt.Errorf("failed to create outbox message: %w", err)
			}

			if err := r.outbox.CreateInTx(ctx, tx, msg); err != nil {
				return err
			}
		}

		return nil
	})

	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			r.logger.Error("Bulk operation failed", "error", err, "operation", op, "count", len(ids))
		}
		return err
	}

	r.logger.Info("Bulk operation applied", "operation", op, "count", len(ids))
	return nil
}

func (r *OrderRepository) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.DB.BeginTxx(ctx, nil)

	if err != nil {
		return dbError(err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.logger.Error("Failed to rollback transaction", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return dbError(err)
	}

	return nil
}

// dbError maps a driver error onto the application error kinds
func dbError(err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code.Name() == "unique_violation":
			return apperrors.NewValidationError(constraintField(pqErr.Constraint), "already exists")
		case pqErr.Code.Class() == "08", pqErr.Code.Class() == "53", pqErr.Code.Class() == "57":
			return fmt.Errorf("%w: %v", apperrors.ErrTransientIO, err)
		}
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", apperrors.ErrTransientIO, err)
	}

	return fmt.Errorf("%w: %v", ErrDatabase, err)
}

func constraintField(constraint string) string {
	switch constraint {
	case "orders_order_number_key":
		return "order_number"
	case "orders_pkey":
		return "id"
	default:
		return constraint
	}
}
