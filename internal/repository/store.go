package repository

import (
	"context"
	"errors"
	"time"

	"github.com/vaidashi/support-portal/internal/engine"
	"github.com/vaidashi/support-portal/internal/models"
	apperrors "github.com/vaidashi/support-portal/pkg/errors"
)

var (
	ErrNotFound = apperrors.ErrNotFound
	ErrDatabase = errors.New("database error")
)

// ListFilter narrows List. The zero value returns every active order.
type ListFilter struct {
	IncludeArchived bool
	IDs             []string
}

// OrderStore holds order records. Every mutation stamps updated_at and
// records the matching outbox event atomically with the change.
type OrderStore interface {
	List(ctx context.Context, filter ListFilter) ([]*models.Order, error)
	GetByID(ctx context.Context, id string) (*models.Order, error)
	Create(ctx context.Context, order *models.Order) error
	Update(ctx context.Context, id string, patch models.OrderPatch) (*models.Order, error)
	Archive(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	// BulkArchive and BulkDelete change every id or none of them
	BulkArchive(ctx context.Context, ids []string) error
	BulkDelete(ctx context.Context, ids []string) error
	Ping(ctx context.Context) error
}

// OutboxStore holds events waiting to be relayed
type OutboxStore interface {
	Create(ctx context.Context, message *models.OutboxMessage) error
	GetPendingMessages(ctx context.Context, limit int) ([]*models.OutboxMessage, error)
	MarkAsProcessing(ctx context.Context, id int64) error
	MarkAsCompleted(ctx context.Context, id int64) error
	MarkAsFailed(ctx context.Context, id int64, errorMessage string) error
	// ReleaseForRetry returns a message to pending, hidden until availableAt
	ReleaseForRetry(ctx context.Context, id int64, errorMessage string, availableAt time.Time) error
	// RequeueStuck returns processing messages claimed before olderThan to
	// pending and reports how many were requeued
	RequeueStuck(ctx context.Context, olderThan time.Time) (int, error)
}

func createdEvent(o *models.Order) (*models.OutboxMessage, error) {
	return models.NewOrderEvent(models.EventOrderCreated, o.ID, o)
}

func updatedEvent(before, after *models.Order) (*models.OutboxMessage, error) {
	return models.NewOrderEvent(models.EventOrderUpdated, after.ID, models.StatusChange{
		Order:     after,
		OldStatus: engine.ResolveStatus(before.Stages),
		NewStatus: engine.ResolveStatus(after.Stages),
	})
}

func archivedEvent(o *models.Order) (*models.OutboxMessage, error) {
	return models.NewOrderEvent(models.EventOrderArchived, o.ID, o)
}

func deletedEvent(o *models.Order) (*models.OutboxMessage, error) {
	return models.NewOrderEvent(models.EventOrderDeleted, o.ID, models.OrderRef{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
	})
}

// uniqueIDs drops duplicates and blanks, keeping first occurrences
func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))

	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}

	return out
}

// missingIDs returns the ids not present in found, in request order
func missingIDs(ids []string, found map[string]*models.Order) []string {
	var missing []string

	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}

	return missing
}

func bulkNotFound(op string, missing []string) error {
	return &apperrors.BulkOperationError{
		Operation: op,
		FailedIDs: missing,
		Cause:     ErrNotFound,
	}
}
