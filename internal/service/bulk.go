package service

import (
	"context"

	"github.com/vaidashi/support-portal/internal/engine"
	"github.com/vaidashi/support-portal/internal/models"
	"github.com/vaidashi/support-portal/internal/repository"
	apperrors "github.com/vaidashi/support-portal/pkg/errors"
)

// BulkRequest names the selected orders. When Category is set the
// selection is narrowed to the orders visible in it first.
type BulkRequest struct {
	IDs      []string `json:"ids"`
	Category string   `json:"category,omitempty"`
}

// BulkResult reports what a bulk action changed
type BulkResult struct {
	Operation string   `json:"operation"`
	Affected  []string `json:"affected"`
	Skipped   []string `json:"skipped"`
}

// BulkArchive archives the selected orders atomically
func (s *OrderService) BulkArchive(ctx context.Context, req BulkRequest) (BulkResult, error) {
	return s.bulk(ctx, "archive", req, s.store.BulkArchive)
}

// BulkDelete deletes the selected orders atomically
func (s *OrderService) BulkDelete(ctx context.Context, req BulkRequest) (BulkResult, error) {
	return s.bulk(ctx, "delete", req, s.store.BulkDelete)
}

func (s *OrderService) bulk(ctx context.Context, op string, req BulkRequest, apply func(context.Context, []string) error) (BulkResult, error) {
	selection := engine.NewSelection(req.IDs...)
	result := BulkResult{Operation: op, Affected: []string{}, Skipped: []string{}}

	if selection.Len() == 0 {
		return result, apperrors.NewValidationError("ids", "at least one order id is required")
	}

	ids := selection.IDs()

	if req.Category != "" {
		visible, err := s.visible(ctx, req.Category)

		if err != nil {
			return result, err
		}

		ids = selection.Effective(visible)
		result.Skipped = skipped(selection.IDs(), ids)

		if len(result.Skipped) > 0 {
			s.logger.Debug("Ignoring ids outside the current view", "operation", op, "category", req.Category, "skipped", len(result.Skipped))
		}

		if len(ids) == 0 {
			return result, nil
		}
	}

	if err := apply(ctx, ids); err != nil {
		s.logger.Warn("Bulk operation failed", "operation", op, "count", len(ids), "error", err)
		return result, err
	}

	result.Affected = ids
	s.logger.Info("Bulk operation completed", "operation", op, "count", len(ids))

	return result, nil
}

func (s *OrderService) visible(ctx context.Context, category string) ([]*models.Order, error) {
	c, err := engine.ParseCategory(category)

	if err != nil {
		return nil, err
	}

	orders, err := s.store.List(ctx, repository.ListFilter{})

	if err != nil {
		return nil, err
	}

	return engine.Classify(orders, c)
}

func skipped(all, kept []string) []string {
	keep := make(map[string]struct{}, len(kept))
	for _, id := range kept {
		keep[id] = struct{}{}
	}

	out := []string{}
	for _, id := range all {
		if _, ok := keep[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
