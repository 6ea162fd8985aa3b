package engine

import (
	"fmt"
	"strings"

	"github.com/vaidashi/support-portal/internal/models"
	apperrors "github.com/vaidashi/support-portal/pkg/errors"
)

// Category is a dashboard view
type Category string

const (
	CategoryAll          Category = "all"
	CategoryUnfulfilled  Category = "unfulfilled"
	CategoryHighPriority Category = "high_priority"
	CategoryCompleted    Category = "completed"
)

// Categories lists the views in tab order
var Categories = []Category{CategoryAll, CategoryUnfulfilled, CategoryHighPriority, CategoryCompleted}

// ParseCategory resolves a view name. An empty name means all;
// "pending" is accepted for unfulfilled.
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(CategoryAll):
		return CategoryAll, nil
	case string(CategoryUnfulfilled), "pending":
		return CategoryUnfulfilled, nil
	case string(CategoryHighPriority), "high-priority":
		return CategoryHighPriority, nil
	case string(CategoryCompleted):
		return CategoryCompleted, nil
	default:
		return "", apperrors.NewValidationError("category", fmt.Sprintf("unknown category %q", s))
	}
}

// Includes reports whether the order is visible in the category
func (c Category) Includes(o *models.Order) bool {
	if o == nil || o.Archived {
		return false
	}

	if c == CategoryCompleted {
		return o.Stages.Delivered
	}

	// Every active view hides delivered orders
	if o.Stages.Delivered {
		return false
	}

	switch c {
	case CategoryAll:
		return true
	case CategoryUnfulfilled:
		return !IsFulfilled(o.Stages)
	case CategoryHighPriority:
		return o.IsHighPriority
	default:
		return false
	}
}

// Classify returns the orders visible in the category, keeping their order
func Classify(orders []*models.Order, category Category) ([]*models.Order, error) {
	switch category {
	case CategoryAll, CategoryUnfulfilled, CategoryHighPriority, CategoryCompleted:
	default:
		return nil, apperrors.NewValidationError("category", fmt.Sprintf("unknown category %q", category))
	}

	out := make([]*models.Order, 0, len(orders))

	for _, o := range orders {
		if category.Includes(o) {
			out = append(out, o)
		}
	}

	return out, nil
}

// Counts are the dashboard tab counters
type Counts struct {
	Total        int `json:"total"`
	All          int `json:"all"`
	Unfulfilled  int `json:"unfulfilled"`
	HighPriority int `json:"high_priority"`
	Completed    int `json:"completed"`
	TotalItems   int `json:"total_items"`
}

// CountOrders computes the counters for every category in one pass
func CountOrders(orders []*models.Order) Counts {
	var c Counts

	for _, o := range orders {
		if o == nil || o.Archived {
			continue
		}

		c.Total++
		c.TotalItems += o.ItemCount()

		if CategoryAll.Includes(o) {
			c.All++
		}
		if CategoryUnfulfilled.Includes(o) {
			c.Unfulfilled++
		}
		if CategoryHighPriority.Includes(o) {
			c.HighPriority++
		}
		if CategoryCompleted.Includes(o) {
			c.Completed++
		}
	}

	return c
}
