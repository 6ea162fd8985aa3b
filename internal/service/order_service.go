package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/vaidashi/support-portal/internal/engine"
	"github.com/vaidashi/support-portal/internal/models"
	"github.com/vaidashi/support-portal/internal/repository"
	apperrors "github.com/vaidashi/support-portal/pkg/errors"
	"github.com/vaidashi/support-portal/pkg/logger"
)

// Options tunes the business rules that come from configuration
type Options struct {
	// HighPriorityAmount marks new orders above it as high priority when
	// the caller does not say otherwise
	HighPriorityAmount    decimal.Decimal
	ReminderThresholdDays int
}

// OrderService handles order-related operations
type OrderService struct {
	store    repository.OrderStore
	opts     Options
	validate *validator.Validate
	now      func() time.Time
	logger   logger.Logger
}

// NewOrderService creates a new OrderService
func NewOrderService(store repository.OrderStore, opts Options, logger logger.Logger) *OrderService {
	return &OrderService{
		store:    store,
		opts:     opts,
		validate: newValidator(),
		now:      models.GetCurrentTime,
		logger:   logger,
	}
}

// WithClock replaces the clock used for staleness
func (s *OrderService) WithClock(now func() time.Time) *OrderService {
	s.now = now
	return s
}

// CreateOrderRequest is the payload of a new order
type CreateOrderRequest struct {
	OrderNumber    string                 `json:"order_number"`
	OrderDate      models.Date            `json:"order_date"`
	CustomerName   string                 `json:"customer_name" validate:"required"`
	CustomerEmail  string                 `json:"customer_email" validate:"required,email"`
	Amount         *decimal.Decimal       `json:"amount" validate:"required"`
	ProductItems   []models.ProductItem   `json:"product_items" validate:"required,min=1,dive"`
	Stages         models.Stages          `json:"stages"`
	Touchpoints    models.Touchpoints     `json:"touchpoints"`
	IsHighPriority *bool                  `json:"is_high_priority"`
	CustomReminder *models.CustomReminder `json:"custom_reminder"`
	Notes          string                 `json:"notes"`
}

// CreateOrder validates req and stores a new order
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*models.Order, error) {
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.CustomerEmail = strings.TrimSpace(req.CustomerEmail)
	req.OrderNumber = strings.TrimSpace(req.OrderNumber)

	for i := range req.ProductItems {
		req.ProductItems[i].Name = strings.TrimSpace(req.ProductItems[i].Name)
		req.ProductItems[i].SKU = strings.TrimSpace(req.ProductItems[i].SKU)
	}

	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}

	if req.OrderDate.IsZero() {
		return nil, apperrors.NewValidationError("order_date", "is required")
	}

	if req.Amount.IsNegative() {
		return nil, apperrors.NewValidationError("amount", "must not be negative")
	}

	order := models.NewOrder(req.OrderNumber, req.OrderDate, req.CustomerName, req.CustomerEmail,
		*req.Amount, req.ProductItems, req.Notes)
	order.Stages = req.Stages
	order.Touchpoints = req.Touchpoints

	if req.IsHighPriority != nil {
		order.IsHighPriority = *req.IsHighPriority
	} else {
		order.IsHighPriority = order.Amount.GreaterThan(s.opts.HighPriorityAmount)
	}

	if req.CustomReminder != nil {
		r, err := engine.NormalizeReminder(*req.CustomReminder)

		if err != nil {
			return nil, err
		}

		order.CustomReminder = &r
	}

	if err := s.store.Create(ctx, order); err != nil {
		return nil, err
	}

	s.logger.Info("Order created", "orderID", order.ID, "orderNumber", order.OrderNumber)
	return order, nil
}

// GetOrder retrieves an order by ID
func (s *OrderService) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	order, err := s.store.GetByID(ctx, id)

	if err != nil {
		return nil, notFound(id, err)
	}

	return order, nil
}

// UpdateOrder validates and merges patch into the order
func (s *OrderService) UpdateOrder(ctx context.Context, id string, patch models.OrderPatch) (*models.Order, error) {
	if err := s.validatePatch(&patch); err != nil {
		return nil, err
	}

	before, err := s.store.GetByID(ctx, id)

	if err != nil {
		return nil, notFound(id, err)
	}

	// Touchpoint edits re-derive the priority flag unless it is set explicitly
	if patch.Touchpoints != nil && patch.IsHighPriority == nil {
		amount := before.Amount
		if patch.Amount != nil {
			amount = *patch.Amount
		}
		high := amount.GreaterThan(s.opts.HighPriorityAmount)
		patch.IsHighPriority = &high
	}

	order, err := s.store.Update(ctx, id, patch)

	if err != nil {
		return nil, notFound(id, err)
	}

	if oldStatus, newStatus := engine.ResolveStatus(before.Stages), engine.ResolveStatus(order.Stages); oldStatus != newStatus {
		s.logger.Info("Order status changed", "orderID", id, "oldStatus", oldStatus, "newStatus", newStatus)
	} else {
		s.logger.Debug("Order updated", "orderID", id)
	}

	return order, nil
}

// SetStage toggles a single pipeline flag
func (s *OrderService) SetStage(ctx context.Context, id string, stageKey string, value bool) (*models.Order, error) {
	stage, ok := models.ParseStage(stageKey)

	if !ok {
		return nil, apperrors.NewValidationError("stage", fmt.Sprintf("unknown stage %q", stageKey))
	}

	return s.UpdateOrder(ctx, id, models.SetStage(stage, value))
}

// SetReminder replaces the order's custom reminder
func (s *OrderService) SetReminder(ctx context.Context, id string, reminder models.CustomReminder) (*models.Order, error) {
	r, err := engine.NormalizeReminder(reminder)

	if err != nil {
		return nil, err
	}

	return s.UpdateOrder(ctx, id, models.OrderPatch{
		CustomReminder: &models.ReminderPatch{
			Days:     &r.Days,
			Time:     &r.Time,
			Note:     &r.Note,
			IsActive: &r.IsActive,
		},
	})
}

func (s *OrderService) validatePatch(patch *models.OrderPatch) error {
	if patch.CustomerName != nil {
		name := strings.TrimSpace(*patch.CustomerName)
		if name == "" {
			return apperrors.NewValidationError("customer_name", "is required")
		}
		patch.CustomerName = &name
	}

	if patch.CustomerEmail != nil {
		email := strings.TrimSpace(*patch.CustomerEmail)
		if err := s.validate.Var(email, "required,email"); err != nil {
			return apperrors.NewValidationError("customer_email", "must be a valid email address")
		}
		patch.CustomerEmail = &email
	}

	if patch.Amount != nil && patch.Amount.IsNegative() {
		return apperrors.NewValidationError("amount", "must not be negative")
	}

	if patch.ProductItems != nil {
		if len(patch.ProductItems) == 0 {
			return apperrors.NewValidationError("product_items", "must contain at least 1 item(s)")
		}

		for i := range patch.ProductItems {
			patch.ProductItems[i].Name = strings.TrimSpace(patch.ProductItems[i].Name)
			patch.ProductItems[i].SKU = strings.TrimSpace(patch.ProductItems[i].SKU)

			if err := s.validate.Struct(patch.ProductItems[i]); err != nil {
				verr := validationError(err).(*apperrors.ValidationError)
				verr.Field = fmt.Sprintf("product_items[%d].%s", i, verr.Field)
				return verr
			}
		}
	}

	if patch.CustomReminder != nil && patch.CustomReminder.Time != nil {
		if err := engine.ValidateReminderTime(*patch.CustomReminder.Time); err != nil {
			return err
		}
	}

	if patch.CustomReminder != nil && patch.CustomReminder.Days != nil && *patch.CustomReminder.Days < 0 {
		zero := models.ReminderDays(0)
		patch.CustomReminder.Days = &zero
	}

	return nil
}

// ArchiveOrder hides an order from every view
func (s *OrderService) ArchiveOrder(ctx context.Context, id string) error {
	if err := s.store.Archive(ctx, id); err != nil {
		return notFound(id, err)
	}

	s.logger.Info("Order archived", "orderID", id)
	return nil
}

// DeleteOrder deletes an order permanently
func (s *OrderService) DeleteOrder(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return notFound(id, err)
	}

	s.logger.Info("Order deleted", "orderID", id)
	return nil
}

// ListOrders returns the orders visible in category in store order
func (s *OrderService) ListOrders(ctx context.Context, category string) ([]*models.Order, error) {
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

// Counts returns the dashboard counters
func (s *OrderService) Counts(ctx context.Context) (engine.Counts, error) {
	orders, err := s.store.List(ctx, repository.ListFilter{})

	if err != nil {
		return engine.Counts{}, err
	}

	return engine.CountOrders(orders), nil
}

// ListReminders returns the stale orders, most stale first
func (s *OrderService) ListReminders(ctx context.Context) ([]engine.StaleReminder, error) {
	orders, err := s.store.List(ctx, repository.ListFilter{})

	if err != nil {
		return nil, err
	}

	return engine.FindStale(orders, s.opts.ReminderThresholdDays, s.now()), nil
}

// Analytics builds the month-over-month report for period. Archived
// orders still count toward analytics.
func (s *OrderService) Analytics(ctx context.Context, period engine.Period) (engine.Report, error) {
	orders, err := s.store.List(ctx, repository.ListFilter{IncludeArchived: true})

	if err != nil {
		return engine.Report{}, err
	}

	return engine.BuildReport(orders, period), nil
}

// CurrentPeriod is the calendar month containing now
func (s *OrderService) CurrentPeriod() engine.Period {
	return engine.PeriodOf(s.now())
}

// Ping checks the store
func (s *OrderService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// notFound turns a store miss into a user-facing not-found error
func notFound(id string, err error) error {
	if errors.Is(err, repository.ErrNotFound) && !errors.Is(err, apperrors.ErrBulkOperation) {
		return apperrors.NewNotFoundError(fmt.Sprintf("order %s not found", id))
	}
	return err
}
