// Package reminders turns stale orders into order_stale events for the
// external notifier.
package reminders

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vaidashi/support-portal/internal/engine"
	"github.com/vaidashi/support-portal/internal/models"
	"github.com/vaidashi/support-portal/internal/repository"
	"github.com/vaidashi/support-portal/pkg/logger"
)

// Source lists the orders that currently need follow-up
type Source interface {
	ListReminders(ctx context.Context) ([]engine.StaleReminder, error)
}

// Scanner periodically enqueues an order_stale event for every stale order.
// An order is announced once per day of staleness.
type Scanner struct {
	source   Source
	outbox   repository.OutboxStore
	interval time.Duration
	logger   logger.Logger

	// notified maps order id to the days value last announced
	notified map[string]int
	scanMu   sync.Mutex

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// NewScanner creates a new Scanner
func NewScanner(source Source, outbox repository.OutboxStore, interval time.Duration, logger logger.Logger) *Scanner {
	if interval <= 0 {
		interval = time.Hour
	}

	return &Scanner{
		source:   source,
		outbox:   outbox,
		interval: interval,
		logger:   logger,
		notified: make(map[string]int),
	}
}

// Start runs a scan immediately and then on every interval
func (s *Scanner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()

	s.logger.Info("Reminder scanner started", "interval", s.interval)
}

// Stop stops the scanner and waits for an in-flight scan
func (s *Scanner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.cancel()
	s.wg.Wait()
	s.running = false

	s.logger.Info("Reminder scanner stopped")
}

func (s *Scanner) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.ScanOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("Reminder scan failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ScanOnce enqueues events for orders that became stale, or grew a day
// staler, since the last scan. It returns the number of events written.
func (s *Scanner) ScanOnce(ctx context.Context) (int, error) {
	s.scanMu.Lock()
	defer s.scanMu.Unlock()

	stale, err := s.source.ListReminders(ctx)

	if err != nil {
		return 0, fmt.Errorf("failed to list reminders: %w", err)
	}

	current := make(map[string]int, len(stale))
	written := 0

	for _, r := range stale {
		current[r.OrderID] = r.DaysSinceUpdate

		if days, ok := s.notified[r.OrderID]; ok && days == r.DaysSinceUpdate {
			continue
		}

		msg, err := models.NewOrderEvent(models.EventOrderStale, r.OrderID, models.StaleOrderData{
			OrderID:         r.OrderID,
			CustomerName:    r.CustomerName,
			Amount:          r.Amount.String(),
			DaysSinceUpdate: r.DaysSinceUpdate,
		})

		if err != nil {
			return written, fmt.Errorf("failed to build stale event: %w", err)
		}

		if err := s.outbox.Create(ctx, msg); err != nil {
			s.logger.Error("Failed to enqueue stale event", "error", err, "orderID", r.OrderID)
			delete(current, r.OrderID)
			continue
		}

		written++
	}

	// Orders that are no longer stale are forgotten so a later relapse is announced
	s.notified = current

	if written > 0 {
		s.logger.Info("Stale orders announced", "count", written, "stale", len(stale))
	}

	return written, nil
}
