package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vaidashi/support-portal/internal/models"
	apperrors "github.com/vaidashi/support-portal/pkg/errors"
	"github.com/vaidashi/support-portal/pkg/logger"
)

// MemoryStore is an OrderStore kept in process memory. Orders are cloned on
// the way in and out so callers never share state with the store.
type MemoryStore struct {
	mu     sync.RWMutex
	orders map[string]*models.Order
	seq    map[string]int64
	next   int64
	outbox *MemoryOutbox
	now    func() time.Time
	logger logger.Logger
}

// NewMemoryStore creates an empty store
func NewMemoryStore(logger logger.Logger) *MemoryStore {
	return &MemoryStore{
		orders: make(map[string]*models.Order),
		seq:    make(map[string]int64),
		outbox: NewMemoryOutbox(),
		now:    models.GetCurrentTime,
		logger: logger,
	}
}

// WithClock replaces the clock used to stamp updated_at
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	return s
}

// Outbox returns the outbox the store records events into
func (s *MemoryStore) Outbox() *MemoryOutbox {
	return s.outbox
}

// Ping always succeeds
func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// List returns orders newest first
func (s *MemoryStore) List(ctx context.Context, filter ListFilter) ([]*models.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var wanted map[string]struct{}
	if filter.IDs != nil {
		wanted = make(map[string]struct{}, len(filter.IDs))
		for _, id := range filter.IDs {
			wanted[id] = struct{}{}
		}
	}

	out := make([]*models.Order, 0, len(s.orders))

	for id, o := range s.orders {
		if o.Archived && !filter.IncludeArchived {
			continue
		}
		if wanted != nil {
			if _, ok := wanted[id]; !ok {
				continue
			}
		}
		out = append(out, o.Clone())
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return s.seq[a.ID] > s.seq[b.ID]
	})

	return out, nil
}

// GetByID returns a copy of one order
func (s *MemoryStore) GetByID(ctx context.Context, id string) (*models.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]

	if !ok {
		return nil, ErrNotFound
	}

	return o.Clone(), nil
}

// Create stores a new order
func (s *MemoryStore) Create(ctx context.Context, order *models.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[order.ID]; exists {
		return apperrors.NewValidationError("id", fmt.Sprintf("order %s already exists", order.ID))
	}

	for _, o := range s.orders {
		if o.OrderNumber == order.OrderNumber {
			return apperrors.NewValidationError("order_number", fmt.Sprintf("order number %s already exists", order.OrderNumber))
		}
	}

	now := s.now()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now

	msg, err := createdEvent(order)

	if err != nil {
		return fmt.Errorf("failed to create outbox message: %w", err)
	}

	s.next++
	s.seq[order.ID] = s.next
	s.orders[order.ID] = order.Clone()
	s.outbox.add(msg)

	return nil
}

// Update merges patch into the stored order
func (s *MemoryStore) Update(ctx context.Context, id string, patch models.OrderPatch) (*models.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.orders[id]

	if !ok {
		return nil, ErrNotFound
	}

	updated := current.Clone()
	patch.Apply(updated)
	updated.UpdatedAt = s.now()

	msg, err := updatedEvent(current, updated)

	if err != nil {
		return nil, fmt.Errorf("failed to create outbox message: %w", err)
	}

	s.orders[id] = updated
	s.outbox.add(msg)

	return updated.Clone(), nil
}

// Archive hides an order from every view
func (s *MemoryStore) Archive(ctx context.Context, id string) error {
	return s.bulk(ctx, "archive", []string{id}, true, archiveOrder)
}

// Delete removes an order permanently
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	return s.bulk(ctx, "delete", []string{id}, true, deleteOrder)
}

// BulkArchive archives every id, or none when any id is unknown
func (s *MemoryStore) BulkArchive(ctx context.Context, ids []string) error {
	return s.bulk(ctx, "archive", ids, false, archiveOrder)
}

// BulkDelete deletes every id, or none when any id is unknown
func (s *MemoryStore) BulkDelete(ctx context.Context, ids []string) error {
	return s.bulk(ctx, "delete", ids, false, deleteOrder)
}

func archiveOrder(o *models.Order, now time.Time) (*models.OutboxMessage, error) {
	o.Archived = true
	o.UpdatedAt = now
	return archivedEvent(o)
}

func deleteOrder(o *models.Order, now time.Time) (*models.OutboxMessage, error) {
	return deletedEvent(o)
}

// bulk applies mutate to every id under one write lock. A single-order
// call reports ErrNotFound instead of a bulk error.
func (s *MemoryStore) bulk(ctx context.Context, op string, ids []string, single bool, mutate func(*models.Order, time.Time) (*models.OutboxMessage, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ids = uniqueIDs(ids)

	s.mu.Lock()
	defer s.mu.Unlock()

	found := make(map[string]*models.Order, len(ids))
	for _, id := range ids {
		if o, ok := s.orders[id]; ok {
			found[id] = o
		}
	}

	if missing := missingIDs(ids, found); len(missing) > 0 {
		if single {
			return ErrNotFound
		}
		return bulkNotFound(op, missing)
	}

	// Stage every change before touching the map
	now := s.now()
	changed := make([]*models.Order, 0, len(ids))
	messages := make([]*models.OutboxMessage, 0, len(ids))

	for _, id := range ids {
		o := found[id].Clone()
		msg, err := mutate(o, now)

		if err != nil {
			return fmt.Errorf("failed to create outbox message: %w", err)
		}

		changed = append(changed, o)
		messages = append(messages, msg)
	}

	for _, o := range changed {
		if op == "delete" {
			delete(s.orders, o.ID)
			delete(s.seq, o.ID)
			continue
		}
		s.orders[o.ID] = o
	}

	for _, msg := range messages {
		s.outbox.add(msg)
	}

	s.logger.Debug("Bulk operation applied", "operation", op, "count", len(ids))
	return nil
}

// DefaultCompletedRetention is how many completed messages a MemoryOutbox keeps
const DefaultCompletedRetention = 1000

// MemoryOutbox is an OutboxStore kept in process memory. Completed messages
// beyond the retention limit are dropped, oldest first.
type MemoryOutbox struct {
	mu        sync.Mutex
	messages  []*models.OutboxMessage
	index     map[int64]*models.OutboxMessage
	completed []int64
	retain    int
	next      int64
	now       func() time.Time
}

// NewMemoryOutbox creates an empty outbox
func NewMemoryOutbox() *MemoryOutbox {
	return &MemoryOutbox{
		index:  make(map[int64]*models.OutboxMessage),
		retain: DefaultCompletedRetention,
		now:    models.GetCurrentTime,
	}
}

// WithRetention sets how many completed messages are kept
func (o *MemoryOutbox) WithRetention(n int) *MemoryOutbox {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.retain = n
	return o
}

func (o *MemoryOutbox) add(msg *models.OutboxMessage) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.next++
	msg.ID = o.next
	if msg.AvailableAt.IsZero() {
		msg.AvailableAt = msg.CreatedAt
	}

	cp := *msg
	o.messages = append(o.messages, &cp)
	o.index[cp.ID] = &cp
}

func (o *MemoryOutbox) find(id int64) (*models.OutboxMessage, error) {
	if m, ok := o.index[id]; ok {
		return m, nil
	}
	return nil, ErrNotFound
}

// prune drops the oldest completed messages past the retention limit
func (o *MemoryOutbox) prune() {
	excess := len(o.completed) - o.retain
	if excess <= 0 {
		return
	}

	drop := make(map[int64]struct{}, excess)
	for _, id := range o.completed[:excess] {
		drop[id] = struct{}{}
		delete(o.index, id)
	}
	o.completed = append([]int64(nil), o.completed[excess:]...)

	kept := o.messages[:0]
	for _, m := range o.messages {
		if _, ok := drop[m.ID]; !ok {
			kept = append(kept, m)
		}
	}
	for i := len(kept); i < len(o.messages); i++ {
		o.messages[i] = nil
	}
	o.messages = kept
}

// Create appends a message
func (o *MemoryOutbox) Create(ctx context.Context, message *models.OutboxMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	o.add(message)
	return nil
}

// GetPendingMessages returns due pending messages, oldest first
func (o *MemoryOutbox) GetPendingMessages(ctx context.Context, limit int) ([]*models.OutboxMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.now()
	var out []*models.OutboxMessage

	for _, m := range o.messages {
		if len(out) >= limit {
			break
		}
		if m.Status == models.OutboxStatusPending && !m.AvailableAt.After(now) {
			cp := *m
			out = append(out, &cp)
		}
	}

	return out, nil
}

// MarkAsProcessing claims a message and records the claim time in AvailableAt
func (o *MemoryOutbox) MarkAsProcessing(ctx context.Context, id int64) error {
	return o.mutate(id, func(m *models.OutboxMessage) {
		m.Status = models.OutboxStatusProcessing
		m.ProcessingAttempts++
		m.AvailableAt = o.now()
	})
}

// MarkAsCompleted updates the status of an outbox message to completed
func (o *MemoryOutbox) MarkAsCompleted(ctx context.Context, id int64) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	m, err := o.find(id)

	if err != nil {
		return err
	}

	if m.Status != models.OutboxStatusCompleted {
		o.completed = append(o.completed, id)
	}

	now := o.now()
	m.Status = models.OutboxStatusCompleted
	m.ProcessedAt = &now

	o.prune()
	return nil
}

// MarkAsFailed updates the status of an outbox message to failed
func (o *MemoryOutbox) MarkAsFailed(ctx context.Context, id int64, errorMessage string) error {
	return o.mutate(id, func(m *models.OutboxMessage) {
		m.Status = models.OutboxStatusFailed
		m.LastError = &errorMessage
	})
}

// ReleaseForRetry puts a message back to pending until availableAt
func (o *MemoryOutbox) ReleaseForRetry(ctx context.Context, id int64, errorMessage string, availableAt time.Time) error {
	return o.mutate(id, func(m *models.OutboxMessage) {
		m.Status = models.OutboxStatusPending
		m.LastError = &errorMessage
		m.AvailableAt = availableAt
	})
}

// RequeueStuck returns processing messages claimed before olderThan to pending
func (o *MemoryOutbox) RequeueStuck(ctx context.Context, olderThan time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.now()
	n := 0

	for _, m := range o.messages {
		if m.Status == models.OutboxStatusProcessing && m.AvailableAt.Before(olderThan) {
			m.Status = models.OutboxStatusPending
			m.AvailableAt = now
			n++
		}
	}

	return n, nil
}

func (o *MemoryOutbox) mutate(id int64, fn func(*models.OutboxMessage)) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	m, err := o.find(id)

	if err != nil {
		return err
	}

	fn(m)
	return nil
}

// Messages returns a snapshot of every message
func (o *MemoryOutbox) Messages() []models.OutboxMessage {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]models.OutboxMessage, 0, len(o.messages))
	for _, m := range o.messages {
		out = append(out, *m)
	}
	return out
}
