// Package billstore keeps the ordered collection of saved bills and persists
// it as a single JSON blob under one key of a storage.KV.
package billstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"rentbill/internal/amqp"
	"rentbill/internal/core"
	applog "rentbill/internal/log"
	"rentbill/internal/metrics"
	"rentbill/internal/storage"
)

// StorageKey is the key the whole collection is persisted under.
const StorageKey = "bills"

var ErrNotFound = errors.New("bill not found")

// EventPublisher receives bill.saved and bill.deleted notifications.
type EventPublisher interface {
	PublishBillEvent(ctx context.Context, eventType string, bill core.Bill) error
}

// Group is the set of bills sharing a period key.
type Group struct {
	Key   string
	Bills []core.Bill
}

type Store struct {
	mu        sync.Mutex
	kv        storage.KV
	publisher EventPublisher
	metrics   *metrics.Metrics
	logger    *applog.Logger
	now       func() time.Time
	newID     func() string

	loaded bool
	bills  []core.Bill
}

type Option func(*Store)

// WithPublisher enables bill events. A nil publisher leaves events off.
func WithPublisher(p EventPublisher) Option {
	return func(s *Store) { s.publisher = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

func WithLogger(l *applog.Logger) Option {
	return func(s *Store) { s.logger = l.WithComponent(applog.ComponentStore) }
}

func New(kv storage.KV, opts ...Option) *Store {
	s := &Store{
		kv:     kv,
		logger: applog.Default(applog.ComponentStore),
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load reads the persisted collection. An absent or unparsable blob reads as
// an empty collection; only storage failures are returned.
func (s *Store) Load(ctx context.Context) ([]core.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.reloadLocked(ctx); err != nil {
		return nil, err
	}
	return s.snapshotLocked(), nil
}

func (s *Store) reloadLocked(ctx context.Context) error {
	data, err := s.kv.Get(ctx, StorageKey)
	if errors.Is(err, storage.ErrNotFound) {
		s.bills, s.loaded = nil, true
		s.metrics.SetStoredBills(0)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read bills: %w", err)
	}

	var bills []core.Bill
	if err := json.Unmarshal(data, &bills); err != nil {
		s.logger.WarnContext(ctx, "Stored bills are unreadable, starting empty",
			applog.FieldStorageKey, StorageKey,
			"error", err)
		bills = nil
	}
	s.bills, s.loaded = bills, true
	s.metrics.SetStoredBills(len(bills))
	return nil
}

func (s *Store) ensureLoadedLocked(ctx context.Context) error {
	if s.loaded {
		return nil
	}
	return s.reloadLocked(ctx)
}

func (s *Store) snapshotLocked() []core.Bill {
	out := make([]core.Bill, len(s.bills))
	copy(out, s.bills)
	return out
}

func (s *Store) persistLocked(ctx context.Context, bills []core.Bill) error {
	if bills == nil {
		bills = []core.Bill{}
	}
	data, err := json.Marshal(bills)
	if err != nil {
		return fmt.Errorf("encode bills: %w", err)
	}
	if err := s.kv.Set(ctx, StorageKey, data); err != nil {
		return fmt.Errorf("write bills: %w", err)
	}
	return nil
}

// Save appends a snapshot of bill and persists the whole collection. The
// stored copy gets an id and save time when it has none, and its total is
// recomputed from its charges.
func (s *Store) Save(ctx context.Context, bill core.Bill) (core.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoadedLocked(ctx); err != nil {
		return core.Bill{}, err
	}

	if bill.ID == "" {
		bill.ID = s.newID()
	}
	if bill.SavedAt.IsZero() {
		bill.SavedAt = s.now().UTC()
	}
	bill.RecomputeTotal()

	next := append(s.snapshotLocked(), bill)
	if err := s.persistLocked(ctx, next); err != nil {
		return core.Bill{}, fmt.Errorf("save bill: %w", err)
	}
	s.bills = next
	s.metrics.IncBillsSaved()
	s.metrics.SetStoredBills(len(next))

	s.logger.DebugContext(ctx, "Bill persisted",
		applog.NewFields().WithOperation(applog.OpSave).
			WithBill(bill.ID, string(bill.Floor), bill.PeriodKey(), bill.Total).ToSlice()...)

	s.publish(ctx, amqp.EventBillSaved, bill)
	return bill, nil
}

// Delete removes every bill whose (month, year, floor, total, billDate)
// tuple equals c and returns how many were removed. No match leaves the
// persisted blob untouched.
func (s *Store) Delete(ctx context.Context, c core.Criteria) (int, error) {
	return s.removeWhere(ctx, func(b core.Bill) bool { return b.Matches(c) })
}

// DeleteByID removes the bill with the given id.
func (s *Store) DeleteByID(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	n, err := s.removeWhere(ctx, func(b core.Bill) bool { return b.ID == id })
	return n > 0, err
}

func (s *Store) removeWhere(ctx context.Context, match func(core.Bill) bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoadedLocked(ctx); err != nil {
		return 0, err
	}

	kept := make([]core.Bill, 0, len(s.bills))
	var removed []core.Bill
	for _, b := range s.bills {
		if match(b) {
			removed = append(removed, b)
			continue
		}
		kept = append(kept, b)
	}
	if len(removed) == 0 {
		return 0, nil
	}

	if err := s.persistLocked(ctx, kept); err != nil {
		return 0, fmt.Errorf("delete bills: %w", err)
	}
	s.bills = kept
	s.metrics.AddBillsDeleted(len(removed))
	s.metrics.SetStoredBills(len(kept))

	s.logger.InfoContext(ctx, "Bills deleted",
		applog.FieldOperation, applog.OpDelete,
		applog.FieldCount, len(removed))

	for _, b := range removed {
		s.publish(ctx, amqp.EventBillDeleted, b)
	}
	return len(removed), nil
}

func (s *Store) publish(ctx context.Context, eventType string, bill core.Bill) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishBillEvent(ctx, eventType, bill); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish bill event",
			"type", eventType,
			applog.FieldBillID, bill.ID,
			"error", err)
	}
}

// List returns a copy of the collection in save order.
func (s *Store) List(ctx context.Context) ([]core.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoadedLocked(ctx); err != nil {
		return nil, err
	}
	return s.snapshotLocked(), nil
}

// Find returns the bill with the given id.
func (s *Store) Find(ctx context.Context, id string) (core.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoadedLocked(ctx); err != nil {
		return core.Bill{}, err
	}
	for _, b := range s.bills {
		if id != "" && b.ID == id {
			return b, nil
		}
	}
	return core.Bill{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// GroupByPeriod groups bills by "<month> <year>". Groups appear in order of
// their first bill; bills keep save order within a group.
func (s *Store) GroupByPeriod(ctx context.Context) ([]Group, error) {
	bills, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return GroupByPeriod(bills), nil
}

// GroupByPeriod groups an already loaded sequence.
func GroupByPeriod(bills []core.Bill) []Group {
	index := make(map[string]int)
	var groups []Group
	for _, b := range bills {
		key := b.PeriodKey()
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, Group{Key: key})
		}
		groups[i].Bills = append(groups[i].Bills, b)
	}
	return groups
}
