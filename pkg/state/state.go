// Package state holds the in-memory menu collection and mediates between UI
// actions and the menu API.
//
// The collection is only ever changed after the API confirms an operation;
// nothing is applied optimistically. Results are applied to the collection as
// it looks at completion time, so an edit finishing after a delete of the same
// item does not bring the item back.
package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/mchmarny/kitchen/pkg/menu"
	"github.com/mchmarny/kitchen/pkg/metric"
)

// Operation names used in logs and metrics.
const (
	OpLoad   = "load"
	OpAdd    = "add"
	OpEdit   = "edit"
	OpDelete = "delete"
)

var (
	// ErrNotFound is returned when an action targets an id not in the collection.
	ErrNotFound = errors.New("menu item not found")

	// ErrNoPendingDelete is returned by ConfirmDelete when nothing awaits confirmation.
	ErrNoPendingDelete = errors.New("no delete awaiting confirmation")
)

// ValidationError carries the per-field messages of a rejected form.
// It never results from a network call.
type ValidationError struct {
	Fields menu.FieldErrors
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid menu form: %v", e.Fields.Fields())
}

// Remote is the menu API as seen by the manager.
type Remote interface {
	List(ctx context.Context) ([]menu.Item, error)
	Create(ctx context.Context, data menu.FormData) (menu.Item, error)
	Update(ctx context.Context, id int64, data menu.FormData) (menu.Item, error)
	Delete(ctx context.Context, id int64) error
}

// Manager owns the menu collection. The mutating methods are the only write
// path; readers get copies. Safe for concurrent use, and the lock is never
// held across a network call.
type Manager struct {
	remote  Remote
	counter metric.IncrementalCounter
	first   singleflight.Group

	mu      sync.RWMutex
	menu    *menu.Menu
	loaded  bool
	editing *menu.Item
	pending *int64
}

// Option is a functional option for configuring the Manager.
type Option func(*Manager)

// WithCounter sets the counter incremented once per operation with the
// operation and outcome labels.
func WithCounter(counter metric.IncrementalCounter) Option {
	return func(m *Manager) { m.counter = counter }
}

// New creates a manager with an empty collection.
func New(remote Remote, opts ...Option) *Manager {
	m := &Manager{
		remote:  remote,
		counter: metric.Noop(),
		menu:    &menu.Menu{},
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Items returns a copy of the collection in insertion order.
func (m *Manager) Items() []menu.Item {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.menu.Snapshot()
}

// Len returns the number of items in the collection.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.menu.Len()
}

// Get returns the item with the given id.
func (m *Manager) Get(id int64) (menu.Item, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.menu.Get(id)
}

// Loaded reports whether a Load has succeeded.
func (m *Manager) Loaded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loaded
}

// Ready implements server.ReadinessChecker: ready once the menu was loaded.
func (m *Manager) Ready(_ context.Context) error {
	if !m.Loaded() {
		return errors.New("menu not loaded")
	}
	return nil
}

// Load fetches the full list and replaces the collection. On failure the
// collection is left as it was, which is empty before the first success.
// Edit and delete targets whose item is gone from the new list are dropped.
func (m *Manager) Load(ctx context.Context) error {
	items, err := m.remote.List(ctx)
	if err != nil {
		m.record(OpLoad, err)
		return err
	}

	m.mu.Lock()
	m.menu.Reset(items)
	m.loaded = true
	if m.pending != nil && m.menu.Index(*m.pending) < 0 {
		slog.Info("pending delete target gone after reload", "id", *m.pending)
		m.pending = nil
	}
	if m.editing != nil && m.menu.Index(m.editing.ID) < 0 {
		slog.Info("edit target gone after reload", "id", m.editing.ID)
		m.editing = nil
	}
	m.mu.Unlock()

	m.record(OpLoad, nil)
	slog.Debug("menu loaded", "items", len(items))
	return nil
}

// EnsureLoaded performs Load until one succeeds and is a no-op afterwards.
// Concurrent callers share a single in-flight Load and its result.
func (m *Manager) EnsureLoaded(ctx context.Context) error {
	if m.Loaded() {
		return nil
	}

	_, err, _ := m.first.Do(OpLoad, func() (any, error) {
		if m.Loaded() {
			return nil, nil
		}
		return nil, m.Load(ctx)
	})
	return err
}

// Add validates the form, asks the API to create the item and appends the
// server's canonical item to the collection.
func (m *Manager) Add(ctx context.Context, data menu.FormData) (menu.Item, error) {
	if errs := menu.Validate(data); len(errs) > 0 {
		err := &ValidationError{Fields: errs}
		m.record(OpAdd, err)
		return menu.Item{}, err
	}

	item, err := m.remote.Create(ctx, data)
	if err != nil {
		m.record(OpAdd, err)
		return menu.Item{}, err
	}

	m.mu.Lock()
	m.menu.Append(item)
	m.mu.Unlock()

	m.record(OpAdd, nil)
	return item, nil
}

// Edit validates the form, asks the API to update item id and replaces the
// matching item with the server's canonical item.
func (m *Manager) Edit(ctx context.Context, id int64, data menu.FormData) (menu.Item, error) {
	if errs := menu.Validate(data); len(errs) > 0 {
		err := &ValidationError{Fields: errs}
		m.record(OpEdit, err)
		return menu.Item{}, err
	}

	item, err := m.remote.Update(ctx, id, data)
	if err != nil {
		m.record(OpEdit, err)
		return menu.Item{}, err
	}

	// Identifiers are immutable; match on the one that was requested.
	item.ID = id

	m.mu.Lock()
	replaced := m.menu.Replace(item)
	m.mu.Unlock()

	if !replaced {
		slog.Warn("edited item no longer in collection", "id", id)
	}

	m.record(OpEdit, nil)
	return item, nil
}

// BeginAdd opens the form for a new item, dropping any pending target.
func (m *Manager) BeginAdd() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.editing = nil
	m.pending = nil
}

// BeginEdit opens the form for item id, replacing any pending target.
func (m *Manager) BeginEdit(id int64) (menu.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.menu.Get(id)
	if !ok {
		return menu.Item{}, fmt.Errorf("edit %d: %w", id, ErrNotFound)
	}

	m.editing = &item
	m.pending = nil
	return item, nil
}

// EditTarget returns the item being edited, if any.
func (m *Manager) EditTarget() (menu.Item, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.editing == nil {
		return menu.Item{}, false
	}
	return *m.editing, true
}

// CloseForm discards the edit target.
func (m *Manager) CloseForm() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.editing = nil
}

// Submit sends the form to Edit when an edit target is set and to Add
// otherwise. The target is cleared only when the call succeeds.
func (m *Manager) Submit(ctx context.Context, data menu.FormData) (menu.Item, error) {
	target, editing := m.EditTarget()

	var (
		item menu.Item
		err  error
	)
	if editing {
		item, err = m.Edit(ctx, target.ID, data)
	} else {
		item, err = m.Add(ctx, data)
	}
	if err != nil {
		return menu.Item{}, err
	}

	m.mu.Lock()
	if editing && m.editing != nil && m.editing.ID == target.ID {
		m.editing = nil
	}
	m.mu.Unlock()

	return item, nil
}

// RequestDelete asks for confirmation before deleting item id. It replaces
// any pending target.
func (m *Manager) RequestDelete(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.menu.Index(id) < 0 {
		return fmt.Errorf("delete %d: %w", id, ErrNotFound)
	}

	m.pending = &id
	m.editing = nil
	return nil
}

// PendingDelete returns the id awaiting confirmation, if any.
func (m *Manager) PendingDelete() (int64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.pending == nil {
		return 0, false
	}
	return *m.pending, true
}

// CancelDelete drops the pending delete; the collection is unchanged.
func (m *Manager) CancelDelete() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = nil
}

// ConfirmDelete deletes the pending item. The confirmation is consumed
// before the call, and the item is removed only when the API succeeds.
func (m *Manager) ConfirmDelete(ctx context.Context) error {
	m.mu.Lock()
	if m.pending == nil {
		m.mu.Unlock()
		return ErrNoPendingDelete
	}
	id := *m.pending
	m.pending = nil
	m.mu.Unlock()

	return m.Delete(ctx, id)
}

// Delete removes item id through the API without the confirmation step.
func (m *Manager) Delete(ctx context.Context, id int64) error {
	if err := m.remote.Delete(ctx, id); err != nil {
		m.record(OpDelete, err)
		return err
	}

	m.mu.Lock()
	m.menu.Remove(id)
	if m.editing != nil && m.editing.ID == id {
		m.editing = nil
	}
	m.mu.Unlock()

	m.record(OpDelete, nil)
	return nil
}

func (m *Manager) record(op string, err error) {
	var ve *ValidationError
	switch {
	case err == nil:
		m.counter.Increment(op, metric.OutcomeOK)
	case errors.As(err, &ve):
		m.counter.Increment(op, metric.OutcomeInvalid)
	default:
		m.counter.Increment(op, metric.OutcomeError)
		slog.Error("menu operation failed", "op", op, "error", err)
	}
}
