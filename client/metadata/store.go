// Copyright 2024 The cqlmeta Authors. Licensed under Apache-2.0.

package metadata

import (
	"sync"

	"github.com/zimnx/cqlmeta/client/dialect"
	"github.com/zimnx/cqlmeta/client/schema"
)

// Store is the long-lived, process-wide mirror of the cluster's schema. A
// single lock guards the keyspace tree; refresh passes merge into it through
// Apply and readers go through the accessors. Published entity objects are
// never mutated, only replaced, so a pointer handed out by an accessor stays
// internally consistent even while later passes merge.
type Store struct {
	mu        sync.Mutex
	keyspaces *schema.OrderedMap[*schema.Keyspace]
	listeners []SchemaChangeListener
	closed    bool

	// onChange runs after any pass that changed the tree, outside the lock.
	// Routing structures such as the token map rebuild from it.
	onChange func()
}

func NewStore() *Store {
	return &Store{
		mu:        sync.Mutex{},
		keyspaces: schema.NewOrderedMap[*schema.Keyspace](),
		listeners: nil,
		closed:    false,
		onChange:  nil,
	}
}

// RegisterListener subscribes l to all future change events. Events fired by
// a merge already under way may be missed.
func (s *Store) RegisterListener(l SchemaChangeListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// OnKeyspacesChanged installs the hook invoked after every pass that changed
// at least one keyspace.
func (s *Store) OnKeyspacesChanged(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// Keyspace returns the named keyspace, or false.
func (s *Store) Keyspace(name string) (*schema.Keyspace, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keyspaces.Get(name)
}

// Keyspaces returns every known keyspace in catalog order.
func (s *Store) Keyspaces() []*schema.Keyspace {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keyspaces.Values()
}

// KeyspaceNames returns every known keyspace name in catalog order.
func (s *Store) KeyspaceNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keyspaces.Keys()
}

// Close marks the store shut down. Later refreshes become no-ops; the current
// tree stays readable.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *Store) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Apply merges a freshly built tree into the store under the lock and returns
// the notification step, to be run by the caller once the lock is released.
// The lock is held only around the merge itself, never across a network call
// or a listener.
func (s *Store) Apply(fresh *schema.OrderedMap[*schema.Keyspace], scope dialect.Scope) (func(), error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClientClosed.WithCausef("scope:%s", scope.Element)
	}

	merged, events, err := Merge(s.keyspaces, fresh, scope)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.keyspaces = merged

	listeners := make([]SchemaChangeListener, len(s.listeners))
	copy(listeners, s.listeners)
	onChange := s.onChange
	s.mu.Unlock()

	if len(events) == 0 {
		return func() {}, nil
	}
	return func() {
		for _, ev := range events {
			for _, l := range listeners {
				ev(l)
			}
		}
		if onChange != nil {
			onChange()
		}
	}, nil
}
