// Copyright 2024 The cqlmeta Authors. Licensed under Apache-2.0.

package metadata

import (
	"reflect"
	"strings"

	"github.com/zimnx/cqlmeta/client/dialect"
	"github.com/zimnx/cqlmeta/client/schema"
)

// Merge folds a freshly built keyspace tree into old, restricted to what the
// refresh pass actually fetched, and returns the merged tree plus the change
// events to dispatch. Within every category removals apply first, then
// additions, then changes. Entries equal to their previous value keep the
// previous object, so identity-based callers see no churn. Merge takes no
// locks; the store runs it under its own.
func Merge(old, fresh *schema.OrderedMap[*schema.Keyspace], scope dialect.Scope) (*schema.OrderedMap[*schema.Keyspace], []event, error) {
	if scope.Element != dialect.ElementNone && scope.Element != dialect.ElementKeyspace {
		return mergeEntity(old, fresh, scope)
	}

	inScope := func(string) bool { return true }
	if scope.Element == dialect.ElementKeyspace {
		// A single-keyspace pass never fetched the others; they are out of
		// reach of the removed computation.
		inScope = func(name string) bool { return name == scope.Keyspace }
	}

	merged := schema.NewOrderedMap[*schema.Keyspace]()
	var removed, added, changed []event
	for _, name := range old.Keys() {
		oldKs, _ := old.Get(name)
		if !inScope(name) {
			merged.Put(name, oldKs)
			continue
		}
		freshKs, ok := fresh.Get(name)
		if !ok {
			removed = append(removed, removedKeyspaceEvent(oldKs))
			continue
		}
		mergedKs, ksEvents := mergeKeyspace(oldKs, freshKs)
		merged.Put(name, mergedKs)
		changed = append(changed, ksEvents...)
	}
	for _, name := range fresh.Keys() {
		if _, ok := old.Get(name); ok {
			continue
		}
		newKs, _ := fresh.Get(name)
		merged.Put(name, newKs)
		added = append(added, addedKeyspaceEvent(newKs))
	}

	events := append(removed, added...)
	events = append(events, changed...)
	return merged, events, nil
}

func addedKeyspaceEvent(ks *schema.Keyspace) event {
	return func(l SchemaChangeListener) { l.OnKeyspaceAdded(ks) }
}

func removedKeyspaceEvent(ks *schema.Keyspace) event {
	return func(l SchemaChangeListener) { l.OnKeyspaceRemoved(ks) }
}

// mergeKeyspace diffs every category of one keyspace present in both trees.
// The keyspace object is replaced when anything inside changed and retained
// otherwise; the keyspace-changed event fires after the child events.
func mergeKeyspace(old, fresh *schema.Keyspace) (*schema.Keyspace, []event) {
	merged := &schema.Keyspace{
		Name:          old.Name,
		DurableWrites: fresh.DurableWrites,
		Replication:   fresh.Replication,
		Virtual:       fresh.Virtual,
		TypesFailed:   false,
		Tables:        nil,
		Views:         nil,
		Types:         nil,
		Functions:     nil,
		Aggregates:    nil,
	}
	all := func(string) bool { return true }

	var childEvents []event

	merged.Tables, childEvents = appendDiff(childEvents, old.Tables, fresh.Tables, all, tableCallbacks(merged))
	merged.Views, childEvents = appendDiff(childEvents, old.Views, fresh.Views, all, viewCallbacks(merged))

	if fresh.TypesFailed {
		// The pass could not order this keyspace's user types; the previously
		// known types stay in effect, with no type events.
		merged.Types = old.Types
	} else {
		merged.Types, childEvents = appendDiff(childEvents, old.Types, fresh.Types, all, userTypeCallbacks(merged))
	}

	merged.Functions, childEvents = appendDiff(childEvents, old.Functions, fresh.Functions, all, functionCallbacks(merged))
	merged.Aggregates, childEvents = appendDiff(childEvents, old.Aggregates, fresh.Aggregates, all, aggregateCallbacks(merged))

	scalarChanged := old.DurableWrites != fresh.DurableWrites ||
		old.Virtual != fresh.Virtual ||
		!reflect.DeepEqual(old.Replication, fresh.Replication)
	if !scalarChanged && len(childEvents) == 0 {
		return old, nil
	}

	return merged, append(childEvents, func(l SchemaChangeListener) { l.OnKeyspaceChanged(merged, old) })
}

// mergeEntity handles a refresh targeting one named object. Only that object
// (and, for a table, the view of the same name) is touched; siblings stay out
// of the removed computation. The owning keyspace must already be known.
func mergeEntity(old, fresh *schema.OrderedMap[*schema.Keyspace], scope dialect.Scope) (*schema.OrderedMap[*schema.Keyspace], []event, error) {
	oldKs, ok := old.Get(scope.Keyspace)
	if !ok {
		return nil, nil, ErrScopeInconsistency.WithCausef("keyspace:%s, element:%s, name:%s",
			scope.Keyspace, scope.Element, scope.Name)
	}

	freshKs, ok := fresh.Get(scope.Keyspace)
	if !ok {
		freshKs = schema.NewKeyspace(scope.Keyspace)
	}

	merged := &schema.Keyspace{
		Name:          oldKs.Name,
		DurableWrites: oldKs.DurableWrites,
		Replication:   oldKs.Replication,
		Virtual:       oldKs.Virtual,
		TypesFailed:   false,
		Tables:        oldKs.Tables,
		Views:         oldKs.Views,
		Types:         oldKs.Types,
		Functions:     oldKs.Functions,
		Aggregates:    oldKs.Aggregates,
	}
	target := func(key string) bool { return key == scope.Name }

	var events []event
	switch scope.Element {
	case dialect.ElementTable:
		merged.Tables, events = appendDiff(events, oldKs.Tables, freshKs.Tables, target, tableCallbacks(merged))
		merged.Views, events = appendDiff(events, oldKs.Views, freshKs.Views, target, viewCallbacks(merged))
	case dialect.ElementView:
		merged.Views, events = appendDiff(events, oldKs.Views, freshKs.Views, target, viewCallbacks(merged))
	case dialect.ElementType:
		if !freshKs.TypesFailed {
			merged.Types, events = appendDiff(events, oldKs.Types, freshKs.Types, target, userTypeCallbacks(merged))
		}
	case dialect.ElementFunction:
		target = signatureTarget(scope)
		merged.Functions, events = appendDiff(events, oldKs.Functions, freshKs.Functions, target, functionCallbacks(merged))
	case dialect.ElementAggregate:
		target = signatureTarget(scope)
		merged.Aggregates, events = appendDiff(events, oldKs.Aggregates, freshKs.Aggregates, target, aggregateCallbacks(merged))
	}

	if len(events) == 0 {
		return old, nil, nil
	}

	result := schema.NewOrderedMap[*schema.Keyspace]()
	for _, name := range old.Keys() {
		ks, _ := old.Get(name)
		if name == scope.Keyspace {
			ks = merged
		}
		result.Put(name, ks)
	}
	return result, events, nil
}

// signatureTarget renders the store key of the scoped function or aggregate
// overload from the raw argument type names of the refresh request.
func signatureTarget(scope dialect.Scope) func(string) bool {
	args := make([]schema.DataType, 0, len(scope.Signature))
	for _, raw := range scope.Signature {
		dt, err := schema.ParseDataType(raw)
		if err != nil {
			fallback := scope.Name + "(" + strings.Join(scope.Signature, ",") + ")"
			return func(key string) bool { return key == fallback }
		}
		args = append(args, dt)
	}
	key := schema.FunctionSignature(scope.Name, args)
	return func(k string) bool { return k == key }
}

// categoryCallbacks bind one entity category's events to the listener
// interface.
type categoryCallbacks[V any] struct {
	added   func(V) event
	removed func(V) event
	changed func(current, previous V) event
}

// appendDiff diffs one category and appends its events, removals first, then
// additions, then changes. inScope restricts the removed computation to the
// keys the pass fetched. Entries equal to their previous value keep the
// previous object and emit nothing.
func appendDiff[V any](events []event, old, fresh *schema.OrderedMap[V], inScope func(string) bool, cb categoryCallbacks[V]) (*schema.OrderedMap[V], []event) {
	merged := schema.NewOrderedMap[V]()
	var removed, added, changed []event
	for _, key := range old.Keys() {
		oldV, _ := old.Get(key)
		if !inScope(key) {
			merged.Put(key, oldV)
			continue
		}
		newV, ok := fresh.Get(key)
		if !ok {
			removed = append(removed, cb.removed(oldV))
			continue
		}
		if reflect.DeepEqual(oldV, newV) {
			merged.Put(key, oldV)
			continue
		}
		merged.Put(key, newV)
		changed = append(changed, cb.changed(newV, oldV))
	}
	for _, key := range fresh.Keys() {
		if _, ok := old.Get(key); ok {
			continue
		}
		newV, _ := fresh.Get(key)
		merged.Put(key, newV)
		added = append(added, cb.added(newV))
	}

	events = append(events, removed...)
	events = append(events, added...)
	events = append(events, changed...)
	return merged, events
}

func tableCallbacks(ks *schema.Keyspace) categoryCallbacks[*schema.Table] {
	return categoryCallbacks[*schema.Table]{
		added: func(t *schema.Table) event {
			return func(l SchemaChangeListener) { l.OnTableAdded(ks, t) }
		},
		removed: func(t *schema.Table) event {
			return func(l SchemaChangeListener) { l.OnTableRemoved(ks, t) }
		},
		changed: func(current, previous *schema.Table) event {
			return func(l SchemaChangeListener) { l.OnTableChanged(ks, current, previous) }
		},
	}
}

func viewCallbacks(ks *schema.Keyspace) categoryCallbacks[*schema.View] {
	return categoryCallbacks[*schema.View]{
		added: func(v *schema.View) event {
			return func(l SchemaChangeListener) { l.OnViewAdded(ks, v) }
		},
		removed: func(v *schema.View) event {
			return func(l SchemaChangeListener) { l.OnViewRemoved(ks, v) }
		},
		changed: func(current, previous *schema.View) event {
			return func(l SchemaChangeListener) { l.OnViewChanged(ks, current, previous) }
		},
	}
}

func userTypeCallbacks(ks *schema.Keyspace) categoryCallbacks[*schema.UserType] {
	return categoryCallbacks[*schema.UserType]{
		added: func(t *schema.UserType) event {
			return func(l SchemaChangeListener) { l.OnUserTypeAdded(ks, t) }
		},
		removed: func(t *schema.UserType) event {
			return func(l SchemaChangeListener) { l.OnUserTypeRemoved(ks, t) }
		},
		changed: func(current, previous *schema.UserType) event {
			return func(l SchemaChangeListener) { l.OnUserTypeChanged(ks, current, previous) }
		},
	}
}

func functionCallbacks(ks *schema.Keyspace) categoryCallbacks[*schema.Function] {
	return categoryCallbacks[*schema.Function]{
		added: func(f *schema.Function) event {
			return func(l SchemaChangeListener) { l.OnFunctionAdded(ks, f) }
		},
		removed: func(f *schema.Function) event {
			return func(l SchemaChangeListener) { l.OnFunctionRemoved(ks, f) }
		},
		changed: func(current, previous *schema.Function) event {
			return func(l SchemaChangeListener) { l.OnFunctionChanged(ks, current, previous) }
		},
	}
}

func aggregateCallbacks(ks *schema.Keyspace) categoryCallbacks[*schema.Aggregate] {
	return categoryCallbacks[*schema.Aggregate]{
		added: func(a *schema.Aggregate) event {
			return func(l SchemaChangeListener) { l.OnAggregateAdded(ks, a) }
		},
		removed: func(a *schema.Aggregate) event {
			return func(l SchemaChangeListener) { l.OnAggregateRemoved(ks, a) }
		},
		changed: func(current, previous *schema.Aggregate) event {
			return func(l SchemaChangeListener) { l.OnAggregateChanged(ks, current, previous) }
		},
	}
}
