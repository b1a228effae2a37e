// Copyright 2024 The cqlmeta Authors. Licensed under Apache-2.0.

package metadata

import "github.com/zimnx/cqlmeta/client/schema"

// SchemaChangeListener receives one callback per entity a refresh pass added,
// removed or changed. Callbacks run after the store lock is released, so a
// listener may read back through the store without deadlocking, and a slow
// listener never blocks concurrent readers.
type SchemaChangeListener interface {
	OnKeyspaceAdded(ks *schema.Keyspace)
	OnKeyspaceRemoved(ks *schema.Keyspace)
	OnKeyspaceChanged(current, previous *schema.Keyspace)

	OnTableAdded(ks *schema.Keyspace, table *schema.Table)
	OnTableRemoved(ks *schema.Keyspace, table *schema.Table)
	OnTableChanged(ks *schema.Keyspace, current, previous *schema.Table)

	OnViewAdded(ks *schema.Keyspace, view *schema.View)
	OnViewRemoved(ks *schema.Keyspace, view *schema.View)
	OnViewChanged(ks *schema.Keyspace, current, previous *schema.View)

	OnUserTypeAdded(ks *schema.Keyspace, userType *schema.UserType)
	OnUserTypeRemoved(ks *schema.Keyspace, userType *schema.UserType)
	OnUserTypeChanged(ks *schema.Keyspace, current, previous *schema.UserType)

	OnFunctionAdded(ks *schema.Keyspace, function *schema.Function)
	OnFunctionRemoved(ks *schema.Keyspace, function *schema.Function)
	OnFunctionChanged(ks *schema.Keyspace, current, previous *schema.Function)

	OnAggregateAdded(ks *schema.Keyspace, aggregate *schema.Aggregate)
	OnAggregateRemoved(ks *schema.Keyspace, aggregate *schema.Aggregate)
	OnAggregateChanged(ks *schema.Keyspace, current, previous *schema.Aggregate)
}

// NopListener implements SchemaChangeListener with no-ops. Embed it to
// implement only the callbacks of interest.
type NopListener struct{}

func (NopListener) OnKeyspaceAdded(*schema.Keyspace)                      {}
func (NopListener) OnKeyspaceRemoved(*schema.Keyspace)                    {}
func (NopListener) OnKeyspaceChanged(_, _ *schema.Keyspace)               {}
func (NopListener) OnTableAdded(*schema.Keyspace, *schema.Table)          {}
func (NopListener) OnTableRemoved(*schema.Keyspace, *schema.Table)        {}
func (NopListener) OnTableChanged(*schema.Keyspace, *schema.Table, *schema.Table) {
}
func (NopListener) OnViewAdded(*schema.Keyspace, *schema.View)   {}
func (NopListener) OnViewRemoved(*schema.Keyspace, *schema.View) {}
func (NopListener) OnViewChanged(*schema.Keyspace, *schema.View, *schema.View) {
}
func (NopListener) OnUserTypeAdded(*schema.Keyspace, *schema.UserType)   {}
func (NopListener) OnUserTypeRemoved(*schema.Keyspace, *schema.UserType) {}
func (NopListener) OnUserTypeChanged(*schema.Keyspace, *schema.UserType, *schema.UserType) {
}
func (NopListener) OnFunctionAdded(*schema.Keyspace, *schema.Function)   {}
func (NopListener) OnFunctionRemoved(*schema.Keyspace, *schema.Function) {}
func (NopListener) OnFunctionChanged(*schema.Keyspace, *schema.Function, *schema.Function) {
}
func (NopListener) OnAggregateAdded(*schema.Keyspace, *schema.Aggregate)   {}
func (NopListener) OnAggregateRemoved(*schema.Keyspace, *schema.Aggregate) {}
func (NopListener) OnAggregateChanged(*schema.Keyspace, *schema.Aggregate, *schema.Aggregate) {
}

// event is one change notification, bound to its entities and ready to fire
// against any listener.
type event func(l SchemaChangeListener)
