// Copyright 2024 The cqlmeta Authors. Licensed under Apache-2.0.

package metadata

import (
	"context"

	"github.com/looplab/fsm"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/zimnx/cqlmeta/client/config"
	"github.com/zimnx/cqlmeta/client/dialect"
	"github.com/zimnx/cqlmeta/client/gateway"
	"github.com/zimnx/cqlmeta/client/schema"
	"github.com/zimnx/cqlmeta/pkg/coderr"
	"github.com/zimnx/cqlmeta/pkg/log"
)

// Refresher drives refresh passes against the remote catalog and merges the
// results into the shared store. Any number of passes may run concurrently;
// the store lock serializes their merges.
type Refresher struct {
	gw      gateway.Gateway
	store   *Store
	d       dialect.Dialect
	opts    dialect.FetchOptions
	limiter *FlowLimiter
}

type RefresherParams struct {
	Gateway gateway.Gateway
	Store   *Store
	// Version selects the catalog dialect, normally the release version
	// reported by the connected node.
	Version dialect.Version
	Config  config.Config
}

func NewRefresher(params RefresherParams) *Refresher {
	return &Refresher{
		gw:    params.Gateway,
		store: params.Store,
		d:     dialect.ForVersion(params.Version),
		opts: dialect.FetchOptions{
			Paged:       params.Config.SchemaQueriesPaged,
			PageSize:    params.Config.PageSize,
			Concurrency: params.Config.FetchConcurrency,
		},
		limiter: NewFlowLimiter(params.Config.RefreshLimiter),
	}
}

// Refresh runs one pass for the given scope and blocks until its merge is
// visible and its events dispatched. A pass against a closed store is a
// silent no-op. A pass targeting an object whose keyspace is unknown
// schedules an independent full-cluster refresh; the two eventually converge
// but their relative order is not guaranteed.
//
// A failed pass never destabilizes the store: the previous state stays
// visible, the failure is logged, and the caller observes a completed call.
// The returned error reports only invocation problems, such as a cancelled
// context while waiting for the flow limiter.
func (r *Refresher) Refresh(ctx context.Context, scope dialect.Scope) error {
	if r.store.Closed() {
		// Late schema events race with shutdown; drop them.
		log.Debug("refresh after close dropped", zap.String("element", scope.Element.String()))
		return nil
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return errors.WithMessage(err, "refresh pass wait for limiter")
	}

	pass := newRefreshPass(r, scope)
	err := pass.run(ctx)
	switch {
	case err == nil:
	case coderr.Is(err, coderr.ClientClosed):
	case coderr.Is(err, coderr.ScopeInconsistency):
		log.Warn("refresh target keyspace unknown, scheduling full refresh",
			zap.String("keyspace", scope.Keyspace), zap.String("name", scope.Name))
		go func() {
			if ferr := r.Refresh(context.Background(), dialect.ClusterScope()); ferr != nil {
				log.Error("full refresh after scope inconsistency", zap.Error(ferr))
			}
		}()
	default:
		log.Error("refresh pass failed, keeping previous state",
			zap.String("keyspace", scope.Keyspace), zap.String("name", scope.Name), zap.Error(err))
	}
	return nil
}

// Fsm state change: Begin -> Fetched -> Built -> Merged -> Done.
// Fetch issues the dialect's catalog queries and awaits the snapshot.
// Build turns the snapshot into a typed tree, fault-containing bad rows.
// Merge folds the tree into the store under its lock.
// Notify dispatches the collected events outside the lock.
const (
	eventFetch  = "EventFetch"
	eventBuild  = "EventBuild"
	eventMerge  = "EventMerge"
	eventNotify = "EventNotify"

	stateBegin   = "StateBegin"
	stateFetched = "StateFetched"
	stateBuilt   = "StateBuilt"
	stateMerged  = "StateMerged"
	stateDone    = "StateDone"
)

var (
	refreshEvents = fsm.Events{
		{Name: eventFetch, Src: []string{stateBegin}, Dst: stateFetched},
		{Name: eventBuild, Src: []string{stateFetched}, Dst: stateBuilt},
		{Name: eventMerge, Src: []string{stateBuilt}, Dst: stateMerged},
		{Name: eventNotify, Src: []string{stateMerged}, Dst: stateDone},
	}
	refreshCallbacks = fsm.Callbacks{
		eventFetch:  fetchCallback,
		eventBuild:  buildCallback,
		eventMerge:  mergeCallback,
		eventNotify: notifyCallback,
	}
)

type refreshPass struct {
	fsm   *fsm.FSM
	r     *Refresher
	scope dialect.Scope

	snap     *schema.Snapshot
	fresh    *schema.OrderedMap[*schema.Keyspace]
	dispatch func()
}

// callbackRequest is fsm callbacks param.
type callbackRequest struct {
	ctx context.Context
	p   *refreshPass
}

func newRefreshPass(r *Refresher, scope dialect.Scope) *refreshPass {
	return &refreshPass{
		fsm:      fsm.NewFSM(stateBegin, refreshEvents, refreshCallbacks),
		r:        r,
		scope:    scope,
		snap:     nil,
		fresh:    nil,
		dispatch: nil,
	}
}

func (p *refreshPass) run(ctx context.Context) error {
	req := callbackRequest{
		ctx: ctx,
		p:   p,
	}

	for {
		switch p.fsm.Current() {
		case stateBegin:
			if err := p.fsm.Event(eventFetch, req); err != nil {
				return errors.WithMessage(err, "refresh pass fetch")
			}
		case stateFetched:
			if err := p.fsm.Event(eventBuild, req); err != nil {
				return errors.WithMessage(err, "refresh pass build")
			}
		case stateBuilt:
			if err := p.fsm.Event(eventMerge, req); err != nil {
				return errors.WithMessage(err, "refresh pass merge")
			}
		case stateMerged:
			if err := p.fsm.Event(eventNotify, req); err != nil {
				return errors.WithMessage(err, "refresh pass notify")
			}
		case stateDone:
			return nil
		}
	}
}

func fetchCallback(event *fsm.Event) {
	req, err := getRequestFromEvent[callbackRequest](event)
	if err != nil {
		cancelEventWithLog(event, err)
		return
	}
	p := req.p

	snap, err := p.r.d.FetchSnapshot(req.ctx, p.r.gw, p.scope, p.r.opts)
	if err != nil {
		cancelEventWithLog(event, err)
		return
	}
	p.snap = snap
}

func buildCallback(event *fsm.Event) {
	req, err := getRequestFromEvent[callbackRequest](event)
	if err != nil {
		cancelEventWithLog(event, err)
		return
	}
	p := req.p

	if p.scope.Element == dialect.ElementNone || p.scope.Element == dialect.ElementKeyspace {
		p.fresh = schema.BuildKeyspaces(p.snap, p.r.d.BuildOptions())
		return
	}
	p.fresh = p.buildEntityTree()
}

// buildEntityTree builds the single scoped entity into a synthetic keyspace
// carrying only its category; the merge touches nothing else.
func (p *refreshPass) buildEntityTree() *schema.OrderedMap[*schema.Keyspace] {
	opts := p.r.d.BuildOptions()
	ks := schema.NewKeyspace(p.scope.Keyspace)

	switch p.scope.Element {
	case dialect.ElementTable:
		ks.Tables = schema.BuildTables(p.snap.Tables[ks.Name], p.snap.Columns[ks.Name], p.snap.Indexes[ks.Name], opts)
		ks.Views = schema.BuildViews(p.snap.Views[ks.Name], p.snap.Columns[ks.Name], opts)
	case dialect.ElementView:
		ks.Views = schema.BuildViews(p.snap.Views[ks.Name], p.snap.Columns[ks.Name], opts)
	case dialect.ElementType:
		types, err := schema.BuildUserTypes(p.snap.Types[ks.Name], ks.Name)
		if err != nil {
			log.Error("order user types, keyspace types left stale", zap.String("keyspace", ks.Name), zap.Error(err))
			ks.TypesFailed = true
		} else {
			ks.Types = types
		}
	case dialect.ElementFunction:
		ks.Functions = schema.BuildFunctions(p.snap.Functions[ks.Name], opts)
	case dialect.ElementAggregate:
		ks.Aggregates = schema.BuildAggregates(p.snap.Aggregates[ks.Name], opts)
	}

	tree := schema.NewOrderedMap[*schema.Keyspace]()
	tree.Put(ks.Name, ks)
	return tree
}

func mergeCallback(event *fsm.Event) {
	req, err := getRequestFromEvent[callbackRequest](event)
	if err != nil {
		cancelEventWithLog(event, err)
		return
	}
	p := req.p

	dispatch, err := p.r.store.Apply(p.fresh, p.scope)
	if err != nil {
		cancelEventWithLog(event, err)
		return
	}
	p.dispatch = dispatch
}

func notifyCallback(event *fsm.Event) {
	req, err := getRequestFromEvent[callbackRequest](event)
	if err != nil {
		cancelEventWithLog(event, err)
		return
	}

	req.p.dispatch()
}

// cancelEventWithLog cancels the event when err is not nil.
func cancelEventWithLog(event *fsm.Event, err error) {
	if err == nil {
		return
	}
	log.Error("cancel the event for the error occurs", zap.Error(err))
	event.Cancel(err)
}

func getRequestFromEvent[T any](event *fsm.Event) (T, error) {
	if len(event.Args) != 1 {
		return *new(T), errors.Errorf("event args length must be 1, actual length:%v", len(event.Args))
	}

	switch request := event.Args[0].(type) {
	case T:
		return request, nil
	default:
		return *new(T), errors.New("event arg type must be same as return type")
	}
}
