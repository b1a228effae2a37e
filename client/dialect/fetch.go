// Copyright 2024 The cqlmeta Authors. Licensed under Apache-2.0.

package dialect

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/zimnx/cqlmeta/client/gateway"
	"github.com/zimnx/cqlmeta/client/schema"
)

// FetchOptions control the fetch phase of one refresh pass.
type FetchOptions struct {
	// Paged enables the per-keyspace paged strategy for whole-cluster
	// refreshes on generations that support it.
	Paged bool
	// PageSize is the fixed page size of paged queries.
	PageSize int
	// Concurrency bounds the keyspaces fetched in parallel in paged mode.
	Concurrency int
}

// FetchSnapshot issues the catalog queries for the given scope through the
// gateway and groups the results into a snapshot. Any failed query fails the
// snapshot; the caller aborts the pass and keeps its previous state.
func (d Dialect) FetchSnapshot(ctx context.Context, gw gateway.Gateway, scope Scope, opts FetchOptions) (*schema.Snapshot, error) {
	if scope.IsCluster() && opts.Paged && d.supportsPaging() {
		return d.fetchPagedSnapshot(ctx, gw, opts)
	}
	return d.fetchSnapshot(ctx, gw, scope)
}

// fetchSnapshot dispatches every needed catalog query at once and awaits them
// together. No lock is held during this phase.
func (d Dialect) fetchSnapshot(ctx context.Context, gw gateway.Gateway, scope Scope) (*schema.Snapshot, error) {
	wholeKeyspace := scope.Element == ElementNone || scope.Element == ElementKeyspace

	var ksFuture, typesFuture, tablesFuture, columnsFuture, functionsFuture, aggregatesFuture,
		indexesFuture, viewsFuture, virtualKsFuture, virtualTablesFuture, virtualColumnsFuture gateway.Future

	if wholeKeyspace {
		ksFuture = gw.ExecuteAsync(ctx, d.q.keyspaces+d.whereClause(scope.Element, scope))
	}

	if (wholeKeyspace && d.supportsUserTypes()) || scope.Element == ElementType {
		typesFuture = gw.ExecuteAsync(ctx, d.q.types+d.whereClause(ElementType, scope))
	}

	if wholeKeyspace || scope.Element == ElementTable {
		tablesFuture = gw.ExecuteAsync(ctx, d.q.tables+d.whereClause(ElementTable, scope))
		if d.q.indexes != "" {
			indexesFuture = gw.ExecuteAsync(ctx, d.q.indexes+d.whereClause(ElementTable, scope))
		}
	}

	if wholeKeyspace || scope.Element == ElementTable || scope.Element == ElementView {
		// View columns live in the same catalog table as table columns, keyed
		// by the view's name.
		columnsFuture = gw.ExecuteAsync(ctx, d.q.columns+d.whereClause(ElementTable, scope))
		if d.q.views != "" {
			// A table-scoped refresh also covers the view of the same name.
			viewsFuture = gw.ExecuteAsync(ctx, d.q.views+d.whereClause(ElementView, scope))
		}
	}

	if (wholeKeyspace && d.supportsFunctions()) || scope.Element == ElementFunction {
		functionsFuture = gw.ExecuteAsync(ctx, d.q.functions+d.whereClause(ElementFunction, scope))
	}

	if (wholeKeyspace && d.supportsFunctions()) || scope.Element == ElementAggregate {
		aggregatesFuture = gw.ExecuteAsync(ctx, d.q.aggregates+d.whereClause(ElementAggregate, scope))
	}

	if wholeKeyspace && d.q.virtualKeyspaces != "" {
		virtualKsFuture = gw.ExecuteAsync(ctx, d.q.virtualKeyspaces+d.whereClause(scope.Element, scope))
		virtualTablesFuture = gw.ExecuteAsync(ctx, d.q.virtualTables+d.whereClause(scope.Element, scope))
		virtualColumnsFuture = gw.ExecuteAsync(ctx, d.q.virtualColumns+d.whereClause(scope.Element, scope))
	}

	snap := schema.NewSnapshot()
	var err error
	if snap.Keyspaces, err = d.await(ctx, ksFuture, "keyspaces"); err != nil {
		return nil, err
	}
	typeRows, err := d.await(ctx, typesFuture, "types")
	if err != nil {
		return nil, err
	}
	tableRows, err := d.await(ctx, tablesFuture, "tables")
	if err != nil {
		return nil, err
	}
	columnRows, err := d.await(ctx, columnsFuture, "columns")
	if err != nil {
		return nil, err
	}
	functionRows, err := d.await(ctx, functionsFuture, "functions")
	if err != nil {
		return nil, err
	}
	aggregateRows, err := d.await(ctx, aggregatesFuture, "aggregates")
	if err != nil {
		return nil, err
	}
	indexRows, err := d.await(ctx, indexesFuture, "indexes")
	if err != nil {
		return nil, err
	}
	viewRows, err := d.await(ctx, viewsFuture, "views")
	if err != nil {
		return nil, err
	}

	snap.Types = schema.GroupByKeyspace(typeRows)
	snap.Tables = schema.GroupByKeyspace(tableRows)
	snap.Columns = schema.GroupByKeyspaceAndTable(columnRows, d.tableNameColumn)
	snap.Functions = schema.GroupByKeyspace(functionRows)
	snap.Aggregates = schema.GroupByKeyspace(aggregateRows)
	snap.Indexes = schema.GroupByKeyspaceAndTable(indexRows, d.tableNameColumn)
	snap.Views = schema.GroupByKeyspace(viewRows)

	if snap.VirtualKeyspaces, err = d.await(ctx, virtualKsFuture, "virtual keyspaces"); err != nil {
		return nil, err
	}
	virtualTableRows, err := d.await(ctx, virtualTablesFuture, "virtual tables")
	if err != nil {
		return nil, err
	}
	virtualColumnRows, err := d.await(ctx, virtualColumnsFuture, "virtual columns")
	if err != nil {
		return nil, err
	}
	snap.VirtualTables = schema.GroupByKeyspace(virtualTableRows)
	snap.VirtualColumns = schema.GroupByKeyspaceAndTable(virtualColumnRows, d.tableNameColumn)

	return snap, nil
}

// fetchPagedSnapshot builds a whole-cluster snapshot keyspace by keyspace,
// paging through every catalog table by its natural key. Keyspaces are
// fetched concurrently.
func (d Dialect) fetchPagedSnapshot(ctx context.Context, gw gateway.Gateway, opts FetchOptions) (*schema.Snapshot, error) {
	ksRows, err := d.await(ctx, gw.ExecuteAsync(ctx, d.q.keyspaces), "keyspaces")
	if err != nil {
		return nil, err
	}

	snap := schema.NewSnapshot()
	snap.Keyspaces = ksRows

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	if opts.Concurrency > 0 {
		g.SetLimit(opts.Concurrency)
	}

	for _, row := range ksRows {
		ksName, ok := row.String(schema.ColKeyspaceName)
		if !ok {
			continue
		}
		g.Go(func() error {
			part, err := d.fetchKeyspacePaged(gctx, gw, ksName, opts.PageSize)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			snap.Tables[ksName] = part.tables
			snap.Columns[ksName] = groupByTable(part.columns, d.tableNameColumn)
			snap.Indexes[ksName] = groupByTable(part.indexes, d.tableNameColumn)
			snap.Views[ksName] = part.views
			snap.Types[ksName] = part.types
			snap.Functions[ksName] = part.functions
			snap.Aggregates[ksName] = part.aggregates
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if d.q.virtualKeyspaces != "" {
		if snap.VirtualKeyspaces, err = d.await(ctx, gw.ExecuteAsync(ctx, d.q.virtualKeyspaces), "virtual keyspaces"); err != nil {
			return nil, err
		}
		virtualTableRows, err := d.await(ctx, gw.ExecuteAsync(ctx, d.q.virtualTables), "virtual tables")
		if err != nil {
			return nil, err
		}
		virtualColumnRows, err := d.await(ctx, gw.ExecuteAsync(ctx, d.q.virtualColumns), "virtual columns")
		if err != nil {
			return nil, err
		}
		snap.VirtualTables = schema.GroupByKeyspace(virtualTableRows)
		snap.VirtualColumns = schema.GroupByKeyspaceAndTable(virtualColumnRows, d.tableNameColumn)
	}

	return snap, nil
}

type keyspacePart struct {
	tables     gateway.Rows
	columns    gateway.Rows
	indexes    gateway.Rows
	views      gateway.Rows
	types      gateway.Rows
	functions  gateway.Rows
	aggregates gateway.Rows
}

func (d Dialect) fetchKeyspacePaged(ctx context.Context, gw gateway.Gateway, keyspace string, pageSize int) (keyspacePart, error) {
	scope := KeyspaceScope(keyspace)
	base := func(query string) string {
		return query + d.whereClause(ElementKeyspace, scope)
	}

	var part keyspacePart
	var err error
	if part.tables, err = d.fetchPaged(ctx, gw, base(d.q.tables), pageSize, simpleKey(d.tableNameColumn)); err != nil {
		return part, err
	}
	if part.columns, err = d.fetchPaged(ctx, gw, base(d.q.columns), pageSize, simpleKey(d.tableNameColumn), simpleKey(schema.ColColumnName)); err != nil {
		return part, err
	}
	if part.indexes, err = d.fetchPaged(ctx, gw, base(d.q.indexes), pageSize, simpleKey(d.tableNameColumn), simpleKey(schema.ColIndexName)); err != nil {
		return part, err
	}
	if part.views, err = d.fetchPaged(ctx, gw, base(d.q.views), pageSize, simpleKey(schema.ColViewName)); err != nil {
		return part, err
	}
	if part.types, err = d.fetchPaged(ctx, gw, base(d.q.types), pageSize, simpleKey(schema.ColTypeName)); err != nil {
		return part, err
	}
	if part.functions, err = d.fetchPaged(ctx, gw, base(d.q.functions), pageSize, simpleKey(schema.ColFunctionName), listKey(d.signatureColumn)); err != nil {
		return part, err
	}
	if part.aggregates, err = d.fetchPaged(ctx, gw, base(d.q.aggregates), pageSize, simpleKey(schema.ColAggregateName), listKey(d.signatureColumn)); err != nil {
		return part, err
	}
	return part, nil
}

// keyColumn is one component of a paging key. Composite keys compare as
// ordered tuples.
type keyColumn struct {
	name string
	list bool
}

func simpleKey(name string) keyColumn {
	return keyColumn{name: name, list: false}
}

func listKey(name string) keyColumn {
	return keyColumn{name: name, list: true}
}

// fetchPaged loops over fixed-size pages of base, following a "strictly
// greater than the last seen key" cursor until a page comes back empty.
func (d Dialect) fetchPaged(ctx context.Context, gw gateway.Gateway, base string, pageSize int, key ...keyColumn) (gateway.Rows, error) {
	limit := fmt.Sprintf(" LIMIT %d", pageSize)

	var result gateway.Rows
	page, err := d.await(ctx, gw.ExecuteAsync(ctx, base+limit), base)
	if err != nil {
		return nil, err
	}
	for len(page) > 0 {
		result = append(result, page...)
		cursor, err := pageCursor(page[len(page)-1], key)
		if err != nil {
			return nil, err
		}
		page, err = d.await(ctx, gw.ExecuteAsync(ctx, base+cursor+limit), base)
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

// pageCursor renders the strictly-greater-than predicate from the final row
// of the previous page.
func pageCursor(last gateway.Row, key []keyColumn) (string, error) {
	values := make([]string, 0, len(key))
	for _, k := range key {
		if k.list {
			v, ok := last.StringList(k.name)
			if !ok {
				return "", ErrCatalogFetch.WithCausef("page row without key column:%s", k.name)
			}
			values = append(values, formatStringList(v))
			continue
		}
		v, ok := last.String(k.name)
		if !ok {
			return "", ErrCatalogFetch.WithCausef("page row without key column:%s", k.name)
		}
		values = append(values, quote(v))
	}

	if len(key) == 1 {
		return fmt.Sprintf(" AND %s > %s", key[0].name, values[0]), nil
	}
	names := make([]string, 0, len(key))
	for _, k := range key {
		names = append(names, k.name)
	}
	return fmt.Sprintf(" AND (%s) > (%s)", strings.Join(names, ", "), strings.Join(values, ", ")), nil
}

func (d Dialect) await(ctx context.Context, f gateway.Future, what string) (gateway.Rows, error) {
	rows, err := gateway.Await(ctx, f)
	if err != nil {
		return nil, ErrCatalogFetch.WithCausef("query:%s, err:%v", what, err)
	}
	return rows, nil
}

// groupByTable groups one keyspace's rows by the table-name column.
func groupByTable(rows gateway.Rows, tableNameColumn string) map[string]gateway.Rows {
	result := make(map[string]gateway.Rows)
	for _, row := range rows {
		tableName, ok := row.String(tableNameColumn)
		if !ok {
			continue
		}
		result[tableName] = append(result[tableName], row)
	}
	return result
}
