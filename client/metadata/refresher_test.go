// Copyright 2024 The cqlmeta Authors. Licensed under Apache-2.0.

package metadata_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/zimnx/cqlmeta/client/config"
	"github.com/zimnx/cqlmeta/client/dialect"
	"github.com/zimnx/cqlmeta/client/gateway"
	"github.com/zimnx/cqlmeta/client/gateway/gatewaytest"
	"github.com/zimnx/cqlmeta/client/metadata"
)

type tableDef struct {
	name    string
	columns []string
}

// seedCatalog queues one consistent ks1 catalog observation on the fake.
func seedCatalog(gw *gatewaytest.Fake, tables ...tableDef) {
	gw.AddPage("system_schema.keyspaces", gateway.Rows{{
		"keyspace_name":  "ks1",
		"durable_writes": true,
		"replication":    map[string]string{"class": "SimpleStrategy", "replication_factor": "1"},
	}})

	var tableRows, columnRows gateway.Rows
	for _, td := range tables {
		tableRows = append(tableRows, gateway.Row{"keyspace_name": "ks1", "table_name": td.name})
		for i, col := range td.columns {
			kind := "regular"
			position := -1
			if i == 0 {
				kind = "partition_key"
				position = 0
			}
			columnRows = append(columnRows, gateway.Row{
				"keyspace_name": "ks1",
				"table_name":    td.name,
				"column_name":   col,
				"kind":          kind,
				"type":          "text",
				"position":      position,
			})
		}
	}
	if len(tableRows) > 0 {
		gw.AddPage("system_schema.tables", tableRows)
	}
	if len(columnRows) > 0 {
		gw.AddPage("system_schema.columns", columnRows)
	}
}

func newTestRefresher(gw *gatewaytest.Fake) (*metadata.Refresher, *metadata.Store) {
	cfg := config.Default()
	cfg.SchemaQueriesPaged = false
	cfg.RefreshLimiter.Enable = false

	store := metadata.NewStore()
	refresher := metadata.NewRefresher(metadata.RefresherParams{
		Gateway: gw,
		Store:   store,
		Version: dialect.Version{Major: 3, Minor: 0},
		Config:  *cfg,
	})
	return refresher, store
}

func TestRefreshEmptyCatalog(t *testing.T) {
	r := require.New(t)

	gw := gatewaytest.New()
	refresher, store := newTestRefresher(gw)
	rec := &recorder{}
	store.RegisterListener(rec)

	r.NoError(refresher.Refresh(context.Background(), dialect.ClusterScope()))
	r.Empty(store.KeyspaceNames())
	r.Empty(rec.Entries())
}

func TestRefreshBuildsStoreAndIsIdempotent(t *testing.T) {
	r := require.New(t)

	gw := gatewaytest.New()
	refresher, store := newTestRefresher(gw)
	rec := &recorder{}
	store.RegisterListener(rec)

	seedCatalog(gw, tableDef{name: "t1", columns: []string{"id", "v"}})
	r.NoError(refresher.Refresh(context.Background(), dialect.ClusterScope()))

	r.Equal([]string{"keyspace_added ks1"}, rec.Entries())
	first, ok := store.Keyspace("ks1")
	r.True(ok)
	r.Equal([]string{"t1"}, first.Tables.Keys())

	// The same catalog observed again produces no events and no churn.
	seedCatalog(gw, tableDef{name: "t1", columns: []string{"id", "v"}})
	r.NoError(refresher.Refresh(context.Background(), dialect.ClusterScope()))

	r.Equal([]string{"keyspace_added ks1"}, rec.Entries())
	second, _ := store.Keyspace("ks1")
	r.Same(first, second)
}

func TestRefreshTableRename(t *testing.T) {
	r := require.New(t)

	gw := gatewaytest.New()
	refresher, store := newTestRefresher(gw)
	rec := &recorder{}
	store.RegisterListener(rec)

	seedCatalog(gw, tableDef{name: "t1", columns: []string{"id", "v"}})
	r.NoError(refresher.Refresh(context.Background(), dialect.ClusterScope()))

	// t1 was renamed to t2 between the passes; drop-then-create, never a
	// change correlating the two.
	seedCatalog(gw, tableDef{name: "t2", columns: []string{"id", "v"}})
	r.NoError(refresher.Refresh(context.Background(), dialect.ClusterScope()))

	r.Equal([]string{
		"keyspace_added ks1",
		"table_removed ks1.t1",
		"table_added ks1.t2",
		"keyspace_changed ks1",
	}, rec.Entries())
}

func TestRefreshTableScopeLeavesSiblings(t *testing.T) {
	r := require.New(t)

	gw := gatewaytest.New()
	refresher, store := newTestRefresher(gw)

	seedCatalog(gw,
		tableDef{name: "t1", columns: []string{"id"}},
		tableDef{name: "t2", columns: []string{"id"}},
	)
	r.NoError(refresher.Refresh(context.Background(), dialect.ClusterScope()))
	ks, _ := store.Keyspace("ks1")
	sibling, _ := ks.Tables.Get("t2")

	rec := &recorder{}
	store.RegisterListener(rec)

	// t1 grew a column; only t1's rows are served for the scoped pass.
	gw.AddPage("system_schema.tables", gateway.Rows{{"keyspace_name": "ks1", "table_name": "t1"}})
	gw.AddPage("system_schema.columns", gateway.Rows{
		{"keyspace_name": "ks1", "table_name": "t1", "column_name": "id", "kind": "partition_key", "type": "text", "position": 0},
		{"keyspace_name": "ks1", "table_name": "t1", "column_name": "extra", "kind": "regular", "type": "text", "position": -1},
	})
	r.NoError(refresher.Refresh(context.Background(), dialect.TableScope("ks1", "t1")))

	r.Equal([]string{"table_changed ks1.t1"}, rec.Entries())

	ks, _ = store.Keyspace("ks1")
	got, ok := ks.Tables.Get("t2")
	r.True(ok)
	r.Same(sibling, got)

	for _, stmt := range gw.Statements()[len(gw.Statements())-4:] {
		if strings.Contains(stmt, "WHERE") {
			r.Contains(stmt, "keyspace_name = 'ks1'")
		}
	}
}

func TestRefreshFetchFailureKeepsStore(t *testing.T) {
	r := require.New(t)

	gw := gatewaytest.New()
	refresher, store := newTestRefresher(gw)
	rec := &recorder{}
	store.RegisterListener(rec)

	seedCatalog(gw, tableDef{name: "t1", columns: []string{"id", "v"}})
	r.NoError(refresher.Refresh(context.Background(), dialect.ClusterScope()))
	before, ok := store.Keyspace("ks1")
	r.True(ok)

	// A failed pass is logged and absorbed; the previous state stays
	// visible untouched.
	gw.FailTable("system_schema.tables", errors.New("coordinator unavailable"))
	r.NoError(refresher.Refresh(context.Background(), dialect.ClusterScope()))

	after, ok := store.Keyspace("ks1")
	r.True(ok)
	r.Same(before, after)
	r.Equal([]string{"keyspace_added ks1"}, rec.Entries())
}

func TestRefreshUnknownKeyspaceSchedulesFullRefresh(t *testing.T) {
	r := require.New(t)

	gw := gatewaytest.New()
	refresher, store := newTestRefresher(gw)

	// The inconsistency is absorbed; the caller sees a completed call.
	r.NoError(refresher.Refresh(context.Background(), dialect.TableScope("ghost", "t1")))

	// The fallback full refresh runs independently; wait for its keyspace
	// query to show up.
	require.Eventually(t, func() bool {
		for _, stmt := range gw.Statements() {
			if stmt == "SELECT * FROM system_schema.keyspaces" {
				return true
			}
		}
		return false
	}, 3*time.Second, 10*time.Millisecond)

	r.Empty(store.KeyspaceNames())
}

func TestRefreshClosedStoreIsNoOp(t *testing.T) {
	r := require.New(t)

	gw := gatewaytest.New()
	refresher, store := newTestRefresher(gw)
	store.Close()

	r.NoError(refresher.Refresh(context.Background(), dialect.ClusterScope()))
	r.Empty(gw.Statements())
}

func TestRefreshPicksUpInitiallySkippedTable(t *testing.T) {
	r := require.New(t)

	gw := gatewaytest.New()
	refresher, store := newTestRefresher(gw)
	rec := &recorder{}
	store.RegisterListener(rec)

	// The table's columns had not propagated yet; the pass skips it without
	// a partial entity or an event.
	seedCatalog(gw, tableDef{name: "racing", columns: nil})
	r.NoError(refresher.Refresh(context.Background(), dialect.ClusterScope()))

	r.Equal([]string{"keyspace_added ks1"}, rec.Entries())
	ks, _ := store.Keyspace("ks1")
	r.Equal(0, ks.Tables.Len())

	// Once the columns are visible the table arrives as a single addition.
	seedCatalog(gw, tableDef{name: "racing", columns: []string{"id"}})
	r.NoError(refresher.Refresh(context.Background(), dialect.ClusterScope()))

	r.Equal([]string{
		"keyspace_added ks1",
		"table_added ks1.racing",
		"keyspace_changed ks1",
	}, rec.Entries())
}
