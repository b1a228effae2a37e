// Copyright 2024 The cqlmeta Authors. Licensed under Apache-2.0.

package schema_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zimnx/cqlmeta/client/gateway"
	"github.com/zimnx/cqlmeta/client/schema"
)

var v3Opts = schema.BuildOptions{
	TableNameColumn:   "table_name",
	SignatureColumn:   "argument_types",
	GuaranteedColumns: true,
}

var v2Opts = schema.BuildOptions{
	TableNameColumn:   "columnfamily_name",
	SignatureColumn:   "signature",
	GuaranteedColumns: false,
}

func columnRow(table, name, kind, dataType string, position int) gateway.Row {
	return gateway.Row{
		"keyspace_name": "ks1",
		"table_name":    table,
		"column_name":   name,
		"kind":          kind,
		"type":          dataType,
		"position":      position,
	}
}

func TestBuildTables(t *testing.T) {
	r := require.New(t)

	tableRows := gateway.Rows{{"keyspace_name": "ks1", "table_name": "t1"}}
	columns := map[string]gateway.Rows{
		"t1": {
			columnRow("t1", "v", "regular", "text", -1),
			columnRow("t1", "ck", "clustering", "timeuuid", 0),
			columnRow("t1", "pk", "partition_key", "uuid", 0),
		},
	}
	indexes := map[string]gateway.Rows{
		"t1": {{
			"keyspace_name": "ks1",
			"table_name":    "t1",
			"index_name":    "t1_v_idx",
			"kind":          "COMPOSITES",
			"options":       map[string]string{"target": "v"},
		}},
	}

	tables := schema.BuildTables(tableRows, columns, indexes, v3Opts)
	r.Equal(1, tables.Len())

	t1, ok := tables.Get("t1")
	r.True(ok)
	r.Equal([]string{"ck", "pk", "v"}, columnNames(t1.Columns))
	r.Len(t1.PartitionKey, 1)
	r.Equal("pk", t1.PartitionKey[0].Name)
	r.Len(t1.ClusteringColumns, 1)
	r.Equal("ck", t1.ClusteringColumns[0].Name)
	r.Equal("uuid", t1.PartitionKey[0].Type.Name)

	idx, ok := t1.Indexes["t1_v_idx"]
	r.True(ok)
	r.Equal("v", idx.Target)
}

func columnNames(columns []*schema.Column) []string {
	names := make([]string, 0, len(columns))
	for _, c := range columns {
		names = append(names, c.Name)
	}
	return names
}

func TestBuildTablesSkipsColumnlessTable(t *testing.T) {
	r := require.New(t)

	tableRows := gateway.Rows{
		{"keyspace_name": "ks1", "table_name": "settled"},
		{"keyspace_name": "ks1", "table_name": "racing"},
	}
	columns := map[string]gateway.Rows{
		"settled": {columnRow("settled", "pk", "partition_key", "int", 0)},
	}

	// Columns are guaranteed on this generation; a table without any was
	// caught mid-creation and sits out this pass.
	tables := schema.BuildTables(tableRows, columns, nil, v3Opts)
	r.Equal(1, tables.Len())
	_, ok := tables.Get("racing")
	r.False(ok)

	// The oldest generation cannot tell the race from a legitimately empty
	// column set and keeps the table.
	tables = schema.BuildTables(gateway.Rows{{"keyspace_name": "ks1", "columnfamily_name": "racing"}}, nil, nil, v2Opts)
	r.Equal(1, tables.Len())
	racing, ok := tables.Get("racing")
	r.True(ok)
	r.Empty(racing.Columns)
}

func TestBuildTablesRowFaultContainment(t *testing.T) {
	r := require.New(t)

	tableRows := gateway.Rows{
		{"keyspace_name": "ks1", "table_name": "good"},
		{"keyspace_name": "ks1", "table_name": "bad"},
	}
	columns := map[string]gateway.Rows{
		"good": {columnRow("good", "pk", "partition_key", "int", 0)},
		"bad":  {columnRow("bad", "pk", "partition_key", "list<int", 0)},
	}

	// A malformed type in one table's column row drops that table only.
	tables := schema.BuildTables(tableRows, columns, nil, v3Opts)
	r.Equal(1, tables.Len())
	_, ok := tables.Get("good")
	r.True(ok)
}

func TestBuildTablesV2ColumnLayout(t *testing.T) {
	r := require.New(t)

	tableRows := gateway.Rows{{"keyspace_name": "ks1", "columnfamily_name": "t1"}}
	columns := map[string]gateway.Rows{
		"t1": {
			{
				"keyspace_name":     "ks1",
				"columnfamily_name": "t1",
				"column_name":       "pk",
				"type":              "partition_key",
				"validator":         "uuid",
				"component_index":   0,
			},
			{
				"keyspace_name":     "ks1",
				"columnfamily_name": "t1",
				"column_name":       "v",
				"type":              "regular",
				"validator":         "text",
				"index_name":        "t1_v_idx",
				"index_type":        "COMPOSITES",
			},
			{
				"keyspace_name":     "ks1",
				"columnfamily_name": "t1",
				"column_name":       "tags",
				"type":              "regular",
				"validator":         "org.apache.cassandra.db.marshal.SetType(org.apache.cassandra.db.marshal.UTF8Type)",
			},
		},
	}

	tables := schema.BuildTables(tableRows, columns, nil, v2Opts)
	t1, ok := tables.Get("t1")
	r.True(ok)
	r.Len(t1.PartitionKey, 1)
	r.Equal("uuid", t1.PartitionKey[0].Type.Name)

	// Class-name validators translate to their CQL form.
	r.Equal("set<text>", t1.Columns[1].Type.String())

	// Index definitions ride along on column rows in this generation.
	idx, ok := t1.Indexes["t1_v_idx"]
	r.True(ok)
	r.Equal("v", idx.Target)
}

func TestBuildViews(t *testing.T) {
	r := require.New(t)

	viewRows := gateway.Rows{
		{
			"keyspace_name":   "ks1",
			"view_name":       "mv1",
			"base_table_name": "t1",
		},
		{
			"keyspace_name":   "ks1",
			"view_name":       "racing",
			"base_table_name": "t1",
		},
	}
	columns := map[string]gateway.Rows{
		"mv1": {columnRow("mv1", "pk", "partition_key", "int", 0)},
	}

	views := schema.BuildViews(viewRows, columns, v3Opts)
	r.Equal(1, views.Len())
	mv1, ok := views.Get("mv1")
	r.True(ok)
	r.Equal("t1", mv1.BaseTableName)

	ks := schema.NewKeyspace("ks1")
	table := &schema.Table{Name: "t1", Columns: nil, PartitionKey: nil, ClusteringColumns: nil, Indexes: map[string]*schema.Index{}}
	ks.Tables.Put("t1", table)
	r.Same(table, mv1.BaseTable(ks))
}

func TestBuildFunctionsAndAggregates(t *testing.T) {
	r := require.New(t)

	functionRows := gateway.Rows{
		{
			"keyspace_name":        "ks1",
			"function_name":        "plus",
			"argument_names":       []string{"x", "y"},
			"argument_types":       []string{"int", "int"},
			"return_type":          "int",
			"language":             "java",
			"body":                 "return x + y;",
			"called_on_null_input": false,
		},
		{
			"keyspace_name":  "ks1",
			"function_name":  "plus",
			"argument_types": []string{"bigint", "bigint"},
			"return_type":    "bigint",
		},
	}

	functions := schema.BuildFunctions(functionRows, v3Opts)
	r.Equal(2, functions.Len())
	fn, ok := functions.Get("plus(int,int)")
	r.True(ok)
	r.Equal("java", fn.Language)
	_, ok = functions.Get("plus(bigint,bigint)")
	r.True(ok)

	aggregateRows := gateway.Rows{{
		"keyspace_name":  "ks1",
		"aggregate_name": "average",
		"argument_types": []string{"int"},
		"state_func":     "avgState",
		"state_type":     "tuple<int, bigint>",
		"final_func":     "avgFinal",
		"return_type":    "double",
	}}

	aggregates := schema.BuildAggregates(aggregateRows, v3Opts)
	agg, ok := aggregates.Get("average(int)")
	r.True(ok)
	r.Equal("avgState", agg.StateFunc)
	r.Equal("tuple<int, bigint>", agg.StateType.String())
}

func TestBuildKeyspaces(t *testing.T) {
	r := require.New(t)

	snap := schema.NewSnapshot()
	snap.Keyspaces = gateway.Rows{{
		"keyspace_name":  "ks1",
		"durable_writes": true,
		"replication":    map[string]string{"class": "SimpleStrategy", "replication_factor": "3"},
	}}
	snap.Tables["ks1"] = gateway.Rows{{"keyspace_name": "ks1", "table_name": "t1"}}
	snap.Columns["ks1"] = map[string]gateway.Rows{
		"t1": {columnRow("t1", "pk", "partition_key", "int", 0)},
	}
	snap.Types["ks1"] = gateway.Rows{
		typeRow("addr", "text"),
		typeRow("person", "frozen<addr>"),
	}

	keyspaces := schema.BuildKeyspaces(snap, v3Opts)
	r.Equal(1, keyspaces.Len())
	ks, ok := keyspaces.Get("ks1")
	r.True(ok)
	r.True(ks.DurableWrites)
	r.Equal("3", ks.Replication["replication_factor"])
	r.False(ks.TypesFailed)
	r.Equal([]string{"addr", "person"}, ks.Types.Keys())
	r.Equal(1, ks.Tables.Len())
}

func TestBuildKeyspacesTypeCycleSetsTypesFailed(t *testing.T) {
	r := require.New(t)

	snap := schema.NewSnapshot()
	snap.Keyspaces = gateway.Rows{{
		"keyspace_name":  "ks1",
		"durable_writes": true,
		"replication":    map[string]string{"class": "SimpleStrategy"},
	}}
	snap.Types["ks1"] = gateway.Rows{
		typeRow("a", "frozen<b>"),
		typeRow("b", "frozen<a>"),
	}

	keyspaces := schema.BuildKeyspaces(snap, v3Opts)
	ks, ok := keyspaces.Get("ks1")
	r.True(ok)
	r.True(ks.TypesFailed)
	r.Equal(0, ks.Types.Len())
}

func TestBuildKeyspacesV2Replication(t *testing.T) {
	r := require.New(t)

	snap := schema.NewSnapshot()
	snap.Keyspaces = gateway.Rows{{
		"keyspace_name":    "ks1",
		"durable_writes":   true,
		"strategy_class":   "NetworkTopologyStrategy",
		"strategy_options": `{"dc1":"3"}`,
	}}

	keyspaces := schema.BuildKeyspaces(snap, v2Opts)
	ks, ok := keyspaces.Get("ks1")
	r.True(ok)
	r.Equal("NetworkTopologyStrategy", ks.Replication["class"])
	r.Equal("3", ks.Replication["dc1"])
}

func TestBuildKeyspacesVirtual(t *testing.T) {
	r := require.New(t)

	snap := schema.NewSnapshot()
	snap.VirtualKeyspaces = gateway.Rows{{"keyspace_name": "system_views"}}
	snap.VirtualTables["system_views"] = gateway.Rows{{"keyspace_name": "system_views", "table_name": "clients"}}
	snap.VirtualColumns["system_views"] = map[string]gateway.Rows{
		"clients": {columnRow("clients", "address", "partition_key", "inet", 0)},
	}

	keyspaces := schema.BuildKeyspaces(snap, v3Opts)
	ks, ok := keyspaces.Get("system_views")
	r.True(ok)
	r.True(ks.Virtual)
	r.Equal(1, ks.Tables.Len())
}
