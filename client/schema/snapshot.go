// Copyright 2024 The cqlmeta Authors. Licensed under Apache-2.0.

package schema

import "github.com/zimnx/cqlmeta/client/gateway"

// Catalog column names shared by every generation.
const (
	ColKeyspaceName  = "keyspace_name"
	ColTypeName      = "type_name"
	ColViewName      = "view_name"
	ColColumnName    = "column_name"
	ColIndexName     = "index_name"
	ColFunctionName  = "function_name"
	ColAggregateName = "aggregate_name"
)

// Snapshot is the transient bag of raw catalog rows collected by one refresh
// pass, grouped by keyspace and, where relevant, by table or view name. It is
// discarded once the typed tree is built.
type Snapshot struct {
	Keyspaces  gateway.Rows
	Tables     map[string]gateway.Rows
	Columns    map[string]map[string]gateway.Rows
	Types      map[string]gateway.Rows
	Functions  map[string]gateway.Rows
	Aggregates map[string]gateway.Rows
	Views      map[string]gateway.Rows
	Indexes    map[string]map[string]gateway.Rows

	// Virtual catalog rows, present on generations exposing
	// system_virtual_schema.
	VirtualKeyspaces gateway.Rows
	VirtualTables    map[string]gateway.Rows
	VirtualColumns   map[string]map[string]gateway.Rows
}

func NewSnapshot() *Snapshot {
	return &Snapshot{
		Keyspaces:        nil,
		Tables:           map[string]gateway.Rows{},
		Columns:          map[string]map[string]gateway.Rows{},
		Types:            map[string]gateway.Rows{},
		Functions:        map[string]gateway.Rows{},
		Aggregates:       map[string]gateway.Rows{},
		Views:            map[string]gateway.Rows{},
		Indexes:          map[string]map[string]gateway.Rows{},
		VirtualKeyspaces: nil,
		VirtualTables:    map[string]gateway.Rows{},
		VirtualColumns:   map[string]map[string]gateway.Rows{},
	}
}

// GroupByKeyspace groups raw rows by their keyspace_name column. Rows missing
// the column are dropped.
func GroupByKeyspace(rows gateway.Rows) map[string]gateway.Rows {
	result := make(map[string]gateway.Rows)
	for _, row := range rows {
		ksName, ok := row.String(ColKeyspaceName)
		if !ok {
			continue
		}
		result[ksName] = append(result[ksName], row)
	}
	return result
}

// GroupByKeyspaceAndTable groups raw rows by keyspace_name and then by the
// given table-name column, which differs across generations.
func GroupByKeyspaceAndTable(rows gateway.Rows, tableNameColumn string) map[string]map[string]gateway.Rows {
	result := make(map[string]map[string]gateway.Rows)
	for _, row := range rows {
		ksName, ok := row.String(ColKeyspaceName)
		if !ok {
			continue
		}
		tableName, ok := row.String(tableNameColumn)
		if !ok {
			continue
		}
		byTable, ok := result[ksName]
		if !ok {
			byTable = make(map[string]gateway.Rows)
			result[ksName] = byTable
		}
		byTable[tableName] = append(byTable[tableName], row)
	}
	return result
}
