// Copyright 2024 The cqlmeta Authors. Licensed under Apache-2.0.

// Package dialect selects and implements the version-specific catalog query
// strategies. A dialect value holds only its query templates and key column
// names; row grouping and the typed build are composed on top of it.
package dialect

import (
	"strings"

	"github.com/zimnx/cqlmeta/client/schema"
)

// Generation identifies one of the known catalog layouts.
type Generation int

const (
	// GenerationV2 is the legacy system.schema_* catalog.
	GenerationV2 Generation = iota
	// GenerationV3 is the system_schema catalog with separate index and view
	// tables.
	GenerationV3
	// GenerationV4 adds the system_virtual_schema catalog.
	GenerationV4
)

func (g Generation) String() string {
	switch g {
	case GenerationV2:
		return "v2"
	case GenerationV3:
		return "v3"
	default:
		return "v4"
	}
}

// Version is the server version reported by the cluster.
type Version struct {
	Major int
	Minor int
}

// ForVersion picks the dialect for the reported server version. Unknown
// future versions get the newest known dialect, unknown ancient ones the
// oldest.
func ForVersion(v Version) Dialect {
	switch {
	case v.Major >= 4:
		return newDialect(GenerationV4, v)
	case v.Major >= 3:
		return newDialect(GenerationV3, v)
	default:
		return newDialect(GenerationV2, v)
	}
}

// Element is the kind of catalog object a refresh targets.
type Element int

const (
	// ElementNone targets the whole cluster.
	ElementNone Element = iota
	ElementKeyspace
	ElementTable
	ElementView
	ElementType
	ElementFunction
	ElementAggregate
)

func (e Element) String() string {
	switch e {
	case ElementNone:
		return "cluster"
	case ElementKeyspace:
		return "keyspace"
	case ElementTable:
		return "table"
	case ElementView:
		return "view"
	case ElementType:
		return "type"
	case ElementFunction:
		return "function"
	case ElementAggregate:
		return "aggregate"
	}
	return "unknown"
}

// Scope narrows a refresh pass to the whole cluster, one keyspace or one
// named object. Functions and aggregates carry their overload signature.
type Scope struct {
	Element   Element
	Keyspace  string
	Name      string
	Signature []string
}

func ClusterScope() Scope {
	return Scope{Element: ElementNone, Keyspace: "", Name: "", Signature: nil}
}

func KeyspaceScope(keyspace string) Scope {
	return Scope{Element: ElementKeyspace, Keyspace: keyspace, Name: "", Signature: nil}
}

func TableScope(keyspace, table string) Scope {
	return Scope{Element: ElementTable, Keyspace: keyspace, Name: table, Signature: nil}
}

func ViewScope(keyspace, view string) Scope {
	return Scope{Element: ElementView, Keyspace: keyspace, Name: view, Signature: nil}
}

func TypeScope(keyspace, name string) Scope {
	return Scope{Element: ElementType, Keyspace: keyspace, Name: name, Signature: nil}
}

func FunctionScope(keyspace, name string, signature []string) Scope {
	return Scope{Element: ElementFunction, Keyspace: keyspace, Name: name, Signature: signature}
}

func AggregateScope(keyspace, name string, signature []string) Scope {
	return Scope{Element: ElementAggregate, Keyspace: keyspace, Name: name, Signature: signature}
}

// IsCluster reports whether the scope covers the whole cluster.
func (s Scope) IsCluster() bool {
	return s.Element == ElementNone
}

// queries holds the SELECT templates of one catalog generation.
type queries struct {
	keyspaces  string
	tables     string
	columns    string
	types      string
	functions  string
	aggregates string
	indexes    string
	views      string

	virtualKeyspaces string
	virtualTables    string
	virtualColumns   string
}

// Dialect is one catalog query strategy.
type Dialect struct {
	generation Generation
	version    Version

	q queries

	tableNameColumn string
	signatureColumn string
}

func newDialect(g Generation, v Version) Dialect {
	d := Dialect{
		generation:      g,
		version:         v,
		q:               queries{},
		tableNameColumn: "table_name",
		signatureColumn: "argument_types",
	}
	switch g {
	case GenerationV2:
		d.tableNameColumn = "columnfamily_name"
		d.signatureColumn = "signature"
		d.q = queries{
			keyspaces:        "SELECT * FROM system.schema_keyspaces",
			tables:           "SELECT * FROM system.schema_columnfamilies",
			columns:          "SELECT * FROM system.schema_columns",
			types:            "SELECT * FROM system.schema_usertypes",
			functions:        "SELECT * FROM system.schema_functions",
			aggregates:       "SELECT * FROM system.schema_aggregates",
			indexes:          "",
			views:            "",
			virtualKeyspaces: "",
			virtualTables:    "",
			virtualColumns:   "",
		}
	default:
		d.q = queries{
			keyspaces:        "SELECT * FROM system_schema.keyspaces",
			tables:           "SELECT * FROM system_schema.tables",
			columns:          "SELECT * FROM system_schema.columns",
			types:            "SELECT * FROM system_schema.types",
			functions:        "SELECT * FROM system_schema.functions",
			aggregates:       "SELECT * FROM system_schema.aggregates",
			indexes:          "SELECT * FROM system_schema.indexes",
			views:            "SELECT * FROM system_schema.views",
			virtualKeyspaces: "",
			virtualTables:    "",
			virtualColumns:   "",
		}
		if g == GenerationV4 {
			d.q.virtualKeyspaces = "SELECT * FROM system_virtual_schema.keyspaces"
			d.q.virtualTables = "SELECT * FROM system_virtual_schema.tables"
			d.q.virtualColumns = "SELECT * FROM system_virtual_schema.columns"
		}
	}
	return d
}

func (d Dialect) Generation() Generation {
	return d.generation
}

// BuildOptions derives the typed-build knobs for this generation.
func (d Dialect) BuildOptions() schema.BuildOptions {
	return schema.BuildOptions{
		TableNameColumn: d.tableNameColumn,
		SignatureColumn: d.signatureColumn,
		// Default CQL column metadata is guaranteed from the 2.0 catalog on.
		GuaranteedColumns: d.generation != GenerationV2 || d.version.Major >= 2,
	}
}

// supportsUserTypes gates the user type catalog table within the oldest
// generation.
func (d Dialect) supportsUserTypes() bool {
	if d.generation != GenerationV2 {
		return true
	}
	return d.version.Major > 2 || (d.version.Major == 2 && d.version.Minor >= 1)
}

// supportsFunctions gates the function and aggregate catalog tables within
// the oldest generation.
func (d Dialect) supportsFunctions() bool {
	if d.generation != GenerationV2 {
		return true
	}
	return d.version.Major > 2 || (d.version.Major == 2 && d.version.Minor >= 2)
}

// supportsPaging reports whether this generation orders catalog tables by a
// pageable natural key.
func (d Dialect) supportsPaging() bool {
	return d.generation != GenerationV2
}

// whereClause builds the scoped predicate for the given element. The element
// may differ from scope.Element: a table-scoped refresh queries the view
// catalog with a view predicate of the same name. A scope covering a whole
// keyspace carries the keyspace predicate only, never an object predicate.
func (d Dialect) whereClause(element Element, scope Scope) string {
	if scope.IsCluster() {
		return ""
	}

	var b strings.Builder
	b.WriteString(" WHERE keyspace_name = ")
	b.WriteString(quote(scope.Keyspace))
	if scope.Element == ElementNone || scope.Element == ElementKeyspace {
		return b.String()
	}

	switch element {
	case ElementTable:
		b.WriteString(" AND " + d.tableNameColumn + " = " + quote(scope.Name))
	case ElementView:
		b.WriteString(" AND view_name = " + quote(scope.Name))
	case ElementType:
		b.WriteString(" AND type_name = " + quote(scope.Name))
	case ElementFunction:
		b.WriteString(" AND function_name = " + quote(scope.Name))
		b.WriteString(" AND " + d.signatureColumn + " = " + formatStringList(scope.Signature))
	case ElementAggregate:
		b.WriteString(" AND aggregate_name = " + quote(scope.Name))
		b.WriteString(" AND " + d.signatureColumn + " = " + formatStringList(scope.Signature))
	}
	return b.String()
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func formatStringList(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, v := range values {
		quoted = append(quoted, quote(v))
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
