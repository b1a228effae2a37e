// Copyright 2024 The cqlmeta Authors. Licensed under Apache-2.0.

package schema

import (
	"fmt"
	"strings"
)

// ColumnKind classifies the role of a column within its table.
type ColumnKind int

const (
	KindRegular ColumnKind = iota
	KindPartitionKey
	KindClustering
	KindStatic
)

func (k ColumnKind) String() string {
	switch k {
	case KindPartitionKey:
		return "partition_key"
	case KindClustering:
		return "clustering"
	case KindStatic:
		return "static"
	default:
		return "regular"
	}
}

// ParseColumnKind maps the catalog representation of a column kind across
// generations. Older catalogs use "clustering_key" and "compact_value".
func ParseColumnKind(s string) (ColumnKind, bool) {
	switch s {
	case "partition_key":
		return KindPartitionKey, true
	case "clustering", "clustering_key":
		return KindClustering, true
	case "static":
		return KindStatic, true
	case "regular", "compact_value":
		return KindRegular, true
	}
	return KindRegular, false
}

type Column struct {
	Name string
	Type DataType
	Kind ColumnKind
	// Position is the component index within the partition or clustering key,
	// -1 for other kinds.
	Position int
}

type Index struct {
	Name    string
	Kind    string
	Target  string
	Options map[string]string
}

type Table struct {
	Name string
	// Columns holds every column in catalog name order.
	Columns           []*Column
	PartitionKey      []*Column
	ClusteringColumns []*Column
	Indexes           map[string]*Index
}

// Column returns the named column, or nil.
func (t *Table) Column(name string) *Column {
	for _, c := range t.Columns {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// View is a materialized view. The base table is referenced by name and
// resolved through the owning keyspace, so replacing a table object under the
// store lock repoints every view at once.
type View struct {
	Table
	BaseTableName string
}

// BaseTable resolves the view's base table within ks. After a successful
// build this never returns nil for a view reachable from the store.
func (v *View) BaseTable(ks *Keyspace) *Table {
	t, _ := ks.Tables.Get(v.BaseTableName)
	return t
}

// UserType is a user-defined type. Field types may reference sibling types of
// the same keyspace; the reference graph is acyclic.
type UserType struct {
	Name       string
	FieldNames []string
	FieldTypes []DataType
}

type Function struct {
	Name              string
	ArgumentNames     []string
	ArgumentTypes     []DataType
	ReturnType        DataType
	Language          string
	Body              string
	CalledOnNullInput bool
}

// Signature returns the composite key identifying this overload.
func (f *Function) Signature() string {
	return FunctionSignature(f.Name, f.ArgumentTypes)
}

type Aggregate struct {
	Name          string
	ArgumentTypes []DataType
	StateFunc     string
	StateType     DataType
	FinalFunc     string
	InitCond      string
	ReturnType    DataType
}

// Signature returns the composite key identifying this overload.
func (a *Aggregate) Signature() string {
	return FunctionSignature(a.Name, a.ArgumentTypes)
}

// FunctionSignature renders the composite name+argument key shared by
// functions and aggregates. Overloads are distinct entities.
func FunctionSignature(name string, args []DataType) string {
	rendered := make([]string, 0, len(args))
	for _, arg := range args {
		rendered = append(rendered, arg.String())
	}
	return fmt.Sprintf("%s(%s)", name, strings.Join(rendered, ","))
}

// Keyspace is the root of the typed entity tree for one keyspace. The child
// collections are mutated only by the merge step of the metadata store, under
// the store lock.
type Keyspace struct {
	Name          string
	DurableWrites bool
	Replication   map[string]string
	// Virtual marks system virtual keyspaces, which carry tables and columns
	// only.
	Virtual bool
	// TypesFailed records that this build pass could not order the keyspace's
	// user types. The merge step retains the previously known types.
	TypesFailed bool

	Tables     *OrderedMap[*Table]
	Views      *OrderedMap[*View]
	Types      *OrderedMap[*UserType]
	Functions  *OrderedMap[*Function]
	Aggregates *OrderedMap[*Aggregate]
}

func NewKeyspace(name string) *Keyspace {
	return &Keyspace{
		Name:          name,
		DurableWrites: false,
		Replication:   nil,
		Virtual:       false,
		TypesFailed:   false,
		Tables:        NewOrderedMap[*Table](),
		Views:         NewOrderedMap[*View](),
		Types:         NewOrderedMap[*UserType](),
		Functions:     NewOrderedMap[*Function](),
		Aggregates:    NewOrderedMap[*Aggregate](),
	}
}
