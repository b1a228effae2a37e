// Copyright 2024 The cqlmeta Authors. Licensed under Apache-2.0.

package schema

import (
	"encoding/json"
	"sort"

	"go.uber.org/zap"

	"github.com/zimnx/cqlmeta/client/gateway"
	"github.com/zimnx/cqlmeta/pkg/log"
)

// BuildOptions carries the generation-specific knobs of the typed build.
type BuildOptions struct {
	// TableNameColumn names the column holding a table's name in table,
	// column and index rows ("table_name", or "columnfamily_name" on the
	// oldest generation).
	TableNameColumn string
	// SignatureColumn names the column holding a function or aggregate
	// argument-type list ("argument_types", or "signature" on the oldest
	// generation).
	SignatureColumn string
	// GuaranteedColumns is set on generations where the catalog always
	// carries default CQL column metadata for every table. On those
	// generations a table with no visible columns is a propagation race and
	// is skipped for the pass; on older ones an empty column set is normal.
	GuaranteedColumns bool
}

// BuildKeyspaces turns one catalog snapshot into the typed entity tree. Errors
// in a single row are logged and skip only that entity.
func BuildKeyspaces(snap *Snapshot, opts BuildOptions) *OrderedMap[*Keyspace] {
	keyspaces := NewOrderedMap[*Keyspace]()

	for _, row := range snap.Keyspaces {
		ks, err := buildKeyspace(row)
		if err != nil {
			name, _ := row.String(ColKeyspaceName)
			log.Error("parse keyspace row, keyspace will be missing", zap.String("keyspace", name), zap.Error(err))
			continue
		}

		types, err := BuildUserTypes(snap.Types[ks.Name], ks.Name)
		if err != nil {
			// Cycle detected: the keyspace's previously known types stay in
			// effect until a later pass observes a consistent catalog.
			log.Error("order user types, keyspace types left stale", zap.String("keyspace", ks.Name), zap.Error(err))
			ks.TypesFailed = true
		} else {
			ks.Types = types
		}

		ks.Tables = BuildTables(snap.Tables[ks.Name], snap.Columns[ks.Name], snap.Indexes[ks.Name], opts)
		ks.Views = BuildViews(snap.Views[ks.Name], snap.Columns[ks.Name], opts)
		ks.Functions = BuildFunctions(snap.Functions[ks.Name], opts)
		ks.Aggregates = BuildAggregates(snap.Aggregates[ks.Name], opts)

		keyspaces.Put(ks.Name, ks)
	}

	for _, row := range snap.VirtualKeyspaces {
		name, ok := row.String(ColKeyspaceName)
		if !ok {
			log.Error("virtual keyspace row without name, keyspace will be missing")
			continue
		}
		ks := NewKeyspace(name)
		ks.Virtual = true
		virtualOpts := opts
		// Virtual tables always expose their columns.
		virtualOpts.GuaranteedColumns = false
		ks.Tables = BuildTables(snap.VirtualTables[name], snap.VirtualColumns[name], nil, virtualOpts)
		keyspaces.Put(name, ks)
	}

	return keyspaces
}

func buildKeyspace(row gateway.Row) (*Keyspace, error) {
	name, ok := row.String(ColKeyspaceName)
	if !ok {
		return nil, ErrRowParse.WithCausef("keyspace row without %s", ColKeyspaceName)
	}
	ks := NewKeyspace(name)
	ks.DurableWrites, _ = row.Bool("durable_writes")

	if replication, ok := row.StringMap("replication"); ok {
		ks.Replication = replication
		return ks, nil
	}

	// Oldest generation: strategy_class plus a JSON-encoded options map.
	strategyClass, ok := row.String("strategy_class")
	if !ok {
		return nil, ErrRowParse.WithCausef("keyspace:%s has neither replication nor strategy_class", name)
	}
	replication := map[string]string{"class": strategyClass}
	if rawOptions, ok := row.String("strategy_options"); ok && rawOptions != "" {
		options := map[string]string{}
		if err := json.Unmarshal([]byte(rawOptions), &options); err != nil {
			return nil, ErrRowParse.WithCausef("keyspace:%s, decode strategy_options:%v", name, err)
		}
		for k, v := range options {
			replication[k] = v
		}
	}
	ks.Replication = replication
	return ks, nil
}

// BuildUserTypes builds the keyspace's user types in dependency order.
func BuildUserTypes(rows gateway.Rows, keyspace string) (*OrderedMap[*UserType], error) {
	ordered, err := SortUserTypes(rows, keyspace)
	if err != nil {
		return nil, err
	}

	types := NewOrderedMap[*UserType]()
	for _, row := range ordered {
		ut, err := buildUserType(row)
		if err != nil {
			name, _ := row.String(ColTypeName)
			log.Error("parse user type row, type will be missing", zap.String("keyspace", keyspace), zap.String("type", name), zap.Error(err))
			continue
		}
		types.Put(ut.Name, ut)
	}
	return types, nil
}

func buildUserType(row gateway.Row) (*UserType, error) {
	name, ok := row.String(ColTypeName)
	if !ok {
		return nil, ErrRowParse.WithCausef("user type row without %s", ColTypeName)
	}
	fieldNames, ok := row.StringList("field_names")
	if !ok {
		return nil, ErrRowParse.WithCausef("user type:%s without field_names", name)
	}
	rawTypes, ok := row.StringList("field_types")
	if !ok || len(rawTypes) != len(fieldNames) {
		return nil, ErrRowParse.WithCausef("user type:%s, field_names/field_types mismatch", name)
	}

	fieldTypes := make([]DataType, 0, len(rawTypes))
	for _, raw := range rawTypes {
		ft, err := ParseDataType(raw)
		if err != nil {
			return nil, err
		}
		fieldTypes = append(fieldTypes, ft)
	}
	return &UserType{Name: name, FieldNames: fieldNames, FieldTypes: fieldTypes}, nil
}

// BuildTables builds the keyspace's tables from table, column and index rows.
func BuildTables(tableRows gateway.Rows, columnsByTable map[string]gateway.Rows, indexesByTable map[string]gateway.Rows, opts BuildOptions) *OrderedMap[*Table] {
	tables := NewOrderedMap[*Table]()
	for _, row := range tableRows {
		name, ok := row.String(opts.TableNameColumn)
		if !ok {
			log.Error("table row without name, table will be missing", zap.String("column", opts.TableNameColumn))
			continue
		}

		columnRows := columnsByTable[name]
		if len(columnRows) == 0 {
			if opts.GuaranteedColumns {
				// The table was created concurrently with our catalog
				// queries and its columns have not propagated yet. Skip it;
				// a later pass picks it up.
				log.Debug("table with no visible columns, skipping for this pass", zap.String("table", name))
				continue
			}
			columnRows = gateway.Rows{}
		}

		table, err := buildTable(name, row, columnRows, indexesByTable[name], opts)
		if err != nil {
			log.Error("parse table rows, table will be missing or incomplete", zap.String("table", name), zap.Error(err))
			continue
		}
		tables.Put(name, table)
	}
	return tables
}

func buildTable(name string, _ gateway.Row, columnRows gateway.Rows, indexRows gateway.Rows, opts BuildOptions) (*Table, error) {
	columns, partitionKey, clustering, err := buildColumns(columnRows)
	if err != nil {
		return nil, err
	}

	table := &Table{
		Name:              name,
		Columns:           columns,
		PartitionKey:      partitionKey,
		ClusteringColumns: clustering,
		Indexes:           map[string]*Index{},
	}

	for _, row := range indexRows {
		indexName, ok := row.String(ColIndexName)
		if !ok {
			return nil, ErrRowParse.WithCausef("index row without %s, table:%s", ColIndexName, name)
		}
		kind, _ := row.String("kind")
		options, _ := row.StringMap("options")
		table.Indexes[indexName] = &Index{
			Name:    indexName,
			Kind:    kind,
			Target:  options["target"],
			Options: options,
		}
	}

	// The oldest generation embeds index definitions in column rows.
	for _, row := range columnRows {
		indexName, ok := row.String(ColIndexName)
		if !ok || indexName == "" {
			continue
		}
		if _, exists := table.Indexes[indexName]; exists {
			continue
		}
		kind, _ := row.String("index_type")
		target, _ := row.String(ColColumnName)
		table.Indexes[indexName] = &Index{
			Name:    indexName,
			Kind:    kind,
			Target:  target,
			Options: nil,
		}
	}

	return table, nil
}

func buildColumns(columnRows gateway.Rows) ([]*Column, []*Column, []*Column, error) {
	columns := make([]*Column, 0, len(columnRows))
	var partitionKey, clustering []*Column

	for _, row := range columnRows {
		col, err := buildColumn(row)
		if err != nil {
			return nil, nil, nil, err
		}
		columns = append(columns, col)
		switch col.Kind {
		case KindPartitionKey:
			partitionKey = append(partitionKey, col)
		case KindClustering:
			clustering = append(clustering, col)
		}
	}

	sort.SliceStable(partitionKey, func(i, j int) bool { return partitionKey[i].Position < partitionKey[j].Position })
	sort.SliceStable(clustering, func(i, j int) bool { return clustering[i].Position < clustering[j].Position })
	sort.SliceStable(columns, func(i, j int) bool { return columns[i].Name < columns[j].Name })
	return columns, partitionKey, clustering, nil
}

func buildColumn(row gateway.Row) (*Column, error) {
	name, ok := row.String(ColColumnName)
	if !ok {
		return nil, ErrRowParse.WithCausef("column row without %s", ColColumnName)
	}

	// Current generations carry kind + type columns; the oldest one stores
	// the kind under "type" and the data type under "validator".
	rawKind, ok := row.String("kind")
	typeColumn := "type"
	if !ok {
		rawKind, _ = row.String("type")
		typeColumn = "validator"
	}
	kind, ok := ParseColumnKind(rawKind)
	if !ok {
		return nil, ErrRowParse.WithCausef("column:%s with unknown kind:%q", name, rawKind)
	}

	rawType, ok := row.String(typeColumn)
	if !ok {
		return nil, ErrRowParse.WithCausef("column:%s without %s", name, typeColumn)
	}
	dataType, err := ParseDataType(rawType)
	if err != nil {
		return nil, err
	}

	position, ok := row.Int("position")
	if !ok {
		if position, ok = row.Int("component_index"); !ok {
			position = -1
		}
	}

	return &Column{Name: name, Type: dataType, Kind: kind, Position: position}, nil
}

// BuildViews builds the keyspace's materialized views. A view whose columns
// are not visible yet is skipped silently, mirroring the table race handling.
func BuildViews(viewRows gateway.Rows, columnsByTable map[string]gateway.Rows, opts BuildOptions) *OrderedMap[*View] {
	views := NewOrderedMap[*View]()
	for _, row := range viewRows {
		name, ok := row.String(ColViewName)
		if !ok {
			log.Error("view row without name, view will be missing")
			continue
		}
		columnRows := columnsByTable[name]
		if len(columnRows) == 0 {
			log.Debug("view with no visible columns, skipping for this pass", zap.String("view", name))
			continue
		}
		baseTableName, ok := row.String("base_table_name")
		if !ok {
			log.Error("view row without base table, view will be missing", zap.String("view", name))
			continue
		}

		table, err := buildTable(name, row, columnRows, nil, opts)
		if err != nil {
			log.Error("parse view rows, view will be missing or incomplete", zap.String("view", name), zap.Error(err))
			continue
		}
		views.Put(name, &View{Table: *table, BaseTableName: baseTableName})
	}
	return views
}

// BuildFunctions builds the keyspace's functions keyed by overload signature.
func BuildFunctions(rows gateway.Rows, opts BuildOptions) *OrderedMap[*Function] {
	functions := NewOrderedMap[*Function]()
	for _, row := range rows {
		fn, err := buildFunction(row, opts)
		if err != nil {
			name, _ := row.String(ColFunctionName)
			log.Error("parse function row, function will be missing", zap.String("function", name), zap.Error(err))
			continue
		}
		functions.Put(fn.Signature(), fn)
	}
	return functions
}

func buildFunction(row gateway.Row, opts BuildOptions) (*Function, error) {
	name, ok := row.String(ColFunctionName)
	if !ok {
		return nil, ErrRowParse.WithCausef("function row without %s", ColFunctionName)
	}
	argumentTypes, err := parseSignature(row, opts)
	if err != nil {
		return nil, errorWithEntity(err, "function", name)
	}
	rawReturn, ok := row.String("return_type")
	if !ok {
		return nil, ErrRowParse.WithCausef("function:%s without return_type", name)
	}
	returnType, err := ParseDataType(rawReturn)
	if err != nil {
		return nil, err
	}

	argumentNames, _ := row.StringList("argument_names")
	language, _ := row.String("language")
	body, _ := row.String("body")
	calledOnNull, _ := row.Bool("called_on_null_input")

	return &Function{
		Name:              name,
		ArgumentNames:     argumentNames,
		ArgumentTypes:     argumentTypes,
		ReturnType:        returnType,
		Language:          language,
		Body:              body,
		CalledOnNullInput: calledOnNull,
	}, nil
}

// BuildAggregates builds the keyspace's aggregates keyed by overload signature.
func BuildAggregates(rows gateway.Rows, opts BuildOptions) *OrderedMap[*Aggregate] {
	aggregates := NewOrderedMap[*Aggregate]()
	for _, row := range rows {
		agg, err := buildAggregate(row, opts)
		if err != nil {
			name, _ := row.String(ColAggregateName)
			log.Error("parse aggregate row, aggregate will be missing", zap.String("aggregate", name), zap.Error(err))
			continue
		}
		aggregates.Put(agg.Signature(), agg)
	}
	return aggregates
}

func buildAggregate(row gateway.Row, opts BuildOptions) (*Aggregate, error) {
	name, ok := row.String(ColAggregateName)
	if !ok {
		return nil, ErrRowParse.WithCausef("aggregate row without %s", ColAggregateName)
	}
	argumentTypes, err := parseSignature(row, opts)
	if err != nil {
		return nil, errorWithEntity(err, "aggregate", name)
	}
	rawReturn, ok := row.String("return_type")
	if !ok {
		return nil, ErrRowParse.WithCausef("aggregate:%s without return_type", name)
	}
	returnType, err := ParseDataType(rawReturn)
	if err != nil {
		return nil, err
	}
	rawState, ok := row.String("state_type")
	if !ok {
		return nil, ErrRowParse.WithCausef("aggregate:%s without state_type", name)
	}
	stateType, err := ParseDataType(rawState)
	if err != nil {
		return nil, err
	}

	stateFunc, _ := row.String("state_func")
	finalFunc, _ := row.String("final_func")
	initCond, _ := row.String("initcond")

	return &Aggregate{
		Name:          name,
		ArgumentTypes: argumentTypes,
		StateFunc:     stateFunc,
		StateType:     stateType,
		FinalFunc:     finalFunc,
		InitCond:      initCond,
		ReturnType:    returnType,
	}, nil
}

func parseSignature(row gateway.Row, opts BuildOptions) ([]DataType, error) {
	rawArgs, ok := row.StringList(opts.SignatureColumn)
	if !ok {
		return nil, ErrRowParse.WithCausef("row without %s", opts.SignatureColumn)
	}
	argumentTypes := make([]DataType, 0, len(rawArgs))
	for _, raw := range rawArgs {
		at, err := ParseDataType(raw)
		if err != nil {
			return nil, err
		}
		argumentTypes = append(argumentTypes, at)
	}
	return argumentTypes, nil
}

func errorWithEntity(err error, kind, name string) error {
	return ErrRowParse.WithCausef("%s:%s, %v", kind, name, err)
}
