// Copyright 2024 The cqlmeta Authors. Licensed under Apache-2.0.

package schema

import (
	"sort"

	"go.uber.org/zap"

	"github.com/zimnx/cqlmeta/client/gateway"
	"github.com/zimnx/cqlmeta/pkg/assert"
	"github.com/zimnx/cqlmeta/pkg/log"
)

// SortUserTypes orders raw user-type rows so that every type appears after
// the types its fields reference. The order is deterministic: among types
// whose dependencies are all satisfied, the lexicographically smallest name
// is emitted first, regardless of input row order. A reference cycle is a
// data-integrity violation and fails the whole keyspace's type build.
func SortUserTypes(rows gateway.Rows, keyspace string) (gateway.Rows, error) {
	if len(rows) < 2 {
		return rows, nil
	}

	type node struct {
		row        gateway.Row
		fieldTypes []DataType
	}

	nodes := make(map[string]*node, len(rows))
	names := make([]string, 0, len(rows))
	for _, row := range rows {
		name, ok := row.String(ColTypeName)
		if !ok {
			log.Warn("user type row without type name, skipping", zap.String("keyspace", keyspace))
			continue
		}
		if _, dup := nodes[name]; dup {
			log.Warn("duplicate user type row, skipping", zap.String("keyspace", keyspace), zap.String("type", name))
			continue
		}
		rawTypes, _ := row.StringList("field_types")
		fieldTypes := make([]DataType, 0, len(rawTypes))
		for _, raw := range rawTypes {
			ft, err := ParseDataType(raw)
			if err != nil {
				// A malformed field type cannot introduce a dependency;
				// the builder deals with the row itself.
				continue
			}
			fieldTypes = append(fieldTypes, ft)
		}
		nodes[name] = &node{row: row, fieldTypes: fieldTypes}
		names = append(names, name)
	}
	sort.Strings(names)

	// deps[x] holds the sibling types x must be built after.
	deps := make(map[string]map[string]struct{}, len(nodes))
	for _, from := range names {
		deps[from] = map[string]struct{}{}
		for _, to := range names {
			if from == to {
				continue
			}
			for _, ft := range nodes[from].fieldTypes {
				if ft.References(to) {
					deps[from][to] = struct{}{}
					break
				}
			}
		}
	}

	ordered := make(gateway.Rows, 0, len(names))
	emitted := make(map[string]struct{}, len(names))
	for len(emitted) < len(names) {
		picked := ""
		for _, name := range names {
			if _, done := emitted[name]; done {
				continue
			}
			ready := true
			for dep := range deps[name] {
				if _, done := emitted[dep]; !done {
					ready = false
					break
				}
			}
			if ready {
				picked = name
				break
			}
		}
		if picked == "" {
			remaining := make([]string, 0, len(names)-len(emitted))
			for _, name := range names {
				if _, done := emitted[name]; !done {
					remaining = append(remaining, name)
				}
			}
			return nil, ErrDependencyCycle.WithCausef("keyspace:%s, types:%v", keyspace, remaining)
		}
		ordered = append(ordered, nodes[picked].row)
		emitted[picked] = struct{}{}
	}
	assert.Assertf(len(ordered) == len(names), "ordered %d of %d types", len(ordered), len(names))
	return ordered, nil
}
