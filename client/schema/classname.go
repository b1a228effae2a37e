// Copyright 2024 The cqlmeta Authors. Licensed under Apache-2.0.

package schema

import (
	"encoding/hex"
	"strings"
)

// marshalClassPrefix marks the oldest generation's type values, e.g.
// org.apache.cassandra.db.marshal.ListType(org.apache.cassandra.db.marshal.Int32Type).
const marshalClassPrefix = "org.apache.cassandra.db.marshal."

// marshalClassNames maps simple marshal classes to their CQL type names.
var marshalClassNames = map[string]string{
	"AsciiType":         "ascii",
	"LongType":          "bigint",
	"BytesType":         "blob",
	"BooleanType":       "boolean",
	"CounterColumnType": "counter",
	"SimpleDateType":    "date",
	"DecimalType":       "decimal",
	"DoubleType":        "double",
	"FloatType":         "float",
	"InetAddressType":   "inet",
	"Int32Type":         "int",
	"ShortType":         "smallint",
	"UTF8Type":          "text",
	"TimeType":          "time",
	"TimestampType":     "timestamp",
	"DateType":          "timestamp",
	"TimeUUIDType":      "timeuuid",
	"ByteType":          "tinyint",
	"UUIDType":          "uuid",
	"IntegerType":       "varint",
}

// parseMarshalClass translates a marshal class name into the tree form
// ParseDataType produces for CQL names. ReversedType is a clustering-order
// marker, not a type, and unwraps to its argument. A user type resolves to
// its hex-decoded name, so References sees sibling types through any
// nesting. Unrecognized classes stay opaque bare names.
func parseMarshalClass(s string) (DataType, error) {
	s = strings.TrimSpace(s)
	name := strings.TrimPrefix(s, marshalClassPrefix)

	open := strings.IndexByte(name, '(')
	if open < 0 {
		if cql, ok := marshalClassNames[name]; ok {
			return DataType{Name: cql}, nil
		}
		return DataType{Name: name}, nil
	}
	if !strings.HasSuffix(name, ")") {
		return DataType{}, ErrTypeParse.WithCausef("unbalanced parentheses in class name:%q", s)
	}
	inner := name[open+1 : len(name)-1]
	name = name[:open]

	switch name {
	case "ReversedType":
		return parseMarshalClass(inner)
	case "FrozenType":
		arg, err := parseMarshalClass(inner)
		if err != nil {
			return DataType{}, err
		}
		return DataType{Name: "frozen", Args: []DataType{arg}}, nil
	case "ListType", "SetType", "MapType", "TupleType":
		rawArgs, err := splitClassArgs(inner)
		if err != nil {
			return DataType{}, err
		}
		args := make([]DataType, 0, len(rawArgs))
		for _, raw := range rawArgs {
			arg, err := parseMarshalClass(raw)
			if err != nil {
				return DataType{}, err
			}
			args = append(args, arg)
		}
		cql := map[string]string{
			"ListType": "list", "SetType": "set", "MapType": "map", "TupleType": "tuple",
		}[name]
		return DataType{Name: cql, Args: args}, nil
	case "UserType":
		// UserType(keyspace, hex type name, hex field name:field class, ...)
		rawArgs, err := splitClassArgs(inner)
		if err != nil || len(rawArgs) < 2 {
			return DataType{}, ErrTypeParse.WithCausef("malformed user type class:%q", s)
		}
		decoded, err := hex.DecodeString(strings.TrimSpace(rawArgs[1]))
		if err != nil {
			return DataType{}, ErrTypeParse.WithCausef("user type class with undecodable name:%q", s)
		}
		return DataType{Name: string(decoded)}, nil
	default:
		return DataType{Name: name}, nil
	}
}

// splitClassArgs splits a class argument list on commas outside nested
// parentheses.
func splitClassArgs(s string) ([]string, error) {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return nil, ErrTypeParse.WithCausef("unbalanced parentheses in class arguments:%q", s)
			}
		case ',':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, ErrTypeParse.WithCausef("unbalanced parentheses in class arguments:%q", s)
	}
	parts = append(parts, strings.TrimSpace(s[start:]))
	return parts, nil
}
