// Copyright 2024 The cqlmeta Authors. Licensed under Apache-2.0.

package schema

import "strings"

// DataType is a parsed CQL type name. Parameterized types (list, set, map,
// tuple, frozen) carry their arguments; everything else, native types and
// user-defined type names alike, is a bare name.
type DataType struct {
	Name string
	Args []DataType
}

func (t DataType) String() string {
	if len(t.Args) == 0 {
		return t.Name
	}
	parts := make([]string, 0, len(t.Args))
	for _, arg := range t.Args {
		parts = append(parts, arg.String())
	}
	return t.Name + "<" + strings.Join(parts, ", ") + ">"
}

// References reports whether this type mentions the given user-defined type
// name anywhere in its argument tree.
func (t DataType) References(udtName string) bool {
	if t.Name == udtName {
		return true
	}
	for _, arg := range t.Args {
		if arg.References(udtName) {
			return true
		}
	}
	return false
}

// ParseDataType parses a catalog type value into its tree form. Current
// generations store CQL type names such as "map<text, frozen<address>>"; the
// oldest generation stores server-side marshal class names, which are
// translated to the same tree so user-type references resolve identically.
func ParseDataType(s string) (DataType, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DataType{}, ErrTypeParse.WithCausef("empty type name")
	}
	if strings.HasPrefix(s, marshalClassPrefix) {
		return parseMarshalClass(s)
	}

	open := strings.IndexByte(s, '<')
	if open < 0 {
		if strings.ContainsAny(s, ">,") {
			return DataType{}, ErrTypeParse.WithCausef("malformed type name:%q", s)
		}
		return DataType{Name: s, Args: nil}, nil
	}
	if !strings.HasSuffix(s, ">") {
		return DataType{}, ErrTypeParse.WithCausef("unbalanced angle brackets in type name:%q", s)
	}

	name := strings.TrimSpace(s[:open])
	inner := s[open+1 : len(s)-1]
	rawArgs, err := splitTopLevel(inner)
	if err != nil {
		return DataType{}, err
	}

	args := make([]DataType, 0, len(rawArgs))
	for _, raw := range rawArgs {
		arg, err := ParseDataType(raw)
		if err != nil {
			return DataType{}, err
		}
		args = append(args, arg)
	}
	return DataType{Name: name, Args: args}, nil
}

// splitTopLevel splits a type argument list on commas that are not nested
// inside angle brackets.
func splitTopLevel(s string) ([]string, error) {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<':
			depth++
		case '>':
			depth--
			if depth < 0 {
				return nil, ErrTypeParse.WithCausef("unbalanced angle brackets in type arguments:%q", s)
			}
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, ErrTypeParse.WithCausef("unbalanced angle brackets in type arguments:%q", s)
	}
	parts = append(parts, s[start:])
	return parts, nil
}
