// Copyright 2024 The cqlmeta Authors. Licensed under Apache-2.0.

package gateway

import (
	"context"
)

// Gateway executes catalog queries against the cluster asynchronously.
// Implementations are provided by the surrounding client and own connection
// management, retries and timeouts. A query is a plain CQL statement over the
// system catalog tables of the active dialect.
type Gateway interface {
	ExecuteAsync(ctx context.Context, query string) Future
}

// Future resolves a single in-flight catalog query.
type Future interface {
	// Get blocks until the query completes and returns the fetched rows.
	Get(ctx context.Context) (Rows, error)
}

// Row is one raw catalog row keyed by column name. Values are the decoded
// CQL values produced by the transport layer.
type Row map[string]interface{}

// Rows is one page of catalog rows.
type Rows []Row

// Await resolves a future, treating a nil future as an empty result. Queries
// that are unnecessary for a given refresh scope are simply not issued.
func Await(ctx context.Context, f Future) (Rows, error) {
	if f == nil {
		return nil, nil
	}
	return f.Get(ctx)
}

// String reads a text column from the row. The second return value reports
// whether the column is present and has the expected type.
func (r Row) String(name string) (string, bool) {
	v, ok := r[name].(string)
	return v, ok
}

// Bool reads a boolean column from the row.
func (r Row) Bool(name string) (bool, bool) {
	v, ok := r[name].(bool)
	return v, ok
}

// Int reads an integer column from the row.
func (r Row) Int(name string) (int, bool) {
	switch v := r[name].(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	}
	return 0, false
}

// StringList reads a list<text> column from the row.
func (r Row) StringList(name string) ([]string, bool) {
	v, ok := r[name].([]string)
	return v, ok
}

// StringMap reads a map<text, text> column from the row.
func (r Row) StringMap(name string) (map[string]string, bool) {
	v, ok := r[name].(map[string]string)
	return v, ok
}
