// Copyright 2024 The cqlmeta Authors. Licensed under Apache-2.0.

// Package gatewaytest provides an in-memory Gateway for tests.
package gatewaytest

import (
	"context"
	"strings"
	"sync"

	"github.com/zimnx/cqlmeta/client/gateway"
)

// Fake serves canned catalog pages keyed by the catalog table named in the
// FROM clause. Each query against a table consumes the next queued page;
// once the queue is drained an empty page is returned, which terminates
// paging loops.
type Fake struct {
	mu         sync.Mutex
	pages      map[string][]gateway.Rows
	errs       map[string]error
	statements []string
}

func New() *Fake {
	return &Fake{
		pages:      make(map[string][]gateway.Rows),
		errs:       make(map[string]error),
		statements: nil,
	}
}

// AddPage queues one page of rows for the given catalog table, e.g.
// "system_schema.keyspaces".
func (f *Fake) AddPage(table string, rows gateway.Rows) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[table] = append(f.pages[table], rows)
}

// FailTable makes every query against the given catalog table resolve with err.
func (f *Fake) FailTable(table string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[table] = err
}

// Statements returns every executed query in dispatch order.
func (f *Fake) Statements() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.statements))
	copy(out, f.statements)
	return out
}

func (f *Fake) ExecuteAsync(_ context.Context, query string) gateway.Future {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.statements = append(f.statements, query)

	table := fromTable(query)
	if err := f.errs[table]; err != nil {
		return future{rows: nil, err: err}
	}

	queued := f.pages[table]
	if len(queued) == 0 {
		return future{rows: gateway.Rows{}, err: nil}
	}
	f.pages[table] = queued[1:]
	return future{rows: queued[0], err: nil}
}

type future struct {
	rows gateway.Rows
	err  error
}

func (f future) Get(_ context.Context) (gateway.Rows, error) {
	return f.rows, f.err
}

func fromTable(query string) string {
	fields := strings.Fields(query)
	for i, field := range fields {
		if strings.EqualFold(field, "FROM") && i+1 < len(fields) {
			return fields[i+1]
		}
	}
	return ""
}
