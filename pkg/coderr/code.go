// Copyright 2024 The cqlmeta Authors. Licensed under Apache-2.0.

package coderr

import "net/http"

type Code int

const (
	Invalid       Code = -1
	InvalidParams Code = http.StatusBadRequest
	Internal      Code = http.StatusInternalServerError
	NotFound      Code = http.StatusNotFound
	BadRequest    Code = http.StatusBadRequest

	// HTTPCodeUpperBound is a bound under which any Code should have the same meaning with the http status code.
	HTTPCodeUpperBound = Code(1000)

	// Codes specific to catalog metadata synchronization.
	RowParse           Code = 1001
	CatalogFetch       Code = 1002
	DependencyCycle    Code = 1003
	ScopeInconsistency Code = 1004
	ClientClosed       Code = 1005
)

// ToHTTPCode converts the Code to http code.
// The Code below the HTTPCodeUpperBound has the same meaning as the http status code. However, for the other codes, we
// should define the conversion rules by ourselves.
func (c Code) ToHTTPCode() int {
	if c < HTTPCodeUpperBound {
		return int(c)
	}

	return http.StatusInternalServerError
}
