// Copyright 2024 The cqlmeta Authors. Licensed under Apache-2.0.

package schema

import "github.com/zimnx/cqlmeta/pkg/coderr"

var (
	ErrRowParse        = coderr.NewCodeError(coderr.RowParse, "parse catalog row")
	ErrTypeParse       = coderr.NewCodeError(coderr.RowParse, "parse type name")
	ErrDependencyCycle = coderr.NewCodeError(coderr.DependencyCycle, "user type dependency cycle")
)
