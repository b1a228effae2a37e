// Copyright 2024 The cqlmeta Authors. Licensed under Apache-2.0.

package metadata

import "github.com/zimnx/cqlmeta/pkg/coderr"

var (
	ErrScopeInconsistency = coderr.NewCodeError(coderr.ScopeInconsistency, "refresh scope unknown to metadata store")
	ErrClientClosed       = coderr.NewCodeError(coderr.ClientClosed, "metadata store closed")
)
