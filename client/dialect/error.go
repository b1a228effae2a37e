// Copyright 2024 The cqlmeta Authors. Licensed under Apache-2.0.

package dialect

import "github.com/zimnx/cqlmeta/pkg/coderr"

var ErrCatalogFetch = coderr.NewCodeError(coderr.CatalogFetch, "fetch catalog rows")
