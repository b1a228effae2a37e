// Copyright 2024 The cqlmeta Authors. Licensed under Apache-2.0.

package config

import "github.com/zimnx/cqlmeta/pkg/coderr"

var (
	ErrLoadConfig    = coderr.NewCodeError(coderr.InvalidParams, "load config")
	ErrInvalidConfig = coderr.NewCodeError(coderr.InvalidParams, "invalid config")
)
