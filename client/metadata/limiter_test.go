// Copyright 2024 The cqlmeta Authors. Licensed under Apache-2.0.

package metadata

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zimnx/cqlmeta/client/config"
)

func TestFlowLimiter(t *testing.T) {
	re := require.New(t)
	flowLimiter := NewFlowLimiter(config.LimiterConfig{
		Limit:  10 * 1000,
		Burst:  1000,
		Enable: true,
	})

	for i := 0; i < 1000; i++ {
		re.True(flowLimiter.Allow())
	}

	err := flowLimiter.UpdateLimiter(config.LimiterConfig{
		Limit:  100 * 1000,
		Burst:  100 * 1000,
		Enable: true,
	})
	re.NoError(err)

	cfg := flowLimiter.GetConfig()
	re.Equal(100*1000, cfg.Limit)
	re.Equal(100*1000, cfg.Burst)
	re.True(cfg.Enable)

	re.NoError(flowLimiter.Wait(context.Background()))
}

func TestFlowLimiterDisabled(t *testing.T) {
	re := require.New(t)
	flowLimiter := NewFlowLimiter(config.LimiterConfig{
		Limit:  0,
		Burst:  0,
		Enable: false,
	})

	// A disabled limiter never throttles.
	for i := 0; i < 100; i++ {
		re.True(flowLimiter.Allow())
	}
	re.NoError(flowLimiter.Wait(context.Background()))
}
