// Copyright 2024 The cqlmeta Authors. Licensed under Apache-2.0.

package metadata

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/zimnx/cqlmeta/client/config"
)

// FlowLimiter smooths refresh storms caused by bursts of schema change
// events. Waiting passes queue behind the limiter rather than failing.
type FlowLimiter struct {
	l *rate.Limiter
	// RWMutex is used to protect following fields.
	lock sync.RWMutex
	// limit is the updated rate of refresh passes per second.
	limit int
	// burst is the maximum number of queued passes.
	burst int
	// enable is used to control the switch of the limiter.
	enable bool
}

func NewFlowLimiter(config config.LimiterConfig) *FlowLimiter {
	newLimiter := rate.NewLimiter(rate.Limit(config.Limit), config.Burst)

	return &FlowLimiter{
		l:      newLimiter,
		lock:   sync.RWMutex{},
		limit:  config.Limit,
		burst:  config.Burst,
		enable: config.Enable,
	}
}

// Wait blocks until the pass may proceed or ctx is done.
func (f *FlowLimiter) Wait(ctx context.Context) error {
	f.lock.RLock()
	enable := f.enable
	f.lock.RUnlock()

	if !enable {
		return nil
	}
	return f.l.Wait(ctx)
}

func (f *FlowLimiter) Allow() bool {
	f.lock.RLock()
	defer f.lock.RUnlock()

	if !f.enable {
		return true
	}
	return f.l.Allow()
}

func (f *FlowLimiter) UpdateLimiter(config config.LimiterConfig) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.l.SetLimit(rate.Limit(config.Limit))
	f.l.SetBurst(config.Burst)
	f.limit = config.Limit
	f.burst = config.Burst
	f.enable = config.Enable
	return nil
}

func (f *FlowLimiter) GetConfig() *config.LimiterConfig {
	f.lock.RLock()
	defer f.lock.RUnlock()

	return &config.LimiterConfig{
		Limit:  f.limit,
		Burst:  f.burst,
		Enable: f.enable,
	}
}
