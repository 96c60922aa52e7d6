// Copyright (c) 2026 lpsprint
// Licensed under the PolyForm Noncommercial License 1.0.0

package rpcpool

import (
	"context"
	"fmt"

	"github.com/lpsprint/sprint/internal/health"
)

// Checker reports the pool's state to the health manager.
type Checker struct {
	pool *Pool
}

// NewChecker wraps the pool for health and readiness checks.
func NewChecker(pool *Pool) *Checker {
	return &Checker{pool: pool}
}

func (c *Checker) Name() string {
	return "rpc_pool"
}

// Check classifies the pool: at least one free healthy connection is
// healthy, connections merely busy or being rebuilt is degraded, and an
// empty or fully dead registry is unhealthy.
func (c *Checker) Check(ctx context.Context) health.CheckResult {
	snapshot := c.pool.Snapshot()
	if len(snapshot) == 0 {
		return health.CheckResult{
			Status: health.StatusUnhealthy,
			Error:  "no rpc endpoints registered",
		}
	}

	var healthy, inUse, reconnecting int
	for _, s := range snapshot {
		switch s.Status {
		case StatusHealthy:
			healthy++
		case StatusInUse:
			inUse++
		case StatusReconnecting:
			reconnecting++
		}
	}

	summary := fmt.Sprintf("%d healthy, %d in use, %d reconnecting", healthy, inUse, reconnecting)
	switch {
	case healthy == 0 && inUse == 0:
		return health.CheckResult{
			Status:  health.StatusUnhealthy,
			Error:   "no live rpc connection",
			Message: summary,
		}
	case healthy == 0 || reconnecting > 0:
		return health.CheckResult{
			Status:  health.StatusDegraded,
			Message: summary,
		}
	default:
		return health.CheckResult{
			Status:  health.StatusHealthy,
			Message: summary,
		}
	}
}
