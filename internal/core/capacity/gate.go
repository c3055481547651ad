// Package capacity enforces the per-owner link quota.
package capacity

import (
	"context"
	"fmt"
)

// Counter reports how many links an owner already has.
type Counter interface {
	CountLinksByOwner(ctx context.Context, ownerID int64) (int, error)
}

type Gate struct {
	counter Counter
	limit   int
}

// NewGate returns a gate allowing each owner up to limit links.
// A limit of 0 or less disables the limit.
func NewGate(counter Counter, limit int) *Gate {
	return &Gate{counter: counter, limit: limit}
}

// WouldExceedLimit reports whether creating n more links for ownerID would
// take the owner past the quota.
func (g *Gate) WouldExceedLimit(ctx context.Context, ownerID int64, n int) (bool, error) {
	if g.limit <= 0 {
		return false, nil
	}
	count, err := g.counter.CountLinksByOwner(ctx, ownerID)
	if err != nil {
		return false, fmt.Errorf("failed to check capacity for owner %d: %w", ownerID, err)
	}
	return count+n > g.limit, nil
}
