package adapter

import "context"

// RateLimiter answers the three admission questions asked before a task
// run: system-wide budget, tenant budget, agent budget. Any false denies
// the attempt with a non-retriable error.
type RateLimiter interface {
	CheckGlobal(ctx context.Context) (bool, error)
	CheckTenant(ctx context.Context, tenantID string) (bool, error)
	CheckAgent(ctx context.Context, agentID string) (bool, error)
}
