package redis

import (
	"context"
	"fmt"
	"time"

	"tenant-ai-agents/internal/config"
	"tenant-ai-agents/internal/domain/ports/adapter"
)

var _ adapter.RateLimiter = (*RateLimiter)(nil)

// RateLimiter enforces fixed-window request budgets at three levels:
// engine-wide, per tenant, and per agent. Windows are one minute.
type RateLimiter struct {
	client RedisClient
	cfg    config.RateLimitConfig
}

func NewRateLimiter(client RedisClient, cfg config.RateLimitConfig) *RateLimiter {
	return &RateLimiter{client: client, cfg: cfg}
}

func (r *RateLimiter) CheckGlobal(ctx context.Context) (bool, error) {
	return r.allow(ctx, "rate:global", r.cfg.GlobalPerMinute)
}

func (r *RateLimiter) CheckTenant(ctx context.Context, tenantID string) (bool, error) {
	return r.allow(ctx, "rate:tenant:"+tenantID, r.cfg.TenantPerMinute)
}

func (r *RateLimiter) CheckAgent(ctx context.Context, agentID string) (bool, error) {
	return r.allow(ctx, "rate:agent:"+agentID, r.cfg.AgentPerMinute)
}

func (r *RateLimiter) allow(ctx context.Context, key string, limit int) (bool, error) {
	if limit <= 0 {
		return true, nil
	}
	// Bucket keys carry the window start so stale counters expire on their own.
	window := time.Now().Unix() / 60
	bucket := fmt.Sprintf("%s:%d", key, window)

	count, err := r.client.Incr(ctx, bucket)
	if err != nil {
		return false, err
	}
	if count == 1 {
		if err := r.client.Expire(ctx, bucket, 2*time.Minute); err != nil {
			return false, err
		}
	}
	return count <= int64(limit), nil
}
