package ai

import (
	"context"

	"tenant-ai-agents/internal/domain/ports/adapter"
)

var _ adapter.ModelProvider = (*limitedProvider)(nil)

// limitedProvider caps concurrent in-flight calls to one backend. Worker
// pools can run many tasks at once; the provider connection does not have
// to absorb all of them simultaneously.
type limitedProvider struct {
	inner adapter.ModelProvider
	sem   chan struct{}
}

func NewLimitedProvider(inner adapter.ModelProvider, maxConcurrent int) adapter.ModelProvider {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedProvider{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedProvider) Execute(ctx context.Context, req adapter.ExecuteRequest) (*adapter.ExecuteResult, error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-l.sem }()
	return l.inner.Execute(ctx, req)
}

func (l *limitedProvider) CountTokens(model string, messages []adapter.Message) (int, error) {
	return l.inner.CountTokens(model, messages)
}
