package transcription

import (
	"context"
	"time"
)

const rotationCacheKey = "meetingbot:rotation:"

// JSONCache is the subset of the shared cache the rotation cache needs.
type JSONCache interface {
	GetJSON(ctx context.Context, key string, out any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// RotationCache keeps the rotation answer for ttl and drops it whenever usage is booked,
// since booked minutes can move the rotation to another provider.
type RotationCache struct {
	selector ProviderSelector
	usage    UsageRecorder
	cache    JSONCache
	ttl      time.Duration
}

func NewRotationCache(selector ProviderSelector, usage UsageRecorder, cache JSONCache, ttl time.Duration) *RotationCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RotationCache{selector: selector, usage: usage, cache: cache, ttl: ttl}
}

func (c *RotationCache) SelectProvider(ctx context.Context, serviceType string) (*Selection, error) {
	key := rotationCacheKey + serviceType
	if c.cache != nil {
		var sel Selection
		if hit, err := c.cache.GetJSON(ctx, key, &sel); err == nil && hit {
			return &sel, nil
		}
	}

	sel, err := c.selector.SelectProvider(ctx, serviceType)
	if err != nil || sel == nil {
		return sel, err
	}
	if c.cache != nil {
		_ = c.cache.SetJSON(ctx, key, sel, c.ttl)
	}
	return sel, nil
}

func (c *RotationCache) RecordUsage(ctx context.Context, serviceType, provider string, units int) error {
	if c.cache != nil {
		_ = c.cache.Delete(ctx, rotationCacheKey+serviceType)
	}
	if c.usage == nil {
		return nil
	}
	return c.usage.RecordUsage(ctx, serviceType, provider, units)
}

var (
	_ ProviderSelector = (*RotationCache)(nil)
	_ UsageRecorder    = (*RotationCache)(nil)
)
