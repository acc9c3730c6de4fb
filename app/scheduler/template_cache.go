package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/lmoretti/whatsflow/app/services"
)

// TemplateCache is a read-through cache over the gateway's template
// catalog. Template listings change rarely and the gateway rate-limits the
// management API, so results are reused until the TTL lapses.
type TemplateCache struct {
	gateway services.MessageGateway
	ttl     time.Duration

	mu        sync.Mutex
	templates []services.TemplateMeta
	fetchedAt time.Time
}

// NewTemplateCache creates a cache with the given freshness window.
func NewTemplateCache(gateway services.MessageGateway, ttl time.Duration) *TemplateCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &TemplateCache{gateway: gateway, ttl: ttl}
}

// Get returns the cached template list, refreshing it from the gateway
// when stale. A refresh failure with a warm cache falls back to the stale
// copy rather than surfacing the error.
func (c *TemplateCache) Get(ctx context.Context) ([]services.TemplateMeta, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fresh := !c.fetchedAt.IsZero() && time.Since(c.fetchedAt) < c.ttl
	if fresh {
		return c.templates, nil
	}

	templates, err := c.gateway.GetTemplates(ctx)
	if err != nil {
		if c.fetchedAt.IsZero() {
			return nil, err
		}
		return c.templates, nil
	}

	c.templates = templates
	c.fetchedAt = time.Now()
	return c.templates, nil
}

// Invalidate drops the cached copy so the next Get hits the gateway.
func (c *TemplateCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.templates = nil
	c.fetchedAt = time.Time{}
}
