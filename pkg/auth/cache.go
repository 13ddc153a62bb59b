package auth

import (
	"context"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/apigate/pkg/observability"
)

// CachingIntrospector caches successful introspections for a TTL.
// Concurrent lookups of the same token share one upstream call. Failures
// are not cached.
type CachingIntrospector struct {
	next    TokenIntrospector
	cache   *lru.LRU[string, *Principal]
	group   singleflight.Group
	metrics *observability.Metrics
}

// NewCachingIntrospector wraps next. metrics may be nil.
func NewCachingIntrospector(next TokenIntrospector, size int, ttl time.Duration, metrics *observability.Metrics) *CachingIntrospector {
	if size < 1 {
		size = 1024
	}
	return &CachingIntrospector{
		next:    next,
		cache:   lru.NewLRU[string, *Principal](size, nil, ttl),
		metrics: metrics,
	}
}

func cacheKey(token string, scopes []string) string {
	return HashKey(token) + "|" + strings.Join(scopes, " ")
}

// Introspect implements TokenIntrospector
func (c *CachingIntrospector) Introspect(ctx context.Context, token string, scopes []string) (*Principal, error) {
	key := cacheKey(token, scopes)
	if p, ok := c.cache.Get(key); ok {
		c.record(true)
		return clonePrincipal(p), nil
	}
	c.record(false)

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		p, err := c.next.Introspect(ctx, token, scopes)
		if err != nil {
			return nil, err
		}
		c.cache.Add(key, p)
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return clonePrincipal(v.(*Principal)), nil
}

// Purge drops every cached result
func (c *CachingIntrospector) Purge() {
	c.cache.Purge()
}

func (c *CachingIntrospector) record(hit bool) {
	if c.metrics == nil {
		return
	}
	if hit {
		c.metrics.CacheHitsTotal.WithLabelValues("introspection").Inc()
	} else {
		c.metrics.CacheMissesTotal.WithLabelValues("introspection").Inc()
	}
}

func clonePrincipal(p *Principal) *Principal {
	cp := *p
	cp.Scopes = append([]string(nil), p.Scopes...)
	if p.Claims != nil {
		cp.Claims = make(map[string]interface{}, len(p.Claims))
		for k, v := range p.Claims {
			cp.Claims[k] = v
		}
	}
	return &cp
}
