package rules

import (
	"sync"
	"time"

	"smallbiznis-gamification/pkg/rediskey"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{Name: "gamification_rules_cache_hits_total"})
	cacheMiss = promauto.NewCounter(prometheus.CounterOpts{Name: "gamification_rules_cache_miss_total"})
)

type Key struct {
	CompanyID  int64
	CampaignID int64
}

// Cache holds resolved rules per (company, campaign). Loads of the same key
// are collapsed with singleflight.
type Cache struct {
	mu    sync.RWMutex
	items map[Key]*Resolved
	ttl   time.Duration
	now   func() time.Time
	group singleflight.Group
}

func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		items: make(map[Key]*Resolved),
		ttl:   ttl,
		now:   time.Now,
	}
}

func (c *Cache) Get(key Key) (*Resolved, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.items[key]
	if !ok || c.ttl <= 0 || c.now().Sub(v.LoadedAt) > c.ttl {
		cacheMiss.Inc()
		return nil, false
	}
	cacheHits.Inc()
	return v, true
}

func (c *Cache) Set(key Key, v *Resolved) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = v
}

// Load returns the cached value or calls fn once for concurrent callers.
// Degraded results are returned but not stored.
func (c *Cache) Load(key Key, fn func() *Resolved) *Resolved {
	if v, ok := c.Get(key); ok {
		return v
	}
	v, _, _ := c.group.Do(keyString(key), func() (any, error) {
		r := fn()
		r.LoadedAt = c.now()
		if !r.Degraded {
			c.Set(key, r)
		}
		return r, nil
	})
	return v.(*Resolved)
}

func (c *Cache) Invalidate(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// InvalidateCompany drops every entry of a company, used when the brand layer
// changes.
func (c *Cache) InvalidateCompany(companyID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.items {
		if k.CompanyID == companyID {
			delete(c.items, k)
		}
	}
}

func keyString(k Key) string {
	return rediskey.BuildScoringRulesKey(k.CompanyID, k.CampaignID)
}
