package handlers

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// inflightGuard tracks reports currently being generated so the same report
// with the same parameters is not built twice at once. Entries expire after
// ttl in case a release is ever missed.
type inflightGuard struct {
	active *cache.Cache
	ttl    time.Duration
}

func newInflightGuard(ttl time.Duration) *inflightGuard {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &inflightGuard{
		active: cache.New(ttl, 2*ttl),
		ttl:    ttl,
	}
}

// acquire marks key as in flight. It returns false when key already is.
func (g *inflightGuard) acquire(key string) bool {
	return g.active.Add(key, struct{}{}, g.ttl) == nil
}

func (g *inflightGuard) release(key string) {
	g.active.Delete(key)
}
