package infobus

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Fetcher fetches routes for a trip.
type Fetcher interface {
	GetRoutes(ctx context.Context, q RouteQuery) (*RoutesResponse, error)
}

// CachedFetcher memoizes successful lookups per (from, to, date) for a short
// TTL, so subscriptions watching the same trip share a single request per
// check pass.
type CachedFetcher struct {
	next  Fetcher
	cache *expirable.LRU[string, *RoutesResponse]
}

// NewCachedFetcher wraps next with an LRU of the given size and TTL.
// A non-positive ttl disables caching and returns next unchanged.
func NewCachedFetcher(next Fetcher, size int, ttl time.Duration) Fetcher {
	if ttl <= 0 {
		return next
	}
	if size <= 0 {
		size = 128
	}
	return &CachedFetcher{
		next:  next,
		cache: expirable.NewLRU[string, *RoutesResponse](size, nil, ttl),
	}
}

func (c *CachedFetcher) GetRoutes(ctx context.Context, q RouteQuery) (*RoutesResponse, error) {
	key := q.CityFromID + "|" + q.CityToID + "|" + q.Date
	if resp, ok := c.cache.Get(key); ok {
		return resp, nil
	}

	resp, err := c.next.GetRoutes(ctx, q)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, resp)
	return resp, nil
}
