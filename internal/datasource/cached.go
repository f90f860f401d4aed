// Package datasource composes metric sources for the resolution engine.
package datasource

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Tora-Build/soothsayer-core/internal/domain"
)

// CachedSource wraps a MetricSource with a shared cache so concurrent cycles
// resolving markets on the same datapoint fetch it once. Cache failures fall
// through to the underlying source; the cache is an optimization, never a
// correctness dependency.
type CachedSource struct {
	source domain.MetricSource
	cache  domain.MetricCache
	maxAge time.Duration
}

var _ domain.MetricSource = (*CachedSource)(nil)

// Cached wraps source with cache. Values older than maxAge are refetched.
func Cached(source domain.MetricSource, cache domain.MetricCache, maxAge time.Duration) *CachedSource {
	return &CachedSource{source: source, cache: cache, maxAge: maxAge}
}

// FetchMetric returns the cached value when fresh, otherwise fetches from the
// underlying source and stores the result.
func (cs *CachedSource) FetchMetric(ctx context.Context, sourceID, metric string) (float64, error) {
	if value, ok, err := cs.cache.GetMetric(ctx, sourceID, metric, cs.maxAge); err == nil && ok {
		return value, nil
	}

	value, err := cs.source.FetchMetric(ctx, sourceID, metric)
	if err != nil {
		return 0, err
	}

	if err := cs.cache.SetMetric(ctx, sourceID, metric, value, time.Now()); err != nil {
		// The fetched value is still good; the next cycle just refetches.
		return value, nil
	}
	return value, nil
}

// Router dispatches FetchMetric calls by source id prefix. Manual sources
// never reach a router; the resolution engine skips them first.
type Router struct {
	routes map[string]domain.MetricSource
}

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{routes: make(map[string]domain.MetricSource)}
}

var _ domain.MetricSource = (*Router)(nil)

// Register binds a source id prefix (e.g. "coingecko") to a source.
func (r *Router) Register(prefix string, source domain.MetricSource) {
	r.routes[prefix] = source
}

// FetchMetric routes to the source registered for the id's prefix, where the
// prefix is everything before the first ':'.
func (r *Router) FetchMetric(ctx context.Context, sourceID, metric string) (float64, error) {
	prefix, _, _ := strings.Cut(sourceID, ":")
	source, ok := r.routes[prefix]
	if !ok {
		return 0, fmt.Errorf("datasource: no source registered for %q", sourceID)
	}
	return source.FetchMetric(ctx, sourceID, metric)
}
