package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Tora-Build/soothsayer-core/internal/domain"
)

// MetricCache implements domain.MetricCache using Redis hashes. Each
// (source, metric) pair is stored at key "metric:{source}:{metric}" with
// fields "value" and "ts" (Unix nanosecond timestamp).
type MetricCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewMetricCache creates a MetricCache backed by the given Client. Entries
// expire after ttl regardless of the per-read maxAge.
func NewMetricCache(c *Client, ttl time.Duration) *MetricCache {
	return &MetricCache{rdb: c.Underlying(), ttl: ttl}
}

func metricKey(sourceID, metric string) string {
	return "metric:" + sourceID + ":" + metric
}

// SetMetric stores a fetched metric value with its fetch timestamp.
func (mc *MetricCache) SetMetric(ctx context.Context, sourceID, metric string, value float64, ts time.Time) error {
	key := metricKey(sourceID, metric)
	fields := map[string]interface{}{
		"value": strconv.FormatFloat(value, 'f', -1, 64),
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	}

	pipe := mc.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	if mc.ttl > 0 {
		pipe.Expire(ctx, key, mc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set metric %s/%s: %w", sourceID, metric, err)
	}
	return nil
}

// GetMetric retrieves a cached metric value no older than maxAge. A missing
// or stale entry is a miss, not an error.
func (mc *MetricCache) GetMetric(ctx context.Context, sourceID, metric string, maxAge time.Duration) (float64, bool, error) {
	key := metricKey(sourceID, metric)
	vals, err := mc.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return 0, false, fmt.Errorf("redis: get metric %s/%s: %w", sourceID, metric, err)
	}
	if len(vals) == 0 {
		return 0, false, nil
	}

	valueStr, ok := vals["value"]
	if !ok {
		return 0, false, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, false, fmt.Errorf("redis: parse metric value %s/%s: %w", sourceID, metric, err)
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return 0, false, nil
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("redis: parse metric ts %s/%s: %w", sourceID, metric, err)
	}

	if maxAge > 0 && time.Since(time.Unix(0, tsNano)) > maxAge {
		return 0, false, nil
	}
	return value, true, nil
}

// Compile-time interface check.
var _ domain.MetricCache = (*MetricCache)(nil)
