package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/transit-flow/internal/metrics"
	"github.com/irfndi/transit-flow/internal/models"
)

// DefaultPrefix namespaces forecast entries inside the shared Redis database
const DefaultPrefix = "forecast_cache:"

// ForecastCacheEntry represents a cached forecast with metadata
type ForecastCacheEntry struct {
	Result    *models.ForecastResult `json:"result"`
	CachedAt  time.Time              `json:"cached_at"`
	ExpiresAt time.Time              `json:"expires_at"`
}

// ForecastCacheStats tracks cache performance metrics
type ForecastCacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Sets   int64 `json:"sets"`
	mu     sync.RWMutex
}

// RedisForecastCache keeps forecast results in Redis keyed by model, start
// day and horizon. Entries of a model are dropped whenever it is retrained.
type RedisForecastCache struct {
	redis  *redis.Client
	ttl    time.Duration
	stats  *ForecastCacheStats
	prefix string
	logger *logrus.Entry
}

// NewRedisForecastCache creates a new Redis-based forecast cache
func NewRedisForecastCache(redisClient *redis.Client, ttl time.Duration, logger *logrus.Logger) *RedisForecastCache {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RedisForecastCache{
		redis:  redisClient,
		ttl:    ttl,
		stats:  &ForecastCacheStats{},
		prefix: DefaultPrefix,
		logger: logger.WithField("component", "forecast_cache"),
	}
}

// key is prefix + model + ":" + start + ":" + horizon. A zero start means
// "first unknown day" and is stored as "next".
func (c *RedisForecastCache) key(model string, start time.Time, horizon int) string {
	day := "next"
	if !start.IsZero() {
		day = start.Format("2006-01-02")
	}
	return c.prefix + model + ":" + day + ":" + strconv.Itoa(horizon)
}

// Get retrieves a cached forecast
func (c *RedisForecastCache) Get(ctx context.Context, model string, start time.Time, horizon int) (*models.ForecastResult, bool) {
	cacheKey := c.key(model, start, horizon)

	data, err := c.redis.Get(ctx, cacheKey).Bytes()
	if errors.Is(err, redis.Nil) {
		c.miss()
		return nil, false
	}
	if err != nil {
		c.logger.WithError(err).WithField("key", cacheKey).Warn("Redis error reading forecast")
		c.miss()
		return nil, false
	}

	var entry ForecastCacheEntry
	if err := json.Unmarshal(data, &entry); err != nil || entry.Result == nil {
		c.logger.WithField("key", cacheKey).Warn("Discarding unreadable forecast cache entry")
		c.miss()
		return nil, false
	}

	c.stats.mu.Lock()
	c.stats.Hits++
	c.stats.mu.Unlock()
	metrics.RecordCacheLookup(true)
	return entry.Result, true
}

func (c *RedisForecastCache) miss() {
	c.stats.mu.Lock()
	c.stats.Misses++
	c.stats.mu.Unlock()
	metrics.RecordCacheLookup(false)
}

// Set stores a forecast with the configured TTL. Failures are logged only.
func (c *RedisForecastCache) Set(ctx context.Context, model string, start time.Time, horizon int, result *models.ForecastResult) {
	cacheKey := c.key(model, start, horizon)

	now := time.Now()
	data, err := json.Marshal(ForecastCacheEntry{
		Result:    result,
		CachedAt:  now,
		ExpiresAt: now.Add(c.ttl),
	})
	if err != nil {
		c.logger.WithError(err).WithField("key", cacheKey).Warn("Failed to serialize forecast")
		return
	}

	if err := c.redis.Set(ctx, cacheKey, data, c.ttl).Err(); err != nil {
		c.logger.WithError(err).WithField("key", cacheKey).Warn("Redis error storing forecast")
		return
	}

	c.stats.mu.Lock()
	c.stats.Sets++
	c.stats.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"model":   model,
		"horizon": horizon,
		"ttl":     c.ttl.String(),
	}).Debug("Cached forecast")
}

// InvalidateModel removes every cached forecast of model
func (c *RedisForecastCache) InvalidateModel(ctx context.Context, model string) error {
	n, err := c.deleteMatching(ctx, c.prefix+model+":*")
	if err != nil {
		return err
	}
	if n > 0 {
		c.logger.WithFields(logrus.Fields{"model": model, "entries": n}).Info("Invalidated cached forecasts")
	}
	return nil
}

// Clear removes all cached forecasts
func (c *RedisForecastCache) Clear(ctx context.Context) error {
	_, err := c.deleteMatching(ctx, c.prefix+"*")
	return err
}

func (c *RedisForecastCache) deleteMatching(ctx context.Context, pattern string) (int, error) {
	var keys []string
	iter := c.redis.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("error scanning cache keys: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		return 0, fmt.Errorf("error clearing cache: %w", err)
	}
	return len(keys), nil
}

// GetStats returns current cache statistics
func (c *RedisForecastCache) GetStats() ForecastCacheStats {
	c.stats.mu.RLock()
	defer c.stats.mu.RUnlock()
	return ForecastCacheStats{
		Hits:   c.stats.Hits,
		Misses: c.stats.Misses,
		Sets:   c.stats.Sets,
	}
}

// HitRate returns the share of lookups served from the cache, in percent
func (s *ForecastCacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}
