package rate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fxquotes/internal/adapters"
	"fxquotes/internal/domain"
	"fxquotes/internal/platform/metrics"

	"github.com/sirupsen/logrus"
)

// Loader produces the quotes for a cache key on a miss.
type Loader func(ctx context.Context) ([]domain.Quote, error)

// Cache is a cache-aside layer over a CacheStore. Stored values are JSON quote lists.
// The store is not authoritative: its failures are logged and treated as misses.
type Cache struct {
	store   adapters.CacheStore
	prefix  string
	ttl     time.Duration
	metrics *metrics.Metrics
}

func NewCache(store adapters.CacheStore, prefix string, ttl time.Duration, m *metrics.Metrics) *Cache {
	return &Cache{store: store, prefix: prefix, ttl: ttl, metrics: m}
}

// Key returns "{prefix}:{YYYYMMDD}_{CODE}".
func (c *Cache) Key(date time.Time, code string) string {
	return c.DayKey(date) + "_" + code
}

// DayKey returns "{prefix}:{YYYYMMDD}".
func (c *Cache) DayKey(date time.Time) string {
	return c.prefix + ":" + date.Format("20060102")
}

// GetOrLoad returns the cached quotes of code on date or calls load on a miss.
// The boolean result reports a cache hit.
func (c *Cache) GetOrLoad(ctx context.Context, date time.Time, code string, load Loader) ([]domain.Quote, bool, error) {
	return c.getOrLoad(ctx, c.Key(date, code), load)
}

// GetOrLoadDay is GetOrLoad for the whole-day key.
func (c *Cache) GetOrLoadDay(ctx context.Context, date time.Time, load Loader) ([]domain.Quote, bool, error) {
	return c.getOrLoad(ctx, c.DayKey(date), load)
}

func (c *Cache) getOrLoad(ctx context.Context, key string, load Loader) ([]domain.Quote, bool, error) {
	if quotes, ok := c.get(ctx, key); ok {
		c.metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
		return quotes, true, nil
	}
	c.metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()

	quotes, err := load(ctx)
	if err != nil {
		return nil, false, err
	}
	// an empty day is retried on the next lookup
	if len(quotes) > 0 {
		c.set(ctx, key, quotes)
	}
	return quotes, false, nil
}

func (c *Cache) get(ctx context.Context, key string) ([]domain.Quote, bool) {
	data, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.metrics.CacheLookupsTotal.WithLabelValues("error").Inc()
		logrus.WithError(err).WithField("key", key).Warn("Cache read failed, falling back")
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var quotes []domain.Quote
	if err = json.Unmarshal(data, &quotes); err != nil {
		logrus.WithError(err).WithField("key", key).Warn("Cached value is not a quote list, ignoring")
		return nil, false
	}
	return quotes, true
}

func (c *Cache) set(ctx context.Context, key string, quotes []domain.Quote) {
	data, err := json.Marshal(quotes)
	if err != nil {
		logrus.WithError(err).WithField("key", key).Warn("Failed to encode quotes for cache")
		return
	}
	stored, err := c.store.SetIfAbsent(ctx, key, data, c.ttl)
	if err != nil {
		logrus.WithError(fmt.Errorf("failed to populate cache: %w", err)).WithField("key", key).Warn("Cache write skipped")
		return
	}
	if !stored {
		logrus.WithField("key", key).Debug("Cache key already populated by another writer")
	}
}
