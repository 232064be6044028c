package marketdata

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wonny/screener/internal/contracts"
	"github.com/wonny/screener/pkg/logger"
	"github.com/wonny/screener/pkg/redis"
)

// HistoryKey identifies a cached history by symbol and requested length
type HistoryKey struct {
	Symbol  string
	MinBars int
}

// CacheKey implements redis.Key
func (k HistoryKey) CacheKey() string {
	symbol := strings.NewReplacer(" ", "_", ":", "_").Replace(k.Symbol)
	return fmt.Sprintf("history:%s:%d", symbol, k.MinBars)
}

// CachingSource decorates a HistorySource with a Redis cache. Cache
// failures never fail a fetch.
type CachingSource struct {
	inner  contracts.HistorySource
	cache  *redis.Cache
	ttl    time.Duration
	logger *logger.Logger
}

// NewCachingSource wraps inner. ttl <= 0 falls back to one hour.
func NewCachingSource(inner contracts.HistorySource, cache *redis.Cache, ttl time.Duration, log *logger.Logger) *CachingSource {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CachingSource{inner: inner, cache: cache, ttl: ttl, logger: log}
}

// FetchHistory serves from cache when possible and fills it on a miss
func (s *CachingSource) FetchHistory(ctx context.Context, symbol string, minBars int) (*contracts.PriceHistory, error) {
	key := HistoryKey{Symbol: symbol, MinBars: minBars}
	log := s.logger.WithSymbol(symbol)

	var cached contracts.PriceHistory
	hit, err := s.cache.Get(ctx, key, &cached)
	switch {
	case errors.Is(err, redis.ErrCorruptEntry):
		log.WithError(err).Warn("Dropping corrupt cached history")
		if err := s.cache.Delete(ctx, key); err != nil {
			log.WithError(err).Warn("Failed to delete cached history")
		}
	case err != nil:
		log.WithError(err).Warn("History cache unavailable")
	case hit && cached.Validate() == nil:
		log.Debug("History cache hit")
		return &cached, nil
	}

	h, err := s.inner.FetchHistory(ctx, symbol, minBars)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, key, h, s.ttl); err != nil {
		log.WithError(err).Warn("Failed to cache history")
	}
	return h, nil
}
