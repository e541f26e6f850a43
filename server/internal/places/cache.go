package places

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"place-explorer/server/internal/metrics"
	"place-explorer/server/internal/model"
)

const cacheKeyPrefix = "placeexplorer:details:"

// CachingGateway serves repeated lookups of the same provider id from redis.
// The cache is best effort: any redis error falls through to next, and only
// successful results are stored.
type CachingGateway struct {
	next   Gateway
	rdb    redis.Cmdable
	ttl    time.Duration
	logger zerolog.Logger
}

func NewCachingGateway(next Gateway, rdb redis.Cmdable, ttl time.Duration, logger zerolog.Logger) *CachingGateway {
	return &CachingGateway{
		next:   next,
		rdb:    rdb,
		ttl:    ttl,
		logger: logger.With().Str("component", "places_cache").Logger(),
	}
}

// OpenRedis returns nil when addr is empty.
func OpenRedis(addr, password string, db int) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
}

// CacheKey is the redis key for id under fields.
func CacheKey(id string, fields model.FieldSet) string {
	return cacheKeyPrefix + fields.Key() + ":" + id
}

func (g *CachingGateway) Resolve(ctx context.Context, ref model.PlaceReference, fields model.FieldSet) (model.PlaceDetails, error) {
	id := ref.ProviderID()
	if id == "" || g.rdb == nil {
		return g.next.Resolve(ctx, ref, fields)
	}
	if len(fields) == 0 {
		fields = model.FullDetailFields()
	}
	key := CacheKey(id, fields)

	raw, err := g.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		var d model.PlaceDetails
		if jerr := json.Unmarshal([]byte(raw), &d); jerr == nil {
			metrics.CacheHitsTotal.Inc()
			g.logger.Debug().Str("key", key).Msg("cache_hit")
			return d, nil
		}
		g.logger.Warn().Str("key", key).Msg("cache_entry_corrupt")
	case err == redis.Nil:
		metrics.CacheMissesTotal.Inc()
	default:
		metrics.CacheErrorsTotal.Inc()
		g.logger.Warn().Err(err).Str("key", key).Msg("cache_get_failed")
	}

	d, err := g.next.Resolve(ctx, ref, fields)
	if err != nil {
		return d, err
	}

	if b, jerr := json.Marshal(d); jerr == nil {
		if serr := g.rdb.Set(ctx, key, b, g.ttl).Err(); serr != nil {
			metrics.CacheErrorsTotal.Inc()
			g.logger.Warn().Err(serr).Str("key", key).Msg("cache_set_failed")
		}
	}
	return d, nil
}
