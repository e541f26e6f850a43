package main

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"place-explorer/server/internal/config"
	"place-explorer/server/internal/domain"
	"place-explorer/server/internal/places"
)

// buildGateway wires the provider client and, when enabled, the redis
// cache in front of it. The returned func releases the redis client.
func buildGateway(cfg *config.Config, logger zerolog.Logger) (places.Gateway, func(), error) {
	labels := domain.DefaultCategoryLabels()
	if cfg.Paths.CategoryLabels != "" {
		loaded, err := domain.LoadCategoryLabels(cfg.Paths.CategoryLabels)
		if err != nil {
			logger.Warn().Err(err).Str("path", cfg.Paths.CategoryLabels).Msg("using built-in category labels")
		} else {
			labels = loaded
		}
	}

	var gw places.Gateway = places.NewGoogleClient(places.GoogleConfig{
		APIKey:        cfg.Places.APIKey,
		BaseURL:       cfg.Places.BaseURL,
		Language:      cfg.Places.Language,
		Timeout:       cfg.Places.Timeout,
		PhotoMaxWidth: cfg.Places.PhotoMaxWidth,
		Labels:        labels,
	}, logger)

	cleanup := func() {}
	if cfg.Cache.Enabled {
		rdb := places.OpenRedis(cfg.Cache.RedisAddr, cfg.Cache.Password, cfg.Cache.DB)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Str("addr", cfg.Cache.RedisAddr).Msg("redis unreachable, lookups fall through until it recovers")
		}
		cancel()
		gw = places.NewCachingGateway(gw, rdb, cfg.Cache.TTL, logger)
		cleanup = func() { _ = rdb.Close() }
		logger.Info().Str("addr", cfg.Cache.RedisAddr).Dur("ttl", cfg.Cache.TTL).Msg("details cache enabled")
	}
	return gw, cleanup, nil
}
