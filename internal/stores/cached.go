package stores

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-grocery/internal/geo"
)

const (
	directoryCacheKey = "stores:directory"
	lastGoodCacheKey  = "stores:directory:last"
)

// Cache is the subset of the JSON cache used by CachedDirectory.
type Cache interface {
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	SetJSON(ctx context.Context, key string, v any) error
	Delete(ctx context.Context, keys ...string) error
}

// CachedDirectory serves the directory from Redis and refreshes it from Source
// on a miss. When Source fails, the last successful snapshot in Stale is used.
type CachedDirectory struct {
	Source Directory
	Cache  Cache
	// Stale holds the last good snapshot without expiry. Optional.
	Stale  Cache
	Logger zerolog.Logger
}

// List implements Directory.
func (d *CachedDirectory) List(ctx context.Context) ([]geo.StoreCandidate, error) {
	if d.Cache != nil {
		var cached []geo.StoreCandidate
		hit, err := d.Cache.GetJSON(ctx, directoryCacheKey, &cached)
		if err != nil {
			d.Logger.Warn().Err(err).Msg("store_directory_cache_read")
		} else if hit {
			return cached, nil
		}
	}
	fresh, err := d.Source.List(ctx)
	if err != nil {
		if stale, ok := d.lastGood(ctx); ok {
			d.Logger.Warn().Err(err).Int("stores", len(stale)).Msg("store_directory_serving_stale")
			return stale, nil
		}
		return nil, err
	}
	if d.Cache != nil {
		if err := d.Cache.SetJSON(ctx, directoryCacheKey, fresh); err != nil {
			d.Logger.Warn().Err(err).Msg("store_directory_cache_write")
		}
	}
	if d.Stale != nil {
		if err := d.Stale.SetJSON(ctx, lastGoodCacheKey, fresh); err != nil {
			d.Logger.Warn().Err(err).Msg("store_directory_stale_write")
		}
	}
	return fresh, nil
}

// Invalidate drops the cached snapshot so the next List hits Source.
func (d *CachedDirectory) Invalidate(ctx context.Context) error {
	if d.Cache == nil {
		return nil
	}
	return d.Cache.Delete(ctx, directoryCacheKey)
}

func (d *CachedDirectory) lastGood(ctx context.Context) ([]geo.StoreCandidate, bool) {
	if d.Stale == nil {
		return nil, false
	}
	var stale []geo.StoreCandidate
	hit, err := d.Stale.GetJSON(ctx, lastGoodCacheKey, &stale)
	if err != nil || !hit {
		return nil, false
	}
	return stale, true
}
