package redis

import (
	"context"
	"time"
)

// ClientInterface is the subset of Redis operations the domain packages rely on.
type ClientInterface interface {
	SetWithExpiration(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	GetString(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, keys ...string) error
	DeleteByPattern(ctx context.Context, pattern string) error

	GeoAdd(ctx context.Context, key string, longitude, latitude float64, member string) error
	GeoSearch(ctx context.Context, key string, longitude, latitude, radiusKm float64, count int) ([]GeoMember, error)
	GeoRemove(ctx context.Context, key string, member string) error
	GeoPos(ctx context.Context, key string, member string) (longitude, latitude float64, err error)

	HashSet(ctx context.Context, key, field string, value interface{}) error
	HashGetMany(ctx context.Context, key string, fields ...string) ([]interface{}, error)
	HashDelete(ctx context.Context, key string, fields ...string) error

	Close() error
}

var _ ClientInterface = (*Client)(nil)
