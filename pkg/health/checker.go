package health

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Checker reports an error when a dependency is unhealthy.
type Checker func(ctx context.Context) error

// DatabaseChecker pings PostgreSQL through database/sql.
func DatabaseChecker(db *sql.DB) Checker {
	return func(ctx context.Context) error {
		if db == nil {
			return errors.New("database connection is nil")
		}
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("database ping failed: %w", err)
		}
		return nil
	}
}

// RedisChecker pings Redis.
func RedisChecker(client *redis.Client) Checker {
	return func(ctx context.Context) error {
		if client == nil {
			return errors.New("redis client is nil")
		}
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping failed: %w", err)
		}
		return nil
	}
}

// ConnectionChecker adapts a connected probe, such as the NATS bus.
func ConnectionChecker(name string, connected func() bool) Checker {
	return func(ctx context.Context) error {
		if !connected() {
			return fmt.Errorf("%s is not connected", name)
		}
		return nil
	}
}
