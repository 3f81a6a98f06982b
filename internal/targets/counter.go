package targets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/karloscodes/cartridge/sqlite"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"pagelens/internal/config"
)

// Counter is an atomic per-target view counter.
type Counter interface {
	IncrementViews(ctx context.Context, targetID string, n int64) error
	ViewCount(ctx context.Context, targetID string) (int64, error)
	Backend() string
}

// SQLiteCounter keeps the counter in the businesses table.
type SQLiteCounter struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewSQLiteCounter(db *gorm.DB, logger *slog.Logger) *SQLiteCounter {
	return &SQLiteCounter{db: db, logger: logger}
}

func (c *SQLiteCounter) Backend() string { return config.CounterBackendSQLite }

// IncrementViews adds n in a single UPDATE so concurrent increments never
// lose a count.
func (c *SQLiteCounter) IncrementViews(ctx context.Context, targetID string, n int64) error {
	return sqlite.PerformWrite(c.logger, c.db.WithContext(ctx), func(tx *gorm.DB) error {
		result := tx.Model(&Business{}).
			Where("id = ?", targetID).
			UpdateColumn("view_count", gorm.Expr("view_count + ?", n))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return NewTargetNotFoundError(targetID)
		}
		return nil
	})
}

func (c *SQLiteCounter) ViewCount(ctx context.Context, targetID string) (int64, error) {
	business, err := GetBusiness(c.db.WithContext(ctx), targetID)
	if err != nil {
		return 0, err
	}
	return business.ViewCount, nil
}

// RedisCounter keeps counters under "<prefix>:<id>:views". Redis has no
// notion of a missing business, so increments always succeed.
type RedisCounter struct {
	client *redis.Client
	prefix string
}

func NewRedisCounter(client *redis.Client, prefix string) *RedisCounter {
	return &RedisCounter{client: client, prefix: prefix}
}

func (c *RedisCounter) Backend() string { return config.CounterBackendRedis }

func (c *RedisCounter) key(targetID string) string {
	return fmt.Sprintf("%s:%s:views", c.prefix, targetID)
}

func (c *RedisCounter) IncrementViews(ctx context.Context, targetID string, n int64) error {
	return c.client.IncrBy(ctx, c.key(targetID), n).Err()
}

func (c *RedisCounter) ViewCount(ctx context.Context, targetID string) (int64, error) {
	count, err := c.client.Get(ctx, c.key(targetID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return count, err
}

// NewRedisClient connects and pings the configured Redis server.
func NewRedisClient(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Connected to Redis",
		slog.String("addr", cfg.RedisAddr),
		slog.Int("db", cfg.RedisDB))
	return client, nil
}

// NewCounter builds the configured backend wrapped in a circuit breaker. The
// returned close function releases backend connections.
func NewCounter(ctx context.Context, cfg *config.Config, db *gorm.DB, logger *slog.Logger) (*BreakerCounter, func() error, error) {
	switch cfg.CounterBackend {
	case config.CounterBackendRedis:
		client, err := NewRedisClient(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		counter := NewBreakerCounter(NewRedisCounter(client, cfg.RedisCounterKeyPrefix), DefaultBreakerConfig(), logger)
		return counter, client.Close, nil
	default:
		counter := NewBreakerCounter(NewSQLiteCounter(db, logger), DefaultBreakerConfig(), logger)
		return counter, func() error { return nil }, nil
	}
}
