// Package cache оборачивает redis: JSON-кэш значений и короткие
// распределённые блокировки по ключу.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/magabrotheeeer/parkease-coordinator/internal/config"
)

// ErrLockNotAcquired блокировку удерживает кто-то другой.
var ErrLockNotAcquired = errors.New("lock not acquired")

// unlockScript снимает блокировку, только если её значение совпадает с токеном владельца.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

type Cache struct {
	Db *redis.Client
}

func InitServer(ctx context.Context, cfg config.RedisConnection) (*Cache, error) {
	const op = "cache.InitServer"
	db := redis.NewClient(&redis.Options{
		Addr:         cfg.AddressRedis,
		Password:     cfg.Password,
		DB:           cfg.DB,
		Username:     cfg.User,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.TimeoutRedis,
		WriteTimeout: cfg.TimeoutRedis,
	})

	if err := db.Ping(ctx).Err(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Cache{Db: db}, nil
}

func (c *Cache) Get(ctx context.Context, key string, result any) (bool, error) {
	const op = "cache.Get"
	val, err := c.Db.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if err = json.Unmarshal([]byte(val), result); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}

func (c *Cache) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	const op = "cache.Set"
	jsonData, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err = c.Db.Set(ctx, key, jsonData, expiration).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (c *Cache) Invalidate(ctx context.Context, key string) error {
	return c.Db.Del(ctx, key).Err()
}

// Lock пытается захватить блокировку key на ttl. Возвращает функцию
// освобождения; если блокировка занята, возвращает ErrLockNotAcquired.
// Ожидание повторяется каждые retry до истечения ctx.
func (c *Cache) Lock(ctx context.Context, key string, ttl, retry time.Duration) (func(), error) {
	const op = "cache.Lock"
	token := uuid.NewString()

	for {
		ok, err := c.Db.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if ok {
			return func() {
				// освобождаем даже при отменённом ctx вызывающего
				_ = unlockScript.Run(context.Background(), c.Db, []string{key}, token).Err()
			}, nil
		}
		if retry <= 0 {
			return nil, fmt.Errorf("%s: %w", op, ErrLockNotAcquired)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%s: %w", op, ErrLockNotAcquired)
		case <-time.After(retry):
		}
	}
}

// Ping проверяет доступность redis.
func (c *Cache) Ping(ctx context.Context) error {
	return c.Db.Ping(ctx).Err()
}

func (c *Cache) Close() error {
	return c.Db.Close()
}
