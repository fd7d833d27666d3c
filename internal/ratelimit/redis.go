package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/morozkovaa/lingua-news/internal/pkg/log"
)

// RedisLimiter — fixed-window лимитер на общем счётчике в Redis.
// Счётчик: INCR + EXPIRE NX на ключ окна; блокировка — отдельный ключ
// с TTL, выставляемый при исчерпании бюджета.
type RedisLimiter struct {
	rdb      *redis.Client
	cfg      Config
	prefix   string
	fallback *LocalLimiter
}

// NewRedis создаёт лимитер поверх клиента Redis.
// prefix разделяет пространства ключей (например, "auth:rl:ok:" и "auth:rl:fail:").
func NewRedis(rdb *redis.Client, cfg Config, prefix string) *RedisLimiter {
	return &RedisLimiter{
		rdb:      rdb,
		cfg:      cfg,
		prefix:   prefix,
		fallback: NewLocal(cfg),
	}
}

func (l *RedisLimiter) counterKey(key string) string { return l.prefix + key }
func (l *RedisLimiter) blockKey(key string) string   { return l.prefix + "block:" + key }

// Consume списывает одну единицу бюджета по ключу.
// При ошибке транспорта деградирует до локального окна: результат
// берётся из фолбэка, ошибка только логируется.
func (l *RedisLimiter) Consume(ctx context.Context, key string) (Result, error) {
	res, err := l.consumeRedis(ctx, key)
	if err != nil {
		log.From(ctx).Warn("ratelimit_redis_failed",
			slog.String("prefix", l.prefix),
			slog.String("err", err.Error()),
		)
		return l.fallback.Consume(ctx, key)
	}

	return res, nil
}

func (l *RedisLimiter) consumeRedis(ctx context.Context, key string) (Result, error) {
	now := time.Now()

	// Действующая блокировка короче любого счётчика.
	blockTTL, err := l.rdb.TTL(ctx, l.blockKey(key)).Result()
	if err != nil {
		return Result{}, err
	}
	if blockTTL > 0 {
		return Result{
			Allowed:    false,
			Limit:      l.cfg.Limit,
			Remaining:  0,
			ResetAt:    now.Add(blockTTL),
			RetryAfter: blockTTL,
		}, nil
	}

	counter := l.counterKey(key)

	pipe := l.rdb.TxPipeline()
	incr := pipe.Incr(ctx, counter)
	// NX: окно фиксированное, TTL выставляется только первым списанием.
	pipe.ExpireNX(ctx, counter, l.cfg.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, err
	}

	count := int(incr.Val())

	windowTTL, err := l.rdb.TTL(ctx, counter).Result()
	if err != nil || windowTTL < 0 {
		windowTTL = l.cfg.Window
	}
	reset := now.Add(windowTTL)

	if count > l.cfg.Limit {
		retry := windowTTL
		if l.cfg.Block > 0 {
			if err := l.rdb.SetNX(ctx, l.blockKey(key), "1", l.cfg.Block).Err(); err != nil {
				return Result{}, err
			}
			reset = now.Add(l.cfg.Block)
			retry = l.cfg.Block
		}

		return Result{
			Allowed:    false,
			Limit:      l.cfg.Limit,
			Remaining:  0,
			ResetAt:    reset,
			RetryAfter: retry,
		}, nil
	}

	return Result{
		Allowed:   true,
		Limit:     l.cfg.Limit,
		Remaining: l.cfg.Limit - count,
		ResetAt:   reset,
	}, nil
}

var _ Limiter = (*RedisLimiter)(nil)
