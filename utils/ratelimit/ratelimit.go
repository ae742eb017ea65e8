package ratelimit

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Limiter 按 key 计数的固定窗口限流
type Limiter interface {
	// Allow 消耗一次额度，超过上限返回 false
	Allow(ctx context.Context, key string) (bool, error)

	// Remaining 返回当前窗口剩余的次数
	Remaining(ctx context.Context, key string) (int, error)

	// Reset 清空 key 的计数，例如登录成功之后
	Reset(ctx context.Context, key string) error
}

// WindowLimiter 使用 Redis INCR + EXPIRE 实现的固定窗口计数器
// 第一次计数时设置过期时间，窗口结束后计数自动清零
type WindowLimiter struct {
	redisClient *redis.Client
	logger      *zap.Logger
	prefix      string
	limit       int
	window      time.Duration
	fallback    bool // Redis 不可用时放行 (fail-open)
}

type Options struct {
	Prefix   string
	Limit    int
	Window   time.Duration
	Fallback bool
}

func NewWindowLimiter(redisClient *redis.Client, logger *zap.Logger, opts Options) *WindowLimiter {
	if opts.Prefix == "" {
		opts.Prefix = "default"
	}
	if opts.Limit <= 0 {
		opts.Limit = 5
	}
	if opts.Window <= 0 {
		opts.Window = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WindowLimiter{
		redisClient: redisClient,
		logger:      logger,
		prefix:      opts.Prefix,
		limit:       opts.Limit,
		window:      opts.Window,
		fallback:    opts.Fallback,
	}
}

func (l *WindowLimiter) key(key string) string {
	return fmt.Sprintf("ratelimit:%s:%s", l.prefix, key)
}

func (l *WindowLimiter) Allow(ctx context.Context, key string) (bool, error) {
	bucketKey := l.key(key)

	count, err := l.redisClient.Incr(ctx, bucketKey).Result()
	if err != nil {
		return l.failure(bucketKey, err)
	}
	if count == 1 {
		if err := l.redisClient.Expire(ctx, bucketKey, l.window).Err(); err != nil {
			return l.failure(bucketKey, err)
		}
	}

	allowed := count <= int64(l.limit)
	if !allowed {
		l.logger.Warn("rate limit exceeded",
			zap.String("key", bucketKey),
			zap.Int64("count", count),
			zap.Int("limit", l.limit),
			zap.Duration("window", l.window),
		)
	}
	return allowed, nil
}

func (l *WindowLimiter) failure(bucketKey string, err error) (bool, error) {
	l.logger.Error("rate limit check failed", zap.String("key", bucketKey), zap.Error(err))
	if l.fallback {
		l.logger.Warn("rate limit check failed, allowing request (fail-open)", zap.String("key", bucketKey))
		return true, nil
	}
	return false, fmt.Errorf("rate limit check failed: %w", err)
}

func (l *WindowLimiter) Remaining(ctx context.Context, key string) (int, error) {
	count, err := l.redisClient.Get(ctx, l.key(key)).Int()
	if err == redis.Nil {
		return l.limit, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get remaining attempts: %w", err)
	}
	return max(l.limit-count, 0), nil
}

func (l *WindowLimiter) Reset(ctx context.Context, key string) error {
	if err := l.redisClient.Del(ctx, l.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to reset rate limit for key %s: %w", key, err)
	}
	return nil
}
