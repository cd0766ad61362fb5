package storage

import (
	"context"
	"fmt"
	"time"

	"hirebyte-ats/internal/config"
	"hirebyte-ats/internal/constants"
	"hirebyte-ats/internal/tracing"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// 为Redis操作定义专用tracer
var redisTracer = otel.Tracer("hirebyte-ats/storage/redis")

// rateLimitWindow 固定窗口长度
const rateLimitWindow = time.Minute

// 固定窗口计数：首次INCR时设置过期，返回当前计数
var rateLimitScript = redis.NewScript(`
	local current = redis.call('INCR', KEYS[1])
	if current == 1 then
		redis.call('EXPIRE', KEYS[1], ARGV[1])
	end
	return current
`)

// Redis wraps the Redis client
type Redis struct {
	Client *redis.Client
	config *config.RedisConfig
}

// NewRedisAdapter 创建Redis连接并挂载OpenTelemetry钩子
func NewRedisAdapter(cfg *config.RedisConfig) (*Redis, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := redisotel.InstrumentTracing(client); err != nil {
		return nil, fmt.Errorf("failed to instrument Redis with OpenTelemetry: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	return &Redis{
		Client: client,
		config: cfg,
	}, nil
}

// Close closes the Redis client connection
func (r *Redis) Close() error {
	if r.Client != nil {
		return r.Client.Close()
	}
	return nil
}

// Ping checks the Redis connection
func (r *Redis) Ping(ctx context.Context) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	return r.Client.Ping(ctx).Err()
}

// Limit 配置的每分钟请求上限
func (r *Redis) Limit() int {
	if r.config == nil {
		return 0
	}
	return r.config.RequestsPerMinute
}

// RateLimitKey 客户端在某一分钟窗口的计数键
func RateLimitKey(clientID string, now time.Time) string {
	return fmt.Sprintf(constants.KeyRateLimitWindow, clientID, now.Unix()/int64(rateLimitWindow.Seconds()))
}

// AllowRequest 对客户端当前分钟窗口计数加一，计数不超过limit时放行。
// limit<=0 表示不限流。返回当前窗口内的计数。
func (r *Redis) AllowRequest(ctx context.Context, clientID string, limit int) (allowed bool, count int64, err error) {
	if limit <= 0 {
		return true, 0, nil
	}

	ctx, span := redisTracer.Start(ctx, "Redis.AllowRequest", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	key := RateLimitKey(clientID, time.Now())
	span.SetAttributes(
		semconv.DBSystemRedis,
		attribute.String("db.operation", "EVALSHA"),
		attribute.String("db.redis.key", tracing.SafeRedisKey(key)),
		attribute.Int("ratelimit.limit", limit),
	)

	if r.Client == nil {
		err = fmt.Errorf("redis client is not initialized")
		tracing.RecordError(span, err, tracing.ErrorTypeRedis)
		return false, 0, err
	}

	res, err := rateLimitScript.Run(ctx, r.Client, []string{key}, int(rateLimitWindow.Seconds())).Int64()
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeRedis)
		return false, 0, fmt.Errorf("执行限流计数失败: %w", err)
	}

	allowed = res <= int64(limit)
	span.SetAttributes(
		attribute.Int64("ratelimit.count", res),
		attribute.Bool("ratelimit.allowed", allowed),
	)
	span.SetStatus(codes.Ok, "")
	return allowed, res, nil
}
