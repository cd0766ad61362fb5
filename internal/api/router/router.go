package router

import (
	"context"
	"crypto/subtle"
	"errors"
	"strconv"
	"time"

	"hirebyte-ats/internal/api/handler"
	"hirebyte-ats/internal/logger"
	"hirebyte-ats/internal/types"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/gofrs/uuid/v5"
	"github.com/hertz-contrib/keyauth"
)

// HeaderRequestID 请求ID头
const HeaderRequestID = "X-Request-ID"

var errInvalidAPIKey = errors.New("invalid api key")

// RateLimiter 按客户端计数的限流器，storage.Redis 实现了该接口
type RateLimiter interface {
	AllowRequest(ctx context.Context, clientID string, limit int) (bool, int64, error)
	Limit() int
}

// Options 可选中间件，零值表示不启用认证和限流
type Options struct {
	APIKeys []string
	Limiter RateLimiter
}

// RegisterRoutes 注册 API 路由
func RegisterRoutes(h *server.Hertz, atsHandler *handler.ATSHandler, opts Options) {
	h.Use(RequestID())

	api := h.Group("/api")
	api.GET("/health", atsHandler.HandleHealth)

	ai := api.Group("/ai")
	if len(opts.APIKeys) > 0 {
		ai.Use(APIKeyAuth(opts.APIKeys))
	}
	if opts.Limiter != nil {
		ai.Use(RateLimit(opts.Limiter))
	}
	ai.POST("/extract-text", atsHandler.HandleExtractText)
	ai.POST("/analyze-ats", atsHandler.HandleAnalyzeATS)
	ai.POST("/send-suggestions", atsHandler.HandleSendSuggestions)
}

// RequestID 为每个请求分配ID，写入响应头和上下文logger，并记录访问日志
func RequestID() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		requestID := string(c.GetHeader(HeaderRequestID))
		if requestID == "" {
			id, err := uuid.NewV7()
			if err != nil {
				id = uuid.Must(uuid.NewV4())
			}
			requestID = id.String()
		}
		c.Response.Header.Set(HeaderRequestID, requestID)
		ctx = logger.WithRequestID(ctx, requestID)

		start := time.Now()
		c.Next(ctx)
		hlog.CtxInfof(ctx, "%s %s status=%d duration=%s request_id=%s",
			string(c.Method()), string(c.Path()), c.Response.StatusCode(), time.Since(start), requestID)
	}
}

// APIKeyAuth 校验 Authorization: Bearer <key>
func APIKeyAuth(keys []string) app.HandlerFunc {
	return keyauth.New(
		keyauth.WithKeyLookUp("header:"+consts.HeaderAuthorization, "Bearer"),
		keyauth.WithValidator(func(ctx context.Context, c *app.RequestContext, key string) (bool, error) {
			for _, k := range keys {
				if subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
					return true, nil
				}
			}
			return false, errInvalidAPIKey
		}),
		keyauth.WithErrorHandler(func(ctx context.Context, c *app.RequestContext, err error) {
			logger.Ctx(ctx).Warn().Err(err).Str("client_ip", c.ClientIP()).Msg("API Key认证失败")
			c.AbortWithStatusJSON(consts.StatusUnauthorized, types.ErrorResponse{Error: "Unauthorized"})
		}),
	)
}

// RateLimit 按客户端IP限流。限流存储不可用时放行。
func RateLimit(limiter RateLimiter) app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		limit := limiter.Limit()
		allowed, count, err := limiter.AllowRequest(ctx, c.ClientIP(), limit)
		if err != nil {
			logger.Ctx(ctx).Warn().Err(err).Msg("限流检查失败，放行请求")
			c.Next(ctx)
			return
		}

		c.Response.Header.Set("X-RateLimit-Limit", strconv.Itoa(limit))
		remaining := int64(limit) - count
		if remaining < 0 {
			remaining = 0
		}
		c.Response.Header.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if !allowed {
			logger.Ctx(ctx).Warn().Str("client_ip", c.ClientIP()).Int64("count", count).Msg("请求过于频繁")
			c.AbortWithStatusJSON(consts.StatusTooManyRequests, types.ErrorResponse{Error: "Too many requests"})
			return
		}
		c.Next(ctx)
	}
}
