package constants

// Redis Key 前缀和格式常量
// 使用统一的命名规范: app:{module}:{entity}:{unique_id}
const (
	// AppPrefix 是所有Redis Key的统一应用前缀
	AppPrefix = "app"

	// RateLimitModulePrefix 限流模块
	RateLimitModulePrefix = "ratelimit"

	// EntityClient 客户端实体
	EntityClient = "client"

	// KeyRateLimitWindow 按客户端和分钟窗口计数 (STRING, INCR)
	// 格式: app:ratelimit:client:{clientID}:{unixMinute}
	KeyRateLimitWindow = AppPrefix + ":" + RateLimitModulePrefix + ":" + EntityClient + ":%s:%d"
)
