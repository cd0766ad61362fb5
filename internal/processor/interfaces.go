package processor

import (
	"context"
	"time"

	"hirebyte-ats/internal/types"
)

//
// 文本提取策略相关接口
//

// Strategy 单个提取策略。每次请求新建实例，用完后调用 Close 释放资源。
type Strategy interface {
	// Name 策略名
	Name() types.StrategyName

	// Extract 从PDF字节中提取文本。返回空文本不是错误。
	// 实现应尊重 ctx，超时后尽快返回。
	Extract(ctx context.Context, data []byte) (string, error)

	// Close 释放实例持有的资源（例如OCR会话），可能在 Extract 仍在运行时被调用
	Close() error
}

// StrategyFactory 为一次尝试创建新的策略实例
type StrategyFactory func(ctx context.Context) (Strategy, error)

// Stage 级联中的一级
type Stage struct {
	// Name 策略名，必须与 New 产出的实例一致
	Name types.StrategyName
	// Timeout 该级的时间预算
	Timeout time.Duration
	// MaxBytes 文件达到该大小时跳过该级，0 表示不限
	MaxBytes int
	// New 策略实例工厂
	New StrategyFactory
}

// TextExtractor 提取管线对外的接口，handler 依赖它而不是具体实现
type TextExtractor interface {
	Extract(ctx context.Context, doc types.UploadedDocument) types.ExtractionResult
	Stages() []types.StrategyName
}
