package processor

import (
	"errors"
	"fmt"

	"hirebyte-ats/internal/types"
)

// 定义基础错误类型
var (
	ErrStrategyInit    = errors.New("提取策略初始化失败")
	ErrStrategyFailed  = errors.New("提取策略执行失败")
	ErrStrategyTimeout = errors.New("提取策略超时")
	ErrStrategyPanic   = errors.New("提取策略发生panic")
	ErrInvalidPipeline = errors.New("提取管线配置无效")
)

// StrategyError 单次策略尝试的错误，管线内部记录后丢弃，不会返回给调用方
type StrategyError struct {
	Strategy types.StrategyName
	Op       string
	BaseErr  error
	Cause    error
}

func (e *StrategyError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (策略:%s, 操作:%s): %v", e.BaseErr, e.Strategy, e.Op, e.Cause)
	}
	return fmt.Sprintf("%s (策略:%s, 操作:%s)", e.BaseErr, e.Strategy, e.Op)
}

func (e *StrategyError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.BaseErr}
	}
	return []error{e.BaseErr, e.Cause}
}

func newInitError(name types.StrategyName, cause error) error {
	return &StrategyError{Strategy: name, Op: "init", BaseErr: ErrStrategyInit, Cause: cause}
}

func newExtractError(name types.StrategyName, cause error) error {
	return &StrategyError{Strategy: name, Op: "extract", BaseErr: ErrStrategyFailed, Cause: cause}
}

func newTimeoutError(name types.StrategyName, cause error) error {
	return &StrategyError{Strategy: name, Op: "extract", BaseErr: ErrStrategyTimeout, Cause: cause}
}

func newPanicError(name types.StrategyName, recovered any) error {
	return &StrategyError{Strategy: name, Op: "extract", BaseErr: ErrStrategyPanic, Cause: fmt.Errorf("%v", recovered)}
}
