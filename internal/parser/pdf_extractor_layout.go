package parser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"hirebyte-ats/internal/types"

	"github.com/ledongthuc/pdf"
)

// LayoutPDFExtractor 读取PDF内部的页面/文本流结构，逐页拼接文本，页与页之间用换行分隔。
// 速度最快，但对扫描件和非常规编码无能为力。
type LayoutPDFExtractor struct {
	logger *log.Logger
}

// LayoutOption 版面解析器配置选项
type LayoutOption func(*LayoutPDFExtractor)

// WithLayoutLogger 配置自定义日志记录器
func WithLayoutLogger(logger *log.Logger) LayoutOption {
	return func(e *LayoutPDFExtractor) {
		e.logger = logger
	}
}

// NewLayoutPDFExtractor 创建版面解析器
func NewLayoutPDFExtractor(options ...LayoutOption) *LayoutPDFExtractor {
	extractor := &LayoutPDFExtractor{
		logger: log.New(io.Discard, "", 0),
	}
	for _, option := range options {
		option(extractor)
	}
	return extractor
}

// Name 策略名
func (e *LayoutPDFExtractor) Name() types.StrategyName {
	return types.StrategyLayoutParser
}

// Extract 逐页提取文本。每页处理前检查ctx，超时后尽快返回。
func (e *LayoutPDFExtractor) Extract(ctx context.Context, data []byte) (string, error) {
	startTime := time.Now()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("读取PDF结构失败: %w", err)
	}

	numPages := reader.NumPage()
	var sb strings.Builder
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			sb.WriteString("\n")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			e.logger.Printf("第 %d 页文本解码失败: %v", i, err)
		} else {
			sb.WriteString(text)
		}
		sb.WriteString("\n")
	}

	e.logger.Printf("版面解析完成: %d 页, %d 字节 (用时 %.2f秒)", numPages, sb.Len(), time.Since(startTime).Seconds())
	return sb.String(), nil
}

// Close 无需释放资源
func (e *LayoutPDFExtractor) Close() error {
	return nil
}
