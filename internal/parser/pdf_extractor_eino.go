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

	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	einoParser "github.com/cloudwego/eino/components/document/parser"
)

// EinoPDFTextExtractor 使用 Eino PDF Parser 做整文档文本提取，
// 比版面解析更宽容，作为第二级回退。
type EinoPDFTextExtractor struct {
	parser *pdf.PDFParser
	logger *log.Logger
	uri    string
}

// EinoPDFOption PDF提取器的配置选项
type EinoPDFOption func(*EinoPDFTextExtractor)

// WithEinoLogger 配置自定义日志记录器
func WithEinoLogger(logger *log.Logger) EinoPDFOption {
	return func(e *EinoPDFTextExtractor) {
		e.logger = logger
	}
}

// WithEinoURI 设置写入文档元数据的资源名
func WithEinoURI(uri string) EinoPDFOption {
	return func(e *EinoPDFTextExtractor) {
		e.uri = uri
	}
}

// NewEinoPDFTextExtractor 初始化 Eino PDF 文本提取器
// 默认配置为不按页面分割，以获取整个文档的连续文本
func NewEinoPDFTextExtractor(ctx context.Context, options ...EinoPDFOption) (*EinoPDFTextExtractor, error) {
	p, err := pdf.NewPDFParser(ctx, &pdf.Config{
		ToPages: false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Eino PDF parser: %w", err)
	}

	extractor := &EinoPDFTextExtractor{
		parser: p,
		logger: log.New(io.Discard, "", 0),
		uri:    "upload.pdf",
	}

	for _, option := range options {
		option(extractor)
	}

	return extractor, nil
}

// Name 策略名
func (e *EinoPDFTextExtractor) Name() types.StrategyName {
	return types.StrategyGenericParser
}

// Extract 解析整个文档；返回多个文档时按顺序用换行拼接
func (e *EinoPDFTextExtractor) Extract(ctx context.Context, data []byte) (string, error) {
	startTime := time.Now()

	docs, err := e.parser.Parse(ctx, bytes.NewReader(data),
		einoParser.WithURI(e.uri),
		einoParser.WithExtraMeta(map[string]any{
			"extraction_time": startTime.Format(time.RFC3339),
		}),
	)
	duration := time.Since(startTime)
	if err != nil {
		e.logger.Printf("Eino解析失败: %s (用时 %.2f秒)", err, duration.Seconds())
		return "", fmt.Errorf("eino PDF parser failed for URI %s: %w", e.uri, err)
	}

	if len(docs) == 0 {
		e.logger.Printf("PDF解析无结果 (用时 %.2f秒)", duration.Seconds())
		return "", nil
	}

	parts := make([]string, 0, len(docs))
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		parts = append(parts, doc.Content)
	}
	fullContent := strings.Join(parts, "\n")

	e.logger.Printf("PDF提取完成: %d 个文档, %d 字节 (用时 %.2f秒)", len(docs), len(fullContent), duration.Seconds())
	return fullContent, nil
}

// Close 无需释放资源
func (e *EinoPDFTextExtractor) Close() error {
	return nil
}
