package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"hirebyte-ats/internal/logger"
	"hirebyte-ats/internal/tracing"
	"hirebyte-ats/internal/types"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// 单次尝试的结果分类，用于日志和span属性
const (
	outcomeOK      = "ok"
	outcomeEmpty   = "empty"
	outcomeError   = "error"
	outcomeTimeout = "timeout"
	outcomeSkipped = "skipped"
)

// Pipeline 按成本递增顺序串行尝试各提取策略，直到得到非空白文本或全部用尽。
// 对调用方永不返回错误，质量问题只体现在 Method 和空 Text 上。
type Pipeline struct {
	stages []Stage
	logger *zerolog.Logger
	tracer trace.Tracer
}

// PipelineOption 管线配置选项
type PipelineOption func(*Pipeline)

// WithPipelineLogger 设置管线使用的日志记录器
func WithPipelineLogger(l zerolog.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = &l
	}
}

// WithPipelineTracer 设置管线使用的tracer
func WithPipelineTracer(t trace.Tracer) PipelineOption {
	return func(p *Pipeline) {
		p.tracer = t
	}
}

var _ TextExtractor = (*Pipeline)(nil)

// NewPipeline 校验级联配置并创建管线。各级必须是PDF策略，且成本严格递增。
func NewPipeline(stages []Stage, options ...PipelineOption) (*Pipeline, error) {
	lastCost := types.StrategyPlainText.Cost()
	for i, st := range stages {
		if !isPDFStrategy(st.Name) {
			return nil, fmt.Errorf("%w: 第%d级策略 %q 不是PDF策略", ErrInvalidPipeline, i, st.Name)
		}
		if st.Name.Cost() <= lastCost {
			return nil, fmt.Errorf("%w: 策略 %q 必须排在成本更低的策略之后", ErrInvalidPipeline, st.Name)
		}
		if st.Timeout <= 0 {
			return nil, fmt.Errorf("%w: 策略 %q 缺少超时", ErrInvalidPipeline, st.Name)
		}
		if st.New == nil {
			return nil, fmt.Errorf("%w: 策略 %q 缺少工厂", ErrInvalidPipeline, st.Name)
		}
		lastCost = st.Name.Cost()
	}

	p := &Pipeline{
		stages: append([]Stage(nil), stages...),
		tracer: otel.Tracer("hirebyte-ats/processor"),
	}
	for _, option := range options {
		option(p)
	}
	return p, nil
}

func isPDFStrategy(name types.StrategyName) bool {
	for _, s := range types.PDFStrategies() {
		if s == name {
			return true
		}
	}
	return false
}

// Stages 已配置的级联顺序
func (p *Pipeline) Stages() []types.StrategyName {
	names := make([]types.StrategyName, len(p.stages))
	for i, st := range p.stages {
		names[i] = st.Name
	}
	return names
}

func (p *Pipeline) log() *zerolog.Logger {
	if p.logger != nil {
		return p.logger
	}
	return &logger.Logger
}

// Extract 提取文本。纯文本直接解码；PDF走级联；其余类型返回 method=none。
func (p *Pipeline) Extract(ctx context.Context, doc types.UploadedDocument) types.ExtractionResult {
	mediaType := doc.BaseMediaType()
	switch mediaType {
	case types.MediaTypePlainText:
		text := decodePlainText(doc.Data)
		return types.ExtractionResult{
			Text:           text,
			Method:         types.StrategyPlainText,
			CharacterCount: CountNonWhitespace(text),
		}
	case types.MediaTypePDF:
		return p.extractPDF(ctx, doc.Data)
	default:
		p.log().Info().Str("media_type", mediaType).Int("size", len(doc.Data)).Msg("不支持的文件类型，跳过提取")
		return types.ExtractionResult{Method: types.StrategyNone}
	}
}

func (p *Pipeline) extractPDF(ctx context.Context, data []byte) types.ExtractionResult {
	method := types.StrategyNone
	var text string

	for _, st := range p.stages {
		if ctx.Err() != nil {
			p.log().Warn().Err(ctx.Err()).Str("strategy", string(st.Name)).Msg("请求已取消，停止提取级联")
			break
		}
		if st.MaxBytes > 0 && len(data) >= st.MaxBytes {
			p.log().Info().
				Str("strategy", string(st.Name)).
				Str("outcome", outcomeSkipped).
				Int("size", len(data)).
				Int("max_bytes", st.MaxBytes).
				Msg("文件超过大小上限，跳过该策略")
			continue
		}

		method = st.Name
		out, err := p.attempt(ctx, st, data)
		if err == nil {
			text = out
		}
		if CountNonWhitespace(text) > 0 {
			break
		}
	}

	count := CountNonWhitespace(text)
	if count == 0 {
		text = ""
	}
	return types.ExtractionResult{Text: text, Method: method, CharacterCount: count}
}

type attemptResult struct {
	text string
	err  error
}

// attempt 在该级的超时内运行一次策略。
// 超时后立即返回，后台仍在运行的 Extract 结果被丢弃，实例在后台关闭，不等待。
func (p *Pipeline) attempt(parent context.Context, st Stage, data []byte) (string, error) {
	start := time.Now()
	spanCtx, span := p.tracer.Start(parent, "extract."+string(st.Name),
		trace.WithAttributes(
			attribute.String("extraction.strategy", string(st.Name)),
			attribute.Int("extraction.input_bytes", len(data)),
		))
	defer span.End()

	ctx, cancel := context.WithTimeout(spanCtx, st.Timeout)
	defer cancel()

	strategy, err := newStrategy(ctx, st)
	if err != nil {
		p.report(span, st.Name, outcomeError, start, 0, err)
		return "", err
	}

	done := make(chan attemptResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- attemptResult{err: newPanicError(st.Name, r)}
			}
		}()
		out, err := strategy.Extract(ctx, data)
		done <- attemptResult{text: out, err: err}
	}()

	select {
	case res := <-done:
		p.closeStrategy(strategy)
		if res.err != nil {
			if !errors.Is(res.err, ErrStrategyPanic) {
				if errors.Is(res.err, context.DeadlineExceeded) && ctx.Err() != nil {
					res.err = newTimeoutError(st.Name, res.err)
				} else {
					res.err = newExtractError(st.Name, res.err)
				}
			}
			p.report(span, st.Name, outcomeFor(res.err), start, 0, res.err)
			return "", res.err
		}
		chars := CountNonWhitespace(res.text)
		outcome := outcomeOK
		if chars == 0 {
			outcome = outcomeEmpty
		}
		p.report(span, st.Name, outcome, start, chars, nil)
		return res.text, nil
	case <-ctx.Done():
		go p.closeStrategy(strategy)
		err := newTimeoutError(st.Name, ctx.Err())
		p.report(span, st.Name, outcomeTimeout, start, 0, err)
		return "", err
	}
}

func newStrategy(ctx context.Context, st Stage) (s Strategy, err error) {
	defer func() {
		if r := recover(); r != nil {
			s, err = nil, newInitError(st.Name, fmt.Errorf("%w: %v", ErrStrategyPanic, r))
		}
	}()
	s, err = st.New(ctx)
	if err != nil {
		return nil, newInitError(st.Name, err)
	}
	if s == nil {
		return nil, newInitError(st.Name, errors.New("工厂返回了nil"))
	}
	return s, nil
}

func (p *Pipeline) closeStrategy(s Strategy) {
	defer func() {
		if r := recover(); r != nil {
			p.log().Error().Str("strategy", string(s.Name())).Interface("panic", r).Msg("关闭提取策略时发生panic")
		}
	}()
	if err := s.Close(); err != nil {
		p.log().Warn().Err(err).Str("strategy", string(s.Name())).Msg("关闭提取策略失败")
	}
}

func outcomeFor(err error) string {
	if errors.Is(err, ErrStrategyTimeout) {
		return outcomeTimeout
	}
	return outcomeError
}

func (p *Pipeline) report(span trace.Span, name types.StrategyName, outcome string, start time.Time, chars int, err error) {
	duration := time.Since(start)
	span.SetAttributes(
		attribute.String("extraction.outcome", outcome),
		attribute.Int("extraction.characters", chars),
	)

	var event *zerolog.Event
	switch outcome {
	case outcomeOK:
		event = p.log().Info()
	case outcomeEmpty:
		event = p.log().Debug()
	default:
		event = p.log().Warn().Err(err)
		errType := tracing.ErrorTypeExternal
		if outcome == outcomeTimeout {
			errType = tracing.ErrorTypeTimeout
		} else if errors.Is(err, ErrStrategyPanic) {
			errType = tracing.ErrorTypeInternal
		}
		tracing.RecordError(span, err, errType)
	}
	event.
		Str("strategy", string(name)).
		Str("outcome", outcome).
		Dur("duration", duration).
		Int("chars", chars).
		Msg("提取策略尝试结束")
}

// CountNonWhitespace 非空白字符数，用于判断提取结果是否可用
func CountNonWhitespace(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}

// decodePlainText 按UTF-8解码，非法字节替换为U+FFFD
func decodePlainText(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	return strings.ToValidUTF8(string(data), "\uFFFD")
}
