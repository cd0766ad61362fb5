package processor

import (
	"context"
	"errors"
	"io"
	"log"
	"sync/atomic"
	"testing"
	"time"

	"hirebyte-ats/internal/config"
	"hirebyte-ats/internal/types"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockStrategy 模拟提取策略
type MockStrategy struct {
	name    types.StrategyName
	text    string
	err     error
	panics  bool
	release chan struct{} // 非nil时忽略ctx并阻塞到通道关闭
	closed  *int32
}

func (m *MockStrategy) Name() types.StrategyName { return m.name }

func (m *MockStrategy) Extract(ctx context.Context, data []byte) (string, error) {
	if m.panics {
		panic("malformed xref table")
	}
	if m.release != nil {
		<-m.release
	}
	return m.text, m.err
}

func (m *MockStrategy) Close() error {
	if m.closed != nil {
		atomic.AddInt32(m.closed, 1)
	}
	return nil
}

// stageRecorder 记录每级工厂被调用和实例被关闭的次数
type stageRecorder struct {
	created int32
	closed  int32
}

func (r *stageRecorder) stage(tmpl MockStrategy, timeout time.Duration) Stage {
	return Stage{
		Name:    tmpl.name,
		Timeout: timeout,
		New: func(ctx context.Context) (Strategy, error) {
			atomic.AddInt32(&r.created, 1)
			s := tmpl
			s.closed = &r.closed
			return &s, nil
		},
	}
}

func (r *stageRecorder) Created() int32 { return atomic.LoadInt32(&r.created) }
func (r *stageRecorder) Closed() int32  { return atomic.LoadInt32(&r.closed) }

func newTestPipeline(t *testing.T, stages ...Stage) *Pipeline {
	t.Helper()
	p, err := NewPipeline(stages, WithPipelineLogger(zerolog.Nop()))
	require.NoError(t, err)
	return p
}

func pdfDoc(data string) types.UploadedDocument {
	return types.UploadedDocument{Data: []byte(data), MediaType: types.MediaTypePDF}
}

func TestPlainTextBypassesCascade(t *testing.T) {
	var layout stageRecorder
	p := newTestPipeline(t, layout.stage(MockStrategy{name: types.StrategyLayoutParser, text: "never"}, time.Second))

	body := "Jane Doe\nSenior Go Engineer\n\n  Kubernetes, AWS"
	for _, mt := range []string{"text/plain", "text/plain; charset=utf-8", "TEXT/PLAIN"} {
		res := p.Extract(context.Background(), types.UploadedDocument{Data: []byte(body), MediaType: mt})
		assert.Equal(t, types.StrategyPlainText, res.Method, mt)
		assert.Equal(t, body, res.Text, "纯文本应原样返回")
		assert.Equal(t, CountNonWhitespace(body), res.CharacterCount)
	}
	assert.Equal(t, int32(0), layout.Created(), "纯文本不应进入级联")
}

func TestPlainTextInvalidUTF8IsReplaced(t *testing.T) {
	p := newTestPipeline(t)
	res := p.Extract(context.Background(), types.UploadedDocument{Data: []byte{'o', 'k', 0xff, 0xfe}, MediaType: "text/plain"})
	assert.Equal(t, types.StrategyPlainText, res.Method)
	assert.Equal(t, "ok\uFFFD", res.Text)
}

func TestUnsupportedMediaType(t *testing.T) {
	var layout stageRecorder
	p := newTestPipeline(t, layout.stage(MockStrategy{name: types.StrategyLayoutParser, text: "x"}, time.Second))

	for _, mt := range []string{"image/png", "application/msword", ""} {
		res := p.Extract(context.Background(), types.UploadedDocument{Data: []byte("payload"), MediaType: mt})
		assert.Equal(t, types.StrategyNone, res.Method)
		assert.Empty(t, res.Text)
		assert.Zero(t, res.CharacterCount)
	}
	assert.Equal(t, int32(0), layout.Created())
}

func TestLayoutSuccessStopsCascade(t *testing.T) {
	var layout, generic, ocr stageRecorder
	p := newTestPipeline(t,
		layout.stage(MockStrategy{name: types.StrategyLayoutParser, text: "Hello\nWorld"}, time.Second),
		generic.stage(MockStrategy{name: types.StrategyGenericParser, text: "generic"}, time.Second),
		ocr.stage(MockStrategy{name: types.StrategyOCR, text: "ocr"}, time.Second),
	)

	res := p.Extract(context.Background(), pdfDoc("%PDF"))
	assert.Equal(t, types.StrategyLayoutParser, res.Method)
	assert.Equal(t, "Hello\nWorld", res.Text, "应保留原有换行")
	assert.Equal(t, 10, res.CharacterCount)

	assert.Equal(t, int32(1), layout.Created())
	assert.Equal(t, int32(1), layout.Closed(), "用完的实例应被关闭")
	assert.Equal(t, int32(0), generic.Created(), "版面解析成功后不应调用通用解析")
	assert.Equal(t, int32(0), ocr.Created(), "版面解析成功后不应调用OCR")
}

func TestAllStrategiesEmpty(t *testing.T) {
	var layout, generic, ocr stageRecorder
	p := newTestPipeline(t,
		layout.stage(MockStrategy{name: types.StrategyLayoutParser, text: "  \n\t "}, time.Second),
		generic.stage(MockStrategy{name: types.StrategyGenericParser, text: ""}, time.Second),
		ocr.stage(MockStrategy{name: types.StrategyOCR, text: "\n\n"}, time.Second),
	)

	res := p.Extract(context.Background(), pdfDoc("%PDF"))
	assert.Equal(t, types.StrategyOCR, res.Method, "method 为最后尝试的策略")
	assert.Equal(t, "", res.Text)
	assert.Zero(t, res.CharacterCount)
	for _, r := range []*stageRecorder{&layout, &generic, &ocr} {
		assert.Equal(t, int32(1), r.Created())
		assert.Equal(t, int32(1), r.Closed())
	}
}

func TestFailingStrategyFallsThrough(t *testing.T) {
	var layout, generic stageRecorder
	p := newTestPipeline(t,
		layout.stage(MockStrategy{name: types.StrategyLayoutParser, err: errors.New("unsupported encoding")}, time.Second),
		generic.stage(MockStrategy{name: types.StrategyGenericParser, text: "recovered text"}, time.Second),
	)

	res := p.Extract(context.Background(), pdfDoc("%PDF"))
	assert.Equal(t, types.StrategyGenericParser, res.Method)
	assert.Equal(t, "recovered text", res.Text)
	assert.Equal(t, int32(1), layout.Closed(), "失败的实例也应被关闭")
}

func TestPanickingStrategyIsRecovered(t *testing.T) {
	var layout, generic stageRecorder
	p := newTestPipeline(t,
		layout.stage(MockStrategy{name: types.StrategyLayoutParser, panics: true}, time.Second),
		generic.stage(MockStrategy{name: types.StrategyGenericParser, text: "still works"}, time.Second),
	)

	var res types.ExtractionResult
	require.NotPanics(t, func() {
		res = p.Extract(context.Background(), pdfDoc("%PDF"))
	})
	assert.Equal(t, types.StrategyGenericParser, res.Method)
	assert.Equal(t, "still works", res.Text)
}

func TestHangingStrategyTimesOut(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	var layout, generic stageRecorder
	p := newTestPipeline(t,
		layout.stage(MockStrategy{name: types.StrategyLayoutParser, text: "too late", release: release}, 50*time.Millisecond),
		generic.stage(MockStrategy{name: types.StrategyGenericParser, text: "generic text"}, time.Second),
	)

	start := time.Now()
	res := p.Extract(context.Background(), pdfDoc("%PDF"))
	elapsed := time.Since(start)

	assert.Equal(t, types.StrategyGenericParser, res.Method)
	assert.Equal(t, "generic text", res.Text, "超时策略的结果必须被丢弃")
	assert.Less(t, elapsed, 2*time.Second, "挂起的策略不应阻塞管线")
	assert.Eventually(t, func() bool { return layout.Closed() == 1 }, time.Second, 10*time.Millisecond,
		"超时的实例应在后台被关闭")
}

func TestAllStrategiesHang(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	var layout, generic stageRecorder
	p := newTestPipeline(t,
		layout.stage(MockStrategy{name: types.StrategyLayoutParser, release: release}, 30*time.Millisecond),
		generic.stage(MockStrategy{name: types.StrategyGenericParser, release: release}, 30*time.Millisecond),
	)

	res := p.Extract(context.Background(), pdfDoc("%PDF"))
	assert.Equal(t, types.StrategyGenericParser, res.Method)
	assert.Empty(t, res.Text)
}

func TestOCRSkippedAboveSizeCeiling(t *testing.T) {
	var layout, generic, ocr stageRecorder
	ocrStage := ocr.stage(MockStrategy{name: types.StrategyOCR, text: "ocr text"}, time.Second)
	ocrStage.MaxBytes = 8
	p := newTestPipeline(t,
		layout.stage(MockStrategy{name: types.StrategyLayoutParser}, time.Second),
		generic.stage(MockStrategy{name: types.StrategyGenericParser}, time.Second),
		ocrStage,
	)

	res := p.Extract(context.Background(), pdfDoc("%PDF-1.7 large scanned file"))
	assert.Equal(t, types.StrategyGenericParser, res.Method, "OCR被跳过时method为最后实际尝试的策略")
	assert.Empty(t, res.Text)
	assert.Equal(t, int32(0), ocr.Created())

	res = p.Extract(context.Background(), pdfDoc("%PDF"))
	assert.Equal(t, types.StrategyOCR, res.Method)
	assert.Equal(t, "ocr text", res.Text)
}

func TestFactoryErrorFallsThrough(t *testing.T) {
	var generic stageRecorder
	p := newTestPipeline(t,
		Stage{
			Name:    types.StrategyLayoutParser,
			Timeout: time.Second,
			New: func(ctx context.Context) (Strategy, error) {
				return nil, errors.New("parser unavailable")
			},
		},
		generic.stage(MockStrategy{name: types.StrategyGenericParser, text: "generic"}, time.Second),
	)

	res := p.Extract(context.Background(), pdfDoc("%PDF"))
	assert.Equal(t, types.StrategyGenericParser, res.Method)
	assert.Equal(t, "generic", res.Text)
}

func TestCancelledRequestStopsCascade(t *testing.T) {
	var layout stageRecorder
	p := newTestPipeline(t, layout.stage(MockStrategy{name: types.StrategyLayoutParser, text: "x"}, time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := p.Extract(ctx, pdfDoc("%PDF"))
	assert.Equal(t, types.StrategyNone, res.Method)
	assert.Empty(t, res.Text)
	assert.Equal(t, int32(0), layout.Created())
}

func TestNewPipelineValidation(t *testing.T) {
	factory := func(ctx context.Context) (Strategy, error) { return &MockStrategy{}, nil }

	_, err := NewPipeline([]Stage{
		{Name: types.StrategyGenericParser, Timeout: time.Second, New: factory},
		{Name: types.StrategyLayoutParser, Timeout: time.Second, New: factory},
	})
	assert.ErrorIs(t, err, ErrInvalidPipeline, "成本必须递增")

	_, err = NewPipeline([]Stage{{Name: types.StrategyPlainText, Timeout: time.Second, New: factory}})
	assert.ErrorIs(t, err, ErrInvalidPipeline, "纯文本不是PDF策略")

	_, err = NewPipeline([]Stage{{Name: types.StrategyName("pdf2json"), Timeout: time.Second, New: factory}})
	assert.ErrorIs(t, err, ErrInvalidPipeline)

	_, err = NewPipeline([]Stage{{Name: types.StrategyOCR, New: factory}})
	assert.ErrorIs(t, err, ErrInvalidPipeline, "缺少超时")

	_, err = NewPipeline([]Stage{{Name: types.StrategyOCR, Timeout: time.Second}})
	assert.ErrorIs(t, err, ErrInvalidPipeline, "缺少工厂")

	p, err := NewPipeline(nil)
	require.NoError(t, err)
	res := p.Extract(context.Background(), pdfDoc("%PDF"))
	assert.Equal(t, types.StrategyNone, res.Method, "没有任何阶段时method为none")
}

func TestStrategyErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := newExtractError(types.StrategyOCR, cause)
	assert.ErrorIs(t, err, ErrStrategyFailed)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "ocr")

	assert.ErrorIs(t, newTimeoutError(types.StrategyOCR, context.DeadlineExceeded), ErrStrategyTimeout)
	assert.ErrorIs(t, newPanicError(types.StrategyOCR, "bad"), ErrStrategyPanic)
}

func TestCountNonWhitespace(t *testing.T) {
	assert.Equal(t, 0, CountNonWhitespace(" \n\t\r "))
	assert.Equal(t, 6, CountNonWhitespace(" ab c\nd e f "))
	assert.Equal(t, 2, CountNonWhitespace("简历"))
}

func TestBuildStages(t *testing.T) {
	discard := func(prefix string) *log.Logger { return log.New(io.Discard, prefix, 0) }

	cfg := config.DefaultConfig()
	stages := BuildStages(cfg, discard)
	require.Len(t, stages, 2, "未配置Tika时不包含OCR")
	assert.Equal(t, types.StrategyLayoutParser, stages[0].Name)
	assert.Equal(t, 4*time.Second, stages[0].Timeout)
	assert.Equal(t, types.StrategyGenericParser, stages[1].Name)
	assert.Equal(t, 6*time.Second, stages[1].Timeout)

	cfg.Tika.ServerURL = "http://localhost:9998"
	stages = BuildStages(cfg, discard)
	require.Len(t, stages, 3)
	assert.Equal(t, types.StrategyOCR, stages[2].Name)
	assert.Equal(t, 15*time.Second, stages[2].Timeout)
	assert.Equal(t, 3*1024*1024, stages[2].MaxBytes)

	ocr, err := stages[2].New(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.StrategyOCR, ocr.Name())
	assert.NoError(t, ocr.Close())

	p, err := BuildPipeline(cfg, discard)
	require.NoError(t, err)
	assert.Equal(t, types.PDFStrategies(), p.Stages())
}
