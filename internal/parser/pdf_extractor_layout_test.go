package parser

import (
	"context"
	"strings"
	"testing"
	"time"

	"hirebyte-ats/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayoutExtractorReadsPages(t *testing.T) {
	extractor := NewLayoutPDFExtractor()
	assert.Equal(t, types.StrategyLayoutParser, extractor.Name())

	data := buildTextPDF("Hello ATS", "Second page")
	text, err := extractor.Extract(context.Background(), data)
	require.NoError(t, err)

	assert.Contains(t, text, "Hello ATS")
	assert.Contains(t, text, "Second page")
	assert.Less(t, strings.Index(text, "Hello ATS"), strings.Index(text, "Second page"), "页面顺序应保持")
	assert.GreaterOrEqual(t, strings.Count(text, "\n"), 2, "页与页之间应有换行")
	assert.NoError(t, extractor.Close())
}

func TestLayoutExtractorBlankPDF(t *testing.T) {
	extractor := NewLayoutPDFExtractor()
	text, err := extractor.Extract(context.Background(), buildTextPDF(""))
	require.NoError(t, err)
	assert.Empty(t, strings.TrimSpace(text), "空白页不应产出文本")
}

func TestLayoutExtractorRejectsGarbage(t *testing.T) {
	extractor := NewLayoutPDFExtractor()
	_, err := extractor.Extract(context.Background(), []byte("definitely not a pdf"))
	assert.Error(t, err)
}

func TestLayoutExtractorStopsOnCancelledContext(t *testing.T) {
	extractor := NewLayoutPDFExtractor()
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	_, err := extractor.Extract(ctx, buildTextPDF("Hello ATS"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEinoExtractorReadsDocument(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	extractor, err := NewEinoPDFTextExtractor(ctx, WithEinoURI("resume.pdf"))
	require.NoError(t, err, "创建PDF提取器不应返回错误")
	require.NotNil(t, extractor.parser)
	assert.Equal(t, types.StrategyGenericParser, extractor.Name())
	assert.Equal(t, "resume.pdf", extractor.uri)

	text, err := extractor.Extract(ctx, buildTextPDF("Generic parser text"))
	require.NoError(t, err)
	assert.Contains(t, text, "Generic parser text")
	assert.NoError(t, extractor.Close())
}

func TestEinoExtractorRejectsGarbage(t *testing.T) {
	ctx := context.Background()
	extractor, err := NewEinoPDFTextExtractor(ctx)
	require.NoError(t, err)

	_, err = extractor.Extract(ctx, []byte("definitely not a pdf"))
	assert.Error(t, err)
}
