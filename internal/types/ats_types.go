package types

import (
	"fmt"
	"mime"
	"strings"
)

// StrategyName 表示产出文本的提取策略
type StrategyName string

const (
	// StrategyNone 没有任何策略被执行
	StrategyNone StrategyName = "none"
	// StrategyPlainText 纯文本直接解码，不进入级联
	StrategyPlainText StrategyName = "plain-text"
	// StrategyLayoutParser 基于PDF内部文本流/页面结构的快速解析
	StrategyLayoutParser StrategyName = "layout-parser"
	// StrategyGenericParser 更宽容的整文档解析
	StrategyGenericParser StrategyName = "generic-parser"
	// StrategyOCR 光学字符识别，最慢
	StrategyOCR StrategyName = "ocr"
)

// Cost 返回策略的相对成本，级联按成本递增排列
func (s StrategyName) Cost() int {
	switch s {
	case StrategyNone:
		return 0
	case StrategyPlainText:
		return 1
	case StrategyLayoutParser:
		return 2
	case StrategyGenericParser:
		return 3
	case StrategyOCR:
		return 4
	default:
		return -1
	}
}

// PDFStrategies PDF级联中可用的策略，按成本递增
func PDFStrategies() []StrategyName {
	return []StrategyName{StrategyLayoutParser, StrategyGenericParser, StrategyOCR}
}

const (
	// MediaTypePDF PDF文件
	MediaTypePDF = "application/pdf"
	// MediaTypePlainText 纯文本文件
	MediaTypePlainText = "text/plain"
)

// UploadedDocument 一次提取请求中的上传文件，只读
type UploadedDocument struct {
	Data      []byte
	MediaType string
	Filename  string
}

// BaseMediaType 去掉参数后的小写媒体类型，例如 "text/plain; charset=utf-8" -> "text/plain"
func (d UploadedDocument) BaseMediaType() string {
	if d.MediaType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(d.MediaType)
	if err != nil {
		base, _, _ := strings.Cut(d.MediaType, ";")
		return strings.ToLower(strings.TrimSpace(base))
	}
	return mt
}

// ExtractionResult 提取管线的输出，Text 可以为空
type ExtractionResult struct {
	Text           string       `json:"text"`
	Method         StrategyName `json:"method"`
	CharacterCount int          `json:"characterCount"`
}

// MatchResult 简历与JD的匹配指标
type MatchResult struct {
	KeywordScore  float64  `json:"keywordScore"`
	SkillScore    float64  `json:"skillScore"`
	CombinedScore int      `json:"combinedScore"`
	MissingSkills []string `json:"missingSkills"`
}

func (m MatchResult) String() string {
	return fmt.Sprintf("combined=%d keyword=%.1f skill=%.1f missing=%d",
		m.CombinedScore, m.KeywordScore, m.SkillScore, len(m.MissingSkills))
}
