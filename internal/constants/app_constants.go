package constants

import "time"

const (
	// 提取级联默认超时
	DefaultLayoutTimeout  = 4 * time.Second
	DefaultGenericTimeout = 6 * time.Second
	DefaultOCRTimeout     = 15 * time.Second

	// DefaultOCRMaxBytes 超过该大小的文件不做OCR
	DefaultOCRMaxBytes = 3 * 1024 * 1024

	// 综合得分权重
	KeywordWeight = 0.6
	SkillWeight   = 0.4

	// 缺失技能展示上限
	MaxMissingSkillsInBreakdown = 10
	MaxMissingSkillsInPrompt    = 8
	MaxMissingSkillsInFallback  = 5

	// MaxPromptTextChars 提示词中简历/JD各自保留的字符数
	MaxPromptTextChars = 3000

	// ServiceVersion 服务版本
	ServiceVersion = "1.0.0"
)
