package parser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"hirebyte-ats/internal/agent"
	"hirebyte-ats/internal/config"
	"hirebyte-ats/internal/constants"
	"hirebyte-ats/internal/matcher"
	"hirebyte-ats/internal/tracing"
	"hirebyte-ats/pkg/ratelimit"

	"github.com/cloudwego/eino/components/model"
	einoschema "github.com/cloudwego/eino/schema"
	"github.com/xeipuuv/gojsonschema"
)

var (
	// ErrFeedbackUnconfigured 未配置LLM API Key
	ErrFeedbackUnconfigured = errors.New("LLM 反馈未配置")
	// ErrNoText LLM返回了空内容
	ErrNoText = errors.New("LLM 返回了空内容")
	// ErrInvalidReply LLM返回的JSON不符合约定结构
	ErrInvalidReply = errors.New("LLM 返回的反馈结构无效")
)

const (
	feedbackSystemPrompt = "You are an expert ATS specialist providing detailed resume feedback."

	// NoFeedbackText LLM返回空内容时使用的反馈
	NoFeedbackText = "Unable to generate detailed feedback."

	noneIdentified = "None identified"
)

// FeedbackRequest 生成反馈所需的输入
type FeedbackRequest struct {
	ResumeText     string
	JobDescription string
	Analysis       matcher.Analysis
}

// FeedbackProvider 根据匹配结果生成可读的改进建议
type FeedbackProvider interface {
	GenerateFeedback(ctx context.Context, req FeedbackRequest) (string, error)
	Configured() bool
}

// UnconfiguredFeedback 未配置LLM时使用，总是返回 ErrFeedbackUnconfigured
type UnconfiguredFeedback struct{}

// GenerateFeedback 总是返回 ErrFeedbackUnconfigured
func (UnconfiguredFeedback) GenerateFeedback(context.Context, FeedbackRequest) (string, error) {
	return "", ErrFeedbackUnconfigured
}

// Configured 总是 false
func (UnconfiguredFeedback) Configured() bool { return false }

// ATSFeedback LLM按约定返回的结构化反馈
type ATSFeedback struct {
	Strengths    []string `json:"strengths"`
	Weaknesses   []string `json:"weaknesses"`
	Improvements []string `json:"improvements"`
	Remove       []string `json:"remove"`
	ATSTips      []string `json:"atsTips"`
	KeywordGaps  []string `json:"keywordGaps"`
}

const atsFeedbackSchema = `{
  "type": "object",
  "properties": {
    "strengths":    {"type": "array", "items": {"type": "string"}},
    "weaknesses":   {"type": "array", "items": {"type": "string"}},
    "improvements": {"type": "array", "items": {"type": "string"}},
    "remove":       {"type": "array", "items": {"type": "string"}},
    "atsTips":      {"type": "array", "items": {"type": "string"}},
    "keywordGaps":  {"type": "array", "items": {"type": "string"}}
  }
}`

var atsFeedbackSchemaLoader = gojsonschema.NewStringLoader(atsFeedbackSchema)

// LLMFeedbackEvaluator 调用大模型生成ATS反馈
type LLMFeedbackEvaluator struct {
	llmModel       model.ToolCallingChatModel
	temperature    *float32
	maxTokens      *int
	logger         *log.Logger
}

// LLMFeedbackEvaluatorOption 评估器配置选项
type LLMFeedbackEvaluatorOption func(*LLMFeedbackEvaluator)

// WithFeedbackLogger 设置日志记录器
func WithFeedbackLogger(l *log.Logger) LLMFeedbackEvaluatorOption {
	return func(e *LLMFeedbackEvaluator) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithGenerationParams 设置温度与最大token数
func WithGenerationParams(temperature float32, maxTokens int) LLMFeedbackEvaluatorOption {
	return func(e *LLMFeedbackEvaluator) {
		e.temperature = &temperature
		if maxTokens > 0 {
			e.maxTokens = &maxTokens
		}
	}
}

// NewLLMFeedbackEvaluator 创建评估器
func NewLLMFeedbackEvaluator(llmModel model.ToolCallingChatModel, options ...LLMFeedbackEvaluatorOption) *LLMFeedbackEvaluator {
	e := &LLMFeedbackEvaluator{
		llmModel:       llmModel,
		logger:         log.New(io.Discard, "", 0),
	}
	for _, opt := range options {
		opt(e)
	}
	return e
}

// NewFeedbackProvider 按配置构建反馈生成器。未配置API Key时返回 UnconfiguredFeedback。
func NewFeedbackProvider(cfg config.LLMConfig, logger *log.Logger) (FeedbackProvider, error) {
	if !cfg.Configured() {
		return UnconfiguredFeedback{}, nil
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	chatModel, err := agent.NewOpenAIChatModel(cfg.APIKey,
		agent.WithAPIURL(cfg.APIURL),
		agent.WithModelName(cfg.Model),
		agent.WithRequestTimeout(config.GetDuration(cfg.RequestTimeout, 30*time.Second)),
		agent.WithChatLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("创建LLM客户端失败: %w", err)
	}

	limited := ratelimit.NewLLMWithRateLimit(chatModel, cfg.QPM, cfg.MaxRetries,
		time.Duration(cfg.RetryWaitSeconds)*time.Second)

	return NewLLMFeedbackEvaluator(limited,
		WithGenerationParams(float32(cfg.Temperature), cfg.MaxTokens),
		WithFeedbackLogger(logger),
	), nil
}

// Configured 总是 true
func (e *LLMFeedbackEvaluator) Configured() bool { return true }

// GenerateFeedback 调用LLM并把结构化回复渲染为分节文本。
// 回复不是JSON对象时按纯文本原样返回。
func (e *LLMFeedbackEvaluator) GenerateFeedback(ctx context.Context, req FeedbackRequest) (string, error) {
	if e.llmModel == nil {
		return "", fmt.Errorf("LLMFeedbackEvaluator: llmModel is not initialized")
	}

	messages := []*einoschema.Message{
		einoschema.SystemMessage(feedbackSystemPrompt),
		einoschema.UserMessage(e.BuildPrompt(req)),
	}

	var opts []model.Option
	if e.temperature != nil {
		opts = append(opts, model.WithTemperature(*e.temperature))
	}
	if e.maxTokens != nil {
		opts = append(opts, model.WithMaxTokens(*e.maxTokens))
	}

	e.logger.Printf("[ATSFeedback] 请求LLM反馈, score=%d, resume=%q",
		req.Analysis.Result.CombinedScore, tracing.SafeResumeContent(req.ResumeText))

	start := time.Now()
	response, err := e.llmModel.Generate(ctx, messages, opts...)
	if err != nil {
		e.logger.Printf("[ATSFeedback] LLM调用失败: %v", err)
		return "", fmt.Errorf("LLMFeedbackEvaluator: LLM call failed: %w", err)
	}
	e.logger.Printf("[ATSFeedback] LLM返回, 耗时=%s", time.Since(start))

	if response == nil {
		return "", ErrNoText
	}
	return DecodeFeedbackReply(response.Content)
}

// BuildPrompt 生成用户提示词。简历与JD各截取前3000个字符，缺失技能最多列8个。
func (e *LLMFeedbackEvaluator) BuildPrompt(req FeedbackRequest) string {
	r := req.Analysis.Result
	return fmt.Sprintf(defaultFeedbackPrompt,
		truncateRunes(req.ResumeText, constants.MaxPromptTextChars),
		truncateRunes(req.JobDescription, constants.MaxPromptTextChars),
		r.CombinedScore,
		FormatPercent(r.KeywordScore),
		FormatPercent(r.SkillScore),
		joinOrNone(matcher.Cap(req.Analysis.AllMissing, constants.MaxMissingSkillsInPrompt)),
	)
}

// DecodeFeedbackReply 解析LLM回复：去掉BOM和代码块围栏。
// 以 { 开头的回复必须是符合schema的反馈对象，否则返回 ErrInvalidReply；缺失的分节视为空。
// 其余按纯文本返回。
func DecodeFeedbackReply(content string) (string, error) {
	content = strings.TrimSpace(strings.TrimPrefix(content, "\uFEFF"))
	if content == "" {
		return "", ErrNoText
	}

	body := stripCodeFence(content)
	if !strings.HasPrefix(body, "{") {
		return body, nil
	}
	jsonStr := extractJSONObject(body)
	if jsonStr == "" {
		return "", fmt.Errorf("%w: JSON对象不完整", ErrInvalidReply)
	}
	if !utf8.ValidString(jsonStr) {
		jsonStr = strings.ToValidUTF8(jsonStr, "")
	}

	fb, err := validateFeedbackJSON(jsonStr)
	if err != nil {
		fixed := sanitizeJSON(jsonStr)
		var fixErr error
		if fb, fixErr = validateFeedbackJSON(fixed); fixErr != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidReply, err)
		}
	}

	text := fb.Render()
	if text == "" {
		return "", fmt.Errorf("%w: 所有分节都为空", ErrInvalidReply)
	}
	return text, nil
}

func validateFeedbackJSON(jsonStr string) (*ATSFeedback, error) {
	result, err := gojsonschema.Validate(atsFeedbackSchemaLoader, gojsonschema.NewStringLoader(jsonStr))
	if err != nil {
		return nil, err
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return nil, errors.New(strings.Join(msgs, "; "))
	}

	var fb ATSFeedback
	if err := json.Unmarshal([]byte(jsonStr), &fb); err != nil {
		return nil, err
	}
	return &fb, nil
}

// Render 渲染为分节的纯文本反馈，空的分节省略
func (f *ATSFeedback) Render() string {
	sections := []struct {
		title string
		items []string
	}{
		{"✅ STRENGTHS", f.Strengths},
		{"⚠️ WEAKNESSES", f.Weaknesses},
		{"💡 WHAT NEEDS IMPROVEMENT", f.Improvements},
		{"🗑️ WHAT TO REMOVE", f.Remove},
		{"🎯 ATS OPTIMIZATION TIPS", f.ATSTips},
		{"📊 KEYWORD GAPS", f.KeywordGaps},
	}

	var blocks []string
	for _, s := range sections {
		var sb strings.Builder
		for _, item := range s.items {
			item = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(item), "•-* "))
			if item == "" {
				continue
			}
			sb.WriteString("\n• ")
			sb.WriteString(item)
		}
		if sb.Len() == 0 {
			continue
		}
		blocks = append(blocks, s.title+":"+sb.String())
	}
	return strings.Join(blocks, "\n\n")
}

// FallbackFeedback LLM不可用时基于确定性指标生成的模板反馈。
// cause 为 ErrFeedbackUnconfigured 时提示配置API Key，其他情况提示调用失败。
func FallbackFeedback(analysis matcher.Analysis, cause error) string {
	r := analysis.Result
	notice := "LLM API error. Please check your API key."
	if errors.Is(cause, ErrFeedbackUnconfigured) {
		notice = "LLM API key is not configured. Please add GROQ_API_KEY to your .env.local file."
	}

	return fmt.Sprintf(`
CALCULATED SCORES:
- Overall Match: %d/100
- Keyword Match: %s%%
- Skill Match: %s%%

MISSING SKILLS: %s

%s`,
		r.CombinedScore,
		FormatPercent(r.KeywordScore),
		FormatPercent(r.SkillScore),
		joinOrNone(matcher.Cap(analysis.AllMissing, constants.MaxMissingSkillsInFallback)),
		notice,
	)
}

// FormatPercent 保留一位小数，.x5 向上进位
func FormatPercent(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "0.0"
	}
	return fmt.Sprintf("%.1f", math.Floor(v*10+0.5)/10)
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return noneIdentified
	}
	return strings.Join(items, ", ")
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// stripCodeFence 去掉 ```json ... ``` 围栏
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}

// extractJSONObject 提取第一个配平的JSON对象，忽略字符串字面量中的花括号
func extractJSONObject(text string) string {
	start := strings.Index(text, "{")
	if start == -1 {
		return ""
	}
	level := 0
	inStr, escaped := false, false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inStr {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{':
			level++
		case '}':
			level--
			if level == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

// sanitizeJSON 把字符串字面量内部未转义的双引号改写为 \"。
// 一个 " 后面的第一个非空白字符是 : , ] } 之一时才视为字符串结束。
func sanitizeJSON(src string) string {
	var b strings.Builder
	inStr := false
	escaped := false

	for i := 0; i < len(src); i++ {
		c := src[i]

		switch {
		case c == '"' && !escaped:
			if !inStr {
				inStr = true
				b.WriteByte(c)
				break
			}
			j := i + 1
			for j < len(src) && (src[j] == ' ' || src[j] == '\t' || src[j] == '\n' || src[j] == '\r') {
				j++
			}
			if j < len(src) && (src[j] == ':' || src[j] == ',' || src[j] == ']' || src[j] == '}') {
				inStr = false
				b.WriteByte(c)
			} else {
				b.WriteString("\\\"")
			}
			escaped = false
		case c == '\\' && !escaped:
			escaped = true
			b.WriteByte(c)
		default:
			b.WriteByte(c)
			escaped = false
		}
	}

	return b.String()
}

const defaultFeedbackPrompt = `You are a senior ATS expert and resume consultant with 15+ years of experience. Analyze this resume against the job description and provide detailed, actionable feedback.

=== RESUME ===
%s

=== JOB DESCRIPTION ===
%s

=== ANALYSIS METRICS ===
• Overall ATS Match: %d/100
• Keyword Match: %s%%
• Skill Match: %s%%
• Missing Skills: %s

=== YOUR TASK ===
Respond with a single JSON object and nothing else. Every value is an array of strings:

{
  "strengths":    ["3-5 specific strengths with evidence from the resume"],
  "weaknesses":   ["3-5 specific weaknesses, missing qualifications or gaps and why they matter"],
  "improvements": ["5-7 actionable changes: before/after examples, keywords to add and where, sections to restructure, metrics to quantify"],
  "remove":       ["2-4 items that weaken the resume: irrelevant, outdated, redundant or generic content"],
  "atsTips":      ["3-4 technical fixes for ATS parsing: formatting, keyword placement, section organization"],
  "keywordGaps":  ["5-8 critical missing keywords, each as \"keyword - where to add it\""]
}

Be specific, direct, and actionable. Use examples from the resume where possible. Escape any double quote inside a string as \".`
