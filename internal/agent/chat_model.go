package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"hirebyte-ats/internal/tracing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const (
	// Groq 的 OpenAI 兼容接口
	defaultAPIURL    = "https://api.groq.com/openai/v1/chat/completions"
	defaultModelName = "llama-3.3-70b-versatile"
	defaultTimeout   = 30 * time.Second
)

// ErrEmptyChoices 接口返回了200但没有任何候选回复
var ErrEmptyChoices = errors.New("LLM返回的choices为空")

// APIError 非200响应
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("LLM API 请求失败，状态 %d: %s", e.StatusCode, tracing.TruncateString(e.Body, 300))
}

// Retryable 429 和 5xx 可以重试
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// --- OpenAI 兼容的请求/响应结构 ---

type openAIFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type openAITool struct {
	Type     string         `json:"type"` // 固定为 "function"
	Function openAIFunction `json:"function"`
}

type openAIToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type openAIMessage struct {
	Role       string           `json:"role"`
	Content    *string          `json:"content"`
	Name       string           `json:"name,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
}

type chatCompletionRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature *float32        `json:"temperature,omitempty"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
	TopP        *float32        `json:"top_p,omitempty"`
	Stop        []string        `json:"stop,omitempty"`
	Tools       []openAITool    `json:"tools,omitempty"`
}

type chatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int           `json:"index"`
		Message      openAIMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage,omitempty"`
}

// OpenAIChatModel 通过 OpenAI 兼容的 chat/completions 接口调用大模型（默认Groq），
// 实现 model.ToolCallingChatModel。
type OpenAIChatModel struct {
	apiKey      string
	modelName   string
	apiURL      string
	temperature *float32
	maxTokens   *int
	httpClient  *http.Client
	logger      *log.Logger
	tools       []openAITool
}

// ChatModelOption 模型配置选项
type ChatModelOption func(*OpenAIChatModel)

// WithAPIURL 设置接口地址
func WithAPIURL(url string) ChatModelOption {
	return func(m *OpenAIChatModel) {
		if strings.TrimSpace(url) != "" {
			m.apiURL = url
		}
	}
}

// WithModelName 设置模型名称
func WithModelName(name string) ChatModelOption {
	return func(m *OpenAIChatModel) {
		if strings.TrimSpace(name) != "" {
			m.modelName = name
		}
	}
}

// WithDefaultTemperature 调用未指定温度时使用的值
func WithDefaultTemperature(t float32) ChatModelOption {
	return func(m *OpenAIChatModel) {
		m.temperature = &t
	}
}

// WithDefaultMaxTokens 调用未指定max_tokens时使用的值
func WithDefaultMaxTokens(n int) ChatModelOption {
	return func(m *OpenAIChatModel) {
		if n > 0 {
			m.maxTokens = &n
		}
	}
}

// WithRequestTimeout 设置单次HTTP请求超时
func WithRequestTimeout(d time.Duration) ChatModelOption {
	return func(m *OpenAIChatModel) {
		if d > 0 {
			m.httpClient = &http.Client{Timeout: d}
		}
	}
}

// WithHTTPClient 使用自定义HTTP客户端
func WithHTTPClient(c *http.Client) ChatModelOption {
	return func(m *OpenAIChatModel) {
		if c != nil {
			m.httpClient = c
		}
	}
}

// WithChatLogger 设置日志记录器
func WithChatLogger(l *log.Logger) ChatModelOption {
	return func(m *OpenAIChatModel) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewOpenAIChatModel 创建对话模型，apiKey 不能为空
func NewOpenAIChatModel(apiKey string, options ...ChatModelOption) (*OpenAIChatModel, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("API 密钥不能为空")
	}

	m := &OpenAIChatModel{
		apiKey:     apiKey,
		modelName:  defaultModelName,
		apiURL:     defaultAPIURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     log.Default(),
	}
	for _, option := range options {
		option(m)
	}

	m.logger.Printf("使用 OpenAI 兼容 LLM 客户端，API URL: %s, 模型: %s", m.apiURL, m.modelName)
	return m, nil
}

// ModelName 当前使用的模型名称
func (m *OpenAIChatModel) ModelName() string {
	return m.modelName
}

// Generate 实现 model.BaseChatModel
func (m *OpenAIChatModel) Generate(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	ctx, span := otel.Tracer("hirebyte-ats/agent").Start(ctx, "llm.generate")
	defer span.End()

	common := model.GetCommonOptions(&model.Options{
		Model:       &m.modelName,
		Temperature: m.temperature,
		MaxTokens:   m.maxTokens,
	}, opts...)

	modelName := m.modelName
	if common.Model != nil && *common.Model != "" {
		modelName = *common.Model
	}
	span.SetAttributes(
		attribute.String("llm.model", modelName),
		attribute.Int("llm.messages", len(messages)),
	)

	payload := chatCompletionRequest{
		Model:       modelName,
		Messages:    toOpenAIMessages(messages),
		Temperature: common.Temperature,
		MaxTokens:   common.MaxTokens,
		TopP:        common.TopP,
		Stop:        common.Stop,
		Tools:       m.tools,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("序列化请求体失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("创建 HTTP 请求失败: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+m.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	httpResp, err := m.httpClient.Do(httpReq)
	if err != nil {
		err = fmt.Errorf("发送 HTTP 请求失败: %w", err)
		tracing.RecordError(span, err, tracing.ErrorTypeLLM)
		return nil, err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		err = fmt.Errorf("读取响应体失败: %w", err)
		tracing.RecordError(span, err, tracing.ErrorTypeLLM)
		return nil, err
	}
	m.logger.Printf("LLM 响应: status=%d, bytes=%d, 耗时=%s", httpResp.StatusCode, len(respBody), time.Since(start))

	if httpResp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: httpResp.StatusCode, Body: string(respBody)}
		tracing.RecordHTTPError(span, apiErr, httpResp.StatusCode)
		return nil, apiErr
	}

	var completion chatCompletionResponse
	if err := json.Unmarshal(respBody, &completion); err != nil {
		err = fmt.Errorf("反序列化 API 响应失败: %w", err)
		tracing.RecordError(span, err, tracing.ErrorTypeLLM)
		return nil, err
	}
	if len(completion.Choices) == 0 {
		tracing.RecordError(span, ErrEmptyChoices, tracing.ErrorTypeLLM)
		return nil, ErrEmptyChoices
	}

	msg := fromOpenAIMessage(completion.Choices[0].Message)
	msg.ResponseMeta = &schema.ResponseMeta{FinishReason: completion.Choices[0].FinishReason}
	if completion.Usage != nil {
		msg.ResponseMeta.Usage = &schema.TokenUsage{
			PromptTokens:     completion.Usage.PromptTokens,
			CompletionTokens: completion.Usage.CompletionTokens,
			TotalTokens:      completion.Usage.TotalTokens,
		}
		span.SetAttributes(attribute.Int("llm.total_tokens", completion.Usage.TotalTokens))
	}
	return msg, nil
}

// Stream 接口不支持SSE时的简化实现：一次性生成后包装为单元素流
func (m *OpenAIChatModel) Stream(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, messages, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// WithTools 返回绑定了工具的新实例，原实例不变
func (m *OpenAIChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	bound := make([]openAITool, 0, len(tools))
	for _, info := range tools {
		if info == nil {
			continue
		}
		fn := openAIFunction{Name: info.Name, Description: info.Desc}
		if info.ParamsOneOf != nil {
			s, err := info.ParamsOneOf.ToOpenAPIV3()
			if err != nil {
				return nil, fmt.Errorf("转换工具 %s 的参数schema失败: %w", info.Name, err)
			}
			if s != nil {
				raw, err := json.Marshal(s)
				if err != nil {
					return nil, fmt.Errorf("序列化工具 %s 的参数schema失败: %w", info.Name, err)
				}
				fn.Parameters = raw
			}
		}
		if fn.Parameters == nil {
			fn.Parameters = json.RawMessage(`{"type":"object","properties":{}}`)
		}
		bound = append(bound, openAITool{Type: "function", Function: fn})
	}

	clone := *m
	clone.tools = bound
	return &clone, nil
}

var _ model.ToolCallingChatModel = (*OpenAIChatModel)(nil)

func toOpenAIMessages(messages []*schema.Message) []openAIMessage {
	out := make([]openAIMessage, 0, len(messages))
	for _, msg := range messages {
		if msg == nil {
			continue
		}
		content := msg.Content
		om := openAIMessage{
			Role:       string(msg.Role),
			Content:    &content,
			Name:       msg.Name,
			ToolCallID: msg.ToolCallID,
		}
		for _, tc := range msg.ToolCalls {
			call := openAIToolCall{ID: tc.ID, Type: "function"}
			call.Function.Name = tc.Function.Name
			call.Function.Arguments = tc.Function.Arguments
			om.ToolCalls = append(om.ToolCalls, call)
		}
		out = append(out, om)
	}
	return out
}

func fromOpenAIMessage(om openAIMessage) *schema.Message {
	msg := &schema.Message{Role: schema.RoleType(om.Role)}
	if om.Content != nil {
		msg.Content = *om.Content
	}
	if msg.Role == "" {
		msg.Role = schema.Assistant
	}
	for _, tc := range om.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, schema.ToolCall{
			ID: tc.ID,
			Function: schema.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	return msg
}
