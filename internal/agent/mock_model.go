package agent

import (
	"context"
	"errors"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ErrMockExhausted 顺序响应已用完
var ErrMockExhausted = errors.New("mock chat model has run out of responses")

// MockResponse MockChatModel 的单次预期响应
type MockResponse struct {
	Content string
	Error   error
}

// MockChatModel 用于测试的 model.ToolCallingChatModel，按顺序返回预设响应。
// 最后一个响应会在用完后继续重复，除非 Strict 为 true。
type MockChatModel struct {
	mu        sync.Mutex
	responses []MockResponse
	index     int
	calls     [][]*schema.Message
	options   []*model.Options

	Strict bool
}

// NewMockChatModel 创建按顺序返回响应的模拟模型
func NewMockChatModel(responses ...MockResponse) *MockChatModel {
	return &MockChatModel{responses: responses}
}

// Generate 返回下一个预设响应，并记录收到的消息和调用选项
func (m *MockChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, append([]*schema.Message(nil), input...))
	m.options = append(m.options, model.GetCommonOptions(&model.Options{}, opts...))

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(m.responses) == 0 {
		return nil, ErrMockExhausted
	}

	i := m.index
	if i >= len(m.responses) {
		if m.Strict {
			return nil, ErrMockExhausted
		}
		i = len(m.responses) - 1
	}
	m.index++

	resp := m.responses[i]
	if resp.Error != nil {
		return nil, resp.Error
	}
	return schema.AssistantMessage(resp.Content, nil), nil
}

// Stream 把 Generate 的结果包装为单元素流
func (m *MockChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// WithTools 模拟模型忽略工具
func (m *MockChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return m, nil
}

// Calls 调用次数
func (m *MockChatModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// LastMessages 最近一次调用收到的消息
func (m *MockChatModel) LastMessages() []*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	return m.calls[len(m.calls)-1]
}

// LastOptions 最近一次调用解析后的通用选项
func (m *MockChatModel) LastOptions() *model.Options {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.options) == 0 {
		return nil
	}
	return m.options[len(m.options)-1]
}

var _ model.ToolCallingChatModel = (*MockChatModel)(nil)
