// MockProvider 的 LLM 提供商测试模拟实现。
//
// 每次 Stream 调用按顺序消费一个脚本步骤，支持文本、工具调用、
// 中途出错与打开失败等场景；Completion 支持固定响应与错误注入。
package mocks

import (
	"context"
	"errors"
	"sync"

	"github.com/BaSui01/agentrelay/llm"
	"github.com/BaSui01/agentrelay/types"
)

// ErrScriptExhausted is returned by Stream when no scripted step is left.
var ErrScriptExhausted = errors.New("mock provider: no scripted stream step left")

// StreamStep 描述一次 Stream 调用的行为
type StreamStep struct {
	// Events are delivered in order, then the channel is closed.
	Events []llm.StreamEvent
	// OpenErr, when set, is returned by Stream itself.
	OpenErr error
}

// TextStep streams chunks as text deltas and finishes with "stop".
func TextStep(chunks ...string) StreamStep {
	events := make([]llm.StreamEvent, 0, len(chunks)+1)
	for _, c := range chunks {
		events = append(events, llm.StreamEvent{Type: llm.EventTextDelta, Text: c})
	}
	events = append(events, llm.StreamEvent{Type: llm.EventFinish, FinishReason: llm.FinishStop})
	return StreamStep{Events: events}
}

// ToolCallStep streams optional text followed by tool calls and finishes
// with "tool-calls".
func ToolCallStep(text string, calls ...types.ToolCall) StreamStep {
	var events []llm.StreamEvent
	if text != "" {
		events = append(events, llm.StreamEvent{Type: llm.EventTextDelta, Text: text})
	}
	for i := range calls {
		call := calls[i]
		events = append(events, llm.StreamEvent{Type: llm.EventToolCall, ToolCall: &call})
	}
	events = append(events, llm.StreamEvent{Type: llm.EventFinish, FinishReason: llm.FinishToolCalls})
	return StreamStep{Events: events}
}

// ErrorStep streams chunks as text deltas and then fails with err.
func ErrorStep(err error, chunks ...string) StreamStep {
	events := make([]llm.StreamEvent, 0, len(chunks)+1)
	for _, c := range chunks {
		events = append(events, llm.StreamEvent{Type: llm.EventTextDelta, Text: c})
	}
	events = append(events, llm.StreamEvent{Type: llm.EventError, Err: err})
	return StreamStep{Events: events}
}

// MockProvider 是 LLM Provider 的模拟实现
type MockProvider struct {
	mu sync.Mutex

	steps []StreamStep

	completion     string
	completionErr  error
	completionFunc func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)

	streamRequests     []llm.ChatRequest
	completionRequests []llm.ChatRequest
}

// NewMockProvider 创建新的 MockProvider
func NewMockProvider() *MockProvider {
	return &MockProvider{completion: "Mock summary"}
}

// WithStreamSteps 追加 Stream 调用脚本
func (m *MockProvider) WithStreamSteps(steps ...StreamStep) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, steps...)
	return m
}

// WithCompletion 设置 Completion 的固定响应内容
func (m *MockProvider) WithCompletion(text string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completion = text
	return m
}

// WithCompletionError 设置 Completion 返回的错误
func (m *MockProvider) WithCompletionError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completionErr = err
	return m
}

// WithCompletionFunc 设置自定义 Completion 函数
func (m *MockProvider) WithCompletionFunc(fn func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completionFunc = fn
	return m
}

// Name 返回 Provider 名称
func (m *MockProvider) Name() string { return "mock" }

// HealthCheck 执行健康检查
func (m *MockProvider) HealthCheck(context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true}, nil
}

// Completion 返回固定响应或注入的错误
func (m *MockProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	m.mu.Lock()
	m.completionRequests = append(m.completionRequests, copyRequest(req))
	fn, text, err := m.completionFunc, m.completion, m.completionErr
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	return &llm.ChatResponse{
		Provider: "mock",
		Model:    req.Model,
		Choices: []llm.ChatChoice{{
			FinishReason: llm.FinishStop,
			Message:      types.NewAssistantMessage(text),
		}},
	}, nil
}

// Stream 消费下一个脚本步骤
func (m *MockProvider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamEvent, error) {
	m.mu.Lock()
	m.streamRequests = append(m.streamRequests, copyRequest(req))
	if len(m.steps) == 0 {
		m.mu.Unlock()
		return nil, ErrScriptExhausted
	}
	step := m.steps[0]
	m.steps = m.steps[1:]
	m.mu.Unlock()

	if step.OpenErr != nil {
		return nil, step.OpenErr
	}

	ch := make(chan llm.StreamEvent)
	go func() {
		defer close(ch)
		for _, ev := range step.Events {
			select {
			case <-ctx.Done():
				return
			case ch <- ev:
			}
		}
	}()
	return ch, nil
}

// StreamRequests 返回 Stream 收到的请求副本
func (m *MockProvider) StreamRequests() []llm.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]llm.ChatRequest(nil), m.streamRequests...)
}

// CompletionRequests 返回 Completion 收到的请求副本
func (m *MockProvider) CompletionRequests() []llm.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]llm.ChatRequest(nil), m.completionRequests...)
}

// RemainingSteps 返回尚未消费的脚本步骤数
func (m *MockProvider) RemainingSteps() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.steps)
}

func copyRequest(req *llm.ChatRequest) llm.ChatRequest {
	if req == nil {
		return llm.ChatRequest{}
	}
	cp := *req
	cp.Messages = append([]types.Message(nil), req.Messages...)
	cp.Tools = append([]types.ToolSchema(nil), req.Tools...)
	return cp
}
