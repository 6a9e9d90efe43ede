package api

import (
	"encoding/json"
	"time"
)

// =============================================================================
// WebSocket 对话协议
// =============================================================================

// ClientMessageType 标识客户端消息类型。
type ClientMessageType string

const (
	// ClientMessageChat 发起一个新回合
	ClientMessageChat ClientMessageType = "message"
	// ClientMessageReset 清空本连接的对话历史
	ClientMessageReset ClientMessageType = "reset"
)

// ClientMessage 是客户端发送的一帧。Type 为空时视为 "message"。
type ClientMessage struct {
	Type    ClientMessageType `json:"type,omitempty"`
	Message string            `json:"message,omitempty"`
}

// EventType 标识服务端事件类型。
type EventType string

const (
	EventToken         EventType = "token"
	EventToolCallStart EventType = "tool_call_start"
	EventToolCallEnd   EventType = "tool_call_end"
	EventTokenUsage    EventType = "token_usage"
	EventComplete      EventType = "complete"
	EventError         EventType = "error"
	EventReset         EventType = "reset"
)

// ServerEvent 是服务端推送的一帧，按 Type 只填充相应字段。
type ServerEvent struct {
	Type      EventType       `json:"type"`
	Content   string          `json:"content,omitempty"`
	ToolName  string          `json:"tool_name,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Result    string          `json:"result,omitempty"`
	Usage     *Usage          `json:"usage,omitempty"`
	Error     *Error          `json:"error,omitempty"`
}

// Usage 是一次上下文用量快照。
type Usage struct {
	InputTokens     int     `json:"input_tokens"`
	OutputTokens    int     `json:"output_tokens"`
	TotalTokens     int     `json:"total_tokens"`
	ContextWindow   int     `json:"context_window"`
	AvailableWindow int     `json:"available_window"`
	Threshold       float64 `json:"threshold"`
	Percentage      float64 `json:"percentage"`
}

// Error 是推送给客户端的错误。
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// =============================================================================
// 智能体信息
// =============================================================================

// AgentInfo 描述服务中的编排智能体。
type AgentInfo struct {
	Name            string     `json:"name"`
	Model           string     `json:"model"`
	SummaryModel    string     `json:"summary_model"`
	MaxSteps        int        `json:"max_steps"`
	Threshold       float64    `json:"threshold"`
	ContextWindow   int        `json:"context_window"`
	AvailableWindow int        `json:"available_window"`
	Tools           []ToolInfo `json:"tools"`
	StartedAt       time.Time  `json:"started_at"`
}

// ToolInfo 描述一个模型可调用的工具。
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}
