package agent

import (
	"context"
	"encoding/json"
)

// TokenUsage is the usage snapshot reported through Callbacks.OnTokenUsage.
// Percentage is relative to AvailableWindow and clamped to [0, 1].
type TokenUsage struct {
	InputTokens     int     `json:"input_tokens"`
	OutputTokens    int     `json:"output_tokens"`
	TotalTokens     int     `json:"total_tokens"`
	ContextWindow   int     `json:"context_window"`
	AvailableWindow int     `json:"available_window"`
	Threshold       float64 `json:"threshold"`
	Percentage      float64 `json:"percentage"`
}

// ToolApprovalRequest 描述一次待审批的工具调用
type ToolApprovalRequest struct {
	ToolCallID string          `json:"tool_call_id"`
	ToolName   string          `json:"tool_name"`
	Arguments  json.RawMessage `json:"arguments"`
}

// Callbacks receives the progress of one Run. All fields are optional.
// Callbacks of one run are never invoked concurrently and are not retained
// after Run returns.
type Callbacks struct {
	// OnToken receives every text delta as it streams.
	OnToken func(token string)
	// OnToolCallStart fires once per tool call before it executes.
	OnToolCallStart func(name string, args json.RawMessage)
	// OnToolCallEnd fires once per tool call with the text sent back to the model.
	// Calls announced by a stream that then fails are never dispatched and end
	// with a "not executed" result.
	OnToolCallEnd func(name, result string)
	// OnComplete fires exactly once per Run with the final text.
	OnComplete func(text string)
	// OnToolApproval gates tools that require approval. Nil approves everything.
	OnToolApproval func(ctx context.Context, req ToolApprovalRequest) (bool, error)
	// OnTokenUsage receives usage snapshots after tool results and at the end of the turn.
	OnTokenUsage func(usage TokenUsage)
}

func (c Callbacks) token(s string) {
	if c.OnToken != nil && s != "" {
		c.OnToken(s)
	}
}

func (c Callbacks) toolCallStart(name string, args json.RawMessage) {
	if c.OnToolCallStart != nil {
		c.OnToolCallStart(name, args)
	}
}

func (c Callbacks) toolCallEnd(name, result string) {
	if c.OnToolCallEnd != nil {
		c.OnToolCallEnd(name, result)
	}
}

func (c Callbacks) complete(text string) {
	if c.OnComplete != nil {
		c.OnComplete(text)
	}
}

func (c Callbacks) approve(ctx context.Context, req ToolApprovalRequest) (bool, error) {
	if c.OnToolApproval == nil {
		return true, nil
	}
	return c.OnToolApproval(ctx, req)
}

func (c Callbacks) tokenUsage(u TokenUsage) {
	if c.OnTokenUsage != nil {
		c.OnTokenUsage(u)
	}
}
