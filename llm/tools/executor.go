package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/agentrelay/types"
)

// ToolFunc defines the tool function signature. The result may be a string,
// raw JSON, or any JSON-encodable value; see Stringify.
type ToolFunc func(ctx context.Context, args json.RawMessage) (any, error)

// ToolMetadata describes tool metadata.
type ToolMetadata struct {
	Schema           types.ToolSchema // Tool JSON Schema
	RateLimit        *RateLimitConfig // Rate limit config (optional)
	Timeout          time.Duration    // Execution timeout (zero means none)
	RequiresApproval bool             // Ask the user before running
}

// RateLimitConfig defines rate limit configuration.
type RateLimitConfig struct {
	MaxCalls int           // Maximum calls
	Window   time.Duration // Time window
}

// Tool is a registered tool handle.
type Tool struct {
	Func     ToolFunc
	Metadata ToolMetadata
	limiter  *rate.Limiter
}

// NewTool builds a handle outside any registry, applying the same rate
// limit a registry would.
func NewTool(fn ToolFunc, metadata ToolMetadata) Tool {
	return Tool{Func: fn, Metadata: metadata, limiter: newLimiter(metadata.RateLimit)}
}

// Name returns the tool name.
func (t Tool) Name() string { return t.Metadata.Schema.Name }

func newLimiter(cfg *RateLimitConfig) *rate.Limiter {
	if cfg == nil || cfg.MaxCalls <= 0 || cfg.Window <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(cfg.Window/time.Duration(cfg.MaxCalls)), cfg.MaxCalls)
}

// ====== Registry ======

// Registry maps tool names to handlers. Lookups never fall through to a
// different tool.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	logger *zap.Logger
}

// NewRegistry 创建工具注册中心。
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		tools:  make(map[string]Tool),
		logger: logger.With(zap.String("component", "tool_registry")),
	}
}

func (r *Registry) Register(name string, fn ToolFunc, metadata ToolMetadata) error {
	if fn == nil {
		return fmt.Errorf("tool %s has no function", name)
	}

	// 校验 Schema
	if metadata.Schema.Name == "" {
		metadata.Schema.Name = name
	}
	if metadata.Schema.Name != name {
		return fmt.Errorf("tool name mismatch: schema.Name=%s, register name=%s", metadata.Schema.Name, name)
	}
	if len(metadata.Schema.Parameters) == 0 {
		metadata.Schema.Parameters = json.RawMessage(`{"type":"object","properties":{}}`)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}
	r.tools[name] = NewTool(fn, metadata)

	r.logger.Info("tool registered", zap.String("name", name), zap.Duration("timeout", metadata.Timeout))
	return nil
}

func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; !exists {
		return fmt.Errorf("tool %s not found", name)
	}
	delete(r.tools, name)

	r.logger.Info("tool unregistered", zap.String("name", name))
	return nil
}

// Lookup returns the tool registered under exactly name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Schemas returns the schemas of all tools sorted by name.
func (r *Registry) Schemas() []types.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemas := make([]types.ToolSchema, 0, len(r.tools))
	for _, t := range r.tools {
		schemas = append(schemas, t.Metadata.Schema)
	}
	sort.Slice(schemas, func(i, j int) bool { return schemas[i].Name < schemas[j].Name })
	return schemas
}

// Clone returns a registry holding the same tools. Rate limiters are shared
// with the original.
func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make(map[string]Tool, len(r.tools))
	for name, t := range r.tools {
		tools[name] = t
	}
	return &Registry{tools: tools, logger: r.logger}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// ====== Executor ======

// Executor runs one tool call at a time with rate limiting, an optional
// timeout, argument validation and panic recovery.
type Executor struct {
	logger *zap.Logger
}

// NewExecutor 创建工具执行器。
func NewExecutor(logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{logger: logger.With(zap.String("component", "tool_executor"))}
}

type execOutcome struct {
	res any
	err error
}

// Execute runs tool with the arguments of call and returns the stringified
// result. Any failure, including a panic inside the tool, is returned as
// an error.
func (e *Executor) Execute(ctx context.Context, tool Tool, call types.ToolCall) (string, error) {
	start := time.Now()
	name := call.Name

	// 1. 速率限制
	if tool.limiter != nil && !tool.limiter.Allow() {
		e.logger.Warn("rate limit exceeded", zap.String("name", name))
		return "", types.NewError(types.ErrToolRateLimited, fmt.Sprintf("rate limit exceeded for tool %s", name))
	}

	// 2. 参数校验（确保是有效 JSON）
	args := call.Arguments
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	if !json.Valid(args) {
		e.logger.Warn("invalid tool arguments", zap.String("name", name))
		return "", types.NewError(types.ErrInvalidToolInput, "arguments are not valid JSON")
	}

	// 3. 执行工具（可选超时控制）
	execCtx := ctx
	if tool.Metadata.Timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, tool.Metadata.Timeout)
		defer cancel()
	}

	// 带缓冲的 channel：超时后 goroutine 仍能退出
	done := make(chan execOutcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				e.logger.Error("tool panicked",
					zap.String("name", name),
					zap.Any("panic", p),
					zap.ByteString("stack", debug.Stack()))
				done <- execOutcome{err: fmt.Errorf("tool panicked: %v", p)}
			}
		}()
		res, err := tool.Func(execCtx, args)
		done <- execOutcome{res: res, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			e.logger.Warn("tool execution failed",
				zap.String("name", name),
				zap.Error(out.err),
				zap.Duration("duration", time.Since(start)))
			return "", out.err
		}
		result, err := Stringify(out.res)
		if err != nil {
			return "", fmt.Errorf("encode result: %w", err)
		}
		e.logger.Debug("tool executed",
			zap.String("name", name),
			zap.Duration("duration", time.Since(start)))
		return result, nil

	case <-execCtx.Done():
		if ctx.Err() == nil {
			e.logger.Warn("tool execution timeout",
				zap.String("name", name),
				zap.Duration("timeout", tool.Metadata.Timeout))
			return "", fmt.Errorf("execution timeout after %s", tool.Metadata.Timeout)
		}
		return "", ctx.Err()
	}
}

// Stringify renders a tool result as text: strings pass through, raw JSON
// and byte slices are used verbatim, nil is empty, and anything else is
// JSON-encoded.
func Stringify(v any) (string, error) {
	switch r := v.(type) {
	case nil:
		return "", nil
	case string:
		return r, nil
	case json.RawMessage:
		return string(r), nil
	case []byte:
		return string(r), nil
	default:
		data, err := json.Marshal(r)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}
