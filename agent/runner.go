package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	agentcontext "github.com/BaSui01/agentrelay/agent/context"
	"github.com/BaSui01/agentrelay/internal/metrics"
	"github.com/BaSui01/agentrelay/llm"
	"github.com/BaSui01/agentrelay/llm/tokenizer"
	llmtools "github.com/BaSui01/agentrelay/llm/tools"
	"github.com/BaSui01/agentrelay/types"
)

// DefaultMaxSteps bounds the number of model calls in one turn.
const DefaultMaxSteps = 20

// FallbackResponse is the final text of a turn whose model stream failed
// before producing any text.
const FallbackResponse = "I apologize, but I wasn't able to generate a response. Could you please try rephrasing your message?"

// errStreamIncomplete marks a stream that closed without a finish event.
var errStreamIncomplete = errors.New("stream closed before a finish event")

// Config 定义单个智能体的运行配置
type Config struct {
	Name         string  `yaml:"name" json:"name"`
	Model        string  `yaml:"model" json:"model"`
	SummaryModel string  `yaml:"summary_model" json:"summary_model"` // 压缩使用的模型，默认与 Model 相同
	SystemPrompt string  `yaml:"system_prompt" json:"system_prompt"`
	MaxSteps     int     `yaml:"max_steps" json:"max_steps"`
	Threshold    float64 `yaml:"threshold" json:"threshold"`
	MaxTokens    int     `yaml:"max_tokens" json:"max_tokens"`
	Temperature  float32 `yaml:"temperature" json:"temperature"`
}

type delegate struct {
	agent Agent
	cfg   AgentToolConfig
}

// Runner is the orchestration loop: it assembles the prompt, compacts the
// history when the estimate crosses the threshold, and alternates model
// streams with sequential tool dispatch until the model stops calling tools.
//
// A Runner holds no per-conversation state and may serve concurrent runs.
type Runner struct {
	cfg       Config
	provider  llm.Provider
	tools     *llmtools.Registry
	executor  *llmtools.Executor
	limits    *agentcontext.LimitsRegistry
	estimator *tokenizer.Estimator
	compactor *agentcontext.Compactor
	delegates []delegate
	metrics   *metrics.Collector
	logger    *zap.Logger
	tracer    trace.Tracer
}

// Name returns the agent name.
func (r *Runner) Name() string { return r.cfg.Name }

// Config returns the effective configuration.
func (r *Runner) Config() Config { return r.cfg }

// Limits returns the limits of the configured model.
func (r *Runner) Limits() agentcontext.ModelLimits { return r.limits.LimitsFor(r.cfg.Model) }

// Tools returns the schemas the model is offered, delegation tools included.
func (r *Runner) Tools() []types.ToolSchema {
	return r.toolset(Callbacks{}).Schemas()
}

// stepResult is what one model stream produced.
type stepResult struct {
	text   string
	calls  []types.ToolCall
	finish llm.FinishReason
	usage  *llm.ChatUsage
	err    error
}

// Run executes one user turn. It returns the updated history without the
// system prompt, ready to be passed back on the next turn.
//
// Model stream failures are not returned as errors: partial text is kept as
// the answer, and a failure before any text yields FallbackResponse. The
// only error path is a failed compaction, in which case OnComplete is not
// called and the history is nil.
func (r *Runner) Run(ctx context.Context, userMessage string, history []types.Message, cb Callbacks) ([]types.Message, error) {
	start := time.Now()
	runID := uuid.NewString()
	ctx = types.WithRunID(ctx, runID)
	ctx = types.WithAgentName(ctx, r.cfg.Name)

	ctx, span := r.tracer.Start(ctx, "agent.run", trace.WithAttributes(
		attribute.String("agent.name", r.cfg.Name),
		attribute.String("agent.run_id", runID),
		attribute.String("llm.model", r.cfg.Model),
		attribute.Int("agent.delegation_depth", types.DelegationDepth(ctx)),
	))
	defer span.End()

	logger := r.logger.With(zap.String("run_id", runID))
	limits := r.limits.LimitsFor(r.cfg.Model)
	window := limits.Available()

	// Building
	prior := agentcontext.FilterCompatible(history)
	messages := r.assemble(prior, userMessage)

	// Compacting
	usage := r.estimator.Estimate(messages)
	if agentcontext.IsOverThreshold(usage.TotalTokens, window, r.cfg.Threshold) {
		logger.Info("context over threshold, compacting history",
			zap.Int("estimated_tokens", usage.TotalTokens),
			zap.Int("available_window", window),
			zap.Float64("threshold", r.cfg.Threshold))

		compacted, err := r.compact(ctx, prior)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "compaction failed")
			r.metrics.RecordTurn(r.cfg.Name, "error", time.Since(start))
			return nil, err
		}
		prior = compacted
		messages = r.assemble(prior, userMessage)
		usage = r.estimator.Estimate(messages)
	}
	r.metrics.SetContextUsage(r.cfg.Name, agentcontext.UsagePercentage(usage.TotalTokens, window))

	tools := r.toolset(cb)
	schemas := tools.Schemas()

	var (
		final    strings.Builder
		status   = "success"
		warned   bool
		steps    int
		maxSteps = r.cfg.MaxSteps
	)

loop:
	for {
		if steps >= maxSteps {
			logger.Warn("step limit reached", zap.Int("max_steps", maxSteps))
			status = "max_steps"
			break
		}
		steps++

		// Streaming
		res := r.stream(ctx, messages, schemas, cb)
		r.metrics.RecordStep(r.cfg.Name)

		if res.err != nil {
			span.RecordError(res.err)
			r.closeDropped(res.calls, cb)
			if res.text == "" {
				logger.Warn("model stream failed without output", zap.Int("step", steps), zap.Error(res.err))
				r.metrics.RecordStreamError(r.cfg.Name, "empty")
				final.Reset()
				final.WriteString(FallbackResponse)
				cb.token(FallbackResponse)
				status = "fallback"
				break
			}
			logger.Warn("model stream failed, keeping partial output",
				zap.Int("step", steps),
				zap.Int("partial_chars", len(res.text)),
				zap.Error(res.err))
			r.metrics.RecordStreamError(r.cfg.Name, "partial")
			final.WriteString(res.text)
			messages = append(messages, types.NewAssistantMessage(res.text))
			status = "partial"
			break
		}

		final.WriteString(res.text)

		if res.finish != llm.FinishToolCalls || len(res.calls) == 0 {
			if res.text != "" {
				messages = append(messages, types.NewAssistantMessage(res.text))
			}
			break
		}

		// Dispatching
		messages = append(messages, types.NewToolCallMessage(res.text, res.calls))
		for _, call := range res.calls {
			result := r.dispatch(ctx, tools, call, cb)
			cb.toolCallEnd(call.Name, result)
			messages = append(messages, types.NewToolResultMessage(call.ID, call.Name, result))

			snap := r.snapshot(messages, limits)
			cb.tokenUsage(snap)

			if !warned && agentcontext.IsOverThreshold(snap.TotalTokens, window, r.cfg.Threshold) {
				warned = true
				logger.Warn("context crossed threshold mid-turn; compaction deferred to next turn",
					zap.Int("estimated_tokens", snap.TotalTokens),
					zap.Int("available_window", window))
				r.metrics.RecordCompaction(r.cfg.Name, "deferred")
			}

			if ctx.Err() != nil {
				logger.Warn("run cancelled during tool dispatch", zap.Error(ctx.Err()))
				status = "cancelled"
				break loop
			}
		}
	}

	snap := r.snapshot(messages, limits)
	cb.tokenUsage(snap)
	r.metrics.SetContextUsage(r.cfg.Name, snap.Percentage)

	text := final.String()
	cb.complete(text)

	span.SetAttributes(
		attribute.Int("agent.steps", steps),
		attribute.String("agent.status", status),
	)
	r.metrics.RecordTurn(r.cfg.Name, status, time.Since(start))
	logger.Info("turn completed",
		zap.String("status", status),
		zap.Int("steps", steps),
		zap.Int("messages", len(messages)-1),
		zap.Duration("duration", time.Since(start)))

	return messages[1:], nil
}

// closeDropped pairs the starts of tool calls announced by a failed stream.
// Those calls are never dispatched.
func (r *Runner) closeDropped(calls []types.ToolCall, cb Callbacks) {
	for _, call := range calls {
		cb.toolCallEnd(call.Name, fmt.Sprintf("Tool %s was not executed.", call.Name))
	}
}

// assemble builds [system] + prior + [user]. System messages left in prior
// are dropped; the configured prompt is the only one.
func (r *Runner) assemble(prior []types.Message, userMessage string) []types.Message {
	messages := make([]types.Message, 0, len(prior)+2)
	messages = append(messages, types.NewSystemMessage(r.cfg.SystemPrompt))
	for _, m := range prior {
		if m.Role == types.RoleSystem {
			continue
		}
		messages = append(messages, m)
	}
	messages = append(messages, types.NewUserMessage(userMessage))
	return messages
}

func (r *Runner) compact(ctx context.Context, prior []types.Message) ([]types.Message, error) {
	compacted, err := r.compactor.Compact(ctx, prior, r.cfg.SummaryModel)
	if err != nil {
		r.metrics.RecordCompaction(r.cfg.Name, "error")
		r.logger.Error("history compaction failed", zap.Error(err))
		return nil, err
	}
	r.metrics.RecordCompaction(r.cfg.Name, "success")
	r.logger.Info("history compacted",
		zap.Int("before", len(prior)),
		zap.Int("after", len(compacted)))
	return compacted, nil
}

// stream performs one model call and drains its events.
func (r *Runner) stream(ctx context.Context, messages []types.Message, schemas []types.ToolSchema, cb Callbacks) stepResult {
	ctx, span := r.tracer.Start(ctx, "agent.step", trace.WithAttributes(
		attribute.Int("llm.messages", len(messages)),
		attribute.Int("llm.tools", len(schemas)),
	))
	defer span.End()

	traceID, _ := types.TraceID(ctx)
	req := &llm.ChatRequest{
		TraceID:     traceID,
		Model:       r.cfg.Model,
		Messages:    messages,
		Tools:       schemas,
		MaxTokens:   r.cfg.MaxTokens,
		Temperature: r.cfg.Temperature,
	}

	events, err := r.provider.Stream(ctx, req)
	if err != nil {
		span.SetStatus(codes.Error, "stream open failed")
		r.metrics.RecordLLMRequest(r.provider.Name(), r.cfg.Model, "stream", "error", 0, 0)
		return stepResult{err: err}
	}

	var (
		res      stepResult
		text     strings.Builder
		finished bool
	)
	for ev := range events {
		switch ev.Type {
		case llm.EventTextDelta:
			if ev.Text == "" {
				continue
			}
			text.WriteString(ev.Text)
			cb.token(ev.Text)
		case llm.EventToolCall:
			if ev.ToolCall == nil {
				continue
			}
			call := *ev.ToolCall
			if len(call.Arguments) == 0 {
				call.Arguments = []byte(`{}`)
			}
			res.calls = append(res.calls, call)
			cb.toolCallStart(call.Name, call.Arguments)
		case llm.EventFinish:
			res.finish = ev.FinishReason
			res.usage = ev.Usage
			finished = true
		case llm.EventError:
			res.err = ev.Err
			if res.err == nil {
				res.err = errors.New("model stream failed")
			}
		}
		if res.err != nil {
			// 释放生产者
			go func() {
				for range events {
				}
			}()
			break
		}
	}
	res.text = text.String()

	if res.err == nil && !finished {
		res.err = errStreamIncomplete
		if ctx.Err() != nil {
			res.err = fmt.Errorf("%w: %v", errStreamIncomplete, ctx.Err())
		}
	}

	status := "success"
	if res.err != nil {
		status = "error"
		span.RecordError(res.err)
		span.SetStatus(codes.Error, "stream failed")
	}
	var prompt, completion int
	if res.usage != nil {
		prompt, completion = res.usage.PromptTokens, res.usage.CompletionTokens
	}
	r.metrics.RecordLLMRequest(r.provider.Name(), r.cfg.Model, "stream", status, prompt, completion)
	span.SetAttributes(
		attribute.String("llm.finish_reason", string(res.finish)),
		attribute.Int("llm.tool_calls", len(res.calls)),
	)
	return res
}

// dispatch runs one tool call and returns the text sent back to the model.
// Failures are reported as text so the model can react to them.
func (r *Runner) dispatch(ctx context.Context, tools *llmtools.Registry, call types.ToolCall, cb Callbacks) string {
	ctx, span := r.tracer.Start(ctx, "agent.tool", trace.WithAttributes(
		attribute.String("tool.name", call.Name),
		attribute.String("tool.call_id", call.ID),
	))
	defer span.End()

	tool, ok := tools.Lookup(call.Name)
	if !ok {
		r.logger.Warn("model called unknown tool", zap.String("tool", call.Name))
		r.metrics.RecordToolCall(r.cfg.Name, call.Name, "not_found")
		span.SetStatus(codes.Error, "tool not found")
		return fmt.Sprintf("Tool %s not found.", call.Name)
	}

	if tool.Metadata.RequiresApproval {
		approved, err := cb.approve(ctx, ToolApprovalRequest{
			ToolCallID: call.ID,
			ToolName:   call.Name,
			Arguments:  call.Arguments,
		})
		if err != nil {
			r.metrics.RecordToolCall(r.cfg.Name, call.Name, "error")
			span.RecordError(err)
			return fmt.Sprintf("Error from %s: %s", call.Name, err.Error())
		}
		if !approved {
			r.metrics.RecordToolCall(r.cfg.Name, call.Name, "denied")
			return fmt.Sprintf("Tool %s was not approved by the user.", call.Name)
		}
	}

	out, err := r.executor.Execute(ctx, tool, call)
	if err != nil {
		r.metrics.RecordToolCall(r.cfg.Name, call.Name, "error")
		span.RecordError(err)
		span.SetStatus(codes.Error, "tool failed")
		return fmt.Sprintf("Error from %s: %s", call.Name, err.Error())
	}
	r.metrics.RecordToolCall(r.cfg.Name, call.Name, "success")
	return out
}

// toolset returns the tools visible to one run. Delegation tools are bound
// to the run's callbacks, so they are built per run on top of a copy of the
// base registry.
func (r *Runner) toolset(cb Callbacks) *llmtools.Registry {
	if len(r.delegates) == 0 {
		return r.tools
	}
	set := r.tools.Clone()
	for _, d := range r.delegates {
		at := NewAgentTool(d.agent, d.cfg, cb)
		if err := set.Register(at.Name(), at.Execute, at.Metadata()); err != nil {
			r.logger.Warn("delegation tool not registered", zap.String("tool", at.Name()), zap.Error(err))
		}
	}
	return set
}

// snapshot estimates usage of messages against limits.
func (r *Runner) snapshot(messages []types.Message, limits agentcontext.ModelLimits) TokenUsage {
	u := r.estimator.Estimate(messages)
	window := limits.Available()
	return TokenUsage{
		InputTokens:     u.InputTokens,
		OutputTokens:    u.OutputTokens,
		TotalTokens:     u.TotalTokens,
		ContextWindow:   limits.ContextWindow,
		AvailableWindow: window,
		Threshold:       r.cfg.Threshold,
		Percentage:      agentcontext.UsagePercentage(u.TotalTokens, window),
	}
}
