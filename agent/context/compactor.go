package context

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/agentrelay/llm"
	"github.com/BaSui01/agentrelay/types"
)

// SummarizationPrompt instructs the model how to summarize a transcript.
const SummarizationPrompt = `You are a conversation summarizer. Your task is to create a concise summary of the conversation so far that preserves:
1. Key decisions and conclusions reached
2. Important context and facts mentioned
3. Any pending tasks or questions
4. The overall goal of the conversation

Be concise but complete. The summary should allow the conversation to continue naturally.

Conversation to summarize:`

// SummaryAcknowledgment is the assistant reply that follows the summary message.
const SummaryAcknowledgment = "I understand. I've reviewed the summary of our conversation and I'm ready to continue. How can I help you next?"

const summaryPreamble = "[CONVERSATION SUMMARY]\nThe following is a summary of our conversation so far:\n\n"

const summaryEpilogue = "\n\nPlease continue from where we left off."

// Compactor replaces a conversation with an LLM-written summary.
type Compactor struct {
	provider     llm.Provider
	defaultModel string
	logger       *zap.Logger
	tracer       trace.Tracer
}

// NewCompactor creates a compactor that summarizes with provider. model is
// used when Compact is called without one.
func NewCompactor(provider llm.Provider, model string, logger *zap.Logger) *Compactor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Compactor{
		provider:     provider,
		defaultModel: model,
		logger:       logger.With(zap.String("component", "compactor")),
		tracer:       otel.Tracer("github.com/BaSui01/agentrelay/agent/context"),
	}
}

// Compact summarizes messages into exactly two messages: a user message
// holding the summary and an assistant acknowledgment. System messages are
// dropped before summarizing. If nothing but system messages remains, an
// empty slice is returned without calling the model.
//
// A failed or empty summarization is returned as an error; there is no
// local fallback.
func (c *Compactor) Compact(ctx context.Context, messages []types.Message, model string) ([]types.Message, error) {
	conversation := make([]types.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role != types.RoleSystem {
			conversation = append(conversation, m)
		}
	}
	if len(conversation) == 0 {
		return []types.Message{}, nil
	}
	if model == "" {
		model = c.defaultModel
	}

	ctx, span := c.tracer.Start(ctx, "context.compact", trace.WithAttributes(
		attribute.String("llm.model", model),
		attribute.Int("context.messages", len(conversation)),
	))
	defer span.End()

	if c.provider == nil {
		err := types.NewError(types.ErrProviderNotSet, "compactor has no provider")
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	prompt := SummarizationPrompt + "\n\n" + RenderTranscript(conversation)
	resp, err := c.provider.Completion(ctx, &llm.ChatRequest{
		Model:    model,
		Messages: []types.Message{types.NewUserMessage(prompt)},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "summarization failed")
		c.logger.Warn("summarization failed", zap.String("model", model), zap.Error(err))
		return nil, types.NewError(types.ErrCompressionFailed, "summarization request failed").WithCause(err)
	}

	summary := strings.TrimSpace(resp.Text())
	if summary == "" {
		err := types.NewError(types.ErrCompressionFailed, "summarization returned no text")
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	c.logger.Info("conversation compacted",
		zap.String("model", model),
		zap.Int("messages", len(conversation)),
		zap.Int("summary_chars", len(summary)))

	return []types.Message{
		types.NewUserMessage(summaryPreamble + summary + summaryEpilogue),
		types.NewAssistantMessage(SummaryAcknowledgment),
	}, nil
}

// RenderTranscript renders messages as "[ROLE]: text" blocks separated by a
// blank line. Tool calls and tool results are rendered inline.
func RenderTranscript(messages []types.Message) string {
	blocks := make([]string, 0, len(messages))
	for _, m := range messages {
		blocks = append(blocks, fmt.Sprintf("[%s]: %s", strings.ToUpper(string(m.Role)), renderContent(m)))
	}
	return strings.Join(blocks, "\n\n")
}

func renderContent(m types.Message) string {
	if len(m.Parts) == 0 {
		return m.Content
	}
	var segs []string
	if m.Content != "" {
		segs = append(segs, m.Content)
	}
	for _, p := range m.Parts {
		switch p.Type {
		case types.PartText:
			if p.Text != "" {
				segs = append(segs, p.Text)
			}
		case types.PartToolCall:
			segs = append(segs, fmt.Sprintf("[tool call %s(%s)]", p.ToolName, string(p.Input)))
		case types.PartToolResult:
			segs = append(segs, fmt.Sprintf("[tool result %s: %s]", p.ToolName, p.Output))
		}
	}
	return strings.Join(segs, " ")
}
