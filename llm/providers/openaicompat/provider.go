// =============================================================================
// AgentRelay OpenAI-Compatible Provider
// =============================================================================
// Chat Completions over HTTP with SSE streaming. Works with OpenAI and any
// server speaking the same protocol (vLLM, Ollama, DeepSeek, Qwen, ...).
// =============================================================================

package openaicompat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/agentrelay/internal/tlsutil"
	"github.com/BaSui01/agentrelay/llm"
	"github.com/BaSui01/agentrelay/llm/providers"
	"github.com/BaSui01/agentrelay/types"
)

// Config holds the configuration for an OpenAI-compatible provider.
type Config struct {
	// ProviderName is the unique identifier for this provider. Defaults to "openai".
	ProviderName string

	// APIKey is the authentication key for the provider's API.
	APIKey string

	// BaseURL is the base URL for the provider's API. Defaults to "https://api.openai.com".
	BaseURL string

	// DefaultModel is the model to use when none is specified in the request.
	DefaultModel string

	// Timeout bounds non-streaming requests. Defaults to 30s if zero.
	// Streams are bounded only by the request context.
	Timeout time.Duration

	// EndpointPath is the chat completions endpoint path. Defaults to "/v1/chat/completions".
	EndpointPath string

	// ModelsEndpoint is the models list endpoint path. Defaults to "/v1/models".
	ModelsEndpoint string

	// BuildHeaders is an optional function to set custom headers on each request.
	// If nil, the default "Authorization: Bearer <apiKey>" header is used.
	BuildHeaders func(req *http.Request, apiKey string)
}

// Provider implements llm.Provider for OpenAI-compatible APIs.
type Provider struct {
	Cfg          Config
	Client       *http.Client
	StreamClient *http.Client
	Logger       *zap.Logger
}

// New creates a new OpenAI-compatible provider with the given config.
func New(cfg Config, logger *zap.Logger) *Provider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if cfg.ProviderName == "" {
		cfg.ProviderName = "openai"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/v1/chat/completions"
	}
	if cfg.ModelsEndpoint == "" {
		cfg.ModelsEndpoint = "/v1/models"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		Cfg:          cfg,
		Client:       tlsutil.SecureHTTPClient(timeout),
		StreamClient: tlsutil.SecureStreamingClient(),
		Logger:       logger.With(zap.String("component", "provider"), zap.String("provider", cfg.ProviderName)),
	}
}

// Name returns the provider name.
func (p *Provider) Name() string { return p.Cfg.ProviderName }

func (p *Provider) buildHeaders(req *http.Request) {
	if p.Cfg.BuildHeaders != nil {
		p.Cfg.BuildHeaders(req, p.Cfg.APIKey)
		return
	}
	providers.BearerTokenHeaders(req, p.Cfg.APIKey)
}

func (p *Provider) endpoint(path string) string {
	return fmt.Sprintf("%s%s", strings.TrimRight(p.Cfg.BaseURL, "/"), path)
}

func (p *Provider) upstreamError(err error) *llm.Error {
	code := llm.ErrUpstreamError
	if errors.Is(err, context.DeadlineExceeded) {
		code = llm.ErrUpstreamTimeout
	}
	return &llm.Error{
		Code: code, Message: err.Error(),
		HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: p.Name(),
	}
}

// HealthCheck verifies the provider is reachable.
func (p *Provider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint(p.Cfg.ModelsEndpoint), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	p.buildHeaders(httpReq)

	resp, err := p.Client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return &llm.HealthStatus{Healthy: false, Latency: latency}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg := providers.ReadErrorMessage(resp.Body)
		return &llm.HealthStatus{Healthy: false, Latency: latency},
			fmt.Errorf("%s health check failed: status=%d msg=%s", p.Name(), resp.StatusCode, msg)
	}
	return &llm.HealthStatus{Healthy: true, Latency: latency}, nil
}

func (p *Provider) buildBody(req *llm.ChatRequest, stream bool) providers.OpenAICompatRequest {
	body := providers.OpenAICompatRequest{
		Model:       providers.ChooseModel(req, p.Cfg.DefaultModel, "gpt-4o-mini"),
		Messages:    providers.ConvertMessagesToOpenAI(req.Messages),
		Tools:       providers.ConvertToolsToOpenAI(req.Tools),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if req.ToolChoice != "" && len(body.Tools) > 0 {
		body.ToolChoice = req.ToolChoice
	}
	if stream {
		body.Stream = true
		body.StreamOptions = &providers.OpenAICompatStreamOptions{IncludeUsage: true}
	}
	return body
}

func (p *Provider) post(ctx context.Context, client *http.Client, body providers.OpenAICompatRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(p.Cfg.EndpointPath), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	p.buildHeaders(httpReq)
	if body.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, p.upstreamError(err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		msg := providers.ReadErrorMessage(resp.Body)
		return nil, providers.MapHTTPError(resp.StatusCode, msg, p.Name())
	}
	return resp, nil
}

// Completion performs a non-streaming chat completion.
func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	resp, err := p.post(ctx, p.Client, p.buildBody(req, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var oaResp providers.OpenAICompatResponse
	if err := json.NewDecoder(resp.Body).Decode(&oaResp); err != nil {
		return nil, p.upstreamError(err)
	}

	result := providers.ToLLMChatResponse(oaResp, p.Name())
	if oaResp.Created != 0 {
		result.CreatedAt = time.Unix(oaResp.Created, 0)
	}
	return result, nil
}

// Stream performs a streaming chat completion via SSE.
func (p *Provider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamEvent, error) {
	resp, err := p.post(ctx, p.StreamClient, p.buildBody(req, true))
	if err != nil {
		return nil, err
	}
	p.Logger.Debug("stream opened", zap.String("model", req.Model), zap.Int("messages", len(req.Messages)))
	return StreamSSE(ctx, resp.Body, p.Name()), nil
}

// toolCallAccumulator collects the argument fragments of one streamed tool call.
type toolCallAccumulator struct {
	id   string
	name string
	args strings.Builder
}

// StreamSSE parses an SSE stream from an OpenAI-compatible API into
// StreamEvents. Text deltas are forwarded as they arrive; tool calls are
// assembled and emitted once the choice reports a finish reason; a final
// EventFinish carries the normalized finish reason and usage.
func StreamSSE(ctx context.Context, body io.ReadCloser, providerName string) <-chan llm.StreamEvent {
	ch := make(chan llm.StreamEvent)
	go func() {
		defer body.Close()
		defer close(ch)

		send := func(ev llm.StreamEvent) bool {
			select {
			case <-ctx.Done():
				return false
			case ch <- ev:
				return true
			}
		}
		fail := func(err error) {
			send(llm.StreamEvent{Type: llm.EventError, Err: &llm.Error{
				Code: llm.ErrUpstreamError, Message: err.Error(),
				HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: providerName,
			}})
		}

		calls := make(map[int]*toolCallAccumulator)
		var (
			finishRaw string
			usage     *llm.ChatUsage
			flushed   bool
			done      bool
		)

		flush := func() bool {
			if flushed {
				return true
			}
			flushed = true
			indexes := make([]int, 0, len(calls))
			for idx := range calls {
				indexes = append(indexes, idx)
			}
			sort.Ints(indexes)
			for _, idx := range indexes {
				acc := calls[idx]
				id := acc.id
				if id == "" {
					id = "call_" + uuid.NewString()
				}
				args := strings.TrimSpace(acc.args.String())
				if args == "" {
					args = "{}"
				}
				if !send(llm.StreamEvent{Type: llm.EventToolCall, ToolCall: &types.ToolCall{
					ID: id, Name: acc.name, Arguments: json.RawMessage(args),
				}}) {
					return false
				}
			}
			return true
		}

		reader := bufio.NewReader(body)
		for !done {
			line, err := reader.ReadString('\n')
			if err != nil && !(errors.Is(err, io.EOF) && line != "") {
				if !errors.Is(err, io.EOF) {
					if ctx.Err() != nil {
						fail(ctx.Err())
					} else {
						fail(err)
					}
					return
				}
				break
			}
			line = strings.TrimSpace(line)
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				done = true
				break
			}

			var oaResp providers.OpenAICompatResponse
			if err := json.Unmarshal([]byte(data), &oaResp); err != nil {
				fail(fmt.Errorf("decode stream chunk: %w", err))
				return
			}
			if oaResp.Usage != nil {
				usage = &llm.ChatUsage{
					PromptTokens:     oaResp.Usage.PromptTokens,
					CompletionTokens: oaResp.Usage.CompletionTokens,
					TotalTokens:      oaResp.Usage.TotalTokens,
				}
			}

			for _, choice := range oaResp.Choices {
				if choice.Index != 0 {
					continue
				}
				if choice.Delta != nil {
					if choice.Delta.Content != "" {
						if !send(llm.StreamEvent{Type: llm.EventTextDelta, Text: choice.Delta.Content}) {
							return
						}
					}
					for _, tc := range choice.Delta.ToolCalls {
						acc, ok := calls[tc.Index]
						if !ok {
							acc = &toolCallAccumulator{}
							calls[tc.Index] = acc
						}
						if tc.ID != "" {
							acc.id = tc.ID
						}
						if tc.Function.Name != "" {
							acc.name = tc.Function.Name
						}
						acc.args.WriteString(tc.Function.Arguments)
					}
				}
				if choice.FinishReason != "" {
					finishRaw = choice.FinishReason
					if !flush() {
						return
					}
				}
			}
		}

		if finishRaw == "" && !done {
			fail(errors.New("stream ended before a finish reason was received"))
			return
		}
		if !flush() {
			return
		}
		reason := llm.NormalizeFinishReason(finishRaw)
		if finishRaw == "" {
			reason = llm.FinishStop
			if len(calls) > 0 {
				reason = llm.FinishToolCalls
			}
		}
		send(llm.StreamEvent{Type: llm.EventFinish, FinishReason: reason, Usage: usage})
	}()
	return ch
}
