package agent

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	llmtools "github.com/BaSui01/agentrelay/llm/tools"
	"github.com/BaSui01/agentrelay/testutil/mocks"
	"github.com/BaSui01/agentrelay/types"
)

// toolTestAgent is a hand-written Agent for AgentTool tests.
type toolTestAgent struct {
	name  string
	runFn func(ctx context.Context, msg string, history []types.Message, cb Callbacks) ([]types.Message, error)

	mu        sync.Mutex
	messages  []string
	histories [][]types.Message
}

func (a *toolTestAgent) Name() string { return a.name }

func (a *toolTestAgent) Run(ctx context.Context, msg string, history []types.Message, cb Callbacks) ([]types.Message, error) {
	a.mu.Lock()
	a.messages = append(a.messages, msg)
	a.histories = append(a.histories, history)
	a.mu.Unlock()
	if a.runFn != nil {
		return a.runFn(ctx, msg, history, cb)
	}
	cb.OnComplete("done: " + msg)
	return nil, nil
}

func TestAgentTool_Defaults(t *testing.T) {
	sub := &toolTestAgent{name: "travel"}
	at := NewAgentTool(sub, AgentToolConfig{}, Callbacks{})

	assert.Equal(t, "delegateToTravelAgent", at.Name())
	assert.Same(t, sub, at.Agent())

	schema := at.Schema()
	assert.Equal(t, "delegateToTravelAgent", schema.Name)
	assert.Equal(t, "Delegate a task to the Travel agent.", schema.Description)

	var params struct {
		Required   []string       `json:"required"`
		Properties map[string]any `json:"properties"`
	}
	require.NoError(t, json.Unmarshal(schema.Parameters, &params))
	assert.Equal(t, []string{"task"}, params.Required)
	assert.Contains(t, params.Properties, "task")
}

func TestAgentTool_Execute_ReturnsFinalText(t *testing.T) {
	sub := &toolTestAgent{name: "search"}
	at := NewAgentTool(sub, AgentToolConfig{}, Callbacks{})

	out, err := at.Execute(context.Background(), json.RawMessage(`{"task":"capital of France"}`))
	require.NoError(t, err)
	assert.Equal(t, "done: capital of France", out)

	require.Len(t, sub.histories, 1)
	assert.Empty(t, sub.histories[0], "sub-agent starts from an empty history")
}

func TestAgentTool_Execute_NoResultsSentinel(t *testing.T) {
	sub := &toolTestAgent{name: "search", runFn: func(_ context.Context, _ string, _ []types.Message, cb Callbacks) ([]types.Message, error) {
		cb.OnComplete("")
		return nil, nil
	}}
	at := NewAgentTool(sub, AgentToolConfig{DisplayName: "Search"}, Callbacks{})

	out, err := at.Execute(context.Background(), json.RawMessage(`{"task":"anything"}`))
	require.NoError(t, err)
	assert.Equal(t, "Search agent returned no results.", out)
}

func TestAgentTool_Execute_ArgumentErrors(t *testing.T) {
	at := NewAgentTool(&toolTestAgent{name: "search"}, AgentToolConfig{}, Callbacks{})

	_, err := at.Execute(context.Background(), json.RawMessage(`{"task":""}`))
	assert.ErrorContains(t, err, "task")

	_, err = at.Execute(context.Background(), json.RawMessage(`{`))
	assert.ErrorContains(t, err, "invalid arguments")
}

func TestAgentTool_Execute_PropagatesSubAgentError(t *testing.T) {
	sub := &toolTestAgent{name: "email", runFn: func(context.Context, string, []types.Message, Callbacks) ([]types.Message, error) {
		return nil, types.NewError(types.ErrCompressionFailed, "summarization request failed")
	}}
	at := NewAgentTool(sub, AgentToolConfig{}, Callbacks{})

	_, err := at.Execute(context.Background(), json.RawMessage(`{"task":"read inbox"}`))
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrCompressionFailed))
}

func TestAgentTool_DerivedCallbacks(t *testing.T) {
	var approvalSeen, usageSeen bool
	sub := &toolTestAgent{name: "travel", runFn: func(ctx context.Context, _ string, _ []types.Message, cb Callbacks) ([]types.Message, error) {
		cb.OnToken("sub-agent text")
		cb.OnToolCallStart("searchFlights", json.RawMessage(`{"from":"TUN"}`))
		cb.OnToolCallEnd("searchFlights", "3 flights")
		ok, err := cb.OnToolApproval(ctx, ToolApprovalRequest{ToolName: "bookFlight"})
		if err != nil || !ok {
			return nil, errors.New("approval not forwarded")
		}
		cb.OnTokenUsage(TokenUsage{TotalTokens: 42})
		cb.OnComplete("Found 3 flights.")
		return nil, nil
	}}

	rec := newRecorder()
	outer := rec.callbacks()
	outer.OnToolApproval = func(context.Context, ToolApprovalRequest) (bool, error) {
		approvalSeen = true
		return true, nil
	}
	outer.OnTokenUsage = func(u TokenUsage) { usageSeen = u.TotalTokens == 42 }

	at := NewAgentTool(sub, AgentToolConfig{Namespace: "travel"}, outer)
	out, err := at.Execute(context.Background(), json.RawMessage(`{"task":"flights TUN to CDG"}`))
	require.NoError(t, err)

	assert.Equal(t, "Found 3 flights.", out)
	assert.Empty(t, rec.tokens, "sub-agent tokens must not reach the outer OnToken")
	assert.Equal(t, []string{"travel → searchFlights"}, rec.starts)
	assert.Equal(t, []toolEnd{{name: "travel → searchFlights", result: "3 flights"}}, rec.ends)
	assert.Empty(t, rec.completes, "sub-agent completion is captured, not forwarded")
	assert.True(t, approvalSeen)
	assert.True(t, usageSeen)
}

func TestAgentTool_DepthGuard(t *testing.T) {
	sub := &toolTestAgent{name: "search"}
	at := NewAgentTool(sub, AgentToolConfig{}, Callbacks{})

	ctx := types.WithDelegationDepth(context.Background(), 1)
	_, err := at.Execute(ctx, json.RawMessage(`{"task":"x"}`))
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrDelegationDepth))
	assert.Empty(t, sub.messages)

	// 子智能体运行在更深一层
	var depth int
	sub.runFn = func(ctx context.Context, _ string, _ []types.Message, cb Callbacks) ([]types.Message, error) {
		depth = types.DelegationDepth(ctx)
		cb.OnComplete("ok")
		return nil, nil
	}
	_, err = at.Execute(context.Background(), json.RawMessage(`{"task":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, 1, depth)

	deeper := NewAgentTool(sub, AgentToolConfig{MaxDepth: 3}, Callbacks{})
	_, err = deeper.Execute(ctx, json.RawMessage(`{"task":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, 2, depth)
}

// TestAgentTool_ThroughRunners drives an orchestrator runner that delegates to
// a search runner, both on scripted providers.
func TestAgentTool_ThroughRunners(t *testing.T) {
	searchTools := llmtools.NewRegistry(zap.NewNop())
	require.NoError(t, searchTools.Register("search", func(context.Context, json.RawMessage) (any, error) {
		return map[string]any{"results": []string{"Paris is the capital of France"}}, nil
	}, llmtools.ToolMetadata{}))

	subProvider := mocks.NewMockProvider().WithStreamSteps(
		mocks.ToolCallStep("Searching...", toolCall("s1", "search", `{"query":"capital of France"}`)),
		mocks.TextStep("Paris is the capital."),
	)
	searchAgent, err := NewRunnerBuilder(Config{Name: "search", Model: "gpt-4o-mini", SystemPrompt: SearchAgentPrompt}).
		WithProvider(subProvider).
		WithTools(searchTools).
		Build()
	require.NoError(t, err)

	outerProvider := mocks.NewMockProvider().WithStreamSteps(
		mocks.ToolCallStep("", toolCall("d1", "delegateToSearchAgent", `{"task":"What is the capital of France?"}`)),
		mocks.TextStep("The capital of France is Paris."),
	)
	orchestrator, err := NewRunnerBuilder(Config{
		Name:         "orchestrator",
		Model:        "gpt-4o",
		SystemPrompt: OrchestratorPrompt([]TeamMember{SearchTeamMember("delegateToSearchAgent")}),
	}).
		WithProvider(outerProvider).
		WithDelegate(searchAgent, AgentToolConfig{Name: "delegateToSearchAgent", Namespace: "search", DisplayName: "Search"}).
		Build()
	require.NoError(t, err)

	rec := newRecorder()
	history, err := orchestrator.Run(context.Background(), "What is the capital of France?", nil, rec.callbacks())
	require.NoError(t, err)

	assert.Equal(t, []string{"delegateToSearchAgent", "search → search"}, rec.starts)
	require.Len(t, rec.ends, 2)
	assert.Equal(t, "search → search", rec.ends[0].name)
	assert.Equal(t, "delegateToSearchAgent", rec.ends[1].name)
	// 子智能体的结果是整轮累积文本
	assert.Equal(t, "Searching...Paris is the capital.", rec.ends[1].result)

	assert.Equal(t, "The capital of France is Paris.", rec.joinedTokens())
	assert.NotContains(t, rec.joinedTokens(), "Searching...")
	assert.Equal(t, []string{"The capital of France is Paris."}, rec.completes)

	// 外层模型看到委派工具，子智能体只看到 search
	outerReq := outerProvider.StreamRequests()[0]
	require.Len(t, outerReq.Tools, 1)
	assert.Equal(t, "delegateToSearchAgent", outerReq.Tools[0].Name)
	subReq := subProvider.StreamRequests()[0]
	require.Len(t, subReq.Tools, 1)
	assert.Equal(t, "search", subReq.Tools[0].Name)
	assert.Equal(t, []types.Role{types.RoleSystem, types.RoleUser}, roles(subReq.Messages))

	assert.Equal(t, "Searching...Paris is the capital.", history[2].ToolResults()[0].Output)
}

func TestAgentTool_NestedDelegationRejected(t *testing.T) {
	leaf := &toolTestAgent{name: "leaf"}

	midProvider := mocks.NewMockProvider().WithStreamSteps(
		mocks.ToolCallStep("", toolCall("l1", "delegateToLeafAgent", `{"task":"go deeper"}`)),
		mocks.TextStep("could not delegate"),
	)
	mid, err := NewRunnerBuilder(Config{Name: "mid", Model: "gpt-4o"}).
		WithProvider(midProvider).
		WithDelegate(leaf, AgentToolConfig{}).
		Build()
	require.NoError(t, err)

	outerProvider := mocks.NewMockProvider().WithStreamSteps(
		mocks.ToolCallStep("", toolCall("m1", "delegateToMidAgent", `{"task":"start"}`)),
		mocks.TextStep("finished"),
	)
	outer, err := NewRunnerBuilder(Config{Name: "outer", Model: "gpt-4o"}).
		WithProvider(outerProvider).
		WithDelegate(mid, AgentToolConfig{}).
		Build()
	require.NoError(t, err)

	rec := newRecorder()
	_, err = outer.Run(context.Background(), "go", nil, rec.callbacks())
	require.NoError(t, err)

	assert.Empty(t, leaf.messages, "second-level delegation must not run")
	require.Len(t, rec.ends, 2)
	assert.Equal(t, "mid → delegateToLeafAgent", rec.ends[0].name)
	assert.Contains(t, rec.ends[0].result, "Error from delegateToLeafAgent")
	assert.Contains(t, rec.ends[0].result, string(types.ErrDelegationDepth))
}

func TestRunnerBuilder_DelegateCollisions(t *testing.T) {
	sub := &toolTestAgent{name: "search"}

	_, err := NewRunnerBuilder(Config{Name: "o"}).
		WithProvider(mocks.NewMockProvider()).
		WithDelegate(sub, AgentToolConfig{}).
		WithDelegate(sub, AgentToolConfig{}).
		Build()
	assert.ErrorContains(t, err, "duplicate delegation tool")

	reg := llmtools.NewRegistry(nil)
	require.NoError(t, reg.Register("delegateToSearchAgent", func(context.Context, json.RawMessage) (any, error) { return nil, nil }, llmtools.ToolMetadata{}))
	_, err = NewRunnerBuilder(Config{Name: "o"}).
		WithProvider(mocks.NewMockProvider()).
		WithTools(reg).
		WithDelegate(sub, AgentToolConfig{}).
		Build()
	assert.ErrorContains(t, err, "collides")

	_, err = NewRunnerBuilder(Config{Name: "o"}).
		WithProvider(mocks.NewMockProvider()).
		WithDelegate(nil, AgentToolConfig{Name: "x"}).
		Build()
	assert.ErrorContains(t, err, "agent cannot be nil")
}
