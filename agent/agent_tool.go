package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"

	llmtools "github.com/BaSui01/agentrelay/llm/tools"
	"github.com/BaSui01/agentrelay/types"
)

// DefaultMaxDelegationDepth allows one level of delegation: an orchestrator
// may call sub-agents, which may not delegate further.
const DefaultMaxDelegationDepth = 1

// AgentToolConfig configures how an Agent is exposed as a tool.
type AgentToolConfig struct {
	// Name overrides the default tool name (default: "delegateTo<Display>Agent").
	Name string

	// Namespace prefixes the sub-agent's tool events (default: lower-cased agent name).
	Namespace string

	// DisplayName is used in the "no results" message (default: the agent name, capitalized).
	DisplayName string

	// Description overrides the tool description.
	Description string

	// Timeout limits the sub-agent run. Zero means no extra timeout.
	Timeout time.Duration

	// MaxDepth bounds nested delegation (default: DefaultMaxDelegationDepth).
	MaxDepth int

	// RequiresApproval asks the user before delegating.
	RequiresApproval bool
}

func (c AgentToolConfig) displayName(a Agent) string {
	if c.DisplayName != "" {
		return c.DisplayName
	}
	name := a.Name()
	if name == "" {
		return "Sub"
	}
	r := []rune(name)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

func (c AgentToolConfig) namespace(a Agent) string {
	if c.Namespace != "" {
		return c.Namespace
	}
	return strings.ToLower(a.Name())
}

func (c AgentToolConfig) toolName(a Agent) string {
	if c.Name != "" {
		return c.Name
	}
	return "delegateTo" + strings.ReplaceAll(c.displayName(a), " ", "") + "Agent"
}

// AgentTool wraps an Agent as a callable tool. It is bound to the callbacks
// of one outer run and must not outlive it.
type AgentTool struct {
	agent  Agent
	config AgentToolConfig
	outer  Callbacks
	name   string
}

// NewAgentTool creates an AgentTool that delegates to sub and proxies its
// tool activity to outer.
func NewAgentTool(sub Agent, config AgentToolConfig, outer Callbacks) *AgentTool {
	if config.MaxDepth <= 0 {
		config.MaxDepth = DefaultMaxDelegationDepth
	}
	return &AgentTool{
		agent:  sub,
		config: config,
		outer:  outer,
		name:   config.toolName(sub),
	}
}

// agentToolArgs is the JSON schema expected in the tool arguments.
type agentToolArgs struct {
	Task string `json:"task"`
}

// Name returns the tool name.
func (at *AgentTool) Name() string { return at.name }

// Agent returns the underlying Agent instance.
func (at *AgentTool) Agent() Agent { return at.agent }

// Schema returns the ToolSchema describing this agent-as-tool.
func (at *AgentTool) Schema() types.ToolSchema {
	desc := at.config.Description
	if desc == "" {
		desc = fmt.Sprintf("Delegate a task to the %s agent.", at.config.displayName(at.agent))
	}
	return types.ToolSchema{
		Name:        at.name,
		Description: desc,
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"task": {
					"type": "string",
					"description": "The task to delegate, with all details the agent needs"
				}
			},
			"required": ["task"]
		}`),
	}
}

// Metadata returns the registry metadata for this tool.
func (at *AgentTool) Metadata() llmtools.ToolMetadata {
	return llmtools.ToolMetadata{
		Schema:           at.Schema(),
		Timeout:          at.config.Timeout,
		RequiresApproval: at.config.RequiresApproval,
	}
}

// Execute runs the sub-agent on the task in args with an empty history and
// returns its final text. It satisfies llmtools.ToolFunc.
func (at *AgentTool) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	var params agentToolArgs
	if len(args) > 0 {
		if err := json.Unmarshal(args, &params); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
	}
	if strings.TrimSpace(params.Task) == "" {
		return nil, fmt.Errorf("missing required field: task")
	}

	depth := types.DelegationDepth(ctx)
	if depth >= at.config.MaxDepth {
		return nil, types.NewError(types.ErrDelegationDepth,
			fmt.Sprintf("delegation depth %d exceeds the limit of %d", depth+1, at.config.MaxDepth))
	}
	ctx = types.WithDelegationDepth(ctx, depth+1)

	var result string
	if _, err := at.agent.Run(ctx, params.Task, nil, at.derive(&result)); err != nil {
		return nil, err
	}
	if strings.TrimSpace(result) == "" {
		return fmt.Sprintf("%s agent returned no results.", at.config.displayName(at.agent)), nil
	}
	return result, nil
}

// derive builds the callbacks handed to the sub-agent: its tokens are
// dropped, its tool events are namespaced, approval and usage pass through
// and its completion is captured into result.
func (at *AgentTool) derive(result *string) Callbacks {
	ns := at.config.namespace(at.agent)
	outer := at.outer
	return Callbacks{
		OnToken: func(string) {},
		OnToolCallStart: func(name string, args json.RawMessage) {
			outer.toolCallStart(ns+" → "+name, args)
		},
		OnToolCallEnd: func(name, res string) {
			outer.toolCallEnd(ns+" → "+name, res)
		},
		OnComplete: func(text string) {
			*result = text
		},
		OnToolApproval: outer.OnToolApproval,
		OnTokenUsage:   outer.OnTokenUsage,
	}
}
