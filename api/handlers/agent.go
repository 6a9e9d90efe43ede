package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentrelay/agent"
	agentcontext "github.com/BaSui01/agentrelay/agent/context"
	"github.com/BaSui01/agentrelay/api"
	"github.com/BaSui01/agentrelay/types"
)

// =============================================================================
// Agent Info Handler
// =============================================================================

// AgentDescriber is what the info endpoint needs from an agent.
// *agent.Runner implements it.
type AgentDescriber interface {
	Name() string
	Config() agent.Config
	Limits() agentcontext.ModelLimits
	Tools() []types.ToolSchema
}

// AgentHandler serves information about the orchestrator.
type AgentHandler struct {
	agent     AgentDescriber
	startedAt time.Time
	logger    *zap.Logger
}

// NewAgentHandler creates an Agent handler
func NewAgentHandler(a AgentDescriber, logger *zap.Logger) *AgentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AgentHandler{
		agent:     a,
		startedAt: time.Now(),
		logger:    logger,
	}
}

// HandleGetAgent returns the orchestrator configuration, its context window
// and the tools offered to the model.
// @Router /v1/agent [get]
func (h *AgentHandler) HandleGetAgent(w http.ResponseWriter, r *http.Request) {
	if h.agent == nil {
		WriteErrorMessage(w, http.StatusServiceUnavailable, types.ErrServiceUnavailable, "no agent configured", h.logger)
		return
	}

	cfg := h.agent.Config()
	limits := h.agent.Limits()
	schemas := h.agent.Tools()

	tools := make([]api.ToolInfo, 0, len(schemas))
	for _, s := range schemas {
		tools = append(tools, api.ToolInfo{Name: s.Name, Description: s.Description})
	}

	WriteSuccess(w, api.AgentInfo{
		Name:            h.agent.Name(),
		Model:           cfg.Model,
		SummaryModel:    cfg.SummaryModel,
		MaxSteps:        cfg.MaxSteps,
		Threshold:       cfg.Threshold,
		ContextWindow:   limits.ContextWindow,
		AvailableWindow: limits.Available(),
		Tools:           tools,
		StartedAt:       h.startedAt,
	})
}
