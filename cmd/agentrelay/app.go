package main

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/BaSui01/agentrelay/agent"
	agentcontext "github.com/BaSui01/agentrelay/agent/context"
	"github.com/BaSui01/agentrelay/config"
	"github.com/BaSui01/agentrelay/internal/metrics"
	"github.com/BaSui01/agentrelay/llm"
	"github.com/BaSui01/agentrelay/llm/providers/openaicompat"
	"github.com/BaSui01/agentrelay/llm/tokenizer"
	llmtools "github.com/BaSui01/agentrelay/llm/tools"
)

const (
	metricsNamespace = "agentrelay"
	searchAgentName  = "search"
	searchToolName   = "delegateToSearchAgent"
)

// app 持有一次进程内共享的智能体与依赖
type app struct {
	cfg          *config.Config
	provider     llm.Provider
	orchestrator *agent.Runner
	search       *agent.Runner // 未启用搜索时为 nil
	metrics      *metrics.Collector
	logger       *zap.Logger
}

// newProvider 创建 OpenAI 兼容的模型提供方
func newProvider(cfg *config.Config, logger *zap.Logger) (llm.Provider, error) {
	if cfg.LLM.APIKey == "" {
		return nil, fmt.Errorf("llm api key is not configured (set llm.api_key or OPENAI_API_KEY)")
	}
	return openaicompat.New(openaicompat.Config{
		ProviderName: cfg.LLM.Provider,
		APIKey:       cfg.LLM.APIKey,
		BaseURL:      cfg.LLM.BaseURL,
		DefaultModel: cfg.Agent.Model,
		Timeout:      cfg.LLM.Timeout,
	}, logger), nil
}

// newApp 组装编排智能体：共享的窗口注册表与估算器、可选的搜索子智能体
func newApp(cfg *config.Config, provider llm.Provider, reg prometheus.Registerer, logger *zap.Logger) (*app, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	collector := metrics.NewCollector(metricsNamespace, reg, logger)

	overrides := make([]agentcontext.ModelLimits, 0, len(cfg.Context.Models))
	for _, m := range cfg.Context.Models {
		overrides = append(overrides, agentcontext.ModelLimits{
			ModelID:              m.ID,
			ContextWindow:        m.ContextWindow,
			ReservedOutputTokens: m.ReservedOutputTokens,
		})
	}
	limits := agentcontext.NewLimitsRegistry(overrides...)

	tok, err := tokenizer.New(cfg.Context.Tokenizer, cfg.Agent.Model)
	if err != nil {
		return nil, err
	}
	estimator := tokenizer.NewEstimator(tok,
		tokenizer.WithSafetyFactor(cfg.Context.SafetyFactor),
		tokenizer.WithLogger(logger),
	)

	a := &app{cfg: cfg, provider: provider, metrics: collector, logger: logger}

	var (
		team      []agent.TeamMember
		delegates []*agent.Runner
	)
	switch {
	case !cfg.Search.Enabled:
		logger.Info("search agent disabled")
	case cfg.Search.APIKey == "":
		logger.Warn("search agent disabled: no search api key (set search.api_key or TAVILY_API_KEY)")
	default:
		search, err := newSearchAgent(cfg, provider, limits, estimator, collector, logger)
		if err != nil {
			return nil, fmt.Errorf("build search agent: %w", err)
		}
		a.search = search
		delegates = append(delegates, search)
		team = append(team, agent.SearchTeamMember(searchToolName))
	}

	prompt := cfg.Agent.SystemPrompt
	if prompt == "" {
		prompt = agent.OrchestratorPrompt(team)
	}

	builder := agent.NewRunnerBuilder(agent.Config{
		Name:         cfg.Agent.Name,
		Model:        cfg.Agent.Model,
		SummaryModel: cfg.Agent.SummaryModel,
		SystemPrompt: prompt,
		MaxSteps:     cfg.Agent.MaxSteps,
		Threshold:    cfg.Context.Threshold,
		MaxTokens:    cfg.Agent.MaxTokens,
		Temperature:  float32(cfg.Agent.Temperature),
	})
	for _, d := range delegates {
		builder.WithDelegate(d, agent.AgentToolConfig{
			Name:        searchToolName,
			Namespace:   searchAgentName,
			DisplayName: "Search",
			MaxDepth:    cfg.Agent.MaxDelegationDepth,
		})
	}

	orchestrator, err := builder.
		WithProvider(provider).
		WithLimits(limits).
		WithEstimator(estimator).
		WithMetrics(collector).
		WithLogger(logger).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build orchestrator: %w", err)
	}
	a.orchestrator = orchestrator
	return a, nil
}

// newSearchAgent 创建带网页搜索工具的子智能体
func newSearchAgent(
	cfg *config.Config,
	provider llm.Provider,
	limits *agentcontext.LimitsRegistry,
	estimator *tokenizer.Estimator,
	collector *metrics.Collector,
	logger *zap.Logger,
) (*agent.Runner, error) {
	toolCfg := llmtools.DefaultWebSearchToolConfig()
	toolCfg.Provider = llmtools.NewTavilyProvider(llmtools.TavilyConfig{
		APIKey:  cfg.Search.APIKey,
		BaseURL: cfg.Search.BaseURL,
		Timeout: cfg.Search.Timeout,
	})
	if cfg.Search.MaxResults > 0 {
		toolCfg.DefaultOpts.MaxResults = cfg.Search.MaxResults
	}
	if cfg.Search.Timeout > 0 {
		toolCfg.Timeout = cfg.Search.Timeout
	}
	if cfg.Search.RateLimitPerMinute > 0 {
		toolCfg.RateLimit = &llmtools.RateLimitConfig{MaxCalls: cfg.Search.RateLimitPerMinute, Window: time.Minute}
	}

	registry := llmtools.NewRegistry(logger)
	if err := llmtools.RegisterWebSearchTool(registry, toolCfg, logger); err != nil {
		return nil, err
	}

	model := cfg.Search.Model
	if model == "" {
		model = cfg.Agent.Model
	}
	return agent.NewRunnerBuilder(agent.Config{
		Name:         searchAgentName,
		Model:        model,
		SystemPrompt: agent.SearchAgentPrompt,
		MaxSteps:     cfg.Agent.MaxSteps,
		Threshold:    cfg.Context.Threshold,
		MaxTokens:    cfg.Agent.MaxTokens,
		Temperature:  float32(cfg.Agent.Temperature),
	}).
		WithProvider(provider).
		WithTools(registry).
		WithLimits(limits).
		WithEstimator(estimator).
		WithMetrics(collector).
		WithLogger(logger).
		Build()
}
