package agent

import (
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	agentcontext "github.com/BaSui01/agentrelay/agent/context"
	"github.com/BaSui01/agentrelay/internal/metrics"
	"github.com/BaSui01/agentrelay/llm"
	"github.com/BaSui01/agentrelay/llm/tokenizer"
	llmtools "github.com/BaSui01/agentrelay/llm/tools"
)

const tracerName = "github.com/BaSui01/agentrelay/agent"

// RunnerBuilder 提供流式构建 Runner 的能力
// 支持链式调用，错误在 Build 时统一返回
type RunnerBuilder struct {
	config    Config
	provider  llm.Provider
	tools     *llmtools.Registry
	executor  *llmtools.Executor
	limits    *agentcontext.LimitsRegistry
	estimator *tokenizer.Estimator
	compactor *agentcontext.Compactor
	delegates []delegate
	metrics   *metrics.Collector
	logger    *zap.Logger

	errors []error
}

// NewRunnerBuilder 创建 Runner 构建器
func NewRunnerBuilder(config Config) *RunnerBuilder {
	return &RunnerBuilder{config: config}
}

// WithProvider 设置 LLM Provider
func (b *RunnerBuilder) WithProvider(provider llm.Provider) *RunnerBuilder {
	if provider == nil {
		b.errors = append(b.errors, fmt.Errorf("provider cannot be nil"))
		return b
	}
	b.provider = provider
	return b
}

// WithTools 设置工具注册中心
func (b *RunnerBuilder) WithTools(registry *llmtools.Registry) *RunnerBuilder {
	b.tools = registry
	return b
}

// WithExecutor 设置工具执行器
func (b *RunnerBuilder) WithExecutor(executor *llmtools.Executor) *RunnerBuilder {
	b.executor = executor
	return b
}

// WithLimits 设置模型窗口注册表（可在多个 Runner 之间共享）
func (b *RunnerBuilder) WithLimits(limits *agentcontext.LimitsRegistry) *RunnerBuilder {
	b.limits = limits
	return b
}

// WithEstimator 设置用量估算器
func (b *RunnerBuilder) WithEstimator(estimator *tokenizer.Estimator) *RunnerBuilder {
	b.estimator = estimator
	return b
}

// WithCompactor 设置历史压缩器，默认使用同一 Provider
func (b *RunnerBuilder) WithCompactor(compactor *agentcontext.Compactor) *RunnerBuilder {
	b.compactor = compactor
	return b
}

// WithDelegate 把子智能体暴露为委派工具
func (b *RunnerBuilder) WithDelegate(sub Agent, cfg AgentToolConfig) *RunnerBuilder {
	if sub == nil {
		b.errors = append(b.errors, fmt.Errorf("delegate %q: agent cannot be nil", cfg.Name))
		return b
	}
	b.delegates = append(b.delegates, delegate{agent: sub, cfg: cfg})
	return b
}

// WithMetrics 设置指标收集器
func (b *RunnerBuilder) WithMetrics(collector *metrics.Collector) *RunnerBuilder {
	b.metrics = collector
	return b
}

// WithLogger 设置日志器
func (b *RunnerBuilder) WithLogger(logger *zap.Logger) *RunnerBuilder {
	if logger == nil {
		b.errors = append(b.errors, fmt.Errorf("logger cannot be nil"))
		return b
	}
	b.logger = logger
	return b
}

// Build 创建 Runner
func (b *RunnerBuilder) Build() (*Runner, error) {
	// 检查构建过程中的错误
	if len(b.errors) > 0 {
		return nil, fmt.Errorf("builder has %d errors: %v", len(b.errors), b.errors[0])
	}

	// 验证必需字段
	if b.provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	cfg := b.config
	if strings.TrimSpace(cfg.Name) == "" {
		return nil, fmt.Errorf("agent name is required")
	}
	if cfg.Threshold < 0 || cfg.Threshold > 1 {
		return nil, fmt.Errorf("threshold must be in [0, 1], got %v", cfg.Threshold)
	}
	if cfg.MaxSteps < 0 {
		return nil, fmt.Errorf("max steps must not be negative, got %d", cfg.MaxSteps)
	}

	// 默认值
	if cfg.MaxSteps == 0 {
		cfg.MaxSteps = DefaultMaxSteps
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = agentcontext.DefaultThreshold
	}
	if cfg.SummaryModel == "" {
		cfg.SummaryModel = cfg.Model
	}
	if b.logger == nil {
		b.logger = zap.NewNop()
	}
	logger := b.logger.With(zap.String("component", "agent"), zap.String("agent", cfg.Name))

	if b.tools == nil {
		b.tools = llmtools.NewRegistry(b.logger)
	}
	if b.executor == nil {
		b.executor = llmtools.NewExecutor(b.logger)
	}
	if b.limits == nil {
		b.limits = agentcontext.NewLimitsRegistry()
	}
	if b.estimator == nil {
		b.estimator = tokenizer.NewEstimator(nil, tokenizer.WithLogger(b.logger))
	}
	if b.compactor == nil {
		b.compactor = agentcontext.NewCompactor(b.provider, cfg.SummaryModel, b.logger)
	}

	seen := make(map[string]bool, len(b.delegates))
	for _, d := range b.delegates {
		name := d.cfg.toolName(d.agent)
		if seen[name] {
			return nil, fmt.Errorf("duplicate delegation tool %q", name)
		}
		if _, exists := b.tools.Lookup(name); exists {
			return nil, fmt.Errorf("delegation tool %q collides with a registered tool", name)
		}
		seen[name] = true
	}

	return &Runner{
		cfg:       cfg,
		provider:  b.provider,
		tools:     b.tools,
		executor:  b.executor,
		limits:    b.limits,
		estimator: b.estimator,
		compactor: b.compactor,
		delegates: append([]delegate(nil), b.delegates...),
		metrics:   b.metrics,
		logger:    logger,
		tracer:    otel.Tracer(tracerName),
	}, nil
}
