// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器。所有 Record 方法对 nil 接收者安全。
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// LLM 指标
	llmRequestsTotal *prometheus.CounterVec
	llmTokensUsed    *prometheus.CounterVec

	// Agent 指标
	turnsTotal       *prometheus.CounterVec
	turnDuration     *prometheus.HistogramVec
	stepsTotal       *prometheus.CounterVec
	compactionsTotal *prometheus.CounterVec
	toolCallsTotal   *prometheus.CounterVec
	contextUsage     *prometheus.GaugeVec
	streamErrors     *prometheus.CounterVec

	// 连接指标
	activeConnections prometheus.Gauge

	logger *zap.Logger
}

// NewCollector 创建指标收集器。reg 为 nil 时注册到 prometheus.DefaultRegisterer。
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// LLM 指标
	c.llmRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of LLM requests",
		},
		[]string{"provider", "model", "kind", "status"},
	)

	c.llmTokensUsed = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_used_total",
			Help:      "Total number of tokens reported by the provider",
		},
		[]string{"provider", "model", "type"},
	)

	// Agent 指标
	c.turnsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_turns_total",
			Help:      "Total number of agent turns",
		},
		[]string{"agent", "status"},
	)

	c.turnDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_turn_duration_seconds",
			Help:      "Agent turn duration in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"agent"},
	)

	c.stepsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_steps_total",
			Help:      "Total number of model streaming steps",
		},
		[]string{"agent"},
	)

	c.compactionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_compactions_total",
			Help:      "Total number of history compactions",
		},
		[]string{"agent", "status"},
	)

	c.toolCallsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_tool_calls_total",
			Help:      "Total number of tool calls dispatched",
		},
		[]string{"agent", "tool", "status"},
	)

	c.contextUsage = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "agent_context_usage_ratio",
			Help:      "Estimated share of the available context window in use",
		},
		[]string{"agent"},
	)

	c.streamErrors = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_stream_errors_total",
			Help:      "Total number of model stream failures",
		},
		[]string{"agent", "kind"},
	)

	c.activeConnections = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chat_active_connections",
			Help:      "Number of open chat connections",
		},
	)

	c.logger.Debug("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// =============================================================================
// 🌐 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// =============================================================================
// 🤖 LLM 指标记录
// =============================================================================

// RecordLLMRequest 记录一次模型调用。kind 为 "stream" 或 "completion"。
func (c *Collector) RecordLLMRequest(provider, model, kind, status string, promptTokens, completionTokens int) {
	if c == nil {
		return
	}
	c.llmRequestsTotal.WithLabelValues(provider, model, kind, status).Inc()
	if promptTokens > 0 {
		c.llmTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		c.llmTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	}
}

// =============================================================================
// 🎯 Agent 指标记录
// =============================================================================

// RecordTurn 记录一个完整回合
func (c *Collector) RecordTurn(agent, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.turnsTotal.WithLabelValues(agent, status).Inc()
	c.turnDuration.WithLabelValues(agent).Observe(duration.Seconds())
}

// RecordStep 记录一次流式模型调用
func (c *Collector) RecordStep(agent string) {
	if c == nil {
		return
	}
	c.stepsTotal.WithLabelValues(agent).Inc()
}

// RecordCompaction 记录一次历史压缩
func (c *Collector) RecordCompaction(agent, status string) {
	if c == nil {
		return
	}
	c.compactionsTotal.WithLabelValues(agent, status).Inc()
}

// RecordToolCall 记录一次工具调用
func (c *Collector) RecordToolCall(agent, tool, status string) {
	if c == nil {
		return
	}
	c.toolCallsTotal.WithLabelValues(agent, tool, status).Inc()
}

// SetContextUsage 设置上下文占用比例
func (c *Collector) SetContextUsage(agent string, ratio float64) {
	if c == nil {
		return
	}
	c.contextUsage.WithLabelValues(agent).Set(ratio)
}

// RecordStreamError 记录流错误
func (c *Collector) RecordStreamError(agent, kind string) {
	if c == nil {
		return
	}
	c.streamErrors.WithLabelValues(agent, kind).Inc()
}

// =============================================================================
// 🔌 连接指标
// =============================================================================

// ConnectionOpened 连接数加一
func (c *Collector) ConnectionOpened() {
	if c == nil {
		return
	}
	c.activeConnections.Inc()
}

// ConnectionClosed 连接数减一
func (c *Collector) ConnectionClosed() {
	if c == nil {
		return
	}
	c.activeConnections.Dec()
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return strconv.Itoa(code)
	}
}
