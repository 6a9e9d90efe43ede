package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCollector(t *testing.T) *Collector {
	t.Helper()
	return NewCollector("test", prometheus.NewRegistry(), zap.NewNop())
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	c := newTestCollector(t)

	assert.NotNil(t, c.httpRequestsTotal)
	assert.NotNil(t, c.turnsTotal)
	assert.NotNil(t, c.compactionsTotal)
	assert.NotNil(t, c.toolCallsTotal)
}

func TestNewCollector_SeparateRegistries(t *testing.T) {
	// 同一 namespace 注册到不同 Registry 不会冲突
	assert.NotPanics(t, func() {
		NewCollector("agentrelay", prometheus.NewRegistry(), nil)
		NewCollector("agentrelay", prometheus.NewRegistry(), nil)
	})
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	c := newTestCollector(t)

	c.RecordHTTPRequest("GET", "/health", 200, 10*time.Millisecond)
	c.RecordHTTPRequest("GET", "/health", 204, 10*time.Millisecond)
	c.RecordHTTPRequest("GET", "/health", 503, 10*time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("GET", "/health", "2xx")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("GET", "/health", "5xx")))
}

func TestCollector_RecordLLMRequest(t *testing.T) {
	c := newTestCollector(t)

	c.RecordLLMRequest("openai", "gpt-4o", "stream", "success", 100, 20)
	c.RecordLLMRequest("openai", "gpt-4o", "stream", "success", 0, 0)

	assert.Equal(t, float64(2), testutil.ToFloat64(c.llmRequestsTotal.WithLabelValues("openai", "gpt-4o", "stream", "success")))
	assert.Equal(t, float64(100), testutil.ToFloat64(c.llmTokensUsed.WithLabelValues("openai", "gpt-4o", "prompt")))
	assert.Equal(t, float64(20), testutil.ToFloat64(c.llmTokensUsed.WithLabelValues("openai", "gpt-4o", "completion")))
}

func TestCollector_AgentMetrics(t *testing.T) {
	c := newTestCollector(t)

	c.RecordTurn("orchestrator", "success", time.Second)
	c.RecordStep("orchestrator")
	c.RecordStep("orchestrator")
	c.RecordCompaction("orchestrator", "success")
	c.RecordToolCall("orchestrator", "search", "error")
	c.SetContextUsage("orchestrator", 0.85)
	c.RecordStreamError("orchestrator", "partial")

	assert.Equal(t, float64(1), testutil.ToFloat64(c.turnsTotal.WithLabelValues("orchestrator", "success")))
	assert.Equal(t, float64(2), testutil.ToFloat64(c.stepsTotal.WithLabelValues("orchestrator")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.compactionsTotal.WithLabelValues("orchestrator", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.toolCallsTotal.WithLabelValues("orchestrator", "search", "error")))
	assert.InDelta(t, 0.85, testutil.ToFloat64(c.contextUsage.WithLabelValues("orchestrator")), 1e-9)
	assert.Equal(t, float64(1), testutil.ToFloat64(c.streamErrors.WithLabelValues("orchestrator", "partial")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.turnDuration))
}

func TestCollector_Connections(t *testing.T) {
	c := newTestCollector(t)

	c.ConnectionOpened()
	c.ConnectionOpened()
	c.ConnectionClosed()
	assert.Equal(t, float64(1), testutil.ToFloat64(c.activeConnections))
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector
	require.NotPanics(t, func() {
		c.RecordHTTPRequest("GET", "/", 200, time.Millisecond)
		c.RecordLLMRequest("p", "m", "stream", "success", 1, 1)
		c.RecordTurn("a", "success", time.Second)
		c.RecordStep("a")
		c.RecordCompaction("a", "error")
		c.RecordToolCall("a", "t", "success")
		c.SetContextUsage("a", 0.5)
		c.RecordStreamError("a", "open")
		c.ConnectionOpened()
		c.ConnectionClosed()
	})
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "2xx"}, {301, "3xx"}, {404, "4xx"}, {502, "5xx"}, {101, "101"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusCode(tt.code))
	}
}
