package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/agentrelay/api"
	"github.com/BaSui01/agentrelay/config"
	"github.com/BaSui01/agentrelay/testutil/mocks"
)

func newTestServer(t *testing.T, cfg *config.Config, provider *mocks.MockProvider) *httptest.Server {
	t.Helper()
	registry := prometheus.NewRegistry()
	a, err := newApp(cfg, provider, registry, zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	srv := httptest.NewServer(NewServer(a, registry, zaptest.NewLogger(t)).Handler(ctx))
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string, header http.Header) (int, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServer_HealthEndpoints(t *testing.T) {
	srv := newTestServer(t, testConfig(), mocks.NewMockProvider())

	for _, path := range []string{"/health", "/healthz"} {
		status, body := get(t, srv.URL+path, nil)
		assert.Equal(t, http.StatusOK, status, path)
		assert.Contains(t, body, `"healthy"`, path)
	}

	status, body := get(t, srv.URL+"/ready", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "llm:mock")

	status, body = get(t, srv.URL+"/version", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, Version)
}

func TestServer_AgentInfo(t *testing.T) {
	cfg := testConfig()
	cfg.Search.Enabled = true
	cfg.Search.APIKey = "tvly-test"
	srv := newTestServer(t, cfg, mocks.NewMockProvider())

	status, body := get(t, srv.URL+"/v1/agent", nil)
	require.Equal(t, http.StatusOK, status)

	var resp struct {
		Success bool          `json:"success"`
		Data    api.AgentInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "orchestrator", resp.Data.Name)
	assert.Equal(t, cfg.Agent.Model, resp.Data.Model)
	assert.Positive(t, resp.Data.ContextWindow)
	require.Len(t, resp.Data.Tools, 1)
	assert.Equal(t, searchToolName, resp.Data.Tools[0].Name)
}

func TestServer_APIKeyRequired(t *testing.T) {
	cfg := testConfig()
	cfg.Server.APIKeys = []string{"secret"}
	srv := newTestServer(t, cfg, mocks.NewMockProvider())

	status, _ := get(t, srv.URL+"/v1/agent", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = get(t, srv.URL+"/v1/agent", http.Header{"X-Api-Key": []string{"secret"}})
	assert.Equal(t, http.StatusOK, status)

	status, _ = get(t, srv.URL+"/health", nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestServer_MetricsOnMainPortWhenUnset(t *testing.T) {
	cfg := testConfig()
	cfg.Server.MetricsPort = 0
	srv := newTestServer(t, cfg, mocks.NewMockProvider())

	status, _ := get(t, srv.URL+"/health", nil)
	require.Equal(t, http.StatusOK, status)

	status, body := get(t, srv.URL+"/metrics", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "agentrelay_http_requests_total")
}

func TestServer_MetricsNotOnMainPortWhenSeparate(t *testing.T) {
	cfg := testConfig()
	cfg.Server.MetricsPort = 9091
	srv := newTestServer(t, cfg, mocks.NewMockProvider())

	status, _ := get(t, srv.URL+"/metrics", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

// WebSocket 升级需要穿过整条中间件链
func TestServer_ChatThroughMiddleware(t *testing.T) {
	cfg := testConfig()
	cfg.Server.APIKeys = []string{"secret"}
	provider := mocks.NewMockProvider().WithStreamSteps(mocks.TextStep("Hello", " there"))
	srv := newTestServer(t, cfg, provider)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/chat"

	_, _, err := websocket.Dial(ctx, wsURL, nil)
	require.Error(t, err, "dial without api key must be rejected")

	conn, _, err := websocket.Dial(ctx, wsURL+"?api_key=secret", nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	require.NoError(t, wsjson.Write(ctx, conn, api.ClientMessage{Type: api.ClientMessageChat, Message: "hi"}))

	var (
		tokens strings.Builder
		last   api.ServerEvent
	)
	for {
		var ev api.ServerEvent
		require.NoError(t, wsjson.Read(ctx, conn, &ev))
		if ev.Type == api.EventToken {
			tokens.WriteString(ev.Content)
		}
		if ev.Type == api.EventComplete || ev.Type == api.EventError {
			last = ev
			break
		}
	}
	assert.Equal(t, api.EventComplete, last.Type)
	assert.Equal(t, "Hello there", last.Content)
	assert.Equal(t, "Hello there", tokens.String())

	conn.Close(websocket.StatusNormalClosure, "")
}

func TestCheckHealth(t *testing.T) {
	srv := newTestServer(t, testConfig(), mocks.NewMockProvider())
	assert.NoError(t, checkHealth(srv.URL+"/", time.Second))

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()
	assert.Error(t, checkHealth(down.URL, time.Second))
}
