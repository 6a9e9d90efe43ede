// Package api defines the wire types of the AgentRelay HTTP and WebSocket
// API.
//
// # Endpoints
//
//   - GET /v1/chat    WebSocket. The client sends ClientMessage frames and
//     receives a stream of ServerEvent frames per turn.
//   - GET /v1/agent   AgentInfo of the served orchestrator.
//   - GET /health, /healthz, /ready, /version
//   - GET /metrics    Prometheus metrics (on the metrics port)
//
// # Chat protocol
//
// Each connection holds its own conversation history. One turn runs at a
// time per connection; a message sent while a turn is running is answered
// with an "error" event. A turn produces any number of "token",
// "tool_call_start", "tool_call_end" and "token_usage" events and ends with
// exactly one "complete" or "error" event.
package api
