package types

import "context"

// contextKey is used for storing values in context.Context.
type contextKey string

const (
	keyTraceID         contextKey = "trace_id"
	keyRunID           contextKey = "run_id"
	keyAgentName       contextKey = "agent_name"
	keyDelegationDepth contextKey = "delegation_depth"
)

// WithTraceID adds trace ID to context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, keyTraceID, traceID)
}

// TraceID extracts trace ID from context.
func TraceID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyTraceID).(string)
	return v, ok && v != ""
}

// WithRunID adds run ID to context.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, keyRunID, runID)
}

// RunID extracts run ID from context.
func RunID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyRunID).(string)
	return v, ok && v != ""
}

// WithAgentName adds the name of the running agent to context.
func WithAgentName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, keyAgentName, name)
}

// AgentName extracts the running agent name from context.
func AgentName(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyAgentName).(string)
	return v, ok && v != ""
}

// WithDelegationDepth records how many delegation hops led to the current run.
func WithDelegationDepth(ctx context.Context, depth int) context.Context {
	return context.WithValue(ctx, keyDelegationDepth, depth)
}

// DelegationDepth returns the delegation depth, zero for a top-level run.
func DelegationDepth(ctx context.Context) int {
	v, _ := ctx.Value(keyDelegationDepth).(int)
	return v
}
