package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentrelay/types"
)

func echoTool(_ context.Context, args json.RawMessage) (any, error) {
	return args, nil
}

func call(name, args string) types.ToolCall {
	return types.ToolCall{ID: "call_" + name, Name: name, Arguments: json.RawMessage(args)}
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	reg := NewRegistry(zap.NewNop())

	require.NoError(t, reg.Register("echo", echoTool, ToolMetadata{}))
	require.NoError(t, reg.Register("alpha", echoTool, ToolMetadata{
		Schema: types.ToolSchema{Name: "alpha", Description: "first"},
	}))
	assert.Equal(t, 2, reg.Len())

	tool, ok := reg.Lookup("echo")
	require.True(t, ok)
	assert.Equal(t, "echo", tool.Name())
	assert.JSONEq(t, `{"type":"object","properties":{}}`, string(tool.Metadata.Schema.Parameters))

	_, ok = reg.Lookup("ech")
	assert.False(t, ok, "lookup must be exact")

	schemas := reg.Schemas()
	require.Len(t, schemas, 2)
	assert.Equal(t, "alpha", schemas[0].Name)
	assert.Equal(t, "echo", schemas[1].Name)
}

func TestRegistry_RegisterErrors(t *testing.T) {
	reg := NewRegistry(nil)

	assert.Error(t, reg.Register("nil", nil, ToolMetadata{}))
	assert.Error(t, reg.Register("a", echoTool, ToolMetadata{Schema: types.ToolSchema{Name: "b"}}))

	require.NoError(t, reg.Register("dup", echoTool, ToolMetadata{}))
	assert.Error(t, reg.Register("dup", echoTool, ToolMetadata{}))

	require.NoError(t, reg.Unregister("dup"))
	assert.Error(t, reg.Unregister("dup"))
	assert.Equal(t, 0, reg.Len())
}

func TestExecutor_Execute(t *testing.T) {
	exec := NewExecutor(zap.NewNop())

	tests := []struct {
		name    string
		fn      ToolFunc
		args    string
		want    string
		wantErr string
	}{
		{
			name: "raw json passthrough",
			fn:   echoTool,
			args: `{"city":"Paris"}`,
			want: `{"city":"Paris"}`,
		},
		{
			name: "empty args become empty object",
			fn:   echoTool,
			args: ``,
			want: `{}`,
		},
		{
			name: "struct result is json encoded",
			fn: func(context.Context, json.RawMessage) (any, error) {
				return map[string]int{"count": 3}, nil
			},
			args: `{}`,
			want: `{"count":3}`,
		},
		{
			name: "string result is verbatim",
			fn: func(context.Context, json.RawMessage) (any, error) {
				return "3 flights found", nil
			},
			args: `{}`,
			want: "3 flights found",
		},
		{
			name: "tool error is returned",
			fn: func(context.Context, json.RawMessage) (any, error) {
				return nil, errors.New("rate limited")
			},
			args:    `{}`,
			wantErr: "rate limited",
		},
		{
			name: "panic is recovered",
			fn: func(context.Context, json.RawMessage) (any, error) {
				panic("boom")
			},
			args:    `{}`,
			wantErr: "tool panicked: boom",
		},
		{
			name:    "invalid json arguments",
			fn:      echoTool,
			args:    `{"city":`,
			wantErr: "not valid JSON",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tool := NewTool(tt.fn, ToolMetadata{Schema: types.ToolSchema{Name: "t"}})
			got, err := exec.Execute(context.Background(), tool, call("t", tt.args))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExecutor_InvalidArgumentsErrorCode(t *testing.T) {
	tool := NewTool(echoTool, ToolMetadata{Schema: types.ToolSchema{Name: "t"}})
	_, err := NewExecutor(nil).Execute(context.Background(), tool, call("t", `nope`))
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidToolInput))
}

func TestExecutor_RateLimit(t *testing.T) {
	tool := NewTool(echoTool, ToolMetadata{
		Schema:    types.ToolSchema{Name: "limited"},
		RateLimit: &RateLimitConfig{MaxCalls: 1, Window: time.Hour},
	})
	exec := NewExecutor(nil)

	_, err := exec.Execute(context.Background(), tool, call("limited", `{}`))
	require.NoError(t, err)

	_, err = exec.Execute(context.Background(), tool, call("limited", `{}`))
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrToolRateLimited))
}

func TestExecutor_Timeout(t *testing.T) {
	slow := func(ctx context.Context, _ json.RawMessage) (any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return "late", nil
		}
	}
	tool := NewTool(slow, ToolMetadata{Schema: types.ToolSchema{Name: "slow"}, Timeout: 20 * time.Millisecond})

	_, err := NewExecutor(nil).Execute(context.Background(), tool, call("slow", `{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
}

func TestExecutor_ParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	blocking := func(ctx context.Context, _ json.RawMessage) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	tool := NewTool(blocking, ToolMetadata{Schema: types.ToolSchema{Name: "b"}})

	_, err := NewExecutor(nil).Execute(ctx, tool, call("b", `{}`))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStringify(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"string", "hello", "hello"},
		{"raw", json.RawMessage(`[1,2]`), "[1,2]"},
		{"bytes", []byte("abc"), "abc"},
		{"number", 42, "42"},
		{"slice", []string{"a"}, `["a"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Stringify(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Stringify(make(chan int))
	assert.Error(t, err)
}

func TestRegistry_Clone(t *testing.T) {
	base := NewRegistry(nil)
	require.NoError(t, base.Register("echo", echoTool, ToolMetadata{}))

	clone := base.Clone()
	require.NoError(t, clone.Register("extra", echoTool, ToolMetadata{}))

	assert.Equal(t, 1, base.Len())
	assert.Equal(t, 2, clone.Len())
	_, ok := base.Lookup("extra")
	assert.False(t, ok)
}
