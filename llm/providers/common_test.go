package providers

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentrelay/llm"
	"github.com/BaSui01/agentrelay/types"
)

func TestConvertMessagesToOpenAI(t *testing.T) {
	t.Parallel()

	msgs := []types.Message{
		types.NewSystemMessage("sys"),
		types.NewUserMessage("find flights"),
		types.NewToolCallMessage("Looking.", []types.ToolCall{
			{ID: "c1", Name: "searchFlights", Arguments: json.RawMessage(`{"to":"NRT"}`)},
			{ID: "c2", Name: "searchHotels"},
		}),
		{Role: types.RoleTool, Parts: []types.ContentPart{
			{Type: types.PartToolResult, ToolCallID: "c1", ToolName: "searchFlights", Output: "2 flights"},
			{Type: types.PartToolResult, ToolCallID: "c2", ToolName: "searchHotels", Output: "1 hotel"},
		}},
	}

	out := ConvertMessagesToOpenAI(msgs)
	require.Len(t, out, 5)

	assert.Equal(t, "system", out[0].Role)
	assert.Equal(t, "find flights", out[1].Content)

	assistant := out[2]
	assert.Equal(t, "Looking.", assistant.Content)
	require.Len(t, assistant.ToolCalls, 2)
	assert.Equal(t, "function", assistant.ToolCalls[0].Type)
	assert.Equal(t, `{"to":"NRT"}`, assistant.ToolCalls[0].Function.Arguments)
	assert.Equal(t, "{}", assistant.ToolCalls[1].Function.Arguments)

	assert.Equal(t, OpenAICompatMessage{Role: "tool", Content: "2 flights", ToolCallID: "c1"}, out[3])
	assert.Equal(t, OpenAICompatMessage{Role: "tool", Content: "1 hotel", ToolCallID: "c2"}, out[4])
}

func TestConvertToolsToOpenAI(t *testing.T) {
	t.Parallel()

	assert.Nil(t, ConvertToolsToOpenAI(nil))

	out := ConvertToolsToOpenAI([]types.ToolSchema{{
		Name:        "web_search",
		Description: "Search the web",
		Parameters:  json.RawMessage(`{"type":"object"}`),
	}})
	require.Len(t, out, 1)

	data, err := json.Marshal(out[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"function","function":{"name":"web_search","description":"Search the web","parameters":{"type":"object"}}}`, string(data))
}

func TestToLLMChatResponse_ToolCalls(t *testing.T) {
	t.Parallel()

	resp := ToLLMChatResponse(OpenAICompatResponse{
		ID: "r1",
		Choices: []OpenAICompatChoice{{
			FinishReason: "tool_calls",
			Message: OpenAICompatMessage{ToolCalls: []OpenAICompatToolCall{{
				ID: "c1", Function: OpenAICompatFunctionCall{Name: "web_search", Arguments: `{"query":"go"}`},
			}}},
		}},
	}, "openai")

	require.Len(t, resp.Choices, 1)
	assert.Equal(t, llm.FinishToolCalls, resp.Choices[0].FinishReason)
	calls := resp.Choices[0].Message.ToolCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "web_search", calls[0].Name)
	assert.JSONEq(t, `{"query":"go"}`, string(calls[0].Arguments))
}

func TestMapHTTPError(t *testing.T) {
	t.Parallel()

	assert.Equal(t, llm.ErrQuotaExceeded, MapHTTPError(http.StatusBadRequest, "Quota exhausted", "p").Code)
	assert.Equal(t, llm.ErrUpstreamTimeout, MapHTTPError(http.StatusGatewayTimeout, "", "p").Code)
	assert.Equal(t, llm.ErrModelOverloaded, MapHTTPError(529, "", "p").Code)

	e := MapHTTPError(http.StatusInternalServerError, "boom", "p")
	assert.True(t, e.Retryable)
	assert.Equal(t, "p", e.Provider)
	assert.False(t, MapHTTPError(418, "", "p").Retryable)
}

func TestReadErrorMessage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "bad key", ReadErrorMessage(strings.NewReader(`{"error":{"message":"bad key"}}`)))
	assert.Equal(t, "plain failure", ReadErrorMessage(strings.NewReader("plain failure\n")))
}

func TestChooseModel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a", ChooseModel(&llm.ChatRequest{Model: "a"}, "b", "c"))
	assert.Equal(t, "b", ChooseModel(&llm.ChatRequest{}, "b", "c"))
	assert.Equal(t, "c", ChooseModel(nil, "", "c"))
}
