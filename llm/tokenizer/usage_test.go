package tokenizer

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/BaSui01/agentrelay/types"
)

type failingTokenizer struct{ calls int }

func (f *failingTokenizer) CountTokens(string) (int, error) {
	f.calls++
	return 0, errors.New("encoding unavailable")
}

func (f *failingTokenizer) Name() string { return "failing" }

func TestEstimator_SplitsInputAndOutput(t *testing.T) {
	t.Parallel()

	est := NewEstimator(nil)
	msgs := []types.Message{
		types.NewSystemMessage("You are helpful."),
		types.NewUserMessage("Find me a flight to Tokyo."),
		types.NewAssistantMessage("Sure, searching now."),
	}

	u := est.Estimate(msgs)
	assert.Positive(t, u.InputTokens)
	assert.Positive(t, u.OutputTokens)
	assert.Equal(t, u.InputTokens+u.OutputTokens, u.TotalTokens)

	onlyAssistant := est.Estimate(msgs[2:])
	assert.Equal(t, u.OutputTokens, onlyAssistant.OutputTokens)
}

func TestEstimator_Empty(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Usage{}, NewEstimator(nil).Estimate(nil))
}

func TestEstimator_CountsToolParts(t *testing.T) {
	t.Parallel()

	est := NewEstimator(nil)
	plain := []types.Message{types.NewUserMessage("go")}

	longArgs := json.RawMessage(`{"query":"` + strings.Repeat("x", 400) + `"}`)
	withCall := append(append([]types.Message{}, plain...),
		types.NewToolCallMessage("", []types.ToolCall{{ID: "c1", Name: "search", Arguments: longArgs}}))
	withResult := append(append([]types.Message{}, withCall...),
		types.NewToolResultMessage("c1", "search", strings.Repeat("result ", 100)))

	base := est.Estimate(plain)
	afterCall := est.Estimate(withCall)
	afterResult := est.Estimate(withResult)

	assert.Greater(t, afterCall.OutputTokens, 100, "tool-call arguments count as output")
	assert.Greater(t, afterResult.InputTokens-base.InputTokens, 100, "tool results count as input")
}

func TestEstimator_IsConservative(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("word ", 200)
	raw, err := NewEstimatorTokenizer().CountTokens(text)
	require.NoError(t, err)

	u := NewEstimator(nil).Estimate([]types.Message{types.NewUserMessage(text)})
	assert.GreaterOrEqual(t, float64(u.TotalTokens), float64(raw)*DefaultSafetyFactor)

	tighter := NewEstimator(nil, WithSafetyFactor(1.0)).Estimate([]types.Message{types.NewUserMessage(text)})
	assert.Less(t, tighter.TotalTokens, u.TotalTokens)

	ignored := NewEstimator(nil, WithSafetyFactor(0.5)).Estimate([]types.Message{types.NewUserMessage(text)})
	assert.Equal(t, u.TotalTokens, ignored.TotalTokens)
}

func TestEstimator_FallsBackWhenTokenizerFails(t *testing.T) {
	t.Parallel()

	failing := &failingTokenizer{}
	msgs := []types.Message{types.NewUserMessage("hello there, how are you?")}

	got := NewEstimator(failing).Estimate(msgs)
	want := NewEstimator(nil).Estimate(msgs)

	assert.Equal(t, want, got)
	assert.Positive(t, failing.calls)
}

func TestProperty_Estimator_AppendNeverDecreases(t *testing.T) {
	est := NewEstimator(nil)
	roles := []types.Role{types.RoleSystem, types.RoleUser, types.RoleAssistant, types.RoleTool}

	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 10).Draw(rt, "n")
		var msgs []types.Message
		for i := 0; i < n; i++ {
			role := rapid.SampledFrom(roles).Draw(rt, "role")
			msgs = append(msgs, types.Message{Role: role, Content: rapid.String().Draw(rt, "content")})
		}
		before := est.Estimate(msgs)

		extra := types.Message{
			Role:    rapid.SampledFrom(roles).Draw(rt, "extraRole"),
			Content: rapid.String().Draw(rt, "extraContent"),
		}
		after := est.Estimate(append(msgs, extra))

		if after.TotalTokens < before.TotalTokens {
			rt.Fatalf("total decreased: %d -> %d", before.TotalTokens, after.TotalTokens)
		}
		if again := est.Estimate(msgs); again != before {
			rt.Fatalf("estimate not deterministic: %+v vs %+v", before, again)
		}
	})
}
