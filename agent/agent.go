package agent

import (
	"context"

	"github.com/BaSui01/agentrelay/types"
)

// Agent runs one conversational turn.
//
// Run receives the new user message and the prior history, streams progress
// through cb, and returns the full updated history. The returned history
// never includes the system prompt. An Agent does not hold conversation
// state between calls; callers own the history.
type Agent interface {
	Name() string
	Run(ctx context.Context, userMessage string, history []types.Message, cb Callbacks) ([]types.Message, error)
}
