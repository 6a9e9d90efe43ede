package context

import "github.com/BaSui01/agentrelay/types"

// FilterCompatible drops messages the model API would reject. User, system
// and tool messages are kept; assistant messages are kept when they carry
// non-blank text or at least one part; everything else is dropped.
//
// The result is a new slice in the original order, and filtering it again
// yields the same messages. Assistant messages that carry tool calls always
// have parts, so tool results never lose their originating call.
func FilterCompatible(messages []types.Message) []types.Message {
	out := make([]types.Message, 0, len(messages))
	for _, m := range messages {
		if isCompatible(m) {
			out = append(out, m)
		}
	}
	return out
}

func isCompatible(m types.Message) bool {
	switch m.Role {
	case types.RoleUser, types.RoleSystem, types.RoleTool:
		return true
	case types.RoleAssistant:
		return !m.IsEmpty()
	default:
		return false
	}
}
