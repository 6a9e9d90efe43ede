// Package openaicompat implements llm.Provider for the OpenAI Chat
// Completions protocol.
//
// Streaming responses are parsed from SSE. Tool-call argument fragments are
// accumulated per call index and surfaced as complete llm.EventToolCall
// events, followed by a single llm.EventFinish with the normalized finish
// reason and usage. Any server speaking the same protocol can be targeted by
// overriding BaseURL.
package openaicompat
