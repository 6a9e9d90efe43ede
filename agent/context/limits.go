package context

import (
	"sort"
	"strings"
)

// ModelLimits describes the token budget of one model.
type ModelLimits struct {
	ModelID              string `json:"model_id" yaml:"model_id"`
	ContextWindow        int    `json:"context_window" yaml:"context_window"`
	ReservedOutputTokens int    `json:"reserved_output_tokens" yaml:"reserved_output_tokens"`
}

// Available returns the part of the window usable for input, never negative.
func (l ModelLimits) Available() int {
	if avail := l.ContextWindow - l.ReservedOutputTokens; avail > 0 {
		return avail
	}
	return 0
}

// DefaultLimits is returned for models the registry does not know.
// It is deliberately small so that unknown models compact early.
var DefaultLimits = ModelLimits{
	ModelID:              "default",
	ContextWindow:        8192,
	ReservedOutputTokens: 2048,
}

// builtinLimits are keyed by model ID or model family prefix.
var builtinLimits = []ModelLimits{
	{ModelID: "gpt-4o", ContextWindow: 128000, ReservedOutputTokens: 16384},
	{ModelID: "gpt-4o-mini", ContextWindow: 128000, ReservedOutputTokens: 16384},
	{ModelID: "gpt-4.1", ContextWindow: 1047576, ReservedOutputTokens: 32768},
	{ModelID: "gpt-5", ContextWindow: 400000, ReservedOutputTokens: 128000},
	{ModelID: "gpt-5-mini", ContextWindow: 400000, ReservedOutputTokens: 128000},
	{ModelID: "gpt-4-turbo", ContextWindow: 128000, ReservedOutputTokens: 4096},
	{ModelID: "gpt-4", ContextWindow: 8192, ReservedOutputTokens: 2048},
	{ModelID: "gpt-3.5-turbo", ContextWindow: 16385, ReservedOutputTokens: 4096},
	{ModelID: "o3", ContextWindow: 200000, ReservedOutputTokens: 100000},
	{ModelID: "o4-mini", ContextWindow: 200000, ReservedOutputTokens: 100000},
	{ModelID: "claude-3", ContextWindow: 200000, ReservedOutputTokens: 8192},
	{ModelID: "claude-sonnet-4", ContextWindow: 200000, ReservedOutputTokens: 16384},
	{ModelID: "claude-opus-4", ContextWindow: 200000, ReservedOutputTokens: 16384},
	{ModelID: "gemini-1.5", ContextWindow: 1000000, ReservedOutputTokens: 8192},
	{ModelID: "gemini-2", ContextWindow: 1000000, ReservedOutputTokens: 8192},
	{ModelID: "deepseek-chat", ContextWindow: 64000, ReservedOutputTokens: 8192},
	{ModelID: "qwen", ContextWindow: 32000, ReservedOutputTokens: 4096},
}

// LimitsRegistry maps model IDs to their limits. It is built once and is
// read-only afterwards, so it can be shared by concurrent runs.
type LimitsRegistry struct {
	exact    map[string]ModelLimits
	prefixes []string
	fallback ModelLimits
}

// NewLimitsRegistry builds a registry from the built-in table plus
// overrides. An override with the same ModelID replaces the built-in entry;
// entries with an empty ID or a non-positive window are ignored.
func NewLimitsRegistry(overrides ...ModelLimits) *LimitsRegistry {
	r := &LimitsRegistry{
		exact:    make(map[string]ModelLimits, len(builtinLimits)+len(overrides)),
		fallback: DefaultLimits,
	}
	for _, l := range builtinLimits {
		r.exact[l.ModelID] = l
	}
	for _, l := range overrides {
		if l.ModelID == "" || l.ContextWindow <= 0 {
			continue
		}
		if l.ReservedOutputTokens < 0 {
			l.ReservedOutputTokens = 0
		}
		r.exact[l.ModelID] = l
	}

	r.prefixes = make([]string, 0, len(r.exact))
	for id := range r.exact {
		r.prefixes = append(r.prefixes, id)
	}
	// Longest prefix wins; ties broken lexically for determinism.
	sort.Slice(r.prefixes, func(i, j int) bool {
		a, b := r.prefixes[i], r.prefixes[j]
		if len(a) != len(b) {
			return len(a) > len(b)
		}
		return a < b
	})
	return r
}

// LimitsFor returns the limits for modelID: an exact match, else the
// longest registered prefix (so dated snapshots such as
// "gpt-4o-mini-2024-07-18" resolve to their family), else DefaultLimits.
func (r *LimitsRegistry) LimitsFor(modelID string) ModelLimits {
	if l, ok := r.exact[modelID]; ok {
		return l
	}
	for _, p := range r.prefixes {
		if strings.HasPrefix(modelID, p) {
			l := r.exact[p]
			l.ModelID = modelID
			return l
		}
	}
	l := r.fallback
	l.ModelID = modelID
	return l
}

// Models returns the registered model IDs in lexical order.
func (r *LimitsRegistry) Models() []string {
	ids := make([]string, 0, len(r.exact))
	for id := range r.exact {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
