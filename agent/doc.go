// Copyright (c) AgentRelay Authors.
// Licensed under the MIT License.

/*
Package agent provides the context-bounded orchestration loop for AgentRelay.

# Overview

A Runner drives one conversational turn: it assembles the prompt, compacts
the history when the estimated usage crosses the threshold of the model's
available window, and alternates streaming model calls with sequential tool
dispatch until the model stops asking for tools.

	┌─────────────────────────────────────────────────────────────┐
	│                        Runner.Run                           │
	│  Building → Compacting? → Streaming ⇄ Dispatching → Done    │
	├─────────────────────────────────────────────────────────────┤
	│  ┌─────────────┐  ┌─────────────┐  ┌─────────────────────┐ │
	│  │  Estimator  │  │  Compactor  │  │  Tools / AgentTool  │ │
	│  │ (tokenizer) │  │  (context)  │  │   (llm/tools)       │ │
	│  └─────────────┘  └─────────────┘  └─────────────────────┘ │
	├─────────────────────────────────────────────────────────────┤
	│                       llm.Provider                          │
	└─────────────────────────────────────────────────────────────┘

# Usage

	orchestrator, err := agent.NewRunnerBuilder(agent.Config{
	    Name:         "orchestrator",
	    Model:        "gpt-4o",
	    SystemPrompt: agent.OrchestratorPrompt(team),
	}).
	    WithProvider(provider).
	    WithDelegate(searchAgent, agent.AgentToolConfig{Namespace: "search"}).
	    Build()

	history, err = orchestrator.Run(ctx, "What happened in Tunis today?", history, agent.Callbacks{
	    OnToken:    func(s string) { fmt.Print(s) },
	    OnComplete: func(string) { fmt.Println() },
	})

# Failure handling

Tool failures become tool results ("Error from <tool>: <message>") and the
loop continues. Stream failures end the turn with the text produced so far,
or with FallbackResponse when there is none. Only a failed compaction is
returned as an error.

# Delegation

AgentTool exposes another Agent as a tool. The sub-agent starts from an
empty history; its text stream is hidden from the caller, its tool events
are forwarded as "<namespace> → <tool>", and its final text becomes the tool
result. Delegation depth travels in the context and is capped by
AgentToolConfig.MaxDepth.
*/
package agent
