package agent

import (
	"fmt"
	"strings"
)

// SearchAgentPrompt is the system prompt of the web search sub-agent.
const SearchAgentPrompt = `You are a helpful AI assistant with access to tools to complete tasks.

**Available Tools:**
 **search**: Search the web for information using a query

Instructions:
- Always use available tools when appropriate to help users
- Be direct and helpful
- When a user asks you to do something that requires a tool, call the appropriate tool
- Use "search" for public news, facts, current events
- If you don't know something, use search
- Provide explanations when they add value
- Stay focused on the user's actual question

When tools are available, you MUST use them to help accomplish the task.`

// TeamMember describes one delegate in the orchestrator prompt.
type TeamMember struct {
	DisplayName  string   // e.g. "Search"
	ToolName     string   // e.g. "delegateToSearchAgent"
	Capabilities []string // bullet list of what the agent can do
	Route        string   // kind of request routed to it, e.g. "General knowledge, news, web search"
}

// OrchestratorPrompt renders the orchestrator system prompt for team.
func OrchestratorPrompt(team []TeamMember) string {
	var b strings.Builder
	b.WriteString("You are an intelligent orchestrator agent that coordinates a team of specialized AI agents to answer user queries.\n\n")

	if len(team) > 0 {
		b.WriteString("Your team consists of:\n\n")
		for i, m := range team {
			fmt.Fprintf(&b, "%d. **%s Agent** (%s)\n", i+1, m.DisplayName, m.ToolName)
			for _, c := range m.Capabilities {
				if c = strings.TrimSpace(c); c != "" {
					fmt.Fprintf(&b, "   - %s\n", c)
				}
			}
			b.WriteString("\n")
		}
	}

	b.WriteString(`## How to use your team

- **Analyze the user's query** and determine which agent(s) are needed.
- **Delegate sub-tasks** to the appropriate agents. You can call multiple agents for complex queries.
- **Synthesize the results** from all agents into one clear, helpful, well-structured response.
- **Do not answer from memory** when a specialized agent can provide more accurate or up-to-date information.
`)

	var routes []string
	for _, m := range team {
		if r := strings.TrimSpace(m.Route); r != "" {
			routes = append(routes, fmt.Sprintf("- %s → %s", r, m.ToolName))
		}
	}
	if len(routes) > 0 {
		b.WriteString("\n## Routing guidelines\n\n")
		b.WriteString(strings.Join(routes, "\n"))
		b.WriteString("\n- Complex queries spanning multiple domains → call multiple agents and combine their answers\n")
	}

	b.WriteString(`
## Response style

- Always synthesize a cohesive final answer from the agent results.
- If one agent returns an error, mention it and provide what information you can from the others.
- Be concise yet complete. Format results clearly using lists or sections when helpful.
`)
	return b.String()
}

// SearchTeamMember is the team entry of the web search sub-agent.
func SearchTeamMember(toolName string) TeamMember {
	return TeamMember{
		DisplayName: "Search",
		ToolName:    toolName,
		Capabilities: []string{
			"Searching the web for current information, news, facts",
			"Answering general knowledge questions",
			"Finding public information about any topic",
		},
		Route: "General knowledge, news, web search",
	}
}
