package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/chzyer/readline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/BaSui01/agentrelay/agent"
	"github.com/BaSui01/agentrelay/types"
)

// newChatCmd 创建 `agentrelay chat` 命令：在终端里与编排智能体对话
func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Chat with the orchestrator in the terminal",
		Long: `Start an interactive session with the orchestrator. Tokens stream as they
arrive, tool calls are shown inline, and tools that require approval ask
before running.

Commands:
  /reset   clear the conversation
  /usage   show the last context usage
  /exit    leave the session`,
		RunE: runChat,
	}
}

func runChat(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	// 日志写到 stderr，避免打断对话输出
	if verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose"); !verbose {
		cfg.Log.Level = "warn"
	}
	cfg.Log.OutputPaths = []string{"stderr"}
	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	provider, err := newProvider(cfg, logger)
	if err != nil {
		return err
	}
	a, err := newApp(cfg, provider, prometheus.NewRegistry(), logger)
	if err != nil {
		return err
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "/exit",
	})
	if err != nil {
		return fmt.Errorf("init terminal: %w", err)
	}
	defer rl.Close()

	repl := newChatREPL(a.orchestrator, rl.Stdout(), func(prompt string) (string, error) {
		rl.SetPrompt(prompt)
		defer rl.SetPrompt("> ")
		return rl.Readline()
	})

	fmt.Fprintf(rl.Stdout(), "AgentRelay %s · %s (%s). Type /exit to quit.\n",
		Version, a.orchestrator.Name(), cfg.Agent.Model)

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		// Ctrl+C 在回合进行中取消当前回合
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		quit := repl.handle(ctx, line)
		stop()
		if quit {
			return nil
		}
	}
}

// =============================================================================
// 💬 终端会话
// =============================================================================

// chatREPL 持有终端会话的对话历史
type chatREPL struct {
	agent   agent.Agent
	out     io.Writer
	ask     func(prompt string) (string, error)
	history []types.Message
	usage   *agent.TokenUsage
}

func newChatREPL(a agent.Agent, out io.Writer, ask func(prompt string) (string, error)) *chatREPL {
	return &chatREPL{agent: a, out: out, ask: ask}
}

// handle 处理一行输入，返回 true 表示结束会话
func (c *chatREPL) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	switch line {
	case "":
		return false
	case "/exit", "/quit":
		return true
	case "/reset":
		c.history = nil
		c.usage = nil
		fmt.Fprintln(c.out, "Conversation cleared.")
		return false
	case "/usage":
		if c.usage == nil {
			fmt.Fprintln(c.out, "No usage yet.")
		} else {
			fmt.Fprintln(c.out, formatUsage(*c.usage))
		}
		return false
	}
	if strings.HasPrefix(line, "/") {
		fmt.Fprintf(c.out, "Unknown command %s (try /reset, /usage or /exit)\n", line)
		return false
	}

	c.turn(ctx, line)
	return false
}

func (c *chatREPL) turn(ctx context.Context, message string) {
	streamed := false
	history, err := c.agent.Run(ctx, message, c.history, agent.Callbacks{
		OnToken: func(s string) {
			streamed = true
			fmt.Fprint(c.out, s)
		},
		OnToolCallStart: func(name string, args json.RawMessage) {
			if streamed {
				fmt.Fprintln(c.out)
				streamed = false
			}
			fmt.Fprintf(c.out, "  ⚙ %s %s\n", name, compactJSON(args))
		},
		OnToolCallEnd: func(name, result string) {
			fmt.Fprintf(c.out, "  ✓ %s (%d chars)\n", name, len(result))
		},
		OnComplete: func(text string) {
			// 未流式输出时（如回退回复）补打最终文本
			if !streamed && text != "" {
				fmt.Fprint(c.out, text)
			}
			fmt.Fprintln(c.out)
		},
		OnToolApproval: c.approve,
		OnTokenUsage: func(u agent.TokenUsage) {
			c.usage = &u
		},
	})
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	c.history = history
	if c.usage != nil {
		fmt.Fprintln(c.out, formatUsage(*c.usage))
	}
}

func (c *chatREPL) approve(_ context.Context, req agent.ToolApprovalRequest) (bool, error) {
	if c.ask == nil {
		return false, nil
	}
	answer, err := c.ask(fmt.Sprintf("Allow %s %s? [y/N] ", req.ToolName, compactJSON(req.Arguments)))
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

func formatUsage(u agent.TokenUsage) string {
	return fmt.Sprintf("[context %.1f%% · %d/%d tokens · compacts above %.0f%%]",
		u.Percentage*100, u.TotalTokens, u.AvailableWindow, u.Threshold*100)
}

// compactJSON 将参数压缩为单行，过长时截断
func compactJSON(raw json.RawMessage) string {
	const maxLen = 120
	var buf bytes.Buffer
	s := strings.Join(strings.Fields(string(raw)), " ")
	if err := json.Compact(&buf, raw); err == nil {
		s = buf.String()
	}
	if r := []rune(s); len(r) > maxLen {
		return string(r[:maxLen]) + "…"
	}
	return s
}
