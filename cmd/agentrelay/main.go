// =============================================================================
// AgentRelay 主入口
// =============================================================================
// 上下文受限的智能体编排服务：WebSocket 对话端点、交互式终端、健康检查与
// Prometheus 指标
//
// 使用方法:
//
//	agentrelay serve                        # 启动服务
//	agentrelay serve --config config.yaml   # 指定配置文件
//	agentrelay chat                         # 终端内对话
//	agentrelay health --addr http://localhost:8080
//	agentrelay version                      # 显示版本信息
// =============================================================================

package main

import (
	"fmt"
	"os"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
