// Package config 提供 AgentRelay 的配置管理功能。
//
// 配置按「默认值 → YAML 文件 → 环境变量」的顺序合并，环境变量名由
// 前缀（默认 AGENTRELAY）与结构体 env 标签拼接而成，例如
// AGENTRELAY_CONTEXT_THRESHOLD。模型窗口覆盖项只能通过 YAML 设置。
package config
