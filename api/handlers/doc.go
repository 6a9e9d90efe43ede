// Copyright (c) AgentRelay Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 AgentRelay HTTP 与 WebSocket 端点的请求处理器实现。

# 核心类型

  - ChatHandler     ：WebSocket 对话端点，每个连接持有独立历史，
    同一连接同时只运行一个回合，全局回合数由信号量限制
  - AgentHandler    ：编排智能体信息（模型、窗口、工具列表）
  - HealthHandler   ：服务健康检查（/health, /healthz, /ready）
  - Response        ：统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo       ：结构化错误信息，含 code、message、retryable 标记
  - ResponseWriter  ：包装 http.ResponseWriter 以捕获状态码

# 主要能力

  - 回调到事件的映射：OnToken → token，OnToolCallStart/End →
    tool_call_start/tool_call_end，OnTokenUsage → token_usage，
    回合结束 → complete 或 error
  - ErrorCode → HTTP 状态码自动映射（4xx/5xx）
  - 可扩展健康检查：RegisterCheck 注册自定义 HealthCheck，/ready 并发执行
*/
package handlers
