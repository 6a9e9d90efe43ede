// Copyright (c) AgentRelay Authors.
// Licensed under the MIT License.

/*
Package types 提供 agentrelay 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 agent、llm、api 等上层模块
提供统一的类型契约，以避免循环依赖。

# 核心类型

  - Message / ContentPart：对话消息（纯文本或 text / tool-call / tool-result 分段）
  - ToolCall             ：模型发起的工具调用
  - ToolSchema           ：工具定义（name + description + JSON Schema parameters）
  - TokenUsage           ：Provider 返回的 Token 消耗
  - TokenCounter         ：最小 Token 计数接口（CountTokens(string) int）
  - Error / ErrorCode    ：结构化错误体系，含 HTTP 状态码与 Retryable 标记

# 主要能力

  - Context 传播：WithTraceID / WithRunID / WithDelegationDepth 等
  - 错误工具链：AsError / IsErrorCode / IsRetryable
*/
package types
