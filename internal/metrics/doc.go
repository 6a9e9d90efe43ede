// Copyright (c) AgentRelay Authors.
// Licensed under the MIT License.

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖 HTTP、LLM、
智能体回合与聊天连接。

# 概述

Collector 通过 promauto.With(reg) 把指标注册到调用方传入的 Registerer，
测试中可以为每个用例使用独立的 prometheus.NewRegistry()。
所有 Record 方法对 nil Collector 安全，未启用指标时可直接传 nil。

# 主要指标

  - agent_turns_total / agent_turn_duration_seconds：回合数与耗时
  - agent_steps_total：流式模型调用次数
  - agent_compactions_total：历史压缩次数，按 status 分组
  - agent_tool_calls_total：工具调用，按 tool/status 分组
  - agent_context_usage_ratio：可用窗口的估算占用比例
  - agent_stream_errors_total：流错误，按 kind（open/partial/empty）分组
  - llm_requests_total / llm_tokens_used_total：模型调用与 Token 用量
  - http_requests_total / http_request_duration_seconds：HTTP 请求
*/
package metrics
