/*
# 概述

包 providers 提供 OpenAI 兼容协议的通用类型与辅助函数，是具体 Provider
实现（openaicompat）的公共基础层。

# 核心类型

  - OpenAICompat* 系列：请求/响应/工具调用的线上结构体

# 核心函数

  - MapHTTPError：将 HTTP 状态码映射为语义化的 llm.Error（含 Retryable 标记）
  - ReadErrorMessage：解析错误响应体
  - ConvertMessagesToOpenAI / ConvertToolsToOpenAI：types 到线上格式的转换
  - ToLLMChatResponse：线上响应到 llm.ChatResponse 的转换
*/
package providers
