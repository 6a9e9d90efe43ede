// Copyright (c) AgentRelay Authors.
// Licensed under the MIT License.

/*
包 server 提供 HTTP 服务器生命周期管理，承载 WebSocket 对话端点与
Prometheus 指标端点。

# 核心类型

  - Manager：持有 http.Server、net.Listener 与异步错误通道，
    提供 Start/Run/Shutdown 等生命周期方法。
  - Config：监听地址、读写超时、空闲超时、最大请求头大小与
    优雅关闭超时，可通过 ConfigFor 从应用配置生成。

# 主要能力

  - 非阻塞启动：Start 在后台 goroutine 中运行服务。
  - 阻塞运行：Run 在 ctx 结束或服务异常时触发优雅关闭，
    信号处理交给调用方的 signal.NotifyContext。
  - 错误传播：Errors() 返回异步错误通道。
*/
package server
