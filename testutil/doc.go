/*
Package testutil 提供 agentrelay 测试的共享工具和辅助函数。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 异步断言: AssertEventuallyTrue，支持超时轮询等待条件满足
  - Mock 实现: mocks.MockProvider，按脚本逐步返回流式事件
*/
package testutil
