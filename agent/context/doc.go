// Copyright (c) AgentRelay Authors.
// Licensed under the MIT License.

/*
包 context 为智能体提供上下文窗口预算、压缩与消息兼容性处理。

# 概述

LLM 的上下文窗口有限，而对话历史会持续增长。本包在每个回合开始前
判断估算用量是否超出可用窗口的阈值，超出时用一次 LLM 摘要替换历史。

# 核心模型

  - LimitsRegistry：模型窗口与输出预留的只读注册表，未知模型回落到
    保守的默认值，可在并发运行之间共享
  - IsOverThreshold / UsagePercentage：阈值策略，严格大于才视为超限
  - Compactor：把非 system 历史渲染为 "[ROLE]: text" 记录，调用一次
    Completion，得到「摘要 user 消息 + 确认 assistant 消息」两条消息
  - FilterCompatible：去掉模型接口会拒绝的消息（空 assistant、未知角色）

# 与其他包协同

agent.Runner 在每个回合构建消息时依次使用 FilterCompatible、
tokenizer.Estimator、LimitsRegistry、IsOverThreshold 与 Compactor。
*/
package context
