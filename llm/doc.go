/*
包 llm 提供统一的大语言模型接入层：Provider 抽象、归一化的流式事件与
结束原因，以及错误语义。

# 核心接口

  - [Provider]：Completion / Stream / HealthCheck / Name
  - [StreamEvent]：text-delta、tool-call、finish、error 四类事件
  - [FinishReason]：stop、tool-calls、length、content-filter、error、other

子包 providers/openaicompat 实现 OpenAI 兼容的 HTTP + SSE 协议，
子包 tokenizer 提供用量估算，子包 tools 提供工具注册与执行。
*/
package llm
