// Package tokenizer 提供统一的 Token 计数接口与保守的用量估算器，
// 支持 CJK 启发式估算与可选的 tiktoken 计数，用于上下文窗口预算管理。
package tokenizer
