// Package tlsutil 提供出站 HTTP 客户端的集中式 TLS 配置（TLS 1.2+，仅 AEAD 密码套件），
// 区分有总超时的普通请求客户端与仅限制响应头等待时间的流式客户端。
package tlsutil
