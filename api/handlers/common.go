package handlers

import (
	"bufio"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/BaSui01/agentrelay/llm"
	"github.com/BaSui01/agentrelay/types"
	"go.uber.org/zap"
)

// =============================================================================
// 📦 通用响应结构
// =============================================================================

// Response 统一 API 响应结构
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// ErrorInfo 错误信息结构
type ErrorInfo struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Retryable  bool   `json:"retryable,omitempty"`
	HTTPStatus int    `json:"-"` // 不序列化到 JSON
}

// =============================================================================
// 🎯 响应辅助函数
// =============================================================================

// WriteJSON 写入 JSON 响应
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)

	// 响应头已写出，编码失败时无法再改写状态码
	_ = json.NewEncoder(w).Encode(data)
}

// WriteSuccess 写入成功响应
func WriteSuccess(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, Response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
	})
}

// WriteError 写入错误响应（从 types.Error）
func WriteError(w http.ResponseWriter, err *types.Error, logger *zap.Logger) {
	info := ErrorInfoFrom(err)

	if logger != nil {
		logger.Error("API error",
			zap.String("code", info.Code),
			zap.String("message", info.Message),
			zap.Int("status", info.HTTPStatus),
			zap.Bool("retryable", info.Retryable),
			zap.Error(err.Cause),
		)
	}

	WriteJSON(w, info.HTTPStatus, Response{
		Success:   false,
		Error:     info,
		Timestamp: time.Now(),
	})
}

// WriteErrorMessage 写入简单错误消息
func WriteErrorMessage(w http.ResponseWriter, status int, code types.ErrorCode, message string, logger *zap.Logger) {
	WriteError(w, types.NewError(code, message).WithHTTPStatus(status), logger)
}

// ErrorInfoFrom 将任意错误归一化为 ErrorInfo。
// 依次识别 types.Error 与 llm.Error，其余视为内部错误。
func ErrorInfoFrom(err error) *ErrorInfo {
	if e, ok := types.AsError(err); ok {
		status := e.HTTPStatus
		if status == 0 {
			status = mapErrorCodeToHTTPStatus(e.Code)
		}
		return &ErrorInfo{Code: string(e.Code), Message: e.Message, Retryable: e.Retryable, HTTPStatus: status}
	}

	var le *llm.Error
	if errors.As(err, &le) {
		status := le.HTTPStatus
		if status == 0 {
			status = http.StatusBadGateway
		}
		return &ErrorInfo{Code: string(le.Code), Message: le.Message, Retryable: le.Retryable, HTTPStatus: status}
	}

	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &ErrorInfo{Code: string(types.ErrInternalError), Message: msg, HTTPStatus: http.StatusInternalServerError}
}

// =============================================================================
// 🔄 错误码到 HTTP 状态码映射
// =============================================================================

func mapErrorCodeToHTTPStatus(code types.ErrorCode) int {
	switch code {
	// 4xx 客户端错误
	case types.ErrInvalidRequest, types.ErrToolValidation, types.ErrInvalidToolInput:
		return http.StatusBadRequest
	case types.ErrAuthentication:
		return http.StatusUnauthorized
	case types.ErrModelNotFound, types.ErrToolNotFound:
		return http.StatusNotFound
	case types.ErrAgentBusy:
		return http.StatusConflict
	case types.ErrRateLimited, types.ErrToolRateLimited:
		return http.StatusTooManyRequests
	case types.ErrContextTooLong, types.ErrContextOverflow:
		return http.StatusRequestEntityTooLarge
	case types.ErrContentFiltered:
		return http.StatusUnprocessableEntity

	// 5xx 服务端错误
	case types.ErrUpstreamTimeout:
		return http.StatusGatewayTimeout
	case types.ErrServiceUnavailable, types.ErrProviderUnavailable, types.ErrProviderNotSet:
		return http.StatusServiceUnavailable
	case types.ErrUpstreamError, types.ErrCompressionFailed:
		return http.StatusBadGateway

	default:
		return http.StatusInternalServerError
	}
}

// =============================================================================
// 📊 响应包装器（用于捕获状态码）
// =============================================================================

// ResponseWriter 包装 http.ResponseWriter 以捕获状态码
type ResponseWriter struct {
	http.ResponseWriter
	StatusCode int
	Written    bool
}

// NewResponseWriter 创建新的 ResponseWriter
func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	return &ResponseWriter{
		ResponseWriter: w,
		StatusCode:     http.StatusOK,
	}
}

// WriteHeader 重写 WriteHeader 以捕获状态码
func (rw *ResponseWriter) WriteHeader(code int) {
	if !rw.Written {
		rw.StatusCode = code
		rw.Written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

// Write 重写 Write 以标记已写入
func (rw *ResponseWriter) Write(b []byte) (int, error) {
	if !rw.Written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// Unwrap 暴露底层 ResponseWriter，供 http.ResponseController 使用
func (rw *ResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Hijack 支持 WebSocket 升级
func (rw *ResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return http.NewResponseController(rw.ResponseWriter).Hijack()
}

// Flush 实现 http.Flusher
func (rw *ResponseWriter) Flush() {
	_ = http.NewResponseController(rw.ResponseWriter).Flush()
}
