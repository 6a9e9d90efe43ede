package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BaSui01/agentrelay/llm"
	"github.com/BaSui01/agentrelay/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 Common 函数测试
// =============================================================================

func TestWriteJSON(t *testing.T) {
	tests := []struct {
		name       string
		data       any
		wantStatus int
	}{
		{name: "simple object", data: map[string]string{"message": "hello"}, wantStatus: http.StatusOK},
		{name: "array", data: []int{1, 2, 3}, wantStatus: http.StatusAccepted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteJSON(w, tt.wantStatus, tt.data)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
			assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
		})
	}
}

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccess(w, map[string]string{"key": "value"})

	assert.Equal(t, http.StatusOK, w.Code)

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name           string
		err            *types.Error
		expectedStatus int
		expectedCode   string
	}{
		{
			name:           "invalid request",
			err:            types.NewError(types.ErrInvalidRequest, "message is required"),
			expectedStatus: http.StatusBadRequest,
			expectedCode:   string(types.ErrInvalidRequest),
		},
		{
			name:           "explicit status wins",
			err:            types.NewError(types.ErrInternalError, "boom").WithHTTPStatus(http.StatusTeapot),
			expectedStatus: http.StatusTeapot,
			expectedCode:   string(types.ErrInternalError),
		},
		{
			name:           "compaction failure",
			err:            types.NewError(types.ErrCompressionFailed, "summarization request failed"),
			expectedStatus: http.StatusBadGateway,
			expectedCode:   string(types.ErrCompressionFailed),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, tt.err, zap.NewNop())

			assert.Equal(t, tt.expectedStatus, w.Code)

			var resp Response
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.expectedCode, resp.Error.Code)
			assert.Equal(t, tt.err.Message, resp.Error.Message)
		})
	}
}

func TestErrorInfoFrom(t *testing.T) {
	t.Run("wrapped types.Error", func(t *testing.T) {
		err := fmt.Errorf("turn: %w", types.NewError(types.ErrCompressionFailed, "no summary").WithRetryable(true))
		info := ErrorInfoFrom(err)
		assert.Equal(t, string(types.ErrCompressionFailed), info.Code)
		assert.Equal(t, http.StatusBadGateway, info.HTTPStatus)
		assert.True(t, info.Retryable)
	})

	t.Run("llm.Error", func(t *testing.T) {
		err := &llm.Error{Code: llm.ErrRateLimited, Message: "slow down", HTTPStatus: http.StatusTooManyRequests, Retryable: true}
		info := ErrorInfoFrom(err)
		assert.Equal(t, string(llm.ErrRateLimited), info.Code)
		assert.Equal(t, http.StatusTooManyRequests, info.HTTPStatus)
	})

	t.Run("plain error", func(t *testing.T) {
		info := ErrorInfoFrom(errors.New("boom"))
		assert.Equal(t, string(types.ErrInternalError), info.Code)
		assert.Equal(t, "boom", info.Message)
		assert.Equal(t, http.StatusInternalServerError, info.HTTPStatus)
	})

	t.Run("cancelled", func(t *testing.T) {
		info := ErrorInfoFrom(context.Canceled)
		assert.Equal(t, string(types.ErrInternalError), info.Code)
	})
}

func TestResponseWriter(t *testing.T) {
	w := httptest.NewRecorder()
	rw := NewResponseWriter(w)

	assert.Equal(t, http.StatusOK, rw.StatusCode)
	assert.False(t, rw.Written)

	rw.WriteHeader(http.StatusCreated)
	assert.Equal(t, http.StatusCreated, rw.StatusCode)
	assert.True(t, rw.Written)

	// 再次写入应该被忽略
	rw.WriteHeader(http.StatusBadRequest)
	assert.Equal(t, http.StatusCreated, rw.StatusCode)

	n, err := rw.Write([]byte("test"))
	assert.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Same(t, w, rw.Unwrap())
}

func TestMapErrorCodeToHTTPStatus(t *testing.T) {
	tests := []struct {
		code       types.ErrorCode
		wantStatus int
	}{
		{types.ErrInvalidRequest, http.StatusBadRequest},
		{types.ErrInvalidToolInput, http.StatusBadRequest},
		{types.ErrAuthentication, http.StatusUnauthorized},
		{types.ErrToolNotFound, http.StatusNotFound},
		{types.ErrAgentBusy, http.StatusConflict},
		{types.ErrRateLimited, http.StatusTooManyRequests},
		{types.ErrContextOverflow, http.StatusRequestEntityTooLarge},
		{types.ErrUpstreamTimeout, http.StatusGatewayTimeout},
		{types.ErrProviderNotSet, http.StatusServiceUnavailable},
		{types.ErrUpstreamError, http.StatusBadGateway},
		{types.ErrorCode("SOMETHING_ELSE"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.wantStatus, mapErrorCodeToHTTPStatus(tt.code))
		})
	}
}
