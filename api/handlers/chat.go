package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/BaSui01/agentrelay/agent"
	"github.com/BaSui01/agentrelay/api"
	"github.com/BaSui01/agentrelay/internal/metrics"
	"github.com/BaSui01/agentrelay/types"
)

// =============================================================================
// 💬 WebSocket 对话 Handler
// =============================================================================

const (
	defaultMaxMessageBytes = 64 << 10
	writeTimeout           = 10 * time.Second
)

// ChatConfig 对话端点配置
type ChatConfig struct {
	// 全局同时进行的回合上限，<= 0 表示不限制
	MaxConcurrentTurns int64
	// 单个回合超时，0 表示不限制
	TurnTimeout time.Duration
	// 允许的 Origin 模式（见 websocket.AcceptOptions.OriginPatterns）
	AllowedOrigins []string
	// 单帧最大字节数
	MaxMessageBytes int64
}

// ChatHandler 把编排智能体暴露为 WebSocket 端点，每个连接持有独立的对话历史
type ChatHandler struct {
	agent   agent.Agent
	cfg     ChatConfig
	sem     *semaphore.Weighted
	metrics *metrics.Collector
	logger  *zap.Logger
}

// NewChatHandler 创建对话处理器
func NewChatHandler(a agent.Agent, cfg ChatConfig, collector *metrics.Collector, logger *zap.Logger) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = defaultMaxMessageBytes
	}
	h := &ChatHandler{
		agent:   a,
		cfg:     cfg,
		metrics: collector,
		logger:  logger.With(zap.String("component", "chat_handler")),
	}
	if cfg.MaxConcurrentTurns > 0 {
		h.sem = semaphore.NewWeighted(cfg.MaxConcurrentTurns)
	}
	return h
}

// ServeHTTP 升级为 WebSocket 并处理该连接上的所有回合
// @Router /v1/chat [get]
func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// 连接寿命由会话决定，清除 http.Server 设置的读写截止时间
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.cfg.AllowedOrigins,
	})
	if err != nil {
		// Accept 已写出错误响应
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(h.cfg.MaxMessageBytes)

	h.metrics.ConnectionOpened()
	defer h.metrics.ConnectionClosed()

	s := &chatSession{
		h:    h,
		conn: conn,
		id:   uuid.NewString(),
	}
	s.logger = h.logger.With(zap.String("session_id", s.id))
	s.logger.Info("chat session opened", zap.String("remote_addr", r.RemoteAddr))

	s.serve(r.Context())
}

// =============================================================================
// 🔌 单连接会话
// =============================================================================

type chatSession struct {
	h      *ChatHandler
	conn   *websocket.Conn
	id     string
	logger *zap.Logger

	writeMu sync.Mutex
	busy    atomic.Bool
	wg      sync.WaitGroup

	// 仅在 busy 为 false 时由读循环访问，回合进行中只由回合 goroutine 访问
	history []types.Message
}

// serve 是连接的读循环。回合在独立 goroutine 中运行，读循环因此能够
// 及时处理关闭帧并在连接断开时取消回合。
func (s *chatSession) serve(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		s.wg.Wait()
		s.conn.CloseNow()
		s.logger.Info("chat session closed")
	}()

	for {
		typ, data, err := s.conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				s.logger.Debug("client closed connection")
			default:
				if ctx.Err() == nil {
					s.logger.Warn("websocket read failed", zap.Error(err))
				}
			}
			return
		}

		if typ != websocket.MessageText {
			s.sendError(ctx, types.ErrInvalidRequest, "only text frames are supported")
			continue
		}

		var msg api.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendError(ctx, types.ErrInvalidRequest, "invalid JSON message")
			continue
		}
		s.handle(ctx, msg)
	}
}

func (s *chatSession) handle(ctx context.Context, msg api.ClientMessage) {
	switch msg.Type {
	case api.ClientMessageReset:
		if s.busy.Load() {
			s.sendError(ctx, types.ErrAgentBusy, "cannot reset while a turn is running")
			return
		}
		s.history = nil
		s.send(ctx, api.ServerEvent{Type: api.EventReset})

	case api.ClientMessageChat, "":
		text := strings.TrimSpace(msg.Message)
		if text == "" {
			s.sendError(ctx, types.ErrInvalidRequest, "message is required")
			return
		}
		if !s.busy.CompareAndSwap(false, true) {
			s.sendError(ctx, types.ErrAgentBusy, "a turn is already running on this connection")
			return
		}
		s.wg.Add(1)
		go s.turn(ctx, text)

	default:
		s.sendError(ctx, types.ErrInvalidRequest, "unknown message type "+string(msg.Type))
	}
}

// turn 运行一个回合。终止事件在释放 busy 之后发送，客户端收到
// complete 后即可发起下一回合。
func (s *chatSession) turn(ctx context.Context, text string) {
	defer s.wg.Done()

	ev := s.run(ctx, text)
	s.busy.Store(false)
	if ev != nil {
		s.send(ctx, *ev)
	}
}

// run 执行回合并返回终止事件。成功时更新连接历史，失败时历史保持不变。
// 连接在等待并发配额时断开则返回 nil。
func (s *chatSession) run(ctx context.Context, text string) *api.ServerEvent {
	if s.h.sem != nil {
		if err := s.h.sem.Acquire(ctx, 1); err != nil {
			return nil
		}
		defer s.h.sem.Release(1)
	}

	turnCtx := ctx
	if s.h.cfg.TurnTimeout > 0 {
		var cancel context.CancelFunc
		turnCtx, cancel = context.WithTimeout(ctx, s.h.cfg.TurnTimeout)
		defer cancel()
	}

	var final string
	cb := agent.Callbacks{
		OnToken: func(token string) {
			s.send(ctx, api.ServerEvent{Type: api.EventToken, Content: token})
		},
		OnToolCallStart: func(name string, args json.RawMessage) {
			s.send(ctx, api.ServerEvent{Type: api.EventToolCallStart, ToolName: name, Arguments: args})
		},
		OnToolCallEnd: func(name, result string) {
			s.send(ctx, api.ServerEvent{Type: api.EventToolCallEnd, ToolName: name, Result: result})
		},
		OnTokenUsage: func(u agent.TokenUsage) {
			s.send(ctx, api.ServerEvent{Type: api.EventTokenUsage, Usage: usageFrom(u)})
		},
		OnComplete: func(result string) {
			final = result
		},
	}

	start := time.Now()
	history, err := s.h.agent.Run(turnCtx, text, s.history, cb)
	if err != nil {
		s.logger.Warn("turn failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
		info := ErrorInfoFrom(err)
		return &api.ServerEvent{Type: api.EventError, Error: &api.Error{Code: info.Code, Message: info.Message}}
	}
	if errors.Is(turnCtx.Err(), context.DeadlineExceeded) {
		s.logger.Warn("turn hit timeout", zap.Duration("timeout", s.h.cfg.TurnTimeout))
	}

	s.history = history
	s.logger.Debug("turn completed",
		zap.Int("history", len(history)),
		zap.Duration("duration", time.Since(start)))
	return &api.ServerEvent{Type: api.EventComplete, Content: final}
}

func (s *chatSession) send(ctx context.Context, ev api.ServerEvent) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := wsjson.Write(wctx, s.conn, ev); err != nil && ctx.Err() == nil {
		s.logger.Debug("websocket write failed", zap.String("event", string(ev.Type)), zap.Error(err))
	}
}

func (s *chatSession) sendError(ctx context.Context, code types.ErrorCode, message string) {
	s.send(ctx, api.ServerEvent{Type: api.EventError, Error: &api.Error{Code: string(code), Message: message}})
}

func usageFrom(u agent.TokenUsage) *api.Usage {
	return &api.Usage{
		InputTokens:     u.InputTokens,
		OutputTokens:    u.OutputTokens,
		TotalTokens:     u.TotalTokens,
		ContextWindow:   u.ContextWindow,
		AvailableWindow: u.AvailableWindow,
		Threshold:       u.Threshold,
		Percentage:      u.Percentage,
	}
}
