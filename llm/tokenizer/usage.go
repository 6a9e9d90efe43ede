package tokenizer

import (
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/agentrelay/types"
)

const (
	// DefaultSafetyFactor inflates every message count so that the
	// estimate stays above what the provider will actually bill.
	DefaultSafetyFactor = 1.2

	messageOverhead      = 4
	conversationOverhead = 3
)

// Usage is a point-in-time token estimate of a message list.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Estimator produces conservative usage estimates without network calls.
// Assistant messages count as output; every other role counts as input.
type Estimator struct {
	tokenizer    Tokenizer
	fallback     Tokenizer
	safetyFactor float64
	logger       *zap.Logger
	warnOnce     sync.Once
}

// EstimatorOption configures an Estimator.
type EstimatorOption func(*Estimator)

// WithSafetyFactor sets the multiplier applied to each message. Values
// below 1 are ignored.
func WithSafetyFactor(f float64) EstimatorOption {
	return func(e *Estimator) {
		if f >= 1 {
			e.safetyFactor = f
		}
	}
}

// WithLogger sets the logger used to report tokenizer fallbacks.
func WithLogger(logger *zap.Logger) EstimatorOption {
	return func(e *Estimator) {
		if logger != nil {
			e.logger = logger.With(zap.String("component", "usage_estimator"))
		}
	}
}

// NewEstimator creates an estimator on top of tok. A nil tok selects the
// heuristic estimator. If tok fails, the heuristic is used instead.
func NewEstimator(tok Tokenizer, opts ...EstimatorOption) *Estimator {
	heuristic := NewEstimatorTokenizer()
	if tok == nil {
		tok = heuristic
	}
	e := &Estimator{
		tokenizer:    tok,
		fallback:     heuristic,
		safetyFactor: DefaultSafetyFactor,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Estimate returns the estimated usage of messages. The result is a pure
// function of the message contents.
func (e *Estimator) Estimate(messages []types.Message) Usage {
	var u Usage
	if len(messages) == 0 {
		return u
	}
	for _, msg := range messages {
		n := e.messageTokens(msg)
		if msg.Role == types.RoleAssistant {
			u.OutputTokens += n
		} else {
			u.InputTokens += n
		}
	}
	u.InputTokens += conversationOverhead
	u.TotalTokens = u.InputTokens + u.OutputTokens
	return u
}

// CountTokens counts a single text with the configured tokenizer,
// without overhead or safety factor.
func (e *Estimator) CountTokens(text string) int {
	n, err := e.tokenizer.CountTokens(text)
	if err != nil {
		e.warnOnce.Do(func() {
			e.logger.Warn("tokenizer failed, falling back to heuristic estimate",
				zap.String("tokenizer", e.tokenizer.Name()),
				zap.Error(err))
		})
		n, _ = e.fallback.CountTokens(text)
	}
	return n
}

func (e *Estimator) messageTokens(msg types.Message) int {
	raw := messageOverhead + e.CountTokens(string(msg.Role)) + e.CountTokens(msg.Content)
	for _, p := range msg.Parts {
		switch p.Type {
		case types.PartText:
			raw += e.CountTokens(p.Text)
		case types.PartToolCall:
			raw += e.CountTokens(p.ToolName) + e.CountTokens(string(p.Input))
		case types.PartToolResult:
			raw += e.CountTokens(p.ToolName) + e.CountTokens(p.Output)
		}
	}
	return int(math.Ceil(float64(raw) * e.safetyFactor))
}
