package tokenizer

import "fmt"

// Tokenizer 是统一的 token 计数接口.
type Tokenizer interface {
	// CountTokens 返回给定文本的 token 数.
	CountTokens(text string) (int, error)

	// Name 返回分词器的名称.
	Name() string
}

// Kinds accepted by New.
const (
	KindEstimator = "estimator"
	KindTiktoken  = "tiktoken"
)

// New returns the tokenizer of the given kind for model. An empty kind
// selects the estimator.
func New(kind, model string) (Tokenizer, error) {
	switch kind {
	case "", KindEstimator:
		return NewEstimatorTokenizer(), nil
	case KindTiktoken:
		return NewTiktokenTokenizer(model), nil
	default:
		return nil, fmt.Errorf("unknown tokenizer kind %q", kind)
	}
}
