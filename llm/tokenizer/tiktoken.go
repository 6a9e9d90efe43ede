package tokenizer

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TiktokenTokenizer 为 OpenAI 系列模型提供 tiktoken 计数.
type TiktokenTokenizer struct {
	model    string
	encoding string
	enc      *tiktoken.Tiktoken
	once     sync.Once
	initErr  error
}

// modelEncodings 将模型名称映射到其 tiktoken 编码.
var modelEncodings = map[string]string{
	"gpt-5":         "o200k_base",
	"gpt-4.1":       "o200k_base",
	"gpt-4o":        "o200k_base",
	"o1":            "o200k_base",
	"o3":            "o200k_base",
	"o4":            "o200k_base",
	"gpt-4-turbo":   "cl100k_base",
	"gpt-4":         "cl100k_base",
	"gpt-3.5-turbo": "cl100k_base",
}

// sortedPrefixes lists modelEncodings keys longest first so that prefix
// matching is deterministic.
var sortedPrefixes = func() []string {
	keys := make([]string, 0, len(modelEncodings))
	for k := range modelEncodings {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}()

// EncodingForModel returns the tiktoken encoding used for model,
// defaulting to cl100k_base.
func EncodingForModel(model string) string {
	if enc, ok := modelEncodings[model]; ok {
		return enc
	}
	for _, prefix := range sortedPrefixes {
		if strings.HasPrefix(model, prefix) {
			return modelEncodings[prefix]
		}
	}
	return "cl100k_base"
}

// NewTiktokenTokenizer 为给定模型创建基于 tiktoken 的分词器.
// 编码数据在首次使用时加载，可能需要网络访问。
func NewTiktokenTokenizer(model string) *TiktokenTokenizer {
	return &TiktokenTokenizer{
		model:    model,
		encoding: EncodingForModel(model),
	}
}

func (t *TiktokenTokenizer) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.encoding, err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

func (t *TiktokenTokenizer) CountTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	if err := t.init(); err != nil {
		return 0, err
	}
	return len(t.enc.Encode(text, nil, nil)), nil
}

func (t *TiktokenTokenizer) Name() string {
	return fmt.Sprintf("tiktoken[%s]", t.encoding)
}
