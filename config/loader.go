// =============================================================================
// 📦 AgentRelay 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("agentrelay.yaml").
//	    WithEnvPrefix("AGENTRELAY").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 AgentRelay 的完整配置结构
type Config struct {
	// Server WebSocket 服务配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Agent 编排智能体配置
	Agent AgentConfig `yaml:"agent" env:"AGENT"`

	// Context 上下文窗口与压缩配置
	Context ContextConfig `yaml:"context" env:"CONTEXT"`

	// LLM 大语言模型配置
	LLM LLMConfig `yaml:"llm" env:"LLM"`

	// Search 网页搜索子智能体配置
	Search SearchConfig `yaml:"search" env:"SEARCH"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Metrics 端口（0 表示与 HTTP 共用）
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 同时进行的回合上限
	MaxConcurrentTurns int `yaml:"max_concurrent_turns" env:"MAX_CONCURRENT_TURNS"`
	// 单个回合超时
	TurnTimeout time.Duration `yaml:"turn_timeout" env:"TURN_TIMEOUT"`
	// 允许的 WebSocket Origin 模式，为空时只接受同源
	AllowedOrigins []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS"`
	// API Keys，为空时不启用认证
	APIKeys []string `yaml:"api_keys" env:"API_KEYS"`
	// 每个 IP 每秒请求数（0 表示不限流）
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 限流突发容量
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
}

// AgentConfig 编排智能体配置
type AgentConfig struct {
	// 名称
	Name string `yaml:"name" env:"NAME"`
	// 模型名称
	Model string `yaml:"model" env:"MODEL"`
	// 压缩使用的模型（为空时与 Model 相同）
	SummaryModel string `yaml:"summary_model" env:"SUMMARY_MODEL"`
	// 系统提示词（为空时根据子智能体生成）
	SystemPrompt string `yaml:"system_prompt" env:"SYSTEM_PROMPT"`
	// 单回合最大模型调用次数
	MaxSteps int `yaml:"max_steps" env:"MAX_STEPS"`
	// 温度参数
	Temperature float64 `yaml:"temperature" env:"TEMPERATURE"`
	// 最大输出 Token 数（0 表示由模型决定）
	MaxTokens int `yaml:"max_tokens" env:"MAX_TOKENS"`
	// 最大委派深度
	MaxDelegationDepth int `yaml:"max_delegation_depth" env:"MAX_DELEGATION_DEPTH"`
}

// ContextConfig 上下文窗口配置
type ContextConfig struct {
	// 触发压缩的可用窗口占比，严格大于时触发
	Threshold float64 `yaml:"threshold" env:"THRESHOLD"`
	// Token 计数器: estimator, tiktoken
	Tokenizer string `yaml:"tokenizer" env:"TOKENIZER"`
	// 安全系数（>= 1）
	SafetyFactor float64 `yaml:"safety_factor" env:"SAFETY_FACTOR"`
	// 模型窗口覆盖项（仅 YAML）
	Models []ModelLimitsConfig `yaml:"models" env:"-"`
}

// ModelLimitsConfig 单个模型的窗口配置
type ModelLimitsConfig struct {
	ID                   string `yaml:"id"`
	ContextWindow        int    `yaml:"context_window"`
	ReservedOutputTokens int    `yaml:"reserved_output_tokens"`
}

// LLMConfig LLM 配置
type LLMConfig struct {
	// Provider 名称（用于日志与指标）
	Provider string `yaml:"provider" env:"PROVIDER"`
	// API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 基础 URL（可选，兼容 OpenAI 协议的服务）
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 非流式请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// SearchConfig 网页搜索配置
type SearchConfig struct {
	// 是否启用搜索子智能体
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 搜索后端: tavily
	Provider string `yaml:"provider" env:"PROVIDER"`
	// 后端 API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 后端基础 URL（可选）
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 子智能体模型
	Model string `yaml:"model" env:"MODEL"`
	// 单次返回结果数
	MaxResults int `yaml:"max_results" env:"MAX_RESULTS"`
	// 单次搜索超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 每分钟最多调用次数
	RateLimitPerMinute int `yaml:"rate_limit_per_minute" env:"RATE_LIMIT_PER_MINUTE"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "AGENTRELAY",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	// 1. 从默认值开始
	cfg := DefaultConfig()

	// 2. 如果指定了配置文件，从文件加载
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 3. 从环境变量覆盖
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// 4. 运行验证器
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		// 获取 env tag
		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		// 如果是结构体，递归处理
		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		// 获取环境变量值
		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		// 设置字段值
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).WithValidator((*Config).Validate).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	// 验证服务器配置
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}
	if c.Server.RateLimitRPS < 0 || (c.Server.RateLimitRPS > 0 && c.Server.RateLimitBurst <= 0) {
		errs = append(errs, "rate limit requires a positive burst")
	}
	if c.Server.MaxConcurrentTurns <= 0 {
		errs = append(errs, "max_concurrent_turns must be positive")
	}

	// 验证 Agent 配置
	if strings.TrimSpace(c.Agent.Model) == "" {
		errs = append(errs, "agent model is required")
	}
	if c.Agent.MaxSteps <= 0 {
		errs = append(errs, "max_steps must be positive")
	}
	if c.Agent.Temperature < 0 || c.Agent.Temperature > 2 {
		errs = append(errs, "temperature must be between 0 and 2")
	}
	if c.Agent.MaxDelegationDepth < 1 {
		errs = append(errs, "max_delegation_depth must be at least 1")
	}

	// 验证上下文配置
	if c.Context.Threshold <= 0 || c.Context.Threshold > 1 {
		errs = append(errs, "context threshold must be in (0, 1]")
	}
	if c.Context.SafetyFactor < 1 {
		errs = append(errs, "safety_factor must be >= 1")
	}
	switch c.Context.Tokenizer {
	case "estimator", "tiktoken":
	default:
		errs = append(errs, fmt.Sprintf("unknown tokenizer %q", c.Context.Tokenizer))
	}
	for _, m := range c.Context.Models {
		if m.ID == "" || m.ContextWindow <= 0 || m.ReservedOutputTokens < 0 || m.ReservedOutputTokens >= m.ContextWindow {
			errs = append(errs, fmt.Sprintf("invalid model limits for %q", m.ID))
		}
	}

	// 验证搜索配置
	if c.Search.Enabled && c.Search.Provider != "tavily" {
		errs = append(errs, fmt.Sprintf("unknown search provider %q", c.Search.Provider))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
