// =============================================================================
// 📦 AgentRelay 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Agent:     DefaultAgentConfig(),
		Context:   DefaultContextConfig(),
		LLM:       DefaultLLMConfig(),
		Search:    DefaultSearchConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:           8080,
		MetricsPort:        9091,
		ReadTimeout:        30 * time.Second,
		WriteTimeout:       30 * time.Second,
		ShutdownTimeout:    15 * time.Second,
		MaxConcurrentTurns: 16,
		TurnTimeout:        5 * time.Minute,
		RateLimitRPS:       10,
		RateLimitBurst:     20,
	}
}

// DefaultAgentConfig 返回默认编排智能体配置
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		Name:               "orchestrator",
		Model:              "gpt-4o",
		MaxSteps:           20,
		Temperature:        0,
		MaxTokens:          0,
		MaxDelegationDepth: 1,
	}
}

// DefaultContextConfig 返回默认上下文配置
func DefaultContextConfig() ContextConfig {
	return ContextConfig{
		Threshold:    0.8,
		Tokenizer:    "estimator",
		SafetyFactor: 1.2,
	}
}

// DefaultLLMConfig 返回默认 LLM 配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider: "openai",
		APIKey:   "",
		BaseURL:  "",
		Timeout:  2 * time.Minute,
	}
}

// DefaultSearchConfig 返回默认搜索配置
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		Enabled:            true,
		Provider:           "tavily",
		Model:              "gpt-4o-mini",
		MaxResults:         5,
		Timeout:            15 * time.Second,
		RateLimitPerMinute: 30,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "agentrelay",
		SampleRate:   0.1,
	}
}
