package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentrelay/types"
)

// WebSearchProvider defines the interface for web search backends.
type WebSearchProvider interface {
	// Search performs a web search and returns results.
	Search(ctx context.Context, query string, opts WebSearchOptions) ([]WebSearchResult, error)
	// Name returns the provider name.
	Name() string
}

// WebSearchOptions configures a web search request.
type WebSearchOptions struct {
	MaxResults     int      `json:"max_results"`               // Maximum number of results (default: 5)
	TimeRange      string   `json:"time_range,omitempty"`      // Time range: "day", "week", "month", "year"
	Domains        []string `json:"domains,omitempty"`         // Restrict to specific domains
	ExcludeDomains []string `json:"exclude_domains,omitempty"` // Exclude specific domains
}

// DefaultWebSearchOptions returns sensible defaults.
func DefaultWebSearchOptions() WebSearchOptions {
	return WebSearchOptions{MaxResults: 5}
}

// WebSearchResult represents a single search result.
type WebSearchResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score,omitempty"` // Relevance score (0-1)
}

// WebSearchToolConfig configures the web search tool.
type WebSearchToolConfig struct {
	Name        string            // Tool name (default: "search")
	Provider    WebSearchProvider // Search backend provider
	DefaultOpts WebSearchOptions  // Default search options
	Timeout     time.Duration     // Per-search timeout
	RateLimit   *RateLimitConfig  // Rate limiting
}

// DefaultWebSearchToolConfig returns sensible defaults.
func DefaultWebSearchToolConfig() WebSearchToolConfig {
	return WebSearchToolConfig{
		Name:        "search",
		DefaultOpts: DefaultWebSearchOptions(),
		Timeout:     15 * time.Second,
		RateLimit: &RateLimitConfig{
			MaxCalls: 30,
			Window:   time.Minute,
		},
	}
}

type webSearchArgs struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
	TimeRange  string `json:"time_range,omitempty"`
}

type webSearchResponse struct {
	Query   string            `json:"query"`
	Results []WebSearchResult `json:"results"`
}

// NewWebSearchTool creates a ToolFunc for web searching.
func NewWebSearchTool(config WebSearchToolConfig, logger *zap.Logger) (ToolFunc, ToolMetadata) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Name == "" {
		config.Name = "search"
	}
	logger = logger.With(zap.String("tool", config.Name))

	fn := func(ctx context.Context, args json.RawMessage) (any, error) {
		var params webSearchArgs
		if err := json.Unmarshal(args, &params); err != nil {
			return nil, fmt.Errorf("invalid %s arguments: %w", config.Name, err)
		}
		if params.Query == "" {
			return nil, fmt.Errorf("query is required")
		}
		if config.Provider == nil {
			return nil, fmt.Errorf("web search provider not configured")
		}

		opts := config.DefaultOpts
		if params.MaxResults > 0 {
			opts.MaxResults = params.MaxResults
		}
		if params.TimeRange != "" {
			opts.TimeRange = params.TimeRange
		}

		start := time.Now()
		results, err := config.Provider.Search(ctx, params.Query, opts)
		if err != nil {
			logger.Warn("web search failed", zap.String("query", params.Query), zap.Error(err))
			return nil, fmt.Errorf("web search failed: %w", err)
		}

		logger.Info("web search completed",
			zap.String("provider", config.Provider.Name()),
			zap.Int("results", len(results)),
			zap.Duration("duration", time.Since(start)))

		return webSearchResponse{Query: params.Query, Results: results}, nil
	}

	metadata := ToolMetadata{
		Schema: types.ToolSchema{
			Name:        config.Name,
			Description: "Use this tool to search the web for information.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"query": {
						"type": "string",
						"description": "The search query"
					},
					"max_results": {
						"type": "integer",
						"description": "Maximum number of results to return"
					},
					"time_range": {
						"type": "string",
						"enum": ["day", "week", "month", "year"],
						"description": "Filter results by time range"
					}
				},
				"required": ["query"]
			}`),
		},
		Timeout:   config.Timeout,
		RateLimit: config.RateLimit,
	}

	return fn, metadata
}

// RegisterWebSearchTool creates and registers the web search tool.
func RegisterWebSearchTool(registry *Registry, config WebSearchToolConfig, logger *zap.Logger) error {
	fn, metadata := NewWebSearchTool(config, logger)
	return registry.Register(metadata.Schema.Name, fn, metadata)
}
