package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/agentrelay/internal/tlsutil"
)

// TavilyConfig configures the Tavily search backend.
type TavilyConfig struct {
	APIKey      string
	BaseURL     string        // default: https://api.tavily.com
	SearchDepth string        // "basic" or "advanced"
	Timeout     time.Duration // HTTP timeout, default 15s
}

// TavilyProvider implements WebSearchProvider on the Tavily search API.
type TavilyProvider struct {
	cfg    TavilyConfig
	client *http.Client
}

// NewTavilyProvider creates a Tavily backend.
func NewTavilyProvider(cfg TavilyConfig) *TavilyProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.tavily.com"
	}
	if cfg.SearchDepth == "" {
		cfg.SearchDepth = "basic"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &TavilyProvider{cfg: cfg, client: tlsutil.SecureHTTPClient(cfg.Timeout)}
}

func (p *TavilyProvider) Name() string { return "tavily" }

type tavilyRequest struct {
	Query          string   `json:"query"`
	SearchDepth    string   `json:"search_depth,omitempty"`
	MaxResults     int      `json:"max_results,omitempty"`
	TimeRange      string   `json:"time_range,omitempty"`
	IncludeDomains []string `json:"include_domains,omitempty"`
	ExcludeDomains []string `json:"exclude_domains,omitempty"`
}

type tavilyResponse struct {
	Query   string `json:"query"`
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

func (p *TavilyProvider) Search(ctx context.Context, query string, opts WebSearchOptions) ([]WebSearchResult, error) {
	if p.cfg.APIKey == "" {
		return nil, fmt.Errorf("tavily api key not configured")
	}
	payload, err := json.Marshal(tavilyRequest{
		Query:          query,
		SearchDepth:    p.cfg.SearchDepth,
		MaxResults:     opts.MaxResults,
		TimeRange:      opts.TimeRange,
		IncludeDomains: opts.Domains,
		ExcludeDomains: opts.ExcludeDomains,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal tavily request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(p.cfg.BaseURL, "/")+"/search", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create tavily request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tavily request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("tavily returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode tavily response: %w", err)
	}

	results := make([]WebSearchResult, 0, len(out.Results))
	for _, r := range out.Results {
		results = append(results, WebSearchResult{Title: r.Title, URL: r.URL, Content: r.Content, Score: r.Score})
	}
	return results, nil
}
