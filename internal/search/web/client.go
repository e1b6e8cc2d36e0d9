package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vidforensics/backend/pkg/apperr"
	"github.com/vidforensics/backend/pkg/circuitbreaker"
	"github.com/vidforensics/backend/pkg/logger"
	"github.com/vidforensics/backend/pkg/textutil"
)

const (
	ProviderTavily  = "tavily"
	ProviderSerpAPI = "serpapi"

	trimMarker = "..."
)

type Config struct {
	Provider       string
	TavilyAPIKey   string
	TavilyBaseURL  string
	SerpAPIKey     string
	SerpAPIBaseURL string
	Depth          string
	MaxResults     int
	// ContentTrim caps each result's content in runes, marker included.
	ContentTrim    int
	ScrapeFallback bool
	Timeout        time.Duration
	Breaker        *circuitbreaker.CircuitBreaker
	HTTPClient     *http.Client
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	cb         *circuitbreaker.CircuitBreaker
}

type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

func NewClient(cfg Config) *Client {
	if cfg.Provider == "" {
		cfg.Provider = ProviderTavily
	}
	if cfg.TavilyBaseURL == "" {
		cfg.TavilyBaseURL = "https://api.tavily.com"
	}
	if cfg.SerpAPIBaseURL == "" {
		cfg.SerpAPIBaseURL = "https://serpapi.com"
	}
	if cfg.Depth == "" {
		cfg.Depth = "basic"
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 5
	}
	if cfg.ContentTrim <= 0 {
		cfg.ContentTrim = 3500
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	cb := cfg.Breaker
	if cb == nil {
		cb = circuitbreaker.NewCircuitBreaker("search", circuitbreaker.Config{
			MaxRequests:      2,
			Interval:         time.Minute,
			Timeout:          30 * time.Second,
			FailureThreshold: 5,
			Logger:           logger.GetLogger(),
		})
	}

	return &Client{cfg: cfg, httpClient: httpClient, cb: cb}
}

func (c *Client) Provider() string { return c.cfg.Provider }

func (c *Client) Configured() bool {
	if c.cfg.Provider == ProviderSerpAPI {
		return c.cfg.SerpAPIKey != ""
	}
	return c.cfg.TavilyAPIKey != ""
}

// Search returns at most MaxResults hits with content trimmed to the
// configured cap. An empty slice is a valid answer.
func (c *Client) Search(ctx context.Context, query string) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.Validation("search", "empty query")
	}

	logger.Debug("Performing web search",
		zap.String("provider", c.cfg.Provider),
		zap.String("query", query),
	)

	results, err := circuitbreaker.Run(ctx, c.cb, func() ([]SearchResult, error) {
		if c.cfg.Provider == ProviderSerpAPI {
			return c.searchWithSerpAPI(ctx, query)
		}
		return c.searchWithTavily(ctx, query)
	})
	if err != nil {
		return nil, err
	}

	if len(results) > c.cfg.MaxResults {
		results = results[:c.cfg.MaxResults]
	}
	for i := range results {
		results[i].Content = textutil.TruncateWithMarker(strings.TrimSpace(results[i].Content), c.cfg.ContentTrim, trimMarker)
	}

	logger.Debug("Web search completed", zap.Int("results", len(results)))
	return results, nil
}

func (c *Client) searchWithTavily(ctx context.Context, query string) ([]SearchResult, error) {
	const op = "search.tavily"

	payload, err := json.Marshal(map[string]interface{}{
		"api_key":             c.cfg.TavilyAPIKey,
		"query":               query,
		"search_depth":        c.cfg.Depth,
		"max_results":         c.cfg.MaxResults,
		"include_answer":      false,
		"include_raw_content": false,
		"include_images":      false,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: encode request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.cfg.TavilyBaseURL, "/")+"/search", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.TavilyAPIKey)

	body, err := c.fetch(op, req)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, apperr.Transient(op, fmt.Errorf("decode response: %w", err))
	}

	results := make([]SearchResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		content := r.Content
		if strings.TrimSpace(content) == "" && c.cfg.ScrapeFallback {
			content = c.scrapeOrEmpty(ctx, r.URL)
		}
		results = append(results, SearchResult{Title: r.Title, URL: r.URL, Content: content})
	}
	return results, nil
}

func (c *Client) searchWithSerpAPI(ctx context.Context, query string) ([]SearchResult, error) {
	const op = "search.serpapi"

	params := url.Values{}
	params.Add("engine", "google")
	params.Add("q", query)
	params.Add("api_key", c.cfg.SerpAPIKey)
	params.Add("num", strconv.Itoa(c.cfg.MaxResults))

	endpoint := fmt.Sprintf("%s/search?%s", strings.TrimRight(c.cfg.SerpAPIBaseURL, "/"), params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}

	body, err := c.fetch(op, req)
	if err != nil {
		return nil, err
	}

	var resp struct {
		OrganicResults []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"organic_results"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, apperr.Transient(op, fmt.Errorf("decode response: %w", err))
	}

	results := make([]SearchResult, 0, len(resp.OrganicResults))
	for _, r := range resp.OrganicResults {
		if len(results) == c.cfg.MaxResults {
			break
		}
		content := r.Snippet
		if c.cfg.ScrapeFallback {
			if scraped := c.scrapeOrEmpty(ctx, r.Link); scraped != "" {
				content = scraped
			}
		}
		results = append(results, SearchResult{Title: r.Title, URL: r.Link, Content: content})
	}
	return results, nil
}

func (c *Client) scrapeOrEmpty(ctx context.Context, pageURL string) string {
	text, err := c.scrapeContent(ctx, pageURL)
	if err != nil {
		logger.Warn("Failed to scrape content", zap.String("url", pageURL), zap.Error(err))
		return ""
	}
	return text
}

func (c *Client) fetch(op string, req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, apperr.Transient(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Transient(op, fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperr.FromStatus(op, resp.StatusCode, body)
	}
	return body, nil
}
