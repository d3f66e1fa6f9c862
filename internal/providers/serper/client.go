package serper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/scholaris/paper-enrichment-service/internal/domain"
	"github.com/scholaris/paper-enrichment-service/internal/providers"
	"github.com/scholaris/paper-enrichment-service/internal/resilience"
)

const (
	// DefaultBaseURL is the default Serper API base URL.
	DefaultBaseURL = "https://google.serper.dev"

	// DefaultRateLimit is the default rate limit for requests per second.
	DefaultRateLimit = 10.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 10

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults is the default number of results per search.
	DefaultMaxResults = 10

	// apiKeyHeader carries the Serper credential.
	apiKeyHeader = "X-API-KEY"
)

// yearPattern matches a plausible four-digit publication year.
var yearPattern = regexp.MustCompile(`\b(19|20)\d{2}\b`)

// Config holds configuration for the Serper client.
type Config struct {
	// BaseURL is the Serper API base URL.
	// Defaults to https://google.serper.dev
	BaseURL string

	// APIKey is the Serper API key. A client without a key is disabled.
	APIKey string

	// Timeout is the request timeout.
	// Defaults to 30 seconds.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	// Defaults to 10 req/sec.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	// Defaults to 10.
	BurstSize int

	// MaxResults is the number of results requested when the caller does
	// not specify one. Defaults to 10.
	MaxResults int

	// RetryPolicy governs search request retries. Zero value means the
	// default policy.
	RetryPolicy resilience.Policy
}

// applyDefaults sets default values for unset configuration fields.
func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.BurstSize == 0 {
		c.BurstSize = DefaultBurstSize
	}
	if c.MaxResults == 0 {
		c.MaxResults = DefaultMaxResults
	}
	if c.RetryPolicy.MaxAttempts == 0 {
		c.RetryPolicy = resilience.DefaultPolicy()
	}
}

// Client implements the providers.SearchProvider interface for Serper.
type Client struct {
	config     Config
	httpClient *providers.HTTPClient
	logger     zerolog.Logger
}

// Ensure Client implements SearchProvider interface.
var _ providers.SearchProvider = (*Client)(nil)

// New creates a new Serper client with the given configuration.
func New(cfg Config, logger zerolog.Logger) *Client {
	cfg.applyDefaults()

	httpClient := providers.NewHTTPClient(providers.HTTPClientConfig{
		Timeout:      cfg.Timeout,
		RateLimit:    cfg.RateLimit,
		BurstSize:    cfg.BurstSize,
		APIKey:       cfg.APIKey,
		APIKeyHeader: apiKeyHeader,
	})

	return &Client{
		config:     cfg,
		httpClient: httpClient,
		logger:     logger.With().Str("component", "serper").Logger(),
	}
}

// NewWithHTTPClient creates a new Serper client with a custom HTTP client.
// This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *providers.HTTPClient, logger zerolog.Logger) *Client {
	cfg.applyDefaults()

	return &Client{
		config:     cfg,
		httpClient: httpClient,
		logger:     logger.With().Str("component", "serper").Logger(),
	}
}

// Search queries the scholar endpoint through the retry envelope and returns
// candidates in Serper's ranking order. Transient failures (rate limits,
// provider 5xx) are retried under the configured policy; missing response
// fields yield zero values on the candidate.
func (c *Client) Search(ctx context.Context, params providers.SearchParams) ([]domain.PaperCandidate, error) {
	searchURL, err := c.buildSearchURL()
	if err != nil {
		return nil, fmt.Errorf("building search URL: %w", err)
	}

	num := params.MaxResults
	if num <= 0 {
		num = c.config.MaxResults
	}

	payload, err := json.Marshal(SearchRequest{
		Query: params.Query,
		Num:   num,
		TBS:   tbsFor(params.DateRange),
	})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	var candidates []domain.PaperCandidate
	err = resilience.Do(ctx, c.config.RetryPolicy, c.logger, "search_scholar", func(ctx context.Context) error {
		var searchErr error
		candidates, searchErr = c.searchOnce(ctx, searchURL, payload)
		return searchErr
	})
	if err != nil {
		return nil, err
	}
	return candidates, nil
}

// searchOnce performs one scholar request. The body reader is rebuilt here so
// a retried attempt never posts a drained reader.
func (c *Client) searchOnce(ctx context.Context, searchURL string, payload []byte) ([]domain.PaperCandidate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, searchURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
		return nil, domain.NewRateLimitError("serper", providers.ParseRetryAfter(resp, 2*time.Second))
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, domain.NewExternalAPIError("serper", resp.StatusCode, string(body), nil)
	}

	// Limit body to 10MB to prevent resource exhaustion.
	var searchResp SearchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	candidates := make([]domain.PaperCandidate, 0, len(searchResp.Organic))
	for _, result := range searchResp.Organic {
		candidates = append(candidates, resultToCandidate(result))
	}
	return candidates, nil
}

// Name returns the human-readable name for this provider.
func (c *Client) Name() string {
	return "serper"
}

// IsEnabled reports whether an API key is configured.
func (c *Client) IsEnabled() bool {
	return c.config.APIKey != ""
}

// buildSearchURL constructs the scholar endpoint URL.
func (c *Client) buildSearchURL() (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	baseURL.Path = "/scholar"
	return baseURL.String(), nil
}

// tbsFor maps a recency window onto Google's time-based search parameter.
func tbsFor(r domain.DateRange) string {
	switch r {
	case domain.DateRangeWeek:
		return "qdr:w"
	case domain.DateRangeMonth:
		return "qdr:m"
	case domain.DateRangeYear:
		return "qdr:y"
	default:
		return ""
	}
}

// resultToCandidate converts a scholar hit to a domain candidate.
func resultToCandidate(result OrganicResult) domain.PaperCandidate {
	summary := result.PublicationInfo.Summary
	return domain.PaperCandidate{
		Title:           result.Title,
		SourceURL:       result.Link,
		SourceSnippet:   result.Snippet,
		PublicationInfo: summary,
		Year:            extractYear(summary),
		CitationCount:   extractCitations(result.InlineLinks),
		Authors:         extractAuthors(summary),
	}
}

// extractCitations finds the "Cited by N" inline link and returns N.
// Thousands separators are tolerated ("Cited by 1,234" parses as 1234).
func extractCitations(links []InlineLink) int {
	for _, link := range links {
		if !strings.Contains(link.Title, "Cited by") {
			continue
		}
		digits := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, link.Title)
		if digits == "" {
			return 0
		}
		count, err := strconv.Atoi(digits)
		if err != nil {
			return 0
		}
		return count
	}
	return 0
}

// extractYear returns the first four-digit year in the summary, or 0 when
// the summary does not report one.
func extractYear(summary string) int {
	match := yearPattern.FindString(summary)
	if match == "" {
		return 0
	}
	year, _ := strconv.Atoi(match)
	return year
}

// extractAuthors returns the author segment of the summary, which precedes
// the first hyphen in lines like "A Vaswani, N Shazeer - NeurIPS, 2017".
func extractAuthors(summary string) string {
	authors, _, _ := strings.Cut(summary, "-")
	return strings.TrimSpace(authors)
}
