package scenario

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/scholaris/paper-enrichment-service/internal/domain"
	"github.com/scholaris/paper-enrichment-service/internal/providers"
)

const (
	// DefaultBaseURL is the default Scenario API base URL.
	DefaultBaseURL = "https://api.cloud.scenario.com/v1"

	// DefaultModelID is the generation model used when none is configured.
	DefaultModelID = "flux.1-dev"

	// DefaultRateLimit is the default rate limit for requests per second.
	// Kept low because the poll loop dominates traffic to this API.
	DefaultRateLimit = 5.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 5

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second
)

// Generation parameters for txt2img submissions.
const (
	numInferenceSteps = 28
	numSamples        = 1
	guidance          = 3.5
	imageWidth        = 1024
	imageHeight       = 1024
	scheduler         = "EulerAncestralDiscreteScheduler"
)

// Provider job statuses.
const (
	statusQueued     = "queued"
	statusInProgress = "in-progress"
	statusSuccess    = "success"
	statusFailure    = "failure"
)

// Config holds configuration for the Scenario client.
type Config struct {
	// BaseURL is the Scenario API base URL.
	// Defaults to https://api.cloud.scenario.com/v1
	BaseURL string

	// APIKey is the Scenario API key. A client without a key is disabled.
	APIKey string

	// APISecret is the Scenario API secret. May be empty for key-only
	// accounts; the Basic credential is formed as key:secret either way.
	APISecret string

	// ModelID selects the generation model.
	// Defaults to flux.1-dev.
	ModelID string

	// Timeout is the request timeout.
	// Defaults to 30 seconds.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	// Defaults to 5 req/sec.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	// Defaults to 5.
	BurstSize int
}

// applyDefaults sets default values for unset configuration fields.
func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.ModelID == "" {
		c.ModelID = DefaultModelID
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
}

// Client implements the providers.ImageJobProvider interface for Scenario.
type Client struct {
	config     Config
	httpClient *providers.HTTPClient
}

// Ensure Client implements ImageJobProvider interface.
var _ providers.ImageJobProvider = (*Client)(nil)

// New creates a new Scenario client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	var authHeader string
	if cfg.APIKey != "" {
		credential := base64.StdEncoding.EncodeToString([]byte(cfg.APIKey + ":" + cfg.APISecret))
		authHeader = "Basic " + credential
	}

	httpClient := providers.NewHTTPClient(providers.HTTPClientConfig{
		Timeout:      cfg.Timeout,
		RateLimit:    cfg.RateLimit,
		BurstSize:    cfg.BurstSize,
		APIKey:       authHeader,
		APIKeyHeader: "Authorization",
	})

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// NewWithHTTPClient creates a new Scenario client with a custom HTTP client.
// This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *providers.HTTPClient) *Client {
	cfg.applyDefaults()

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// SubmitJob starts a txt2img job and returns the provider job ID.
// A response without any recognisable job ID is a rejected submission.
func (c *Client) SubmitJob(ctx context.Context, req providers.SubmitRequest) (string, error) {
	width, height := req.Width, req.Height
	if width == 0 {
		width = imageWidth
	}
	if height == 0 {
		height = imageHeight
	}
	payload, err := json.Marshal(GenerationRequest{
		ModelID:           c.config.ModelID,
		Prompt:            req.Prompt,
		NumInferenceSteps: numInferenceSteps,
		NumSamples:        numSamples,
		Guidance:          guidance,
		Width:             width,
		Height:            height,
		Scheduler:         scheduler,
		NegativePrompt:    req.NegativePrompt,
	})
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	body, err := c.doJSON(ctx, http.MethodPost, "generate/txt2img", payload)
	if err != nil {
		return "", err
	}

	var genResp GenerationResponse
	if err := json.Unmarshal(body, &genResp); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	jobID := firstNonEmpty(genResp.Job.JobID, genResp.JobID, genResp.ID)
	if jobID == "" {
		return "", fmt.Errorf("no job ID in submission response: %w", domain.ErrSubmissionRejected)
	}
	return jobID, nil
}

// PollJob returns the current snapshot of a generation job.
func (c *Client) PollJob(ctx context.Context, jobID string) (*providers.JobPoll, error) {
	body, err := c.doJSON(ctx, http.MethodGet, "jobs/"+jobID, nil)
	if err != nil {
		return nil, err
	}

	var jobResp JobResponse
	if err := json.Unmarshal(body, &jobResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	return &providers.JobPoll{
		Status:   mapStatus(jobResp.Job.Status),
		Progress: jobResp.Job.Progress,
		Error:    jobResp.Job.Error,
		AssetIDs: jobResp.Job.Metadata.AssetIDs,
	}, nil
}

// ResolveAssets exchanges asset IDs for downloadable URLs. Assets without a
// usable URL are skipped; the call fails only when nothing resolves.
func (c *Client) ResolveAssets(ctx context.Context, assetIDs []string) ([]string, error) {
	if len(assetIDs) == 0 {
		return nil, fmt.Errorf("job produced no assets: %w", domain.ErrNotFound)
	}

	urls := make([]string, 0, len(assetIDs))
	var lastErr error
	for _, assetID := range assetIDs {
		assetURL, err := c.resolveAsset(ctx, assetID)
		if err != nil {
			lastErr = err
			continue
		}
		if assetURL == "" {
			continue
		}
		urls = append(urls, assetURL)
	}

	if len(urls) == 0 {
		if lastErr != nil {
			return nil, fmt.Errorf("no assets resolved: %w", lastErr)
		}
		return nil, fmt.Errorf("no assets resolved: %w", domain.ErrNotFound)
	}
	return urls, nil
}

// Name returns the human-readable name for this provider.
func (c *Client) Name() string {
	return "scenario"
}

// IsEnabled reports whether an API key is configured.
func (c *Client) IsEnabled() bool {
	return c.config.APIKey != ""
}

// resolveAsset fetches one asset record and returns its download URL, which
// may be empty when the provider reports the asset without a location.
func (c *Client) resolveAsset(ctx context.Context, assetID string) (string, error) {
	body, err := c.doJSON(ctx, http.MethodGet, "assets/"+assetID, nil)
	if err != nil {
		return "", err
	}

	var assetResp AssetResponse
	if err := json.Unmarshal(body, &assetResp); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	return firstNonEmpty(assetResp.URL, assetResp.DownloadURL, assetResp.Asset.URL), nil
}

// doJSON executes one API request and returns the response body.
// Non-2xx statuses are mapped to domain errors.
func (c *Client) doJSON(ctx context.Context, method, endpoint string, payload []byte) ([]byte, error) {
	endpointURL, err := c.endpointURL(endpoint)
	if err != nil {
		return nil, err
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpointURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
		return nil, domain.NewRateLimitError("scenario", providers.ParseRetryAfter(resp, 2*time.Second))
	}

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
		return nil, domain.NewNotFoundError("resource", endpoint)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, domain.NewExternalAPIError("scenario", resp.StatusCode, string(body), nil)
	}

	// Limit body to 10MB to prevent resource exhaustion.
	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return body, nil
}

// endpointURL appends an endpoint path to the configured base URL, keeping
// any path prefix the base carries (such as /v1).
func (c *Client) endpointURL(endpoint string) (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	baseURL.Path = strings.TrimSuffix(baseURL.Path, "/") + "/" + endpoint
	return baseURL.String(), nil
}

// firstNonEmpty returns the first non-empty value.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// mapStatus converts a provider status string onto the domain job lifecycle.
// Unknown statuses map to running so the poll loop keeps watching the job.
func mapStatus(status string) domain.ImageJobStatus {
	switch status {
	case statusQueued:
		return domain.ImageJobStatusPending
	case statusInProgress:
		return domain.ImageJobStatusRunning
	case statusSuccess:
		return domain.ImageJobStatusSucceeded
	case statusFailure:
		return domain.ImageJobStatusFailed
	default:
		return domain.ImageJobStatusRunning
	}
}
