// Package providers defines the interfaces and shared HTTP plumbing for the
// external services the enrichment pipeline talks to.
//
// Two kinds of provider exist: search providers return ranked paper
// candidates for a query, and image job providers run asynchronous
// text-to-image jobs. Each concrete client lives in its own subpackage
// (serper, scenario) and is constructed with a rate-limited HTTPClient.
//
// Example usage:
//
//	client := serper.New(serper.Config{APIKey: key}, logger)
//	candidates, err := client.Search(ctx, providers.SearchParams{
//		Query:      "graph neural networks",
//		MaxResults: 10,
//	})
package providers

import (
	"context"

	"github.com/scholaris/paper-enrichment-service/internal/domain"
)

// SearchParams defines the parameters for a scholarly search.
type SearchParams struct {
	// Query is the search query string (required).
	Query string

	// MaxResults limits the number of candidates returned.
	// A value of 0 uses the provider's default.
	MaxResults int

	// DateRange restricts results to a recency window.
	// DateRangeAny applies no restriction.
	DateRange domain.DateRange
}

// SearchProvider is implemented by scholarly search clients.
type SearchProvider interface {
	// Search queries the provider and returns candidates in the provider's
	// ranking order. Implementations should respect context cancellation,
	// apply rate limiting, and wrap failures with source context.
	Search(ctx context.Context, params SearchParams) ([]domain.PaperCandidate, error)

	// Name returns a human-readable provider name for logging and metrics.
	Name() string

	// IsEnabled reports whether the provider is configured and available.
	// A provider without credentials reports false.
	IsEnabled() bool
}

// SubmitRequest describes a text-to-image job submission.
type SubmitRequest struct {
	// Prompt is the full generation prompt.
	Prompt string

	// NegativePrompt lists concepts the model should avoid. Optional.
	NegativePrompt string

	// Width and Height select the output resolution in pixels. Zero values
	// use the provider's default size.
	Width  int
	Height int
}

// JobPoll is a point-in-time snapshot of an asynchronous image job.
type JobPoll struct {
	// Status is the provider status mapped onto the domain lifecycle.
	Status domain.ImageJobStatus

	// Progress is the provider-reported completion fraction in [0, 1].
	Progress float64

	// Error is the provider's failure description. Empty unless Status
	// is failed.
	Error string

	// AssetIDs identifies the produced assets. Populated only once the
	// job has succeeded.
	AssetIDs []string
}

// ImageJobProvider is implemented by asynchronous image generation clients.
type ImageJobProvider interface {
	// SubmitJob starts a generation job and returns the provider job ID.
	SubmitJob(ctx context.Context, req SubmitRequest) (string, error)

	// PollJob returns the current snapshot of a previously submitted job.
	PollJob(ctx context.Context, jobID string) (*JobPoll, error)

	// ResolveAssets exchanges asset IDs from a succeeded job for
	// downloadable URLs. Assets that cannot be resolved are skipped;
	// an error is returned only when none resolve.
	ResolveAssets(ctx context.Context, assetIDs []string) ([]string, error)

	// Name returns a human-readable provider name for logging and metrics.
	Name() string

	// IsEnabled reports whether the provider is configured and available.
	IsEnabled() bool
}
