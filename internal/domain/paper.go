package domain

// PaperCandidate represents a single search result before enrichment.
// Candidates are produced by the search provider and are immutable once created.
type PaperCandidate struct {
	Title         string
	SourceURL     string
	SourceSnippet string

	// PublicationInfo is the provider's raw venue summary line
	// (e.g. "J Smith, A Jones - Nature, 2021 - nature.com").
	// Authors and Year are derived from it at parse time.
	PublicationInfo string

	// Year is the publication year, or 0 when the provider did not report one.
	Year          int
	CitationCount int
	Authors       string
}

// EnrichedPaper is a candidate with its extracted abstract attached.
// Abstract is never empty: extraction guarantees the snippet fallback.
type EnrichedPaper struct {
	PaperCandidate

	Abstract       string
	AbstractSource AbstractSource
}

// Degraded reports whether enrichment fell back to the search snippet
// instead of a scraped abstract.
func (p EnrichedPaper) Degraded() bool {
	return p.AbstractSource == AbstractSourceSnippet
}

// ImageJob tracks one asynchronous image generation job. The job record is
// owned by the image job client for its lifetime; the orchestrator's result
// view references it but never mutates it.
type ImageJob struct {
	// PaperIndex is the position of the paper within its batch.
	PaperIndex int

	// ProviderJobID is the provider-assigned job identifier, set after submission.
	ProviderJobID string

	Status ImageJobStatus

	// Progress is the provider-reported completion fraction in [0, 1].
	Progress float64

	// ResultURLs transitions from empty to non-empty at most once, when the
	// job succeeds and its assets resolve.
	ResultURLs []string

	// Attempts counts poll calls made before the job reached its outcome.
	Attempts int

	// LastError holds the most recent failure, if any. A timed-out job
	// carries the deadline error here for observability, but timing out is
	// an expected outcome, not a failure of the client.
	LastError error
}
