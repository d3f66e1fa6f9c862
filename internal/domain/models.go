// Package domain provides domain models and business logic for the Paper
// Enrichment Service.
package domain

// BatchItemState represents the lifecycle states of a single item within an
// enrichment batch.
type BatchItemState string

const (
	BatchItemStateCreated         BatchItemState = "created"
	BatchItemStateAbstractPending BatchItemState = "abstract_pending"
	BatchItemStateAbstractReady   BatchItemState = "abstract_ready"
	BatchItemStateImagePending    BatchItemState = "image_pending"
	BatchItemStateImageReady      BatchItemState = "image_ready"
	BatchItemStateImageFailed     BatchItemState = "image_failed"
)

// IsTerminal returns true if the state represents a final state that will not change.
func (s BatchItemState) IsTerminal() bool {
	switch s {
	case BatchItemStateImageReady, BatchItemStateImageFailed:
		return true
	default:
		return false
	}
}

// ImageJobStatus represents the state of an asynchronous image generation job.
type ImageJobStatus string

const (
	ImageJobStatusPending   ImageJobStatus = "pending"
	ImageJobStatusRunning   ImageJobStatus = "running"
	ImageJobStatusSucceeded ImageJobStatus = "succeeded"
	ImageJobStatusFailed    ImageJobStatus = "failed"
	ImageJobStatusTimedOut  ImageJobStatus = "timed_out"
)

// IsTerminal returns true if the status represents a final state that will not change.
// A timed-out job is terminal: the deadline elapsed and the job is abandoned,
// whatever the provider eventually does with it.
func (s ImageJobStatus) IsTerminal() bool {
	switch s {
	case ImageJobStatusSucceeded, ImageJobStatusFailed, ImageJobStatusTimedOut:
		return true
	default:
		return false
	}
}

// AbstractSource records which extraction path produced an item's abstract.
type AbstractSource string

const (
	// AbstractSourceScraped means the abstract was extracted from the paper's page.
	AbstractSourceScraped AbstractSource = "scraped"

	// AbstractSourceSnippet means extraction fell back to the search snippet.
	AbstractSourceSnippet AbstractSource = "snippet"
)

// DateRange restricts a search to a recency window.
type DateRange string

const (
	DateRangeAny   DateRange = ""
	DateRangeWeek  DateRange = "week"
	DateRangeMonth DateRange = "month"
	DateRangeYear  DateRange = "year"
)

// IsValid reports whether the value is one of the supported ranges.
func (d DateRange) IsValid() bool {
	switch d {
	case DateRangeAny, DateRangeWeek, DateRangeMonth, DateRangeYear:
		return true
	default:
		return false
	}
}
