package domain

import (
	"time"

	"github.com/google/uuid"
)

// BatchItem is one paper's slot within a batch: the enriched paper plus the
// image-generation outcome as it becomes known. Items are index-addressed and
// keep their candidate order for the life of the batch.
type BatchItem struct {
	EnrichedPaper

	State BatchItemState `json:"state"`

	// ImageURLs transitions from empty to non-empty exactly once, when the
	// item's image job succeeds. It is never reset.
	ImageURLs []string `json:"image_urls"`

	// ImageError records why image generation failed or timed out; empty otherwise.
	ImageError string `json:"image_error,omitempty"`
}

// BatchResult is the shared result view for one enrichment run. The
// orchestrator mutates it in place as image jobs complete; it is the only
// domain entity with concurrent mutation, and access to live instances goes
// through the orchestrator's synchronized cells. Values handed to callers are
// snapshots.
type BatchResult struct {
	BatchID uuid.UUID `json:"batch_id"`
	Query   string    `json:"query"`

	Items []BatchItem `json:"items"`

	// SuccessCount is the number of items whose image generation succeeded.
	// Invariant: SuccessCount <= TotalCount.
	SuccessCount int `json:"success_count"`
	TotalCount   int `json:"total_count"`

	CreatedAt time.Time `json:"created_at"`
}

// NewBatchResult creates a batch over the given enriched papers, one item per
// paper in candidate order.
func NewBatchResult(query string, papers []EnrichedPaper) *BatchResult {
	items := make([]BatchItem, len(papers))
	for i, p := range papers {
		items[i] = BatchItem{
			EnrichedPaper: p,
			State:         BatchItemStateAbstractReady,
			ImageURLs:     []string{},
		}
	}

	return &BatchResult{
		BatchID:    uuid.New(),
		Query:      query,
		Items:      items,
		TotalCount: len(items),
		CreatedAt:  time.Now(),
	}
}

// AllTerminal returns true once every item has reached a terminal state.
func (b *BatchResult) AllTerminal() bool {
	for i := range b.Items {
		if !b.Items[i].State.IsTerminal() {
			return false
		}
	}
	return true
}

// DegradedCount returns the number of items that fell back to the search
// snippet during extraction.
func (b *BatchResult) DegradedCount() int {
	n := 0
	for i := range b.Items {
		if b.Items[i].Degraded() {
			n++
		}
	}
	return n
}
