package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the paper enrichment service.
// Metrics are organized by subsystem: batches, searches, extraction, image
// jobs, and events. All counters and histograms are registered via promauto
// for automatic registration with the default Prometheus registry.
type Metrics struct {
	// BatchesStarted counts the total number of enrichment batches initiated.
	BatchesStarted prometheus.Counter

	// BatchesCompleted counts the total number of batches where every item
	// reached a terminal state.
	BatchesCompleted prometheus.Counter

	// BatchDuration observes the time from batch creation to completion in seconds.
	BatchDuration prometheus.Histogram

	// PapersPerBatch observes the distribution of paper counts per batch.
	PapersPerBatch prometheus.Histogram

	// SearchesStarted counts scholar searches initiated, labeled by source.
	SearchesStarted *prometheus.CounterVec

	// SearchesCompleted counts successful scholar searches, labeled by source.
	SearchesCompleted *prometheus.CounterVec

	// SearchesFailed counts scholar searches that failed after retries, labeled by source.
	SearchesFailed *prometheus.CounterVec

	// SearchDuration observes search duration in seconds, labeled by source.
	SearchDuration *prometheus.HistogramVec

	// CandidatesPerQuery observes the distribution of candidates returned per search.
	CandidatesPerQuery *prometheus.HistogramVec

	// AbstractsScraped counts abstracts extracted from publisher pages.
	AbstractsScraped prometheus.Counter

	// AbstractsDegraded counts abstracts that fell back to the search snippet.
	AbstractsDegraded prometheus.Counter

	// ExtractionDuration observes per-paper abstract extraction duration in seconds.
	ExtractionDuration prometheus.Histogram

	// ImageJobsSubmitted counts image generation jobs accepted by the provider.
	ImageJobsSubmitted prometheus.Counter

	// ImageJobOutcomes counts image jobs by terminal status
	// (succeeded, failed, timed_out).
	ImageJobOutcomes *prometheus.CounterVec

	// ImageJobDuration observes the time from submission to terminal status in seconds.
	ImageJobDuration prometheus.Histogram

	// ImageJobPolls observes the number of status polls per image job.
	ImageJobPolls prometheus.Histogram

	// EventsPublished counts lifecycle events published, labeled by event type.
	EventsPublished *prometheus.CounterVec

	// EventPublishFailures counts lifecycle events that could not be published.
	EventPublishFailures prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		// Batches
		BatchesStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_started_total",
			Help:      "Total number of enrichment batches started",
		}),
		BatchesCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_completed_total",
			Help:      "Total number of enrichment batches completed",
		}),
		BatchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Time from batch creation to completion in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		PapersPerBatch: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "papers_per_batch",
			Help:      "Number of papers per enrichment batch",
			Buckets:   []float64{1, 2, 3, 5, 8, 10},
		}),

		// Searches
		SearchesStarted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_started_total",
			Help:      "Total number of scholar searches started by source",
		}, []string{"source"}),
		SearchesCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_completed_total",
			Help:      "Total number of scholar searches completed by source",
		}, []string{"source"}),
		SearchesFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_failed_total",
			Help:      "Total number of scholar searches that failed by source",
		}, []string{"source"}),
		SearchDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Duration of scholar searches in seconds by source",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"source"}),
		CandidatesPerQuery: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "candidates_per_query",
			Help:      "Number of paper candidates returned per search by source",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 10, 20},
		}, []string{"source"}),

		// Extraction
		AbstractsScraped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "abstracts_scraped_total",
			Help:      "Total number of abstracts extracted from publisher pages",
		}),
		AbstractsDegraded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "abstracts_degraded_total",
			Help:      "Total number of abstracts that fell back to the search snippet",
		}),
		ExtractionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extraction_duration_seconds",
			Help:      "Duration of abstract extraction per paper in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),

		// Image jobs
		ImageJobsSubmitted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "image_jobs_submitted_total",
			Help:      "Total number of image generation jobs submitted",
		}),
		ImageJobOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "image_job_outcomes_total",
			Help:      "Total number of image generation jobs by terminal status",
		}, []string{"status"}),
		ImageJobDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "image_job_duration_seconds",
			Help:      "Time from image job submission to terminal status in seconds",
			Buckets:   []float64{5, 15, 30, 60, 120, 180, 300},
		}),
		ImageJobPolls: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "image_job_polls",
			Help:      "Number of status polls per image generation job",
			Buckets:   []float64{1, 2, 3, 5, 10, 20, 50},
		}),

		// Events
		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Total number of lifecycle events published by type",
		}, []string{"type"}),
		EventPublishFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_failures_total",
			Help:      "Total number of lifecycle events that failed to publish",
		}),
	}
}

// RecordBatchStarted records that an enrichment batch has started.
func (m *Metrics) RecordBatchStarted(paperCount int) {
	m.BatchesStarted.Inc()
	m.PapersPerBatch.Observe(float64(paperCount))
}

// RecordBatchCompleted records that every item in a batch reached a terminal state.
func (m *Metrics) RecordBatchCompleted(durationSeconds float64) {
	m.BatchesCompleted.Inc()
	m.BatchDuration.Observe(durationSeconds)
}

// RecordSearchStarted records that a scholar search has started.
func (m *Metrics) RecordSearchStarted(source string) {
	m.SearchesStarted.WithLabelValues(source).Inc()
}

// RecordSearchCompleted records that a scholar search has completed.
func (m *Metrics) RecordSearchCompleted(source string, candidateCount int, durationSeconds float64) {
	m.SearchesCompleted.WithLabelValues(source).Inc()
	m.SearchDuration.WithLabelValues(source).Observe(durationSeconds)
	m.CandidatesPerQuery.WithLabelValues(source).Observe(float64(candidateCount))
}

// RecordSearchFailed records that a scholar search has failed after retries.
func (m *Metrics) RecordSearchFailed(source string, durationSeconds float64) {
	m.SearchesFailed.WithLabelValues(source).Inc()
	m.SearchDuration.WithLabelValues(source).Observe(durationSeconds)
}

// RecordAbstractScraped records an abstract extracted from a publisher page.
func (m *Metrics) RecordAbstractScraped(durationSeconds float64) {
	m.AbstractsScraped.Inc()
	m.ExtractionDuration.Observe(durationSeconds)
}

// RecordAbstractDegraded records an abstract that fell back to the search snippet.
func (m *Metrics) RecordAbstractDegraded(durationSeconds float64) {
	m.AbstractsDegraded.Inc()
	m.ExtractionDuration.Observe(durationSeconds)
}

// RecordImageJobSubmitted records an image generation job accepted by the provider.
func (m *Metrics) RecordImageJobSubmitted() {
	m.ImageJobsSubmitted.Inc()
}

// RecordImageJobOutcome records an image job reaching a terminal status.
func (m *Metrics) RecordImageJobOutcome(status string, durationSeconds float64, polls int) {
	m.ImageJobOutcomes.WithLabelValues(status).Inc()
	m.ImageJobDuration.Observe(durationSeconds)
	m.ImageJobPolls.Observe(float64(polls))
}

// RecordEventPublished records a lifecycle event published to the broker.
func (m *Metrics) RecordEventPublished(eventType string) {
	m.EventsPublished.WithLabelValues(eventType).Inc()
}

// RecordEventPublishFailure records a lifecycle event that could not be published.
func (m *Metrics) RecordEventPublishFailure() {
	m.EventPublishFailures.Inc()
}
