package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/scholaris/paper-enrichment-service/internal/domain"
	"github.com/scholaris/paper-enrichment-service/internal/observability"
	"github.com/scholaris/paper-enrichment-service/internal/providers"
)

// DefaultMaxParallel caps concurrent per-item work within one batch.
const DefaultMaxParallel = 10

// Searcher obtains ranked paper candidates for a query.
// This decouples the orchestrator from the concrete serper client,
// enabling straightforward testing with mock implementations.
type Searcher interface {
	Search(ctx context.Context, params providers.SearchParams) ([]domain.PaperCandidate, error)
	Name() string
}

// AbstractExtractor enriches one candidate with an abstract. Implementations
// are total: they always return a paper, degrading to the snippet rather
// than failing.
type AbstractExtractor interface {
	Extract(ctx context.Context, candidate domain.PaperCandidate) domain.EnrichedPaper
}

// ImageGenerator runs one image job per paper through to a terminal status.
type ImageGenerator interface {
	Enabled() bool
	Generate(ctx context.Context, paper domain.EnrichedPaper, index int) domain.ImageJob
}

// EventPublisher emits batch lifecycle events to an external channel.
type EventPublisher interface {
	Publish(ctx context.Context, event *domain.Event) error
}

// Config contains orchestrator tuning options.
type Config struct {
	// MaxParallel caps concurrent per-item work within one batch. The
	// effective pool size is min(batch size, MaxParallel).
	MaxParallel int
}

func (c Config) applyDefaults() Config {
	if c.MaxParallel <= 0 {
		c.MaxParallel = DefaultMaxParallel
	}
	return c
}

// Orchestrator runs the two-phase enrichment pipeline.
//
// Phase 1 (synchronous): search for candidates, extract abstracts for all of
// them concurrently, assemble the batch in candidate order, store it, and
// return. The search call is the only failure that propagates; extraction is
// total.
//
// Phase 2 (detached): one image generation task per item under a bounded
// pool. Tasks run on the orchestrator's lifecycle context, not the request
// context, so a disconnected caller never kills in-flight jobs. One item's
// failure or timeout never touches its siblings.
type Orchestrator struct {
	searcher  Searcher
	extractor AbstractExtractor
	imager    ImageGenerator
	publisher EventPublisher
	store     *Store
	metrics   *observability.Metrics
	config    Config
	logger    zerolog.Logger

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates an orchestrator. The publisher and metrics parameters may be
// nil (event publishing and metrics recording will be skipped).
func New(
	searcher Searcher,
	extractor AbstractExtractor,
	imager ImageGenerator,
	publisher EventPublisher,
	store *Store,
	metrics *observability.Metrics,
	cfg Config,
	logger zerolog.Logger,
) *Orchestrator {
	baseCtx, cancel := context.WithCancel(context.Background())

	return &Orchestrator{
		searcher:  searcher,
		extractor: extractor,
		imager:    imager,
		publisher: publisher,
		store:     store,
		metrics:   metrics,
		config:    cfg.applyDefaults(),
		logger:    logger.With().Str("component", "pipeline").Logger(),
		baseCtx:   baseCtx,
		cancel:    cancel,
	}
}

// Process runs phase 1 synchronously and kicks off phase 2 before returning.
//
// The returned batch is the phase-1 snapshot: every item carries an abstract
// and empty image URLs. Later image updates are observable through GetLatest
// and Subscribe, never through the returned value. The only error returned
// is a search failure, wrapped as domain.ErrSearchUnavailable; extraction
// cannot fail a batch.
func (o *Orchestrator) Process(ctx context.Context, query string, count int, dateRange domain.DateRange) (*domain.BatchResult, error) {
	candidates, err := o.searchCandidates(ctx, query, count, dateRange)
	if err != nil {
		return nil, err
	}

	if o.metrics != nil {
		o.metrics.RecordBatchStarted(len(candidates))
	}

	enriched := o.extractAll(ctx, candidates)
	batch := domain.NewBatchResult(query, enriched)
	o.store.Put(batch)

	logger := observability.WithBatchContext(o.logger, batch.BatchID.String(), query)
	logger.Info().
		Int("total_count", batch.TotalCount).
		Int("degraded_count", batch.DegradedCount()).
		Msg("batch assembled")

	o.publishEvent(domain.EventTypeBatchCreated, batch.BatchID, domain.BatchCreatedPayload{
		BatchID:       batch.BatchID,
		Query:         query,
		TotalCount:    batch.TotalCount,
		DegradedCount: batch.DegradedCount(),
	})

	o.dispatchImageGeneration(batch)

	return batch, nil
}

// GetLatest returns a snapshot of the identified batch, or false when the ID
// is not the retained run.
func (o *Orchestrator) GetLatest(batchID uuid.UUID) (*domain.BatchResult, bool) {
	return o.store.Get(batchID)
}

// Search exposes the search collaborator directly, without enrichment.
func (o *Orchestrator) Search(ctx context.Context, query string, limit int, dateRange domain.DateRange) ([]domain.PaperCandidate, error) {
	return o.searchCandidates(ctx, query, limit, dateRange)
}

// Subscribe registers a progress listener on the store.
func (o *Orchestrator) Subscribe() (<-chan Update, func()) {
	return o.store.Subscribe()
}

// Close cancels the lifecycle context, aborting in-flight phase-2 work, and
// waits for all tasks to finish or the given context to expire.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.cancel()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pipeline shutdown: %w", ctx.Err())
	}
}

// searchCandidates queries the search provider. A failure here has no
// fallback: it converts to ErrSearchUnavailable and propagates.
func (o *Orchestrator) searchCandidates(ctx context.Context, query string, limit int, dateRange domain.DateRange) ([]domain.PaperCandidate, error) {
	source := o.searcher.Name()
	logger := observability.WithSearchContext(o.logger, query, source)

	if o.metrics != nil {
		o.metrics.RecordSearchStarted(source)
	}

	start := time.Now()
	candidates, err := o.searcher.Search(ctx, providers.SearchParams{
		Query:      query,
		MaxResults: limit,
		DateRange:  dateRange,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("search failed")
		if o.metrics != nil {
			o.metrics.RecordSearchFailed(source, time.Since(start).Seconds())
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrSearchUnavailable, err)
	}

	logger.Info().
		Int("candidate_count", len(candidates)).
		Dur("duration", time.Since(start)).
		Msg("search completed")
	if o.metrics != nil {
		o.metrics.RecordSearchCompleted(source, len(candidates), time.Since(start).Seconds())
	}

	return candidates, nil
}

// extractAll enriches every candidate concurrently under the bounded pool.
// Results are index-addressed: each task writes only its own slot, so the
// returned slice preserves candidate order without post-assembly sorting.
func (o *Orchestrator) extractAll(ctx context.Context, candidates []domain.PaperCandidate) []domain.EnrichedPaper {
	enriched := make([]domain.EnrichedPaper, len(candidates))
	if len(candidates) == 0 {
		return enriched
	}

	sem := make(chan struct{}, o.poolSize(len(candidates)))
	var wg sync.WaitGroup

	for i, candidate := range candidates {
		wg.Add(1)
		go func(idx int, c domain.PaperCandidate) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			start := time.Now()
			paper := o.extractor.Extract(ctx, c)
			enriched[idx] = paper

			if o.metrics != nil {
				if paper.Degraded() {
					o.metrics.RecordAbstractDegraded(time.Since(start).Seconds())
				} else {
					o.metrics.RecordAbstractScraped(time.Since(start).Seconds())
				}
			}
		}(i, candidate)
	}

	wg.Wait()
	return enriched
}

// dispatchImageGeneration starts phase 2 for the batch. Fire-and-forget from
// the caller's perspective: tasks run on the lifecycle context, and the
// caller observes progress through the store.
func (o *Orchestrator) dispatchImageGeneration(batch *domain.BatchResult) {
	batchID := batch.BatchID
	papers := make([]domain.EnrichedPaper, len(batch.Items))
	for i := range batch.Items {
		papers[i] = batch.Items[i].EnrichedPaper
	}
	started := time.Now()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()

		logger := observability.WithBatchContext(o.logger, batchID.String(), batch.Query)

		if len(papers) == 0 {
			o.finishBatch(logger, batchID, started)
			return
		}

		if o.imager == nil || !o.imager.Enabled() {
			logger.Info().Msg("image generation not configured, marking items failed")
			for i := range papers {
				o.store.SetItemImageFailure(batchID, i, "image generation not configured")
				o.publishItemUpdate(batchID, i)
			}
			o.finishBatch(logger, batchID, started)
			return
		}

		sem := make(chan struct{}, o.poolSize(len(papers)))
		var wg sync.WaitGroup

		for i := range papers {
			wg.Add(1)
			go func(idx int, paper domain.EnrichedPaper) {
				defer wg.Done()

				sem <- struct{}{}
				defer func() { <-sem }()

				o.generateItemImage(o.baseCtx, batchID, idx, paper)
			}(i, papers[i])
		}

		wg.Wait()
		o.finishBatch(logger, batchID, started)
	}()
}

// generateItemImage runs one item's image job through to a terminal state
// and publishes the outcome to the store. Failures are contained: they mark
// this item and nothing else.
func (o *Orchestrator) generateItemImage(ctx context.Context, batchID uuid.UUID, idx int, paper domain.EnrichedPaper) {
	logger := observability.WithItemContext(o.logger, batchID.String(), idx)

	if !o.store.MarkImagePending(batchID, idx) {
		// The run was replaced while this task waited its turn.
		logger.Debug().Msg("batch no longer retained, skipping image generation")
		return
	}
	o.publishItemUpdate(batchID, idx)

	start := time.Now()
	job := o.imager.Generate(ctx, paper, idx)

	if o.metrics != nil {
		if job.ProviderJobID != "" {
			o.metrics.RecordImageJobSubmitted()
		}
		o.metrics.RecordImageJobOutcome(string(job.Status), time.Since(start).Seconds(), job.Attempts)
	}

	if job.Status == domain.ImageJobStatusSucceeded {
		o.store.SetItemImages(batchID, idx, job.ResultURLs)
		logger.Info().
			Str("job_id", job.ProviderJobID).
			Int("image_count", len(job.ResultURLs)).
			Dur("duration", time.Since(start)).
			Msg("item image ready")
	} else {
		reason := imageFailureReason(job)
		o.store.SetItemImageFailure(batchID, idx, reason)
		logger.Warn().
			Str("job_id", job.ProviderJobID).
			Str("status", string(job.Status)).
			Str("reason", reason).
			Msg("item image generation failed")
	}

	o.publishItemUpdate(batchID, idx)
}

// finishBatch records completion once every item is terminal and publishes
// the batch.completed event.
func (o *Orchestrator) finishBatch(logger zerolog.Logger, batchID uuid.UUID, started time.Time) {
	snapshot, ok := o.store.Get(batchID)
	if !ok {
		return
	}

	duration := time.Since(started)
	if o.metrics != nil {
		o.metrics.RecordBatchCompleted(duration.Seconds())
	}

	logger.Info().
		Int("success_count", snapshot.SuccessCount).
		Int("total_count", snapshot.TotalCount).
		Dur("duration", duration).
		Msg("batch completed")

	o.publishEvent(domain.EventTypeBatchCompleted, batchID, domain.BatchCompletedPayload{
		BatchID:      batchID,
		Query:        snapshot.Query,
		SuccessCount: snapshot.SuccessCount,
		TotalCount:   snapshot.TotalCount,
		Duration:     duration,
	})
}

// publishItemUpdate emits a batch.item_updated event for the item's current
// stored state.
func (o *Orchestrator) publishItemUpdate(batchID uuid.UUID, idx int) {
	if o.publisher == nil {
		return
	}

	snapshot, ok := o.store.Get(batchID)
	if !ok || idx >= len(snapshot.Items) {
		return
	}
	item := snapshot.Items[idx]

	payload := domain.ItemUpdatedPayload{
		BatchID: batchID,
		Index:   idx,
		State:   item.State,
		Error:   item.ImageError,
	}
	if len(item.ImageURLs) > 0 {
		payload.ImageURL = item.ImageURLs[0]
	}

	o.publishEvent(domain.EventTypeItemUpdated, batchID, payload)
}

func (o *Orchestrator) publishEvent(eventType string, batchID uuid.UUID, payload interface{}) {
	if o.publisher == nil {
		return
	}

	event, err := domain.NewEvent(eventType, batchID, payload)
	if err != nil {
		o.logger.Warn().Err(err).Str("event_type", eventType).Msg("failed to build event")
		return
	}

	if err := o.publisher.Publish(o.baseCtx, event); err != nil {
		o.logger.Warn().Err(err).Str("event_type", eventType).Msg("failed to publish event")
		if o.metrics != nil {
			o.metrics.RecordEventPublishFailure()
		}
		return
	}
	if o.metrics != nil {
		o.metrics.RecordEventPublished(eventType)
	}
}

// poolSize returns the bounded pool size for a batch of n items.
func (o *Orchestrator) poolSize(n int) int {
	if n < o.config.MaxParallel {
		return n
	}
	return o.config.MaxParallel
}

// imageFailureReason derives the stored failure description from a terminal job.
func imageFailureReason(job domain.ImageJob) string {
	switch {
	case job.Status == domain.ImageJobStatusTimedOut:
		return "image generation timed out"
	case job.LastError != nil:
		return job.LastError.Error()
	default:
		return "image generation failed"
	}
}
