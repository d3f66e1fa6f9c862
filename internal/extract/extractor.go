// Package extract pulls paper abstracts out of publisher landing pages.
//
// Extraction is total: every candidate yields an enriched paper. When the
// page cannot be fetched or no selector yields usable text, the paper falls
// back to the search snippet and is marked accordingly.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/scholaris/paper-enrichment-service/internal/domain"
	"github.com/scholaris/paper-enrichment-service/internal/fetch"
	"github.com/scholaris/paper-enrichment-service/internal/resilience"
)

// DefaultMinLength is the minimum stripped abstract length. Anything at or
// below this is treated as boilerplate rather than a real abstract.
const DefaultMinLength = 50

// Fetcher downloads a page body. Implemented by fetch.Fetcher.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) ([]byte, error)
}

// Config holds extractor configuration.
type Config struct {
	// MinLength is the usable-text threshold in bytes. Default: 50.
	MinLength int
	// DisabledProfiles lists built-in profile names to turn off.
	DisabledProfiles []string
	// ExtraProfiles are appended after the built-ins.
	ExtraProfiles []Profile
	// RetryPolicy governs page fetch retries. Zero value means the default
	// policy with fetch-aware error classification.
	RetryPolicy resilience.Policy
}

// Extractor scrapes abstracts from publisher pages with a snippet fallback.
type Extractor struct {
	fetcher   Fetcher
	profiles  []Profile
	minLength int
	policy    resilience.Policy
	logger    zerolog.Logger
}

// New creates an Extractor. The fetcher is typically a fetch.Fetcher.
func New(fetcher Fetcher, cfg Config, logger zerolog.Logger) *Extractor {
	if cfg.MinLength == 0 {
		cfg.MinLength = DefaultMinLength
	}
	if cfg.RetryPolicy.MaxAttempts == 0 {
		cfg.RetryPolicy = resilience.DefaultPolicy()
	}
	if cfg.RetryPolicy.Classify == nil {
		cfg.RetryPolicy.Classify = classifyFetch
	}

	disabled := make(map[string]bool, len(cfg.DisabledProfiles))
	for _, name := range cfg.DisabledProfiles {
		disabled[name] = true
	}
	var profiles []Profile
	for _, p := range append(BuiltinProfiles(), cfg.ExtraProfiles...) {
		if !disabled[p.Name] {
			profiles = append(profiles, p)
		}
	}

	return &Extractor{
		fetcher:   fetcher,
		profiles:  profiles,
		minLength: cfg.MinLength,
		policy:    cfg.RetryPolicy,
		logger:    logger.With().Str("component", "extract").Logger(),
	}
}

// Extract enriches one candidate with its abstract. It never fails: fetch
// errors, parse errors, and below-threshold text all degrade to the snippet.
func (e *Extractor) Extract(ctx context.Context, candidate domain.PaperCandidate) domain.EnrichedPaper {
	abstract, err := e.scrape(ctx, candidate.SourceURL)
	if err == nil && len(abstract) > e.minLength {
		return domain.EnrichedPaper{
			PaperCandidate: candidate,
			Abstract:       abstract,
			AbstractSource: domain.AbstractSourceScraped,
		}
	}

	if err != nil {
		e.logger.Warn().
			Err(err).
			Str("url", candidate.SourceURL).
			Msg("abstract scrape failed, using snippet")
	} else {
		e.logger.Debug().
			Str("url", candidate.SourceURL).
			Int("length", len(abstract)).
			Msg("scraped text below minimum length, using snippet")
	}

	return domain.EnrichedPaper{
		PaperCandidate: candidate,
		Abstract:       candidate.SourceSnippet,
		AbstractSource: domain.AbstractSourceSnippet,
	}
}

// ExtractAll enriches candidates in order, one result per candidate.
func (e *Extractor) ExtractAll(ctx context.Context, candidates []domain.PaperCandidate) []domain.EnrichedPaper {
	enriched := make([]domain.EnrichedPaper, len(candidates))
	for i, candidate := range candidates {
		enriched[i] = e.Extract(ctx, candidate)
	}
	return enriched
}

// scrape fetches the page and runs the profile then generic strategies.
// The returned text is whitespace-normalized but not yet length-checked.
func (e *Extractor) scrape(ctx context.Context, pageURL string) (string, error) {
	if pageURL == "" {
		return "", errors.New("candidate has no source URL")
	}
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("invalid source URL: %w", err)
	}
	host := strings.ToLower(parsed.Hostname())

	var body []byte
	err = resilience.Do(ctx, e.policy, e.logger, "fetch_page", func(ctx context.Context) error {
		var fetchErr error
		body, fetchErr = e.fetcher.Fetch(ctx, pageURL)
		return fetchErr
	})
	if err != nil {
		return "", err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parsing page: %w", err)
	}

	if p := e.profileFor(host); p != nil {
		if text := applyProfile(doc, p); len(text) > e.minLength {
			return text, nil
		}
		// Profile present but unusable text: fall through to the generic
		// scan over the same document.
	}
	return e.applyGeneric(doc), nil
}

func (e *Extractor) profileFor(host string) *Profile {
	for i := range e.profiles {
		if e.profiles[i].matchesHost(host) {
			return &e.profiles[i]
		}
	}
	return nil
}

// applyProfile runs the profile's selector chain. The first selector whose
// element exists decides the outcome, even when its text is empty.
func applyProfile(doc *goquery.Document, p *Profile) string {
	for _, sel := range p.Selectors {
		node := doc.Find(sel.Query).First()
		if node.Length() == 0 {
			continue
		}
		text := normalize(textOf(node, sel))
		if p.StripPrefix != "" {
			text = strings.TrimSpace(strings.TrimPrefix(text, p.StripPrefix))
		}
		return text
	}
	return ""
}

// applyGeneric scans the fallback chain and returns the first text above the
// threshold, or "".
func (e *Extractor) applyGeneric(doc *goquery.Document) string {
	for _, sel := range genericSelectors {
		node := doc.Find(sel.Query).First()
		if node.Length() == 0 {
			continue
		}
		text := normalize(textOf(node, sel))
		if len(text) > e.minLength {
			return text
		}
	}
	return ""
}

func textOf(node *goquery.Selection, sel Selector) string {
	if sel.Attr != "" {
		return node.AttrOr(sel.Attr, "")
	}
	return node.Text()
}

// normalize collapses runs of whitespace to single spaces and trims.
func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// classifyFetch treats structurally hopeless fetch outcomes as permanent so
// the retry loop gives up immediately. Everything else follows the shared
// classification.
func classifyFetch(err error) resilience.Class {
	switch {
	case errors.Is(err, fetch.ErrNotHTML),
		errors.Is(err, fetch.ErrTooLarge),
		errors.Is(err, fetch.ErrBlocked),
		errors.Is(err, fetch.ErrNotFound),
		errors.Is(err, fetch.ErrSSRF):
		return resilience.Permanent
	}
	return resilience.Classify(err)
}
