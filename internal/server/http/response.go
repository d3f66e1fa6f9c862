package httpserver

import (
	"time"

	"github.com/scholaris/paper-enrichment-service/internal/domain"
)

// Batch response types for JSON serialization.

type batchResponse struct {
	BatchID      string         `json:"batch_id"`
	Query        string         `json:"query"`
	Items        []itemResponse `json:"items"`
	SuccessCount int            `json:"success_count"`
	TotalCount   int            `json:"total_count"`
	CreatedAt    time.Time      `json:"created_at"`
}

type itemResponse struct {
	Index           int      `json:"index"`
	Title           string   `json:"title"`
	Authors         string   `json:"authors,omitempty"`
	Year            int      `json:"year,omitempty"`
	CitationCount   int      `json:"citation_count"`
	PublicationInfo string   `json:"publication_info,omitempty"`
	SourceURL       string   `json:"source_url"`
	Abstract        string   `json:"abstract"`
	AbstractSource  string   `json:"abstract_source"`
	State           string   `json:"state"`
	ImageURLs       []string `json:"image_urls"`
	ImageError      string   `json:"image_error,omitempty"`
}

type candidateResponse struct {
	Title           string `json:"title"`
	SourceURL       string `json:"source_url"`
	Snippet         string `json:"snippet,omitempty"`
	PublicationInfo string `json:"publication_info,omitempty"`
	Authors         string `json:"authors,omitempty"`
	Year            int    `json:"year,omitempty"`
	CitationCount   int    `json:"citation_count"`
}

type searchResponse struct {
	Query      string              `json:"query"`
	Results    []candidateResponse `json:"results"`
	TotalCount int                 `json:"total_count"`
}

type readinessResponse struct {
	Status    string          `json:"status"`
	Providers map[string]bool `json:"providers"`
}

// Converter functions

func batchToResponse(b *domain.BatchResult) batchResponse {
	items := make([]itemResponse, len(b.Items))
	for i, item := range b.Items {
		items[i] = itemToResponse(i, item)
	}
	return batchResponse{
		BatchID:      b.BatchID.String(),
		Query:        b.Query,
		Items:        items,
		SuccessCount: b.SuccessCount,
		TotalCount:   b.TotalCount,
		CreatedAt:    b.CreatedAt,
	}
}

func itemToResponse(index int, item domain.BatchItem) itemResponse {
	imageURLs := item.ImageURLs
	if imageURLs == nil {
		imageURLs = []string{}
	}
	return itemResponse{
		Index:           index,
		Title:           item.Title,
		Authors:         item.Authors,
		Year:            item.Year,
		CitationCount:   item.CitationCount,
		PublicationInfo: item.PublicationInfo,
		SourceURL:       item.SourceURL,
		Abstract:        item.Abstract,
		AbstractSource:  string(item.AbstractSource),
		State:           string(item.State),
		ImageURLs:       imageURLs,
		ImageError:      item.ImageError,
	}
}

func candidateToResponse(c domain.PaperCandidate) candidateResponse {
	return candidateResponse{
		Title:           c.Title,
		SourceURL:       c.SourceURL,
		Snippet:         c.SourceSnippet,
		PublicationInfo: c.PublicationInfo,
		Authors:         c.Authors,
		Year:            c.Year,
		CitationCount:   c.CitationCount,
	}
}

func searchToResponse(query string, candidates []domain.PaperCandidate) searchResponse {
	results := make([]candidateResponse, len(candidates))
	for i, c := range candidates {
		results[i] = candidateToResponse(c)
	}
	return searchResponse{
		Query:      query,
		Results:    results,
		TotalCount: len(results),
	}
}
