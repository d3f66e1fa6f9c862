// Package serper provides a client for the Serper Google Scholar API.
//
// Serper exposes Google Scholar results as JSON. This package implements the
// providers.SearchProvider interface on top of the /scholar endpoint and
// derives structured candidate fields (authors, year, citation count) from
// the loosely formatted publication metadata Serper returns.
//
// API documentation: https://serper.dev/
package serper

// SearchRequest is the request body for the scholar search endpoint.
type SearchRequest struct {
	Query string `json:"q"`
	Num   int    `json:"num"`

	// TBS is Google's time-based search filter (e.g. "qdr:w" for the past
	// week). Omitted when no recency window applies.
	TBS string `json:"tbs,omitempty"`
}

// SearchResponse represents the top-level response from the scholar endpoint.
type SearchResponse struct {
	Organic []OrganicResult `json:"organic"`
}

// OrganicResult is a single ranked scholar hit.
type OrganicResult struct {
	Title           string          `json:"title"`
	Link            string          `json:"link"`
	Snippet         string          `json:"snippet"`
	PublicationInfo PublicationInfo `json:"publicationInfo"`
	InlineLinks     []InlineLink    `json:"inlineLinks"`
}

// PublicationInfo carries the raw venue line for a hit, typically of the form
// "A Vaswani, N Shazeer - Advances in neural information processing, 2017".
type PublicationInfo struct {
	Summary string `json:"summary"`
}

// InlineLink is a secondary link attached to a hit, such as "Cited by 1234"
// or "Related articles".
type InlineLink struct {
	Title string `json:"title"`
	Link  string `json:"link"`
}
