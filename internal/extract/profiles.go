package extract

import "strings"

// Selector addresses one place an abstract may live in a page.
type Selector struct {
	// Query is a CSS selector.
	Query string
	// Attr names an attribute to read instead of the element text,
	// e.g. "content" for meta tags. Empty means element text.
	Attr string
}

// Profile describes how to locate the abstract on a known publisher site.
// Profiles are matched by hostname substring and apply their selector chain
// in order: the first selector whose element exists wins.
type Profile struct {
	Name string

	// Hosts are lowercase substrings matched against the URL hostname.
	Hosts []string

	Selectors []Selector

	// StripPrefix is a label removed from the front of the extracted text,
	// e.g. the "Abstract:" descriptor arXiv renders inside the blockquote.
	StripPrefix string
}

func (p Profile) matchesHost(host string) bool {
	for _, h := range p.Hosts {
		if h != "" && strings.Contains(host, strings.ToLower(h)) {
			return true
		}
	}
	return false
}

// BuiltinProfiles returns the default publisher profile set. Config may
// disable entries by name or append custom profiles.
func BuiltinProfiles() []Profile {
	return []Profile{
		{
			Name:        "arxiv",
			Hosts:       []string{"arxiv.org"},
			Selectors:   []Selector{{Query: "blockquote.abstract"}},
			StripPrefix: "Abstract:",
		},
		{
			Name:  "pubmed",
			Hosts: []string{"pubmed", "ncbi.nlm.nih.gov"},
			Selectors: []Selector{
				{Query: "div.abstract-content"},
				{Query: "div#abstract"},
			},
		},
		{
			Name:  "ieee",
			Hosts: []string{"ieee"},
			Selectors: []Selector{
				{Query: "div.abstract-text"},
				{Query: "div.u-mb-1"},
			},
		},
		{
			Name:  "acm",
			Hosts: []string{"acm.org"},
			Selectors: []Selector{
				{Query: "div.abstractSection"},
				{Query: `div[role="paragraph"]`},
			},
		},
		{
			Name:  "springer",
			Hosts: []string{"springer"},
			Selectors: []Selector{
				{Query: "div.c-article-section__content"},
				{Query: `section[data-title="Abstract"]`},
			},
		},
	}
}

// genericSelectors is the fallback chain scanned when no profile matches or
// the matched profile yields nothing usable. Meta descriptions first, then
// the common abstract containers.
var genericSelectors = []Selector{
	{Query: `meta[name="description"]`, Attr: "content"},
	{Query: `meta[property="og:description"]`, Attr: "content"},
	{Query: "div.abstract"},
	{Query: "section#abstract"},
	{Query: "div#abstract"},
	{Query: "p.abstract"},
}
