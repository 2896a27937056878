// Package medline looks up short health-topic summaries from the MedlinePlus
// web search service.
package medline

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// DefaultEndpoint is the MedlinePlus web service query URL.
	DefaultEndpoint = "https://wsearch.nlm.nih.gov/ws/query"
	// EmptySummary is returned when a record carries an empty summary.
	EmptySummary = "No summary available."
	// DefaultMaxSummaryRunes bounds the snippet placed into the prompt.
	DefaultMaxSummaryRunes = 1500

	maxBodyBytes = 1 << 20
)

var (
	// ErrNoRecord means the response did not contain any health-topic record.
	ErrNoRecord = errors.New("medline: no health topic record in response")
	// ErrNoSummary means the first record had no summary element.
	ErrNoSummary = errors.New("medline: record has no summary")

	tagPattern        = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// Result is the outcome of a lookup. When Found is false, Reason explains why
// no snippet is available.
type Result struct {
	Summary string
	Found   bool
	Reason  error
}

// Absent builds a Result carrying no snippet.
func Absent(reason error) Result { return Result{Reason: reason} }

// Snippet builds a Result carrying summary.
func Snippet(summary string) Result { return Result{Summary: summary, Found: true} }

// Looker is implemented by anything that can fetch a health snippet.
type Looker interface {
	Lookup(ctx context.Context, query string) Result
}

// Options configures a Client.
type Options struct {
	Endpoint        string
	Timeout         time.Duration
	MaxSummaryRunes int
	HTTPClient      *http.Client
}

// Client queries the MedlinePlus healthTopics database.
type Client struct {
	endpoint string
	maxRunes int
	http     *http.Client
}

// NewClient builds a Client. A zero Timeout keeps the transport default and a
// zero MaxSummaryRunes disables truncation.
func NewClient(opts Options) *Client {
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{
		endpoint: endpoint,
		maxRunes: opts.MaxSummaryRunes,
		http:     httpClient,
	}
}

// Lookup fetches the first health topic matching query and returns its
// summary. Every failure is reported as an absent Result.
func (c *Client) Lookup(ctx context.Context, query string) Result {
	params := url.Values{}
	params.Set("db", "healthTopics")
	params.Set("term", query)
	params.Set("rettype", "brief")
	params.Set("retmax", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return Absent(err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Absent(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Absent(fmt.Errorf("medline: unexpected status %s", resp.Status))
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Absent(err)
	}

	summary, err := firstSummary(body)
	if err != nil {
		return Absent(err)
	}
	summary = cleanSummary(summary)
	if summary == "" {
		return Snippet(EmptySummary)
	}
	return Snippet(truncate(summary, c.maxRunes))
}

type record struct {
	Summary *struct {
		Text string `xml:",chardata"`
	} `xml:"summary"`
}

// firstSummary scans the document for the first <record> element and returns
// the text of its <summary> child.
func firstSummary(body []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.Strict = false
	dec.Entity = xml.HTMLEntity
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return "", ErrNoRecord
		}
		if err != nil {
			return "", fmt.Errorf("medline: parse response: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "record" {
			continue
		}
		var rec record
		if err := dec.DecodeElement(&rec, &start); err != nil {
			return "", fmt.Errorf("medline: parse record: %w", err)
		}
		if rec.Summary == nil {
			return "", ErrNoSummary
		}
		return rec.Summary.Text, nil
	}
}

// cleanSummary removes markup carried inside the summary text and collapses
// whitespace.
func cleanSummary(s string) string {
	s = html.UnescapeString(s)
	s = tagPattern.ReplaceAllString(s, " ")
	s = whitespacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// truncate shortens s to at most max runes, cutting at a word boundary when
// one is available.
func truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	cut := string(runes[:max])
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimRight(cut, " ,;:.") + "..."
}
