// Package web is the web/news source: it scrapes DuckDuckGo's HTML results
// page.
package web

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/aiox-platform/gloser/internal/source"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

var pharmaTerms = []string{"pharmaceutical", "drug", "fda", "clinical trial", "medicine"}

// Options configures a Searcher.
type Options struct {
	SearchURL     string
	MaxResults    int
	Timeout       time.Duration
	PharmaContext bool
	HTTPClient    *http.Client
}

// Searcher is the web source collaborator.
type Searcher struct {
	searchURL     string
	maxResults    int
	pharmaContext bool
	http          *http.Client
}

// New creates a Searcher.
func New(opts Options) *Searcher {
	if opts.MaxResults <= 0 {
		opts.MaxResults = 10
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	return &Searcher{
		searchURL:     opts.SearchURL,
		maxResults:    opts.MaxResults,
		pharmaContext: opts.PharmaContext,
		http:          hc,
	}
}

// Lookup runs the search and returns ranked hits.
func (s *Searcher) Lookup(ctx context.Context, query string) (source.Result, error) {
	q := query
	if s.pharmaContext && !hasPharmaContext(q) {
		q += " pharmaceutical drug"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.searchURL+"?q="+url.QueryEscape(q), nil)
	if err != nil {
		return source.Result{}, fmt.Errorf("building search request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("DNT", "1")

	resp, err := s.http.Do(req)
	if err != nil {
		return source.Result{}, fmt.Errorf("web search failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return source.Result{}, fmt.Errorf("web search failed: status %d", resp.StatusCode)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return source.Result{}, fmt.Errorf("parsing search results: %w", err)
	}

	rows := parseResults(doc, s.maxResults)
	if len(rows) == 0 {
		rows = parseLooseLinks(doc, s.maxResults)
	}
	summary := fmt.Sprintf("Web Agent found %d search results for '%s'", len(rows), q)
	return source.NewResult(source.Web, rows, summary), nil
}

func hasPharmaContext(q string) bool {
	lower := strings.ToLower(q)
	for _, t := range pharmaTerms {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}

func parseResults(doc *html.Node, max int) []source.Fields {
	rows := make([]source.Fields, 0)
	for _, div := range findAll(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "div" && hasClass(n, "result")
	}) {
		if len(rows) >= max {
			break
		}
		title := findFirst(div, anchorWithClass("result__a"))
		if title == nil {
			continue
		}
		link := decodeRedirect(attr(title, "href"))
		display := link
		if u := findFirst(div, anchorWithClass("result__url")); u != nil {
			display = textOf(u)
		}
		snippet := ""
		if sn := findFirst(div, func(n *html.Node) bool {
			return n.Type == html.ElementNode && hasClass(n, "result__snippet")
		}); sn != nil {
			snippet = textOf(sn)
		}
		rows = append(rows, source.Fields{
			"rank":        float64(len(rows) + 1),
			"title":       textOf(title),
			"url":         link,
			"display_url": display,
			"snippet":     snippet,
			"source":      "DuckDuckGo",
		})
	}
	return rows
}

// parseLooseLinks is used when the result markup changes: any absolute,
// external link with a descriptive text counts as a hit.
func parseLooseLinks(doc *html.Node, max int) []source.Fields {
	rows := make([]source.Fields, 0)
	for _, a := range findAll(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "a"
	}) {
		if len(rows) >= max {
			break
		}
		href := attr(a, "href")
		text := textOf(a)
		if len([]rune(text)) <= 20 || !strings.HasPrefix(href, "http") || strings.Contains(href, "duckduckgo.com") {
			continue
		}
		rows = append(rows, source.Fields{
			"rank":        float64(len(rows) + 1),
			"title":       truncate(text, 100),
			"url":         href,
			"display_url": truncateEllipsis(href, 50),
			"snippet":     "",
			"source":      "DuckDuckGo",
		})
	}
	return rows
}

func decodeRedirect(href string) string {
	if !strings.Contains(href, "uddg=") {
		return href
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}

func anchorWithClass(class string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "a" && hasClass(n, class)
	}
}

func findAll(root *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if match(n) {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

func findFirst(root *html.Node, match func(*html.Node) bool) *html.Node {
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if match(c) {
			return c
		}
		if n := findFirst(c, match); n != nil {
			return n
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func truncateEllipsis(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return truncate(s, n) + "..."
}
