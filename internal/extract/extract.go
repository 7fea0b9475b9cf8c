// Package extract finds candidate vacancy links in municipal web pages.
//
// The heuristic is deliberately permissive: every site has different markup,
// so a link qualifies when its absolute URL mentions a vacancy keyword. Pages
// without such links fall back to a scan of their visible text.
package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/JakeFAU/vacancy-crawler/internal/vacancy"
)

// Default keyword sets and limits.
var (
	DefaultLinkKeywords = []string{"vacature", "vacancy", "vacancies", "werken-bij", "werkenbij", "jobs", "careers"}
	DefaultTextKeywords = []string{"vacature", "vacancy", "sollicitatie", "werken bij"}
)

// DefaultMaxTitleLength caps pseudo-link titles, in runes.
const DefaultMaxTitleLength = 100

// Config tunes the heuristic. Zero values fall back to the defaults.
type Config struct {
	LinkKeywords   []string
	TextKeywords   []string
	MaxTitleLength int
}

// Extractor implements vacancy.Extractor. It is safe for concurrent use.
type Extractor struct {
	linkKeywords []string
	textKeywords []string
	maxTitle     int
}

// New builds an Extractor.
func New(cfg Config) *Extractor {
	e := &Extractor{
		linkKeywords: normalizeKeywords(cfg.LinkKeywords, DefaultLinkKeywords),
		textKeywords: normalizeKeywords(cfg.TextKeywords, DefaultTextKeywords),
		maxTitle:     cfg.MaxTitleLength,
	}
	if e.maxTitle <= 0 {
		e.maxTitle = DefaultMaxTitleLength
	}
	return e
}

// Extract returns the deduplicated candidate links of page, in document order.
// Errors wrap vacancy.ErrExtraction.
func (e *Extractor) Extract(page []byte, baseURL, siteName string) ([]vacancy.ExtractedLink, error) {
	base, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: invalid base url %q", vacancy.ErrExtraction, baseURL)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("%w: parse html: %v", vacancy.ErrExtraction, err)
	}

	seen := make(map[vacancy.ExtractedLink]struct{})
	var links []vacancy.ExtractedLink
	add := func(link vacancy.ExtractedLink) {
		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}
		links = append(links, link)
	}

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		abs, ok := Resolve(base, baseURL, href)
		if !ok || !containsAny(strings.ToLower(abs), e.linkKeywords) {
			return
		}
		title := collapseSpace(s.Text())
		if title == "" {
			title = "Vacancy at " + siteName
		}
		add(vacancy.ExtractedLink{Title: title, URL: abs})
	})
	if len(links) > 0 {
		return links, nil
	}

	for _, segment := range visibleText(doc) {
		if !containsAny(strings.ToLower(segment), e.textKeywords) {
			continue
		}
		add(vacancy.ExtractedLink{Title: truncateRunes(segment, e.maxTitle), URL: baseURL})
	}
	return links, nil
}

// Resolve turns href into an absolute URL relative to base. rawBase is the
// base exactly as fetched. It reports false for hrefs that never point at a
// page: empty, fragment-only, javascript:, mailto: and tel:.
func Resolve(base *url.URL, rawBase, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	lower := strings.ToLower(href)
	for _, prefix := range []string{"javascript:", "mailto:", "tel:"} {
		if strings.HasPrefix(lower, prefix) {
			return "", false
		}
	}
	switch {
	case strings.HasPrefix(href, "//"):
		return base.Scheme + ":" + href, true
	case strings.HasPrefix(href, "/"):
		return base.Scheme + "://" + base.Host + href, true
	}
	parsed, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	if parsed.Scheme == "" {
		return strings.TrimRight(rawBase, "/") + "/" + strings.TrimLeft(href, "/"), true
	}
	return href, true
}

func visibleText(doc *goquery.Document) []string {
	var segments []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript, atom.Template, atom.Head:
				return
			}
		case html.TextNode:
			if text := collapseSpace(n.Data); text != "" {
				segments = append(segments, text)
			}
			return
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	for _, n := range doc.Find("body").Nodes {
		walk(n)
	}
	return segments
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}

func normalizeKeywords(keywords, fallback []string) []string {
	if len(keywords) == 0 {
		keywords = fallback
	}
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			out = append(out, kw)
		}
	}
	return out
}
