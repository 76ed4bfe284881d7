// Package normalize turns raw input into clean indexable text.
package normalize

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"

	"github.com/brainbox0/brainbox/internal/knowledge"
	"github.com/brainbox0/brainbox/internal/log"
	"github.com/brainbox0/brainbox/internal/security"
)

var (
	// ErrUnsupportedFormat indicates a source type this build cannot
	// extract text from.
	ErrUnsupportedFormat = errors.New("normalize: unsupported source format")
	// ErrExtractionFailed indicates the source was reachable but yielded
	// no usable text.
	ErrExtractionFailed = errors.New("normalize: could not extract text")
)

const (
	fetchTimeout = 30 * time.Second
	// maxFetchBytes caps how much of a page is read.
	maxFetchBytes = 4 << 20
	userAgent     = "brainbox/1.0"
)

// Result is normalized content plus whatever metadata the extraction
// surfaced.
type Result struct {
	Text     string
	Metadata map[string]string
}

// Normalizer converts raw sources into plain text ready for chunking.
type Normalizer struct {
	client *http.Client
	logger *log.Logger
}

// New builds a normalizer. When client is nil a hardened default is used
// whose dialer refuses private, loopback, and link-local targets; pass an
// explicit client to override that (tests fetch from loopback servers).
func New(client *http.Client, logger *log.Logger) *Normalizer {
	if client == nil {
		client = security.NewURLGuard().Client(fetchTimeout)
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Normalizer{client: client, logger: logger}
}

// Normalize dispatches on the source type. Text covers plain notes and
// markdown; URL fetches and extracts the readable article body. The
// binary formats need extraction tooling this build does not carry and
// return ErrUnsupportedFormat.
func (n *Normalizer) Normalize(ctx context.Context, source string, sourceType knowledge.SourceType, raw string) (Result, error) {
	switch sourceType {
	case knowledge.SourceText:
		text := CleanText(raw)
		if text == "" {
			return Result{}, ErrExtractionFailed
		}
		return Result{Text: text, Metadata: map[string]string{}}, nil
	case knowledge.SourceURL:
		return n.fetchURL(ctx, source)
	case knowledge.SourcePDF, knowledge.SourceImage, knowledge.SourceAudio:
		return Result{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, sourceType)
	default:
		return Result{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, sourceType)
	}
}

func (n *Normalizer) fetchURL(ctx context.Context, pageURL string) (Result, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return Result{}, fmt.Errorf("%w: not a fetchable URL: %s", ErrUnsupportedFormat, pageURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return Result{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := n.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("fetch %s: status %d", pageURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return Result{}, fmt.Errorf("read %s: %w", pageURL, err)
	}
	return n.ExtractHTML(body, parsed)
}

// ExtractHTML pulls the readable article out of an HTML page. Readability
// handles article-shaped pages; anything it rejects falls back to a plain
// DOM text walk with boilerplate elements stripped.
func (n *Normalizer) ExtractHTML(body []byte, pageURL *url.URL) (Result, error) {
	article, err := readability.FromReader(strings.NewReader(string(body)), pageURL)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		meta := map[string]string{"title": article.Title}
		if article.Byline != "" {
			meta["byline"] = article.Byline
		}
		return Result{Text: CleanText(article.TextContent), Metadata: meta}, nil
	}
	if err != nil {
		n.logger.Debug("readability extraction failed, falling back", "error", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	doc.Find("script, style, nav, header, footer, aside, noscript").Remove()
	text := CleanText(doc.Find("body").Text())
	if text == "" {
		return Result{}, ErrExtractionFailed
	}
	meta := map[string]string{}
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		meta["title"] = title
	}
	return Result{Text: text, Metadata: meta}, nil
}

// CleanText collapses runs of blank lines and intra-line whitespace while
// preserving paragraph breaks, which the chunker uses as boundaries.
func CleanText(raw string) string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	var paragraphs []string
	for _, para := range strings.Split(raw, "\n\n") {
		var lines []string
		for _, line := range strings.Split(para, "\n") {
			line = collapseSpaces(line)
			if line != "" {
				lines = append(lines, line)
			}
		}
		if len(lines) > 0 {
			paragraphs = append(paragraphs, strings.Join(lines, "\n"))
		}
	}
	return strings.Join(paragraphs, "\n\n")
}

func collapseSpaces(s string) string {
	var b strings.Builder
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) || !unicode.IsPrint(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}
