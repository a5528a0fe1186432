package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
)

const (
	// DefaultFetchTimeout bounds every tool fetch.
	DefaultFetchTimeout = 15 * time.Second

	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	htmlAccept       = "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"
	// DefaultMaxBodyBytes caps a fetched body. Larger responses are reported
	// as an error rather than cut short.
	DefaultMaxBodyBytes = 50 * 1024 * 1024
)

// PageCache stores cleaned fetch results. Implementations swallow their own
// errors; a cache miss is always safe.
type PageCache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string)
}

type FetcherOption func(*Fetcher)

// WithFetchTimeout overrides DefaultFetchTimeout.
func WithFetchTimeout(timeout time.Duration) FetcherOption {
	return func(f *Fetcher) {
		f.httpClient.Timeout = timeout
	}
}

// WithMaxBodyBytes overrides DefaultMaxBodyBytes.
func WithMaxBodyBytes(n int64) FetcherOption {
	return func(f *Fetcher) {
		f.maxBodyBytes = n
	}
}

func WithPageCache(cache PageCache) FetcherOption {
	return func(f *Fetcher) {
		f.cache = cache
	}
}

// Fetcher is the content fetcher used by the agent's tools. Text-returning
// methods never fail: transport and status errors come back as "Error: ..."
// strings so the model can react to them.
type Fetcher struct {
	httpClient   *http.Client
	cache        PageCache
	maxBodyBytes int64
	log          *slog.Logger
}

func NewFetcher(logger *slog.Logger, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		httpClient:   &http.Client{Timeout: DefaultFetchTimeout},
		maxBodyBytes: DefaultMaxBodyBytes,
		log:          logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchText downloads an HTML page and returns its visible text.
func (f *Fetcher) FetchText(ctx context.Context, url string) string {
	key := "fetch:text:" + url
	if cached, ok := f.cacheGet(ctx, key); ok {
		return cached
	}

	body, err := f.get(ctx, url, htmlAccept)
	if err != nil {
		f.log.Warn("fetch failed", "url", url, "err", err)
		return "Error: " + err.Error()
	}

	text, err := CleanHTML(bytes.NewReader(body))
	if err != nil {
		return "Error: " + err.Error()
	}

	f.cacheSet(ctx, key, text)
	return text
}

// FetchPDFText downloads a PDF and returns the plain text of its pages.
func (f *Fetcher) FetchPDFText(ctx context.Context, url string) string {
	key := "fetch:pdf:" + url
	if cached, ok := f.cacheGet(ctx, key); ok {
		return cached
	}

	body, err := f.get(ctx, url, "application/pdf,*/*;q=0.8")
	if err != nil {
		f.log.Warn("pdf fetch failed", "url", url, "err", err)
		return "Error: " + err.Error()
	}

	text, err := ExtractPDFText(body)
	if err != nil {
		f.log.Warn("pdf extraction failed", "url", url, "err", err)
		return "Error: " + err.Error()
	}

	f.cacheSet(ctx, key, text)
	return text
}

// FetchCSV downloads and parses a CSV resource. Unlike the text fetches it
// returns the error; the leaderboard tool renders it with its own prefix.
func (f *Fetcher) FetchCSV(ctx context.Context, url string) ([][]string, error) {
	body, err := f.get(ctx, url, "text/csv,*/*;q=0.8")
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(bytes.NewReader(body))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("csv is empty")
	}
	return records, nil
}

func (f *Fetcher) get(ctx context.Context, url, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept", accept)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("HTTP %d %s for url '%s'", resp.StatusCode, http.StatusText(resp.StatusCode), url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > f.maxBodyBytes {
		return nil, fmt.Errorf("response too large (over %d bytes) for url '%s'", f.maxBodyBytes, url)
	}
	return body, nil
}

func (f *Fetcher) cacheGet(ctx context.Context, key string) (string, bool) {
	if f.cache == nil {
		return "", false
	}
	return f.cache.Get(ctx, key)
}

func (f *Fetcher) cacheSet(ctx context.Context, key, value string) {
	if f.cache == nil {
		return
	}
	f.cache.Set(ctx, key, value)
}

// CleanHTML drops script and style elements and reduces the document to its
// text, one phrase per line.
func CleanHTML(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("failed to parse html: %w", err)
	}
	doc.Find("script, style").Remove()

	var pieces []string
	for _, n := range doc.Nodes {
		collectText(n, &pieces)
	}
	return collapseWhitespace(strings.Join(pieces, " ")), nil
}

func collectText(n *html.Node, pieces *[]string) {
	if n.Type == html.TextNode {
		*pieces = append(*pieces, n.Data)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, pieces)
	}
}

// collapseWhitespace trims every line, splits lines on double spaces and joins
// the non-empty phrases with newlines.
func collapseWhitespace(text string) string {
	lines := strings.FieldsFunc(text, isLineBreak)

	var chunks []string
	for _, line := range lines {
		for _, phrase := range strings.Split(strings.TrimSpace(line), "  ") {
			if p := strings.TrimSpace(phrase); p != "" {
				chunks = append(chunks, p)
			}
		}
	}
	return strings.Join(chunks, "\n")
}

func isLineBreak(r rune) bool {
	switch r {
	case '\n', '\r', '\v', '\f', '\x1c', '\x1d', '\x1e', '\u0085', '\u2028', '\u2029':
		return true
	}
	return false
}

// ExtractPDFText returns the plain text of every readable page.
func ExtractPDFText(data []byte) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("malformed pdf: %v", rec)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}

	var b strings.Builder
	totalPage := reader.NumPage()
	for pageIndex := 1; pageIndex <= totalPage; pageIndex++ {
		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}

		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(content)
		b.WriteString("\n")
	}

	text = strings.TrimSpace(b.String())
	if text == "" {
		return "", fmt.Errorf("no extractable text found in pdf")
	}
	return text, nil
}
