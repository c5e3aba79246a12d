// Package scraper fetches page content. Two backends implement the same
// interface: HTTPScraper, a plain GET with browser headers for static
// pages, and RodScraper, which renders JS-heavy pages in a real browser.
package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/temoto/robotstxt"
)

// Failure classes the pipeline surfaces in the job error string.
var (
	ErrTimeout     = errors.New("request timed out")
	ErrRateLimited = errors.New("rate limit exceeded")
	ErrNotFound    = errors.New("page not found")
	ErrRobots      = errors.New("blocked by robots.txt")
)

// DefaultUserAgent mimics a standard desktop browser.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Request describes one fetch. Timeout and WaitFor are milliseconds;
// WaitFor only applies to browser rendering.
type Request struct {
	URL       string
	TimeoutMs int
	WaitForMs int
	Headers   map[string]string
	UserAgent string
}

// Result is the fetched page.
type Result struct {
	URL      string
	HTML     string
	Metadata map[string]any
	Status   int
	Engine   string
}

// Scraper is implemented by both backends.
type Scraper interface {
	Scrape(ctx context.Context, req Request) (*Result, error)
}

// HTTPScraper fetches pages over plain HTTP with browser-like headers.
// UserAgent overrides DefaultUserAgent when set.
type HTTPScraper struct {
	UserAgent string

	client        *http.Client
	respectRobots bool
}

func NewHTTPScraper(respectRobots bool) *HTTPScraper {
	return &HTTPScraper{
		client:        &http.Client{},
		respectRobots: respectRobots,
	}
}

func (s *HTTPScraper) Scrape(ctx context.Context, req Request) (*Result, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", req.URL, err)
	}
	if u.Scheme == "" {
		u.Scheme = "http"
	}

	timeout := time.Duration(req.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	userAgent := req.UserAgent
	if userAgent == "" {
		userAgent = s.UserAgent
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	if s.respectRobots {
		if allowed := s.robotsAllowed(ctx, u, userAgent); !allowed {
			return nil, fmt.Errorf("%s: %w", u.String(), ErrRobots)
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("User-Agent", userAgent)
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	httpReq.Header.Set("Accept-Language", "en-US,en;q=0.5")
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s after %dms: %w", u.String(), req.TimeoutMs, ErrTimeout)
		}
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%s returned 429: %w", u.String(), ErrRateLimited)
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s returned 404: %w", u.String(), ErrNotFound)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%s returned status %d", u.String(), resp.StatusCode)
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	htmlStr := string(bodyBytes)

	metadata := pageMetadata(bytes.NewReader(bodyBytes), u, resp.StatusCode)

	return &Result{
		URL:      u.String(),
		HTML:     htmlStr,
		Metadata: metadata,
		Status:   resp.StatusCode,
		Engine:   "http",
	}, nil
}

// robotsAllowed fetches and evaluates robots.txt for the target. Any
// failure to fetch or parse counts as allowed.
func (s *HTTPScraper) robotsAllowed(ctx context.Context, u *url.URL, userAgent string) bool {
	robotsURL := u.Scheme + "://" + u.Host + "/robots.txt"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return true
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := s.client.Do(req)
	if err != nil {
		return true
	}
	defer resp.Body.Close()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return true
	}
	return data.FindGroup(userAgent).Test(u.Path)
}

// pageMetadata builds the metadata map shipped with every fetch: document
// title, meta description and friends, OpenGraph fields, the canonical
// source url, and the HTTP status.
func pageMetadata(r io.Reader, u *url.URL, status int) map[string]any {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return map[string]any{
			"statusCode": status,
			"sourceURL":  u.String(),
		}
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	desc := doc.Find("meta[name=description]").AttrOr("content", "")
	keywords := doc.Find("meta[name=keywords]").AttrOr("content", "")
	robots := doc.Find("meta[name=robots]").AttrOr("content", "")
	lang, _ := doc.Find("html").First().Attr("lang")

	ogTitle := doc.Find(`meta[property="og:title"]`).AttrOr("content", "")
	ogDesc := doc.Find(`meta[property="og:description"]`).AttrOr("content", "")
	ogURL := doc.Find(`meta[property="og:url"]`).AttrOr("content", "")
	ogImage := doc.Find(`meta[property="og:image"]`).AttrOr("content", "")
	ogSiteName := doc.Find(`meta[property="og:site_name"]`).AttrOr("content", "")

	canonical := doc.Find("link[rel=canonical]").AttrOr("href", "")
	sourceURL := u.String()
	if canonical != "" {
		if cu, err := url.Parse(canonical); err == nil {
			if cu.Scheme == "" {
				cu = u.ResolveReference(cu)
			}
			sourceURL = cu.String()
		}
	}

	return map[string]any{
		"title":         title,
		"description":   desc,
		"language":      lang,
		"keywords":      keywords,
		"robots":        robots,
		"ogTitle":       ogTitle,
		"ogDescription": ogDesc,
		"ogUrl":         ogURL,
		"ogImage":       ogImage,
		"ogSiteName":    ogSiteName,
		"statusCode":    status,
		"sourceURL":     sourceURL,
	}
}
