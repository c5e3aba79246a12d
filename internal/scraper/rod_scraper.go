package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// RodScraper renders JS-heavy pages in a real browser before handing the
// HTML back. WaitFor gives client-side rendering time to settle after the
// load event; it is capped at half the request timeout so the wait can
// never consume the whole budget.
type RodScraper struct {
	BrowserURL string
}

func NewRodScraper(browserURL string) *RodScraper {
	return &RodScraper{BrowserURL: browserURL}
}

func (r *RodScraper) Scrape(ctx context.Context, req Request) (*Result, error) {
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
	waitFor := time.Duration(req.WaitForMs) * time.Millisecond
	if waitFor > timeout/2 {
		waitFor = timeout / 2
	}

	browser := rod.New().Context(ctx).Timeout(timeout)
	if r.BrowserURL != "" {
		browser = browser.ControlURL(r.BrowserURL)
	}

	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	defer browser.MustClose()

	page, err := browser.Page(proto.TargetCreateTarget{URL: u.String()})
	if err != nil {
		return nil, classifyBrowserErr(u, err)
	}
	defer page.MustClose()

	if err := page.WaitLoad(); err != nil {
		return nil, classifyBrowserErr(u, err)
	}
	if waitFor > 0 {
		time.Sleep(waitFor)
	}

	htmlStr, err := page.HTML()
	if err != nil {
		return nil, classifyBrowserErr(u, err)
	}

	metadata := pageMetadata(strings.NewReader(htmlStr), u, 200)

	return &Result{
		URL:      u.String(),
		HTML:     htmlStr,
		Metadata: metadata,
		Status:   200,
		Engine:   "browser",
	}, nil
}

func classifyBrowserErr(u *url.URL, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", u.String(), ErrTimeout)
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out"):
		return fmt.Errorf("%s: %v: %w", u.String(), err, ErrTimeout)
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit"):
		return fmt.Errorf("%s: %v: %w", u.String(), err, ErrRateLimited)
	case strings.Contains(msg, "404") || strings.Contains(msg, "not found"):
		return fmt.Errorf("%s: %v: %w", u.String(), err, ErrNotFound)
	}
	return err
}
