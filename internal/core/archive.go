package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/seckatie/linkkeeper/internal/core/db"
	"github.com/seckatie/linkkeeper/internal/core/rss"
	"github.com/seckatie/linkkeeper/internal/core/storage"
)

// ArchiveOptions controls how a page is loaded and captured.
//
// This uses a real Chrome/Chromium browser (via the DevTools protocol) so that
// JS-heavy pages have a chance to fully render before we snapshot them.
type ArchiveOptions struct {
	// ChromePath optionally overrides the Chrome/Chromium executable path.
	// If empty, chromedp will try to find a browser on PATH / default locations.
	ChromePath string
	// Headless controls whether Chrome runs without a visible window.
	Headless bool
	// Timeout is the per-page deadline for navigation + rendering + capture.
	// If <= 0, DefaultArchiveTimeout is used.
	Timeout time.Duration
	// WaitSelector optionally waits for a CSS selector to become visible before
	// capturing the page.
	WaitSelector string
}

// Page is what one browser visit captured.
type Page struct {
	// FinalURL is the browser's final URL after redirects.
	FinalURL string
	Title    string
	// HTML is the rendered document (outerHTML of <html>).
	HTML       string
	Screenshot []byte
	PDF        []byte
}

// CaptureError is returned when archiving a link failed, fully or in part.
type CaptureError struct {
	LinkID int64
	URL    string
	Err    error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture link %d (%s): %v", e.LinkID, e.URL, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// ArtifactKey is the storage key of one artifact of a link.
func ArtifactKey(l db.Link, kind db.ArtifactKind) string {
	return fmt.Sprintf("archives/%d/%d.%s", l.CollectionID, l.ID, kind.Ext())
}

// ArtifactSaver records stored artifact keys on a link.
type ArtifactSaver interface {
	SaveArtifacts(ctx context.Context, id int64, a db.Artifacts) error
}

// captureFunc loads url and captures what kinds needs.
type captureFunc func(ctx context.Context, url string, kinds []db.ArtifactKind, opts ArchiveOptions) (Page, error)

// Capturer produces the missing artifacts of a link and records them.
type Capturer struct {
	store     ArtifactSaver
	artifacts storage.Store
	inliner   *Inliner
	opts      ArchiveOptions
	capture   captureFunc
}

// NewCapturer returns a Capturer writing artifact bodies to artifacts and
// their keys to store. client is used to fetch page resources for the monolith.
func NewCapturer(store ArtifactSaver, artifacts storage.Store, client *http.Client, opts ArchiveOptions) *Capturer {
	return &Capturer{
		store:     store,
		artifacts: artifacts,
		inliner:   NewInliner(client),
		opts:      opts,
		capture:   CapturePage,
	}
}

// Archive captures the link's empty artifact slots.
//
// Each artifact is stored independently: the ones that succeed are saved
// even when others fail, and the failed slots stay empty so a later pass
// picks the link up again.
func (c *Capturer) Archive(ctx context.Context, l db.Link) error {
	kinds := l.Artifacts.Missing()
	if len(kinds) == 0 {
		return nil
	}
	if strings.TrimSpace(l.URL) == "" {
		return &CaptureError{LinkID: l.ID, URL: l.URL, Err: errors.New("link has no URL")}
	}

	p, err := c.capture(ctx, l.URL, kinds, c.opts)
	if err != nil {
		return &CaptureError{LinkID: l.ID, URL: l.URL, Err: err}
	}
	return c.persist(ctx, l, p, kinds)
}

func (c *Capturer) persist(ctx context.Context, l db.Link, p Page, kinds []db.ArtifactKind) error {
	var saved db.Artifacts
	var errs []error
	for _, kind := range kinds {
		body, err := c.render(ctx, kind, p)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", kind, err))
			continue
		}
		key := ArtifactKey(l, kind)
		if err := c.artifacts.Put(ctx, key, body, kind.ContentType()); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", kind, err))
			continue
		}
		saved.Set(kind, key)
	}

	if len(saved.Missing()) < len(db.ArtifactKinds) {
		if err := c.store.SaveArtifacts(ctx, l.ID, saved); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return &CaptureError{LinkID: l.ID, URL: l.URL, Err: errors.Join(errs...)}
	}
	log.Printf("Archived link id=%d url=%s", l.ID, l.URL)
	return nil
}

func (c *Capturer) render(ctx context.Context, kind db.ArtifactKind, p Page) ([]byte, error) {
	switch kind {
	case db.ArtifactImage:
		if len(p.Screenshot) == 0 {
			return nil, errors.New("no screenshot captured")
		}
		return p.Screenshot, nil
	case db.ArtifactPDF:
		if len(p.PDF) == 0 {
			return nil, errors.New("no PDF captured")
		}
		return p.PDF, nil
	case db.ArtifactReadable:
		r, err := ExtractReadable(p.HTML, p.FinalURL)
		if err != nil {
			return nil, err
		}
		if r.Title == "" {
			r.Title = p.Title
		}
		return r.JSON()
	case db.ArtifactMonolith:
		if strings.TrimSpace(p.HTML) == "" {
			return nil, errors.New("no HTML captured")
		}
		html, err := c.inliner.Inline(ctx, p.HTML, DefaultInlineOptions(p.FinalURL))
		if err != nil {
			log.Printf("Warning: failed to inline resources for %s: %v (using original HTML)", p.FinalURL, err)
			html = p.HTML
		}
		return []byte(html), nil
	}
	return nil, fmt.Errorf("unknown artifact kind %d", kind)
}

// CapturePage loads url in Chrome and captures the rendered page.
//
// The screenshot and PDF are only produced when kinds asks for them; the
// final URL, title and HTML are always captured.
//
// This does not attempt to bypass paywalls/CAPTCHAs/login walls; failures are
// returned as errors.
func CapturePage(ctx context.Context, url string, kinds []db.ArtifactKind, opts ArchiveOptions) (Page, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultArchiveTimeout
	}

	allocatorOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocatorOpts = append(allocatorOpts,
		chromedp.NoDefaultBrowserCheck,
		chromedp.NoFirstRun,
		chromedp.UserAgent(rss.UserAgent),
	)
	if opts.ChromePath != "" {
		allocatorOpts = append(allocatorOpts, chromedp.ExecPath(opts.ChromePath))
	}
	if opts.Headless {
		allocatorOpts = append(allocatorOpts, chromedp.Headless)
	} else {
		allocatorOpts = append(allocatorOpts, chromedp.Flag("headless", false))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocatorOpts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	runCtx, cancelRun := context.WithTimeout(browserCtx, opts.Timeout)
	defer cancelRun()

	var p Page
	actions := []chromedp.Action{
		chromedp.ActionFunc(func(ctx context.Context) error { return navigateAndSettle(ctx, url) }),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if strings.TrimSpace(opts.WaitSelector) != "" {
		actions = append(actions, chromedp.WaitVisible(opts.WaitSelector, chromedp.ByQuery))
	}
	// Small delay to allow any final JS execution after network idle
	actions = append(actions,
		chromedp.Sleep(DefaultNetworkIdleDelay),
		chromedp.Location(&p.FinalURL),
		chromedp.Title(&p.Title),
		chromedp.OuterHTML("html", &p.HTML, chromedp.ByQuery),
	)
	if slices.Contains(kinds, db.ArtifactImage) {
		actions = append(actions, chromedp.FullScreenshot(&p.Screenshot, ScreenshotQuality))
	}
	if slices.Contains(kinds, db.ArtifactPDF) {
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			buf, _, err := page.PrintToPDF().WithPrintBackground(true).Do(ctx)
			if err != nil {
				return fmt.Errorf("print to PDF: %w", err)
			}
			p.PDF = buf
			return nil
		}))
	}

	if err := chromedp.Run(runCtx, actions...); err != nil {
		return Page{}, err
	}

	if p.FinalURL == "" {
		p.FinalURL = url
	}
	// Some pages leave document.title blank; fall back to parsing HTML if needed.
	if strings.TrimSpace(p.Title) == "" && strings.TrimSpace(p.HTML) != "" {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.HTML)); err == nil {
			p.Title = strings.TrimSpace(doc.Find("title").First().Text())
		}
	}
	return p, nil
}

// navigateAndSettle navigates and waits for the network to go idle, giving
// up on the wait (not the capture) after MaxNetworkIdleWait.
func navigateAndSettle(ctx context.Context, url string) error {
	if err := page.SetLifecycleEventsEnabled(true).Do(ctx); err != nil {
		return err
	}

	idle := make(chan struct{}, 1)
	chromedp.ListenTarget(ctx, func(ev interface{}) {
		if e, ok := ev.(*page.EventLifecycleEvent); ok && e.Name == "networkIdle" {
			select {
			case idle <- struct{}{}:
			default:
			}
		}
	})

	if err := chromedp.Navigate(url).Do(ctx); err != nil {
		return err
	}

	select {
	case <-idle:
	case <-time.After(MaxNetworkIdleWait):
		log.Printf("Network never went idle for %s, capturing anyway", url)
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}
