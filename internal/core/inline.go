package core

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/seckatie/linkkeeper/internal/core/rss"
)

var errBlockedURL = errors.New("blocked internal URL")

// InlineOptions controls how resources are inlined into the monolith.
type InlineOptions struct {
	// BaseURL is used to resolve relative URLs in the HTML.
	BaseURL string
	// Timeout is the per-resource fetch timeout.
	Timeout time.Duration
	// MaxResourceSize is the maximum size of a single resource to inline (bytes).
	// Larger resources are truncated. 0 means no limit.
	MaxResourceSize int64
	InlineImages    bool
	InlineCSS       bool
	InlineJS        bool
}

func DefaultInlineOptions(baseURL string) InlineOptions {
	return InlineOptions{
		BaseURL:         baseURL,
		Timeout:         DefaultResourceTimeout,
		MaxResourceSize: MaxResourceSize,
		InlineImages:    true,
		InlineCSS:       true,
		InlineJS:        true,
	}
}

// Inliner turns a rendered page into a single self-contained HTML document.
type Inliner struct {
	client *http.Client

	// allowInternal skips the internal-address check. Only tests set it, to
	// reach httptest servers on loopback.
	allowInternal bool
}

// NewInliner returns an Inliner fetching through client. A nil client gets a
// default one with DefaultResourceTimeout.
func NewInliner(client *http.Client) *Inliner {
	if client == nil {
		client = &http.Client{Timeout: DefaultResourceTimeout}
	}
	return &Inliner{client: client}
}

// Inline replaces stylesheets, scripts and images with inline copies.
// Resources that cannot be fetched keep their original reference; a <base>
// tag is added so those still resolve when the document is viewed.
func (in *Inliner) Inline(ctx context.Context, html string, opts InlineOptions) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	baseURL, err := url.Parse(opts.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}

	if opts.InlineCSS {
		doc.Find("link[rel='stylesheet']").Each(func(_ int, s *goquery.Selection) {
			cssURL := resolveURL(baseURL, s.AttrOr("href", ""))
			if cssURL == "" {
				return
			}
			css, err := in.fetchText(ctx, cssURL, opts)
			if err != nil {
				logFetchFailure("CSS", cssURL, err)
				return
			}
			css = in.inlineCSSURLs(ctx, css, cssURL, opts)
			s.ReplaceWithHtml(fmt.Sprintf("<style>%s</style>", css))
		})
	}

	if opts.InlineJS {
		doc.Find("script[src]").Each(func(_ int, s *goquery.Selection) {
			jsURL := resolveURL(baseURL, s.AttrOr("src", ""))
			if jsURL == "" {
				return
			}
			js, err := in.fetchText(ctx, jsURL, opts)
			if err != nil {
				logFetchFailure("JS", jsURL, err)
				return
			}
			s.RemoveAttr("src")
			s.SetText(js)
		})
	}

	if opts.InlineImages {
		doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
			imgURL := resolveURL(baseURL, s.AttrOr("src", ""))
			if imgURL == "" {
				return
			}
			dataURI, err := in.fetchDataURI(ctx, imgURL, opts)
			if err != nil {
				logFetchFailure("image", imgURL, err)
				return
			}
			s.SetAttr("src", dataURI)
		})

		// srcset candidates would bypass the inlined src.
		doc.Find("img[srcset], source[srcset]").RemoveAttr("srcset")
	}

	doc.Find("[style]").Each(func(_ int, s *goquery.Selection) {
		style := s.AttrOr("style", "")
		if strings.Contains(style, "url(") {
			s.SetAttr("style", in.inlineCSSURLs(ctx, style, opts.BaseURL, opts))
		}
	})

	if head := doc.Find("head"); head.Length() > 0 && doc.Find("base").Length() == 0 {
		head.PrependHtml(fmt.Sprintf(`<base href="%s">`, baseURL.String()))
	}

	result, err := doc.Html()
	if err != nil {
		return "", fmt.Errorf("failed to serialize HTML: %w", err)
	}
	return result, nil
}

// 404s are common for moved assets and not worth logging.
func logFetchFailure(kind, resourceURL string, err error) {
	if strings.Contains(err.Error(), "HTTP 404") {
		return
	}
	log.Printf("Failed to fetch %s %s: %v", kind, resourceURL, err)
}

// resolveURL resolves a potentially relative URL against a base URL.
// data: and javascript: references resolve to "".
func resolveURL(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "data:") || strings.HasPrefix(ref, "javascript:") {
		return ""
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return base.ResolveReference(refURL).String()
}

// isInternalURL reports whether rawURL points at loopback, private,
// link-local or otherwise internal hosts. Unparseable URLs count as internal.
func isInternalURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if host == "" || host == "localhost" {
		return true
	}
	for _, suffix := range []string{".localhost", ".local", ".internal", ".localdomain"} {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
			ip.IsLinkLocalMulticast() || ip.IsUnspecified()
	}
	return false
}

type fetchedResource struct {
	data        []byte
	contentType string
}

// fetch downloads a page resource, refusing internal addresses. Bodies over
// opts.MaxResourceSize are cut at that size.
func (in *Inliner) fetch(ctx context.Context, urlStr string, opts InlineOptions) (fetchedResource, error) {
	if !in.allowInternal && isInternalURL(urlStr) {
		return fetchedResource{}, fmt.Errorf("%w: %s", errBlockedURL, urlStr)
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return fetchedResource{}, err
	}
	req.Header.Set("User-Agent", rss.UserAgent)

	resp, err := in.client.Do(req)
	if err != nil {
		return fetchedResource{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fetchedResource{}, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	var reader io.Reader = resp.Body
	if opts.MaxResourceSize > 0 {
		reader = io.LimitReader(resp.Body, opts.MaxResourceSize)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return fetchedResource{}, err
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return fetchedResource{data: data, contentType: contentType}, nil
}

func (in *Inliner) fetchText(ctx context.Context, urlStr string, opts InlineOptions) (string, error) {
	res, err := in.fetch(ctx, urlStr, opts)
	if err != nil {
		return "", err
	}
	return string(res.data), nil
}

func (in *Inliner) fetchDataURI(ctx context.Context, urlStr string, opts InlineOptions) (string, error) {
	res, err := in.fetch(ctx, urlStr, opts)
	if err != nil {
		return "", err
	}
	return dataURI(res), nil
}

func dataURI(res fetchedResource) string {
	contentType := res.contentType
	if idx := strings.Index(contentType, ";"); idx > 0 {
		contentType = strings.TrimSpace(contentType[:idx])
	}
	return fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(res.data))
}

// inlineCSSURLs replaces url(...) references in css with data URIs.
// References that cannot be fetched are left untouched.
func (in *Inliner) inlineCSSURLs(ctx context.Context, css, baseURLStr string, opts InlineOptions) string {
	baseURL, err := url.Parse(baseURLStr)
	if err != nil {
		return css
	}

	var out strings.Builder
	rest := css
	for {
		start := strings.Index(rest, "url(")
		if start == -1 {
			out.WriteString(rest)
			break
		}
		out.WriteString(rest[:start])

		end := strings.Index(rest[start+4:], ")")
		if end == -1 {
			out.WriteString(rest[start:])
			break
		}
		original := rest[start : start+4+end+1]
		ref := strings.Trim(strings.TrimSpace(rest[start+4:start+4+end]), `"'`)
		rest = rest[start+4+end+1:]

		resolved := resolveURL(baseURL, ref)
		if resolved == "" {
			out.WriteString(original)
			continue
		}
		uri, err := in.fetchDataURI(ctx, resolved, opts)
		if err != nil {
			logFetchFailure("CSS resource", resolved, err)
			out.WriteString(original)
			continue
		}
		fmt.Fprintf(&out, "url(%s)", uri)
	}
	return out.String()
}
