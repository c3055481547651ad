package core

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/seckatie/linkkeeper/internal/core/rss"
)

type stubResource struct {
	status      int
	contentType string
	body        string
}

// stubTransport serves canned resources by URL and records every request.
type stubTransport struct {
	mu        sync.Mutex
	resources map[string]stubResource
	requests  []*http.Request
}

func (s *stubTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	s.mu.Lock()
	s.requests = append(s.requests, r)
	s.mu.Unlock()

	res, ok := s.resources[r.URL.String()]
	if !ok {
		res = stubResource{status: http.StatusNotFound, body: "not found"}
	}
	if res.status == 0 {
		res.status = http.StatusOK
	}
	header := http.Header{}
	if res.contentType != "" {
		header.Set("Content-Type", res.contentType)
	}
	return &http.Response{
		StatusCode: res.status,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(res.body)),
		Request:    r,
	}, nil
}

func (s *stubTransport) requested() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	urls := make([]string, len(s.requests))
	for i, r := range s.requests {
		urls[i] = r.URL.String()
	}
	return urls
}

func newStubInliner(resources map[string]stubResource) (*Inliner, *stubTransport) {
	stub := &stubTransport{resources: resources}
	return NewInliner(&http.Client{Transport: stub}), stub
}

func b64(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

const pageHTML = `<!DOCTYPE html>
<html><head>
<title>Field notes</title>
<link rel="stylesheet" href="/css/site.css">
<script src="/js/app.js"></script>
</head><body>
<img src="/img/photo.jpg" srcset="/img/photo-2x.jpg 2x">
<div style="background:url('/img/bg.png')">notes</div>
</body></html>`

func pageResources() map[string]stubResource {
	return map[string]stubResource{
		"https://example.com/css/site.css":  {contentType: "text/css", body: `body{background:url("../img/bg.png")}`},
		"https://example.com/js/app.js":     {contentType: "application/javascript", body: "console.log(42)"},
		"https://example.com/img/photo.jpg": {contentType: "image/jpeg; charset=binary", body: "JPEGDATA"},
		"https://example.com/img/bg.png":    {contentType: "image/png", body: "PNGDATA"},
	}
}

func TestInlinerInline(t *testing.T) {
	in, stub := newStubInliner(pageResources())

	out, err := in.Inline(context.Background(), pageHTML, DefaultInlineOptions("https://example.com/notes/today"))
	if err != nil {
		t.Fatalf("Inline: %v", err)
	}

	wants := []string{
		"<style>body{background:url(data:image/png;base64," + b64("PNGDATA") + ")}</style>",
		"<script>console.log(42)</script>",
		`src="data:image/jpeg;base64,` + b64("JPEGDATA") + `"`,
		"background:url(data:image/png;base64," + b64("PNGDATA") + ")",
		`<base href="https://example.com/notes/today"`,
	}
	for _, want := range wants {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n%s", want, out)
		}
	}
	for _, unwanted := range []string{"srcset", `rel="stylesheet"`, `src="/js/app.js"`} {
		if strings.Contains(out, unwanted) {
			t.Errorf("output should not contain %q\n%s", unwanted, out)
		}
	}
	if len(stub.requested()) == 0 {
		t.Error("expected resources to be fetched through the injected client")
	}
}

func TestInlinerOptionsDisableKinds(t *testing.T) {
	in, stub := newStubInliner(pageResources())
	opts := DefaultInlineOptions("https://example.com/notes/today")
	opts.InlineCSS = false
	opts.InlineJS = false
	opts.InlineImages = false

	out, err := in.Inline(context.Background(), pageHTML, opts)
	if err != nil {
		t.Fatalf("Inline: %v", err)
	}
	for _, want := range []string{`href="/css/site.css"`, `src="/js/app.js"`, `src="/img/photo.jpg"`, "srcset"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n%s", want, out)
		}
	}
	// Inline style attributes are always rewritten.
	if diff := cmp.Diff([]string{"https://example.com/img/bg.png"}, stub.requested()); diff != "" {
		t.Errorf("requested URLs mismatch (-want +got):\n%s", diff)
	}
}

func TestInlinerKeepsUnfetchableReferences(t *testing.T) {
	in, _ := newStubInliner(nil)
	html := `<html><head><link rel="stylesheet" href="/gone.css"></head><body><img src="gone.png"></body></html>`

	out, err := in.Inline(context.Background(), html, DefaultInlineOptions("https://example.com/a/"))
	if err != nil {
		t.Fatalf("Inline: %v", err)
	}
	for _, want := range []string{`href="/gone.css"`, `src="gone.png"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n%s", want, out)
		}
	}
}

func TestInlinerBlocksInternalAddresses(t *testing.T) {
	in, stub := newStubInliner(map[string]stubResource{
		"http://127.0.0.1:8080/secret.png":         {contentType: "image/png", body: "SECRET"},
		"http://169.254.169.254/latest/meta-data/": {body: "credentials"},
		"http://printer.local/status.css":          {body: "x"},
	})
	html := `<html><head><link rel="stylesheet" href="http://printer.local/status.css"></head>
<body><img src="http://127.0.0.1:8080/secret.png"><img src="http://169.254.169.254/latest/meta-data/"></body></html>`

	out, err := in.Inline(context.Background(), html, DefaultInlineOptions("https://example.com/"))
	if err != nil {
		t.Fatalf("Inline: %v", err)
	}
	if got := stub.requested(); len(got) != 0 {
		t.Errorf("internal addresses must never be requested, got %v", got)
	}
	if !strings.Contains(out, `src="http://127.0.0.1:8080/secret.png"`) {
		t.Errorf("blocked reference should be left as is\n%s", out)
	}

	_, err = in.fetch(context.Background(), "http://10.0.0.5/a.js", InlineOptions{})
	if !errors.Is(err, errBlockedURL) {
		t.Errorf("expected errBlockedURL, got %v", err)
	}

	in.allowInternal = true
	if _, err := in.fetch(context.Background(), "http://127.0.0.1:8080/secret.png", InlineOptions{}); err != nil {
		t.Errorf("allowInternal should permit loopback fetches: %v", err)
	}
}

func TestInlinerFetch(t *testing.T) {
	resources := map[string]stubResource{
		"https://example.com/big.txt":  {contentType: "text/plain", body: "abcdefghij"},
		"https://example.com/raw.bin":  {body: "\x89PNG\r\n\x1a\n0000"},
		"https://example.com/down.css": {status: http.StatusInternalServerError},
	}

	t.Run("sends the shared user agent", func(t *testing.T) {
		in, stub := newStubInliner(resources)
		if _, err := in.fetchText(context.Background(), "https://example.com/big.txt", InlineOptions{}); err != nil {
			t.Fatalf("fetchText: %v", err)
		}
		if got := stub.requests[0].Header.Get("User-Agent"); got != rss.UserAgent {
			t.Errorf("User-Agent = %q, want %q", got, rss.UserAgent)
		}
	})

	t.Run("large resources are truncated", func(t *testing.T) {
		in, _ := newStubInliner(resources)
		tests := []struct {
			max  int64
			want string
		}{
			{0, "abcdefghij"},
			{4, "abcd"},
			{100, "abcdefghij"},
		}
		for _, tt := range tests {
			got, err := in.fetchText(context.Background(), "https://example.com/big.txt", InlineOptions{MaxResourceSize: tt.max})
			if err != nil {
				t.Fatalf("fetchText(max=%d): %v", tt.max, err)
			}
			if got != tt.want {
				t.Errorf("fetchText(max=%d) = %q, want %q", tt.max, got, tt.want)
			}
		}
	})

	t.Run("content type is sniffed when missing", func(t *testing.T) {
		in, _ := newStubInliner(resources)
		uri, err := in.fetchDataURI(context.Background(), "https://example.com/raw.bin", InlineOptions{})
		if err != nil {
			t.Fatalf("fetchDataURI: %v", err)
		}
		if !strings.HasPrefix(uri, "data:image/png;base64,") {
			t.Errorf("unexpected data URI prefix: %q", uri)
		}
	})

	t.Run("non-200 is an error", func(t *testing.T) {
		in, _ := newStubInliner(resources)
		_, err := in.fetchText(context.Background(), "https://example.com/down.css", InlineOptions{})
		if err == nil || !strings.Contains(err.Error(), "HTTP 500") {
			t.Errorf("expected HTTP 500 error, got %v", err)
		}
	})

	t.Run("per-resource timeout", func(t *testing.T) {
		hang := roundTripFunc(func(r *http.Request) (*http.Response, error) {
			<-r.Context().Done()
			return nil, r.Context().Err()
		})
		in := NewInliner(&http.Client{Transport: hang})
		_, err := in.fetchText(context.Background(), "https://example.com/slow.js", InlineOptions{Timeout: 10 * time.Millisecond})
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded, got %v", err)
		}
	})
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestInlinerBaseTag(t *testing.T) {
	in, _ := newStubInliner(nil)

	t.Run("added when missing", func(t *testing.T) {
		out, err := in.Inline(context.Background(), `<html><head><title>x</title></head><body></body></html>`, DefaultInlineOptions("https://example.com/a/b"))
		if err != nil {
			t.Fatalf("Inline: %v", err)
		}
		if !strings.Contains(out, `<base href="https://example.com/a/b"`) {
			t.Errorf("expected base tag\n%s", out)
		}
	})

	t.Run("existing base is kept", func(t *testing.T) {
		html := `<html><head><base href="https://cdn.example.com/"></head><body></body></html>`
		out, err := in.Inline(context.Background(), html, DefaultInlineOptions("https://example.com/a/b"))
		if err != nil {
			t.Fatalf("Inline: %v", err)
		}
		if n := strings.Count(out, "<base"); n != 1 {
			t.Errorf("expected one base tag, got %d\n%s", n, out)
		}
		if !strings.Contains(out, `href="https://cdn.example.com/"`) {
			t.Errorf("existing base href was replaced\n%s", out)
		}
	})

	t.Run("invalid base URL", func(t *testing.T) {
		if _, err := in.Inline(context.Background(), "<html></html>", DefaultInlineOptions("://bad")); err == nil {
			t.Error("expected an error for an invalid base URL")
		}
	})
}

func TestNewInlinerDefaultsClient(t *testing.T) {
	in := NewInliner(nil)
	if in.client == nil || in.client.Timeout != DefaultResourceTimeout {
		t.Errorf("expected default client with %s timeout, got %+v", DefaultResourceTimeout, in.client)
	}
	if in.allowInternal {
		t.Error("internal addresses must be blocked by default")
	}
}

func TestIsInternalURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://example.com/a.css", false},
		{"http://93.184.216.34/", false},
		{"http://localhost:3000/", true},
		{"http://api.localhost/", true},
		{"http://127.0.0.1/", true},
		{"http://10.1.2.3/", true},
		{"http://192.168.0.10/", true},
		{"http://169.254.169.254/latest/", true},
		{"http://[::1]:8080/", true},
		{"http://0.0.0.0/", true},
		{"http://nas.local/", true},
		{"http://metadata.google.internal/", true},
		{"http://%zz/", true},
		{"/relative/only", true},
	}
	for _, tt := range tests {
		if got := isInternalURL(tt.url); got != tt.want {
			t.Errorf("isInternalURL(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestResolveURL(t *testing.T) {
	base, err := url.Parse("https://example.com/notes/today")
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		ref  string
		want string
	}{
		{"img/a.png", "https://example.com/notes/img/a.png"},
		{"/b.css", "https://example.com/b.css"},
		{"//cdn.example.com/c.js", "https://cdn.example.com/c.js"},
		{"  ", ""},
		{"data:image/png;base64,AAAA", ""},
		{"javascript:void(0)", ""},
	}
	for _, tt := range tests {
		if got := resolveURL(base, tt.ref); got != tt.want {
			t.Errorf("resolveURL(%q) = %q, want %q", tt.ref, got, tt.want)
		}
	}
}
