package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
)

// Readable is the stored form of the readable artifact.
type Readable struct {
	Title       string `json:"title"`
	Byline      string `json:"byline,omitempty"`
	Excerpt     string `json:"excerpt,omitempty"`
	SiteName    string `json:"siteName,omitempty"`
	Content     string `json:"content"`
	TextContent string `json:"textContent"`
	Length      int    `json:"length"`
}

var errNoReadableContent = errors.New("no readable content")

var readablePolicy = bluemonday.UGCPolicy()

// ExtractReadable pulls the main article out of a rendered page.
// The extracted HTML is sanitised before it is stored.
func ExtractReadable(html, pageURL string) (Readable, error) {
	if strings.TrimSpace(html) == "" {
		return Readable{}, errNoReadableContent
	}

	var base *url.URL
	if u, err := url.Parse(pageURL); err == nil && u.Host != "" {
		base = u
	}

	article, err := readability.FromReader(strings.NewReader(html), base)
	if err != nil {
		return Readable{}, fmt.Errorf("readability extraction failed: %w", err)
	}

	content := readablePolicy.Sanitize(article.Content)
	text := strings.TrimSpace(article.TextContent)
	if strings.TrimSpace(content) == "" && text == "" {
		return Readable{}, errNoReadableContent
	}

	return Readable{
		Title:       strings.TrimSpace(article.Title),
		Byline:      strings.TrimSpace(article.Byline),
		Excerpt:     strings.TrimSpace(article.Excerpt),
		SiteName:    strings.TrimSpace(article.SiteName),
		Content:     content,
		TextContent: text,
		Length:      article.Length,
	}, nil
}

func (r Readable) JSON() ([]byte, error) {
	return json.Marshal(r)
}
