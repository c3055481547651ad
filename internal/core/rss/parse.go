package rss

import (
	"bytes"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// Item is a feed entry reduced to what ingestion needs.
// A zero Published means the entry carried no usable date.
type Item struct {
	Link      string
	Title     string
	Published time.Time
}

func (i Item) Dated() bool { return !i.Published.IsZero() }

// ParseItems parses an RSS or Atom document.
//
// Entries without a link are dropped, as are entries repeating a link seen
// earlier in the same document. Titles fall back to the link.
func ParseItems(body []byte) ([]Item, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(feed.Items))
	items := make([]Item, 0, len(feed.Items))
	for _, fi := range feed.Items {
		if fi == nil {
			continue
		}
		link := itemLink(fi)
		if link == "" || seen[link] {
			continue
		}
		seen[link] = true

		title := strings.TrimSpace(fi.Title)
		if title == "" {
			title = link
		}
		items = append(items, Item{
			Link:      link,
			Title:     title,
			Published: itemTime(fi),
		})
	}
	return items, nil
}

func itemLink(fi *gofeed.Item) string {
	if link := strings.TrimSpace(fi.Link); link != "" {
		return link
	}
	for _, l := range fi.Links {
		if l = strings.TrimSpace(l); l != "" {
			return l
		}
	}
	return ""
}

// itemTime prefers the publish date and falls back to the update date.
func itemTime(fi *gofeed.Item) time.Time {
	switch {
	case fi.PublishedParsed != nil:
		return fi.PublishedParsed.UTC()
	case fi.UpdatedParsed != nil:
		return fi.UpdatedParsed.UTC()
	}
	for _, raw := range []string{fi.Published, fi.Updated} {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		for _, layout := range []string{time.RFC1123Z, time.RFC1123, time.RFC3339} {
			if t, err := time.Parse(layout, raw); err == nil {
				return t.UTC()
			}
		}
	}
	return time.Time{}
}
