package rss

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/seckatie/linkkeeper/internal/core/db"
	"github.com/seckatie/linkkeeper/internal/core/fanout"
)

// Store is the subset of the database the engine writes through.
type Store interface {
	ExistingLinkURLs(ctx context.Context, collectionID int64, urls []string) (map[string]bool, error)
	CreateLink(ctx context.Context, l db.NewLink) (int64, error)
	UpdateSubscriptionWatermark(ctx context.Context, id int64, t time.Time) error
}

// CapacityGate decides whether an owner may receive n more links.
type CapacityGate interface {
	WouldExceedLimit(ctx context.Context, ownerID int64, n int) (bool, error)
}

// FeedFetcher downloads a feed document.
type FeedFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Engine ingests one subscription at a time. It holds no state between
// calls, so one Engine serves the polling loop and the refresh endpoint.
type Engine struct {
	store   Store
	gate    CapacityGate
	fetcher FeedFetcher

	// createLimit bounds concurrent link inserts within one subscription.
	createLimit int
	now         func() time.Time
}

func NewEngine(store Store, gate CapacityGate, fetcher FeedFetcher) *Engine {
	return &Engine{
		store:       store,
		gate:        gate,
		fetcher:     fetcher,
		createLimit: 8,
		now:         time.Now,
	}
}

// Ingest fetches a subscription's feed and creates a link for every new item.
//
// Nothing is written when the fetch or parse fails, when no item is new, or
// when the owner would go over quota. After links are created the watermark
// advances to the latest publish time among the items actually stored.
// Undated items are stamped with the time the pass started.
func (e *Engine) Ingest(ctx context.Context, sub db.Subscription) Outcome {
	out := Outcome{SubscriptionID: sub.ID, Subscription: sub.Name}
	passStarted := e.now().UTC()

	body, err := e.fetcher.Fetch(ctx, sub.URL)
	if err != nil {
		return out.failed(err)
	}

	items, err := ParseItems(body)
	if err != nil {
		return out.failed(&ParseError{URL: sub.URL, Err: err})
	}
	if len(items) == 0 {
		return out.succeeded(0)
	}
	for i := range items {
		if !items[i].Dated() {
			items[i].Published = passStarted
		}
	}

	urls := make([]string, len(items))
	for i, it := range items {
		urls[i] = it.Link
	}
	existing, err := e.store.ExistingLinkURLs(ctx, sub.CollectionID, urls)
	if err != nil {
		return out.failed(err)
	}

	fresh := selectNew(items, existing, sub.LastBuild)
	if len(fresh) == 0 {
		return out.succeeded(0)
	}

	exceeded, err := e.gate.WouldExceedLimit(ctx, sub.OwnerID, len(fresh))
	if err != nil {
		return out.failed(err)
	}
	if exceeded {
		log.Printf("RSS %q: %d new item(s) would exceed the link limit for owner %d, skipping", sub.Name, len(fresh), sub.OwnerID)
		return out.skipped(ReasonCapacity)
	}

	results := fanout.All(ctx, fresh, e.createLimit, func(ctx context.Context, it Item) (int64, error) {
		return e.store.CreateLink(ctx, db.NewLink{
			Name:         it.Title,
			URL:          it.Link,
			OwnerID:      sub.OwnerID,
			CollectionID: sub.CollectionID,
		})
	})

	watermark := sub.LastBuild
	var advanced bool
	var created int
	var errs []error
	for i, r := range results {
		if r.Err != nil {
			log.Printf("RSS %q: failed to create link %s: %v", sub.Name, fresh[i].Link, r.Err)
			errs = append(errs, fmt.Errorf("%s: %w", fresh[i].Link, r.Err))
			continue
		}
		created++
		if watermark.Admits(fresh[i].Published) {
			watermark = watermark.Advance(fresh[i].Published)
			advanced = true
		}
	}
	if created == 0 {
		return out.failed(fmt.Errorf("no links created: %w", errors.Join(errs...)))
	}

	if t, ok := watermark.Time(); ok && advanced {
		if err := e.store.UpdateSubscriptionWatermark(ctx, sub.ID, t); err != nil {
			out = out.failed(err)
			out.NewItems = created
			return out
		}
	}

	return out.succeeded(created)
}

// selectNew applies the watermark and existence filters.
//
// When none of the feed's links are stored yet the subscription has never
// produced anything in this collection, so every item is taken regardless of
// date.
func selectNew(items []Item, existing map[string]bool, watermark db.Watermark) []Item {
	firstPass := len(existing) == 0

	var fresh []Item
	for _, it := range items {
		if existing[it.Link] {
			continue
		}
		if !firstPass && !watermark.Admits(it.Published) {
			continue
		}
		fresh = append(fresh, it)
	}
	return fresh
}
