package worker

import (
	"context"
	"log"
	"time"

	"github.com/seckatie/linkkeeper/internal/core/db"
	"github.com/seckatie/linkkeeper/internal/core/rss"
)

// SubscriptionLister lists every subscription in the store.
type SubscriptionLister interface {
	ListSubscriptions(ctx context.Context) ([]db.Subscription, error)
}

// Ingester ingests a set of subscriptions and reports on each of them.
type Ingester interface {
	IngestAll(ctx context.Context, subs []db.Subscription) []rss.Settled
}

// RSSPoller ingests every subscription on a fixed interval.
type RSSPoller struct {
	subs     SubscriptionLister
	engine   Ingester
	interval time.Duration
}

func NewRSSPoller(subs SubscriptionLister, engine Ingester, interval time.Duration) *RSSPoller {
	return &RSSPoller{subs: subs, engine: engine, interval: interval}
}

// Run polls until ctx is cancelled.
func (p *RSSPoller) Run(ctx context.Context) error {
	log.Printf("RSS poller started (interval %s)", p.interval)
	err := Every(ctx, p.interval, func(ctx context.Context) {
		_, _ = p.Poll(ctx)
	})
	log.Println("RSS poller stopped")
	return err
}

// Poll runs one ingestion pass over all subscriptions and logs each outcome.
// A listing failure skips the pass.
func (p *RSSPoller) Poll(ctx context.Context) (rss.Summary, error) {
	subs, err := p.subs.ListSubscriptions(ctx)
	if err != nil {
		log.Printf("RSS poll skipped, failed to list subscriptions: %v", err)
		return rss.Summary{}, err
	}
	if len(subs) == 0 {
		return rss.Summarize(nil), nil
	}

	settled := p.engine.IngestAll(ctx, subs)
	for i, s := range settled {
		if s.Status == rss.SettledFulfilled && s.Value != nil {
			log.Printf("RSS %s (%s): %s", subs[i].Name, subs[i].URL, s.Value)
		}
	}

	summary := rss.Summarize(settled)
	log.Printf("RSS poll finished: %d subscription(s), %d new item(s), %d unreachable",
		len(subs), summary.NewItems, summary.Unreachable)
	return summary, nil
}
