package rss

import (
	"context"
	"log"

	"github.com/seckatie/linkkeeper/internal/core/db"
	"github.com/seckatie/linkkeeper/internal/core/fanout"
)

const (
	SettledFulfilled = "fulfilled"
	SettledRejected  = "rejected"
)

// Settled is one subscription's entry in a refresh report. Value is set for
// fulfilled entries; Reason is set when ingestion panicked.
type Settled struct {
	Status string   `json:"status"`
	Value  *Outcome `json:"value,omitempty"`
	Reason string   `json:"reason,omitempty"`
}

// IngestAll ingests every subscription concurrently and waits for all of them.
// The result has one entry per subscription, in input order.
func (e *Engine) IngestAll(ctx context.Context, subs []db.Subscription) []Settled {
	results := fanout.All(ctx, subs, 0, func(ctx context.Context, sub db.Subscription) (Outcome, error) {
		return e.Ingest(ctx, sub), nil
	})

	settled := make([]Settled, len(results))
	for i, r := range results {
		if r.Err != nil {
			log.Printf("RSS ingestion of %q (%s) aborted: %v", subs[i].Name, subs[i].URL, r.Err)
			settled[i] = Settled{Status: SettledRejected, Reason: r.Err.Error()}
			continue
		}
		outcome := r.Value
		settled[i] = Settled{Status: SettledFulfilled, Value: &outcome}
	}
	return settled
}

// Summary aggregates a refresh report.
type Summary struct {
	NewItems int `json:"newItems"`

	// Unreachable counts connectivity failures plus aborted ingestions.
	Unreachable int       `json:"unreachable"`
	Details     []Settled `json:"details"`
}

func Summarize(details []Settled) Summary {
	s := Summary{Details: details}
	if s.Details == nil {
		s.Details = []Settled{}
	}
	for _, d := range details {
		if d.Status == SettledRejected || d.Value == nil {
			s.Unreachable++
			continue
		}
		s.NewItems += d.Value.NewItems
		if d.Value.Status == StatusError && d.Value.Kind == KindConnectivity {
			s.Unreachable++
		}
	}
	return s
}
