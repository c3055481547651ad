package worker

import (
	"context"
	"log"
	"time"

	"github.com/seckatie/linkkeeper/internal/core/db"
	"github.com/seckatie/linkkeeper/internal/core/fanout"
)

// LinkLister lists links that still have empty artifact slots.
type LinkLister interface {
	ListLinksMissingArtifacts(ctx context.Context, order db.SortOrder, limit int) ([]db.Link, error)
}

// Selector picks the links an archive pass works on.
type Selector struct {
	store LinkLister
}

func NewSelector(store LinkLister) Selector {
	return Selector{store: store}
}

// SelectBatch returns up to n of the oldest and up to n of the newest links
// needing artifacts, without duplicates, oldest first.
func (s Selector) SelectBatch(ctx context.Context, n int) ([]db.Link, error) {
	if n <= 0 {
		return nil, nil
	}
	oldest, err := s.store.ListLinksMissingArtifacts(ctx, db.Ascending, n)
	if err != nil {
		return nil, err
	}
	newest, err := s.store.ListLinksMissingArtifacts(ctx, db.Descending, n)
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]bool, len(oldest)+len(newest))
	batch := make([]db.Link, 0, len(oldest)+len(newest))
	for _, l := range append(oldest, newest...) {
		if seen[l.ID] {
			continue
		}
		seen[l.ID] = true
		batch = append(batch, l)
	}
	return batch, nil
}

// Archiver produces the missing artifacts of one link.
type Archiver interface {
	Archive(ctx context.Context, l db.Link) error
}

// ArchiveWorker archives single links, logging failures instead of
// returning them.
type ArchiveWorker struct {
	archiver Archiver
}

func NewArchiveWorker(archiver Archiver) *ArchiveWorker {
	return &ArchiveWorker{archiver: archiver}
}

// ArchiveOne archives l and reports whether it succeeded.
func (w *ArchiveWorker) ArchiveOne(ctx context.Context, l db.Link) (ok bool) {
	defer func() {
		if p := recover(); p != nil {
			log.Printf("Archive panicked for id=%d url=%s owner=%d: %v", l.ID, l.URL, l.OwnerID, p)
			ok = false
		}
	}()

	if err := w.archiver.Archive(ctx, l); err != nil {
		log.Printf("Archive failed for id=%d url=%s owner=%d: %v", l.ID, l.URL, l.OwnerID, err)
		return false
	}
	return true
}

// BatchResult counts the links of one archive pass.
type BatchResult struct {
	Attempted int
	Succeeded int
	Failed    int
}

// ArchivePoller archives a batch of links on a fixed interval.
type ArchivePoller struct {
	selector Selector
	worker   *ArchiveWorker
	take     int
	interval time.Duration
}

func NewArchivePoller(selector Selector, worker *ArchiveWorker, take int, interval time.Duration) *ArchivePoller {
	return &ArchivePoller{
		selector: selector,
		worker:   worker,
		take:     take,
		interval: interval,
	}
}

// Run archives batches until ctx is cancelled.
func (p *ArchivePoller) Run(ctx context.Context) error {
	log.Printf("Archive poller started (interval %s, take %d)", p.interval, p.take)
	err := Every(ctx, p.interval, func(ctx context.Context) {
		_, _ = p.ProcessBatch(ctx)
	})
	log.Println("Archive poller stopped")
	return err
}

// ProcessBatch archives one selected batch concurrently and waits for it.
func (p *ArchivePoller) ProcessBatch(ctx context.Context) (BatchResult, error) {
	links, err := p.selector.SelectBatch(ctx, p.take)
	if err != nil {
		log.Printf("Archive pass skipped, failed to select links: %v", err)
		return BatchResult{}, err
	}
	if len(links) == 0 {
		return BatchResult{}, nil
	}

	log.Printf("Archiving %d link(s)...", len(links))
	results := fanout.All(ctx, links, 0, func(ctx context.Context, l db.Link) (bool, error) {
		return p.worker.ArchiveOne(ctx, l), nil
	})

	res := BatchResult{Attempted: len(links)}
	for _, r := range results {
		if r.Err == nil && r.Value {
			res.Succeeded++
		} else {
			res.Failed++
		}
	}
	log.Printf("Archive pass finished: %d attempted, %d succeeded, %d failed", res.Attempted, res.Succeeded, res.Failed)
	return res, nil
}
