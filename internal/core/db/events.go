package db

import "log"

// ------------------------------
// Event System
// ------------------------------
//
// The DB emits typed events when links are created, when artifacts are saved
// or cleared, and when a subscription's watermark moves forward.
//
// Listeners run synchronously on the goroutine that performed the write, and
// the ingestion and archive loops write from many goroutines at once, so a
// listener must be safe for concurrent use.
//
// Example usage:
//
//	db.RegisterEventListener(db.OnLinkCreatedEvent, func(event db.Event) error {
//	    ev := event.(db.LinkCreatedEvent)
//	    log.Printf("New link created: %d - %s", ev.Link.ID, ev.Link.URL)
//	    return nil
//	})
//
// Event is the common interface for all database events.
type Event interface {
	Kind() EventKind
}

// EventKind represents all the kinds of events that can be emitted by the DB.
type EventKind int

const (
	// OnLinkCreatedEvent is emitted when a link is created.
	OnLinkCreatedEvent EventKind = iota
	// OnArtifactsSavedEvent is emitted when one or more artifacts are stored for a link.
	OnArtifactsSavedEvent
	// OnArtifactsClearedEvent is emitted when a link's artifacts are cleared for re-archiving.
	OnArtifactsClearedEvent
	// OnWatermarkAdvancedEvent is emitted when a subscription's watermark moves forward.
	OnWatermarkAdvancedEvent
)

func (k EventKind) String() string {
	switch k {
	case OnLinkCreatedEvent:
		return "link_created"
	case OnArtifactsSavedEvent:
		return "artifacts_saved"
	case OnArtifactsClearedEvent:
		return "artifacts_cleared"
	case OnWatermarkAdvancedEvent:
		return "watermark_advanced"
	default:
		return "unknown"
	}
}

// LinkCreatedEvent is emitted after a new link is successfully inserted.
type LinkCreatedEvent struct {
	Link Link
}

func (e LinkCreatedEvent) Kind() EventKind { return OnLinkCreatedEvent }

// ArtifactsSavedEvent is emitted after artifact slots are filled.
type ArtifactsSavedEvent struct {
	LinkID int64
	Kinds  []ArtifactKind
}

func (e ArtifactsSavedEvent) Kind() EventKind { return OnArtifactsSavedEvent }

// ArtifactsClearedEvent is emitted after a link's artifacts are cleared.
type ArtifactsClearedEvent struct {
	LinkID int64
}

func (e ArtifactsClearedEvent) Kind() EventKind { return OnArtifactsClearedEvent }

// WatermarkAdvancedEvent is emitted after a subscription's last-build date moves forward.
type WatermarkAdvancedEvent struct {
	SubscriptionID int64
	Watermark      Watermark
}

func (e WatermarkAdvancedEvent) Kind() EventKind { return OnWatermarkAdvancedEvent }

// EventListener is a callback that handles events of a specific kind.
type EventListener func(event Event) error

// RegisterEventListener adds a listener for a specific event kind.
// Listeners are called in registration order after the DB operation succeeds.
func (db *DB) RegisterEventListener(eventKind EventKind, listener EventListener) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.eventListeners == nil {
		db.eventListeners = make(map[EventKind][]EventListener)
	}
	db.eventListeners[eventKind] = append(db.eventListeners[eventKind], listener)
}

// emit dispatches an event to all registered listeners for that event kind.
func (db *DB) emit(event Event) {
	db.mu.RLock()
	listeners := db.eventListeners[event.Kind()]
	db.mu.RUnlock()
	for _, listener := range listeners {
		if err := listener(event); err != nil {
			log.Printf("Event listener error for %s: %v", event.Kind(), err)
		}
	}
}
