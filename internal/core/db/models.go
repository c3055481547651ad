package db

import "time"

// LinkTypeURL is the type tag of links that point at a web page.
const LinkTypeURL = "link"

// ArtifactKind identifies one of the archival outputs attached to a link.
type ArtifactKind int

const (
	// ArtifactImage is a screenshot of the rendered page.
	ArtifactImage ArtifactKind = iota
	// ArtifactPDF is a printed PDF of the rendered page.
	ArtifactPDF
	// ArtifactReadable is the extracted article text.
	ArtifactReadable
	// ArtifactMonolith is a self-contained HTML capture of the page.
	ArtifactMonolith
)

// ArtifactKinds lists every artifact kind in column order.
var ArtifactKinds = []ArtifactKind{ArtifactImage, ArtifactPDF, ArtifactReadable, ArtifactMonolith}

func (k ArtifactKind) String() string {
	switch k {
	case ArtifactImage:
		return "image"
	case ArtifactPDF:
		return "pdf"
	case ArtifactReadable:
		return "readable"
	case ArtifactMonolith:
		return "monolith"
	default:
		return "unknown"
	}
}

// Ext is the file extension used when the artifact is written to storage.
func (k ArtifactKind) Ext() string {
	switch k {
	case ArtifactImage:
		return "jpeg"
	case ArtifactPDF:
		return "pdf"
	case ArtifactReadable:
		return "json"
	case ArtifactMonolith:
		return "html"
	default:
		return "bin"
	}
}

func (k ArtifactKind) ContentType() string {
	switch k {
	case ArtifactImage:
		return "image/jpeg"
	case ArtifactPDF:
		return "application/pdf"
	case ArtifactReadable:
		return "application/json"
	case ArtifactMonolith:
		return "text/html; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

// ParseArtifactKind maps a column name back to its kind.
func ParseArtifactKind(s string) (ArtifactKind, bool) {
	for _, k := range ArtifactKinds {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}

// Artifacts holds the storage keys of a link's archival outputs.
// An empty value means the artifact has not been produced yet (NULL in the database).
type Artifacts struct {
	Image    string
	PDF      string
	Readable string
	Monolith string
}

func (a Artifacts) Get(k ArtifactKind) string {
	switch k {
	case ArtifactImage:
		return a.Image
	case ArtifactPDF:
		return a.PDF
	case ArtifactReadable:
		return a.Readable
	case ArtifactMonolith:
		return a.Monolith
	}
	return ""
}

func (a *Artifacts) Set(k ArtifactKind, key string) {
	switch k {
	case ArtifactImage:
		a.Image = key
	case ArtifactPDF:
		a.PDF = key
	case ArtifactReadable:
		a.Readable = key
	case ArtifactMonolith:
		a.Monolith = key
	}
}

// Missing returns the kinds that still need to be archived.
func (a Artifacts) Missing() []ArtifactKind {
	var out []ArtifactKind
	for _, k := range ArtifactKinds {
		if a.Get(k) == "" {
			out = append(out, k)
		}
	}
	return out
}

// Link is a stored bookmark.
type Link struct {
	ID           int64
	URL          string
	Name         string
	Type         string
	OwnerID      int64
	CollectionID int64
	Artifacts    Artifacts
	// CreatedAt is stored in the DB as fixed-width RFC3339 text.
	CreatedAt string
}

// NewLink carries the fields needed to create a link.
type NewLink struct {
	Name         string
	URL          string
	OwnerID      int64
	CollectionID int64
}

// Watermark is the latest publish time already ingested for a subscription.
// The zero value is NeverIngested.
type Watermark struct {
	at  time.Time
	set bool
}

// NeverIngested is the watermark of a subscription that has never produced links.
func NeverIngested() Watermark { return Watermark{} }

// IngestedAt is the watermark of a subscription ingested up to t.
func IngestedAt(t time.Time) Watermark { return Watermark{at: t.UTC(), set: true} }

// Time returns the watermark timestamp and whether one is set.
func (w Watermark) Time() (time.Time, bool) { return w.at, w.set }

// IsNever reports whether no pass has ever advanced the watermark.
func (w Watermark) IsNever() bool { return !w.set }

// Admits reports whether an item published at t lies beyond the watermark.
func (w Watermark) Admits(t time.Time) bool {
	if !w.set {
		return true
	}
	return t.After(w.at)
}

// Advance returns the later of w and t.
func (w Watermark) Advance(t time.Time) Watermark {
	if w.set && !t.After(w.at) {
		return w
	}
	return IngestedAt(t)
}

func (w Watermark) String() string {
	if !w.set {
		return "never"
	}
	return w.at.Format(time.RFC3339)
}

// Subscription is an RSS/Atom feed ingested into a collection.
type Subscription struct {
	ID           int64
	Name         string
	URL          string
	OwnerID      int64
	CollectionID int64
	LastBuild    Watermark
	CreatedAt    string
}
