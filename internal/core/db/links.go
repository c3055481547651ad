package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"
)

// ErrInvalidURL is returned when a link or feed URL fails validation.
var ErrInvalidURL = errors.New("invalid URL")

// existenceChunk keeps batched IN (...) queries under SQLite's host parameter limit.
const existenceChunk = 500

// ValidateURL validates that a URL is acceptable for a link or subscription.
// It requires the URL to have http or https scheme and a non-empty host.
func ValidateURL(urlStr string) error {
	if urlStr == "" {
		return fmt.Errorf("%w: empty URL", ErrInvalidURL)
	}

	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme must be http or https, got %q", ErrInvalidURL, u.Scheme)
	}

	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURL)
	}

	return nil
}

// SortOrder selects the id ordering of link listings.
type SortOrder int

const (
	Ascending SortOrder = iota
	Descending
)

func (o SortOrder) sql() string {
	if o == Descending {
		return "DESC"
	}
	return "ASC"
}

// ------------------------------
// Link methods
// ------------------------------

const linkColumns = "id, COALESCE(url, ''), name, type, owner_id, collection_id, " +
	"COALESCE(image, ''), COALESCE(pdf, ''), COALESCE(readable, ''), COALESCE(monolith, ''), created_at"

// CreateLink inserts a link of type "link" with every artifact slot empty.
// Emits a LinkCreatedEvent after successful insert.
func (db *DB) CreateLink(ctx context.Context, l NewLink) (int64, error) {
	if err := ValidateURL(l.URL); err != nil {
		return 0, err
	}

	createdAt := time.Now().UTC().Format(timeLayout)
	result, err := db.db.ExecContext(ctx,
		`INSERT INTO links (name, url, type, owner_id, collection_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		l.Name, l.URL, LinkTypeURL, l.OwnerID, l.CollectionID, createdAt,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to add link: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	db.emit(LinkCreatedEvent{
		Link: Link{
			ID:           id,
			URL:          l.URL,
			Name:         l.Name,
			Type:         LinkTypeURL,
			OwnerID:      l.OwnerID,
			CollectionID: l.CollectionID,
			CreatedAt:    createdAt,
		},
	})

	return id, nil
}

func (db *DB) GetLink(ctx context.Context, id int64) (Link, error) {
	row := db.db.QueryRowContext(ctx, "SELECT "+linkColumns+" FROM links WHERE id = ?", id)
	l, err := scanLink(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Link{}, fmt.Errorf("link %d: %w", id, ErrNotFound)
		}
		return Link{}, fmt.Errorf("failed to get link: %w", err)
	}
	return l, nil
}

// ListLinks returns an owner's links, newest first.
// A collectionID of 0 lists every collection; a limit <= 0 lists everything.
func (db *DB) ListLinks(ctx context.Context, ownerID, collectionID int64, limit int) ([]Link, error) {
	query := "SELECT " + linkColumns + " FROM links WHERE owner_id = ?"
	args := []any{ownerID}
	if collectionID > 0 {
		query += " AND collection_id = ?"
		args = append(args, collectionID)
	}
	query += " ORDER BY id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	return collectLinks(rows)
}

// ExistingLinkURLs reports which of urls are already stored in the collection.
// The check is batched: one query per chunk of URLs rather than one per URL.
func (db *DB) ExistingLinkURLs(ctx context.Context, collectionID int64, urls []string) (map[string]bool, error) {
	existing := make(map[string]bool)
	for start := 0; start < len(urls); start += existenceChunk {
		end := min(start+existenceChunk, len(urls))
		chunk := urls[start:end]

		args := make([]any, 0, len(chunk)+1)
		args = append(args, collectionID)
		for _, u := range chunk {
			args = append(args, u)
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")

		if err := db.collectURLs(ctx, existing,
			"SELECT DISTINCT url FROM links WHERE collection_id = ? AND url IN ("+placeholders+")", args...); err != nil {
			return nil, err
		}
	}
	return existing, nil
}

func (db *DB) collectURLs(ctx context.Context, into map[string]bool, query string, args ...any) error {
	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to check existing links: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Printf("failed to close rows: %v", err)
		}
	}()

	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return fmt.Errorf("failed to scan link url: %w", err)
		}
		into[u] = true
	}
	return rows.Err()
}

// CountLinksByOwner returns how many links an owner has across all collections.
func (db *DB) CountLinksByOwner(ctx context.Context, ownerID int64) (int, error) {
	var n int
	if err := db.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM links WHERE owner_id = ?", ownerID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count links for owner %d: %w", ownerID, err)
	}
	return n, nil
}

// ListLinksMissingArtifacts returns up to limit links that have a URL and at
// least one empty artifact slot, ordered by id.
func (db *DB) ListLinksMissingArtifacts(ctx context.Context, order SortOrder, limit int) ([]Link, error) {
	query := `
		SELECT ` + linkColumns + `
		FROM links
		WHERE url IS NOT NULL AND url <> ''
		  AND (image IS NULL OR pdf IS NULL OR readable IS NULL OR monolith IS NULL)
		ORDER BY id ` + order.sql()

	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = db.db.QueryContext(ctx, query+" LIMIT ?", limit)
	} else {
		rows, err = db.db.QueryContext(ctx, query)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list links to archive: %w", err)
	}
	return collectLinks(rows)
}

// SaveArtifacts fills the artifact slots that are non-empty in a.
// Slots left empty in a keep their stored value.
// Emits an ArtifactsSavedEvent after successful save.
func (db *DB) SaveArtifacts(ctx context.Context, id int64, a Artifacts) error {
	res, err := db.db.ExecContext(ctx, `
		UPDATE links
		SET
			image = COALESCE(?, image),
			pdf = COALESCE(?, pdf),
			readable = COALESCE(?, readable),
			monolith = COALESCE(?, monolith)
		WHERE id = ?
	`,
		nullIfEmpty(a.Image),
		nullIfEmpty(a.PDF),
		nullIfEmpty(a.Readable),
		nullIfEmpty(a.Monolith),
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to save artifacts: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to determine rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("link %d: %w", id, ErrNotFound)
	}

	var kinds []ArtifactKind
	for _, k := range ArtifactKinds {
		if a.Get(k) != "" {
			kinds = append(kinds, k)
		}
	}
	db.emit(ArtifactsSavedEvent{LinkID: id, Kinds: kinds})

	return nil
}

// ClearArtifacts empties every artifact slot so the link is archived again.
// Emits an ArtifactsClearedEvent after a successful update.
func (db *DB) ClearArtifacts(ctx context.Context, id int64) error {
	res, err := db.db.ExecContext(ctx, `
		UPDATE links
		SET
			image = NULL,
			pdf = NULL,
			readable = NULL,
			monolith = NULL
		WHERE id = ?
	`, id)
	if err != nil {
		return fmt.Errorf("failed to clear artifacts: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to determine rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("link %d: %w", id, ErrNotFound)
	}

	db.emit(ArtifactsClearedEvent{LinkID: id})
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func scanLink(row scanner) (Link, error) {
	var l Link
	err := row.Scan(
		&l.ID,
		&l.URL,
		&l.Name,
		&l.Type,
		&l.OwnerID,
		&l.CollectionID,
		&l.Artifacts.Image,
		&l.Artifacts.PDF,
		&l.Artifacts.Readable,
		&l.Artifacts.Monolith,
		&l.CreatedAt,
	)
	return l, err
}

func collectLinks(rows *sql.Rows) ([]Link, error) {
	defer func() {
		if err := rows.Close(); err != nil {
			log.Printf("failed to close rows: %v", err)
		}
	}()

	var out []Link
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate links: %w", err)
	}
	return out, nil
}
