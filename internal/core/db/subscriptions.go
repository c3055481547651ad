package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
)

// ------------------------------
// Subscription methods
// ------------------------------

const subscriptionColumns = "id, name, url, owner_id, collection_id, last_build_date, created_at"

// CreateSubscription validates and inserts a subscription, returning its ID.
func (db *DB) CreateSubscription(ctx context.Context, s Subscription) (int64, error) {
	if err := ValidateURL(s.URL); err != nil {
		return 0, err
	}
	if strings.TrimSpace(s.Name) == "" {
		s.Name = s.URL
	}

	var lastBuild any
	if t, ok := s.LastBuild.Time(); ok {
		lastBuild = t.UTC().Format(timeLayout)
	}

	result, err := db.db.ExecContext(ctx,
		`INSERT INTO subscriptions (name, url, owner_id, collection_id, last_build_date, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		s.Name, s.URL, s.OwnerID, s.CollectionID, lastBuild, time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to add subscription: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}
	return id, nil
}

func (db *DB) GetSubscription(ctx context.Context, id int64) (Subscription, error) {
	row := db.db.QueryRowContext(ctx, "SELECT "+subscriptionColumns+" FROM subscriptions WHERE id = ?", id)
	s, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Subscription{}, fmt.Errorf("subscription %d: %w", id, ErrNotFound)
		}
		return Subscription{}, fmt.Errorf("failed to get subscription: %w", err)
	}
	return s, nil
}

// ListSubscriptions returns every subscription in the system.
func (db *DB) ListSubscriptions(ctx context.Context) ([]Subscription, error) {
	rows, err := db.db.QueryContext(ctx, "SELECT "+subscriptionColumns+" FROM subscriptions ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return collectSubscriptions(rows)
}

// ListSubscriptionsByOwner returns the subscriptions belonging to one owner.
func (db *DB) ListSubscriptionsByOwner(ctx context.Context, ownerID int64) ([]Subscription, error) {
	rows, err := db.db.QueryContext(ctx,
		"SELECT "+subscriptionColumns+" FROM subscriptions WHERE owner_id = ? ORDER BY id", ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions for owner %d: %w", ownerID, err)
	}
	return collectSubscriptions(rows)
}

// UpdateSubscriptionWatermark moves the subscription's last-build date forward to t.
//
// The update is conditional so a watermark never moves backwards, even when two
// passes over the same subscription overlap.
// Emits a WatermarkAdvancedEvent when the stored value changed.
func (db *DB) UpdateSubscriptionWatermark(ctx context.Context, id int64, t time.Time) error {
	ts := t.UTC().Format(timeLayout)
	res, err := db.db.ExecContext(ctx, `
		UPDATE subscriptions
		SET last_build_date = ?
		WHERE id = ? AND (last_build_date IS NULL OR last_build_date < ?)
	`, ts, id, ts)
	if err != nil {
		return fmt.Errorf("failed to update subscription watermark: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to determine rows affected: %w", err)
	}
	if affected == 0 {
		// Either the subscription is gone or the stored watermark is already later.
		var exists bool
		if err := db.db.QueryRowContext(ctx,
			"SELECT EXISTS (SELECT 1 FROM subscriptions WHERE id = ?)", id).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check subscription: %w", err)
		}
		if !exists {
			return fmt.Errorf("subscription %d: %w", id, ErrNotFound)
		}
		return nil
	}

	db.emit(WatermarkAdvancedEvent{SubscriptionID: id, Watermark: IngestedAt(t)})
	return nil
}

func (db *DB) DeleteSubscription(ctx context.Context, id int64) error {
	res, err := db.db.ExecContext(ctx, "DELETE FROM subscriptions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to determine rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("subscription %d: %w", id, ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row scanner) (Subscription, error) {
	var s Subscription
	var lastBuild sql.NullString
	if err := row.Scan(&s.ID, &s.Name, &s.URL, &s.OwnerID, &s.CollectionID, &lastBuild, &s.CreatedAt); err != nil {
		return Subscription{}, err
	}
	s.LastBuild = NeverIngested()
	if lastBuild.Valid && lastBuild.String != "" {
		t, err := time.Parse(timeLayout, lastBuild.String)
		if err != nil {
			return Subscription{}, fmt.Errorf("invalid last_build_date %q: %w", lastBuild.String, err)
		}
		s.LastBuild = IngestedAt(t)
	}
	return s, nil
}

func collectSubscriptions(rows *sql.Rows) ([]Subscription, error) {
	defer func() {
		if err := rows.Close(); err != nil {
			log.Printf("failed to close rows: %v", err)
		}
	}()

	var out []Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate subscriptions: %w", err)
	}
	return out, nil
}
