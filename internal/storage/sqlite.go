package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"kufar_bot/internal/model"
	"kufar_bot/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// SetFilterURL saves the chat's search URL, creating the subscriber row if needed.
func (s *SQLite) SetFilterURL(ctx context.Context, chatID int64, url string) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subscribers (chat_id, filter_url, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(chat_id) DO UPDATE SET filter_url = excluded.filter_url`,
		chatID, url, now,
	)
	if err != nil {
		return fmt.Errorf("set filter url: %w", err)
	}
	return nil
}

// ClearFilterURL removes the chat's saved search URL, keeping the subscriber row.
func (s *SQLite) ClearFilterURL(ctx context.Context, chatID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE subscribers SET filter_url = NULL WHERE chat_id = ?`, chatID,
	)
	if err != nil {
		return fmt.Errorf("clear filter url: %w", err)
	}
	return nil
}

// GetSubscriber returns a single subscriber by chat ID.
func (s *SQLite) GetSubscriber(ctx context.Context, chatID int64) (*model.Subscriber, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT chat_id, filter_url, created_at FROM subscribers WHERE chat_id = ?`, chatID,
	)
	return scanSubscriber(row)
}

// ListSubscribed returns all subscribers with a saved search URL.
func (s *SQLite) ListSubscribed(ctx context.Context) ([]model.Subscriber, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chat_id, filter_url, created_at FROM subscribers
		 WHERE filter_url IS NOT NULL ORDER BY chat_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query subscribers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var subs []model.Subscriber
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

// WasSent reports whether the listing was already delivered to the chat.
func (s *SQLite) WasSent(ctx context.Context, kufarID, chatID int64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM deliveries WHERE kufar_id = ? AND chat_id = ?`,
		kufarID, chatID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check delivery: %w", err)
	}
	return count > 0, nil
}

// MarkSent upserts the listing document and records the delivery to the chat.
// The delivery insert is idempotent, so an existing flag is never cleared and
// other recipients' flags are untouched.
func (s *SQLite) MarkSent(ctx context.Context, listing *model.Listing, chatID int64) error {
	imagesJSON, err := json.Marshal(listing.Images)
	if err != nil {
		return fmt.Errorf("marshal images: %w", err)
	}

	now := time.Now().UTC().Format(timeLayout)
	var listTime *string
	if !listing.ListTime.IsZero() {
		v := listing.ListTime.UTC().Format(timeLayout)
		listTime = &v
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO listings (kufar_id, subject, price_byn, price_usd, rooms, list_time,
		                       company_ad, contact_name, phone, ad_link, images,
		                       latitude, longitude, first_seen_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(kufar_id) DO UPDATE SET
		   subject = excluded.subject,
		   price_byn = excluded.price_byn,
		   price_usd = excluded.price_usd,
		   rooms = excluded.rooms,
		   list_time = excluded.list_time,
		   company_ad = excluded.company_ad,
		   contact_name = excluded.contact_name,
		   phone = excluded.phone,
		   ad_link = excluded.ad_link,
		   images = excluded.images,
		   latitude = excluded.latitude,
		   longitude = excluded.longitude`,
		listing.KufarID, listing.Subject, listing.PriceBYN, listing.PriceUSD,
		listing.Rooms, listTime, boolToInt(listing.CompanyAd), listing.ContactName,
		listing.Phone, listing.AdLink, string(imagesJSON),
		listing.Latitude, listing.Longitude, now,
	)
	if err != nil {
		return fmt.Errorf("upsert listing: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO deliveries (kufar_id, chat_id, sent_at) VALUES (?, ?, ?)`,
		listing.KufarID, chatID, now,
	)
	if err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}

	return tx.Commit()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSubscriber(row scannable) (*model.Subscriber, error) {
	var sub model.Subscriber
	var filterURL, created sql.NullString
	err := row.Scan(&sub.ChatID, &filterURL, &created)
	if err != nil {
		return nil, fmt.Errorf("scan subscriber: %w", err)
	}
	if filterURL.Valid {
		sub.FilterURL = &filterURL.String
	}
	if created.Valid {
		sub.CreatedAt, _ = time.Parse(timeLayout, created.String)
	}
	return &sub, nil
}
