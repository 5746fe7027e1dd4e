package library

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/vodvault/vodvault/internal/domain"
)

// SQLiteRepository persists the library model in a local SQLite database.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens (and if necessary bootstraps) the database.
func NewSQLiteRepository(path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS items (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			channel TEXT NOT NULL,
			thumbnail TEXT NOT NULL DEFAULT '',
			source_url TEXT NOT NULL,
			download_status TEXT NOT NULL,
			comments_status TEXT NOT NULL,
			metadata_fetched INTEGER NOT NULL DEFAULT 0,
			is_live INTEGER NOT NULL DEFAULT 0,
			live_status TEXT NOT NULL DEFAULT '',
			availability TEXT NOT NULL DEFAULT '',
			added_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_items_added_at ON items(added_at);

		CREATE TABLE IF NOT EXISTS item_errors (
			item_id TEXT NOT NULL,
			phase TEXT NOT NULL,
			details TEXT NOT NULL,
			missing INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			PRIMARY KEY (item_id, phase)
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// LoadItems returns all persisted items in insertion order.
func (r *SQLiteRepository) LoadItems(ctx context.Context) ([]*domain.Item, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, title, channel, thumbnail, source_url, download_status,
		       comments_status, metadata_fetched, is_live, live_status,
		       availability, added_at
		FROM items
		ORDER BY added_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var items []*domain.Item
	for rows.Next() {
		var (
			item            domain.Item
			metadataFetched int
			isLive          int
			addedAt         time.Time
		)
		if err := rows.Scan(
			&item.ID, &item.Title, &item.Channel, &item.Thumbnail,
			&item.SourceURL, &item.DownloadStatus, &item.CommentsStatus,
			&metadataFetched, &isLive, &item.LiveStatus,
			&item.Availability, &addedAt,
		); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		item.MetadataFetched = metadataFetched != 0
		item.IsLive = isLive != 0
		item.AddedAt = addedAt
		items = append(items, &item)
	}
	return items, rows.Err()
}

// SaveItem inserts or replaces one item.
func (r *SQLiteRepository) SaveItem(ctx context.Context, item *domain.Item) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO items (id, title, channel, thumbnail, source_url,
			download_status, comments_status, metadata_fetched, is_live,
			live_status, availability, added_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			channel = excluded.channel,
			thumbnail = excluded.thumbnail,
			source_url = excluded.source_url,
			download_status = excluded.download_status,
			comments_status = excluded.comments_status,
			metadata_fetched = excluded.metadata_fetched,
			is_live = excluded.is_live,
			live_status = excluded.live_status,
			availability = excluded.availability
	`,
		item.ID, item.Title, item.Channel, item.Thumbnail, item.SourceURL,
		item.DownloadStatus, item.CommentsStatus, boolInt(item.MetadataFetched),
		boolInt(item.IsLive), item.LiveStatus, item.Availability, item.AddedAt,
	)
	if err != nil {
		return fmt.Errorf("save item %s: %w", item.ID, err)
	}
	return nil
}

// DeleteItem removes an item and its error records.
func (r *SQLiteRepository) DeleteItem(ctx context.Context, id domain.ItemID) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM item_errors WHERE item_id = ?", id); err != nil {
		return fmt.Errorf("delete item errors %s: %w", id, err)
	}
	if _, err := r.db.ExecContext(ctx, "DELETE FROM items WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete item %s: %w", id, err)
	}
	return nil
}

// LoadErrors returns all persisted error records.
func (r *SQLiteRepository) LoadErrors(ctx context.Context) ([]domain.ErrorRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT item_id, phase, details, missing, created_at
		FROM item_errors
	`)
	if err != nil {
		return nil, fmt.Errorf("query errors: %w", err)
	}
	defer rows.Close()

	var recs []domain.ErrorRecord
	for rows.Next() {
		var (
			rec     domain.ErrorRecord
			missing int
		)
		if err := rows.Scan(&rec.ItemID, &rec.Phase, &rec.Details, &missing, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan error record: %w", err)
		}
		rec.Missing = missing != 0
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// SaveError inserts or replaces the record for (item, phase).
func (r *SQLiteRepository) SaveError(ctx context.Context, rec domain.ErrorRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO item_errors (item_id, phase, details, missing, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(item_id, phase) DO UPDATE SET
			details = excluded.details,
			missing = excluded.missing,
			created_at = excluded.created_at
	`, rec.ItemID, rec.Phase, rec.Details, boolInt(rec.Missing), rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("save error record %s/%s: %w", rec.ItemID, rec.Phase, err)
	}
	return nil
}

// DeleteError removes the record for (item, phase).
func (r *SQLiteRepository) DeleteError(ctx context.Context, id domain.ItemID, phase domain.ErrorPhase) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM item_errors WHERE item_id = ? AND phase = ?", id, phase)
	if err != nil {
		return fmt.Errorf("delete error record %s/%s: %w", id, phase, err)
	}
	return nil
}

// Close closes the database.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
