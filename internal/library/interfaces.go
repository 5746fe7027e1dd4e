package library

import (
	"context"

	"github.com/vodvault/vodvault/internal/domain"
)

// Repository persists the library model. The store writes through on every
// applied change; implementations must be safe for concurrent use.
type Repository interface {
	// LoadItems returns all persisted items in insertion order.
	LoadItems(ctx context.Context) ([]*domain.Item, error)

	// SaveItem inserts or replaces one item.
	SaveItem(ctx context.Context, item *domain.Item) error

	// DeleteItem removes an item.
	DeleteItem(ctx context.Context, id domain.ItemID) error

	// LoadErrors returns all persisted error records.
	LoadErrors(ctx context.Context) ([]domain.ErrorRecord, error)

	// SaveError inserts or replaces the record for (item, phase).
	SaveError(ctx context.Context, rec domain.ErrorRecord) error

	// DeleteError removes the record for (item, phase).
	DeleteError(ctx context.Context, id domain.ItemID, phase domain.ErrorPhase) error

	// Close releases underlying resources.
	Close() error
}
