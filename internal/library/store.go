package library

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/vodvault/vodvault/internal/domain"
)

type errKey struct {
	id    domain.ItemID
	phase domain.ErrorPhase
}

// Store holds the ordered set of library items and the per-item error log.
// Readers get copies; the only write path is patch application, so no reader
// ever observes a partially mutated item.
type Store struct {
	mu     sync.RWMutex
	items  []*domain.Item
	index  map[domain.ItemID]int
	errs   map[errKey]domain.ErrorRecord
	repo   Repository
	logger *slog.Logger
}

// NewStore creates a store backed by repo. A nil repo keeps the store purely
// in memory, which the tests rely on.
func NewStore(repo Repository, logger *slog.Logger) *Store {
	return &Store{
		index:  make(map[domain.ItemID]int),
		errs:   make(map[errKey]domain.ErrorRecord),
		repo:   repo,
		logger: logger,
	}
}

// LoadPersisted populates the store from the repository.
func (s *Store) LoadPersisted(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}

	items, err := s.repo.LoadItems(ctx)
	if err != nil {
		return err
	}
	recs, err := s.repo.LoadErrors(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = items
	s.index = make(map[domain.ItemID]int, len(items))
	for i, item := range items {
		s.index[item.ID] = i
	}
	s.errs = make(map[errKey]domain.ErrorRecord, len(recs))
	for _, rec := range recs {
		s.errs[errKey{rec.ItemID, rec.Phase}] = rec
	}

	s.logger.Info("library loaded", "items", len(items), "error_records", len(recs))
	return nil
}

// Get returns a copy of the item.
func (s *Store) Get(id domain.ItemID) (domain.Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[id]
	if !ok {
		return domain.Item{}, false
	}
	return *s.items[i], true
}

// Snapshot returns copies of all items in insertion order.
func (s *Store) Snapshot() []domain.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Item, len(s.items))
	for i, item := range s.items {
		out[i] = *item
	}
	return out
}

// Len returns the number of items.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Add inserts a new item. Adding an id that already exists is a no-op and
// returns false.
func (s *Store) Add(ctx context.Context, item *domain.Item) (bool, error) {
	s.mu.Lock()
	if _, ok := s.index[item.ID]; ok {
		s.mu.Unlock()
		return false, nil
	}
	cp := *item
	s.items = append(s.items, &cp)
	s.index[cp.ID] = len(s.items) - 1
	s.mu.Unlock()

	if s.repo != nil {
		if err := s.repo.SaveItem(ctx, &cp); err != nil {
			return true, err
		}
	}
	return true, nil
}

// Apply replaces the item's fields with the patch contents. The replacement
// is whole-object: the stored pointer is swapped for a patched copy.
func (s *Store) Apply(ctx context.Context, id domain.ItemID, patch domain.ItemPatch) error {
	if patch.IsZero() {
		return nil
	}

	s.mu.Lock()
	i, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return domain.ErrItemNotFound
	}
	cp := *s.items[i]
	patch.ApplyTo(&cp)
	s.items[i] = &cp
	s.mu.Unlock()

	if s.repo != nil {
		if err := s.repo.SaveItem(ctx, &cp); err != nil {
			s.logger.Error("persist item patch", "item_id", id, "error", err)
			return err
		}
	}
	return nil
}

// Remove deletes an item and its error records.
func (s *Store) Remove(ctx context.Context, id domain.ItemID) error {
	s.mu.Lock()
	i, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return domain.ErrItemNotFound
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	delete(s.index, id)
	for j := i; j < len(s.items); j++ {
		s.index[s.items[j].ID] = j
	}
	for _, phase := range []domain.ErrorPhase{domain.PhaseVideo, domain.PhaseComments, domain.PhaseMetadata} {
		delete(s.errs, errKey{id, phase})
	}
	s.mu.Unlock()

	if s.repo != nil {
		return s.repo.DeleteItem(ctx, id)
	}
	return nil
}

// RecordError stores an error record, superseding any older record for the
// same (item, phase).
func (s *Store) RecordError(ctx context.Context, id domain.ItemID, phase domain.ErrorPhase, details string, missing bool) {
	rec := domain.ErrorRecord{
		ItemID:    id,
		Phase:     phase,
		Details:   details,
		Missing:   missing,
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	s.errs[errKey{id, phase}] = rec
	s.mu.Unlock()

	if s.repo != nil {
		if err := s.repo.SaveError(ctx, rec); err != nil {
			s.logger.Error("persist error record", "item_id", id, "phase", phase, "error", err)
		}
	}
}

// ClearError removes the record for (item, phase) if present.
func (s *Store) ClearError(ctx context.Context, id domain.ItemID, phase domain.ErrorPhase) {
	s.mu.Lock()
	_, present := s.errs[errKey{id, phase}]
	delete(s.errs, errKey{id, phase})
	s.mu.Unlock()

	if present && s.repo != nil {
		if err := s.repo.DeleteError(ctx, id, phase); err != nil {
			s.logger.Error("delete error record", "item_id", id, "phase", phase, "error", err)
		}
	}
}

// ErrorFor returns the record for (item, phase).
func (s *Store) ErrorFor(id domain.ItemID, phase domain.ErrorPhase) (domain.ErrorRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.errs[errKey{id, phase}]
	return rec, ok
}

// HasMissingMarker reports whether an integrity-drift record exists for
// (item, phase).
func (s *Store) HasMissingMarker(id domain.ItemID, phase domain.ErrorPhase) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.errs[errKey{id, phase}]
	return ok && rec.Missing
}

// HasAnyMissingMarker reports whether any integrity-drift record exists.
func (s *Store) HasAnyMissingMarker() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.errs {
		if rec.Missing {
			return true
		}
	}
	return false
}

// ErrorsByItem aggregates all records per item, newest item first. Two items
// sharing a title still aggregate separately: the key is the id, the title
// is display-only.
func (s *Store) ErrorsByItem() []domain.ItemErrors {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byItem := make(map[domain.ItemID]*domain.ItemErrors)
	for _, rec := range s.errs {
		agg, ok := byItem[rec.ItemID]
		if !ok {
			title := rec.ItemID.String()
			if i, found := s.index[rec.ItemID]; found {
				title = s.items[i].Title
			}
			agg = &domain.ItemErrors{ItemID: rec.ItemID, Title: title}
			byItem[rec.ItemID] = agg
		}
		agg.Records = append(agg.Records, rec)
		if rec.CreatedAt.After(agg.Latest) {
			agg.Latest = rec.CreatedAt
		}
	}

	out := make([]domain.ItemErrors, 0, len(byItem))
	for _, agg := range byItem {
		sort.Slice(agg.Records, func(a, b int) bool {
			return agg.Records[a].CreatedAt.After(agg.Records[b].CreatedAt)
		})
		out = append(out, *agg)
	}
	sort.Slice(out, func(a, b int) bool {
		return out[a].Latest.After(out[b].Latest)
	})
	return out
}

// Close closes the backing repository.
func (s *Store) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}
