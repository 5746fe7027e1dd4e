package engine

import (
	"time"

	"github.com/vodvault/vodvault/internal/domain"
)

// coalescer buffers item patches so a burst of metadata resolutions turns
// into one store write per item. Merging is last-write-wins per field.
type coalescer struct {
	pending map[domain.ItemID]domain.ItemPatch
	armed   bool
}

func newCoalescer() coalescer {
	return coalescer{pending: make(map[domain.ItemID]domain.ItemPatch)}
}

func (e *Engine) coalesce(id domain.ItemID, patch domain.ItemPatch) {
	if patch.IsZero() {
		return
	}
	e.patches.pending[id] = e.patches.pending[id].Merge(patch)
	if !e.patches.armed {
		e.patches.armed = true
		time.AfterFunc(e.cfg.CoalesceWindow, func() {
			e.postInternal(cmdFlushPatches{})
		})
	}
}

func (e *Engine) flushPatches() {
	e.patches.armed = false
	if len(e.patches.pending) == 0 {
		return
	}
	for id, patch := range e.patches.pending {
		if err := e.store.Apply(e.ctx, id, patch); err != nil {
			e.logger.Error("apply coalesced patch", "item_id", id, "error", err)
		}
	}
	e.patches.pending = make(map[domain.ItemID]domain.ItemPatch)
}
