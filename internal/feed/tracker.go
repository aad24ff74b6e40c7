package feed

import (
	"sync/atomic"

	"github.com/adi-253/chatfeed/internal/models"
)

// Tracker holds the watermark: the highest message ID rendered so far in a
// thread view. It doubles as the dedup filter and the poll cursor.
//
// A message counts as already rendered when its ID is at or below the
// watermark. That assumes the backend assigns IDs sequentially; a lower ID
// delivered after a higher one is dropped.
type Tracker struct {
	watermark atomic.Int64
}

// NewTracker returns a tracker seeded with the IDs already present in the
// initial view.
func NewTracker(seed ...models.ID) *Tracker {
	t := &Tracker{}
	t.Seed(seed...)
	return t
}

// Seed raises the watermark to cover ids.
func (t *Tracker) Seed(ids ...models.ID) {
	for _, id := range ids {
		t.raise(id)
	}
}

// ShouldRender reports whether m has not been rendered yet.
func (t *Tracker) ShouldRender(m models.Message) bool {
	return m.ID > t.Watermark()
}

// Observe records m as rendered.
func (t *Tracker) Observe(m models.Message) {
	t.raise(m.ID)
}

// Watermark returns the current watermark. Safe for concurrent use.
func (t *Tracker) Watermark() models.ID {
	return models.ID(t.watermark.Load())
}

func (t *Tracker) raise(id models.ID) {
	for {
		cur := t.watermark.Load()
		if int64(id) <= cur || t.watermark.CompareAndSwap(cur, int64(id)) {
			return
		}
	}
}
