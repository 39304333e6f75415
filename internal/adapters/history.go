package adapters

// HistoryCap bounds every per-device history ring. Once full, the
// oldest entry is evicted first (FIFO).
const HistoryCap = 100

// History is a bounded FIFO ring of readings for trend statistics.
// Not safe for concurrent use; the owning adapter serialises access.
type History[T any] struct {
	entries []T
}

// Append adds a reading, evicting the oldest once the cap is reached.
func (h *History[T]) Append(v T) {
	if len(h.entries) >= HistoryCap {
		copy(h.entries, h.entries[1:])
		h.entries[len(h.entries)-1] = v
		return
	}
	h.entries = append(h.entries, v)
}

// Items returns a copy of the entries, oldest first.
func (h *History[T]) Items() []T {
	items := make([]T, len(h.entries))
	copy(items, h.entries)
	return items
}

// Len returns the number of stored entries.
func (h *History[T]) Len() int {
	return len(h.entries)
}

// Latest returns the most recent entry, or false when empty.
func (h *History[T]) Latest() (T, bool) {
	if len(h.entries) == 0 {
		var zero T
		return zero, false
	}
	return h.entries[len(h.entries)-1], true
}

// Restore replaces the ring contents from a persisted snapshot,
// trimming to the cap from the oldest end if needed.
func (h *History[T]) Restore(items []T) {
	if len(items) > HistoryCap {
		items = items[len(items)-HistoryCap:]
	}
	h.entries = make([]T, len(items))
	copy(h.entries, items)
}
