package chainstream

// minTrackedBlocks is the floor for a tracked window's capacity: one ancestor
// plus at least one descendant. Caller-supplied capacities below this are
// clamped, not rejected.
const minTrackedBlocks = 2

// window is the size-bounded, ordered sequence of light block identities a
// stream retains to detect continuity and locate reorg ancestors. Entries are
// ordered by ascending number and chain-linked (each entry's parent hash
// equals the previous entry's hash), except immediately after a reset.
//
// A window is owned exclusively by the stream loop that created it and must
// never be shared.
type window struct {
	capacity int
	entries  []LightBlock
}

// newWindow creates an empty window, clamping capacity to the floor of 2.
func newWindow(capacity int) *window {
	if capacity < minTrackedBlocks {
		capacity = minTrackedBlocks
	}

	return &window{
		capacity: capacity,
		entries:  make([]LightBlock, 0, capacity),
	}
}

// append adds a block identity at the newest end, trimming the oldest entries
// until the window is back within capacity.
func (w *window) append(b LightBlock) {
	w.entries = append(w.entries, b)
	if overflow := len(w.entries) - w.capacity; overflow > 0 {
		w.entries = append(w.entries[:0], w.entries[overflow:]...)
	}
}

// head returns the newest tracked entry, reporting false when the window is
// empty.
func (w *window) head() (LightBlock, bool) {
	if len(w.entries) == 0 {
		return LightBlock{}, false
	}
	return w.entries[len(w.entries)-1], true
}

// matchesHead reports whether a candidate block whose parent hash is
// parentHash extends the current head. This is the fast-path "no reorg"
// continuity check.
func (w *window) matchesHead(parentHash string) bool {
	head, ok := w.head()
	return ok && head.Hash == parentHash
}

// indexOfHash returns the position of the entry with the given hash, or -1.
func (w *window) indexOfHash(hash string) int {
	for i, e := range w.entries {
		if e.Hash == hash {
			return i
		}
	}
	return -1
}

// truncateAfter removes every entry with a number greater than the ancestor's.
// It is used during reorg recovery before appending the replacing segment.
func (w *window) truncateAfter(ancestor LightBlock) {
	for i, e := range w.entries {
		if e.Number > ancestor.Number {
			w.entries = w.entries[:i]
			return
		}
	}
}

// removedFrom returns the entries with number >= from, newest-first, and
// drops them from the window. Used when a push-mode reorg notice names the
// first replaced number directly.
func (w *window) removedFrom(from uint64) []LightBlock {
	cut := len(w.entries)
	for i, e := range w.entries {
		if e.Number >= from {
			cut = i
			break
		}
	}

	removed := make([]LightBlock, 0, len(w.entries)-cut)
	for i := len(w.entries) - 1; i >= cut; i-- {
		removed = append(removed, w.entries[i])
	}

	w.entries = w.entries[:cut]
	return removed
}

func (w *window) len() int {
	return len(w.entries)
}
