package chainstream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWindow(t *testing.T) {
	t.Run("clamps capacity below the floor", func(t *testing.T) {
		w := newWindow(0)
		assert.Equal(t, minTrackedBlocks, w.capacity)

		w = newWindow(1)
		assert.Equal(t, minTrackedBlocks, w.capacity)
	})

	t.Run("keeps capacities at or above the floor", func(t *testing.T) {
		w := newWindow(8)
		assert.Equal(t, 8, w.capacity)
	})
}

func TestWindowAppend(t *testing.T) {
	t.Run("trims the oldest entry once capacity is exceeded", func(t *testing.T) {
		w := newWindow(2)
		w.append(LightBlock{Hash: "0x1", Number: 1})
		w.append(LightBlock{Hash: "0x2", ParentHash: "0x1", Number: 2})
		w.append(LightBlock{Hash: "0x3", ParentHash: "0x2", Number: 3})

		require.Equal(t, 2, w.len())
		assert.Equal(t, "0x2", w.entries[0].Hash)
		assert.Equal(t, "0x3", w.entries[1].Hash)
	})
}

func TestWindowMatchesHead(t *testing.T) {
	t.Run("empty window never matches", func(t *testing.T) {
		w := newWindow(4)
		assert.False(t, w.matchesHead("0x1"))
	})

	t.Run("matches only the newest entry", func(t *testing.T) {
		w := newWindow(4)
		w.append(LightBlock{Hash: "0x1", Number: 1})
		w.append(LightBlock{Hash: "0x2", ParentHash: "0x1", Number: 2})

		assert.True(t, w.matchesHead("0x2"))
		assert.False(t, w.matchesHead("0x1"))
	})
}

func TestWindowTruncateAfter(t *testing.T) {
	w := newWindow(4)
	w.append(LightBlock{Hash: "0x1", Number: 1})
	w.append(LightBlock{Hash: "0x2", ParentHash: "0x1", Number: 2})
	w.append(LightBlock{Hash: "0x3", ParentHash: "0x2", Number: 3})

	w.truncateAfter(LightBlock{Hash: "0x1", Number: 1})

	require.Equal(t, 1, w.len())
	head, ok := w.head()
	require.True(t, ok)
	assert.Equal(t, "0x1", head.Hash)
}

func TestWindowRemovedFrom(t *testing.T) {
	t.Run("returns dropped entries newest-first", func(t *testing.T) {
		w := newWindow(4)
		w.append(LightBlock{Hash: "0x1", Number: 1})
		w.append(LightBlock{Hash: "0x2", ParentHash: "0x1", Number: 2})
		w.append(LightBlock{Hash: "0x3", ParentHash: "0x2", Number: 3})

		removed := w.removedFrom(2)

		require.Len(t, removed, 2)
		assert.Equal(t, "0x3", removed[0].Hash)
		assert.Equal(t, "0x2", removed[1].Hash)
		assert.Equal(t, 1, w.len())
	})

	t.Run("dropping everything empties the window", func(t *testing.T) {
		w := newWindow(4)
		w.append(LightBlock{Hash: "0x1", Number: 1})
		w.append(LightBlock{Hash: "0x2", ParentHash: "0x1", Number: 2})

		removed := w.removedFrom(0)

		require.Len(t, removed, 2)
		assert.Equal(t, 0, w.len())
		_, ok := w.head()
		assert.False(t, ok)
	})

	t.Run("numbers above the window drop nothing", func(t *testing.T) {
		w := newWindow(4)
		w.append(LightBlock{Hash: "0x1", Number: 1})

		removed := w.removedFrom(5)

		assert.Empty(t, removed)
		assert.Equal(t, 1, w.len())
	})
}
