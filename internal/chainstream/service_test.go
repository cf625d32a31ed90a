package chainstream

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gabapcia/starkstream/internal/pkg/logger"

	"github.com/stretchr/testify/require"
)

func init() {
	// Initialize logger for tests to prevent nil pointer dereference
	_ = logger.Init(logger.WithLevel("error"))
}

// newTestBlock builds a block with explicit identity, optionally carrying
// transactions.
func newTestBlock(number uint64, hash, parentHash string, txs ...Transaction) Block {
	return Block{
		Hash:         hash,
		ParentHash:   parentHash,
		Number:       number,
		Timestamp:    1700000000 + number,
		Transactions: txs,
	}
}

// linkedChain builds count chain-linked blocks starting at start, with hashes
// derived from the fork label (e.g. "0xa_main" for block 10 of fork "main").
func linkedChain(start uint64, count int, fork, parentHash string) []Block {
	blocks := make([]Block, 0, count)
	parent := parentHash
	for i := range count {
		number := start + uint64(i)
		hash := fmt.Sprintf("0x%x_%s", number, fork)
		blocks = append(blocks, newTestBlock(number, hash, parent))
		parent = hash
	}
	return blocks
}

// fakeBlockchain is an in-memory chain the tests mutate to simulate head
// advances and reorganizations.
type fakeBlockchain struct {
	mu        sync.Mutex
	head      uint64
	blocks    map[uint64]Block
	headErr   error
	blockErrs map[uint64]error
}

var _ Blockchain = (*fakeBlockchain)(nil)

func newFakeBlockchain() *fakeBlockchain {
	return &fakeBlockchain{
		blocks:    make(map[uint64]Block),
		blockErrs: make(map[uint64]error),
	}
}

// setChain replaces the canonical chain segment covered by blocks and moves
// the head.
func (f *fakeBlockchain) setChain(head uint64, blocks ...Block) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.head = head
	for _, b := range blocks {
		f.blocks[b.Number] = b
	}
}

func (f *fakeBlockchain) LatestBlockNumber(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.headErr != nil {
		return 0, f.headErr
	}
	return f.head, nil
}

func (f *fakeBlockchain) BlockByNumber(ctx context.Context, number uint64, include IncludeMode) (Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.blockErrs[number]; err != nil {
		return Block{}, err
	}

	block, ok := f.blocks[number]
	if !ok {
		return Block{}, fmt.Errorf("block %d not found", number)
	}
	return block, nil
}

// receiveEvent pulls the next value off ch, failing the test after a timeout.
func receiveEvent[T any](t *testing.T, ch <-chan T) T {
	t.Helper()

	select {
	case event, ok := <-ch:
		require.True(t, ok, "channel closed before expected event")
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		panic("unreachable")
	}
}

// requireClosed asserts that ch closes without delivering another value.
func requireClosed[T any](t *testing.T, ch <-chan T) {
	t.Helper()

	select {
	case _, ok := <-ch:
		require.False(t, ok, "expected channel to be closed")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}
