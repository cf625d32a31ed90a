package txstream

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gabapcia/starkstream/internal/chainstream"
	"github.com/gabapcia/starkstream/internal/pkg/logger"

	"github.com/stretchr/testify/require"
)

func init() {
	// Initialize logger for tests to prevent nil pointer dereference
	_ = logger.Init(logger.WithLevel("error"))
}

func makeTx(hash, txType, sender string) chainstream.Transaction {
	return chainstream.Transaction{
		Hash:    hash,
		Type:    txType,
		Sender:  sender,
		Version: "0x3",
	}
}

// txBlock builds a block carrying full transactions, as produced by a watch
// running with the transactions include mode.
func txBlock(number uint64, hash, parentHash string, txs ...chainstream.Transaction) chainstream.Block {
	return chainstream.Block{
		Hash:         hash,
		ParentHash:   parentHash,
		Number:       number,
		Timestamp:    1700000000 + number,
		Transactions: txs,
	}
}

// fakeBlockStreamer hands WatchConfirmed a scripted watch-event channel and
// records the config it was asked for.
type fakeBlockStreamer struct {
	ch  chan chainstream.WatchEvent
	err error
	cfg chainstream.WatchConfig
}

var _ BlockStreamer = (*fakeBlockStreamer)(nil)

func newFakeBlockStreamer() *fakeBlockStreamer {
	return &fakeBlockStreamer{ch: make(chan chainstream.WatchEvent)}
}

func (f *fakeBlockStreamer) Watch(ctx context.Context, cfg chainstream.WatchConfig) (<-chan chainstream.WatchEvent, error) {
	f.cfg = cfg
	if f.err != nil {
		return nil, f.err
	}
	return f.ch, nil
}

// fakeTransactionFetcher resolves hashes from an in-memory map.
type fakeTransactionFetcher struct {
	mu           sync.Mutex
	transactions map[string]chainstream.Transaction
	errs         map[string]error
	calls        []string
}

var _ TransactionFetcher = (*fakeTransactionFetcher)(nil)

func newFakeTransactionFetcher(txs ...chainstream.Transaction) *fakeTransactionFetcher {
	f := &fakeTransactionFetcher{
		transactions: make(map[string]chainstream.Transaction),
		errs:         make(map[string]error),
	}
	for _, tx := range txs {
		f.transactions[tx.Hash] = tx
	}
	return f
}

func (f *fakeTransactionFetcher) TransactionByHash(ctx context.Context, hash string) (chainstream.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, hash)

	if err := f.errs[hash]; err != nil {
		return chainstream.Transaction{}, err
	}

	tx, ok := f.transactions[hash]
	if !ok {
		return chainstream.Transaction{}, fmt.Errorf("transaction %s not found", hash)
	}
	return tx, nil
}

func (f *fakeTransactionFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakePendingSource is a scripted pending-transaction subscription.
type fakePendingSource struct {
	ch  chan PendingNotice
	err error
}

var _ PendingSource = (*fakePendingSource)(nil)

func newFakePendingSource() *fakePendingSource {
	return &fakePendingSource{ch: make(chan PendingNotice)}
}

func (f *fakePendingSource) SubscribePendingTransactions(ctx context.Context) (<-chan PendingNotice, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.ch, nil
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
