package txstream

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gabapcia/starkstream/internal/chainstream"
	"github.com/gabapcia/starkstream/internal/pkg/types"
	"github.com/gabapcia/starkstream/internal/pkg/x/chflow"
)

// defaultSeenSetCapacity bounds the dedup record for pending-transaction
// hashes. Oldest entries are evicted first once the bound is reached.
const defaultSeenSetCapacity = 8192

// ErrNoPendingSource is returned by WatchPending when the service was built
// without a pending-transaction subscription source.
var ErrNoPendingSource = errors.New("no pending transaction source configured")

// PendingConfig filters the pending-transaction stream. Empty slices match
// everything; FromSenders uses OR semantics (any listed sender matches).
type PendingConfig struct {
	FromSenders []string // allowed sender addresses
	Types       []string // allowed transaction types
}

// TransactionEvent is a single pending transaction that passed deduplication
// and filtering. If Err is set the event is terminal and the channel closes
// after it.
type TransactionEvent struct {
	Transaction chainstream.Transaction
	Err         error
}

// seenSet is the bounded dedup record for pending-transaction hashes:
// membership via a hash set, eviction order via a FIFO queue.
type seenSet struct {
	capacity int
	order    []string
	members  types.Set[string]
}

func newSeenSet(capacity int) *seenSet {
	return &seenSet{
		capacity: capacity,
		order:    make([]string, 0, capacity),
		members:  types.NewSet[string](),
	}
}

// remember records the hash, evicting the oldest entry when full. It reports
// false if the hash was already present.
func (s *seenSet) remember(hash string) bool {
	if s.members.Contains(hash) {
		return false
	}

	if len(s.order) >= s.capacity {
		s.members.Delete(s.order[0])
		s.order = s.order[1:]
	}

	s.order = append(s.order, hash)
	s.members.Add(hash)
	return true
}

// WatchPending subscribes to pending-transaction notices, drops duplicate
// hashes, resolves each new hash to a full transaction, applies the filter,
// and emits matching transactions until ctx is canceled or the stream fails.
func (s *Service) WatchPending(ctx context.Context, cfg PendingConfig) (<-chan TransactionEvent, error) {
	if s.pending == nil {
		return nil, ErrNoPendingSource
	}

	noticesCh, err := s.pending.SubscribePendingTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("subscribe to pending transactions: %w", err)
	}

	filter := newPendingFilter(cfg)

	eventsCh := make(chan TransactionEvent, pendingChannelBufferSize)
	go func() {
		defer close(eventsCh)
		s.watchPending(ctx, filter, noticesCh, eventsCh)
	}()

	return eventsCh, nil
}

func (s *Service) watchPending(ctx context.Context, filter pendingFilter, noticesCh <-chan PendingNotice, eventsCh chan<- TransactionEvent) {
	seen := newSeenSet(defaultSeenSetCapacity)

	for {
		notice, ok := chflow.Receive(ctx, noticesCh)
		if !ok {
			return
		}

		if notice.Err != nil {
			err := fmt.Errorf("pending transaction subscription: %w", notice.Err)
			chflow.Send(ctx, eventsCh, TransactionEvent{Err: err})
			return
		}

		hash := notice.Hash
		if notice.Transaction != nil {
			hash = notice.Transaction.Hash
		}

		if !seen.remember(hash) {
			continue
		}

		var tx chainstream.Transaction
		if notice.Transaction != nil {
			tx = *notice.Transaction
		} else {
			fetched, err := s.transactions.TransactionByHash(ctx, hash)
			if err != nil {
				err = fmt.Errorf("fetch transaction %s: %w", hash, err)
				chflow.Send(ctx, eventsCh, TransactionEvent{Err: err})
				return
			}
			tx = fetched
		}

		if !filter.matches(tx) {
			continue
		}

		if ok := chflow.Send(ctx, eventsCh, TransactionEvent{Transaction: tx}); !ok {
			return
		}
	}
}

// pendingFilter holds the normalized allow-lists from a PendingConfig.
type pendingFilter struct {
	senders types.Set[string]
	types   types.Set[string]
}

func newPendingFilter(cfg PendingConfig) pendingFilter {
	f := pendingFilter{
		senders: types.NewSet[string](),
		types:   types.NewSet[string](),
	}
	for _, sender := range cfg.FromSenders {
		f.senders.Add(strings.ToLower(sender))
	}
	for _, txType := range cfg.Types {
		f.types.Add(strings.ToUpper(txType))
	}
	return f
}

func (f pendingFilter) matches(tx chainstream.Transaction) bool {
	if len(f.senders) > 0 && !f.senders.Contains(strings.ToLower(tx.Sender)) {
		return false
	}

	if len(f.types) > 0 && !f.types.Contains(strings.ToUpper(tx.Type)) {
		return false
	}

	return true
}
