// Package txstream tracks transactions on top of the block stream engine: a
// deduplicated, filtered stream of pending transactions and a
// confirmation-depth-gated stream of confirmed transactions that survives
// chain reorganizations.
package txstream

import (
	"context"

	"github.com/gabapcia/starkstream/internal/chainstream"
	"github.com/gabapcia/starkstream/internal/pkg/validation"
)

const (
	pendingChannelBufferSize   = 10
	confirmedChannelBufferSize = 10
)

// BlockStreamer is the slice of the block stream engine this package relies
// on. Consuming Watch gives the confirmed stream the exact same block-by-block
// advance and reorg resolution as the block stream itself.
type BlockStreamer interface {
	Watch(ctx context.Context, cfg chainstream.WatchConfig) (<-chan chainstream.WatchEvent, error)
}

// TransactionFetcher resolves a transaction hash to its full transaction via
// the chain client.
type TransactionFetcher interface {
	TransactionByHash(ctx context.Context, hash string) (chainstream.Transaction, error)
}

// PendingNotice is one notification from a pending-transaction subscription.
// Sources that deliver full transaction details set Transaction; otherwise
// only Hash is set and the engine resolves it.
type PendingNotice struct {
	Hash        string
	Transaction *chainstream.Transaction
	Err         error
}

// PendingSource supplies a subscription yielding pending-transaction notices.
// The returned channel is closed when ctx is canceled; the implementation
// owns the underlying connection and must unsubscribe and disconnect on every
// exit path.
type PendingSource interface {
	SubscribePendingTransactions(ctx context.Context) (<-chan PendingNotice, error)
}

// Service is the transaction stream engine.
type Service struct {
	blocks       BlockStreamer
	transactions TransactionFetcher
	pending      PendingSource
}

type config struct {
	pending PendingSource
}

// Option customizes a Service created by New.
type Option func(*config)

// WithPendingSource enables WatchPending by providing the subscription that
// feeds it.
func WithPendingSource(ps PendingSource) Option {
	return func(c *config) {
		c.pending = ps
	}
}

// New creates a transaction stream engine on top of a block streamer and a
// transaction fetcher.
func New(blocks BlockStreamer, transactions TransactionFetcher, opts ...Option) *Service {
	cfg := config{}
	for _, opt := range opts {
		opt(&cfg)
	}

	validation.Init()

	return &Service{
		blocks:       blocks,
		transactions: transactions,
		pending:      cfg.pending,
	}
}
