package txstream

import (
	"context"
	"time"

	"github.com/gabapcia/starkstream/internal/chainstream"
	"github.com/gabapcia/starkstream/internal/pkg/logger"
	"github.com/gabapcia/starkstream/internal/pkg/validation"
	"github.com/gabapcia/starkstream/internal/pkg/x/chflow"
)

// ConfirmedConfig configures a confirmation-depth-gated transaction stream
// starting at FromBlock.
type ConfirmedConfig struct {
	// FromBlock is the first block whose transactions are tracked.
	FromBlock int64 `validate:"min=0"`

	// Confirmations is the inclusive depth a block must reach before its
	// transactions are emitted: head - block.number + 1 >= Confirmations.
	Confirmations int `validate:"min=1"`

	// PollInterval is passed through to the underlying watch (default 3s).
	PollInterval time.Duration `validate:"min=0"`

	// MaxTrackedBlocks bounds the underlying watch's reorg window
	// (default 64, floor 2).
	MaxTrackedBlocks int
}

// ConfirmedTransactionEvent is a single transaction that reached the
// configured confirmation depth. If Err is set the event is terminal and the
// channel closes after it.
type ConfirmedTransactionEvent struct {
	Transaction   chainstream.Transaction
	BlockNumber   uint64 // block the transaction was included in
	BlockHash     string // hash of that block
	Confirmations uint64 // confirmation count at emission time
	Err           error
}

// pendingBlock is a block whose transactions are queued awaiting
// confirmations.
type pendingBlock struct {
	light        chainstream.LightBlock
	transactions []chainstream.Transaction
}

// confirmationQueue holds blocks awaiting sufficient confirmations, ordered
// ascending by number.
type confirmationQueue struct {
	blocks []pendingBlock
}

// push appends a block at the tail. Blocks arrive in ascending order from the
// watch stream, so no sorting is needed.
func (q *confirmationQueue) push(b chainstream.Block) {
	q.blocks = append(q.blocks, pendingBlock{
		light:        b.Light(),
		transactions: b.Transactions,
	})
}

// dropFrom removes every queued block with number >= from. Used when a reorg
// invalidates the tail of the queue; the replacing blocks are re-pushed so
// their transactions are re-emitted once confirmed again.
func (q *confirmationQueue) dropFrom(from uint64) {
	for i, b := range q.blocks {
		if b.light.Number >= from {
			q.blocks = q.blocks[:i]
			return
		}
	}
}

// ripe pops and returns the queued blocks that reached the confirmation
// threshold at the given head, in ascending block order.
func (q *confirmationQueue) ripe(head uint64, confirmations int) []pendingBlock {
	cut := 0
	for _, b := range q.blocks {
		if b.light.Number > head || head-b.light.Number+1 < uint64(confirmations) {
			break
		}
		cut++
	}

	ready := q.blocks[:cut]
	q.blocks = q.blocks[cut:]
	return ready
}

// WatchConfirmed follows the chain from FromBlock, enqueues each canonical
// block's transactions, and emits them one transaction at a time (in block
// order) once the block is Confirmations deep under the chain head. On a
// reorg the queued state for the removed range is discarded and the replacing
// blocks are reprocessed, so their possibly different transactions are
// re-emitted in block order.
func (s *Service) WatchConfirmed(ctx context.Context, cfg ConfirmedConfig) (<-chan ConfirmedTransactionEvent, error) {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = chainstream.DefaultPollInterval
	}
	if cfg.MaxTrackedBlocks == 0 {
		cfg.MaxTrackedBlocks = chainstream.DefaultMaxTrackedBlocks
	}
	if err := validation.Validate(cfg); err != nil {
		return nil, err
	}

	watchCh, err := s.blocks.Watch(ctx, chainstream.WatchConfig{
		FromBlock:        &cfg.FromBlock,
		Include:          chainstream.IncludeTransactions,
		PollInterval:     cfg.PollInterval,
		MaxTrackedBlocks: cfg.MaxTrackedBlocks,
	})
	if err != nil {
		return nil, err
	}

	eventsCh := make(chan ConfirmedTransactionEvent, confirmedChannelBufferSize)
	go func() {
		defer close(eventsCh)
		s.watchConfirmed(ctx, cfg, watchCh, eventsCh)
	}()

	return eventsCh, nil
}

func (s *Service) watchConfirmed(ctx context.Context, cfg ConfirmedConfig, watchCh <-chan chainstream.WatchEvent, eventsCh chan<- ConfirmedTransactionEvent) {
	queue := new(confirmationQueue)

	for {
		event, ok := chflow.Receive(ctx, watchCh)
		if !ok {
			return
		}

		switch {
		case event.Err != nil:
			chflow.Send(ctx, eventsCh, ConfirmedTransactionEvent{Err: event.Err})
			return

		case event.Reorg != nil:
			if len(event.Reorg.Added) > 0 {
				queue.dropFrom(event.Reorg.Added[0].Number)
			}
			for _, block := range event.Reorg.Added {
				queue.push(block)
			}

			logger.Warn(ctx, "requeued reorged blocks for reconfirmation",
				"reorg.added", len(event.Reorg.Added),
				"chain.head", event.ChainHead,
			)

		default:
			for _, block := range event.Blocks {
				queue.push(block)
			}
		}

		for _, ready := range queue.ripe(event.ChainHead, cfg.Confirmations) {
			confirmations := event.ChainHead - ready.light.Number + 1

			for _, tx := range ready.transactions {
				confirmed := ConfirmedTransactionEvent{
					Transaction:   tx,
					BlockNumber:   ready.light.Number,
					BlockHash:     ready.light.Hash,
					Confirmations: confirmations,
				}
				if ok := chflow.Send(ctx, eventsCh, confirmed); !ok {
					return
				}
			}
		}
	}
}
