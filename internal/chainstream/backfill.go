package chainstream

import (
	"context"
	"fmt"

	"github.com/gabapcia/starkstream/internal/pkg/validation"
	"github.com/gabapcia/starkstream/internal/pkg/x/chflow"
)

// DefaultChunkSize is the number of blocks fetched per BlocksEvent when the
// caller does not set one.
const DefaultChunkSize = 25

// BackfillConfig bounds a historical replay over the closed range
// [FromBlock, ToBlock].
type BackfillConfig struct {
	FromBlock int64       `validate:"min=0"`                              // first block of the range
	ToBlock   int64       `validate:"min=0,gtefield=FromBlock"`           // last block of the range, inclusive
	ChunkSize int         `validate:"min=1"`                              // blocks per emitted event (default 25)
	Include   IncludeMode `validate:"oneof=header transactions receipts"` // payload shape (default header)
}

func (c *BackfillConfig) applyDefaults() {
	if c.ChunkSize == 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.Include == "" {
		c.Include = IncludeHeader
	}
}

// Backfill replays the closed range [FromBlock, ToBlock] in fixed-size
// chunks, emitting one BlocksEvent per chunk and closing the channel after
// the last one. Invalid parameters fail the call before any I/O; fetch
// failures terminate the stream with a single event carrying Err.
//
// A backfill is not restartable: a new call re-fetches from scratch.
func (s *Service) Backfill(ctx context.Context, cfg BackfillConfig) (<-chan BlocksEvent, error) {
	cfg.applyDefaults()
	if err := validation.Validate(cfg); err != nil {
		return nil, err
	}

	eventsCh := make(chan BlocksEvent, backfillChannelBufferSize)
	go func() {
		defer close(eventsCh)
		s.backfill(ctx, cfg, eventsCh)
	}()

	return eventsCh, nil
}

// backfill drives the chunked replay loop. Blocks within a chunk are fetched
// one at a time, in order.
func (s *Service) backfill(ctx context.Context, cfg BackfillConfig, eventsCh chan<- BlocksEvent) {
	var (
		from = uint64(cfg.FromBlock)
		to   = uint64(cfg.ToBlock)
		size = uint64(cfg.ChunkSize)
	)

	for chunkStart := from; chunkStart <= to; chunkStart += size {
		chunkEnd := chunkStart + size - 1
		if chunkEnd > to {
			chunkEnd = to
		}

		blocks := make([]Block, 0, chunkEnd-chunkStart+1)
		for number := chunkStart; number <= chunkEnd; number++ {
			block, err := s.chain.BlockByNumber(ctx, number, cfg.Include)
			if err != nil {
				err = fmt.Errorf("fetch block %d (%s): %w", number, cfg.Include, err)
				chflow.Send(ctx, eventsCh, BlocksEvent{Err: err})
				return
			}

			blocks = append(blocks, block)
		}

		event := BlocksEvent{Blocks: blocks, HighestBlock: chunkEnd}
		if ok := chflow.Send(ctx, eventsCh, event); !ok {
			return
		}
	}
}
