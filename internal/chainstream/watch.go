package chainstream

import (
	"context"
	"fmt"
	"time"

	"github.com/gabapcia/starkstream/internal/pkg/logger"
	"github.com/gabapcia/starkstream/internal/pkg/validation"
	"github.com/gabapcia/starkstream/internal/pkg/x/chflow"
)

const (
	// DefaultPollInterval is the pause between poll iterations when the
	// caller does not set one.
	DefaultPollInterval = 3 * time.Second

	// DefaultMaxTrackedBlocks is the tracked window capacity when the caller
	// does not set one. A reorg deeper than this terminates the stream with
	// UnrecoverableReorgError.
	DefaultMaxTrackedBlocks = 64
)

// WatchConfig configures an open-ended follow of the chain head.
type WatchConfig struct {
	// FromBlock is the optional resume point. When nil, the watch starts at
	// the chain head observed on the first iteration.
	FromBlock *int64 `validate:"omitempty,min=0"`

	// Include selects the payload shape of emitted blocks (default header).
	Include IncludeMode `validate:"oneof=header transactions receipts"`

	// PollInterval is the pause between poll iterations (default 3s). It is
	// ignored in push mode.
	PollInterval time.Duration `validate:"min=0"`

	// MaxTrackedBlocks bounds the window of recent blocks retained for reorg
	// detection (default 64). Values below 2 are clamped to 2.
	MaxTrackedBlocks int
}

func (c *WatchConfig) applyDefaults() {
	if c.Include == "" {
		c.Include = IncludeHeader
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.MaxTrackedBlocks == 0 {
		c.MaxTrackedBlocks = DefaultMaxTrackedBlocks
	}
}

// Watch follows the chain head indefinitely, emitting a WatchEvent per newly
// observed canonical block and a Reorg event whenever continuity against the
// tracked window breaks. The stream terminates only on error or when ctx is
// canceled; state is lost on termination and a new call starts fresh.
//
// In polling mode the engine sleeps PollInterval between head checks (the
// first iteration polls immediately). When the service was built with a head
// source, the same continuity and reorg logic runs per push notification
// instead of per poll tick.
func (s *Service) Watch(ctx context.Context, cfg WatchConfig) (<-chan WatchEvent, error) {
	cfg.applyDefaults()
	if err := validation.Validate(cfg); err != nil {
		return nil, err
	}

	eventsCh := make(chan WatchEvent, watchChannelBufferSize)
	go func() {
		defer close(eventsCh)

		if s.heads != nil {
			s.watchPush(ctx, cfg, eventsCh)
			return
		}
		s.watchPolling(ctx, cfg, eventsCh)
	}()

	return eventsCh, nil
}

// follower is the per-stream mutable state: the tracked window plus the next
// block number to request. It is owned by a single stream loop.
type follower struct {
	window    *window
	cursor    uint64
	hasCursor bool
}

func newFollower(cfg WatchConfig) *follower {
	f := &follower{window: newWindow(cfg.MaxTrackedBlocks)}
	if cfg.FromBlock != nil {
		f.cursor = uint64(*cfg.FromBlock)
		f.hasCursor = true
	}
	return f
}

// advance fetches every block from the cursor through head, emitting a
// single-block event per continuous block and a reorg event whenever the
// fetched block does not extend the tracked head. It reports false when the
// stream must stop (terminal error emitted or ctx canceled).
//
// The cursor ends at head+1, so no block number is ever re-fetched outside
// reorg resolution.
func (s *Service) advance(ctx context.Context, f *follower, head uint64, include IncludeMode, eventsCh chan<- WatchEvent) bool {
	if !f.hasCursor {
		f.cursor = head
		f.hasCursor = true
	}

	if f.cursor > head {
		return true
	}

	for number := f.cursor; number <= head; number++ {
		block, err := s.chain.BlockByNumber(ctx, number, include)
		if err != nil {
			err = fmt.Errorf("fetch block %d (%s): %w", number, include, err)
			chflow.Send(ctx, eventsCh, WatchEvent{ChainHead: head, Err: err})
			return false
		}

		event := WatchEvent{ChainHead: head}
		if f.window.len() == 0 || f.window.matchesHead(block.ParentHash) {
			f.window.append(block.Light())
			event.Blocks = []Block{block}
		} else {
			reorg, err := s.resolveReorg(ctx, f.window, block, include, head)
			if err != nil {
				chflow.Send(ctx, eventsCh, WatchEvent{ChainHead: head, Err: err})
				return false
			}

			logger.Warn(ctx, "chain reorganization resolved",
				"reorg.removed", len(reorg.Removed),
				"reorg.added", len(reorg.Added),
				"chain.head", head,
			)
			event.Reorg = &reorg
		}

		if ok := chflow.Send(ctx, eventsCh, event); !ok {
			return false
		}
	}

	f.cursor = head + 1
	return true
}

// watchPolling drives the poll loop: sleep, read the chain head, advance.
func (s *Service) watchPolling(ctx context.Context, cfg WatchConfig, eventsCh chan<- WatchEvent) {
	f := newFollower(cfg)

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	for first := true; ; first = false {
		if !first {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}

		head, err := s.chain.LatestBlockNumber(ctx)
		if err != nil {
			err = fmt.Errorf("fetch chain head: %w", err)
			chflow.Send(ctx, eventsCh, WatchEvent{Err: err})
			return
		}

		if ok := s.advance(ctx, f, head, cfg.Include, eventsCh); !ok {
			return
		}
	}
}

// watchPush drives the subscription loop: each head notice triggers the same
// advance as a poll tick, and explicit reorg notices splice the window
// directly from the reported range.
func (s *Service) watchPush(ctx context.Context, cfg WatchConfig, eventsCh chan<- WatchEvent) {
	noticesCh, err := s.heads.SubscribeNewHeads(ctx)
	if err != nil {
		err = fmt.Errorf("subscribe to new heads: %w", err)
		chflow.Send(ctx, eventsCh, WatchEvent{Err: err})
		return
	}

	f := newFollower(cfg)

	for {
		notice, ok := chflow.Receive(ctx, noticesCh)
		if !ok {
			return
		}

		switch {
		case notice.Err != nil:
			err := fmt.Errorf("head subscription: %w", notice.Err)
			chflow.Send(ctx, eventsCh, WatchEvent{Err: err})
			return

		case notice.Reorg != nil:
			reorg, err := s.spliceNotice(ctx, f.window, *notice.Reorg, cfg.Include)
			if err != nil {
				chflow.Send(ctx, eventsCh, WatchEvent{Err: err})
				return
			}

			head := notice.Reorg.EndingBlock.Number
			f.cursor, f.hasCursor = head+1, true

			logger.Warn(ctx, "chain reorganization resolved",
				"reorg.removed", len(reorg.Removed),
				"reorg.added", len(reorg.Added),
				"chain.head", head,
			)

			event := WatchEvent{Reorg: &reorg, ChainHead: head}
			if ok := chflow.Send(ctx, eventsCh, event); !ok {
				return
			}

		case notice.Head != nil:
			if ok := s.advance(ctx, f, notice.Head.Number, cfg.Include, eventsCh); !ok {
				return
			}
		}
	}
}
