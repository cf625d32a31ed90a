package chainstream

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoCommonAncestor is returned when the backward ancestor walk reaches
// block 0 without matching any tracked entry. It means the tracked window was
// already invalid or the chain's genesis itself was reorged; it is reported
// loudly rather than resolved as an empty reorg.
var ErrNoCommonAncestor = errors.New("no common ancestor found within tracked window")

// UnrecoverableReorgError is returned when a fork runs deeper than the
// retained window: no correct resolution is possible with the data kept.
// Callers can restart the stream with a larger window or a later fromBlock.
type UnrecoverableReorgError struct {
	ChainHead   uint64 // chain head at the time the reorg was detected
	BlockNumber uint64 // number of the block that broke continuity
	WindowSize  int    // capacity of the tracked window
}

func (e *UnrecoverableReorgError) Error() string {
	return fmt.Sprintf(
		"reorg at block %d is deeper than the %d tracked blocks (chain head %d)",
		e.BlockNumber, e.WindowSize, e.ChainHead,
	)
}

// resolveReorg walks backward from incoming, a freshly fetched block whose
// parent hash does not match the tracked head, until the segment under
// construction links into the window. Fetches are sequential: each result
// decides whether another fetch is needed.
//
// On success it returns the reorg description and splices the window so it
// tracks the replacing segment: entries above the ancestor are dropped and
// the added blocks appended (trimmed to capacity as usual).
func (s *Service) resolveReorg(ctx context.Context, w *window, incoming Block, include IncludeMode, chainHead uint64) (Reorg, error) {
	chain := []Block{incoming}

	for {
		oldest := chain[0]

		if i := w.indexOfHash(oldest.ParentHash); i >= 0 {
			ancestor := w.entries[i]

			removed := make([]LightBlock, 0, len(w.entries)-i-1)
			for j := len(w.entries) - 1; j > i; j-- {
				removed = append(removed, w.entries[j])
			}

			w.truncateAfter(ancestor)
			for _, b := range chain {
				w.append(b.Light())
			}

			return Reorg{
				Removed:        removed,
				Added:          chain,
				CommonAncestor: &ancestor,
			}, nil
		}

		if oldest.Number == 0 {
			return Reorg{}, ErrNoCommonAncestor
		}

		if len(chain) >= w.capacity {
			return Reorg{}, &UnrecoverableReorgError{
				ChainHead:   chainHead,
				BlockNumber: incoming.Number,
				WindowSize:  w.capacity,
			}
		}

		parent, err := s.chain.BlockByNumber(ctx, oldest.Number-1, include)
		if err != nil {
			return Reorg{}, fmt.Errorf("fetch block %d (%s) during reorg resolution: %w", oldest.Number-1, include, err)
		}

		chain = append([]Block{parent}, chain...)
	}
}

// spliceNotice applies an explicit push-mode reorg notice: every tracked
// entry at or above the noticed starting number is dropped and the replacing
// range [starting, ending] is refetched from the post-reorg chain.
//
// The common ancestor is the tracked entry left just below the starting
// number, reported only when the refetched segment actually links to it.
func (s *Service) spliceNotice(ctx context.Context, w *window, notice ReorgNotice, include IncludeMode) (Reorg, error) {
	removed := w.removedFrom(notice.StartingBlock.Number)

	var ancestor *LightBlock
	if prior, ok := w.head(); ok {
		ancestor = &prior
	}

	added := make([]Block, 0, notice.EndingBlock.Number-notice.StartingBlock.Number+1)
	for n := notice.StartingBlock.Number; n <= notice.EndingBlock.Number; n++ {
		block, err := s.chain.BlockByNumber(ctx, n, include)
		if err != nil {
			return Reorg{}, fmt.Errorf("fetch block %d (%s) during reorg resolution: %w", n, include, err)
		}

		w.append(block.Light())
		added = append(added, block)
	}

	// The notice names the replaced range; if the refetched segment does not
	// link to the retained entry below it, the fork reaches deeper than the
	// window can prove and no ancestor is reported.
	if ancestor != nil && len(added) > 0 && added[0].ParentHash != ancestor.Hash {
		ancestor = nil
	}

	return Reorg{
		Removed:        removed,
		Added:          added,
		CommonAncestor: ancestor,
	}, nil
}
