package chainstream

import (
	"context"
	"errors"
)

// ErrNoResumePoint is returned by LoadResumePoint when no resume point has
// been saved yet for the requested stream name.
var ErrNoResumePoint = errors.New("no resume point found for stream")

// ResumePointStorage persists the highest emitted block number per named
// stream. The engine itself never touches it: stream state is in-memory and
// lost on termination. Callers (e.g. the CLI pipeline) may record resume
// points so a restarted watch can pick a fromBlock.
type ResumePointStorage interface {
	// SaveResumePoint records blockNumber as the latest resume point for the
	// named stream, overwriting any previous value.
	SaveResumePoint(ctx context.Context, stream string, blockNumber uint64) error

	// LoadResumePoint returns the most recent block number saved for the
	// named stream, or ErrNoResumePoint if none exists.
	LoadResumePoint(ctx context.Context, stream string) (uint64, error)
}
