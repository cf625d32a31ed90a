// Package chainstream follows the canonical chain of a blockchain node and
// exposes it as two composable streams: a bounded historical backfill and a
// continuous watch that detects and resolves chain reorganizations.
//
// Each stream runs as a single goroutine driving a sequential loop and
// delivers events over a bounded channel consumed by the caller. All tracking
// state (tracked window, cursor) is in-memory, created fresh per stream, and
// discarded when the stream terminates.
package chainstream

import "github.com/gabapcia/starkstream/internal/pkg/validation"

const (
	backfillChannelBufferSize = 5
	watchChannelBufferSize    = 10
)

// Service is the block stream engine. The zero value is not usable; build it
// with New.
type Service struct {
	chain Blockchain
	heads HeadSource
}

type config struct {
	heads HeadSource
}

// Option customizes a Service created by New.
type Option func(*config)

// WithHeadSource switches Watch to push mode: instead of polling for the
// chain head, the engine reacts to head notices and explicit reorg notices
// delivered by the subscription.
func WithHeadSource(hs HeadSource) Option {
	return func(c *config) {
		c.heads = hs
	}
}

// New creates a block stream engine on top of the given chain client.
func New(chain Blockchain, opts ...Option) *Service {
	cfg := config{}
	for _, opt := range opts {
		opt(&cfg)
	}

	validation.Init()

	return &Service{
		chain: chain,
		heads: cfg.heads,
	}
}
