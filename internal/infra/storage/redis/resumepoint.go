package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/gabapcia/starkstream/internal/chainstream"

	redis "github.com/redis/go-redis/v9"
)

// resumePointKey builds the Redis key holding the latest resume point for a
// named stream.
func resumePointKey(stream string) string {
	return fmt.Sprintf("starkstream:resume-point:%s", stream)
}

// Compile-time assertion that client implements chainstream.ResumePointStorage.
var _ chainstream.ResumePointStorage = (*client)(nil)

// SaveResumePoint records blockNumber as the latest resume point for the
// named stream, overwriting any previous value.
func (c *client) SaveResumePoint(ctx context.Context, stream string, blockNumber uint64) error {
	return c.conn.Set(ctx, resumePointKey(stream), strconv.FormatUint(blockNumber, 10), 0).Err()
}

// LoadResumePoint returns the most recent block number saved for the named
// stream, or chainstream.ErrNoResumePoint if none exists.
func (c *client) LoadResumePoint(ctx context.Context, stream string) (uint64, error) {
	data, err := c.conn.Get(ctx, resumePointKey(stream)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, chainstream.ErrNoResumePoint
		}
		return 0, err
	}

	blockNumber, err := strconv.ParseUint(data, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt resume point for stream %q: %w", stream, err)
	}

	return blockNumber, nil
}
