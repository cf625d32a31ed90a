// Package redis persists stream resume points in a Redis instance so a
// restarted watch can continue from the last block it reported.
package redis

import (
	"context"

	redis "github.com/redis/go-redis/v9"
)

// client wraps the Redis connection behind the storage contracts this package
// implements.
type client struct {
	conn *redis.Client
}

// Close releases the underlying connection.
func (c *client) Close() error {
	return c.conn.Close()
}

// NewClient connects to the Redis instance at addr and verifies the
// connection with a ping before returning.
func NewClient(ctx context.Context, addr, username, password string, db int) (*client, error) {
	conn := redis.NewClient(&redis.Options{
		Addr:     addr,
		Username: username,
		Password: password,
		DB:       db,
	})

	if err := conn.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &client{
		conn: conn,
	}, nil
}
