// Package cli wires the stream engines to a command-line interface: bounded
// backfills, live watches, and pending/confirmed transaction streams, with
// events reported through the structured logger.
package cli

import (
	"context"
	"errors"
	"os"

	"github.com/gabapcia/starkstream/internal/chainstream"
	"github.com/gabapcia/starkstream/internal/infra/blockchain/starknet"
	"github.com/gabapcia/starkstream/internal/pkg/logger"
	"github.com/gabapcia/starkstream/internal/pkg/resilience/retry"
	"github.com/gabapcia/starkstream/internal/pkg/telemetry"
	transporthttp "github.com/gabapcia/starkstream/internal/pkg/transport/http"
	"github.com/gabapcia/starkstream/internal/pkg/transport/jsonrpc"
	"github.com/gabapcia/starkstream/internal/txstream"

	"github.com/urfave/cli/v3"
)

const serviceName = "starkstream"

// ErrWebsocketURLRequired is returned when a command needs push mode but no
// WebSocket endpoint is configured.
var ErrWebsocketURLRequired = errors.New("websocket mode requires STARKNET_WS_URL")

// Run initializes and executes the starkstream CLI application.
//
// It registers all available commands:
//
//   - `backfill`: Replays a closed block range.
//   - `watch`: Follows the chain head, resolving reorgs.
//   - `pending`: Streams deduplicated pending transactions.
//   - `confirmed`: Streams transactions once they reach a confirmation depth.
func Run(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cfg.TelemetryEnabled {
		shutdown, err := telemetry.Init(ctx, serviceName)
		if err != nil {
			return err
		}
		defer shutdown(context.WithoutCancel(ctx))
	}

	if err := logger.Init(logger.WithLevel(cfg.LogLevel)); err != nil {
		return err
	}
	defer logger.Sync()

	app := &cli.Command{
		EnableShellCompletion: true,
		Name:                  serviceName,
		Description:           "Command-line interface for following a Starknet chain as block and transaction streams.",
		Usage:                 "starkstream [command] [flags]",
		Commands: []*cli.Command{
			backfillCommand(cfg),
			watchCommand(cfg),
			pendingCommand(cfg),
			confirmedCommand(cfg),
		},
	}

	return app.Run(ctx, os.Args)
}

// newBlockService builds the block stream engine, in push mode when
// requested.
func newBlockService(cfg Config, useWebsocket bool) (*chainstream.Service, error) {
	httpClient := transporthttp.NewClient(transporthttp.WithTimeout(cfg.HTTPTimeout))
	conn := jsonrpc.NewClient(httpClient.StandardClient(), cfg.RPCEndpoint)
	chain := starknet.NewClient(conn)

	opts := []chainstream.Option{}
	if useWebsocket {
		subscriber, err := newSubscriber(cfg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, chainstream.WithHeadSource(subscriber))
	}

	return chainstream.New(chain, opts...), nil
}

// newTransactionService builds the transaction stream engine on top of a
// block service sharing the same transports.
func newTransactionService(cfg Config, useWebsocket bool) (*txstream.Service, error) {
	blocks, err := newBlockService(cfg, useWebsocket)
	if err != nil {
		return nil, err
	}

	httpClient := transporthttp.NewClient(transporthttp.WithTimeout(cfg.HTTPTimeout))
	conn := jsonrpc.NewClient(httpClient.StandardClient(), cfg.RPCEndpoint)
	chain := starknet.NewClient(conn)

	opts := []txstream.Option{}
	if cfg.WSEndpoint != "" {
		subscriber, err := newSubscriber(cfg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, txstream.WithPendingSource(subscriber))
	}

	return txstream.New(blocks, chain, opts...), nil
}

// newSubscriber builds the WebSocket push-mode subscription source.
func newSubscriber(cfg Config) (*starknet.Subscriber, error) {
	if cfg.WSEndpoint == "" {
		return nil, ErrWebsocketURLRequired
	}

	return starknet.NewSubscriber(cfg.WSEndpoint, starknet.WithConnectRetry(retry.New())), nil
}
