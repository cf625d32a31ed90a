package cli

import (
	"context"

	"github.com/gabapcia/starkstream/internal/chainstream"
	"github.com/gabapcia/starkstream/internal/pkg/logger"
	"github.com/gabapcia/starkstream/internal/pkg/x/chflow"
	"github.com/gabapcia/starkstream/internal/txstream"

	"github.com/urfave/cli/v3"
)

// pendingCommand returns a CLI command that streams deduplicated pending
// transactions, optionally filtered by sender address and transaction type.
//
// Usage example:
//
//	starkstream pending --sender 0xabc... --type INVOKE
func pendingCommand(cfg Config) *cli.Command {
	return &cli.Command{
		Name:        "pending",
		Description: "Streams pending transactions from the node's mempool, dropping duplicates.",
		Usage:       "Requires a WebSocket endpoint. Runs until interrupted (Ctrl+C).",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "sender",
				Usage: "Allowed sender address (repeatable; any match passes)",
			},
			&cli.StringSliceFlag{
				Name:  "type",
				Usage: "Allowed transaction type (repeatable; e.g. INVOKE, DECLARE)",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			svc, err := newTransactionService(cfg, false)
			if err != nil {
				return err
			}

			eventsCh, err := svc.WatchPending(ctx, txstream.PendingConfig{
				FromSenders: c.StringSlice("sender"),
				Types:       c.StringSlice("type"),
			})
			if err != nil {
				return err
			}

			for {
				event, ok := chflow.Receive(ctx, eventsCh)
				if !ok {
					return nil
				}

				if event.Err != nil {
					return event.Err
				}

				logger.Info(ctx, "pending transaction",
					"transaction.hash", event.Transaction.Hash,
					"transaction.type", event.Transaction.Type,
					"transaction.sender", event.Transaction.Sender,
				)
			}
		},
	}
}

// confirmedCommand returns a CLI command that streams transactions once
// their block reaches the requested confirmation depth, reprocessing
// reorged blocks.
//
// Usage example:
//
//	starkstream confirmed --from 1200 --confirmations 3
func confirmedCommand(cfg Config) *cli.Command {
	return &cli.Command{
		Name:        "confirmed",
		Description: "Streams transactions once their block is buried under enough confirmations.",
		Usage:       "Runs until interrupted (Ctrl+C).",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:     "from",
				Usage:    "Block number to start tracking from",
				Required: true,
			},
			&cli.IntFlag{
				Name:  "confirmations",
				Usage: "Inclusive confirmation depth a block must reach",
				Value: 2,
			},
			&cli.DurationFlag{
				Name:  "poll-interval",
				Usage: "Pause between polls (polling mode only)",
				Value: chainstream.DefaultPollInterval,
			},
			&cli.IntFlag{
				Name:  "max-tracked-blocks",
				Usage: "Recent blocks retained for reorg detection",
				Value: chainstream.DefaultMaxTrackedBlocks,
			},
			&cli.BoolFlag{
				Name:  "websocket",
				Usage: "Use push-mode WebSocket subscriptions instead of polling",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			svc, err := newTransactionService(cfg, c.Bool("websocket"))
			if err != nil {
				return err
			}

			eventsCh, err := svc.WatchConfirmed(ctx, txstream.ConfirmedConfig{
				FromBlock:        int64(c.Int("from")),
				Confirmations:    int(c.Int("confirmations")),
				PollInterval:     c.Duration("poll-interval"),
				MaxTrackedBlocks: int(c.Int("max-tracked-blocks")),
			})
			if err != nil {
				return err
			}

			for {
				event, ok := chflow.Receive(ctx, eventsCh)
				if !ok {
					return nil
				}

				if event.Err != nil {
					return event.Err
				}

				logger.Info(ctx, "confirmed transaction",
					"transaction.hash", event.Transaction.Hash,
					"block.number", event.BlockNumber,
					"block.hash", event.BlockHash,
					"confirmations", event.Confirmations,
				)
			}
		},
	}
}
