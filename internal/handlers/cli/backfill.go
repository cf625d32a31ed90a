package cli

import (
	"context"

	"github.com/gabapcia/starkstream/internal/chainstream"
	"github.com/gabapcia/starkstream/internal/pkg/logger"
	"github.com/gabapcia/starkstream/internal/pkg/x/chflow"

	"github.com/urfave/cli/v3"
)

// backfillCommand returns a CLI command that replays a closed block range and
// logs one entry per emitted chunk.
//
// Usage example:
//
//	starkstream backfill --from 100 --to 199 --chunk-size 25 --include header
func backfillCommand(cfg Config) *cli.Command {
	return &cli.Command{
		Name:        "backfill",
		Description: "Replays the closed block range [from, to] in fixed-size chunks.",
		Usage:       "Fetches historical blocks in order and exits after the last chunk.",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:     "from",
				Usage:    "First block number of the range",
				Required: true,
			},
			&cli.IntFlag{
				Name:     "to",
				Usage:    "Last block number of the range (inclusive)",
				Required: true,
			},
			&cli.IntFlag{
				Name:  "chunk-size",
				Usage: "Blocks fetched per emitted event",
				Value: chainstream.DefaultChunkSize,
			},
			&cli.StringFlag{
				Name:  "include",
				Usage: "Block payload shape: header, transactions or receipts",
				Value: string(chainstream.IncludeHeader),
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			svc, err := newBlockService(cfg, false)
			if err != nil {
				return err
			}

			eventsCh, err := svc.Backfill(ctx, chainstream.BackfillConfig{
				FromBlock: int64(c.Int("from")),
				ToBlock:   int64(c.Int("to")),
				ChunkSize: int(c.Int("chunk-size")),
				Include:   chainstream.IncludeMode(c.String("include")),
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

				logger.Info(ctx, "backfill chunk",
					"blocks.count", len(event.Blocks),
					"blocks.highest", event.HighestBlock,
				)
			}
		},
	}
}
