package cli

import (
	"context"
	"errors"
	"time"

	"github.com/gabapcia/starkstream/internal/chainstream"
	redisstorage "github.com/gabapcia/starkstream/internal/infra/storage/redis"
	"github.com/gabapcia/starkstream/internal/pkg/logger"
	"github.com/gabapcia/starkstream/internal/pkg/x/chflow"

	"github.com/urfave/cli/v3"
)

// watchCommand returns a CLI command that follows the chain head
// indefinitely, logging new blocks and resolved reorganizations until the
// process is interrupted.
//
// When Redis is configured and --stream-name is set, the highest emitted
// block number is recorded after each event so a restarted watch can resume
// where the previous run stopped. The engine itself stays restart-stateless;
// resume points live entirely in this layer.
//
// Usage example:
//
//	starkstream watch --from 1200 --poll-interval 3s
func watchCommand(cfg Config) *cli.Command {
	return &cli.Command{
		Name:        "watch",
		Description: "Follows the chain head continuously, detecting and resolving reorganizations.",
		Usage:       "Streams new canonical blocks until interrupted (Ctrl+C).",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "from",
				Usage: "Block number to start from (defaults to the current head)",
				Value: -1,
			},
			&cli.StringFlag{
				Name:  "include",
				Usage: "Block payload shape: header, transactions or receipts",
				Value: string(chainstream.IncludeHeader),
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
			&cli.StringFlag{
				Name:  "stream-name",
				Usage: "Name under which resume points are stored (requires Redis)",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			svc, err := newBlockService(cfg, c.Bool("websocket"))
			if err != nil {
				return err
			}

			watchCfg := chainstream.WatchConfig{
				Include:          chainstream.IncludeMode(c.String("include")),
				PollInterval:     c.Duration("poll-interval"),
				MaxTrackedBlocks: int(c.Int("max-tracked-blocks")),
			}
			if from := int64(c.Int("from")); from >= 0 {
				watchCfg.FromBlock = &from
			}

			var (
				resumePoints chainstream.ResumePointStorage
				streamName   = c.String("stream-name")
			)
			if streamName != "" && cfg.RedisAddr != "" {
				storage, err := redisstorage.NewClient(ctx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword, cfg.RedisDB)
				if err != nil {
					return err
				}
				defer storage.Close()
				resumePoints = storage

				if watchCfg.FromBlock == nil {
					if resume, err := storage.LoadResumePoint(ctx, streamName); err == nil {
						next := int64(resume) + 1
						watchCfg.FromBlock = &next
					} else if !errors.Is(err, chainstream.ErrNoResumePoint) {
						return err
					}
				}
			}

			eventsCh, err := svc.Watch(ctx, watchCfg)
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

				highest := logWatchEvent(ctx, event)
				if resumePoints != nil {
					saveResumePoint(ctx, resumePoints, streamName, highest)
				}
			}
		},
	}
}

// logWatchEvent reports the event and returns the highest block number it
// carried.
func logWatchEvent(ctx context.Context, event chainstream.WatchEvent) uint64 {
	if event.Reorg != nil {
		highest := event.ChainHead
		if n := len(event.Reorg.Added); n > 0 {
			highest = event.Reorg.Added[n-1].Number
		}

		logger.Warn(ctx, "reorganization",
			"reorg.removed", len(event.Reorg.Removed),
			"reorg.added", len(event.Reorg.Added),
			"chain.head", event.ChainHead,
		)
		return highest
	}

	var highest uint64
	for _, block := range event.Blocks {
		highest = block.Number
		logger.Info(ctx, "new block",
			"block.number", block.Number,
			"block.hash", block.Hash,
			"chain.head", event.ChainHead,
		)
	}
	return highest
}

// saveResumePoint records the highest emitted block, logging failures
// without interrupting the stream.
func saveResumePoint(ctx context.Context, storage chainstream.ResumePointStorage, stream string, blockNumber uint64) {
	saveCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := storage.SaveResumePoint(saveCtx, stream, blockNumber); err != nil {
		logger.Error(ctx, "failed to save resume point",
			"stream", stream,
			"block.number", blockNumber,
			"error", err,
		)
	}
}
