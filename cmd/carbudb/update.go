package main

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/carbudb/carbudb/internal/carbudb"
	"github.com/carbudb/carbudb/pkg/feed"
)

func updateCommand() *cli.Command {
	return &cli.Command{
		Name:  "update",
		Usage: "Download the current feed and replace the stored dataset",
		Flags: []cli.Flag{
			dbFlag(),
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Per-attempt fetch timeout",
				Value: feed.DefaultTimeout,
			},
		},
		Action: updateAction,
	}
}

func updateAction(c *cli.Context) error {
	logger := newLogger(c)

	storage, err := carbudb.NewStorage(c.Context, c.String("db"), logger)
	if err != nil {
		return err
	}
	defer storage.Close()

	client := feed.New(feed.Options{
		Timeout: c.Duration("timeout"),
		Logger:  logger,
	})

	start := time.Now()
	count, err := storage.Refresh(c.Context, client)
	if err != nil {
		return err
	}

	fmt.Printf("Dataset updated: %d stations in %s\n", count, time.Since(start).Round(time.Millisecond))
	return nil
}
