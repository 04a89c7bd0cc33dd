package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/carbudb/carbudb/internal/carbudb"
)

func pruneCommand() *cli.Command {
	return &cli.Command{
		Name:  "prune",
		Usage: "Delete datasets older than a retention window",
		Flags: []cli.Flag{
			dbFlag(),
			&cli.IntFlag{
				Name:  "days",
				Usage: "Retention window in days",
				Value: 90,
			},
		},
		Action: pruneAction,
	}
}

func pruneAction(c *cli.Context) error {
	storage, err := carbudb.NewStorage(c.Context, c.String("db"), newLogger(c))
	if err != nil {
		return err
	}
	defer storage.Close()

	if err := storage.PruneOldDatasets(c.Context, c.Int("days")); err != nil {
		return err
	}
	if err := storage.Vacuum(c.Context); err != nil {
		return err
	}

	fmt.Printf("Pruned datasets older than %d days\n", c.Int("days"))
	return nil
}
