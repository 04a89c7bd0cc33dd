package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/carbudb/carbudb/internal/carbudb"
)

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show stored dataset dates and snapshot details",
		Flags: []cli.Flag{
			dbFlag(),
			&cli.IntFlag{
				Name:  "top-searches",
				Usage: "Also show the N most searched areas",
			},
		},
		Action: statusAction,
	}
}

func statusAction(c *cli.Context) error {
	storage, err := carbudb.NewStorage(c.Context, c.String("db"), newLogger(c))
	if err != nil {
		return err
	}
	defer storage.Close()

	dates, err := storage.GetAllDates(c.Context)
	if err != nil {
		return err
	}
	if len(dates) == 0 {
		fmt.Println("No datasets stored, run update first.")
		return nil
	}

	fmt.Printf("Datasets stored: %d (%s to %s)\n",
		len(dates),
		dates[0].Format("2006-01-02"),
		dates[len(dates)-1].Format("2006-01-02"))

	if date, ok := storage.SnapshotDate(); ok {
		stations := storage.Snapshot()
		fuels := 0
		withCoords := 0
		for i := range stations {
			fuels += len(stations[i].Fuels)
			if stations[i].Coordinates != nil {
				withCoords++
			}
		}
		fmt.Printf("Current snapshot: %s\n", date.Format("2006-01-02"))
		fmt.Printf("  Stations: %d (%d with coordinates)\n", len(stations), withCoords)
		fmt.Printf("  Fuel prices: %d\n", fuels)
	}

	if n := c.Int("top-searches"); n > 0 {
		entries, err := storage.TopSearches(c.Context, n)
		if err != nil {
			return err
		}
		if len(entries) > 0 {
			fmt.Println("Most searched areas:")
			for _, e := range entries {
				fmt.Printf("  %.2f, %.2f (radius %g km): %d searches, last %s\n",
					e.Latitude, e.Longitude, e.RadiusKm, e.SearchCount, e.LastSearch.Format("2006-01-02 15:04"))
			}
		}
	}

	return nil
}
