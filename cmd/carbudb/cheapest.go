package main

import (
	"fmt"
	"math"

	"github.com/urfave/cli/v2"

	"github.com/carbudb/carbudb/internal/carbudb"
	"github.com/carbudb/carbudb/pkg/feed"
	"github.com/carbudb/carbudb/pkg/query"
)

func cheapestCommand() *cli.Command {
	return &cli.Command{
		Name:  "cheapest",
		Usage: "Rank stations by fuel price",
		Flags: []cli.Flag{
			dbFlag(),
			&cli.StringFlag{
				Name:  "fuel",
				Usage: "Fuel type to rank by (e.g. SP95); cheapest available fuel when omitted",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Number of stations to show",
				Value:   10,
			},
			&cli.Float64Flag{
				Name:  "lat",
				Usage: "Latitude of a reference point",
			},
			&cli.Float64Flag{
				Name:  "long",
				Usage: "Longitude of a reference point",
			},
			&cli.Float64Flag{
				Name:    "radius",
				Aliases: []string{"r"},
				Usage:   "Restrict to stations within this many km of the reference point",
			},
			&cli.Float64Flag{
				Name:  "max-price",
				Usage: "Exclude stations above this price for the selected fuel",
			},
		},
		Action: cheapestAction,
	}
}

func cheapestAction(c *cli.Context) error {
	storage, err := carbudb.NewStorage(c.Context, c.String("db"), newLogger(c))
	if err != nil {
		return err
	}
	defer storage.Close()

	stations := storage.Snapshot()
	if stations == nil {
		return fmt.Errorf("no data available, run update first")
	}

	fuelType := c.String("fuel")

	var predicates []query.Predicate
	if fuelType != "" {
		predicates = append(predicates, query.HasFuel(fuelType))
		if c.IsSet("max-price") {
			predicates = append(predicates, query.MaxFuelPrice(fuelType, c.Float64("max-price")))
		}
	}

	var ref *feed.Coordinates
	if c.IsSet("lat") && c.IsSet("long") {
		ref = &feed.Coordinates{Latitude: c.Float64("lat"), Longitude: c.Float64("long")}
		if c.IsSet("radius") {
			predicates = append(predicates, query.WithinDistance(*ref, c.Float64("radius")))
		}
	}

	filtered := query.Filter(stations, predicates...)
	results := query.RankTopN(filtered, c.Int("limit"), query.OrderByPrice, query.RankOptions{
		Ref:      ref,
		FuelType: fuelType,
	})

	for i, r := range results {
		fmt.Printf("%d. %s (%s)\n", i+1, stationTitle(r.Station), query.FullAddress(r.Station))
		if !math.IsNaN(r.SelectedFuelPrice) {
			label := fuelType
			if label == "" {
				label = "cheapest fuel"
			}
			fmt.Printf("   %s: %.3f €\n", label, r.SelectedFuelPrice)
		}
		if !math.IsNaN(r.Distance) {
			fmt.Printf("   Distance: %.2f km\n", r.Distance)
		}
	}

	return nil
}
