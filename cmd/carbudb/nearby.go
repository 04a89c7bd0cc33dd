package main

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/muesli/gominatim"
	"github.com/urfave/cli/v2"

	"github.com/carbudb/carbudb/internal/carbudb"
	"github.com/carbudb/carbudb/pkg/feed"
	"github.com/carbudb/carbudb/pkg/query"
)

const defaultRadiusKm = 5.0

func nearbyCommand() *cli.Command {
	return &cli.Command{
		Name:  "nearby",
		Usage: "List stations near a location",
		Flags: []cli.Flag{
			dbFlag(),
			&cli.StringFlag{
				Name:     "location",
				Usage:    "Location to search (geocoded via Nominatim)",
				Required: false,
			},
			&cli.Float64Flag{
				Name:  "lat",
				Usage: "Latitude of the location",
			},
			&cli.Float64Flag{
				Name:  "long",
				Usage: "Longitude of the location",
			},
			&cli.Float64Flag{
				Name:    "radius",
				Aliases: []string{"r"},
				Usage:   "Search radius in kilometers",
				Value:   defaultRadiusKm,
			},
			&cli.StringFlag{
				Name:  "fuel",
				Usage: "Only show stations selling this fuel (e.g. SP95, Gazole)",
			},
			&cli.BoolFlag{
				Name:  "open-now",
				Usage: "Only show stations open right now",
			},
		},
		Action: nearbyAction,
	}
}

func nearbyAction(c *cli.Context) error {
	lat := c.Float64("lat")
	lng := c.Float64("long")
	loc := c.String("location")

	if loc != "" {
		var err error
		lat, lng, err = geocodeLocation(loc)
		if err != nil {
			return err
		}
	} else if lat == 0 && lng == 0 {
		return errors.New("location or latitude and longitude are required")
	}

	return listNearbyStations(c, lat, lng)
}

func geocodeLocation(name string) (lat, lng float64, err error) {
	gominatim.SetServer("https://nominatim.openstreetmap.org/")
	qry := gominatim.SearchQuery{Q: name}

	resp, err := qry.Get()
	if err != nil {
		return 0, 0, err
	}
	if len(resp) == 0 {
		return 0, 0, fmt.Errorf("no results for location %q", name)
	}
	fmt.Println("Location found:", resp[0].DisplayName)

	lat, err = strconv.ParseFloat(resp[0].Lat, 64)
	if err != nil {
		return 0, 0, err
	}
	lng, err = strconv.ParseFloat(resp[0].Lon, 64)
	if err != nil {
		return 0, 0, err
	}
	return lat, lng, nil
}

func listNearbyStations(c *cli.Context, lat, lng float64) error {
	radius := c.Float64("radius")

	storage, err := carbudb.NewStorage(c.Context, c.String("db"), newLogger(c))
	if err != nil {
		return fmt.Errorf("error initializing storage: %w", err)
	}
	defer storage.Close()

	results, err := storage.Nearby(c.Context, lat, lng, radius)
	if err != nil {
		return fmt.Errorf("error fetching nearby stations: %w", err)
	}

	fuelType := c.String("fuel")
	now := time.Now()

	shown := 0
	for _, r := range results {
		st := r.Station
		if fuelType != "" {
			if _, ok := query.FuelPrice(st, fuelType); !ok {
				continue
			}
		}
		if c.Bool("open-now") && !query.IsOpen(st, now) {
			continue
		}

		shown++
		fmt.Printf("%d. %s\n", shown, stationTitle(st))
		fmt.Printf("   Address: %s\n", query.FullAddress(st))
		if !math.IsNaN(r.Distance) {
			fmt.Printf("   Distance: %.2f km\n", r.Distance)
		}
		for _, f := range st.Fuels {
			fmt.Printf("   %s: %.3f €\n", f.Name, f.Price)
		}
		fmt.Println()
	}

	fmt.Printf("Found %d stations within %g km radius\n", shown, radius)
	return nil
}

func stationTitle(st *feed.Station) string {
	switch {
	case st.Name != "":
		return st.Name
	case st.Brand != "":
		return st.Brand
	default:
		return "Station " + st.ID
	}
}
