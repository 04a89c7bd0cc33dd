// Package feed downloads the French fuel price open data feed (a zipped,
// loosely encoded XML document published on several mirrors) and turns it
// into a normalized station dataset.
package feed

import "time"

// Coordinates is a WGS84 latitude/longitude pair in decimal degrees.
type Coordinates struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// Fuel is a single fuel offering at a station. Price is always > 0; fuels
// without a usable price are dropped during parsing.
type Fuel struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Price      float64 `json:"price"`
	LastUpdate string  `json:"last_update,omitempty"`
}

// TimeRange is an opening period within a day, times formatted as HH:MM.
// A close before open means the range spans midnight.
type TimeRange struct {
	Open  string `json:"open"`
	Close string `json:"close"`
}

// DaySchedule describes one weekday. Closed and Ranges are mutually
// exclusive; a day missing from the schedule map entirely is "unspecified",
// which is not the same as closed.
type DaySchedule struct {
	Closed bool        `json:"closed,omitempty"`
	Ranges []TimeRange `json:"ranges,omitempty"`
}

// Station is the canonical station record produced by one parse pass.
type Station struct {
	ID           string                       `json:"id"`
	Name         string                       `json:"name,omitempty"`
	Brand        string                       `json:"brand,omitempty"`
	Address      string                       `json:"address,omitempty"`
	City         string                       `json:"city"`
	PostalCode   string                       `json:"postal_code,omitempty"`
	Coordinates  *Coordinates                 `json:"coordinates,omitempty"`
	Fuels        []Fuel                       `json:"fuels,omitempty"`
	Services     []string                     `json:"services,omitempty"`
	OpeningHours map[time.Weekday]DaySchedule `json:"opening_hours,omitempty"`
	Automate24h  bool                         `json:"automate_24h,omitempty"`
	Highway      bool                         `json:"highway,omitempty"`
	FreeAccess   bool                         `json:"free_access,omitempty"`
	LastUpdate   string                       `json:"last_update,omitempty"`
}

// fuelNames maps the feed's numeric fuel codes to display names.
var fuelNames = map[string]string{
	"1": "Gazole",
	"2": "SP95",
	"3": "E85",
	"4": "GPLc",
	"5": "E10",
	"6": "SP98",
}

// FuelName resolves a raw feed fuel code to its display name. Unknown codes
// are returned as-is.
func FuelName(code string) string {
	if name, ok := fuelNames[code]; ok {
		return name
	}
	return code
}
