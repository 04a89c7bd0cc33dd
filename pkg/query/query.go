// Package query provides pure, stateless functions over a normalized
// station dataset: distance, open/closed evaluation, predicate filtering,
// and Top-N ranking. All functions are safe for concurrent use against the
// same snapshot.
package query

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/carbudb/carbudb/pkg/feed"
	"github.com/tkrajina/gpxgo/gpx"
)

// Result pairs a station with the transient annotations a query computes.
// Distance and SelectedFuelPrice are NaN when not applicable.
type Result struct {
	Station           *feed.Station
	Distance          float64
	SelectedFuelPrice float64
}

// Distance returns the great-circle distance between two points in
// kilometers (haversine, 6371 km Earth radius).
func Distance(lat1, lng1, lat2, lng2 float64) float64 {
	return gpx.Distance2D(lat1, lng1, lat2, lng2, true) / 1000.0
}

// StationDistance returns the distance from a reference point to a station
// in kilometers, or NaN when the station has no coordinates.
func StationDistance(st *feed.Station, ref feed.Coordinates) float64 {
	if st.Coordinates == nil {
		return math.NaN()
	}
	return Distance(ref.Latitude, ref.Longitude, st.Coordinates.Latitude, st.Coordinates.Longitude)
}

// FuelPrice returns the price of the named fuel at a station. The name is
// matched case-insensitively against both the resolved name and the raw
// feed code.
func FuelPrice(st *feed.Station, fuelType string) (float64, bool) {
	for _, f := range st.Fuels {
		if strings.EqualFold(f.Name, fuelType) || strings.EqualFold(f.ID, fuelType) {
			return f.Price, true
		}
	}
	return 0, false
}

// CheapestFuel returns the lowest-priced fuel at a station.
func CheapestFuel(st *feed.Station) (feed.Fuel, bool) {
	var best feed.Fuel
	found := false
	for _, f := range st.Fuels {
		if !found || f.Price < best.Price {
			best = f
			found = true
		}
	}
	return best, found
}

// IsOpen reports whether a station is open at the given time. Stations
// publishing no opening hours at all are assumed open; a day present with
// neither a closed flag nor explicit ranges also counts as open.
func IsOpen(st *feed.Station, now time.Time) bool {
	if len(st.OpeningHours) == 0 {
		return true
	}

	sched, ok := st.OpeningHours[now.Weekday()]
	if !ok || sched.Closed {
		return false
	}
	if len(sched.Ranges) == 0 {
		return true
	}

	clock := now.Format("15:04")
	for _, r := range sched.Ranges {
		if r.Close < r.Open {
			// Overnight range, e.g. 22:00-06:00.
			if clock >= r.Open || clock <= r.Close {
				return true
			}
		} else if clock >= r.Open && clock <= r.Close {
			return true
		}
	}
	return false
}

// Predicate is one filter condition; Filter composes predicates with AND.
type Predicate func(*feed.Station) bool

// Filter returns the stations satisfying every predicate, preserving input
// order. The input slice is never mutated.
func Filter(stations []feed.Station, predicates ...Predicate) []feed.Station {
	out := make([]feed.Station, 0, len(stations))
	for i := range stations {
		keep := true
		for _, pred := range predicates {
			if !pred(&stations[i]) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, stations[i])
		}
	}
	return out
}

// HasFuel keeps stations offering the given fuel type.
func HasFuel(fuelType string) Predicate {
	return func(st *feed.Station) bool {
		_, ok := FuelPrice(st, fuelType)
		return ok
	}
}

// MaxFuelPrice keeps stations whose price for the given fuel does not
// exceed max; stations lacking the fuel are excluded.
func MaxFuelPrice(fuelType string, max float64) Predicate {
	return func(st *feed.Station) bool {
		price, ok := FuelPrice(st, fuelType)
		return ok && price <= max
	}
}

// WithinDistance keeps stations with coordinates within maxKm of the
// reference point.
func WithinDistance(ref feed.Coordinates, maxKm float64) Predicate {
	return func(st *feed.Station) bool {
		d := StationDistance(st, ref)
		return !math.IsNaN(d) && d <= maxKm
	}
}

// HasServices keeps stations advertising every required service. Matching
// is a case-insensitive substring test because some feed entries pack
// several services into one string.
func HasServices(required ...string) Predicate {
	return func(st *feed.Station) bool {
		for _, want := range required {
			want = strings.ToLower(want)
			found := false
			for _, have := range st.Services {
				if strings.Contains(strings.ToLower(have), want) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	}
}

// Automate24h keeps stations with a 24h automated pump.
func Automate24h() Predicate {
	return func(st *feed.Station) bool { return st.Automate24h }
}

// OnHighway keeps highway stations.
func OnHighway() Predicate {
	return func(st *feed.Station) bool { return st.Highway }
}

// FreeAccess keeps free-access stations.
func FreeAccess() Predicate {
	return func(st *feed.Station) bool { return st.FreeAccess }
}

// OpenAt keeps stations open at the given time.
func OpenAt(now time.Time) Predicate {
	return func(st *feed.Station) bool { return IsOpen(st, now) }
}

// AddressContains keeps stations whose "address, postalCode city" string
// contains the query, case-insensitively.
func AddressContains(q string) Predicate {
	q = strings.ToLower(q)
	return func(st *feed.Station) bool {
		return strings.Contains(strings.ToLower(FullAddress(st)), q)
	}
}

// FullAddress renders the display address used for free-text matching.
func FullAddress(st *feed.Station) string {
	var b strings.Builder
	if st.Address != "" {
		b.WriteString(st.Address)
		b.WriteString(", ")
	}
	if st.PostalCode != "" {
		b.WriteString(st.PostalCode)
		b.WriteString(" ")
	}
	b.WriteString(st.City)
	return strings.TrimSpace(b.String())
}

// OrderBy selects the ranking key for RankTopN.
type OrderBy string

const (
	OrderByDistance OrderBy = "distance"
	OrderByPrice    OrderBy = "price"
)

// RankOptions carries the context a ranking key may need. Ref is required
// for distance ordering; FuelType selects the price key, with the cheapest
// available fuel used when it is empty.
type RankOptions struct {
	Ref      *feed.Coordinates
	FuelType string
}

// RankTopN sorts ascending by the chosen key and returns the first n
// results. Stations missing the key sort last; ties keep input order.
func RankTopN(stations []feed.Station, n int, orderBy OrderBy, opts RankOptions) []Result {
	results := make([]Result, 0, len(stations))
	for i := range stations {
		st := &stations[i]
		r := Result{Station: st, Distance: math.NaN(), SelectedFuelPrice: math.NaN()}
		if opts.Ref != nil {
			r.Distance = StationDistance(st, *opts.Ref)
		}
		if opts.FuelType != "" {
			if price, ok := FuelPrice(st, opts.FuelType); ok {
				r.SelectedFuelPrice = price
			}
		} else if cheapest, ok := CheapestFuel(st); ok {
			r.SelectedFuelPrice = cheapest.Price
		}
		results = append(results, r)
	}

	key := func(r Result) float64 {
		var v float64
		switch orderBy {
		case OrderByPrice:
			v = r.SelectedFuelPrice
		default:
			v = r.Distance
		}
		if math.IsNaN(v) {
			return math.Inf(1)
		}
		return v
	}

	sort.SliceStable(results, func(i, j int) bool {
		return key(results[i]) < key(results[j])
	})

	if n >= 0 && n < len(results) {
		results = results[:n]
	}
	return results
}
