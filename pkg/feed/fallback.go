package feed

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"
)

// MaxFallbackBlocks caps how many station blocks the fallback scan will
// consider, so pathological input cannot loop the scanner forever.
const MaxFallbackBlocks = 20000

var (
	pdvBlockRe = regexp.MustCompile(`(?is)<pdv\b([^>]*)>(.*?)</pdv>`)
	prixTagRe  = regexp.MustCompile(`(?i)<prix\b([^>]*?)/?>`)
	attrPairRe = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_-]*)\s*=\s*"([^"]*)"`)
)

// ParseFallback extracts stations by pattern matching alone. It runs only
// when the tree parse fails outright, works against the canonical field
// names only, and applies the same normalization and acceptance rules as
// the primary parser.
func ParseFallback(text string, logger *slog.Logger) []Station {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	matches := pdvBlockRe.FindAllStringSubmatch(text, MaxFallbackBlocks)
	logger.Debug("fallback scan", "blocks", len(matches))

	ids := newIDSet()
	stations := make([]Station, 0, len(matches))
	for i, match := range matches {
		attrs := parseAttrPairs(match[1])
		body := match[2]

		station := Station{
			ID:          attrs["id"],
			City:        attrs["ville"],
			PostalCode:  attrs["cp"],
			Brand:       attrs["marque"],
			Coordinates: coordinatesFrom(attrs["latitude"], attrs["longitude"]),
		}
		if station.ID == "" {
			station.ID = "station-" + strconv.Itoa(i)
		}
		if station.Brand != "" {
			station.Name = station.Brand
		}
		station.Highway = strings.EqualFold(attrs["pop"], "a")

		for _, prix := range prixTagRe.FindAllStringSubmatch(body, -1) {
			fuelAttrs := parseAttrPairs(prix[1])
			price, usable := normalizePrice(fuelAttrs["valeur"])
			if !usable {
				continue
			}
			station.Fuels = append(station.Fuels, Fuel{
				ID:         fuelAttrs["id"],
				Name:       FuelName(fuelAttrs["id"]),
				Price:      price,
				LastUpdate: fuelAttrs["maj"],
			})
		}

		if !acceptStation(&station) {
			continue
		}
		station.ID = ids.claim(station.ID)
		stations = append(stations, station)
	}

	return stations
}

func parseAttrPairs(raw string) map[string]string {
	attrs := make(map[string]string)
	for _, pair := range attrPairRe.FindAllStringSubmatch(raw, -1) {
		attrs[strings.ToLower(pair[1])] = strings.TrimSpace(pair[2])
	}
	return attrs
}
