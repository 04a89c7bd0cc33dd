package feed

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// coordinateScale is the fixed-point convention of the feed: latitude and
// longitude are published as degrees multiplied by 100000.
const coordinateScale = 100000.0

// priceScaleThreshold: prices above this are assumed to be scaled integers
// (1789 instead of 1.789) and are divided by 1000.
const priceScaleThreshold = 10.0

// idSet tracks the ids handed out during a single parse pass so duplicates
// from the feed get a "-{n}" suffix instead of colliding. It is local to
// one pass; concurrent parses never share one.
type idSet struct {
	used map[string]struct{}
}

func newIDSet() *idSet {
	return &idSet{used: make(map[string]struct{})}
}

// claim returns id, or the first id-{n} variant not seen before, and records
// the result.
func (s *idSet) claim(id string) string {
	if _, taken := s.used[id]; !taken {
		s.used[id] = struct{}{}
		return id
	}
	for n := 1; ; n++ {
		candidate := id + "-" + strconv.Itoa(n)
		if _, taken := s.used[candidate]; !taken {
			s.used[candidate] = struct{}{}
			return candidate
		}
	}
}

// parseCoordinate converts one raw axis value. A raw value of exactly 0
// means "absent" for that axis.
func parseCoordinate(raw string) (float64, bool) {
	raw = strings.TrimSpace(strings.Replace(raw, ",", ".", 1))
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v == 0 {
		return 0, false
	}
	return v / coordinateScale, true
}

// coordinatesFrom builds the coordinate pair, which is atomic: either both
// axes are present and non-zero or the pair is absent.
func coordinatesFrom(rawLat, rawLng string) *Coordinates {
	lat, okLat := parseCoordinate(rawLat)
	lng, okLng := parseCoordinate(rawLng)
	if !okLat || !okLng {
		return nil
	}
	return &Coordinates{Latitude: lat, Longitude: lng}
}

// normalizePrice parses a raw price with either decimal separator and
// rescales the occasional integer-encoded form. Prices that do not come out
// strictly positive are unusable.
func normalizePrice(raw string) (float64, bool) {
	raw = strings.TrimSpace(strings.Replace(raw, ",", ".", 1))
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	if v > priceScaleThreshold {
		v /= 1000
	}
	if v <= 0 {
		return 0, false
	}
	return v, true
}

// The feed writes times as "08.00"; older copies use "08:00" or "8h30".
var timeRe = regexp.MustCompile(`^([0-9]{1,2})[.:h]([0-9]{2})$`)

// normalizeTime canonicalizes a raw time to HH:MM.
func normalizeTime(raw string) (string, bool) {
	m := timeRe.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return "", false
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	if hour > 23 || minute > 59 {
		return "", false
	}
	return fmt2(hour) + ":" + fmt2(minute), true
}

func fmt2(v int) string {
	if v < 10 {
		return "0" + strconv.Itoa(v)
	}
	return strconv.Itoa(v)
}

// truthy reports whether a flag attribute value means "yes".
func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "oui", "yes":
		return true
	}
	return false
}

// weekdayNames resolves day labels to weekdays: French full names and
// abbreviations, plus the English variants some mirror copies carry.
var weekdayNames = map[string]time.Weekday{
	"lundi":    time.Monday,
	"mardi":    time.Tuesday,
	"mercredi": time.Wednesday,
	"jeudi":    time.Thursday,
	"vendredi": time.Friday,
	"samedi":   time.Saturday,
	"dimanche": time.Sunday,

	"lun": time.Monday,
	"mar": time.Tuesday,
	"mer": time.Wednesday,
	"jeu": time.Thursday,
	"ven": time.Friday,
	"sam": time.Saturday,
	"dim": time.Sunday,

	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
	"sunday":    time.Sunday,
}

// weekdayFromName also accepts the feed's numeric day ids (1 = Monday).
func weekdayFromName(name string) (time.Weekday, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if wd, ok := weekdayNames[key]; ok {
		return wd, true
	}
	if n, err := strconv.Atoi(key); err == nil && n >= 1 && n <= 7 {
		return time.Weekday(n % 7), true
	}
	return 0, false
}

// joinAddress synthesizes a street address from the split attributes some
// feed variants use instead of a single address field.
func joinAddress(number, roadType, roadName string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{number, roadType, roadName} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}
