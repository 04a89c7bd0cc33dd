package feed

import (
	"encoding/xml"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// Candidate name chains probed in priority order: the feed's canonical
// vocabulary first, then alternates observed in mirror copies. The first
// candidate that matches anything wins for the whole chain.
var (
	stationElementNames = []string{"pdv", "station", "point_de_vente", "poi"}

	idAttrNames  = []string{"id", "pdv_id", "station_id"}
	latAttrNames = []string{"latitude", "lat"}
	lngAttrNames = []string{"longitude", "lng", "lon"}

	cityElementNames   = []string{"ville", "city", "commune"}
	cityAttrNames      = []string{"ville", "city", "commune"}
	postalElementNames = []string{"cp", "code_postal"}
	postalAttrNames    = []string{"cp", "code_postal", "postal_code"}
	addrElementNames   = []string{"adresse", "address"}
	addrAttrNames      = []string{"adresse", "address"}

	brandAttrNames = []string{"marque", "brand", "enseigne", "nom"}

	fuelElementNames     = []string{"prix", "carburant", "fuel"}
	fuelIDAttrNames      = []string{"id", "code"}
	fuelPriceAttrNames   = []string{"valeur", "prix", "price"}
	fuelUpdateAttrNames  = []string{"maj", "last_update", "update"}
	serviceElementNames  = []string{"service", "prestation"}
	serviceAttrNames     = []string{"nom", "name", "type"}
	hoursElementNames    = []string{"horaires", "opening_hours", "ouverture"}
	dayElementNames      = []string{"jour", "day"}
	dayNameAttrNames     = []string{"nom", "name", "jour"}
	rangeElementNames    = []string{"horaire", "plage", "creneau"}
	rangeOpenAttrNames   = []string{"ouverture", "opening", "open"}
	rangeCloseAttrNames  = []string{"fermeture", "closing", "close"}
	automate24AttrNames  = []string{"automate-24-24", "automate_24_24", "automate24"}
	freeAccessAttrNames  = []string{"acces_libre", "free_access", "libre_service"}
	lastUpdateAttrNames  = []string{"maj", "last_update", "derniere_maj"}
	streetNumberAttrName = "num_rue"
	roadTypeAttrName     = "type_rue"
	roadNameAttrName     = "nom_rue"
)

// element is a generic markup tree node. The parser never binds the feed to
// a fixed schema; everything goes through candidate-name probing instead.
type element struct {
	name     string
	attrs    []xml.Attr
	children []*element
	text     strings.Builder
}

func (e *element) attr(names ...string) string {
	for _, name := range names {
		for _, a := range e.attrs {
			if strings.EqualFold(a.Name.Local, name) && strings.TrimSpace(a.Value) != "" {
				return strings.TrimSpace(a.Value)
			}
		}
	}
	return ""
}

// attrRaw returns the attribute value without the non-empty filter, plus
// whether the attribute exists at all.
func (e *element) attrRaw(name string) (string, bool) {
	for _, a := range e.attrs {
		if strings.EqualFold(a.Name.Local, name) {
			return a.Value, true
		}
	}
	return "", false
}

func (e *element) ownText() string {
	return strings.TrimSpace(e.text.String())
}

// find returns every descendant (any depth) whose name matches.
func (e *element) find(name string) []*element {
	var out []*element
	for _, c := range e.children {
		if strings.EqualFold(c.name, name) {
			out = append(out, c)
		}
		out = append(out, c.find(name)...)
	}
	return out
}

// childText probes candidate child element names and returns the first
// non-empty text content.
func (e *element) childText(names ...string) string {
	for _, name := range names {
		for _, c := range e.children {
			if strings.EqualFold(c.name, name) {
				if t := c.ownText(); t != "" {
					return t
				}
			}
		}
	}
	return ""
}

// parseTree reads the whole document into an element tree. Any structural
// error is fatal here; the caller decides whether to fall back.
func parseTree(text string) (*element, error) {
	dec := xml.NewDecoder(strings.NewReader(text))
	dec.Entity = xml.HTMLEntity

	root := &element{name: ""}
	stack := []*element{root}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			el := &element{
				name:  t.Name.Local,
				attrs: append([]xml.Attr(nil), t.Attr...),
			}
			parent := stack[len(stack)-1]
			parent.children = append(parent.children, el)
			stack = append(stack, el)
		case xml.EndElement:
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			stack[len(stack)-1].text.Write(t)
		}
	}

	return root, nil
}

// Parser is the schema-tolerant primary parser.
type Parser struct {
	log *slog.Logger
}

// NewParser creates a Parser; a nil logger discards events.
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Parser{log: logger}
}

// Parse builds the station list from repaired markup text. A structural
// parse failure is returned to the caller, which is expected to try the
// fallback parser; individual bad station records are skipped, never fatal.
func (p *Parser) Parse(text string) ([]Station, error) {
	root, err := parseTree(text)
	if err != nil {
		return nil, err
	}

	var nodes []*element
	for _, candidate := range stationElementNames {
		nodes = root.find(candidate)
		if len(nodes) > 0 {
			break
		}
	}

	ids := newIDSet()
	stations := make([]Station, 0, len(nodes))
	for i, node := range nodes {
		station, ok := p.extractStation(node, i, ids)
		if !ok {
			continue
		}
		stations = append(stations, station)
	}
	return stations, nil
}

// extractStation converts one station node. Extraction is defensive: a
// panic while probing a malformed record drops that record only.
func (p *Parser) extractStation(node *element, index int, ids *idSet) (station Station, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Warn("skipping malformed station record", "index", index, "cause", r)
			ok = false
		}
	}()

	station.ID = node.attr(idAttrNames...)
	if station.ID == "" {
		station.ID = "station-" + strconv.Itoa(index)
	}

	station.Coordinates = coordinatesFrom(node.attr(latAttrNames...), node.attr(lngAttrNames...))

	station.City = firstNonEmpty(node.childText(cityElementNames...), node.attr(cityAttrNames...))
	station.PostalCode = firstNonEmpty(node.childText(postalElementNames...), node.attr(postalAttrNames...))

	station.Address = firstNonEmpty(node.childText(addrElementNames...), node.attr(addrAttrNames...))
	if station.Address == "" {
		station.Address = joinAddress(
			node.attr(streetNumberAttrName),
			node.attr(roadTypeAttrName),
			node.attr(roadNameAttrName),
		)
	}

	station.Brand = node.attr(brandAttrNames...)
	if station.Brand != "" {
		station.Name = station.Brand
	}

	station.Fuels = p.extractFuels(node)
	station.Services = extractServices(node)
	station.OpeningHours, station.Automate24h = extractOpeningHours(node)

	if !station.Automate24h {
		station.Automate24h = truthy(node.attr(automate24AttrNames...))
	}
	station.Highway = strings.EqualFold(node.attr("pop"), "a") || truthy(node.attr("autoroute"))
	station.FreeAccess = truthy(node.attr(freeAccessAttrNames...))
	station.LastUpdate = node.attr(lastUpdateAttrNames...)

	if !acceptStation(&station) {
		return Station{}, false
	}

	station.ID = ids.claim(station.ID)
	return station, true
}

// acceptStation keeps a record only when it has an id and at least one
// piece of usable content.
func acceptStation(st *Station) bool {
	if st.ID == "" {
		return false
	}
	return st.City != "" || st.Coordinates != nil || len(st.Fuels) > 0 || st.Brand != ""
}

func (p *Parser) extractFuels(node *element) []Fuel {
	var entries []*element
	for _, candidate := range fuelElementNames {
		entries = node.find(candidate)
		if len(entries) > 0 {
			break
		}
	}

	var fuels []Fuel
	for _, entry := range entries {
		raw := entry.attr(fuelPriceAttrNames...)
		if raw == "" {
			raw = entry.ownText()
		}
		price, usable := normalizePrice(raw)
		if !usable {
			continue
		}
		id := entry.attr(fuelIDAttrNames...)
		fuels = append(fuels, Fuel{
			ID:         id,
			Name:       FuelName(id),
			Price:      price,
			LastUpdate: entry.attr(fuelUpdateAttrNames...),
		})
	}
	return fuels
}

func extractServices(node *element) []string {
	seen := make(map[string]struct{})
	var services []string
	add := func(v string) {
		v = strings.TrimSpace(v)
		if v == "" {
			return
		}
		if _, dup := seen[v]; dup {
			return
		}
		seen[v] = struct{}{}
		services = append(services, v)
	}

	for _, candidate := range serviceElementNames {
		for _, entry := range node.find(candidate) {
			if t := entry.ownText(); t != "" {
				add(t)
				continue
			}
			add(entry.attr(serviceAttrNames...))
		}
	}

	// Catch-all for odd vocabularies: any direct child whose tag mentions
	// "service" and is not one of the probed names contributes its text.
	for _, child := range node.children {
		lower := strings.ToLower(child.name)
		if !strings.Contains(lower, "service") || isServiceCandidate(lower) {
			continue
		}
		add(child.ownText())
	}

	return services
}

func isServiceCandidate(name string) bool {
	for _, c := range serviceElementNames {
		if name == c {
			return true
		}
	}
	return false
}

func extractOpeningHours(node *element) (map[time.Weekday]DaySchedule, bool) {
	var container *element
	for _, candidate := range hoursElementNames {
		if found := node.find(candidate); len(found) > 0 {
			container = found[0]
			break
		}
	}
	if container == nil {
		return nil, false
	}

	automate := truthy(container.attr(automate24AttrNames...))

	var days []*element
	for _, candidate := range dayElementNames {
		days = container.find(candidate)
		if len(days) > 0 {
			break
		}
	}

	hours := make(map[time.Weekday]DaySchedule)
	for _, day := range days {
		label := day.attr(dayNameAttrNames...)
		if label == "" {
			label = day.attr("id")
		}
		weekday, known := weekdayFromName(label)
		if !known {
			continue
		}

		if dayClosed(day) {
			hours[weekday] = DaySchedule{Closed: true}
			continue
		}

		var ranges []TimeRange
		for _, candidate := range rangeElementNames {
			for _, slot := range day.find(candidate) {
				opens, okOpen := normalizeTime(slot.attr(rangeOpenAttrNames...))
				closes, okClose := normalizeTime(slot.attr(rangeCloseAttrNames...))
				if !okOpen || !okClose {
					continue
				}
				ranges = append(ranges, TimeRange{Open: opens, Close: closes})
			}
			if len(ranges) > 0 {
				break
			}
		}
		hours[weekday] = DaySchedule{Ranges: ranges}
	}

	if len(hours) == 0 {
		return nil, automate
	}
	return hours, automate
}

// dayClosed: an explicit closed flag, or text content saying so.
func dayClosed(day *element) bool {
	if v, present := day.attrRaw("ferme"); present && truthy(v) {
		return true
	}
	if truthy(day.attr("closed")) {
		return true
	}
	text := strings.ToLower(day.ownText())
	return strings.Contains(text, "fermé") || strings.Contains(text, "ferme") || strings.Contains(text, "closed")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

