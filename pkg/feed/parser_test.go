package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDoc = `<?xml version="1.0" encoding="UTF-8"?>
<pdv_liste>
  <pdv id="1000001" latitude="4620114" longitude="519791" cp="01000" pop="R" marque="TotalEnergies">
    <adresse>596 AVENUE DE TREVOUX</adresse>
    <ville>SAINT-DENIS-LES-BOURG</ville>
    <horaires automate-24-24="1">
      <jour id="1" nom="Lundi" ferme="">
        <horaire ouverture="08.00" fermeture="18.30"/>
      </jour>
      <jour id="7" nom="Dimanche" ferme="1"/>
    </horaires>
    <services>
      <service>Vente de gaz domestique</service>
      <service>Lavage automatique</service>
      <service>Lavage automatique</service>
    </services>
    <prix nom="Gazole" id="1" maj="2025-06-01 06:00:00" valeur="1.789"/>
    <prix nom="SP95" id="2" maj="2025-06-01 06:00:00" valeur="1,85"/>
    <prix nom="E10" id="5" valeur="0"/>
  </pdv>
  <pdv id="1000002" latitude="0" longitude="519791" cp="69001">
    <ville>LYON</ville>
    <prix id="6" valeur="1899"/>
  </pdv>
  <pdv id="1000002" cp="69002">
    <ville>LYON 2E</ville>
    <prix id="1" valeur="1.70"/>
  </pdv>
  <pdv cp="75001" num_rue="12" type_rue="rue" nom_rue="de Rivoli">
    <ville>PARIS</ville>
    <prix id="2" valeur="1.95"/>
  </pdv>
  <pdv id="skipme" cp="99999"/>
</pdv_liste>`

func parseSample(t *testing.T) []Station {
	t.Helper()
	stations, err := NewParser(nil).Parse(sampleDoc)
	require.NoError(t, err)
	return stations
}

func TestParseStationCount(t *testing.T) {
	stations := parseSample(t)
	// The last record has no city content beyond postal code, no coords, no
	// fuel and no brand, so it is dropped.
	require.Len(t, stations, 4)
}

func TestParseFirstStationFields(t *testing.T) {
	st := parseSample(t)[0]

	assert.Equal(t, "1000001", st.ID)
	assert.Equal(t, "TotalEnergies", st.Brand)
	assert.Equal(t, "TotalEnergies", st.Name)
	assert.Equal(t, "596 AVENUE DE TREVOUX", st.Address)
	assert.Equal(t, "SAINT-DENIS-LES-BOURG", st.City)
	assert.Equal(t, "01000", st.PostalCode)
	assert.False(t, st.Highway)
	assert.True(t, st.Automate24h)

	require.NotNil(t, st.Coordinates)
	assert.InDelta(t, 46.20114, st.Coordinates.Latitude, 1e-9)
	assert.InDelta(t, 5.19791, st.Coordinates.Longitude, 1e-9)
}

func TestParseFuels(t *testing.T) {
	st := parseSample(t)[0]

	// The zero-priced E10 entry is dropped entirely.
	require.Len(t, st.Fuels, 2)
	assert.Equal(t, "Gazole", st.Fuels[0].Name)
	assert.InDelta(t, 1.789, st.Fuels[0].Price, 1e-9)
	assert.Equal(t, "2025-06-01 06:00:00", st.Fuels[0].LastUpdate)
	assert.Equal(t, "SP95", st.Fuels[1].Name)
	assert.InDelta(t, 1.85, st.Fuels[1].Price, 1e-9)
}

func TestParseScaledFuelPrice(t *testing.T) {
	st := parseSample(t)[1]
	require.Len(t, st.Fuels, 1)
	assert.Equal(t, "SP98", st.Fuels[0].Name)
	assert.InDelta(t, 1.899, st.Fuels[0].Price, 1e-9)
}

func TestParseServicesDeduplicated(t *testing.T) {
	st := parseSample(t)[0]
	assert.Equal(t, []string{"Vente de gaz domestique", "Lavage automatique"}, st.Services)
}

func TestParseOpeningHours(t *testing.T) {
	st := parseSample(t)[0]
	require.NotNil(t, st.OpeningHours)

	monday, ok := st.OpeningHours[time.Monday]
	require.True(t, ok)
	assert.False(t, monday.Closed)
	require.Len(t, monday.Ranges, 1)
	assert.Equal(t, TimeRange{Open: "08:00", Close: "18:30"}, monday.Ranges[0])

	sunday, ok := st.OpeningHours[time.Sunday]
	require.True(t, ok)
	assert.True(t, sunday.Closed)
	assert.Empty(t, sunday.Ranges)

	// Tuesday is unspecified, not closed.
	_, ok = st.OpeningHours[time.Tuesday]
	assert.False(t, ok)
}

func TestParseCoordinatePairAtomic(t *testing.T) {
	// Second station has latitude="0": the whole pair is absent.
	st := parseSample(t)[1]
	assert.Nil(t, st.Coordinates)
}

func TestParseDuplicateIDsGetSuffixed(t *testing.T) {
	stations := parseSample(t)
	assert.Equal(t, "1000002", stations[1].ID)
	assert.Equal(t, "1000002-1", stations[2].ID)

	seen := make(map[string]bool)
	for _, st := range stations {
		assert.False(t, seen[st.ID], "duplicate id %s", st.ID)
		seen[st.ID] = true
	}
}

func TestParseSynthesizedIDAndAddress(t *testing.T) {
	st := parseSample(t)[3]
	assert.Equal(t, "station-3", st.ID)
	assert.Equal(t, "12 rue de Rivoli", st.Address)
}

func TestParseStructuralFailureSurfaces(t *testing.T) {
	_, err := NewParser(nil).Parse(`<pdv_liste><pdv id="1"><ville>LYON</pdv_liste>`)
	assert.Error(t, err)
}

func TestParseAlternateContainerName(t *testing.T) {
	doc := `<root><station id="7" latitude="4500000" longitude="500000"><ville>X</ville></station></root>`
	stations, err := NewParser(nil).Parse(doc)
	require.NoError(t, err)
	require.Len(t, stations, 1)
	assert.Equal(t, "7", stations[0].ID)
}

func TestParseServiceCatchAllChild(t *testing.T) {
	doc := `<pdv_liste><pdv id="1" cp="01000"><ville>BOURG</ville><station_services>Gonflage</station_services></pdv></pdv_liste>`
	stations, err := NewParser(nil).Parse(doc)
	require.NoError(t, err)
	require.Len(t, stations, 1)
	assert.Equal(t, []string{"Gonflage"}, stations[0].Services)
}

func TestParseEmptyDocument(t *testing.T) {
	stations, err := NewParser(nil).Parse(`<pdv_liste></pdv_liste>`)
	require.NoError(t, err)
	assert.Empty(t, stations)
}
