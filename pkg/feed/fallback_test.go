package feed

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFallbackExtractsStations(t *testing.T) {
	// Broken enough that the tree parser refuses it, but the pdv blocks are
	// intact.
	text := `<pdv_liste>
	<pdv id="100" latitude="4620114" longitude="519791" cp="01000" ville="BOURG" pop="A">
		<prix id="1" valeur="1.75" maj="2025-06-01"/>
		<prix id="2" valeur="1,90"/>
	</pdv>
	<pdv id="200" cp="69001" ville="LYON">
		<prix id="1" valeur="0"/>
	</pdv>
	<unclosed`

	_, err := NewParser(nil).Parse(text)
	require.Error(t, err, "fixture should not tree-parse")

	stations := ParseFallback(text, nil)
	require.Len(t, stations, 2)

	first := stations[0]
	assert.Equal(t, "100", first.ID)
	assert.Equal(t, "BOURG", first.City)
	assert.Equal(t, "01000", first.PostalCode)
	assert.True(t, first.Highway)
	require.NotNil(t, first.Coordinates)
	assert.InDelta(t, 46.20114, first.Coordinates.Latitude, 1e-9)
	require.Len(t, first.Fuels, 2)
	assert.Equal(t, "Gazole", first.Fuels[0].Name)
	assert.InDelta(t, 1.75, first.Fuels[0].Price, 1e-9)
	assert.Equal(t, "2025-06-01", first.Fuels[0].LastUpdate)
	assert.InDelta(t, 1.90, first.Fuels[1].Price, 1e-9)

	// Second block keeps its city but loses the zero-priced fuel.
	assert.Equal(t, "LYON", stations[1].City)
	assert.Empty(t, stations[1].Fuels)
}

func TestParseFallbackDeduplicatesIDs(t *testing.T) {
	text := `<pdv id="1" ville="A"><prix id="1" valeur="1.5"/></pdv>` +
		`<pdv id="1" ville="B"><prix id="1" valeur="1.6"/></pdv>`

	stations := ParseFallback(text, nil)
	require.Len(t, stations, 2)
	assert.Equal(t, "1", stations[0].ID)
	assert.Equal(t, "1-1", stations[1].ID)
}

func TestParseFallbackAcceptanceRule(t *testing.T) {
	// No city, no coordinates, no fuel, no brand: dropped.
	stations := ParseFallback(`<pdv id="9" cp="75001"></pdv>`, nil)
	assert.Empty(t, stations)
}

func TestParseFallbackBoundedIteration(t *testing.T) {
	block := `<pdv id="1" ville="X"><prix id="1" valeur="1.5"/></pdv>`
	text := strings.Repeat(block, MaxFallbackBlocks+50)

	stations := ParseFallback(text, nil)
	assert.Len(t, stations, MaxFallbackBlocks)
}

func TestParseFallbackEmptyInput(t *testing.T) {
	assert.Empty(t, ParseFallback("", nil))
	assert.Empty(t, ParseFallback("no stations here", nil))
}
