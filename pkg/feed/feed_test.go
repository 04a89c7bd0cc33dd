package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Two stations, one of them with the classic mismatched service close tag
// the feed ships from time to time.
const fixtureTwoStations = `<?xml version="1.0" encoding="UTF-8"?>
<pdv_liste>
  <pdv id="1" latitude="4620114" longitude="519791" cp="01000">
    <ville>BOURG-EN-BRESSE</ville>
    <service>Boutique alimentaire</services>
    <prix id="1" valeur="1.72"/>
  </pdv>
  <pdv id="2" latitude="4576138" longitude="484320" cp="69001">
    <ville>LYON</ville>
    <prix id="2" valeur="1.86"/>
  </pdv>
</pdv_liste>`

// Not even close to well-formed, but the pdv blocks survive.
const fixtureBrokenMarkup = `<pdv_liste>
  <pdv id="42" latitude="4620114" longitude="519791" ville="BOURG">
    <prix id="1" valeur="1.69"/>
  </pdv>
  <dangling><other</pdv_liste`

func TestDecodeRepairsMismatchedServiceTag(t *testing.T) {
	payload := buildArchive(t, map[string]string{"PrixCarburants.xml": fixtureTwoStations})

	client := New(Options{})
	stations, err := client.Decode(payload)
	require.NoError(t, err)
	require.Len(t, stations, 2)

	assert.Equal(t, []string{"Boutique alimentaire"}, stations[0].Services)
	assert.Equal(t, "BOURG-EN-BRESSE", stations[0].City)
	assert.Equal(t, "LYON", stations[1].City)
}

func TestDecodeFallsBackOnBrokenMarkup(t *testing.T) {
	payload := buildArchive(t, map[string]string{"feed.xml": fixtureBrokenMarkup})

	client := New(Options{})
	stations, err := client.Decode(payload)
	require.NoError(t, err)
	require.Len(t, stations, 1)

	assert.Equal(t, "42", stations[0].ID)
	require.Len(t, stations[0].Fuels, 1)
	assert.InDelta(t, 1.69, stations[0].Fuels[0].Price, 1e-9)
}

func TestDecodeNotAnArchive(t *testing.T) {
	client := New(Options{})
	_, err := client.Decode([]byte("plain text"))

	var formatErr *FormatError
	require.True(t, errors.As(err, &formatErr))
}

func TestDecodeNoStationsIsFormatError(t *testing.T) {
	payload := buildArchive(t, map[string]string{"feed.xml": "<pdv_liste></pdv_liste>"})

	client := New(Options{})
	_, err := client.Decode(payload)

	var formatErr *FormatError
	require.True(t, errors.As(err, &formatErr))
	assert.Contains(t, formatErr.Reason, "no stations")
}

func TestRefreshEndToEnd(t *testing.T) {
	payload := buildArchive(t, map[string]string{"PrixCarburants.xml": fixtureTwoStations})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	client := New(Options{
		Attempts: []Attempt{{Endpoint: srv.URL, Strategy: DirectStrategy()}},
		Timeout:  5 * time.Second,
	})

	stations, err := client.Refresh(context.Background())
	require.NoError(t, err)
	assert.Len(t, stations, 2)
}

func TestRefreshSurfacesFetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := New(Options{
		Attempts: []Attempt{{Endpoint: srv.URL, Strategy: DirectStrategy()}},
		Timeout:  2 * time.Second,
	})

	_, err := client.Refresh(context.Background())

	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
}
