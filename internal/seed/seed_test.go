package seed_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/place-state-hub/internal/domain"
	"github.com/couchcryptid/place-state-hub/internal/seed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedJSON = `[
  {"id":"taj","name":"Taj Mahal","state":"Uttar Pradesh","category":"monument","lat":27.1751,"lng":78.0421,"capacity":100,"crowdCount":80},
  {"id":"ghat","name":"Dashashwamedh Ghat","state":"Uttar Pradesh","capacity":50}
]`

const seedTOML = `
[[places]]
id = "golden-temple"
name = "Golden Temple"
state = "Punjab"
lat = 31.62
lng = 74.8765
capacity = 1000
crowdCount = 400

[[places]]
id = "tirupati"
name = "Tirumala Temple"
state = "Andhra Pradesh"
capacity = 2000
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_JSON(t *testing.T) {
	places, err := seed.Load(writeFile(t, "places.json", seedJSON))
	require.NoError(t, err)
	require.Len(t, places, 2)

	taj := places[0]
	assert.Equal(t, "taj", taj.ID)
	assert.Equal(t, "monument", taj.Category)
	require.NotNil(t, taj.Geo)
	assert.InDelta(t, 78.0421, taj.Geo.Lon, 1e-9)
	assert.Equal(t, domain.CrowdHigh, taj.CrowdLevel)

	assert.Nil(t, places[1].Geo)
	assert.Equal(t, domain.CrowdLow, places[1].CrowdLevel)
}

func TestLoad_TOML(t *testing.T) {
	places, err := seed.Load(writeFile(t, "places.toml", seedTOML))
	require.NoError(t, err)
	require.Len(t, places, 2)
	assert.Equal(t, "golden-temple", places[0].ID)
	assert.Equal(t, domain.CrowdMedium, places[0].CrowdLevel)
	assert.Nil(t, places[1].Geo)
}

func TestLoad_Missing(t *testing.T) {
	_, err := seed.Load(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}

func TestParseJSON_Rejects(t *testing.T) {
	tests := map[string]string{
		"malformed":     `[{"id":`,
		"empty":         `[]`,
		"zero capacity": `[{"id":"a","capacity":0}]`,
		"negative":      `[{"id":"a","capacity":10,"crowdCount":-1}]`,
		"duplicate":     `[{"id":"a","capacity":10},{"id":"a","capacity":20}]`,
		"half coords":   `[{"id":"a","capacity":10,"lat":1}]`,
		"bad latitude":  `[{"id":"a","capacity":10,"lat":95,"lng":1}]`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := seed.ParseJSON([]byte(body))
			require.Error(t, err)
		})
	}
}

type stubGeocoder struct {
	results map[string]domain.GeocodingResult
}

func (s stubGeocoder) ForwardGeocode(_ context.Context, name, _ string) (domain.GeocodingResult, error) {
	return s.results[name], nil
}

func TestGeocode(t *testing.T) {
	places, err := seed.ParseJSON([]byte(seedJSON))
	require.NoError(t, err)
	geocoder := stubGeocoder{results: map[string]domain.GeocodingResult{
		"Dashashwamedh Ghat": {Lat: 25.3068, Lon: 83.0104},
	}}

	out := seed.Geocode(context.Background(), places, geocoder, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NotNil(t, out[1].Geo)
	assert.InDelta(t, 25.3068, out[1].Geo.Lat, 1e-9)
	assert.InDelta(t, 27.1751, out[0].Geo.Lat, 1e-9, "existing coordinates untouched")
	assert.Nil(t, places[1].Geo, "input slice is not modified")
}

func TestGeocode_NilGeocoder(t *testing.T) {
	places, err := seed.ParseJSON([]byte(seedJSON))
	require.NoError(t, err)
	assert.Equal(t, places, seed.Geocode(context.Background(), places, nil, slog.Default()))
}

func TestRestore(t *testing.T) {
	places, err := seed.ParseJSON([]byte(seedJSON))
	require.NoError(t, err)
	at := time.Date(2024, 4, 26, 8, 0, 0, 0, time.UTC)
	saved := []domain.Place{
		{ID: "ghat", CrowdCount: 45, CrowdLevel: domain.CrowdLow, UpdatedAt: at},
		{ID: "retired", CrowdCount: 9},
	}

	out, restored := seed.Restore(places, saved)
	assert.Equal(t, 1, restored)
	assert.Equal(t, places[0], out[0])
	assert.Equal(t, 45, out[1].CrowdCount)
	assert.Equal(t, domain.CrowdHigh, out[1].CrowdLevel, "level is recomputed against the seed capacity")
	assert.Equal(t, at, out[1].UpdatedAt)
}
