package geo

import (
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestQuadkey(t *testing.T) {
	t.Run("encodes column and row bits", func(t *testing.T) {
		qk, err := Quadkey(5, 3, 3)
		require.NoError(t, err)
		require.Equal(t, "213", qk)
	})

	t.Run("zoom 0 is the empty key", func(t *testing.T) {
		qk, err := Quadkey(0, 0, 0)
		require.NoError(t, err)
		require.Empty(t, qk)
	})

	t.Run("out of range tile is rejected", func(t *testing.T) {
		_, err := Quadkey(8, 0, 3)
		require.Error(t, err)
		require.True(t, errors.IsType(err, ErrTypeInvalidTile))
	})
}

func TestParseQuadkey(t *testing.T) {
	t.Run("decodes a quadkey", func(t *testing.T) {
		row, col, zoom, err := ParseQuadkey("213")
		require.NoError(t, err)
		require.Equal(t, 5, row)
		require.Equal(t, 3, col)
		require.Equal(t, 3, zoom)
	})

	t.Run("empty quadkey", func(t *testing.T) {
		_, _, _, err := ParseQuadkey("")
		require.True(t, errors.IsType(err, ErrTypeInvalidQuadkey))
	})

	t.Run("invalid digit", func(t *testing.T) {
		_, _, _, err := ParseQuadkey("0142")
		require.True(t, errors.IsType(err, ErrTypeInvalidQuadkey))
	})
}

func TestQuadkeyRoundTrip(t *testing.T) {
	points := []struct {
		name string
		lat  float64
		lon  float64
		zoom int
	}{
		{name: "auckland", lat: -36.8485 * DegreesToRadians, lon: 174.7633 * DegreesToRadians, zoom: 12},
		{name: "greenwich", lat: 51.4769 * DegreesToRadians, lon: -0.0005 * DegreesToRadians, zoom: 17},
		{name: "null island", lat: 0.0001, lon: 0.0001, zoom: 1},
		{name: "far north", lat: 84 * DegreesToRadians, lon: -120 * DegreesToRadians, zoom: 6},
	}

	for _, projection := range []Projection{WebMercator{}, Geodetic{}} {
		for _, p := range points {
			t.Run(projection.Name()+" "+p.name, func(t *testing.T) {
				row := projection.LatitudeToRow(p.lat, p.zoom)
				col := LongitudeToCol(p.lon, p.zoom)

				qk, err := Quadkey(row, col, p.zoom)
				require.NoError(t, err)
				require.Len(t, qk, p.zoom)

				lat, lon, zoom, err := QuadkeyToCenter(projection, qk)
				require.NoError(t, err)
				require.Equal(t, p.zoom, zoom)

				b := TileBounds(projection, row, col, p.zoom)
				require.LessOrEqual(t, abs(lat-p.lat), b.LatRange/2+1e-12)
				require.LessOrEqual(t, abs(lon-p.lon), b.LonRange/2+1e-12)

				direct, err := LatLonToQuadkey(projection, p.lat, p.lon, p.zoom)
				require.NoError(t, err)
				require.Equal(t, qk, direct)
			})
		}
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
