package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWebMercatorRowToLatitude(t *testing.T) {
	p := WebMercator{}

	require.InDelta(t, MaxLatitudeWebMercator, p.RowToLatitude(0, 0), 1e-9)
	require.InDelta(t, -MaxLatitudeWebMercator, p.RowToLatitude(1, 0), 1e-9)
	require.InDelta(t, 0, p.RowToLatitude(1, 1), 1e-12)
}

func TestWebMercatorLatitudeToRow(t *testing.T) {
	p := WebMercator{}

	t.Run("zoom 0 is always row 0", func(t *testing.T) {
		require.Equal(t, 0, p.LatitudeToRow(1, 0))
		require.Equal(t, 0, p.LatitudeToRow(-1, 0))
	})

	t.Run("north and south hemispheres", func(t *testing.T) {
		require.Equal(t, 0, p.LatitudeToRow(0.5, 1))
		require.Equal(t, 1, p.LatitudeToRow(-0.5, 1))
	})

	t.Run("poles are clamped", func(t *testing.T) {
		require.Equal(t, 0, p.LatitudeToRow(MaxLatitude, 4))
		require.Equal(t, 15, p.LatitudeToRow(MinLatitude, 4))
	})
}

func TestLongitudeToCol(t *testing.T) {
	require.Equal(t, 0, LongitudeToCol(-math.Pi, 3))
	require.Equal(t, 7, LongitudeToCol(math.Pi, 3))
	require.Equal(t, 4, LongitudeToCol(0, 3))
	require.InDelta(t, -math.Pi, ColToLongitude(0, 3), 1e-12)
	require.InDelta(t, 0, ColToLongitude(4, 3), 1e-12)
}

func TestTileBounds(t *testing.T) {
	t.Run("children tile their parent", func(t *testing.T) {
		p := WebMercator{}
		parent := TileBounds(p, 3, 5, 4)

		var latRange float64
		for i := 0; i < 4; i++ {
			row, col := ChildCoordinates(3, 5, i)
			child := TileBounds(p, row, col, 5)
			require.True(t, parent.Contains(child.CenterLat, child.CenterLon))
			require.InDelta(t, parent.LonRange/2, child.LonRange, 1e-12)

			if i%2 == 0 {
				latRange += child.LatRange
			}
		}
		require.InDelta(t, parent.LatRange, latRange, 1e-9)
	})

	t.Run("geodetic first row touches the north pole", func(t *testing.T) {
		p := Geodetic{}

		north := TileBounds(p, 0, 0, 2)
		require.True(t, north.TouchesNorthPole())
		require.False(t, north.TouchesSouthPole())

		south := TileBounds(p, 3, 0, 2)
		require.True(t, south.TouchesSouthPole())

		middle := TileBounds(p, 1, 0, 2)
		require.False(t, middle.TouchesPole())
	})

	t.Run("web mercator never touches a pole", func(t *testing.T) {
		p := WebMercator{}
		require.False(t, TileBounds(p, 0, 0, 0).TouchesPole())
		require.False(t, TileBounds(p, 0, 0, 3).TouchesPole())
	})
}

func TestChildCoordinates(t *testing.T) {
	expected := [][2]int{{4, 6}, {4, 7}, {5, 6}, {5, 7}}
	for i, e := range expected {
		row, col := ChildCoordinates(2, 3, i)
		require.Equal(t, e[0], row)
		require.Equal(t, e[1], col)
	}
}

func TestValidTile(t *testing.T) {
	p := WebMercator{}
	require.True(t, ValidTile(p, 0, 0, 0))
	require.True(t, ValidTile(p, 3, 3, 2))
	require.False(t, ValidTile(p, 4, 0, 2))
	require.False(t, ValidTile(p, 0, -1, 2))
}

func TestProjectionByName(t *testing.T) {
	p, ok := ProjectionByName("geodetic")
	require.True(t, ok)
	require.Equal(t, "geodetic", p.Name())

	p, ok = ProjectionByName("")
	require.True(t, ok)
	require.Equal(t, "web_mercator", p.Name())

	_, ok = ProjectionByName("lambert")
	require.False(t, ok)
}
