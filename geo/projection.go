package geo

import (
	"math"
)

const (
	// The latitude where the Web Mercator projection is cut, in radians
	// (about 85.0511 degrees).
	MaxLatitudeWebMercator = 1.484422229745

	MinLatitude  = -math.Pi / 2
	MaxLatitude  = math.Pi / 2
	MinLongitude = -math.Pi
	MaxLongitude = math.Pi

	RadiansToDegrees = 180.0 / math.Pi
	DegreesToRadians = math.Pi / 180.0
)

// Bounds is the geographic extent of a tile. All angles are in radians.
type Bounds struct {
	CenterLat float64
	CenterLon float64
	LatRange  float64
	LonRange  float64
}

// North returns the northern edge latitude.
func (b Bounds) North() float64 {
	return b.CenterLat + b.LatRange/2
}

// South returns the southern edge latitude.
func (b Bounds) South() float64 {
	return b.CenterLat - b.LatRange/2
}

func (b Bounds) West() float64 {
	return b.CenterLon - b.LonRange/2
}

func (b Bounds) East() float64 {
	return b.CenterLon + b.LonRange/2
}

// TouchesNorthPole reports whether the latitude span includes +90 degrees.
func (b Bounds) TouchesNorthPole() bool {
	return b.North() >= MaxLatitude-poleEpsilon
}

// TouchesSouthPole reports whether the latitude span includes -90 degrees.
func (b Bounds) TouchesSouthPole() bool {
	return b.South() <= MinLatitude+poleEpsilon
}

// TouchesPole reports whether the patch covering the bounds degenerates into a
// triangle.
func (b Bounds) TouchesPole() bool {
	return b.TouchesNorthPole() || b.TouchesSouthPole()
}

// Contains reports whether the given point falls within the bounds.
func (b Bounds) Contains(lat, lon float64) bool {
	return lat >= b.South()-containsEpsilon && lat <= b.North()+containsEpsilon &&
		lon >= b.West()-containsEpsilon && lon <= b.East()+containsEpsilon
}

const (
	poleEpsilon     = 1e-9
	containsEpsilon = 1e-12
)

// Projection converts between tile coordinates and geographic coordinates.
//
// Rows grow southward and columns grow eastward. Both projections split the
// world into 2^zoom columns; the number of rows depends on the projection.
type Projection interface {
	// Returns the projection name.
	Name() string

	// Returns the number of tile rows at the given zoom.
	Rows(zoom int) int

	// Returns the number of tile columns at the given zoom.
	Cols(zoom int) int

	// Returns the latitude of the northern edge of the given row.
	RowToLatitude(row, zoom int) float64

	// Returns the row that contains the given latitude.
	LatitudeToRow(lat float64, zoom int) int
}

// ColToLongitude returns the longitude of the western edge of the given
// column.
func ColToLongitude(col, zoom int) float64 {
	return float64(col)/float64(int(1)<<zoom)*2*math.Pi - math.Pi
}

// LongitudeToCol returns the column that contains the given longitude.
func LongitudeToCol(lon float64, zoom int) int {
	tilesPerSide := int(1) << zoom
	col := (lon*RadiansToDegrees + 180.0) / 360.0 * float64(tilesPerSide)
	if col >= float64(tilesPerSide) {
		return tilesPerSide - 1
	}
	if col < 0 {
		return 0
	}
	return int(math.Floor(col))
}

// LonRange returns the longitude span of any tile at the given zoom.
func LonRange(zoom int) float64 {
	return 2 * math.Pi / float64(int(1)<<zoom)
}

// LatRange returns the latitude span of the given row.
func LatRange(p Projection, row, zoom int) float64 {
	return p.RowToLatitude(row, zoom) - p.RowToLatitude(row+1, zoom)
}

// CenterLatitude returns the latitude at the middle of the given row.
func CenterLatitude(p Projection, row, zoom int) float64 {
	return p.RowToLatitude(row, zoom) - LatRange(p, row, zoom)/2
}

// CenterLongitude returns the longitude at the middle of the given column.
func CenterLongitude(col, zoom int) float64 {
	return ColToLongitude(col, zoom) + LonRange(zoom)/2
}

// TileBounds returns the geographic bounds of the given tile.
func TileBounds(p Projection, row, col, zoom int) Bounds {
	return Bounds{
		CenterLat: CenterLatitude(p, row, zoom),
		CenterLon: CenterLongitude(col, zoom),
		LatRange:  LatRange(p, row, zoom),
		LonRange:  LonRange(zoom),
	}
}

// ChildCoordinates returns the row and column of the i-th child (0 to 3) of
// the given tile. Children are ordered north-west, north-east, south-west,
// south-east.
func ChildCoordinates(row, col, i int) (int, int) {
	return row*2 + (i >> 1), col*2 + (i & 1)
}

// ValidTile reports whether the given coordinates exist at the given zoom.
func ValidTile(p Projection, row, col, zoom int) bool {
	return zoom >= 0 &&
		row >= 0 && row < p.Rows(zoom) &&
		col >= 0 && col < p.Cols(zoom)
}

// WebMercator is the slippy map projection used by most imagery providers.
// Latitudes beyond MaxLatitudeWebMercator are clamped.
type WebMercator struct{}

func (WebMercator) Name() string {
	return "web_mercator"
}

func (WebMercator) Rows(zoom int) int {
	return int(1) << zoom
}

func (WebMercator) Cols(zoom int) int {
	return int(1) << zoom
}

func (WebMercator) RowToLatitude(row, zoom int) float64 {
	n := math.Pi - 2*math.Pi*float64(row)/float64(int(1)<<zoom)
	return math.Atan(math.Sinh(n))
}

func (WebMercator) LatitudeToRow(lat float64, zoom int) int {
	if zoom == 0 {
		return 0
	}

	lat = math.Max(-MaxLatitudeWebMercator, math.Min(MaxLatitudeWebMercator, lat))
	y := (1 - math.Log(math.Tan(lat)+1/math.Cos(lat))/math.Pi) * float64(int(1)<<(zoom-1))

	tilesPerSide := int(1) << zoom
	if y >= float64(tilesPerSide) {
		return tilesPerSide - 1
	}
	if y < 0 {
		return 0
	}
	return int(math.Floor(y))
}

// Geodetic is an equirectangular tiling that covers the poles: every row spans
// the same latitude range, so the first and last rows touch the poles.
type Geodetic struct{}

func (Geodetic) Name() string {
	return "geodetic"
}

func (Geodetic) Rows(zoom int) int {
	return int(1) << zoom
}

func (Geodetic) Cols(zoom int) int {
	return int(1) << zoom
}

func (Geodetic) RowToLatitude(row, zoom int) float64 {
	return MaxLatitude - float64(row)*math.Pi/float64(int(1)<<zoom)
}

func (Geodetic) LatitudeToRow(lat float64, zoom int) int {
	rows := int(1) << zoom
	y := (MaxLatitude - lat) / math.Pi * float64(rows)
	if y >= float64(rows) {
		return rows - 1
	}
	if y < 0 {
		return 0
	}
	return int(math.Floor(y))
}

// ProjectionByName returns the projection with the given name.
func ProjectionByName(name string) (Projection, bool) {
	switch name {
	case WebMercator{}.Name(), "":
		return WebMercator{}, true

	case Geodetic{}.Name():
		return Geodetic{}, true

	default:
		return nil, false
	}
}
