package mesh

import (
	"math"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/lodtree/geo"
	"github.com/golang/geo/r3"
)

const (
	ErrTypeInvalidBounds = "invalid_bounds"
)

// UV is a texture coordinate.
type UV struct {
	U float64 `json:"u"`
	V float64 `json:"v"`
}

// Mesh is the geometry of a terrain patch.
type Mesh struct {
	Vertices []r3.Vector `json:"vertices"`
	Normals  []r3.Vector `json:"normals"`

	// Image texture coordinates.
	UVs []UV `json:"uvs"`

	// Longitude (U) and latitude (V) of each vertex, in radians. Used to
	// reproject imagery.
	GeoUVs []UV `json:"geo_uvs"`

	// Triangle list.
	Indices []uint32 `json:"indices"`
}

// Triangular reports whether the mesh is a single pole triangle.
func (m *Mesh) Triangular() bool {
	return len(m.Vertices) == 3
}

// Ellipsoid generates flat patches lying on an ellipsoid surface. Patches
// touching a pole are generated as a triangle whose apex is the pole.
type Ellipsoid struct {
	Shape geo.Ellipsoid
}

// Generate returns the mesh covering the given bounds.
func (e Ellipsoid) Generate(b geo.Bounds) (*Mesh, error) {
	if err := validateBounds(b); err != nil {
		return nil, err
	}

	m := &Mesh{}
	south := b.South()
	north := b.North()
	west := b.West()
	east := b.East()

	switch {
	case b.TouchesNorthPole():
		m.add(e.Shape, south, west, UV{U: 0, V: 1})
		m.add(e.Shape, south, east, UV{U: 1, V: 1})
		m.addPole(e.Shape, geo.MaxLatitude, b.CenterLon, UV{U: 0.5, V: 0})
		m.Indices = []uint32{0, 1, 2}

	case b.TouchesSouthPole():
		m.addPole(e.Shape, geo.MinLatitude, b.CenterLon, UV{U: 0.5, V: 1})
		m.add(e.Shape, north, east, UV{U: 1, V: 0})
		m.add(e.Shape, north, west, UV{U: 0, V: 0})
		m.Indices = []uint32{0, 1, 2}

	default:
		m.add(e.Shape, south, west, UV{U: 0, V: 1})
		m.add(e.Shape, south, east, UV{U: 1, V: 1})
		m.add(e.Shape, north, east, UV{U: 1, V: 0})
		m.add(e.Shape, north, west, UV{U: 0, V: 0})
		m.Indices = []uint32{
			0, 1, 2,
			0, 2, 3,
		}
	}

	return m, nil
}

func (m *Mesh) add(shape geo.Ellipsoid, lat, lon float64, uv UV) {
	v := shape.Cartesian(lat, lon, 0)
	m.Vertices = append(m.Vertices, v)
	m.Normals = append(m.Normals, v.Normalize())
	m.UVs = append(m.UVs, uv)
	m.GeoUVs = append(m.GeoUVs, UV{U: lon, V: lat})
}

// The pole vertex is shared by every patch of the polar row so it is placed
// exactly on the axis.
func (m *Mesh) addPole(shape geo.Ellipsoid, lat, lon float64, uv UV) {
	v := r3.Vector{Y: math.Copysign(shape.SemiMinorAxis, lat)}
	m.Vertices = append(m.Vertices, v)
	m.Normals = append(m.Normals, v.Normalize())
	m.UVs = append(m.UVs, uv)
	m.GeoUVs = append(m.GeoUVs, UV{U: lon, V: lat})
}

func validateBounds(b geo.Bounds) error {
	switch {
	case math.IsNaN(b.CenterLat) || math.IsNaN(b.CenterLon) ||
		math.IsNaN(b.LatRange) || math.IsNaN(b.LonRange):
		return errors.New("bounds contain NaN").
			WithType(ErrTypeInvalidBounds)

	case b.LatRange <= 0 || b.LonRange <= 0:
		return errors.New("bounds ranges must be positive").
			WithType(ErrTypeInvalidBounds).
			WithTag("lat_range", b.LatRange).
			WithTag("lon_range", b.LonRange)

	case b.South() < geo.MinLatitude-1e-9 || b.North() > geo.MaxLatitude+1e-9:
		return errors.New("bounds exceed latitude limits").
			WithType(ErrTypeInvalidBounds).
			WithTag("south", b.South()).
			WithTag("north", b.North())

	default:
		return nil
	}
}
