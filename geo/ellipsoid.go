package geo

import (
	"math"

	"github.com/golang/geo/r3"
)

// Ellipsoid is an oblate spheroid whose axis lengths are expressed in
// kilometers.
type Ellipsoid struct {
	SemiMajorAxis float64
	SemiMinorAxis float64
}

var (
	WGS84 = Ellipsoid{
		SemiMajorAxis: 6378.137,
		SemiMinorAxis: 6356.752314245,
	}

	UnitSphere = Ellipsoid{
		SemiMajorAxis: 1,
		SemiMinorAxis: 1,
	}
)

// Cartesian converts a geodetic position into world coordinates. The Y axis
// points to the north pole.
func (e Ellipsoid) Cartesian(lat, lon, alt float64) r3.Vector {
	equatorial := e.SemiMajorAxis + alt
	polar := e.SemiMinorAxis + alt

	colat := lat - math.Pi/2
	lon += math.Pi

	return r3.Vector{
		X: equatorial * math.Sin(colat) * math.Sin(lon),
		Y: polar * math.Cos(colat),
		Z: equatorial * math.Sin(colat) * math.Cos(lon),
	}
}

// Normalized converts a geodetic position into coordinates where the semi-major
// axis has a length of 1.
func (e Ellipsoid) Normalized(lat, lon float64) r3.Vector {
	v := e.Cartesian(lat, lon, 0)
	return v.Mul(1 / e.SemiMajorAxis)
}

// Geodetic converts world coordinates back into latitude, longitude and
// altitude. The altitude is measured along the direction from the center,
// which is exact for spheres and a close approximation for WGS84.
func (e Ellipsoid) Geodetic(v r3.Vector) (lat, lon, alt float64) {
	if v.Norm() == 0 {
		return 0, 0, -e.SemiMajorAxis
	}

	horizontal := math.Hypot(v.X, v.Z)
	lat = math.Atan2(v.Y*e.SemiMajorAxis/e.SemiMinorAxis, horizontal)
	lon = math.Atan2(v.X, v.Z)

	surface := e.Cartesian(lat, lon, 0)
	alt = v.Norm() - surface.Norm()
	return lat, lon, alt
}
