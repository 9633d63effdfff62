package main

import (
	"math"
	"time"

	"github.com/aukilabs/lodtree/geo"
	"github.com/golang/geo/r3"
)

// orbitCamera is a scripted viewer that circles the planet eastward while
// diving from its maximum altitude to its minimum altitude and back.
type orbitCamera struct {
	Ellipsoid geo.Ellipsoid

	// Starting position, in radians.
	Latitude  float64
	Longitude float64

	// Altitude range, in kilometers.
	MaxAltitude float64
	MinAltitude float64

	// The duration of a full orbit and of a full dive. The camera is static
	// when 0.
	Period time.Duration

	start time.Time
	now   func() time.Time
}

// Position must be called from a single goroutine.
func (c *orbitCamera) Position() r3.Vector {
	if c.Period <= 0 {
		return c.Ellipsoid.Cartesian(c.Latitude, c.Longitude, c.MaxAltitude)
	}

	if c.now == nil {
		c.now = time.Now
	}
	if c.start.IsZero() {
		c.start = c.now()
	}

	phase := 2 * math.Pi * float64(c.now().Sub(c.start)%c.Period) / float64(c.Period)

	lon := math.Remainder(c.Longitude+phase, 2*math.Pi)
	alt := c.MinAltitude + (c.MaxAltitude-c.MinAltitude)*(1+math.Cos(phase))/2
	return c.Ellipsoid.Cartesian(c.Latitude, lon, alt)
}
