package tiles

import (
	"fmt"

	"github.com/aukilabs/lodtree/geo"
)

// Layer is the kind of imagery requested for a tile.
type Layer int

const (
	LayerSatellite Layer = iota
	LayerStreet
	LayerHybrid
)

func (l Layer) String() string {
	switch l {
	case LayerStreet:
		return "street"
	case LayerHybrid:
		return "hybrid"
	default:
		return "satellite"
	}
}

// Returns the single letter map type used in quadkey imagery URLs.
func (l Layer) mapType() string {
	switch l {
	case LayerStreet:
		return "r"
	case LayerHybrid:
		return "h"
	default:
		return "a"
	}
}

// ParseLayer returns the layer with the given name.
func ParseLayer(s string) (Layer, bool) {
	switch s {
	case "satellite", "":
		return LayerSatellite, true
	case "street":
		return LayerStreet, true
	case "hybrid":
		return LayerHybrid, true
	default:
		return LayerSatellite, false
	}
}

// Key identifies a tile image.
type Key struct {
	Zoom  int   `json:"zoom"`
	Row   int   `json:"row"`
	Col   int   `json:"col"`
	Layer Layer `json:"layer"`
}

// Quadkey returns the quadkey of the tile.
func (k Key) Quadkey() (string, error) {
	return geo.Quadkey(k.Row, k.Col, k.Zoom)
}

// Child returns the key of the i-th child tile, ordered as geo.ChildCoordinates.
func (k Key) Child(i int) Key {
	row, col := geo.ChildCoordinates(k.Row, k.Col, i)
	return Key{
		Zoom:  k.Zoom + 1,
		Row:   row,
		Col:   col,
		Layer: k.Layer,
	}
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%d/%d/%d", k.Layer, k.Zoom, k.Row, k.Col)
}
