package geo

import (
	"strings"

	"github.com/aukilabs/go-tooling/pkg/errors"
)

const (
	ErrTypeInvalidTile    = "invalid_tile"
	ErrTypeInvalidQuadkey = "invalid_quadkey"
)

// Quadkey encodes the given tile into a quadkey string. Each character holds
// one bit of the column (1) and one bit of the row (2), most significant first.
func Quadkey(row, col, zoom int) (string, error) {
	maxTile := (int(1) << zoom) - 1
	if zoom < 0 || row < 0 || row > maxTile || col < 0 || col > maxTile {
		return "", errors.New("tile coordinates are not valid for zoom level").
			WithType(ErrTypeInvalidTile).
			WithTag("row", row).
			WithTag("col", col).
			WithTag("zoom", zoom)
	}

	var b strings.Builder
	b.Grow(zoom)

	for i := zoom; i > 0; i-- {
		digit := byte('0')
		mask := 1 << (i - 1)
		if col&mask != 0 {
			digit++
		}
		if row&mask != 0 {
			digit += 2
		}
		b.WriteByte(digit)
	}
	return b.String(), nil
}

// ParseQuadkey decodes a quadkey into its tile coordinates.
func ParseQuadkey(quadkey string) (row, col, zoom int, err error) {
	if quadkey == "" {
		return 0, 0, 0, errors.New("quadkey is empty").
			WithType(ErrTypeInvalidQuadkey)
	}

	zoom = len(quadkey)
	for i := 0; i < zoom; i++ {
		mask := 1 << (zoom - i - 1)

		switch quadkey[i] {
		case '0':
		case '1':
			col |= mask
		case '2':
			row |= mask
		case '3':
			col |= mask
			row |= mask
		default:
			return 0, 0, 0, errors.New("invalid quadkey digit").
				WithType(ErrTypeInvalidQuadkey).
				WithTag("quadkey", quadkey).
				WithTag("position", i)
		}
	}
	return row, col, zoom, nil
}

// QuadkeyToCenter decodes a quadkey and returns the center of its tile.
func QuadkeyToCenter(p Projection, quadkey string) (lat, lon float64, zoom int, err error) {
	row, col, zoom, err := ParseQuadkey(quadkey)
	if err != nil {
		return 0, 0, 0, err
	}

	b := TileBounds(p, row, col, zoom)
	return b.CenterLat, b.CenterLon, zoom, nil
}

// LatLonToQuadkey returns the quadkey of the tile containing the given point.
func LatLonToQuadkey(p Projection, lat, lon float64, zoom int) (string, error) {
	return Quadkey(p.LatitudeToRow(lat, zoom), LongitudeToCol(lon, zoom), zoom)
}
