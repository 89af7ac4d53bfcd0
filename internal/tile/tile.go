// Package tile provides slippy-map tile coordinates and their Web Mercator
// envelopes.
package tile

import (
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"

	"github.com/hlop3z/tilehouse/internal/alerr"
)

// MercatorSRID is the spatial reference of every tile envelope.
const MercatorSRID = 3857

// MercatorMax is half the width of the Web Mercator world in meters.
const MercatorMax = 20037508.3427892

// XYZ is a tile coordinate. Range is not enforced; out-of-range tiles simply
// produce an empty or failed result downstream.
type XYZ struct {
	Z uint32 `json:"z"`
	X uint32 `json:"x"`
	Y uint32 `json:"y"`
}

// New returns the coordinate z/x/y.
func New(z, x, y uint32) XYZ {
	return XYZ{Z: z, X: x, Y: y}
}

// FromMaptile converts an orb maptile.
func FromMaptile(t maptile.Tile) XYZ {
	return XYZ{Z: uint32(t.Z), X: t.X, Y: t.Y}
}

// Maptile returns the coordinate as an orb maptile.
func (t XYZ) Maptile() maptile.Tile {
	return maptile.New(t.X, t.Y, maptile.Zoom(t.Z))
}

// Valid reports whether x and y lie inside the zoom level's grid.
func (t XYZ) Valid() bool {
	return t.Maptile().Valid()
}

// Children returns the four tiles one zoom level down.
func (t XYZ) Children() []XYZ {
	children := t.Maptile().Children()
	out := make([]XYZ, len(children))
	for i, c := range children {
		out[i] = FromMaptile(c)
	}
	return out
}

func (t XYZ) String() string {
	return strconv.FormatUint(uint64(t.Z), 10) + "/" +
		strconv.FormatUint(uint64(t.X), 10) + "/" +
		strconv.FormatUint(uint64(t.Y), 10)
}

// MercatorBounds returns the tile envelope in EPSG:3857.
//
// Every edge is derived from an integer multiple of the tile resolution, so
// the four children of a tile share their edges exactly with each other and
// with the parent.
func (t XYZ) MercatorBounds() orb.Bound {
	res := (MercatorMax * 2) / math.Exp2(float64(t.Z))
	x := float64(t.X)
	y := float64(t.Y)

	return orb.Bound{
		Min: orb.Point{-MercatorMax + x*res, MercatorMax - (y+1)*res},
		Max: orb.Point{-MercatorMax + (x+1)*res, MercatorMax - y*res},
	}
}

// Parse reads the z, x and y path segments of a tile request. The y segment
// may carry a format suffix ("12.pbf"); the suffix is returned separately.
func Parse(z, x, y string) (XYZ, string, error) {
	y, format, _ := strings.Cut(y, ".")

	zz, err := parseUint(z, "z")
	if err != nil {
		return XYZ{}, "", err
	}
	xx, err := parseUint(x, "x")
	if err != nil {
		return XYZ{}, "", err
	}
	yy, err := parseUint(y, "y")
	if err != nil {
		return XYZ{}, "", err
	}

	return XYZ{Z: zz, X: xx, Y: yy}, format, nil
}

func parseUint(s, name string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, alerr.Wrapf(alerr.ErrInvalidTile, err, "invalid tile %s %q", name, s)
	}
	return uint32(v), nil
}
