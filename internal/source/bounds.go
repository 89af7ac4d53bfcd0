package source

import (
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"github.com/hlop3z/tilehouse/internal/alerr"
)

// Bounds is [minX, minY, maxX, maxY] in the source's native SRID.
type Bounds [4]float64

// WorldBounds is used for tables whose extent is NULL (no rows yet).
var WorldBounds = Bounds{-180, -90, 180, 90}

// Bound converts to an orb bound.
func (b Bounds) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{b[0], b[1]}, Max: orb.Point{b[2], b[3]}}
}

// BoundsFrom converts an orb bound.
func BoundsFrom(b orb.Bound) Bounds {
	return Bounds{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}
}

// Slice returns the bounds as a slice, as TileJSON expects.
func (b Bounds) Slice() []float64 {
	return []float64{b[0], b[1], b[2], b[3]}
}

// ParseBox parses the text form of a PostGIS box2d, as produced by
// ST_Extent(geom)::TEXT: "BOX(minx miny,maxx maxy)".
//
// "BOX", parentheses are stripped and spaces become commas; the result must
// split into exactly four floats.
func ParseBox(s string) (Bounds, error) {
	cleaned := strings.NewReplacer("BOX", "", "(", "", ")", "").Replace(strings.TrimSpace(s))
	cleaned = strings.ReplaceAll(cleaned, " ", ",")

	parts := strings.Split(cleaned, ",")
	if len(parts) != 4 {
		return Bounds{}, alerr.Newf(alerr.ErrMalformedMetadata,
			"bounds must contain 4 coordinates, got %d", len(parts)).With("bounds", s)
	}

	var b Bounds
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return Bounds{}, alerr.Wrap(alerr.ErrMalformedMetadata, err, "bounds coordinate is not a number").
				With("bounds", s).
				With("coordinate", p)
		}
		b[i] = v
	}
	return b, nil
}
