package source

import (
	"strings"

	"github.com/paulmach/orb"

	"github.com/hlop3z/tilehouse/internal/alerr"
	"github.com/hlop3z/tilehouse/internal/tile"
)

// Composite renders several sources into a single tile. Each constituent
// contributes its own MVT layer; layers are independently framed so the
// payloads are simply concatenated.
type Composite struct {
	sources []Source
}

// NewComposite combines sources in the given order. Composites cannot nest.
func NewComposite(sources ...Source) (*Composite, error) {
	if len(sources) == 0 {
		return nil, alerr.New(alerr.ErrSourceNotFound, "composite source needs at least one constituent")
	}
	for _, s := range sources {
		if s == nil {
			return nil, alerr.New(alerr.EInternalError, "composite constituent is nil")
		}
		if s.Kind() == KindComposite {
			return nil, alerr.New(alerr.EInternalError, "composite sources cannot be nested").WithSource(s.ID())
		}
	}
	return &Composite{sources: append([]Source(nil), sources...)}, nil
}

func (c *Composite) sealed() {}

// ID joins the constituent identifiers with commas.
func (c *Composite) ID() string {
	ids := make([]string, len(c.sources))
	for i, s := range c.sources {
		ids[i] = s.ID()
	}
	return strings.Join(ids, ",")
}

func (c *Composite) Kind() Kind { return KindComposite }

// Sources returns the constituents in order.
func (c *Composite) Sources() []Source {
	return append([]Source(nil), c.sources...)
}

// Queries implements Source.
func (c *Composite) Queries(xyz tile.XYZ, params Params) ([]Query, error) {
	var out []Query
	for _, s := range c.sources {
		qs, err := s.Queries(xyz, params)
		if err != nil {
			return nil, err
		}
		out = append(out, qs...)
	}
	return out, nil
}

// TileJSON implements Source. Bounds are the union of the constituents'
// bounds and vector layers are listed in constituent order.
func (c *Composite) TileJSON() (*TileJSON, error) {
	tj := newTileJSON(c.ID())

	var union orb.Bound
	hasBounds := false
	for _, s := range c.sources {
		sub, err := s.TileJSON()
		if err != nil {
			return nil, err
		}
		tj.VectorLayers = append(tj.VectorLayers, sub.VectorLayers...)

		if len(sub.Bounds) != 4 {
			continue
		}
		b := Bounds{sub.Bounds[0], sub.Bounds[1], sub.Bounds[2], sub.Bounds[3]}.Bound()
		if !hasBounds {
			union, hasBounds = b, true
		} else {
			union = union.Union(b)
		}
	}
	if hasBounds {
		tj.Bounds = BoundsFrom(union).Slice()
	}
	return tj, nil
}
