package source

// TileJSONVersion is the TileJSON specification version emitted for every
// source.
const TileJSONVersion = "2.2.0"

// Zoom range advertised when a source does not narrow it.
const (
	DefaultMinZoom uint8 = 0
	DefaultMaxZoom uint8 = 30
)

// TileJSON is a TileJSON 2.2.0 document.
type TileJSON struct {
	TileJSON     string        `json:"tilejson"`
	Name         string        `json:"name"`
	Scheme       string        `json:"scheme"`
	Tiles        []string      `json:"tiles"`
	Bounds       []float64     `json:"bounds,omitempty"`
	MinZoom      uint8         `json:"minzoom"`
	MaxZoom      uint8         `json:"maxzoom"`
	VectorLayers []VectorLayer `json:"vector_layers,omitempty"`
}

// VectorLayer describes one MVT layer and its attribute fields.
type VectorLayer struct {
	ID     string            `json:"id"`
	Fields map[string]string `json:"fields"`
}

func newTileJSON(name string) *TileJSON {
	return &TileJSON{
		TileJSON: TileJSONVersion,
		Name:     name,
		Scheme:   "xyz",
		Tiles:    []string{},
		MinZoom:  DefaultMinZoom,
		MaxZoom:  DefaultMaxZoom,
	}
}
