package tilesource

import (
	json "github.com/goccy/go-json"

	"github.com/versatiles-org/versatiles-go/internal/xerrors"
)

// VectorLayer describes one layer of a vector tile source, mirroring the
// TileJSON 3.0 "vector_layers" entry.
type VectorLayer struct {
	ID     string            `json:"id"`
	Fields map[string]string `json:"fields,omitempty"`
}

// TileJSON is a TileJSON 3.0.0 document, the standard metadata envelope
// every TileSource exposes regardless of its container format.
type TileJSON struct {
	TileJSON     string        `json:"tilejson"`
	Scheme       string        `json:"scheme"`
	Tiles        []string      `json:"tiles"`
	VectorLayers []VectorLayer `json:"vector_layers,omitempty"`
	Attribution  string        `json:"attribution,omitempty"`
	Description  string        `json:"description,omitempty"`
	Name         string        `json:"name,omitempty"`
	Version      string        `json:"version,omitempty"`
	Bounds       [4]float64    `json:"bounds"`
	Center       [3]float64    `json:"center"`
	MinZoom      uint8         `json:"minzoom"`
	MaxZoom      uint8         `json:"maxzoom"`
}

// Default returns an empty but well-formed TileJSON 3.0.0 document covering
// the whole world at zoom 0..MaxZoom.
func Default() TileJSON {
	return TileJSON{
		TileJSON: "3.0.0",
		Scheme:   "xyz",
		Bounds:   [4]float64{-180, -85.0511, 180, 85.0511},
		MaxZoom:  31,
	}
}

// Marshal serialises the document to JSON bytes.
func (t TileJSON) Marshal() ([]byte, error) {
	b, err := json.Marshal(t)
	if err != nil {
		return nil, xerrors.Wrap(err, "marshalling tilejson")
	}
	return b, nil
}

// ParseTileJSON decodes a TileJSON document from bytes.
func ParseTileJSON(data []byte) (TileJSON, error) {
	var t TileJSON
	if err := json.Unmarshal(data, &t); err != nil {
		return TileJSON{}, xerrors.Wrap(err, "parsing tilejson")
	}
	return t, nil
}

// Merge overlays non-zero fields of override onto t, used when a source's
// own metadata (bounds, zoom range) must take precedence over a stored
// TileJSON document's stale values.
func (t TileJSON) Merge(override TileJSON) TileJSON {
	out := t
	if override.Name != "" {
		out.Name = override.Name
	}
	if override.Description != "" {
		out.Description = override.Description
	}
	if override.Attribution != "" {
		out.Attribution = override.Attribution
	}
	if override.Version != "" {
		out.Version = override.Version
	}
	if len(override.VectorLayers) > 0 {
		out.VectorLayers = override.VectorLayers
	}
	if len(override.Tiles) > 0 {
		out.Tiles = override.Tiles
	}
	if override.MaxZoom != 0 {
		out.MaxZoom = override.MaxZoom
	}
	if override.MinZoom != 0 {
		out.MinZoom = override.MinZoom
	}
	if override.Bounds != ([4]float64{}) {
		out.Bounds = override.Bounds
	}
	return out
}
