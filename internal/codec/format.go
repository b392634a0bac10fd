// Package codec implements the compression and tile-format oracle: the set
// of pure functions that decide how a blob's bytes should be transcoded
// between compressions and image/vector formats, without knowing anything
// about where the blob came from.
package codec

// TileFormat identifies the encoding of a tile's payload bytes, mirroring
// the TileType enumeration of the PMTiles container format but extended
// with the vector/raster kinds this toolkit needs to distinguish.
type TileFormat uint8

const (
	UnknownFormat TileFormat = iota
	FormatPBF                // Mapbox Vector Tile protobuf
	FormatPNG
	FormatJPG
	FormatWEBP
	FormatAVIF
	FormatSVG
	FormatGEOJSON
	FormatTOPOJSON
	FormatJSON
	FormatBIN
)

func (f TileFormat) String() string {
	switch f {
	case FormatPBF:
		return "pbf"
	case FormatPNG:
		return "png"
	case FormatJPG:
		return "jpg"
	case FormatWEBP:
		return "webp"
	case FormatAVIF:
		return "avif"
	case FormatSVG:
		return "svg"
	case FormatGEOJSON:
		return "geojson"
	case FormatTOPOJSON:
		return "topojson"
	case FormatJSON:
		return "json"
	case FormatBIN:
		return "bin"
	default:
		return "unknown"
	}
}

// IsVector reports whether the format holds vector geometry rather than a
// raster image.
func (f TileFormat) IsVector() bool {
	switch f {
	case FormatPBF, FormatGEOJSON, FormatTOPOJSON, FormatJSON:
		return true
	default:
		return false
	}
}

// IsRaster reports whether the format holds an encoded raster image.
func (f TileFormat) IsRaster() bool {
	switch f {
	case FormatPNG, FormatJPG, FormatWEBP, FormatAVIF:
		return true
	default:
		return false
	}
}

// MimeType returns the HTTP Content-Type associated with the format.
func (f TileFormat) MimeType() string {
	switch f {
	case FormatPBF:
		return "application/x-protobuf"
	case FormatPNG:
		return "image/png"
	case FormatJPG:
		return "image/jpeg"
	case FormatWEBP:
		return "image/webp"
	case FormatAVIF:
		return "image/avif"
	case FormatSVG:
		return "image/svg+xml"
	case FormatGEOJSON:
		return "application/geo+json"
	case FormatTOPOJSON, FormatJSON:
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

// FormatFromExtension maps a file extension (without the dot) to a format.
func FormatFromExtension(ext string) TileFormat {
	switch ext {
	case "pbf", "mvt":
		return FormatPBF
	case "png":
		return FormatPNG
	case "jpg", "jpeg":
		return FormatJPG
	case "webp":
		return FormatWEBP
	case "avif":
		return FormatAVIF
	case "svg":
		return FormatSVG
	case "geojson":
		return FormatGEOJSON
	case "topojson":
		return FormatTOPOJSON
	case "json":
		return FormatJSON
	default:
		return FormatBIN
	}
}
