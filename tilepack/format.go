package tilepack

import (
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/protomaps/go-pmtiles/pmtiles"
)

const defaultFormat = "png"

// DetectFormat sniffs the image format of a tile and returns its file
// extension without the dot. Unknown content is treated as png.
func DetectFormat(data []byte) string {
	mtype := mimetype.Detect(data)
	for m := mtype; m != nil; m = m.Parent() {
		switch m.Extension() {
		case ".png":
			return "png"
		case ".jpg":
			return "jpg"
		case ".webp":
			return "webp"
		case ".avif":
			return "avif"
		case ".gz":
			return "pbf"
		}
	}
	return defaultFormat
}

// ContentType returns the MIME type to serve a tile with.
func ContentType(data []byte) string {
	return mimetype.Detect(data).String()
}

func pmtilesTileType(format string) pmtiles.TileType {
	switch strings.ToLower(format) {
	case "png":
		return pmtiles.Png
	case "jpg", "jpeg":
		return pmtiles.Jpeg
	case "webp":
		return pmtiles.Webp
	case "avif":
		return pmtiles.Avif
	case "pbf", "mvt":
		return pmtiles.Mvt
	default:
		return pmtiles.UnknownTileType
	}
}
