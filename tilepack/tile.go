package tilepack

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

const webMercatorLatLimit float64 = 85.05112877980659

// BoundingBox is a lat/lon box in degrees.
type BoundingBox struct {
	MinLat float64
	MinLon float64
	MaxLat float64
	MaxLon float64
}

func (b BoundingBox) Validate() error {
	if !(b.MinLat < b.MaxLat) {
		return fmt.Errorf("min latitude %f must be less than max latitude %f", b.MinLat, b.MaxLat)
	}
	if !(b.MinLon < b.MaxLon) {
		return fmt.Errorf("min longitude %f must be less than max longitude %f", b.MinLon, b.MaxLon)
	}
	return nil
}

func (b BoundingBox) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.MinLon, b.MinLat},
		Max: orb.Point{b.MaxLon, b.MaxLat},
	}
}

func (b BoundingBox) String() string {
	return fmt.Sprintf("%f,%f,%f,%f", b.MinLat, b.MinLon, b.MaxLat, b.MaxLon)
}

// ProjectToTile returns the XYZ tile containing lat/lon at zoom z. Indices are
// truncated toward zero and clamped to [0, 2^z).
func ProjectToTile(lat, lon float64, z maptile.Zoom) maptile.Tile {
	latRad := lat * math.Pi / 180.0
	n := math.Exp2(float64(z))

	x := (lon + 180.0) / 360.0 * n
	y := (1.0 - math.Log(math.Tan(latRad)+1.0/math.Cos(latRad))/math.Pi) / 2.0 * n

	return maptile.New(clampIndex(x, n), clampIndex(y, n), z)
}

func clampIndex(v float64, n float64) uint32 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v >= n:
		return uint32(n - 1)
	}
	return uint32(v)
}

// TileGridRange is the inclusive rectangle of tiles covering a bounding box.
type TileGridRange struct {
	Zoom maptile.Zoom
	MinX uint32
	MaxX uint32
	MinY uint32
	MaxY uint32
}

func (r TileGridRange) Width() uint64 {
	return uint64(r.MaxX-r.MinX) + 1
}

func (r TileGridRange) Height() uint64 {
	return uint64(r.MaxY-r.MinY) + 1
}

func (r TileGridRange) Count() uint64 {
	return r.Width() * r.Height()
}

func (r TileGridRange) Contains(t maptile.Tile) bool {
	return t.Z == r.Zoom &&
		t.X >= r.MinX && t.X <= r.MaxX &&
		t.Y >= r.MinY && t.Y <= r.MaxY
}

func (r TileGridRange) String() string {
	return fmt.Sprintf("z%d x[%d..%d] y[%d..%d]", r.Zoom, r.MinX, r.MaxX, r.MinY, r.MaxY)
}

// Each calls consumer for every tile in the range, x outer and y inner.
// Iteration stops early when consumer returns false.
func (r TileGridRange) Each(consumer func(t maptile.Tile) bool) {
	for x := uint64(r.MinX); x <= uint64(r.MaxX); x++ {
		for y := uint64(r.MinY); y <= uint64(r.MaxY); y++ {
			if !consumer(maptile.New(uint32(x), uint32(y), r.Zoom)) {
				return
			}
		}
	}
}

// ComputeGridRange projects the corners of bounds at zoom z and returns the
// normalized tile rectangle.
func ComputeGridRange(bounds BoundingBox, z maptile.Zoom) TileGridRange {
	// Clamp to web mercator limits
	minLat := math.Max(-webMercatorLatLimit, bounds.MinLat)
	maxLat := math.Min(webMercatorLatLimit, bounds.MaxLat)
	minLon := math.Max(-180.0, bounds.MinLon)
	maxLon := math.Min(180.0-0.00000001, bounds.MaxLon)

	minTile := ProjectToTile(minLat, minLon, z)
	maxTile := ProjectToTile(maxLat, maxLon, z)

	// Flip Y because the XYZ tiling scheme has an inverted Y compared to lat/lon
	maxTile.Y, minTile.Y = minTile.Y, maxTile.Y

	return TileGridRange{
		Zoom: z,
		MinX: min(minTile.X, maxTile.X),
		MaxX: max(minTile.X, maxTile.X),
		MinY: min(minTile.Y, maxTile.Y),
		MaxY: max(minTile.Y, maxTile.Y),
	}
}

// FlipY converts between XYZ and TMS row numbering.
func FlipY(t maptile.Tile) maptile.Tile {
	// https://gist.github.com/tmcw/4954720
	return maptile.New(t.X, (uint32(1)<<uint32(t.Z))-1-t.Y, t.Z)
}
