package tilepack

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// Extent accumulates the geographic bounds and zoom range of a set of tiles.
// The zero value is empty and ready to use.
type Extent struct {
	bounds  *orb.Bound
	minZoom maptile.Zoom
	maxZoom maptile.Zoom
	count   uint64
}

func (e *Extent) Add(t maptile.Tile) {
	e.count++

	tb := t.Bound()
	if e.bounds == nil {
		e.bounds = &tb
		e.minZoom = t.Z
		e.maxZoom = t.Z
		return
	}

	union := e.bounds.Union(tb)
	e.bounds = &union
	e.minZoom = min(e.minZoom, t.Z)
	e.maxZoom = max(e.maxZoom, t.Z)
}

func (e *Extent) Empty() bool {
	return e.bounds == nil
}

// Count returns how many tiles were added, duplicates included.
func (e *Extent) Count() uint64 {
	return e.count
}

func (e *Extent) Bound() orb.Bound {
	if e.bounds == nil {
		return orb.Bound{}
	}
	return *e.bounds
}

func (e *Extent) MinZoom() maptile.Zoom {
	return e.minZoom
}

func (e *Extent) MaxZoom() maptile.Zoom {
	return e.maxZoom
}

// TileVisitor walks every tile of an archive, like the VisitAllTiles methods
// of the mbtiles reader and disk outputter.
type TileVisitor interface {
	VisitAllTiles(visitor func(maptile.Tile, []byte) error) error
}

// ScanExtent visits all tiles of v and returns their extent.
func ScanExtent(v TileVisitor) (*Extent, error) {
	e := &Extent{}
	err := v.VisitAllTiles(func(t maptile.Tile, _ []byte) error {
		e.Add(t)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}
