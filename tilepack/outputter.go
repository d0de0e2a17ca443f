package tilepack

import (
	"github.com/paulmach/orb/maptile"
)

type TileOutputter interface {
	CreateTiles() error
	Has(tile maptile.Tile) (bool, error)
	Save(tile maptile.Tile, data []byte) error
	Close() error
}

type TileData struct {
	Tile maptile.Tile
	Data *[]byte
}

// TileReader looks tiles up by XYZ coordinate. A missing tile is reported as
// TileData with nil Data, not as an error.
type TileReader interface {
	GetTile(tile maptile.Tile) (*TileData, error)
	Close() error
}
