package tilepack

import (
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // Register sqlite3 database driver
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

const (
	defaultBatchSize = 1000
)

// NewMbtilesOutputter opens (or creates) an MBTiles archive. Tiles are passed
// in XYZ order and stored in TMS rows as MBTiles requires.
func NewMbtilesOutputter(dsn string, batchSize int, metadata *MbtilesMetadata) (*mbtilesOutputter, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	if metadata == nil {
		metadata = NewMbtilesMetadata(map[string]string{})
	}

	return &mbtilesOutputter{db: db, batchSize: batchSize, metadata: metadata}, nil
}

type mbtilesOutputter struct {
	db         *sql.DB
	txn        *sql.Tx
	batchSize  int
	batchCount int
	hasTiles   bool
	metadata   *MbtilesMetadata
}

var _ TileOutputter = (*mbtilesOutputter)(nil)

func (o *mbtilesOutputter) Close() error {
	var err error

	if o.hasTiles {
		err = o.writeMetadata()
	}

	if o.txn != nil {
		if err2 := o.txn.Commit(); err2 != nil && err == nil {
			err = err2
		}
		o.txn = nil
	}

	if o.db != nil {
		if err2 := o.db.Close(); err2 != nil {
			err = err2
		}
	}

	return err
}

func (o *mbtilesOutputter) CreateTiles() error {
	if o.hasTiles {
		return nil
	}
	if _, err := o.db.Exec(`
		BEGIN TRANSACTION;
		CREATE TABLE IF NOT EXISTS map (
			zoom_level INTEGER NOT NULL,
			tile_column INTEGER NOT NULL,
			tile_row INTEGER NOT NULL,
			tile_id TEXT NOT NULL
		);
		CREATE UNIQUE INDEX IF NOT EXISTS map_index ON map (zoom_level, tile_column, tile_row);
		CREATE TABLE IF NOT EXISTS images (
			tile_data BLOB NOT NULL,
			tile_id TEXT NOT NULL
		);
		CREATE UNIQUE INDEX IF NOT EXISTS images_id ON images (tile_id);
		CREATE TABLE IF NOT EXISTS metadata (
			name TEXT,
			value TEXT
		);
		CREATE UNIQUE INDEX IF NOT EXISTS name ON metadata (name);
		CREATE VIEW IF NOT EXISTS tiles AS
		SELECT
			map.zoom_level AS zoom_level,
			map.tile_column AS tile_column,
			map.tile_row AS tile_row,
			images.tile_data AS tile_data
		FROM map
		JOIN images ON images.tile_id = map.tile_id;
		COMMIT;
	    PRAGMA synchronous=OFF;
	`); err != nil {
		return err
	}
	o.hasTiles = true
	return nil
}

func (o *mbtilesOutputter) Has(tile maptile.Tile) (bool, error) {
	if err := o.CreateTiles(); err != nil {
		return false, err
	}

	tms := FlipY(tile)
	query := "SELECT 1 FROM map WHERE zoom_level=? AND tile_column=? AND tile_row=? LIMIT 1"

	var row *sql.Row
	if o.txn != nil {
		row = o.txn.QueryRow(query, tms.Z, tms.X, tms.Y)
	} else {
		row = o.db.QueryRow(query, tms.Z, tms.X, tms.Y)
	}

	var one int
	err := row.Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (o *mbtilesOutputter) Save(tile maptile.Tile, data []byte) error {
	if err := o.CreateTiles(); err != nil {
		return err
	}

	if o.txn == nil {
		tx, err := o.db.Begin()
		if err != nil {
			return err
		}
		o.txn = tx
	}

	hash := md5.Sum(data)
	tileID := hex.EncodeToString(hash[:])
	tms := FlipY(tile)

	_, err := o.txn.Exec("INSERT OR REPLACE INTO images (tile_id, tile_data) VALUES (?, ?);", tileID, data)
	if err != nil {
		return err
	}

	_, err = o.txn.Exec("INSERT OR REPLACE INTO map (zoom_level, tile_column, tile_row, tile_id) VALUES (?, ?, ?, ?);", tms.Z, tms.X, tms.Y, tileID)
	if err != nil {
		return err
	}

	o.batchCount++

	if o.batchCount%o.batchSize == 0 {
		err := o.txn.Commit()
		if err != nil {
			return err
		}
		o.batchCount = 0
		o.txn = nil
	}

	return nil
}

// AssignSpatialMetadata records bounds, center and zoom range in the metadata
// table when the archive is closed.
func (o *mbtilesOutputter) AssignSpatialMetadata(bounds orb.Bound, minZoom maptile.Zoom, maxZoom maptile.Zoom) {
	o.metadata.SetSpatial(bounds, minZoom, maxZoom)
}

func (o *mbtilesOutputter) writeMetadata() error {
	if len(o.metadata.Keys()) == 0 {
		return nil
	}

	if o.txn == nil {
		tx, err := o.db.Begin()
		if err != nil {
			return err
		}
		o.txn = tx
	}

	for _, k := range o.metadata.Keys() {
		v, _ := o.metadata.Get(k)
		if _, err := o.txn.Exec("INSERT OR REPLACE INTO metadata (name, value) VALUES (?, ?);", k, v); err != nil {
			return fmt.Errorf("failed to write metadata %s: %w", k, err)
		}
	}

	return nil
}
