package tilepack

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"hash"
	"hash/fnv"
	"io"
	"os"
	"sort"

	"github.com/RoaringBitmap/roaring/roaring64"
	"github.com/paulmach/orb/maptile"
	"github.com/protomaps/go-pmtiles/pmtiles"
)

type offsetLen struct {
	offset uint64
	length uint32
}

// pmtilesOutputter buffers tile contents in a temp file and writes a PMTiles
// v3 archive on Close. Tiles already added are not replaced.
type pmtilesOutputter struct {
	tileset        *roaring64.Bitmap
	hashFunc       hash.Hash
	offsetMap      map[string]offsetLen
	tileData       *os.File
	entries        []pmtiles.EntryV3
	compressBuffer *bytes.Buffer
	compressor     *gzip.Writer
	header         pmtiles.HeaderV3
	outFile        *os.File
	metadata       *MbtilesMetadata
	extent         Extent
}

var _ TileOutputter = (*pmtilesOutputter)(nil)

func NewPmtilesOutputter(dsn string, format string, metadata *MbtilesMetadata) (*pmtilesOutputter, error) {
	tmpFile, err := os.CreateTemp("", "pmtiles-tiledata")
	if err != nil {
		return nil, fmt.Errorf("error creating temp file: %w", err)
	}

	outFile, err := os.Create(dsn)
	if err != nil {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
		return nil, fmt.Errorf("error creating pmtiles output file: %w", err)
	}

	if metadata == nil {
		metadata = NewMbtilesMetadata(map[string]string{})
	}

	tileType := pmtilesTileType(format)
	tileCompression := pmtiles.Compression(pmtiles.NoCompression)
	if tileType == pmtiles.Mvt {
		tileCompression = pmtiles.Gzip
	}

	compressBuffer := &bytes.Buffer{}

	outputter := &pmtilesOutputter{
		outFile:        outFile,
		tileset:        roaring64.New(),
		hashFunc:       fnv.New128a(),
		tileData:       tmpFile,
		offsetMap:      make(map[string]offsetLen),
		entries:        make([]pmtiles.EntryV3, 0),
		compressBuffer: compressBuffer,
		compressor:     gzip.NewWriter(compressBuffer),
		metadata:       metadata,
		header: pmtiles.HeaderV3{
			SpecVersion:         3,
			TileType:            tileType,
			TileCompression:     tileCompression,
			InternalCompression: pmtiles.Gzip,
		},
	}
	return outputter, nil
}

func (p *pmtilesOutputter) CreateTiles() error {
	return nil
}

func (p *pmtilesOutputter) Has(tile maptile.Tile) (bool, error) {
	return p.tileset.Contains(pmtiles.ZxyToID(uint8(tile.Z), tile.X, tile.Y)), nil
}

func (p *pmtilesOutputter) Save(tile maptile.Tile, data []byte) error {
	id := pmtiles.ZxyToID(uint8(tile.Z), tile.X, tile.Y)
	if p.tileset.Contains(id) {
		return nil
	}
	p.tileset.Add(id)
	p.extent.Add(tile)

	// Hash the tile data to use as a key for dedupe
	p.hashFunc.Reset()
	p.hashFunc.Write(data)
	sumString := string(p.hashFunc.Sum(nil))
	found, ok := p.offsetMap[sumString]

	// If the hash is not found, append the tile data to the temp file and store the
	// offset+length
	if !ok {
		offset, err := p.tileData.Seek(0, io.SeekEnd)
		if err != nil {
			return err
		}

		newData := data
		if p.header.TileCompression == pmtiles.Gzip && !(len(data) >= 2 && data[0] == 31 && data[1] == 139) {
			p.compressBuffer.Reset()
			p.compressor.Reset(p.compressBuffer)
			if _, err := p.compressor.Write(data); err != nil {
				return err
			}
			if err := p.compressor.Close(); err != nil {
				return err
			}
			newData = p.compressBuffer.Bytes()
		}

		bytesWritten, err := p.tileData.Write(newData)
		if err != nil {
			return err
		}

		found = offsetLen{
			offset: uint64(offset),
			length: uint32(bytesWritten),
		}

		p.offsetMap[sumString] = found
	}

	p.entries = append(p.entries, pmtiles.EntryV3{
		TileID:    id,
		Offset:    found.offset,
		Length:    found.length,
		RunLength: 1,
	})

	return nil
}

// runLengthEncode sorts entries by tile id and merges consecutive ids that
// point at the same content.
func runLengthEncode(entries []pmtiles.EntryV3) []pmtiles.EntryV3 {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].TileID < entries[j].TileID
	})

	out := make([]pmtiles.EntryV3, 0, len(entries))
	for _, e := range entries {
		if n := len(out); n > 0 {
			last := &out[n-1]
			if last.Offset == e.Offset && last.Length == e.Length && last.TileID+uint64(last.RunLength) == e.TileID {
				last.RunLength++
				continue
			}
		}
		out = append(out, e)
	}
	return out
}

func (p *pmtilesOutputter) Close() error {
	defer func() {
		p.tileData.Close()
		os.Remove(p.tileData.Name())
	}()
	defer p.outFile.Close()

	entries := runLengthEncode(p.entries)

	p.header.AddressedTilesCount = p.tileset.GetCardinality()
	p.header.TileEntriesCount = uint64(len(entries))
	p.header.TileContentsCount = uint64(len(p.offsetMap))

	if !p.extent.Empty() {
		bounds := p.extent.Bound()
		center := bounds.Center()
		p.header.MinZoom = uint8(p.extent.MinZoom())
		p.header.MaxZoom = uint8(p.extent.MaxZoom())
		p.header.MinLonE7 = int32(bounds.Min.Lon() * 10000000)
		p.header.MinLatE7 = int32(bounds.Min.Lat() * 10000000)
		p.header.MaxLonE7 = int32(bounds.Max.Lon() * 10000000)
		p.header.MaxLatE7 = int32(bounds.Max.Lat() * 10000000)
		p.header.CenterZoom = uint8(p.extent.MaxZoom())
		p.header.CenterLonE7 = int32(center.Lon() * 10000000)
		p.header.CenterLatE7 = int32(center.Lat() * 10000000)
	}

	rootBytes, leavesBytes, _ := optimizeDirectories(entries, 16384-pmtiles.HeaderV3LenBytes, p.header.InternalCompression)

	jsonMetadata := make(map[string]interface{})
	for _, k := range p.metadata.Keys() {
		v, _ := p.metadata.Get(k)
		jsonMetadata[k] = v
	}

	metadataBytes, err := pmtiles.SerializeMetadata(jsonMetadata, p.header.InternalCompression)
	if err != nil {
		return fmt.Errorf("error serializing pmtiles metadata: %w", err)
	}

	tileDataLength, err := p.tileData.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}

	p.header.RootOffset = pmtiles.HeaderV3LenBytes
	p.header.RootLength = uint64(len(rootBytes))
	p.header.MetadataOffset = p.header.RootOffset + p.header.RootLength
	p.header.MetadataLength = uint64(len(metadataBytes))
	p.header.LeafDirectoryOffset = p.header.MetadataOffset + p.header.MetadataLength
	p.header.LeafDirectoryLength = uint64(len(leavesBytes))
	p.header.TileDataOffset = p.header.LeafDirectoryOffset + p.header.LeafDirectoryLength
	p.header.TileDataLength = uint64(tileDataLength)

	headerBytes := pmtiles.SerializeHeader(p.header)

	if _, err := p.outFile.Write(headerBytes); err != nil {
		return fmt.Errorf("error writing pmtiles header: %w", err)
	}

	if _, err := p.outFile.Write(rootBytes); err != nil {
		return fmt.Errorf("error writing pmtiles root directory: %w", err)
	}

	if _, err := p.outFile.Write(metadataBytes); err != nil {
		return fmt.Errorf("error writing pmtiles metadata: %w", err)
	}

	if _, err := p.outFile.Write(leavesBytes); err != nil {
		return fmt.Errorf("error writing pmtiles leaf directory: %w", err)
	}

	if _, err := p.tileData.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("error seeking to start of tile data: %w", err)
	}

	if _, err := io.Copy(p.outFile, p.tileData); err != nil {
		return fmt.Errorf("error copying tile data to outfile: %w", err)
	}

	return p.outFile.Sync()
}

func optimizeDirectories(entries []pmtiles.EntryV3, targetRootLen int, compression pmtiles.Compression) ([]byte, []byte, int) {
	if len(entries) < 16384 {
		testRootBytes := pmtiles.SerializeEntries(entries, compression)
		if len(testRootBytes) <= targetRootLen {
			// The entire directory fits into the root
			return testRootBytes, make([]byte, 0), 0
		}
	}

	// Root directory is leaf pointers only. Grow the leaves until the root fits.
	leafSize := float32(len(entries)) / 3500
	if leafSize < 4096 {
		leafSize = 4096
	}

	for {
		rootBytes, leavesBytes, numLeaves := buildRootsLeaves(entries, int(leafSize), compression)
		if len(rootBytes) <= targetRootLen {
			return rootBytes, leavesBytes, numLeaves
		}
		leafSize *= 1.2
	}
}

func buildRootsLeaves(entries []pmtiles.EntryV3, leafSize int, compression pmtiles.Compression) ([]byte, []byte, int) {
	rootEntries := make([]pmtiles.EntryV3, 0)
	leavesBytes := make([]byte, 0)
	numLeaves := 0

	for i := 0; i < len(entries); i += leafSize {
		numLeaves++
		end := i + leafSize
		if i+leafSize > len(entries) {
			end = len(entries)
		}
		serialized := pmtiles.SerializeEntries(entries[i:end], compression)

		rootEntries = append(rootEntries, pmtiles.EntryV3{
			TileID:    entries[i].TileID,
			Offset:    uint64(len(leavesBytes)),
			Length:    uint32(len(serialized)),
			RunLength: 0,
		})
		leavesBytes = append(leavesBytes, serialized...)
	}

	rootBytes := pmtiles.SerializeEntries(rootEntries, compression)
	return rootBytes, leavesBytes, numLeaves
}
