package tilepack

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

type MbtilesMetadata struct {
	metadata map[string]string
}

func NewMbtilesMetadata(metadata map[string]string) *MbtilesMetadata {
	if metadata == nil {
		metadata = map[string]string{}
	}

	m := &MbtilesMetadata{
		metadata: metadata,
	}

	return m
}

func (m *MbtilesMetadata) Get(k string) (string, bool) {
	v, exists := m.metadata[k]
	return v, exists
}

// Keys returns the metadata keys in sorted order.
func (m *MbtilesMetadata) Keys() []string {
	keys := make([]string, 0, len(m.metadata))

	for k := range m.metadata {
		keys = append(keys, k)
	}

	sort.Strings(keys)
	return keys
}

func (m *MbtilesMetadata) Set(key string, value string) {
	m.metadata[key] = value
}

// SetSpatial fills bounds, center, minzoom and maxzoom. The center uses the
// middle of the bounds at the max zoom.
func (m *MbtilesMetadata) SetSpatial(bounds orb.Bound, minZoom maptile.Zoom, maxZoom maptile.Zoom) {
	center := bounds.Center()

	m.Set("bounds", fmt.Sprintf("%s,%s,%s,%s",
		formatCoord(bounds.Min.Lon()), formatCoord(bounds.Min.Lat()),
		formatCoord(bounds.Max.Lon()), formatCoord(bounds.Max.Lat())))
	m.Set("center", fmt.Sprintf("%s,%s,%d", formatCoord(center.Lon()), formatCoord(center.Lat()), maxZoom))
	m.Set("minzoom", strconv.FormatUint(uint64(minZoom), 10))
	m.Set("maxzoom", strconv.FormatUint(uint64(maxZoom), 10))
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (m *MbtilesMetadata) Bounds() (orb.Bound, error) {

	var bounds orb.Bound

	str_bounds, exists := m.Get("bounds")

	if !exists {
		return bounds, fmt.Errorf("Metadata is missing bounds")
	}

	parts := strings.Split(str_bounds, ",")

	if len(parts) != 4 {
		return bounds, fmt.Errorf("Invalid bounds metadata")
	}

	coords := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return bounds, fmt.Errorf("Failed to parse bounds component %d, %w", i, err)
		}
		coords[i] = v
	}

	bounds = orb.Bound{
		Min: orb.Point{coords[0], coords[1]},
		Max: orb.Point{coords[2], coords[3]},
	}

	return bounds, nil
}

// Center returns the center point and, when present, its zoom level.
func (m *MbtilesMetadata) Center() (orb.Point, maptile.Zoom, error) {

	var pt orb.Point

	str_center, exists := m.Get("center")

	if !exists {
		return pt, 0, fmt.Errorf("Metadata is missing center")
	}

	parts := strings.Split(str_center, ",")

	if len(parts) != 2 && len(parts) != 3 {
		return pt, 0, fmt.Errorf("Invalid center metadata")
	}

	x, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)

	if err != nil {
		return pt, 0, fmt.Errorf("Failed to parse x, %w", err)
	}

	y, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)

	if err != nil {
		return pt, 0, fmt.Errorf("Failed to parse y, %w", err)
	}

	var zoom maptile.Zoom

	if len(parts) == 3 {
		z, err := strconv.ParseUint(strings.TrimSpace(parts[2]), 10, 32)

		if err != nil {
			return pt, 0, fmt.Errorf("Failed to parse zoom, %w", err)
		}

		zoom = maptile.Zoom(z)
	}

	pt = orb.Point{x, y}
	return pt, zoom, nil
}

func (m *MbtilesMetadata) MinZoom() (maptile.Zoom, error) {
	return m.zoom("minzoom")
}

func (m *MbtilesMetadata) MaxZoom() (maptile.Zoom, error) {
	return m.zoom("maxzoom")
}

func (m *MbtilesMetadata) zoom(key string) (maptile.Zoom, error) {

	str_zoom, exists := m.Get(key)

	if !exists {
		return 0, fmt.Errorf("Metadata is missing %s", key)
	}

	i, err := strconv.ParseUint(str_zoom, 10, 32)

	if err != nil {
		return 0, fmt.Errorf("Failed to parse %s value, %w", key, err)
	}

	return maptile.Zoom(i), nil
}

func (m *MbtilesMetadata) Format() (string, error) {
	return m.metadata["format"], nil
}

func (m *MbtilesMetadata) Name() (string, error) {
	return m.metadata["name"], nil
}
