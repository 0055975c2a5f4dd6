package spatial

import (
	"fmt"
	"math"
)

// metersPerDegreeLat is the approximate north-south extent of one degree
// of latitude. Longitude degrees shrink with cos(lat); the grid accounts
// for that per row so cells stay roughly square anywhere on the globe.
const metersPerDegreeLat = 111320.0

// GridCell identifies one cell of a meter-sized grid. Cells are the
// stable spatial unit behind place ids: any point falling in the same
// cell snaps to the same (GY, GX) pair for a given cell size.
type GridCell struct {
	GY       int64
	GX       int64
	CellSize float64 // meters
}

// SnapToGrid maps a coordinate to its grid cell for the given cell size
// in meters. The latitude row is resolved first; the longitude index uses
// the row-center latitude so every point in a row shares the same
// east-west scale.
func SnapToGrid(lat, lon, cellSizeM float64) GridCell {
	gy := int64(math.Floor(lat * metersPerDegreeLat / cellSizeM))
	rowLat := (float64(gy) + 0.5) * cellSizeM / metersPerDegreeLat
	metersPerDegreeLon := metersPerDegreeLat * math.Cos(rowLat*math.Pi/180)
	if metersPerDegreeLon < 1 {
		// Degenerate near the poles; fall back to a single column.
		metersPerDegreeLon = 1
	}
	gx := int64(math.Floor(lon * metersPerDegreeLon / cellSizeM))
	return GridCell{GY: gy, GX: gx, CellSize: cellSizeM}
}

// ID returns the stable string identifier of the cell, e.g. "g1234_-567".
func (c GridCell) ID() string {
	return fmt.Sprintf("g%d_%d", c.GY, c.GX)
}

// Center returns the representative coordinate of the cell.
func (c GridCell) Center() (lat, lon float64) {
	lat = (float64(c.GY) + 0.5) * c.CellSize / metersPerDegreeLat
	metersPerDegreeLon := metersPerDegreeLat * math.Cos(lat*math.Pi/180)
	if metersPerDegreeLon < 1 {
		metersPerDegreeLon = 1
	}
	lon = (float64(c.GX) + 0.5) * c.CellSize / metersPerDegreeLon
	return lat, lon
}
