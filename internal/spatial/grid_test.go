package spatial

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSnapToGridStability(t *testing.T) {
	// Points within a few meters of each other must share a cell.
	a := SnapToGrid(39.90420, 116.40740, 200)
	b := SnapToGrid(39.90425, 116.40745, 200)
	assert.Equal(t, a.ID(), b.ID())

	// A point half a kilometer away lands in a different cell.
	c := SnapToGrid(39.90870, 116.40740, 200)
	assert.NotEqual(t, a.ID(), c.ID())
}

func TestSnapToGridNegativeCoordinates(t *testing.T) {
	cell := SnapToGrid(-33.8688, -151.2093, 200)
	assert.Negative(t, cell.GY)
	assert.Negative(t, cell.GX)
	assert.Equal(t, cell.ID(), SnapToGrid(-33.8688, -151.2093, 200).ID())
}

func TestGridCellCenterStaysInCell(t *testing.T) {
	cell := SnapToGrid(39.90420, 116.40740, 200)
	lat, lon := cell.Center()
	assert.Equal(t, cell.ID(), SnapToGrid(lat, lon, 200).ID())
}

func TestGridCellIDFormat(t *testing.T) {
	cell := GridCell{GY: 1234, GX: -567, CellSize: 200}
	assert.Equal(t, "g1234_-567", cell.ID())
}

func TestHaversineDistanceKnownPair(t *testing.T) {
	// Beijing Tiananmen to the Forbidden City is roughly 1 km.
	d := HaversineDistance(39.9042, 116.4074, 39.9163, 116.3972)
	assert.InDelta(t, 1600, d, 300)

	assert.Equal(t, 0.0, HaversineDistance(39.9, 116.4, 39.9, 116.4))
}

func TestRadiusOfGyration(t *testing.T) {
	assert.Equal(t, 0.0, RadiusOfGyration(nil))
	assert.Equal(t, 0.0, RadiusOfGyration([]Point{{Lat: 39.9, Lon: 116.4}}))

	spread := []Point{
		{Lat: 39.90, Lon: 116.40},
		{Lat: 39.92, Lon: 116.40},
	}
	r := RadiusOfGyration(spread)
	// Two points ~2.2 km apart gyrate ~1.1 km around the midpoint.
	assert.InDelta(t, 1110, r, 120)
}

func TestGeohashNeighborsShareCoarsePrefix(t *testing.T) {
	a := EncodeGeohash(39.90420, 116.40740, 8)
	b := EncodeGeohash(39.90425, 116.40745, 8)
	assert.Len(t, a, 8)
	assert.Equal(t, a[:6], b[:6])

	lat, lon := DecodeGeohash(a)
	assert.InDelta(t, 39.90420, lat, 0.001)
	assert.InDelta(t, 116.40740, lon, 0.001)
}
