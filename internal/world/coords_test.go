package world

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func TestFloorDivAndMod(t *testing.T) {
	tests := []struct {
		a, b    int
		div, md int
	}{
		{0, 32, 0, 0},
		{31, 32, 0, 31},
		{32, 32, 1, 0},
		{-1, 32, -1, 31},
		{-32, 32, -1, 0},
		{-33, 32, -2, 31},
	}
	for _, tt := range tests {
		if got := floorDiv(tt.a, tt.b); got != tt.div {
			t.Errorf("floorDiv(%d,%d) = %d, want %d", tt.a, tt.b, got, tt.div)
		}
		if got := mod(tt.a, tt.b); got != tt.md {
			t.Errorf("mod(%d,%d) = %d, want %d", tt.a, tt.b, got, tt.md)
		}
	}
}

func TestKeyRoundTrip(t *testing.T) {
	coords := []ChunkCoord{
		{0, 0}, {1, -1}, {-1, 1}, {-1, 0}, {0, -1},
		{123456, -654321}, {-2147483648, 2147483647},
	}
	seen := make(map[ChunkKey]ChunkCoord)
	for _, c := range coords {
		k := c.Key()
		if got := k.Coord(); got != c {
			t.Errorf("Key(%v).Coord() = %v", c, got)
		}
		if prev, ok := seen[k]; ok {
			t.Errorf("key collision between %v and %v", prev, c)
		}
		seen[k] = c
	}
}

func TestWorldToChunk(t *testing.T) {
	tests := []struct {
		x, z float64
		want ChunkCoord
	}{
		{0, 0, ChunkCoord{0, 0}},
		{31.9, 31.9, ChunkCoord{0, 0}},
		{32, -32, ChunkCoord{1, -1}},
		{-0.5, 31.9, ChunkCoord{-1, 0}},
		{-32, -32.01, ChunkCoord{-1, -2}},
	}
	for _, tt := range tests {
		if got := WorldToChunk(tt.x, tt.z); got != tt.want {
			t.Errorf("WorldToChunk(%v,%v) = %v, want %v", tt.x, tt.z, got, tt.want)
		}
	}
}

func TestWorldToLocalNegative(t *testing.T) {
	p := WorldToLocal(-1, 5.5, -33)
	want := LocalPos{Chunk: ChunkCoord{-1, -2}, X: 31, Y: 5, Z: 31}
	if p != want {
		t.Errorf("WorldToLocal = %+v, want %+v", p, want)
	}
}

func TestWorldToLocalClampsY(t *testing.T) {
	if p := WorldToLocal(0, -4, 0); p.Y != 0 {
		t.Errorf("y below range: got %d, want 0", p.Y)
	}
	if p := WorldToLocal(0, 500, 0); p.Y != ChunkSize-1 {
		t.Errorf("y above range: got %d, want %d", p.Y, ChunkSize-1)
	}
}

func TestLocalToWorldRoundTrip(t *testing.T) {
	c := ChunkCoord{X: -3, Z: 2}
	for _, l := range [][3]int{{0, 0, 0}, {31, 31, 31}, {5, 17, 9}} {
		w := LocalToWorld(c, l[0], l[1], l[2])
		p := WorldToLocal(w.X(), w.Y(), w.Z())
		if p.Chunk != c || p.X != l[0] || p.Y != l[1] || p.Z != l[2] {
			t.Errorf("round trip of %v in %v gave %+v", l, c, p)
		}
	}
	if o := ChunkOrigin(c); !o.ApproxEqual(mgl64.Vec3{-96, 0, 64}) {
		t.Errorf("ChunkOrigin(%v) = %v", c, o)
	}
}

func TestWorldPointsRoundTrip(t *testing.T) {
	tests := []struct {
		x, z   float64
		chunk  ChunkCoord
		lx, lz int
	}{
		{0, 0, ChunkCoord{0, 0}, 0, 0},
		{-0.001, 0.5, ChunkCoord{-1, 0}, 31, 0},
		{-32, -0.001, ChunkCoord{-1, -1}, 0, 31},
		{-32.0001, -32, ChunkCoord{-2, -1}, 31, 0},
		{31.999, -32.0001, ChunkCoord{0, -2}, 31, 31},
		{32, 31.999, ChunkCoord{1, 0}, 0, 31},
		{1e6 + 0.3, -1e6 - 0.3, ChunkCoord{31250, -31251}, 0, 31},
	}
	const y = 7.25
	for _, tt := range tests {
		p := WorldToLocal(tt.x, y, tt.z)
		if p.Chunk != tt.chunk || p.X != tt.lx || p.Y != 7 || p.Z != tt.lz {
			t.Errorf("WorldToLocal(%v, %v, %v) = %+v, want %v local (%d, 7, %d)",
				tt.x, y, tt.z, p, tt.chunk, tt.lx, tt.lz)
			continue
		}
		if c := WorldToChunk(tt.x, tt.z); c != tt.chunk {
			t.Errorf("WorldToChunk(%v, %v) = %v, want %v", tt.x, tt.z, c, tt.chunk)
		}
		w := LocalToWorld(p.Chunk, p.X, p.Y, p.Z)
		for i, v := range [3]float64{tt.x, y, tt.z} {
			if d := w[i] - v; d < -VoxelSize/2 || d > VoxelSize/2 {
				t.Errorf("LocalToWorld(%+v) = %v, axis %d is %v from %v", p, w, i, d, v)
			}
		}
		if back := WorldToLocal(w.X(), w.Y(), w.Z()); back != p {
			t.Errorf("voxel center %v resolves to %+v, want %+v", w, back, p)
		}
	}
}

func TestLocalIndex(t *testing.T) {
	if got := LocalIndex(1, 2, 3); got != 1+3*ChunkSize+2*ChunkArea {
		t.Errorf("LocalIndex(1,2,3) = %d", got)
	}
	for _, i := range []int{0, 1, ChunkSize, ChunkArea, ChunkVolume - 1, 12345} {
		x, y, z := LocalFromIndex(i)
		if got := LocalIndex(x, y, z); got != i {
			t.Errorf("LocalIndex(LocalFromIndex(%d)) = %d", i, got)
		}
	}
}

func TestDirections(t *testing.T) {
	for _, d := range Directions {
		if d.Opposite().Opposite() != d {
			t.Errorf("%s: opposite is not an involution", d)
		}
		dx, dz := d.Offset()
		ox, oz := d.Opposite().Offset()
		if dx+ox != 0 || dz+oz != 0 {
			t.Errorf("%s: offsets do not cancel", d)
		}
	}
	if got := (ChunkCoord{0, 0}).Neighbor(North); got != (ChunkCoord{0, -1}) {
		t.Errorf("north of origin = %v, want 0,-1", got)
	}
	if got := (ChunkCoord{0, 0}).Neighbor(East); got != (ChunkCoord{1, 0}) {
		t.Errorf("east of origin = %v, want 1,0", got)
	}
}

func TestDistances(t *testing.T) {
	a := ChunkCoord{1, 1}
	b := ChunkCoord{-2, 3}
	if got := ManhattanDistance(a, b); got != 5 {
		t.Errorf("ManhattanDistance = %d, want 5", got)
	}
	if got := DistanceSq(a, b); got != 13 {
		t.Errorf("DistanceSq = %d, want 13", got)
	}
	if !WithinRadius(a, ChunkCoord{3, -1}, 2) {
		t.Error("corner of the square should be within radius")
	}
	if WithinRadius(a, ChunkCoord{4, 1}, 2) {
		t.Error("3 chunks away should not be within radius 2")
	}
}

func TestChunksInRadius(t *testing.T) {
	center := ChunkCoord{5, -5}
	got := ChunksInRadius(center, 2)
	if len(got) != 25 {
		t.Fatalf("len = %d, want 25", len(got))
	}
	seen := make(map[ChunkCoord]bool)
	for _, cd := range got {
		if !WithinRadius(center, cd.Coord, 2) {
			t.Errorf("%v outside radius", cd.Coord)
		}
		if cd.DistSq != DistanceSq(center, cd.Coord) {
			t.Errorf("%v: DistSq %d", cd.Coord, cd.DistSq)
		}
		seen[cd.Coord] = true
	}
	if len(seen) != 25 {
		t.Errorf("duplicates in neighborhood")
	}
	if ChunksInRadius(center, -1) != nil {
		t.Error("negative radius should give nil")
	}
	if n := len(ChunksInRadius(center, 0)); n != 1 {
		t.Errorf("radius 0 gives %d chunks, want 1", n)
	}
}

func TestChunksInRadiusSorted(t *testing.T) {
	got := ChunksInRadiusSorted(ChunkCoord{}, 3)
	if got[0].Coord != (ChunkCoord{}) {
		t.Errorf("first = %v, want center", got[0].Coord)
	}
	for i := 1; i < len(got); i++ {
		if got[i].DistSq < got[i-1].DistSq {
			t.Fatalf("not sorted at %d: %d < %d", i, got[i].DistSq, got[i-1].DistSq)
		}
	}
}
