package world

import (
	"cmp"
	"math"
	"slices"
	"strconv"

	"github.com/go-gl/mathgl/mgl64"
)

const (
	// Chunk dimensions. Chunks are cubes; the world is one chunk tall.
	ChunkSize   = 32
	ChunkArea   = ChunkSize * ChunkSize
	ChunkVolume = ChunkArea * ChunkSize
)

// ChunkCoord addresses a chunk column on the horizontal chunk grid.
type ChunkCoord struct {
	X, Z int
}

// Key packs the coordinate into a map key.
func (c ChunkCoord) Key() ChunkKey { return Key(c.X, c.Z) }

// Neighbor returns the adjacent coordinate in direction d.
func (c ChunkCoord) Neighbor(d Direction) ChunkCoord {
	dx, dz := d.Offset()
	return ChunkCoord{X: c.X + dx, Z: c.Z + dz}
}

func (c ChunkCoord) String() string {
	return strconv.Itoa(c.X) + "," + strconv.Itoa(c.Z)
}

// ChunkKey is the packed (chunkX, chunkZ) identity of a chunk.
// The high 32 bits hold X and the low 32 bits hold Z.
type ChunkKey int64

// Key encodes chunk coordinates. Coordinates must fit in int32.
func Key(chunkX, chunkZ int) ChunkKey {
	return ChunkKey(int64(int32(chunkX))<<32 | int64(uint32(int32(chunkZ))))
}

// Coord decodes the key.
func (k ChunkKey) Coord() ChunkCoord {
	return ChunkCoord{
		X: int(int32(k >> 32)),
		Z: int(int32(uint32(k))),
	}
}

func (k ChunkKey) String() string { return k.Coord().String() }

// floorDiv divides rounding toward negative infinity.
func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// mod returns a non-negative remainder for positive b.
func mod(a, b int) int {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

// VoxelOf converts one world-space axis value to its voxel index.
func VoxelOf(w float64) int {
	return int(math.Floor(w / VoxelSize))
}

// WorldToChunk returns the chunk containing the world-space point.
func WorldToChunk(worldX, worldZ float64) ChunkCoord {
	return ChunkCoord{
		X: floorDiv(VoxelOf(worldX), ChunkSize),
		Z: floorDiv(VoxelOf(worldZ), ChunkSize),
	}
}

// VoxelToChunk returns the chunk containing the voxel column.
func VoxelToChunk(voxelX, voxelZ int) ChunkCoord {
	return ChunkCoord{X: floorDiv(voxelX, ChunkSize), Z: floorDiv(voxelZ, ChunkSize)}
}

// LocalPos is a voxel position inside a specific chunk.
type LocalPos struct {
	Chunk   ChunkCoord
	X, Y, Z int
}

// WorldToLocal resolves a world-space point to its owning chunk and local voxel.
// Y is clamped into [0, ChunkSize) rather than wrapped.
func WorldToLocal(worldX, worldY, worldZ float64) LocalPos {
	return VoxelToLocal(VoxelOf(worldX), VoxelOf(worldY), VoxelOf(worldZ))
}

// VoxelToLocal is WorldToLocal for integer voxel coordinates.
func VoxelToLocal(voxelX, voxelY, voxelZ int) LocalPos {
	return LocalPos{
		Chunk: VoxelToChunk(voxelX, voxelZ),
		X:     mod(voxelX, ChunkSize),
		Y:     min(max(voxelY, 0), ChunkSize-1),
		Z:     mod(voxelZ, ChunkSize),
	}
}

// ChunkOrigin returns the world-space corner of a chunk (minimum x, y and z).
func ChunkOrigin(c ChunkCoord) mgl64.Vec3 {
	return mgl64.Vec3{
		float64(c.X*ChunkSize) * VoxelSize,
		0,
		float64(c.Z*ChunkSize) * VoxelSize,
	}
}

// LocalToWorld returns the world-space center of a local voxel.
func LocalToWorld(c ChunkCoord, localX, localY, localZ int) mgl64.Vec3 {
	half := VoxelSize / 2
	return ChunkOrigin(c).Add(mgl64.Vec3{
		float64(localX)*VoxelSize + half,
		float64(localY)*VoxelSize + half,
		float64(localZ)*VoxelSize + half,
	})
}

// LocalIndex flattens local coordinates. X varies fastest, then Z, then Y,
// so horizontal scans of one layer are contiguous.
func LocalIndex(x, y, z int) int {
	return x + z*ChunkSize + y*ChunkArea
}

// LocalFromIndex is the inverse of LocalIndex.
func LocalFromIndex(i int) (x, y, z int) {
	y = i / ChunkArea
	rem := i % ChunkArea
	z = rem / ChunkSize
	x = rem % ChunkSize
	return
}

// columnIndex flattens a column position into the height cache.
func columnIndex(x, z int) int {
	return x + z*ChunkSize
}

func inLocalBounds(x, y, z int) bool {
	return x >= 0 && x < ChunkSize && y >= 0 && y < ChunkSize && z >= 0 && z < ChunkSize
}

// ManhattanDistance is |dx| + |dz| on the chunk grid.
func ManhattanDistance(a, b ChunkCoord) int {
	return abs(a.X-b.X) + abs(a.Z-b.Z)
}

// DistanceSq is the squared Euclidean distance on the chunk grid.
func DistanceSq(a, b ChunkCoord) int {
	dx := a.X - b.X
	dz := a.Z - b.Z
	return dx*dx + dz*dz
}

// WithinRadius reports whether c lies in the square neighborhood of radius r around center.
func WithinRadius(center, c ChunkCoord, r int) bool {
	return abs(c.X-center.X) <= r && abs(c.Z-center.Z) <= r
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// ChunkDistance pairs a chunk with its squared distance to some center.
type ChunkDistance struct {
	Coord  ChunkCoord
	DistSq int
}

// ChunksInRadius lists the (2r+1)^2 square neighborhood around center in row order.
func ChunksInRadius(center ChunkCoord, radius int) []ChunkDistance {
	if radius < 0 {
		return nil
	}
	side := 2*radius + 1
	out := make([]ChunkDistance, 0, side*side)
	for dz := -radius; dz <= radius; dz++ {
		for dx := -radius; dx <= radius; dx++ {
			out = append(out, ChunkDistance{
				Coord:  ChunkCoord{X: center.X + dx, Z: center.Z + dz},
				DistSq: dx*dx + dz*dz,
			})
		}
	}
	return out
}

// ChunksInRadiusSorted is ChunksInRadius ordered by ascending distance, center first.
// Ties keep row order so the result is deterministic.
func ChunksInRadiusSorted(center ChunkCoord, radius int) []ChunkDistance {
	out := ChunksInRadius(center, radius)
	slices.SortStableFunc(out, func(a, b ChunkDistance) int {
		return cmp.Compare(a.DistSq, b.DistSq)
	})
	return out
}
