package world

import "time"

// ChunkState is the lifecycle stage of a single chunk.
type ChunkState uint8

const (
	StateEmpty ChunkState = iota
	StateLoading
	StateReady
	StateDirty
	StateUnloading
)

func (s ChunkState) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateDirty:
		return "dirty"
	case StateUnloading:
		return "unloading"
	}
	return "invalid"
}

// BlockWrite is one entry of a bulk write.
type BlockWrite struct {
	X, Y, Z int
	Type    BlockType
}

// Chunk represents a ChunkSize^3 cube of the world
type Chunk struct {
	X, Z int

	blocks  []BlockType // LocalIndex order
	heights []uint8     // per column: topmost non-air y + 1, or 0

	state        ChunkState
	contentDirty bool
	meshStale    bool
	version      uint64
	lastModified int64 // unix milliseconds

	// Non-owning links to adjacent active chunks, indexed by Direction.
	neighbors [4]*Chunk
}

// NewChunk creates an empty chunk at the specified chunk coordinates
func NewChunk(x, z int) *Chunk {
	return &Chunk{
		X:       x,
		Z:       z,
		blocks:  make([]BlockType, ChunkVolume),
		heights: make([]uint8, ChunkArea),
		state:   StateEmpty,
	}
}

// Coord returns the chunk grid position.
func (c *Chunk) Coord() ChunkCoord { return ChunkCoord{X: c.X, Z: c.Z} }

// Key returns the packed identity.
func (c *Chunk) Key() ChunkKey { return Key(c.X, c.Z) }

// GetBlock returns the block type at the specified local coordinates.
// Out-of-range coordinates read as air.
func (c *Chunk) GetBlock(x, y, z int) BlockType {
	if c.blocks == nil || !inLocalBounds(x, y, z) {
		return BlockTypeAir
	}
	return c.blocks[LocalIndex(x, y, z)]
}

// IsAir checks if the block at the specified local coordinates is air
func (c *Chunk) IsAir(x, y, z int) bool {
	return c.GetBlock(x, y, z) == BlockTypeAir
}

// SetBlock writes one voxel and reports whether anything changed.
// Writing the value already stored is a no-op and leaves the dirty flags alone.
func (c *Chunk) SetBlock(x, y, z int, t BlockType) bool {
	if c.blocks == nil || !inLocalBounds(x, y, z) {
		return false
	}
	idx := LocalIndex(x, y, z)
	if c.blocks[idx] == t {
		return false
	}
	c.blocks[idx] = t
	c.rebuildColumn(x, z)
	c.touch()
	return true
}

// SetBlocks applies a batch of writes and rebuilds the height cache once at the end.
// It returns the number of voxels that changed.
func (c *Chunk) SetBlocks(writes []BlockWrite) int {
	if c.blocks == nil {
		return 0
	}
	changed := 0
	for _, w := range writes {
		if !inLocalBounds(w.X, w.Y, w.Z) {
			continue
		}
		idx := LocalIndex(w.X, w.Y, w.Z)
		if c.blocks[idx] == w.Type {
			continue
		}
		c.blocks[idx] = w.Type
		changed++
	}
	if changed > 0 {
		c.rebuildHeights()
		c.touch()
	}
	return changed
}

// GetBlockWithNeighbors reads local coordinates that may sit one step past the
// horizontal edges, resolving them through the neighbor links. Missing
// neighbors, diagonal steps and out-of-range y read as air.
func (c *Chunk) GetBlockWithNeighbors(x, y, z int) BlockType {
	if y < 0 || y >= ChunkSize {
		return BlockTypeAir
	}
	outX := x < 0 || x >= ChunkSize
	outZ := z < 0 || z >= ChunkSize
	switch {
	case !outX && !outZ:
		return c.GetBlock(x, y, z)
	case outX && outZ:
		return BlockTypeAir
	case x == -1:
		return c.neighborBlock(West, ChunkSize-1, y, z)
	case x == ChunkSize:
		return c.neighborBlock(East, 0, y, z)
	case z == -1:
		return c.neighborBlock(North, x, y, ChunkSize-1)
	case z == ChunkSize:
		return c.neighborBlock(South, x, y, 0)
	}
	return BlockTypeAir
}

func (c *Chunk) neighborBlock(d Direction, x, y, z int) BlockType {
	nb := c.neighbors[d]
	if nb == nil {
		return BlockTypeAir
	}
	return nb.GetBlock(x, y, z)
}

// GetHeight returns the cached column height: topmost non-air y + 1, or 0 for an empty column.
func (c *Chunk) GetHeight(x, z int) int {
	if c.heights == nil || x < 0 || x >= ChunkSize || z < 0 || z >= ChunkSize {
		return 0
	}
	return int(c.heights[columnIndex(x, z)])
}

// IsEmpty scans the whole buffer for a non-air voxel.
func (c *Chunk) IsEmpty() bool {
	for _, b := range c.blocks {
		if b != BlockTypeAir {
			return false
		}
	}
	return true
}

// BlockCount scans the whole buffer and counts non-air voxels.
func (c *Chunk) BlockCount() int {
	n := 0
	for _, b := range c.blocks {
		if b != BlockTypeAir {
			n++
		}
	}
	return n
}

// Blocks exposes the voxel buffer in LocalIndex order for mesh builders.
// Callers must not modify it.
func (c *Chunk) Blocks() []BlockType { return c.blocks }

// State returns the lifecycle stage.
func (c *Chunk) State() ChunkState { return c.state }

// IsDirty reports whether the voxel content changed since the last SetClean.
func (c *Chunk) IsDirty() bool { return c.contentDirty }

// SetClean clears the content-changed flag (e.g. after persisting).
func (c *Chunk) SetClean() { c.contentDirty = false }

// IsMeshStale reports whether renderable geometry lags the voxel data.
func (c *Chunk) IsMeshStale() bool { return c.meshStale }

// MarkMeshStale flags the mesh for rebuild without touching content.
// Used when a neighbor's shared face changes.
func (c *Chunk) MarkMeshStale() {
	c.meshStale = true
	c.version++
	if c.state == StateReady {
		c.state = StateDirty
	}
}

// Version increases every time the chunk's mesh becomes stale.
func (c *Chunk) Version() uint64 { return c.version }

// ClearMeshStale clears the mesh-stale flag only if nothing changed since
// version was observed. It reports whether the flag was cleared.
func (c *Chunk) ClearMeshStale(version uint64) bool {
	if version != c.version {
		return false
	}
	c.meshStale = false
	if c.state == StateDirty {
		c.state = StateReady
	}
	return true
}

// LastModified returns the time of the last content change.
func (c *Chunk) LastModified() time.Time {
	return time.UnixMilli(c.lastModified)
}

// Neighbor returns the linked chunk in direction d, or nil.
func (c *Chunk) Neighbor(d Direction) *Chunk { return c.neighbors[d] }

// Dispose releases the buffers and drops every neighbor link.
// Neighbors are not notified; unlinking them is the caller's job.
func (c *Chunk) Dispose() {
	c.blocks = nil
	c.heights = nil
	c.neighbors = [4]*Chunk{}
	c.meshStale = false
	c.contentDirty = false
	c.state = StateEmpty
}

// IsDisposed reports whether Dispose has released the buffers.
func (c *Chunk) IsDisposed() bool { return c.blocks == nil }

func (c *Chunk) touch() {
	c.contentDirty = true
	c.lastModified = time.Now().UnixMilli()
	c.MarkMeshStale()
}

// rebuildColumn rescans a single column from the top.
func (c *Chunk) rebuildColumn(x, z int) {
	c.heights[columnIndex(x, z)] = uint8(c.scanHeight(x, z))
}

func (c *Chunk) scanHeight(x, z int) int {
	for y := ChunkSize - 1; y >= 0; y-- {
		if c.blocks[LocalIndex(x, y, z)] != BlockTypeAir {
			return y + 1
		}
	}
	return 0
}

func (c *Chunk) rebuildHeights() {
	for z := 0; z < ChunkSize; z++ {
		for x := 0; x < ChunkSize; x++ {
			c.rebuildColumn(x, z)
		}
	}
}
