package world

import (
	"cmp"
	"slices"
)

// ChunkStore is the table of active chunks. It keeps neighbor links in
// sync as chunks come and go. It is not safe for concurrent use; the
// ChunkManager's tick loop is its only caller.
type ChunkStore struct {
	chunks   map[ChunkKey]*Chunk
	modCount uint64 // increases on any chunk add/remove
}

// NewChunkStore creates an empty table.
func NewChunkStore() *ChunkStore {
	return &ChunkStore{
		chunks: make(map[ChunkKey]*Chunk),
	}
}

// Get returns the active chunk for key, or nil.
func (s *ChunkStore) Get(key ChunkKey) *Chunk {
	return s.chunks[key]
}

// GetChunk returns the active chunk at chunk coordinates, or nil.
func (s *ChunkStore) GetChunk(chunkX, chunkZ int) *Chunk {
	return s.chunks[Key(chunkX, chunkZ)]
}

// Has reports whether key is active.
func (s *ChunkStore) Has(key ChunkKey) bool {
	_, ok := s.chunks[key]
	return ok
}

// Len returns the number of active chunks.
func (s *ChunkStore) Len() int { return len(s.chunks) }

// ModCount returns the current modification count of the table.
func (s *ChunkStore) ModCount() uint64 { return s.modCount }

// Insert activates c and links it with every active neighbor. Each newly
// linked neighbor gets a stale mesh, since its boundary just changed.
// Insert reports false if the key is already taken.
func (s *ChunkStore) Insert(c *Chunk) bool {
	key := c.Key()
	if _, ok := s.chunks[key]; ok {
		return false
	}
	s.chunks[key] = c
	s.modCount++
	coord := c.Coord()
	for _, d := range Directions {
		nb := s.chunks[coord.Neighbor(d).Key()]
		if nb == nil {
			continue
		}
		c.neighbors[d] = nb
		nb.neighbors[d.Opposite()] = c
		nb.MarkMeshStale()
	}
	return true
}

// Remove deactivates key, severing the back-references held by its
// neighbors, and returns the chunk without disposing it.
func (s *ChunkStore) Remove(key ChunkKey) *Chunk {
	c, ok := s.chunks[key]
	if !ok {
		return nil
	}
	delete(s.chunks, key)
	s.modCount++
	for _, d := range Directions {
		nb := c.neighbors[d]
		if nb == nil {
			continue
		}
		if nb.neighbors[d.Opposite()] == c {
			nb.neighbors[d.Opposite()] = nil
			nb.MarkMeshStale()
		}
		c.neighbors[d] = nil
	}
	return c
}

// All returns the active chunks ordered by key.
func (s *ChunkStore) All() []*Chunk {
	out := make([]*Chunk, 0, len(s.chunks))
	for _, c := range s.chunks {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b *Chunk) int { return cmp.Compare(a.Key(), b.Key()) })
	return out
}

// Keys returns the active keys in no particular order.
func (s *ChunkStore) Keys() []ChunkKey {
	out := make([]ChunkKey, 0, len(s.chunks))
	for k := range s.chunks {
		out = append(out, k)
	}
	return out
}

// GetBlock returns the block at voxel coordinates. Unloaded chunks and
// out-of-range heights read as air; nothing is generated on demand.
func (s *ChunkStore) GetBlock(voxelX, voxelY, voxelZ int) BlockType {
	if voxelY < 0 || voxelY >= ChunkSize {
		return BlockTypeAir
	}
	p := VoxelToLocal(voxelX, voxelY, voxelZ)
	c := s.chunks[p.Chunk.Key()]
	if c == nil {
		return BlockTypeAir
	}
	return c.GetBlock(p.X, p.Y, p.Z)
}

// SetBlock writes the block at voxel coordinates. It reports false when the
// chunk is not loaded, the height is out of range, or the value is unchanged.
// A write on a chunk border marks the neighbor sharing that face stale.
func (s *ChunkStore) SetBlock(voxelX, voxelY, voxelZ int, t BlockType) bool {
	if voxelY < 0 || voxelY >= ChunkSize {
		return false
	}
	p := VoxelToLocal(voxelX, voxelY, voxelZ)
	c := s.chunks[p.Chunk.Key()]
	if c == nil || !c.SetBlock(p.X, p.Y, p.Z, t) {
		return false
	}

	if p.X == 0 {
		markStale(c.neighbors[West])
	} else if p.X == ChunkSize-1 {
		markStale(c.neighbors[East])
	}
	if p.Z == 0 {
		markStale(c.neighbors[North])
	} else if p.Z == ChunkSize-1 {
		markStale(c.neighbors[South])
	}
	return true
}

func markStale(c *Chunk) {
	if c != nil {
		c.MarkMeshStale()
	}
}

// clear drops every chunk without touching links or buffers.
func (s *ChunkStore) clear() {
	clear(s.chunks)
	s.modCount++
}
