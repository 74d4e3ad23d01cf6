package world

import "testing"

func TestNewChunkIsEmpty(t *testing.T) {
	c := NewChunk(2, -3)
	if !c.IsEmpty() {
		t.Error("new chunk should be empty")
	}
	if c.State() != StateEmpty {
		t.Errorf("state = %s, want empty", c.State())
	}
	if c.IsDirty() || c.IsMeshStale() {
		t.Error("new chunk should not be dirty")
	}
	if c.Key() != Key(2, -3) {
		t.Errorf("key = %s", c.Key())
	}
}

func TestChunkSetGetBlock(t *testing.T) {
	c := NewChunk(0, 0)
	if !c.SetBlock(3, 7, 9, BlockTypeStone) {
		t.Fatal("SetBlock reported no change")
	}
	if b := c.GetBlock(3, 7, 9); b != BlockTypeStone {
		t.Errorf("GetBlock = %s, want stone", b)
	}
	if !c.IsDirty() || !c.IsMeshStale() {
		t.Error("write should mark content dirty and mesh stale")
	}
	if c.BlockCount() != 1 {
		t.Errorf("BlockCount = %d, want 1", c.BlockCount())
	}
	if c.LastModified().IsZero() {
		t.Error("LastModified not stamped")
	}
}

func TestChunkSetBlockSameValueIsNoop(t *testing.T) {
	c := NewChunk(0, 0)
	c.SetBlock(1, 1, 1, BlockTypeDirt)
	c.SetClean()
	v := c.Version()
	c.ClearMeshStale(v)

	if c.SetBlock(1, 1, 1, BlockTypeDirt) {
		t.Error("rewriting the same value reported a change")
	}
	if c.IsDirty() || c.IsMeshStale() || c.Version() != v {
		t.Error("no-op write touched dirty flags")
	}
}

func TestChunkOutOfBounds(t *testing.T) {
	c := NewChunk(0, 0)
	for _, p := range [][3]int{{-1, 0, 0}, {0, ChunkSize, 0}, {0, 0, ChunkSize}, {0, -1, 0}} {
		if c.SetBlock(p[0], p[1], p[2], BlockTypeStone) {
			t.Errorf("SetBlock%v succeeded", p)
		}
		if b := c.GetBlock(p[0], p[1], p[2]); b != BlockTypeAir {
			t.Errorf("GetBlock%v = %s, want air", p, b)
		}
	}
	if c.IsDirty() {
		t.Error("out-of-bounds writes dirtied the chunk")
	}
}

func TestChunkHeights(t *testing.T) {
	c := NewChunk(0, 0)
	if h := c.GetHeight(4, 4); h != 0 {
		t.Errorf("empty column height = %d", h)
	}
	c.SetBlock(4, 10, 4, BlockTypeStone)
	c.SetBlock(4, 3, 4, BlockTypeStone)
	if h := c.GetHeight(4, 4); h != 11 {
		t.Errorf("height = %d, want 11", h)
	}
	c.SetBlock(4, 10, 4, BlockTypeAir)
	if h := c.GetHeight(4, 4); h != 4 {
		t.Errorf("height after removing top = %d, want 4", h)
	}
	c.SetBlock(0, ChunkSize-1, 0, BlockTypeGrass)
	if h := c.GetHeight(0, 0); h != ChunkSize {
		t.Errorf("full column height = %d, want %d", h, ChunkSize)
	}
}

func TestChunkSetBlocks(t *testing.T) {
	c := NewChunk(0, 0)
	n := c.SetBlocks([]BlockWrite{
		{0, 0, 0, BlockTypeBedrock},
		{0, 1, 0, BlockTypeDirt},
		{0, 1, 0, BlockTypeDirt},
		{99, 0, 0, BlockTypeDirt},
	})
	if n != 2 {
		t.Errorf("changed = %d, want 2", n)
	}
	if h := c.GetHeight(0, 0); h != 2 {
		t.Errorf("height = %d, want 2", h)
	}
}

func TestMeshStaleVersioning(t *testing.T) {
	c := NewChunk(0, 0)
	c.state = StateReady
	c.SetBlock(0, 0, 0, BlockTypeStone)
	if c.State() != StateDirty {
		t.Errorf("state = %s, want dirty", c.State())
	}

	v := c.Version()
	// A write lands while a rebuild of version v is running.
	c.SetBlock(1, 0, 0, BlockTypeStone)
	if c.ClearMeshStale(v) {
		t.Error("outdated rebuild cleared the stale flag")
	}
	if !c.IsMeshStale() {
		t.Error("chunk should still be stale")
	}
	if !c.ClearMeshStale(c.Version()) {
		t.Error("current rebuild did not clear the stale flag")
	}
	if c.State() != StateReady {
		t.Errorf("state = %s, want ready", c.State())
	}
}

func TestGetBlockWithNeighbors(t *testing.T) {
	s := NewChunkStore()
	a := NewChunk(0, 0)
	b := NewChunk(1, 0)
	b.SetBlock(0, 5, 7, BlockTypeSand)
	s.Insert(a)
	s.Insert(b)

	if got := a.GetBlockWithNeighbors(ChunkSize, 5, 7); got != BlockTypeSand {
		t.Errorf("east lookup = %s, want sand", got)
	}
	if got := a.GetBlockWithNeighbors(-1, 5, 7); got != BlockTypeAir {
		t.Errorf("missing west neighbor = %s, want air", got)
	}
	if got := a.GetBlockWithNeighbors(ChunkSize, 5, ChunkSize); got != BlockTypeAir {
		t.Errorf("diagonal = %s, want air", got)
	}
	if got := b.GetBlockWithNeighbors(0, 5, 7); got != BlockTypeSand {
		t.Errorf("in-bounds lookup = %s", got)
	}
}

func TestChunkDispose(t *testing.T) {
	c := NewChunk(0, 0)
	c.SetBlock(0, 0, 0, BlockTypeStone)
	c.Dispose()
	if !c.IsDisposed() {
		t.Fatal("not disposed")
	}
	if c.GetBlock(0, 0, 0) != BlockTypeAir {
		t.Error("disposed chunk should read air")
	}
	if c.SetBlock(0, 0, 0, BlockTypeDirt) {
		t.Error("disposed chunk accepted a write")
	}
	if c.IsMeshStale() {
		t.Error("disposed chunk reports a stale mesh")
	}
}
