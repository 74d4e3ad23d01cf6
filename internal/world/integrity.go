package world

import (
	"errors"
	"fmt"
)

// CheckIntegrity walks the manager's tables and reports every broken
// invariant it finds. It is meant for tests and debug builds.
func (m *ChunkManager) CheckIntegrity() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	for key, c := range m.store.chunks {
		if c.Key() != key {
			bad("chunk %s stored under key %s", c.Coord(), key)
		}
		if c.IsDisposed() {
			bad("active chunk %s is disposed", c.Coord())
		}
		if s := c.State(); s != StateReady && s != StateDirty {
			bad("active chunk %s in state %s", c.Coord(), s)
		}
		if _, ok := m.loading[key]; ok {
			bad("chunk %s is both active and loading", c.Coord())
		}
		if m.queue.Contains(key) {
			bad("chunk %s is both active and queued", c.Coord())
		}
		if x, z, ok := c.staleColumn(); ok {
			bad("chunk %s column (%d, %d) height cache is %d, want %d", c.Coord(), x, z, c.GetHeight(x, z), c.scanHeight(x, z))
		}
		for _, d := range Directions {
			want := m.store.Get(c.Coord().Neighbor(d).Key())
			got := c.neighbors[d]
			if got != want {
				bad("chunk %s %s link is %v, want %v", c.Coord(), d, linkName(got), linkName(want))
				continue
			}
			if got != nil && got.neighbors[d.Opposite()] != c {
				bad("chunk %s %s link is not mirrored", c.Coord(), d)
			}
		}
	}

	for key := range m.loading {
		if m.queue.Contains(key) {
			bad("chunk %s is both loading and queued", key)
		}
	}
	for key := range m.unloadSet {
		if !m.store.Has(key) {
			bad("chunk %s pending unload but not active", key)
		}
	}
	return errors.Join(errs...)
}

// staleColumn finds the first column whose cached height disagrees with a scan.
func (c *Chunk) staleColumn() (x, z int, ok bool) {
	if c.IsDisposed() {
		return 0, 0, false
	}
	for z := 0; z < ChunkSize; z++ {
		for x := 0; x < ChunkSize; x++ {
			if c.GetHeight(x, z) != c.scanHeight(x, z) {
				return x, z, true
			}
		}
	}
	return 0, 0, false
}

func linkName(c *Chunk) string {
	if c == nil {
		return "none"
	}
	return c.Coord().String()
}
