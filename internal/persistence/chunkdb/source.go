package chunkdb

import (
	"context"
	"errors"
	"log"

	"chunkstream/internal/world"
)

// Source serves stored chunks and generates the rest with Fallback.
// A corrupt row is logged and regenerated.
type Source struct {
	Store    *Store
	Fallback world.ChunkSource
	Logger   *log.Logger
}

// LoadChunk implements world.ChunkSource.
func (s Source) LoadChunk(ctx context.Context, coord world.ChunkCoord) (*world.Chunk, error) {
	c, ok, err := s.Store.Load(ctx, coord)
	switch {
	case err == nil && ok:
		return c, nil
	case errors.Is(err, ErrChecksum), errors.Is(err, world.ErrBadChunkData):
		if s.Logger != nil {
			s.Logger.Printf("chunkdb: regenerating %s: %v", coord, err)
		}
	case err != nil:
		return nil, err
	}
	return s.Fallback.LoadChunk(ctx, coord)
}
