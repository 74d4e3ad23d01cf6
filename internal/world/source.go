package world

import (
	"context"
	"fmt"

	"chunkstream/internal/workers"
)

// TaskGenerate is the executor task type that produces one chunk.
// Its payload is a ChunkCoord and its result a *Chunk.
const TaskGenerate = "generate"

// ChunkSource produces the content of a chunk that is about to become active.
// Implementations run on executors and must be safe for concurrent use.
type ChunkSource interface {
	LoadChunk(ctx context.Context, coord ChunkCoord) (*Chunk, error)
}

// GeneratorSource builds chunks from a TerrainGenerator.
type GeneratorSource struct {
	Gen TerrainGenerator
}

// LoadChunk allocates a fresh chunk and populates it. The result is clean.
func (s GeneratorSource) LoadChunk(ctx context.Context, coord ChunkCoord) (*Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := NewChunk(coord.X, coord.Z)
	c.state = StateLoading
	s.Gen.PopulateChunk(c)
	// Generated content is reproducible from the seed; only later edits need saving.
	c.SetClean()
	return c, nil
}

// NewGenerateHandler serves TaskGenerate requests from src. The chunk it
// returns is owned by whoever awaits the future.
func NewGenerateHandler(src ChunkSource) workers.Handler {
	return workers.HandlerFunc(func(ctx context.Context, req workers.Request) (any, error) {
		coord, ok := req.Payload.(ChunkCoord)
		if !ok {
			return nil, fmt.Errorf("world: generate payload %T, want ChunkCoord", req.Payload)
		}
		c, err := src.LoadChunk(ctx, coord)
		if err != nil {
			return nil, fmt.Errorf("generate chunk %s: %w", coord, err)
		}
		if c.X != coord.X || c.Z != coord.Z {
			return nil, fmt.Errorf("generate chunk %s: source returned chunk %s", coord, c.Coord())
		}
		return c, nil
	})
}

// RegisterHandlers installs the world's task handlers on mux.
func RegisterHandlers(mux *workers.Mux, src ChunkSource) {
	mux.Register(TaskGenerate, NewGenerateHandler(src))
}
