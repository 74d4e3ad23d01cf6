package meshing

import (
	"testing"

	"chunkstream/internal/world"
)

func makeChunk() *world.Chunk {
	store := world.NewChunkStore()
	gen := world.NewNoiseGenerator(1337)
	var center *world.Chunk
	for _, cd := range world.ChunksInRadius(world.ChunkCoord{}, 1) {
		c := world.NewChunk(cd.Coord.X, cd.Coord.Z)
		gen.PopulateChunk(c)
		store.Insert(c)
		if cd.Coord == (world.ChunkCoord{}) {
			center = c
		}
	}
	return center
}

func BenchmarkBuildGreedyMeshForChunk(b *testing.B) {
	ch := makeChunk()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = BuildGreedyMeshForChunk(ch)
	}
}
