package world

import (
	"math"
)

// TerrainGenerator fills freshly allocated chunks. Implementations must be
// safe to call from several executors at once.
type TerrainGenerator interface {
	// HeightAt returns the surface height (number of solid voxels) of a world column.
	HeightAt(worldX, worldZ int) int
	// PopulateChunk writes terrain into an empty chunk.
	PopulateChunk(c *Chunk)
}

// NoiseGenerator produces rolling hills from octave value noise.
type NoiseGenerator struct {
	seed        int64
	scale       float64
	baseHeight  int
	amp         float64
	octaves     int
	persistence float64
	lacunarity  float64
	seaLevel    int
}

// NewNoiseGenerator creates a generator with default settings for the given seed.
func NewNoiseGenerator(seed int64) *NoiseGenerator {
	return &NoiseGenerator{
		seed:        seed,
		scale:       1.0 / 64.0,
		baseHeight:  ChunkSize / 4,
		amp:         ChunkSize / 2,
		octaves:     4,
		persistence: 0.5,
		lacunarity:  2.0,
		seaLevel:    ChunkSize / 3,
	}
}

// HeightAt computes the surface height at world voxel X,Z.
func (g *NoiseGenerator) HeightAt(worldX, worldZ int) int {
	x := float64(worldX) * g.scale
	z := float64(worldZ) * g.scale
	n := octaveNoise2D(x, z, g.seed, g.octaves, g.persistence, g.lacunarity)
	height := int(math.Floor(float64(g.baseHeight) + n*g.amp))
	return min(max(height, 1), ChunkSize)
}

// PopulateChunk fills a chunk using the noise heightmap.
func (g *NoiseGenerator) PopulateChunk(c *Chunk) {
	writes := make([]BlockWrite, 0, ChunkVolume/2)
	for lz := 0; lz < ChunkSize; lz++ {
		for lx := 0; lx < ChunkSize; lx++ {
			worldX := c.X*ChunkSize + lx
			worldZ := c.Z*ChunkSize + lz
			h := g.HeightAt(worldX, worldZ)
			for ly := 0; ly < h; ly++ {
				writes = append(writes, BlockWrite{X: lx, Y: ly, Z: lz, Type: g.layerAt(ly, h)})
			}
			for ly := h; ly < g.seaLevel; ly++ {
				writes = append(writes, BlockWrite{X: lx, Y: ly, Z: lz, Type: BlockTypeWater})
			}
		}
	}
	c.SetBlocks(writes)
}

func (g *NoiseGenerator) layerAt(y, height int) BlockType {
	switch {
	case y == 0:
		return BlockTypeBedrock
	case y == height-1 && height <= g.seaLevel:
		return BlockTypeSand
	case y == height-1:
		return BlockTypeGrass
	case y >= height-4:
		return BlockTypeDirt
	default:
		return BlockTypeStone
	}
}

// FlatGenerator produces a flat world of fixed height.
type FlatGenerator struct {
	height int
}

// NewFlatGenerator creates a flat generator. Height is clamped into [1, ChunkSize].
func NewFlatGenerator(height int) *FlatGenerator {
	return &FlatGenerator{height: min(max(height, 1), ChunkSize)}
}

// HeightAt returns the constant height.
func (g *FlatGenerator) HeightAt(_, _ int) int {
	return g.height
}

// PopulateChunk lays bedrock, dirt, and a grass top.
func (g *FlatGenerator) PopulateChunk(c *Chunk) {
	writes := make([]BlockWrite, 0, ChunkArea*g.height)
	for lz := 0; lz < ChunkSize; lz++ {
		for lx := 0; lx < ChunkSize; lx++ {
			for ly := 0; ly < g.height; ly++ {
				t := BlockTypeDirt
				switch ly {
				case 0:
					t = BlockTypeBedrock
				case g.height - 1:
					t = BlockTypeGrass
				}
				writes = append(writes, BlockWrite{X: lx, Y: ly, Z: lz, Type: t})
			}
		}
	}
	c.SetBlocks(writes)
}
