// Package meshing turns chunk voxels into greedy-merged triangle lists.
package meshing

import (
	"github.com/go-gl/mathgl/mgl32"

	"chunkstream/internal/world"
)

// VertexStride is number of float32 per vertex (pos.xyz + normal.xyz)
const VertexStride = 6

// floatsPerQuad is two triangles of VertexStride floats each.
const floatsPerQuad = 6 * VertexStride

// face is one of the six axis-aligned face directions. axis is 0 for x,
// 1 for y and 2 for z; sign is +1 or -1.
type face struct {
	axis int
	sign int
}

var faces = [...]face{
	{0, +1}, {0, -1}, // east, west
	{1, +1}, {1, -1}, // top, bottom
	{2, +1}, {2, -1}, // south, north
}

// BuildGreedyMeshForChunk builds a greedy-meshed triangle list (pos+normal
// interleaved) in world space. Faces on the chunk border are culled against
// the linked neighbors, so a chunk without neighbors shows its sides.
func BuildGreedyMeshForChunk(c *world.Chunk) []float32 {
	if c == nil || c.IsDisposed() {
		return nil
	}
	origin := world.ChunkOrigin(c.Coord())
	base := mgl32.Vec3{float32(origin.X()), 0, float32(origin.Z())}

	vertices := make([]float32, 0, 1024)
	mask := make([]bool, world.ChunkSize*world.ChunkSize)
	for _, f := range faces {
		vertices = buildFace(c, base, f, mask, vertices)
	}
	return vertices
}

// QuadCount returns the number of quads in a vertex list built by this package.
func QuadCount(vertices []float32) int {
	return len(vertices) / floatsPerQuad
}

// buildFace sweeps the layers along f.axis. For each layer it builds a mask
// over the (u, v) plane, where u and v are the next two axes in cyclic
// order, and merges set cells into rectangles.
func buildFace(c *world.Chunk, base mgl32.Vec3, f face, mask []bool, vertices []float32) []float32 {
	const n = world.ChunkSize
	u := (f.axis + 1) % 3
	v := (f.axis + 2) % 3

	var pos, step [3]int
	step[f.axis] = f.sign
	for layer := 0; layer < n; layer++ {
		pos[f.axis] = layer
		for a := 0; a < n; a++ {
			pos[u] = a
			for b := 0; b < n; b++ {
				pos[v] = b
				mask[a*n+b] = c.GetBlock(pos[0], pos[1], pos[2]) != world.BlockTypeAir &&
					c.GetBlockWithNeighbors(pos[0]+step[0], pos[1]+step[1], pos[2]+step[2]) == world.BlockTypeAir
			}
		}

		plane := float32(layer)
		if f.sign > 0 {
			plane++
		}
		for i := 0; i < n*n; i++ {
			if !mask[i] {
				continue
			}
			a0, b0 := i/n, i%n
			width := 1
			for b0+width < n && mask[a0*n+b0+width] {
				width++
			}
			height := 1
		grow:
			for a0+height < n {
				row := (a0 + height) * n
				for b := b0; b < b0+width; b++ {
					if !mask[row+b] {
						break grow
					}
				}
				height++
			}
			for a := a0; a < a0+height; a++ {
				clear(mask[a*n+b0 : a*n+b0+width])
			}

			corner := func(a, b int) mgl32.Vec3 {
				var p mgl32.Vec3
				p[f.axis] = plane
				p[u] = float32(a)
				p[v] = float32(b)
				return p.Add(base)
			}
			p0 := corner(a0, b0)
			p1 := corner(a0+height, b0)
			p2 := corner(a0+height, b0+width)
			p3 := corner(a0, b0+width)
			var normal mgl32.Vec3
			normal[f.axis] = float32(f.sign)
			// u x v points along +axis, so the negative faces wind the other way.
			if f.sign < 0 {
				p1, p3 = p3, p1
			}
			vertices = emitQuad(vertices, p0, p1, p2, p3, normal)
		}
	}
	return vertices
}

func emitQuad(vertices []float32, p0, p1, p2, p3, n mgl32.Vec3) []float32 {
	for _, p := range [...]mgl32.Vec3{p0, p1, p2, p0, p2, p3} {
		vertices = append(vertices, p.X(), p.Y(), p.Z(), n.X(), n.Y(), n.Z())
	}
	return vertices
}
