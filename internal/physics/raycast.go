// Package physics holds ray queries against the resident voxels.
package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"chunkstream/internal/profiling"
	"chunkstream/internal/world"
)

const (
	MinReachDistance = 0.1
	MaxReachDistance = 5.0
)

// BlockReader answers block queries in world space. *world.ChunkManager
// satisfies it; unloaded space reads as air.
type BlockReader interface {
	GetBlock(worldX, worldY, worldZ float64) world.BlockType
}

// RaycastResult stores the result of a raycast operation
type RaycastResult struct {
	HitPosition      [3]int // voxel coordinates
	AdjacentPosition [3]int // last empty voxel before the hit
	Distance         float64
	Hit              bool
}

// Raycast walks the voxels pierced by the ray from start along direction and
// returns the first non-air one between minDist and maxDist. Voxel v spans
// [v, v+1) on every axis.
func Raycast(r BlockReader, start, direction mgl64.Vec3, minDist, maxDist float64) RaycastResult {
	defer profiling.Track("physics.Raycast")()
	if direction.Len() == 0 || maxDist < minDist {
		return RaycastResult{}
	}
	dir := direction.Normalize()

	var voxel, step [3]int
	var tMax, tDelta [3]float64
	for i := 0; i < 3; i++ {
		voxel[i] = int(math.Floor(start[i]))
		switch {
		case dir[i] > 0:
			step[i] = 1
			tMax[i] = (float64(voxel[i]+1) - start[i]) / dir[i]
			tDelta[i] = 1 / dir[i]
		case dir[i] < 0:
			step[i] = -1
			tMax[i] = (start[i] - float64(voxel[i])) / -dir[i]
			tDelta[i] = -1 / dir[i]
		default:
			tMax[i] = math.Inf(1)
			tDelta[i] = math.Inf(1)
		}
	}

	prev := voxel
	for t := 0.0; t <= maxDist; {
		if t >= minDist && !isAir(r, voxel) {
			return RaycastResult{HitPosition: voxel, AdjacentPosition: prev, Distance: t, Hit: true}
		}
		prev = voxel
		axis := 0
		if tMax[1] < tMax[axis] {
			axis = 1
		}
		if tMax[2] < tMax[axis] {
			axis = 2
		}
		t = tMax[axis]
		voxel[axis] += step[axis]
		tMax[axis] += tDelta[axis]
	}
	return RaycastResult{}
}

func isAir(r BlockReader, v [3]int) bool {
	half := world.VoxelSize / 2
	return r.GetBlock(float64(v[0])+half, float64(v[1])+half, float64(v[2])+half) == world.BlockTypeAir
}

// Ground casts straight down from above the world through the column at
// (worldX, worldZ). On a hit, AdjacentPosition is the voxel on top of the surface.
func Ground(r BlockReader, worldX, worldZ float64) RaycastResult {
	top := float64(world.ChunkSize) + 0.5
	return Raycast(r, mgl64.Vec3{worldX, top, worldZ}, mgl64.Vec3{0, -1, 0}, 0, top)
}
