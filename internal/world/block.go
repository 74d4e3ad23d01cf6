package world

type BlockType uint8

const (
	BlockTypeAir BlockType = iota
	BlockTypeBedrock
	BlockTypeStone
	BlockTypeDirt
	BlockTypeGrass
	BlockTypeSand
	BlockTypeWater
)

// Block data
const (
	// VoxelSize is the edge length of one voxel in world units.
	VoxelSize = 1.0
)

var blockNames = [...]string{
	BlockTypeAir:     "air",
	BlockTypeBedrock: "bedrock",
	BlockTypeStone:   "stone",
	BlockTypeDirt:    "dirt",
	BlockTypeGrass:   "grass",
	BlockTypeSand:    "sand",
	BlockTypeWater:   "water",
}

func (b BlockType) String() string {
	if int(b) < len(blockNames) {
		return blockNames[b]
	}
	return "unknown"
}

// Direction identifies one of the four horizontal neighbors of a chunk.
type Direction int

const (
	North Direction = iota // -Z
	South                  // +Z
	East                   // +X
	West                   // -X
)

// Directions lists every horizontal direction in link order.
var Directions = [...]Direction{North, South, East, West}

// Opposite returns the direction pointing back.
func (d Direction) Opposite() Direction {
	switch d {
	case North:
		return South
	case South:
		return North
	case East:
		return West
	default:
		return East
	}
}

// Offset returns the chunk-space step for the direction.
func (d Direction) Offset() (dx, dz int) {
	switch d {
	case North:
		return 0, -1
	case South:
		return 0, 1
	case East:
		return 1, 0
	default:
		return -1, 0
	}
}

func (d Direction) String() string {
	switch d {
	case North:
		return "north"
	case South:
		return "south"
	case East:
		return "east"
	case West:
		return "west"
	}
	return "invalid"
}
