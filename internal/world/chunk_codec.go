package world

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrBadChunkData is returned when serialized chunk data has the wrong shape.
var ErrBadChunkData = errors.New("world: malformed chunk data")

const binaryHeaderSize = 8

// BinarySize is the exact length of the binary chunk encoding.
const BinarySize = binaryHeaderSize + ChunkVolume + ChunkArea

// ChunkData is the plain serialized form of a chunk.
type ChunkData struct {
	ChunkX       int32  `json:"chunkX"`
	ChunkZ       int32  `json:"chunkZ"`
	Blocks       []byte `json:"blocks"`
	HeightMap    []byte `json:"heightMap"`
	LastModified int64  `json:"lastModified"`
}

// Serialize copies the chunk into its plain form.
func (c *Chunk) Serialize() ChunkData {
	d := ChunkData{
		ChunkX:       int32(c.X),
		ChunkZ:       int32(c.Z),
		Blocks:       make([]byte, len(c.blocks)),
		HeightMap:    make([]byte, len(c.heights)),
		LastModified: c.lastModified,
	}
	for i, b := range c.blocks {
		d.Blocks[i] = byte(b)
	}
	copy(d.HeightMap, c.heights)
	return d
}

// Deserialize rebuilds a chunk from its plain form. The result is Ready and
// carries a stale mesh, since no geometry exists for it yet.
func Deserialize(d ChunkData) (*Chunk, error) {
	if len(d.Blocks) != ChunkVolume {
		return nil, fmt.Errorf("%w: %d blocks, want %d", ErrBadChunkData, len(d.Blocks), ChunkVolume)
	}
	if len(d.HeightMap) != ChunkArea {
		return nil, fmt.Errorf("%w: %d height entries, want %d", ErrBadChunkData, len(d.HeightMap), ChunkArea)
	}
	c := NewChunk(int(d.ChunkX), int(d.ChunkZ))
	for i, b := range d.Blocks {
		c.blocks[i] = BlockType(b)
	}
	copy(c.heights, d.HeightMap)
	c.lastModified = d.LastModified
	c.state = StateReady
	c.MarkMeshStale()
	return c, nil
}

// MarshalJSON encodes the plain form as JSON.
func (c *Chunk) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Serialize())
}

// DecodeJSON is the inverse of MarshalJSON.
func DecodeJSON(raw []byte) (*Chunk, error) {
	var d ChunkData
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadChunkData, err)
	}
	return Deserialize(d)
}

// MarshalBinary encodes the chunk as an 8-byte header (little-endian int32
// chunkX, chunkZ), then ChunkVolume voxel bytes, then ChunkArea height bytes.
// The last-modified stamp is not part of this layout.
func (c *Chunk) MarshalBinary() ([]byte, error) {
	if c.IsDisposed() {
		return nil, fmt.Errorf("%w: chunk %s is disposed", ErrBadChunkData, c.Coord())
	}
	out := make([]byte, BinarySize)
	binary.LittleEndian.PutUint32(out[0:4], uint32(int32(c.X)))
	binary.LittleEndian.PutUint32(out[4:8], uint32(int32(c.Z)))
	body := out[binaryHeaderSize:]
	for i, b := range c.blocks {
		body[i] = byte(b)
	}
	copy(body[ChunkVolume:], c.heights)
	return out, nil
}

// ParseBinary splits the binary encoding into its plain form without
// building a chunk. LastModified is left zero.
func ParseBinary(raw []byte) (ChunkData, error) {
	if len(raw) != BinarySize {
		return ChunkData{}, fmt.Errorf("%w: %d bytes, want %d", ErrBadChunkData, len(raw), BinarySize)
	}
	body := raw[binaryHeaderSize:]
	return ChunkData{
		ChunkX:    int32(binary.LittleEndian.Uint32(raw[0:4])),
		ChunkZ:    int32(binary.LittleEndian.Uint32(raw[4:8])),
		Blocks:    body[:ChunkVolume],
		HeightMap: body[ChunkVolume:],
	}, nil
}

// DecodeBinary is the inverse of MarshalBinary.
func DecodeBinary(raw []byte) (*Chunk, error) {
	d, err := ParseBinary(raw)
	if err != nil {
		return nil, err
	}
	return Deserialize(d)
}
