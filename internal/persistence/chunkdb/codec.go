package chunkdb

import (
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"

	"chunkstream/internal/world"
)

// ErrChecksum is returned when a stored payload does not match its checksum.
var ErrChecksum = errors.New("chunkdb: checksum mismatch")

// Shared codecs; EncodeAll and DecodeAll are safe for concurrent use.
var (
	encoder *zstd.Encoder
	decoder *zstd.Decoder
)

func init() {
	var err error
	if encoder, decoder, err = newCodecs(); err != nil {
		panic(err)
	}
}

func newCodecs() (*zstd.Encoder, *zstd.Decoder, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, nil, fmt.Errorf("chunkdb: zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(4*world.BinarySize))
	if err != nil {
		enc.Close()
		return nil, nil, fmt.Errorf("chunkdb: zstd decoder: %w", err)
	}
	return enc, dec, nil
}

// row is one stored chunk.
type row struct {
	cx, cz       int32
	payload      []byte // zstd of the binary chunk encoding
	checksum     uint64 // xxhash64 of payload
	lastModified int64  // unix milliseconds
}

func encodeChunk(c *world.Chunk) (*row, error) {
	raw, err := c.MarshalBinary()
	if err != nil {
		return nil, err
	}
	payload := encoder.EncodeAll(raw, make([]byte, 0, len(raw)/8))
	return &row{
		cx:           int32(c.X),
		cz:           int32(c.Z),
		payload:      payload,
		checksum:     xxhash.Sum64(payload),
		lastModified: c.LastModified().UnixMilli(),
	}, nil
}

func decodeChunk(r *row) (*world.Chunk, error) {
	if xxhash.Sum64(r.payload) != r.checksum {
		return nil, fmt.Errorf("%w: chunk %d,%d", ErrChecksum, r.cx, r.cz)
	}
	raw, err := decoder.DecodeAll(r.payload, make([]byte, 0, world.BinarySize))
	if err != nil {
		return nil, fmt.Errorf("chunkdb: decompress chunk %d,%d: %w", r.cx, r.cz, err)
	}
	d, err := world.ParseBinary(raw)
	if err != nil {
		return nil, err
	}
	if d.ChunkX != r.cx || d.ChunkZ != r.cz {
		return nil, fmt.Errorf("%w: row %d,%d holds chunk %d,%d", world.ErrBadChunkData, r.cx, r.cz, d.ChunkX, d.ChunkZ)
	}
	d.LastModified = r.lastModified
	return world.Deserialize(d)
}
