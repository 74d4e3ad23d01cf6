package chunkdb

import (
	"context"
	"errors"
	"io"
	"log"
	"path/filepath"
	"testing"

	"chunkstream/internal/world"
)

var quietLogger = log.New(io.Discard, "", 0)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chunks", "world.db")
	s, err := Open(path, quietLogger)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func editedChunk(x, z int) *world.Chunk {
	c := world.NewChunk(x, z)
	world.NewFlatGenerator(4).PopulateChunk(c)
	c.SetBlock(7, 12, 9, world.BlockTypeSand)
	return c
}

func assertSameChunk(t *testing.T, want, got *world.Chunk) {
	t.Helper()
	if got.Coord() != want.Coord() {
		t.Fatalf("coord = %v, want %v", got.Coord(), want.Coord())
	}
	wb, gb := want.Blocks(), got.Blocks()
	for i := range wb {
		if wb[i] != gb[i] {
			t.Fatalf("block %d = %s, want %s", i, gb[i], wb[i])
		}
	}
	if got.GetHeight(7, 9) != 13 {
		t.Errorf("height = %d, want 13", got.GetHeight(7, 9))
	}
	if !got.LastModified().Equal(want.LastModified()) {
		t.Errorf("lastModified = %v, want %v", got.LastModified(), want.LastModified())
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()
	c := editedChunk(-3, 8)

	if err := s.Save(c); err != nil {
		t.Fatalf("Save: %v", err)
	}
	// Visible before the writer catches up.
	got, ok, err := s.Load(ctx, c.Coord())
	if err != nil || !ok {
		t.Fatalf("Load before flush: ok=%v err=%v", ok, err)
	}
	assertSameChunk(t, c, got)

	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	got, ok, err = s.Load(ctx, c.Coord())
	if err != nil || !ok {
		t.Fatalf("Load after flush: ok=%v err=%v", ok, err)
	}
	assertSameChunk(t, c, got)
	if n, _ := s.Count(ctx); n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}

func TestLoadMissing(t *testing.T) {
	s, _ := openTemp(t)
	c, ok, err := s.Load(context.Background(), world.ChunkCoord{X: 1, Z: 1})
	if err != nil || ok || c != nil {
		t.Errorf("Load = %v, %v, %v; want nothing", c, ok, err)
	}
}

func TestSaveOverwrites(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()
	c := editedChunk(0, 0)
	_ = s.Save(c)
	c.SetBlock(0, 20, 0, world.BlockTypeWater)
	_ = s.Save(c)
	if err := s.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	got, _, err := s.Load(ctx, c.Coord())
	if err != nil {
		t.Fatal(err)
	}
	if b := got.GetBlock(0, 20, 0); b != world.BlockTypeWater {
		t.Errorf("block = %s, want water", b)
	}
	if n, _ := s.Count(ctx); n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}

func TestReopenKeepsData(t *testing.T) {
	s, path := openTemp(t)
	c := editedChunk(5, -5)
	if err := s.Save(c); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Save(c); !errors.Is(err, ErrClosed) {
		t.Errorf("Save after close: err = %v", err)
	}

	s2, err := Open(path, quietLogger)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	got, ok, err := s2.Load(context.Background(), c.Coord())
	if err != nil || !ok {
		t.Fatalf("Load after reopen: ok=%v err=%v", ok, err)
	}
	assertSameChunk(t, c, got)
}

func TestCorruptRowIsDetected(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()
	c := editedChunk(2, 2)
	_ = s.Save(c)
	if err := s.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := s.db.Exec(`UPDATE chunks SET checksum = ~checksum WHERE cx=2 AND cz=2`); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.Load(ctx, c.Coord()); !errors.Is(err, ErrChecksum) {
		t.Fatalf("err = %v, want ErrChecksum", err)
	}

	src := Source{Store: s, Fallback: world.GeneratorSource{Gen: world.NewFlatGenerator(4)}, Logger: quietLogger}
	got, err := src.LoadChunk(ctx, c.Coord())
	if err != nil {
		t.Fatalf("LoadChunk: %v", err)
	}
	if b := got.GetBlock(7, 12, 9); b != world.BlockTypeAir {
		t.Errorf("corrupt row was not regenerated: %s", b)
	}
}

func TestSourcePrefersStoredChunks(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()
	c := editedChunk(1, 0)
	_ = s.Save(c)

	src := Source{Store: s, Fallback: world.GeneratorSource{Gen: world.NewFlatGenerator(4)}}
	got, err := src.LoadChunk(ctx, c.Coord())
	if err != nil {
		t.Fatal(err)
	}
	if b := got.GetBlock(7, 12, 9); b != world.BlockTypeSand {
		t.Errorf("stored edit missing: %s", b)
	}

	fresh, err := src.LoadChunk(ctx, world.ChunkCoord{X: 9, Z: 9})
	if err != nil {
		t.Fatal(err)
	}
	if b := fresh.GetBlock(0, 3, 0); b != world.BlockTypeGrass {
		t.Errorf("fallback chunk top = %s, want grass", b)
	}
	if fresh.IsDirty() {
		t.Error("generated chunk should be clean")
	}
}

func TestCodecsRoundTrip(t *testing.T) {
	enc, dec, err := newCodecs()
	if err != nil {
		t.Fatalf("newCodecs: %v", err)
	}
	defer enc.Close()
	defer dec.Close()

	raw, err := editedChunk(-2, 5).MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	out, err := dec.DecodeAll(enc.EncodeAll(raw, nil), nil)
	if err != nil {
		t.Fatalf("DecodeAll: %v", err)
	}
	if string(out) != string(raw) {
		t.Error("decoded bytes differ from the input")
	}

	r, err := encodeChunk(editedChunk(-2, 5))
	if err != nil {
		t.Fatalf("encodeChunk: %v", err)
	}
	c, err := decodeChunk(r)
	if err != nil {
		t.Fatalf("decodeChunk: %v", err)
	}
	assertSameChunk(t, editedChunk(-2, 5), c)
}
