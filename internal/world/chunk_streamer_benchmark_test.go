package world

import (
	"testing"
)

// Benchmark streaming around a moving viewer with a synchronous source.
func BenchmarkManagerStreaming(b *testing.B) {
	m := NewChunkManager(ManagerOptions{
		Streaming: StreamingConfig{ViewDistance: 6, MaxLoadsPerFrame: 32, MaxUnloadsPerFrame: 32},
		Source:    GeneratorSource{Gen: NewNoiseGenerator(1337)},
		Logger:    quietLogger,
	})
	m.UpdatePlayerPosition(0, 0)
	for m.Stats().Queued > 0 {
		m.Update(0.05)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		// Step one chunk east every tick so each tick loads and unloads a strip.
		m.UpdatePlayerPosition(float64(i*ChunkSize), 0)
		m.Update(0.05)
	}
}

func BenchmarkRecompute(b *testing.B) {
	m := newSyncManager(8, 1, 1)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.UpdatePlayerPosition(float64((i%4)*ChunkSize), 0)
	}
}
