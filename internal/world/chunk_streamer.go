package world

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log"
	"slices"

	"github.com/go-gl/mathgl/mgl64"
	"golang.org/x/time/rate"

	"chunkstream/internal/profiling"
	"chunkstream/internal/workers"
)

// KeyState is where a chunk key sits in the manager's pipeline.
type KeyState int

const (
	KeyNotPresent KeyState = iota
	KeyQueued
	KeyLoading
	KeyReady
	KeyUnloading
)

func (s KeyState) String() string {
	switch s {
	case KeyNotPresent:
		return "not-present"
	case KeyQueued:
		return "queued"
	case KeyLoading:
		return "loading"
	case KeyReady:
		return "ready"
	case KeyUnloading:
		return "unloading"
	}
	return "invalid"
}

// StreamingConfig bounds the resident neighborhood and the per-tick work.
type StreamingConfig struct {
	ViewDistance       int // radius in chunks of the square neighborhood kept resident
	MaxLoadsPerFrame   int
	MaxUnloadsPerFrame int
}

// DefaultStreamingConfig returns the settings used when none are given.
func DefaultStreamingConfig() StreamingConfig {
	return StreamingConfig{
		ViewDistance:       6,
		MaxLoadsPerFrame:   4,
		MaxUnloadsPerFrame: 8,
	}
}

// ManagerOptions wires a ChunkManager to its collaborators.
type ManagerOptions struct {
	Streaming StreamingConfig
	// Source generates chunks synchronously when no pool is usable.
	// Nil means a NoiseGenerator with seed 0. When Pool is set, Source must
	// be the source passed to RegisterHandlers for that pool's Mux, so both
	// paths produce the same chunks.
	Source ChunkSource
	// Pool runs TaskGenerate requests. It must serve that task type.
	Pool *workers.Pool
	// Limiter optionally throttles load starts across ticks.
	Limiter *rate.Limiter

	OnChunkReady  func(*Chunk)
	OnChunkUnload func(*Chunk)
	Logger        *log.Logger
}

// ManagerStats is a snapshot of the manager's queues and lifetime counters.
type ManagerStats struct {
	Active        int `json:"active"`
	Loading       int `json:"loading"`
	Queued        int `json:"queued"`
	PendingUnload int `json:"pending_unload"`

	Loaded    uint64 `json:"loaded"` // integrated into the active set
	Unloaded  uint64 `json:"unloaded"`
	Discarded uint64 `json:"discarded"` // generated but no longer needed on arrival
	Abandoned uint64 `json:"abandoned"` // dequeued but no longer needed at dispatch
	Failed    uint64 `json:"failed"`
	// Parked keys crashed their loader too often and are not retried
	// until they leave the view and come back.
	Parked int `json:"parked"`
}

// Retry policy for failed loads. Delays are in seconds of Update time.
// maxCrashAttempts stays below workers.DefaultMaxConsecutiveFailures.
const (
	retryBaseDelay   = 0.25
	retryMaxDelay    = 30.0
	maxCrashAttempts = 2
)

// loadFailure tracks the failed attempts of one still-needed key.
type loadFailure struct {
	attempts int
	crashes  int
	retryAt  float64
	parked   bool
}

func retryDelay(attempts int) float64 {
	d := retryBaseDelay
	for i := 1; i < attempts && d < retryMaxDelay; i++ {
		d *= 2
	}
	return min(d, retryMaxDelay)
}

type loadTask struct {
	coord  ChunkCoord
	future *workers.Future
}

// ChunkManager keeps the chunks around a moving viewer resident. It is
// driven by a single tick loop and is not safe for concurrent use;
// generation runs on the pool and comes back through futures.
type ChunkManager struct {
	cfg      StreamingConfig
	source   ChunkSource
	pool     *workers.Pool
	limiter  *rate.Limiter
	onReady  func(*Chunk)
	onUnload func(*Chunk)
	logger   *log.Logger

	store       *ChunkStore
	loading     map[ChunkKey]*loadTask
	queue       *LoadQueue
	unloadQueue []ChunkKey
	unloadSet   map[ChunkKey]struct{}
	failures    map[ChunkKey]*loadFailure

	center    ChunkCoord
	hasCenter bool
	elapsed   float64 // sum of Update deltas; the clock for retry delays

	stats ManagerStats
}

// NewChunkManager creates a manager with no viewer position yet.
func NewChunkManager(opts ManagerOptions) *ChunkManager {
	cfg := opts.Streaming
	cfg.ViewDistance = max(cfg.ViewDistance, 0)
	cfg.MaxLoadsPerFrame = max(cfg.MaxLoadsPerFrame, 1)
	cfg.MaxUnloadsPerFrame = max(cfg.MaxUnloadsPerFrame, 1)

	src := opts.Source
	if src == nil {
		src = GeneratorSource{Gen: NewNoiseGenerator(0)}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &ChunkManager{
		cfg:       cfg,
		source:    src,
		pool:      opts.Pool,
		limiter:   opts.Limiter,
		onReady:   opts.OnChunkReady,
		onUnload:  opts.OnChunkUnload,
		logger:    logger,
		store:     NewChunkStore(),
		loading:   make(map[ChunkKey]*loadTask),
		queue:     NewLoadQueue(),
		unloadSet: make(map[ChunkKey]struct{}),
		failures:  make(map[ChunkKey]*loadFailure),
	}
}

// UpdatePlayerPosition moves the viewer. Work is only recomputed when the
// viewer crosses into a different chunk.
func (m *ChunkManager) UpdatePlayerPosition(worldX, worldZ float64) {
	c := WorldToChunk(worldX, worldZ)
	if m.hasCenter && c == m.center {
		return
	}
	m.center = c
	m.hasCenter = true
	m.recompute()
}

// UpdateViewer is UpdatePlayerPosition for a world-space vector; Y is ignored.
func (m *ChunkManager) UpdateViewer(pos mgl64.Vec3) {
	m.UpdatePlayerPosition(pos.X(), pos.Z())
}

// SetViewDistance changes the resident radius and recomputes at once.
func (m *ChunkManager) SetViewDistance(d int) {
	d = max(d, 0)
	if d == m.cfg.ViewDistance {
		return
	}
	m.cfg.ViewDistance = d
	if m.hasCenter {
		m.recompute()
	}
}

// ViewDistance returns the resident radius in chunks.
func (m *ChunkManager) ViewDistance() int { return m.cfg.ViewDistance }

// Center returns the viewer's chunk and whether a position was ever set.
func (m *ChunkManager) Center() (ChunkCoord, bool) { return m.center, m.hasCenter }

// recompute enqueues missing chunks, marks far chunks for unload and purges
// queued entries that are no longer needed.
func (m *ChunkManager) recompute() {
	defer profiling.Track("world.ChunkManager.recompute")()

	needed := ChunksInRadius(m.center, m.cfg.ViewDistance)
	for _, nd := range needed {
		key := nd.Coord.Key()
		if m.store.Has(key) {
			delete(m.unloadSet, key)
			continue
		}
		if _, ok := m.loading[key]; ok {
			continue
		}
		if f := m.failures[key]; f != nil && f.parked {
			continue
		}
		if !m.queue.Update(key, nd.DistSq) {
			m.queue.Push(nd.Coord, nd.DistSq)
		}
	}

	for key, c := range m.store.chunks {
		if m.isNeeded(c.Coord()) {
			continue
		}
		if _, ok := m.unloadSet[key]; ok {
			continue
		}
		m.unloadSet[key] = struct{}{}
		m.unloadQueue = append(m.unloadQueue, key)
	}

	m.queue.RemoveFunc(func(c ChunkCoord) bool { return !m.isNeeded(c) })
	for key := range m.failures {
		if !m.isNeeded(key.Coord()) {
			delete(m.failures, key)
		}
	}
}

func (m *ChunkManager) isNeeded(c ChunkCoord) bool {
	return m.hasCenter && WithinRadius(m.center, c, m.cfg.ViewDistance)
}

// Update runs one tick: integrate finished loads, then at most
// MaxUnloadsPerFrame unloads, then at most MaxLoadsPerFrame load starts.
func (m *ChunkManager) Update(deltaTime float64) {
	defer profiling.Track("world.ChunkManager.Update")()
	m.elapsed += deltaTime

	m.collectLoads()
	unloaded := m.processUnloads()
	started := m.startLoads()

	profiling.Count("world.unloads", unloaded)
	profiling.Count("world.loadStarts", started)
}

// collectLoads integrates every load whose future has settled.
func (m *ChunkManager) collectLoads() {
	var done []*loadTask
	for _, t := range m.loading {
		select {
		case <-t.future.Done():
			done = append(done, t)
		default:
		}
	}
	slices.SortFunc(done, func(a, b *loadTask) int { return cmp.Compare(a.coord.Key(), b.coord.Key()) })
	for _, t := range done {
		delete(m.loading, t.coord.Key())
		res, err := t.future.Result()
		m.finishLoad(t.coord, res, err)
	}
	profiling.Count("world.loadsCollected", len(done))
}

func (m *ChunkManager) processUnloads() int {
	n := 0
	for n < m.cfg.MaxUnloadsPerFrame && len(m.unloadQueue) > 0 {
		key := m.unloadQueue[0]
		m.unloadQueue = m.unloadQueue[1:]
		if _, ok := m.unloadSet[key]; !ok {
			continue
		}
		delete(m.unloadSet, key)
		c := m.store.Get(key)
		if c == nil || m.isNeeded(c.Coord()) {
			continue
		}
		m.unload(c)
		n++
	}
	return n
}

func (m *ChunkManager) startLoads() int {
	started := 0
	var waiting []*loadEntry // failed keys whose retry delay has not passed
	defer func() {
		for _, e := range waiting {
			m.queue.restore(e)
		}
	}()
	for started < m.cfg.MaxLoadsPerFrame && m.queue.Len() > 0 {
		if m.usePool() && len(m.loading) >= m.pool.Size() {
			break
		}
		e := m.queue.popEntry()
		// The viewer may have moved since this entry was queued.
		if !m.isNeeded(e.coord) {
			m.stats.Abandoned++
			continue
		}
		if f := m.failures[e.key]; f != nil {
			if f.parked {
				continue
			}
			if m.elapsed < f.retryAt {
				waiting = append(waiting, e)
				continue
			}
		}
		if m.limiter != nil && !m.limiter.Allow() {
			m.queue.restore(e)
			break
		}
		m.dispatch(e.coord)
		started++
	}
	return started
}

func (m *ChunkManager) usePool() bool {
	return m.pool != nil && !m.pool.Terminated() && m.pool.Size() > 0
}

func (m *ChunkManager) dispatch(coord ChunkCoord) {
	if m.usePool() {
		m.loading[coord.Key()] = &loadTask{
			coord:  coord,
			future: m.pool.Submit(TaskGenerate, coord),
		}
		return
	}
	c, err := m.loadSync(coord)
	if err != nil {
		m.finishLoad(coord, nil, err)
		return
	}
	m.finishLoad(coord, c, nil)
}

// loadSync runs the source on the tick goroutine. A panic becomes an
// executor failure, as it would on the pool.
func (m *ChunkManager) loadSync(coord ChunkCoord) (c *Chunk, err error) {
	defer func() {
		if r := recover(); r != nil {
			c, err = nil, fmt.Errorf("%w: %v", workers.ErrExecutorFailed, r)
		}
	}()
	return m.source.LoadChunk(context.Background(), coord)
}

// finishLoad re-validates relevance and either integrates or discards the result.
func (m *ChunkManager) finishLoad(coord ChunkCoord, result any, err error) {
	var c *Chunk
	if err == nil {
		var ok bool
		if c, ok = result.(*Chunk); !ok || c == nil {
			err = fmt.Errorf("world: load result %T, want *Chunk", result)
		}
	}
	if err != nil {
		m.stats.Failed++
		if !m.isNeeded(coord) {
			return
		}
		if !errors.Is(err, workers.ErrTerminated) && !m.noteFailure(coord, err) {
			return
		}
		m.queue.Push(coord, DistanceSq(coord, m.center))
		return
	}
	if !m.isNeeded(coord) || m.store.Has(coord.Key()) {
		c.Dispose()
		m.stats.Discarded++
		return
	}
	m.integrate(c)
}

// noteFailure records a failed attempt and schedules the next one. It
// reports false when the key is parked instead.
func (m *ChunkManager) noteFailure(coord ChunkCoord, err error) bool {
	key := coord.Key()
	f := m.failures[key]
	if f == nil {
		f = &loadFailure{}
		m.failures[key] = f
	}
	f.attempts++
	if errors.Is(err, workers.ErrExecutorFailed) {
		f.crashes++
	}
	if f.crashes >= maxCrashAttempts {
		f.parked = true
		m.logger.Printf("world: load %s crashed %d times, giving up: %v", coord, f.crashes, err)
		return false
	}
	delay := retryDelay(f.attempts)
	f.retryAt = m.elapsed + delay
	m.logger.Printf("world: load %s failed (attempt %d, retry in %.2fs): %v", coord, f.attempts, delay, err)
	return true
}

func (m *ChunkManager) integrate(c *Chunk) {
	delete(m.failures, c.Key())
	c.state = StateReady
	c.meshStale = true
	c.version++
	m.store.Insert(c)
	m.stats.Loaded++
	if m.onReady != nil {
		m.onReady(c)
	}
}

func (m *ChunkManager) unload(c *Chunk) {
	c.state = StateUnloading
	m.store.Remove(c.Key())
	if m.onUnload != nil {
		m.onUnload(c)
	}
	c.Dispose()
	m.stats.Unloaded++
}

// KeyState reports where key sits in the pipeline.
func (m *ChunkManager) KeyState(key ChunkKey) KeyState {
	if m.store.Has(key) {
		if _, ok := m.unloadSet[key]; ok {
			return KeyUnloading
		}
		return KeyReady
	}
	if _, ok := m.loading[key]; ok {
		return KeyLoading
	}
	if m.queue.Contains(key) {
		return KeyQueued
	}
	return KeyNotPresent
}

// Chunk returns the active chunk for key, or nil.
func (m *ChunkManager) Chunk(key ChunkKey) *Chunk { return m.store.Get(key) }

// ActiveChunks returns the active chunks ordered by key.
func (m *ChunkManager) ActiveChunks() []*Chunk { return m.store.All() }

// ActiveCount returns the number of active chunks.
func (m *ChunkManager) ActiveCount() int { return m.store.Len() }

// GetBlock reads a world-space position. Unloaded chunks read as air.
func (m *ChunkManager) GetBlock(worldX, worldY, worldZ float64) BlockType {
	return m.store.GetBlock(VoxelOf(worldX), VoxelOf(worldY), VoxelOf(worldZ))
}

// SetBlock writes a world-space position. It reports false when the chunk is
// not loaded or nothing changed.
func (m *ChunkManager) SetBlock(worldX, worldY, worldZ float64, t BlockType) bool {
	return m.store.SetBlock(VoxelOf(worldX), VoxelOf(worldY), VoxelOf(worldZ), t)
}

// GetDirtyChunks returns the active chunks whose mesh is stale, nearest first.
func (m *ChunkManager) GetDirtyChunks() []*Chunk {
	var out []*Chunk
	for _, c := range m.store.chunks {
		if c.meshStale {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b *Chunk) int {
		if d := cmp.Compare(DistanceSq(a.Coord(), m.center), DistanceSq(b.Coord(), m.center)); d != 0 {
			return d
		}
		return cmp.Compare(a.Key(), b.Key())
	})
	return out
}

// MeshTicket ties a mesh rebuild to the chunk version it was built from.
type MeshTicket struct {
	Key     ChunkKey
	Version uint64
}

// BeginMeshBuild records the version a rebuild is about to read.
func (m *ChunkManager) BeginMeshBuild(key ChunkKey) (MeshTicket, bool) {
	c := m.store.Get(key)
	if c == nil {
		return MeshTicket{}, false
	}
	return MeshTicket{Key: key, Version: c.version}, true
}

// CompleteMeshBuild clears the chunk's stale flag if it did not change since
// the ticket was issued. False means the result is outdated (or the chunk is
// gone) and the chunk stays in GetDirtyChunks.
func (m *ChunkManager) CompleteMeshBuild(t MeshTicket) bool {
	c := m.store.Get(t.Key)
	if c == nil {
		return false
	}
	return c.ClearMeshStale(t.Version)
}

// Stats returns the current counters.
func (m *ChunkManager) Stats() ManagerStats {
	s := m.stats
	s.Active = m.store.Len()
	s.Loading = len(m.loading)
	s.Queued = m.queue.Len()
	s.PendingUnload = len(m.unloadSet)
	for _, f := range m.failures {
		if f.parked {
			s.Parked++
		}
	}
	return s
}

// Dispose tears the world down: in-flight loads are cancelled best-effort,
// every active chunk is unloaded (the unload callback still fires) and all
// queues are cleared.
func (m *ChunkManager) Dispose() {
	if m.pool != nil {
		for _, t := range m.loading {
			m.pool.Cancel(t.future.ID())
		}
	}
	clear(m.loading)
	m.queue.Clear()
	m.unloadQueue = nil
	clear(m.unloadSet)
	clear(m.failures)

	for _, c := range m.store.All() {
		m.unload(c)
	}
	m.store.clear()
	m.hasCenter = false
}
