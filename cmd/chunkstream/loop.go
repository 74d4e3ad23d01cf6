package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"golang.org/x/time/rate"

	"chunkstream/internal/config"
	"chunkstream/internal/meshing"
	"chunkstream/internal/observe"
	"chunkstream/internal/persistence/chunkdb"
	"chunkstream/internal/physics"
	"chunkstream/internal/profiling"
	"chunkstream/internal/workers"
	"chunkstream/internal/world"
)

const (
	meshBudget = 4 // chunks meshed per tick
	editEvery  = 40
	statsEvery = 200
)

type runOptions struct {
	ticks    uint64
	tickRate int
	speed    float64 // blocks per second
	radius   float64 // blocks
}

// app drives a ChunkManager from a fixed-rate tick loop. Everything except
// shutdown runs on the loop goroutine.
type app struct {
	cfg  config.Config
	opts runOptions
	log  *log.Logger

	pool *workers.Pool
	db   *chunkdb.Store
	hub  *observe.Hub
	mgr  *world.ChunkManager

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	tick  uint64
	angle float64
	quads int
	saved int
}

func newApp(cfg config.Config, opts runOptions, logger *log.Logger) (*app, error) {
	a := &app{cfg: cfg, opts: opts, log: logger, done: make(chan struct{})}
	a.ctx, a.cancel = context.WithCancel(context.Background())

	var gen world.TerrainGenerator
	switch cfg.World.Generator {
	case config.GeneratorFlat:
		gen = world.NewFlatGenerator(cfg.World.FlatHeight)
	default:
		gen = world.NewNoiseGenerator(cfg.World.Seed)
	}
	var src world.ChunkSource = world.GeneratorSource{Gen: gen}

	if cfg.Storage.Path != "" {
		db, err := chunkdb.Open(cfg.Storage.Path, logger)
		if err != nil {
			a.cancel()
			return nil, fmt.Errorf("open chunk store: %w", err)
		}
		a.db = db
		src = chunkdb.Source{Store: db, Fallback: src, Logger: logger}
	}

	mux := workers.NewMux()
	world.RegisterHandlers(mux, src)
	a.pool = workers.NewPool(mux, workers.Options{
		Size:                   cfg.WorkerCount(),
		MaxSize:                cfg.Workers.MaxCount,
		MaxConsecutiveFailures: cfg.Workers.MaxConsecutiveFailures,
		Logger:                 logger,
	})

	var limiter *rate.Limiter
	if cfg.Streaming.LoadsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Streaming.LoadsPerSecond), cfg.Streaming.LoadBurst)
	}

	if cfg.Observe.Addr != "" {
		a.hub = observe.NewHub(logger)
		go func() {
			err := a.hub.ListenAndServe(a.ctx, cfg.Observe.Addr)
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Printf("observe: %v", err)
			}
		}()
	}

	a.mgr = world.NewChunkManager(world.ManagerOptions{
		Streaming: world.StreamingConfig{
			ViewDistance:       cfg.Streaming.ViewDistance,
			MaxLoadsPerFrame:   cfg.Streaming.MaxLoadsPerFrame,
			MaxUnloadsPerFrame: cfg.Streaming.MaxUnloadsPerFrame,
		},
		Source:        src,
		Pool:          a.pool,
		Limiter:       limiter,
		OnChunkReady:  a.chunkReady,
		OnChunkUnload: a.chunkUnload,
		Logger:        logger,
	})
	return a, nil
}

func (a *app) chunkReady(c *world.Chunk) {
	if a.hub != nil {
		a.hub.Publish(observe.ChunkReady(c.Coord()))
	}
}

// chunkUnload runs before the chunk is disposed, so its blocks are still readable.
func (a *app) chunkUnload(c *world.Chunk) {
	if a.db != nil && c.IsDirty() {
		if err := a.db.Save(c); err != nil {
			a.log.Printf("save %s: %v", c.Coord(), err)
		} else {
			a.saved++
		}
	}
	if a.hub != nil {
		a.hub.Publish(observe.ChunkUnload(c.Coord()))
	}
}

// run ticks until the context ends or the tick limit is reached.
func (a *app) run() {
	defer close(a.done)
	period := time.Second / time.Duration(a.opts.tickRate)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	last := time.Now()
	a.step(period.Seconds())
	for {
		if a.opts.ticks > 0 && a.tick >= a.opts.ticks {
			return
		}
		select {
		case <-a.ctx.Done():
			return
		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			last = now
			a.step(dt)
		}
	}
}

func (a *app) step(dt float64) {
	profiling.ResetFrame()
	start := time.Now()
	a.tick++

	pos := a.walk(dt)
	a.mgr.UpdateViewer(pos)
	a.mgr.Update(dt)
	if a.tick%editEvery == 0 {
		func() { defer profiling.Track("world.Edit")(); a.edit(pos) }()
	}
	a.meshDirty()

	stats := a.mgr.Stats()
	if a.hub != nil {
		center, _ := a.mgr.Center()
		a.hub.Publish(observe.Tick(a.tick, center, stats))
	}

	elapsed := time.Since(start)
	if budget := time.Second / time.Duration(a.opts.tickRate); elapsed > budget {
		a.log.Printf("slow tick %d: %.1fms (world %.1fms, mesh %.1fms) top: %s",
			a.tick, ms(elapsed), ms(profiling.SumWithPrefix("world.")),
			ms(profiling.SumWithPrefix("mesh.")), profiling.TopN(5))
	}
	if a.tick%statsEvery == 0 {
		a.logStats(stats)
	}
}

// walk advances the viewer along its circle and returns the new position.
func (a *app) walk(dt float64) mgl64.Vec3 {
	a.angle += a.opts.speed * dt / a.opts.radius
	return mgl64.Vec3{
		a.opts.radius * math.Cos(a.angle),
		float64(world.ChunkSize) / 2,
		a.opts.radius * math.Sin(a.angle),
	}
}

// edit stacks a sand block on the surface under the viewer.
func (a *app) edit(pos mgl64.Vec3) {
	g := physics.Ground(a.mgr, pos.X(), pos.Z())
	if !g.Hit {
		return
	}
	p := g.AdjacentPosition
	if a.mgr.SetBlock(float64(p[0]), float64(p[1]), float64(p[2]), world.BlockTypeSand) {
		profiling.Count("world.edits", 1)
	}
}

// meshDirty rebuilds the nearest stale meshes, at most meshBudget per tick.
func (a *app) meshDirty() {
	defer profiling.Track("mesh.Build")()
	dirty := a.mgr.GetDirtyChunks()
	for _, c := range dirty[:min(len(dirty), meshBudget)] {
		ticket, ok := a.mgr.BeginMeshBuild(c.Key())
		if !ok {
			continue
		}
		verts := meshing.BuildGreedyMeshForChunk(c)
		if !a.mgr.CompleteMeshBuild(ticket) {
			continue
		}
		n := meshing.QuadCount(verts)
		a.quads += n
		profiling.Count("mesh.quads", n)
	}
}

func (a *app) logStats(s world.ManagerStats) {
	a.log.Printf("tick %d: active=%d loading=%d queued=%d unloading=%d loaded=%d unloaded=%d discarded=%d abandoned=%d failed=%d parked=%d quads=%d saved=%d workers=%d",
		a.tick, s.Active, s.Loading, s.Queued, s.PendingUnload, s.Loaded, s.Unloaded,
		s.Discarded, s.Abandoned, s.Failed, s.Parked, a.quads, a.saved, a.pool.Size())
	if err := a.mgr.CheckIntegrity(); err != nil {
		a.log.Printf("integrity: %v", err)
	}
}

// shutdown stops the loop and releases everything in dependency order.
// Unloading during Dispose still saves edited chunks.
func (a *app) shutdown() {
	a.once.Do(func() {
		a.cancel()
		<-a.done

		a.mgr.Dispose()
		a.pool.Terminate()
		if a.db != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := a.db.Flush(ctx); err != nil {
				a.log.Printf("flush chunk store: %v", err)
			}
			cancel()
			if err := a.db.Close(); err != nil {
				a.log.Printf("close chunk store: %v", err)
			}
		}
		if a.hub != nil {
			a.hub.Close()
		}
		a.logStats(a.mgr.Stats())
	})
}

func ms(d time.Duration) float64 { return float64(d.Microseconds()) / 1000 }
