package main

import (
	"flag"
	"log"
	"os"

	"github.com/xlab/closer"

	"chunkstream/internal/config"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (defaults when empty)")
	ticks := flag.Uint64("ticks", 0, "stop after this many ticks (0 runs until interrupted)")
	tickRate := flag.Int("tick-rate", 20, "ticks per second")
	speed := flag.Float64("speed", 24, "viewer speed in blocks per second")
	radius := flag.Float64("radius", 256, "radius in blocks of the circle the viewer walks")
	flag.Parse()

	logger := log.New(os.Stderr, "chunkstream: ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("config: %v", err)
	}

	a, err := newApp(cfg, runOptions{
		ticks:    *ticks,
		tickRate: max(*tickRate, 1),
		speed:    *speed,
		radius:   max(*radius, 1),
	}, logger)
	if err != nil {
		logger.Fatalf("startup: %v", err)
	}
	closer.Bind(a.shutdown)

	logger.Printf("streaming: generator=%s seed=%d view=%d workers=%d storage=%q observe=%q",
		cfg.World.Generator, cfg.World.Seed, cfg.Streaming.ViewDistance, a.pool.Size(),
		cfg.Storage.Path, cfg.Observe.Addr)
	a.run()
	closer.Close()
}
