package config

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Generator names accepted by World.Generator.
const (
	GeneratorNoise = "noise"
	GeneratorFlat  = "flat"
)

// View distance limits in chunks.
const (
	MinViewDistance = 1
	MaxViewDistance = 32
	MaxWorkerCount  = 64
)

// Config holds every setting of the streaming service.
type Config struct {
	World     World     `yaml:"world"`
	Streaming Streaming `yaml:"streaming"`
	Workers   Workers   `yaml:"workers"`
	Storage   Storage   `yaml:"storage"`
	Observe   Observe   `yaml:"observe"`
}

// World selects the terrain generator.
type World struct {
	Seed       int64  `yaml:"seed"`
	Generator  string `yaml:"generator"`
	FlatHeight int    `yaml:"flat_height"`
}

// Streaming bounds the resident neighborhood and the per-tick work.
type Streaming struct {
	ViewDistance       int `yaml:"view_distance"`
	MaxLoadsPerFrame   int `yaml:"max_loads_per_frame"`
	MaxUnloadsPerFrame int `yaml:"max_unloads_per_frame"`
	// LoadsPerSecond throttles load starts across ticks; 0 disables the throttle.
	LoadsPerSecond float64 `yaml:"loads_per_second"`
	LoadBurst      int     `yaml:"load_burst"`
}

// Workers sizes the executor pool.
type Workers struct {
	// Count of executors; 0 picks one per CPU up to MaxCount.
	Count                  int `yaml:"count"`
	MaxCount               int `yaml:"max_count"`
	MaxConsecutiveFailures int `yaml:"max_consecutive_failures"`
}

// Storage configures chunk persistence. An empty path disables it.
type Storage struct {
	Path string `yaml:"path"`
}

// Observe configures the diagnostics feed. An empty address disables it.
type Observe struct {
	Addr string `yaml:"addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		World: World{
			Seed:       1337,
			Generator:  GeneratorNoise,
			FlatHeight: 8,
		},
		Streaming: Streaming{
			ViewDistance:       6,
			MaxLoadsPerFrame:   4,
			MaxUnloadsPerFrame: 8,
			LoadBurst:          4,
		},
		Workers: Workers{
			MaxCount:               8,
			MaxConsecutiveFailures: 3,
		},
	}
}

// Load overlays the YAML file at path on Default. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := validateDocument(b); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Normalize clamps values into their supported ranges.
func (c *Config) Normalize() {
	if c == nil {
		return
	}
	c.World.Generator = strings.ToLower(strings.TrimSpace(c.World.Generator))
	if c.World.Generator == "" {
		c.World.Generator = GeneratorNoise
	}
	c.Streaming.ViewDistance = min(max(c.Streaming.ViewDistance, MinViewDistance), MaxViewDistance)
	c.Streaming.MaxLoadsPerFrame = max(c.Streaming.MaxLoadsPerFrame, 1)
	c.Streaming.MaxUnloadsPerFrame = max(c.Streaming.MaxUnloadsPerFrame, 1)
	c.Streaming.LoadsPerSecond = max(c.Streaming.LoadsPerSecond, 0)
	c.Streaming.LoadBurst = max(c.Streaming.LoadBurst, 1)
	c.Workers.MaxCount = min(max(c.Workers.MaxCount, 1), MaxWorkerCount)
	c.Workers.Count = min(max(c.Workers.Count, 0), c.Workers.MaxCount)
	c.Workers.MaxConsecutiveFailures = max(c.Workers.MaxConsecutiveFailures, 1)
	c.Storage.Path = strings.TrimSpace(c.Storage.Path)
	c.Observe.Addr = strings.TrimSpace(c.Observe.Addr)
}

// Validate reports settings that cannot be clamped into shape.
func (c Config) Validate() error {
	switch c.World.Generator {
	case GeneratorNoise, GeneratorFlat:
	default:
		return fmt.Errorf("world.generator: unknown generator %q", c.World.Generator)
	}
	if c.World.Generator == GeneratorFlat && c.World.FlatHeight < 1 {
		return fmt.Errorf("world.flat_height: must be positive, got %d", c.World.FlatHeight)
	}
	return nil
}

// WorkerCount resolves Workers.Count, picking one executor per CPU when it is 0.
func (c Config) WorkerCount() int {
	if c.Workers.Count > 0 {
		return c.Workers.Count
	}
	return min(runtime.NumCPU(), c.Workers.MaxCount)
}
