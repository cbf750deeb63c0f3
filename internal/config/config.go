// Package config loads the TOML settings that pick a protocol generation
// and size the payload worker pool.
package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/poolwire/internal/protocol/payload"
	"github.com/danmuck/poolwire/internal/protocol/profile"
	"github.com/rs/zerolog/log"
)

type Role string

const (
	RoleServer Role = "server"
	RoleWorker Role = "worker"
)

type Protocol struct {
	Version string
	Role    Role
}

type Pool struct {
	Workers    int
	QueueDepth int
}

type Config struct {
	Protocol Protocol
	Pool     Pool
}

type fileConfig struct {
	Protocol struct {
		Version string `toml:"version"`
		Role    string `toml:"role"`
	} `toml:"protocol"`
	Pool struct {
		Workers    int `toml:"workers"`
		QueueDepth int `toml:"queue_depth"`
	} `toml:"pool"`
}

func Default() Config {
	pc := payload.DefaultPoolConfig()
	return Config{
		Protocol: Protocol{Version: "v2", Role: RoleServer},
		Pool:     Pool{Workers: pc.Workers, QueueDepth: pc.QueueDepth},
	}
}

// Load applies the keys present in path on top of Default.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("protocol", "version") {
		cfg.Protocol.Version = strings.TrimSpace(raw.Protocol.Version)
	}
	if meta.IsDefined("protocol", "role") {
		cfg.Protocol.Role = Role(strings.ToLower(strings.TrimSpace(raw.Protocol.Role)))
	}
	if meta.IsDefined("pool", "workers") {
		cfg.Pool.Workers = raw.Pool.Workers
	}
	if meta.IsDefined("pool", "queue_depth") {
		cfg.Pool.QueueDepth = raw.Pool.QueueDepth
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Validate(cfg Config) error {
	if _, err := profile.Parse(cfg.Protocol.Version); err != nil {
		return fmt.Errorf("protocol.version: %w", err)
	}
	switch cfg.Protocol.Role {
	case RoleServer, RoleWorker:
	default:
		return fmt.Errorf("protocol.role must be %q or %q, got %q", RoleServer, RoleWorker, cfg.Protocol.Role)
	}
	if cfg.Pool.Workers <= 0 {
		return fmt.Errorf("pool.workers must be positive, got %d", cfg.Pool.Workers)
	}
	if cfg.Pool.QueueDepth < 0 {
		return fmt.Errorf("pool.queue_depth must not be negative, got %d", cfg.Pool.QueueDepth)
	}
	return nil
}

// Wiring is what a connection is built from once configuration is applied.
type Wiring struct {
	Profile profile.Profile
	Link    profile.Link
	Pool    *payload.Pool
}

// Wire selects the profile and link for the configured role and installs
// a pool sized by cfg as the process default. The caller owns the
// returned pool and closes it on shutdown.
func Wire(cfg Config) (Wiring, error) {
	if err := Validate(cfg); err != nil {
		return Wiring{}, err
	}
	p, err := profile.Parse(cfg.Protocol.Version)
	if err != nil {
		return Wiring{}, err
	}
	link := p.ForServer()
	if cfg.Protocol.Role == RoleWorker {
		link = p.ForWorker()
	}

	pool := payload.NewPool(payload.PoolConfig{Workers: cfg.Pool.Workers, QueueDepth: cfg.Pool.QueueDepth})
	if prev := payload.SetDefault(pool); prev != nil {
		prev.Close()
	}
	log.Info().
		Str("profile", p.Name).
		Str("role", string(cfg.Protocol.Role)).
		Uint32("max_frame_size", p.MaxFrameSize).
		Int("workers", cfg.Pool.Workers).
		Msg("protocol wired")
	return Wiring{Profile: p, Link: link, Pool: pool}, nil
}
