// Package config loads the engine's configuration surface: the flat
// CLI/environment knobs (database DSN, log level) in the style of
// arkeep's cmd/server/main.go, plus the nested lifecycle/agents/unit/terrain
// tables that don't fit flat flags, loaded from a TOML file mirroring the
// original Python engine's msgspec.toml-based config.
//
// Configuration is loaded once at startup and threaded explicitly into every
// component that needs it — there is no package-level global config.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/JakubTesarek/codeborn/internal/gamecfg"
)

// HeartbeatConfig controls the heartbeat loop (spec §4.4).
type HeartbeatConfig struct {
	Interval float64 `toml:"interval"` // seconds
	Timeout  float64 `toml:"timeout"`  // seconds
}

// RestartConfig controls the restart-sweep loop.
type RestartConfig struct {
	Interval float64 `toml:"interval"` // seconds
}

// StateUpdateConfig controls the state-broadcast loop.
type StateUpdateConfig struct {
	Interval float64 `toml:"interval"` // seconds
}

// LifecycleConfig groups the three fixed-rate loop configurations.
type LifecycleConfig struct {
	Restart     RestartConfig     `toml:"restart"`
	Heartbeat   HeartbeatConfig   `toml:"heartbeat"`
	StateUpdate StateUpdateConfig `toml:"state_update"`
}

// RuntimeClass selects which BotAgent variant the registry constructs.
type RuntimeClass string

const (
	RuntimeRaw       RuntimeClass = "raw"
	RuntimeSandboxed RuntimeClass = "sandboxed"
)

// AgentsConfig controls how bot child processes are launched.
type AgentsConfig struct {
	RuntimeClass   RuntimeClass `toml:"runtime_class"`
	BaseDir        string       `toml:"base_dir"`
	ContainerImage string       `toml:"container_image"`
}

// GameConfig holds the injected per-type tuning tables.
type GameConfig struct {
	Units    gamecfg.UnitTable    `toml:"-"`
	Terrains gamecfg.TerrainTable `toml:"-"`

	// RawUnits/RawTerrains are the TOML-decodable forms (TOML keys cannot be
	// arbitrary Go map value types cleanly without string keys, which is
	// exactly what these are — kept separate so the typed tables above stay
	// Go-enum-keyed everywhere else in the codebase).
	RawUnits    map[string]float64 `toml:"units"`
	RawTerrains map[string]float64 `toml:"terrains"`
}

// resolve converts the raw string-keyed TOML tables into the typed tables
// consumed by the command handlers, falling back to defaults for any type the file
// does not mention.
func (g *GameConfig) resolve() {
	g.Units = gamecfg.DefaultUnitTable()
	for k, v := range g.RawUnits {
		g.Units[gamecfg.UnitType(k)] = v
	}
	g.Terrains = gamecfg.DefaultTerrainTable()
	for k, v := range g.RawTerrains {
		g.Terrains[gamecfg.TerrainType(k)] = v
	}
}

// fileConfig is the TOML-decodable shape of the config file.
type fileConfig struct {
	Lifecycle LifecycleConfig `toml:"lifecycle"`
	Agents    AgentsConfig    `toml:"agents"`
	Game      GameConfig      `toml:"game"`
}

// Config is the engine's complete configuration, merging the TOML file with
// the flat CLI/env overrides applied by cmd/engine.
type Config struct {
	Lifecycle LifecycleConfig
	Agents    AgentsConfig
	Game      GameConfig

	DBDriver string
	DBDSN    string
	LogLevel string
}

// Default returns a Config with sane defaults, used when no config file is
// given and as the base that a file's values are merged over.
func Default() Config {
	var cfg Config
	cfg.Lifecycle = LifecycleConfig{
		Restart:     RestartConfig{Interval: 5},
		Heartbeat:   HeartbeatConfig{Interval: 1, Timeout: 3},
		StateUpdate: StateUpdateConfig{Interval: 10},
	}
	cfg.Agents = AgentsConfig{
		RuntimeClass:   RuntimeRaw,
		BaseDir:        "./bots",
		ContainerImage: "codeborn-bot:latest",
	}
	cfg.Game.resolve()
	cfg.DBDriver = "sqlite"
	cfg.DBDSN = "./codeborn.db"
	cfg.LogLevel = "info"
	return cfg
}

// Load reads a TOML config file at path and merges it over Default(). An
// empty path returns Default() unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
	}

	if fc.Lifecycle.Restart.Interval > 0 {
		cfg.Lifecycle.Restart = fc.Lifecycle.Restart
	}
	if fc.Lifecycle.Heartbeat.Interval > 0 {
		cfg.Lifecycle.Heartbeat = fc.Lifecycle.Heartbeat
	}
	if fc.Lifecycle.StateUpdate.Interval > 0 {
		cfg.Lifecycle.StateUpdate = fc.Lifecycle.StateUpdate
	}
	if fc.Agents.RuntimeClass != "" {
		cfg.Agents.RuntimeClass = fc.Agents.RuntimeClass
	}
	if fc.Agents.BaseDir != "" {
		cfg.Agents.BaseDir = fc.Agents.BaseDir
	}
	if fc.Agents.ContainerImage != "" {
		cfg.Agents.ContainerImage = fc.Agents.ContainerImage
	}

	fc.Game.resolve()
	for k, v := range fc.Game.RawUnits {
		cfg.Game.Units[gamecfg.UnitType(k)] = v
	}
	for k, v := range fc.Game.RawTerrains {
		cfg.Game.Terrains[gamecfg.TerrainType(k)] = v
	}

	return cfg, nil
}

// RestartInterval returns the restart loop interval as a time.Duration.
func (c Config) RestartInterval() time.Duration {
	return durationOf(c.Lifecycle.Restart.Interval)
}

// HeartbeatInterval returns the heartbeat loop interval as a time.Duration.
func (c Config) HeartbeatInterval() time.Duration {
	return durationOf(c.Lifecycle.Heartbeat.Interval)
}

// HeartbeatTimeout returns the heartbeat timeout as a time.Duration.
func (c Config) HeartbeatTimeout() time.Duration {
	return durationOf(c.Lifecycle.Heartbeat.Timeout)
}

// StateUpdateInterval returns the state-update loop interval as a time.Duration.
func (c Config) StateUpdateInterval() time.Duration {
	return durationOf(c.Lifecycle.StateUpdate.Interval)
}

func durationOf(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
