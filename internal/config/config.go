// Package config loads the server's YAML configuration: simulation defaults,
// default avatar settings, oracle backends and persistence knobs.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"avatarsim.ai/internal/sim/geom"
	"avatarsim.ai/internal/sim/perception"
	"avatarsim.ai/internal/sim/world"
)

// Backend kinds accepted in oracle.providers[].kind.
const (
	KindLocal  = "local"
	KindHTTP   = "http"
	KindGemini = "gemini"
	KindGRPC   = "grpc"
)

type Config struct {
	Simulation  Simulation           `yaml:"simulation"`
	Avatar      world.AvatarSettings `yaml:"avatar"`
	Oracle      Oracle               `yaml:"oracle"`
	Persistence Persistence          `yaml:"persistence"`
}

type Simulation struct {
	Mode           world.Mode `yaml:"mode"`
	BoardSize      geom.Size  `yaml:"board_size"`
	TurnDurationMs int        `yaml:"turn_duration_ms"`
	Speed          float64    `yaml:"speed"`
	PollIntervalMs int        `yaml:"poll_interval_ms"`
	AvatarRadius   float64    `yaml:"avatar_radius"`
	InitialAvatars int        `yaml:"initial_avatars"`
	LogCapacity    int        `yaml:"log_capacity"`
	Occlusion      string     `yaml:"occlusion"`
}

type Oracle struct {
	TimeoutMs int        `yaml:"timeout_ms"`
	Providers []Provider `yaml:"providers"`
}

// Provider binds a provider name (as used in avatar settings) to a backend.
type Provider struct {
	Name     string `yaml:"name"`
	Kind     string `yaml:"kind"`
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
	// CredentialEnv names the environment variable holding the credential.
	CredentialEnv string `yaml:"credential_env"`
	Seed          uint64 `yaml:"seed"`
}

type Persistence struct {
	AutosaveIntervalSec int `yaml:"autosave_interval_sec"`
	Retain              int `yaml:"retain"`
}

var ErrInvalid = errors.New("invalid config")

func Defaults() Config {
	p := world.DefaultParams()
	return Config{
		Simulation: Simulation{
			Mode:           p.Settings.Mode,
			BoardSize:      p.Settings.BoardSize,
			TurnDurationMs: p.Settings.TurnDurationMs,
			Speed:          p.Settings.Speed,
			PollIntervalMs: 50,
			AvatarRadius:   p.AvatarRadius,
			InitialAvatars: p.InitialAvatars,
			LogCapacity:    p.LogCapacity,
			Occlusion:      string(perception.OcclusionExact),
		},
		Avatar: p.Avatar,
		Oracle: Oracle{
			TimeoutMs: 30000,
			Providers: []Provider{{Name: "local", Kind: KindLocal, Seed: 1}},
		},
		Persistence: Persistence{
			AutosaveIntervalSec: 30,
			Retain:              20,
		},
	}
}

// Load overlays the YAML file at path on Defaults and validates the result.
// An empty path yields the defaults.
func Load(path string) (Config, error) {
	c := Defaults()
	if path == "" {
		return c, c.Validate()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("%s: %w", path, err)
	}
	return c, c.Validate()
}

func (c Config) Validate() error {
	s := c.Simulation
	var problems []string
	bad := func(format string, args ...any) { problems = append(problems, fmt.Sprintf(format, args...)) }

	if s.Mode != world.ModeTurnBased && s.Mode != world.ModeTimeBased {
		bad("simulation.mode %q", s.Mode)
	}
	if s.BoardSize.Width <= 0 || s.BoardSize.Height <= 0 {
		bad("simulation.board_size must be positive")
	}
	if s.TurnDurationMs <= 0 {
		bad("simulation.turn_duration_ms must be positive")
	}
	if s.Speed <= 0 {
		bad("simulation.speed must be positive")
	}
	if s.PollIntervalMs <= 0 {
		bad("simulation.poll_interval_ms must be positive")
	}
	if s.AvatarRadius <= 0 {
		bad("simulation.avatar_radius must be positive")
	}
	if s.InitialAvatars < world.MinAvatars {
		bad("simulation.initial_avatars must be at least %d", world.MinAvatars)
	}
	if s.LogCapacity <= 0 {
		bad("simulation.log_capacity must be positive")
	}
	if _, ok := perception.ParseOcclusion(s.Occlusion); !ok {
		bad("simulation.occlusion %q", s.Occlusion)
	}
	if c.Avatar.RateLimitMs <= 0 {
		bad("avatar.rate_limit_ms must be positive")
	}
	if c.Avatar.Eyesight.Radius <= 0 || c.Avatar.Eyesight.Angle <= 0 || c.Avatar.Eyesight.Angle > 360 {
		bad("avatar.eyesight out of range")
	}

	seen := map[string]bool{}
	for i, p := range c.Oracle.Providers {
		name := strings.ToLower(strings.TrimSpace(p.Name))
		switch {
		case name == "":
			bad("oracle.providers[%d]: missing name", i)
		case seen[name]:
			bad("oracle.providers[%d]: duplicate name %q", i, p.Name)
		}
		seen[name] = true
		switch p.Kind {
		case KindLocal, KindGemini:
		case KindHTTP, KindGRPC:
			if p.Endpoint == "" {
				bad("oracle.providers[%d]: %s backend needs an endpoint", i, p.Kind)
			}
		default:
			bad("oracle.providers[%d]: unknown kind %q", i, p.Kind)
		}
	}
	if !seen[strings.ToLower(c.Avatar.Provider)] {
		bad("avatar.provider %q is not configured under oracle.providers", c.Avatar.Provider)
	}
	if c.Persistence.AutosaveIntervalSec < 0 || c.Persistence.Retain < 0 {
		bad("persistence values must not be negative")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// Params converts the simulation section into world parameters.
func (c Config) Params() world.Params {
	s := c.Simulation
	return world.Params{
		Settings: world.SimulationSettings{
			Mode:           s.Mode,
			BoardSize:      s.BoardSize,
			TurnDurationMs: s.TurnDurationMs,
			Speed:          s.Speed,
		},
		Avatar:         c.Avatar,
		InitialAvatars: s.InitialAvatars,
		LogCapacity:    s.LogCapacity,
		AvatarRadius:   s.AvatarRadius,
	}
}

func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Simulation.PollIntervalMs) * time.Millisecond
}

func (c Config) OracleTimeout() time.Duration {
	return time.Duration(c.Oracle.TimeoutMs) * time.Millisecond
}

func (c Config) AutosaveInterval() time.Duration {
	return time.Duration(c.Persistence.AutosaveIntervalSec) * time.Second
}

// Credential reads the provider's credential from the environment.
func (p Provider) Credential() string {
	if p.CredentialEnv == "" {
		return ""
	}
	return os.Getenv(p.CredentialEnv)
}
