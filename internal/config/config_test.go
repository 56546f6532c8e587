package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"avatarsim.ai/internal/sim/world"
)

func TestDefaultsAreValid(t *testing.T) {
	c := Defaults()
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	p := c.Params()
	if p.Settings.Mode != world.ModeTurnBased || p.Settings.BoardSize.Width != 500 || p.InitialAvatars != 3 {
		t.Fatalf("params=%+v", p)
	}
}

func TestLoad_RepoConfig(t *testing.T) {
	c, err := Load(filepath.Join("..", "..", "configs", "server.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(c.Oracle.Providers) != 4 {
		t.Fatalf("providers=%+v", c.Oracle.Providers)
	}
	if c.Avatar.Eyesight.Angle != 180 || c.Avatar.RateLimitMs != 2000 {
		t.Fatalf("avatar=%+v", c.Avatar)
	}
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	raw := "simulation:\n  mode: time-based\n  speed: 2.5\n"
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Simulation.Mode != world.ModeTimeBased || c.Simulation.Speed != 2.5 {
		t.Fatalf("simulation=%+v", c.Simulation)
	}
	if c.Simulation.TurnDurationMs != 1000 || c.Simulation.InitialAvatars != 3 {
		t.Fatalf("defaults lost: %+v", c.Simulation)
	}
}

func TestValidate_CollectsProblems(t *testing.T) {
	c := Defaults()
	c.Simulation.InitialAvatars = 1
	c.Simulation.Occlusion = "xray"
	c.Oracle.Providers = append(c.Oracle.Providers, Provider{Name: "remote", Kind: KindHTTP})
	err := c.Validate()
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
	for _, want := range []string{"initial_avatars", "occlusion", "endpoint"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q missing %q", err, want)
		}
	}
}

func TestValidate_AvatarProviderMustExist(t *testing.T) {
	c := Defaults()
	c.Avatar.Provider = "openai"
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "openai") {
		t.Fatalf("err=%v", err)
	}
}

func TestProviderCredentialFromEnv(t *testing.T) {
	t.Setenv("AVATARSIM_TEST_KEY", "k123")
	p := Provider{CredentialEnv: "AVATARSIM_TEST_KEY"}
	if got := p.Credential(); got != "k123" {
		t.Fatalf("credential=%q", got)
	}
	if got := (Provider{}).Credential(); got != "" {
		t.Fatalf("credential=%q", got)
	}
}
