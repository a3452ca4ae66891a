package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "8080" || cfg.Room.CodeLength != 6 || cfg.Scoring.CorrectPoints != 100 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Room.SweepSchedule != "@every 5m" {
		t.Fatalf("unexpected sweep schedule %q", cfg.Room.SweepSchedule)
	}
}

func TestLoadFileThenEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := []byte(`
server:
  port: "9090"
redis:
  addr: "localhost:6379"
room:
  default_max_participants: 4
scoring:
  fast_bonus: 12
`)
	if err := os.WriteFile(path, yaml, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("ROOM_REDIS_ADDR", "redis:6380")
	t.Setenv("ROOM_ROOM_CODE_LENGTH", "8")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Fatalf("expected file port, got %q", cfg.Server.Port)
	}
	if cfg.Redis.Addr != "redis:6380" {
		t.Fatalf("expected env to win, got %q", cfg.Redis.Addr)
	}
	if cfg.Room.CodeLength != 8 || cfg.Room.DefaultMaxParticipants != 4 {
		t.Fatalf("unexpected room config %+v", cfg.Room)
	}
	if cfg.Scoring.FastBonus != 12 || cfg.Scoring.LightningBonus != 20 {
		t.Fatalf("unexpected scoring config %+v", cfg.Scoring)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [unclosed"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestTTLDuration(t *testing.T) {
	cases := []struct {
		raw  string
		want time.Duration
	}{
		{"", time.Minute},
		{"garbage", time.Minute},
		{"90s", 90 * time.Second},
	}
	for _, tc := range cases {
		if got := TTLDuration(tc.raw, time.Minute); got != tc.want {
			t.Fatalf("TTLDuration(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}
