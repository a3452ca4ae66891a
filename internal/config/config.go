package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces environment overrides, e.g. ROOM_REDIS_ADDR.
const EnvPrefix = "ROOM_"

type Config struct {
	Server struct {
		Port string `yaml:"port" env:"PORT"`
	} `yaml:"server" envPrefix:"SERVER_"`
	Log struct {
		Level       string `yaml:"level" env:"LEVEL"`
		Development bool   `yaml:"development" env:"DEVELOPMENT"`
	} `yaml:"log" envPrefix:"LOG_"`
	Redis struct {
		Addr     string `yaml:"addr" env:"ADDR"`
		Password string `yaml:"password" env:"PASSWORD"`
		DB       int    `yaml:"db" env:"DB"`
		TTL      string `yaml:"ttl" env:"TTL"`
	} `yaml:"redis" envPrefix:"REDIS_"`
	Postgres struct {
		URL string `yaml:"url" env:"URL"`
	} `yaml:"postgres" envPrefix:"POSTGRES_"`
	Quiz struct {
		TTL string `yaml:"ttl" env:"TTL"`
	} `yaml:"quiz" envPrefix:"QUIZ_"`
	Room struct {
		CodeLength               int    `yaml:"code_length" env:"CODE_LENGTH"`
		DefaultMaxParticipants   int    `yaml:"default_max_participants" env:"DEFAULT_MAX_PARTICIPANTS"`
		DefaultQuestionTimeLimit string `yaml:"default_question_time_limit" env:"DEFAULT_QUESTION_TIME_LIMIT"`
		StaleAfter               string `yaml:"stale_after" env:"STALE_AFTER"`
		SweepSchedule            string `yaml:"sweep_schedule" env:"SWEEP_SCHEDULE"`
	} `yaml:"room" envPrefix:"ROOM_"`
	Scoring struct {
		CorrectPoints  int `yaml:"correct_points" env:"CORRECT_POINTS"`
		LightningBonus int `yaml:"lightning_bonus" env:"LIGHTNING_BONUS"`
		FastBonus      int `yaml:"fast_bonus" env:"FAST_BONUS"`
		NormalBonus    int `yaml:"normal_bonus" env:"NORMAL_BONUS"`
	} `yaml:"scoring" envPrefix:"SCORING_"`
}

// Default returns the values used when neither the file nor the environment
// sets a key.
func Default() Config {
	cfg := Config{}
	cfg.Server.Port = "8080"
	cfg.Log.Level = "info"
	cfg.Redis.TTL = "10m"
	cfg.Quiz.TTL = "10m"
	cfg.Room.CodeLength = 6
	cfg.Room.DefaultMaxParticipants = 10
	cfg.Room.DefaultQuestionTimeLimit = "30s"
	cfg.Room.StaleAfter = "1h"
	cfg.Room.SweepSchedule = "@every 5m"
	cfg.Scoring.CorrectPoints = 100
	cfg.Scoring.LightningBonus = 20
	cfg.Scoring.FastBonus = 10
	cfg.Scoring.NormalBonus = 5
	return cfg
}

// Load reads YAML config from path on top of the defaults, then applies
// ROOM_* environment overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, fmt.Errorf("parsing environment: %w", err)
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
