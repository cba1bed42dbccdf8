// Package config loads FastMJPG's logging/diagnostics configuration: a
// TOML file with built-in defaults, an optional .env overlay, and an
// XDG-resolved default path when the caller does not name one explicitly.
// The pipeline's own topology (source, sinks, their numeric parameters) is
// driven entirely by the CLI grammar; this package only concerns the
// ambient concerns the CLI does not cover.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
)

// Config is FastMJPG's file-backed configuration.
type Config struct {
	Logging LoggingConfig `toml:"logging"`
	Send    SendConfig    `toml:"send"`
}

// LoggingConfig controls the zap logger built in cmd/fastmjpg.
type LoggingConfig struct {
	Level string `toml:"level"`
}

// SendConfig holds defaults for the udpsender.Sender that cmd/fastmjpg
// applies when the `send` output's positional sendRounds argument is 0
// (which transmits nothing and so carries no useful meaning of its own).
type SendConfig struct {
	SendRounds uint32 `toml:"send_rounds"`
}

// DefaultConfigName is the file name resolved against the XDG config home
// when no -config flag is given.
const DefaultConfigName = "fastmjpg/config.toml"

func defaults() Config {
	return Config{
		Logging: LoggingConfig{Level: "info"},
		Send:    SendConfig{SendRounds: 1},
	}
}

// DefaultPath resolves the XDG-standard config file path for FastMJPG.
func DefaultPath() (string, error) {
	return xdg.ConfigFile(DefaultConfigName)
}

// Load builds a Config starting from built-in defaults, overlaying a TOML
// file at path if it exists (a missing file is not an error: defaults
// apply), then loading a .env file from the working directory into the
// environment (variables already set are kept) and applying
// FASTMJPG_LOG_LEVEL from the environment, matching the
// defaults-then-file-then-env layering angkira's config loader uses.
func Load(path string) (Config, error) {
	cfg := defaults()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("config: stat %s: %w", path, err)
	}

	// godotenv.Load is a no-op (returns an error that callers should
	// ignore) when no .env file is present in the working directory.
	_ = godotenv.Load()
	if level := os.Getenv("FASTMJPG_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}

	return cfg, nil
}
