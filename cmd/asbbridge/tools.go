package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/nerrad567/asysbus-bridge/internal/bridges/asb"
	"github.com/nerrad567/asysbus-bridge/internal/infrastructure/config"
)

// loadToolConfig loads the configuration for the bus tools. Unlike run,
// the tools work without a config file when none was named explicitly.
func loadToolConfig() (*config.Config, error) {
	path := resolveConfigPath()
	if configPath == "" && os.Getenv(configEnv) == "" {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return config.Default(), nil
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// numericMode returns the --mode override, or the configured mode.
func numericMode(override string, cfg *config.Config) (asb.NumericMode, error) {
	if override != "" {
		return asb.ParseNumericMode(override)
	}
	return asb.ParseNumericMode(cfg.Bridge.NumericMode)
}

// parseHex parses a hex number with an optional 0x prefix, as bus
// addresses and payload bytes are written.
func parseHex(s string, bitSize int) (uint64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return 0, fmt.Errorf("empty hex value")
	}
	v, err := strconv.ParseUint(s, 16, bitSize)
	if err != nil {
		return 0, fmt.Errorf("invalid hex value %q", s)
	}
	return v, nil
}
