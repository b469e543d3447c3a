// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/creachadair/dbuschan/channel/chanutil"
	"github.com/rs/zerolog"
)

// config holds the settings of the program, from defaults, an optional
// configuration file, and flags, in increasing order of precedence.
type config struct {
	Address     string
	Framing     string
	Timeout     time.Duration
	WriteRate   float64 // messages per second, 0 for no limit
	LogLevel    zerolog.Level
	MetricsAddr string // serve mode only
	MaxConns    int    // serve mode only
}

func defaultConfig() config {
	return config{
		Framing:  "varint",
		Timeout:  10 * time.Second,
		LogLevel: zerolog.InfoLevel,
	}
}

type fileConfig struct {
	Address     string  `toml:"address"`
	Framing     string  `toml:"framing"`
	Timeout     string  `toml:"timeout"`
	WriteRate   float64 `toml:"write_rate"`
	LogLevel    string  `toml:"log_level"`
	MetricsAddr string  `toml:"metrics_addr"`
	MaxConns    int     `toml:"max_conns"`
}

// loadConfig reads the TOML file at path, and applies the settings it defines
// on top of base.
func loadConfig(path string, base config) (config, error) {
	cfg := base

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return config{}, fmt.Errorf("load config: %w", err)
	}
	if keys := meta.Undecoded(); len(keys) != 0 {
		return config{}, fmt.Errorf("load config: unknown keys %q", keys)
	}

	if meta.IsDefined("address") {
		cfg.Address = strings.TrimSpace(raw.Address)
	}
	if meta.IsDefined("framing") {
		cfg.Framing = strings.TrimSpace(raw.Framing)
	}
	if meta.IsDefined("timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Timeout))
		if err != nil {
			return config{}, fmt.Errorf("parse timeout: %w", err)
		}
		cfg.Timeout = d
	}
	if meta.IsDefined("write_rate") {
		cfg.WriteRate = raw.WriteRate
	}
	if meta.IsDefined("log_level") {
		lvl, err := zerolog.ParseLevel(strings.TrimSpace(raw.LogLevel))
		if err != nil {
			return config{}, fmt.Errorf("parse log_level: %w", err)
		}
		cfg.LogLevel = lvl
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}
	if meta.IsDefined("max_conns") {
		cfg.MaxConns = raw.MaxConns
	}
	return cfg, cfg.check()
}

func (c config) check() error {
	if chanutil.Framing(c.Framing) == nil {
		return fmt.Errorf("unknown framing %q (options: %s)", c.Framing, strings.Join(chanutil.Names(), ", "))
	}
	if c.Timeout < 0 {
		return errors.New("timeout must not be negative")
	}
	if c.WriteRate < 0 {
		return errors.New("write rate must not be negative")
	}
	return nil
}
