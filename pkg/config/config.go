// Package config carries the engine's tunables. A Config can be built in
// code from Default or loaded from a YAML file; either way it is validated
// before use so a bad block size or cache capacity fails fast instead of
// producing unreadable tables.
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Compression selects the block compression codec.
type Compression string

const (
	// NoCompression stores blocks raw.
	NoCompression Compression = "none"
	// SnappyCompression compresses blocks that shrink enough to be worth it.
	SnappyCompression Compression = "snappy"
)

// Config holds every knob the write and read paths consult.
type Config struct {
	// DataDir is where table files live.
	DataDir string `yaml:"data_dir" validate:"required"`

	// BlockSize is the uncompressed size threshold at which the table
	// builder cuts a data block.
	BlockSize int `yaml:"block_size" validate:"gte=64"`

	// RestartInterval is the number of entries between restart points in
	// a data block.
	RestartInterval int `yaml:"restart_interval" validate:"gte=1"`

	// Compression selects the block codec.
	Compression Compression `yaml:"compression" validate:"oneof=none snappy"`

	// BloomBitsPerKey sizes the per-table bloom filters. Zero disables
	// filter blocks entirely.
	BloomBitsPerKey int `yaml:"bloom_bits_per_key" validate:"gte=0,lte=64"`

	// BlockCacheCapacity bounds the decoded-block cache, in bytes.
	BlockCacheCapacity int64 `yaml:"block_cache_capacity" validate:"gte=0"`

	// MaxOpenFiles bounds file handles; the table cache keeps
	// MaxOpenFiles-10 tables open.
	MaxOpenFiles int `yaml:"max_open_files" validate:"gt=10"`

	// LogLevel is the minimum level emitted by the engine logger.
	LogLevel string `yaml:"log_level" validate:"oneof=debug info warn error"`
}

// Default returns the engine defaults: 4 KiB blocks, restart interval 16,
// snappy, 10 bloom bits per key, an 8 MiB block cache, and 1000 files.
func Default(dataDir string) Config {
	return Config{
		DataDir:            dataDir,
		BlockSize:          4 * 1024,
		RestartInterval:    16,
		Compression:        SnappyCompression,
		BloomBitsPerKey:    10,
		BlockCacheCapacity: 8 * 1024 * 1024,
		MaxOpenFiles:       1000,
		LogLevel:           "info",
	}
}

// Validate checks the config against its constraints.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Load reads a YAML config from path. Missing fields keep their defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := Default("")
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
