// Package config loads server configuration from flags layered over an
// optional YAML file, mirroring the flags-then-env precedence the teacher
// command uses for its own bootstrap.
package config

import (
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds everything the server needs to bind, store data, and log.
type Config struct {
	HTTPAddr           string `yaml:"http_addr"`
	DataDir            string `yaml:"data_dir"`
	LogLevel           string `yaml:"log_level"`
	MaxPropertyBytes   int64  `yaml:"max_property_bytes"`
	FsyncOnClose       bool   `yaml:"fsync_on_close"`
	ReadBytesPerSecond int64  `yaml:"read_bytes_per_second"`
	Workers            int    `yaml:"workers"`
}

// Default returns the configuration's documented defaults.
func Default() *Config {
	return &Config{
		HTTPAddr:           "0.0.0.0:3000",
		DataDir:            "./tmp_outputs",
		LogLevel:           "info",
		MaxPropertyBytes:   16 << 20,
		FsyncOnClose:       false,
		ReadBytesPerSecond: 0,
		Workers:            0,
	}
}

// Load parses flags from args (excluding the program name) against fs,
// layering them over an optional YAML file given by -config, flags taking
// precedence: a file field is applied only where the corresponding flag was
// not set on the command line and the file value is non-zero.
func Load(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := Default()

	configPath := fs.String("config", "", "Path to an optional YAML config file")
	httpAddr := fs.String("http", cfg.HTTPAddr, "Address to listen on (e.g., 0.0.0.0:3000)")
	dataDir := fs.String("data-dir", cfg.DataDir, "Storage root directory")
	logLevel := fs.String("log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	maxPropertyBytes := fs.Int64("max-property-bytes", cfg.MaxPropertyBytes, "Maximum buffered size of a single property, in bytes")
	fsyncOnClose := fs.Bool("fsync-on-close", cfg.FsyncOnClose, "Fsync the data file when a writer closes (durability beyond flush)")
	readBytesPerSecond := fs.Int64("read-bytes-per-second", cfg.ReadBytesPerSecond, "Per-reader egress throttle in bytes/second (0 means unlimited)")
	workers := fs.Int("workers", cfg.Workers, "Blocking-I/O worker pool size (0 means GOMAXPROCS)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if len(fs.Args()) > 0 {
		return nil, fmt.Errorf("unknown arguments: %v", fs.Args())
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	if *configPath != "" {
		fileCfg, err := loadYAML(*configPath)
		if err != nil {
			return nil, err
		}
		if !set["http"] && fileCfg.HTTPAddr != "" {
			*httpAddr = fileCfg.HTTPAddr
		}
		if !set["data-dir"] && fileCfg.DataDir != "" {
			*dataDir = fileCfg.DataDir
		}
		if !set["log-level"] && fileCfg.LogLevel != "" {
			*logLevel = fileCfg.LogLevel
		}
		if !set["max-property-bytes"] && fileCfg.MaxPropertyBytes != 0 {
			*maxPropertyBytes = fileCfg.MaxPropertyBytes
		}
		if !set["fsync-on-close"] && fileCfg.FsyncOnClose {
			*fsyncOnClose = fileCfg.FsyncOnClose
		}
		if !set["read-bytes-per-second"] && fileCfg.ReadBytesPerSecond != 0 {
			*readBytesPerSecond = fileCfg.ReadBytesPerSecond
		}
		if !set["workers"] && fileCfg.Workers != 0 {
			*workers = fileCfg.Workers
		}
	}

	cfg.HTTPAddr = *httpAddr
	cfg.DataDir = *dataDir
	cfg.LogLevel = *logLevel
	cfg.MaxPropertyBytes = *maxPropertyBytes
	cfg.FsyncOnClose = *fsyncOnClose
	cfg.ReadBytesPerSecond = *readBytesPerSecond
	cfg.Workers = *workers
	return cfg, nil
}

func loadYAML(path string) (*Config, error) {
	b, err := os.ReadFile(path) //nolint:gosec // G304: path comes from an operator-supplied flag, not request input
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return &cfg, nil
}
