// Package config loads cabin.yaml and applies environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/seeqbio/cabin/internal/store"
)

// DefaultFile is read from the working directory when no file is given.
const DefaultFile = "cabin.yaml"

// Environment variables that override the file.
const (
	EnvDBDriver     = "CABIN_DB_DRIVER"
	EnvDBDSN        = "CABIN_DB_DSN"
	EnvDownloadDir  = "CABIN_DOWNLOAD_DIR"
	EnvCatalog      = "CABIN_CATALOG"
	EnvMirrorBucket = "CABIN_MIRROR_BUCKET"
	EnvProducer     = "CABIN_PRODUCER"
)

// Mirror kinds.
const (
	MirrorNone = ""
	MirrorS3   = "s3"
	MirrorDir  = "dir"
)

// Config is the full configuration.
type Config struct {
	Database    store.Config `yaml:"database"`
	DownloadDir string       `yaml:"download_dir"`
	Catalog     string       `yaml:"catalog"`
	Mirror      MirrorConfig `yaml:"mirror"`
	Fetch       FetchConfig  `yaml:"fetch"`
	// Producer identifies this writer in ledger rows. Defaults to a fresh
	// UUIDv7 per run.
	Producer string `yaml:"producer"`
}

// MirrorConfig selects and configures the mirror store.
type MirrorConfig struct {
	Kind     string `yaml:"kind"`
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
	Dir      string `yaml:"dir"`
}

// FetchConfig tunes downloads of external sources.
type FetchConfig struct {
	Retries uint64        `yaml:"retries"`
	Timeout time.Duration `yaml:"timeout"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Database:    store.Config{Driver: store.DriverSQLite, DSN: "cabin.db"},
		DownloadDir: "downloads",
		Fetch:       FetchConfig{Retries: 4, Timeout: 30 * time.Minute},
	}
}

// Load reads path over the defaults, applies environment overrides from
// getenv and fills in the producer id. An empty path reads DefaultFile if it
// exists. Unknown keys are rejected.
func Load(path string, getenv func(string) string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(data, &cfg); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("config: %w", err)
	}

	if getenv == nil {
		getenv = os.Getenv
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}
	if cfg.Producer == "" {
		cfg.Producer = uuid.Must(uuid.NewV7()).String()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decode(data []byte, cfg *Config) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	return decoder.Decode(cfg)
}

func (c *Config) applyEnv(getenv func(string) string) error {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.Database.Driver, EnvDBDriver)
	set(&c.Database.DSN, EnvDBDSN)
	set(&c.DownloadDir, EnvDownloadDir)
	set(&c.Catalog, EnvCatalog)
	set(&c.Producer, EnvProducer)
	if v := getenv(EnvMirrorBucket); v != "" {
		c.Mirror.Bucket = v
		if c.Mirror.Kind == MirrorNone {
			c.Mirror.Kind = MirrorS3
		}
	}
	if v := getenv("CABIN_FETCH_RETRIES"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("config: CABIN_FETCH_RETRIES: %w", err)
		}
		c.Fetch.Retries = n
	}
	return nil
}

// Validate checks the combined configuration.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case store.DriverSQLite, store.DriverMySQL:
	default:
		return fmt.Errorf("config: unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("config: database dsn is required")
	}
	if c.DownloadDir == "" {
		return errors.New("config: download_dir is required")
	}
	switch c.Mirror.Kind {
	case MirrorNone:
	case MirrorS3:
		if c.Mirror.Bucket == "" {
			return errors.New("config: mirror bucket is required for the s3 mirror")
		}
	case MirrorDir:
		if c.Mirror.Dir == "" {
			return errors.New("config: mirror dir is required for the dir mirror")
		}
	default:
		return fmt.Errorf("config: unsupported mirror kind %q", c.Mirror.Kind)
	}
	return nil
}
