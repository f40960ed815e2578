// Package config loads and validates the backup client's YAML configuration.
// Tilde expansion and command-line flag merging are treated as external
// collaborators and are out of scope here.
package config

import (
	"os"
	"strings"

	"github.com/uplo-tech/errors"
	"gopkg.in/yaml.v3"
)

// ErrConfigInvalid is composed with a specific reason for every rejected
// configuration: an unknown key, a missing required field, or a non-HTTPS
// server_url.
var ErrConfigInvalid = errors.New("invalid client configuration")

// Config is the recognised shape of a client configuration file.
type Config struct {
	ServerURL                 string   `yaml:"server_url"`
	VerifyTLSCert              bool     `yaml:"verify_tls_cert"`
	Roots                     []string `yaml:"roots"`
	Log                       string   `yaml:"log"`
	ChunkSize                 int64    `yaml:"chunk_size"`
	ExcludeCacheTagDirectories *bool   `yaml:"exclude_cache_tag_directories"`
}

// defaultChunkSize is a conservative, bandwidth-friendly default piece
// size.
const defaultChunkSize = 4 << 20 // 4 MiB

var knownKeys = map[string]struct{}{
	"server_url":                     {},
	"verify_tls_cert":                {},
	"roots":                          {},
	"log":                            {},
	"chunk_size":                     {},
	"exclude_cache_tag_directories":  {},
}

// Load reads, validates, and fills in defaults for the configuration file at
// path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.AddContext(err, "could not read client config")
	}
	return Parse(data)
}

// Parse validates and fills in defaults for a YAML document already read
// into memory; split out from Load so tests don't need a filesystem.
func Parse(data []byte) (Config, error) {
	var probe map[string]interface{}
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return Config{}, errors.AddContext(err, "could not parse client config")
	}
	for key := range probe {
		if _, ok := knownKeys[key]; !ok {
			return Config{}, errors.Compose(ErrConfigInvalid, errors.New("unknown config key: "+key))
		}
	}

	cfg := Config{VerifyTLSCert: true}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.AddContext(err, "could not parse client config")
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	if cfg.ExcludeCacheTagDirectories == nil {
		enabled := true
		cfg.ExcludeCacheTagDirectories = &enabled
	}
	return cfg, cfg.Validate()
}

// ExcludeCacheTags reports the effective value of exclude_cache_tag_directories.
func (c Config) ExcludeCacheTags() bool {
	return c.ExcludeCacheTagDirectories == nil || *c.ExcludeCacheTagDirectories
}

// Validate checks the invariants a client config must satisfy: an HTTPS
// server_url and a non-empty root list.
func (c Config) Validate() error {
	if c.ServerURL == "" {
		return errors.Compose(ErrConfigInvalid, errors.New("server_url is required"))
	}
	if strings.HasPrefix(c.ServerURL, "http://") {
		return errors.Compose(ErrConfigInvalid, errors.New("server_url must use https://, got "+c.ServerURL))
	}
	if !strings.HasPrefix(c.ServerURL, "https://") {
		return errors.Compose(ErrConfigInvalid, errors.New("server_url must use https://, got "+c.ServerURL))
	}
	if len(c.Roots) == 0 {
		return errors.Compose(ErrConfigInvalid, errors.New("roots must list at least one directory"))
	}
	if c.ChunkSize <= 0 {
		return errors.Compose(ErrConfigInvalid, errors.New("chunk_size must be positive"))
	}
	return nil
}
