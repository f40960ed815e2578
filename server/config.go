package server

import (
	"os"

	"github.com/uplo-tech/errors"
	"gopkg.in/yaml.v3"
)

// Config is the chunk server's configuration file.
type Config struct {
	Address string `yaml:"address"`
	Chunks  string `yaml:"chunks"`
	TLSKey  string `yaml:"tls_key"`
	TLSCert string `yaml:"tls_cert"`
}

// ErrConfigInvalid wraps a specific configuration problem; surfaced at
// startup and always fatal.
var ErrConfigInvalid = errors.New("invalid server configuration")

// LoadConfig reads and validates the YAML server configuration at path,
// rejecting unknown keys to catch typos early.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.AddContext(err, "could not read server config")
	}

	var probe map[string]interface{}
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return Config{}, errors.AddContext(err, "could not parse server config")
	}
	for key := range probe {
		switch key {
		case "address", "chunks", "tls_key", "tls_cert":
		default:
			return Config{}, errors.Compose(ErrConfigInvalid, errors.New("unknown config key: "+key))
		}
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.AddContext(err, "could not parse server config")
	}
	return cfg, cfg.Validate()
}

// Validate checks that every required field of Config is present.
func (c Config) Validate() error {
	if c.Address == "" {
		return errors.Compose(ErrConfigInvalid, errors.New("address is required"))
	}
	if c.Chunks == "" {
		return errors.Compose(ErrConfigInvalid, errors.New("chunks directory is required"))
	}
	if c.TLSCert == "" || c.TLSKey == "" {
		return errors.Compose(ErrConfigInvalid, errors.New("tls_cert and tls_key are required: plain HTTP is not supported"))
	}
	return nil
}
