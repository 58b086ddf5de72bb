// Package config provides configuration management for dronelink.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	logging "github.com/ipfs/go-log/v2"
	ma "github.com/multiformats/go-multiaddr"
	"gopkg.in/yaml.v3"

	"DroneLink-Apps/internal/core/network"
)

// Config represents the dronelink configuration.
type Config struct {
	Network NetworkConfig `yaml:"network"`
	HTTP    HTTPConfig    `yaml:"http"`
	Log     LogConfig     `yaml:"log"`
}

// NetworkConfig contains libp2p transport settings.
type NetworkConfig struct {
	Listen          []string `yaml:"listen"`
	Bootstrap       []string `yaml:"bootstrap"`
	EnableMDNS      bool     `yaml:"enable_mdns"`
	Rendezvous      string   `yaml:"rendezvous"`
	IdentityKeyFile string   `yaml:"identity_key_file"`
}

// HTTPConfig contains control API settings.
type HTTPConfig struct {
	Listen string `yaml:"listen"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// Default returns a default configuration.
func Default() *Config {
	opts := network.DefaultLibp2pOptions()
	return &Config{
		Network: NetworkConfig{
			Listen:          opts.ListenAddrs,
			Bootstrap:       []string{},
			EnableMDNS:      opts.EnableMDNS,
			Rendezvous:      opts.Rendezvous,
			IdentityKeyFile: filepath.Join(baseDir(), "identity.key"),
		},
		HTTP: HTTPConfig{Listen: ":8090"},
		Log:  LogConfig{Level: "info"},
	}
}

// DefaultPath returns the default configuration file path.
func DefaultPath() string {
	return filepath.Join(baseDir(), "config.yaml")
}

func baseDir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".dronelink")
}

// Load loads the configuration from a file. Fields missing from the file
// keep their default values.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save saves the configuration to a file.
func Save(path string, cfg *Config) error {
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate reports every problem found, not just the first.
func (c *Config) Validate() error {
	var errs error
	for _, s := range c.Network.Listen {
		if _, err := ma.NewMultiaddr(s); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("network.listen %q: %w", s, err))
		}
	}
	for _, s := range c.Network.Bootstrap {
		if _, err := ma.NewMultiaddr(s); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("network.bootstrap %q: %w", s, err))
		}
	}
	if c.HTTP.Listen == "" {
		errs = multierror.Append(errs, fmt.Errorf("http.listen: empty address"))
	} else if _, _, err := net.SplitHostPort(c.HTTP.Listen); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("http.listen %q: %w", c.HTTP.Listen, err))
	}
	if _, err := logging.LevelFromString(c.Log.Level); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("log.level %q: %w", c.Log.Level, err))
	}
	return errs
}

// Libp2pOptions maps the network section onto transport options.
func (c *Config) Libp2pOptions() network.Libp2pOptions {
	return network.Libp2pOptions{
		ListenAddrs:     append([]string(nil), c.Network.Listen...),
		Bootstrap:       append([]string(nil), c.Network.Bootstrap...),
		Rendezvous:      c.Network.Rendezvous,
		EnableMDNS:      c.Network.EnableMDNS,
		IdentityKeyFile: c.Network.IdentityKeyFile,
	}
}
