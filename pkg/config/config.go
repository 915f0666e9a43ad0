package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPort is the port the sample WebDAV servers have always used.
const DefaultPort = 4918

// Defaults returns the configuration used when nothing else is set.
func Defaults() *Config {
	cfg := &Config{}
	cfg.Server.Port = DefaultPort
	cfg.Server.Runtime = "nethttp"
	cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	cfg.DAV.Locks = "mem"
	cfg.DAV.Timezone = "UTC"
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"
	cfg.Telemetry.MetricsPath = "/metrics"
	return cfg
}

// Addr returns host:port for the listener.
func (c *Config) Addr() string {
	p := c.Server.Port
	if p == 0 {
		p = DefaultPort
	}
	return net.JoinHostPort(c.Server.Address, strconv.Itoa(p))
}

// Load reads a YAML file on top of Defaults. A missing file is reported
// with an error wrapping fs.ErrNotExist.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config file not found: %s: %w", path, fs.ErrNotExist)
		}
		return nil, err
	}
	cfg := Defaults()
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadDotEnv loads variables from a .env file without overriding ones
// already present in the environment. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ResolveConfigPath decides the config file path using the flag-provided value
// and the environment variable `DAVBRIDGE_CONFIG` when the flag was not set.
func ResolveConfigPath(flagPath string, flagSet bool) string {
	if flagSet {
		return flagPath
	}
	if p := os.Getenv("DAVBRIDGE_CONFIG"); p != "" {
		return p
	}
	return flagPath
}
