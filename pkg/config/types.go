package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config is the davserver configuration file.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	DAV       DAVConfig       `yaml:"dav"`
	Security  SecurityConfig  `yaml:"security"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig selects the host runtime and where it listens.
type ServerConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
	// Runtime is one of nethttp, mount, mux, gin, echo, fasthttp, fiber.
	Runtime string `yaml:"runtime"`
	// MountPath is where routed runtimes attach the handler ("/dav").
	MountPath       string    `yaml:"mount_path"`
	TLS             TLSConfig `yaml:"tls"`
	ShutdownTimeout Duration  `yaml:"shutdown_timeout"`
	MaxBodySize     SizeBytes `yaml:"max_body_size"`
}

// TLSConfig enables TLS when both files are set.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// DAVConfig describes the served tree.
type DAVConfig struct {
	// Dir serves a local directory; empty means an in-memory tree.
	Dir string `yaml:"dir"`
	// File serves a single local file for every path. Exclusive with Dir.
	File      string `yaml:"file"`
	Prefix    string `yaml:"prefix"`
	IndexHTML bool   `yaml:"index_html"`
	AutoIndex bool   `yaml:"auto_index"`
	Timezone  string `yaml:"timezone"`
	// Locks is "mem" (default) or "fake".
	Locks string `yaml:"locks"`
	// LockSweepCron schedules expiry of fake lock records.
	LockSweepCron string    `yaml:"lock_sweep_cron"`
	BufferLimit   SizeBytes `yaml:"buffer_limit"`
}

// SecurityConfig holds the credential gate settings.
type SecurityConfig struct {
	Auth      bool              `yaml:"auth"`
	Realm     string            `yaml:"realm"`
	Users     map[string]string `yaml:"users"`
	APIKeys   map[string]string `yaml:"api_keys"`
	JWTSecret string            `yaml:"jwt_secret"`
	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`
	IPWhitelist []string `yaml:"ip_whitelist"`
}

// LoggingConfig selects level, format and the audit sink.
type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"` // text|json
	AuditDir string `yaml:"audit_dir"`
}

// TelemetryConfig controls metrics exposure.
type TelemetryConfig struct {
	MetricsPath   string   `yaml:"metrics_path"`
	SlowThreshold Duration `yaml:"slow_threshold"`
}

// SizeBytes represents a number of bytes, unmarshaled from human-friendly strings like "64KB" or plain integers.
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*s = 0
		return nil
	}
	return s.parse(node.Value)
}

func (s *SizeBytes) parse(value string) error {
	raw := strings.TrimSpace(value)
	if raw == "" {
		*s = 0
		return nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*s = SizeBytes(i)
		return nil
	}
	if v, err := humanize.ParseBytes(raw); err == nil {
		*s = SizeBytes(v)
		return nil
	}
	return fmt.Errorf("invalid size value: %q", value)
}

func (s SizeBytes) Int64() int64 { return int64(s) }

func (s SizeBytes) String() string { return humanize.IBytes(uint64(s)) }

// Duration accepts "250ms" style strings or a bare number of seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = Duration(0)
		return nil
	}
	return d.parse(node.Value)
}

func (d *Duration) parse(value string) error {
	raw := strings.TrimSpace(value)
	if raw == "" {
		*d = Duration(0)
		return nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		*d = Duration(td)
		return nil
	}
	// allow numeric seconds
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(time.Duration(f * float64(time.Second)))
		return nil
	}
	return fmt.Errorf("invalid duration value: %q", value)
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }
