package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
)

// Flags holds parsed command-line flag values and which were set.
type Flags struct {
	Addr    string
	Config  string
	Runtime string
	Dir     string
	MemLS   bool
	FakeLS  bool
	Auth    bool
	// Token, when non-empty, asks for a bearer token for that subject
	// instead of starting the server.
	Token string
	Set   map[string]bool
}

// EffectiveConfigResult holds the merged configuration and where it came
// from.
type EffectiveConfigResult struct {
	Config *Config
	Addr   string
	Source string // "flags", "config", "env" or "defaults"
}

// ParseConfigFlags parses args (without the program name) into Flags.
func ParseConfigFlags(name string, args []string) (Flags, error) {
	fset := flag.NewFlagSet(name, flag.ContinueOnError)
	addr := fset.String("addr", fmt.Sprintf(":%d", DefaultPort), "listen address")
	cfgPath := fset.String("config", "./config.yaml", "path to config file")
	runtime := fset.String("runtime", "nethttp", "host runtime: nethttp, mount, mux, gin, echo, fasthttp, fiber")
	dir := fset.String("dir", "", "serve a local directory instead of an in-memory tree")
	memls := fset.Bool("memls", false, "use the in-memory lock system (default)")
	fakels := fset.Bool("fakels", false, "use a lock system that grants every lock")
	auth := fset.Bool("auth", false, "require credentials")
	token := fset.String("token", "", "print a bearer token for this subject and exit")
	if err := fset.Parse(args); err != nil {
		return Flags{}, err
	}
	set := make(map[string]bool)
	fset.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return Flags{
		Addr:    *addr,
		Config:  *cfgPath,
		Runtime: *runtime,
		Dir:     *dir,
		MemLS:   *memls,
		FakeLS:  *fakels,
		Auth:    *auth,
		Token:   *token,
		Set:     set,
	}, nil
}

// ParseConfigFile resolves the config path and loads the YAML file. It
// returns the parsed config, a boolean indicating whether the file was
// present, and an error for fatal parsing problems.
func ParseConfigFile(flags Flags) (*Config, bool, error) {
	cfgPath := ResolveConfigPath(flags.Config, flags.Set["config"])
	cfg, err := Load(cfgPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Defaults(), false, nil
		}
		return nil, false, err
	}
	return cfg, true, nil
}

// ApplyEnvOverrides copies the DAVBRIDGE_* variables onto cfg and reports
// whether any was present.
func ApplyEnvOverrides(cfg *Config) (bool, error) {
	envUsed := false
	str := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			envUsed = true
			*dst = v
		}
	}
	boolean := func(name string, dst *bool) {
		if v := os.Getenv(name); v != "" {
			envUsed = true
			*dst = parseBool(v)
		}
	}

	if v := os.Getenv("DAVBRIDGE_ADDR"); v != "" {
		envUsed = true
		host, port, err := splitAddr(v)
		if err != nil {
			return envUsed, fmt.Errorf("DAVBRIDGE_ADDR: %w", err)
		}
		cfg.Server.Address, cfg.Server.Port = host, port
	} else if v := os.Getenv("DAVBRIDGE_PORT"); v != "" {
		envUsed = true
		p, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return envUsed, fmt.Errorf("DAVBRIDGE_PORT: %w", err)
		}
		cfg.Server.Port = p
	}
	str("DAVBRIDGE_RUNTIME", &cfg.Server.Runtime)
	str("DAVBRIDGE_MOUNT_PATH", &cfg.Server.MountPath)
	str("DAVBRIDGE_TLS_CERT", &cfg.Server.TLS.CertFile)
	str("DAVBRIDGE_TLS_KEY", &cfg.Server.TLS.KeyFile)
	if v := os.Getenv("DAVBRIDGE_MAX_BODY_SIZE"); v != "" {
		envUsed = true
		if err := cfg.Server.MaxBodySize.parse(v); err != nil {
			return envUsed, fmt.Errorf("DAVBRIDGE_MAX_BODY_SIZE: %w", err)
		}
	}

	str("DAVBRIDGE_DIR", &cfg.DAV.Dir)
	str("DAVBRIDGE_FILE", &cfg.DAV.File)
	str("DAVBRIDGE_PREFIX", &cfg.DAV.Prefix)
	str("DAVBRIDGE_TIMEZONE", &cfg.DAV.Timezone)
	str("DAVBRIDGE_LOCKS", &cfg.DAV.Locks)
	str("DAVBRIDGE_LOCK_SWEEP_CRON", &cfg.DAV.LockSweepCron)
	boolean("DAVBRIDGE_INDEX_HTML", &cfg.DAV.IndexHTML)
	boolean("DAVBRIDGE_AUTO_INDEX", &cfg.DAV.AutoIndex)

	boolean("DAVBRIDGE_AUTH", &cfg.Security.Auth)
	str("DAVBRIDGE_REALM", &cfg.Security.Realm)
	str("DAVBRIDGE_JWT_SECRET", &cfg.Security.JWTSecret)
	if v := os.Getenv("DAVBRIDGE_USERS"); v != "" {
		envUsed = true
		users, err := parsePairs(v)
		if err != nil {
			return envUsed, fmt.Errorf("DAVBRIDGE_USERS: %w", err)
		}
		cfg.Security.Users = users
	}
	if v := os.Getenv("DAVBRIDGE_API_KEYS"); v != "" {
		envUsed = true
		keys, err := parsePairs(v)
		if err != nil {
			return envUsed, fmt.Errorf("DAVBRIDGE_API_KEYS: %w", err)
		}
		cfg.Security.APIKeys = keys
	}
	if v := os.Getenv("DAVBRIDGE_RATE_RPS"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			envUsed = true
			cfg.Security.RateLimit.RPS = f
		}
	}
	if v := os.Getenv("DAVBRIDGE_RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envUsed = true
			cfg.Security.RateLimit.Burst = n
		}
	}
	if v := os.Getenv("DAVBRIDGE_IP_WHITELIST"); v != "" {
		envUsed = true
		cfg.Security.IPWhitelist = parseList(v)
	}

	str("DAVBRIDGE_AUDIT_DIR", &cfg.Logging.AuditDir)
	if v := os.Getenv("DAVBRIDGE_SLOW_THRESHOLD"); v != "" {
		envUsed = true
		if err := cfg.Telemetry.SlowThreshold.parse(v); err != nil {
			return envUsed, fmt.Errorf("DAVBRIDGE_SLOW_THRESHOLD: %w", err)
		}
	}
	// DAVBRIDGE_LOG_LEVEL and friends are read by the logger itself.
	return envUsed, nil
}

// LoadEffectiveConfig layers defaults, the config file, the environment and
// explicitly set flags, in that order. An explicit --config must exist.
func LoadEffectiveConfig(flags Flags) (EffectiveConfigResult, error) {
	var res EffectiveConfigResult

	cfg, fileExists, err := ParseConfigFile(flags)
	if err != nil {
		return res, err
	}
	if flags.Set["config"] && !fileExists {
		return res, fmt.Errorf("config file %s not found", flags.Config)
	}
	envUsed, err := ApplyEnvOverrides(cfg)
	if err != nil {
		return res, err
	}
	flagsUsed := applyFlags(cfg, flags)

	res.Config = cfg
	res.Addr = cfg.Addr()
	switch {
	case flagsUsed:
		res.Source = "flags"
	case envUsed:
		res.Source = "env"
	case fileExists:
		res.Source = "config"
	default:
		res.Source = "defaults"
	}
	return res, nil
}

func applyFlags(cfg *Config, flags Flags) bool {
	used := false
	if flags.Set["addr"] {
		used = true
		if host, port, err := splitAddr(flags.Addr); err == nil {
			cfg.Server.Address, cfg.Server.Port = host, port
		}
	}
	if flags.Set["runtime"] {
		used = true
		cfg.Server.Runtime = flags.Runtime
	}
	if flags.Set["dir"] {
		used = true
		cfg.DAV.Dir = flags.Dir
		// a served directory behaves like a static file server
		cfg.DAV.IndexHTML = true
		cfg.DAV.AutoIndex = true
	}
	switch {
	case flags.Set["fakels"] && flags.FakeLS:
		used = true
		cfg.DAV.Locks = "fake"
	case flags.Set["memls"] && flags.MemLS:
		used = true
		cfg.DAV.Locks = "mem"
	}
	if flags.Set["auth"] {
		used = true
		cfg.Security.Auth = flags.Auth
	}
	return used
}

func splitAddr(a string) (string, int, error) {
	host, port, err := net.SplitHostPort(a)
	if err != nil {
		return "", 0, err
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port %q", port)
	}
	return host, p, nil
}

func parseList(v string) []string {
	if v == "" {
		return nil
	}
	parts := []string{}
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			parts = append(parts, s)
		}
	}
	return parts
}

// parsePairs reads "a:x,b:y" lists.
func parsePairs(v string) (map[string]string, error) {
	out := make(map[string]string)
	for _, item := range parseList(v) {
		k, val, ok := strings.Cut(item, ":")
		if !ok || k == "" {
			return nil, fmt.Errorf("expected name:value, got %q", item)
		}
		out[k] = val
	}
	return out, nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
