package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/adhocore/gronx"

	"davbridge/pkg/config"
	"davbridge/pkg/httpx"
)

var runtimes = map[string]bool{
	httpx.RuntimeNetHTTP:  true,
	httpx.RuntimeMount:    true,
	httpx.RuntimeMux:      true,
	httpx.RuntimeGin:      true,
	httpx.RuntimeEcho:     true,
	httpx.RuntimeFastHTTP: true,
	httpx.RuntimeFiber:    true,
}

// validateConfig performs quick, fail-fast validation of the effective
// configuration before starting long-running services.
func validateConfig(eff config.EffectiveConfigResult) error {
	cfg := eff.Config
	if cfg == nil {
		return fmt.Errorf("no configuration")
	}
	if eff.Addr == "" {
		return fmt.Errorf("listen address is empty: set --addr, DAVBRIDGE_ADDR, or server.port in config")
	}
	if !runtimes[cfg.Server.Runtime] {
		return fmt.Errorf("unknown runtime %q: want one of nethttp, mount, mux, gin, echo, fasthttp, fiber", cfg.Server.Runtime)
	}
	if p := cfg.Server.MountPath; p != "" && !strings.HasPrefix(p, "/") {
		return fmt.Errorf("server.mount_path must start with /: %q", p)
	}
	if p := cfg.DAV.Prefix; p != "" && !strings.HasPrefix(p, "/") {
		return fmt.Errorf("dav.prefix must start with /: %q", p)
	}

	// TLS cert/key presence check if one is set
	cert := cfg.Server.TLS.CertFile
	key := cfg.Server.TLS.KeyFile
	if (cert != "" && key == "") || (cert == "" && key != "") {
		return fmt.Errorf("incomplete TLS configuration: both server.tls.cert_file and server.tls.key_file must be set")
	}
	if cert != "" {
		if _, err := os.Stat(cert); err != nil {
			return fmt.Errorf("tls cert file not accessible: %w", err)
		}
		if _, err := os.Stat(key); err != nil {
			return fmt.Errorf("tls key file not accessible: %w", err)
		}
	}

	if cfg.DAV.Dir != "" && cfg.DAV.File != "" {
		return fmt.Errorf("dav.dir and dav.file are mutually exclusive")
	}
	if d := cfg.DAV.Dir; d != "" {
		fi, err := os.Stat(d)
		if err != nil {
			return fmt.Errorf("dav.dir not accessible: %w", err)
		}
		if !fi.IsDir() {
			return fmt.Errorf("dav.dir is not a directory: %s", d)
		}
	}
	if f := cfg.DAV.File; f != "" {
		fi, err := os.Stat(f)
		if err != nil {
			return fmt.Errorf("dav.file not accessible: %w", err)
		}
		if fi.IsDir() {
			return fmt.Errorf("dav.file is a directory: %s", f)
		}
	}
	switch cfg.DAV.Locks {
	case "", "mem", "fake":
	default:
		return fmt.Errorf("dav.locks must be mem or fake, got %q", cfg.DAV.Locks)
	}
	if c := cfg.DAV.LockSweepCron; c != "" && !gronx.IsValid(c) {
		return fmt.Errorf("dav.lock_sweep_cron is not a valid cron expression: %q", c)
	}
	if _, err := time.LoadLocation(cfg.DAV.Timezone); err != nil {
		return fmt.Errorf("dav.timezone: %w", err)
	}

	if s := cfg.Security.JWTSecret; s != "" && len(s) < 16 {
		return fmt.Errorf("security.jwt_secret must be at least 16 bytes")
	}
	if cfg.Security.RateLimit.RPS < 0 || cfg.Security.RateLimit.Burst < 0 {
		return fmt.Errorf("security.rate_limit values must not be negative")
	}
	return nil
}
