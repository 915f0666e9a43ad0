package banner

import (
	"fmt"
	"io"
	"os"

	"davbridge/pkg/config"
)

const banner = `
██████╗  █████╗ ██╗   ██╗██████╗ ██████╗ ██╗██████╗  ██████╗ ███████╗
██╔══██╗██╔══██╗██║   ██║██╔══██╗██╔══██╗██║██╔══██╗██╔════╝ ██╔════╝
██║  ██║███████║██║   ██║██████╔╝██████╔╝██║██║  ██║██║  ███╗█████╗
██║  ██║██╔══██║╚██╗ ██╔╝██╔══██╗██╔══██╗██║██║  ██║██║   ██║██╔══╝
██████╔╝██║  ██║ ╚████╔╝ ██████╔╝██║  ██║██║██████╔╝╚██████╔╝███████╗
╚═════╝ ╚═╝  ╚═╝  ╚═══╝  ╚═════╝ ╚═╝  ╚═╝╚═╝╚═════╝  ╚═════╝ ╚══════╝
`

// PrintWithEff prints the banner for the effective config to stdout.
func PrintWithEff(eff config.EffectiveConfigResult, version string) {
	Fprint(os.Stdout, eff, version)
}

// Fprint writes the banner and a summary of eff to w.
func Fprint(w io.Writer, eff config.EffectiveConfigResult, version string) {
	cfg := eff.Config
	if cfg == nil {
		cfg = config.Defaults()
	}
	addr := eff.Addr
	if addr == "" {
		addr = cfg.Addr()
	}
	src := eff.Source
	if src == "" {
		src = "defaults"
	}

	fmt.Fprint(w, banner)
	fmt.Fprintln(w, "== Config =====================================================")
	fmt.Fprintf(w, "Listen:   %s\n", addr)
	fmt.Fprintf(w, "Runtime:  %s\n", cfg.Server.Runtime)
	if version != "" {
		fmt.Fprintf(w, "Version:  %s\n", version)
	}
	fmt.Fprintf(w, "Config:   %s\n", src)

	switch {
	case cfg.DAV.File != "":
		fmt.Fprintf(w, "Serving:  file %s\n", cfg.DAV.File)
	case cfg.DAV.Dir != "":
		fmt.Fprintf(w, "Serving:  directory %s\n", cfg.DAV.Dir)
	default:
		fmt.Fprintln(w, "Serving:  in-memory tree")
	}
	fmt.Fprintf(w, "Locks:    %s\n", cfg.DAV.Locks)

	fmt.Fprintln(w, "\n== Examples ===================================================")
	fmt.Fprintf(w, "curl -X PROPFIND -H 'Depth: 1' 'http://localhost%s%s/'\n", portOf(addr), cfg.Server.MountPath)
	fmt.Fprintf(w, "curl -T notes.txt 'http://localhost%s%s/notes.txt'\n", portOf(addr), cfg.Server.MountPath)

	fmt.Fprintln(w, "\n== Production? =================================================")
	if cfg.Security.Auth {
		switch {
		case len(cfg.Security.Users) > 0:
			fmt.Fprintf(w, "- Auth: enabled (%d users)\n", len(cfg.Security.Users))
		case cfg.Security.JWTSecret != "" || len(cfg.Security.APIKeys) > 0:
			fmt.Fprintln(w, "- Auth: enabled (tokens)")
		default:
			fmt.Fprintln(w, "- Auth: enabled (any Basic credential is accepted)")
		}
	} else {
		fmt.Fprintln(w, "- Auth: disabled")
	}
	if cfg.Server.TLS.CertFile != "" && cfg.Server.TLS.KeyFile != "" {
		fmt.Fprintln(w, "- TLS: configured")
	} else {
		fmt.Fprintln(w, "- TLS: unconfigured")
	}
	if cfg.DAV.Locks == "fake" {
		fmt.Fprintln(w, "- Locks: every LOCK is granted, nothing is protected")
	}

	fmt.Fprintln(w, "\n== Logs: =================================================")
}

func portOf(addr string) string {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[i:]
		}
	}
	return ""
}
