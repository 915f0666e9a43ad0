package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/webdav"

	"davbridge/internal/retention"
	"davbridge/pkg/auth"
	"davbridge/pkg/config"
	"davbridge/pkg/dav"
	"davbridge/pkg/davfs"
	"davbridge/pkg/httpx"
	"davbridge/pkg/logger"
	"davbridge/pkg/shutdown"
	"davbridge/pkg/telemetry"
)

// App encapsulates the server components and lifecycle.
type App struct {
	eff       config.EffectiveConfigResult
	version   string
	commit    string
	buildDate string
	quiet     bool

	dav     *davfs.Handler
	server  httpx.Server
	started time.Time

	ready chan struct{}
	addr  net.Addr
}

// Option configures an App.
type Option func(*App)

// WithoutBanner suppresses the startup banner.
func WithoutBanner() Option {
	return func(a *App) { a.quiet = true }
}

// New validates the effective config and builds the protocol handler and
// credential gate. It does not listen; call Run for that.
func New(eff config.EffectiveConfigResult, version, commit, buildDate string, opts ...Option) (*App, error) {
	if err := validateConfig(eff); err != nil {
		return nil, err
	}
	cfg := eff.Config

	if dir := cfg.Logging.AuditDir; dir != "" {
		if err := logger.AttachAuditFileSink(dir); err != nil {
			return nil, fmt.Errorf("audit sink: %w", err)
		}
	}
	if d := cfg.Telemetry.SlowThreshold.Duration(); d > 0 {
		telemetry.SetSlowThreshold(d)
	}

	h, err := buildHandler(cfg)
	if err != nil {
		return nil, err
	}
	var sopts []httpx.Option
	if cfg.Security.Auth {
		sopts = append(sopts, httpx.WithGate(buildGate(cfg)))
	}

	a := &App{
		eff:       eff,
		version:   version,
		commit:    commit,
		buildDate: buildDate,
		dav:       h,
		server:    httpx.NewServer(h, sopts...),
		ready:     make(chan struct{}),
	}
	for _, o := range opts {
		o(a)
	}
	return a, nil
}

// Run listens on the configured address, serves the selected runtime and
// blocks until ctx is canceled or a fatal server error occurs.
func (a *App) Run(ctx context.Context) error {
	rt, err := a.buildRuntime()
	if err != nil {
		return err
	}
	lis, err := net.Listen("tcp", a.eff.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.eff.Addr, err)
	}
	if lis, err = a.wrapTLS(lis); err != nil {
		return err
	}
	a.addr = lis.Addr()
	a.started = time.Now()
	close(a.ready)

	if !a.quiet {
		a.printBanner()
	}
	logger.Info("server_listening", "addr", a.addr.String(), "runtime", rt.name)

	if sw, ok := a.dav.LockSystem().(davfs.Sweeper); ok {
		stopSweep, err := retention.Start(ctx, a.eff.Config.DAV.LockSweepCron, sw)
		if err != nil {
			lis.Close()
			return err
		}
		defer stopSweep()
	}

	errCh := make(chan error, 1)
	go func() { errCh <- rt.serve(lis) }()

	select {
	case <-ctx.Done():
		timeout := a.eff.Config.Server.ShutdownTimeout.Duration()
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		if err := shutdown.Graceful(rt.name, timeout, rt.stop); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !isServerClosed(err) {
			return err
		}
		return nil
	case err := <-errCh:
		if isServerClosed(err) {
			return nil
		}
		return err
	}
}

// Ready is closed once the listener is bound.
func (a *App) Ready() <-chan struct{} { return a.ready }

// Addr returns the bound listener address; valid after Ready.
func (a *App) Addr() net.Addr { return a.addr }

func isServerClosed(err error) bool {
	return err == nil || errors.Is(err, http.ErrServerClosed) || errors.Is(err, net.ErrClosed)
}

func buildHandler(cfg *config.Config) (*davfs.Handler, error) {
	loc, err := time.LoadLocation(cfg.DAV.Timezone)
	if err != nil {
		return nil, fmt.Errorf("dav.timezone: %w", err)
	}
	dc := davfs.Config{
		AutoIndex:   cfg.DAV.AutoIndex,
		Location:    loc,
		BufferLimit: int(cfg.DAV.BufferLimit.Int64()),
	}
	if cfg.DAV.IndexHTML {
		dc.IndexFile = "index.html"
	}
	if cfg.DAV.Prefix != "" {
		dc.Prefix = dav.PrefixOf(cfg.DAV.Prefix)
	}
	switch {
	case cfg.DAV.File != "":
		dc.FileSystem = davfs.FileOnly(cfg.DAV.File)
	case cfg.DAV.Dir != "":
		dc.FileSystem = webdav.Dir(cfg.DAV.Dir)
	default:
		dc.FileSystem = webdav.NewMemFS()
	}
	if cfg.DAV.Locks == "fake" {
		dc.LockSystem = davfs.NewFakeLS()
	} else {
		dc.LockSystem = webdav.NewMemLS()
	}
	return davfs.New(dc), nil
}

func buildGate(cfg *config.Config) *auth.Gate {
	s := cfg.Security
	return auth.NewGate(auth.Config{
		Realm:       s.Realm,
		Users:       s.Users,
		APIKeys:     s.APIKeys,
		JWTSecret:   s.JWTSecret,
		RPS:         s.RateLimit.RPS,
		Burst:       s.RateLimit.Burst,
		IPWhitelist: s.IPWhitelist,
	})
}

func maxBody(cfg *config.Config) int {
	n := cfg.Server.MaxBodySize.Int64()
	if n <= 0 {
		return 0
	}
	return int(n)
}
