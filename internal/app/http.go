package app

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gorilla/mux"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"davbridge/pkg/banner"
	"davbridge/pkg/httpx"
	"davbridge/pkg/utils"
)

const (
	healthPath       = "/healthz"
	defaultMountPath = "/dav"
)

// runtimeServer is one host runtime ready to serve a listener.
type runtimeServer struct {
	name  string
	serve func(net.Listener) error
	stop  func(context.Context) error
}

// printBanner prints the startup banner and build info.
func (a *App) printBanner() {
	verStr := a.version
	if a.commit != "" && a.commit != "none" {
		verStr += " (" + a.commit + ")"
	}
	if a.buildDate != "" && a.buildDate != "unknown" {
		verStr += " @ " + a.buildDate
	}
	banner.PrintWithEff(a.eff, verStr)
}

func (a *App) health() utils.Health {
	ver := a.version
	if ver == "" {
		ver = "dev"
	}
	h := utils.Health{Status: "ok", Version: ver, Runtime: a.eff.Config.Server.Runtime}
	if !a.started.IsZero() {
		h.Uptime = time.Since(a.started).Truncate(time.Second).String()
	}
	return h
}

// healthzHandler handles the /healthz endpoint.
func (a *App) healthzHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		utils.JSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, a.health())
}

func (a *App) metricsPath() string {
	if p := a.eff.Config.Telemetry.MetricsPath; p != "" {
		return p
	}
	return "/metrics"
}

// mountPath is where routed runtimes attach the protocol handler.
func (a *App) mountPath() string {
	p := strings.TrimSuffix(a.eff.Config.Server.MountPath, "/")
	if p == "" {
		return defaultMountPath
	}
	return p
}

func (a *App) buildRuntime() (*runtimeServer, error) {
	switch name := a.eff.Config.Server.Runtime; name {
	case httpx.RuntimeNetHTTP, "":
		return a.netHTTPRuntime(httpx.RuntimeNetHTTP, a.netHTTPMux()), nil
	case httpx.RuntimeMount:
		return a.netHTTPRuntime(name, a.mountMux()), nil
	case httpx.RuntimeMux:
		return a.netHTTPRuntime(name, a.gorillaRouter()), nil
	case httpx.RuntimeGin:
		return a.netHTTPRuntime(name, a.ginEngine()), nil
	case httpx.RuntimeEcho:
		return a.netHTTPRuntime(name, a.echoServer()), nil
	case httpx.RuntimeFastHTTP:
		return a.fastHTTPRuntime(), nil
	case httpx.RuntimeFiber:
		return a.fiberRuntime(), nil
	default:
		return nil, fmt.Errorf("unknown runtime %q", name)
	}
}

// netHTTPRuntime serves h with a plain http.Server. Every runtime of the
// net/http family ends up here.
func (a *App) netHTTPRuntime(name string, h http.Handler) *runtimeServer {
	if n := maxBody(a.eff.Config); n > 0 {
		h = http.MaxBytesHandler(h, int64(n))
	}
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return &runtimeServer{name: name, serve: srv.Serve, stop: srv.Shutdown}
}

// netHTTPMux hands every path outside the service endpoints to the
// protocol handler, which owns the whole path.
func (a *App) netHTTPMux() http.Handler {
	m := http.NewServeMux()
	m.HandleFunc(healthPath, a.healthzHandler)
	m.Handle(a.metricsPath(), promhttp.Handler())
	m.Handle("/", httpx.NetHTTPAdapter(a.server))
	return m
}

func (a *App) mountMux() http.Handler {
	base := a.mountPath()
	dav := httpx.Mount(base, httpx.NetHTTPAdapter(a.server))
	m := http.NewServeMux()
	m.HandleFunc(healthPath, a.healthzHandler)
	m.Handle(a.metricsPath(), promhttp.Handler())
	m.Handle(base, dav)
	m.Handle(base+"/", dav)
	return m
}

func (a *App) gorillaRouter() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc(healthPath, a.healthzHandler).Methods(http.MethodGet)
	r.Handle(a.metricsPath(), promhttp.Handler()).Methods(http.MethodGet)
	httpx.MuxRoutes(r, a.mountPath()+"/", a.server)
	return r
}

func (a *App) ginEngine() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	e := gin.New()
	e.GET(healthPath, func(c *gin.Context) { c.JSON(http.StatusOK, a.health()) })
	e.GET(a.metricsPath(), gin.WrapH(promhttp.Handler()))
	httpx.GinRoutes(e, a.mountPath()+"/*path", httpx.GinAdapter(a.server, "path"))
	return e
}

func (a *App) echoServer() http.Handler {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.GET(healthPath, func(c echo.Context) error { return c.JSON(http.StatusOK, a.health()) })
	e.GET(a.metricsPath(), echo.WrapHandler(promhttp.Handler()))
	httpx.EchoRoutes(e, a.mountPath()+"/*", httpx.EchoAdapter(a.server))
	return e
}

func (a *App) fastHTTPRuntime() *runtimeServer {
	davHandler := httpx.FastHTTPAdapter(a.server)
	metrics := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	metricsPath := a.metricsPath()

	srv := &fasthttp.Server{
		Handler: func(ctx *fasthttp.RequestCtx) {
			switch string(ctx.Path()) {
			case healthPath:
				ctx.SetContentType("application/json")
				ctx.SetStatusCode(fasthttp.StatusOK)
				ctx.SetBody(utils.MarshalHealth(a.health()))
			case metricsPath:
				metrics(ctx)
			default:
				davHandler(ctx)
			}
		},
		Name:                         "davbridge",
		StreamRequestBody:            true,
		DisablePreParseMultipartForm: true,
		ReadTimeout:                  time.Minute,
		MaxRequestBodySize:           maxBody(a.eff.Config),
	}
	return &runtimeServer{name: httpx.RuntimeFastHTTP, serve: srv.Serve, stop: srv.ShutdownWithContext}
}

func (a *App) fiberRuntime() *runtimeServer {
	app := fiber.New(httpx.FiberConfig(fiber.Config{
		DisableStartupMessage: true,
		AppName:               "davbridge",
		BodyLimit:             maxBody(a.eff.Config),
	}))
	app.Get(healthPath, func(c *fiber.Ctx) error { return c.JSON(a.health()) })
	app.Get(a.metricsPath(), adaptor.HTTPHandler(promhttp.Handler()))
	httpx.FiberRoutes(app, a.mountPath()+"/*", httpx.FiberAdapter(a.server))
	return &runtimeServer{name: httpx.RuntimeFiber, serve: app.Listener, stop: app.ShutdownWithContext}
}

// wrapTLS terminates TLS on lis when a certificate is configured, the same
// way for every runtime.
func (a *App) wrapTLS(lis net.Listener) (net.Listener, error) {
	t := a.eff.Config.Server.TLS
	if t.CertFile == "" {
		return lis, nil
	}
	cert, err := tls.LoadX509KeyPair(t.CertFile, t.KeyFile)
	if err != nil {
		_ = lis.Close()
		return nil, fmt.Errorf("load tls key pair: %w", err)
	}
	return tls.NewListener(lis, &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
		NextProtos:   []string{"http/1.1"},
	}), nil
}
