package httpx

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/mux"
	"github.com/labstack/echo/v4"

	"davbridge/pkg/dav"
)

// MuxAdapter adapts s for gorilla/mux. The prefix is taken from the route
// variable tailVar when the route has one, otherwise from the template of a
// PathPrefix route.
func MuxAdapter(s Server, tailVar string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.serveHTTP(w, r, RuntimeMux, muxPrefix(r, tailVar))
	})
}

func muxPrefix(r *http.Request, tailVar string) dav.Prefix {
	if tailVar != "" {
		if tail, ok := mux.Vars(r)[tailVar]; ok {
			return dav.ComputePrefix(r.URL.Path, tail)
		}
	}
	route := mux.CurrentRoute(r)
	if route == nil {
		return dav.NoPrefix
	}
	// only an open-ended PathPrefix template is a consumed prefix
	re, err := route.GetPathRegexp()
	if err != nil || strings.HasSuffix(re, "$") {
		return dav.NoPrefix
	}
	tpl, err := route.GetPathTemplate()
	if err != nil || strings.Contains(tpl, "{") || !strings.HasPrefix(r.URL.Path, tpl) {
		return dav.NoPrefix
	}
	return dav.ComputePrefix(r.URL.Path, r.URL.Path[len(tpl):])
}

// MuxRoutes mounts s at base on r for every WebDAV method.
func MuxRoutes(r *mux.Router, base string, s Server) *mux.Route {
	return r.PathPrefix(base).Methods(dav.MethodStrings()...).Handler(MuxAdapter(s, ""))
}

// GinAdapter adapts s for gin. tailParam names the catch-all parameter of
// the route ("path" for "/dav/*path").
func GinAdapter(s Server, tailParam string) gin.HandlerFunc {
	return func(c *gin.Context) {
		prefix := dav.NoPrefix
		if tail, ok := c.Params.Get(tailParam); ok {
			prefix = dav.ComputePrefix(c.Request.URL.Path, tail)
		}
		s.serveHTTP(c.Writer, c.Request, RuntimeGin, prefix)
	}
}

// GinRoutes registers h on path for every WebDAV method; gin's Any only
// covers the standard ones.
func GinRoutes(r gin.IRoutes, path string, h gin.HandlerFunc) {
	for _, m := range dav.MethodStrings() {
		r.Handle(m, path, h)
	}
}

// EchoAdapter adapts s for echo. Routes ending in "*" report everything
// before the wildcard as the prefix.
func EchoAdapter(s Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		prefix := dav.NoPrefix
		if strings.HasSuffix(c.Path(), "*") {
			prefix = dav.ComputePrefix(c.Request().URL.Path, echoTail(c))
		}
		s.serveHTTP(c.Response(), c.Request(), RuntimeEcho, prefix)
		return nil
	}
}

// echoTail returns the wildcard match in the decoded form of URL.Path.
// echo routes on RawPath when the request has one and leaves the match
// escaped.
func echoTail(c echo.Context) string {
	tail := c.Param("*")
	if c.Request().URL.RawPath == "" {
		return tail
	}
	if u, err := url.PathUnescape(tail); err == nil {
		return u
	}
	return tail
}

// echoRouter is satisfied by *echo.Echo and *echo.Group.
type echoRouter interface {
	Match(methods []string, path string, handler echo.HandlerFunc, middleware ...echo.MiddlewareFunc) []*echo.Route
}

// EchoRoutes registers h on path for every WebDAV method.
func EchoRoutes(e echoRouter, path string, h echo.HandlerFunc) []*echo.Route {
	return e.Match(dav.MethodStrings(), path, h)
}
