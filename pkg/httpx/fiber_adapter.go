package httpx

import (
	"slices"
	"strings"

	"github.com/gofiber/fiber/v2"

	"davbridge/pkg/dav"
)

// FiberAdapter adapts s for fiber. Routes containing a "*" wildcard report
// everything before it as the prefix. The app must be built with
// FiberConfig so the WebDAV methods reach the router and request bodies are
// streamed.
func FiberAdapter(s Server) fiber.Handler {
	return func(c *fiber.Ctx) error {
		prefix := dav.NoPrefix
		if route := c.Route(); route != nil && strings.Contains(route.Path, "*") {
			prefix = dav.ComputePrefix(c.Path(), c.Params("*"))
		}
		s.serveFast(c.Context(), RuntimeFiber, prefix)
		return nil
	}
}

// FiberConfig extends cfg with the WebDAV request methods and turns on
// request body streaming.
func FiberConfig(cfg fiber.Config) fiber.Config {
	methods := cfg.RequestMethods
	if len(methods) == 0 {
		methods = fiber.DefaultMethods
	}
	out := slices.Clone(methods)
	for _, m := range dav.MethodStrings() {
		if !slices.Contains(out, m) {
			out = append(out, m)
		}
	}
	cfg.RequestMethods = out
	cfg.StreamRequestBody = true
	return cfg
}

// FiberRoutes registers h on path for every WebDAV method.
func FiberRoutes(r fiber.Router, path string, h fiber.Handler) {
	for _, m := range dav.MethodStrings() {
		r.Add(m, path, h)
	}
}
