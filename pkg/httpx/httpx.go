// Package httpx mounts a dav.Handler into the supported host runtimes. Every
// adapter does the same four things: run the credential gate on the native
// request, convert the request to the canonical model, call the protocol
// handler, and write the canonical response back through the runtime's own
// response builder.
package httpx

import (
	"fmt"

	"golang.org/x/net/http/httpguts"

	"davbridge/pkg/auth"
	"davbridge/pkg/dav"
)

// Runtime names used in logs and metrics.
const (
	RuntimeNetHTTP  = "nethttp"
	RuntimeMount    = "mount"
	RuntimeMux      = "mux"
	RuntimeGin      = "gin"
	RuntimeEcho     = "echo"
	RuntimeFastHTTP = "fasthttp"
	RuntimeFiber    = "fiber"
)

// Server pairs a protocol handler with an optional credential gate. It is
// immutable and cheap to copy into every adapter closure.
type Server struct {
	handler dav.Handler
	gate    *auth.Gate
}

// Option configures a Server.
type Option func(*Server)

// WithGate makes every adapter consult g before building a request.
func WithGate(g *auth.Gate) Option {
	return func(s *Server) { s.gate = g }
}

func NewServer(h dav.Handler, opts ...Option) Server {
	s := Server{handler: h}
	for _, o := range opts {
		o(&s)
	}
	return s
}

// Handler returns the protocol handler.
func (s Server) Handler() dav.Handler { return s.handler }

func (s Server) check(c auth.Credentials) (string, *dav.Response) {
	if s.gate == nil {
		return "", nil
	}
	return s.gate.Check(c)
}

// dispatch calls the protocol handler. A prefix computed from routing is
// only passed when the handler has none configured; with neither a
// principal nor a prefix the plain Handle entry point is used.
func (s Server) dispatch(req *dav.Request, principal string, routed dav.Prefix) *dav.Response {
	o := dav.Overrides{Principal: principal}
	if !dav.HandlerPrefix(s.handler).IsSet() {
		o.Prefix = routed
	}
	var resp *dav.Response
	if o.Principal == "" && !o.Prefix.IsSet() {
		resp = s.handler.Handle(req)
	} else {
		resp = s.handler.HandleWith(o, req)
	}
	if resp != nil && resp.Body == nil {
		resp.Body = dav.EmptyBody()
	}
	return resp
}

// checkResponse rejects responses no runtime can put on the wire.
func checkResponse(resp *dav.Response) error {
	if resp == nil {
		return fmt.Errorf("%w: nil response", dav.ErrResponseConstruction)
	}
	if !dav.ValidStatus(resp.Status) {
		return fmt.Errorf("%w: status %d", dav.ErrResponseConstruction, resp.Status)
	}
	for _, f := range resp.Header {
		if !httpguts.ValidHeaderFieldName(f.Name) {
			return fmt.Errorf("%w: invalid header name %q", dav.ErrResponseConstruction, f.Name)
		}
		if !httpguts.ValidHeaderFieldValue(f.Value) {
			return fmt.Errorf("%w: invalid value for header %s", dav.ErrResponseConstruction, f.Name)
		}
	}
	return nil
}

// bodyAllowed reports whether status permits response content.
func bodyAllowed(status int) bool {
	switch {
	case status >= 100 && status <= 199:
		return false
	case status == 204, status == 304:
		return false
	}
	return true
}
