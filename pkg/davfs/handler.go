// Package davfs is the WebDAV protocol handler behind the adapters. It runs
// golang.org/x/net/webdav on canonical requests and turns what it writes
// into canonical responses, streaming large bodies as they are produced.
package davfs

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/webdav"

	"davbridge/pkg/dav"
	"davbridge/pkg/logger"
)

// DefaultBufferLimit is how much response content is collected before the
// response switches to streaming.
const DefaultBufferLimit = 64 * 1024

// Config is copied by New; later changes have no effect.
type Config struct {
	// FileSystem defaults to an in-memory filesystem.
	FileSystem webdav.FileSystem
	// LockSystem defaults to an in-memory lock system.
	LockSystem webdav.LockSystem
	// Prefix, when set, is stripped from every request path and can not be
	// overridden per call.
	Prefix dav.Prefix
	// IndexFile is served for GET on a directory that contains it.
	IndexFile string
	// AutoIndex renders an HTML listing for GET on a directory.
	AutoIndex bool
	// Location is used for listing timestamps; nil means UTC.
	Location *time.Location
	// BufferLimit overrides DefaultBufferLimit.
	BufferLimit int
}

// Handler implements dav.Handler. It is immutable and safe for concurrent
// use.
type Handler struct {
	fs          webdav.FileSystem
	ls          webdav.LockSystem
	prefix      dav.Prefix
	index       string
	autoIndex   bool
	loc         *time.Location
	bufferLimit int
}

func New(cfg Config) *Handler {
	h := &Handler{
		fs:          cfg.FileSystem,
		ls:          cfg.LockSystem,
		prefix:      cfg.Prefix,
		index:       cfg.IndexFile,
		autoIndex:   cfg.AutoIndex,
		loc:         cfg.Location,
		bufferLimit: cfg.BufferLimit,
	}
	if h.fs == nil {
		h.fs = webdav.NewMemFS()
	}
	if h.ls == nil {
		h.ls = webdav.NewMemLS()
	}
	if h.loc == nil {
		h.loc = time.UTC
	}
	if h.bufferLimit <= 0 {
		h.bufferLimit = DefaultBufferLimit
	}
	return h
}

// Dir serves a local directory the way a static file server would: the
// index.html of a directory when indexHTML is set, else a listing when
// autoIndex is set. Locks are always granted.
func Dir(base string, indexHTML, autoIndex bool, loc *time.Location) *Handler {
	cfg := Config{
		FileSystem: webdav.Dir(base),
		LockSystem: NewFakeLS(),
		AutoIndex:  autoIndex,
		Location:   loc,
	}
	if indexHTML {
		cfg.IndexFile = "index.html"
	}
	return New(cfg)
}

// File serves a single local file whatever the request path.
func File(path string) *Handler {
	return New(Config{FileSystem: FileOnly(path), LockSystem: NewFakeLS()})
}

// ConfiguredPrefix implements dav.PrefixConfigured.
func (h *Handler) ConfiguredPrefix() dav.Prefix { return h.prefix }

// LockSystem returns the lock system requests are served with.
func (h *Handler) LockSystem() webdav.LockSystem { return h.ls }

func (h *Handler) Handle(req *dav.Request) *dav.Response {
	return h.serve(dav.Overrides{}, req)
}

// HandleWith serves req with o applied for this call only. o.Prefix is
// ignored when the handler has a configured prefix.
func (h *Handler) HandleWith(o dav.Overrides, req *dav.Request) *dav.Response {
	return h.serve(o, req)
}

func (h *Handler) serve(o dav.Overrides, req *dav.Request) *dav.Response {
	prefix := normalizePrefix(h.prefix.Or(o.Prefix).String())
	if req.Body == nil {
		req.Body = dav.EmptyBody()
	}

	ctx, cancel := context.WithCancel(dav.WithPrincipal(req.Context(), o.Principal))
	hr := toHTTPRequest(ctx, req)
	c := newCapture(h.bufferLimit, cancel)

	go func() {
		defer close(c.done)
		defer func() {
			p := recover()
			_ = req.Body.Close()
			if p != nil {
				if p != http.ErrAbortHandler {
					logger.Error("dav_handler_panic", "method", hr.Method, "path", hr.URL.Path, "panic", p)
				}
				c.abort(fmt.Errorf("davfs: handler panic: %v", p))
				return
			}
			c.finish()
		}()
		h.serveHTTP(c, hr, prefix)
	}()
	return c.wait()
}

func (h *Handler) serveHTTP(w http.ResponseWriter, r *http.Request, prefix string) {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		if h.serveDirectory(w, r, prefix) {
			return
		}
	}
	wh := &webdav.Handler{
		Prefix:     prefix,
		FileSystem: h.fs,
		LockSystem: h.ls,
		Logger:     logRequest,
	}
	wh.ServeHTTP(w, r)
}

func logRequest(r *http.Request, err error) {
	if err == nil {
		return
	}
	logger.Debug("dav_request_failed",
		"method", r.Method,
		"path", r.URL.Path,
		"principal", dav.PrincipalFrom(r.Context()),
		"error", err,
	)
}

// normalizePrefix drops a trailing slash so the stripped name keeps its
// leading one.
func normalizePrefix(p string) string {
	return strings.TrimSuffix(p, "/")
}

func stripPrefix(p, prefix string) (string, bool) {
	if prefix == "" {
		return p, true
	}
	r, ok := strings.CutPrefix(p, prefix)
	switch {
	case !ok:
		return "", false
	case r == "":
		return "/", true
	case r[0] != '/':
		return "", false
	}
	return r, true
}

// toHTTPRequest builds the request x/net/webdav expects. The canonical body
// becomes the request body as is.
func toHTTPRequest(ctx context.Context, req *dav.Request) *http.Request {
	u := &url.URL{Path: "/"}
	if req.Target != nil {
		t := *req.Target
		u = &t
	}

	major, minor, ok := req.Version.MajorMinor()
	proto := req.Version.Proto()
	if !ok {
		major, minor, proto = 1, 1, "HTTP/1.1"
	}

	hdr := make(http.Header, len(req.Header))
	for _, f := range req.Header {
		hdr.Add(f.Name, f.Value)
	}
	host := hdr.Get("Host")
	hdr.Del("Host")
	if host == "" {
		host = u.Host
	}

	r := &http.Request{
		Method:     string(req.Method),
		URL:        u,
		Proto:      proto,
		ProtoMajor: major,
		ProtoMinor: minor,
		Header:     hdr,
		Host:       host,
		RemoteAddr: req.RemoteAddr,
		RequestURI: u.RequestURI(),
		Body:       http.NoBody,
	}
	if !req.Body.KnownEmpty() {
		r.Body = req.Body
		r.ContentLength = req.Body.Len()
	}
	return r.WithContext(ctx)
}
