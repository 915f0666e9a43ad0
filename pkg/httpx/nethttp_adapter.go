package httpx

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"davbridge/pkg/auth"
	"davbridge/pkg/dav"
	"davbridge/pkg/logger"
	"davbridge/pkg/telemetry"
)

// NetHTTPAdapter adapts s into a standard net/http handler. On its own the
// handler owns the whole path; below Mount it reports the consumed segments
// as the prefix and hands the protocol handler the full original path.
func NetHTTPAdapter(s Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		consumed := Consumed(r.Context())
		if consumed == "" {
			s.serveHTTP(w, r, RuntimeNetHTTP, dav.NoPrefix)
			return
		}
		tail := r.URL.Path
		u := *r.URL
		u.Path = consumed + tail
		u.RawPath = ""
		full := r.WithContext(r.Context())
		full.URL = &u
		s.serveHTTP(w, full, RuntimeMount, dav.ComputePrefix(u.Path, tail))
	})
}

type mountKey struct{}

// Mount routes requests whose path is prefix, or starts with prefix followed
// by a slash, to next with the prefix stripped. Consumed segments accumulate
// across nested mounts.
func Mount(prefix string, next http.Handler) http.Handler {
	prefix = strings.TrimSuffix(prefix, "/")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tail, ok := cutSegments(r.URL.Path, prefix)
		if !ok {
			http.NotFound(w, r)
			return
		}
		ctx := context.WithValue(r.Context(), mountKey{}, Consumed(r.Context())+prefix)
		r2 := r.WithContext(ctx)
		u := *r.URL
		u.Path = tail
		u.RawPath = ""
		r2.URL = &u
		next.ServeHTTP(w, r2)
	})
}

// Consumed returns the path segments stripped by enclosing Mounts.
func Consumed(ctx context.Context) string {
	s, _ := ctx.Value(mountKey{}).(string)
	return s
}

func cutSegments(path, prefix string) (string, bool) {
	if prefix == "" {
		return path, true
	}
	if path == prefix {
		return "", true
	}
	if strings.HasPrefix(path, prefix+"/") {
		return path[len(prefix):], true
	}
	return "", false
}

// NewRequestFromHTTP converts r into a canonical request. The body is
// wrapped, not read.
func NewRequestFromHTTP(r *http.Request) (*dav.Request, error) {
	return httpRequest(r, RuntimeNetHTTP)
}

func httpRequest(r *http.Request, runtime string) (*dav.Request, error) {
	v, err := dav.ParseVersion(r.ProtoMajor, r.ProtoMinor)
	if err != nil {
		return nil, err
	}
	m, err := dav.ParseMethod(r.Method)
	if err != nil {
		return nil, err
	}
	target := *r.URL
	return &dav.Request{
		Ctx:        r.Context(),
		Method:     m,
		Target:     &target,
		Version:    v,
		Header:     headersFromHTTP(r),
		Body:       httpRequestBody(r, runtime),
		RemoteAddr: r.RemoteAddr,
	}, nil
}

// headersFromHTTP flattens r.Header. net/http keeps no order across names,
// so names are emitted sorted; values of one name keep their order. The Host
// header, which net/http moves to r.Host, comes first.
func headersFromHTTP(r *http.Request) dav.Headers {
	keys := make([]string, 0, len(r.Header))
	n := 1
	for k, vs := range r.Header {
		keys = append(keys, k)
		n += len(vs)
	}
	sort.Strings(keys)

	hdr := make(dav.Headers, 0, n)
	if r.Host != "" && len(r.Header["Host"]) == 0 {
		hdr.Add("Host", r.Host)
	}
	for _, k := range keys {
		for _, v := range r.Header[k] {
			hdr.Add(k, v)
		}
	}
	return hdr
}

// WriteHTTPResponse writes resp through w and consumes its body. A returned
// error wrapping dav.ErrResponseConstruction means nothing was written; any
// other error happened after the status line went out.
func WriteHTTPResponse(w http.ResponseWriter, resp *dav.Response) error {
	return writeHTTP(w, resp, RuntimeNetHTTP)
}

func writeHTTP(w http.ResponseWriter, resp *dav.Response, runtime string) error {
	if err := checkResponse(resp); err != nil {
		if resp != nil {
			_ = resp.Body.Close()
		}
		return err
	}
	body := resp.Body
	defer body.Close()

	// net/http chooses the wire version itself
	if resp.Version != dav.VersionUnspecified && !resp.Version.Valid() {
		logger.Debug("response_version_degraded", "version", resp.Version.String())
	}

	h := w.Header()
	for _, f := range resp.Header {
		h.Add(f.Name, f.Value)
	}
	allowed := bodyAllowed(resp.Status)

	if dav.BufferedOrEmpty(resp) {
		var buf []byte
		if body.Kind() == dav.BodyBytes {
			buf, _ = body.Buffer()
		}
		if allowed && h.Get("Content-Length") == "" {
			h.Set("Content-Length", strconv.Itoa(len(buf)))
		}
		w.WriteHeader(resp.Status)
		if !allowed || len(buf) == 0 {
			return nil
		}
		telemetry.BodyFrame(runtime, len(buf))
		_, err := w.Write(buf)
		return err
	}

	if n := body.Len(); n >= 0 && allowed && h.Get("Content-Length") == "" {
		h.Set("Content-Length", strconv.FormatInt(n, 10))
	}
	w.WriteHeader(resp.Status)
	_, err := body.WriteTo(&flushWriter{w: w, rc: http.NewResponseController(w), runtime: runtime})
	return err
}

// flushWriter pushes every frame to the client as soon as it is written.
type flushWriter struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	runtime string
}

func (f *flushWriter) Write(p []byte) (int, error) {
	telemetry.BodyFrame(f.runtime, len(p))
	n, err := f.w.Write(p)
	if err != nil {
		return n, err
	}
	if ferr := f.rc.Flush(); ferr != nil && !errors.Is(ferr, http.ErrNotSupported) {
		return n, ferr
	}
	return n, nil
}

func (s Server) serveHTTP(w http.ResponseWriter, r *http.Request, runtime string, routed dav.Prefix) {
	start := time.Now()
	principal, deny := s.check(auth.Credentials{
		Authorization: r.Header.Get("Authorization"),
		APIKey:        r.Header.Get("X-API-Key"),
		RemoteAddr:    r.RemoteAddr,
	})
	if deny != nil {
		s.finishHTTP(w, r, runtime, deny, start)
		return
	}

	req, err := httpRequest(r, runtime)
	if err != nil {
		rejectHTTP(w, r, runtime, err)
		return
	}
	logger.LogRequest(runtime, req)
	s.finishHTTP(w, r, runtime, s.dispatch(req, principal, routed), start)
}

func (s Server) finishHTTP(w http.ResponseWriter, r *http.Request, runtime string, resp *dav.Response, start time.Time) {
	status := 0
	if resp != nil {
		status = resp.Status
	}
	err := writeHTTP(w, resp, runtime)
	telemetry.Finish(runtime, r.Method, r.URL.Path, status, start)
	if err == nil {
		return
	}
	if errors.Is(err, dav.ErrResponseConstruction) {
		logger.Error("response_construction_failed", "runtime", runtime, "path", r.URL.Path, "error", err)
		telemetry.ConstructionFailure(runtime)
	} else {
		logger.Warn("response_stream_failed", "runtime", runtime, "path", r.URL.Path, "error", err)
		telemetry.StreamFailure(runtime)
	}
	// the server closes the connection without logging a stack trace
	panic(http.ErrAbortHandler)
}

// rejectHTTP answers requests that could not be converted, without involving
// the protocol handler.
func rejectHTTP(w http.ResponseWriter, r *http.Request, runtime string, err error) {
	if errors.Is(err, dav.ErrUnsupportedVersion) {
		logger.Warn("unsupported_http_version", "runtime", runtime, "proto", r.Proto, "remote", r.RemoteAddr)
		telemetry.VersionRejected(runtime)
		http.Error(w, http.StatusText(http.StatusHTTPVersionNotSupported), http.StatusHTTPVersionNotSupported)
		return
	}
	logger.Warn("request_conversion_failed", "runtime", runtime, "error", err)
	http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
}
