package httpx

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"davbridge/pkg/auth"
	"davbridge/pkg/dav"
	"davbridge/pkg/logger"
	"davbridge/pkg/telemetry"
)

// FastHTTPAdapter adapts s into a fasthttp.RequestHandler. The handler owns
// the whole path.
func FastHTTPAdapter(s Server) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		s.serveFast(ctx, RuntimeFastHTTP, dav.NoPrefix)
	}
}

// NewRequestFromFastHTTP converts ctx into a canonical request whose context
// derives from parent. The body is wrapped, not read; it is only valid
// while ctx is.
func NewRequestFromFastHTTP(parent context.Context, ctx *fasthttp.RequestCtx) (*dav.Request, error) {
	return fastRequest(parent, ctx, RuntimeFastHTTP)
}

func fastRequest(parent context.Context, ctx *fasthttp.RequestCtx, runtime string) (*dav.Request, error) {
	v, err := dav.ParseProto(string(ctx.Request.Header.Protocol()))
	if err != nil {
		return nil, err
	}
	m, err := dav.ParseMethod(string(ctx.Method()))
	if err != nil {
		return nil, err
	}
	target, err := url.ParseRequestURI(string(ctx.RequestURI()))
	if err != nil {
		return nil, fmt.Errorf("httpx: request target: %w", err)
	}

	var hdr dav.Headers
	ctx.Request.Header.VisitAll(func(k, v []byte) {
		hdr.Add(string(k), string(v))
	})

	return &dav.Request{
		Ctx:        parent,
		Method:     m,
		Target:     target,
		Version:    v,
		Header:     hdr,
		Body:       fastRequestBody(ctx, runtime),
		RemoteAddr: ctx.RemoteAddr().String(),
	}, nil
}

// WriteFastHTTPResponse writes resp into ctx.Response. Buffered bodies are
// consumed immediately; a Stream body is handed to fasthttp, which pulls and
// closes it after the handler returns. A returned error wraps
// dav.ErrResponseConstruction and leaves ctx.Response untouched.
func WriteFastHTTPResponse(ctx *fasthttp.RequestCtx, resp *dav.Response) error {
	return writeFast(ctx, resp, RuntimeFastHTTP)
}

// fastVersion reports whether fasthttp can honor v. It only speaks HTTP/1.x.
func fastVersion(v dav.Version) bool {
	switch v {
	case dav.VersionUnspecified, dav.HTTP10, dav.HTTP11:
		return true
	}
	return false
}

func writeFast(ctx *fasthttp.RequestCtx, resp *dav.Response, runtime string) error {
	if err := checkResponse(resp); err != nil {
		if resp != nil {
			_ = resp.Body.Close()
		}
		return err
	}
	if !fastVersion(resp.Version) {
		logger.Error("response_version_unrepresentable", "runtime", runtime, "version", resp.Version.String())
		_ = resp.Body.Close()
		resp = dav.NewResponse(http.StatusInternalServerError)
	}

	r := &ctx.Response
	r.Header.SetNoDefaultContentType(true)
	r.SetStatusCode(resp.Status)
	for _, f := range resp.Header {
		switch {
		case strings.EqualFold(f.Name, "Content-Length"):
			// kept for HEAD replies; a body set below overrides it
			if n, err := strconv.Atoi(f.Value); err == nil {
				r.Header.SetContentLength(n)
			}
		case strings.EqualFold(f.Name, "Transfer-Encoding"):
		default:
			r.Header.Add(f.Name, f.Value)
		}
	}

	body := resp.Body
	if dav.BufferedOrEmpty(resp) {
		if buf, ok := body.Buffer(); ok && len(buf) > 0 && bodyAllowed(resp.Status) {
			telemetry.BodyFrame(runtime, len(buf))
			r.SetBody(buf)
		}
		_ = body.Close()
		return nil
	}

	path := string(ctx.Path())
	r.SetBodyStream(&watchedBody{body: body, runtime: runtime, onFailed: func(err error) {
		logger.Warn("response_stream_failed", "runtime", runtime, "path", path, "error", err)
		telemetry.StreamFailure(runtime)
	}}, int(body.Len()))
	return nil
}

func (s Server) serveFast(ctx *fasthttp.RequestCtx, runtime string, routed dav.Prefix) {
	start := time.Now()
	principal, deny := s.check(auth.Credentials{
		Authorization: string(ctx.Request.Header.Peek("Authorization")),
		APIKey:        string(ctx.Request.Header.Peek("X-API-Key")),
		RemoteAddr:    ctx.RemoteAddr().String(),
	})
	if deny != nil {
		s.finishFast(ctx, runtime, deny, start)
		return
	}

	// the request context outlives the handler while a body streams out
	reqCtx, cancel := context.WithCancel(context.Background())
	req, err := fastRequest(reqCtx, ctx, runtime)
	if err != nil {
		cancel()
		rejectFast(ctx, runtime, err)
		return
	}
	logger.LogRequest(runtime, req)

	// fasthttp recycles ctx after the response body is closed; the request
	// body stream must be released before that
	release := func() {
		cancel()
		_ = req.Body.Close()
	}
	resp := s.dispatch(req, principal, routed)
	if resp != nil {
		resp.Body.OnClose(release)
	} else {
		release()
	}
	s.finishFast(ctx, runtime, resp, start)
}

func (s Server) finishFast(ctx *fasthttp.RequestCtx, runtime string, resp *dav.Response, start time.Time) {
	err := writeFast(ctx, resp, runtime)
	if err != nil {
		logger.Error("response_construction_failed", "runtime", runtime, "path", string(ctx.Path()), "error", err)
		telemetry.ConstructionFailure(runtime)
		abortFast(ctx)
	}
	telemetry.Finish(runtime, string(ctx.Method()), string(ctx.Path()), ctx.Response.StatusCode(), start)
}

// abortFast closes the connection without writing any response.
func abortFast(ctx *fasthttp.RequestCtx) {
	ctx.Response.Reset()
	ctx.HijackSetNoResponse(true)
	ctx.Hijack(func(net.Conn) {})
}

func rejectFast(ctx *fasthttp.RequestCtx, runtime string, err error) {
	if errors.Is(err, dav.ErrUnsupportedVersion) {
		logger.Warn("unsupported_http_version", "runtime", runtime, "proto", string(ctx.Request.Header.Protocol()))
		telemetry.VersionRejected(runtime)
		ctx.Error(http.StatusText(http.StatusHTTPVersionNotSupported), http.StatusHTTPVersionNotSupported)
		return
	}
	logger.Warn("request_conversion_failed", "runtime", runtime, "error", err)
	ctx.Error(http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
}
