package httpx

import (
	"bytes"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"syscall"

	"github.com/valyala/fasthttp"

	"davbridge/pkg/dav"
	"davbridge/pkg/telemetry"
)

// httpRequestBody wraps a net/http request body without reading it.
func httpRequestBody(r *http.Request, runtime string) *dav.Body {
	if r.Body == nil || r.Body == http.NoBody || r.ContentLength == 0 {
		return dav.EmptyBody()
	}
	declared := r.ContentLength
	if declared < 0 {
		declared = -1
	}
	src := dav.NewReaderSource(r.Body, declared, observed(runtime, mapHTTPError), r.Body.Close)
	return dav.StreamBody(src, declared)
}

// fastRequestBody wraps a fasthttp request body: the body stream when the
// server streams request bodies, otherwise the already read buffer.
func fastRequestBody(ctx *fasthttp.RequestCtx, runtime string) *dav.Body {
	mapErr := observed(runtime, mapFastHTTPError)
	if ctx.Request.IsBodyStream() {
		declared := int64(ctx.Request.Header.ContentLength())
		if declared < 0 {
			declared = -1
		}
		src := dav.NewReaderSource(ctx.RequestBodyStream(), declared, mapErr, ctx.Request.CloseBodyStream)
		return dav.StreamBody(src, declared)
	}
	b := ctx.Request.Body()
	if len(b) == 0 {
		return dav.EmptyBody()
	}
	n := int64(len(b))
	return dav.StreamBody(dav.NewReaderSource(bytes.NewReader(b), n, mapErr, nil), n)
}

func observed(runtime string, mapErr func(error) error) func(error) error {
	return func(err error) error {
		mapped := mapErr(err)
		telemetry.PayloadError(runtime, dav.PayloadKind(mapped))
		return mapped
	}
}

// mapHTTPError classifies net/http body read errors.
func mapHTTPError(err error) error {
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, io.ErrUnexpectedEOF):
		return dav.Incomplete(err)
	case errors.As(err, &maxErr), errors.Is(err, http.ErrBodyReadAfterClose):
		return dav.OtherError(err)
	case isTransportError(err):
		return dav.IOError(err)
	}
	return dav.OtherError(err)
}

// mapFastHTTPError classifies fasthttp body stream errors.
func mapFastHTTPError(err error) error {
	switch {
	case errors.Is(err, io.ErrUnexpectedEOF):
		return dav.Incomplete(err)
	case errors.Is(err, fasthttp.ErrBodyTooLarge):
		return dav.OtherError(err)
	case isTransportError(err):
		return dav.IOError(err)
	}
	return dav.OtherError(err)
}

func isTransportError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, os.ErrDeadlineExceeded) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}

// watchedBody reports the first mid-stream failure of a response body that
// the runtime pulls after the handler has returned. It must not grow a
// WriteTo method, or io.Copy would go around Read.
type watchedBody struct {
	body     *dav.Body
	runtime  string
	onFailed func(error)
	failed   bool
}

func (w *watchedBody) Read(p []byte) (int, error) {
	n, err := w.body.Read(p)
	if n > 0 {
		telemetry.BodyFrame(w.runtime, n)
	}
	if err != nil && err != io.EOF && !w.failed {
		w.failed = true
		w.onFailed(err)
	}
	return n, err
}

func (w *watchedBody) Close() error { return w.body.Close() }
