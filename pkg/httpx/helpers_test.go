package httpx

import (
	"io"
	"sync"

	"davbridge/pkg/dav"
)

// call is one recorded invocation of the protocol handler.
type call struct {
	with    bool
	o       dav.Overrides
	req     *dav.Request
	body    []byte
	bodyErr error
}

// recordingHandler drains the request body and answers with respond, or a
// plain 200 "ok".
type recordingHandler struct {
	mu      sync.Mutex
	calls   []call
	respond func(*dav.Request) *dav.Response
}

func (h *recordingHandler) Handle(req *dav.Request) *dav.Response {
	return h.record(false, dav.Overrides{}, req)
}

func (h *recordingHandler) HandleWith(o dav.Overrides, req *dav.Request) *dav.Response {
	return h.record(true, o, req)
}

func (h *recordingHandler) record(with bool, o dav.Overrides, req *dav.Request) *dav.Response {
	data, err := io.ReadAll(req.Body)
	h.mu.Lock()
	h.calls = append(h.calls, call{with: with, o: o, req: req, body: data, bodyErr: err})
	h.mu.Unlock()
	if h.respond != nil {
		return h.respond(req)
	}
	return dav.TextResponse(200, "ok")
}

func (h *recordingHandler) Calls() []call {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]call(nil), h.calls...)
}

func (h *recordingHandler) last() call {
	c := h.Calls()
	if len(c) == 0 {
		return call{}
	}
	return c[len(c)-1]
}

// handlerFunc answers every call with fn and reads nothing.
type handlerFunc func(*dav.Request) *dav.Response

func (f handlerFunc) Handle(req *dav.Request) *dav.Response { return f(req) }

func (f handlerFunc) HandleWith(_ dav.Overrides, req *dav.Request) *dav.Response { return f(req) }

// prefixedHandler carries a configured prefix.
type prefixedHandler struct {
	*recordingHandler
	prefix dav.Prefix
}

func (h prefixedHandler) ConfiguredPrefix() dav.Prefix { return h.prefix }

// frames is a FrameSource yielding fixed frames then final.
type frames struct {
	mu     sync.Mutex
	items  [][]byte
	final  error
	pulls  int
	closes int
}

func newFrames(final error, items ...string) *frames {
	f := &frames{final: final}
	for _, s := range items {
		f.items = append(f.items, []byte(s))
	}
	return f
}

func (f *frames) NextFrame() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulls++
	if len(f.items) > 0 {
		p := f.items[0]
		f.items = f.items[1:]
		return p, nil
	}
	return nil, f.final
}

func (f *frames) Close() error {
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
	return nil
}

func (f *frames) counts() (pulls, closes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pulls, f.closes
}

func streamResponse(status int, src dav.FrameSource) func(*dav.Request) *dav.Response {
	return func(*dav.Request) *dav.Response {
		return &dav.Response{Status: status, Body: dav.StreamBody(src, -1)}
	}
}
