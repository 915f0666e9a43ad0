package davfs

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sort"
	"strconv"
	"sync"

	"davbridge/pkg/dav"
)

var errConsumerGone = errors.New("davfs: response body closed by consumer")

// capture is the http.ResponseWriter handed to x/net/webdav. Content is
// collected up to limit; a response that completes within it becomes a Bytes
// body, anything larger (or explicitly flushed) is published as a Stream fed
// through a pipe while the handler goroutine keeps writing.
//
// Only the handler goroutine touches the fields; the response is handed
// over through ready.
type capture struct {
	header    http.Header
	status    int
	buf       []byte
	limit     int
	streaming bool

	pr     *io.PipeReader
	pw     *io.PipeWriter
	cancel context.CancelFunc

	ready chan struct{}
	resp  *dav.Response
	// done is closed once the handler goroutine has returned and closed the
	// request body.
	done chan struct{}
}

func newCapture(limit int, cancel context.CancelFunc) *capture {
	pr, pw := io.Pipe()
	return &capture{
		header: make(http.Header),
		limit:  limit,
		pr:     pr,
		pw:     pw,
		cancel: cancel,
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (c *capture) Header() http.Header { return c.header }

func (c *capture) WriteHeader(code int) {
	if c.status != 0 {
		return
	}
	c.status = code
}

func (c *capture) Write(p []byte) (int, error) {
	if c.status == 0 {
		c.WriteHeader(http.StatusOK)
	}
	if c.streaming {
		return c.pw.Write(p)
	}
	if len(c.buf)+len(p) <= c.limit {
		c.buf = append(c.buf, p...)
		return len(p), nil
	}
	c.startStream()
	return c.pw.Write(p)
}

// Flush publishes the response head now and streams the rest.
func (c *capture) Flush() {
	if c.status == 0 {
		c.WriteHeader(http.StatusOK)
	}
	if !c.streaming {
		c.startStream()
	}
}

func (c *capture) startStream() {
	c.streaming = true
	src := &pipeSource{first: c.buf, pr: c.pr, cancel: c.cancel, done: c.done}
	c.buf = nil
	c.publish(&dav.Response{
		Status: c.status,
		Header: toHeaders(c.header),
		Body:   dav.StreamBody(src, contentLength(c.header)),
	})
}

// finish runs when the handler returned normally.
func (c *capture) finish() {
	if c.streaming {
		_ = c.pw.Close()
		return
	}
	c.cancel()
	status := c.status
	if status == 0 {
		status = http.StatusOK
	}
	body := dav.EmptyBody()
	if len(c.buf) > 0 {
		body = dav.BytesBody(c.buf)
	}
	c.publish(&dav.Response{Status: status, Header: toHeaders(c.header), Body: body})
}

// abort runs when the handler panicked. Before publication the client gets
// a 500; afterwards the stream fails.
func (c *capture) abort(err error) {
	if c.streaming {
		_ = c.pw.CloseWithError(dav.OtherError(err))
		return
	}
	c.cancel()
	c.publish(dav.NewResponse(http.StatusInternalServerError))
}

func (c *capture) publish(r *dav.Response) {
	c.resp = r
	close(c.ready)
}

func (c *capture) wait() *dav.Response {
	<-c.ready
	return c.resp
}

// pipeSource yields the collected prefix, then whatever the handler writes
// into the pipe.
type pipeSource struct {
	first  []byte
	pr     *io.PipeReader
	cancel context.CancelFunc
	done   <-chan struct{}
	once   sync.Once
}

func (s *pipeSource) NextFrame() ([]byte, error) {
	if s.first != nil {
		p := s.first
		s.first = nil
		return p, nil
	}
	buf := make([]byte, dav.DefaultFrameSize)
	n, err := s.pr.Read(buf)
	return buf[:n], err
}

// Close unblocks the handler goroutine, cancels its context and waits for it
// to return. The request body is closed by then, so the host runtime may
// recycle its native request once Close is back.
func (s *pipeSource) Close() error {
	s.once.Do(func() {
		s.cancel()
		_ = s.pr.CloseWithError(errConsumerGone)
		<-s.done
	})
	return nil
}

// toHeaders flattens h with names sorted so responses are deterministic.
func toHeaders(h http.Header) dav.Headers {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(dav.Headers, 0, len(keys))
	for _, k := range keys {
		for _, v := range h[k] {
			out.Add(k, v)
		}
	}
	return out
}

func contentLength(h http.Header) int64 {
	n, err := strconv.ParseInt(h.Get("Content-Length"), 10, 64)
	if err != nil || n < 0 {
		return -1
	}
	return n
}
