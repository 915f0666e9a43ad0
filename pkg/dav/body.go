package dav

import (
	"io"
	"sync"
	"sync/atomic"
)

// BodyKind tags the Body variant.
type BodyKind uint8

const (
	BodyEmpty BodyKind = iota
	BodyBytes
	BodyStream
)

func (k BodyKind) String() string {
	switch k {
	case BodyEmpty:
		return "empty"
	case BodyBytes:
		return "bytes"
	case BodyStream:
		return "stream"
	}
	return "unknown"
}

// FrameSource produces the frames of a Stream body. NextFrame returns io.EOF
// once the sequence is exhausted; any other error is terminal. A frame may be
// returned together with an error, in which case it precedes the error.
// Close releases the native handle behind the source.
type FrameSource interface {
	NextFrame() ([]byte, error)
	Close() error
}

// maxEmptyFrames bounds how many consecutive empty frames Next tolerates
// before failing with io.ErrNoProgress.
const maxEmptyFrames = 100

// Body is a request or response body: absent, one materialized buffer, or a
// lazy sequence of frames pulled from a FrameSource.
//
// A Body has exactly one consumer and is not restartable. Close may be called
// at any time, from any goroutine, and tears the source down at most once.
// A nil *Body behaves like an empty body.
type Body struct {
	kind BodyKind
	buf  []byte
	src  FrameSource
	size int64

	delivered bool
	rest      []byte
	err       error

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
	onClose   []func()
}

// OnClose registers fn to run once after the body is closed, whether by the
// consumer, by reaching the end of the stream, or by an error. It must be
// called before the body is handed to a consumer.
func (b *Body) OnClose(fn func()) {
	if b == nil || fn == nil {
		return
	}
	b.onClose = append(b.onClose, fn)
}

// EmptyBody returns a body with no content.
func EmptyBody() *Body {
	return &Body{kind: BodyEmpty}
}

// BytesBody returns a single-buffer body. A nil and an empty buffer are both
// treated as no content.
func BytesBody(b []byte) *Body {
	return &Body{kind: BodyBytes, buf: b, size: int64(len(b))}
}

// StringBody is BytesBody for text.
func StringBody(s string) *Body {
	return BytesBody([]byte(s))
}

// StreamBody wraps src. size is the declared length, or -1 when unknown.
// No frame is pulled until the consumer asks for one.
func StreamBody(src FrameSource, size int64) *Body {
	if size < 0 {
		size = -1
	}
	return &Body{kind: BodyStream, src: src, size: size}
}

// ReaderBody wraps r as a Stream body. If r is an io.Closer it is closed
// together with the body.
func ReaderBody(r io.Reader, size int64) *Body {
	var teardown func() error
	if c, ok := r.(io.Closer); ok {
		teardown = c.Close
	}
	return StreamBody(NewReaderSource(r, size, nil, teardown), size)
}

// Kind returns the variant; nil bodies report BodyEmpty.
func (b *Body) Kind() BodyKind {
	if b == nil {
		return BodyEmpty
	}
	return b.kind
}

// Len returns the number of bytes the body will yield, or -1 when unknown.
func (b *Body) Len() int64 {
	if b == nil {
		return 0
	}
	if b.kind == BodyEmpty {
		return 0
	}
	return b.size
}

// KnownEmpty reports whether the body is known to yield zero bytes without
// pulling anything from it.
func (b *Body) KnownEmpty() bool {
	return b.Len() == 0
}

// Buffer returns the materialized content of a Bytes body that has not been
// consumed yet. ok is false for other variants.
func (b *Body) Buffer() (buf []byte, ok bool) {
	if b == nil {
		return nil, false
	}
	if b.kind == BodyEmpty {
		return nil, true
	}
	if b.kind != BodyBytes || b.delivered {
		return nil, false
	}
	return b.buf, true
}

// Next returns the next frame. It returns io.EOF at the end of the body;
// any other error is terminal and repeated on every later call without
// touching the source again.
func (b *Body) Next() ([]byte, error) {
	if b == nil {
		return nil, io.EOF
	}
	if len(b.rest) > 0 {
		p := b.rest
		b.rest = nil
		return p, nil
	}
	if b.err != nil {
		return nil, b.err
	}
	if b.closed.Load() {
		b.err = ErrBodyClosed
		return nil, b.err
	}
	switch b.kind {
	case BodyBytes:
		if !b.delivered {
			b.delivered = true
			if len(b.buf) > 0 {
				p := b.buf
				b.buf = nil
				return p, nil
			}
		}
		b.err = io.EOF
		return nil, b.err
	case BodyStream:
		return b.pull()
	}
	b.err = io.EOF
	return nil, b.err
}

func (b *Body) pull() ([]byte, error) {
	for i := 0; i < maxEmptyFrames; i++ {
		frame, err := b.src.NextFrame()
		if err != nil {
			b.err = err
			// the sequence is over either way; release the native handle now
			_ = b.Close()
			if len(frame) > 0 {
				return frame, nil
			}
			return nil, err
		}
		if len(frame) > 0 {
			return frame, nil
		}
	}
	b.err = io.ErrNoProgress
	_ = b.Close()
	return nil, b.err
}

// Read implements io.Reader on top of Next.
func (b *Body) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if b == nil {
		return 0, io.EOF
	}
	if len(b.rest) == 0 {
		frame, err := b.Next()
		if err != nil {
			return 0, err
		}
		b.rest = frame
	}
	n := copy(p, b.rest)
	b.rest = b.rest[n:]
	return n, nil
}

// WriteTo writes every remaining frame to w, one Write per frame.
func (b *Body) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for {
		frame, err := b.Next()
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
		n, werr := w.Write(frame)
		total += int64(n)
		if werr != nil {
			return total, werr
		}
	}
}

// Close stops the body. Unread frames are discarded and the source's Close
// runs at most once.
func (b *Body) Close() error {
	if b == nil {
		return nil
	}
	b.closed.Store(true)
	b.closeOnce.Do(func() {
		if b.src != nil {
			b.closeErr = b.src.Close()
		}
		for _, fn := range b.onClose {
			fn()
		}
	})
	return b.closeErr
}

// Closed reports whether Close was called or the stream ended.
func (b *Body) Closed() bool {
	return b != nil && b.closed.Load()
}
