package dav

import (
	"io"
	"sync"
)

// DefaultFrameSize is the largest frame a ReaderSource yields.
const DefaultFrameSize = 32 * 1024

// ReaderSource turns an io.Reader into a FrameSource. It is the common base
// of the runtime body bridges: every native error goes through MapErr, and a
// clean EOF before the declared length becomes an Incomplete payload error.
type ReaderSource struct {
	r        io.Reader
	declared int64
	mapErr   func(error) error
	teardown func() error

	frameSize int
	read      int64
	once      sync.Once
	closeErr  error
}

// NewReaderSource wraps r. declared is the expected length or -1. mapErr
// translates native errors (nil maps everything to OtherError). teardown is
// called once on Close and may be nil.
func NewReaderSource(r io.Reader, declared int64, mapErr func(error) error, teardown func() error) *ReaderSource {
	if declared < 0 {
		declared = -1
	}
	if mapErr == nil {
		mapErr = OtherError
	}
	return &ReaderSource{r: r, declared: declared, mapErr: mapErr, teardown: teardown, frameSize: DefaultFrameSize}
}

// NextFrame reads at most one frame. Each frame is a fresh slice, so callers
// may keep it after asking for the next one.
func (s *ReaderSource) NextFrame() ([]byte, error) {
	size := s.frameSize
	if s.declared >= 0 {
		left := s.declared - s.read
		if left <= 0 {
			return nil, io.EOF
		}
		if left < int64(size) {
			size = int(left)
		}
	}
	frame := make([]byte, size)
	n, err := s.r.Read(frame)
	s.read += int64(n)
	frame = frame[:n]
	switch {
	case err == nil:
		if s.declared >= 0 && s.read >= s.declared {
			// the declared length is reached; do not wait for the transport
			return frame, io.EOF
		}
		return frame, nil
	case err == io.EOF:
		if s.declared >= 0 && s.read < s.declared {
			return frame, Incomplete(nil)
		}
		return frame, io.EOF
	}
	return frame, s.mapErr(err)
}

// BytesRead returns the number of bytes read so far.
func (s *ReaderSource) BytesRead() int64 { return s.read }

// Close runs the teardown hook once.
func (s *ReaderSource) Close() error {
	s.once.Do(func() {
		if s.teardown != nil {
			s.closeErr = s.teardown()
		}
	})
	return s.closeErr
}
