package dav

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedSource yields frames then a final error and counts teardowns.
type scriptedSource struct {
	frames [][]byte
	final  error
	pulls  int
	closes int
}

func (s *scriptedSource) NextFrame() ([]byte, error) {
	s.pulls++
	if len(s.frames) > 0 {
		f := s.frames[0]
		s.frames = s.frames[1:]
		return f, nil
	}
	return nil, s.final
}

func (s *scriptedSource) Close() error {
	s.closes++
	return nil
}

func TestBodyStreamErrorIsTerminal(t *testing.T) {
	boom := IOError(errors.New("connection reset"))
	src := &scriptedSource{frames: [][]byte{[]byte("c1"), []byte("c2")}, final: boom}
	b := StreamBody(src, -1)

	f, err := b.Next()
	require.NoError(t, err)
	assert.Equal(t, "c1", string(f))
	f, err = b.Next()
	require.NoError(t, err)
	assert.Equal(t, "c2", string(f))

	_, err = b.Next()
	require.ErrorIs(t, err, boom)
	assert.Equal(t, PayloadIO, PayloadKind(err))

	pulls := src.pulls
	for i := 0; i < 3; i++ {
		f, err = b.Next()
		assert.Nil(t, f)
		assert.ErrorIs(t, err, boom)
	}
	assert.Equal(t, pulls, src.pulls, "no pull after a terminal error")
	assert.Equal(t, 1, src.closes)
}

func TestBodyDropMidStreamTearsDownOnce(t *testing.T) {
	src := &scriptedSource{frames: [][]byte{[]byte("a"), []byte("b"), []byte("c")}, final: io.EOF}
	b := StreamBody(src, -1)

	_, err := b.Next()
	require.NoError(t, err)

	require.NotPanics(t, func() {
		_ = b.Close()
		_ = b.Close()
	})
	assert.Equal(t, 1, src.closes)

	_, err = b.Next()
	assert.ErrorIs(t, err, ErrBodyClosed)
	assert.Equal(t, 1, src.pulls)
}

func TestBodyStreamEOFReleasesSource(t *testing.T) {
	src := &scriptedSource{frames: [][]byte{[]byte("x")}, final: io.EOF}
	b := StreamBody(src, -1)

	data, err := io.ReadAll(b)
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
	assert.Equal(t, 1, src.closes)
	require.NoError(t, b.Close())
	assert.Equal(t, 1, src.closes)
}

func TestBodyBytesNilAndEmptyAreEquivalent(t *testing.T) {
	for _, b := range []*Body{BytesBody(nil), BytesBody([]byte{}), EmptyBody(), nil} {
		assert.True(t, b.KnownEmpty())
		assert.EqualValues(t, 0, b.Len())
		_, err := b.Next()
		assert.Equal(t, io.EOF, err)
	}
}

func TestBodyBytesDeliversOnce(t *testing.T) {
	b := StringBody("hello")
	buf, ok := b.Buffer()
	require.True(t, ok)
	assert.Equal(t, "hello", string(buf))

	f, err := b.Next()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(f))
	_, err = b.Next()
	assert.Equal(t, io.EOF, err)

	_, ok = b.Buffer()
	assert.False(t, ok)
}

func TestBodyReadPartialFrames(t *testing.T) {
	src := &scriptedSource{frames: [][]byte{[]byte("abcdef"), []byte("gh")}, final: io.EOF}
	b := StreamBody(src, -1)

	p := make([]byte, 4)
	n, err := b.Read(p)
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(p[:n]))

	rest, err := io.ReadAll(b)
	require.NoError(t, err)
	assert.Equal(t, "efgh", string(rest))
}

func TestBodyWriteToOneWritePerFrame(t *testing.T) {
	src := &scriptedSource{frames: [][]byte{[]byte("one"), []byte("two")}, final: io.EOF}
	b := StreamBody(src, -1)

	w := &countingWriter{}
	n, err := io.Copy(w, b)
	require.NoError(t, err)
	assert.EqualValues(t, 6, n)
	assert.Equal(t, 2, w.writes)
	assert.Equal(t, "onetwo", w.buf.String())
}

func TestBodyWriteToStopsAtError(t *testing.T) {
	boom := Incomplete(nil)
	src := &scriptedSource{frames: [][]byte{[]byte("one")}, final: boom}
	b := StreamBody(src, -1)

	w := &countingWriter{}
	_, err := b.WriteTo(w)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, "one", w.buf.String())
}

func TestBodyEmptyFramesAreSkipped(t *testing.T) {
	src := &scriptedSource{frames: [][]byte{{}, {}, []byte("z")}, final: io.EOF}
	b := StreamBody(src, -1)
	f, err := b.Next()
	require.NoError(t, err)
	assert.Equal(t, "z", string(f))
}

func TestBodyNoProgress(t *testing.T) {
	frames := make([][]byte, maxEmptyFrames+1)
	src := &scriptedSource{frames: frames, final: io.EOF}
	b := StreamBody(src, -1)
	_, err := b.Next()
	assert.ErrorIs(t, err, io.ErrNoProgress)
}

func TestReaderSourceDeclaredLength(t *testing.T) {
	t.Run("short", func(t *testing.T) {
		b := StreamBody(NewReaderSource(bytes.NewReader([]byte("abc")), 5, nil, nil), 5)
		data, err := io.ReadAll(b)
		assert.Equal(t, "abc", string(data))
		require.Error(t, err)
		var pe *PayloadError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, PayloadIncomplete, pe.Kind)
		assert.Nil(t, pe.Err)
	})
	t.Run("exact", func(t *testing.T) {
		b := StreamBody(NewReaderSource(bytes.NewReader([]byte("abcdef")), 3, nil, nil), 3)
		data, err := io.ReadAll(b)
		require.NoError(t, err)
		assert.Equal(t, "abc", string(data))
	})
	t.Run("zero", func(t *testing.T) {
		closed := 0
		src := NewReaderSource(bytes.NewReader([]byte("ignored")), 0, nil, func() error { closed++; return nil })
		b := StreamBody(src, 0)
		assert.True(t, b.KnownEmpty())
		_, err := b.Next()
		assert.Equal(t, io.EOF, err)
		assert.Equal(t, 1, closed)
	})
}

func TestReaderSourceMapsErrors(t *testing.T) {
	native := errors.New("native failure")
	src := NewReaderSource(&failingReader{err: native}, -1, nil, nil)
	_, err := StreamBody(src, -1).Next()
	assert.Equal(t, PayloadOther, PayloadKind(err))
	assert.Contains(t, err.Error(), "native failure")
	assert.False(t, errors.Is(err, native), "native error values must not leak")
}

type countingWriter struct {
	buf    bytes.Buffer
	writes int
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.writes++
	return w.buf.Write(p)
}

type failingReader struct{ err error }

func (r *failingReader) Read([]byte) (int, error) { return 0, r.err }
