package davfs

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/webdav"

	"davbridge/pkg/dav"
)

func newReq(t *testing.T, method dav.Method, target, body string, hdr ...string) *dav.Request {
	t.Helper()
	u, err := url.ParseRequestURI(target)
	require.NoError(t, err)
	req := &dav.Request{
		Method:  method,
		Target:  u,
		Version: dav.HTTP11,
		Body:    dav.StringBody(body),
	}
	req.Header.Add("Host", "example.com")
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Add(hdr[i], hdr[i+1])
	}
	return req
}

func readAll(t *testing.T, resp *dav.Response) string {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	return string(data)
}

func TestPutThenPropfind(t *testing.T) {
	h := New(Config{})

	resp := h.Handle(newReq(t, dav.MethodPut, "/notes.txt", "hello"))
	assert.Equal(t, 201, resp.Status)
	readAll(t, resp)

	resp = h.Handle(newReq(t, dav.MethodPropfind, "/", "", "Depth", "1"))
	require.Equal(t, 207, resp.Status)
	body := readAll(t, resp)
	assert.Contains(t, body, "/notes.txt")
	assert.Contains(t, body, "<D:getcontentlength>5</D:getcontentlength>")

	resp = h.Handle(newReq(t, dav.MethodGet, "/notes.txt", ""))
	require.Equal(t, 200, resp.Status)
	assert.Equal(t, dav.BodyBytes, resp.Body.Kind())
	assert.Equal(t, "hello", readAll(t, resp))
}

func TestLargeGetStreams(t *testing.T) {
	h := New(Config{BufferLimit: 1024})
	payload := strings.Repeat("0123456789", 10_000)

	resp := h.Handle(newReq(t, dav.MethodPut, "/big.bin", payload))
	require.Equal(t, 201, resp.Status)
	readAll(t, resp)

	resp = h.Handle(newReq(t, dav.MethodGet, "/big.bin", ""))
	require.Equal(t, 200, resp.Status)
	assert.Equal(t, dav.BodyStream, resp.Body.Kind())
	assert.Equal(t, int64(len(payload)), resp.Body.Len())
	assert.Equal(t, payload, readAll(t, resp))
}

func TestEmptyResponseIsEmptyBody(t *testing.T) {
	h := New(Config{LockSystem: NewFakeLS()})
	resp := h.Handle(newReq(t, dav.MethodUnlock, "/dir", "", "Lock-Token", "<opaquelocktoken:x>"))
	assert.Equal(t, 204, resp.Status)
	assert.True(t, resp.Body.KnownEmpty())
}

func TestPrefixOverride(t *testing.T) {
	h := New(Config{})
	o := dav.Overrides{Prefix: dav.PrefixOf("/dav/")}

	resp := h.HandleWith(o, newReq(t, dav.MethodPut, "/dav/a.txt", "x"))
	require.Equal(t, 201, resp.Status)
	readAll(t, resp)

	// stored at the stripped name
	resp = h.Handle(newReq(t, dav.MethodGet, "/a.txt", ""))
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, "x", readAll(t, resp))

	resp = h.HandleWith(o, newReq(t, dav.MethodGet, "/other/a.txt", ""))
	assert.Equal(t, 404, resp.Status)
	readAll(t, resp)

	resp = h.HandleWith(o, newReq(t, dav.MethodGet, "/davx/a.txt", ""))
	assert.Equal(t, 404, resp.Status)
	readAll(t, resp)
}

func TestConfiguredPrefixWins(t *testing.T) {
	h := New(Config{Prefix: dav.PrefixOf("/files")})
	assert.Equal(t, dav.PrefixOf("/files"), h.ConfiguredPrefix())

	resp := h.HandleWith(dav.Overrides{Prefix: dav.PrefixOf("/dav")}, newReq(t, dav.MethodPut, "/files/b.txt", "y"))
	require.Equal(t, 201, resp.Status)
	readAll(t, resp)

	resp = h.Handle(newReq(t, dav.MethodGet, "/files/b.txt", ""))
	assert.Equal(t, "y", readAll(t, resp))
}

// recordingFS remembers the context of the last call.
type recordingFS struct {
	webdav.FileSystem
	mu    sync.Mutex
	ctx   context.Context
	panic bool
}

func (f *recordingFS) Stat(ctx context.Context, name string) (os.FileInfo, error) {
	f.mu.Lock()
	f.ctx = ctx
	doPanic := f.panic
	f.mu.Unlock()
	if doPanic {
		panic("stat exploded")
	}
	return f.FileSystem.Stat(ctx, name)
}

func (f *recordingFS) lastCtx() context.Context {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ctx
}

func TestPrincipalReachesFileSystem(t *testing.T) {
	fs := &recordingFS{FileSystem: webdav.NewMemFS()}
	h := New(Config{FileSystem: fs})

	resp := h.HandleWith(dav.Overrides{Principal: "alice"}, newReq(t, dav.MethodPropfind, "/", "", "Depth", "0"))
	assert.Equal(t, 207, resp.Status)
	readAll(t, resp)

	require.NotNil(t, fs.lastCtx())
	assert.Equal(t, "alice", dav.PrincipalFrom(fs.lastCtx()))
}

func TestHandlerPanicBecomes500(t *testing.T) {
	fs := &recordingFS{FileSystem: webdav.NewMemFS(), panic: true}
	h := New(Config{FileSystem: fs})

	resp := h.Handle(newReq(t, dav.MethodPropfind, "/", "", "Depth", "0"))
	assert.Equal(t, 500, resp.Status)
	assert.True(t, resp.Body.KnownEmpty())
}

func TestConsumerCloseCancelsHandler(t *testing.T) {
	fs := &recordingFS{FileSystem: webdav.NewMemFS()}
	h := New(Config{FileSystem: fs, BufferLimit: 16})

	resp := h.Handle(newReq(t, dav.MethodPut, "/big", strings.Repeat("z", 256*1024)))
	require.Equal(t, 201, resp.Status)
	readAll(t, resp)

	resp = h.Handle(newReq(t, dav.MethodGet, "/big", ""))
	require.Equal(t, dav.BodyStream, resp.Body.Kind())
	frame, err := resp.Body.Next()
	require.NoError(t, err)
	assert.NotEmpty(t, frame)
	require.NoError(t, resp.Body.Close())

	ctx := fs.lastCtx()
	require.NotNil(t, ctx)
	require.Eventually(t, func() bool { return ctx.Err() != nil }, time.Second, 5*time.Millisecond)
}

func TestCopyWithDestination(t *testing.T) {
	h := New(Config{})
	resp := h.Handle(newReq(t, dav.MethodPut, "/a.txt", "copy me"))
	require.Equal(t, 201, resp.Status)
	readAll(t, resp)

	resp = h.Handle(newReq(t, dav.MethodCopy, "/a.txt", "", "Destination", "http://example.com/b.txt"))
	assert.Equal(t, 201, resp.Status)
	readAll(t, resp)

	resp = h.Handle(newReq(t, dav.MethodGet, "/b.txt", ""))
	assert.Equal(t, "copy me", readAll(t, resp))
}

const lockBody = `<?xml version="1.0" encoding="utf-8" ?>
<D:lockinfo xmlns:D="DAV:">
<D:lockscope><D:exclusive/></D:lockscope>
<D:locktype><D:write/></D:locktype>
<D:owner>alice</D:owner>
</D:lockinfo>`

func TestFakeLockSystemAlwaysGrants(t *testing.T) {
	h := New(Config{LockSystem: NewFakeLS()})

	lock := func() string {
		resp := h.Handle(newReq(t, dav.MethodLock, "/locked.txt", lockBody, "Timeout", "Second-60"))
		require.Contains(t, []int{200, 201}, resp.Status)
		readAll(t, resp)
		token := resp.Header.Get("Lock-Token")
		require.True(t, strings.HasPrefix(token, "<opaquelocktoken:"), token)
		return token
	}
	first := lock()
	// a second exclusive lock on the same resource is granted too
	second := lock()
	assert.NotEqual(t, first, second)

	resp := h.Handle(newReq(t, dav.MethodPut, "/locked.txt", "no token needed"))
	assert.Contains(t, []int{201, 204}, resp.Status)
	readAll(t, resp)

	resp = h.Handle(newReq(t, dav.MethodUnlock, "/locked.txt", "", "Lock-Token", first))
	assert.Equal(t, 204, resp.Status)
}

func TestFakeLSRefresh(t *testing.T) {
	ls := NewFakeLS()
	token, err := ls.Create(time.Now(), webdav.LockDetails{Root: "/x", Duration: time.Minute})
	require.NoError(t, err)

	d, err := ls.Refresh(time.Now(), token, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "/x", d.Root)
	assert.Equal(t, time.Hour, d.Duration)

	require.NoError(t, ls.Unlock(time.Now(), token))
	release, err := ls.Confirm(time.Now(), "/x", "", webdav.Condition{Token: token})
	require.NoError(t, err)
	release()
}

func TestDirectoryListing(t *testing.T) {
	fs := webdav.NewMemFS()
	ctx := context.Background()
	require.NoError(t, fs.Mkdir(ctx, "/docs", 0o755))
	require.NoError(t, fs.Mkdir(ctx, "/docs/sub", 0o755))
	f, err := fs.OpenFile(ctx, "/docs/report.txt", os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	_, err = f.Write(bytes.Repeat([]byte("a"), 2048))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	loc := time.FixedZone("UTC+3", 3*3600)
	h := New(Config{FileSystem: fs, AutoIndex: true, Location: loc})

	resp := h.Handle(newReq(t, dav.MethodGet, "/docs", ""))
	require.Equal(t, 200, resp.Status)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	page := readAll(t, resp)

	fi, err := fs.Stat(ctx, "/docs/report.txt")
	require.NoError(t, err)
	assert.Contains(t, page, `<a href="/docs/sub/">sub/</a>`)
	assert.Contains(t, page, `<a href="/docs/report.txt">report.txt</a>`)
	assert.Contains(t, page, "2.0 kB")
	assert.Contains(t, page, fi.ModTime().In(loc).Format("2006-01-02 15:04"))
	assert.Contains(t, page, `<a href="/">Parent Directory</a>`)
	assert.Less(t, strings.Index(page, "sub/"), strings.Index(page, "report.txt"), "directories first")

	resp = h.Handle(newReq(t, dav.MethodHead, "/docs/", ""))
	assert.Equal(t, 200, resp.Status)
	assert.Empty(t, readAll(t, resp))
}

func TestDirectoryIndexFileAndNotFound(t *testing.T) {
	fs := webdav.NewMemFS()
	ctx := context.Background()
	require.NoError(t, fs.Mkdir(ctx, "/site", 0o755))
	require.NoError(t, fs.Mkdir(ctx, "/bare", 0o755))
	f, err := fs.OpenFile(ctx, "/site/index.html", os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte("<h1>home</h1>"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	h := New(Config{FileSystem: fs, IndexFile: "index.html"})

	resp := h.Handle(newReq(t, dav.MethodGet, "/site/", ""))
	require.Equal(t, 200, resp.Status)
	assert.Equal(t, "<h1>home</h1>", readAll(t, resp))

	resp = h.Handle(newReq(t, dav.MethodGet, "/bare/", ""))
	assert.Equal(t, 404, resp.Status)
	readAll(t, resp)

	// PROPFIND on a directory is unaffected
	resp = h.Handle(newReq(t, dav.MethodPropfind, "/bare/", "", "Depth", "0"))
	assert.Equal(t, 207, resp.Status)
	readAll(t, resp)
}

func TestDirServesLocalTree(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(base, "hello.txt"), []byte("hi"), 0o644))

	h := Dir(base, true, true, nil)
	resp := h.Handle(newReq(t, dav.MethodGet, "/", ""))
	require.Equal(t, 200, resp.Status)
	assert.Contains(t, readAll(t, resp), "hello.txt")

	resp = h.Handle(newReq(t, dav.MethodGet, "/hello.txt", ""))
	assert.Equal(t, "hi", readAll(t, resp))
}

func TestFileServesOnePath(t *testing.T) {
	p := filepath.Join(t.TempDir(), "only.txt")
	require.NoError(t, os.WriteFile(p, []byte("single"), 0o644))

	h := File(p)
	for _, target := range []string{"/", "/any/name.txt"} {
		resp := h.Handle(newReq(t, dav.MethodGet, target, ""))
		require.Equal(t, 200, resp.Status, target)
		assert.Equal(t, "single", readAll(t, resp))
	}

	resp := h.Handle(newReq(t, dav.MethodPut, "/x", "overwrite"))
	assert.GreaterOrEqual(t, resp.Status, 400)
	readAll(t, resp)

	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "single", string(data))
}

func TestStripPrefix(t *testing.T) {
	cases := []struct {
		path, prefix, want string
		ok                 bool
	}{
		{"/a/b", "", "/a/b", true},
		{"/dav/a", "/dav", "/a", true},
		{"/dav", "/dav", "/", true},
		{"/davx", "/dav", "", false},
		{"/other", "/dav", "", false},
	}
	for _, c := range cases {
		got, ok := stripPrefix(c.path, c.prefix)
		assert.Equal(t, c.ok, ok, c.path)
		assert.Equal(t, c.want, got, c.path)
	}
}

func TestFakeLSSweep(t *testing.T) {
	ls := NewFakeLS()
	now := time.Now()
	_, err := ls.Create(now, webdav.LockDetails{Root: "/short", Duration: time.Second})
	require.NoError(t, err)
	_, err = ls.Create(now, webdav.LockDetails{Root: "/forever", Duration: -1})
	require.NoError(t, err)

	sw, ok := ls.(Sweeper)
	require.True(t, ok)
	assert.Equal(t, 0, sw.Sweep(now))
	assert.Equal(t, 1, sw.Sweep(now.Add(time.Minute)))
	assert.Equal(t, 1, ls.(*fakeLS).len())
}

func TestDirectoryListingEscapesHrefs(t *testing.T) {
	fs := webdav.NewMemFS()
	ctx := context.Background()
	require.NoError(t, fs.Mkdir(ctx, "/my docs", 0o755))
	f, err := fs.OpenFile(ctx, "/my docs/a#b?c.txt", os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	h := New(Config{FileSystem: fs, AutoIndex: true})
	resp := h.Handle(newReq(t, dav.MethodGet, "/my%20docs/", ""))
	require.Equal(t, 200, resp.Status)
	page := readAll(t, resp)

	assert.Contains(t, page, `href="/my%20docs/a%23b%3Fc.txt"`)
	assert.Contains(t, page, `>a#b?c.txt</a>`)
}

// closeCounter is a request body source that only counts Close calls.
type closeCounter struct{ closes atomic.Int32 }

func (c *closeCounter) NextFrame() ([]byte, error) { return nil, io.EOF }
func (c *closeCounter) Close() error {
	c.closes.Add(1)
	return nil
}

func TestStreamCloseReleasesRequestBodyFirst(t *testing.T) {
	h := New(Config{BufferLimit: 16})
	resp := h.Handle(newReq(t, dav.MethodPut, "/big", strings.Repeat("z", 256*1024)))
	require.Equal(t, 201, resp.Status)
	readAll(t, resp)

	src := &closeCounter{}
	req := newReq(t, dav.MethodGet, "/big", "")
	req.Body = dav.StreamBody(src, -1)
	resp = h.Handle(req)
	require.Equal(t, dav.BodyStream, resp.Body.Kind())
	_, err := resp.Body.Next()
	require.NoError(t, err)

	// the handler goroutine is still writing; Close must wait for it
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, int32(1), src.closes.Load())
}
