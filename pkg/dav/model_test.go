package dav

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionTableRoundTrip(t *testing.T) {
	for _, v := range Versions() {
		major, minor, ok := v.MajorMinor()
		require.True(t, ok, v.String())

		got, err := ParseVersion(major, minor)
		require.NoError(t, err)
		assert.Equal(t, v, got)

		got, err = ParseProto(v.Proto())
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestVersionUnknown(t *testing.T) {
	_, err := ParseVersion(1, 2)
	require.ErrorIs(t, err, ErrUnsupportedVersion)

	_, err = ParseProto("SPDY/3")
	require.ErrorIs(t, err, ErrUnsupportedVersion)
	var ve *VersionError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "SPDY/3", ve.Proto)

	assert.False(t, Version(42).Valid())
	assert.False(t, VersionUnspecified.Valid())
	assert.Equal(t, "", Version(42).Proto())
}

func TestParseProtoShortForms(t *testing.T) {
	v, err := ParseProto("HTTP/2")
	require.NoError(t, err)
	assert.Equal(t, HTTP2, v)
	v, err = ParseProto("http/1.0")
	require.NoError(t, err)
	assert.Equal(t, HTTP10, v)
}

func TestProtoAtLeast(t *testing.T) {
	assert.True(t, HTTP11.ProtoAtLeast(1, 1))
	assert.True(t, HTTP2.ProtoAtLeast(1, 1))
	assert.False(t, HTTP10.ProtoAtLeast(1, 1))
	assert.False(t, VersionUnspecified.ProtoAtLeast(0, 9))
}

func TestHeadersKeepOrderAndCase(t *testing.T) {
	var h Headers
	h.Add("X-Dup", "1")
	h.Add("Depth", "infinity")
	h.Add("x-dup", "2")
	h.Add("X-DUP", "3")

	require.Len(t, h, 4)
	assert.Equal(t, []string{"1", "2", "3"}, h.Values("x-Dup"))
	assert.Equal(t, "infinity", h.Get("DEPTH"))
	assert.Equal(t, "x-dup", h[2].Name)

	c := h.Clone()
	c.Del("x-dup")
	assert.Equal(t, Headers{{Name: "Depth", Value: "infinity"}}, c)
	assert.Len(t, h, 4)

	h.Set("Depth", "0")
	assert.Equal(t, "0", h.Get("depth"))
	assert.Equal(t, "Depth", h[len(h)-1].Name)
}

func TestComputePrefix(t *testing.T) {
	cases := []struct {
		full, tail string
		want       Prefix
	}{
		{"/dav/a/b", "/a/b", PrefixOf("/dav")},
		{"/dav/a/b", "a/b", PrefixOf("/dav/")},
		{"/a/b", "/a/b", NoPrefix},
		{"/a/b", "a/b", NoPrefix},
		{"/", "", NoPrefix},
		{"", "", NoPrefix},
		{"/dav/", "", PrefixOf("/dav/")},
		{"/dav/x", "/y", NoPrefix},
	}
	for _, c := range cases {
		got := ComputePrefix(c.full, c.tail)
		assert.Equal(t, c.want, got, "%q - %q", c.full, c.tail)
		if p, ok := got.Get(); ok {
			assert.Equal(t, c.full, p+c.tail)
		}
	}
}

func TestPrefixOr(t *testing.T) {
	assert.Equal(t, PrefixOf(""), PrefixOf("").Or(PrefixOf("/x")))
	assert.Equal(t, PrefixOf("/x"), NoPrefix.Or(PrefixOf("/x")))
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod("PROPFIND")
	require.NoError(t, err)
	assert.Equal(t, MethodPropfind, m)

	m, err = ParseMethod("X-CUSTOM")
	require.NoError(t, err)
	assert.Equal(t, Method("X-CUSTOM"), m)

	_, err = ParseMethod("BAD METHOD")
	assert.Error(t, err)
	_, err = ParseMethod("")
	assert.Error(t, err)
}

func TestPrincipalContext(t *testing.T) {
	ctx := WithPrincipal(context.Background(), "alice")
	assert.Equal(t, "alice", PrincipalFrom(ctx))
	assert.Equal(t, "", PrincipalFrom(context.Background()))
	assert.Equal(t, context.Background(), WithPrincipal(context.Background(), ""))
}

func TestBufferedOrEmpty(t *testing.T) {
	src := &scriptedSource{}
	assert.True(t, BufferedOrEmpty(&Response{Status: 200, Body: StringBody("x")}))
	assert.True(t, BufferedOrEmpty(&Response{Status: 200}))
	assert.True(t, BufferedOrEmpty(&Response{Status: 204, Body: StreamBody(src, -1)}))
	assert.True(t, BufferedOrEmpty(&Response{Status: 200, Body: StreamBody(src, 0)}))
	assert.False(t, BufferedOrEmpty(&Response{Status: 200, Body: StreamBody(src, -1)}))
	assert.False(t, BufferedOrEmpty(&Response{Status: 304, Body: StreamBody(src, -1)}))
}

func TestTextResponse(t *testing.T) {
	r := TextResponse(401, "please auth")
	buf, ok := r.Body.Buffer()
	require.True(t, ok)
	assert.Equal(t, "please auth", string(buf))
	assert.True(t, ValidStatus(r.Status))
	assert.False(t, ValidStatus(600))
	assert.False(t, ValidStatus(99))
}
