package dav

import (
	"fmt"
	"strings"
)

// Version is the HTTP protocol version of a canonical request or response.
// The zero value means no explicit version.
type Version uint8

const (
	VersionUnspecified Version = iota
	HTTP09
	HTTP10
	HTTP11
	HTTP2
	HTTP3
)

type versionEntry struct {
	proto string
	major int
	minor int
}

// versionTable is the single mapping used in both directions by every adapter.
var versionTable = map[Version]versionEntry{
	HTTP09: {proto: "HTTP/0.9", major: 0, minor: 9},
	HTTP10: {proto: "HTTP/1.0", major: 1, minor: 0},
	HTTP11: {proto: "HTTP/1.1", major: 1, minor: 1},
	HTTP2:  {proto: "HTTP/2.0", major: 2, minor: 0},
	HTTP3:  {proto: "HTTP/3.0", major: 3, minor: 0},
}

// Versions returns every concrete version in ascending order.
func Versions() []Version {
	return []Version{HTTP09, HTTP10, HTTP11, HTTP2, HTTP3}
}

// Valid reports whether v is one of the concrete versions.
func (v Version) Valid() bool {
	_, ok := versionTable[v]
	return ok
}

// Proto returns the protocol string ("HTTP/1.1"), or "" for unknown versions.
func (v Version) Proto() string {
	return versionTable[v].proto
}

// ProtoAtLeast mirrors http.Request.ProtoAtLeast.
func (v Version) ProtoAtLeast(major, minor int) bool {
	e, ok := versionTable[v]
	if !ok {
		return false
	}
	return e.major > major || e.major == major && e.minor >= minor
}

// MajorMinor returns the numeric version. ok is false for unknown versions.
func (v Version) MajorMinor() (major, minor int, ok bool) {
	e, ok := versionTable[v]
	return e.major, e.minor, ok
}

func (v Version) String() string {
	if e, ok := versionTable[v]; ok {
		return e.proto
	}
	if v == VersionUnspecified {
		return "unspecified"
	}
	return fmt.Sprintf("Version(%d)", uint8(v))
}

// ParseVersion maps a numeric version to the canonical enumeration.
func ParseVersion(major, minor int) (Version, error) {
	for v, e := range versionTable {
		if e.major == major && e.minor == minor {
			return v, nil
		}
	}
	return VersionUnspecified, &VersionError{Proto: fmt.Sprintf("HTTP/%d.%d", major, minor)}
}

// ParseProto maps a protocol string such as "HTTP/1.1" or "HTTP/2" to the
// canonical enumeration.
func ParseProto(proto string) (Version, error) {
	p := strings.ToUpper(strings.TrimSpace(proto))
	for v, e := range versionTable {
		if p == e.proto {
			return v, nil
		}
	}
	switch p {
	case "HTTP/2":
		return HTTP2, nil
	case "HTTP/3":
		return HTTP3, nil
	}
	return VersionUnspecified, &VersionError{Proto: proto}
}
