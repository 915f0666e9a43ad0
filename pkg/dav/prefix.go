package dav

import "strings"

// Prefix is the part of the request path consumed by host routing before the
// protocol handler runs. The zero value is NoPrefix, which is different from
// an explicitly configured empty prefix.
type Prefix struct {
	value string
	set   bool
}

// NoPrefix leaves the choice to the protocol handler's own default.
var NoPrefix = Prefix{}

// PrefixOf returns an explicit prefix.
func PrefixOf(s string) Prefix {
	return Prefix{value: s, set: true}
}

// Get returns the prefix and whether one is set.
func (p Prefix) Get() (string, bool) { return p.value, p.set }

// IsSet reports whether an explicit prefix is present.
func (p Prefix) IsSet() bool { return p.set }

// String returns the prefix or "".
func (p Prefix) String() string { return p.value }

// Or returns p when set, otherwise fallback.
func (p Prefix) Or(fallback Prefix) Prefix {
	if p.set {
		return p
	}
	return fallback
}

// ComputePrefix removes the router-internal tail from full. When tail is not
// a suffix of full nothing was consumed that we can trust, and NoPrefix is
// returned. A result of "" or "/" means a root mount and is reported as
// NoPrefix.
func ComputePrefix(full, tail string) Prefix {
	if !strings.HasSuffix(full, tail) {
		return NoPrefix
	}
	switch p := full[:len(full)-len(tail)]; p {
	case "", "/":
		return NoPrefix
	default:
		return PrefixOf(p)
	}
}
