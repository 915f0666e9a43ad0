package dav

import "fmt"

// Method is an HTTP method token. Custom tokens are allowed.
type Method string

const (
	MethodGet     Method = "GET"
	MethodHead    Method = "HEAD"
	MethodPost    Method = "POST"
	MethodPut     Method = "PUT"
	MethodPatch   Method = "PATCH"
	MethodDelete  Method = "DELETE"
	MethodOptions Method = "OPTIONS"
	MethodTrace   Method = "TRACE"
	MethodConnect Method = "CONNECT"

	MethodPropfind  Method = "PROPFIND"
	MethodProppatch Method = "PROPPATCH"
	MethodMkcol     Method = "MKCOL"
	MethodCopy      Method = "COPY"
	MethodMove      Method = "MOVE"
	MethodLock      Method = "LOCK"
	MethodUnlock    Method = "UNLOCK"
)

// Methods lists every method routers must forward to the protocol handler.
var Methods = []Method{
	MethodGet, MethodHead, MethodPost, MethodPut, MethodPatch, MethodDelete, MethodOptions,
	MethodPropfind, MethodProppatch, MethodMkcol, MethodCopy, MethodMove, MethodLock, MethodUnlock,
}

// MethodStrings returns Methods as plain strings for router registration.
func MethodStrings() []string {
	out := make([]string, len(Methods))
	for i, m := range Methods {
		out[i] = string(m)
	}
	return out
}

// ParseMethod validates s as an RFC 7230 token.
func ParseMethod(s string) (Method, error) {
	if s == "" {
		return "", fmt.Errorf("dav: empty method")
	}
	for i := 0; i < len(s); i++ {
		if !isTokenChar(s[i]) {
			return "", fmt.Errorf("dav: invalid method %q", s)
		}
	}
	return Method(s), nil
}

func (m Method) String() string { return string(m) }

func isTokenChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	switch c {
	case '!', '#', '$', '%', '&', '\'', '*', '+', '-', '.', '^', '_', '`', '|', '~':
		return true
	}
	return false
}
