// Package dav holds the canonical request, response and body model shared by
// every host-runtime adapter and by the protocol handler.
//
// Values are built once by an adapter (or by the handler, for responses) and
// handed over by moving the pointer: whoever holds a Request or Response owns
// its Body exclusively.
package dav

import (
	"context"
	"net/url"
)

// Request is the canonical incoming request. It must not be modified once it
// has been handed to a Handler.
type Request struct {
	// Ctx is cancelled when the host runtime abandons the request.
	Ctx        context.Context
	Method     Method
	Target     *url.URL
	Version    Version
	Header     Headers
	Body       *Body
	RemoteAddr string
}

// Context returns Ctx, or context.Background when unset.
func (r *Request) Context() context.Context {
	if r.Ctx != nil {
		return r.Ctx
	}
	return context.Background()
}

// Path returns the path component of the target.
func (r *Request) Path() string {
	if r.Target == nil {
		return ""
	}
	return r.Target.Path
}

// Response is the canonical outgoing response, consumed once by a response
// adapter.
type Response struct {
	Status  int
	Version Version
	Header  Headers
	Body    *Body
}

// NewResponse returns a response with an empty body.
func NewResponse(status int) *Response {
	return &Response{Status: status, Body: EmptyBody()}
}

// TextResponse returns a response with a short text body.
func TextResponse(status int, text string) *Response {
	r := &Response{Status: status, Body: StringBody(text)}
	r.Header.Add("Content-Type", "text/plain; charset=utf-8")
	return r
}

// ValidStatus reports whether code is a status a response may carry.
func ValidStatus(code int) bool {
	return code >= 100 && code <= 599
}

// Overrides apply to a single HandleWith call only.
type Overrides struct {
	// Principal is the authenticated identity, empty when anonymous.
	Principal string
	// Prefix replaces the handler's prefix for this call when set.
	Prefix Prefix
}

// Handler is the protocol handler. It never fails: errors are encoded as
// response status codes.
type Handler interface {
	Handle(req *Request) *Response
	HandleWith(o Overrides, req *Request) *Response
}

// PrefixConfigured is implemented by handlers that carry an explicitly
// configured prefix. Adapters consult it so that a configured prefix always
// wins over one computed from routing.
type PrefixConfigured interface {
	ConfiguredPrefix() Prefix
}

// HandlerPrefix returns h's configured prefix, or NoPrefix.
func HandlerPrefix(h Handler) Prefix {
	if pc, ok := h.(PrefixConfigured); ok {
		return pc.ConfiguredPrefix()
	}
	return NoPrefix
}

type principalKey struct{}

// WithPrincipal stores the principal for the protocol handler's collaborators
// (filesystems and lock systems receive the request context).
func WithPrincipal(ctx context.Context, principal string) context.Context {
	if principal == "" {
		return ctx
	}
	return context.WithValue(ctx, principalKey{}, principal)
}

// PrincipalFrom returns the principal stored by WithPrincipal.
func PrincipalFrom(ctx context.Context) string {
	if v, ok := ctx.Value(principalKey{}).(string); ok {
		return v
	}
	return ""
}
