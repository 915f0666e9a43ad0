package logger

import (
	"strings"

	"davbridge/pkg/dav"
)

var sensitive = map[string]struct{}{
	"authorization":       {},
	"proxy-authorization": {},
	"cookie":              {},
	"x-api-key":           {},
}

func redactHeaderValue(k, v string) string {
	if v == "" {
		return ""
	}
	if _, ok := sensitive[strings.ToLower(k)]; ok {
		return "<redacted>"
	}
	return v
}

// SafeHeaders returns a compact string representation of headers suitable for
// logging with sensitive values redacted. Repeated names are kept in order.
func SafeHeaders(h dav.Headers) string {
	parts := make([]string, 0, len(h))
	for _, f := range h {
		parts = append(parts, f.Name+"="+redactHeaderValue(f.Name, f.Value))
	}
	return strings.Join(parts, "; ")
}

// LogRequest logs a concise, safe summary of a canonical request at debug
// level.
func LogRequest(runtime string, r *dav.Request) {
	if Log == nil {
		return
	}
	Log.Debug("incoming_request",
		"runtime", runtime,
		"method", string(r.Method),
		"path", r.Path(),
		"version", r.Version.String(),
		"remote", r.RemoteAddr,
		"headers", SafeHeaders(r.Header),
	)
}
