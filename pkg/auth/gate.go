// Package auth is the credential gate adapters run before a canonical
// request is built. It only ever answers with a fixed canonical response or
// lets the request through with a principal.
package auth

import (
	"net"
	"net/http"
	"strings"

	"davbridge/pkg/dav"
	"davbridge/pkg/logger"
	"davbridge/pkg/telemetry"
)

const DefaultRealm = "davbridge"

// Config drives the gate. The zero value accepts any Basic credential.
type Config struct {
	Realm string
	// Users maps user names to passwords. Empty means any Basic credential
	// is accepted and its user name becomes the principal.
	Users map[string]string
	// APIKeys maps static keys, sent as a Bearer token or X-API-Key, to
	// principals.
	APIKeys map[string]string
	// JWTSecret enables HS256 Bearer tokens; the principal is the subject.
	JWTSecret string
	// RPS and Burst configure a per-principal rate limit; RPS <= 0 disables it.
	RPS   float64
	Burst int
	// IPWhitelist restricts the remote addresses allowed at all.
	IPWhitelist []string
}

// Credentials are the native request values the gate looks at.
type Credentials struct {
	Authorization string
	APIKey        string
	RemoteAddr    string
}

// Gate is immutable after NewGate and safe for concurrent use.
type Gate struct {
	realm     string
	users     map[string]string
	apiKeys   map[string]string
	secret    []byte
	limiters  *limiterPool
	whitelist []string
}

func NewGate(cfg Config) *Gate {
	realm := cfg.Realm
	if realm == "" {
		realm = DefaultRealm
	}
	g := &Gate{
		realm:     realm,
		users:     copyMap(cfg.Users),
		apiKeys:   copyMap(cfg.APIKeys),
		limiters:  newLimiterPool(cfg.RPS, cfg.Burst),
		whitelist: append([]string(nil), cfg.IPWhitelist...),
	}
	if cfg.JWTSecret != "" {
		g.secret = []byte(cfg.JWTSecret)
	}
	return g
}

// Realm returns the realm sent in challenges.
func (g *Gate) Realm() string { return g.realm }

// Check returns the authenticated principal, or the response to send
// instead of invoking the protocol handler.
func (g *Gate) Check(c Credentials) (principal string, deny *dav.Response) {
	if len(g.whitelist) > 0 {
		ip := clientIP(c.RemoteAddr)
		if !ipWhitelisted(ip, g.whitelist) {
			logger.Warn("request_blocked", "reason", "ip_not_whitelisted", "ip", ip)
			telemetry.AuthDenied("ip")
			return "", Forbidden()
		}
	}

	principal, err := g.authenticate(c)
	if err != nil {
		logger.AuditEvent("auth_denied", "remote", c.RemoteAddr, "reason", err.Error())
		// failures have no principal; they are throttled per client address
		if !g.limiters.Allow("ip:" + clientIP(c.RemoteAddr)) {
			logger.Warn("rate_limited", "ip", clientIP(c.RemoteAddr))
			telemetry.AuthDenied("rate")
			return "", TooManyRequests()
		}
		telemetry.AuthDenied("credentials")
		return "", g.Challenge()
	}

	if !g.limiters.Allow(principal) {
		logger.Warn("rate_limited", "principal", principal)
		telemetry.AuthDenied("rate")
		return "", TooManyRequests()
	}
	logger.AuditEvent("auth_granted", "principal", principal, "remote", c.RemoteAddr)
	return principal, nil
}

func (g *Gate) authenticate(c Credentials) (string, error) {
	if c.Authorization == "" {
		if key := strings.TrimSpace(c.APIKey); key != "" {
			if p, ok := g.lookupKey(key); ok {
				return p, nil
			}
			return "", errBadCredentials
		}
		return "", errNoCredentials
	}
	s, param := scheme(c.Authorization)
	switch s {
	case "basic":
		return g.checkBasic(param)
	case "bearer":
		return g.checkBearer(param)
	}
	return "", errUnsupported
}

// Challenge is the 401 reply asking the client for Basic credentials.
func (g *Gate) Challenge() *dav.Response {
	r := dav.TextResponse(http.StatusUnauthorized, "please auth")
	r.Header.Add("WWW-Authenticate", `Basic realm="`+strings.ReplaceAll(g.realm, `"`, `'`)+`"`)
	return r
}

func Forbidden() *dav.Response {
	return dav.TextResponse(http.StatusForbidden, "forbidden")
}

func TooManyRequests() *dav.Response {
	r := dav.TextResponse(http.StatusTooManyRequests, "rate limit exceeded")
	r.Header.Add("Retry-After", "1")
	return r
}

func clientIP(remote string) string {
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		return remote
	}
	return host
}

func ipWhitelisted(ip string, list []string) bool {
	for _, w := range list {
		if ip == w {
			return true
		}
	}
	return false
}

func copyMap(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
