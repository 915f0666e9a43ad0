package auth

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	errNoCredentials  = errors.New("auth: no credentials")
	errBadCredentials = errors.New("auth: invalid credentials")
	errUnsupported    = errors.New("auth: unsupported authorization scheme")
)

// scheme splits an Authorization value into its lower-cased scheme and
// parameter.
func scheme(authorization string) (string, string) {
	s, param, ok := strings.Cut(strings.TrimSpace(authorization), " ")
	if !ok {
		return strings.ToLower(s), ""
	}
	return strings.ToLower(s), strings.TrimSpace(param)
}

// parseBasic decodes the user and password of a Basic credential.
func parseBasic(param string) (user, pass string, err error) {
	raw, err := base64.StdEncoding.DecodeString(param)
	if err != nil {
		return "", "", errBadCredentials
	}
	user, pass, ok := strings.Cut(string(raw), ":")
	if !ok || user == "" {
		return "", "", errBadCredentials
	}
	return user, pass, nil
}

func (g *Gate) checkBasic(param string) (string, error) {
	user, pass, err := parseBasic(param)
	if err != nil {
		return "", err
	}
	// without a user table every well-formed credential is accepted
	if len(g.users) == 0 {
		return user, nil
	}
	want, ok := g.users[user]
	if !ok || subtle.ConstantTimeCompare([]byte(want), []byte(pass)) != 1 {
		return "", errBadCredentials
	}
	return user, nil
}

func (g *Gate) checkBearer(token string) (string, error) {
	if token == "" {
		return "", errBadCredentials
	}
	if p, ok := g.lookupKey(token); ok {
		return p, nil
	}
	if len(g.secret) == 0 {
		return "", errBadCredentials
	}
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return g.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", errBadCredentials
	}
	if claims.Subject == "" {
		return "", errBadCredentials
	}
	return claims.Subject, nil
}

func (g *Gate) lookupKey(key string) (string, bool) {
	for k, p := range g.apiKeys {
		if subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
			return p, true
		}
	}
	return "", false
}

// SignToken issues an HS256 token for subject. It is used by tests and by
// davserver -token.
func SignToken(secret []byte, subject string, claims jwt.RegisteredClaims) (string, error) {
	claims.Subject = subject
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
